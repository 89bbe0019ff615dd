package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log" // standard log only for fatal errors before the logger is set up
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"portfolioTracker/config"
	"portfolioTracker/internal/adapters/cmcclient"
	"portfolioTracker/internal/adapters/logger"
	"portfolioTracker/internal/adapters/sqlite"
	"portfolioTracker/internal/app"
	"portfolioTracker/internal/ports"
	"portfolioTracker/internal/pricing"
)

func main() {
	// Monetary fields go out as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// buildService wires config -> logger -> repository -> oracle -> service.
func buildService() (*app.PortfolioService, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database repository: %w", err)
	}
	cleanup := func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}

	var provider ports.QuoteProvider
	if cfg.QuoteAPIKey != "" {
		client, err := cmcclient.New(cmcclient.Config{
			APIKey:  cfg.QuoteAPIKey,
			BaseURL: cfg.QuoteBaseURL,
			Timeout: cfg.QuoteTimeout,
			Logger:  appLogger,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialize quote client: %w", err)
		}
		provider = client
	}

	oracle, err := pricing.New(pricing.Config{
		Provider:      provider,
		Logger:        appLogger,
		QuoteCurrency: cfg.QuoteCurrency,
		Retry: pricing.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			MinDelay:    cfg.RetryMinDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		Fallback:          cfg.FallbackPrices,
		RequireLivePrices: cfg.RequireLivePrices,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize price oracle: %w", err)
	}

	service, err := app.NewPortfolioService(app.Config{
		DefaultQuote:      cfg.QuoteCurrency,
		VerifyMarket:      cfg.VerifyMarket,
		RecentTradesLimit: cfg.RecentTradesLimit,
	}, appLogger, repo, repo, oracle)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize portfolio service: %w", err)
	}
	return service, cleanup, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func newRootCmd() *cobra.Command {
	var userID int64

	root := &cobra.Command{
		Use:           "portfolio",
		Short:         "Track speculative trades, partial sales and portfolio performance",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().Int64Var(&userID, "user", 0, "id of the acting user")

	var market, entry, units string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new trade",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			trade, err := service.AddTrade(cmd.Context(), userID, market, entry, units)
			if err != nil {
				return err
			}
			return printJSON(trade)
		},
	}
	addCmd.Flags().StringVar(&market, "market", "", "market symbol, e.g. BTC/USDT")
	addCmd.Flags().StringVar(&entry, "entry", "", "entry price per unit")
	addCmd.Flags().StringVar(&units, "units", "", "number of units bought")

	var tradeID int64
	var sellUnits, sellPrice string
	sellCmd := &cobra.Command{
		Use:   "sell",
		Short: "Sell some or all units of a trade",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			result, err := service.SellUnits(cmd.Context(), userID, tradeID, sellUnits, sellPrice)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	sellCmd.Flags().Int64Var(&tradeID, "trade", 0, "id of the trade to sell from")
	sellCmd.Flags().StringVar(&sellUnits, "units", "", "units to sell")
	sellCmd.Flags().StringVar(&sellPrice, "price", "", "exit price per unit")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			trades, err := service.ListTrades(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(trades)
		},
	}

	var salesTradeID int64
	salesCmd := &cobra.Command{
		Use:   "sales",
		Short: "Show the sale history of a trade",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			sales, err := service.GetTradeSales(cmd.Context(), userID, salesTradeID)
			if err != nil {
				return err
			}
			return printJSON(sales)
		},
	}
	salesCmd.Flags().Int64Var(&salesTradeID, "trade", 0, "id of the trade")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show portfolio statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			summary, err := service.GetSummary(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}

	pricesCmd := &cobra.Command{
		Use:   "prices [market...]",
		Short: "Fetch current prices for the given markets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := buildService()
			if err != nil {
				return err
			}
			defer cleanup()
			prices, err := service.FetchPrices(cmd.Context(), args)
			if err != nil {
				return err
			}
			return printJSON(prices)
		},
	}

	root.AddCommand(addCmd, sellCmd, listCmd, salesCmd, summaryCmd, pricesCmd)
	return root
}
