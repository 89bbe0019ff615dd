package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/analytics"
	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

// PriceOracle is the slice of the pricing oracle the service needs. Price
// lookups are advisory: the oracle degrades internally and never fails.
type PriceOracle interface {
	FetchPrices(ctx context.Context, markets []string) map[string]decimal.Decimal
}

// Config holds the service-level options.
type Config struct {
	// DefaultQuote is appended to market symbols that carry no
	// quote-currency separator (e.g. "BTC" -> "BTC/USD").
	DefaultQuote string
	// VerifyMarket asks the oracle for a price before accepting a new
	// trade; adds fail when no price can be resolved. Disable for
	// offline/test use.
	VerifyMarket bool
	// RecentTradesLimit caps the recent-trades list in summaries.
	RecentTradesLimit int
}

// PortfolioService owns the trade ledger: it validates and records trades,
// applies partial sales, and derives portfolio summaries.
type PortfolioService struct {
	cfg    Config
	logger ports.Logger
	trades ports.TradeRepository
	sales  ports.SaleRepository
	oracle PriceOracle
	now    func() time.Time
}

// SaleResult pairs a recorded sale with the trade state it produced.
type SaleResult struct {
	Sale  *domain.Sale  `json:"sale"`
	Trade *domain.Trade `json:"updated_trade"`
}

// NewPortfolioService creates the application service.
func NewPortfolioService(cfg Config, logger ports.Logger, trades ports.TradeRepository, sales ports.SaleRepository, oracle PriceOracle) (*PortfolioService, error) {
	if logger == nil || trades == nil || sales == nil || oracle == nil {
		return nil, fmt.Errorf("missing required dependencies for PortfolioService")
	}
	if cfg.DefaultQuote == "" {
		cfg.DefaultQuote = "USD"
	}
	if cfg.RecentTradesLimit <= 0 {
		cfg.RecentTradesLimit = analytics.DefaultRecentLimit
	}
	return &PortfolioService{
		cfg:    cfg,
		logger: logger,
		trades: trades,
		sales:  sales,
		oracle: oracle,
		now:    time.Now,
	}, nil
}

// AddTrade validates and records a new trade for the user. Numeric inputs
// arrive as strings and are parsed exactly once here; nothing past this
// point re-coerces them. On success the returned trade has all units
// remaining and its position size computed.
func (s *PortfolioService) AddTrade(ctx context.Context, userID int64, market, entryPrice, units string) (*domain.Trade, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	normalized, err := domain.NormalizeMarket(market, s.cfg.DefaultQuote)
	if err != nil {
		return nil, err
	}
	entry, err := domain.ParsePositiveDecimal(entryPrice, "entry_price")
	if err != nil {
		return nil, err
	}
	size, err := domain.ParsePositiveDecimal(units, "units")
	if err != nil {
		return nil, err
	}

	if s.cfg.VerifyMarket {
		prices := s.oracle.FetchPrices(ctx, []string{normalized})
		if _, ok := prices[normalized]; !ok {
			return nil, domain.NewValidationError("market", fmt.Sprintf("no price available for %s", normalized))
		}
	}

	trade := domain.NewTrade(userID, normalized, entry, size, s.now())
	if _, err := s.trades.CreateTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, "Failed to record trade", map[string]interface{}{"userID": userID, "market": normalized})
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}
	s.logger.Info(ctx, "Trade added", map[string]interface{}{
		"tradeID": trade.ID, "userID": userID, "market": normalized,
		"entryPrice": entry.String(), "units": size.String(),
	})
	return trade, nil
}

// SellUnits applies a partial or full close against one of the user's
// trades. The P/L is priced against the trade's original entry price, and
// the trade decrement plus the sale insert commit as one unit: a failure
// anywhere leaves both the ledger and the sale history untouched.
func (s *PortfolioService) SellUnits(ctx context.Context, userID, tradeID int64, unitsToSell, exitPrice string) (*SaleResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	units, err := domain.ParsePositiveDecimal(unitsToSell, "units_to_sell")
	if err != nil {
		return nil, err
	}
	exit, err := domain.ParsePositiveDecimal(exitPrice, "exit_price")
	if err != nil {
		return nil, err
	}

	trade, err := s.findOwnedTrade(ctx, tradeID, userID)
	if err != nil {
		return nil, err
	}
	if units.GreaterThan(trade.RemainingUnits) {
		return nil, domain.NewValidationError("units_to_sell", "cannot sell more units than remaining")
	}

	sale := domain.NewSale(trade, units, exit, s.now())
	if err := s.sales.RecordSale(ctx, trade, sale); err != nil {
		s.logger.Error(ctx, err, "Failed to record sale", map[string]interface{}{"tradeID": tradeID, "userID": userID})
		return nil, err
	}
	s.logger.Info(ctx, "Sale recorded", map[string]interface{}{
		"saleID": sale.ID, "tradeID": tradeID, "userID": userID,
		"unitsSold": units.String(), "exitPrice": exit.String(),
		"profitLoss": sale.ProfitLoss.String(), "remaining": trade.RemainingUnits.String(),
	})
	return &SaleResult{Sale: sale, Trade: trade}, nil
}

// ListTrades returns the user's trades in creation order.
func (s *PortfolioService) ListTrades(ctx context.Context, userID int64) ([]*domain.Trade, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	trades, err := s.trades.FindTradesByUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to list trades", map[string]interface{}{"userID": userID})
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// GetTradeSales returns the sale history of one of the user's trades in
// creation order.
func (s *PortfolioService) GetTradeSales(ctx context.Context, userID, tradeID int64) ([]*domain.Sale, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if _, err := s.findOwnedTrade(ctx, tradeID, userID); err != nil {
		return nil, err
	}
	sales, err := s.sales.FindSalesByTrade(ctx, tradeID, userID)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load sale history", map[string]interface{}{"tradeID": tradeID, "userID": userID})
		return nil, fmt.Errorf("failed to load sale history: %w", err)
	}
	return sales, nil
}

// GetSummary derives portfolio statistics for the user. A user with no
// trades gets an explicit zero summary. Current prices enrich the open
// positions when the oracle can resolve them; a missing price leaves that
// trade's unrealized P/L at zero and never fails the summary.
func (s *PortfolioService) GetSummary(ctx context.Context, userID int64) (*analytics.Summary, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	trades, err := s.trades.FindTradesByUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load trades for summary", map[string]interface{}{"userID": userID})
		return nil, fmt.Errorf("failed to load trades for summary: %w", err)
	}
	sales, err := s.sales.FindSalesByUser(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load sales for summary", map[string]interface{}{"userID": userID})
		return nil, fmt.Errorf("failed to load sales for summary: %w", err)
	}

	openMarkets := make([]string, 0)
	seen := make(map[string]struct{})
	for _, trade := range trades {
		if !trade.IsOpen() {
			continue
		}
		if _, dup := seen[trade.Market]; dup {
			continue
		}
		seen[trade.Market] = struct{}{}
		openMarkets = append(openMarkets, trade.Market)
	}
	prices := s.oracle.FetchPrices(ctx, openMarkets)

	return analytics.BuildSummary(trades, sales, prices, s.cfg.RecentTradesLimit), nil
}

// FetchPrices resolves current prices for the given market symbols. Symbols
// are validated and normalized first; markets the oracle cannot price are
// absent from the result.
func (s *PortfolioService) FetchPrices(ctx context.Context, markets []string) (map[string]decimal.Decimal, error) {
	normalized := make([]string, 0, len(markets))
	seen := make(map[string]struct{}, len(markets))
	for _, market := range markets {
		m, err := domain.NormalizeMarket(market, s.cfg.DefaultQuote)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		normalized = append(normalized, m)
	}
	return s.oracle.FetchPrices(ctx, normalized), nil
}

// findOwnedTrade loads a trade scoped to the user. A trade that does not
// exist and a trade owned by someone else produce the same not-found error,
// so callers cannot probe for other users' trade ids.
func (s *PortfolioService) findOwnedTrade(ctx context.Context, tradeID, userID int64) (*domain.Trade, error) {
	trade, err := s.trades.FindTradeByIDAndUser(ctx, tradeID, userID)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to look up trade", map[string]interface{}{"tradeID": tradeID, "userID": userID})
		return nil, fmt.Errorf("failed to look up trade: %w", err)
	}
	if trade == nil {
		return nil, fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	return trade, nil
}

func requireUser(userID int64) error {
	if userID <= 0 {
		return domain.NewValidationError("user_id", "is required")
	}
	return nil
}
