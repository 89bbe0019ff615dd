package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"portfolioTracker/internal/adapters/logger" // for LogLevel parsing
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath string

	// Quote provider
	QuoteAPIKey   string
	QuoteBaseURL  string        // empty means the provider default
	QuoteTimeout  time.Duration // hard per-request cap on the upstream call
	QuoteCurrency string        // convert target and default quote suffix

	// Oracle policy
	RequireLivePrices bool
	RetryMaxAttempts  int
	RetryMinDelay     time.Duration
	RetryMaxDelay     time.Duration
	FallbackPrices    map[string]decimal.Decimal // by base asset

	// Ledger
	VerifyMarket      bool
	RecentTradesLimit int

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.DBPath = getEnv("DB_PATH", "./data/portfolio.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.QuoteAPIKey = getEnv("QUOTE_API_KEY", "")
	cfg.QuoteBaseURL = getEnv("QUOTE_API_BASE_URL", "")
	cfg.QuoteCurrency = strings.ToUpper(getEnv("QUOTE_CURRENCY", "USD"))
	if cfg.QuoteCurrency == "" {
		errs = append(errs, "QUOTE_CURRENCY must be set")
	}

	timeoutSeconds := getEnvAsInt("QUOTE_TIMEOUT_SECONDS", 10)
	if timeoutSeconds <= 0 {
		errs = append(errs, "QUOTE_TIMEOUT_SECONDS must be positive")
	}
	cfg.QuoteTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.RequireLivePrices = getEnvAsBool("REQUIRE_LIVE_PRICES", false)
	if cfg.RequireLivePrices && cfg.QuoteAPIKey == "" {
		errs = append(errs, "QUOTE_API_KEY must be set when REQUIRE_LIVE_PRICES is enabled")
	}

	cfg.RetryMaxAttempts = getEnvAsInt("QUOTE_RETRY_MAX_ATTEMPTS", 3)
	if cfg.RetryMaxAttempts <= 0 {
		errs = append(errs, "QUOTE_RETRY_MAX_ATTEMPTS must be positive")
	}
	minDelayMs := getEnvAsInt("QUOTE_RETRY_MIN_DELAY_MS", 200)
	maxDelayMs := getEnvAsInt("QUOTE_RETRY_MAX_DELAY_MS", 2000)
	if minDelayMs <= 0 || maxDelayMs <= 0 || minDelayMs > maxDelayMs {
		errs = append(errs, "quote retry delays must be positive with QUOTE_RETRY_MIN_DELAY_MS <= QUOTE_RETRY_MAX_DELAY_MS")
	}
	cfg.RetryMinDelay = time.Duration(minDelayMs) * time.Millisecond
	cfg.RetryMaxDelay = time.Duration(maxDelayMs) * time.Millisecond

	fallback, err := parseFallbackPrices(getEnv("FALLBACK_PRICES", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FALLBACK_PRICES: %v", err))
	}
	cfg.FallbackPrices = fallback

	cfg.VerifyMarket = getEnvAsBool("VERIFY_MARKET", true)

	cfg.RecentTradesLimit = getEnvAsInt("RECENT_TRADES_LIMIT", 5)
	if cfg.RecentTradesLimit <= 0 {
		errs = append(errs, "RECENT_TRADES_LIMIT must be positive")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// parseFallbackPrices parses "BTC=65000,ETH=3400" into a price table.
func parseFallbackPrices(raw string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return prices, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("entry %q is not of the form SYMBOL=PRICE", pair)
		}
		symbol := strings.ToUpper(strings.TrimSpace(parts[0]))
		if symbol == "" {
			return nil, fmt.Errorf("entry %q has an empty symbol", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("entry %q has an invalid price: %w", pair, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("entry %q must have a positive price", pair)
		}
		prices[symbol] = price
	}
	return prices, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
