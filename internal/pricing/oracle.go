package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

// RetryPolicy bounds the upstream retry loop. The budget is deliberately
// small and fixed so a flapping provider adds bounded latency to a summary
// request instead of stalling it.
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the standard 3-attempt exponential schedule.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinDelay:    200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Oracle resolves current market prices for normalized market symbols.
// Lookups are advisory enrichment: every failure degrades through the
// last-good cache and the configured fallback table, and a symbol that
// cannot be served from any of those is simply absent from the result.
type Oracle struct {
	provider ports.QuoteProvider // nil in fallback-only mode
	logger   ports.Logger
	convert  string
	retry    RetryPolicy
	fallback map[string]decimal.Decimal // static prices by base asset

	mu    sync.RWMutex
	cache map[string]decimal.Decimal // last successfully fetched price by base asset
}

// Config holds configuration for the price oracle.
type Config struct {
	// Provider is the upstream quote client. May be nil, in which case the
	// oracle serves only cached/fallback values.
	Provider ports.QuoteProvider
	Logger   ports.Logger
	// QuoteCurrency is the convert target for upstream requests (default USD).
	QuoteCurrency string
	Retry         RetryPolicy
	// Fallback maps base-asset codes to static prices served when no live
	// or cached price exists.
	Fallback map[string]decimal.Decimal
	// RequireLivePrices makes a missing provider a construction error
	// instead of silently degrading to fallback-only operation.
	RequireLivePrices bool
}

// New creates a price oracle.
func New(cfg Config) (*Oracle, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for price oracle")
	}
	if cfg.Provider == nil && cfg.RequireLivePrices {
		return nil, fmt.Errorf("price oracle requires a live quote provider: %w", ports.ErrConfigurationError)
	}
	convert := cfg.QuoteCurrency
	if convert == "" {
		convert = "USD"
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	fallback := make(map[string]decimal.Decimal, len(cfg.Fallback))
	for symbol, price := range cfg.Fallback {
		fallback[symbol] = price
	}
	if cfg.Provider == nil {
		cfg.Logger.Warn(context.Background(), "Price oracle running without a live quote provider", map[string]interface{}{
			"fallbackSymbols": len(fallback),
		})
	}

	return &Oracle{
		provider: cfg.Provider,
		logger:   cfg.Logger,
		convert:  convert,
		retry:    retry,
		fallback: fallback,
		cache:    make(map[string]decimal.Decimal),
	}, nil
}

// FetchPrices resolves prices for the given normalized market symbols
// (e.g. "BTC/USDT"). The result is keyed by the original market strings;
// markets with no resolvable price are omitted. FetchPrices never fails:
// upstream errors degrade to cached and fallback values and are logged,
// not returned.
func (o *Oracle) FetchPrices(ctx context.Context, markets []string) map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal, len(markets))
	if len(markets) == 0 {
		return result
	}

	// Strip quote suffixes and dedupe so the upstream sees one batched
	// request of base-asset codes.
	baseByMarket := make(map[string]string, len(markets))
	seen := make(map[string]struct{}, len(markets))
	bases := make([]string, 0, len(markets))
	for _, market := range markets {
		base := domain.BaseAsset(market)
		baseByMarket[market] = base
		if _, dup := seen[base]; !dup {
			seen[base] = struct{}{}
			bases = append(bases, base)
		}
	}

	live := o.fetchLive(ctx, bases)

	for _, market := range markets {
		base := baseByMarket[market]
		if price, ok := live[base]; ok {
			result[market] = price
			continue
		}
		if price, ok := o.cachedPrice(base); ok {
			result[market] = price
			continue
		}
		if price, ok := o.fallback[base]; ok {
			result[market] = price
		}
	}
	return result
}

// fetchLive runs the bounded retry loop around the provider. Returns nil
// when no provider is configured or every attempt failed.
func (o *Oracle) fetchLive(ctx context.Context, bases []string) map[string]decimal.Decimal {
	if o.provider == nil {
		return nil
	}

	b := &backoff.Backoff{
		Min:    o.retry.MinDelay,
		Max:    o.retry.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		prices, err := o.provider.GetQuotes(ctx, bases, o.convert)
		if err == nil {
			o.storeCache(prices)
			return prices
		}
		lastErr = err

		if !ports.IsRetriable(err) {
			o.logger.Warn(ctx, "Quote fetch failed with non-retriable error, degrading to cache/fallback", map[string]interface{}{
				"error": err.Error(),
			})
			return nil
		}
		if attempt < o.retry.MaxAttempts {
			delay := b.Duration()
			o.logger.Warn(ctx, "Quote fetch failed, retrying", map[string]interface{}{
				"attempt": attempt, "maxAttempts": o.retry.MaxAttempts, "delay": delay.String(), "error": err.Error(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				o.logger.Warn(ctx, "Quote fetch canceled during retry backoff", map[string]interface{}{"error": ctx.Err().Error()})
				return nil
			}
		}
	}

	o.logger.Error(ctx, lastErr, "Quote fetch exhausted retry budget, degrading to cache/fallback", map[string]interface{}{
		"attempts": o.retry.MaxAttempts, "symbols": len(bases),
	})
	return nil
}

func (o *Oracle) cachedPrice(base string) (decimal.Decimal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.cache[base]
	return price, ok
}

func (o *Oracle) storeCache(prices map[string]decimal.Decimal) {
	if len(prices) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for base, price := range prices {
		o.cache[base] = price
	}
}
