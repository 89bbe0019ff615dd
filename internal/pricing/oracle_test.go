package pricing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioTracker/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockProvider scripts one response per call; the last entry repeats.
type mockProvider struct {
	calls     int
	responses []func() (map[string]decimal.Decimal, error)
	symbols   [][]string
}

func (m *mockProvider) GetQuotes(ctx context.Context, symbols []string, convert string) (map[string]decimal.Decimal, error) {
	m.calls++
	m.symbols = append(m.symbols, symbols)
	i := m.calls - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i]()
}

func ok(prices map[string]decimal.Decimal) func() (map[string]decimal.Decimal, error) {
	return func() (map[string]decimal.Decimal, error) { return prices, nil }
}

func fail(sentinel error) func() (map[string]decimal.Decimal, error) {
	return func() (map[string]decimal.Decimal, error) { return nil, fmt.Errorf("quote fetch: %w", sentinel) }
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func newOracle(t *testing.T, cfg Config) *Oracle {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = &mockLogger{}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetry(3)
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

func TestNew_RequireLivePricesWithoutProvider(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}, RequireLivePrices: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestFetchPrices_EmptyInput(t *testing.T) {
	provider := &mockProvider{responses: []func() (map[string]decimal.Decimal, error){ok(nil)}}
	oracle := newOracle(t, Config{Provider: provider})

	prices := oracle.FetchPrices(context.Background(), nil)
	assert.Empty(t, prices)
	assert.Zero(t, provider.calls, "empty input must short-circuit without an upstream call")
}

func TestFetchPrices_NormalizesAndBatches(t *testing.T) {
	provider := &mockProvider{responses: []func() (map[string]decimal.Decimal, error){
		ok(map[string]decimal.Decimal{"BTC": dec(t, "65000"), "ETH": dec(t, "3400")}),
	}}
	oracle := newOracle(t, Config{Provider: provider})

	prices := oracle.FetchPrices(context.Background(), []string{"BTC/USDT", "ETH/USDT", "BTC/USD"})

	// One batched request of deduped base assets.
	require.Equal(t, 1, provider.calls)
	assert.Equal(t, []string{"BTC", "ETH"}, provider.symbols[0])

	// Result keys are the original market symbols.
	require.Len(t, prices, 3)
	assert.True(t, prices["BTC/USDT"].Equal(dec(t, "65000")))
	assert.True(t, prices["BTC/USD"].Equal(dec(t, "65000")))
	assert.True(t, prices["ETH/USDT"].Equal(dec(t, "3400")))
}

func TestFetchPrices_RetriesThenSucceeds(t *testing.T) {
	provider := &mockProvider{responses: []func() (map[string]decimal.Decimal, error){
		fail(ports.ErrRateLimited),
		fail(ports.ErrProviderUnavailable),
		ok(map[string]decimal.Decimal{"BTC": dec(t, "65000")}),
	}}
	oracle := newOracle(t, Config{Provider: provider})

	prices := oracle.FetchPrices(context.Background(), []string{"BTC/USDT"})
	assert.Equal(t, 3, provider.calls)
	require.Len(t, prices, 1)
	assert.True(t, prices["BTC/USDT"].Equal(dec(t, "65000")))
}

func TestFetchPrices_RetryBudgetExhausted(t *testing.T) {
	provider := &mockProvider{responses: []func() (map[string]decimal.Decimal, error){
		fail(ports.ErrTimeout),
	}}
	oracle := newOracle(t, Config{Provider: provider, Retry: fastRetry(3)})

	prices := oracle.FetchPrices(context.Background(), []string{"BTC/USDT"})
	assert.Equal(t, 3, provider.calls, "retry budget is fixed")
	assert.Empty(t, prices, "no cache, no fallback: symbol omitted, never an error")
}

func TestFetchPrices_NonRetriableShortCircuits(t *testing.T) {
	provider := &mockProvider{responses: []func() (map[string]decimal.Decimal, error){
		fail(ports.ErrInvalidRequest),
	}}
	oracle := newOracle(t, Config{Provider: provider, Retry: fastRetry(3)})

	prices := oracle.FetchPrices(context.Background(), []string{"BTC/USDT"})
	assert.Equal(t, 1, provider.calls, "non-retriable errors must not burn retries")
	assert.Empty(t, prices)
}

func TestFetchPrices_ServesCacheOnFailure(t *testing.T) {
	provider := &mockProvider{responses: []func() (map[string]decimal.Decimal, error){
		ok(map[string]decimal.Decimal{"BTC": dec(t, "65000")}),
		fail(ports.ErrProviderUnavailable),
	}}
	oracle := newOracle(t, Config{Provider: provider, Retry: fastRetry(1)})

	first := oracle.FetchPrices(context.Background(), []string{"BTC/USDT"})
	require.Len(t, first, 1)

	second := oracle.FetchPrices(context.Background(), []string{"BTC/USDT"})
	require.Len(t, second, 1)
	assert.True(t, second["BTC/USDT"].Equal(dec(t, "65000")), "last-good price served after upstream failure")
}

func TestFetchPrices_FallbackAfterFailure(t *testing.T) {
	provider := &mockProvider{responses: []func() (map[string]decimal.Decimal, error){
		fail(ports.ErrProviderUnavailable),
	}}
	oracle := newOracle(t, Config{
		Provider: provider,
		Retry:    fastRetry(1),
		Fallback: map[string]decimal.Decimal{"BTC": dec(t, "60000")},
	})

	prices := oracle.FetchPrices(context.Background(), []string{"BTC/USDT", "ETH/USDT"})
	require.Len(t, prices, 1)
	assert.True(t, prices["BTC/USDT"].Equal(dec(t, "60000")), "configured fallback served")
	_, ok := prices["ETH/USDT"]
	assert.False(t, ok, "symbol without a fallback is omitted")
}

func TestFetchPrices_FallbackOnlyMode(t *testing.T) {
	oracle := newOracle(t, Config{
		Fallback: map[string]decimal.Decimal{"BTC": dec(t, "60000")},
	})

	prices := oracle.FetchPrices(context.Background(), []string{"BTC/USDT"})
	require.Len(t, prices, 1)
	assert.True(t, prices["BTC/USDT"].Equal(dec(t, "60000")))
}

func TestFetchPrices_LivePriceWinsOverFallback(t *testing.T) {
	provider := &mockProvider{responses: []func() (map[string]decimal.Decimal, error){
		ok(map[string]decimal.Decimal{"BTC": dec(t, "65000")}),
	}}
	oracle := newOracle(t, Config{
		Provider: provider,
		Fallback: map[string]decimal.Decimal{"BTC": dec(t, "60000")},
	})

	prices := oracle.FetchPrices(context.Background(), []string{"BTC/USDT"})
	assert.True(t, prices["BTC/USDT"].Equal(dec(t, "65000")))
}
