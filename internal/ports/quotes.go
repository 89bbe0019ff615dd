package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteProvider fetches current prices for a batch of base-asset codes
// (e.g. "BTC", "ETH") quoted in the given convert currency. Partial results
// are allowed: symbols the upstream cannot price are simply absent from the
// returned map. A non-nil error means the whole request failed.
type QuoteProvider interface {
	GetQuotes(ctx context.Context, symbols []string, convert string) (map[string]decimal.Decimal, error)
}
