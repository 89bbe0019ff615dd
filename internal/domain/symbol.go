package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// marketPattern is the allowed symbol grammar: letters, digits, hyphen, dot
// and slash (e.g. "BTC/USDT", "BRK.B", "SOL-PERP/USD").
var marketPattern = regexp.MustCompile(`^[A-Za-z0-9\-./]+$`)

// NormalizeMarket validates a market symbol against the allowed grammar and
// canonicalizes it: uppercased, and with "/<defaultQuote>" appended when the
// symbol carries no quote-currency separator.
func NormalizeMarket(market, defaultQuote string) (string, error) {
	market = strings.TrimSpace(market)
	if market == "" {
		return "", NewValidationError("market", "is required")
	}
	if !marketPattern.MatchString(market) {
		return "", NewValidationError("market", fmt.Sprintf("%q contains characters outside the allowed symbol grammar", market))
	}
	market = strings.ToUpper(market)
	if !strings.Contains(market, "/") {
		market = market + "/" + strings.ToUpper(defaultQuote)
	}
	return market, nil
}

// BaseAsset strips the quote-currency suffix from a normalized market symbol,
// yielding the code used to query the upstream quote provider.
func BaseAsset(market string) string {
	if i := strings.Index(market, "/"); i >= 0 {
		return market[:i]
	}
	return market
}
