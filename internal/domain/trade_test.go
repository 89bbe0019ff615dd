package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestNewTrade(t *testing.T) {
	now := time.Now()
	trade := NewTrade(1, "BTC/USDT", dec(t, "35000"), dec(t, "0.5"), now)

	assert.Equal(t, int64(1), trade.UserID)
	assert.Equal(t, "BTC/USDT", trade.Market)
	assert.True(t, trade.RemainingUnits.Equal(dec(t, "0.5")), "all units remain at creation")
	assert.True(t, trade.PositionSize.Equal(dec(t, "17500")), "position size = entry * remaining, got %s", trade.PositionSize)
	assert.True(t, trade.IsOpen())
	assert.Equal(t, StatusOpen, trade.Status())
}

func TestTrade_ApplySale(t *testing.T) {
	trade := NewTrade(1, "BTC/USDT", dec(t, "35000"), dec(t, "0.5"), time.Now())

	trade.ApplySale(dec(t, "0.2"))
	assert.True(t, trade.RemainingUnits.Equal(dec(t, "0.3")), "got %s", trade.RemainingUnits)
	assert.True(t, trade.PositionSize.Equal(dec(t, "10500")), "position size recomputed, got %s", trade.PositionSize)
	assert.True(t, trade.IsOpen())

	// Invariant: units - remaining == sum of units sold.
	sold := trade.Units.Sub(trade.RemainingUnits)
	assert.True(t, sold.Equal(dec(t, "0.2")))

	trade.ApplySale(dec(t, "0.3"))
	assert.True(t, trade.RemainingUnits.IsZero())
	assert.True(t, trade.PositionSize.IsZero())
	assert.False(t, trade.IsOpen())
	assert.Equal(t, StatusClosed, trade.Status())
}

func TestNewSale(t *testing.T) {
	trade := NewTrade(7, "BTC/USDT", dec(t, "35000"), dec(t, "0.5"), time.Now())
	trade.ID = 42

	sale := NewSale(trade, dec(t, "0.2"), dec(t, "36000"), time.Now())

	assert.Equal(t, int64(42), sale.TradeID)
	assert.Equal(t, int64(7), sale.UserID)
	assert.True(t, sale.ProfitLoss.Equal(dec(t, "200")), "(36000-35000)*0.2, got %s", sale.ProfitLoss)
	assert.Equal(t, "2.857", sale.ProfitLossPercentage.StringFixed(3))
}

func TestNewSale_Loss(t *testing.T) {
	trade := NewTrade(1, "ETH/USDT", dec(t, "2000"), dec(t, "3"), time.Now())
	sale := NewSale(trade, dec(t, "3"), dec(t, "1900"), time.Now())

	assert.True(t, sale.ProfitLoss.Equal(dec(t, "-300")), "got %s", sale.ProfitLoss)
	assert.True(t, sale.ProfitLossPercentage.Equal(dec(t, "-5")), "got %s", sale.ProfitLossPercentage)
}

func TestNormalizeMarket(t *testing.T) {
	tests := []struct {
		name    string
		market  string
		want    string
		wantErr bool
	}{
		{name: "already normalized", market: "BTC/USDT", want: "BTC/USDT"},
		{name: "lowercase uppercased", market: "eth/usdt", want: "ETH/USDT"},
		{name: "no separator gets default quote", market: "btc", want: "BTC/USD"},
		{name: "dot and hyphen allowed", market: "brk.b-x", want: "BRK.B-X/USD"},
		{name: "surrounding whitespace trimmed", market: "  sol/usdc  ", want: "SOL/USDC"},
		{name: "empty rejected", market: "", wantErr: true},
		{name: "whitespace only rejected", market: "   ", wantErr: true},
		{name: "illegal characters rejected", market: "BTC_USDT", wantErr: true},
		{name: "embedded space rejected", market: "BTC USDT", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeMarket(tt.market, "USD")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "market", verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBaseAsset(t *testing.T) {
	assert.Equal(t, "BTC", BaseAsset("BTC/USDT"))
	assert.Equal(t, "SOL", BaseAsset("SOL"))
	assert.Equal(t, "BRK.B", BaseAsset("BRK.B/USD"))
}

func TestParsePositiveDecimal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain integer", raw: "35000", want: "35000"},
		{name: "fractional", raw: "0.5", want: "0.5"},
		{name: "whitespace trimmed", raw: " 1.25 ", want: "1.25"},
		{name: "empty rejected", raw: "", wantErr: true},
		{name: "non-numeric rejected", raw: "abc", wantErr: true},
		{name: "zero rejected", raw: "0", wantErr: true},
		{name: "negative rejected", raw: "-3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePositiveDecimal(tt.raw, "entry_price")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				assert.Contains(t, err.Error(), "entry_price", "error names the offending field")
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(t, tt.want)), "got %s", got)
		})
	}
}
