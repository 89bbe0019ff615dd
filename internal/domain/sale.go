package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Sale records one partial or full liquidation of a trade. Immutable once
// created. P/L is always priced against the trade's original entry price,
// never a weighted-average cost basis: each trade is a single lot.
type Sale struct {
	ID                   int64           `json:"id"`
	TradeID              int64           `json:"trade_id"`
	UserID               int64           `json:"user_id"`
	UnitsSold            decimal.Decimal `json:"units_sold"`
	ExitPrice            decimal.Decimal `json:"exit_price"`
	ProfitLoss           decimal.Decimal `json:"profit_loss"`
	ProfitLossPercentage decimal.Decimal `json:"profit_loss_percentage"`
	CreatedAt            time.Time       `json:"created_at"`
}

// NewSale builds the sale record for selling unitsSold of the given trade at
// exitPrice. Inputs are assumed validated (positive, no oversell).
func NewSale(trade *Trade, unitsSold, exitPrice decimal.Decimal, now time.Time) *Sale {
	diff := exitPrice.Sub(trade.EntryPrice)
	return &Sale{
		TradeID:              trade.ID,
		UserID:               trade.UserID,
		UnitsSold:            unitsSold,
		ExitPrice:            exitPrice,
		ProfitLoss:           diff.Mul(unitsSold),
		ProfitLossPercentage: diff.Div(trade.EntryPrice).Mul(hundred),
		CreatedAt:            now,
	}
}
