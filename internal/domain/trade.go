package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single opened position: one entry price, one original
// unit count, owned by exactly one user. Units and EntryPrice are immutable
// after creation; only RemainingUnits (and the derived PositionSize) change
// as partial sales are applied.
type Trade struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Market         string          `json:"market"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	Units          decimal.Decimal `json:"units"`
	RemainingUnits decimal.Decimal `json:"remaining_units"`
	PositionSize   decimal.Decimal `json:"position_size"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewTrade creates a trade with all units remaining. Inputs are assumed to be
// already validated (positive prices/units, normalized market symbol).
func NewTrade(userID int64, market string, entryPrice, units decimal.Decimal, now time.Time) *Trade {
	t := &Trade{
		UserID:         userID,
		Market:         market,
		EntryPrice:     entryPrice,
		Units:          units,
		RemainingUnits: units,
		CreatedAt:      now,
	}
	t.RecomputePositionSize()
	return t
}

// IsOpen reports whether any units remain unsold.
func (t *Trade) IsOpen() bool {
	return t.RemainingUnits.IsPositive()
}

// Status derives the lifecycle state from the remaining units.
func (t *Trade) Status() TradeStatus {
	if t.IsOpen() {
		return StatusOpen
	}
	return StatusClosed
}

// RecomputePositionSize refreshes the derived notional value. Must be called
// after every mutation of RemainingUnits; PositionSize is never set directly.
func (t *Trade) RecomputePositionSize() {
	t.PositionSize = t.EntryPrice.Mul(t.RemainingUnits)
}

// ApplySale reduces the remaining units by the sold amount and recomputes the
// position size. The caller is responsible for oversell checks; ApplySale
// only performs the mutation.
func (t *Trade) ApplySale(unitsSold decimal.Decimal) {
	t.RemainingUnits = t.RemainingUnits.Sub(unitsSold)
	t.RecomputePositionSize()
}
