package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DefaultRecentLimit is how many recent trades a summary carries when the
// caller does not specify a limit.
const DefaultRecentLimit = 5

// MarketRollup aggregates a user's trades for one normalized market.
type MarketRollup struct {
	Market        string           `json:"market"`
	TradeCount    int              `json:"trade_count"`
	TotalPosition decimal.Decimal  `json:"total_position"`
	LatestPrice   *decimal.Decimal `json:"latest_price,omitempty"`
}

// Summary holds portfolio-level statistics derived from a user's trades and
// sale history. All numeric fields are finite; anything that cannot be
// computed (no sales, no price) collapses to zero or nil instead of
// propagating an invalid value.
type Summary struct {
	TotalTrades           int             `json:"total_trades"`
	OpenTrades            int             `json:"open_trades"`
	ClosedTrades          int             `json:"closed_trades"`
	RealizedProfitLoss    decimal.Decimal `json:"realized_profit_loss"`
	UnrealizedProfitLoss  decimal.Decimal `json:"unrealized_profit_loss"`
	TotalProfitLoss       decimal.Decimal `json:"total_profit_loss"`
	AvgProfitLossPercent  decimal.Decimal `json:"avg_profit_loss_percent"`
	TotalInvested         decimal.Decimal `json:"total_invested"`
	CurrentPositionsValue decimal.Decimal `json:"current_positions_value"`
	LargestPosition       decimal.Decimal `json:"largest_position"`
	AvgPositionSize       decimal.Decimal `json:"avg_position_size"`
	WinRate               decimal.Decimal `json:"win_rate"`
	TradesByMarket        []MarketRollup  `json:"trades_by_market"`
	RecentTrades          []*domain.Trade `json:"recent_trades"`
	BestPerforming        *domain.Trade   `json:"best_performing"`
	WorstPerforming       *domain.Trade   `json:"worst_performing"`
}

// BuildSummary computes portfolio statistics from the user's trades, their
// full sale history, and the current prices the oracle could resolve
// (keyed by normalized market; missing markets contribute zero unrealized
// P/L). Trades and sales are expected in creation order.
//
// Best/worst performing rank trades by their single best/worst sale's P/L
// percentage, ties going to the earliest sale. This is a realized-only
// ranking: a still-open trade with a large unrealized gain never appears,
// and no trade appears before its first sale.
func BuildSummary(trades []*domain.Trade, sales []*domain.Sale, prices map[string]decimal.Decimal, recentLimit int) *Summary {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	s := &Summary{
		TradesByMarket: make([]MarketRollup, 0),
		RecentTrades:   make([]*domain.Trade, 0),
	}
	if len(trades) == 0 {
		return s
	}

	tradesByID := make(map[int64]*domain.Trade, len(trades))
	s.TotalTrades = len(trades)
	for _, trade := range trades {
		tradesByID[trade.ID] = trade
		if trade.IsOpen() {
			s.OpenTrades++
			s.CurrentPositionsValue = s.CurrentPositionsValue.Add(trade.PositionSize)
			if price, ok := prices[trade.Market]; ok {
				gain := price.Sub(trade.EntryPrice).Mul(trade.RemainingUnits)
				s.UnrealizedProfitLoss = s.UnrealizedProfitLoss.Add(gain)
			}
		} else {
			s.ClosedTrades++
		}
		s.TotalInvested = s.TotalInvested.Add(trade.PositionSize)
		if trade.PositionSize.GreaterThan(s.LargestPosition) {
			s.LargestPosition = trade.PositionSize
		}
	}
	s.AvgPositionSize = s.TotalInvested.Div(decimal.NewFromInt(int64(s.TotalTrades)))

	var (
		winningSales int
		pctSum       decimal.Decimal
		best         *domain.Sale
		worst        *domain.Sale
	)
	for _, sale := range sales {
		s.RealizedProfitLoss = s.RealizedProfitLoss.Add(sale.ProfitLoss)
		pctSum = pctSum.Add(sale.ProfitLossPercentage)
		if sale.ProfitLoss.IsPositive() {
			winningSales++
		}
		// Strict comparisons keep the earliest sale on ties.
		if best == nil || sale.ProfitLossPercentage.GreaterThan(best.ProfitLossPercentage) {
			best = sale
		}
		if worst == nil || sale.ProfitLossPercentage.LessThan(worst.ProfitLossPercentage) {
			worst = sale
		}
	}
	if n := len(sales); n > 0 {
		s.AvgProfitLossPercent = pctSum.Div(decimal.NewFromInt(int64(n)))
		s.WinRate = decimal.NewFromInt(int64(winningSales)).Mul(hundred).Div(decimal.NewFromInt(int64(n)))
	}
	s.TotalProfitLoss = s.RealizedProfitLoss.Add(s.UnrealizedProfitLoss)
	if best != nil {
		s.BestPerforming = tradesByID[best.TradeID]
	}
	if worst != nil {
		s.WorstPerforming = tradesByID[worst.TradeID]
	}

	s.TradesByMarket = rollupByMarket(trades, prices)
	s.RecentTrades = recentTrades(trades, recentLimit)
	return s
}

// rollupByMarket groups trades by normalized market in first-seen order.
func rollupByMarket(trades []*domain.Trade, prices map[string]decimal.Decimal) []MarketRollup {
	index := make(map[string]int)
	rollups := make([]MarketRollup, 0)
	for _, trade := range trades {
		i, ok := index[trade.Market]
		if !ok {
			i = len(rollups)
			index[trade.Market] = i
			rollup := MarketRollup{Market: trade.Market}
			if price, priced := prices[trade.Market]; priced {
				p := price
				rollup.LatestPrice = &p
			}
			rollups = append(rollups, rollup)
		}
		rollups[i].TradeCount++
		rollups[i].TotalPosition = rollups[i].TotalPosition.Add(trade.PositionSize)
	}
	return rollups
}

// recentTrades returns the most recent limit trades by creation time,
// newest first.
func recentTrades(trades []*domain.Trade, limit int) []*domain.Trade {
	recent := make([]*domain.Trade, len(trades))
	copy(recent, trades)
	sort.SliceStable(recent, func(i, j int) bool {
		if recent[i].CreatedAt.Equal(recent[j].CreatedAt) {
			return recent[i].ID > recent[j].ID
		}
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}
