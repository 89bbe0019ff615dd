package ports

import (
	"context"

	"portfolioTracker/internal/domain"
)

// TradeRepository defines the durable store for trades. Every query is
// scoped to a user: cross-user access never leaves the adapter.
type TradeRepository interface {
	// CreateTrade saves a new trade and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindTradesByUser retrieves all trades for a user in creation order.
	FindTradesByUser(ctx context.Context, userID int64) ([]*domain.Trade, error)
	// FindTradeByIDAndUser retrieves a single trade owned by the user.
	// Returns nil, nil when no such trade exists for this user.
	FindTradeByIDAndUser(ctx context.Context, tradeID, userID int64) (*domain.Trade, error)
}

// SaleRepository defines the durable store for sales and the single
// compound write of the ledger: recording a sale together with the
// owning trade's decrement.
type SaleRepository interface {
	// RecordSale atomically persists the sale and the trade's updated
	// remaining units / position size. Either both writes commit or
	// neither does. The trade row is re-checked inside the transaction so
	// concurrent sells of the same trade cannot oversell.
	RecordSale(ctx context.Context, trade *domain.Trade, sale *domain.Sale) error
	// FindSalesByTrade retrieves the sales of one trade in creation order,
	// scoped to the owning user.
	FindSalesByTrade(ctx context.Context, tradeID, userID int64) ([]*domain.Sale, error)
	// FindSalesByUser retrieves all sales for a user in creation order.
	FindSalesByUser(ctx context.Context, userID int64) ([]*domain.Sale, error)
}
