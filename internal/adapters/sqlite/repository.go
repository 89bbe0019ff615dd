package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository and ports.SaleRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if necessary) the database at cfg.DBPath and
// ensures the schema exists.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/portfolio.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL lets summary/list reads proceed while a sell commits.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers; together with the per-sell
	// transaction this is what makes check-then-write on remaining_units safe.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist. Monetary and quantity
// columns are stored as canonical decimal strings to avoid float drift.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		market TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		units TEXT NOT NULL,
		remaining_units TEXT NOT NULL,
		position_size TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		units_sold TEXT NOT NULL,
		exit_price TEXT NOT NULL,
		profit_loss TEXT NOT NULL,
		profit_loss_percentage TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (trade_id) REFERENCES trades (id)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_user ON trades (user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sales_trade_user ON sales (trade_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_sales_user ON sales (user_id, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository Implementation ---

// CreateTrade saves a new trade and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (user_id, market, entry_price, units, remaining_units, position_size, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.UserID, trade.Market, trade.EntryPrice.String(), trade.Units.String(),
		trade.RemainingUnits.String(), trade.PositionSize.String(), trade.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for market %s: %w: %w", trade.Market, ports.ErrQueryFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Market, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "market": trade.Market, "userID": trade.UserID})
	return id, nil
}

// FindTradesByUser retrieves all trades for a user in creation order.
func (r *Repository) FindTradesByUser(ctx context.Context, userID int64) ([]*domain.Trade, error) {
	const query = `
	SELECT id, user_id, market, entry_price, units, remaining_units, position_size, created_at
	FROM trades
	WHERE user_id = ?
	ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for user %d: %w: %w", userID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindTradesByUser: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// FindTradeByIDAndUser retrieves a single trade owned by the user.
// Returns nil, nil when no such trade exists for this user.
func (r *Repository) FindTradeByIDAndUser(ctx context.Context, tradeID, userID int64) (*domain.Trade, error) {
	const query = `
	SELECT id, user_id, market, entry_price, units, remaining_units, position_size, created_at
	FROM trades
	WHERE id = ? AND user_id = ?`

	row := r.db.QueryRowContext(ctx, query, tradeID, userID)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade %d for user %d: %w: %w", tradeID, userID, ports.ErrQueryFailed, err)
	}
	return trade, nil
}

// --- SaleRepository Implementation ---

// RecordSale persists the sale and the trade's decrement as one transaction.
// The trade row is re-read inside the transaction and the oversell check is
// repeated against the stored value, so a concurrent sell that committed
// first cannot be overdrawn. On success the passed trade is updated to the
// committed remaining units and position size, and sale.ID is assigned.
func (r *Repository) RecordSale(ctx context.Context, trade *domain.Trade, sale *domain.Sale) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sale transaction: %w: %w", ports.ErrTxFailed, err)
	}
	defer tx.Rollback()

	const selectQuery = `SELECT entry_price, remaining_units FROM trades WHERE id = ? AND user_id = ?`
	var entryRaw, remainingRaw string
	err = tx.QueryRowContext(ctx, selectQuery, trade.ID, trade.UserID).Scan(&entryRaw, &remainingRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("trade %d: %w", trade.ID, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to re-read trade %d in sale transaction: %w: %w", trade.ID, ports.ErrTxFailed, err)
	}

	entryPrice, err := decimal.NewFromString(entryRaw)
	if err != nil {
		return fmt.Errorf("corrupt entry_price for trade %d: %w", trade.ID, err)
	}
	remaining, err := decimal.NewFromString(remainingRaw)
	if err != nil {
		return fmt.Errorf("corrupt remaining_units for trade %d: %w", trade.ID, err)
	}
	if sale.UnitsSold.GreaterThan(remaining) {
		return domain.NewValidationError("units_to_sell", "cannot sell more units than remaining")
	}

	newRemaining := remaining.Sub(sale.UnitsSold)
	newPositionSize := entryPrice.Mul(newRemaining)

	const updateQuery = `UPDATE trades SET remaining_units = ?, position_size = ? WHERE id = ? AND user_id = ?`
	if _, err := tx.ExecContext(ctx, updateQuery, newRemaining.String(), newPositionSize.String(), trade.ID, trade.UserID); err != nil {
		return fmt.Errorf("failed to update trade %d in sale transaction: %w: %w", trade.ID, ports.ErrTxFailed, err)
	}

	const insertQuery = `
	INSERT INTO sales (trade_id, user_id, units_sold, exit_price, profit_loss, profit_loss_percentage, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, insertQuery,
		sale.TradeID, sale.UserID, sale.UnitsSold.String(), sale.ExitPrice.String(),
		sale.ProfitLoss.String(), sale.ProfitLossPercentage.String(), sale.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sale for trade %d: %w: %w", trade.ID, ports.ErrTxFailed, err)
	}
	saleID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID for sale on trade %d: %w", trade.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sale transaction for trade %d: %w: %w", trade.ID, ports.ErrTxFailed, err)
	}

	sale.ID = saleID
	trade.RemainingUnits = newRemaining
	trade.RecomputePositionSize()
	r.logger.Debug(ctx, "Sale recorded", map[string]interface{}{
		"saleID": saleID, "tradeID": trade.ID, "unitsSold": sale.UnitsSold.String(), "remaining": newRemaining.String(),
	})
	return nil
}

// FindSalesByTrade retrieves the sales of one trade in creation order.
func (r *Repository) FindSalesByTrade(ctx context.Context, tradeID, userID int64) ([]*domain.Sale, error) {
	const query = `
	SELECT id, trade_id, user_id, units_sold, exit_price, profit_loss, profit_loss_percentage, created_at
	FROM sales
	WHERE trade_id = ? AND user_id = ?
	ORDER BY created_at ASC, id ASC`
	return r.querySales(ctx, query, tradeID, userID)
}

// FindSalesByUser retrieves all sales for a user in creation order.
func (r *Repository) FindSalesByUser(ctx context.Context, userID int64) ([]*domain.Sale, error) {
	const query = `
	SELECT id, trade_id, user_id, units_sold, exit_price, profit_loss, profit_loss_percentage, created_at
	FROM sales
	WHERE user_id = ?
	ORDER BY created_at ASC, id ASC`
	return r.querySales(ctx, query, userID)
}

func (r *Repository) querySales(ctx context.Context, query string, args ...interface{}) ([]*domain.Sale, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	sales := make([]*domain.Sale, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale rows: %w", err)
	}
	return sales, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var entryPrice, units, remainingUnits, positionSize string
	err := s.Scan(&t.ID, &t.UserID, &t.Market, &entryPrice, &units, &remainingUnits, &positionSize, &t.CreatedAt)
	if err != nil {
		return nil, err // sql.ErrNoRows handled by the caller
	}
	if t.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
		return nil, fmt.Errorf("corrupt entry_price %q: %w", entryPrice, err)
	}
	if t.Units, err = decimal.NewFromString(units); err != nil {
		return nil, fmt.Errorf("corrupt units %q: %w", units, err)
	}
	if t.RemainingUnits, err = decimal.NewFromString(remainingUnits); err != nil {
		return nil, fmt.Errorf("corrupt remaining_units %q: %w", remainingUnits, err)
	}
	if t.PositionSize, err = decimal.NewFromString(positionSize); err != nil {
		return nil, fmt.Errorf("corrupt position_size %q: %w", positionSize, err)
	}
	return t, nil
}

func scanSale(s scanner) (*domain.Sale, error) {
	sale := &domain.Sale{}
	var unitsSold, exitPrice, profitLoss, profitLossPct string
	err := s.Scan(&sale.ID, &sale.TradeID, &sale.UserID, &unitsSold, &exitPrice, &profitLoss, &profitLossPct, &sale.CreatedAt)
	if err != nil {
		return nil, err // sql.ErrNoRows handled by the caller
	}
	if sale.UnitsSold, err = decimal.NewFromString(unitsSold); err != nil {
		return nil, fmt.Errorf("corrupt units_sold %q: %w", unitsSold, err)
	}
	if sale.ExitPrice, err = decimal.NewFromString(exitPrice); err != nil {
		return nil, fmt.Errorf("corrupt exit_price %q: %w", exitPrice, err)
	}
	if sale.ProfitLoss, err = decimal.NewFromString(profitLoss); err != nil {
		return nil, fmt.Errorf("corrupt profit_loss %q: %w", profitLoss, err)
	}
	if sale.ProfitLossPercentage, err = decimal.NewFromString(profitLossPct); err != nil {
		return nil, fmt.Errorf("corrupt profit_loss_percentage %q: %w", profitLossPct, err)
	}
	return sale, nil
}
