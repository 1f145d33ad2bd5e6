package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"brokerBot/internal/domain"
	"brokerBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.PositionRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/journal.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w: %w", filepath.Dir(dbPath), ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

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

	// One writer at a time; the journal is written from the streaming goroutine only.
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
	cfg.Logger.Info(context.Background(), "Position journal ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS closed_positions (
		id TEXT PRIMARY KEY,
		strategy_id TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		broker_order TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		volume REAL NOT NULL,
		open_price REAL NOT NULL,
		close_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		profit REAL NOT NULL,
		date_open TIMESTAMP NULL,
		date_close TIMESTAMP NOT NULL,
		reason_closed TEXT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_closed_positions_strategy_close ON closed_positions (strategy_id, date_close);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
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

// SaveClosed inserts a closed position, replacing any earlier row with the same ID.
func (r *Repository) SaveClosed(ctx context.Context, pos *domain.Position) error {
	if pos == nil || pos.ID == "" {
		return fmt.Errorf("journal position needs an id: %w", ports.ErrInvalidRequest)
	}
	const query = `
	INSERT OR REPLACE INTO closed_positions (id, strategy_id, reference_id, broker_order, symbol, side, volume,
	    open_price, close_price, stop_loss, take_profit, profit, date_open, date_close, reason_closed)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var dateOpen sql.NullTime
	if !pos.DateOpen.IsZero() {
		dateOpen = sql.NullTime{Time: pos.DateOpen, Valid: true}
	}
	var reason sql.NullString
	if pos.ReasonClosed != "" {
		reason = sql.NullString{String: string(pos.ReasonClosed), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		pos.ID, pos.StrategyID, pos.ReferenceID, pos.Order, pos.Symbol, string(pos.Side), pos.Volume,
		pos.OpenPrice, pos.ClosePrice, pos.StopLoss, pos.TakeProfit, pos.Profit, dateOpen, pos.DateClose, reason)
	if err != nil {
		return fmt.Errorf("failed to save closed position %s: %w: %w", pos.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Closed position journaled", map[string]interface{}{"id": pos.ID, "strategy": pos.StrategyID, "profit": pos.Profit})
	return nil
}

// FindClosedByStrategy returns the journaled positions of a strategy ordered by close date.
func (r *Repository) FindClosedByStrategy(ctx context.Context, strategyID string) ([]*domain.Position, error) {
	const query = `
	SELECT id, strategy_id, reference_id, broker_order, symbol, side, volume, open_price, close_price,
	       stop_loss, take_profit, profit, date_open, date_close, reason_closed
	FROM closed_positions
	WHERE strategy_id = ?
	ORDER BY date_close ASC`

	rows, err := r.db.QueryContext(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed positions for %s: %w: %w", strategyID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed position: %w: %w", ports.ErrQueryFailed, err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed position rows: %w", err)
	}
	return positions, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a closed_positions row into a domain.Position.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var side string
	var dateOpen sql.NullTime
	var reason sql.NullString
	err := s.Scan(
		&p.ID, &p.StrategyID, &p.ReferenceID, &p.Order, &p.Symbol, &side, &p.Volume, &p.OpenPrice, &p.ClosePrice,
		&p.StopLoss, &p.TakeProfit, &p.Profit, &dateOpen, &p.DateClose, &reason)
	if err != nil {
		return nil, err
	}
	p.Side = domain.OrderSide(side)
	if dateOpen.Valid {
		p.DateOpen = dateOpen.Time
	}
	p.ReasonClosed = domain.CloseReasonUnknown
	if reason.Valid {
		p.ReasonClosed = domain.CloseReason(reason.String)
	}
	p.Status = domain.StatusClose
	return p, nil
}
