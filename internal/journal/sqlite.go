package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLite stores events in a local database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the journal database at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &SQLite{db: db}
	if err := j.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return j, nil
}

// Migrate creates the events table.
func (j *SQLite) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS execution_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			kind TEXT NOT NULL,
			run_id TEXT,
			strategy TEXT,
			symbol TEXT,
			order_id TEXT,
			side TEXT,
			order_type TEXT,
			quantity TEXT NOT NULL DEFAULT '0',
			price TEXT NOT NULL DEFAULT '0',
			status TEXT,
			message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_id ON execution_events(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_order_id ON execution_events(order_id)`,
	}

	for _, m := range migrations {
		if _, err := j.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Append inserts an event.
func (j *SQLite) Append(ctx context.Context, e Event) error {
	e = stamp(e)
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO execution_events
			(timestamp, kind, run_id, strategy, symbol, order_id, side, order_type, quantity, price, status, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time, string(e.Kind), e.RunID, e.Strategy, e.Symbol, e.OrderID, e.Side, e.OrderType,
		e.Quantity.String(), e.Price.String(), e.Status, e.Message,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to n events, newest first.
func (j *SQLite) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = 100
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, timestamp, kind, run_id, strategy, symbol, order_id, side, order_type, quantity, price, status, message
		FROM execution_events
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			ts      time.Time
			kind    string
			qty, px string
		)
		if err := rows.Scan(&e.ID, &ts, &kind, &e.RunID, &e.Strategy, &e.Symbol, &e.OrderID,
			&e.Side, &e.OrderType, &qty, &px, &e.Status, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = ts
		e.Kind = Kind(kind)
		e.Quantity, _ = decimal.NewFromString(qty)
		e.Price, _ = decimal.NewFromString(px)
		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database.
func (j *SQLite) Close() error {
	return j.db.Close()
}
