package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository persists the portfolio, the append-only trade record and the
// watchlist in SQLite.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Load reads the persisted portfolio state. Returns ok=false when no state
// has been persisted yet.
func (r *Repository) Load() (Snapshot, bool, error) {
	snap := Snapshot{Holdings: make(map[string]Holding)}

	row := r.db.QueryRow(`SELECT cash_balance FROM portfolio WHERE id = 1`)
	if err := row.Scan(&snap.CashBalance); err != nil {
		if err == sql.ErrNoRows {
			return snap, false, nil
		}
		return snap, false, fmt.Errorf("failed to load portfolio: %w", err)
	}

	rows, err := r.db.Query(`SELECT ticker, quantity, average_cost FROM holdings WHERE quantity > 0`)
	if err != nil {
		return snap, false, fmt.Errorf("failed to load holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ticker string
		var h Holding
		if err := rows.Scan(&ticker, &h.Quantity, &h.AverageCost); err != nil {
			return snap, false, fmt.Errorf("failed to scan holding: %w", err)
		}
		snap.Holdings[ticker] = h
	}

	return snap, true, rows.Err()
}

// Persist writes a trade and the resulting portfolio state in one
// transaction. Either both land or neither does.
func (r *Repository) Persist(trade Trade, after Snapshot) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = tx.Exec(`
		INSERT INTO trades (id, ticker, side, quantity, price, realized_pnl, confidence, reasoning, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID,
		trade.Ticker,
		string(trade.Side),
		trade.Quantity,
		trade.Price,
		nullFloat(trade.RealizedPnL),
		trade.Confidence,
		trade.Reasoning,
		trade.ExecutedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO portfolio (id, cash_balance, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cash_balance = excluded.cash_balance, updated_at = excluded.updated_at`,
		after.CashBalance, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save portfolio: %w", err)
	}

	if h, ok := after.Holdings[trade.Ticker]; ok && h.Quantity > 0 {
		_, err = tx.Exec(`
			INSERT INTO holdings (ticker, quantity, average_cost, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(ticker) DO UPDATE SET quantity = excluded.quantity,
				average_cost = excluded.average_cost, updated_at = excluded.updated_at`,
			trade.Ticker, h.Quantity, h.AverageCost, now,
		)
	} else {
		_, err = tx.Exec(`DELETE FROM holdings WHERE ticker = ?`, trade.Ticker)
	}
	if err != nil {
		return fmt.Errorf("failed to save holding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade: %w", err)
	}

	r.log.Info().
		Str("trade_id", trade.ID).
		Str("ticker", trade.Ticker).
		Str("side", string(trade.Side)).
		Float64("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Msg("Trade persisted")

	return nil
}

// SaveInitial persists the starting portfolio before any trades exist.
func (r *Repository) SaveInitial(snap Snapshot) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
		INSERT INTO portfolio (id, cash_balance, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cash_balance = excluded.cash_balance, updated_at = excluded.updated_at`,
		snap.CashBalance, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save initial portfolio: %w", err)
	}
	return nil
}

// Trades returns the most recent trades, newest first.
func (r *Repository) Trades(limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(`
		SELECT id, ticker, side, quantity, price, realized_pnl, confidence, reasoning, executed_at
		FROM trades ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		var side, executedAt string
		var pnl sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.Ticker, &side, &t.Quantity, &t.Price, &pnl, &t.Confidence, &t.Reasoning, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = Side(side)
		if pnl.Valid {
			v := pnl.Float64
			t.RealizedPnL = &v
		}
		if ts, err := time.Parse(time.RFC3339, executedAt); err == nil {
			t.ExecutedAt = ts
		}
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// UpsertWatch adds or refreshes a watchlist entry.
func (r *Repository) UpsertWatch(item WatchItem) error {
	_, err := r.db.Exec(`
		INSERT INTO watchlist (ticker, price, confidence, reasoning, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET price = excluded.price, confidence = excluded.confidence,
			reasoning = excluded.reasoning, updated_at = excluded.updated_at`,
		item.Ticker, item.Price, item.Confidence, item.Reasoning,
		item.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert watchlist entry: %w", err)
	}
	return nil
}

// Watchlist returns all tracked tickers.
func (r *Repository) Watchlist() ([]WatchItem, error) {
	rows, err := r.db.Query(`SELECT ticker, price, confidence, reasoning, updated_at FROM watchlist ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var items []WatchItem
	for rows.Next() {
		var item WatchItem
		var updatedAt string
		if err := rows.Scan(&item.Ticker, &item.Price, &item.Confidence, &item.Reasoning, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist entry: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			item.UpdatedAt = ts
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
