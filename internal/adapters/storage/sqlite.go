package storage

// sqlite.go — durable stores: the append-only signal log with
// offset-addressable tailing plus consumer offsets, and the trade log.
//
// The signal log's rowid is the offset: monotonically increasing,
// assigned on append, never reused within a run. The trader tails by
// offset and commits progress into consumer_offsets, giving resumable
// at-least-once consumption across restarts.

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	offset      INTEGER PRIMARY KEY AUTOINCREMENT,
	market_id   TEXT NOT NULL,
	direction   TEXT NOT NULL,
	hint        TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL DEFAULT '',
	z_score     REAL NOT NULL,
	delta_pct   REAL NOT NULL,
	spread_pct  REAL NOT NULL,
	mid         REAL NOT NULL,
	liquidity   REAL NOT NULL,
	phase       TEXT NOT NULL,
	regime      TEXT NOT NULL,
	burst       INTEGER NOT NULL DEFAULT 0,
	decision    TEXT NOT NULL,
	reason      TEXT NOT NULL,
	emitted_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_market ON signals(market_id, emitted_at);

CREATE TABLE IF NOT EXISTS consumer_offsets (
	consumer   TEXT PRIMARY KEY,
	offset     INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	position_id  TEXT NOT NULL,
	market_id    TEXT NOT NULL,
	side         TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	entry_price  REAL NOT NULL,
	exit_price   REAL NOT NULL,
	quantity     REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	exit_reason  TEXT NOT NULL,
	opened_at    TIMESTAMP NOT NULL,
	closed_at    TIMESTAMP NOT NULL
);
`

// Store wraps the SQLite database. A single mutex serializes writers;
// SQLite handles concurrent readers.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (creating if needed) the database at dsn and applies the
// schema. Use ":memory:" for tests.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.New: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.New: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.New: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one signal and returns its offset.
func (s *Store) Append(ctx context.Context, sig domain.Signal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (
			market_id, direction, hint, severity, z_score, delta_pct,
			spread_pct, mid, liquidity, phase, regime, burst,
			decision, reason, emitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.MarketID, string(sig.Direction), string(sig.Hint), string(sig.Severity),
		sig.ZScore, sig.DeltaPct, sig.SpreadPct, sig.Mid, sig.LiquidityProxy,
		string(sig.Phase), string(sig.Regime), boolToInt(sig.Burst),
		string(sig.Decision), sig.Reason, sig.EmittedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.Append: %w", err)
	}
	offset, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.Append: last insert id: %w", err)
	}
	return offset, nil
}

// TailFrom reads up to limit signals with offsets strictly greater
// than after, in offset order.
func (s *Store) TailFrom(ctx context.Context, after int64, limit int) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT offset, market_id, direction, hint, severity, z_score,
		       delta_pct, spread_pct, mid, liquidity, phase, regime,
		       burst, decision, reason, emitted_at
		FROM signals WHERE offset > ? ORDER BY offset ASC LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.TailFrom: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var dir, hint, sev, phase, regime, decision string
		var burst int
		if err := rows.Scan(
			&sig.Offset, &sig.MarketID, &dir, &hint, &sev, &sig.ZScore,
			&sig.DeltaPct, &sig.SpreadPct, &sig.Mid, &sig.LiquidityProxy,
			&phase, &regime, &burst, &decision, &sig.Reason, &sig.EmittedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.TailFrom: scan: %w", err)
		}
		sig.Direction = domain.Direction(dir)
		sig.Hint = domain.Hint(hint)
		sig.Severity = domain.Severity(sev)
		sig.Phase = domain.Phase(phase)
		sig.Regime = domain.Regime(regime)
		sig.Decision = domain.Decision(decision)
		sig.Burst = burst != 0
		sig.EmittedAt = sig.EmittedAt.UTC()
		out = append(out, sig)
	}
	return out, rows.Err()
}

// CommitOffset durably records a consumer's progress.
func (s *Store) CommitOffset(ctx context.Context, consumer string, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consumer_offsets (consumer, offset, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(consumer) DO UPDATE SET
			offset = excluded.offset,
			updated_at = excluded.updated_at`,
		consumer, offset, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.CommitOffset: %w", err)
	}
	return nil
}

// LastOffset returns a consumer's committed offset, 0 if never committed.
func (s *Store) LastOffset(ctx context.Context, consumer string) (int64, error) {
	var offset int64
	err := s.db.QueryRowContext(ctx,
		`SELECT offset FROM consumer_offsets WHERE consumer = ?`, consumer,
	).Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.LastOffset: %w", err)
	}
	return offset, nil
}

// RecordTrade appends one completed round trip.
func (s *Store) RecordTrade(ctx context.Context, tr domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (
			position_id, market_id, side, strategy, entry_price,
			exit_price, quantity, realized_pnl, exit_reason,
			opened_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.PositionID, tr.MarketID, string(tr.Side), string(tr.Strategy),
		tr.EntryPrice, tr.ExitPrice, tr.Quantity, tr.RealizedPnL,
		tr.ExitReason, tr.OpenedAt.UTC(), tr.ClosedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordTrade: %w", err)
	}
	return nil
}

// PruneSignals deletes signal rows older than the cutoff. Offsets keep
// increasing; pruning never rewinds them.
func (s *Store) PruneSignals(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM signals WHERE emitted_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage.PruneSignals: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
