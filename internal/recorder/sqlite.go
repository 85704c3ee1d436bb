package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists audit history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance (dashboards read while the agent writes).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp       INTEGER NOT NULL,
			tick_id         TEXT,
			skipped         INTEGER,
			skip_reason     TEXT,
			action          TEXT,
			blocked_reason  TEXT,
			eth_balance_wei TEXT,
			token_wei       TEXT,
			duration_ms     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_ts ON ticks(timestamp)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			tick_id      TEXT,
			action       TEXT,
			amount_wei   TEXT,
			tx_hash      TEXT,
			outcome      TEXT,
			rationale    TEXT,
			trades_today INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp)`,

		`CREATE TABLE IF NOT EXISTS posts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			tick_id     TEXT,
			feature     TEXT,
			fingerprint TEXT,
			outcome     TEXT,
			posts_today INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_ts ON posts(timestamp)`,

		`CREATE TABLE IF NOT EXISTS breaker_events (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			dependency    TEXT,
			event         TEXT,
			failure_count INTEGER,
			disabled_for  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_breaker_ts ON breaker_events(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordTick(evt *TickEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	skipped := 0
	if evt.Skipped {
		skipped = 1
	}
	_, err := r.db.Exec(`INSERT INTO ticks
		(timestamp, tick_id, skipped, skip_reason, action, blocked_reason, eth_balance_wei, token_wei, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.TickID, skipped, evt.SkipReason,
		evt.Action, evt.BlockedReason, evt.EthBalanceWei, evt.TokenWei, evt.DurationMs,
	)
	return err
}

func (r *SQLiteRecorder) RecordTrade(evt *TradeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO trades
		(timestamp, tick_id, action, amount_wei, tx_hash, outcome, rationale, trades_today)
		VALUES (?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.TickID, evt.Action, evt.AmountWei,
		evt.TxHash, evt.Outcome, evt.Rationale, evt.TradesToday,
	)
	return err
}

func (r *SQLiteRecorder) RecordPost(evt *PostEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO posts
		(timestamp, tick_id, feature, fingerprint, outcome, posts_today)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.TickID, evt.Feature,
		evt.Fingerprint, evt.Outcome, evt.PostsToday,
	)
	return err
}

func (r *SQLiteRecorder) RecordBreaker(evt *BreakerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO breaker_events
		(timestamp, dependency, event, failure_count, disabled_for)
		VALUES (?,?,?,?,?)`,
		time.Now().Unix(), evt.Dependency, evt.Event,
		evt.FailureCount, evt.DisabledFor,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
