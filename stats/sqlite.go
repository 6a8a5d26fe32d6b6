package stats

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists totals and a practice history row per applied report.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}
	// one connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS totals (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		coins INTEGER NOT NULL DEFAULT 0,
		streak INTEGER NOT NULL DEFAULT 0
	);

	INSERT OR IGNORE INTO totals (id, coins, streak) VALUES (1, 0, 0);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		applied_at INTEGER NOT NULL,
		score INTEGER NOT NULL,
		coins_delta INTEGER NOT NULL,
		streak_up INTEGER NOT NULL,
		coins_after INTEGER NOT NULL,
		streak_after INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_applied_at ON history(applied_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT coins, streak FROM totals WHERE id = 1`).Scan(&st.Coins, &st.Streak); err != nil {
		return Stats{}, fmt.Errorf("failed to load stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Append(e Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin stats update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE totals SET coins = ?, streak = ? WHERE id = 1`, e.After.Coins, e.After.Streak); err != nil {
		return fmt.Errorf("failed to update totals: %w", err)
	}
	streakUp := 0
	if e.StreakUp {
		streakUp = 1
	}
	if _, err := tx.Exec(`
	INSERT INTO history (applied_at, score, coins_delta, streak_up, coins_after, streak_after)
	VALUES (?, ?, ?, ?, ?, ?)
	`, e.At.UnixMilli(), e.Score, e.CoinsDelta, streakUp, e.After.Coins, e.After.Streak); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return tx.Commit()
}

// History returns up to limit entries, newest first.
func (s *SQLiteStore) History(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
	SELECT applied_at, score, coins_delta, streak_up, coins_after, streak_after
	FROM history ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			at       int64
			streakUp int
			e        Entry
		)
		if err := rows.Scan(&at, &e.Score, &e.CoinsDelta, &streakUp, &e.After.Coins, &e.After.Streak); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.At = time.UnixMilli(at)
		e.StreakUp = streakUp == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
