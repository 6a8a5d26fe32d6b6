// Package stats keeps the practice ledger: coins earned per report and a
// streak of strong results.
package stats

import (
	"sync"
	"time"

	"speakup/log"
)

const streakThreshold = 80

type Stats struct {
	Coins  int `yaml:"coins"`
	Streak int `yaml:"streak"`
}

// Entry is one applied report as persisted by a Store.
type Entry struct {
	At         time.Time
	Score      int
	CoinsDelta int
	StreakUp   bool
	After      Stats
}

type Store interface {
	Load() (Stats, error)
	Append(e Entry) error
}

// HistoryStore is a Store that can list past entries, newest first.
type HistoryStore interface {
	Store
	History(limit int) ([]Entry, error)
}

// Ledger is the only writer of Stats. Coins never decrease and the streak
// only grows on scores above 80.
type Ledger struct {
	mu    sync.Mutex
	stats Stats
	store Store
}

func NewLedger(store Store) (*Ledger, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Ledger{stats: st, store: store}, nil
}

// Apply credits score/10 coins and extends the streak when score > 80.
// A store failure is logged; the in-memory totals still advance.
func (l *Ledger) Apply(score int) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{At: time.Now(), Score: score}
	if score > 0 {
		e.CoinsDelta = score / 10
	}
	e.StreakUp = score > streakThreshold

	l.stats.Coins += e.CoinsDelta
	if e.StreakUp {
		l.stats.Streak++
	}
	e.After = l.stats

	if err := l.store.Append(e); err != nil {
		log.Errorf("stats store append: %v", err)
	}
	log.StatsApplied(l.stats.Coins, l.stats.Streak, e.CoinsDelta, e.StreakUp)
	return e
}

// History returns up to limit applied entries, newest first. Stores that
// keep no history yield none.
func (l *Ledger) History(limit int) ([]Entry, error) {
	hs, ok := l.store.(HistoryStore)
	if !ok || limit <= 0 {
		return nil, nil
	}
	return hs.History(limit)
}

func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// MemoryStore keeps totals and history for the life of the process.
type MemoryStore struct {
	mu      sync.Mutex
	stats   Stats
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, nil
}

func (m *MemoryStore) Append(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = e.After
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func (m *MemoryStore) History(limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(limit, len(m.entries))
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= len(m.entries)-n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
