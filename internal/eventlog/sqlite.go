// Package eventlog archives committed game events to a local SQLite file for
// history queries that do not need the primary store.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"hodlhunt/internal/game"

	_ "modernc.org/sqlite"
)

type Record struct {
	Seq     int64           `json:"seq"`
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	At      int64           `json:"at"`
	FishID  uint64          `json:"fish_id,omitempty"`
	Owner   string          `json:"owner,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type Filter struct {
	Kind   string
	FishID uint64
	Owner  string
	Limit  int
}

// Archive is a game.EventSink. Publish only enqueues; a single writer
// goroutine inserts each batch in one transaction.
type Archive struct {
	db  *sql.DB
	log *slog.Logger

	ch      chan []game.Event
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

func Open(path string, logger *slog.Logger) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("empty archive path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Archive{db: db, log: logger, ch: make(chan []game.Event, 4096)}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop()
	}()
	return a, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			seq     INTEGER PRIMARY KEY AUTOINCREMENT,
			id      TEXT NOT NULL UNIQUE,
			kind    TEXT NOT NULL,
			at      INTEGER NOT NULL,
			fish_id INTEGER NOT NULL DEFAULT 0,
			owner   TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS events_kind_idx ON events(kind, seq);`,
		`CREATE INDEX IF NOT EXISTS events_fish_idx ON events(fish_id, seq);`,
		`CREATE INDEX IF NOT EXISTS events_owner_idx ON events(owner, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) Publish(_ context.Context, events []game.Event) {
	if len(events) == 0 || a.closed.Load() {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed.Load() {
		return
	}
	select {
	case a.ch <- events:
	default:
		n := a.dropped.Add(uint64(len(events)))
		a.log.Warn("event archive queue full", "dropped_total", n)
	}
}

// Dropped is the number of events discarded because the queue was full.
func (a *Archive) Dropped() uint64 { return a.dropped.Load() }

// Close drains queued events and closes the database.
func (a *Archive) Close() error {
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		a.closed.Store(true)
		close(a.ch)
		a.mu.Unlock()
		a.wg.Wait()
		err = a.db.Close()
	})
	return err
}

func (a *Archive) loop() {
	ctx := context.Background()
	for batch := range a.ch {
		if err := a.write(ctx, batch); err != nil {
			a.log.Error("archive events", "count", len(batch), "err", err)
		}
	}
}

func (a *Archive) write(ctx context.Context, batch []game.Event) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO events(id,kind,at,fish_id,owner,payload) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ev := range batch {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		fishID, owner := subject(ev.Payload)
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.Kind, ev.At, int64(fishID), owner, string(raw)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// subject picks the fish and owner an event is primarily about.
func subject(p game.Payload) (uint64, string) {
	switch v := p.(type) {
	case game.FishCreated:
		return v.FishID, v.Owner
	case game.FishFed:
		return v.FishID, v.Owner
	case game.FishHunted:
		return v.PreyID, v.HunterOwner
	case game.FishExited:
		return v.FishID, v.Owner
	case game.FishTransferred:
		return v.FishID, v.ToOwner
	case game.FishResurrected:
		return v.NewFishID, v.Owner
	case game.HuntingMarkPlaced:
		return v.PreyID, v.HunterOwner
	case game.OceanInitialized:
		return 0, v.Admin
	}
	return 0, ""
}

// Query returns matching records newest first.
func (a *Archive) Query(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := `SELECT seq,id,kind,at,fish_id,owner,payload FROM events WHERE 1=1`
	var args []any
	if f.Kind != "" {
		q += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if f.FishID != 0 {
		q += ` AND fish_id = ?`
		args = append(args, int64(f.FishID))
	}
	if f.Owner != "" {
		q += ` AND owner = ?`
		args = append(args, f.Owner)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			r       Record
			fishID  int64
			payload string
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.Kind, &r.At, &fishID, &r.Owner, &payload); err != nil {
			return nil, err
		}
		r.FishID = uint64(fishID)
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}
