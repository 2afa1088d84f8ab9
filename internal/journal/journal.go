// ABOUTME: SQLite journal of scheduler events
// ABOUTME: Records events off the dispatcher goroutine and serves recent history
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/harperreed/seqplay/pkg/sequencer"
)

const (
	queueSize    = 1024
	defaultLimit = 50
	maxLimit     = 1000
)

// Options configures a journal
type Options struct {
	// Progress records progress events too; they are frequent
	Progress bool
	Logger   *log.Logger
}

// Entry is one recorded event
type Entry struct {
	Seq        int64     `json:"seq"`
	Session    string    `json:"session"`
	Type       string    `json:"type"`
	UnitID     *int64    `json:"id,omitempty"`
	RawID      string    `json:"rawId,omitempty"`
	QueueSize  int       `json:"queueSize,omitempty"`
	PositionMs int64     `json:"positionMs,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Message    string    `json:"message,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	At         time.Time `json:"at"`
}

// Journal is a sequencer.Observer persisting events to SQLite
type Journal struct {
	db      *sql.DB
	session string
	opts    Options
	logger  *log.Logger

	queue   chan interface{}
	mu      sync.RWMutex
	closed  bool
	writerD chan struct{}
	dropped atomic.Int64
}

// Open opens or creates the journal at path. ":memory:" is accepted.
func Open(path string, opts Options) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes writes
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("journal")
	}

	j := &Journal{
		db:      db,
		session: uuid.New().String(),
		opts:    opts,
		logger:  logger,
		queue:   make(chan interface{}, queueSize),
		writerD: make(chan struct{}),
	}
	go j.writer()
	return j, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			type TEXT NOT NULL,
			unit_id INTEGER,
			raw_id TEXT,
			queue_size INTEGER NOT NULL DEFAULT 0,
			position_ms INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			message TEXT,
			mode TEXT,
			at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_session ON events(session);
	`)
	return err
}

// Session identifies this host run in recorded entries
func (j *Journal) Session() string {
	return j.session
}

// OnEvent queues e for writing. Events are dropped if the writer falls behind.
func (j *Journal) OnEvent(e sequencer.Event) {
	if e.Type == sequencer.EventProgress && !j.opts.Progress {
		return
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.queue <- e:
	default:
		if n := j.dropped.Add(1); n%100 == 1 {
			j.logger.Warn("journal behind, dropping events", "dropped", n)
		}
	}
}

// Flush waits until every event queued before the call is written
func (j *Journal) Flush(ctx context.Context) error {
	done := make(chan struct{})

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return fmt.Errorf("journal closed")
	}
	select {
	case j.queue <- done:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Journal) writer() {
	defer close(j.writerD)

	for item := range j.queue {
		switch v := item.(type) {
		case sequencer.Event:
			if err := j.insert(v); err != nil {
				j.logger.Error("journal write failed", "type", v.Type, "err", err)
			}
		case chan struct{}:
			close(v)
		}
	}
}

func (j *Journal) insert(e sequencer.Event) error {
	var unitID sql.NullInt64
	var rawID sql.NullString
	switch {
	case e.Invalid:
		rawID = sql.NullString{String: e.RawID, Valid: true}
	case e.Type != sequencer.EventQueueEmpty && e.Type != sequencer.EventModeChanged:
		unitID = sql.NullInt64{Int64: e.ID, Valid: true}
	}

	_, err := j.db.Exec(`
		INSERT INTO events (session, type, unit_id, raw_id, queue_size, position_ms, duration_ms, message, mode, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.session, string(e.Type), unitID, rawID, e.QueueSize,
		e.Position.Milliseconds(), e.Duration.Milliseconds(),
		nullString(e.Message), nullString(string(e.Mode)), e.Time.UnixMilli())
	return err
}

// Recent returns up to n entries, newest first
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = defaultLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, session, type, unit_id, raw_id, queue_size, position_ms, duration_ms, message, mode, at
		FROM events
		ORDER BY seq DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var unitID sql.NullInt64
		var rawID, message, mode sql.NullString
		var at int64

		if err := rows.Scan(&e.Seq, &e.Session, &e.Type, &unitID, &rawID, &e.QueueSize,
			&e.PositionMs, &e.DurationMs, &message, &mode, &at); err != nil {
			return nil, err
		}
		if unitID.Valid {
			id := unitID.Int64
			e.UnitID = &id
		}
		e.RawID = rawID.String
		e.Message = message.String
		e.Mode = mode.String
		e.At = time.UnixMilli(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Handler serves Recent as JSON; ?limit=N selects the count
func (j *Journal) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, maxLimit)
		}

		entries, err := j.Recent(r.Context(), limit)
		if err != nil {
			j.logger.Error("history query failed", "err", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	})
}

// Close drains pending writes and closes the database
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.writerD
	return j.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
