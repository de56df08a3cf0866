// Package journal persists engine events to SQLite so past loads can be
// inspected with the history command.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/starload/internal/engine"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

// Entry is one recorded engine event.
type Entry struct {
	ID         string    `json:"id" yaml:"id"`
	SessionID  string    `json:"session_id" yaml:"session_id"`
	Op         string    `json:"op" yaml:"op"`
	Feature    string    `json:"feature" yaml:"feature"`
	Identity   string    `json:"identity,omitempty" yaml:"identity,omitempty"`
	Status     string    `json:"status" yaml:"status"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMS float64   `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// Journal is an engine.Observer writing every event to a load_events table.
// Each Journal value is one session.
type Journal struct {
	db      *sql.DB
	path    string
	session string
	logger  *slog.Logger
	now     func() time.Time
}

var _ engine.Observer = (*Journal)(nil)

// Open opens (creating if needed) the journal at path and migrates it.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := path
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite only supports a single writer; a single connection also keeps
	// an in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	j := &Journal{
		db:      db,
		path:    path,
		session: uuid.New().String(),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if err := j.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("journal opened", "path", path, "session", j.session)
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// SessionID identifies the events written through this Journal.
func (j *Journal) SessionID() string { return j.session }

// Path returns the database path.
func (j *Journal) Path() string { return j.path }

// Observe implements engine.Observer. Write failures are logged and dropped;
// journaling never fails a load.
func (j *Journal) Observe(ev engine.Event) {
	if _, err := j.Record(ev); err != nil {
		j.logger.Warn("failed to journal event", "op", ev.Op, "feature", ev.Feature, "error", err)
	}
}

// Record writes ev and returns the stored entry.
func (j *Journal) Record(ev engine.Event) (*Entry, error) {
	if j.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	e := &Entry{
		ID:         uuid.New().String(),
		SessionID:  j.session,
		Op:         string(ev.Op),
		Feature:    ev.Feature,
		Identity:   ev.Identity,
		Status:     ev.Status.String(),
		DurationMS: float64(ev.Duration.Microseconds()) / 1000,
		CreatedAt:  j.now(),
	}
	var errMsg sql.NullString
	if ev.Err != nil {
		e.Error = ev.Err.Error()
		errMsg = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := j.db.Exec(
		`INSERT INTO load_events (id, session_id, op, feature, identity, status, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Op, e.Feature, e.Identity, e.Status, errMsg, e.DurationMS, e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. A limit <= 0 returns
// everything.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT id, session_id, op, feature, identity, status, error, duration_ms, created_at
		FROM load_events ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			errMsg sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Op, &e.Feature, &e.Identity, &e.Status, &errMsg, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if errMsg.Valid {
			e.Error = errMsg.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByStatus summarizes the events of one session.
func (j *Journal) CountByStatus(sessionID string) (map[string]int, error) {
	if j.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := j.db.Query(`SELECT status, COUNT(*) FROM load_events WHERE session_id = ? GROUP BY status`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
