// Package storage keeps a SQLite journal of translated and executed
// statements.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ha1tch/oesql/pkg/errors"
)

// Entry is one journaled statement.
type Entry struct {
	ID        string
	Time      time.Time
	Source    string // exec, query, or the script file a plan came from
	Kind      string
	Original  string
	Rewritten string
	Derived   []string
	Args      int
	Duration  time.Duration
	Error     string
}

// JournalConfig holds SQLite settings for the journal database.
type JournalConfig struct {
	// Path to database file. Use ":memory:" for in-memory database.
	Path string

	JournalMode string // WAL, DELETE, TRUNCATE, PERSIST, MEMORY, OFF
	Synchronous string // OFF, NORMAL, FULL, EXTRA
	BusyTimeout int    // milliseconds
}

// DefaultJournalConfig returns an in-memory journal.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Path:        ":memory:",
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5000,
	}
}

func (cfg JournalConfig) dsn() string {
	var opts []string
	if cfg.BusyTimeout > 0 {
		opts = append(opts, fmt.Sprintf("_busy_timeout=%d", cfg.BusyTimeout))
	}
	if cfg.JournalMode != "" && cfg.Path != ":memory:" {
		opts = append(opts, "_journal_mode="+cfg.JournalMode)
	}
	if cfg.Synchronous != "" {
		opts = append(opts, "_synchronous="+cfg.Synchronous)
	}
	if len(opts) == 0 {
		return cfg.Path
	}
	return cfg.Path + "?" + strings.Join(opts, "&")
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS statements (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL,
	at          TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT '',
	original    TEXT NOT NULL,
	rewritten   TEXT NOT NULL,
	derived     TEXT NOT NULL DEFAULT '[]',
	args        INTEGER NOT NULL DEFAULT 0,
	duration_us INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS statements_id ON statements (id);
`

// SQLiteJournal stores entries in a SQLite database. It is safe for
// concurrent use.
type SQLiteJournal struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// OpenJournal opens (creating if needed) the journal database.
func OpenJournal(cfg JournalConfig) (*SQLiteJournal, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	db, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageConnect, "failed to open journal database").
			WithField("path", cfg.Path).Err()
	}
	// One connection: an in-memory database exists per connection, and the
	// journal has a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorageConnect, "failed to ping journal database").
			WithField("path", cfg.Path).Err()
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorageExec, "failed to create journal schema").Err()
	}
	return &SQLiteJournal{db: db, path: cfg.Path}, nil
}

// Path returns the database path.
func (j *SQLiteJournal) Path() string { return j.path }

// Record appends an entry. A missing ID or time is filled in.
func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	derived := e.Derived
	if derived == nil {
		derived = []string{}
	}
	derivedJSON, err := json.Marshal(derived)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageExec, "failed to encode derived statements").Err()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO statements (id, at, source, kind, original, rewritten, derived, args, duration_us, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UTC().Format(time.RFC3339Nano), e.Source, e.Kind, e.Original, e.Rewritten,
		string(derivedJSON), e.Args, e.Duration.Microseconds(), e.Error)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageExec, "failed to record statement").
			WithField("id", e.ID).Err()
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, source, kind, original, rewritten, derived, args, duration_us, error
		 FROM statements ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageQuery, "failed to read journal").Err()
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			at, derived string
			durationUS  int64
		)
		if err := rows.Scan(&e.ID, &at, &e.Source, &e.Kind, &e.Original, &e.Rewritten,
			&derived, &e.Args, &durationUS, &e.Error); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageQuery, "failed to scan journal entry").Err()
		}
		if e.Time, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageQuery, "bad journal timestamp").
				WithField("id", e.ID).Err()
		}
		if err := json.Unmarshal([]byte(derived), &e.Derived); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageQuery, "bad journal derived list").
				WithField("id", e.ID).Err()
		}
		e.Duration = time.Duration(durationUS) * time.Microsecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageQuery, "failed to read journal").Err()
	}
	return out, nil
}

// Count returns the number of journaled entries.
func (j *SQLiteJournal) Count(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM statements`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorageQuery, "failed to count journal entries").Err()
	}
	return n, nil
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
