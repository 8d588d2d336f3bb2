// Package driver runs statements against an OpenEdge database through any
// database/sql connection, rewriting each one into the OpenEdge dialect and
// executing the statements the rewrite derives from it.
//
// The package does not register a database/sql driver of its own: callers
// open the OpenEdge ODBC connection themselves and hand the *sql.DB to New.
package driver

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ha1tch/oesql/pkg/dialect"
	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
	"github.com/ha1tch/oesql/pkg/storage"
)

// ExecQuerier wraps the standard Exec and Query methods. *sql.DB, *sql.Tx
// and *sql.Conn all satisfy it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Journal receives a record of every statement run.
type Journal interface {
	Record(ctx context.Context, e storage.Entry) error
}

// Config holds session settings.
type Config struct {
	// Schema is the owner used for SET SCHEMA and catalogue lookups.
	Schema string

	// DualTable is the one-row table NEXTVAL is selected from.
	DualTable string
}

// DefaultConfig returns the PUB schema with a DUAL table.
func DefaultConfig() Config {
	return Config{
		Schema:    dialect.SequenceSchema,
		DualTable: dialect.DefaultDualTable,
	}
}

func (c Config) withDefaults() Config {
	if c.Schema == "" {
		c.Schema = dialect.SequenceSchema
	}
	if c.DualTable == "" {
		c.DualTable = dialect.DefaultDualTable
	}
	return c
}

// dual returns the quoted, schema-qualified dual table.
func (c Config) dual() string {
	return dialect.QuoteName(c.Schema) + "." + dialect.QuoteName(c.DualTable)
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRewriter replaces the statement rewriter.
func WithRewriter(rw *dialect.Rewriter) Option {
	return func(c *Conn) {
		if rw != nil {
			c.rw = rw
		}
	}
}

// WithJournal records every statement in j.
func WithJournal(j Journal) Option {
	return func(c *Conn) {
		c.journal = j
	}
}

// Conn is an OpenEdge connection pool. It is safe for concurrent use.
type Conn struct {
	executor
	db *sql.DB
}

// New wraps db.
func New(db *sql.DB, cfg Config, opts ...Option) *Conn {
	c := &Conn{
		executor: executor{
			eq:     db,
			cfg:    cfg.withDefaults(),
			logger: log.Default(),
		},
		db: db,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rw == nil {
		c.rw = dialect.NewRewriter(dialect.WithLogger(c.logger))
	}
	return c
}

// DB returns the underlying *sql.DB.
func (c *Conn) DB() *sql.DB { return c.db }

// Config returns the session settings.
func (c *Conn) Config() Config { return c.cfg }

// Init prepares the database for use: it sets the default schema and makes
// sure the dual table exists.
//
// SET SCHEMA binds to whichever pooled connection runs it. Use Session when
// later statements must see the schema.
func (c *Conn) Init(ctx context.Context) error {
	if err := setSchema(ctx, c.eq, c.cfg.Schema); err != nil {
		return err
	}
	return c.EnsureDual(ctx)
}

// Session pins one connection from the pool and sets its schema.
func (c *Conn) Session(ctx context.Context) (*Session, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSession, "failed to acquire connection").Err()
	}
	if err := setSchema(ctx, conn, c.cfg.Schema); err != nil {
		conn.Close()
		return nil, err
	}
	s := &Session{executor: c.executor, conn: conn}
	s.eq = conn
	return s, nil
}

// BeginTx starts a transaction.
func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTxn, "failed to begin transaction").Err()
	}
	t := &Tx{executor: c.executor, tx: tx}
	t.eq = tx
	return t, nil
}

// Close closes the underlying database.
func (c *Conn) Close() error { return c.db.Close() }

// Session is a single pinned connection with its schema set.
type Session struct {
	executor
	conn *sql.Conn
}

// Close returns the connection to the pool.
func (s *Session) Close() error { return s.conn.Close() }

// Tx is a transaction. Statements derived from an Exec run inside it.
type Tx struct {
	executor
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeTxn, "commit failed").Err()
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return errors.Wrap(err, errors.ErrCodeTxn, "rollback failed").Err()
	}
	return nil
}

func setSchema(ctx context.Context, eq ExecQuerier, schema string) error {
	stmt := "SET SCHEMA '" + strings.ReplaceAll(schema, "'", "''") + "'"
	if _, err := eq.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, errors.ErrCodeSession, "failed to set schema").
			WithField("schema", schema).Err()
	}
	return nil
}
