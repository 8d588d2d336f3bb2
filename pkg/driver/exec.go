package driver

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ha1tch/oesql/pkg/dialect"
	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
	"github.com/ha1tch/oesql/pkg/storage"
)

// executor is the statement path shared by Conn, Session and Tx.
type executor struct {
	eq      ExecQuerier
	cfg     Config
	rw      *dialect.Rewriter
	logger  *log.Logger
	journal Journal
}

// Exec rewrites query, runs it, then runs every statement derived from it
// in order. The result is that of the primary statement.
func (e *executor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = withRequestID(ctx)
	start := time.Now()

	res, err := e.prepare(query, args)
	if err != nil {
		e.record(ctx, "exec", query, nil, start, err)
		return nil, err
	}

	result, err := e.eq.ExecContext(ctx, res.SQL, res.Args...)
	if err != nil {
		err = errors.Wrap(err, errors.ErrCodeExecFailed, "statement failed").
			WithField("sql", res.SQL).Err()
		e.record(ctx, "exec", query, res, start, err)
		return nil, err
	}

	for i, stmt := range res.Derived {
		if _, err := e.eq.ExecContext(ctx, stmt); err != nil {
			err = errors.Wrap(err, errors.ErrCodeDerivedFailed, "derived statement failed").
				WithField("statement", stmt).
				WithField("index", i).
				WithField("sql", res.SQL).Err()
			e.record(ctx, "exec", query, res, start, err)
			return nil, err
		}
	}

	if res.Kind.IsDDL() {
		e.logger.Audit().WithContext(ctx).Info("ddl executed",
			"kind", res.Kind.String(),
			"table", res.Table,
			"derived", len(res.Derived))
	}
	e.record(ctx, "exec", query, res, start, nil)
	return result, nil
}

// Query rewrites query and runs it. The caller closes the rows.
func (e *executor) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx = withRequestID(ctx)
	start := time.Now()

	res, err := e.prepare(query, args)
	if err != nil {
		e.record(ctx, "query", query, nil, start, err)
		return nil, err
	}
	if len(res.Derived) > 0 {
		e.logger.Execution().WithContext(ctx).Warn("derived statements ignored by Query",
			"kind", res.Kind.String(),
			"derived", len(res.Derived))
	}

	rows, err := e.eq.QueryContext(ctx, res.SQL, res.Args...)
	if err != nil {
		err = errors.Wrap(err, errors.ErrCodeExecFailed, "query failed").
			WithField("sql", res.SQL).Err()
	}
	e.record(ctx, "query", query, res, start, err)
	return rows, err
}

// prepare rewrites query and checks the argument count against the
// placeholders left in the rewritten text.
func (e *executor) prepare(query string, args []any) (*dialect.Result, error) {
	res := e.rw.Rewrite(query, args)
	if res.Placeholders != len(res.Args) {
		return nil, errors.Newf(errors.ErrCodeParamCount,
			"statement has %d placeholders, got %d arguments", res.Placeholders, len(res.Args)).
			WithField("sql", res.SQL).
			WithField("expected", res.Placeholders).
			WithField("got", len(res.Args)).Err()
	}
	return res, nil
}

func (e *executor) record(ctx context.Context, source, query string, res *dialect.Result, start time.Time, err error) {
	elapsed := time.Since(start)

	lg := e.logger.Execution().WithContext(ctx)
	if err != nil {
		lg.Error("statement failed", err, "source", source)
	} else {
		lg.Debug("statement executed", "source", source, "kind", res.Kind.String())
	}
	e.logger.Performance().WithContext(ctx).Debug("statement timing",
		"source", source,
		"duration_ms", float64(elapsed.Microseconds())/1000)

	if e.journal == nil {
		return
	}
	entry := storage.Entry{
		ID:       log.RequestIDFromContext(ctx),
		Time:     start,
		Source:   source,
		Original: query,
		Duration: elapsed,
	}
	if res != nil {
		entry.Kind = res.Kind.String()
		entry.Rewritten = res.SQL
		entry.Derived = res.Derived
		entry.Args = len(res.Args)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if jerr := e.journal.Record(ctx, entry); jerr != nil {
		e.logger.System().WithContext(ctx).Warn("journal write failed", "error", jerr.Error())
	}
}

// withRequestID stamps ctx with a fresh request id unless it already has one.
func withRequestID(ctx context.Context) context.Context {
	if log.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	return log.WithRequestID(ctx, uuid.NewString())
}
