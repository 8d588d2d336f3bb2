package schema

import (
	"context"
	"database/sql"
	"time"

	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
)

// Executor runs one statement. *driver.Conn and *driver.Tx satisfy it, so
// migration statements are rewritten like any other.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Migration is a named, ordered list of statements.
type Migration struct {
	Name       string
	Statements []string
}

// Migrator applies migrations.
type Migrator struct {
	exec   Executor
	logger *log.Logger
}

// NewMigrator creates a Migrator. A nil logger uses the default.
func NewMigrator(exec Executor, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Migrator{exec: exec, logger: logger}
}

// Apply runs each migration's statements in order and stops at the first
// failure. Statements already run are not undone; wrap the executor in a
// transaction for that.
func (m *Migrator) Apply(ctx context.Context, migrations ...Migration) error {
	for _, mg := range migrations {
		start := time.Now()
		for i, stmt := range mg.Statements {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := m.exec.Exec(ctx, stmt); err != nil {
				return errors.Wrapf(err, errors.ErrCodeExecFailed, "migration %s failed at statement %d", mg.Name, i).
					WithField("migration", mg.Name).
					WithField("index", i).
					WithField("statement", stmt).
					WithOp("migrate").Err()
			}
		}
		m.logger.Audit().WithContext(ctx).Info("migration applied",
			"migration", mg.Name,
			"statements", len(mg.Statements),
			"duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}
