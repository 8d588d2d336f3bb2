package driver

import (
	"context"
	"strings"

	"github.com/ha1tch/oesql/pkg/dialect"
	"github.com/ha1tch/oesql/pkg/errors"
)

// IDColumn is the surrogate key column fed from the table's id sequence.
const IDColumn = "id"

// EnsureDual creates the one-row dual table when the catalogue lacks it.
func (e *executor) EnsureDual(ctx context.Context) error {
	rows, err := e.eq.QueryContext(ctx,
		"SELECT TBL FROM SYSPROGRESS.SYSTABLES WHERE OWNER=? AND TBL=?",
		e.cfg.Schema, e.cfg.DualTable)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSession, "failed to look up dual table").
			WithField("table", e.cfg.DualTable).Err()
	}
	exists := rows.Next()
	if err := closeRows(rows); err != nil {
		return errors.Wrap(err, errors.ErrCodeSession, "failed to look up dual table").Err()
	}
	if exists {
		return nil
	}

	dual := e.cfg.dual()
	for _, stmt := range []string{
		"CREATE TABLE " + dual + " (SEQACCESS integer)",
		"INSERT INTO " + dual + " (SEQACCESS) VALUES (1)",
	} {
		if _, err := e.eq.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, errors.ErrCodeSession, "failed to create dual table").
				WithField("statement", stmt).Err()
		}
	}
	e.logger.Audit().WithContext(ctx).Info("dual table created", "table", dual)
	return nil
}

// NextID draws the next value from table's id sequence.
func (e *executor) NextID(ctx context.Context, table string) (int64, error) {
	seq := dialect.QualifiedSequenceName(table)
	rows, err := e.eq.QueryContext(ctx, "SELECT "+seq+".NEXTVAL FROM "+e.cfg.dual())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSequence, "NEXTVAL failed").
			WithField("sequence", seq).Err()
	}
	var id int64
	if !rows.Next() {
		if err := closeRows(rows); err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeSequence, "NEXTVAL failed").
				WithField("sequence", seq).Err()
		}
		return 0, errors.New(errors.ErrCodeSequence, "NEXTVAL returned no row, is the dual table empty?").
			WithField("sequence", seq).Err()
	}
	if err := rows.Scan(&id); err != nil {
		rows.Close()
		return 0, errors.Wrap(err, errors.ErrCodeSequence, "bad NEXTVAL value").
			WithField("sequence", seq).Err()
	}
	if err := closeRows(rows); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSequence, "NEXTVAL failed").
			WithField("sequence", seq).Err()
	}
	return id, nil
}

// HasColumn reports whether table has the named column.
func (e *executor) HasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := e.eq.QueryContext(ctx,
		"SELECT COL FROM SYSPROGRESS.SYSCOLUMNS WHERE OWNER=? AND TBL=? AND COL=?",
		e.cfg.Schema, dialect.TableName(table), column)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeIntrospect, "column lookup failed").
			WithField("table", table).
			WithField("column", column).Err()
	}
	found := rows.Next()
	if err := closeRows(rows); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeIntrospect, "column lookup failed").
			WithField("table", table).Err()
	}
	return found, nil
}

// BuildInsert renders a single-row INSERT with one placeholder per column.
func BuildInsert(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(dialect.QuoteName(dialect.TableName(table)))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(dialect.QuoteName(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('?')
	}
	b.WriteByte(')')
	return b.String()
}

// Insert adds one row. When the table has an id column the caller left
// out, the next sequence value is drawn and inserted with the row. The
// returned id is that value, the caller's own integer id, or 0.
func (e *executor) Insert(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	hasID, err := e.needsID(ctx, table, columns)
	if err != nil {
		return 0, err
	}
	return e.insert(ctx, table, columns, values, hasID)
}

// InsertMany adds rows one at a time and returns their ids.
func (e *executor) InsertMany(ctx context.Context, table string, columns []string, rows [][]any) ([]int64, error) {
	hasID, err := e.needsID(ctx, table, columns)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, values := range rows {
		id, err := e.insert(ctx, table, columns, values, hasID)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// needsID reports whether inserts into table must draw an id.
func (e *executor) needsID(ctx context.Context, table string, columns []string) (bool, error) {
	if strings.Trim(table, `" `) == "" || len(columns) == 0 {
		return false, errors.New(errors.ErrCodeInvalidIdent, "insert needs a table name and at least one column").
			WithField("table", table).Err()
	}
	if idIndex(columns) >= 0 {
		return false, nil
	}
	return e.HasColumn(ctx, table, IDColumn)
}

func (e *executor) insert(ctx context.Context, table string, columns []string, values []any, drawID bool) (int64, error) {
	if len(columns) != len(values) {
		return 0, errors.Newf(errors.ErrCodeParamCount,
			"insert into %s has %d columns, got %d values", table, len(columns), len(values)).
			WithField("table", table).Err()
	}

	var id int64
	if drawID {
		next, err := e.NextID(ctx, table)
		if err != nil {
			return 0, err
		}
		id = next
		columns = append(columns[:len(columns):len(columns)], IDColumn)
		values = append(values[:len(values):len(values)], id)
	} else if i := idIndex(columns); i >= 0 {
		id = asInt64(values[i])
	}

	if _, err := e.Exec(ctx, BuildInsert(table, columns), values...); err != nil {
		return 0, err
	}
	return id, nil
}

func idIndex(columns []string) int {
	for i, c := range columns {
		if strings.EqualFold(strings.Trim(c, `"`), IDColumn) {
			return i
		}
	}
	return -1
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint32:
		return int64(n)
	}
	return 0
}
