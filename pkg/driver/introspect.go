package driver

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ha1tch/oesql/pkg/dialect"
	"github.com/ha1tch/oesql/pkg/errors"
)

// Column describes a catalogue column.
type Column struct {
	Name     string
	Type     string
	Width    int
	Nullable bool
}

// Index describes a catalogue index. SYSINDEXES has one row per indexed
// column; Columns lists them in catalogue order.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Primary bool
}

// ForeignKey is a referential constraint on a table.
type ForeignKey struct {
	Name     string
	RefTable string
}

// TableNames lists the tables owned by the session schema.
func (e *executor) TableNames(ctx context.Context) ([]string, error) {
	var names []string
	err := e.scan(ctx, "tables", func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, strings.TrimSpace(name))
		return nil
	}, "SELECT TBL FROM SYSPROGRESS.SYSTABLES WHERE OWNER=?", e.cfg.Schema)
	return names, err
}

// Columns lists table's columns.
func (e *executor) Columns(ctx context.Context, table string) ([]Column, error) {
	var cols []Column
	err := e.scan(ctx, "columns", func(rows *sql.Rows) error {
		var (
			c    Column
			null string
		)
		if err := rows.Scan(&c.Name, &c.Type, &c.Width, &null); err != nil {
			return err
		}
		c.Name = strings.TrimSpace(c.Name)
		c.Type = strings.TrimSpace(c.Type)
		c.Nullable = strings.EqualFold(strings.TrimSpace(null), "Y")
		cols = append(cols, c)
		return nil
	}, "SELECT COL,COLTYPE,WIDTH,NULLFLAG FROM SYSPROGRESS.SYSCOLUMNS WHERE OWNER=? AND TBL=?",
		e.cfg.Schema, dialect.TableName(table))
	return cols, err
}

// ForeignKeys lists table's referential constraints.
func (e *executor) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	var fks []ForeignKey
	err := e.scan(ctx, "foreign keys", func(rows *sql.Rows) error {
		var fk ForeignKey
		if err := rows.Scan(&fk.Name, &fk.RefTable); err != nil {
			return err
		}
		fk.Name = strings.TrimSpace(fk.Name)
		fk.RefTable = strings.TrimSpace(fk.RefTable)
		fks = append(fks, fk)
		return nil
	}, "SELECT CNSTRNAME,REFTBLNAME FROM SYSPROGRESS.SYS_REF_CONSTRS WHERE OWNER=? AND TBLNAME=?",
		e.cfg.Schema, dialect.TableName(table))
	return fks, err
}

// Indexes lists table's indexes with their unique and primary flags.
func (e *executor) Indexes(ctx context.Context, table string) ([]*Index, error) {
	tbl := dialect.TableName(table)

	var (
		indexes []*Index
		byName  = map[string]*Index{}
	)
	err := e.scan(ctx, "indexes", func(rows *sql.Rows) error {
		var name, typ, col string
		if err := rows.Scan(&name, &typ, &col); err != nil {
			return err
		}
		name = strings.TrimSpace(name)
		idx, ok := byName[name]
		if !ok {
			idx = &Index{Name: name, Unique: strings.EqualFold(strings.TrimSpace(typ), "U")}
			byName[name] = idx
			indexes = append(indexes, idx)
		}
		idx.Columns = append(idx.Columns, strings.TrimSpace(col))
		return nil
	}, "SELECT IDXNAME,IDXTYPE,COLNAME FROM SYSPROGRESS.SYSINDEXES WHERE IDXOWNER=? AND TBL=? ORDER BY IDXNAME,IDXSEQ",
		e.cfg.Schema, tbl)
	if err != nil || len(indexes) == 0 {
		return indexes, err
	}

	// Rows are drained before the second query so a Tx or Session, which
	// hold one connection, can run it.
	err = e.scan(ctx, "primary key", func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if idx, ok := byName[strings.TrimSpace(name)]; ok {
			idx.Primary = true
		}
		return nil
	}, "SELECT IDXNAME FROM SYSPROGRESS.SYS_TBL_CONSTRS WHERE OWNER=? AND TBLNAME=? AND CNSTRTYPE='P'",
		e.cfg.Schema, tbl)
	return indexes, err
}

// scan runs a catalogue query and feeds each row to fn.
func (e *executor) scan(ctx context.Context, what string, fn func(*sql.Rows) error, query string, args ...any) error {
	rows, err := e.eq.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeIntrospect, "failed to read %s", what).Err()
	}
	for rows.Next() {
		if err := fn(rows); err != nil {
			rows.Close()
			return errors.Wrapf(err, errors.ErrCodeIntrospect, "failed to scan %s", what).Err()
		}
	}
	if err := closeRows(rows); err != nil {
		return errors.Wrapf(err, errors.ErrCodeIntrospect, "failed to read %s", what).Err()
	}
	return nil
}

// closeRows closes rows and returns the first iteration or close error.
func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}
