// Package schema builds OpenEdge DDL for schema migrations and applies it.
//
// Builders return statement text only. Table names are cut to the OpenEdge
// limit here as well as by the rewriter, so statements that the rewriter
// does not recognise (RENAME TO, DROP INDEX) still name the right objects.
package schema

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/ha1tch/oesql/pkg/dialect"
)

// Kind is a portable column kind.
type Kind int

const (
	KindInt Kind = iota
	KindSmallInt
	KindBigInt
	KindBool
	KindChar
	KindText
	KindDate
	KindDateTime
	KindTime
	KindDecimal
	KindFloat
)

// textWidth is the varchar width used for unbounded text.
const textWidth = 255

// Column is a column definition.
type Column struct {
	Name      string
	Kind      Kind
	Length    int // KindChar
	Precision int // KindDecimal
	Scale     int // KindDecimal
	Nullable  bool
	Primary   bool
}

// SQLType returns the OpenEdge column type.
func (c Column) SQLType() string {
	switch c.Kind {
	case KindSmallInt:
		return "smallint"
	case KindBigInt:
		return "bigint"
	case KindBool:
		// OpenEdge ODBC has no usable boolean; flags are stored as 1/0.
		return "int"
	case KindChar:
		return fmt.Sprintf("varchar(%d)", c.Length)
	case KindText:
		return fmt.Sprintf("varchar(%d)", textWidth)
	case KindDate:
		return "date"
	case KindDateTime:
		return "timestamp"
	case KindTime:
		return "time"
	case KindDecimal:
		return fmt.Sprintf("decimal(%d, %d)", c.Precision, c.Scale)
	case KindFloat:
		return "float"
	default:
		return "int"
	}
}

// Definition renders the column for CREATE TABLE and ADD COLUMN.
func (c Column) Definition() string {
	var b strings.Builder
	b.WriteString(dialect.QuoteName(c.Name))
	b.WriteByte(' ')
	b.WriteString(c.SQLType())
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Primary {
		b.WriteString(" PRIMARY KEY")
	}
	return b.String()
}

func table(name string) string {
	return dialect.QuoteName(dialect.TableName(name))
}

func quoteList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = dialect.QuoteName(n)
	}
	return strings.Join(q, ", ")
}

// CreateTable renders CREATE TABLE. Running it through the driver also
// creates the table's id sequence.
func CreateTable(name string, columns []Column) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = c.Definition()
	}
	return "CREATE TABLE " + table(name) + " (" + strings.Join(defs, ", ") + ")"
}

// IndexName names an index on columns of tbl. Names over the identifier
// limit are cut and given an xxh3 digest of the full name so they stay
// distinct and stable.
func IndexName(tbl string, columns []string, suffix string) string {
	base := tbl + "_" + strings.Join(columns, "_")
	full := base + suffix
	if len(full) <= dialect.MaxIndexNameLength {
		return full
	}
	digest := fmt.Sprintf("_%08x", uint32(xxh3.HashString(full)))
	keep := dialect.MaxIndexNameLength - len(digest) - len(suffix)
	return dialect.TruncateHead(base, keep) + digest + suffix
}

// CreateUnique renders a unique index over columns and returns its name.
func CreateUnique(tbl string, columns []string) (stmt, name string) {
	name = IndexName(tbl, columns, "_uniq")
	return "CREATE UNIQUE INDEX " + dialect.QuoteName(name) + " ON " + table(tbl) + " (" + quoteList(columns) + ")", name
}

// CreateIndex renders a plain index over columns and returns its name.
func CreateIndex(tbl string, columns []string) (stmt, name string) {
	name = IndexName(tbl, columns, "")
	return "CREATE INDEX " + dialect.QuoteName(name) + " ON " + table(tbl) + " (" + quoteList(columns) + ")", name
}

// DropIndex renders DROP INDEX.
func DropIndex(name string) string {
	return "DROP INDEX " + dialect.QuoteName(dialect.IndexName(name))
}

// AddColumn renders ALTER TABLE ... ADD COLUMN.
func AddColumn(tbl string, c Column) string {
	return "ALTER TABLE " + table(tbl) + " ADD COLUMN " + c.Definition()
}

// DropColumn renders ALTER TABLE ... DROP COLUMN with CASCADE.
func DropColumn(tbl, column string) string {
	return "ALTER TABLE " + table(tbl) + " DROP COLUMN " + dialect.QuoteName(column) + " CASCADE"
}

// AlterColumnType changes a column's type.
func AlterColumnType(tbl string, c Column) string {
	return "ALTER TABLE " + table(tbl) + " ALTER COLUMN " + dialect.QuoteName(c.Name) + " TYPE " + c.SQLType()
}

// SetNullable drops a column's NOT NULL.
func SetNullable(tbl, column string) string {
	return "ALTER TABLE " + table(tbl) + " ALTER COLUMN " + dialect.QuoteName(column) + " DROP NOT NULL"
}

// DropNullable makes a column NOT NULL.
func DropNullable(tbl, column string) string {
	return "ALTER TABLE " + table(tbl) + " ALTER COLUMN " + dialect.QuoteName(column) + " SET NOT NULL"
}

// CreatePrimaryKey adds a named primary key constraint.
func CreatePrimaryKey(tbl, constraint string, columns []string) string {
	return "ALTER TABLE " + table(tbl) + " ADD CONSTRAINT " + dialect.QuoteName(dialect.ConstraintName(constraint)) +
		" PRIMARY KEY (" + quoteList(columns) + ")"
}

// AddCheck adds a named check constraint.
func AddCheck(tbl, constraint, check string) string {
	return "ALTER TABLE " + table(tbl) + " ADD CONSTRAINT " + dialect.QuoteName(dialect.ConstraintName(constraint)) +
		" CHECK (" + check + ")"
}

// DropConstraint drops a named constraint of any kind.
func DropConstraint(tbl, constraint string) string {
	return "ALTER TABLE " + table(tbl) + " DROP CONSTRAINT " + dialect.QuoteName(dialect.ConstraintName(constraint))
}

// RenameTable renames a table.
func RenameTable(from, to string) string {
	return "ALTER TABLE " + table(from) + " RENAME TO " + table(to)
}
