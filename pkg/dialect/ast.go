package dialect

import (
	"fmt"
	"strings"
)

// StatementKind classifies a parsed statement.
type StatementKind int

const (
	KindOther StatementKind = iota
	KindCreateTable
	KindAlterTable
	KindCreateIndex
	KindCreateSequence
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

var kindNames = [...]string{
	KindOther:          "OTHER",
	KindCreateTable:    "CREATE TABLE",
	KindAlterTable:     "ALTER TABLE",
	KindCreateIndex:    "CREATE INDEX",
	KindCreateSequence: "CREATE SEQUENCE",
	KindSelect:         "SELECT",
	KindInsert:         "INSERT",
	KindUpdate:         "UPDATE",
	KindDelete:         "DELETE",
}

func (k StatementKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// IsDDL reports whether statements of this kind change the schema.
func (k StatementKind) IsDDL() bool {
	switch k {
	case KindCreateTable, KindAlterTable, KindCreateIndex, KindCreateSequence:
		return true
	}
	return false
}

// Statement is a parsed or synthesized SQL statement.
type Statement interface {
	Kind() StatementKind
	String() string
	statementNode()
}

// -----------------------------------------------------------------------------
// Object names
// -----------------------------------------------------------------------------

// ObjectName is a possibly schema-qualified name. Parts point into the
// owning statement's tokens, so renaming a part renames it in place.
type ObjectName struct {
	Parts  []*Token
	Tokens Fragment
}

// Last returns the unqualified part.
func (n *ObjectName) Last() *Token {
	return n.Parts[len(n.Parts)-1]
}

// Name returns the unqualified, unquoted name.
func (n *ObjectName) Name() string {
	return n.Last().Name()
}

// Quoted reports whether the unqualified part is a quoted identifier.
func (n *ObjectName) Quoted() bool {
	return n.Last().Type == QUOTED
}

// String renders the name as written, without leading whitespace.
func (n *ObjectName) String() string {
	return strings.TrimLeft(n.Tokens.String(), " \t")
}

// -----------------------------------------------------------------------------
// CREATE TABLE
// -----------------------------------------------------------------------------

// TableElement is one comma-separated entry of a column list.
type TableElement struct {
	Sep    *Token // the comma before the element; nil for the first
	Tokens Fragment

	// UniqueColumns is set when the element is a UNIQUE (col, ...) clause.
	UniqueColumns []*Token
}

// IsUnique reports whether the element is a UNIQUE (col, ...) clause.
func (e *TableElement) IsUnique() bool {
	return len(e.UniqueColumns) > 0
}

// CreateTableStatement is CREATE TABLE "name" (elements) tail.
type CreateTableStatement struct {
	Head     Fragment // CREATE TABLE <name>
	Name     *ObjectName
	Open     Fragment // up to and including "(", nil without a column list
	Elements []*TableElement
	Close    *Token
	Tail     Fragment

	// References are REFERENCES targets found in column definitions.
	References []*ObjectName
}

func (s *CreateTableStatement) statementNode()      {}
func (s *CreateTableStatement) Kind() StatementKind { return KindCreateTable }

func (s *CreateTableStatement) String() string {
	var buf strings.Builder
	buf.WriteString(s.Head.String())
	if s.Open != nil {
		buf.WriteString(s.Open.String())
		for i, el := range s.Elements {
			if i > 0 {
				if el.Sep != nil {
					buf.WriteString(el.Sep.String())
				} else {
					buf.WriteString(",")
				}
			}
			buf.WriteString(el.Tokens.String())
		}
		if s.Close != nil {
			buf.WriteString(s.Close.String())
		}
	}
	buf.WriteString(s.Tail.String())
	return buf.String()
}

// -----------------------------------------------------------------------------
// ALTER TABLE
// -----------------------------------------------------------------------------

// AlterTableStatement is ALTER TABLE "name" body. Only the names it
// carries are modelled; the body renders verbatim.
type AlterTableStatement struct {
	Tokens     Fragment
	Name       *ObjectName
	Constraint *Token // name after ADD/DROP CONSTRAINT
	References []*ObjectName
}

func (s *AlterTableStatement) statementNode()      {}
func (s *AlterTableStatement) Kind() StatementKind { return KindAlterTable }
func (s *AlterTableStatement) String() string      { return s.Tokens.String() }

// -----------------------------------------------------------------------------
// CREATE INDEX
// -----------------------------------------------------------------------------

// CreateIndexStatement is CREATE [UNIQUE] INDEX name ON table ...
type CreateIndexStatement struct {
	Tokens Fragment
	Unique bool
	Index  *ObjectName
	Table  *ObjectName
}

func (s *CreateIndexStatement) statementNode()      {}
func (s *CreateIndexStatement) Kind() StatementKind { return KindCreateIndex }
func (s *CreateIndexStatement) String() string      { return s.Tokens.String() }

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// LimitClause is a LIMIT found in one query block. Select is the SELECT
// keyword opening that block; it is nil when the block has none.
type LimitClause struct {
	Select   *Token
	Limit    *Token
	Count    *Token
	Offset   *Token // OFFSET keyword, or the comma of LIMIT m, n
	Compound *Token // UNION, INTERSECT, EXCEPT or MINUS in the same block
}

// QueryStatement is any other statement. Limits lists the LIMIT clauses
// found per query block, innermost blocks included.
type QueryStatement struct {
	Tokens Fragment
	Limits []*LimitClause
	kind   StatementKind
}

func (s *QueryStatement) statementNode()      {}
func (s *QueryStatement) Kind() StatementKind { return s.kind }
func (s *QueryStatement) String() string      { return s.Tokens.String() }

// RawStatement is a statement left entirely alone.
type RawStatement struct {
	Tokens Fragment
	kind   StatementKind
}

func (s *RawStatement) statementNode()      {}
func (s *RawStatement) Kind() StatementKind { return s.kind }
func (s *RawStatement) String() string      { return s.Tokens.String() }

// -----------------------------------------------------------------------------
// Synthesized statements
// -----------------------------------------------------------------------------

// CreateSequenceStatement creates the id sequence of a table.
type CreateSequenceStatement struct {
	Schema    string
	Name      string
	Start     int64
	Increment int64
	MinValue  int64
}

func (s *CreateSequenceStatement) statementNode()      {}
func (s *CreateSequenceStatement) Kind() StatementKind { return KindCreateSequence }

func (s *CreateSequenceStatement) String() string {
	return fmt.Sprintf("CREATE SEQUENCE %s.%s START WITH %d, INCREMENT BY %d, MINVALUE %d, NOCYCLE",
		s.Schema, s.Name, s.Start, s.Increment, s.MinValue)
}

// CreateUniqueIndexStatement replaces an inline UNIQUE clause.
type CreateUniqueIndexStatement struct {
	Name    string
	Table   string // rendered table reference
	Columns []string
}

func (s *CreateUniqueIndexStatement) statementNode()      {}
func (s *CreateUniqueIndexStatement) Kind() StatementKind { return KindCreateIndex }

func (s *CreateUniqueIndexStatement) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "CREATE UNIQUE INDEX %s ON %s (", s.Name, s.Table)
	for i, col := range s.Columns {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString(col)
		buf.WriteString(" ")
	}
	buf.WriteString(")")
	return buf.String()
}
