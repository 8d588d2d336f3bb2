package dialect

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// OpenEdge identifier limits. Lengths count characters, not bytes.
const (
	MaxIdentifierLength     = 32
	MaxTableNameLength      = MaxIdentifierLength
	MaxIndexNameLength      = MaxIdentifierLength
	MaxConstraintNameLength = MaxIdentifierLength

	// Sequences backing id columns live in PUB and are named SEQ_ID_<table>,
	// with the table part cut so the whole name fits the limit.
	SequenceSchema         = "PUB"
	SequencePrefix         = "SEQ_ID_"
	MaxSequenceTableLength = MaxIdentifierLength - len(SequencePrefix)

	// DefaultDualTable is the one-row table used for NEXTVAL lookups.
	DefaultDualTable = "DUAL"
)

// TruncateHead keeps the first max characters of name.
func TruncateHead(name string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(name) <= max {
		return name
	}
	r := []rune(name)
	return string(r[:max])
}

// TruncateTail keeps the last max characters of name.
func TruncateTail(name string, max int) string {
	if max <= 0 {
		return ""
	}
	n := utf8.RuneCountInString(name)
	if n <= max {
		return name
	}
	r := []rune(name)
	return string(r[n-max:])
}

// TableName returns the OpenEdge form of a table name: its first 32
// characters. Catalogue comparisons use the same key.
func TableName(name string) string {
	return TruncateHead(name, MaxTableNameLength)
}

// IndexName shortens an over-long index name to its last 32 characters.
func IndexName(name string) string {
	return TruncateTail(name, MaxIndexNameLength)
}

// ConstraintName shortens an over-long constraint name to its last 32
// characters. Generated constraint names end in a hash, so the tail is the
// distinguishing part.
func ConstraintName(name string) string {
	return TruncateTail(name, MaxConstraintNameLength)
}

// SequenceName returns the unqualified id sequence name for table.
func SequenceName(table string) string {
	return SequencePrefix + TruncateHead(TableName(table), MaxSequenceTableLength)
}

// QualifiedSequenceName returns the PUB-qualified id sequence name for table.
func QualifiedSequenceName(table string) string {
	return SequenceSchema + "." + SequenceName(table)
}

// UniqueIndexName names the n-th unique index split out of a CREATE TABLE.
func UniqueIndexName(table string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	return TruncateHead(table, MaxIndexNameLength-len(suffix)) + suffix
}

// QuoteName double-quotes name unless it is already quoted.
func QuoteName(name string) string {
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
