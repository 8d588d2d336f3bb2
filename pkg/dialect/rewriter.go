// Package dialect rewrites framework-generated SQL into the OpenEdge
// (Progress) SQL dialect.
//
// Statements are lexed, normalized and parsed into a small statement tree;
// an ASTRewriter edits the tree and may synthesize auxiliary statements that
// OpenEdge needs alongside the original (id sequences, unique indexes).
// Anything the parser does not model passes through unchanged.
package dialect

import (
	"fmt"
	"strings"

	"github.com/ha1tch/oesql/pkg/log"
)

// ASTRewriter transforms parsed statements for a target dialect.
type ASTRewriter interface {
	// RewriteStatement edits stmt and returns it with any derived statements.
	RewriteStatement(stmt Statement) *Rewritten

	// Dialect names the target dialect.
	Dialect() string
}

// Rewritten is the outcome of rewriting one statement. Derived statements
// are in execution order and must run after Statement.
type Rewritten struct {
	Statement Statement
	Derived   []Statement
	Warnings  []string
}

// -----------------------------------------------------------------------------
// PassthroughRewriter
// -----------------------------------------------------------------------------

// PassthroughRewriter performs no transformations.
type PassthroughRewriter struct{}

func (r *PassthroughRewriter) Dialect() string { return "passthrough" }

func (r *PassthroughRewriter) RewriteStatement(stmt Statement) *Rewritten {
	return &Rewritten{Statement: stmt}
}

// -----------------------------------------------------------------------------
// OpenEdgeRewriter
// -----------------------------------------------------------------------------

// OpenEdgeRewriter applies the OpenEdge identifier, DDL and pagination rules.
// It holds no state and is safe for concurrent use.
type OpenEdgeRewriter struct{}

// NewOpenEdgeRewriter creates the OpenEdge rewriter.
func NewOpenEdgeRewriter() *OpenEdgeRewriter {
	return &OpenEdgeRewriter{}
}

func (r *OpenEdgeRewriter) Dialect() string { return "openedge" }

func (r *OpenEdgeRewriter) RewriteStatement(stmt Statement) *Rewritten {
	switch s := stmt.(type) {
	case *CreateTableStatement:
		return r.rewriteCreateTable(s)
	case *AlterTableStatement:
		return r.rewriteAlterTable(s)
	case *CreateIndexStatement:
		return r.rewriteCreateIndex(s)
	case *QueryStatement:
		return r.rewriteQuery(s)
	default:
		return &Rewritten{Statement: stmt}
	}
}

func (r *OpenEdgeRewriter) rewriteCreateTable(s *CreateTableStatement) *Rewritten {
	table := TableName(s.Name.Name())
	if table == "" {
		return &Rewritten{Statement: s}
	}
	s.Name.Last().SetName(table)
	truncateReferences(s.References)

	// Sequence before unique indexes: both need the table, neither needs
	// the other.
	out := &Rewritten{Statement: s}
	out.Derived = append(out.Derived, &CreateSequenceStatement{
		Schema:    SequenceSchema,
		Name:      SequenceName(table),
		Start:     0,
		Increment: 1,
		MinValue:  0,
	})

	kept := s.Elements[:0]
	n := 0
	for _, el := range s.Elements {
		if !el.IsUnique() {
			kept = append(kept, el)
			continue
		}
		n++
		cols := make([]string, len(el.UniqueColumns))
		for i, c := range el.UniqueColumns {
			cols[i] = c.Literal
		}
		out.Derived = append(out.Derived, &CreateUniqueIndexStatement{
			Name:    UniqueIndexName(table, n),
			Table:   s.Name.String(),
			Columns: cols,
		})
	}
	if len(kept) > 0 && kept[0].Sep != nil {
		kept[0].Sep = nil
	}
	s.Elements = kept
	return out
}

func (r *OpenEdgeRewriter) rewriteAlterTable(s *AlterTableStatement) *Rewritten {
	s.Name.Last().SetName(TableName(s.Name.Name()))
	if s.Constraint != nil {
		s.Constraint.SetName(ConstraintName(s.Constraint.Name()))
	}
	truncateReferences(s.References)
	return &Rewritten{Statement: s}
}

func (r *OpenEdgeRewriter) rewriteCreateIndex(s *CreateIndexStatement) *Rewritten {
	s.Index.Last().SetName(IndexName(s.Index.Name()))
	s.Table.Last().SetName(TableName(s.Table.Name()))
	return &Rewritten{Statement: s}
}

// rewriteQuery turns LIMIT n into SELECT TOP n per query block. Blocks that
// also page with OFFSET, combine selects with a set operator, or whose limit
// is not a literal are left as they are and reported.
func (r *OpenEdgeRewriter) rewriteQuery(s *QueryStatement) *Rewritten {
	out := &Rewritten{Statement: s}
	if len(s.Limits) == 0 {
		return out
	}

	drop := make(map[*Token]bool)
	insert := make(map[*Token][]*Token)
	for _, lc := range s.Limits {
		switch {
		case lc.Select == nil:
			out.Warnings = append(out.Warnings, "LIMIT outside a SELECT block left unchanged")
			continue
		case lc.Compound != nil:
			out.Warnings = append(out.Warnings, fmt.Sprintf("LIMIT applies to the whole %s query; block left unchanged", strings.ToUpper(lc.Compound.Literal)))
			continue
		case lc.Offset != nil:
			out.Warnings = append(out.Warnings, "LIMIT with OFFSET has no TOP equivalent; block left unchanged")
			continue
		case lc.Count.Type != NUMBER || !isInteger(lc.Count.Literal):
			out.Warnings = append(out.Warnings, fmt.Sprintf("LIMIT %s is not an integer literal; block left unchanged", lc.Count.Literal))
			continue
		}
		drop[lc.Limit] = true
		drop[lc.Count] = true
		anchor := topAnchor(s.Tokens, lc.Select)
		insert[anchor] = []*Token{
			newToken(IDENT, "TOP", " "),
			newToken(NUMBER, lc.Count.Literal, " "),
		}
	}
	if len(drop) == 0 {
		return out
	}

	toks := make(Fragment, 0, len(s.Tokens)+len(insert))
	for _, t := range s.Tokens {
		if drop[t] {
			continue
		}
		toks = append(toks, t)
		toks = append(toks, insert[t]...)
	}
	s.Tokens = toks
	return out
}

// topAnchor returns the token TOP must follow: the SELECT keyword, or the
// DISTINCT/ALL quantifier right after it.
func topAnchor(toks Fragment, sel *Token) *Token {
	for i, t := range toks {
		if t != sel {
			continue
		}
		if next := toks.at(toks.sig(i + 1)); next.Is("DISTINCT") || next.Is("ALL") {
			return next
		}
		break
	}
	return sel
}

func truncateReferences(refs []*ObjectName) {
	for _, ref := range refs {
		ref.Last().SetName(TableName(ref.Name()))
	}
}

// -----------------------------------------------------------------------------
// Rewriter
// -----------------------------------------------------------------------------

// Result is the outcome of Rewriter.Rewrite.
type Result struct {
	SQL          string
	Args         []any
	Derived      []string // execution order, after SQL
	Kind         StatementKind
	Table        string // truncated table name for CREATE/ALTER TABLE
	Placeholders int
	Warnings     []string
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithASTRewriter replaces the statement rewriter.
func WithASTRewriter(ast ASTRewriter) Option {
	return func(r *Rewriter) {
		if ast != nil {
			r.ast = ast
		}
	}
}

// Rewriter is the entry point: SQL text and arguments in, OpenEdge SQL,
// formatted arguments and derived statements out. It never fails; shapes it
// does not recognise come back normalized but otherwise unchanged.
type Rewriter struct {
	ast    ASTRewriter
	logger *log.Logger
}

// NewRewriter creates a Rewriter targeting OpenEdge.
func NewRewriter(opts ...Option) *Rewriter {
	r := &Rewriter{
		ast:    NewOpenEdgeRewriter(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite rewrites one statement.
func (r *Rewriter) Rewrite(sql string, args []any) *Result {
	stmt := Parse(sql)
	rw := r.ast.RewriteStatement(stmt)

	res := &Result{
		SQL:          rw.Statement.String(),
		Args:         FormatArgs(args),
		Kind:         rw.Statement.Kind(),
		Placeholders: CountPlaceholders(sql),
		Warnings:     rw.Warnings,
	}
	switch s := rw.Statement.(type) {
	case *CreateTableStatement:
		res.Table = s.Name.Name()
	case *AlterTableStatement:
		res.Table = s.Name.Name()
	}
	for _, d := range rw.Derived {
		res.Derived = append(res.Derived, d.String())
	}

	lg := r.logger.Rewrite()
	lg.Debug("statement rewritten",
		"kind", res.Kind.String(),
		"table", res.Table,
		"derived", len(res.Derived))
	for _, w := range res.Warnings {
		lg.Warn(w, "sql", res.SQL)
	}
	return res
}
