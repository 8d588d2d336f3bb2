package dialect

import "strings"

// Parser builds a minimal statement tree over a normalized token run.
// Shapes it does not model come back as QueryStatement or RawStatement and
// render unchanged.
type Parser struct {
	tokens Fragment
}

// NewParser creates a parser over normalized tokens.
func NewParser(tokens []*Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse lexes, normalizes and parses one statement.
func Parse(sql string) Statement {
	return NewParser(Normalize(Lex(sql))).ParseStatement()
}

// ParseStatement parses the token run as a single statement.
func (p *Parser) ParseStatement() Statement {
	toks := p.tokens
	i := toks.sig(0)
	first := toks.at(i)
	if first == nil {
		return &RawStatement{Tokens: toks}
	}
	j := toks.sig(i + 1)
	second := toks.at(j)

	switch {
	case first.Is("CREATE") && second.Is("TABLE"):
		return p.parseCreateTable(toks.sig(j + 1))
	case first.Is("CREATE") && second.Is("INDEX"):
		return p.parseCreateIndex(toks.sig(j+1), false)
	case first.Is("CREATE") && second.Is("UNIQUE"):
		if k := toks.sig(j + 1); toks.at(k).Is("INDEX") {
			return p.parseCreateIndex(toks.sig(k+1), true)
		}
	case first.Is("ALTER") && second.Is("TABLE"):
		return p.parseAlterTable(toks.sig(j + 1))
	}
	return p.parseQuery(queryKind(first))
}

func queryKind(first *Token) StatementKind {
	switch {
	case first.Is("SELECT"), first.Is("WITH"):
		return KindSelect
	case first.Is("INSERT"):
		return KindInsert
	case first.Is("UPDATE"):
		return KindUpdate
	case first.Is("DELETE"):
		return KindDelete
	}
	return KindOther
}

func (p *Parser) parseCreateTable(i int) Statement {
	toks := p.tokens
	name, end := toks.objectName(i)
	if name == nil || !name.Quoted() {
		return &RawStatement{Tokens: toks, kind: KindCreateTable}
	}

	s := &CreateTableStatement{Head: toks[:end], Name: name}
	open := toks.sig(end)
	closing := -1
	if toks.at(open).IsPunct("(") {
		closing = toks.matching(open)
	}
	if closing < 0 {
		s.Tail = toks[end:]
		return s
	}

	s.Open = toks[end : open+1]
	s.Close = toks[closing]
	s.Tail = toks[closing+1:]
	s.Elements = splitElements(toks[open+1 : closing])
	for _, el := range s.Elements {
		s.References = append(s.References, el.Tokens.references()...)
	}
	return s
}

func (p *Parser) parseAlterTable(i int) Statement {
	toks := p.tokens
	name, end := toks.objectName(i)
	if name == nil || !name.Quoted() {
		return &RawStatement{Tokens: toks, kind: KindAlterTable}
	}

	s := &AlterTableStatement{Tokens: toks, Name: name}
	var prev *Token
	for k := toks.sig(end); k < len(toks); k = toks.sig(k + 1) {
		t := toks[k]
		if t.Is("CONSTRAINT") && (prev.Is("ADD") || prev.Is("DROP")) && s.Constraint == nil {
			if n := toks.at(toks.sig(k + 1)); n.IsName() {
				s.Constraint = n
			}
		}
		prev = t
	}
	s.References = toks[end:].references()
	return s
}

func (p *Parser) parseCreateIndex(i int, unique bool) Statement {
	toks := p.tokens
	raw := &RawStatement{Tokens: toks, kind: KindCreateIndex}

	index, end := toks.objectName(i)
	if index == nil {
		return raw
	}
	on := toks.sig(end)
	if !toks.at(on).Is("ON") {
		return raw
	}
	table, _ := toks.objectName(toks.sig(on + 1))
	if table == nil {
		return raw
	}
	return &CreateIndexStatement{Tokens: toks, Unique: unique, Index: index, Table: table}
}

// parseQuery finds LIMIT clauses per query block. A block is the top level
// or any parenthesised group; its SELECT is the first one seen in it.
func (p *Parser) parseQuery(kind StatementKind) Statement {
	toks := p.tokens
	type block struct {
		sel    *Token
		limit  *LimitClause
		offset *Token
		setOp  *Token
	}

	var limits []*LimitClause
	finish := func(b *block) {
		if b.limit == nil {
			return
		}
		b.limit.Select = b.sel
		if b.limit.Offset == nil {
			b.limit.Offset = b.offset
		}
		b.limit.Compound = b.setOp
		limits = append(limits, b.limit)
	}

	stack := []*block{{}}
	for k := 0; k < len(toks); k++ {
		t := toks[k]
		cur := stack[len(stack)-1]
		switch {
		case t.IsPunct("("):
			stack = append(stack, &block{})
		case t.IsPunct(")"):
			if len(stack) > 1 {
				finish(cur)
				stack = stack[:len(stack)-1]
			}
		case t.Is("SELECT"):
			if cur.sel == nil {
				cur.sel = t
			}
		case t.Is("LIMIT"):
			c := toks.sig(k + 1)
			count := toks.at(c)
			if count == nil || cur.limit != nil {
				continue
			}
			cur.limit = &LimitClause{Limit: t, Count: count}
			if next := toks.at(toks.sig(c + 1)); next.IsPunct(",") {
				cur.limit.Offset = next
			}
			k = c
		case t.Is("OFFSET"):
			cur.offset = t
		case t.Is("UNION") || t.Is("INTERSECT") || t.Is("EXCEPT") || t.Is("MINUS"):
			if cur.setOp == nil {
				cur.setOp = t
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		finish(stack[i])
	}
	return &QueryStatement{Tokens: toks, Limits: limits, kind: kind}
}

// splitElements splits a column list at top-level commas.
func splitElements(body Fragment) []*TableElement {
	var out []*TableElement
	var sep *Token
	start, depth := 0, 0
	for k, t := range body {
		switch {
		case t.IsPunct("("):
			depth++
		case t.IsPunct(")"):
			depth--
		case t.IsPunct(",") && depth == 0:
			out = append(out, newTableElement(sep, body[start:k]))
			sep = t
			start = k + 1
		}
	}
	return append(out, newTableElement(sep, body[start:]))
}

func newTableElement(sep *Token, toks Fragment) *TableElement {
	el := &TableElement{Sep: sep, Tokens: toks}

	var sig []*Token
	for _, t := range toks {
		if t.Type != COMMENT {
			sig = append(sig, t)
		}
	}
	if len(sig) < 4 || !sig[0].Is("UNIQUE") || !sig[1].IsPunct("(") || !sig[len(sig)-1].IsPunct(")") {
		return el
	}

	var cols []*Token
	for k, t := range sig[2 : len(sig)-1] {
		switch {
		case k%2 == 0 && t.IsName():
			cols = append(cols, t)
		case k%2 == 1 && t.IsPunct(","):
		default:
			return el
		}
	}
	el.UniqueColumns = cols
	return el
}

// -----------------------------------------------------------------------------
// Fragment navigation helpers
// -----------------------------------------------------------------------------

// sig returns the index of the first non-comment token at or after i.
func (f Fragment) sig(i int) int {
	for i < len(f) && f[i].Type == COMMENT {
		i++
	}
	return i
}

func (f Fragment) at(i int) *Token {
	if i >= 0 && i < len(f) {
		return f[i]
	}
	return nil
}

// objectName reads name(.name)* starting at i.
func (f Fragment) objectName(i int) (*ObjectName, int) {
	if !f.at(i).IsName() {
		return nil, i
	}
	parts := []*Token{f[i]}
	k := i + 1
	for f.at(k).IsPunct(".") && f.at(k+1).IsName() {
		parts = append(parts, f[k+1])
		k += 2
	}
	return &ObjectName{Parts: parts, Tokens: f[i:k]}, k
}

// matching returns the index of the parenthesis closing the one at open.
func (f Fragment) matching(open int) int {
	depth := 0
	for k := open; k < len(f); k++ {
		switch {
		case f[k].IsPunct("("):
			depth++
		case f[k].IsPunct(")"):
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return -1
}

// references returns the targets of every REFERENCES keyword in f.
func (f Fragment) references() []*ObjectName {
	var out []*ObjectName
	for k, t := range f {
		if !t.Is("REFERENCES") {
			continue
		}
		if ref, _ := f.objectName(f.sig(k + 1)); ref != nil {
			out = append(out, ref)
		}
	}
	return out
}

// isInteger reports whether s is an unsigned decimal integer literal.
func isInteger(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}
