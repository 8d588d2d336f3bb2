package dialect

import "strings"

// TokenType classifies a lexical token.
type TokenType int

const (
	EOF         TokenType = iota
	IDENT                 // bare word: keyword or unquoted identifier
	QUOTED                // "quoted identifier"
	STRING                // 'string literal'
	NUMBER                // 42, 3.14, 1e9
	PLACEHOLDER           // ? or %s
	PUNCT                 // ( ) , ; .
	OPERATOR              // = <> || + - * / %% ...
	COMMENT               // -- line or /* block */
)

var tokenTypeNames = map[TokenType]string{
	EOF:         "EOF",
	IDENT:       "IDENT",
	QUOTED:      "QUOTED",
	STRING:      "STRING",
	NUMBER:      "NUMBER",
	PLACEHOLDER: "PLACEHOLDER",
	PUNCT:       "PUNCT",
	OPERATOR:    "OPERATOR",
	COMMENT:     "COMMENT",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token is one lexical token. Space holds the whitespace that preceded it
// in the source so that untouched statements render verbatim.
type Token struct {
	Type    TokenType
	Literal string
	Space   string
}

func (t *Token) String() string {
	return t.Space + t.Literal
}

// Is reports whether t is the bare keyword kw (case-insensitive).
func (t *Token) Is(kw string) bool {
	return t != nil && t.Type == IDENT && strings.EqualFold(t.Literal, kw)
}

// IsPunct reports whether t is the punctuation p.
func (t *Token) IsPunct(p string) bool {
	return t != nil && t.Type == PUNCT && t.Literal == p
}

// IsName reports whether t can name an object.
func (t *Token) IsName() bool {
	return t != nil && (t.Type == IDENT || t.Type == QUOTED)
}

// Name returns the identifier named by t with quoting removed.
func (t *Token) Name() string {
	if t.Type != QUOTED {
		return t.Literal
	}
	inner := strings.TrimPrefix(t.Literal, `"`)
	inner = strings.TrimSuffix(inner, `"`)
	return strings.ReplaceAll(inner, `""`, `"`)
}

// SetName replaces the identifier keeping the token's quoting style.
func (t *Token) SetName(name string) {
	if t.Type == QUOTED {
		t.Literal = `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
		return
	}
	t.Literal = name
}

// word reports whether the token would fuse with an adjacent word token if
// the whitespace between them disappeared.
func (t *Token) word() bool {
	switch t.Type {
	case IDENT, QUOTED, STRING, NUMBER, PLACEHOLDER, COMMENT:
		return true
	}
	return false
}

// Fragment is a run of tokens rendered back to back.
type Fragment []*Token

func (f Fragment) String() string {
	var buf strings.Builder
	for _, t := range f {
		buf.WriteString(t.Space)
		buf.WriteString(t.Literal)
	}
	return buf.String()
}

// first returns the first non-comment token of f, or nil.
func (f Fragment) first() *Token {
	for _, t := range f {
		if t.Type != COMMENT {
			return t
		}
	}
	return nil
}

func newToken(typ TokenType, literal, space string) *Token {
	return &Token{Type: typ, Literal: literal, Space: space}
}
