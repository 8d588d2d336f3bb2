package dialect

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer splits SQL text into tokens. It never fails: unterminated literals
// and comments run to the end of input and unknown characters become
// single-character operators.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Lex tokenizes sql. The final token is always EOF and carries any trailing
// whitespace in its Space.
func Lex(sql string) []*Token {
	l := NewLexer(sql)
	var out []*Token
	for {
		tok := l.Next()
		out = append(out, tok)
		if tok.Type == EOF {
			return out
		}
	}
}

// Next returns the next token.
func (l *Lexer) Next() *Token {
	space := l.readSpace()
	if l.pos >= len(l.input) {
		return newToken(EOF, "", space)
	}

	start := l.pos
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])

	switch {
	case r == '-' && l.peekByte(1) == '-':
		l.skipUntil("\n", false)
		return newToken(COMMENT, l.input[start:l.pos], space)
	case r == '/' && l.peekByte(1) == '*':
		l.pos += 2
		l.skipUntil("*/", true)
		return newToken(COMMENT, l.input[start:l.pos], space)
	case r == '\'':
		l.readQuoted('\'')
		return newToken(STRING, l.input[start:l.pos], space)
	case r == '"':
		l.readQuoted('"')
		return newToken(QUOTED, l.input[start:l.pos], space)
	case r == '?':
		l.pos += w
		return newToken(PLACEHOLDER, "?", space)
	case r == '%' && l.peekByte(1) == '%':
		l.pos += 2
		return newToken(OPERATOR, "%%", space)
	case r == '%' && l.peekByte(1) == 's':
		l.pos += 2
		return newToken(PLACEHOLDER, "%s", space)
	case isDigit(r) || (r == '.' && isDigit(rune(l.peekByte(1)))):
		l.readNumber()
		return newToken(NUMBER, l.input[start:l.pos], space)
	case isIdentStart(r):
		l.readIdent()
		return newToken(IDENT, l.input[start:l.pos], space)
	case strings.ContainsRune("(),;.", r):
		l.pos += w
		return newToken(PUNCT, string(r), space)
	case strings.ContainsRune("<>=!|:", r):
		l.pos += w
		for l.pos < len(l.input) && strings.IndexByte("<>=!|:", l.input[l.pos]) >= 0 {
			l.pos++
		}
		return newToken(OPERATOR, l.input[start:l.pos], space)
	default:
		l.pos += w
		return newToken(OPERATOR, string(r), space)
	}
}

func (l *Lexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.input) {
		return l.input[l.pos+offset]
	}
	return 0
}

func (l *Lexer) readSpace() string {
	start := l.pos
	for l.pos < len(l.input) {
		r, w := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += w
	}
	return l.input[start:l.pos]
}

// skipUntil advances to the terminator, consuming it when inclusive.
func (l *Lexer) skipUntil(term string, inclusive bool) {
	idx := strings.Index(l.input[l.pos:], term)
	if idx < 0 {
		l.pos = len(l.input)
		return
	}
	l.pos += idx
	if inclusive {
		l.pos += len(term)
	}
}

// readQuoted consumes a quoted run where a doubled quote is an escape.
func (l *Lexer) readQuoted(q byte) {
	l.pos++
	for l.pos < len(l.input) {
		if l.input[l.pos] == q {
			if l.peekByte(1) == q {
				l.pos += 2
				continue
			}
			l.pos++
			return
		}
		l.pos++
	}
}

func (l *Lexer) readNumber() {
	for l.pos < len(l.input) && (isDigit(rune(l.input[l.pos])) || l.input[l.pos] == '.') {
		l.pos++
	}
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		next := l.peekByte(1)
		if isDigit(rune(next)) || ((next == '+' || next == '-') && isDigit(rune(l.peekByte(2)))) {
			l.pos += 2
			for l.pos < len(l.input) && isDigit(rune(l.input[l.pos])) {
				l.pos++
			}
		}
	}
}

func (l *Lexer) readIdent() {
	for l.pos < len(l.input) {
		r, w := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentPart(r) {
			return
		}
		l.pos += w
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || r == '#' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
