package translate

import (
	"strings"

	"github.com/ha1tch/oesql/pkg/dialect"
)

// SplitStatements splits a script on semicolons outside literals, quoted
// identifiers and comments. Statements holding nothing but whitespace and
// comments are dropped.
func SplitStatements(src string) []string {
	var (
		out  []string
		cur  strings.Builder
		real bool
	)
	flush := func() {
		if real {
			out = append(out, strings.TrimSpace(cur.String()))
		}
		cur.Reset()
		real = false
	}

	for _, t := range dialect.Lex(src) {
		switch {
		case t.Type == dialect.EOF:
			flush()
		case t.IsPunct(";"):
			flush()
		default:
			cur.WriteString(t.String())
			if t.Type != dialect.COMMENT {
				real = true
			}
		}
	}
	return out
}
