package dialect

import (
	"strings"
	"time"
)

var (
	newlineStripper  = strings.NewReplacer("\r", "", "\n", "")
	newlineFlattener = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")
)

// Normalize prepares a token run for the OpenEdge driver, which accepts a
// single unterminated statement on one line:
//   - the EOF token and trailing whitespace are dropped
//   - %s placeholders become ? and an escaped %% becomes %
//   - a final ; is removed
//   - line breaks between tokens are removed, keeping one space where two
//     words would otherwise fuse; string literals keep theirs
//   - -- comments become /* */ comments; line breaks inside /* */ comments
//     become spaces
func Normalize(tokens []*Token) []*Token {
	out := make([]*Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Type == EOF {
			continue
		}
		switch {
		case t.Type == PLACEHOLDER:
			t.Literal = "?"
		case t.Type == OPERATOR && t.Literal == "%%":
			t.Literal = "%"
		}
		out = append(out, t)
	}

	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Type == COMMENT {
			continue
		}
		if out[i].IsPunct(";") {
			out = append(out[:i], out[i+1:]...)
		}
		break
	}

	for i, t := range out {
		if t.Type == COMMENT {
			if strings.HasPrefix(t.Literal, "--") {
				body := strings.TrimRight(t.Literal[2:], "\r")
				t.Literal = "/*" + strings.ReplaceAll(body, "*/", "* /") + " */"
			} else {
				t.Literal = newlineFlattener.Replace(t.Literal)
			}
		}
		if strings.ContainsAny(t.Space, "\r\n") {
			space := newlineStripper.Replace(t.Space)
			if space == "" && i > 0 && out[i-1].word() && t.word() {
				space = " "
			}
			t.Space = space
		}
	}
	if len(out) > 0 {
		out[0].Space = ""
	}
	return out
}

// CountPlaceholders returns the number of bind placeholders in sql,
// ignoring any inside literals, quoted identifiers and comments.
func CountPlaceholders(sql string) int {
	n := 0
	for _, t := range Lex(sql) {
		if t.Type == PLACEHOLDER {
			n++
		}
	}
	return n
}

// FormatArgs converts bind arguments to the forms the OpenEdge ODBC driver
// accepts. Booleans become 1/0 and times lose sub-second precision; other
// values pass through. Order and count are preserved.
func FormatArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case bool:
			if v {
				out[i] = int64(1)
			} else {
				out[i] = int64(0)
			}
		case time.Time:
			out[i] = v.Truncate(time.Second)
		default:
			out[i] = a
		}
	}
	return out
}
