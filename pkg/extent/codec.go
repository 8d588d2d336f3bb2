// Package extent converts OpenEdge extent (fixed-capacity array) columns to
// and from typed Go slices.
//
// Through SQL an extent column reads as one string: elements joined by ';'.
// In character extents a literal ';' is written '~;' and a literal '~' is
// written '~~'. Other element types never contain either character.
// An element reading '?' is the OpenEdge unknown value; non-character types
// map it to a fixed default, character extents keep the '?' text.
package extent

import (
	"fmt"
	"strings"

	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
)

const (
	Separator  = ';'
	EscapeMark = '~'
)

var escaper = strings.NewReplacer("~", "~~", ";", "~;")

// Escape escapes one element for inclusion in an extent string.
func Escape(s string) string {
	return escaper.Replace(s)
}

// SplitEscaped splits a character extent string into its unescaped
// elements. It scans left to right: '~' takes the next character literally
// and an unescaped ';' ends an element. A trailing lone '~' is kept.
func SplitEscaped(s string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == EscapeMark && i+1 < len(s) && (s[i+1] == EscapeMark || s[i+1] == Separator):
			cur.WriteByte(s[i+1])
			i++
		case c == Separator:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, cur.String())
}

// Field describes one extent column: its name, element type and capacity.
// A Field is immutable and safe for concurrent use.
type Field struct {
	name    string
	typ     ElementType
	extents int
}

// NewField creates a Field holding at most extents elements.
func NewField(name string, typ ElementType, extents int) (*Field, error) {
	if extents <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidCapacity, "extent field %s needs a positive capacity, got %d", name, extents).
			WithField("field", name).
			Err()
	}
	if !typ.valid() {
		return nil, errors.Newf(errors.ErrCodeUnknownType, "extent field %s has invalid element type %d", name, int(typ)).
			WithField("field", name).
			Err()
	}
	return &Field{name: name, typ: typ, extents: extents}, nil
}

func (f *Field) Name() string      { return f.name }
func (f *Field) Type() ElementType { return f.typ }
func (f *Field) Extents() int      { return f.extents }

// DBType returns the SQL type of the field's elements.
func (f *Field) DBType() string { return f.typ.SQLType() }

// Decode parses an extent string. The empty string is an empty extent.
func (f *Field) Decode(s string) ([]any, error) {
	if s == "" {
		return []any{}, nil
	}

	var raw []string
	if f.typ == Char {
		raw = SplitEscaped(s)
	} else {
		raw = strings.Split(s, string(Separator))
	}
	if len(raw) > f.extents {
		return nil, f.overflow(len(raw), "extent.Decode")
	}

	spec := f.typ.spec()
	out := make([]any, len(raw))
	for i, elem := range raw {
		if spec.unknown != nil && strings.TrimSpace(elem) == UnknownValue {
			out[i] = spec.unknown
			continue
		}
		v, err := spec.parse(elem)
		if err != nil {
			return nil, f.conversion(elem, i, err, "extent.Decode")
		}
		out[i] = v
	}
	return out, nil
}

// DecodeValue accepts what a driver or caller may hold for the column: nil,
// a string, bytes, or an already decoded slice.
func (f *Field) DecodeValue(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return []any{}, nil
	case string:
		return f.Decode(x)
	case []byte:
		return f.Decode(string(x))
	case []any:
		if len(x) > f.extents {
			return nil, f.overflow(len(x), "extent.DecodeValue")
		}
		return append([]any{}, x...), nil
	case []string:
		if len(x) > f.extents {
			return nil, f.overflow(len(x), "extent.DecodeValue")
		}
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	}
	return nil, errors.Newf(errors.ErrCodeConversion, "cannot decode %T into extent field %s", v, f.name).
		WithField("field", f.name).
		WithField("type", f.typ.String()).
		WithOp("extent.DecodeValue").
		Err()
}

// Encode renders values as an extent string.
func (f *Field) Encode(values []any) (string, error) {
	if len(values) > f.extents {
		return "", f.overflow(len(values), "extent.Encode")
	}

	parts := make([]string, len(values))
	for i, v := range values {
		s, err := f.typ.RenderElement(v)
		if err != nil {
			return "", f.conversion(describe(v), i, err, "extent.Encode")
		}
		parts[i] = Escape(s)
	}
	return strings.Join(parts, string(Separator)), nil
}

func (f *Field) overflow(count int, op string) error {
	err := errors.ExtentOverflow(f.name, count, f.extents).WithOp(op).Err()
	log.Default().Codec().Debug("extent overflow", "field", f.name, "count", count, "capacity", f.extents)
	return err
}

func (f *Field) conversion(value string, index int, cause error, op string) error {
	err := errors.Conversion(f.name, f.typ.String(), value, index, cause).WithOp(op).Err()
	log.Default().Codec().Debug("extent conversion failed", "field", f.name, "index", index, "error", cause)
	return err
}

func describe(v any) string {
	if s, err := renderChar(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
