package extent

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/oesql/pkg/errors"
)

// ElementType is the OpenEdge data type of the elements of an extent field.
type ElementType int

const (
	Char ElementType = iota
	Int
	Int64
	Dec
	Log
	Date
	DateTime
)

// Text formats used by the OpenEdge SQL engine for extent elements.
const (
	DateLayout     = "01/02/2006"
	DateTimeLayout = "01/02/2006 15:04:05.000"
)

// UnknownValue is how OpenEdge spells the unknown value inside an extent.
const UnknownValue = "?"

// UnknownDate is what an unknown date or datetime element decodes to.
var UnknownDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

type typeSpec struct {
	name    string
	sqlType string
	unknown any // nil: "?" is kept as data
	parse   func(string) (any, error)
	render  func(any) (string, error)
}

var typeSpecs = [...]typeSpec{
	Char:     {name: "char", sqlType: "varchar", parse: parseChar, render: renderChar},
	Int:      {name: "int", sqlType: "int", unknown: int32(0), parse: parseInt, render: renderInt},
	Int64:    {name: "int64", sqlType: "bigint", unknown: int64(0), parse: parseInt64, render: renderInt64},
	Dec:      {name: "dec", sqlType: "decimal", unknown: decimal.Zero, parse: parseDec, render: renderDec},
	Log:      {name: "log", sqlType: "int", unknown: false, parse: parseLog, render: renderLog},
	Date:     {name: "date", sqlType: "date", unknown: UnknownDate, parse: parseDate, render: renderDate},
	DateTime: {name: "datetime", sqlType: "timestamp", unknown: UnknownDate, parse: parseDateTime, render: renderDateTime},
}

// ParseElementType maps an OpenEdge type name to its ElementType. blob, raw
// and clob are not supported; datetime-tz has no SQL text form and is
// rejected as incompatible.
func ParseElementType(s string) (ElementType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, spec := range typeSpecs {
		if spec.name == name {
			return ElementType(i), nil
		}
	}
	reason := "unsupported extent element type"
	if name == "datetime-tz" {
		reason = "datetime-tz extents cannot be read through SQL"
	}
	return Char, errors.Newf(errors.ErrCodeUnknownType, "%s: %q", reason, s).
		WithField("type", s).
		Err()
}

func (t ElementType) valid() bool {
	return t >= 0 && int(t) < len(typeSpecs)
}

func (t ElementType) spec() typeSpec {
	if !t.valid() {
		return typeSpecs[Char]
	}
	return typeSpecs[t]
}

// String returns the OpenEdge type name.
func (t ElementType) String() string {
	if !t.valid() {
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
	return typeSpecs[t].name
}

// SQLType returns the SQL type an element of this type maps to.
func (t ElementType) SQLType() string {
	return t.spec().sqlType
}

// Unknown returns the value an unknown ("?") element decodes to, or nil
// for char, where "?" is kept as text.
func (t ElementType) Unknown() any {
	return t.spec().unknown
}

// ParseElement converts one element's text to its Go value.
func (t ElementType) ParseElement(s string) (any, error) {
	if !t.valid() {
		return nil, t.invalid()
	}
	return t.spec().parse(s)
}

// RenderElement converts a Go value to its element text, unescaped.
func (t ElementType) RenderElement(v any) (string, error) {
	if !t.valid() {
		return "", t.invalid()
	}
	return t.spec().render(v)
}

func (t ElementType) invalid() error {
	return errors.Internal("extent element type out of range").
		WithField("type", int(t)).
		Err()
}

// -----------------------------------------------------------------------------
// parse/render pairs
// -----------------------------------------------------------------------------

func parseChar(s string) (any, error) { return s, nil }

func renderChar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return "", typeMismatch(v, "string")
}

func parseInt(s string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return nil, err
	}
	return int32(n), nil
}

func renderInt(v any) (string, error) {
	n, ok := toInt64(v)
	if !ok {
		return "", typeMismatch(v, "integer")
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return "", fmt.Errorf("%d out of 32-bit range", n)
	}
	return strconv.FormatInt(n, 10), nil
}

func parseInt64(s string) (any, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func renderInt64(v any) (string, error) {
	n, ok := toInt64(v)
	if !ok {
		return "", typeMismatch(v, "integer")
	}
	return strconv.FormatInt(n, 10), nil
}

func parseDec(s string) (any, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

func renderDec(v any) (string, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String(), nil
	case *decimal.Decimal:
		if x != nil {
			return x.String(), nil
		}
	case float64:
		return decimal.NewFromFloat(x).String(), nil
	case float32:
		return decimal.NewFromFloat32(x).String(), nil
	default:
		if n, ok := toInt64(v); ok {
			return strconv.FormatInt(n, 10), nil
		}
	}
	return "", typeMismatch(v, "decimal")
}

// parseLog reads OpenEdge logicals, which SQL returns as integers.
func parseLog(s string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, err
	}
	return n != 0, nil
}

func renderLog(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", typeMismatch(v, "bool")
	}
	if b {
		return "1", nil
	}
	return "0", nil
}

func parseDate(s string) (any, error) {
	t, err := parseOEDateTime(s)
	if err != nil {
		return nil, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func renderDate(v any) (string, error) {
	t, ok := v.(time.Time)
	if !ok {
		return "", typeMismatch(v, "time.Time")
	}
	return t.Format(DateLayout), nil
}

func parseDateTime(s string) (any, error) {
	return parseOEDateTime(s)
}

func renderDateTime(v any) (string, error) {
	t, ok := v.(time.Time)
	if !ok {
		return "", typeMismatch(v, "time.Time")
	}
	return t.Format(DateTimeLayout), nil
}

// parseOEDateTime reads month/day/year with an optional hh:mm:ss[.fff]
// part. The year is taken as written: "01/01/01" is year 1.
func parseOEDateTime(s string) (time.Time, error) {
	datePart, clockPart, _ := strings.Cut(strings.TrimSpace(s), " ")

	fields := strings.Split(datePart, "/")
	if len(fields) != 3 {
		return time.Time{}, fmt.Errorf("date %q is not month/day/year", s)
	}
	var mdy [3]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", s, err)
		}
		mdy[i] = n
	}
	month, day, year := mdy[0], mdy[1], mdy[2]
	if year < 1 || year > 9999 {
		return time.Time{}, fmt.Errorf("date %q: year out of range", s)
	}

	var clock time.Time
	if clockPart = strings.TrimSpace(clockPart); clockPart != "" {
		var err error
		clock, err = time.Parse("15:04:05.999999999", clockPart)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", s, err)
		}
	}

	t := time.Date(year, time.Month(month), day,
		clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("date %q does not exist", s)
	}
	return t, nil
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), true
		}
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), true
		}
	}
	return 0, false
}

func typeMismatch(v any, want string) error {
	return fmt.Errorf("got %T, want %s", v, want)
}
