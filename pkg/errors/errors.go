// Package errors provides structured error handling for oesql.
//
// Every error raised by the module is an *Error carrying a numeric code, a
// message, optional context fields and an optional cause. Codes are grouped
// by the hundreds digit:
//   - 1xxx: Configuration errors
//   - 2xxx: Extent data errors (conversion, overflow)
//   - 3xxx: Statement errors
//   - 4xxx: Execution errors
//   - 5xxx: Journal/storage errors
//   - 6xxx: Script translation errors
//   - 9xxx: Internal errors
//
// Unrecognised SQL is not an error anywhere in this module; the rewriter
// passes it through.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Code is a numeric error code for programmatic handling.
type Code int

// Error codes by category
const (
	// Configuration errors (1xxx)
	ErrCodeConfigInvalid    Code = 1001
	ErrCodeConfigMissing    Code = 1002
	ErrCodeConfigParse      Code = 1003
	ErrCodeConfigValidation Code = 1004

	// Extent data errors (2xxx)
	ErrCodeConversion      Code = 2001
	ErrCodeExtentOverflow  Code = 2002
	ErrCodeUnknownType     Code = 2003
	ErrCodeInvalidCapacity Code = 2004

	// Statement errors (3xxx)
	ErrCodeParamCount   Code = 3001
	ErrCodeInvalidIdent Code = 3002

	// Execution errors (4xxx)
	ErrCodeExecFailed    Code = 4001
	ErrCodeDerivedFailed Code = 4002
	ErrCodeSession       Code = 4003
	ErrCodeSequence      Code = 4004
	ErrCodeIntrospect    Code = 4005
	ErrCodeTxn           Code = 4006

	// Journal/storage errors (5xxx)
	ErrCodeStorageConnect Code = 5001
	ErrCodeStorageQuery   Code = 5002
	ErrCodeStorageExec    Code = 5003

	// Script translation errors (6xxx)
	ErrCodeScriptRead  Code = 6001
	ErrCodeScriptWrite Code = 6002
	ErrCodeWatch       Code = 6003

	// Internal errors (9xxx)
	ErrCodeInternal Code = 9001
)

// String returns the error code as a string.
func (c Code) String() string {
	return fmt.Sprintf("E%04d", int(c))
}

// Category returns the category for this code.
func (c Code) Category() string {
	switch {
	case c >= 1000 && c < 2000:
		return "configuration"
	case c >= 2000 && c < 3000:
		return "data"
	case c >= 3000 && c < 4000:
		return "statement"
	case c >= 4000 && c < 5000:
		return "execution"
	case c >= 5000 && c < 6000:
		return "storage"
	case c >= 6000 && c < 7000:
		return "translate"
	case c >= 9000:
		return "internal"
	default:
		return "unknown"
	}
}

// Severity indicates error severity.
type Severity int

const (
	SeverityWarning  Severity = iota // caller may continue
	SeverityError                    // operation failed
	SeverityCritical                 // invariant broken inside the module
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a structured error with code, context, and optional cause.
type Error struct {
	Code     Code
	Message  string
	Severity Severity

	Fields map[string]interface{}
	Cause  error

	Stack  []Frame
	Time   time.Time
	OpName string // e.g. "extent.Decode", "driver.Exec"
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Code.String())
	buf.WriteString(": ")
	buf.WriteString(e.Message)
	if e.Cause != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Cause.Error())
	}
	return buf.String()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Format implements fmt.Formatter. %+v prints the context fields, the
// operation and the captured stack.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s [%s] %s: %s\n",
				e.Time.Format(time.RFC3339), e.Severity, e.Code, e.Message)
			if e.OpName != "" {
				fmt.Fprintf(f, "  Operation: %s\n", e.OpName)
			}
			if len(e.Fields) > 0 {
				fmt.Fprintf(f, "  Context:\n")
				keys := make([]string, 0, len(e.Fields))
				for k := range e.Fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(f, "    %s: %v\n", k, e.Fields[k])
				}
			}
			if e.Cause != nil {
				fmt.Fprintf(f, "  Caused by: %v\n", e.Cause)
			}
			for _, frame := range e.Stack {
				fmt.Fprintf(f, "    %s\n      %s:%d\n", frame.Function, frame.File, frame.Line)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(f, e.Error())
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	}
}

// Field returns a context field, or nil.
func (e *Error) Field(key string) interface{} {
	if e.Fields == nil {
		return nil
	}
	return e.Fields[key]
}

// Builder helps construct errors fluently.
type Builder struct {
	code     Code
	message  string
	severity Severity
	cause    error
	fields   map[string]interface{}
	op       string
	stack    bool
}

// New starts building a new error with the given code.
func New(code Code, message string) *Builder {
	return &Builder{code: code, message: message, severity: SeverityError}
}

// Newf starts building a new error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Builder {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code Code, message string) *Builder {
	b := New(code, message)
	b.cause = cause
	return b
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(cause error, code Code, format string, args ...interface{}) *Builder {
	return Wrap(cause, code, fmt.Sprintf(format, args...))
}

// Warning sets severity to warning.
func (b *Builder) Warning() *Builder {
	b.severity = SeverityWarning
	return b
}

// Critical sets severity to critical.
func (b *Builder) Critical() *Builder {
	b.severity = SeverityCritical
	return b
}

// WithField adds a context field.
func (b *Builder) WithField(key string, value interface{}) *Builder {
	if b.fields == nil {
		b.fields = make(map[string]interface{})
	}
	b.fields[key] = value
	return b
}

// WithOp sets the operation name.
func (b *Builder) WithOp(op string) *Builder {
	b.op = op
	return b
}

// WithStack captures a stack trace at Build time.
func (b *Builder) WithStack() *Builder {
	b.stack = true
	return b
}

// Build creates the Error.
func (b *Builder) Build() *Error {
	e := &Error{
		Code:     b.code,
		Message:  b.message,
		Severity: b.severity,
		Cause:    b.cause,
		Fields:   b.fields,
		OpName:   b.op,
		Time:     time.Now(),
	}
	if b.stack {
		e.Stack = captureStack(2)
	}
	return e
}

// Err is a shorthand for Build() that returns the error interface.
func (b *Builder) Err() error {
	return b.Build()
}

func captureStack(skip int) []Frame {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []Frame
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, Frame{Function: frame.Function, File: frame.File, Line: frame.Line})
		}
		if !more || len(out) >= 10 {
			break
		}
	}
	return out
}

// Domain constructors

// Conversion reports an extent element that cannot be converted to or from
// its element type.
func Conversion(field, typ, value string, index int, cause error) *Builder {
	return Wrapf(cause, ErrCodeConversion, "cannot convert %q to %s in field %s", value, typ, field).
		WithField("field", field).
		WithField("type", typ).
		WithField("value", value).
		WithField("index", index)
}

// ExtentOverflow reports more elements than the field's declared capacity.
func ExtentOverflow(field string, count, capacity int) *Builder {
	return Newf(ErrCodeExtentOverflow, "field %s holds %d elements, extent capacity is %d", field, count, capacity).
		WithField("field", field).
		WithField("count", count).
		WithField("capacity", capacity)
}

// InvalidInput creates an invalid input error.
func InvalidInput(field, reason string) *Builder {
	return Newf(ErrCodeConfigInvalid, "invalid %s: %s", field, reason).
		WithField("field", field).
		WithField("reason", reason)
}

// Internal creates an internal error for unexpected conditions.
func Internal(msg string) *Builder {
	return New(ErrCodeInternal, msg).Critical().WithStack()
}

// Extraction helpers

// GetCode extracts the error code from an error. Nil yields 0 and foreign
// errors yield ErrCodeInternal.
func GetCode(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetFields extracts context fields from an error.
func GetFields(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsConversion reports whether err is an extent conversion error.
func IsConversion(err error) bool {
	return IsCode(err, ErrCodeConversion)
}

// IsExtentOverflow reports whether err is an extent overflow error.
func IsExtentOverflow(err error) bool {
	return IsCode(err, ErrCodeExtentOverflow)
}

// Standard library compatibility

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join combines multiple errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
