package errors

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := Wrap(io.EOF, ErrCodeStorageQuery, "failed to read journal").Err()
	assert.Equal(t, "E5002: failed to read journal: EOF", err.Error())
	assert.True(t, Is(err, io.EOF))
	assert.Equal(t, "storage", ErrCodeStorageQuery.Category())
}

func TestBuilder_Fields(t *testing.T) {
	e := Newf(ErrCodeParamCount, "statement has %d placeholders, got %d arguments", 2, 1).
		WithField("expected", 2).
		WithField("got", 1).
		WithOp("driver.Exec").
		Warning().
		Build()

	assert.Equal(t, ErrCodeParamCount, e.Code)
	assert.Equal(t, SeverityWarning, e.Severity)
	assert.Equal(t, 2, e.Field("expected"))
	assert.Nil(t, e.Field("missing"))

	verbose := fmt.Sprintf("%+v", e)
	assert.Contains(t, verbose, "Operation: driver.Exec")
	assert.Contains(t, verbose, "expected: 2")
}

func TestDomainConstructors(t *testing.T) {
	conv := Conversion("qty", "int", "x", 3, fmt.Errorf("bad digit")).Err()
	assert.True(t, IsConversion(conv))
	assert.False(t, IsExtentOverflow(conv))
	assert.Equal(t, "data", GetCode(conv).Category())
	assert.Equal(t, 3, GetFields(conv)["index"])

	over := ExtentOverflow("qty", 5, 3).Err()
	assert.True(t, IsExtentOverflow(over))
	assert.Equal(t, "E2002: field qty holds 5 elements, extent capacity is 3", over.Error())

	internal := Internal("unreachable").Build()
	assert.Equal(t, SeverityCritical, internal.Severity)
	require.NotEmpty(t, internal.Stack)
	assert.True(t, strings.Contains(internal.Stack[0].Function, "TestDomainConstructors"))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, Code(0), GetCode(nil))
	assert.Equal(t, ErrCodeInternal, GetCode(io.EOF))

	inner := New(ErrCodeSequence, "NEXTVAL failed").Err()
	outer := fmt.Errorf("insert: %w", inner)
	assert.True(t, IsCode(outer, ErrCodeSequence))
}
