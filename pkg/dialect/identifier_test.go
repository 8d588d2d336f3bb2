package dialect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncation(t *testing.T) {
	long := strings.Repeat("a", 20) + strings.Repeat("b", 20)

	assert.Equal(t, strings.Repeat("a", 20)+strings.Repeat("b", 12), TableName(long))
	assert.Equal(t, strings.Repeat("a", 12)+strings.Repeat("b", 20), ConstraintName(long))
	assert.Equal(t, IndexName(long), ConstraintName(long))
	assert.Equal(t, "short", TableName("short"))
	assert.Equal(t, "", TruncateHead("abc", 0))

	// characters, not bytes
	assert.Equal(t, "ééé", TruncateHead("éééé", 3))
	assert.Equal(t, "éé", TruncateTail("xéé", 2))
}

func TestTruncation_Idempotent(t *testing.T) {
	for _, name := range []string{"x", strings.Repeat("q", 32), strings.Repeat("z", 80)} {
		assert.Equal(t, TableName(name), TableName(TableName(name)))
		assert.Equal(t, ConstraintName(name), ConstraintName(ConstraintName(name)))
		assert.LessOrEqual(t, len(TableName(name)), MaxTableNameLength)
	}
}

func TestSequenceName(t *testing.T) {
	assert.Equal(t, "SEQ_ID_poll", SequenceName("poll"))
	assert.Equal(t, "PUB.SEQ_ID_poll", QualifiedSequenceName("poll"))

	name := SequenceName(strings.Repeat("t", 50))
	assert.Equal(t, MaxIdentifierLength, len(name))
	assert.Equal(t, 25, MaxSequenceTableLength)
}

func TestUniqueIndexName(t *testing.T) {
	assert.Equal(t, "t_1", UniqueIndexName("t", 1))
	assert.Equal(t, strings.Repeat("x", 30)+"_1", UniqueIndexName(strings.Repeat("x", 32), 1))
	assert.Equal(t, strings.Repeat("x", 29)+"_12", UniqueIndexName(strings.Repeat("x", 32), 12))
}

func TestQuoteName(t *testing.T) {
	assert.Equal(t, `"t"`, QuoteName("t"))
	assert.Equal(t, `"t"`, QuoteName(`"t"`))
	assert.Equal(t, `"a""b"`, QuoteName(`a"b`))
}
