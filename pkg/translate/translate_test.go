package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
	"github.com/ha1tch/oesql/pkg/storage"
)

const script = `-- schema for polls
CREATE TABLE "poll" (
    "id" integer,
    "question" varchar(200),
    UNIQUE ("question")
);

INSERT INTO "poll" ("question") VALUES ('a;b');
SELECT * FROM "poll" LIMIT 5;
-- trailing comment only
`

func newTestTranslator(opts ...Option) *Translator {
	return NewTranslator(append([]Option{WithLogger(log.Nop())}, opts...)...)
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"empty", "", nil},
		{"single without terminator", "SELECT 1", []string{"SELECT 1"}},
		{"blank statements dropped", ";; SELECT 1 ;;", []string{"SELECT 1"}},
		{"semicolon in literal", "INSERT INTO t VALUES ('a;b'); SELECT 2", []string{"INSERT INTO t VALUES ('a;b')", "SELECT 2"}},
		{"semicolon in quoted name", `SELECT "x;y" FROM t`, []string{`SELECT "x;y" FROM t`}},
		{"semicolon in comment", "SELECT 1 -- a;b\n; SELECT 2", []string{"SELECT 1 -- a;b", "SELECT 2"}},
		{"comment only dropped", "/* nothing */;\n-- nor this\n", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitStatements(tc.src))
		})
	}
}

func TestTranslateScript(t *testing.T) {
	plans := newTestTranslator().TranslateScript("poll.sql", script)
	require.Len(t, plans, 3)

	create := plans[0]
	assert.Equal(t, "poll.sql", create.Source)
	assert.Equal(t, 0, create.Index)
	assert.Equal(t, "CREATE TABLE", create.Kind)
	assert.Equal(t, `/* schema for polls */ CREATE TABLE "poll" (    "id" integer,    "question" varchar(200))`, create.SQL)
	assert.Equal(t, []string{
		"CREATE SEQUENCE PUB.SEQ_ID_poll START WITH 0, INCREMENT BY 1, MINVALUE 0, NOCYCLE",
		`CREATE UNIQUE INDEX poll_1 ON "poll" ("question" )`,
	}, create.Derived)

	assert.Equal(t, `INSERT INTO "poll" ("question") VALUES ('a;b')`, plans[1].SQL)
	assert.Equal(t, `SELECT TOP 5 * FROM "poll"`, plans[2].SQL)
	assert.Equal(t, 2, plans[2].Index)
}

func TestWritePlans_SQL(t *testing.T) {
	plans := []Plan{
		{Source: "a.sql", SQL: `CREATE TABLE "t" ("id" integer)`, Derived: []string{"CREATE SEQUENCE PUB.SEQ_ID_t START WITH 0, INCREMENT BY 1, MINVALUE 0, NOCYCLE"}},
		{Source: "a.sql", SQL: "SELECT * FROM t LIMIT 1 OFFSET 2", Warnings: []string{"OFFSET not supported"}},
		{Source: "b.sql", SQL: "SELECT 1"},
	}
	var buf bytes.Buffer
	require.NoError(t, WritePlans(&buf, plans, FormatSQL))

	want := "-- source: a.sql\n" +
		`CREATE TABLE "t" ("id" integer);` + "\n" +
		"CREATE SEQUENCE PUB.SEQ_ID_t START WITH 0, INCREMENT BY 1, MINVALUE 0, NOCYCLE;\n" +
		"-- warning: OFFSET not supported\n" +
		"SELECT * FROM t LIMIT 1 OFFSET 2;\n" +
		"\n-- source: b.sql\n" +
		"SELECT 1;\n"
	assert.Equal(t, want, buf.String())
}

func TestWritePlans_JSONAndYAML(t *testing.T) {
	plans := newTestTranslator().TranslateScript("poll.sql", script)

	var buf bytes.Buffer
	require.NoError(t, WritePlans(&buf, plans, FormatJSON))
	var fromJSON []Plan
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, plans, fromJSON)

	buf.Reset()
	require.NoError(t, WritePlans(&buf, plans, FormatYAML))
	var fromYAML []Plan
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, plans, fromYAML)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatSQL, "SQL": FormatSQL, "json": FormatJSON, "yml": FormatYAML, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "poll.oe.sql", OutputName("poll.sql"))
	assert.Equal(t, filepath.Join("sub", "x.oe.sql"), OutputName(filepath.Join("sub", "x.SQL")))
	assert.True(t, IsScript("a.sql"))
	assert.False(t, IsScript("a.oe.sql"))
	assert.False(t, IsScript("a.txt"))
}

func TestTranslateDir(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "poll.sql"), []byte(script), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "q.sql"), []byte("SELECT a FROM t LIMIT 3;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".hidden", "x.sql"), []byte("SELECT 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("SELECT 1"), 0o644))

	journal, err := storage.OpenJournal(storage.DefaultJournalConfig())
	require.NoError(t, err)
	defer journal.Close()

	tr := newTestTranslator(WithConcurrency(2), WithJournal(journal))
	results, err := tr.TranslateDir(context.Background(), src, out)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(out, "poll.oe.sql"), results[0].Output)
	assert.Equal(t, 3, results[0].Statements)
	assert.Equal(t, filepath.Join(out, "sub", "q.oe.sql"), results[1].Output)

	got, err := os.ReadFile(filepath.Join(out, "sub", "q.oe.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "SELECT TOP 3 a FROM t;\n")

	n, err := journal.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestTranslateFile_Missing(t *testing.T) {
	_, err := newTestTranslator().TranslateFile(context.Background(), filepath.Join(t.TempDir(), "none.sql"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeScriptRead))
}

func TestWatcher_TranslatesAndRemoves(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	var (
		mu         sync.Mutex
		translated []FileResult
		removed    []string
	)
	w, err := NewWatcher(src, out, newTestTranslator(), log.Nop(),
		WithDebounceDelay(20*time.Millisecond),
		WithOnTranslate(func(res FileResult) {
			mu.Lock()
			translated = append(translated, res)
			mu.Unlock()
		}),
		WithOnRemove(func(path string) {
			mu.Lock()
			removed = append(removed, path)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()
	assert.True(t, w.IsRunning())

	path := filepath.Join(src, "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT a FROM t LIMIT 2"), 0o644))

	outPath := filepath.Join(out, "q.oe.sql")
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(outPath)
		return err == nil && string(b) == "-- source: "+path+"\nSELECT TOP 2 a FROM t;\n"
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.NotEmpty(t, translated)
	mu.Unlock()

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		_, err := os.Stat(outPath)
		return os.IsNotExist(err)
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	mu.Lock()
	assert.Contains(t, removed, path)
	mu.Unlock()
}
