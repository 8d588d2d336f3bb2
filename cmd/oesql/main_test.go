package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/oesql/pkg/translate"
	"github.com/ha1tch/oesql/pkg/version"
)

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Stdin(t *testing.T) {
	code, out, _ := runCLI(t, `CREATE TABLE "t" ("id" integer); SELECT * FROM "t" LIMIT 3;`, "--log-level", "off")
	require.Equal(t, 0, code)
	assert.Equal(t,
		`CREATE TABLE "t" ("id" integer);`+"\n"+
			"CREATE SEQUENCE PUB.SEQ_ID_t START WITH 0, INCREMENT BY 1, MINVALUE 0, NOCYCLE;\n"+
			`SELECT TOP 3 * FROM "t";`+"\n",
		out)
}

func TestRun_JSONFormat(t *testing.T) {
	code, out, _ := runCLI(t, "SELECT a FROM t LIMIT 1 OFFSET 5", "--format", "json", "--log-level", "off")
	require.Equal(t, 0, code)

	var plans []translate.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plans))
	require.Len(t, plans, 1)
	assert.Equal(t, "SELECT a FROM t LIMIT 1 OFFSET 5", plans[0].SQL)
	assert.Len(t, plans[0].Warnings, 1)
}

func TestRun_FilesToOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.sql")
	outPath := filepath.Join(dir, "a.out")
	require.NoError(t, os.WriteFile(in, []byte("DELETE FROM t;"), 0o644))

	code, _, _ := runCLI(t, "", "-o", outPath, "--log-level", "off", in)
	require.Equal(t, 0, code)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "-- source: "+in+"\nDELETE FROM t;\n", string(got))
}

func TestRun_Dir(t *testing.T) {
	src := t.TempDir()
	outDir := t.TempDir()
	journal := filepath.Join(t.TempDir(), "j.db")
	require.NoError(t, os.WriteFile(filepath.Join(src, "q.sql"), []byte("SELECT a FROM t LIMIT 2;"), 0o644))

	code, out, errOut := runCLI(t, "", "-d", src, "-o", outDir, "--journal", journal, "--concurrency", "1", "--log-level", "off")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "(1 statements, 0 warnings)")

	_, err := os.Stat(filepath.Join(outDir, "q.oe.sql"))
	assert.NoError(t, err)
	_, err = os.Stat(journal)
	assert.NoError(t, err)
}

func TestRun_ConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "oesql.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: off\ntranslate:\n  format: yaml\n"), 0o644))

	code, out, _ := runCLI(t, "SELECT 1", "-c", cfg)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "sql: SELECT 1")
}

func TestRun_HelpAndVersion(t *testing.T) {
	code, out, _ := runCLI(t, "", "-h")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Usage:")

	code, out, _ = runCLI(t, "", "--version")
	assert.Equal(t, 0, code)
	assert.Equal(t, version.Full()+"\n", out)
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		{"--no-such-flag"},
		{"-w"},
		{"-d", ".", "file.sql"},
		{"--format", "xml"},
		{"--concurrency", "0"},
	}
	for _, args := range tests {
		code, _, _ := runCLI(t, "", args...)
		assert.Equal(t, 2, code, "%v", args)
	}
}

func TestRun_RuntimeErrors(t *testing.T) {
	code, _, errOut := runCLI(t, "", "--log-level", "off", filepath.Join(t.TempDir(), "missing.sql"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "error:")

	code, _, _ = runCLI(t, "", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
}
