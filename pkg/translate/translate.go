// Package translate converts SQL scripts to OpenEdge SQL offline: each
// statement is rewritten and the statements derived from it are listed
// after it, ready to be run by any OpenEdge client.
package translate

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ha1tch/oesql/pkg/dialect"
	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
	"github.com/ha1tch/oesql/pkg/storage"
)

// OutputSuffix replaces ".sql" in translated file names.
const OutputSuffix = ".oe.sql"

// Plan is one translated statement.
type Plan struct {
	Source   string   `json:"source" yaml:"source"`
	Index    int      `json:"index" yaml:"index"`
	Kind     string   `json:"kind" yaml:"kind"`
	Original string   `json:"original" yaml:"original"`
	SQL      string   `json:"sql" yaml:"sql"`
	Derived  []string `json:"derived,omitempty" yaml:"derived,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Statements returns the plan's SQL followed by its derived statements.
func (p Plan) Statements() []string {
	return append([]string{p.SQL}, p.Derived...)
}

// FileResult summarises one translated file.
type FileResult struct {
	Source     string
	Output     string
	Statements int
	Warnings   int
}

// Journal receives a record of every translated statement.
type Journal interface {
	Record(ctx context.Context, e storage.Entry) error
}

// Option configures a Translator.
type Option func(*Translator)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRewriter replaces the statement rewriter.
func WithRewriter(rw *dialect.Rewriter) Option {
	return func(t *Translator) {
		if rw != nil {
			t.rw = rw
		}
	}
}

// WithJournal records translated statements in j.
func WithJournal(j Journal) Option {
	return func(t *Translator) {
		t.journal = j
	}
}

// WithFormat sets the output format for translated files.
func WithFormat(f Format) Option {
	return func(t *Translator) {
		t.format = f
	}
}

// WithConcurrency bounds the number of files TranslateDir works on at once.
func WithConcurrency(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// Translator rewrites scripts. It is safe for concurrent use.
type Translator struct {
	rw          *dialect.Rewriter
	logger      *log.Logger
	journal     Journal
	format      Format
	concurrency int
}

// NewTranslator creates a Translator writing SQL output four files at a time.
func NewTranslator(opts ...Option) *Translator {
	t := &Translator{
		logger:      log.Default(),
		format:      FormatSQL,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rw == nil {
		t.rw = dialect.NewRewriter(dialect.WithLogger(t.logger))
	}
	return t
}

// Format returns the output format.
func (t *Translator) Format() Format { return t.format }

// TranslateScript rewrites every statement in src. name labels the plans.
func (t *Translator) TranslateScript(name, src string) []Plan {
	stmts := SplitStatements(src)
	plans := make([]Plan, 0, len(stmts))
	for i, stmt := range stmts {
		res := t.rw.Rewrite(stmt, nil)
		plans = append(plans, Plan{
			Source:   name,
			Index:    i,
			Kind:     res.Kind.String(),
			Original: stmt,
			SQL:      res.SQL,
			Derived:  res.Derived,
			Warnings: res.Warnings,
		})
	}
	return plans
}

// TranslateFile reads and translates one script.
func (t *Translator) TranslateFile(ctx context.Context, path string) ([]Plan, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeScriptRead, "failed to read script").
			WithField("path", path).Err()
	}
	start := time.Now()
	plans := t.TranslateScript(path, string(src))

	t.logger.Rewrite().WithContext(ctx).Info("script translated",
		"path", path,
		"statements", len(plans),
		"duration_ms", time.Since(start).Milliseconds())
	t.record(ctx, plans)
	return plans, nil
}

// TranslateDir translates every *.sql file under dir into outDir, keeping
// relative paths and replacing ".sql" with OutputSuffix. An empty outDir
// writes next to the sources. Files already ending in OutputSuffix are
// skipped.
func (t *Translator) TranslateDir(ctx context.Context, dir, outDir string) ([]FileResult, error) {
	if outDir == "" {
		outDir = dir
	}
	files, err := ScriptFiles(dir)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeScriptRead, "bad script path").
					WithField("path", path).Err()
			}
			res, err := t.TranslateTo(ctx, path, filepath.Join(outDir, OutputName(rel)))
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// TranslateTo translates the script at path and writes the result to out.
func (t *Translator) TranslateTo(ctx context.Context, path, out string) (FileResult, error) {
	plans, err := t.TranslateFile(ctx, path)
	if err != nil {
		return FileResult{}, err
	}
	if err := writeFile(out, plans, t.format); err != nil {
		return FileResult{}, err
	}
	res := FileResult{Source: path, Output: out, Statements: len(plans)}
	for _, p := range plans {
		res.Warnings += len(p.Warnings)
	}
	return res, nil
}

// ScriptFiles lists the *.sql files under dir in lexical order, skipping
// hidden directories and translated output.
func ScriptFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsScript(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeScriptRead, "failed to list scripts").
			WithField("dir", dir).Err()
	}
	sort.Strings(files)
	return files, nil
}

// IsScript reports whether path names a source script.
func IsScript(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".sql") && !strings.HasSuffix(lower, OutputSuffix)
}

// OutputName maps a script name to its translated name.
func OutputName(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".sql") {
		path = path[:len(path)-len(".sql")]
	}
	return path + OutputSuffix
}

func writeFile(path string, plans []Plan, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeScriptWrite, "failed to create output directory").
			WithField("path", path).Err()
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeScriptWrite, "failed to create output file").
			WithField("path", path).Err()
	}
	if err := WritePlans(f, plans, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeScriptWrite, "failed to write output file").
			WithField("path", path).Err()
	}
	return nil
}

func (t *Translator) record(ctx context.Context, plans []Plan) {
	if t.journal == nil {
		return
	}
	for _, p := range plans {
		err := t.journal.Record(ctx, storage.Entry{
			Source:    p.Source,
			Kind:      p.Kind,
			Original:  p.Original,
			Rewritten: p.SQL,
			Derived:   p.Derived,
			Error:     strings.Join(p.Warnings, "; "),
		})
		if err != nil {
			t.logger.System().WithContext(ctx).Warn("journal write failed", "error", err.Error())
			return
		}
	}
}
