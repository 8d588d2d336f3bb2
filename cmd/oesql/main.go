package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ha1tch/oesql/pkg/config"
	"github.com/ha1tch/oesql/pkg/log"
	"github.com/ha1tch/oesql/pkg/storage"
	"github.com/ha1tch/oesql/pkg/translate"
	"github.com/ha1tch/oesql/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("oesql", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configFile  = fs.StringP("config", "c", "", "Configuration file path")
		dir         = fs.StringP("dir", "d", "", "Translate every *.sql file under this directory")
		out         = fs.StringP("out", "o", "", "Output file, or output directory with --dir")
		watch       = fs.BoolP("watch", "w", false, "Keep translating files under --dir as they change")
		format      = fs.String("format", "", "Output format: sql, json, yaml")
		journalPath = fs.String("journal", "", "Record translated statements in this SQLite file")
		concurrency = fs.Int("concurrency", 0, "Files translated at once with --dir")
		logLevel    = fs.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = fs.String("log-format", "", "Log format (text, json)")
		showHelp    = fs.BoolP("help", "h", false, "Show help")
		showVersion = fs.BoolP("version", "v", false, "Show version")
	)
	fs.Usage = func() {
		printUsage(stderr)
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showHelp {
		printUsage(stdout)
		return 0
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.Full())
		return 0
	}
	if *watch && *dir == "" {
		fmt.Fprintln(stderr, "error: --watch requires --dir")
		return 2
	}
	if *dir != "" && fs.NArg() > 0 {
		fmt.Fprintln(stderr, "error: --dir and file arguments are mutually exclusive")
		return 2
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "error loading config: %v\n", err)
		return 1
	}

	// Flags override the config file.
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = *logFormat
	}
	if fs.Changed("format") {
		cfg.Translate.Format = *format
	}
	if fs.Changed("concurrency") {
		cfg.Translate.Concurrency = *concurrency
	}
	if fs.Changed("journal") {
		cfg.Journal.Path = *journalPath
	}
	if *dir != "" && fs.Changed("out") {
		cfg.Translate.OutDir = *out
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	lc := cfg.LoggerConfig()
	lc.Output = stderr
	logger := log.New(lc)
	log.SetDefault(logger)

	opts := []translate.Option{
		translate.WithLogger(logger),
		translate.WithFormat(cfg.TranslateFormat()),
		translate.WithConcurrency(cfg.Translate.Concurrency),
	}
	if jc, ok := cfg.JournalConfig(); ok {
		journal, err := storage.OpenJournal(jc)
		if err != nil {
			fmt.Fprintf(stderr, "error opening journal: %v\n", err)
			return 1
		}
		defer journal.Close()
		opts = append(opts, translate.WithJournal(journal))
	}
	tr := translate.NewTranslator(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dir != "" {
		return runDir(ctx, tr, logger, *dir, cfg.Translate.OutDir, *watch, stdout, stderr)
	}
	return runFiles(ctx, tr, fs.Args(), *out, stdin, stdout, stderr)
}

func runDir(ctx context.Context, tr *translate.Translator, logger *log.Logger, dir, outDir string, watch bool, stdout, stderr io.Writer) int {
	results, err := tr.TranslateDir(ctx, dir, outDir)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	for _, r := range results {
		fmt.Fprintf(stdout, "%s -> %s (%d statements, %d warnings)\n", r.Source, r.Output, r.Statements, r.Warnings)
	}
	if !watch {
		return 0
	}

	w, err := translate.NewWatcher(dir, outDir, tr, logger,
		translate.WithOnTranslate(func(r translate.FileResult) {
			fmt.Fprintf(stdout, "%s -> %s (%d statements, %d warnings)\n", r.Source, r.Output, r.Statements, r.Warnings)
		}),
	)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "watching %s (Ctrl-C to stop)\n", dir)
	if err := w.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runFiles(ctx context.Context, tr *translate.Translator, files []string, out string, stdin io.Reader, stdout, stderr io.Writer) int {
	var plans []translate.Plan
	if len(files) == 0 {
		src, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "error reading stdin: %v\n", err)
			return 1
		}
		plans = tr.TranslateScript("", string(src))
	}
	for _, path := range files {
		p, err := tr.TranslateFile(ctx, path)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		plans = append(plans, p...)
	}

	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	if err := translate.WritePlans(w, plans, tr.Format()); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `oesql - rewrite SQL scripts for OpenEdge

Usage:
  oesql [options] [file...]

Reads the given files, or stdin when none are given, and prints each
statement rewritten for OpenEdge followed by the statements it implies
(id sequences, unique indexes).

Options:
  -c, --config <file>      Configuration file (YAML, TOML or JSON)
  -d, --dir <path>         Translate every *.sql file under a directory
  -o, --out <path>         Output file; with --dir, output directory
  -w, --watch              With --dir, keep translating files as they change
  --format <name>          Output format: sql, json, yaml (default: sql)
  --journal <file>         Record translated statements in a SQLite journal
  --concurrency <n>        Files translated at once with --dir (default: 4)

Logging:
  --log-level <level>      Log level: debug, info, warn, error (default: info)
  --log-format <format>    Log format: text, json (default: text)

General:
  -h, --help               Show help
  -v, --version            Show version

Environment:
  OESQL_<SECTION>_<KEY> overrides a config value, e.g. OESQL_SESSION_SCHEMA.

Examples:
  # Rewrite a migration script
  oesql migrations/0001_initial.sql

  # Translate a directory into build/, then watch it
  oesql -d sql -o build -w

  # Show plans as YAML
  echo 'SELECT * FROM t LIMIT 5' | oesql --format yaml

Exit Codes:
  0  Success
  1  Runtime error
  2  CLI usage error
`)
}
