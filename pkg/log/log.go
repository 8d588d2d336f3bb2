// Package log provides structured logging for oesql.
//
// Entries are grouped by category so a deployment can, for example, trace
// every rewrite at debug level while keeping execution logging at info:
//   - System: configuration, startup, journal lifecycle
//   - Rewrite: statement classification and dialect rewriting
//   - Execution: statements sent to the database
//   - Codec: extent decode/encode failures
//   - Audit: schema-changing statements (DDL) that were executed
//   - Performance: timings
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents a logging severity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// ParseLevel parses a level string.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "OFF", "NONE":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Category identifies the logging category.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryRewrite     Category = "rewrite"
	CategoryExecution   Category = "execution"
	CategoryCodec       Category = "codec"
	CategoryAudit       Category = "audit"
	CategoryPerformance Category = "performance"
)

var allCategories = []Category{
	CategorySystem,
	CategoryRewrite,
	CategoryExecution,
	CategoryCodec,
	CategoryAudit,
	CategoryPerformance,
}

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Entry represents a single log entry.
type Entry struct {
	Time      time.Time              `json:"time"`
	Level     Level                  `json:"level"`
	Category  Category               `json:"category"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	ErrorStr  string                 `json:"error,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Logger writes category-filtered entries to one writer.
type Logger struct {
	mu            sync.RWMutex
	levels        map[Category]Level
	out           io.Writer
	format        Format
	includeCaller bool

	writeMu sync.Mutex
	logged  int64
}

// Config holds logger configuration.
type Config struct {
	DefaultLevel   Level
	CategoryLevels map[Category]Level
	Output         io.Writer // os.Stderr if nil
	Format         Format
	IncludeCaller  bool
}

// DefaultConfig returns the default configuration: info level, text, stderr.
func DefaultConfig() Config {
	return Config{
		DefaultLevel: LevelInfo,
		Output:       os.Stderr,
		Format:       FormatText,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	l := &Logger{
		levels:        make(map[Category]Level, len(allCategories)),
		out:           cfg.Output,
		format:        cfg.Format,
		includeCaller: cfg.IncludeCaller,
	}
	for _, cat := range allCategories {
		l.levels[cat] = cfg.DefaultLevel
	}
	for cat, level := range cfg.CategoryLevels {
		l.levels[cat] = level
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Config{DefaultLevel: LevelOff, Output: io.Discard})
}

// SetLevel sets the log level for a category.
func (l *Logger) SetLevel(cat Category, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[cat] = level
}

// Enabled reports whether level is logged for cat.
func (l *Logger) Enabled(cat Category, level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	catLevel, ok := l.levels[cat]
	if !ok {
		catLevel = LevelInfo
	}
	return level != LevelOff && level >= catLevel
}

// Logged returns the number of entries written.
func (l *Logger) Logged() int64 {
	return atomic.LoadInt64(&l.logged)
}

func (l *Logger) Debug(cat Category, msg string, fields ...interface{}) {
	l.log(context.Background(), LevelDebug, cat, msg, nil, fields)
}

func (l *Logger) Info(cat Category, msg string, fields ...interface{}) {
	l.log(context.Background(), LevelInfo, cat, msg, nil, fields)
}

func (l *Logger) Warn(cat Category, msg string, fields ...interface{}) {
	l.log(context.Background(), LevelWarn, cat, msg, nil, fields)
}

func (l *Logger) Error(cat Category, msg string, err error, fields ...interface{}) {
	l.log(context.Background(), LevelError, cat, msg, err, fields)
}

// System returns a category logger for system events.
func (l *Logger) System() *CategoryLogger { return l.For(CategorySystem) }

// Rewrite returns a category logger for dialect rewriting.
func (l *Logger) Rewrite() *CategoryLogger { return l.For(CategoryRewrite) }

// Execution returns a category logger for statement execution.
func (l *Logger) Execution() *CategoryLogger { return l.For(CategoryExecution) }

// Codec returns a category logger for extent conversion.
func (l *Logger) Codec() *CategoryLogger { return l.For(CategoryCodec) }

// Audit returns a category logger for schema changes.
func (l *Logger) Audit() *CategoryLogger { return l.For(CategoryAudit) }

// Performance returns a category logger for timings.
func (l *Logger) Performance() *CategoryLogger { return l.For(CategoryPerformance) }

// For returns a category logger for cat.
func (l *Logger) For(cat Category) *CategoryLogger {
	return &CategoryLogger{logger: l, category: cat}
}

func (l *Logger) log(ctx context.Context, level Level, cat Category, msg string, err error, fields []interface{}) {
	if !l.Enabled(cat, level) {
		return
	}

	entry := &Entry{
		Time:      time.Now(),
		Level:     level,
		Category:  cat,
		Message:   msg,
		RequestID: RequestIDFromContext(ctx),
	}
	if err != nil {
		entry.ErrorStr = err.Error()
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			if key, ok := fields[i].(string); ok {
				entry.Fields[key] = fields[i+1]
			}
		}
	}

	l.mu.RLock()
	format, out, withCaller := l.format, l.out, l.includeCaller
	l.mu.RUnlock()

	if withCaller {
		if _, file, line, ok := runtime.Caller(3); ok {
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	var line []byte
	if format == FormatJSON {
		data, _ := json.Marshal(entry)
		line = append(data, '\n')
	} else {
		line = []byte(formatText(entry))
	}

	l.writeMu.Lock()
	out.Write(line)
	l.writeMu.Unlock()
	atomic.AddInt64(&l.logged, 1)
}

func formatText(entry *Entry) string {
	var buf strings.Builder
	buf.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&buf, " %-5s [%s] ", entry.Level, entry.Category)
	if entry.Caller != "" {
		buf.WriteString(entry.Caller)
		buf.WriteByte(' ')
	}
	buf.WriteString(entry.Message)
	if entry.RequestID != "" {
		buf.WriteString(" request_id=")
		buf.WriteString(entry.RequestID)
	}
	if entry.ErrorStr != "" {
		fmt.Fprintf(&buf, " error=%q", entry.ErrorStr)
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%v", k, entry.Fields[k])
	}
	buf.WriteByte('\n')
	return buf.String()
}

// CategoryLogger is a logger bound to a specific category.
type CategoryLogger struct {
	logger   *Logger
	category Category
	ctx      context.Context
	fields   []interface{}
}

func (cl *CategoryLogger) context() context.Context {
	if cl.ctx == nil {
		return context.Background()
	}
	return cl.ctx
}

func (cl *CategoryLogger) merged(extra []interface{}) []interface{} {
	if len(cl.fields) == 0 {
		return extra
	}
	out := make([]interface{}, 0, len(cl.fields)+len(extra))
	out = append(out, cl.fields...)
	return append(out, extra...)
}

func (cl *CategoryLogger) Debug(msg string, fields ...interface{}) {
	cl.logger.log(cl.context(), LevelDebug, cl.category, msg, nil, cl.merged(fields))
}

func (cl *CategoryLogger) Info(msg string, fields ...interface{}) {
	cl.logger.log(cl.context(), LevelInfo, cl.category, msg, nil, cl.merged(fields))
}

func (cl *CategoryLogger) Warn(msg string, fields ...interface{}) {
	cl.logger.log(cl.context(), LevelWarn, cl.category, msg, nil, cl.merged(fields))
}

func (cl *CategoryLogger) Error(msg string, err error, fields ...interface{}) {
	cl.logger.log(cl.context(), LevelError, cl.category, msg, err, cl.merged(fields))
}

// WithFields returns a copy with preset fields.
func (cl *CategoryLogger) WithFields(fields ...interface{}) *CategoryLogger {
	return &CategoryLogger{
		logger:   cl.logger,
		category: cl.category,
		ctx:      cl.ctx,
		fields:   cl.merged(fields),
	}
}

// WithContext returns a copy that stamps entries with the request ID
// carried by ctx.
func (cl *CategoryLogger) WithContext(ctx context.Context) *CategoryLogger {
	return &CategoryLogger{
		logger:   cl.logger,
		category: cl.category,
		ctx:      ctx,
		fields:   cl.fields,
	}
}

type contextKey int

const (
	contextKeyRequestID contextKey = iota
	contextKeyLogger
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, logger)
}

// FromContext retrieves the logger from context, or returns the default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKeyLogger).(*Logger); ok {
		return l
	}
	return Default()
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the default logger instance.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault sets the default logger instance.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}
