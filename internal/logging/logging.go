// Package logging provides the process-wide structured event sink consumed
// by every other core component: one NDJSON line per record, a correlation
// id threaded through a logical operation, and a mutable global metadata
// map merged into every record. Internally it is a *slog.Logger over a
// custom slog.Handler (ndjsonHandler) that renders the fixed key order and
// merge semantics §6 requires, the way the teacher's pkg/logger/logger.go
// builds slog.New(handler) over a chosen slog.Handler rather than hand-
// rolling its own formatter.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the severity of a log record.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String renders the level the way it appears in a rendered record (§6).
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
	default:
		return "INFO"
	}
}

// slogLevel maps a Level onto the equivalent slog.Level.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// levelFromSlog is the inverse of Level.slogLevel, used when rendering a
// slog.Record produced by the handler's own *slog.Logger.
func levelFromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}

// ParseLevel parses a level name case-insensitively, defaulting to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures a Logger. File output is exclusive of console output:
// when Filename is set, console writing is skipped.
type Config struct {
	MinLevel Level
	Module   string

	// Filename, when non-empty, routes records through a rotating file
	// writer instead of the console.
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Console overrides the destination when Filename is empty. Defaults
	// to os.Stdout.
	Console io.Writer
}

// OpenFileError is returned when the configured file target cannot be
// opened. The logger itself never returns this to callers of New — it
// degrades to console and logs the fact, per §4.1.
type OpenFileError struct {
	Path string
	Err  error
}

func (e *OpenFileError) Error() string {
	return fmt.Sprintf("logging: open file %q: %v", e.Path, e.Err)
}

func (e *OpenFileError) Unwrap() error { return e.Err }

// sharedState holds the mutable pieces a Logger and every Logger derived
// from it via Module share: the severity floor, the correlation id, and
// the global metadata map. It is guarded independently of the write path
// so SetCorrelationID/SetGlobalField never contend with an in-flight
// write to a slow sink.
type sharedState struct {
	mu            sync.Mutex
	minLevel      slog.Level
	correlationID string
	globalFields  map[string]string
}

func (s *sharedState) snapshot() (slog.Level, string, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := make(map[string]string, len(s.globalFields))
	for k, v := range s.globalFields {
		fields[k] = v
	}
	return s.minLevel, s.correlationID, fields
}

// syncWriter serializes writes to the underlying sink. This is the only
// lock held across an actual write; formatting happens before it is
// acquired.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type syncer interface{ Sync() error }

func (s *syncWriter) Sync() error {
	sy, ok := s.w.(syncer)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sy.Sync()
}

// ndjsonHandler is a slog.Handler that renders every record as exactly one
// NDJSON object terminated by a newline, in the fixed key order §6
// requires: timestamp, level, message, module, thread_id, correlation_id,
// then user fields sorted by key. Global metadata is merged in first so
// entry-scoped attributes (from the record itself, or bound via WithAttrs)
// win on collision.
type ndjsonHandler struct {
	writer *syncWriter
	state  *sharedState
	module string
	attrs  []slog.Attr
	groups []string
}

func (h *ndjsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	min, _, _ := h.state.snapshot()
	return level >= min
}

func (h *ndjsonHandler) Handle(_ context.Context, r slog.Record) error {
	_, corrID, fields := h.state.snapshot()

	for _, a := range h.attrs {
		setAttr(fields, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		setAttr(fields, h.groups, a)
		return true
	})

	line := render(record{
		Timestamp:     r.Time.UTC(),
		Level:         levelFromSlog(r.Level),
		Message:       r.Message,
		Module:        h.module,
		ThreadID:      goroutineLabel(),
		CorrelationID: corrID,
		Fields:        fields,
	})

	_, err := io.WriteString(h.writer, line)
	return err
}

func (h *ndjsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

func (h *ndjsonHandler) WithGroup(name string) slog.Handler {
	nh := *h
	nh.groups = append(append([]string{}, h.groups...), name)
	return &nh
}

func setAttr(fields map[string]string, groups []string, a slog.Attr) {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	fields[key] = attrString(a.Value)
}

func attrString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindTime:
		return v.Time().UTC().Format("2006-01-02T15:04:05.000Z")
	default:
		return fmt.Sprint(v.Any())
	}
}

// Logger is the process-wide structured sink. Construct one per process
// and pass it by reference to every tenant — a construction-injected
// service, not a package-level singleton. It wraps a *slog.Logger built
// over ndjsonHandler, so callers that want raw slog access can use Slog().
type Logger struct {
	slog    *slog.Logger
	handler *ndjsonHandler
	state   *sharedState
	closer  io.Closer
}

// New constructs a Logger from cfg. If the configured file path cannot be
// opened, New degrades to console output and records the fact as the first
// emitted line rather than failing the caller.
func New(cfg Config) (*Logger, error) {
	state := &sharedState{
		minLevel:     cfg.MinLevel.slogLevel(),
		globalFields: make(map[string]string),
	}

	var writer io.Writer
	var closer io.Closer
	var degraded *OpenFileError

	if cfg.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		if _, err := os.Stat(cfg.Filename); err != nil && !os.IsNotExist(err) {
			degraded = &OpenFileError{Path: cfg.Filename, Err: err}
		} else if f, err := os.OpenFile(cfg.Filename, os.O_CREATE|os.O_WRONLY, 0o644); err != nil {
			degraded = &OpenFileError{Path: cfg.Filename, Err: err}
		} else {
			_ = f.Close()
			writer = lj
			closer = lj
		}
	}

	if writer == nil {
		if cfg.Console != nil {
			writer = cfg.Console
		} else {
			writer = os.Stdout
		}
	}

	handler := &ndjsonHandler{
		writer: &syncWriter{w: writer},
		state:  state,
		module: cfg.Module,
	}

	l := &Logger{
		slog:    slog.New(handler),
		handler: handler,
		state:   state,
		closer:  closer,
	}

	if degraded != nil {
		l.Error("failed to open configured log file, degraded to console", map[string]string{
			"path":  degraded.Path,
			"error": degraded.Err.Error(),
		})
	}

	return l, nil
}

// NewCorrelationID yields a 32-character lowercase hex value (§3).
func NewCorrelationID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// SetCorrelationID mutates the logger's correlation id; it is threaded into
// every subsequent record until changed again.
func (l *Logger) SetCorrelationID(id string) {
	l.state.mu.Lock()
	l.state.correlationID = id
	l.state.mu.Unlock()
}

// CorrelationID returns the current correlation id.
func (l *Logger) CorrelationID() string {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	return l.state.correlationID
}

// SetGlobalField merges a key/value pair into the global metadata map.
// Entry-scoped fields passed to Debug/Info/Warn/Error win on collision.
func (l *Logger) SetGlobalField(key, value string) {
	l.state.mu.Lock()
	l.state.globalFields[key] = value
	l.state.mu.Unlock()
}

// Module returns a child logger for a different module name, sharing the
// writer, level filter, correlation id, and global metadata.
func (l *Logger) Module(name string) *Logger {
	h := *l.handler
	h.module = name
	return &Logger{
		slog:    slog.New(&h),
		handler: &h,
		state:   l.state,
	}
}

// Slog exposes the underlying *slog.Logger for call sites that want to use
// slog's own With/WithGroup chaining directly instead of the map-based
// Debug/Info/Warn/Error helpers.
func (l *Logger) Slog() *slog.Logger { return l.slog }

func (l *Logger) Debug(msg string, fields map[string]string) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]string)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]string)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]string) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields map[string]string) {
	if len(fields) == 0 {
		l.slog.Log(context.Background(), level.slogLevel(), msg)
		return
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	l.slog.Log(context.Background(), level.slogLevel(), msg, args...)
}

// Flush is idempotent; the underlying writer (if it supports Sync) is left
// open so subsequent writes continue to work.
func (l *Logger) Flush() error {
	return l.handler.writer.Sync()
}

// Close releases the underlying file handle, if any. Safe to call more
// than once.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

type record struct {
	Timestamp     time.Time
	Level         Level
	Message       string
	Module        string
	ThreadID      string
	CorrelationID string
	Fields        map[string]string
}

// render produces exactly one NDJSON object per record terminated by '\n',
// with keys in the priority order described by §6: timestamp, level,
// message, module, thread_id, correlation_id (if set), then user fields in
// sorted order so output is deterministic for tests.
func render(r record) string {
	var b strings.Builder
	b.WriteByte('{')

	writeKV(&b, "timestamp", r.Timestamp.Format("2006-01-02T15:04:05.000Z"), true)
	writeKV(&b, "level", r.Level.String(), false)
	writeKV(&b, "message", r.Message, false)
	writeKV(&b, "module", r.Module, false)
	writeKV(&b, "thread_id", r.ThreadID, false)
	if r.CorrelationID != "" {
		writeKV(&b, "correlation_id", r.CorrelationID, false)
	}

	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeKV(&b, k, r.Fields[k], false)
	}

	b.WriteString("}\n")
	return b.String()
}

func writeKV(b *strings.Builder, key, value string, first bool) {
	if !first {
		b.WriteByte(',')
	}
	b.WriteByte('"')
	b.WriteString(jsonEscape(key))
	b.WriteString(`":"`)
	b.WriteString(jsonEscape(value))
	b.WriteByte('"')
}

func jsonEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
