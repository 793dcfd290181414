// Package csv implements a bounded-memory streaming CSV parser: a custom
// quote/escape state machine, BOM-based encoding auto-detection, and
// synchronous plus cooperative pause/resume/stop asynchronous parsing
// modes, re-expressed as an idiomatic io.Reader-driven scanner; the
// surrounding logging/stats/concurrency idiom follows this module's
// other components.
package csv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// EncodingType identifies the byte encoding of the input stream.
type EncodingType int

const (
	EncodingAutoDetect EncodingType = iota
	EncodingUTF8
	EncodingUTF16LE
	EncodingUTF16BE
	EncodingASCII
)

// ErrorKind is the parser's error taxonomy: FileNotFound, FileReadError,
// EncodingError, MalformedRow, BufferOverflow, AllocationFailure,
// CallbackError, and ThreadError.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrFileNotFound
	ErrFileReadError
	ErrEncodingError
	ErrMalformedRow
	ErrBufferOverflow
	ErrAllocationFailure
	ErrCallbackError
	ErrThreadError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrFileNotFound:
		return "file-not-found"
	case ErrFileReadError:
		return "file-read-error"
	case ErrEncodingError:
		return "encoding-error"
	case ErrMalformedRow:
		return "malformed-row"
	case ErrBufferOverflow:
		return "buffer-overflow"
	case ErrAllocationFailure:
		return "allocation-failure"
	case ErrCallbackError:
		return "callback-error"
	case ErrThreadError:
		return "thread-error"
	default:
		return "none"
	}
}

// ParseError associates an ErrorKind with a human-readable message and the
// 1-based row number it occurred on (0 if not row-specific).
type ParseError struct {
	Kind      ErrorKind
	Message   string
	RowNumber uint64
}

func (e *ParseError) Error() string {
	if e.RowNumber > 0 {
		return fmt.Sprintf("csv: %s at row %d: %s", e.Kind, e.RowNumber, e.Message)
	}
	return fmt.Sprintf("csv: %s: %s", e.Kind, e.Message)
}

// Config configures a Parser.
type Config struct {
	Delimiter         byte
	QuoteChar         byte
	EscapeChar        byte
	HasHeader         bool
	StrictMode        bool
	TrimWhitespace    bool
	SkipEmptyRows     bool
	BufferSize        int
	MaxFieldSize      int
	MaxRowSize        int
	Encoding          EncodingType
}

// DefaultConfig returns a Config with RFC-4180-compatible defaults.
func DefaultConfig() Config {
	return Config{
		Delimiter:      ',',
		QuoteChar:      '"',
		EscapeChar:     '"',
		HasHeader:      true,
		StrictMode:     false,
		TrimWhitespace: true,
		SkipEmptyRows:  true,
		BufferSize:     8192,
		MaxFieldSize:   1 << 20,
		MaxRowSize:     10 << 20,
		Encoding:       EncodingAutoDetect,
	}
}

// ParsedRow is one parsed CSV record with header-aware field access.
type ParsedRow struct {
	rowNumber uint64
	fields    []string
	headers   []string
	headerIdx map[string]int
}

func newParsedRow(rowNumber uint64, fields, headers []string) *ParsedRow {
	r := &ParsedRow{rowNumber: rowNumber, fields: fields, headers: headers}
	if len(headers) > 0 {
		r.headerIdx = make(map[string]int, len(headers))
		for i, h := range headers {
			r.headerIdx[h] = i
		}
	}
	return r
}

// RowNumber returns the 1-based row number, not counting a consumed header.
func (r *ParsedRow) RowNumber() uint64 { return r.rowNumber }

// FieldCount returns the number of fields in the row.
func (r *ParsedRow) FieldCount() int { return len(r.fields) }

// Fields returns the row's raw field values.
func (r *ParsedRow) Fields() []string { return r.fields }

// Headers returns the cached header names, if any.
func (r *ParsedRow) Headers() []string { return r.headers }

// HasHeaders reports whether header names are available for this row.
func (r *ParsedRow) HasHeaders() bool { return len(r.headers) > 0 }

// IsValid reports whether the row has at least one field.
func (r *ParsedRow) IsValid() bool { return len(r.fields) > 0 }

// IsEmpty reports whether the row is empty (no fields, or a single empty
// field — the shape produced by parsing a blank line).
func (r *ParsedRow) IsEmpty() bool {
	return len(r.fields) == 0 || (len(r.fields) == 1 && r.fields[0] == "")
}

// Field returns the value at index, or an empty string if out of range.
func (r *ParsedRow) Field(index int) string {
	if index < 0 || index >= len(r.fields) {
		return ""
	}
	return r.fields[index]
}

// FieldSafe returns the value at index, or false if out of range.
func (r *ParsedRow) FieldSafe(index int) (string, bool) {
	if index < 0 || index >= len(r.fields) {
		return "", false
	}
	return r.fields[index], true
}

// FieldByHeader returns the value for the named header, or an empty
// string if the header is unknown.
func (r *ParsedRow) FieldByHeader(header string) string {
	v, _ := r.FieldByHeaderSafe(header)
	return v
}

// FieldByHeaderSafe returns the value for the named header, or false if
// the header is unknown.
func (r *ParsedRow) FieldByHeaderSafe(header string) (string, bool) {
	idx, ok := r.headerIdx[header]
	if !ok {
		return "", false
	}
	return r.FieldSafe(idx)
}

func (r *ParsedRow) String() string {
	return fmt.Sprintf("Row(%d): %s", r.rowNumber, strings.Join(r.fields, "|"))
}

// FieldAs converts the field at index to T, returning (zero, false) if the
// index is out of range or the conversion fails. Field conversion never
// fails parsing — it is a pure helper on an already-parsed row.
func FieldAs[T any](r *ParsedRow, index int) (T, bool) {
	var zero T
	v, ok := r.FieldSafe(index)
	if !ok {
		return zero, false
	}
	return convertField[T](v)
}

// FieldByHeaderAs is FieldAs addressed by header name.
func FieldByHeaderAs[T any](r *ParsedRow, header string) (T, bool) {
	var zero T
	v, ok := r.FieldByHeaderSafe(header)
	if !ok {
		return zero, false
	}
	return convertField[T](v)
}

func convertField[T any](v string) (T, bool) {
	var zero T
	var out any
	switch any(zero).(type) {
	case int:
		n, err := strconv.Atoi(v)
		if err != nil {
			return zero, false
		}
		out = n
	case int64:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return zero, false
		}
		out = n
	case float32:
		n, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return zero, false
		}
		out = float32(n)
	case float64:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return zero, false
		}
		out = n
	case bool:
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			out = true
		case "false", "0", "no", "off":
			out = false
		default:
			return zero, false
		}
	case string:
		out = v
	default:
		return zero, false
	}
	return out.(T), true
}

// Statistics is an atomically-updated snapshot of parse progress.
type Statistics struct {
	rowsParsed     atomic.Uint64
	rowsSkipped    atomic.Uint64
	rowsWithErrors atomic.Uint64
	bytesRead      atomic.Uint64
	totalFieldSum  atomic.Uint64
	minFieldCount  atomic.Uint64
	maxFieldCount  atomic.Uint64

	mu        sync.Mutex
	startedAt time.Time
	duration  time.Duration
}

func newStatistics() *Statistics {
	s := &Statistics{}
	s.minFieldCount.Store(^uint64(0))
	return s
}

// Reset zeroes every counter.
func (s *Statistics) Reset() {
	s.rowsParsed.Store(0)
	s.rowsSkipped.Store(0)
	s.rowsWithErrors.Store(0)
	s.bytesRead.Store(0)
	s.totalFieldSum.Store(0)
	s.minFieldCount.Store(^uint64(0))
	s.maxFieldCount.Store(0)
	s.mu.Lock()
	s.duration = 0
	s.mu.Unlock()
}

func (s *Statistics) startTiming() {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
}

func (s *Statistics) stopTiming() {
	s.mu.Lock()
	if !s.startedAt.IsZero() {
		s.duration += time.Since(s.startedAt)
	}
	s.mu.Unlock()
}

func (s *Statistics) recordFieldCount(n int) {
	s.totalFieldSum.Add(uint64(n))
	for {
		cur := s.minFieldCount.Load()
		if uint64(n) >= cur {
			break
		}
		if s.minFieldCount.CompareAndSwap(cur, uint64(n)) {
			break
		}
	}
	for {
		cur := s.maxFieldCount.Load()
		if uint64(n) <= cur {
			break
		}
		if s.maxFieldCount.CompareAndSwap(cur, uint64(n)) {
			break
		}
	}
}

// Snapshot is a point-in-time, non-atomic copy of Statistics for reporting.
type Snapshot struct {
	RowsParsed       uint64
	RowsSkipped      uint64
	RowsWithErrors   uint64
	BytesRead        uint64
	MinFieldCount    uint64
	MaxFieldCount    uint64
	AverageFieldCount float64
	Duration         time.Duration
	RowsPerSecond    float64
	BytesPerSecond   float64
}

// Snapshot copies the current counters into a Snapshot with derived rates.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.Lock()
	dur := s.duration
	if !s.startedAt.IsZero() {
		dur += time.Since(s.startedAt)
	}
	s.mu.Unlock()

	rows := s.rowsParsed.Load()
	bytes := s.bytesRead.Load()
	minFC := s.minFieldCount.Load()
	if minFC == ^uint64(0) {
		minFC = 0
	}

	snap := Snapshot{
		RowsParsed:     rows,
		RowsSkipped:    s.rowsSkipped.Load(),
		RowsWithErrors: s.rowsWithErrors.Load(),
		BytesRead:      bytes,
		MinFieldCount:  minFC,
		MaxFieldCount:  s.maxFieldCount.Load(),
		Duration:       dur,
	}
	if rows > 0 {
		snap.AverageFieldCount = float64(s.totalFieldSum.Load()) / float64(rows)
	}
	secs := dur.Seconds()
	if secs > 0 {
		snap.RowsPerSecond = float64(rows) / secs
		snap.BytesPerSecond = float64(bytes) / secs
	}
	return snap
}

// Report renders a human-readable summary, grounded on the original
// implementation's ParserStatistics::generateReport().
func (s *Statistics) Report() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"rows_parsed=%d rows_skipped=%d rows_with_errors=%d bytes_read=%d avg_fields=%.2f rows_per_sec=%.1f bytes_per_sec=%.1f",
		snap.RowsParsed, snap.RowsSkipped, snap.RowsWithErrors, snap.BytesRead,
		snap.AverageFieldCount, snap.RowsPerSecond, snap.BytesPerSecond,
	)
}

// RowCallback is invoked for every dispatched row; returning false stops
// parsing.
type RowCallback func(row *ParsedRow, kind ErrorKind) bool

// ProgressCallback is invoked every 1000 rows and once at completion.
type ProgressCallback func(rowsProcessed, bytesRead uint64, percent float64)

// ErrorCallback is invoked whenever a row fails to parse.
type ErrorCallback func(kind ErrorKind, message string, rowNumber uint64)

// Parser is a streaming CSV parser supporting synchronous and cooperative
// asynchronous (pause/resume/stop) execution.
type Parser struct {
	cfg Config

	rowCB      RowCallback
	progressCB ProgressCallback
	errorCB    ErrorCallback

	stats *Statistics

	// Async control: a mutex+condition-variable pair guards pause/resume
	// (observed at row boundaries), and an atomic flag signals stop —
	// mirroring the original's std::mutex+condition_variable+atomic split
	// and this module's own "mutex for state, atomics for flags" idiom.
	asyncMu   sync.Mutex
	asyncCond *sync.Cond
	paused    bool
	stopped   atomic.Bool
	parsing   atomic.Bool

	done    chan struct{}
	doneErr error

	metrics  *Metrics
	lastSnap Snapshot
}

// New constructs a Parser with cfg, applying field defaults for any zero
// value that would otherwise be unusable (delimiter, quote char, buffer
// size).
func New(cfg Config) *Parser {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	if cfg.QuoteChar == 0 {
		cfg.QuoteChar = '"'
	}
	if cfg.EscapeChar == 0 {
		cfg.EscapeChar = cfg.QuoteChar
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 8192
	}
	if cfg.MaxFieldSize <= 0 {
		cfg.MaxFieldSize = 1 << 20
	}
	if cfg.MaxRowSize <= 0 {
		cfg.MaxRowSize = 10 << 20
	}
	p := &Parser{cfg: cfg, stats: newStatistics()}
	p.asyncCond = sync.NewCond(&p.asyncMu)
	return p
}

func (p *Parser) SetRowCallback(cb RowCallback)           { p.rowCB = cb }
func (p *Parser) SetProgressCallback(cb ProgressCallback) { p.progressCB = cb }
func (p *Parser) SetErrorCallback(cb ErrorCallback)       { p.errorCB = cb }

// Statistics returns the parser's live statistics (safe to read while
// parsing is in progress).
func (p *Parser) Statistics() *Statistics { return p.stats }

// ResetStatistics zeroes every counter.
func (p *Parser) ResetStatistics() { p.stats.Reset() }

// ParseFile opens path and parses it synchronously.
func (p *Parser) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ParseError{Kind: ErrFileNotFound, Message: err.Error()}
		}
		return &ParseError{Kind: ErrFileReadError, Message: err.Error()}
	}
	defer f.Close()
	return p.ParseStream(f)
}

// ParseString parses an in-memory CSV document synchronously.
func (p *Parser) ParseString(content string) error {
	return p.ParseStream(strings.NewReader(content))
}

// ParseStream parses r synchronously, dispatching rows via the registered
// callbacks as they complete.
func (p *Parser) ParseStream(r io.Reader) error {
	p.parsing.Store(true)
	defer p.parsing.Store(false)
	p.stats.startTiming()
	defer p.stats.stopTiming()

	reader, _, err := detectAndWrap(r, p.cfg.Encoding)
	if err != nil {
		return &ParseError{Kind: ErrEncodingError, Message: err.Error()}
	}

	return p.runLoop(reader)
}

// ParseFileAsync starts background parsing of path, returning immediately.
// Use WaitForCompletion to block for the result.
func (p *Parser) ParseFileAsync(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ParseError{Kind: ErrFileNotFound, Message: err.Error()}
		}
		return &ParseError{Kind: ErrFileReadError, Message: err.Error()}
	}
	return p.ParseStreamAsync(withCloser(f))
}

// ParseStreamAsync starts a background worker goroutine that owns the
// parse loop; Pause/Resume/Stop are observed at row boundaries.
func (p *Parser) ParseStreamAsync(r io.Reader) error {
	if p.parsing.Load() {
		return &ParseError{Kind: ErrThreadError, Message: "parser is already running"}
	}
	p.stopped.Store(false)
	p.done = make(chan struct{})
	p.parsing.Store(true)

	go func() {
		defer close(p.done)
		defer p.parsing.Store(false)
		p.stats.startTiming()
		defer p.stats.stopTiming()

		reader, _, err := detectAndWrap(r, p.cfg.Encoding)
		if err != nil {
			p.doneErr = &ParseError{Kind: ErrEncodingError, Message: err.Error()}
			return
		}
		p.doneErr = p.runLoop(reader)
	}()
	return nil
}

// Pause requests the async worker suspend after its current row.
func (p *Parser) Pause() {
	p.asyncMu.Lock()
	p.paused = true
	p.asyncMu.Unlock()
}

// Resume wakes a paused async worker.
func (p *Parser) Resume() {
	p.asyncMu.Lock()
	p.paused = false
	p.asyncMu.Unlock()
	p.asyncCond.Broadcast()
}

// Stop requests the async worker terminate after its current row.
func (p *Parser) Stop() {
	p.stopped.Store(true)
	p.Resume()
}

// IsParsing reports whether a parse (sync or async) is in progress.
func (p *Parser) IsParsing() bool { return p.parsing.Load() }

// IsPaused reports whether the async worker is currently paused.
func (p *Parser) IsPaused() bool {
	p.asyncMu.Lock()
	defer p.asyncMu.Unlock()
	return p.paused
}

// WaitForCompletion blocks until an async parse finishes and returns its
// result.
func (p *Parser) WaitForCompletion() error {
	if p.done == nil {
		return nil
	}
	<-p.done
	return p.doneErr
}

func (p *Parser) checkShouldStop() bool {
	if p.stopped.Load() {
		return true
	}
	p.asyncMu.Lock()
	for p.paused && !p.stopped.Load() {
		p.asyncCond.Wait()
	}
	stop := p.stopped.Load()
	p.asyncMu.Unlock()
	return stop
}

type countingReader struct {
	r     *bufio.Reader
	count *atomic.Uint64
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.count.Add(1)
	}
	return b, err
}

func (p *Parser) runLoop(r io.Reader) error {
	br := bufio.NewReaderSize(r, p.cfg.BufferSize)
	cr := &countingReader{r: br, count: &p.stats.bytesRead}

	var headers []string
	var rowNumber uint64 // raw line counter, including a consumed header
	var dataRowNumber uint64
	reportEvery := uint64(1000)

	for {
		if p.done != nil && p.checkShouldStop() {
			return nil
		}

		fields, readErr := p.scanRow(cr)
		if len(fields) == 0 && readErr == io.EOF {
			break
		}

		if fields != nil {
			rowNumber++

			if p.cfg.HasHeader && rowNumber == 1 {
				headers = normalizeFields(fields, p.cfg)
				p.stats.rowsSkipped.Add(1)
				continue
			}

			dataRowNumber++
			if err := p.processRow(fields, headers, dataRowNumber); err != nil {
				var pe *ParseError
				if errors.As(err, &pe) && pe.Kind == ErrCallbackError {
					return err
				}
				if p.cfg.StrictMode {
					return err
				}
			}

			if rowNumber%reportEvery == 0 {
				if p.progressCB != nil {
					p.progressCB(rowNumber, p.stats.bytesRead.Load(), 0)
				}
				p.observeMetrics()
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return &ParseError{Kind: ErrFileReadError, Message: readErr.Error(), RowNumber: rowNumber}
		}
	}

	if p.progressCB != nil {
		p.progressCB(rowNumber, p.stats.bytesRead.Load(), 100)
	}
	p.observeMetrics()
	return nil
}

func (p *Parser) observeMetrics() {
	if p.metrics == nil {
		return
	}
	cur := p.stats.Snapshot()
	p.metrics.Observe(p.lastSnap, cur)
	p.lastSnap = cur
}

func normalizeFields(fields []string, cfg Config) []string {
	if !cfg.TrimWhitespace {
		return fields
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

func (p *Parser) processRow(rawFields, headers []string, rowNumber uint64) error {
	fields := normalizeFields(rawFields, p.cfg)

	row := newParsedRow(rowNumber, fields, headers)
	if row.IsEmpty() && p.cfg.SkipEmptyRows {
		p.stats.rowsSkipped.Add(1)
		return nil
	}

	p.stats.rowsParsed.Add(1)
	p.stats.recordFieldCount(len(fields))

	if p.rowCB != nil {
		if !p.rowCB(row, ErrNone) {
			return &ParseError{Kind: ErrCallbackError, Message: "row callback requested stop", RowNumber: rowNumber}
		}
	}
	return nil
}

func (p *Parser) reportMalformed(rowNumber uint64, message string) {
	p.stats.rowsWithErrors.Add(1)
	if p.errorCB != nil {
		p.errorCB(ErrMalformedRow, message, rowNumber)
	}
}

func withCloser(f *os.File) io.Reader {
	return &fileReader{f: f}
}

type fileReader struct{ f *os.File }

func (r *fileReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil {
		r.f.Close()
	}
	return n, err
}
