package csv

import (
	"io"
	"strings"
)

// fieldState enumerates the states of the quote/escape-aware per-field
// state machine:
//
//	state ∈ {FieldStart, InUnquoted, InQuoted, QuoteInQuoted}
//	on delimiter outside quotes → emit field, FieldStart
//	on quote at FieldStart     → InQuoted
//	on quote in InQuoted       → QuoteInQuoted
//	on quote in QuoteInQuoted  → append quote, InQuoted
//	on other in QuoteInQuoted  → close quote, InUnquoted
//	on newline outside quotes  → emit row
//	on newline inside quotes   → append to field
type fieldState int

const (
	stateFieldStart fieldState = iota
	stateInUnquoted
	stateInQuoted
	stateQuoteInQuoted
)

type byteReader interface {
	ReadByte() (byte, error)
}

// scanRow reads one complete row from r using the quote/escape state
// machine, advancing until a non-quoted newline is seen. If end of input
// is reached mid-quote, the partial row is returned as the final row
// (the original's "request more input" becomes simply "this is EOF").
// It returns (nil, io.EOF) only when no bytes at all were available.
func (p *Parser) scanRow(r byteReader) ([]string, error) {
	cfg := p.cfg
	state := stateFieldStart
	var fields []string
	var field strings.Builder
	rowSize := 0
	sawAny := false

	emitField := func() {
		fields = append(fields, field.String())
		field.Reset()
	}

	for {
		b, err := r.ReadByte()
		if err != nil {
			if field.Len() > 0 || len(fields) > 0 {
				emitField()
			}
			if !sawAny && len(fields) == 0 {
				return nil, io.EOF
			}
			return fields, io.EOF
		}
		sawAny = true
		terminatesRow := b == '\n' && state != stateInQuoted
		if !terminatesRow {
			rowSize++
		}
		if rowSize > cfg.MaxRowSize {
			p.reportMalformed(p.stats.rowsParsed.Load()+1, "row exceeds max_row_size")
			if cfg.StrictMode {
				return fields, &ParseError{Kind: ErrBufferOverflow, Message: "row exceeds max_row_size"}
			}
			// lenient: drain to next newline and drop the row
			for {
				c, err := r.ReadByte()
				if err != nil || c == '\n' {
					break
				}
			}
			return nil, nil
		}
		if field.Len() > cfg.MaxFieldSize {
			p.reportMalformed(p.stats.rowsParsed.Load()+1, "field exceeds max_field_size")
			if cfg.StrictMode {
				return fields, &ParseError{Kind: ErrBufferOverflow, Message: "field exceeds max_field_size"}
			}
		}

		switch state {
		case stateFieldStart:
			switch {
			case b == cfg.QuoteChar:
				state = stateInQuoted
			case b == cfg.Delimiter:
				emitField()
			case b == '\n':
				emitField()
				return fields, nil
			case b == '\r':
				// swallow; newline detection keys off '\n'
			default:
				field.WriteByte(b)
				state = stateInUnquoted
			}
		case stateInUnquoted:
			switch {
			case b == cfg.Delimiter:
				emitField()
				state = stateFieldStart
			case b == '\n':
				emitField()
				return fields, nil
			case b == '\r':
				// swallow
			default:
				field.WriteByte(b)
			}
		case stateInQuoted:
			switch {
			case b == cfg.QuoteChar:
				state = stateQuoteInQuoted
			default:
				field.WriteByte(b)
			}
		case stateQuoteInQuoted:
			switch {
			case b == cfg.QuoteChar:
				field.WriteByte(cfg.QuoteChar)
				state = stateInQuoted
			case b == cfg.Delimiter:
				emitField()
				state = stateFieldStart
			case b == '\n':
				emitField()
				return fields, nil
			case b == '\r':
				state = stateInUnquoted
			default:
				field.WriteByte(b)
				state = stateInUnquoted
			}
		}
	}
}

type sliceByteReader struct {
	data []byte
	pos  int
}

func (s *sliceByteReader) ReadByte() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// ParseRowFields splits a single already-extracted row using the same
// state machine the streaming parser uses internally. It is a static
// convenience for callers that already have a row string in hand.
func ParseRowFields(row string, cfg Config) ([]string, error) {
	p := New(cfg)
	sr := &sliceByteReader{data: append([]byte(row), '\n')}
	fields, err := p.scanRow(sr)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return fields, nil
}

// EscapeField renders value as a CSV field, quoting it if it contains the
// delimiter, quote character, or a newline.
func EscapeField(value string, cfg Config) string {
	needsQuote := strings.ContainsAny(value, string(cfg.Delimiter)+string(cfg.QuoteChar)+"\n\r")
	if !needsQuote {
		return value
	}
	escaped := strings.ReplaceAll(value, string(cfg.QuoteChar), string(cfg.QuoteChar)+string(cfg.QuoteChar))
	return string(cfg.QuoteChar) + escaped + string(cfg.QuoteChar)
}

// IsQuotedField reports whether field is wrapped in the configured quote
// character.
func IsQuotedField(field string, quoteChar byte) bool {
	return len(field) >= 2 && field[0] == quoteChar && field[len(field)-1] == quoteChar
}
