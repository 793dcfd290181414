package schema

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Severity classifies a ValidationError's impact.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityFatal:
		return "fatal"
	default:
		return "error"
	}
}

// ValidationError is one row/field-level validation finding.
type ValidationError struct {
	Severity       Severity
	Field          string
	Row            int
	Column         int
	Message        string
	ActualValue    string
	ExpectedFormat string
}

// RowResult is the outcome of validating a single row.
type RowResult struct {
	Valid  bool
	Errors []ValidationError
}

// HeaderResult is the outcome of validating a header row against a schema.
type HeaderResult struct {
	Valid          bool
	MissingFields  []string
	ExtraColumns   []string
	Errors         []ValidationError
}

var (
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	urlPattern      = regexp.MustCompile(`^https?://[A-Za-z0-9.-]+\.[A-Za-z]{2,}(/.*)?$`)
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	datetimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	ipv4Pattern     = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)
	ipv6Pattern     = regexp.MustCompile(`^[0-9a-fA-F:]+$`)
)

var emptySentinels = map[string]bool{
	"":     true,
	"null": true,
	"NULL": true,
	"N/A":  true,
}

var booleanTrue = map[string]bool{"true": true, "1": true, "yes": true, "y": true, "on": true}
var booleanFalse = map[string]bool{"false": true, "0": true, "no": true, "n": true, "off": true}

// RowValidator validates a stream of CSV rows against one Schema,
// enforcing per-field error-rate limiting and an optional stop-on-first-
// error policy across the whole file.
type RowValidator struct {
	schema      *Schema
	headerIndex map[string]int
	errorCounts map[string]int
	suppressed  map[string]bool
	stopped     bool
	regexCache  map[string]*regexp.Regexp
	metrics     *Metrics

	rowsValidated   int
	errorsTotal     int
	warningsTotal   int
}

// NewRowValidator constructs a validator bound to schema.
func NewRowValidator(s *Schema) *RowValidator {
	return &RowValidator{
		schema:      s,
		errorCounts: make(map[string]int),
		suppressed:  make(map[string]bool),
		regexCache:  make(map[string]*regexp.Regexp),
	}
}

// AttachMetrics wires m to the validator.
func (rv *RowValidator) AttachMetrics(m *Metrics) { rv.metrics = m }

// Stopped reports whether StopOnFirstError has halted further validation.
func (rv *RowValidator) Stopped() bool { return rv.stopped }

// Stats is a point-in-time summary of a RowValidator's activity.
type Stats struct {
	RowsValidated int
	ErrorsTotal   int
	WarningsTotal int
	Stopped       bool
}

// Stats returns the validator's current counters.
func (rv *RowValidator) Stats() Stats {
	return Stats{
		RowsValidated: rv.rowsValidated,
		ErrorsTotal:   rv.errorsTotal,
		WarningsTotal: rv.warningsTotal,
		Stopped:       rv.stopped,
	}
}

// ValidateHeader checks columns against the schema's required fields (by
// name or alias) and flags columns the schema doesn't know about. It
// caches the column→index mapping used by subsequent ValidateRow calls.
func (rv *RowValidator) ValidateHeader(columns []string, strictMode bool) *HeaderResult {
	res := &HeaderResult{Valid: true}
	rv.headerIndex = make(map[string]int, len(columns))
	known := make([]bool, len(columns))

	for _, f := range rv.schema.Fields {
		found := -1
		for i, col := range columns {
			if f.matches(col) {
				found = i
				known[i] = true
				break
			}
		}
		if found >= 0 {
			rv.headerIndex[f.Name] = found
			continue
		}
		if f.Required {
			res.MissingFields = append(res.MissingFields, f.Name)
			res.Valid = false
			res.Errors = append(res.Errors, ValidationError{
				Severity:       SeverityError,
				Field:          f.Name,
				Message:        "required column is missing from header",
				ExpectedFormat: string(f.Type),
			})
		}
	}

	if !rv.schema.AllowExtraColumns {
		for i, col := range columns {
			if known[i] {
				continue
			}
			res.ExtraColumns = append(res.ExtraColumns, col)
			sev := SeverityWarning
			if strictMode {
				sev = SeverityError
				res.Valid = false
			}
			res.Errors = append(res.Errors, ValidationError{
				Severity: sev,
				Field:    col,
				Column:   i + 1,
				Message:  "column is not declared in schema",
			})
		}
	}
	return res
}

// ValidateRow validates fields (indexed per the header captured by
// ValidateHeader) and returns the row's verdict. Once StopOnFirstError
// has tripped, ValidateRow continues to be callable but always reports
// the row invalid without reassessing fields — callers should check
// Stopped() and break their own loop.
func (rv *RowValidator) ValidateRow(fields []string, rowNumber int) *RowResult {
	res := &RowResult{Valid: true}
	if rv.stopped {
		res.Valid = false
		return res
	}

	for colIdx, f := range rv.schema.Fields {
		idx, ok := rv.headerIndex[f.Name]
		if !ok {
			idx = colIdx
		}
		raw := ""
		if idx >= 0 && idx < len(fields) {
			raw = fields[idx]
		}
		trimmed := strings.TrimSpace(raw)

		if emptySentinels[trimmed] {
			if !f.Required {
				continue
			}
			if f.Default != "" {
				continue
			}
			rv.addError(res, ValidationError{
				Severity:    SeverityError,
				Field:       f.Name,
				Row:         rowNumber,
				Column:      idx + 1,
				Message:     "required field is empty",
				ActualValue: raw,
			})
			continue
		}

		if ok, msg, expected := rv.validateValue(f, trimmed); !ok {
			rv.addError(res, ValidationError{
				Severity:       SeverityError,
				Field:          f.Name,
				Row:            rowNumber,
				Column:         idx + 1,
				Message:        msg,
				ActualValue:    raw,
				ExpectedFormat: expected,
			})
		}
	}

	rv.rowsValidated++
	if rv.metrics != nil {
		rv.metrics.RecordRow(res.Valid)
	}
	return res
}

// addError applies per-field error-rate limiting before appending err to
// res: after MaxErrorsPerField errors on the same field, one warning is
// emitted and further errors on that field are suppressed for the rest
// of the file. It also applies StopOnFirstError.
func (rv *RowValidator) addError(res *RowResult, err ValidationError) {
	res.Valid = false

	if rv.suppressed[err.Field] {
		return
	}

	limit := rv.schema.MaxErrorsPerField
	if limit > 0 {
		rv.errorCounts[err.Field]++
		if rv.errorCounts[err.Field] > limit {
			rv.suppressed[err.Field] = true
			res.Errors = append(res.Errors, ValidationError{
				Severity: SeverityWarning,
				Field:    err.Field,
				Row:      err.Row,
				Message:  "error rate limit reached for field; further errors on this field are suppressed",
			})
			rv.warningsTotal++
			return
		}
	}

	res.Errors = append(res.Errors, err)
	rv.errorsTotal++

	if rv.schema.StopOnFirstError && err.Severity >= SeverityError {
		rv.stopped = true
	}
}

func (rv *RowValidator) validateValue(f FieldSchema, value string) (ok bool, message, expected string) {
	switch f.Type {
	case TypeString:
		return rv.validateString(f, value)
	case TypeInteger:
		return validateInteger(f, value)
	case TypeFloat:
		return validateFloat(f, value)
	case TypeBoolean:
		return validateBoolean(value)
	case TypeDate:
		return validatePattern(datePattern, value, "YYYY-MM-DD")
	case TypeDatetime:
		return validatePattern(datetimePattern, value, "ISO-8601 datetime")
	case TypeEmail:
		return validatePattern(emailPattern, value, "user@domain.tld")
	case TypeURL:
		return validatePattern(urlPattern, value, "http(s)://host.tld[/path]")
	case TypeIPAddress:
		return validateIPAddress(value)
	case TypeUUID:
		return validatePattern(uuidPattern, value, "8-4-4-4-12 hex UUID")
	case TypeEnum:
		return validateEnum(f, value)
	case TypeCustom:
		if f.Custom == nil || f.Custom(value) {
			return true, "", ""
		}
		return false, "value failed custom validation", "custom predicate"
	default:
		return true, "", ""
	}
}

func (rv *RowValidator) validateString(f FieldSchema, value string) (bool, string, string) {
	n := len(value)
	if f.MinLength != nil && n < *f.MinLength {
		return false, "value shorter than min_length", "length >= " + strconv.Itoa(*f.MinLength)
	}
	if f.MaxLength != nil && n > *f.MaxLength {
		return false, "value longer than max_length", "length <= " + strconv.Itoa(*f.MaxLength)
	}
	if f.Regex != "" {
		re, ok := rv.regexCache[f.Regex]
		if !ok {
			compiled, err := regexp.Compile(f.Regex)
			if err != nil {
				return false, "field regex does not compile", f.Regex
			}
			re = compiled
			rv.regexCache[f.Regex] = re
		}
		if !re.MatchString(value) {
			return false, "value does not match field regex", f.Regex
		}
	}
	return true, "", ""
}

func validateInteger(f FieldSchema, value string) (bool, string, string) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, "value is not a valid 64-bit integer", "signed 64-bit integer"
	}
	if f.MinValue != nil && float64(n) < *f.MinValue {
		return false, "value below min_value", "value >= " + strconv.FormatFloat(*f.MinValue, 'g', -1, 64)
	}
	if f.MaxValue != nil && float64(n) > *f.MaxValue {
		return false, "value above max_value", "value <= " + strconv.FormatFloat(*f.MaxValue, 'g', -1, 64)
	}
	return true, "", ""
}

func validateFloat(f FieldSchema, value string) (bool, string, string) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return false, "value is not a finite floating point number", "finite double"
	}
	if f.MinValue != nil && n < *f.MinValue {
		return false, "value below min_value", "value >= " + strconv.FormatFloat(*f.MinValue, 'g', -1, 64)
	}
	if f.MaxValue != nil && n > *f.MaxValue {
		return false, "value above max_value", "value <= " + strconv.FormatFloat(*f.MaxValue, 'g', -1, 64)
	}
	return true, "", ""
}

func validateBoolean(value string) (bool, string, string) {
	lower := strings.ToLower(value)
	if booleanTrue[lower] || booleanFalse[lower] {
		return true, "", ""
	}
	return false, "value is not a recognized boolean", "true/1/yes/y/on or false/0/no/n/off"
}

func validatePattern(re *regexp.Regexp, value, expected string) (bool, string, string) {
	if re.MatchString(value) {
		return true, "", ""
	}
	return false, "value does not match expected format", expected
}

func validateIPAddress(value string) (bool, string, string) {
	if m := ipv4Pattern.FindStringSubmatch(value); m != nil {
		for _, octet := range m[1:] {
			n, err := strconv.Atoi(octet)
			if err != nil || n < 0 || n > 255 {
				return false, "IPv4 octet out of range", "dotted quad, octets 0-255"
			}
		}
		return true, "", ""
	}
	if strings.Contains(value, ":") && ipv6Pattern.MatchString(value) {
		return true, "", ""
	}
	return false, "value is not a recognized IPv4 or IPv6 address", "dotted-quad IPv4 or hex:colon IPv6"
}

func validateEnum(f FieldSchema, value string) (bool, string, string) {
	for _, v := range f.EnumValues {
		if v == value {
			return true, "", ""
		}
	}
	return false, "value is not a member of the field's enum", strings.Join(f.EnumValues, "|")
}
