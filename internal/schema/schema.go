// Package schema implements a versioned CSV row validator: a two-level
// name→version schema registry, per-field-type dispatch validation, and
// per-field error-rate limiting. The per-field-type dispatch style
// (validateResolveTimeout/validateSMTPConfig/isValidEmail-shaped
// sub-validators feeding a shared result type) is carried over from
// validating one structured config document to validating one CSV row
// against a registered schema version.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FieldType is the set of field type validators dispatched by RowValidator.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInteger   FieldType = "integer"
	TypeFloat     FieldType = "float"
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeDatetime  FieldType = "datetime"
	TypeEmail     FieldType = "email"
	TypeURL       FieldType = "url"
	TypeIPAddress FieldType = "ip-address"
	TypeUUID      FieldType = "uuid"
	TypeEnum      FieldType = "enum"
	TypeCustom    FieldType = "custom"
)

// CustomValidator is a user-supplied predicate for TypeCustom fields.
type CustomValidator func(value string) bool

// FieldSchema describes one column's validation rules.
type FieldSchema struct {
	Name       string    `json:"name"`
	Aliases    []string  `json:"aliases,omitempty"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required"`
	Default    string    `json:"default,omitempty"`
	MinLength  *int      `json:"min_length,omitempty"`
	MaxLength  *int      `json:"max_length,omitempty"`
	Regex      string    `json:"regex,omitempty"`
	MinValue   *float64  `json:"min_value,omitempty"`
	MaxValue   *float64  `json:"max_value,omitempty"`
	EnumValues []string  `json:"enum_values,omitempty"`

	// Custom is a user-supplied predicate for TypeCustom fields. It is
	// process-local behavior, not data, so ToJSON omits it — round-tripping
	// a custom validator through JSON is out of scope (see FromJSON).
	Custom CustomValidator `json:"-"`
}

func (f FieldSchema) matches(column string) bool {
	if strings.EqualFold(f.Name, column) {
		return true
	}
	for _, a := range f.Aliases {
		if strings.EqualFold(a, column) {
			return true
		}
	}
	return false
}

// Version is a semantic schema version (major.minor.patch).
type Version struct {
	Major, Minor, Patch int
}

// ParseVersion parses "major.minor.patch"; missing components default to 0.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 3 {
		return Version{}, fmt.Errorf("schema: invalid version %q", s)
	}
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("schema: invalid version %q: %w", s, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other, ordering by major, then minor, then patch.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Patch - other.Patch)
	}
}

func (v Version) LessEqual(other Version) bool { return v.Compare(other) <= 0 }

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Schema is one registered version of a named row schema.
type Schema struct {
	Name              string        `json:"name"`
	Version           Version       `json:"version"`
	Description       string        `json:"description,omitempty"`
	Fields            []FieldSchema `json:"fields"`
	AllowExtraColumns bool          `json:"allow_extra_columns"`
	MaxErrorsPerField int           `json:"max_errors_per_field,omitempty"`
	StopOnFirstError  bool          `json:"stop_on_first_error"`
}

// ToJSON renders the schema's structure (field list, constraints, version,
// flags) as JSON. Custom-validator predicates are process-local behavior
// and are not serialized; see FromJSON for why the reverse direction is a
// documented non-goal.
func (s *Schema) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// FromJSON is intentionally unimplemented: reconstructing a Schema from
// JSON produced by ToJSON would need a canonical way to re-attach
// TypeCustom predicates, which the source left
// unspecified (its own fromJson returns null). A schema is always built by
// calling New and AddField directly; see DESIGN.md's Open Question
// decisions for this component.
func FromJSON([]byte) (*Schema, error) {
	return nil, fmt.Errorf("schema: FromJSON is not implemented; construct schemas via New/AddField")
}

// New constructs an empty Schema at version, ready for AddField calls.
func New(name string, version Version) *Schema {
	return &Schema{Name: name, Version: version, Fields: nil}
}

// AddField appends f to the schema and returns the schema for chaining.
func (s *Schema) AddField(f FieldSchema) *Schema {
	s.Fields = append(s.Fields, f)
	return s
}

// Clone returns a deep-enough copy of s suitable for migration.
func (s *Schema) Clone() *Schema {
	fields := make([]FieldSchema, len(s.Fields))
	copy(fields, s.Fields)
	return &Schema{
		Name:              s.Name,
		Version:           s.Version,
		Description:       s.Description,
		Fields:            fields,
		AllowExtraColumns: s.AllowExtraColumns,
		MaxErrorsPerField: s.MaxErrorsPerField,
		StopOnFirstError:  s.StopOnFirstError,
	}
}

// Registry is a two-level name→version schema store.
type Registry struct {
	schemas map[string]map[Version]*Schema
}

// NewRegistry constructs a Registry pre-seeded with the eleven reserved
// tenant pipeline stage schemas (see ReservedSeedSchemas), each at
// version 1.0.0 with an empty field list.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]map[Version]*Schema)}
	registerSeedSchemas(r)
	return r
}

// Register adds schema under (schema.Name, schema.Version), overwriting
// any prior registration at the same coordinates.
func (r *Registry) Register(s *Schema) {
	if r.schemas[s.Name] == nil {
		r.schemas[s.Name] = make(map[Version]*Schema)
	}
	r.schemas[s.Name][s.Version] = s
}

// Get looks up (name, version): an exact match first, then the latest
// schema with the same major version and minor.patch ≤ requested.
func (r *Registry) Get(name string, version Version) (*Schema, bool) {
	versions, ok := r.schemas[name]
	if !ok {
		return nil, false
	}
	if s, ok := versions[version]; ok {
		return s, true
	}

	var best *Schema
	for v, s := range versions {
		if v.Major != version.Major {
			continue
		}
		if v.Compare(version) > 0 {
			continue
		}
		if best == nil || v.Compare(best.Version) > 0 {
			best = s
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Versions returns the sorted list of versions registered for name.
func (r *Registry) Versions(name string) []Version {
	versions, ok := r.schemas[name]
	if !ok {
		return nil
	}
	out := make([]Version, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// CanMigrate reports whether a schema can be migrated from one version to
// another: same major version, and from ≤ to.
func CanMigrate(from, to Version) bool {
	return from.Major == to.Major && from.LessEqual(to)
}

// Migrate copies schema's fields and flags into a new Schema stamped with
// target, annotating the description with the migration history.
func Migrate(s *Schema, target Version) (*Schema, error) {
	if !CanMigrate(s.Version, target) {
		return nil, fmt.Errorf("schema: cannot migrate %s %s -> %s", s.Name, s.Version, target)
	}
	migrated := s.Clone()
	migrated.Version = target
	migrated.Description = fmt.Sprintf("%s (migrated from %s)", s.Description, s.Version)
	return migrated, nil
}
