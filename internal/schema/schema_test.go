package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int         { return &n }
func floatPtr(f float64) *float64 { return &f }

func hostSchema() *Schema {
	v, _ := ParseVersion("1.2.0")
	return &Schema{
		Name:              "hosts",
		Version:           v,
		Description:       "discovered hosts",
		MaxErrorsPerField: 2,
		Fields: []FieldSchema{
			{Name: "host", Type: TypeString, Required: true, MinLength: intPtr(1), MaxLength: intPtr(253)},
			{Name: "port", Type: TypeInteger, Required: true, MinValue: floatPtr(1), MaxValue: floatPtr(65535)},
			{Name: "ip", Type: TypeIPAddress, Required: false},
			{Name: "active", Type: TypeBoolean, Required: true},
			{Name: "severity", Type: TypeEnum, Required: false, EnumValues: []string{"low", "medium", "high"}},
		},
	}
}

func TestRegistryExactAndCompatibleLookup(t *testing.T) {
	r := NewRegistry()
	v1, _ := ParseVersion("1.0.0")
	v12, _ := ParseVersion("1.2.0")
	v2, _ := ParseVersion("2.0.0")
	r.Register(&Schema{Name: "hosts", Version: v1})
	r.Register(&Schema{Name: "hosts", Version: v12})
	r.Register(&Schema{Name: "hosts", Version: v2})

	exact, ok := r.Get("hosts", v1)
	require.True(t, ok)
	assert.Equal(t, v1, exact.Version)

	requested, _ := ParseVersion("1.5.0")
	best, ok := r.Get("hosts", requested)
	require.True(t, ok)
	assert.Equal(t, v12, best.Version, "should fall back to highest compatible same-major version")

	_, ok = r.Get("unknown", v1)
	assert.False(t, ok)
}

func TestRegistryVersionsSorted(t *testing.T) {
	r := NewRegistry()
	for _, s := range []string{"2.0.0", "1.0.0", "1.5.2"} {
		v, _ := ParseVersion(s)
		r.Register(&Schema{Name: "hosts", Version: v})
	}
	versions := r.Versions("hosts")
	require.Len(t, versions, 3)
	assert.Equal(t, "1.0.0", versions[0].String())
	assert.Equal(t, "1.5.2", versions[1].String())
	assert.Equal(t, "2.0.0", versions[2].String())
}

func TestCanMigrateRequiresSameMajorAndNonDecreasing(t *testing.T) {
	v1, _ := ParseVersion("1.0.0")
	v12, _ := ParseVersion("1.2.0")
	v2, _ := ParseVersion("2.0.0")

	assert.True(t, CanMigrate(v1, v12))
	assert.False(t, CanMigrate(v12, v1))
	assert.False(t, CanMigrate(v1, v2))
}

func TestMigrateCopiesFieldsAndStampsVersion(t *testing.T) {
	s := hostSchema()
	target, _ := ParseVersion("1.3.0")
	migrated, err := Migrate(s, target)
	require.NoError(t, err)
	assert.Equal(t, target, migrated.Version)
	assert.Len(t, migrated.Fields, len(s.Fields))
	assert.Contains(t, migrated.Description, "migrated from 1.2.0")
}

func TestValidateHeaderFlagsMissingRequiredAndExtraColumns(t *testing.T) {
	rv := NewRowValidator(hostSchema())
	res := rv.ValidateHeader([]string{"host", "active", "unexpected"}, false)
	assert.False(t, res.Valid)
	assert.Contains(t, res.MissingFields, "port")
	assert.Contains(t, res.ExtraColumns, "unexpected")
}

func TestValidateHeaderStrictModeFailsOnExtraColumn(t *testing.T) {
	rv := NewRowValidator(hostSchema())
	res := rv.ValidateHeader([]string{"host", "port", "active", "extra"}, true)
	assert.False(t, res.Valid)
}

func TestValidateHeaderAllowExtraColumnsPasses(t *testing.T) {
	s := hostSchema()
	s.AllowExtraColumns = true
	rv := NewRowValidator(s)
	res := rv.ValidateHeader([]string{"host", "port", "active", "whatever"}, true)
	assert.Empty(t, res.ExtraColumns)
}

func TestValidateRowAcceptsWellFormedRow(t *testing.T) {
	s := hostSchema()
	rv := NewRowValidator(s)
	rv.ValidateHeader([]string{"host", "port", "ip", "active", "severity"}, false)

	res := rv.ValidateRow([]string{"example.com", "8080", "10.0.0.1", "true", "high"}, 1)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateRowRejectsOutOfRangePort(t *testing.T) {
	s := hostSchema()
	rv := NewRowValidator(s)
	rv.ValidateHeader([]string{"host", "port", "ip", "active", "severity"}, false)

	res := rv.ValidateRow([]string{"example.com", "99999", "", "true", "high"}, 1)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "port", res.Errors[0].Field)
}

func TestValidateRowRequiredFieldEmptySentinelFails(t *testing.T) {
	s := hostSchema()
	rv := NewRowValidator(s)
	rv.ValidateHeader([]string{"host", "port", "ip", "active", "severity"}, false)

	res := rv.ValidateRow([]string{"N/A", "80", "", "true", ""}, 1)
	assert.False(t, res.Valid)
}

func TestValidateRowOptionalFieldEmptyPasses(t *testing.T) {
	s := hostSchema()
	rv := NewRowValidator(s)
	rv.ValidateHeader([]string{"host", "port", "ip", "active", "severity"}, false)

	res := rv.ValidateRow([]string{"example.com", "80", "", "true", ""}, 1)
	assert.True(t, res.Valid)
}

func TestValidateRowRequiredFieldWithDefaultPasses(t *testing.T) {
	s := hostSchema()
	s.Fields[3].Default = "false"
	rv := NewRowValidator(s)
	rv.ValidateHeader([]string{"host", "port", "ip", "active", "severity"}, false)

	res := rv.ValidateRow([]string{"example.com", "80", "", "", ""}, 1)
	assert.True(t, res.Valid)
}

func TestPerFieldErrorRateLimitSuppressesFurtherErrors(t *testing.T) {
	s := hostSchema()
	s.MaxErrorsPerField = 2
	rv := NewRowValidator(s)
	rv.ValidateHeader([]string{"host", "port", "ip", "active", "severity"}, false)

	for i := 0; i < 5; i++ {
		rv.ValidateRow([]string{"example.com", "not-a-number", "", "true", ""}, i+1)
	}

	stats := rv.Stats()
	assert.Equal(t, 2, stats.ErrorsTotal, "only the first 2 errors on 'port' should count")
	assert.Equal(t, 1, stats.WarningsTotal, "the 3rd failure should emit exactly one suppression warning")

	res := rv.ValidateRow([]string{"example.com", "still-bad", "", "true", ""}, 6)
	assert.False(t, res.Valid)
	assert.Empty(t, res.Errors, "errors on a suppressed field produce no further entries")
}

func TestStopOnFirstErrorHaltsValidation(t *testing.T) {
	s := hostSchema()
	s.StopOnFirstError = true
	rv := NewRowValidator(s)
	rv.ValidateHeader([]string{"host", "port", "ip", "active", "severity"}, false)

	res := rv.ValidateRow([]string{"example.com", "not-a-number", "", "true", ""}, 1)
	assert.False(t, res.Valid)
	assert.True(t, rv.Stopped())

	res2 := rv.ValidateRow([]string{"example.com", "80", "", "true", ""}, 2)
	assert.False(t, res2.Valid, "validator stays stopped regardless of subsequent row content")
}

func TestFieldTypeValidators(t *testing.T) {
	cases := []struct {
		name  string
		field FieldSchema
		value string
		want  bool
	}{
		{"email ok", FieldSchema{Type: TypeEmail}, "a@b.com", true},
		{"email bad", FieldSchema{Type: TypeEmail}, "not-an-email", false},
		{"url ok", FieldSchema{Type: TypeURL}, "https://example.com/path", true},
		{"url bad", FieldSchema{Type: TypeURL}, "ftp://example.com", false},
		{"uuid ok", FieldSchema{Type: TypeUUID}, "123e4567-e89b-12d3-a456-426614174000", true},
		{"uuid bad", FieldSchema{Type: TypeUUID}, "not-a-uuid", false},
		{"date ok", FieldSchema{Type: TypeDate}, "2026-07-31", true},
		{"date bad", FieldSchema{Type: TypeDate}, "07/31/2026", false},
		{"datetime ok", FieldSchema{Type: TypeDatetime}, "2026-07-31T10:00:00.500Z", true},
		{"ipv4 ok", FieldSchema{Type: TypeIPAddress}, "192.168.1.1", true},
		{"ipv4 bad octet", FieldSchema{Type: TypeIPAddress}, "999.1.1.1", false},
		{"ipv6 ok", FieldSchema{Type: TypeIPAddress}, "fe80::1", true},
		{"enum ok", FieldSchema{Type: TypeEnum, EnumValues: []string{"a", "b"}}, "a", true},
		{"enum bad", FieldSchema{Type: TypeEnum, EnumValues: []string{"a", "b"}}, "c", false},
		{"bool ok", FieldSchema{Type: TypeBoolean}, "YES", true},
		{"bool bad", FieldSchema{Type: TypeBoolean}, "maybe", false},
	}

	rv := NewRowValidator(&Schema{Name: "t", Fields: nil})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, _, _ := rv.validateValue(tc.field, tc.value)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestCustomValidatorType(t *testing.T) {
	field := FieldSchema{Type: TypeCustom, Custom: func(v string) bool { return v == "ok" }}
	rv := NewRowValidator(&Schema{Name: "t"})

	ok, _, _ := rv.validateValue(field, "ok")
	assert.True(t, ok)

	ok, _, _ = rv.validateValue(field, "nope")
	assert.False(t, ok)
}
