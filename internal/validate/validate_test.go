package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
)

func customersTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl := &schema.Table{
		Name:        "Customers",
		StorageName: "customers",
		PrimaryKey:  "customer_id",
		Fields: []schema.FieldSpec{
			{Name: "customer_id", Type: schema.TypeString, Required: true, AutoGenerate: true},
			{Name: "name", Type: schema.TypeString, Required: true, MinLength: schema.Int(2), MaxLength: schema.Int(50)},
			{Name: "email", Type: schema.TypeEmail, Required: true, Unique: true},
			{Name: "status", Type: schema.TypeEnum, Values: []string{"active", "inactive"}, Default: "active"},
			{Name: "credit_limit", Type: schema.TypeNumber, Min: schema.Float(0), Max: schema.Float(100000)},
			{Name: "vip", Type: schema.TypeBoolean, Default: false},
			{Name: "signup_date", Type: schema.TypeDate, Default: schema.DefaultToday},
			{Name: "created_at", Type: schema.TypeTimestamp, AutoGenerate: true},
		},
	}
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(tbl))
	return tbl
}

func TestRecord_ValidCreate(t *testing.T) {
	tbl := customersTable(t)

	out, err := Record(tbl, tabular.Record{
		"name":         "Ada Lovelace",
		"email":        "ada@example.com",
		"credit_limit": 500,
	}, false)
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", out["name"])
	assert.Equal(t, "ada@example.com", out["email"])
	assert.Equal(t, float64(500), out["credit_limit"], "numbers normalize to float64")
	assert.Equal(t, "active", out["status"], "enum default materialized")
	assert.Equal(t, false, out["vip"], "literal default materialized")

	// TODAY token expands to the current date
	_, perr := time.Parse("2006-01-02", out["signup_date"].(string))
	assert.NoError(t, perr)

	// auto-generated fields are left for the repository
	assert.NotContains(t, out, "customer_id")
	assert.NotContains(t, out, "created_at")
}

func TestRecord_CollectsAllViolations(t *testing.T) {
	tbl := customersTable(t)

	_, err := Record(tbl, tabular.Record{
		"name":         "A",              // too short
		"email":        "not-an-email",   // bad format
		"status":       "suspended",      // not in enum
		"credit_limit": -5,               // below min
		"nickname":     "ada",            // unknown field
	}, false)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	violations := errs.ViolationsOf(err)
	require.Len(t, violations, 5)

	joined := strings.Join(violations, "\n")
	assert.Contains(t, joined, `"name"`)
	assert.Contains(t, joined, `"email"`)
	assert.Contains(t, joined, `"status"`)
	assert.Contains(t, joined, `"credit_limit"`)
	assert.Contains(t, joined, `"nickname"`)
}

func TestRecord_RequiredFields(t *testing.T) {
	tbl := customersTable(t)

	_, err := Record(tbl, tabular.Record{}, false)
	require.Error(t, err)

	violations := errs.ViolationsOf(err)
	joined := strings.Join(violations, "\n")
	assert.Contains(t, joined, `"name"`)
	assert.Contains(t, joined, `"email"`)
	// auto-generated required fields never fail on absence
	assert.NotContains(t, joined, `"customer_id"`)

	// empty string counts as missing
	_, err = Record(tbl, tabular.Record{"name": "", "email": "a@x.com"}, false)
	require.Error(t, err)
	assert.Contains(t, strings.Join(errs.ViolationsOf(err), "\n"), `"name" is required`)
}

func TestRecord_PartialMode(t *testing.T) {
	tbl := customersTable(t)

	// absent required fields are fine in partial mode
	out, err := Record(tbl, tabular.Record{"credit_limit": "250"}, true)
	require.NoError(t, err)
	assert.Equal(t, float64(250), out["credit_limit"])
	assert.NotContains(t, out, "status", "defaults are not materialized for updates")

	// supplied fields are still checked
	_, err = Record(tbl, tabular.Record{"email": "nope"}, true)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestRecord_EnumClosure(t *testing.T) {
	tbl := customersTable(t)

	for _, allowed := range []string{"active", "inactive"} {
		out, err := Record(tbl, tabular.Record{"status": allowed}, true)
		require.NoError(t, err, allowed)
		assert.Equal(t, allowed, out["status"])
	}

	_, err := Record(tbl, tabular.Record{"status": "deleted"}, true)
	assert.Error(t, err)
}

func TestRecord_TimestampAndDateNormalization(t *testing.T) {
	tbl := customersTable(t)

	moment := time.Date(2026, 3, 14, 9, 26, 53, 0, time.FixedZone("X", 3600))
	out, err := Record(tbl, tabular.Record{"created_at": moment}, true)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14T08:26:53Z", out["created_at"], "timestamps normalize to UTC RFC 3339")

	out, err = Record(tbl, tabular.Record{"signup_date": "2026-02-01"}, true)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", out["signup_date"])

	_, err = Record(tbl, tabular.Record{"signup_date": "02/01/2026"}, true)
	assert.Error(t, err)

	_, err = Record(tbl, tabular.Record{"created_at": "yesterday"}, true)
	assert.Error(t, err)
}

func TestRecord_BooleanCoercion(t *testing.T) {
	tbl := customersTable(t)

	tests := []struct {
		in   any
		want bool
	}{
		{true, true},
		{"true", true},
		{"false", false},
		{1, true},
		{0, false},
	}
	for _, tt := range tests {
		out, err := Record(tbl, tabular.Record{"vip": tt.in}, true)
		require.NoError(t, err)
		assert.Equal(t, tt.want, out["vip"])
	}

	_, err := Record(tbl, tabular.Record{"vip": "perhaps"}, true)
	assert.Error(t, err)
}

func TestRecord_RoundTrip(t *testing.T) {
	tbl := customersTable(t)

	out, err := Record(tbl, tabular.Record{
		"name":  "Grace Hopper",
		"email": "grace@example.com",
	}, false)
	require.NoError(t, err)

	// a validated record re-validates cleanly in partial mode,
	// with no values changed
	again, err := Record(tbl, out, true)
	require.NoError(t, err)
	for k, v := range out {
		assert.Equal(t, v, again[k], k)
	}
}

func TestRecord_DoesNotMutateInput(t *testing.T) {
	tbl := customersTable(t)

	in := tabular.Record{"name": "Ada", "email": "ada@example.com"}
	_, err := Record(tbl, in, false)
	require.NoError(t, err)
	assert.Equal(t, tabular.Record{"name": "Ada", "email": "ada@example.com"}, in)
	assert.NotContains(t, in, "status")
}
