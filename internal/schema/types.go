package schema

import "regexp"

// FieldType is the declared type of a column. Exactly one type applies to
// each field; the validator dispatches on it.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeEmail     FieldType = "email"
	TypeEnum      FieldType = "enum"
	TypeTimestamp FieldType = "timestamp"
	TypeDate      FieldType = "date"
	TypeText      FieldType = "text"
	TypeBoolean   FieldType = "boolean"
)

// DeletePolicy controls what happens to child rows when their referenced
// parent row is deleted.
type DeletePolicy string

const (
	// DeleteRestrict blocks deleting a parent while children reference it.
	DeleteRestrict DeletePolicy = "RESTRICT"

	// DeleteCascade deletes referencing children first, recursively.
	DeleteCascade DeletePolicy = "CASCADE"
)

// Default value tokens, materialized by the validator at write time.
const (
	// DefaultToday expands to the current date as YYYY-MM-DD.
	DefaultToday = "TODAY"

	// DefaultNow expands to the current time as an RFC 3339 timestamp.
	DefaultNow = "NOW"
)

// ForeignKey declares a directed edge from this field to a field in a
// parent table. The referenced value must exist at write time.
type ForeignKey struct {
	Table    string       // referenced table name (registry key)
	Field    string       // referenced field in that table
	OnDelete DeletePolicy // RESTRICT or CASCADE
}

// FieldSpec declares one column: its type, constraints, default, and
// generation rules. Zero-value constraint pointers mean "unconstrained".
type FieldSpec struct {
	Name string
	Type FieldType

	Required bool
	Unique   bool

	// Default is materialized when the field is absent on create.
	// The DefaultToday / DefaultNow tokens expand to the current
	// date / timestamp; any other value is taken literally.
	Default any

	// AutoGenerate marks fields the repository fills on create
	// (primary keys, creation timestamps). Absence never fails validation.
	AutoGenerate bool

	// AutoUpdate marks timestamp fields refreshed on every update
	// (and stamped on create).
	AutoUpdate bool

	// Numeric bounds (TypeNumber).
	Min *float64
	Max *float64

	// Length bounds (TypeString, TypeText).
	MinLength *int
	MaxLength *int

	// Pattern is an optional regular expression the value must match
	// (TypeString). Compiled once at registration.
	Pattern string

	// Values is the closed set of allowed values (TypeEnum).
	Values []string

	ForeignKey *ForeignKey

	pattern *regexp.Regexp
}

// CompiledPattern returns the regexp compiled from Pattern at registration,
// or nil when no pattern is declared.
func (f *FieldSpec) CompiledPattern() *regexp.Regexp {
	return f.pattern
}

// Index declares a covering index over one or more fields. Indexes are
// declarative metadata: repositories build their own per-field lookup
// caches, and unique single-field indexes imply Unique on that field.
type Index struct {
	Fields []string
	Unique bool
}

// Table is one schema entry: the registry key, the physical storage name,
// the primary key, and the ordered field list. Field order determines
// physical column order in the backing store.
type Table struct {
	Name        string
	StorageName string
	PrimaryKey  string
	Fields      []FieldSpec
	Indexes     []Index

	byName map[string]int
}

// Field returns the FieldSpec for name, or false when the table has no such field.
func (t *Table) Field(name string) (*FieldSpec, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.Fields[i], true
}

// FieldNames returns the field names in declaration (= physical column) order.
func (t *Table) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i := range t.Fields {
		names[i] = t.Fields[i].Name
	}
	return names
}

// ChildRef is a reverse foreign-key edge: a field in Table that references
// ParentField in the parent table the edge was looked up for.
type ChildRef struct {
	Table       string
	Field       string
	ParentField string
	OnDelete    DeletePolicy
}

// --- Pointer helpers for constraint literals ---

// Float returns a *float64 for use in Min/Max constraints.
func Float(v float64) *float64 { return &v }

// Int returns an *int for use in MinLength/MaxLength constraints.
func Int(v int) *int { return &v }
