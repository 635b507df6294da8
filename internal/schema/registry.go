// Package schema holds the declarative table definitions TabRi operates on.
//
// A Registry is populated once at startup and is read-only afterwards:
// every other component (validator, repository, query builder) consults it
// on each operation but never mutates it. Changing a schema means changing
// the definitions and redeploying.
//
// Usage:
//
//	reg := schema.NewRegistry()
//	reg.MustRegister(&schema.Table{
//	    Name:        "Customers",
//	    StorageName: "customers",
//	    PrimaryKey:  "customer_id",
//	    Fields: []schema.FieldSpec{
//	        {Name: "customer_id", Type: schema.TypeString, AutoGenerate: true},
//	        {Name: "email", Type: schema.TypeEmail, Required: true, Unique: true},
//	    },
//	})
//	if err := reg.Check(); err != nil { ... }
package schema

import (
	"regexp"

	"github.com/koustreak/TabRi/internal/errs"
)

// Registry maps table names to their definitions. It is not safe for
// concurrent registration; register everything during startup, call Check,
// and treat it as immutable from then on.
type Registry struct {
	tables map[string]*Table
	order  []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register validates and adds one table definition. Cross-table rules
// (foreign-key targets) are deferred to Check so tables may be registered
// in any order.
func (r *Registry) Register(t *Table) error {
	if t == nil || t.Name == "" {
		return errs.New(errs.ErrKindInvalidInput, "table definition must have a name")
	}
	if _, exists := r.tables[t.Name]; exists {
		return errs.Newf(errs.ErrKindInvalidInput, "table %q is already registered", t.Name)
	}
	if t.StorageName == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "table %q has no storage name", t.Name)
	}
	if len(t.Fields) == 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "table %q has no fields", t.Name)
	}

	t.byName = make(map[string]int, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Name == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "table %q: field %d has no name", t.Name, i)
		}
		if _, dup := t.byName[f.Name]; dup {
			return errs.Newf(errs.ErrKindInvalidInput, "table %q: duplicate field %q", t.Name, f.Name)
		}
		if err := checkField(t.Name, f); err != nil {
			return err
		}
		t.byName[f.Name] = i
	}

	if t.PrimaryKey == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "table %q has no primary key", t.Name)
	}
	if _, ok := t.byName[t.PrimaryKey]; !ok {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: primary key %q is not a declared field", t.Name, t.PrimaryKey)
	}

	for _, idx := range t.Indexes {
		for _, name := range idx.Fields {
			if _, ok := t.byName[name]; !ok {
				return errs.Newf(errs.ErrKindInvalidInput,
					"table %q: index references unknown field %q", t.Name, name)
			}
		}
	}

	r.tables[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register that panics on a bad definition. Intended for
// static schema declarations evaluated at startup.
func (r *Registry) MustRegister(t *Table) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Check verifies cross-table invariants: every foreign key must point at a
// registered table and an existing field in it. Call once after all tables
// are registered.
func (r *Registry) Check() error {
	for _, name := range r.order {
		t := r.tables[name]
		for i := range t.Fields {
			fk := t.Fields[i].ForeignKey
			if fk == nil {
				continue
			}
			parent, ok := r.tables[fk.Table]
			if !ok {
				return errs.Newf(errs.ErrKindInvalidInput,
					"table %q: field %q references unregistered table %q",
					name, t.Fields[i].Name, fk.Table)
			}
			if _, ok := parent.byName[fk.Field]; !ok {
				return errs.Newf(errs.ErrKindInvalidInput,
					"table %q: field %q references unknown field %q.%q",
					name, t.Fields[i].Name, fk.Table, fk.Field)
			}
			switch fk.OnDelete {
			case DeleteRestrict, DeleteCascade:
			default:
				return errs.Newf(errs.ErrKindInvalidInput,
					"table %q: field %q has invalid delete policy %q",
					name, t.Fields[i].Name, fk.OnDelete)
			}
		}
	}
	return nil
}

// Table returns the definition registered under name.
func (r *Registry) Table(name string) (*Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindSchemaNotFound, "table %q is not registered", name)
	}
	return t, nil
}

// Tables returns all registered table names in registration order.
func (r *Registry) Tables() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FieldNames returns the ordered field names of a registered table.
func (r *Registry) FieldNames(table string) ([]string, error) {
	t, err := r.Table(table)
	if err != nil {
		return nil, err
	}
	return t.FieldNames(), nil
}

// PrimaryKey returns the primary-key field name of a registered table.
func (r *Registry) PrimaryKey(table string) (string, error) {
	t, err := r.Table(table)
	if err != nil {
		return "", err
	}
	return t.PrimaryKey, nil
}

// StorageName returns the physical table name of a registered table.
func (r *Registry) StorageName(table string) (string, error) {
	t, err := r.Table(table)
	if err != nil {
		return "", err
	}
	return t.StorageName, nil
}

// ChildRefs returns every foreign-key edge in the registry that points at
// parent, in registration order. Repositories walk these edges to enforce
// RESTRICT and to propagate CASCADE deletes.
func (r *Registry) ChildRefs(parent string) []ChildRef {
	var refs []ChildRef
	for _, name := range r.order {
		t := r.tables[name]
		for i := range t.Fields {
			fk := t.Fields[i].ForeignKey
			if fk != nil && fk.Table == parent {
				refs = append(refs, ChildRef{
					Table:       name,
					Field:       t.Fields[i].Name,
					ParentField: fk.Field,
					OnDelete:    fk.OnDelete,
				})
			}
		}
	}
	return refs
}

// checkField enforces per-field definition invariants and compiles patterns.
func checkField(table string, f *FieldSpec) error {
	switch f.Type {
	case TypeString, TypeNumber, TypeEmail, TypeEnum,
		TypeTimestamp, TypeDate, TypeText, TypeBoolean:
	default:
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: field %q has unknown type %q", table, f.Name, f.Type)
	}

	if f.Type == TypeEnum && len(f.Values) == 0 {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: enum field %q declares no values", table, f.Name)
	}

	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: field %q has min > max", table, f.Name)
	}
	if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: field %q has minLength > maxLength", table, f.Name)
	}

	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput,
				"table "+table+": field "+f.Name+" has an invalid pattern", err)
		}
		f.pattern = re
	}
	return nil
}
