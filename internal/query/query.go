// Package query provides a fluent, chainable read API over one Repository.
//
// Conditions are AND-combined and evaluated in memory against the decoded
// records, so the same builder works unchanged over every tabular backend.
// A builder is reusable: terminal calls (Get, Count, Paginate, ...) never
// consume or reset its state.
//
// Usage:
//
//	page, err := query.New(orders).
//	    Where("status", "=", "pending").
//	    Where("total", ">=", 100).
//	    OrderBy("total", query.Desc).
//	    Paginate(ctx, 1, 20)
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/repository"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
)

// validOps is the allowlist of comparison operators for Where conditions.
// Anything else is rejected when the query runs.
var validOps = map[string]bool{
	"=":        true,
	"!=":       true,
	"<>":       true,
	"<":        true,
	">":        true,
	"<=":       true,
	">=":       true,
	"CONTAINS": true,
}

// SortDirection controls the OrderBy direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	field string
	op    string
	value any
}

type orderClause struct {
	field string
	dir   SortDirection
}

// predicate is one compiled condition; all predicates are AND-combined.
type predicate func(rec tabular.Record) (bool, error)

// Builder accumulates conditions against one Repository. The zero value is
// not usable; start with New. Builders are not safe for concurrent use.
type Builder struct {
	repo   *repository.Repository
	where  []whereClause
	preds  []predicate
	order  *orderClause
	limit  *int
	offset *int
	fields []string

	// the first construction error, reported by the terminal call
	err error
}

// New starts a Builder over repo.
func New(repo *repository.Repository) *Builder {
	return &Builder{repo: repo}
}

// Where adds one condition. op must be one of =, !=, <>, <, >, <=, >=,
// CONTAINS. Multiple calls are combined with AND, in any order.
// A record missing the field matches no condition.
func (b *Builder) Where(field, op string, value any) *Builder {
	op = strings.ToUpper(strings.TrimSpace(op))
	if !validOps[op] {
		b.fail(errs.Newf(errs.ErrKindInvalidInput, "unsupported operator %q", op))
		return b
	}
	if _, ok := b.checkField(field); !ok {
		return b
	}
	b.where = append(b.where, whereClause{field, op, value})
	return b
}

// WhereEq is shorthand for Where(field, "=", value).
func (b *Builder) WhereEq(field string, value any) *Builder {
	return b.Where(field, "=", value)
}

// WhereIn matches records whose field equals any of values. An empty values
// list matches nothing.
func (b *Builder) WhereIn(field string, values ...any) *Builder {
	f, ok := b.checkField(field)
	if !ok {
		return b
	}
	b.preds = append(b.preds, func(rec tabular.Record) (bool, error) {
		v, present := rec[field]
		if !present {
			return false, nil
		}
		for _, candidate := range values {
			c, err := compareTyped(f, v, candidate)
			if err != nil {
				return false, err
			}
			if c == 0 {
				return true, nil
			}
		}
		return false, nil
	})
	return b
}

// WhereNotIn matches records whose field is present and equals none of
// values.
func (b *Builder) WhereNotIn(field string, values ...any) *Builder {
	f, ok := b.checkField(field)
	if !ok {
		return b
	}
	b.preds = append(b.preds, func(rec tabular.Record) (bool, error) {
		v, present := rec[field]
		if !present {
			return false, nil
		}
		for _, candidate := range values {
			c, err := compareTyped(f, v, candidate)
			if err != nil {
				return false, err
			}
			if c == 0 {
				return false, nil
			}
		}
		return true, nil
	})
	return b
}

// WhereBetween matches lo <= field <= hi (both ends inclusive). For
// timestamp and date fields the stored form is canonical, so lexicographic
// comparison of the bounds is chronological.
func (b *Builder) WhereBetween(field string, lo, hi any) *Builder {
	f, ok := b.checkField(field)
	if !ok {
		return b
	}
	b.preds = append(b.preds, func(rec tabular.Record) (bool, error) {
		v, present := rec[field]
		if !present {
			return false, nil
		}
		cl, err := compareTyped(f, v, lo)
		if err != nil {
			return false, err
		}
		ch, err := compareTyped(f, v, hi)
		if err != nil {
			return false, err
		}
		return cl >= 0 && ch <= 0, nil
	})
	return b
}

// WhereStartsWith matches string fields by prefix.
func (b *Builder) WhereStartsWith(field, prefix string, caseSensitive bool) *Builder {
	return b.whereString(field, prefix, caseSensitive, strings.HasPrefix)
}

// WhereEndsWith matches string fields by suffix.
func (b *Builder) WhereEndsWith(field, suffix string, caseSensitive bool) *Builder {
	return b.whereString(field, suffix, caseSensitive, strings.HasSuffix)
}

// WhereContains matches string fields by substring.
func (b *Builder) WhereContains(field, needle string, caseSensitive bool) *Builder {
	return b.whereString(field, needle, caseSensitive, strings.Contains)
}

// WhereNull matches records where field is absent (empty in the store).
func (b *Builder) WhereNull(field string) *Builder {
	if _, ok := b.checkField(field); !ok {
		return b
	}
	b.preds = append(b.preds, func(rec tabular.Record) (bool, error) {
		_, present := rec[field]
		return !present, nil
	})
	return b
}

// WhereNotNull matches records where field has a value.
func (b *Builder) WhereNotNull(field string) *Builder {
	if _, ok := b.checkField(field); !ok {
		return b
	}
	b.preds = append(b.preds, func(rec tabular.Record) (bool, error) {
		_, present := rec[field]
		return present, nil
	})
	return b
}

// WhereDateBetween is WhereBetween for date and timestamp fields, named for
// call-site clarity. Bounds are the canonical stored strings ("2006-01-02"
// or RFC 3339).
func (b *Builder) WhereDateBetween(field, from, to string) *Builder {
	return b.WhereBetween(field, from, to)
}

// OrderBy sets the single sort key. A second call replaces the first.
func (b *Builder) OrderBy(field string, dir SortDirection) *Builder {
	if _, ok := b.checkField(field); !ok {
		return b
	}
	b.order = &orderClause{field, dir}
	return b
}

// Limit caps the number of records returned by Get.
func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

// Offset skips n records (after filter and sort, before the limit).
func (b *Builder) Offset(n int) *Builder {
	b.offset = &n
	return b
}

// Select projects the result down to the named fields (plus nothing else).
// Without it, whole records are returned.
func (b *Builder) Select(fields ...string) *Builder {
	for _, f := range fields {
		if _, ok := b.checkField(f); !ok {
			return b
		}
	}
	b.fields = fields
	return b
}

// Get runs the query: filter, sort, offset, limit, projection — in that
// order.
func (b *Builder) Get(ctx context.Context) ([]tabular.Record, error) {
	records, err := b.matched(ctx)
	if err != nil {
		return nil, err
	}

	b.sortRecords(records)

	if b.offset != nil {
		if *b.offset >= len(records) {
			records = nil
		} else {
			records = records[*b.offset:]
		}
	}
	if b.limit != nil && len(records) > *b.limit {
		records = records[:*b.limit]
	}

	if len(b.fields) > 0 {
		projected := make([]tabular.Record, len(records))
		for i, rec := range records {
			p := make(tabular.Record, len(b.fields))
			for _, f := range b.fields {
				if v, ok := rec[f]; ok {
					p[f] = v
				}
			}
			projected[i] = p
		}
		records = projected
	}

	if records == nil {
		records = []tabular.Record{}
	}
	return records, nil
}

// First returns the first record of Get, or nil when nothing matches.
func (b *Builder) First(ctx context.Context) (tabular.Record, error) {
	records, err := b.matched(ctx)
	if err != nil {
		return nil, err
	}
	b.sortRecords(records)

	skip := 0
	if b.offset != nil {
		skip = *b.offset
	}
	if skip >= len(records) {
		return nil, nil
	}
	rec := records[skip]

	if len(b.fields) > 0 {
		p := make(tabular.Record, len(b.fields))
		for _, f := range b.fields {
			if v, ok := rec[f]; ok {
				p[f] = v
			}
		}
		rec = p
	}
	return rec, nil
}

// Count returns how many records match the conditions, ignoring limit and
// offset. The builder is left untouched, so it can still run Get afterwards.
func (b *Builder) Count(ctx context.Context) (int, error) {
	records, err := b.matched(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Exists reports whether at least one record matches the conditions.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	n, err := b.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Page is one page of query results with its pagination arithmetic.
type Page struct {
	Data       []tabular.Record `json:"data"`
	PageNumber int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalCount int              `json:"totalCount"`
	TotalPages int              `json:"totalPages"`
	HasNext    bool             `json:"hasNext"`
	HasPrev    bool             `json:"hasPrev"`
}

// Paginate runs the query for one page (1-based). It overrides any Limit or
// Offset set on the builder for this call only.
func (b *Builder) Paginate(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 || pageSize < 1 {
		return nil, errs.Newf(errs.ErrKindInvalidInput,
			"page and pageSize must be positive, got page=%d pageSize=%d", page, pageSize)
	}

	records, err := b.matched(ctx)
	if err != nil {
		return nil, err
	}
	b.sortRecords(records)

	total := len(records)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	var data []tabular.Record
	if start < total {
		end := start + pageSize
		if end > total {
			end = total
		}
		data = records[start:end]
	} else {
		data = []tabular.Record{}
	}

	return &Page{
		Data:       data,
		PageNumber: page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1 && total > 0,
	}, nil
}

// --- internals ---

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// checkField validates a field name once at construction time.
func (b *Builder) checkField(field string) (*schema.FieldSpec, bool) {
	f, ok := b.repo.Table().Field(field)
	if !ok {
		b.fail(errs.Newf(errs.ErrKindInvalidInput,
			"table %q has no field %q", b.repo.Table().Name, field))
		return nil, false
	}
	return f, true
}

// whereString appends a string-shape predicate (prefix/suffix/substring).
func (b *Builder) whereString(field, operand string, caseSensitive bool, match func(s, sub string) bool) *Builder {
	if _, ok := b.checkField(field); !ok {
		return b
	}
	if !caseSensitive {
		operand = strings.ToLower(operand)
	}
	b.preds = append(b.preds, func(rec tabular.Record) (bool, error) {
		v, present := rec[field]
		if !present {
			return false, nil
		}
		s, ok := v.(string)
		if !ok {
			return false, errs.Newf(errs.ErrKindInvalidInput,
				"field %q does not hold strings", field)
		}
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		return match(s, operand), nil
	})
	return b
}

// matched fetches everything and applies the AND of all conditions.
func (b *Builder) matched(ctx context.Context) ([]tabular.Record, error) {
	if b.err != nil {
		return nil, b.err
	}

	all, err := b.repo.FindAll(ctx, nil)
	if err != nil {
		return nil, err
	}

	out := make([]tabular.Record, 0, len(all))
	for _, rec := range all {
		keep := true
		for _, w := range b.where {
			ok, err := matches(b.repo.Table(), rec, w)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		for _, pred := range b.preds {
			if !keep {
				break
			}
			ok, err := pred(rec)
			if err != nil {
				return nil, err
			}
			keep = ok
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (b *Builder) sortRecords(records []tabular.Record) {
	if b.order == nil {
		return
	}
	field, desc := b.order.field, b.order.dir == Desc
	sort.SliceStable(records, func(i, j int) bool {
		c := compare(records[i][field], records[j][field])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// matches evaluates one condition against one record. Absent fields match
// nothing.
func matches(t *schema.Table, rec tabular.Record, w whereClause) (bool, error) {
	v, present := rec[w.field]
	if !present {
		return false, nil
	}

	f, _ := t.Field(w.field)

	if w.op == "CONTAINS" {
		s, ok := v.(string)
		needle, ok2 := w.value.(string)
		if !ok || !ok2 {
			return false, errs.Newf(errs.ErrKindInvalidInput,
				"CONTAINS requires string operands on field %q", w.field)
		}
		return strings.Contains(s, needle), nil
	}

	c, err := compareTyped(f, v, w.value)
	if err != nil {
		return false, err
	}
	switch w.op {
	case "=":
		return c == 0, nil
	case "!=", "<>":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	default:
		return false, errs.Newf(errs.ErrKindInvalidInput, "unsupported operator %q", w.op)
	}
}

// compareTyped orders a stored value against a condition value using the
// field's type: numbers numerically, booleans false<true, everything else
// (strings, enums, RFC 3339 timestamps, dates) lexicographically.
func compareTyped(f *schema.FieldSpec, stored, cond any) (int, error) {
	switch f.Type {
	case schema.TypeNumber:
		a, ok1 := tabular.ToNumber(stored)
		b, ok2 := tabular.ToNumber(cond)
		if !ok1 || !ok2 {
			return 0, errs.Newf(errs.ErrKindInvalidInput,
				"field %q: %v is not comparable as a number", f.Name, cond)
		}
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		default:
			return 0, nil
		}

	case schema.TypeBoolean:
		a, ok1 := tabular.ToBool(stored)
		b, ok2 := tabular.ToBool(cond)
		if !ok1 || !ok2 {
			return 0, errs.Newf(errs.ErrKindInvalidInput,
				"field %q: %v is not comparable as a boolean", f.Name, cond)
		}
		switch {
		case a == b:
			return 0, nil
		case !a:
			return -1, nil
		default:
			return 1, nil
		}

	default:
		a := fmt.Sprint(stored)
		b := fmt.Sprint(cond)
		return strings.Compare(a, b), nil
	}
}

// compare orders two stored values for sorting: nil first, numbers and
// booleans by value, the rest by their printed form.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if na, ok := a.(float64); ok {
		if nb, ok := b.(float64); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
