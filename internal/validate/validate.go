// Package validate checks candidate records against their table schema.
//
// Validation is a pure computation: it never touches the store. It collects
// every violated constraint — not just the first — so callers can report the
// complete list in one round trip, and it returns a normalized copy of the
// record (defaults materialized, numbers as float64, timestamps in RFC 3339)
// without mutating the input.
//
// Partial mode is used for updates: absent fields pass through unexamined,
// since the repository validates the merged record afterwards.
package validate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/schema"
	"github.com/koustreak/TabRi/internal/tabular"
)

const dateLayout = "2006-01-02"

// emailPattern is deliberately loose: one @, no whitespace, a dotted domain.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Record validates rec against t and returns a normalized copy, or an
// ErrKindValidation error aggregating every violation found.
//
// With partial=true (updates), absent fields are skipped entirely; with
// partial=false (creates), required fields must be present unless they are
// auto-generated, and declared defaults are materialized for absent fields.
func Record(t *schema.Table, rec tabular.Record, partial bool) (tabular.Record, error) {
	out := make(tabular.Record, len(rec))
	var violations []string

	for i := range t.Fields {
		f := &t.Fields[i]
		v, present := rec[f.Name]
		if v == nil || v == "" {
			present = false
		}

		if !present {
			switch {
			case partial:
				// updates never fail on absence
			case f.AutoGenerate:
				// the repository supplies these
			case f.Required:
				violations = append(violations,
					fmt.Sprintf("field %q is required", f.Name))
			case f.Default != nil:
				out[f.Name] = materializeDefault(f.Default)
			}
			continue
		}

		normalized, problem := checkValue(f, v)
		if problem != "" {
			violations = append(violations, problem)
			continue
		}
		out[f.Name] = normalized
	}

	// Unknown fields are typos or stray payload, never silently stored.
	for name := range rec {
		if _, ok := t.Field(name); !ok {
			violations = append(violations,
				fmt.Sprintf("field %q is not part of table %q", name, t.Name))
		}
	}

	if len(violations) > 0 {
		return nil, errs.Validation(t.Name, violations)
	}
	return out, nil
}

// materializeDefault expands the TODAY/NOW tokens; any other declared
// default is taken literally.
func materializeDefault(def any) any {
	switch def {
	case schema.DefaultToday:
		return time.Now().UTC().Format(dateLayout)
	case schema.DefaultNow:
		return time.Now().UTC().Format(time.RFC3339)
	default:
		return def
	}
}

// checkValue runs the type-specific constraint checks for one present value.
// It returns the normalized value, or a violation message.
func checkValue(f *schema.FieldSpec, v any) (any, string) {
	switch f.Type {
	case schema.TypeString, schema.TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Sprintf("field %q: expected a string, got %T", f.Name, v)
		}
		if f.MinLength != nil && len(s) < *f.MinLength {
			return nil, fmt.Sprintf("field %q: %q is shorter than %d characters", f.Name, s, *f.MinLength)
		}
		if f.MaxLength != nil && len(s) > *f.MaxLength {
			return nil, fmt.Sprintf("field %q: value is longer than %d characters", f.Name, *f.MaxLength)
		}
		if re := f.CompiledPattern(); re != nil && !re.MatchString(s) {
			return nil, fmt.Sprintf("field %q: %q does not match pattern %s", f.Name, s, f.Pattern)
		}
		return s, ""

	case schema.TypeNumber:
		n, ok := tabular.ToNumber(v)
		if !ok {
			return nil, fmt.Sprintf("field %q: %v is not a number", f.Name, v)
		}
		if f.Min != nil && n < *f.Min {
			return nil, fmt.Sprintf("field %q: %v is below the minimum %v", f.Name, n, *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return nil, fmt.Sprintf("field %q: %v is above the maximum %v", f.Name, n, *f.Max)
		}
		return n, ""

	case schema.TypeEmail:
		s, ok := v.(string)
		if !ok || !emailPattern.MatchString(s) {
			return nil, fmt.Sprintf("field %q: %v is not a valid email address", f.Name, v)
		}
		return s, ""

	case schema.TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Sprintf("field %q: expected one of %v, got %T", f.Name, f.Values, v)
		}
		for _, allowed := range f.Values {
			if s == allowed {
				return s, ""
			}
		}
		return nil, fmt.Sprintf("field %q: %q is not one of %v", f.Name, s, f.Values)

	case schema.TypeTimestamp:
		switch ts := v.(type) {
		case time.Time:
			return ts.UTC().Format(time.RFC3339), ""
		case string:
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, fmt.Sprintf("field %q: %q is not an RFC 3339 timestamp", f.Name, ts)
			}
			return parsed.UTC().Format(time.RFC3339), ""
		default:
			return nil, fmt.Sprintf("field %q: expected a timestamp, got %T", f.Name, v)
		}

	case schema.TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d.UTC().Format(dateLayout), ""
		case string:
			parsed, err := time.Parse(dateLayout, d)
			if err != nil {
				return nil, fmt.Sprintf("field %q: %q is not a YYYY-MM-DD date", f.Name, d)
			}
			return parsed.Format(dateLayout), ""
		default:
			return nil, fmt.Sprintf("field %q: expected a date, got %T", f.Name, v)
		}

	case schema.TypeBoolean:
		b, ok := tabular.ToBool(v)
		if !ok {
			return nil, fmt.Sprintf("field %q: %v is not a boolean", f.Name, v)
		}
		return b, ""

	default:
		// unreachable: the registry rejects unknown types at registration
		return nil, fmt.Sprintf("field %q has unsupported type %q", f.Name, f.Type)
	}
}
