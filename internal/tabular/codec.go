package tabular

import (
	"strconv"

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/schema"
)

// EncodeRow converts a record into a string row in the table's field order.
// Absent or nil fields encode as the empty string.
func EncodeRow(t *schema.Table, rec Record) ([]string, error) {
	row := make([]string, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		v, ok := rec[f.Name]
		if !ok || v == nil {
			row[i] = ""
			continue
		}
		s, err := EncodeValue(f, v)
		if err != nil {
			return nil, err
		}
		row[i] = s
	}
	return row, nil
}

// DecodeRow converts a string row read from a store into a record keyed by
// the table's field names. Empty cells decode as absent (no map entry).
// Rows shorter than the schema (trailing empty columns trimmed by some
// backings) are tolerated; extra cells are ignored.
func DecodeRow(t *schema.Table, row []string) (Record, error) {
	rec := make(Record, len(t.Fields))
	for i := range t.Fields {
		if i >= len(row) || row[i] == "" {
			continue
		}
		f := &t.Fields[i]
		v, err := DecodeValue(f, row[i])
		if err != nil {
			return nil, err
		}
		rec[f.Name] = v
	}
	return rec, nil
}

// EncodeValue renders one typed value as its stored string form.
func EncodeValue(f *schema.FieldSpec, v any) (string, error) {
	switch f.Type {
	case schema.TypeNumber:
		n, ok := ToNumber(v)
		if !ok {
			return "", errs.Newf(errs.ErrKindInvalidInput,
				"field %q: cannot encode %v as a number", f.Name, v)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil

	case schema.TypeBoolean:
		b, ok := ToBool(v)
		if !ok {
			return "", errs.Newf(errs.ErrKindInvalidInput,
				"field %q: cannot encode %v as a boolean", f.Name, v)
		}
		return strconv.FormatBool(b), nil

	default:
		s, ok := v.(string)
		if !ok {
			return "", errs.Newf(errs.ErrKindInvalidInput,
				"field %q: expected a string value, got %T", f.Name, v)
		}
		return s, nil
	}
}

// DecodeValue parses one stored string cell back into its typed value.
// Strings, text, emails, enums, timestamps, and dates stay strings
// (timestamps and dates are already normalized by the validator).
func DecodeValue(f *schema.FieldSpec, s string) (any, error) {
	switch f.Type {
	case schema.TypeNumber:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindStorage,
				"field "+f.Name+": stored value is not a number", err)
		}
		return n, nil

	case schema.TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindStorage,
				"field "+f.Name+": stored value is not a boolean", err)
		}
		return b, nil

	default:
		return s, nil
	}
}

// ToNumber coerces the numeric shapes a caller may reasonably supply
// (Go numbers, or a numeric string) into a float64.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToBool coerces bools and their common string/number spellings.
func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch b {
		case "true", "TRUE", "True", "1":
			return true, true
		case "false", "FALSE", "False", "0":
			return false, true
		}
		return false, false
	case int:
		if b == 0 || b == 1 {
			return b == 1, true
		}
		return false, false
	case float64:
		if b == 0 || b == 1 {
			return b == 1, true
		}
		return false, false
	default:
		return false, false
	}
}
