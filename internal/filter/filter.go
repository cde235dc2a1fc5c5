// Package filter validates metadata filters and compiles them to SQL predicates.
//
// Filters arrive as loosely typed JSON objects. ParseFilter rejects anything
// outside the closed union of fields, operators, and value shapes before a
// Filter value can exist, so Compile never sees an invalid combination.
// Compiled predicates use positional placeholders only; filter values are
// never concatenated into SQL text.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors. All parse failures wrap ErrInvalidFilter.
var (
	ErrInvalidFilter = errors.New("invalid filter")
)

// Operator is a comparison operator in a filter expression.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
)

// FieldType discriminates native memo columns from user-supplied metadata keys.
type FieldType string

const (
	TypeNative   FieldType = "native_field"
	TypeMetadata FieldType = "custom_metadata"
)

// Native fields that may be filtered on. Anything else must go through
// custom_metadata.
var nativeFields = map[string]string{
	"title":               "m.title",
	"source":              "m.source",
	"client_reference_id": "m.client_reference_id",
	"tags":                "", // compiled as an EXISTS subquery, no direct column
}

// Filter is one validated predicate. Construct via ParseFilter; a zero Filter
// is not meaningful.
type Filter struct {
	Field    string
	Operator Operator
	Value    any // string, or []string for in/not_in
	Type     FieldType
}

// ParseFilter validates a raw JSON object into a Filter.
func ParseFilter(raw map[string]any) (Filter, error) {
	field, ok := raw["field"].(string)
	if !ok || field == "" {
		return Filter{}, fmt.Errorf("%w: missing or empty field", ErrInvalidFilter)
	}

	opStr, ok := raw["operator"].(string)
	if !ok {
		return Filter{}, fmt.Errorf("%w: missing operator", ErrInvalidFilter)
	}
	op := Operator(opStr)
	switch op {
	case OpEq, OpNeq, OpContains, OpStartsWith, OpEndsWith, OpIn, OpNotIn:
	default:
		return Filter{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, opStr)
	}

	typStr, ok := raw["filter_type"].(string)
	if !ok {
		return Filter{}, fmt.Errorf("%w: missing filter_type", ErrInvalidFilter)
	}
	typ := FieldType(typStr)
	switch typ {
	case TypeNative, TypeMetadata:
	default:
		return Filter{}, fmt.Errorf("%w: unknown filter_type %q", ErrInvalidFilter, typStr)
	}

	if typ == TypeNative {
		if _, ok := nativeFields[field]; !ok {
			return Filter{}, fmt.Errorf("%w: %q is not a filterable native field", ErrInvalidFilter, field)
		}
	}

	rawValue, ok := raw["value"]
	if !ok {
		return Filter{}, fmt.Errorf("%w: missing value", ErrInvalidFilter)
	}

	var value any
	switch op {
	case OpIn, OpNotIn:
		list, err := toStringSlice(rawValue)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: operator %s requires a list of strings: %v", ErrInvalidFilter, op, err)
		}
		if len(list) == 0 {
			return Filter{}, fmt.Errorf("%w: operator %s requires a non-empty list", ErrInvalidFilter, op)
		}
		value = list
	default:
		s, ok := rawValue.(string)
		if !ok {
			return Filter{}, fmt.Errorf("%w: operator %s requires a string value", ErrInvalidFilter, op)
		}
		value = s
	}

	// Tag membership is the only operation the tags table supports.
	if typ == TypeNative && field == "tags" && op != OpIn && op != OpNotIn {
		return Filter{}, fmt.Errorf("%w: field tags supports only in/not_in", ErrInvalidFilter)
	}

	return Filter{Field: field, Operator: op, Value: value, Type: typ}, nil
}

// ParseFilters validates a slice of raw filter objects.
func ParseFilters(raws []map[string]any) ([]Filter, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	filters := make([]Filter, 0, len(raws))
	for i, raw := range raws {
		f, err := ParseFilter(raw)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// Compile renders filters as SQL conditions over the memos table (alias m).
// Placeholders are numbered starting at startIndex, so callers can prepend
// their own parameters. The conditions are meant to be ANDed together.
func Compile(filters []Filter, startIndex int) (conditions []string, params []any) {
	n := startIndex
	for _, f := range filters {
		cond, condParams := compileOne(f, n)
		conditions = append(conditions, cond)
		params = append(params, condParams...)
		n += len(condParams)
	}
	return conditions, params
}

func compileOne(f Filter, n int) (string, []any) {
	if f.Type == TypeNative && f.Field == "tags" {
		return compileTags(f, n)
	}

	var column string
	var params []any
	if f.Type == TypeMetadata {
		column = fmt.Sprintf("m.metadata->>$%d", n)
		params = append(params, f.Field)
		n++
	} else {
		column = nativeFields[f.Field]
	}

	switch f.Operator {
	case OpEq:
		return fmt.Sprintf("%s = $%d", column, n), append(params, f.Value)
	case OpNeq:
		return fmt.Sprintf("%s != $%d", column, n), append(params, f.Value)
	case OpContains:
		return fmt.Sprintf("%s ILIKE $%d", column, n), append(params, "%"+f.Value.(string)+"%")
	case OpStartsWith:
		return fmt.Sprintf("%s LIKE $%d", column, n), append(params, f.Value.(string)+"%")
	case OpEndsWith:
		return fmt.Sprintf("%s LIKE $%d", column, n), append(params, "%"+f.Value.(string))
	case OpIn:
		return fmt.Sprintf("%s = ANY($%d)", column, n), append(params, f.Value)
	case OpNotIn:
		return fmt.Sprintf("%s != ALL($%d)", column, n), append(params, f.Value)
	}
	// Unreachable for filters built through ParseFilter.
	return "FALSE", params
}

func compileTags(f Filter, n int) (string, []any) {
	sub := fmt.Sprintf("SELECT 1 FROM memo_tags mt WHERE mt.memo_id = m.id AND mt.tag = ANY($%d)", n)
	if f.Operator == OpNotIn {
		return "NOT EXISTS (" + sub + ")", []any{f.Value}
	}
	return "EXISTS (" + sub + ")", []any{f.Value}
}

// toStringSlice accepts []string directly or []any of strings (the shape
// encoding/json produces).
func toStringSlice(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is %T, not a list", v)
	}
}

// Describe returns a compact human-readable form for logging.
func Describe(filters []Filter) string {
	if len(filters) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, fmt.Sprintf("%s %s %v", f.Field, f.Operator, f.Value))
	}
	return strings.Join(parts, " AND ")
}
