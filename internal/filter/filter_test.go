package filter

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseFilterValid(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Filter
	}{
		{
			name: "native eq",
			raw:  map[string]any{"field": "title", "operator": "eq", "value": "Q3 report", "filter_type": "native_field"},
			want: Filter{Field: "title", Operator: OpEq, Value: "Q3 report", Type: TypeNative},
		},
		{
			name: "metadata contains",
			raw:  map[string]any{"field": "author", "operator": "contains", "value": "lin", "filter_type": "custom_metadata"},
			want: Filter{Field: "author", Operator: OpContains, Value: "lin", Type: TypeMetadata},
		},
		{
			name: "tags in with json value shape",
			raw:  map[string]any{"field": "tags", "operator": "in", "value": []any{"go", "infra"}, "filter_type": "native_field"},
			want: Filter{Field: "tags", Operator: OpIn, Value: []string{"go", "infra"}, Type: TypeNative},
		},
		{
			name: "client reference not_in",
			raw:  map[string]any{"field": "client_reference_id", "operator": "not_in", "value": []string{"a", "b"}, "filter_type": "native_field"},
			want: Filter{Field: "client_reference_id", Operator: OpNotIn, Value: []string{"a", "b"}, Type: TypeNative},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.raw)
			if err != nil {
				t.Fatalf("ParseFilter() = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseFilter() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFilterInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"missing field", map[string]any{"operator": "eq", "value": "x", "filter_type": "native_field"}},
		{"empty field", map[string]any{"field": "", "operator": "eq", "value": "x", "filter_type": "native_field"}},
		{"unknown operator", map[string]any{"field": "title", "operator": "gte", "value": "x", "filter_type": "native_field"}},
		{"unknown filter_type", map[string]any{"field": "title", "operator": "eq", "value": "x", "filter_type": "column"}},
		{"native field not allowed", map[string]any{"field": "content_hash", "operator": "eq", "value": "x", "filter_type": "native_field"}},
		{"missing value", map[string]any{"field": "title", "operator": "eq", "filter_type": "native_field"}},
		{"in with string value", map[string]any{"field": "title", "operator": "in", "value": "x", "filter_type": "native_field"}},
		{"in with empty list", map[string]any{"field": "title", "operator": "in", "value": []any{}, "filter_type": "native_field"}},
		{"in with non-string element", map[string]any{"field": "title", "operator": "in", "value": []any{"a", 3}, "filter_type": "native_field"}},
		{"eq with list value", map[string]any{"field": "title", "operator": "eq", "value": []any{"a"}, "filter_type": "native_field"}},
		{"tags with eq", map[string]any{"field": "tags", "operator": "eq", "value": "go", "filter_type": "native_field"}},
		{"tags with contains", map[string]any{"field": "tags", "operator": "contains", "value": "go", "filter_type": "native_field"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFilter(tt.raw); !errors.Is(err, ErrInvalidFilter) {
				t.Fatalf("ParseFilter() = %v, want ErrInvalidFilter", err)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name       string
		filters    []Filter
		startIndex int
		wantConds  []string
		wantParams []any
	}{
		{
			name:       "no filters",
			filters:    nil,
			startIndex: 1,
			wantConds:  nil,
			wantParams: nil,
		},
		{
			name:       "native eq",
			filters:    []Filter{{Field: "title", Operator: OpEq, Value: "x", Type: TypeNative}},
			startIndex: 4,
			wantConds:  []string{"m.title = $4"},
			wantParams: []any{"x"},
		},
		{
			name:       "contains wraps wildcards",
			filters:    []Filter{{Field: "source", Operator: OpContains, Value: "wiki", Type: TypeNative}},
			startIndex: 1,
			wantConds:  []string{"m.source ILIKE $1"},
			wantParams: []any{"%wiki%"},
		},
		{
			name:       "startswith and endswith",
			filters: []Filter{
				{Field: "title", Operator: OpStartsWith, Value: "Q3", Type: TypeNative},
				{Field: "title", Operator: OpEndsWith, Value: "report", Type: TypeNative},
			},
			startIndex: 2,
			wantConds:  []string{"m.title LIKE $2", "m.title LIKE $3"},
			wantParams: []any{"Q3%", "%report"},
		},
		{
			name:       "metadata eq consumes two placeholders",
			filters:    []Filter{{Field: "author", Operator: OpEq, Value: "lin", Type: TypeMetadata}},
			startIndex: 3,
			wantConds:  []string{"m.metadata->>$3 = $4"},
			wantParams: []any{"author", "lin"},
		},
		{
			name:       "in uses ANY",
			filters:    []Filter{{Field: "source", Operator: OpIn, Value: []string{"a", "b"}, Type: TypeNative}},
			startIndex: 1,
			wantConds:  []string{"m.source = ANY($1)"},
			wantParams: []any{[]string{"a", "b"}},
		},
		{
			name:       "not_in uses ALL",
			filters:    []Filter{{Field: "source", Operator: OpNotIn, Value: []string{"a"}, Type: TypeNative}},
			startIndex: 1,
			wantConds:  []string{"m.source != ALL($1)"},
			wantParams: []any{[]string{"a"}},
		},
		{
			name:       "tags in compiles to EXISTS",
			filters:    []Filter{{Field: "tags", Operator: OpIn, Value: []string{"go"}, Type: TypeNative}},
			startIndex: 2,
			wantConds:  []string{"EXISTS (SELECT 1 FROM memo_tags mt WHERE mt.memo_id = m.id AND mt.tag = ANY($2))"},
			wantParams: []any{[]string{"go"}},
		},
		{
			name:       "tags not_in compiles to NOT EXISTS",
			filters:    []Filter{{Field: "tags", Operator: OpNotIn, Value: []string{"go"}, Type: TypeNative}},
			startIndex: 1,
			wantConds:  []string{"NOT EXISTS (SELECT 1 FROM memo_tags mt WHERE mt.memo_id = m.id AND mt.tag = ANY($1))"},
			wantParams: []any{[]string{"go"}},
		},
		{
			name: "placeholder numbering across mixed filters",
			filters: []Filter{
				{Field: "title", Operator: OpEq, Value: "x", Type: TypeNative},
				{Field: "team", Operator: OpNeq, Value: "core", Type: TypeMetadata},
				{Field: "tags", Operator: OpIn, Value: []string{"go"}, Type: TypeNative},
			},
			startIndex: 5,
			wantConds: []string{
				"m.title = $5",
				"m.metadata->>$6 != $7",
				"EXISTS (SELECT 1 FROM memo_tags mt WHERE mt.memo_id = m.id AND mt.tag = ANY($8))",
			},
			wantParams: []any{"x", "team", "core", []string{"go"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds, params := Compile(tt.filters, tt.startIndex)
			if !reflect.DeepEqual(conds, tt.wantConds) {
				t.Errorf("conditions = %v, want %v", conds, tt.wantConds)
			}
			if !reflect.DeepEqual(params, tt.wantParams) {
				t.Errorf("params = %v, want %v", params, tt.wantParams)
			}
		})
	}
}

func TestCompileNeverEmbedsValues(t *testing.T) {
	// Hostile values must only ever appear in params, not in SQL text.
	hostile := "'; DROP TABLE memos; --"
	filters := []Filter{
		{Field: "title", Operator: OpEq, Value: hostile, Type: TypeNative},
		{Field: hostile, Operator: OpContains, Value: hostile, Type: TypeMetadata},
	}
	conds, _ := Compile(filters, 1)
	for _, cond := range conds {
		if strings.Contains(cond, "DROP TABLE") {
			t.Fatalf("compiled condition embeds filter value: %s", cond)
		}
	}
}

func TestParseFilters(t *testing.T) {
	raws := []map[string]any{
		{"field": "title", "operator": "eq", "value": "a", "filter_type": "native_field"},
		{"field": "title", "operator": "bogus", "value": "b", "filter_type": "native_field"},
	}
	if _, err := ParseFilters(raws); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("ParseFilters() = %v, want ErrInvalidFilter", err)
	}

	got, err := ParseFilters(raws[:1])
	if err != nil || len(got) != 1 {
		t.Fatalf("ParseFilters() = %v, %v", got, err)
	}
}
