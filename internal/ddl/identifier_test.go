package ddl

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddl-cache/internal/domain"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		// Valid cases
		{name: "simple", input: "users"},
		{name: "underscore_prefix", input: "_temp"},
		{name: "with_digits", input: "table1"},
		{name: "max_length", input: strings.Repeat("a", 63)},

		// Invalid cases
		{name: "empty", input: "", wantErr: "name is required"},
		{name: "too_long", input: strings.Repeat("a", 64), wantErr: "at most 63 characters"},
		{name: "mixed_case", input: "MyTable", wantErr: "must match"},
		{name: "starts_with_digit", input: "1table", wantErr: "must match"},
		{name: "contains_space", input: "my table", wantErr: "must match"},
		{name: "contains_hyphen", input: "my-table", wantErr: "must match"},
		{name: "contains_dot", input: "schema.table", wantErr: "must match"},
		{name: "contains_quote", input: `foo"bar`, wantErr: "must match"},
		{name: "sql_injection", input: "foo; DROP TABLE", wantErr: "must match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "users", want: `users`},
		{name: "reserved", input: "order", want: `"order"`},
		{name: "with_double_quote", input: `my"table`, want: `"my""table"`},
		{name: "empty", input: "", want: `""`},
		{name: "uppercase", input: "Users", want: `"Users"`},
		{name: "space", input: "my table", want: `"my table"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteIdentifier(tt.input))
		})
	}
}

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "hello", want: "'hello'"},
		{name: "with_single_quote", input: "it's", want: "'it''s'"},
		{name: "multiple_quotes", input: "a'b'c", want: "'a''b''c'"},
		{name: "empty", input: "", want: "''"},
		{name: "with_backslash", input: `path\to\file`, want: `'path\to\file'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteLiteral(tt.input))
		})
	}
}

func TestQualifiedTable(t *testing.T) {
	assert.Equal(t, "public.orders", QualifiedTable(domain.NewTableID("", "orders")))
	assert.Equal(t, `billing."order"`, QualifiedTable(domain.NewTableID("billing", "order")))
	assert.Equal(t, "public.companies as parent",
		TableWithAlias(domain.NewTableReference(domain.NewTableID("", "companies"), "parent")))
	assert.Equal(t, "public.companies as companies",
		TableWithAlias(domain.NewTableReference(domain.NewTableID("", "companies"), "")))
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "nil", input: nil, want: "null"},
		{name: "bool", input: true, want: "true"},
		{name: "int", input: 42, want: "42"},
		{name: "int64", input: int64(-7), want: "-7"},
		{name: "whole_float", input: 12.0, want: "12"},
		{name: "fraction", input: 1.5, want: "1.5"},
		{name: "huge_float", input: 1e20, want: "1e+20"},
		{name: "string", input: "o'k", want: "'o''k'"},
		{name: "stringer", input: time.Second, want: "'1s'"},
		{name: "other", input: []int{1}, want: "'[1]'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Literal(tt.input))
		})
	}
}
