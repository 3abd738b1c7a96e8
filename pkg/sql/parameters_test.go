package sql

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractParameters(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "no parameters",
			sql:      "SELECT * FROM mv_district_monthly",
			expected: nil,
		},
		{
			name:     "single parameter",
			sql:      "SELECT * FROM students WHERE district_key = {{district_key}}",
			expected: []string{"district_key"},
		},
		{
			name:     "multiple parameters in order of appearance",
			sql:      "SELECT * FROM invoices WHERE district_key = {{district_key}} AND invoice_date >= {{start_date}} AND invoice_date <= {{end_date}}",
			expected: []string{"district_key", "start_date", "end_date"},
		},
		{
			name:     "duplicate parameter appears once",
			sql:      "SELECT * FROM mv_provider_caseload WHERE district_key = {{district_key}} OR district_key = {{district_key}}",
			expected: []string{"district_key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractParameters(tt.sql)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractParameters() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateParameterDefinitions(t *testing.T) {
	sql := "SELECT * FROM invoices WHERE district_key = {{district_key}} AND total_amount > {{min_total}}"

	t.Run("matching definitions", func(t *testing.T) {
		err := ValidateParameterDefinitions(sql, []Param{
			{Name: "district_key", Required: true},
			{Name: "min_total"},
		})
		assert.NoError(t, err)
	})

	t.Run("placeholder without definition", func(t *testing.T) {
		err := ValidateParameterDefinitions(sql, []Param{
			{Name: "district_key", Required: true},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min_total")
	})

	t.Run("definition without placeholder", func(t *testing.T) {
		err := ValidateParameterDefinitions(sql, []Param{
			{Name: "district_key", Required: true},
			{Name: "min_total"},
			{Name: "unused"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unused")
	})
}

func TestFindParametersInStringLiterals(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "parameter outside strings is fine",
			sql:      "SELECT * FROM students WHERE name = {{student_name}}",
			expected: nil,
		},
		{
			name:     "parameter inside string literal",
			sql:      "SELECT 'hello {{student_name}}' FROM students",
			expected: []string{"student_name"},
		},
		{
			name:     "escaped quote does not end the literal",
			sql:      "SELECT 'it''s {{oops}}' FROM t",
			expected: []string{"oops"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindParametersInStringLiterals(tt.sql)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("FindParametersInStringLiterals() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSubstituteParameters(t *testing.T) {
	t.Run("positional substitution in order", func(t *testing.T) {
		sql := "SELECT * FROM invoices WHERE district_key = {{district_key}} AND invoice_date >= {{start_date}}"
		defs := []Param{
			{Name: "district_key", Required: true},
			{Name: "start_date", Required: true},
		}
		prepared, values, err := SubstituteParameters(sql, defs, map[string]any{
			"district_key": "maple-usd",
			"start_date":   "2026-01-01",
		})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM invoices WHERE district_key = $1 AND invoice_date >= $2", prepared)
		assert.Equal(t, []any{"maple-usd", "2026-01-01"}, values)
	})

	t.Run("repeated parameter binds once", func(t *testing.T) {
		sql := "SELECT * FROM t WHERE a = {{district_key}} OR b = {{district_key}}"
		defs := []Param{{Name: "district_key", Required: true}}
		prepared, values, err := SubstituteParameters(sql, defs, map[string]any{"district_key": "maple-usd"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE a = $1 OR b = $1", prepared)
		assert.Equal(t, []any{"maple-usd"}, values)
	})

	t.Run("optional parameter falls back to default", func(t *testing.T) {
		sql := "SELECT * FROM t WHERE district_key = {{district_key}} LIMIT {{row_limit}}"
		defs := []Param{
			{Name: "district_key", Required: true},
			{Name: "row_limit", Default: 500},
		}
		prepared, values, err := SubstituteParameters(sql, defs, map[string]any{"district_key": "maple-usd"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM t WHERE district_key = $1 LIMIT $2", prepared)
		assert.Equal(t, []any{"maple-usd", 500}, values)
	})

	t.Run("missing required parameter fails", func(t *testing.T) {
		sql := "SELECT * FROM t WHERE district_key = {{district_key}}"
		defs := []Param{{Name: "district_key", Required: true}}
		_, _, err := SubstituteParameters(sql, defs, map[string]any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "district_key")
	})

	t.Run("undeclared placeholder fails", func(t *testing.T) {
		sql := "SELECT * FROM t WHERE x = {{mystery}}"
		_, _, err := SubstituteParameters(sql, nil, map[string]any{"mystery": 1})
		require.Error(t, err)
	})
}
