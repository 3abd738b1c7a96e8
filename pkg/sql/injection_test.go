package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBindValue(t *testing.T) {
	t.Run("plain name is clean", func(t *testing.T) {
		assert.Nil(t, CheckBindValue("student_name", "Jordan Alvarez"))
	})

	t.Run("month key is clean", func(t *testing.T) {
		assert.Nil(t, CheckBindValue("service_month", "2026-03"))
	})

	t.Run("non-string values are skipped", func(t *testing.T) {
		assert.Nil(t, CheckBindValue("row_limit", 500))
		assert.Nil(t, CheckBindValue("flag", true))
	})

	t.Run("classic injection payload is flagged", func(t *testing.T) {
		result := CheckBindValue("student_name", "x' OR '1'='1")
		require.NotNil(t, result)
		assert.True(t, result.IsSQLi)
		assert.Equal(t, "student_name", result.ParamName)
		assert.NotEmpty(t, result.Fingerprint)
	})

	t.Run("stacked statement payload is flagged", func(t *testing.T) {
		result := CheckBindValue("vendor_name", "vendor'; DROP TABLE invoices--")
		require.NotNil(t, result)
		assert.True(t, result.IsSQLi)
	})
}

func TestCheckBindValues(t *testing.T) {
	params := map[string]any{
		"district_key": "maple-usd",
		"student_name": "1' UNION SELECT password FROM users--",
		"row_limit":    500,
	}

	results := CheckBindValues(params)
	require.Len(t, results, 1)
	assert.Equal(t, "student_name", results[0].ParamName)
}
