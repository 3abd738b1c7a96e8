package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

func TestCheckRegistry(t *testing.T) {
	require.NoError(t, CheckRegistry())
}

func TestEveryModeHasTemplate(t *testing.T) {
	for _, mode := range models.AllModes {
		tpl, ok := TemplateFor(mode)
		require.True(t, ok, "mode %s has no template", mode)
		assert.Equal(t, mode, tpl.Mode)
	}
}

func TestTemplatesAreReadOnlyAndScoped(t *testing.T) {
	for _, mode := range models.AllModes {
		tpl, _ := TemplateFor(mode)
		upper := strings.ToUpper(strings.TrimSpace(tpl.SQL))

		assert.True(t, strings.HasPrefix(upper, "SELECT"),
			"template %s must be a SELECT", mode)
		assert.Contains(t, tpl.SQL, "district_key = {{district_key}}",
			"template %s must filter on the bound district", mode)
		assert.NotContains(t, tpl.SQL, ";",
			"template %s must be a single statement", mode)
	}
}

func TestMaterializedViewTemplatesUseMonthKeys(t *testing.T) {
	for _, mode := range models.AllModes {
		tpl, _ := TemplateFor(mode)
		if tpl.View == "" {
			continue
		}
		assert.Contains(t, tpl.SQL, tpl.View,
			"template %s must read from its declared view", mode)
		switch tpl.Shape {
		case windowShapeMonth:
			assert.Contains(t, tpl.SQL, "{{service_month}}", "mode %s", mode)
		case windowShapeMonths:
			assert.Contains(t, tpl.SQL, "{{start_month}}", "mode %s", mode)
			assert.Contains(t, tpl.SQL, "{{end_month}}", "mode %s", mode)
		}
	}
}

func TestRawTemplatesAreBounded(t *testing.T) {
	// Raw date-range templates over fact tables carry a row_limit unless
	// they aggregate to a fixed number of rows.
	for _, mode := range []models.Mode{
		models.ModeStudentInvoices,
		models.ModeVendorInvoices,
		models.ModeTopInvoices,
	} {
		tpl, _ := TemplateFor(mode)
		assert.Contains(t, tpl.SQL, "LIMIT {{row_limit}}", "mode %s", mode)
	}
}
