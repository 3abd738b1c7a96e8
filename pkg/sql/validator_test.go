package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

func validIR() *models.AnalyticsIR {
	return &models.AnalyticsIR{
		Mode: models.ModeStudentMonthly,
		SQL: `SELECT student_name, total_hours FROM mv_student_monthly
WHERE district_key = $1 AND lower(student_name) = lower($2) AND service_month = $3`,
		Values: []any{"maple-usd", "Jordan Alvarez", "2026-03"},
		NamedParams: map[string]any{
			"district_key":  "maple-usd",
			"student_name":  "Jordan Alvarez",
			"service_month": "2026-03",
		},
	}
}

func TestValidateAcceptsWellFormedQuery(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()

	report := v.Validate(ir)
	require.True(t, report.IsValid, "violations: %v", report.Violations)
	assert.True(t, ir.Valid)
	assert.Contains(t, ir.SQL, "LIMIT 500")
}

func TestValidateStripsTrailingSemicolon(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = ir.SQL + ";\n"

	report := v.Validate(ir)
	require.True(t, report.IsValid)
	assert.NotContains(t, ir.SQL, ";")
}

func TestValidateRejectsNonSelect(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = "DELETE FROM invoices WHERE district_key = $1"

	report := v.Validate(ir)
	assert.False(t, report.IsValid)
	assert.False(t, ir.Valid)
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = "SELECT 1 WHERE district_key = $1; DROP TABLE invoices"

	report := v.Validate(ir)
	assert.False(t, report.IsValid)
}

func TestValidateAllowsSemicolonInsideStringLiteral(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = "SELECT ';' FROM mv_student_monthly WHERE district_key = $1"

	report := v.Validate(ir)
	assert.True(t, report.IsValid, "violations: %v", report.Violations)
}

func TestValidateRejectsInjectionInBindValue(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.NamedParams["student_name"] = "x' OR '1'='1"

	report := v.Validate(ir)
	require.False(t, report.IsValid)
	assert.False(t, ir.Valid)
	assert.NotEmpty(t, report.Violations)
}

func TestValidateRejectsMissingDistrictBinding(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	delete(ir.NamedParams, "district_key")

	report := v.Validate(ir)
	assert.False(t, report.IsValid)
}

func TestValidateRejectsMissingDistrictPredicate(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = "SELECT student_name FROM mv_student_monthly WHERE lower(student_name) = lower($1)"

	report := v.Validate(ir)
	assert.False(t, report.IsValid)
}

func TestValidateWrapsUnscopedQueryProjectingDistrictKey(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = "SELECT student_name, district_key, total_hours FROM mv_student_monthly WHERE lower(student_name) = lower($1)"
	ir.Values = []any{"Jordan Alvarez"}

	report := v.Validate(ir)
	require.True(t, report.IsValid, "violations: %v", report.Violations)

	// The statement is scoped by a subquery filtered on the turn's own
	// district key, bound at the next free position.
	assert.Contains(t, ir.SQL, "scoped.district_key = $2")
	assert.Equal(t, "maple-usd", ir.Values[len(ir.Values)-1])
	assert.Contains(t, ir.SQL, "LIMIT 500")
}

func TestValidateWrapsUnscopedSelectStar(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = "SELECT * FROM mv_student_monthly WHERE service_month = $1"
	ir.Values = []any{"2026-03"}

	report := v.Validate(ir)
	require.True(t, report.IsValid, "violations: %v", report.Violations)
	assert.Contains(t, ir.SQL, "scoped.district_key = $2")
}

func TestValidateRejectsUnscopedQueryHidingDistrictKey(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()

	// district_key only appears inside a subquery projection, not in the
	// outermost one, so the wrap is not provably safe.
	ir.SQL = "SELECT student_name, (SELECT max(district_key) FROM x) AS d FROM mv_student_monthly WHERE lower(student_name) = lower($1)"
	ir.Values = []any{"Jordan Alvarez"}

	report := v.Validate(ir)
	assert.False(t, report.IsValid)
}

func TestValidateRewritesHardCodedDistrictLiteral(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = "SELECT student_name FROM mv_student_monthly WHERE district_key = 'other-district' AND service_month = $1"
	ir.Values = []any{"2026-03"}

	report := v.Validate(ir)
	require.True(t, report.IsValid, "violations: %v", report.Violations)

	// The literal is replaced with a positional bind of the turn's own
	// district key; the foreign key never reaches the store.
	assert.NotContains(t, ir.SQL, "other-district")
	assert.Contains(t, ir.SQL, "district_key = $2")
	assert.Equal(t, "maple-usd", ir.Values[len(ir.Values)-1])
}

func TestValidateKeepsExistingLimit(t *testing.T) {
	v := NewValidator(500, zap.NewNop())
	ir := validIR()
	ir.SQL = ir.SQL + "\nLIMIT $4"
	ir.Values = append(ir.Values, 25)

	report := v.Validate(ir)
	require.True(t, report.IsValid)
	assert.NotContains(t, ir.SQL, "LIMIT 500")
}
