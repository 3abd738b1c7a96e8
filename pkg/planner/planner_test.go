package planner

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

func marchWindow() models.TimeWindow {
	return models.TimeWindow{
		Kind:  models.WindowMonth,
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func resolvedStudent(name string) *models.ResolvedEntities {
	id := uuid.New()
	return &models.ResolvedEntities{Mentions: []models.ResolvedMention{{
		Raw:    name,
		Kind:   models.KindStudent,
		Status: models.MatchResolved,
		Match:  &models.EntityCandidate{ID: id, CanonicalName: name, Score: 1},
	}}}
}

func TestPlanStudentIntent(t *testing.T) {
	p := New(zap.NewNop())
	it := &models.Intent{
		PrimaryType: models.KindStudent,
		Mentions:    []models.Mention{{Raw: "Jordan Alvarez", Kind: models.KindStudent}},
		Time:        models.TimeExpression{Raw: "March", Window: marchWindow()},
		Metrics:     []models.Metric{models.MetricHours},
	}

	plan := p.Plan(it, resolvedStudent("Jordan Alvarez"))

	assert.Equal(t, models.PlanStudent, plan.Kind)
	require.Len(t, plan.Focus, 1)
	assert.Equal(t, "Jordan Alvarez", plan.Focus[0].Name)
	assert.Equal(t, models.WindowMonth, plan.Window.Kind)
	assert.Equal(t, []models.Metric{models.MetricHours}, plan.Metrics)
}

func TestPlanNeverDefaultsWindow(t *testing.T) {
	p := New(zap.NewNop())
	it := &models.Intent{
		PrimaryType: models.KindStudent,
		Mentions:    []models.Mention{{Raw: "Jordan", Kind: models.KindStudent}},
	}

	plan := p.Plan(it, resolvedStudent("Jordan Alvarez"))
	assert.False(t, plan.Window.Specified())
}

func TestPlanUnknownPrimaryFallsBackToMentionKind(t *testing.T) {
	p := New(zap.NewNop())
	it := &models.Intent{
		PrimaryType: models.KindUnknown,
		Mentions:    []models.Mention{{Raw: "Jordan", Kind: models.KindStudent}},
	}

	plan := p.Plan(it, resolvedStudent("Jordan Alvarez"))
	assert.Equal(t, models.PlanStudent, plan.Kind)
}

func TestPlanUnknownPrimaryWithoutMentionsIsDistrict(t *testing.T) {
	p := New(zap.NewNop())
	it := &models.Intent{PrimaryType: models.KindUnknown}

	plan := p.Plan(it, &models.ResolvedEntities{})
	assert.Equal(t, models.PlanDistrict, plan.Kind)
	assert.Empty(t, plan.Focus)
}

func TestPlanTrendAddsMonthGrouping(t *testing.T) {
	p := New(zap.NewNop())
	it := &models.Intent{
		PrimaryType: models.KindStudent,
		Mentions:    []models.Mention{{Raw: "Jordan", Kind: models.KindStudent}},
		Time:        models.TimeExpression{Window: marchWindow()},
		Trend:       true,
	}

	plan := p.Plan(it, resolvedStudent("Jordan Alvarez"))
	assert.Contains(t, plan.Groupings, models.GroupByMonth)
}

func TestPlanComparisonGroupsBySubject(t *testing.T) {
	p := New(zap.NewNop())
	it := &models.Intent{
		PrimaryType: models.KindStudent,
		Mentions: []models.Mention{
			{Raw: "Jordan", Kind: models.KindStudent},
			{Raw: "Sam", Kind: models.KindStudent},
		},
		Time:       models.TimeExpression{Window: marchWindow()},
		Comparison: true,
	}

	plan := p.Plan(it, resolvedStudent("Jordan Alvarez"))
	assert.True(t, plan.Comparison)
	assert.Contains(t, plan.Groupings, models.GroupByStudent)
}

func TestPlanProviderCaseloadGroupsByStudent(t *testing.T) {
	p := New(zap.NewNop())
	it := &models.Intent{
		PrimaryType: models.KindClinician,
		Mentions:    []models.Mention{{Raw: "Dana Kim", Kind: models.KindClinician}},
	}
	resolved := &models.ResolvedEntities{Mentions: []models.ResolvedMention{{
		Raw:    "Dana Kim",
		Kind:   models.KindClinician,
		Status: models.MatchResolved,
		Match:  &models.EntityCandidate{ID: uuid.New(), CanonicalName: "Dana Kim", Score: 1},
	}}}

	plan := p.Plan(it, resolved)
	assert.Equal(t, models.PlanProvider, plan.Kind)
	assert.Contains(t, plan.Groupings, models.GroupByStudent)
}

func TestPlanOnlyResolvedMentionsReachFocus(t *testing.T) {
	p := New(zap.NewNop())
	it := &models.Intent{
		PrimaryType: models.KindStudent,
		Mentions:    []models.Mention{{Raw: "Jordan", Kind: models.KindStudent}},
		Time:        models.TimeExpression{Window: marchWindow()},
	}
	resolved := &models.ResolvedEntities{Mentions: []models.ResolvedMention{{
		Raw:    "Jordan",
		Kind:   models.KindStudent,
		Status: models.MatchAmbiguous,
	}}}

	plan := p.Plan(it, resolved)
	assert.Empty(t, plan.Focus)
}
