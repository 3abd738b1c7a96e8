// Package planner maps a normalized intent and its resolved entities to
// an abstract, SQL-free query plan from the closed plan-kind catalog.
package planner

import (
	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// kindToPlan maps the intent's primary entity type to a plan kind. The
// mapping is total over the kinds the normalizer can emit; KindUnknown
// is handled before lookup.
var kindToPlan = map[models.EntityKind]models.PlanKind{
	models.KindStudent:   models.PlanStudent,
	models.KindClinician: models.PlanProvider,
	models.KindVendor:    models.PlanVendor,
	models.KindDistrict:  models.PlanDistrict,
}

// Planner builds query plans.
type Planner struct {
	logger *zap.Logger
}

// New creates a semantic query planner.
func New(logger *zap.Logger) *Planner {
	return &Planner{logger: logger.Named("planner")}
}

// Plan produces the QueryPlan for one turn. It never emits SQL and never
// fills in a default time window: an absent window stays unspecified so
// the router can ask instead of guessing.
func (p *Planner) Plan(it *models.Intent, resolved *models.ResolvedEntities) *models.QueryPlan {
	plan := &models.QueryPlan{
		Window:     it.Time.Window,
		Metrics:    it.Metrics,
		Trend:      it.Trend,
		TopN:       it.TopN,
		Comparison: it.Comparison,
	}

	primary := it.PrimaryType
	if primary == models.KindUnknown {
		// A turn with resolved mentions but an unclassified primary type
		// takes its family from the first mention.
		if len(it.Mentions) > 0 {
			primary = it.Mentions[0].Kind
		} else {
			primary = models.KindDistrict
		}
	}
	plan.Kind = kindToPlan[primary]

	if resolved != nil {
		switch plan.Kind {
		case models.PlanStudent:
			plan.Focus = resolved.ResolvedOf(models.KindStudent)
		case models.PlanProvider:
			plan.Focus = resolved.ResolvedOf(models.KindClinician)
		case models.PlanVendor:
			plan.Focus = resolved.ResolvedOf(models.KindVendor)
		}
	}

	plan.Groupings = groupingsFor(plan)

	p.logger.Debug("plan built",
		zap.String("kind", string(plan.Kind)),
		zap.Int("focus", len(plan.Focus)),
		zap.String("window", string(plan.Window.Kind)),
		zap.Bool("trend", plan.Trend))

	return plan
}

// groupingsFor derives grouping dimensions directly from plan fields,
// never from free text.
func groupingsFor(plan *models.QueryPlan) []models.Grouping {
	var out []models.Grouping

	if plan.Trend || spansMonths(plan.Window) {
		out = append(out, models.GroupByMonth)
	}
	if plan.Comparison {
		switch plan.Kind {
		case models.PlanStudent:
			out = append(out, models.GroupByStudent)
		case models.PlanProvider:
			out = append(out, models.GroupByClinician)
		case models.PlanVendor:
			out = append(out, models.GroupByVendor)
		}
	}
	if plan.Kind == models.PlanProvider && !plan.Trend {
		out = append(out, models.GroupByStudent)
	}
	return out
}

func spansMonths(w models.TimeWindow) bool {
	return w.Specified() && !w.SingleMonth()
}
