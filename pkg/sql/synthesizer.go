package sql

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/apperrors"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// Synthesizer turns a RouterDecision into an AnalyticsIR by binding the
// decision's filters into the mode's template. It never builds SQL text
// from user input; the template registry is the only source of SQL.
type Synthesizer struct {
	logger *zap.Logger
}

func NewSynthesizer(logger *zap.Logger) *Synthesizer {
	return &Synthesizer{logger: logger.Named("sql-synthesizer")}
}

// Synthesize produces the unvalidated IR for a routed turn. The caller
// must pass the IR through the Validator before execution.
func (s *Synthesizer) Synthesize(decision *models.RouterDecision) (*models.AnalyticsIR, error) {
	if decision.NeedsClarification {
		return nil, fmt.Errorf("cannot synthesize SQL for a clarification decision")
	}

	tpl, ok := TemplateFor(decision.Mode)
	if !ok {
		return nil, fmt.Errorf("mode %q: %w", decision.Mode, apperrors.ErrUnknownMode)
	}

	named, entities, err := bindFilters(tpl, &decision.Filters)
	if err != nil {
		return nil, fmt.Errorf("binding filters for mode %q: %w", decision.Mode, err)
	}

	prepared, values, err := SubstituteParameters(tpl.SQL, tpl.Params, named)
	if err != nil {
		return nil, fmt.Errorf("substituting parameters for mode %q: %w", decision.Mode, err)
	}

	ir := &models.AnalyticsIR{
		Mode:             decision.Mode,
		MaterializedView: tpl.View,
		Entities:         entities,
		Window:           decision.Filters.Window,
		SQL:              prepared,
		Values:           values,
		NamedParams:      named,
	}

	s.logger.Debug("synthesized query",
		zap.String("mode", string(decision.Mode)),
		zap.String("view", tpl.View),
		zap.Int("bind_count", len(values)))

	return ir, nil
}

// bindFilters maps decision filters onto the template's named
// parameters. A filter the template has no parameter for is an internal
// routing bug and fails synthesis.
func bindFilters(tpl Template, filters *models.DecisionFilters) (map[string]any, []models.EntityFilter, error) {
	if filters.DistrictKey == "" {
		return nil, nil, fmt.Errorf("decision carries no district_key")
	}

	named := map[string]any{"district_key": filters.DistrictKey}
	var entities []models.EntityFilter

	if filters.Student != nil {
		named["student_name"] = filters.Student.Name
		entities = append(entities, *filters.Student)
	}
	if filters.CompareStudent != nil {
		named["compare_student_name"] = filters.CompareStudent.Name
		entities = append(entities, *filters.CompareStudent)
	}
	if filters.Vendor != nil {
		named["vendor_name"] = filters.Vendor.Name
		entities = append(entities, *filters.Vendor)
	}
	if filters.Clinician != nil {
		named["clinician_name"] = filters.Clinician.Name
		entities = append(entities, *filters.Clinician)
	}

	switch tpl.Shape {
	case windowShapeMonth:
		if filters.Window == nil || !filters.Window.SingleMonth() {
			return nil, nil, fmt.Errorf("mode %q requires a single-month window", tpl.Mode)
		}
		named["service_month"] = filters.Window.StartMonth()
	case windowShapeMonths:
		if filters.Window == nil {
			return nil, nil, fmt.Errorf("mode %q requires a time window", tpl.Mode)
		}
		named["start_month"] = filters.Window.StartMonth()
		named["end_month"] = filters.Window.EndMonth()
	case windowShapeDates:
		if filters.Window == nil {
			return nil, nil, fmt.Errorf("mode %q requires a time window", tpl.Mode)
		}
		named["start_date"] = filters.Window.StartDate()
		named["end_date"] = filters.Window.EndDate()
	}

	if filters.Limit > 0 {
		named["row_limit"] = filters.Limit
	}

	// Drop supplied names the template does not declare. Carried-over
	// context can legitimately include more filters than a mode binds.
	declared := make(map[string]bool, len(tpl.Params))
	for _, p := range tpl.Params {
		declared[p.Name] = true
	}
	for name := range named {
		if !declared[name] {
			delete(named, name)
		}
	}

	// district_key survives the pruning by construction; every template
	// declares it.
	return named, entities, nil
}
