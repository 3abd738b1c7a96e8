// Package router deterministically assigns an analytic mode to each
// turn and manages conversational scope through an explicit state
// machine. Mode assignment and materialized-view selection are
// table-driven; totality is enforced at startup.
package router

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// Clarification reasons carried on RouterDecision.
const (
	ReasonParseError       = "parse_error"
	ReasonMissingEntity    = "missing_entity"
	ReasonMissingTime      = "missing_time"
	ReasonScopeSwitch      = "scope_switch_pending"
	ReasonComparison       = "comparison_incomplete"
	ReasonMultipleSubjects = "multiple_subjects"
)

// subjectKinds maps each plan kind to the entity kind it reports on.
// District plans have no entity subject.
var subjectKinds = map[models.PlanKind]models.EntityKind{
	models.PlanStudent:  models.KindStudent,
	models.PlanProvider: models.KindClinician,
	models.PlanVendor:   models.KindVendor,
	models.PlanDistrict: "",
}

var planKindsByEntity = map[models.EntityKind]models.PlanKind{
	models.KindStudent:   models.PlanStudent,
	models.KindClinician: models.PlanProvider,
	models.KindVendor:    models.PlanVendor,
}

// Config holds router tunables.
type Config struct {
	// StrictSwitchConfirmation requires a pending switch to be
	// re-affirmed with the entity named, not just a bare "yes".
	StrictSwitchConfirmation bool
	// TopNLimit is the row limit bound into top-N modes.
	TopNLimit int
	// MaxRows is the row limit bound into all other raw-table modes.
	MaxRows int
}

// Router routes query plans to modes.
type Router struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a router after verifying the mode and view tables are
// total. A gap in either table is a configuration error that must abort
// startup.
func New(cfg Config, logger *zap.Logger) (*Router, error) {
	if err := CheckTotality(); err != nil {
		return nil, fmt.Errorf("router tables incomplete: %w", err)
	}
	if cfg.TopNLimit <= 0 {
		cfg.TopNLimit = 25
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 500
	}
	return &Router{cfg: cfg, logger: logger.Named("router")}, nil
}

// Route produces the RouterDecision for one turn. It is a pure function
// of its inputs: identical (plan, state, intent) triples yield identical
// decisions.
func (r *Router) Route(plan *models.QueryPlan, state *models.ConversationState, it *models.Intent) (*models.RouterDecision, error) {
	if it.HasFlag(models.FlagParseError) {
		return Clarify(ReasonParseError,
			"I didn't quite understand that. Could you rephrase the question?"), nil
	}

	// A pending scope switch is resolved before anything else: an
	// affirmation confirms it, any other turn leaves the prior scope
	// untouched so the user can abandon the switch by re-asking.
	if state.Pending != nil && state.Pending.ProposedSwitch != nil && it.Affirmation {
		return r.confirmSwitch(plan, state)
	}

	// Several same-kind subjects without an explicit comparison: picking
	// one would silently answer a question the user never asked.
	if it.HasFlag(models.FlagMultipleSubjects) && !plan.Comparison {
		question := "You named more than one. Which one should I report on, or would you like them compared?"
		if len(plan.Focus) >= 2 {
			question = fmt.Sprintf("Did you mean %s or %s? I can report on one, or compare them side by side.",
				plan.Focus[0].Name, plan.Focus[1].Name)
		}
		return Clarify(ReasonMultipleSubjects, question), nil
	}

	kind := plan.Kind
	focus := plan.Focus
	usedActiveScope := false

	// Implicit subject: pronouns and bare follow-ups resolve against the
	// active filters. With no active filter the router asks instead of
	// guessing.
	if len(focus) == 0 && it.PrimaryType == models.KindUnknown && len(it.Mentions) == 0 {
		primary := state.ActiveFilters.Primary()
		if primary == nil {
			return Clarify(ReasonMissingEntity,
				"Who or what should I report on? A student, clinician, or vendor, or the whole district?"), nil
		}
		kind = planKindsByEntity[primary.Kind]
		focus = []models.EntityFilter{*primary}
		usedActiveScope = true
	}

	subjectKind := subjectKinds[kind]
	if len(focus) == 0 && subjectKind != "" {
		if f := state.ActiveFilters.Get(subjectKind); f != nil {
			focus = []models.EntityFilter{*f}
			usedActiveScope = true
		}
	}

	req := planRequirements[kind]
	if req.Subject && len(focus) == 0 {
		return Clarify(ReasonMissingEntity,
			fmt.Sprintf("Which %s do you mean?", subjectKind)), nil
	}

	// Side-by-side comparison exists for students only. Anything else is
	// narrowed to one subject explicitly, never by dropping a name.
	if plan.Comparison && kind != models.PlanStudent {
		first := "the first"
		if len(focus) > 0 {
			first = focus[0].Name
		}
		return Clarify(ReasonComparison,
			fmt.Sprintf("I can only compare two students side by side. Should I report on %s alone?", first)), nil
	}

	if plan.Comparison && len(focus) < 2 {
		return Clarify(ReasonComparison,
			"Which two should I compare? Please name both."), nil
	}

	// Scope transition.
	transition := models.TransitionNewScope
	switch {
	case state.ActiveFilters.Empty():
		transition = models.TransitionNewScope
	case usedActiveScope || subjectKind == "" || subjectKind == state.ActiveFilters.PrimaryKind:
		transition = models.TransitionScopeContinued
	default:
		// A different entity kind was introduced without confirmation:
		// never silently replace context.
		proposed := focus[0]
		currentName := "your current selection"
		if current := state.ActiveFilters.Primary(); current != nil {
			currentName = fmt.Sprintf("%s %s", current.Kind, current.Name)
		}
		question := fmt.Sprintf("You're currently looking at %s. Switch to %s %s?",
			currentName, proposed.Kind, proposed.Name)
		d := Clarify(ReasonScopeSwitch, question)
		d.Transition = models.TransitionSwitchPending
		d.ProposedSwitch = &proposed
		if plan.Window.Specified() {
			w := plan.Window
			d.Filters.Window = &w
		}
		return d, nil
	}

	// Time window, with period carry-over on continued scope.
	window := plan.Window
	if !window.Specified() && transition == models.TransitionScopeContinued && state.Period != nil {
		window = *state.Period
	}
	if req.Window && !window.Specified() {
		return Clarify(ReasonMissingTime,
			"For what time period? A month, the school year, or a date range?"), nil
	}

	return r.assign(kind, transition, focus, window, plan, state)
}

// confirmSwitch completes a pending scope switch: the old filter set is
// replaced by the proposed entity.
func (r *Router) confirmSwitch(plan *models.QueryPlan, state *models.ConversationState) (*models.RouterDecision, error) {
	proposed := *state.Pending.ProposedSwitch

	if r.cfg.StrictSwitchConfirmation && !mentionsEntity(plan, proposed) {
		d := Clarify(ReasonScopeSwitch,
			fmt.Sprintf("Just to confirm: switch to %s %s? Please include the name.", proposed.Kind, proposed.Name))
		d.Transition = models.TransitionSwitchPending
		d.ProposedSwitch = &proposed
		return d, nil
	}

	kind := planKindsByEntity[proposed.Kind]
	focus := []models.EntityFilter{proposed}

	window := plan.Window
	if !window.Specified() && state.Pending.ProposedWindow != nil {
		window = *state.Pending.ProposedWindow
	}
	if !window.Specified() && state.Period != nil {
		window = *state.Period
	}
	if planRequirements[kind].Window && !window.Specified() {
		d := Clarify(ReasonMissingTime,
			"For what time period? A month, the school year, or a date range?")
		// The confirmed subject must survive the clarification turn.
		d.Transition = models.TransitionSwitchConfirmed
		d.Filters.DistrictKey = state.DistrictKey
		setSubject(&d.Filters, proposed)
		return d, nil
	}

	return r.assign(kind, models.TransitionSwitchConfirmed, focus, window, plan, state)
}

// assign performs table-driven mode assignment and builds the final
// decision.
func (r *Router) assign(
	kind models.PlanKind,
	transition models.ScopeTransition,
	focus []models.EntityFilter,
	window models.TimeWindow,
	plan *models.QueryPlan,
	state *models.ConversationState,
) (*models.RouterDecision, error) {
	avail := availability{
		Subject: len(focus) > 0,
		Window:  classifyWindow(window),
		Trend:   plan.Trend,
		TopN:    plan.TopN,
		Compare: plan.Comparison,
	}

	mode, ok := modeFor(kind, avail)
	if !ok {
		// Unreachable after CheckTotality; surfacing it loudly beats a
		// runtime guess.
		return nil, fmt.Errorf("no mode mapped for plan kind %q signature %+v", kind, avail)
	}

	decision := &models.RouterDecision{
		Transition:       transition,
		Mode:             mode,
		MaterializedView: ViewFor(mode),
		Filters: models.DecisionFilters{
			DistrictKey: state.DistrictKey,
			Limit:       r.cfg.MaxRows,
		},
	}
	if plan.TopN {
		decision.Filters.Limit = r.cfg.TopNLimit
	}
	if window.Specified() {
		w := window
		decision.Filters.Window = &w
	}
	for i, f := range focus {
		if i == 0 {
			setSubject(&decision.Filters, f)
		} else if plan.Comparison && f.Kind == models.KindStudent {
			cf := f
			decision.Filters.CompareStudent = &cf
		}
	}

	r.logger.Debug("routed turn",
		zap.String("mode", string(mode)),
		zap.String("transition", string(transition)),
		zap.String("view", decision.MaterializedView))

	return decision, nil
}

func setSubject(filters *models.DecisionFilters, f models.EntityFilter) {
	switch f.Kind {
	case models.KindStudent:
		ff := f
		filters.Student = &ff
	case models.KindVendor:
		ff := f
		filters.Vendor = &ff
	case models.KindClinician:
		ff := f
		filters.Clinician = &ff
	}
}

func mentionsEntity(plan *models.QueryPlan, target models.EntityFilter) bool {
	for _, f := range plan.Focus {
		if f.Kind == target.Kind && f.ID == target.ID {
			return true
		}
	}
	return false
}

// Clarify builds a no-SQL decision that asks the user a question.
func Clarify(reason, question string) *models.RouterDecision {
	return &models.RouterDecision{
		Transition:          models.TransitionClarify,
		NeedsClarification:  true,
		ClarificationReason: reason,
		Question:            question,
	}
}
