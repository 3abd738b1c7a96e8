package router

import (
	"fmt"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// windowClass buckets a time window by what the templates need from it.
type windowClass int

const (
	windowNone   windowClass = iota // unspecified
	windowMonth                     // exactly one calendar month
	windowMonths                    // month-grained span (year, school year, last-N)
	windowDates                     // explicit date range
)

func classifyWindow(w models.TimeWindow) windowClass {
	switch {
	case !w.Specified():
		return windowNone
	case w.Kind == models.WindowExplicit:
		return windowDates
	case w.SingleMonth():
		return windowMonth
	default:
		return windowMonths
	}
}

// availability is the filter signature mode assignment is keyed on.
type availability struct {
	Subject bool
	Window  windowClass
	Trend   bool
	TopN    bool
	Compare bool
}

// tri is a wildcard-capable boolean for rule matching.
type tri int

const (
	triAny tri = iota
	triYes
	triNo
)

func (t tri) matches(v bool) bool {
	switch t {
	case triYes:
		return v
	case triNo:
		return !v
	}
	return true
}

// winTri is a wildcard-capable window class for rule matching.
type winTri int

const (
	winAny winTri = iota
	winNone
	winMonth
	winMonths
	winDates
)

func (w winTri) matches(c windowClass) bool {
	switch w {
	case winNone:
		return c == windowNone
	case winMonth:
		return c == windowMonth
	case winMonths:
		return c == windowMonths
	case winDates:
		return c == windowDates
	}
	return true
}

// modeRule maps one (plan kind, filter signature) region to a mode.
// Rules are evaluated in order; the first match wins.
type modeRule struct {
	kind    models.PlanKind
	trend   tri
	topN    tri
	compare tri
	window  winTri
	mode    models.Mode
}

// modeRules is the complete mode assignment table. Together with
// planRequirements it must cover every reachable filter signature;
// CheckTotality enforces this at startup.
var modeRules = []modeRule{
	// Student family. Subject and window are mandatory (see
	// planRequirements), so every rule may assume both.
	{kind: models.PlanStudent, compare: triYes, window: winAny, mode: models.ModeStudentComparison},
	{kind: models.PlanStudent, trend: triYes, window: winAny, mode: models.ModeStudentTrend},
	{kind: models.PlanStudent, window: winMonth, mode: models.ModeStudentMonthly},
	{kind: models.PlanStudent, window: winMonths, mode: models.ModeStudentTrend},
	{kind: models.PlanStudent, window: winDates, mode: models.ModeStudentInvoices},

	// Provider (clinician) family. Window is optional: the caseload view
	// answers the no-window case.
	{kind: models.PlanProvider, window: winNone, mode: models.ModeProviderCaseload},
	{kind: models.PlanProvider, window: winAny, mode: models.ModeProviderHours},

	// Vendor family.
	{kind: models.PlanVendor, topN: triYes, window: winAny, mode: models.ModeVendorInvoices},
	{kind: models.PlanVendor, trend: triYes, window: winAny, mode: models.ModeVendorMonthly},
	{kind: models.PlanVendor, window: winDates, mode: models.ModeVendorInvoices},
	{kind: models.PlanVendor, window: winAny, mode: models.ModeVendorMonthly},

	// District family.
	{kind: models.PlanDistrict, topN: triYes, window: winAny, mode: models.ModeTopInvoices},
	{kind: models.PlanDistrict, trend: triYes, window: winAny, mode: models.ModeDistrictTrend},
	{kind: models.PlanDistrict, window: winAny, mode: models.ModeDistrictSummary},
}

// requirements lists the mandatory filters per plan kind. A plan missing
// one routes to CLARIFY before mode assignment.
type requirements struct {
	Subject bool
	Window  bool
}

var planRequirements = map[models.PlanKind]requirements{
	models.PlanStudent:  {Subject: true, Window: true},
	models.PlanProvider: {Subject: true, Window: false},
	models.PlanVendor:   {Subject: true, Window: true},
	models.PlanDistrict: {Subject: false, Window: true},
}

// modeFor looks up the mode for a filter signature. The boolean is false
// only for signatures the totality check would have rejected at startup.
func modeFor(kind models.PlanKind, avail availability) (models.Mode, bool) {
	for _, rule := range modeRules {
		if rule.kind != kind {
			continue
		}
		if !rule.trend.matches(avail.Trend) || !rule.topN.matches(avail.TopN) ||
			!rule.compare.matches(avail.Compare) || !rule.window.matches(avail.Window) {
			continue
		}
		return rule.mode, true
	}
	return "", false
}

// CheckTotality verifies at startup that every reachable (plan kind,
// filter signature) combination is covered: either a mandatory filter is
// missing (the clarify path) or exactly one rule region yields a mode
// from the catalog. An unmapped combination is a configuration error,
// not a runtime guess.
func CheckTotality() error {
	catalog := make(map[models.Mode]bool, len(models.AllModes))
	for _, m := range models.AllModes {
		catalog[m] = true
	}

	for _, kind := range models.AllPlanKinds {
		req, ok := planRequirements[kind]
		if !ok {
			return fmt.Errorf("plan kind %q has no filter requirements entry", kind)
		}

		for _, subject := range []bool{false, true} {
			for _, window := range []windowClass{windowNone, windowMonth, windowMonths, windowDates} {
				for _, trend := range []bool{false, true} {
					for _, topN := range []bool{false, true} {
						for _, compare := range []bool{false, true} {
							if req.Subject && !subject {
								continue // clarify path
							}
							if req.Window && window == windowNone {
								continue // clarify path
							}
							avail := availability{Subject: subject, Window: window, Trend: trend, TopN: topN, Compare: compare}
							mode, ok := modeFor(kind, avail)
							if !ok {
								return fmt.Errorf("no mode mapped for plan kind %q signature %+v", kind, avail)
							}
							if !catalog[mode] {
								return fmt.Errorf("rule for plan kind %q maps to mode %q outside the catalog", kind, mode)
							}
						}
					}
				}
			}
		}
	}

	// Every catalog mode must select exactly one materialized view entry
	// (possibly none, meaning a raw-table template).
	for _, mode := range models.AllModes {
		if _, ok := materializedViews[mode]; !ok {
			return fmt.Errorf("mode %q has no materialized-view table entry", mode)
		}
	}

	return nil
}
