package models

// PlanKind is a canonical report family from the closed catalog. Each
// kind maps 1:1 to a mode family in the router.
type PlanKind string

const (
	PlanStudent  PlanKind = "student_level"
	PlanProvider PlanKind = "provider_level"
	PlanVendor   PlanKind = "vendor_level"
	PlanDistrict PlanKind = "district_level"
)

// AllPlanKinds enumerates the closed plan-kind catalog for totality checks.
var AllPlanKinds = []PlanKind{PlanStudent, PlanProvider, PlanVendor, PlanDistrict}

// Grouping is a dimension the result set is grouped by.
type Grouping string

const (
	GroupByMonth     Grouping = "by_month"
	GroupByStudent   Grouping = "by_student"
	GroupByClinician Grouping = "by_clinician"
	GroupByVendor    Grouping = "by_vendor"
	GroupByService   Grouping = "by_service"
)

// QueryPlan is the abstract, SQL-free description of what to compute.
// It never contains literal SQL.
type QueryPlan struct {
	Kind       PlanKind       `json:"kind"`
	Focus      []EntityFilter `json:"focus,omitempty"`
	Window     TimeWindow     `json:"window"`
	Metrics    []Metric       `json:"metrics,omitempty"`
	Groupings  []Grouping     `json:"groupings,omitempty"`
	Trend      bool           `json:"trend"`
	TopN       bool           `json:"top_n"`
	Comparison bool           `json:"comparison"`
}

// FocusKind returns the entity kind of the plan's focus set, or
// KindDistrict when the plan has no entity focus.
func (p *QueryPlan) FocusKind() EntityKind {
	if len(p.Focus) > 0 {
		return p.Focus[0].Kind
	}
	return KindDistrict
}
