package models

// ScopeTransition is a state of the router's scope state machine.
type ScopeTransition string

const (
	TransitionNewScope       ScopeTransition = "new_scope"
	TransitionScopeContinued ScopeTransition = "scope_continued"
	TransitionSwitchPending  ScopeTransition = "scope_switch_pending"
	TransitionSwitchConfirmed ScopeTransition = "scope_switch_confirmed"
	TransitionClarify        ScopeTransition = "clarify"
)

// Mode is a canonical analytic category. Every mode maps to exactly one
// SQL template or materialized view.
type Mode string

const (
	ModeStudentMonthly    Mode = "student_monthly"
	ModeStudentTrend      Mode = "student_trend"
	ModeStudentInvoices   Mode = "student_invoices"
	ModeStudentComparison Mode = "student_comparison"
	ModeProviderCaseload  Mode = "provider_caseload"
	ModeProviderHours     Mode = "provider_hours"
	ModeVendorInvoices    Mode = "vendor_invoices"
	ModeVendorMonthly     Mode = "vendor_monthly"
	ModeDistrictSummary   Mode = "district_summary"
	ModeDistrictTrend     Mode = "district_trend"
	ModeTopInvoices       Mode = "top_invoices"
)

// AllModes enumerates the closed mode catalog for totality checks.
var AllModes = []Mode{
	ModeStudentMonthly,
	ModeStudentTrend,
	ModeStudentInvoices,
	ModeStudentComparison,
	ModeProviderCaseload,
	ModeProviderHours,
	ModeVendorInvoices,
	ModeVendorMonthly,
	ModeDistrictSummary,
	ModeDistrictTrend,
	ModeTopInvoices,
}

// DecisionFilters are the resolved filters a mode executes with.
// DistrictKey is mandatory on every decision that synthesizes SQL.
type DecisionFilters struct {
	DistrictKey    string        `json:"district_key"`
	Student        *EntityFilter `json:"student,omitempty"`
	CompareStudent *EntityFilter `json:"compare_student,omitempty"`
	Vendor         *EntityFilter `json:"vendor,omitempty"`
	Clinician      *EntityFilter `json:"clinician,omitempty"`
	Window         *TimeWindow   `json:"window,omitempty"`
	Limit          int           `json:"limit,omitempty"`
}

// RouterDecision is the deterministic outcome of routing one turn.
type RouterDecision struct {
	Transition          ScopeTransition `json:"transition"`
	Mode                Mode            `json:"mode,omitempty"`
	Filters             DecisionFilters `json:"filters"`
	MaterializedView    string          `json:"materialized_view,omitempty"`
	NeedsClarification  bool            `json:"needs_clarification"`
	ClarificationReason string          `json:"clarification_reason,omitempty"`
	Question            string          `json:"question,omitempty"`
	ProposedSwitch      *EntityFilter   `json:"proposed_switch,omitempty"`
}
