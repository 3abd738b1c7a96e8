package router

import "github.com/servicelens-inc/servicelens-engine/pkg/models"

// materializedViews selects the view per mode, keyed strictly on the
// final mode value and never on ad-hoc text hints. An empty entry means
// the mode runs its raw-table template. Adding a new view only requires a
// new entry here; CheckTotality enforces that every mode has one.
var materializedViews = map[models.Mode]string{
	models.ModeStudentMonthly:    "mv_student_monthly",
	models.ModeStudentTrend:      "mv_student_monthly",
	models.ModeStudentComparison: "mv_student_monthly",
	models.ModeStudentInvoices:   "",
	models.ModeProviderCaseload:  "mv_provider_caseload",
	models.ModeProviderHours:     "",
	models.ModeVendorInvoices:    "",
	models.ModeVendorMonthly:     "mv_vendor_monthly",
	models.ModeDistrictSummary:   "mv_district_monthly",
	models.ModeDistrictTrend:     "mv_district_monthly",
	models.ModeTopInvoices:       "",
}

// ViewFor returns the materialized view backing a mode, or "" when the
// mode runs against the raw tables.
func ViewFor(mode models.Mode) string {
	return materializedViews[mode]
}
