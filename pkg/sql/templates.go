package sql

import (
	"fmt"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// windowShape describes which time parameters a template binds.
type windowShape int

const (
	windowShapeNone   windowShape = iota // no time parameters
	windowShapeMonth                     // service_month (single YYYY-MM key)
	windowShapeMonths                    // start_month + end_month keys
	windowShapeDates                     // start_date + end_date
)

// Template is one entry of the closed SQL template registry. SQL uses
// {{param}} placeholders only; no value is ever interpolated into the
// text.
type Template struct {
	Mode   models.Mode
	View   string // backing materialized view, "" for raw tables
	Shape  windowShape
	SQL    string
	Params []Param
}

func districtParam() Param  { return Param{Name: "district_key", Required: true} }
func rowLimitParam() Param  { return Param{Name: "row_limit", Required: false, Default: 500} }
func monthParams() []Param  { return []Param{{Name: "start_month", Required: true}, {Name: "end_month", Required: true}} }
func dateParams() []Param   { return []Param{{Name: "start_date", Required: true}, {Name: "end_date", Required: true}} }

// templates is the registry, keyed by mode. Every mode in the catalog
// has exactly one template; CheckRegistry verifies this at startup.
var templates = map[models.Mode]Template{
	models.ModeStudentMonthly: {
		Mode:  models.ModeStudentMonthly,
		View:  "mv_student_monthly",
		Shape: windowShapeMonth,
		SQL: `SELECT student_name, service_month, total_hours, total_cost, session_count
FROM mv_student_monthly
WHERE district_key = {{district_key}}
  AND lower(student_name) = lower({{student_name}})
  AND service_month = {{service_month}}`,
		Params: []Param{
			districtParam(),
			{Name: "student_name", Required: true},
			{Name: "service_month", Required: true},
		},
	},

	models.ModeStudentTrend: {
		Mode:  models.ModeStudentTrend,
		View:  "mv_student_monthly",
		Shape: windowShapeMonths,
		SQL: `SELECT service_month, total_hours, total_cost, session_count
FROM mv_student_monthly
WHERE district_key = {{district_key}}
  AND lower(student_name) = lower({{student_name}})
  AND service_month BETWEEN {{start_month}} AND {{end_month}}
ORDER BY service_month`,
		Params: append([]Param{
			districtParam(),
			{Name: "student_name", Required: true},
		}, monthParams()...),
	},

	models.ModeStudentInvoices: {
		Mode:  models.ModeStudentInvoices,
		Shape: windowShapeDates,
		SQL: `SELECT i.invoice_number, i.invoice_date, v.name AS vendor_name,
       l.service_date, l.service_type, l.hours, l.amount
FROM invoice_lines l
JOIN invoices i ON i.id = l.invoice_id AND i.district_key = l.district_key
JOIN vendors v ON v.id = i.vendor_id AND v.district_key = i.district_key
JOIN students s ON s.id = l.student_id AND s.district_key = l.district_key
WHERE l.district_key = {{district_key}}
  AND lower(s.name) = lower({{student_name}})
  AND l.service_date BETWEEN {{start_date}} AND {{end_date}}
ORDER BY l.service_date DESC
LIMIT {{row_limit}}`,
		Params: append(append([]Param{
			districtParam(),
			{Name: "student_name", Required: true},
		}, dateParams()...), rowLimitParam()),
	},

	models.ModeStudentComparison: {
		Mode:  models.ModeStudentComparison,
		View:  "mv_student_monthly",
		Shape: windowShapeMonths,
		SQL: `SELECT student_name, service_month, total_hours, total_cost, session_count
FROM mv_student_monthly
WHERE district_key = {{district_key}}
  AND (lower(student_name) = lower({{student_name}})
       OR lower(student_name) = lower({{compare_student_name}}))
  AND service_month BETWEEN {{start_month}} AND {{end_month}}
ORDER BY student_name, service_month`,
		Params: append([]Param{
			districtParam(),
			{Name: "student_name", Required: true},
			{Name: "compare_student_name", Required: true},
		}, monthParams()...),
	},

	// No window: the caseload view answers with the most recent month on
	// record for the clinician.
	models.ModeProviderCaseload: {
		Mode:  models.ModeProviderCaseload,
		View:  "mv_provider_caseload",
		Shape: windowShapeNone,
		SQL: `SELECT clinician_name, service_month, student_count, total_hours
FROM mv_provider_caseload
WHERE district_key = {{district_key}}
  AND lower(clinician_name) = lower({{clinician_name}})
  AND service_month = (
    SELECT max(service_month)
    FROM mv_provider_caseload
    WHERE district_key = {{district_key}}
      AND lower(clinician_name) = lower({{clinician_name}})
  )`,
		Params: []Param{
			districtParam(),
			{Name: "clinician_name", Required: true},
		},
	},

	models.ModeProviderHours: {
		Mode:  models.ModeProviderHours,
		Shape: windowShapeDates,
		SQL: `SELECT c.name AS clinician_name,
       sum(l.hours) AS total_hours,
       count(DISTINCT l.student_id) AS student_count,
       count(*) AS session_count
FROM invoice_lines l
JOIN clinicians c ON c.id = l.clinician_id AND c.district_key = l.district_key
WHERE l.district_key = {{district_key}}
  AND lower(c.name) = lower({{clinician_name}})
  AND l.service_date BETWEEN {{start_date}} AND {{end_date}}
GROUP BY c.name`,
		Params: append([]Param{
			districtParam(),
			{Name: "clinician_name", Required: true},
		}, dateParams()...),
	},

	models.ModeVendorInvoices: {
		Mode:  models.ModeVendorInvoices,
		Shape: windowShapeDates,
		SQL: `SELECT i.invoice_number, i.invoice_date, i.total_amount
FROM invoices i
JOIN vendors v ON v.id = i.vendor_id AND v.district_key = i.district_key
WHERE i.district_key = {{district_key}}
  AND lower(v.name) = lower({{vendor_name}})
  AND i.invoice_date BETWEEN {{start_date}} AND {{end_date}}
ORDER BY i.total_amount DESC
LIMIT {{row_limit}}`,
		Params: append(append([]Param{
			districtParam(),
			{Name: "vendor_name", Required: true},
		}, dateParams()...), rowLimitParam()),
	},

	models.ModeVendorMonthly: {
		Mode:  models.ModeVendorMonthly,
		View:  "mv_vendor_monthly",
		Shape: windowShapeMonths,
		SQL: `SELECT vendor_name, service_month, invoice_count, total_amount
FROM mv_vendor_monthly
WHERE district_key = {{district_key}}
  AND lower(vendor_name) = lower({{vendor_name}})
  AND service_month BETWEEN {{start_month}} AND {{end_month}}
ORDER BY service_month`,
		Params: append([]Param{
			districtParam(),
			{Name: "vendor_name", Required: true},
		}, monthParams()...),
	},

	models.ModeDistrictSummary: {
		Mode:  models.ModeDistrictSummary,
		View:  "mv_district_monthly",
		Shape: windowShapeMonths,
		SQL: `SELECT sum(total_hours) AS total_hours,
       sum(total_cost) AS total_cost,
       sum(invoice_count) AS invoice_count
FROM mv_district_monthly
WHERE district_key = {{district_key}}
  AND service_month BETWEEN {{start_month}} AND {{end_month}}`,
		Params: append([]Param{districtParam()}, monthParams()...),
	},

	models.ModeDistrictTrend: {
		Mode:  models.ModeDistrictTrend,
		View:  "mv_district_monthly",
		Shape: windowShapeMonths,
		SQL: `SELECT service_month, total_hours, total_cost, invoice_count
FROM mv_district_monthly
WHERE district_key = {{district_key}}
  AND service_month BETWEEN {{start_month}} AND {{end_month}}
ORDER BY service_month`,
		Params: append([]Param{districtParam()}, monthParams()...),
	},

	models.ModeTopInvoices: {
		Mode:  models.ModeTopInvoices,
		Shape: windowShapeDates,
		SQL: `SELECT i.invoice_number, i.invoice_date, v.name AS vendor_name, i.total_amount
FROM invoices i
JOIN vendors v ON v.id = i.vendor_id AND v.district_key = i.district_key
WHERE i.district_key = {{district_key}}
  AND i.invoice_date BETWEEN {{start_date}} AND {{end_date}}
ORDER BY i.total_amount DESC
LIMIT {{row_limit}}`,
		Params: append(append([]Param{districtParam()}, dateParams()...), rowLimitParam()),
	},
}

// TemplateFor returns the SQL template for a mode.
func TemplateFor(mode models.Mode) (Template, bool) {
	t, ok := templates[mode]
	return t, ok
}

// CheckRegistry verifies the template registry at startup: every catalog
// mode has a template, every template's placeholders match its declared
// parameters, no placeholder sits inside a string literal, and every
// template carries the mandatory district_key parameter.
func CheckRegistry() error {
	for _, mode := range models.AllModes {
		t, ok := templates[mode]
		if !ok {
			return fmt.Errorf("mode %q has no SQL template", mode)
		}
		if err := ValidateParameterDefinitions(t.SQL, t.Params); err != nil {
			return fmt.Errorf("template for mode %q: %w", mode, err)
		}
		if problems := FindParametersInStringLiterals(t.SQL); len(problems) > 0 {
			return fmt.Errorf("template for mode %q has parameters inside string literals: %v", mode, problems)
		}
		hasDistrict := false
		for _, p := range t.Params {
			if p.Name == "district_key" && p.Required {
				hasDistrict = true
			}
		}
		if !hasDistrict {
			return fmt.Errorf("template for mode %q does not require district_key", mode)
		}
	}
	return nil
}
