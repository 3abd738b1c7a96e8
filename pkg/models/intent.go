package models

import (
	"fmt"
	"time"
)

// AmbiguityFlag marks a specific way the normalized intent is underspecified.
type AmbiguityFlag string

const (
	FlagParseError       AmbiguityFlag = "parse_error"
	FlagMissingTime      AmbiguityFlag = "missing_time"
	FlagMissingEntity    AmbiguityFlag = "missing_entity"
	FlagVagueMetric      AmbiguityFlag = "vague_metric"
	FlagMultipleSubjects AmbiguityFlag = "multiple_subjects"
	FlagOutOfDomain      AmbiguityFlag = "out_of_domain"
)

// Metric is a requested measurement.
type Metric string

const (
	MetricHours Metric = "hours"
	MetricCost  Metric = "cost"
	MetricCount Metric = "count"
)

// WindowKind classifies a resolved time window.
type WindowKind string

const (
	WindowUnspecified WindowKind = "unspecified"
	WindowExplicit    WindowKind = "explicit_range"
	WindowMonth       WindowKind = "named_month"
	WindowYear        WindowKind = "calendar_year"
	WindowSchoolYear  WindowKind = "school_year"
	WindowLastNMonths WindowKind = "last_n_months"
)

// TimeWindow is a resolved reporting period. Start and End are inclusive
// day bounds; Start is always the first day of its month for month-grained
// kinds.
type TimeWindow struct {
	Kind  WindowKind `json:"kind"`
	Start time.Time  `json:"start,omitempty"`
	End   time.Time  `json:"end,omitempty"`
}

// Specified reports whether the window carries usable bounds.
func (w TimeWindow) Specified() bool {
	return w.Kind != WindowUnspecified && w.Kind != ""
}

// SingleMonth reports whether the window spans exactly one calendar month.
func (w TimeWindow) SingleMonth() bool {
	if !w.Specified() {
		return false
	}
	return w.Start.Year() == w.End.Year() && w.Start.Month() == w.End.Month()
}

// MonthKey formats a time as the YYYY-MM key used by the materialized views.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// StartMonth returns the YYYY-MM key of the window's first month.
func (w TimeWindow) StartMonth() string { return MonthKey(w.Start) }

// EndMonth returns the YYYY-MM key of the window's last month.
func (w TimeWindow) EndMonth() string { return MonthKey(w.End) }

// StartDate returns the window start formatted as a SQL date literal operand.
func (w TimeWindow) StartDate() string { return w.Start.Format("2006-01-02") }

// EndDate returns the window end formatted as a SQL date literal operand.
func (w TimeWindow) EndDate() string { return w.End.Format("2006-01-02") }

// Mention is a raw entity reference extracted from the user's text.
type Mention struct {
	Raw  string     `json:"raw"`
	Kind EntityKind `json:"kind"`
}

// TimeExpression pairs the raw time phrase with its deterministic resolution.
type TimeExpression struct {
	Raw    string     `json:"raw"`
	Window TimeWindow `json:"window"`
}

// Intent is the normalized form of one user turn. Immutable once produced.
type Intent struct {
	PrimaryType    EntityKind      `json:"primary_type"`
	Mentions       []Mention       `json:"mentions"`
	Time           TimeExpression  `json:"time"`
	Metrics        []Metric        `json:"metrics"`
	Comparison     bool            `json:"comparison"`
	Trend          bool            `json:"trend"`
	TopN           bool            `json:"top_n"`
	Affirmation    bool            `json:"affirmation"`
	AmbiguityFlags []AmbiguityFlag `json:"ambiguity_flags,omitempty"`
}

// HasFlag reports whether the intent carries the given ambiguity flag.
func (i *Intent) HasFlag(flag AmbiguityFlag) bool {
	for _, f := range i.AmbiguityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// MentionsOf returns the raw mentions of the given kind.
func (i *Intent) MentionsOf(kind EntityKind) []Mention {
	var out []Mention
	for _, m := range i.Mentions {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
