package models

// AnalyticsIR is the executable intermediate representation produced by
// the SQL synthesizer and stamped by the safety validator. Only an IR
// with Valid=true and a bound district_key may reach the execution sink.
type AnalyticsIR struct {
	Mode             Mode           `json:"mode"`
	MaterializedView string         `json:"materialized_view,omitempty"`
	Entities         []EntityFilter `json:"entities,omitempty"`
	Window           *TimeWindow    `json:"window,omitempty"`

	// SQL carries $N positional placeholders; Values are the bind
	// operands in positional order. NamedParams preserves the
	// name→value mapping for validation and logging.
	SQL         string         `json:"sql"`
	Values      []any          `json:"-"`
	NamedParams map[string]any `json:"-"`

	// Valid is set only by the safety validator.
	Valid bool `json:"valid"`
}

// DistrictBinding returns the bound district key and whether one exists.
func (ir *AnalyticsIR) DistrictBinding() (string, bool) {
	v, ok := ir.NamedParams["district_key"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// ValidationReport is the safety validator's verdict on an AnalyticsIR.
type ValidationReport struct {
	IsValid      bool     `json:"is_valid"`
	Violations   []string `json:"violations,omitempty"`
	SanitizedSQL string   `json:"sanitized_sql,omitempty"`
	// Reason is a human-readable rejection summary for internal logs.
	Reason string `json:"reason,omitempty"`
}
