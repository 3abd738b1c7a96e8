package models

import (
	"time"
)

// maxTurnHistory caps the turn ring kept in conversation state.
const maxTurnHistory = 20

// Turn is one completed exchange in a session.
type Turn struct {
	At                 time.Time `json:"at"`
	UserText           string    `json:"user_text"`
	Mode               string    `json:"mode,omitempty"`
	NeedsClarification bool      `json:"needs_clarification"`
}

// PendingClarification holds the question the engine asked and what it is
// waiting on, including a proposed scope switch awaiting confirmation.
type PendingClarification struct {
	Question       string        `json:"question"`
	Reason         string        `json:"reason"`
	ProposedSwitch *EntityFilter `json:"proposed_switch,omitempty"`
	ProposedWindow *TimeWindow   `json:"proposed_window,omitempty"`
}

// ActiveFilters holds the entity scopes bound as the implicit subject of
// follow-up turns. At most one primary scope per kind; PrimaryKind names
// the kind that pronouns resolve against.
type ActiveFilters struct {
	Student     *EntityFilter `json:"student,omitempty"`
	Vendor      *EntityFilter `json:"vendor,omitempty"`
	Clinician   *EntityFilter `json:"clinician,omitempty"`
	PrimaryKind EntityKind    `json:"primary_kind,omitempty"`
}

// Get returns the filter for the given kind, if set.
func (f *ActiveFilters) Get(kind EntityKind) *EntityFilter {
	switch kind {
	case KindStudent:
		return f.Student
	case KindVendor:
		return f.Vendor
	case KindClinician:
		return f.Clinician
	}
	return nil
}

// Set binds the filter for its kind and makes that kind primary.
func (f *ActiveFilters) Set(filter EntityFilter) {
	switch filter.Kind {
	case KindStudent:
		f.Student = &filter
	case KindVendor:
		f.Vendor = &filter
	case KindClinician:
		f.Clinician = &filter
	default:
		return
	}
	f.PrimaryKind = filter.Kind
}

// Primary returns the filter of the primary kind, if any.
func (f *ActiveFilters) Primary() *EntityFilter {
	return f.Get(f.PrimaryKind)
}

// Replace drops all filters and binds only the given one.
func (f *ActiveFilters) Replace(filter EntityFilter) {
	*f = ActiveFilters{}
	f.Set(filter)
}

// Empty reports whether no scope is active.
func (f *ActiveFilters) Empty() bool {
	return f.Student == nil && f.Vendor == nil && f.Clinician == nil
}

// ConversationState is the per-session state persisted between turns.
// Never shared across districts.
type ConversationState struct {
	SessionID   string `json:"session_id"`
	DistrictKey string `json:"district_key"`
	// Version supports optimistic concurrency in the state store.
	Version int64 `json:"version"`

	Turns         []Turn                `json:"turns,omitempty"`
	ActiveFilters ActiveFilters         `json:"active_entity_filters"`
	ActiveTopic   string                `json:"active_topic,omitempty"`
	Pending       *PendingClarification `json:"pending_clarification,omitempty"`
	Period        *TimeWindow           `json:"period_context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates the state for a session's first turn.
func NewConversationState(sessionID, districtKey string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		SessionID:   sessionID,
		DistrictKey: districtKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AppendTurn records a completed turn, keeping only the most recent history.
func (s *ConversationState) AppendTurn(turn Turn) {
	s.Turns = append(s.Turns, turn)
	if len(s.Turns) > maxTurnHistory {
		s.Turns = s.Turns[len(s.Turns)-maxTurnHistory:]
	}
}

// Touch bumps the activity timestamp.
func (s *ConversationState) Touch() {
	s.UpdatedAt = time.Now().UTC()
}
