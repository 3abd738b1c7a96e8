package models

import "github.com/google/uuid"

// EntityKind identifies the category of a referenced entity.
type EntityKind string

const (
	KindStudent   EntityKind = "student"
	KindVendor    EntityKind = "vendor"
	KindClinician EntityKind = "clinician"
	KindDistrict  EntityKind = "district"
	KindUnknown   EntityKind = "unknown"
)

// EntityRecord is a canonical registry entry for one tenant-scoped entity.
type EntityRecord struct {
	ID            uuid.UUID  `json:"id"`
	DistrictKey   string     `json:"district_key"`
	Kind          EntityKind `json:"kind"`
	CanonicalName string     `json:"canonical_name"`
}

// EntityFilter is an entity bound as a query scope.
type EntityFilter struct {
	Kind EntityKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
	Name string     `json:"name"`
}

// MatchStatus classifies the outcome of resolving one mention.
type MatchStatus string

const (
	MatchResolved  MatchStatus = "resolved"
	MatchAmbiguous MatchStatus = "ambiguous"
	MatchNotFound  MatchStatus = "not_found"
)

// EntityCandidate is one registry match for a mention, with confidence.
type EntityCandidate struct {
	ID            uuid.UUID `json:"id"`
	CanonicalName string    `json:"canonical_name"`
	Score         float64   `json:"score"`
}

// ResolvedMention maps one raw mention to registry candidates.
type ResolvedMention struct {
	Raw        string            `json:"raw"`
	Kind       EntityKind        `json:"kind"`
	Status     MatchStatus       `json:"status"`
	Match      *EntityCandidate  `json:"match,omitempty"`
	Candidates []EntityCandidate `json:"candidates,omitempty"`
}

// ResolvedEntities is the Entity Resolver output for one turn.
type ResolvedEntities struct {
	Mentions []ResolvedMention `json:"mentions"`
}

// NeedsClarification reports whether any mention is unresolved.
func (r *ResolvedEntities) NeedsClarification() bool {
	for _, m := range r.Mentions {
		if m.Status != MatchResolved {
			return true
		}
	}
	return false
}

// ResolvedOf returns the resolved filters of the given kind, in mention order.
func (r *ResolvedEntities) ResolvedOf(kind EntityKind) []EntityFilter {
	var out []EntityFilter
	for _, m := range r.Mentions {
		if m.Kind == kind && m.Status == MatchResolved && m.Match != nil {
			out = append(out, EntityFilter{Kind: kind, ID: m.Match.ID, Name: m.Match.CanonicalName})
		}
	}
	return out
}

// Unresolved returns the mentions that did not resolve cleanly.
func (r *ResolvedEntities) Unresolved() []ResolvedMention {
	var out []ResolvedMention
	for _, m := range r.Mentions {
		if m.Status != MatchResolved {
			out = append(out, m)
		}
	}
	return out
}
