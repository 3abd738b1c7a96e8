package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/apperrors"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// Manager applies the per-turn state update rules on top of a Store.
type Manager struct {
	store  Store
	logger *zap.Logger
}

func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger.Named("session")}
}

// Load fetches the session state, creating fresh state on first contact.
// A session key is bound to the district it was created under; reuse
// from another district is refused outright.
func (m *Manager) Load(ctx context.Context, sessionID, districtKey string) (*models.ConversationState, error) {
	state, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		m.logger.Debug("starting new session", zap.String("session_id", sessionID))
		return models.NewConversationState(sessionID, districtKey), nil
	}
	if err != nil {
		return nil, err
	}
	if state.DistrictKey != districtKey {
		return nil, apperrors.ErrTenantMismatch
	}
	return state, nil
}

// ApplyTurn folds a completed turn's decision into the state. Scope,
// topic, and period context change only when the router committed a
// transition; clarification turns record at most the pending question.
func (m *Manager) ApplyTurn(state *models.ConversationState, userText string, decision *models.RouterDecision) {
	state.AppendTurn(models.Turn{
		At:                 time.Now().UTC(),
		UserText:           userText,
		Mode:               string(decision.Mode),
		NeedsClarification: decision.NeedsClarification,
	})

	switch decision.Transition {
	case models.TransitionSwitchConfirmed:
		// The confirmed entity replaces the whole prior scope.
		if subject := decisionSubject(decision); subject != nil {
			state.ActiveFilters.Replace(*subject)
		}
		commitContext(state, decision)
	case models.TransitionNewScope, models.TransitionScopeContinued:
		if subject := decisionSubject(decision); subject != nil {
			state.ActiveFilters.Set(*subject)
		}
		commitContext(state, decision)
	case models.TransitionSwitchPending, models.TransitionClarify:
		// Prior scope stays untouched.
	}

	if decision.NeedsClarification {
		state.Pending = &models.PendingClarification{
			Question:       decision.Question,
			Reason:         decision.ClarificationReason,
			ProposedSwitch: decision.ProposedSwitch,
			ProposedWindow: decision.Filters.Window,
		}
	}

	state.Touch()
}

// commitContext updates topic and period context and clears any pending
// question once a turn has been fully answered.
func commitContext(state *models.ConversationState, decision *models.RouterDecision) {
	if decision.Mode != "" {
		state.ActiveTopic = string(decision.Mode)
	}
	if decision.Filters.Window != nil {
		w := *decision.Filters.Window
		state.Period = &w
	}
	state.Pending = nil
}

func decisionSubject(decision *models.RouterDecision) *models.EntityFilter {
	switch {
	case decision.Filters.Student != nil:
		return decision.Filters.Student
	case decision.Filters.Vendor != nil:
		return decision.Filters.Vendor
	case decision.Filters.Clinician != nil:
		return decision.Filters.Clinician
	}
	return nil
}

// Save persists the state. An ErrStateConflict means a concurrent turn
// won the write; the caller surfaces it rather than retrying blindly.
func (m *Manager) Save(ctx context.Context, state *models.ConversationState) error {
	return m.store.Put(ctx, state)
}

// Reset discards the session entirely.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}
