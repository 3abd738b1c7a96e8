package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/apperrors"
	"github.com/servicelens-inc/servicelens-engine/pkg/intent"
	"github.com/servicelens-inc/servicelens-engine/pkg/llm"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
	"github.com/servicelens-inc/servicelens-engine/pkg/planner"
	"github.com/servicelens-inc/servicelens-engine/pkg/registry"
	"github.com/servicelens-inc/servicelens-engine/pkg/router"
	"github.com/servicelens-inc/servicelens-engine/pkg/session"
	enginesql "github.com/servicelens-inc/servicelens-engine/pkg/sql"
)

// fakeStore keeps conversation state in memory for pipeline tests.
type fakeStore struct {
	states map[string]*models.ConversationState
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]*models.ConversationState)}
}

func (s *fakeStore) Get(_ context.Context, sessionID string) (*models.ConversationState, error) {
	state, ok := s.states[sessionID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return state, nil
}

func (s *fakeStore) Put(_ context.Context, state *models.ConversationState) error {
	s.states[state.SessionID] = state
	return nil
}

func (s *fakeStore) Delete(_ context.Context, sessionID string) error {
	delete(s.states, sessionID)
	return nil
}

// fakeRepository serves registry records from memory, scoped by district.
type fakeRepository struct {
	records []models.EntityRecord
}

func (r *fakeRepository) List(_ context.Context, districtKey string, kind models.EntityKind) ([]models.EntityRecord, error) {
	var out []models.EntityRecord
	for _, rec := range r.records {
		if rec.DistrictKey == districtKey && rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

func record(districtKey string, kind models.EntityKind, name string) models.EntityRecord {
	return models.EntityRecord{ID: uuid.New(), DistrictKey: districtKey, Kind: kind, CanonicalName: name}
}

// fakeExecutor records the IR each turn hands to the store layer.
type fakeExecutor struct {
	irs []*models.AnalyticsIR
}

func (f *fakeExecutor) Execute(_ context.Context, ir *models.AnalyticsIR) (*ResultSet, error) {
	f.irs = append(f.irs, ir)
	return &ResultSet{
		Columns:  []string{"student_name", "service_month", "total_hours"},
		Rows:     [][]any{{"Jack Garcia", "2026-03", 12.5}},
		RowCount: 1,
	}, nil
}

// newTestPipeline wires a pipeline whose turns stop before execution.
// The executor is nil, so any test that reaches it is a test bug.
func newTestPipeline(t *testing.T, mock *llm.MockClient, store session.Store, repo registry.Repository) *Pipeline {
	t.Helper()
	return newExecutingPipeline(t, mock, store, repo, nil)
}

func newExecutingPipeline(t *testing.T, mock *llm.MockClient, store session.Store, repo registry.Repository, exec QueryExecutor) *Pipeline {
	t.Helper()
	logger := zap.NewNop()

	normalizer := intent.NewNormalizer(mock, 5*time.Second, logger)
	normalizer.Now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}

	rt, err := router.New(router.Config{TopNLimit: 25, MaxRows: 500}, logger)
	require.NoError(t, err)

	return New(
		normalizer,
		registry.NewResolver(repo, 0.72, 5, logger),
		planner.New(logger),
		rt,
		enginesql.NewSynthesizer(logger),
		enginesql.NewValidator(500, logger),
		exec,
		session.NewManager(store, logger),
		nil,
		logger,
	)
}

func classifyJSON(response string) *llm.MockClient {
	mock := llm.NewMockClient()
	mock.ClassifyFunc = func(context.Context, string, string) (string, error) {
		return response, nil
	}
	return mock
}

func TestAskImplicitSubjectWithoutScopeAsksForEntity(t *testing.T) {
	mock := classifyJSON(`{"primary_type": "unknown", "mentions": [], "time_expression": "last month", "metrics": ["hours"]}`)
	p := newTestPipeline(t, mock, newFakeStore(), &fakeRepository{})

	resp, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "maple-usd",
		Question:    "Show me the hours",
	})

	require.NoError(t, err)
	assert.True(t, resp.NeedsClarification)
	assert.Contains(t, resp.Question, "student, clinician, or vendor")
	assert.Empty(t, resp.Mode)
}

func TestAskOutOfDomainReturnsRedirectMessage(t *testing.T) {
	mock := classifyJSON(`{"primary_type": "unknown", "out_of_domain": true}`)
	p := newTestPipeline(t, mock, newFakeStore(), &fakeRepository{})

	resp, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "maple-usd",
		Question:    "What's the weather tomorrow?",
	})

	require.NoError(t, err)
	assert.False(t, resp.NeedsClarification)
	assert.Equal(t, outOfDomainMessage, resp.Message)
	assert.Empty(t, resp.Question)
}

func TestAskAmbiguousMentionListsCandidates(t *testing.T) {
	repo := &fakeRepository{records: []models.EntityRecord{
		record("maple-usd", models.KindStudent, "Jordan Alvarez"),
		record("maple-usd", models.KindStudent, "Jordan Baker"),
	}}
	mock := classifyJSON(`{"primary_type": "student", "mentions": [{"raw": "Jordan", "kind": "student"}], "time_expression": "March", "metrics": ["hours"]}`)
	p := newTestPipeline(t, mock, newFakeStore(), repo)

	resp, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "maple-usd",
		Question:    "How many hours did Jordan get in March?",
	})

	require.NoError(t, err)
	assert.True(t, resp.NeedsClarification)
	assert.Contains(t, resp.Question, "Did you mean")
	assert.Contains(t, resp.Question, "Jordan Alvarez")
	assert.Contains(t, resp.Question, "Jordan Baker")
}

func TestAskUnknownEntityAsksToCheckName(t *testing.T) {
	repo := &fakeRepository{records: []models.EntityRecord{
		record("maple-usd", models.KindStudent, "Jordan Alvarez"),
	}}
	mock := classifyJSON(`{"primary_type": "student", "mentions": [{"raw": "Quentin Zhao", "kind": "student"}], "time_expression": "March"}`)
	p := newTestPipeline(t, mock, newFakeStore(), repo)

	resp, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "maple-usd",
		Question:    "Show invoices for Quentin Zhao in March",
	})

	require.NoError(t, err)
	assert.True(t, resp.NeedsClarification)
	assert.Contains(t, resp.Question, "couldn't find")
	assert.Contains(t, resp.Question, "Quentin Zhao")
}

func TestAskMissingTimeAsksForPeriod(t *testing.T) {
	repo := &fakeRepository{records: []models.EntityRecord{
		record("maple-usd", models.KindStudent, "Jordan Alvarez"),
	}}
	mock := classifyJSON(`{"primary_type": "student", "mentions": [{"raw": "Jordan Alvarez", "kind": "student"}], "time_expression": "", "metrics": ["hours"]}`)
	store := newFakeStore()
	p := newTestPipeline(t, mock, store, repo)

	resp, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "maple-usd",
		Question:    "How many hours did Jordan Alvarez receive?",
	})

	require.NoError(t, err)
	assert.True(t, resp.NeedsClarification)
	assert.Contains(t, resp.Question, "time period")

	// The pending question survives the turn so the next answer can
	// complete it.
	state, err := store.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, state.Pending)
	assert.Equal(t, router.ReasonMissingTime, state.Pending.Reason)
}

func TestAskModelFailureDegradesToRephrase(t *testing.T) {
	mock := llm.NewMockClient()
	mock.ClassifyFunc = func(context.Context, string, string) (string, error) {
		return "", assert.AnError
	}
	p := newTestPipeline(t, mock, newFakeStore(), &fakeRepository{})

	resp, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "maple-usd",
		Question:    "March hours for Jordan",
	})

	require.NoError(t, err)
	assert.True(t, resp.NeedsClarification)
	assert.Contains(t, resp.Question, "rephrase")
	assert.Equal(t, 2, mock.ClassifyCalls)
}

func TestAskRejectsSessionFromAnotherDistrict(t *testing.T) {
	store := newFakeStore()
	store.states["s-1"] = models.NewConversationState("s-1", "maple-usd")
	p := newTestPipeline(t, llm.NewMockClient(), store, &fakeRepository{})

	_, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "oak-unified",
		Question:    "District totals for March",
	})

	assert.ErrorIs(t, err, apperrors.ErrTenantMismatch)
}

func TestAskFollowUpCarriesSubjectIntoBoundQuery(t *testing.T) {
	repo := &fakeRepository{records: []models.EntityRecord{
		record("maple-usd", models.KindStudent, "Jack Garcia"),
	}}
	mock := llm.NewMockClient()
	mock.ClassifyFunc = func(_ context.Context, prompt string, _ string) (string, error) {
		if strings.Contains(prompt, "last month") {
			return `{"primary_type": "unknown", "mentions": [], "time_expression": "last month", "metrics": ["hours"]}`, nil
		}
		return `{"primary_type": "student", "mentions": [{"raw": "Jack Garcia", "kind": "student"}], "time_expression": "March", "metrics": ["hours"]}`, nil
	}

	exec := &fakeExecutor{}
	p := newExecutingPipeline(t, mock, newFakeStore(), repo, exec)

	first, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "maple-usd",
		Question:    "How many hours did Jack Garcia get in March?",
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.ModeStudentMonthly), first.Mode)
	assert.Equal(t, 1, first.RowCount)

	second, err := p.Ask(context.Background(), &Request{
		SessionID:   "s-1",
		DistrictKey: "maple-usd",
		Question:    "And how many hours did he get last month?",
	})
	require.NoError(t, err)

	assert.Equal(t, string(models.ModeStudentMonthly), second.Mode)
	assert.Equal(t, string(models.TransitionScopeContinued), second.Transition)

	// The follow-up binds the remembered student and the re-resolved
	// month, scoped to the session's district.
	require.Len(t, exec.irs, 2)
	ir := exec.irs[1]
	assert.Equal(t, "maple-usd", ir.NamedParams["district_key"])
	assert.Equal(t, "Jack Garcia", ir.NamedParams["student_name"])
	assert.Equal(t, "2026-02", ir.NamedParams["service_month"])
}

func TestResolutionClarificationClassifiesMisses(t *testing.T) {
	ambiguous := &models.ResolvedEntities{Mentions: []models.ResolvedMention{{
		Raw: "Jordan", Kind: models.KindStudent, Status: models.MatchAmbiguous,
		Candidates: []models.EntityCandidate{
			{CanonicalName: "Jordan Alvarez"},
			{CanonicalName: "Jordan Baker"},
		},
	}}}
	decision, classified := resolutionClarification(ambiguous)
	assert.True(t, decision.NeedsClarification)
	assert.Equal(t, apperrors.KindAmbiguousInput, classified.Kind)
	assert.True(t, classified.Recoverable())

	missing := &models.ResolvedEntities{Mentions: []models.ResolvedMention{{
		Raw: "Quentin Zhao", Kind: models.KindStudent, Status: models.MatchNotFound,
	}}}
	decision, classified = resolutionClarification(missing)
	assert.True(t, decision.NeedsClarification)
	assert.Equal(t, apperrors.KindEntityNotFound, classified.Kind)
}

func TestResetDropsSession(t *testing.T) {
	store := newFakeStore()
	store.states["s-1"] = models.NewConversationState("s-1", "maple-usd")
	p := newTestPipeline(t, llm.NewMockClient(), store, &fakeRepository{})

	require.NoError(t, p.Reset(context.Background(), "s-1"))

	_, err := store.Get(context.Background(), "s-1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
