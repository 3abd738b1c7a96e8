// Package pipeline orchestrates one conversational turn end to end:
// intent normalization, entity resolution, semantic planning, mode
// routing, SQL synthesis, safety validation, execution, and state
// persistence.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/apperrors"
	"github.com/servicelens-inc/servicelens-engine/pkg/intent"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
	"github.com/servicelens-inc/servicelens-engine/pkg/planner"
	"github.com/servicelens-inc/servicelens-engine/pkg/registry"
	"github.com/servicelens-inc/servicelens-engine/pkg/router"
	"github.com/servicelens-inc/servicelens-engine/pkg/session"
	enginesql "github.com/servicelens-inc/servicelens-engine/pkg/sql"
)

const outOfDomainMessage = "I can answer questions about your district's invoices, service hours, students, clinicians, and vendors. That one is outside what I can help with."

// Request is one user turn.
type Request struct {
	SessionID   string `json:"session_id"`
	DistrictKey string `json:"district_key"`
	Question    string `json:"question"`
}

// Response is the pipeline's answer to one turn. Exactly one of the
// result fields or the clarification fields is populated.
type Response struct {
	SessionID          string   `json:"session_id"`
	Mode               string   `json:"mode,omitempty"`
	Transition         string   `json:"transition,omitempty"`
	NeedsClarification bool     `json:"needs_clarification"`
	Question           string   `json:"question,omitempty"`
	Message            string   `json:"message,omitempty"`
	Columns            []string `json:"columns,omitempty"`
	Rows               [][]any  `json:"rows,omitempty"`
	RowCount           int      `json:"row_count"`
	Insight            string   `json:"insight,omitempty"`
}

// Pipeline wires the stages together. Each stage boundary converts
// failures into the pipeline error taxonomy.
type Pipeline struct {
	normalizer *intent.Normalizer
	resolver   *registry.Resolver
	planner    *planner.Planner
	router     *router.Router
	synth      *enginesql.Synthesizer
	validator  *enginesql.Validator
	executor   QueryExecutor
	sessions   *session.Manager
	insights   InsightGenerator
	logger     *zap.Logger
}

func New(
	normalizer *intent.Normalizer,
	resolver *registry.Resolver,
	pl *planner.Planner,
	rt *router.Router,
	synth *enginesql.Synthesizer,
	validator *enginesql.Validator,
	executor QueryExecutor,
	sessions *session.Manager,
	insights InsightGenerator,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		resolver:   resolver,
		planner:    pl,
		router:     rt,
		synth:      synth,
		validator:  validator,
		executor:   executor,
		sessions:   sessions,
		insights:   insights,
		logger:     logger.Named("pipeline"),
	}
}

// Ask processes one turn. Recoverable problems come back as
// clarification responses; only infrastructure failures return errors.
func (p *Pipeline) Ask(ctx context.Context, req *Request) (*Response, error) {
	state, err := p.sessions.Load(ctx, req.SessionID, req.DistrictKey)
	if err != nil {
		return nil, err
	}

	it := p.normalizer.Normalize(ctx, req.Question, state)

	if it.HasFlag(models.FlagOutOfDomain) {
		p.logClarified(req, apperrors.New(apperrors.KindOutOfDomain, outOfDomainMessage))
		return p.finishWithoutSQL(ctx, state, req, router.Clarify("out_of_domain", outOfDomainMessage), false)
	}

	resolved, err := p.resolver.Resolve(ctx, req.DistrictKey, it)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindExecutionError, "entity resolution failed", err)
	}
	if resolved.NeedsClarification() {
		decision, classified := resolutionClarification(resolved)
		p.logClarified(req, classified)
		return p.finishWithoutSQL(ctx, state, req, decision, true)
	}

	plan := p.planner.Plan(it, resolved)

	decision, err := p.router.Route(plan, state, it)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindExecutionError, "mode routing failed", err)
	}
	if decision.NeedsClarification {
		return p.finishWithoutSQL(ctx, state, req, decision, true)
	}

	ir, err := p.synth.Synthesize(decision)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidationRejected, "query synthesis failed", err)
	}

	if report := p.validator.Validate(ir); !report.IsValid {
		return nil, apperrors.New(apperrors.KindValidationRejected, report.Reason)
	}

	result, err := p.executor.Execute(ctx, ir)
	if err != nil {
		return nil, err
	}

	insight := ""
	if p.insights != nil {
		insight, err = p.insights.Summarize(ctx, req.Question, ir, result)
		if err != nil {
			p.logger.Warn("insight generation failed, returning raw results",
				zap.String("session_id", req.SessionID), zap.Error(err))
			insight = ""
		}
	}

	p.sessions.ApplyTurn(state, req.Question, decision)
	if err := p.sessions.Save(ctx, state); err != nil {
		return nil, err
	}

	return &Response{
		SessionID:  req.SessionID,
		Mode:       string(decision.Mode),
		Transition: string(decision.Transition),
		Columns:    result.Columns,
		Rows:       result.Rows,
		RowCount:   result.RowCount,
		Insight:    insight,
	}, nil
}

// Reset discards a session's conversation state.
func (p *Pipeline) Reset(ctx context.Context, sessionID string) error {
	return p.sessions.Reset(ctx, sessionID)
}

// finishWithoutSQL records a turn that ends before synthesis. No SQL is
// built or executed on this path.
func (p *Pipeline) finishWithoutSQL(ctx context.Context, state *models.ConversationState, req *Request, decision *models.RouterDecision, asQuestion bool) (*Response, error) {
	p.sessions.ApplyTurn(state, req.Question, decision)
	if err := p.sessions.Save(ctx, state); err != nil {
		return nil, err
	}

	resp := &Response{
		SessionID:          req.SessionID,
		Transition:         string(decision.Transition),
		NeedsClarification: asQuestion,
	}
	if asQuestion {
		resp.Question = decision.Question
	} else {
		resp.Message = decision.Question
	}
	return resp, nil
}

// logClarified records a turn that ended in a question, classified
// through the error taxonomy so dashboards can separate ambiguity from
// misses and redirects.
func (p *Pipeline) logClarified(req *Request, classified *apperrors.Error) {
	p.logger.Info("turn ended in clarification",
		zap.String("session_id", req.SessionID),
		zap.String("kind", string(classified.Kind)),
		zap.Bool("recoverable", classified.Recoverable()))
}

// resolutionClarification turns the first unresolved mention into a
// question the user can answer in one step, paired with its classified
// form.
func resolutionClarification(resolved *models.ResolvedEntities) (*models.RouterDecision, *apperrors.Error) {
	unresolved := resolved.Unresolved()
	m := unresolved[0]

	switch m.Status {
	case models.MatchAmbiguous:
		names := make([]string, 0, len(m.Candidates))
		for _, c := range m.Candidates {
			names = append(names, c.CanonicalName)
		}
		question := fmt.Sprintf("I found more than one %s matching %q. Did you mean %s?",
			m.Kind, m.Raw, orList(names))
		return router.Clarify("entity_ambiguous", question),
			apperrors.New(apperrors.KindAmbiguousInput, question)
	default:
		question := fmt.Sprintf("I couldn't find a %s named %q in your district. Could you check the name?",
			m.Kind, m.Raw)
		return router.Clarify("entity_not_found", question),
			apperrors.New(apperrors.KindEntityNotFound, question)
	}
}

func orList(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " or " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
	}
}
