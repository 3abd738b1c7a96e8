package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/llm"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
	"github.com/servicelens-inc/servicelens-engine/pkg/retry"
)

const systemPrompt = `You classify questions about school-district invoice and service data.
Respond with ONLY a JSON object, no prose, matching this schema:
{
  "primary_type": "student" | "vendor" | "clinician" | "district" | "unknown",
  "mentions": [{"raw": "<name as written>", "kind": "student" | "vendor" | "clinician"}],
  "time_expression": "<the time phrase exactly as written, or empty>",
  "metrics": ["hours" | "cost" | "count"],
  "comparison": <true if two entities are being compared>,
  "trend": <true if the question asks about change over time>,
  "top_n": <true if the question asks for the largest/top items>,
  "affirmation": <true if the message is only a confirmation like "yes">,
  "out_of_domain": <true if the question is not about invoices or services>
}
Do not resolve time phrases yourself; copy them verbatim into time_expression.
List every person or organization name under mentions.`

// intentWire is the strict schema the model output is validated against
// at the pipeline boundary. Any deviation becomes a parse_error intent,
// never untyped data.
type intentWire struct {
	PrimaryType    string `json:"primary_type"`
	Mentions       []struct {
		Raw  string `json:"raw"`
		Kind string `json:"kind"`
	} `json:"mentions"`
	TimeExpression string   `json:"time_expression"`
	Metrics        []string `json:"metrics"`
	Comparison     bool     `json:"comparison"`
	Trend          bool     `json:"trend"`
	TopN           bool     `json:"top_n"`
	Affirmation    bool     `json:"affirmation"`
	OutOfDomain    bool     `json:"out_of_domain"`
}

// Normalizer turns raw user text into a structured Intent. It always
// returns a well-formed Intent; model failures degrade to a
// low-confidence intent with the parse_error flag set.
type Normalizer struct {
	client  llm.LLMClient
	timeout time.Duration
	logger  *zap.Logger

	// Now is replaceable in tests for deterministic time resolution.
	Now func() time.Time
}

// NewNormalizer creates an intent normalizer using the given model client.
func NewNormalizer(client llm.LLMClient, timeout time.Duration, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("intent"),
		Now:     time.Now,
	}
}

// Normalize produces the Intent for one turn. The model call is bounded
// by the configured timeout and retried once; after that the turn
// degrades to a clarification via the parse_error flag.
func (n *Normalizer) Normalize(ctx context.Context, rawText string, state *models.ConversationState) *models.Intent {
	text := NormalizeText(rawText)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	response, err := retry.DoWithResult(ctx, retry.ModelCallConfig(), func() (string, error) {
		return n.client.Classify(ctx, n.buildPrompt(text, state), systemPrompt)
	})
	if err != nil {
		n.logger.Warn("model classification failed, degrading to clarification",
			zap.Error(err))
		return parseErrorIntent(rawText)
	}

	wire, err := llm.ParseJSONResponse[intentWire](response)
	if err != nil {
		n.logger.Warn("model returned malformed intent JSON",
			zap.Error(err))
		return parseErrorIntent(rawText)
	}

	return n.fromWire(rawText, &wire)
}

// buildPrompt assembles the user prompt, including conversation context
// so the model can flag affirmations and follow-ups correctly.
func (n *Normalizer) buildPrompt(text string, state *models.ConversationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", text)

	if state != nil {
		if primary := state.ActiveFilters.Primary(); primary != nil {
			fmt.Fprintf(&b, "Active subject: %s (%s)\n", primary.Name, primary.Kind)
		}
		if state.Pending != nil {
			fmt.Fprintf(&b, "Pending question to the user: %s\n", state.Pending.Question)
		}
	}
	return b.String()
}

// fromWire validates the model output field by field. Invalid enum values
// degrade the intent rather than raising.
func (n *Normalizer) fromWire(rawText string, wire *intentWire) *models.Intent {
	out := &models.Intent{
		Comparison: wire.Comparison,
		Trend:      wire.Trend,
		TopN:       wire.TopN,
		// The deterministic check backstops the model; a bare "yes" is an
		// affirmation regardless of what the model said.
		Affirmation: wire.Affirmation || IsAffirmation(rawText),
	}

	switch models.EntityKind(wire.PrimaryType) {
	case models.KindStudent, models.KindVendor, models.KindClinician, models.KindDistrict:
		out.PrimaryType = models.EntityKind(wire.PrimaryType)
	case models.KindUnknown:
		out.PrimaryType = models.KindUnknown
	default:
		out.PrimaryType = models.KindUnknown
		out.AmbiguityFlags = append(out.AmbiguityFlags, models.FlagParseError)
	}

	for _, m := range wire.Mentions {
		raw := strings.TrimSpace(m.Raw)
		if raw == "" {
			continue
		}
		kind := KindFromString(m.Kind)
		if kind == models.KindUnknown || kind == models.KindDistrict {
			// A mention without a usable kind is ambiguous, not droppable.
			out.AmbiguityFlags = append(out.AmbiguityFlags, models.FlagMissingEntity)
			continue
		}
		out.Mentions = append(out.Mentions, models.Mention{Raw: NormalizeText(raw), Kind: kind})
	}

	for _, m := range wire.Metrics {
		switch models.Metric(strings.ToLower(m)) {
		case models.MetricHours, models.MetricCost, models.MetricCount:
			out.Metrics = append(out.Metrics, models.Metric(strings.ToLower(m)))
		default:
			out.AmbiguityFlags = append(out.AmbiguityFlags, models.FlagVagueMetric)
		}
	}

	out.Time = models.TimeExpression{
		Raw:    wire.TimeExpression,
		Window: ResolveTimeExpression(wire.TimeExpression, n.Now()),
	}
	if !out.Time.Window.Specified() && strings.TrimSpace(wire.TimeExpression) == "" {
		out.AmbiguityFlags = append(out.AmbiguityFlags, models.FlagMissingTime)
	}

	if wire.OutOfDomain {
		out.AmbiguityFlags = append(out.AmbiguityFlags, models.FlagOutOfDomain)
	}

	if len(out.Mentions) > 1 && !wire.Comparison {
		sameKind := true
		for _, m := range out.Mentions[1:] {
			if m.Kind != out.Mentions[0].Kind {
				sameKind = false
			}
		}
		if sameKind {
			out.AmbiguityFlags = append(out.AmbiguityFlags, models.FlagMultipleSubjects)
		}
	}

	return out
}

// parseErrorIntent is the well-formed degradation for malformed or failed
// model output. It is never surfaced as a system error to the end user.
func parseErrorIntent(rawText string) *models.Intent {
	return &models.Intent{
		PrimaryType:    models.KindUnknown,
		AmbiguityFlags: []models.AmbiguityFlag{models.FlagParseError},
		Affirmation:    IsAffirmation(rawText),
		Time:           models.TimeExpression{Window: models.TimeWindow{Kind: models.WindowUnspecified}},
	}
}
