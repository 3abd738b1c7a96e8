package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/servicelens-inc/servicelens-engine/pkg/llm"
	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// insightRowCap bounds how many result rows are shown to the model.
const insightRowCap = 40

const insightSystemPrompt = `You summarize query results about school-district invoice and service data.
Write one or two plain sentences a district administrator would find useful.
Mention totals, trends, or outliers visible in the rows. Never invent numbers.`

// InsightGenerator produces a short narrative summary for a result set.
// Implementations are best-effort: the pipeline returns the raw rows
// unchanged when summarization fails.
type InsightGenerator interface {
	Summarize(ctx context.Context, question string, ir *models.AnalyticsIR, result *ResultSet) (string, error)
}

type llmInsight struct {
	client  llm.LLMClient
	timeout time.Duration
	logger  *zap.Logger
}

func NewInsightGenerator(client llm.LLMClient, timeout time.Duration, logger *zap.Logger) InsightGenerator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &llmInsight{client: client, timeout: timeout, logger: logger.Named("insight")}
}

func (g *llmInsight) Summarize(ctx context.Context, question string, ir *models.AnalyticsIR, result *ResultSet) (string, error) {
	if result.RowCount == 0 {
		return "No matching records were found for that question.", nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	summary, err := g.client.Classify(ctx, g.buildPrompt(question, ir, result), insightSystemPrompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func (g *llmInsight) buildPrompt(question string, ir *models.AnalyticsIR, result *ResultSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Analytic mode: %s\n", ir.Mode)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(result.Columns, ", "))

	rows := result.Rows
	truncated := false
	if len(rows) > insightRowCap {
		rows = rows[:insightRowCap]
		truncated = true
	}
	b.WriteString("Rows:\n")
	for _, row := range rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprint(v)
		}
		fmt.Fprintf(&b, "  %s\n", strings.Join(parts, " | "))
	}
	if truncated {
		fmt.Fprintf(&b, "(%d more rows omitted)\n", result.RowCount-insightRowCap)
	}

	return b.String()
}
