package workflow

import (
	"context"
	"encoding/json"
	"strings"
)

// QueryAnalysis is the model's verdict on a suspect query.
type QueryAnalysis struct {
	HasIssues  bool   `json:"has_issues"`
	Issues     string `json:"issues"`
	FixedQuery string `json:"fixed_query"`
}

// needsValidation asks the model whether the generated query has actual
// problems worth a validation pass. Errors fail open to "no", so a flaky
// model never blocks execution.
func (w *Workflow) needsValidation(ctx context.Context, query, userQuery, schemaContext string) bool {
	prompt := buildCheckPrompt(query, userQuery, schemaContext)

	response, err := w.cfg.LLM.Generate(ctx, prompt, 10, 0.1)
	if err != nil {
		w.logWarn("validation check failed, skipping query check", "error", err)
		return false
	}
	return strings.EqualFold(strings.TrimSpace(response), "YES")
}

// analyzeQuery asks the model to diagnose and fix the query. Unparseable
// or failed responses report no issues so the original query proceeds.
func (w *Workflow) analyzeQuery(ctx context.Context, query, userQuery, schemaContext string) QueryAnalysis {
	prompt := buildAnalyzePrompt(query, userQuery, schemaContext)

	response, err := w.cfg.LLM.Generate(ctx, prompt, 800, 0.1)
	if err != nil {
		w.logWarn("query analysis failed", "error", err)
		return QueryAnalysis{Issues: "analysis failed: " + err.Error()}
	}

	var analysis QueryAnalysis
	if err := json.Unmarshal([]byte(extractJSONObject(response)), &analysis); err != nil {
		w.logWarn("failed to parse query analysis response", "error", err)
		return QueryAnalysis{Issues: "could not analyze query"}
	}
	return analysis
}

// repairEmptyQuery asks the model to rewrite a query that executed cleanly
// but matched nothing. An empty return means no usable repair.
func (w *Workflow) repairEmptyQuery(ctx context.Context, query, userQuery, schemaContext string) string {
	prompt := buildRepairPrompt(query, userQuery, schemaContext)

	response, err := w.cfg.LLM.Generate(ctx, prompt, w.cfg.MaxTokens, 0.1)
	if err != nil {
		w.logWarn("empty result repair failed", "error", err)
		return ""
	}
	fixed := cleanCodeFences(response)
	if !strings.HasPrefix(fixed, "db.") || !strings.Contains(fixed, ".aggregate(") {
		return ""
	}
	return fixed
}

// extractJSONObject returns the first braced span of the text, or the text
// unchanged when no braces are present.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
