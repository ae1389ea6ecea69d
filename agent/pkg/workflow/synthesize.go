package workflow

import (
	"context"
	"strings"
)

// defaultTargetCollection receives the generated query when no relevant
// collection could be resolved.
const defaultTargetCollection = "departments"

// synthesizeQuery asks the model to translate the question into an
// aggregation command against the target collection. On any LLM failure it
// falls back to the count-all query, so a query string is always returned
// alongside the error.
func (w *Workflow) synthesizeQuery(ctx context.Context, userQuery, targetCollection, schemaContext string) (string, error) {
	prompt := buildGeneratePrompt(userQuery, targetCollection, schemaContext)

	response, err := w.cfg.LLM.Generate(ctx, prompt, w.cfg.MaxTokens, 0.1)
	if err != nil {
		w.logWarn("query generation failed, using count fallback", "error", err)
		return countAllQuery(targetCollection), err
	}
	return cleanCodeFences(response), nil
}

// cleanCodeFences strips markdown fences and surrounding prose from a model
// response, returning the bare command text.
func cleanCodeFences(response string) string {
	response = strings.TrimSpace(response)

	// Try to extract the command from a fenced code block
	for _, fence := range []string{"```javascript", "```js", "```json", "```mongodb", "```python"} {
		if idx := strings.Index(response, fence); idx != -1 {
			start := idx + len(fence)
			end := strings.Index(response[start:], "```")
			if end != -1 {
				response = response[start : start+end]
			} else {
				response = response[start:]
			}
			return strings.TrimSpace(response)
		}
	}
	if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		end := strings.Index(response[start:], "```")
		if end != -1 {
			response = response[start : start+end]
		} else {
			response = response[start:]
		}
	}

	response = strings.TrimSpace(response)
	response = strings.TrimSuffix(response, ";")
	return strings.TrimSpace(response)
}

// targetCollectionOf extracts the collection name from a db.<name>.aggregate
// command, or returns the default target when the query has another shape.
func targetCollectionOf(query string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(query), "db.")
	if !ok {
		return defaultTargetCollection
	}
	name, _, ok := strings.Cut(rest, ".")
	if !ok || name == "" {
		return defaultTargetCollection
	}
	return name
}
