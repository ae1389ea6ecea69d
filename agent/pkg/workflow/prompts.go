package workflow

import (
	"fmt"
	"strings"

	"github.com/luminalabs/askdb/agent/pkg/workflow/prompts"
)

// Prompts contains all the workflow prompts loaded from embedded files.
type Prompts struct {
	Identify string // Collection identification
	Generate string // Natural language to MQL generation
	Check    string // Does the query need validation (YES/NO)
	Analyze  string // Issue analysis with fixed-query JSON response
	Repair   string // Rewrite a query that returned no documents
	Format   string // Results to natural language answer
}

// LoadPrompts loads all workflow prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Identify, err = loadPrompt("IDENTIFY.md"); err != nil {
		return nil, fmt.Errorf("failed to load IDENTIFY: %w", err)
	}
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load GENERATE: %w", err)
	}
	if p.Check, err = loadPrompt("CHECK.md"); err != nil {
		return nil, fmt.Errorf("failed to load CHECK: %w", err)
	}
	if p.Analyze, err = loadPrompt("ANALYZE.md"); err != nil {
		return nil, fmt.Errorf("failed to load ANALYZE: %w", err)
	}
	if p.Repair, err = loadPrompt("REPAIR.md"); err != nil {
		return nil, fmt.Errorf("failed to load REPAIR: %w", err)
	}
	if p.Format, err = loadPrompt("FORMAT.md"); err != nil {
		return nil, fmt.Errorf("failed to load FORMAT: %w", err)
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.FS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// defaultPrompts panics when the embedded files are unreadable, which can
// only happen on a broken build.
func defaultPrompts() *Prompts {
	p, err := LoadPrompts()
	if err != nil {
		panic(err)
	}
	return p
}

func buildIdentifyPrompt(userQuery string, collections []string) string {
	prompt := strings.ReplaceAll(loadedPrompts.Identify, "{{COLLECTIONS}}", strings.Join(collections, ", "))
	return strings.ReplaceAll(prompt, "{{USER_QUERY}}", userQuery)
}

func buildGeneratePrompt(userQuery, targetCollection, schemaContext string) string {
	prompt := strings.ReplaceAll(loadedPrompts.Generate, "{{TARGET_COLLECTION}}", targetCollection)
	prompt = strings.ReplaceAll(prompt, "{{SCHEMA_CONTEXT}}", schemaContext)
	return strings.ReplaceAll(prompt, "{{USER_QUERY}}", userQuery)
}

func buildCheckPrompt(query, userQuery, schemaContext string) string {
	prompt := strings.ReplaceAll(loadedPrompts.Check, "{{QUERY}}", query)
	prompt = strings.ReplaceAll(prompt, "{{SCHEMA_CONTEXT}}", schemaContext)
	return strings.ReplaceAll(prompt, "{{USER_QUERY}}", userQuery)
}

func buildAnalyzePrompt(query, userQuery, schemaContext string) string {
	prompt := strings.ReplaceAll(loadedPrompts.Analyze, "{{QUERY}}", query)
	prompt = strings.ReplaceAll(prompt, "{{SCHEMA_CONTEXT}}", schemaContext)
	return strings.ReplaceAll(prompt, "{{USER_QUERY}}", userQuery)
}

func buildRepairPrompt(query, userQuery, schemaContext string) string {
	prompt := strings.ReplaceAll(loadedPrompts.Repair, "{{QUERY}}", query)
	prompt = strings.ReplaceAll(prompt, "{{SCHEMA_CONTEXT}}", schemaContext)
	return strings.ReplaceAll(prompt, "{{USER_QUERY}}", userQuery)
}

func buildFormatPrompt(userQuery, queryResult string) string {
	prompt := strings.ReplaceAll(loadedPrompts.Format, "{{QUERY_RESULT}}", queryResult)
	return strings.ReplaceAll(prompt, "{{USER_QUERY}}", userQuery)
}

var loadedPrompts = defaultPrompts()
