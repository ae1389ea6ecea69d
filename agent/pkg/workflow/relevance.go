package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// identifyTimeout bounds the LLM call used for collection identification so
// a slow model cannot stall the whole pipeline.
const identifyTimeout = 30 * time.Second

// relaxedMaxCollections replaces the normal cap when the question spans
// related collections.
const relaxedMaxCollections = 5

// collectionKeywords maps each known collection to the vocabulary that
// signals it in a user question.
var collectionKeywords = map[string][]string{
	"students":    {"student", "pupil", "learner", "enrollment"},
	"departments": {"department", "dept", "faculty", "division"},
	"courses":     {"course", "class", "subject", "curriculum"},
	"teachers":    {"teacher", "instructor", "professor", "faculty"},
	"enrollments": {"enrollment", "enroll", "registration", "signup"},
}

// collectionPriority is the ordered fallback when nothing else matched.
// Earlier entries win on keyword ties.
var collectionPriority = []struct {
	name     string
	keywords []string
}{
	{"departments", []string{"department", "dept", "faculty"}},
	{"students", []string{"student", "pupil", "learner"}},
	{"courses", []string{"course", "class", "subject"}},
	{"teachers", []string{"teacher", "instructor", "professor"}},
	{"enrollments", []string{"enrollment", "enroll", "registration"}},
}

// commonCollections are offered when the question carries no usable signal.
var commonCollections = []string{"students", "departments", "courses"}

// relationshipTerms indicate a question spanning multiple related
// collections, which relaxes the collection cap.
var relationshipTerms = []string{"join", "with", "enroll", "department", "dept", "course"}

// departmentTerms pull in the departments collection when they appear
// alongside a collection that belongs to a department.
var departmentTerms = []string{"department", "dept"}

// departmentOwned are the collections whose documents hang off a department.
var departmentOwned = []string{"students", "courses", "teachers"}

// enrollmentEndpoints are the two sides of the enrollments junction.
var enrollmentEndpoints = []string{"students", "courses"}

// resolveCollections picks the collections worth analyzing for a question.
// It tries the model first, then keyword matching, then priority fallbacks,
// so it always returns at least one collection when any are available.
func (w *Workflow) resolveCollections(ctx context.Context, userQuery string, available []string) []string {
	if len(available) == 0 {
		return nil
	}

	limit := w.cfg.MaxCollections
	if containsAny(strings.ToLower(userQuery), relationshipTerms) {
		limit = relaxedMaxCollections
	}

	relevant := w.identifyWithLLM(ctx, userQuery, available)
	if len(relevant) == 0 {
		relevant = matchByKeywords(userQuery, available)
	}
	relevant = expandRelationships(relevant, available, userQuery)
	if len(relevant) == 0 {
		relevant = priorityFallback(userQuery, available)
	}

	if len(relevant) > limit {
		relevant = relevant[:limit]
	}
	return relevant
}

// identifyWithLLM asks the model which collections the question needs. Any
// failure, including timeout or unparseable output, yields nil so the caller
// can fall back.
func (w *Workflow) identifyWithLLM(ctx context.Context, userQuery string, available []string) []string {
	ctx, cancel := context.WithTimeout(ctx, identifyTimeout)
	defer cancel()

	prompt := buildIdentifyPrompt(userQuery, available)
	response, err := w.cfg.LLM.Generate(ctx, prompt, 200, 0.0)
	if err != nil {
		w.logWarn("collection identification failed, falling back to keywords", "error", err)
		return nil
	}

	cleaned := cleanCodeFences(response)
	var names []string
	if err := json.Unmarshal([]byte(extractJSONArray(cleaned)), &names); err != nil {
		// The model answered in prose; scan it for known collection names.
		return scanForCollections(cleaned, available)
	}
	return filterKnown(names, available)
}

// extractJSONArray returns the first bracketed span of the text, or the text
// unchanged when no brackets are present.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// filterKnown keeps the proposed names that exist in the store, matching
// case-insensitively and preserving the store's spelling.
func filterKnown(proposed, available []string) []string {
	var out []string
	for _, name := range proposed {
		for _, actual := range available {
			if strings.EqualFold(strings.TrimSpace(name), actual) && !contains(out, actual) {
				out = append(out, actual)
			}
		}
	}
	return out
}

func scanForCollections(text string, available []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, name := range available {
		if strings.Contains(lower, strings.ToLower(name)) {
			out = append(out, name)
		}
	}
	return out
}

// matchByKeywords maps question vocabulary to collections without any model
// involvement.
func matchByKeywords(userQuery string, available []string) []string {
	lower := strings.ToLower(userQuery)
	var out []string
	for _, name := range available {
		if strings.Contains(lower, strings.ToLower(name)) {
			out = append(out, name)
			continue
		}
		if containsAny(lower, collectionKeywords[name]) {
			out = append(out, name)
		}
	}
	return out
}

// expandRelationships applies the fixed relationship rules: selecting the
// enrollments junction pulls in both of its endpoints, and a matched
// department-owned collection plus a department term pulls in departments.
// The department rule looks at the original matches, not at junction
// additions. Matched collections keep their position; additions go on the end.
func expandRelationships(matched, available []string, userQuery string) []string {
	out := append([]string(nil), matched...)

	if contains(out, "enrollments") {
		for _, endpoint := range enrollmentEndpoints {
			if contains(available, endpoint) && !contains(out, endpoint) {
				out = append(out, endpoint)
			}
		}
	}

	if containsAny(strings.ToLower(userQuery), departmentTerms) {
		for _, name := range departmentOwned {
			if contains(matched, name) && contains(available, "departments") && !contains(out, "departments") {
				out = append(out, "departments")
			}
		}
	}
	return out
}

// priorityFallback picks collections by the priority table, then by the
// common set, then by whatever the store has.
func priorityFallback(userQuery string, available []string) []string {
	lower := strings.ToLower(userQuery)
	for _, entry := range collectionPriority {
		if contains(available, entry.name) && containsAny(lower, entry.keywords) {
			return []string{entry.name}
		}
	}

	var out []string
	for _, name := range commonCollections {
		if contains(available, name) {
			out = append(out, name)
		}
	}
	if len(out) == 0 && len(available) > 0 {
		out = append(out, available[0])
	}
	return out
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
