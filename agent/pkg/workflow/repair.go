package workflow

import (
	"fmt"
	"strings"
)

// Keyword sets used by rule-based query regeneration.
var (
	countKeywords = []string{"count", "how many", "total", "number"}
	firstKeywords = []string{"first", "earliest", "oldest"}
	lastKeywords  = []string{"last", "latest", "newest"}

	// dateFields are checked in order against the schema context to pick a
	// sort field for first/last style questions.
	dateFields = []string{"established_year", "created_at", "date", "year"}
)

// NormalizeQuerySyntax applies mechanical fixes to a generated aggregation
// string: quote style, Python-style literals, and unbalanced brackets. It is
// idempotent, so re-applying it to an already clean query is a no-op.
func NormalizeQuerySyntax(query string) string {
	q := strings.TrimSpace(query)
	q = strings.ReplaceAll(q, "'", `"`)
	q = strings.ReplaceAll(q, ": True", ": true")
	q = strings.ReplaceAll(q, ": False", ": false")
	q = strings.ReplaceAll(q, ": None", ": null")

	if strings.HasPrefix(q, "db.") {
		if open, closed := strings.Count(q, "["), strings.Count(q, "]"); open > closed {
			q += strings.Repeat("]", open-closed)
		}
	}
	if open, closed := strings.Count(q, "("), strings.Count(q, ")"); open > closed {
		q += strings.Repeat(")", open-closed)
	}
	return q
}

// countAllQuery is the hard fallback query: counting documents in the target
// collection never depends on field names or data shape.
func countAllQuery(collection string) string {
	return fmt.Sprintf(`db.%s.aggregate([{"$count": "total"}])`, collection)
}

// regenerateQuery builds a fresh query from the user's intent without any
// LLM involvement. It recognizes counting and first/last questions and falls
// back to a small sample otherwise.
func regenerateQuery(userQuery, collection, schemaContext string) string {
	lower := strings.ToLower(userQuery)

	if containsAny(lower, countKeywords) {
		return countAllQuery(collection)
	}
	if containsAny(lower, firstKeywords) {
		return sortedOneQuery(collection, pickSortField(schemaContext), 1)
	}
	if containsAny(lower, lastKeywords) {
		return sortedOneQuery(collection, pickSortField(schemaContext), -1)
	}
	return fmt.Sprintf(`db.%s.aggregate([{"$limit": 5}])`, collection)
}

func sortedOneQuery(collection, field string, direction int) string {
	return fmt.Sprintf(`db.%s.aggregate([{"$sort": {"%s": %d}}, {"$limit": 1}])`, collection, field, direction)
}

// pickSortField returns the first known date-like field mentioned in the
// schema context, or _id as the universal fallback.
func pickSortField(schemaContext string) string {
	for _, field := range dateFields {
		if strings.Contains(schemaContext, field) {
			return field
		}
	}
	return "_id"
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
