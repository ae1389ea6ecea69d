package workflow

import "strings"

// writeOperationKeywords are the verbs that indicate a request to mutate
// data. The workflow is read-only; any of these in the user query causes
// the request to be denied before a query is generated.
var writeOperationKeywords = []string{
	"insert", "add", "create", "save", "store",
	"update", "modify", "change", "edit", "alter",
	"delete", "remove", "drop", "clear", "erase",
	"replace", "upsert", "merge",
}

// refusalMessage is returned verbatim when a write operation is requested.
const refusalMessage = "I can't help with that type of request. Let me know if you'd like to search for or view any data instead!"

// isWriteRequest reports whether the user query asks for a data mutation.
// Matching is case-insensitive substring containment: any keyword appearing
// anywhere in the query denies the request, even inside a longer word.
func isWriteRequest(userQuery string) bool {
	lower := strings.ToLower(userQuery)
	for _, kw := range writeOperationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
