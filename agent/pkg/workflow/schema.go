package workflow

import (
	"fmt"
	"strings"
)

// noSchemaSentinel is the schema context used when nothing was retrieved.
const noSchemaSentinel = "No schema information available"

// SchemaInfo maps collection names to their schema descriptions while
// preserving the order in which collections were added.
type SchemaInfo struct {
	names  []string
	schema map[string]string
}

func NewSchemaInfo() *SchemaInfo {
	return &SchemaInfo{schema: make(map[string]string)}
}

// Set stores the schema text for a collection. Setting an existing
// collection overwrites the text without changing its position.
func (s *SchemaInfo) Set(name, text string) {
	if _, ok := s.schema[name]; !ok {
		s.names = append(s.names, name)
	}
	s.schema[name] = text
}

func (s *SchemaInfo) Get(name string) (string, bool) {
	text, ok := s.schema[name]
	return text, ok
}

func (s *SchemaInfo) Len() int {
	return len(s.names)
}

// Collections returns the collection names in insertion order.
func (s *SchemaInfo) Collections() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// BuildSchemaContext renders the collected schema information as the text
// block embedded in generation prompts. The result is deterministic for a
// given SchemaInfo and safe to call repeatedly.
func BuildSchemaContext(info *SchemaInfo) string {
	if info == nil || info.Len() == 0 {
		return noSchemaSentinel
	}
	blocks := make([]string, 0, info.Len())
	for _, name := range info.names {
		blocks = append(blocks, fmt.Sprintf("Collection '%s':\n%s", name, info.schema[name]))
	}
	return strings.Join(blocks, "\n\n")
}
