package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompts(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	require.NoError(t, err)

	assert.NotEmpty(t, p.Identify)
	assert.NotEmpty(t, p.Generate)
	assert.NotEmpty(t, p.Check)
	assert.NotEmpty(t, p.Analyze)
	assert.NotEmpty(t, p.Repair)
	assert.NotEmpty(t, p.Format)
}

func TestBuildPromptsReplacePlaceholders(t *testing.T) {
	t.Parallel()

	t.Run("identify", func(t *testing.T) {
		t.Parallel()
		prompt := buildIdentifyPrompt("how many students", []string{"students", "courses"})
		assert.Contains(t, prompt, "how many students")
		assert.Contains(t, prompt, "students, courses")
		assert.Contains(t, prompt, "Maximum of 4 collections")
		assert.NotContains(t, prompt, "{{")
	})

	t.Run("generate", func(t *testing.T) {
		t.Parallel()
		prompt := buildGeneratePrompt("how many students", "students", "Collection 'students':\nFields:")
		assert.Contains(t, prompt, "db.students.aggregate()")
		assert.Contains(t, prompt, "Collection 'students':")
		assert.NotContains(t, prompt, "{{")
	})

	t.Run("check", func(t *testing.T) {
		t.Parallel()
		prompt := buildCheckPrompt("db.students.aggregate([])", "how many", "schema")
		assert.Contains(t, prompt, "db.students.aggregate([])")
		assert.NotContains(t, prompt, "{{")
	})

	t.Run("format", func(t *testing.T) {
		t.Parallel()
		prompt := buildFormatPrompt("how many", "[map[total:42]]")
		assert.Contains(t, prompt, "[map[total:42]]")
		assert.NotContains(t, prompt, "{{")
	})
}
