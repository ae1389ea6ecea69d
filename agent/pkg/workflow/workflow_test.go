package workflow

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	response string
	err      error
	fn       func(prompt string, maxTokens int) (string, error)
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, maxTokens int, _ float64) (string, error) {
	if f.fn != nil {
		return f.fn(prompt, maxTokens)
	}
	return f.response, f.err
}

type fakeLister struct {
	collections []string
	err         error
}

func (f *fakeLister) ListCollections(context.Context) ([]string, error) {
	return f.collections, f.err
}

type fakeSchema struct {
	schemas map[string]string
	err     error
}

func (f *fakeSchema) FetchSchema(_ context.Context, collections []string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string)
	for _, name := range collections {
		if text, ok := f.schemas[name]; ok {
			out[name] = text
		}
	}
	return out, nil
}

type fakeExecutor struct {
	queries []string
	fn      func(query string) (any, error)
}

func (f *fakeExecutor) ExecuteQuery(_ context.Context, query string) (any, error) {
	f.queries = append(f.queries, query)
	if f.fn != nil {
		return f.fn(query)
	}
	return []map[string]any{{"total": 42}}, nil
}

func newTestWorkflow(t *testing.T, llm TextGenerator) *Workflow {
	t.Helper()
	wf, err := New(Config{
		LLM:    llm,
		Lister: &fakeLister{collections: campusCollections},
		Schema: &fakeSchema{schemas: map[string]string{
			"students":    "Fields:\n  name: String\n  gpa: Number",
			"departments": "Fields:\n  name: String\n  established_year: Number",
			"courses":     "Fields:\n  course_name: String",
		}},
		Executor: &fakeExecutor{},
	})
	require.NoError(t, err)
	return wf
}

// scriptedLLM answers each prompt kind with a canned response.
func scriptedLLM(identify, generate, check, analyze, repair, format string) *fakeLLM {
	return &fakeLLM{fn: func(prompt string, maxTokens int) (string, error) {
		switch {
		case strings.Contains(prompt, "Collection Identification"):
			return identify, nil
		case strings.Contains(prompt, "Validation Check"):
			return check, nil
		case strings.Contains(prompt, "Analysis and Fix"):
			return analyze, nil
		case strings.Contains(prompt, "Empty Result Repair"):
			return repair, nil
		case strings.Contains(prompt, "Format Database Query Results"):
			return format, nil
		default:
			return generate, nil
		}
	}}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("requires llm", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{Lister: &fakeLister{}, Schema: &fakeSchema{}, Executor: &fakeExecutor{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm")
	})

	t.Run("requires executor", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{LLM: &fakeLLM{}, Lister: &fakeLister{}, Schema: &fakeSchema{}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "executor")
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		wf, err := New(Config{LLM: &fakeLLM{}, Lister: &fakeLister{}, Schema: &fakeSchema{}, Executor: &fakeExecutor{}})
		require.NoError(t, err)
		assert.Equal(t, defaultMaxTokens, wf.cfg.MaxTokens)
		assert.Equal(t, defaultMaxRetries, wf.cfg.MaxRetries)
		assert.Equal(t, defaultMaxCollections, wf.cfg.MaxCollections)
		assert.NotNil(t, wf.cfg.Clock)
	})
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	llm := scriptedLLM(
		`["students"]`,
		`db.students.aggregate([{"$count": "total"}])`,
		"NO", "", "",
		"There are 42 students.",
	)
	wf := newTestWorkflow(t, llm)

	result := wf.Run(context.Background(), "how many students are there", "thread-1")

	assert.True(t, result.Success)
	assert.Equal(t, "how many students are there", result.Query)
	assert.Equal(t, `db.students.aggregate([{"$count": "total"}])`, result.GeneratedQuery)
	assert.Equal(t, "There are 42 students.", result.FormattedAnswer)
	require.Len(t, result.Results, 1)
	assert.Equal(t, 42, result.Results[0]["total"])
	assert.Equal(t, 5, result.CollectionsFound)
	assert.Equal(t, 1, result.SchemaRetrieved)
	assert.Empty(t, result.Error)

	statuses := stepStatuses(result)
	assert.Equal(t, StatusSuccess, statuses[StepListCollections])
	assert.Equal(t, StatusSuccess, statuses[StepGetSchema])
	assert.Equal(t, StatusSuccess, statuses[StepGenerateQuery])
	assert.Equal(t, StatusSuccess, statuses[StepNeedChecker])
	assert.Equal(t, StatusSkipped, statuses[StepCheckQuery])
	assert.Equal(t, StatusSuccess, statuses[StepRunQuery])
	assert.Equal(t, StatusSuccess, statuses[StepFormatAnswer])
}

func TestRunWithFullyFailingLLM(t *testing.T) {
	t.Parallel()

	wf := newTestWorkflow(t, &fakeLLM{err: errors.New("model unavailable")})

	result := wf.Run(context.Background(), "how many students are there", "")

	// Every LLM touchpoint degrades to a deterministic fallback, so the run
	// still succeeds end to end.
	assert.True(t, result.Success)
	assert.Equal(t, `db.students.aggregate([{"$count": "total"}])`, result.GeneratedQuery)
	assert.Contains(t, result.FormattedAnswer, "Raw result:")
	assert.Contains(t, result.FormattedAnswer, "42")
	assert.NotEmpty(t, result.Error)

	for _, step := range result.WorkflowSteps {
		if step.Step == StepCheckQuery {
			assert.Equal(t, StatusSkipped, step.Status)
			continue
		}
		assert.Equal(t, StatusSuccess, step.Status, "step %s", step.Step)
	}
}

func TestRunDeniesWriteRequests(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: `["students"]`}
	wf := newTestWorkflow(t, llm)

	result := wf.Run(context.Background(), "delete all students", "")

	assert.False(t, result.Success)
	assert.Equal(t, refusalMessage, result.FormattedAnswer)
	assert.Empty(t, result.GeneratedQuery)

	statuses := stepStatuses(result)
	assert.Equal(t, StatusDenied, statuses[StepGenerateQuery])
	assert.Equal(t, StatusPending, statuses[StepRunQuery])
	assert.Equal(t, StatusPending, statuses[StepFormatAnswer])
	assert.Equal(t, StatusSkipped, statuses[StepCheckQuery])
}

func TestRunDeniesEmbeddedWriteKeyword(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}
	wf := newTestWorkflow(t, &fakeLLM{response: `["students"]`})
	wf.cfg.Executor = executor

	result := wf.Run(context.Background(), "find students whose address is in Boston", "")

	assert.False(t, result.Success)
	assert.Equal(t, refusalMessage, result.FormattedAnswer)
	assert.Empty(t, result.GeneratedQuery)
	assert.Empty(t, executor.queries)
	assert.Equal(t, StatusDenied, stepStatuses(result)[StepGenerateQuery])
}

func TestRunRetriesAndRegenerates(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}
	failures := 0
	executor.fn = func(query string) (any, error) {
		if failures < 2 {
			failures++
			return nil, errors.New("unknown operator")
		}
		return []map[string]any{{"total": 7}}, nil
	}

	llm := scriptedLLM(
		`["departments"]`,
		`db.departments.aggregate([{'$bogus': 1}])`,
		"NO", "", "",
		"There are 7 departments.",
	)
	wf, err := New(Config{
		LLM:      llm,
		Lister:   &fakeLister{collections: campusCollections},
		Schema:   &fakeSchema{schemas: map[string]string{"departments": "Fields:\n  established_year: Number"}},
		Executor: executor,
	})
	require.NoError(t, err)

	result := wf.Run(context.Background(), "how many departments are there", "")

	assert.True(t, result.Success)
	require.Len(t, executor.queries, 3)
	// First two attempts run the normalized original, the third regenerates
	// from the question's counting intent.
	assert.Equal(t, `db.departments.aggregate([{"$bogus": 1}])`, executor.queries[0])
	assert.Equal(t, executor.queries[0], executor.queries[1])
	assert.Equal(t, `db.departments.aggregate([{"$count": "total"}])`, executor.queries[2])
	assert.Equal(t, executor.queries[2], result.GeneratedQuery)
}

func TestRunFallsBackToCountAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}
	calls := 0
	executor.fn = func(query string) (any, error) {
		calls++
		if calls <= 3 {
			return nil, errors.New("boom")
		}
		return []map[string]any{{"total": 3}}, nil
	}

	llm := scriptedLLM(
		`["teachers"]`,
		`db.teachers.aggregate([{"$bad": 1}])`,
		"NO", "", "",
		"There are 3 teachers.",
	)
	wf, err := New(Config{
		LLM:      llm,
		Lister:   &fakeLister{collections: campusCollections},
		Schema:   &fakeSchema{schemas: map[string]string{"teachers": "Fields:\n  name: String"}},
		Executor: executor,
	})
	require.NoError(t, err)

	result := wf.Run(context.Background(), "list the teachers", "")

	assert.True(t, result.Success)
	assert.Equal(t, `db.teachers.aggregate([{"$count": "total"}])`, result.GeneratedQuery)
	assert.Equal(t, 4, calls)
}

func TestRunFailsWhenFallbackQueryFails(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{fn: func(string) (any, error) {
		return nil, errors.New("database offline")
	}}
	llm := scriptedLLM(
		`["students"]`,
		`db.students.aggregate([])`,
		"NO", "", "",
		"unused",
	)
	wf, err := New(Config{
		LLM:      llm,
		Lister:   &fakeLister{collections: campusCollections},
		Schema:   &fakeSchema{schemas: map[string]string{"students": "Fields:\n  name: String"}},
		Executor: executor,
	})
	require.NoError(t, err)

	result := wf.Run(context.Background(), "show me students", "")

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "All query attempts failed")
	assert.Contains(t, result.FormattedAnswer, "I apologize, but I encountered an error while processing your query")
	assert.Empty(t, result.Results)

	statuses := stepStatuses(result)
	assert.Equal(t, StatusFailed, statuses[StepRunQuery])
	assert.Equal(t, StatusSuccess, statuses[StepFormatAnswer])
}

func TestRunRepairsEmptyResult(t *testing.T) {
	t.Parallel()

	original := `db.students.aggregate([{"$match": {"name": "ada lovelace"}}])`
	repaired := `db.students.aggregate([{"$match": {"name": {"$regex": "ada", "$options": "i"}}}])`

	executor := &fakeExecutor{}
	executor.fn = func(query string) (any, error) {
		if query == repaired {
			return []map[string]any{{"name": "Ada Lovelace"}}, nil
		}
		return []map[string]any{}, nil
	}

	llm := scriptedLLM(
		`["students"]`,
		original,
		"NO", "",
		repaired,
		"Found Ada Lovelace.",
	)
	wf, err := New(Config{
		LLM:      llm,
		Lister:   &fakeLister{collections: campusCollections},
		Schema:   &fakeSchema{schemas: map[string]string{"students": "Fields:\n  name: String"}},
		Executor: executor,
	})
	require.NoError(t, err)

	result := wf.Run(context.Background(), "find the student named ada lovelace", "")

	assert.True(t, result.Success)
	assert.Equal(t, repaired, result.GeneratedQuery)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "Ada Lovelace", result.Results[0]["name"])
	// Original once, repaired once: the successful repair ends the loop.
	assert.Equal(t, []string{original, repaired}, executor.queries)
}

func TestRunAcceptsEmptyResultAfterFailedRepair(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{fn: func(string) (any, error) {
		return []map[string]any{}, nil
	}}

	llm := scriptedLLM(
		`["students"]`,
		`db.students.aggregate([{"$match": {"name": "nobody"}}])`,
		"NO", "",
		`db.students.aggregate([{"$match": {"name": {"$regex": "nobody", "$options": "i"}}}])`,
		"No students matched.",
	)
	wf, err := New(Config{
		LLM:      llm,
		Lister:   &fakeLister{collections: campusCollections},
		Schema:   &fakeSchema{schemas: map[string]string{"students": "Fields:\n  name: String"}},
		Executor: executor,
	})
	require.NoError(t, err)

	result := wf.Run(context.Background(), "find the student named nobody", "")

	assert.True(t, result.Success)
	assert.Empty(t, result.Results)
	assert.Equal(t, "No students matched.", result.FormattedAnswer)
}

func TestRunAppliesCheckedQueryFix(t *testing.T) {
	t.Parallel()

	fixed := `db.courses.aggregate([{"$match": {"credits": 3}}])`
	llm := scriptedLLM(
		`["courses"]`,
		`db.courses.aggregate([{"$match": {"credits": "3"}}])`,
		"YES",
		`{"has_issues": true, "issues": "credits is a number field", "fixed_query": `+strconv.Quote(fixed)+`}`,
		"",
		"Three-credit courses listed.",
	)
	wf := newTestWorkflow(t, llm)

	result := wf.Run(context.Background(), "which courses are worth 3 units", "")

	assert.True(t, result.Success)
	assert.Equal(t, fixed, result.GeneratedQuery)
	assert.Equal(t, StatusSuccess, stepStatuses(result)[StepCheckQuery])
}

func TestRunWithFailingLister(t *testing.T) {
	t.Parallel()

	wf, err := New(Config{
		LLM:      scriptedLLM(`[]`, `db.departments.aggregate([])`, "NO", "", "", "answer"),
		Lister:   &fakeLister{err: errors.New("connection refused")},
		Schema:   &fakeSchema{},
		Executor: &fakeExecutor{},
	})
	require.NoError(t, err)

	result := wf.Run(context.Background(), "how many students", "")

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.CollectionsFound)
	assert.Equal(t, StatusFailed, stepStatuses(result)[StepListCollections])
	// The pipeline keeps going and still produces an answer.
	assert.NotEmpty(t, result.FormattedAnswer)
}

func TestRunWithFailingSchemaFetch(t *testing.T) {
	t.Parallel()

	wf, err := New(Config{
		LLM:      scriptedLLM(`["students"]`, `db.students.aggregate([])`, "NO", "", "", "answer"),
		Lister:   &fakeLister{collections: campusCollections},
		Schema:   &fakeSchema{err: errors.New("timeout")},
		Executor: &fakeExecutor{},
	})
	require.NoError(t, err)

	result := wf.Run(context.Background(), "how many students", "")

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.SchemaRetrieved)
	assert.Equal(t, StatusFailed, stepStatuses(result)[StepGetSchema])
	assert.Contains(t, result.Error, "Error getting schema information")
}

func TestExtractStepsDefaults(t *testing.T) {
	t.Parallel()

	state := newState("q")
	steps := extractSteps(state)

	require.Len(t, steps, 7)
	for _, step := range steps {
		if step.Step == StepCheckQuery {
			assert.Equal(t, StatusSkipped, step.Status)
			continue
		}
		assert.Equal(t, StatusPending, step.Status)
	}
}

func stepStatuses(result *Result) map[Step]Status {
	out := make(map[Step]Status, len(result.WorkflowSteps))
	for _, step := range result.WorkflowSteps {
		out[step.Step] = step.Status
	}
	return out
}
