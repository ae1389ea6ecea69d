// Package workflow implements a deterministic multi-step pipeline that turns
// natural language questions into MongoDB aggregation queries, executes them
// with retry and repair, and formats the results as natural language answers.
//
// The pipeline runs a fixed sequence of steps: list_collections, get_schema,
// generate_query, need_checker, check_query (conditional), run_query, and
// format_answer. Step failures are absorbed into the per-step status record
// rather than aborting the run, so callers always receive a complete Result.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	defaultMaxTokens      = 1000
	defaultMaxRetries     = 3
	defaultMaxCollections = 3
)

// Workflow executes the query-answering pipeline.
type Workflow struct {
	cfg Config
}

// New creates a workflow from the given configuration.
func New(cfg Config) (*Workflow, error) {
	if cfg.LLM == nil {
		return nil, errors.New("llm is required")
	}
	if cfg.Lister == nil {
		return nil, errors.New("collection lister is required")
	}
	if cfg.Schema == nil {
		return nil, errors.New("schema fetcher is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("query executor is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxCollections <= 0 {
		cfg.MaxCollections = defaultMaxCollections
	}
	return &Workflow{cfg: cfg}, nil
}

// Run processes a natural language query through the full pipeline and
// returns the response envelope. It never returns a nil result: even a panic
// inside a step is converted into a failure envelope.
func (w *Workflow) Run(ctx context.Context, userQuery, threadID string) *Result {
	start := w.cfg.Clock.Now()
	if threadID == "" {
		threadID = uuid.NewString()
	}

	w.logInfo("processing query", "thread_id", threadID, "query", userQuery)

	state := newState(userQuery)
	if err := w.execute(ctx, state); err != nil {
		w.logError("workflow execution failed", "thread_id", threadID, "error", err)
		return &Result{
			Success:         false,
			Query:           userQuery,
			Results:         []map[string]any{},
			FormattedAnswer: fmt.Sprintf("An unexpected error occurred: %v", err),
			Error:           fmt.Sprintf("Error in structured agent query: %v", err),
			ExecutionTime:   w.cfg.Clock.Since(start).Seconds(),
			WorkflowSteps:   extractSteps(state),
		}
	}

	result := &Result{
		Success:          allStepsSucceeded(state),
		Query:            userQuery,
		GeneratedQuery:   state.GeneratedQuery,
		Results:          ParseResults(state.QueryResult),
		FormattedAnswer:  state.FormattedAnswer,
		Error:            state.ErrorInfo,
		ExecutionTime:    w.cfg.Clock.Since(start).Seconds(),
		WorkflowSteps:    extractSteps(state),
		CollectionsFound: len(state.Collections),
		SchemaRetrieved:  state.SchemaInfo.Len(),
	}

	w.logInfo("query processed",
		"thread_id", threadID,
		"success", result.Success,
		"execution_time", result.ExecutionTime,
	)
	return result
}

// execute walks the step sequence. The returned error is non-nil only when a
// step panicked; ordinary step failures are recorded in the state.
func (w *Workflow) execute(ctx context.Context, state *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	w.listCollections(ctx, state)
	w.getSchema(ctx, state)
	w.generateQuery(ctx, state)
	if decideAfterGenerate(state) == stepEnd {
		return nil
	}
	w.needChecker(ctx, state)
	if decideAfterNeedChecker(state) == StepCheckQuery {
		w.checkQuery(ctx, state)
	}
	w.runQuery(ctx, state)
	w.formatAnswer(ctx, state)
	return nil
}

// listCollections discovers the available collections in the store.
func (w *Workflow) listCollections(ctx context.Context, state *State) {
	w.logInfo("step 1: discovering database collections")

	collections, err := w.cfg.Lister.ListCollections(ctx)
	if err != nil {
		w.logError("failed to list collections", "error", err)
		state.Collections = []string{}
		state.StepStatus[StepListCollections] = StatusFailed
		state.ErrorInfo = fmt.Sprintf("Error listing collections: %v", err)
		return
	}

	state.Collections = collections
	state.StepStatus[StepListCollections] = StatusSuccess
	w.logInfo("discovered collections", "count", len(collections))
}

// getSchema resolves the collections relevant to the question and retrieves
// their schema descriptions.
func (w *Workflow) getSchema(ctx context.Context, state *State) {
	w.logInfo("step 2: analyzing schemas for relevant collections")

	state.RelevantCollections = w.resolveCollections(ctx, state.UserQuery, state.Collections)
	w.logInfo("identified relevant collections", "collections", state.RelevantCollections)

	if len(state.RelevantCollections) == 0 {
		state.StepStatus[StepGetSchema] = StatusSuccess
		return
	}

	schemas, err := w.cfg.Schema.FetchSchema(ctx, state.RelevantCollections)
	if err != nil {
		w.logError("failed to get schema information", "error", err)
		state.StepStatus[StepGetSchema] = StatusFailed
		state.ErrorInfo = fmt.Sprintf("Error getting schema information: %v", err)
		return
	}

	for _, name := range state.RelevantCollections {
		if text, ok := schemas[name]; ok {
			state.SchemaInfo.Set(name, text)
		}
	}
	state.StepStatus[StepGetSchema] = StatusSuccess
	w.logInfo("schema retrieved", "count", state.SchemaInfo.Len())
}

// generateQuery converts the question into an aggregation command, denying
// requests for write operations before any query is produced.
func (w *Workflow) generateQuery(ctx context.Context, state *State) {
	w.logInfo("step 3: generating aggregation query")

	if isWriteRequest(state.UserQuery) {
		w.logInfo("write operation requested, denying")
		state.FormattedAnswer = refusalMessage
		state.StepStatus[StepGenerateQuery] = StatusDenied
		return
	}

	target := w.targetCollection(state)
	schemaContext := BuildSchemaContext(state.SchemaInfo)

	query, err := w.synthesizeQuery(ctx, state.UserQuery, target, schemaContext)
	state.GeneratedQuery = query
	state.StepStatus[StepGenerateQuery] = StatusSuccess
	if err != nil {
		state.ErrorInfo = fmt.Sprintf("Error generating query with MQL generator: %v", err)
	}
	w.logInfo("generated query", "query", query)
}

// needChecker decides whether the generated query deserves a validation pass.
func (w *Workflow) needChecker(ctx context.Context, state *State) {
	w.logInfo("step 4: checking whether query needs validation")

	state.NeedsCheck = w.needsValidation(ctx, state.GeneratedQuery, state.UserQuery, BuildSchemaContext(state.SchemaInfo))
	state.StepStatus[StepNeedChecker] = StatusSuccess
	w.logInfo("validation decision", "needs_check", state.NeedsCheck)
}

// checkQuery analyzes a suspect query and swaps in the model's fix when one
// is offered.
func (w *Workflow) checkQuery(ctx context.Context, state *State) {
	w.logInfo("step 5: analyzing query for issues")

	analysis := w.analyzeQuery(ctx, state.GeneratedQuery, state.UserQuery, BuildSchemaContext(state.SchemaInfo))
	if analysis.HasIssues && analysis.FixedQuery != "" {
		w.logInfo("applying fixed query", "issues", analysis.Issues)
		state.GeneratedQuery = cleanCodeFences(analysis.FixedQuery)
	}
	state.StepStatus[StepCheckQuery] = StatusSuccess
}

// runQuery executes the query with retries. Early attempts repair syntax,
// the last attempt regenerates the query from the question, and a count
// query is the final fallback. An empty result triggers a single model
// repair attempt before the normal retry path resumes.
func (w *Workflow) runQuery(ctx context.Context, state *State) {
	w.logInfo("step 6: executing query")

	if state.GeneratedQuery == "" {
		state.StepStatus[StepRunQuery] = StatusFailed
		state.ErrorInfo = "Error executing query: No query to execute"
		return
	}

	target := targetCollectionOf(state.GeneratedQuery)
	schemaContext := BuildSchemaContext(state.SchemaInfo)

	var result any
	var lastErr error
	done := false
	emptyChecked := false

	for attempt := 0; attempt < w.cfg.MaxRetries && !done; attempt++ {
		switch attempt {
		case 0, 1:
			state.GeneratedQuery = NormalizeQuerySyntax(state.GeneratedQuery)
		default:
			state.GeneratedQuery = regenerateQuery(state.UserQuery, target, schemaContext)
		}

		w.logInfo("executing query attempt", "attempt", attempt+1, "query", state.GeneratedQuery)
		res, err := w.cfg.Executor.ExecuteQuery(ctx, state.GeneratedQuery)
		if err != nil {
			lastErr = err
			w.logWarn("query attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		if IsEmptyResult(res) && !emptyChecked {
			emptyChecked = true
			w.logWarn("query returned empty result, asking model to fix it")
			if fixed := w.repairEmptyQuery(ctx, state.GeneratedQuery, state.UserQuery, schemaContext); fixed != "" && fixed != state.GeneratedQuery {
				fixedRes, fixedErr := w.cfg.Executor.ExecuteQuery(ctx, fixed)
				if fixedErr == nil && !IsEmptyResult(fixedRes) {
					w.logInfo("fixed query returned results")
					state.GeneratedQuery = fixed
					result = fixedRes
					done = true
					continue
				}
				w.logWarn("fixed query also returned no results", "error", fixedErr)
			}
			continue
		}

		result = res
		done = true
	}

	if !done {
		fallback := countAllQuery(target)
		w.logInfo("final fallback", "query", fallback)

		res, err := w.cfg.Executor.ExecuteQuery(ctx, fallback)
		if err != nil {
			if lastErr == nil {
				lastErr = err
			}
			w.logError("fallback query failed", "error", err)
			state.QueryResult = nil
			state.StepStatus[StepRunQuery] = StatusFailed
			state.ErrorInfo = fmt.Sprintf("Error executing query: All query attempts failed. Last error: %v", lastErr)
			return
		}
		state.GeneratedQuery = fallback
		result = res
	}

	state.QueryResult = result
	state.StepStatus[StepRunQuery] = StatusSuccess
	w.logInfo("query executed successfully")
}

// formatAnswer renders the query result as a natural language answer. When
// the model is unavailable the raw result is surfaced instead, so an answer
// is always produced.
func (w *Workflow) formatAnswer(ctx context.Context, state *State) {
	w.logInfo("step 7: formatting final answer")

	if state.QueryResult == nil {
		if state.ErrorInfo != "" {
			state.FormattedAnswer = fmt.Sprintf("I apologize, but I encountered an error while processing your query: %s", state.ErrorInfo)
		} else {
			state.FormattedAnswer = "I apologize, but I was unable to retrieve the requested information."
		}
		state.StepStatus[StepFormatAnswer] = StatusSuccess
		return
	}

	prompt := buildFormatPrompt(state.UserQuery, fmt.Sprintf("%v", state.QueryResult))
	response, err := w.cfg.LLM.Generate(ctx, prompt, w.cfg.MaxTokens, 0.1)
	if err != nil {
		w.logWarn("answer formatting failed, returning raw result", "error", err)
		state.FormattedAnswer = fmt.Sprintf("I apologize, but I encountered an error while formatting the response. Raw result: %v", state.QueryResult)
		state.StepStatus[StepFormatAnswer] = StatusSuccess
		state.ErrorInfo = fmt.Sprintf("Error formatting answer: %v", err)
		return
	}

	state.FormattedAnswer = strings.TrimSpace(response)
	state.StepStatus[StepFormatAnswer] = StatusSuccess
}

// targetCollection picks the collection the generated query should address.
func (w *Workflow) targetCollection(state *State) string {
	if len(state.RelevantCollections) > 0 {
		return state.RelevantCollections[0]
	}
	return defaultTargetCollection
}

// decideAfterGenerate routes denied requests straight to the end.
func decideAfterGenerate(state *State) Step {
	if state.StepStatus[StepGenerateQuery] == StatusDenied {
		return stepEnd
	}
	return StepNeedChecker
}

// decideAfterNeedChecker routes to the validation step only when the
// need-checker asked for it.
func decideAfterNeedChecker(state *State) Step {
	if state.NeedsCheck {
		return StepCheckQuery
	}
	return StepRunQuery
}

// allStepsSucceeded reports whether every recorded step finished with
// success. Unvisited steps don't count against the run.
func allStepsSucceeded(state *State) bool {
	for _, status := range state.StepStatus {
		if status != StatusSuccess {
			return false
		}
	}
	return true
}

// extractSteps renders the per-step status report in pipeline order.
func extractSteps(state *State) []StepResult {
	steps := []Step{
		StepListCollections,
		StepGetSchema,
		StepGenerateQuery,
		StepNeedChecker,
		StepCheckQuery,
		StepRunQuery,
		StepFormatAnswer,
	}

	out := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		status, ok := state.StepStatus[step]
		if !ok {
			status = StatusPending
			if step == StepCheckQuery && !state.NeedsCheck {
				status = StatusSkipped
			}
		}
		out = append(out, StepResult{Step: step, Status: status})
	}
	return out
}

func (w *Workflow) logInfo(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Info(msg, args...)
	}
}

func (w *Workflow) logWarn(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Warn(msg, args...)
	}
}

func (w *Workflow) logError(msg string, args ...any) {
	if w.cfg.Logger != nil {
		w.cfg.Logger.Error(msg, args...)
	}
}
