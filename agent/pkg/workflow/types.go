package workflow

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// Step identifies a node in the fixed query-answering pipeline.
type Step string

const (
	StepListCollections Step = "list_collections"
	StepGetSchema       Step = "get_schema"
	StepGenerateQuery   Step = "generate_query"
	StepNeedChecker     Step = "need_checker"
	StepCheckQuery      Step = "check_query"
	StepRunQuery        Step = "run_query"
	StepFormatAnswer    Step = "format_answer"

	// stepEnd is the terminal pseudo-step used by the routing decisions.
	stepEnd Step = "end"
)

// Status is the recorded outcome of a workflow step.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusDenied  Status = "denied"
	StatusSkipped Status = "skipped"
)

// TextGenerator is the sole LLM touchpoint. It is used for collection
// identification, query synthesis, the validation-need check, issue analysis,
// empty-result repair, and answer formatting.
type TextGenerator interface {
	// Generate sends a prompt and returns the response text.
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// CollectionLister returns the non-system collection names in the store.
type CollectionLister interface {
	ListCollections(ctx context.Context) ([]string, error)
}

// SchemaFetcher returns a human-readable schema description per requested
// collection. The workflow treats each description as opaque text.
type SchemaFetcher interface {
	FetchSchema(ctx context.Context, collections []string) (map[string]string, error)
}

// QueryExecutor runs an aggregation command against the store and returns
// rows, or an error on malformed input.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string) (any, error)
}

// Config holds the configuration for the workflow.
type Config struct {
	Logger   *slog.Logger
	LLM      TextGenerator
	Lister   CollectionLister
	Schema   SchemaFetcher
	Executor QueryExecutor
	Clock    clockwork.Clock // defaults to the real clock

	MaxTokens      int // Max tokens for LLM generation calls (default 1000)
	MaxRetries     int // Max execution attempts for a failing query (default 3)
	MaxCollections int // Max collections to analyze per query (default 3)
}

// State is the single mutable record threaded through the pipeline. One
// instance exists per query invocation; it is created fresh at workflow
// start and discarded after the final step.
type State struct {
	UserQuery           string // immutable after creation
	Collections         []string
	RelevantCollections []string
	SchemaInfo          *SchemaInfo
	GeneratedQuery      string
	QueryResult         any // nil means absent
	FormattedAnswer     string
	StepStatus          map[Step]Status
	ErrorInfo           string
	NeedsCheck          bool
}

func newState(userQuery string) *State {
	return &State{
		UserQuery:  userQuery,
		SchemaInfo: NewSchemaInfo(),
		StepStatus: make(map[Step]Status),
	}
}

// StepResult is a single row of the workflow-steps report.
type StepResult struct {
	Step   Step   `json:"step"`
	Status Status `json:"status"`
}

// Result is the response envelope returned by Run. It is always well-formed,
// even when the pipeline failed catastrophically.
type Result struct {
	Success          bool             `json:"success"`
	Query            string           `json:"query"`
	GeneratedQuery   string           `json:"generated_query"`
	Results          []map[string]any `json:"results"`
	FormattedAnswer  string           `json:"formatted_answer"`
	Error            string           `json:"error,omitempty"`
	ExecutionTime    float64          `json:"execution_time"`
	WorkflowSteps    []StepResult     `json:"workflow_steps"`
	CollectionsFound int              `json:"collections_found"`
	SchemaRetrieved  int              `json:"schema_retrieved"`
}
