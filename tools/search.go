// Knowledge search tool.
//
// Information Hiding:
// - Registry lookup and store dispatch hidden
// - Result formatting hidden
// - Query logging internalized

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/mnemosyne/bridge"
	"github.com/richinex/mnemosyne/registry"
	"github.com/richinex/mnemosyne/storage"
	"github.com/richinex/mnemosyne/store"
)

// Query and topK bounds enforced before anything reaches the registry
// or the bridge.
const (
	MaxQueryLength = 1024
	MinTopK        = 1
	MaxTopK        = 100

	// snippetPreviewLength bounds snippets in the text rendering.
	// The structured payload keeps them untruncated.
	snippetPreviewLength = 200
)

// QueryRecorder receives a record of each handled search.
// Recording is best-effort and never fails the search.
type QueryRecorder interface {
	Record(ctx context.Context, rec storage.QueryRecord) error
}

// SearchTool performs a similarity search against a registered dataset.
type SearchTool struct {
	registry *registry.Registry
	cache    *store.Cache
	recorder QueryRecorder
	logger   *zap.Logger
}

// NewSearchTool creates a search tool over the given registry and
// store cache.
func NewSearchTool(reg *registry.Registry, cache *store.Cache, logger *zap.Logger) *SearchTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchTool{
		registry: reg,
		cache:    cache,
		logger:   logger,
	}
}

// WithRecorder enables query logging.
func (t *SearchTool) WithRecorder(rec QueryRecorder) *SearchTool {
	t.recorder = rec
	return t
}

// Metadata returns the tool metadata.
func (t *SearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "search",
		Description: "Search a knowledge dataset using vector similarity and return ranked, cited results",
		Parameters: []ToolParameter{
			{
				Name:        "dataset",
				ParamType:   "string",
				Description: "ID of the dataset to search",
				Required:    true,
			},
			{
				Name:        "query",
				ParamType:   "string",
				Description: "Search query text (1-1024 characters)",
				Required:    true,
			},
			{
				Name:        "topK",
				ParamType:   "integer",
				Description: "Maximum number of results to return (1-100, defaults to the dataset's setting)",
				Required:    false,
			},
		},
	}
}

// searchArgs are the tool arguments. TopK is a pointer so an absent
// value (fall back to the dataset default) is distinguishable from an
// explicit out-of-range zero (rejected).
type searchArgs struct {
	Dataset string `json:"dataset"`
	Query   string `json:"query"`
	TopK    *int   `json:"topK"`
}

// searchPayload is the structured result shape.
type searchPayload struct {
	Dataset string          `json:"dataset"`
	Results []bridge.Result `json:"results"`
}

// Validate checks input shape without touching the registry or bridge.
func (t *SearchTool) Validate(args json.RawMessage) error {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Dataset == "" {
		return fmt.Errorf("dataset cannot be empty")
	}
	if strings.TrimSpace(a.Query) == "" {
		return fmt.Errorf("query cannot be empty or whitespace-only")
	}
	if utf8.RuneCountInString(a.Query) > MaxQueryLength {
		return fmt.Errorf("query exceeds %d character limit", MaxQueryLength)
	}
	if a.TopK != nil && (*a.TopK < MinTopK || *a.TopK > MaxTopK) {
		return fmt.Errorf("topK must be between %d and %d", MinTopK, MaxTopK)
	}
	return nil
}

// Execute runs the search. Zero results is a successful outcome, never
// an error.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	if err := t.Validate(args); err != nil {
		return FailureResult(err), nil
	}

	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	dataset, ok := t.registry.Get(a.Dataset)
	if !ok {
		return FailureResultf("dataset %q not found; available datasets: [%s]",
			a.Dataset, strings.Join(t.registry.IDs(), ", ")), nil
	}

	topK := 0 // zero lets the store apply the dataset default
	if a.TopK != nil {
		topK = *a.TopK
	}

	start := time.Now()
	results, err := t.cache.GetStore(dataset).Search(ctx, a.Query, topK)
	elapsed := time.Since(start)

	t.record(ctx, a.Query, topK, dataset.ID, results, elapsed, err)

	if err != nil {
		return FailureResultf("search is currently unavailable for dataset %q: %v", a.Dataset, err), nil
	}

	return StructuredResult(renderResults(a.Query, dataset.ID, results), searchPayload{
		Dataset: dataset.ID,
		Results: results,
	}), nil
}

// record writes the query log entry when a recorder is configured.
func (t *SearchTool) record(ctx context.Context, query string, topK int, datasetID string, results []bridge.Result, elapsed time.Duration, searchErr error) {
	if t.recorder == nil {
		return
	}

	rec := storage.QueryRecord{
		ID:          uuid.NewString(),
		DatasetID:   datasetID,
		Query:       query,
		TopK:        topK,
		ResultCount: len(results),
		DurationMs:  elapsed.Milliseconds(),
		Status:      "ok",
		CreatedAt:   time.Now().Unix(),
	}
	if searchErr != nil {
		rec.Status = "error"
		rec.Error = searchErr.Error()
	}

	if err := t.recorder.Record(ctx, rec); err != nil {
		t.logger.Warn("failed to record query", zap.Error(err))
	}
}

// renderResults formats a ranked result list for text transports.
func renderResults(query, datasetID string, results []bridge.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q in dataset %q.", query, datasetID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s) for %q in dataset %q:\n", len(results), query, datasetID)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. [%.3f] %s\n   path: %s\n", i+1, r.Score, r.Title, r.Path)
		if snippet := previewSnippet(r.Snippet); snippet != "" {
			fmt.Fprintf(&b, "   %s\n", snippet)
		}
	}
	return b.String()
}

// previewSnippet truncates long snippets for the text rendering.
func previewSnippet(snippet string) string {
	snippet = strings.TrimSpace(snippet)
	if utf8.RuneCountInString(snippet) <= snippetPreviewLength {
		return snippet
	}
	runes := []rune(snippet)
	return string(runes[:snippetPreviewLength]) + "..."
}

// Verify SearchTool implements the tool interface.
var _ Tool = (*SearchTool)(nil)
