// Package bridge drives the external search-execution process.
//
// All vector-similarity computation is delegated to a Python helper
// script. Each call is one subprocess invocation: arguments in, one
// JSON document on stdout, diagnostics on stderr, non-zero exit on
// failure. The package exposes that contract as a narrow synchronous
// port so the subprocess mechanism could later be swapped for a
// persistent worker without touching callers.
//
// Information Hiding:
// - Process invocation and argument marshaling hidden
// - Timeout enforcement hidden
// - Response parsing and error classification internalized

package bridge

import "context"

// Command names understood by the external process.
type Command string

const (
	CommandSearch        Command = "search"
	CommandValidateIndex Command = "validate-index"
	CommandHealthCheck   Command = "health-check"
)

// Result is a single ranked search hit as emitted by the external
// process. Order is preserved; the bridge never re-sorts.
type Result struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Snippet string  `json:"snippet"`
}

// SearchResponse is the payload of a successful search invocation.
type SearchResponse struct {
	Results     []Result `json:"results"`
	DurationMs  int64    `json:"duration_ms"`
	DatasetSize int      `json:"dataset_size"`
}

// IndexProperties describes a validated index.
type IndexProperties struct {
	IsTrained bool  `json:"is_trained"`
	Total     int64 `json:"ntotal"`
	Dimension int   `json:"d"`
}

// ValidateResult is the payload of a validate-index invocation.
// Status is "ok" or "error"; a non-ok status carries Error.
type ValidateResult struct {
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	IndexFile  string           `json:"index_file,omitempty"`
	Properties *IndexProperties `json:"properties,omitempty"`
	Warning    string           `json:"warning,omitempty"`
}

// OK reports whether the index passed validation.
func (r ValidateResult) OK() bool {
	return r.Status == "ok"
}

// HealthResult is the payload of a health-check invocation.
type HealthResult struct {
	Status        string            `json:"status"`
	PythonVersion string            `json:"python_version,omitempty"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Healthy reports whether the bridge process is functional.
func (r HealthResult) Healthy() bool {
	return r.Status == "healthy"
}

// Bridge is the port through which all search computation flows.
// Implementations do not retry; retry policy belongs to callers so it
// can differ between search (retry once) and load-time checks (none).
type Bridge interface {
	// Search runs a similarity query against the given index.
	Search(ctx context.Context, indexPath, metadataPath, query string, topK int) (SearchResponse, error)

	// ValidateIndex checks that an index directory is readable.
	// Advisory: callers treat failures as warnings at load time.
	ValidateIndex(ctx context.Context, indexPath string) (ValidateResult, error)

	// HealthCheck verifies the external process can run at all.
	HealthCheck(ctx context.Context) (HealthResult, error)
}
