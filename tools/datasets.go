// Dataset listing tool.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/richinex/mnemosyne/manifest"
	"github.com/richinex/mnemosyne/registry"
)

// DatasetSummary is one entry in the list_datasets result.
type DatasetSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// datasetsPayload is the structured result shape.
type datasetsPayload struct {
	Datasets []DatasetSummary `json:"datasets"`
	Stats    datasetsStats    `json:"stats"`
}

type datasetsStats struct {
	Total  int `json:"total"`
	Ready  int `json:"ready"`
	Errors int `json:"errors"`
}

// ListDatasetsTool lists registered datasets and load failures.
type ListDatasetsTool struct {
	registry *registry.Registry
}

// NewListDatasetsTool creates a listing tool over the given registry.
func NewListDatasetsTool(reg *registry.Registry) *ListDatasetsTool {
	return &ListDatasetsTool{registry: reg}
}

// Metadata returns the tool metadata.
func (t *ListDatasetsTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "list_datasets",
		Description: "List registered knowledge datasets with aggregate counts",
		Parameters: []ToolParameter{
			{
				Name:        "includeErrors",
				ParamType:   "boolean",
				Description: "Also list datasets that failed to load, with their failure messages",
				Required:    false,
			},
		},
	}
}

type listArgs struct {
	IncludeErrors bool `json:"includeErrors"`
}

// Validate validates the tool arguments.
func (t *ListDatasetsTool) Validate(args json.RawMessage) error {
	if len(args) == 0 {
		return nil
	}
	var a listArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Execute builds the dataset listing.
func (t *ListDatasetsTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a listArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
	}

	summaries := make([]DatasetSummary, 0)
	for _, dataset := range t.registry.List() {
		summaries = append(summaries, DatasetSummary{
			ID:          dataset.ID,
			Name:        dataset.Name,
			Description: dataset.Description,
			Status:      string(manifest.StatusReady),
		})
	}

	if a.IncludeErrors {
		for _, failure := range t.registry.ListErrors() {
			summaries = append(summaries, DatasetSummary{
				ID:     inferDatasetID(failure.Path),
				Status: string(manifest.StatusError),
				Error:  failure.Message,
			})
		}
	}

	stats := t.registry.Stats()
	payload := datasetsPayload{
		Datasets: summaries,
		Stats: datasetsStats{
			Total:  stats.Total,
			Ready:  stats.Ready,
			Errors: stats.Errors,
		},
	}

	return StructuredResult(renderDatasets(payload), payload), nil
}

// inferDatasetID derives a dataset id from the parent directory of a
// failing manifest path.
func inferDatasetID(manifestPath string) string {
	return filepath.Base(filepath.Dir(manifestPath))
}

// renderDatasets formats the dataset listing for text transports.
func renderDatasets(payload datasetsPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Datasets: %d total, %d ready, %d failed\n",
		payload.Stats.Total, payload.Stats.Ready, payload.Stats.Errors)

	for _, summary := range payload.Datasets {
		if summary.Status == string(manifest.StatusReady) {
			fmt.Fprintf(&b, "\n- %s (%s): %s", summary.ID, summary.Name, summary.Description)
		} else {
			fmt.Fprintf(&b, "\n- %s [error]: %s", summary.ID, summary.Error)
		}
	}
	return b.String()
}

// Verify ListDatasetsTool implements the tool interface.
var _ Tool = (*ListDatasetsTool)(nil)
