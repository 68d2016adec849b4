package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestListDatasetsDefaultOmitsFailures(t *testing.T) {
	tool := NewListDatasetsTool(fixtureRegistry(t))

	result, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, got %v", result.Error)
	}

	payload, ok := result.Structured.(datasetsPayload)
	if !ok {
		t.Fatalf("expected datasetsPayload, got %T", result.Structured)
	}
	if len(payload.Datasets) != 1 {
		t.Fatalf("expected 1 dataset, got %d", len(payload.Datasets))
	}
	if payload.Datasets[0].ID != "docs-a" || payload.Datasets[0].Status != "ready" {
		t.Errorf("unexpected summary: %+v", payload.Datasets[0])
	}

	// The stats still count the broken directory even when its entry
	// is omitted from the listing.
	if payload.Stats.Total != 2 || payload.Stats.Ready != 1 || payload.Stats.Errors != 1 {
		t.Errorf("unexpected stats: %+v", payload.Stats)
	}
	if !strings.Contains(result.Output, "2 total, 1 ready, 1 failed") {
		t.Errorf("expected counts in text output, got %q", result.Output)
	}
}

func TestListDatasetsIncludeErrors(t *testing.T) {
	tool := NewListDatasetsTool(fixtureRegistry(t))

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"includeErrors":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, got %v", result.Error)
	}

	payload := result.Structured.(datasetsPayload)
	if len(payload.Datasets) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(payload.Datasets))
	}

	var failed *DatasetSummary
	for i := range payload.Datasets {
		if payload.Datasets[i].Status == "error" {
			failed = &payload.Datasets[i]
		}
	}
	if failed == nil {
		t.Fatal("expected a failed entry")
	}
	if failed.ID != "docs-b" {
		t.Errorf("expected id inferred from directory name, got %q", failed.ID)
	}
	if failed.Error == "" {
		t.Error("expected a failure message")
	}
	if !strings.Contains(result.Output, "docs-b [error]") {
		t.Errorf("expected failed entry in text output, got %q", result.Output)
	}
}

func TestListDatasetsValidate(t *testing.T) {
	tool := NewListDatasetsTool(fixtureRegistry(t))

	if err := tool.Validate(nil); err != nil {
		t.Errorf("expected nil args to validate, got %v", err)
	}
	if err := tool.Validate(json.RawMessage(`{"includeErrors":false}`)); err != nil {
		t.Errorf("expected valid args to validate, got %v", err)
	}
	if err := tool.Validate(json.RawMessage(`{broken`)); err == nil {
		t.Error("expected malformed args to fail validation")
	}
}
