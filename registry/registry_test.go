package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/richinex/mnemosyne/bridge"
)

// writeDataset creates root/<dir>/ with an index dir, metadata file and
// the given manifest content.
func writeDataset(t *testing.T, root, dir, manifestFile, content string) string {
	t.Helper()

	base := filepath.Join(root, dir)
	if err := os.MkdirAll(filepath.Join(base, "index"), 0755); err != nil {
		t.Fatalf("failed to create index dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "docs.json"), []byte(`{"documents":[]}`), 0644); err != nil {
		t.Fatalf("failed to write metadata: %v", err)
	}
	path := filepath.Join(base, manifestFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

func validManifest(id string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": "Dataset %s",
		"description": "test dataset",
		"index": "index",
		"metadata": "docs.json"
	}`, id, id)
}

func TestLoadScenarioMixedValidAndInvalid(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "docs-a", "manifest.json", validManifest("docs-a"))
	// docs-b is missing the id field.
	writeDataset(t, root, "docs-b", "manifest.json", `{
		"name": "Broken",
		"description": "no id",
		"index": "index",
		"metadata": "docs.json"
	}`)

	reg := New(root)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := reg.Stats()
	if stats.Total != 2 || stats.Ready != 1 || stats.Errors != 1 {
		t.Errorf("expected stats {2,1,1}, got %+v", stats)
	}

	dataset, ok := reg.Get("docs-a")
	if !ok {
		t.Fatal("expected docs-a to be registered")
	}
	if dataset.ID != "docs-a" {
		t.Errorf("expected id 'docs-a', got %q", dataset.ID)
	}
	if _, ok := reg.Get("docs-b"); ok {
		t.Error("expected docs-b to be absent")
	}
	if reg.Has("docs-b") {
		t.Error("expected Has('docs-b') to be false")
	}
}

func TestLoadIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "docs-a", "manifest.json", validManifest("docs-a"))
	writeDataset(t, root, "docs-b", "manifest.json", `{broken`)
	writeDataset(t, root, "docs-c", "manifest.json", validManifest("docs-c"))
	writeDataset(t, root, "docs-d", "manifest.json", validManifest("docs-d"))

	reg := New(root)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := reg.Stats()
	if stats.Ready != 3 {
		t.Errorf("expected 3 ready datasets, got %d", stats.Ready)
	}
	if stats.Errors != 1 {
		t.Errorf("expected exactly 1 error, got %d", stats.Errors)
	}

	failures := reg.ListErrors()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if !strings.Contains(failures[0].Path, "docs-b") {
		t.Errorf("expected failure path to name docs-b, got %q", failures[0].Path)
	}
	if failures[0].Message == "" {
		t.Error("expected non-empty failure message")
	}
	if failures[0].Timestamp.IsZero() {
		t.Error("expected non-zero failure timestamp")
	}
}

func TestLoadMissingRootIsEmpty(t *testing.T) {
	reg := New(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("expected nil error for missing root, got %v", err)
	}

	stats := reg.Stats()
	if stats.Total != 0 {
		t.Errorf("expected empty registry, got %+v", stats)
	}
	if len(reg.List()) != 0 {
		t.Error("expected no datasets")
	}
}

func TestLoadDepthIsBounded(t *testing.T) {
	root := t.TempDir()
	// A manifest nested two levels down must not be discovered.
	writeDataset(t, filepath.Join(root, "outer"), "inner", "manifest.json", validManifest("nested"))

	reg := New(root)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Has("nested") {
		t.Error("expected nested manifest to be ignored")
	}
	if stats := reg.Stats(); stats.Total != 0 {
		t.Errorf("expected empty registry, got %+v", stats)
	}
}

func TestLoadIgnoresPlainFilesUnderRoot(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "docs-a", "manifest.json", validManifest("docs-a"))
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	reg := New(root)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats := reg.Stats(); stats.Ready != 1 || stats.Errors != 0 {
		t.Errorf("expected {1 ready, 0 errors}, got %+v", stats)
	}
}

func TestLoadDuplicateIDFirstWins(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "aaa-first", "manifest.json", validManifest("shared-id"))
	writeDataset(t, root, "zzz-second", "manifest.json", validManifest("shared-id"))

	reg := New(root)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dataset, ok := reg.Get("shared-id")
	if !ok {
		t.Fatal("expected shared-id to be registered")
	}
	if !strings.Contains(dataset.ManifestPath, "aaa-first") {
		t.Errorf("expected first directory to win, got %q", dataset.ManifestPath)
	}

	failures := reg.ListErrors()
	if len(failures) != 1 {
		t.Fatalf("expected 1 conflict failure, got %d", len(failures))
	}
	if !strings.Contains(failures[0].Message, "duplicate dataset id") {
		t.Errorf("expected conflict message, got %q", failures[0].Message)
	}
	if stats := reg.Stats(); stats.Total != 2 {
		t.Errorf("expected total 2, got %+v", stats)
	}
}

func TestLoadDiscoversYAMLManifests(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "docs-yaml", "manifest.yaml", `
id: docs-yaml
name: YAML Docs
description: discovered via yaml
index: index
metadata: docs.json
`)

	reg := New(root)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reg.Has("docs-yaml") {
		t.Error("expected docs-yaml to be registered")
	}
}

func TestListReturnsSortedByID(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "zzz", "manifest.json", validManifest("docs-z"))
	writeDataset(t, root, "aaa", "manifest.json", validManifest("docs-a"))

	reg := New(root)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	datasets := reg.List()
	if len(datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(datasets))
	}
	if datasets[0].ID != "docs-a" || datasets[1].ID != "docs-z" {
		t.Errorf("expected sorted order [docs-a docs-z], got [%s %s]", datasets[0].ID, datasets[1].ID)
	}
}

// stubValidator implements IndexValidator with a scripted outcome.
type stubValidator struct {
	result bridge.ValidateResult
	err    error
	calls  int
}

func (v *stubValidator) ValidateIndex(ctx context.Context, indexPath string) (bridge.ValidateResult, error) {
	v.calls++
	return v.result, v.err
}

func TestLoadIndexValidationIsAdvisory(t *testing.T) {
	tests := []struct {
		name      string
		validator *stubValidator
	}{
		{
			name:      "validator errors",
			validator: &stubValidator{err: errors.New("bridge unavailable")},
		},
		{
			name:      "index reported invalid",
			validator: &stubValidator{result: bridge.ValidateResult{Status: "error", Error: "no index files"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeDataset(t, root, "docs-a", "manifest.json", validManifest("docs-a"))

			reg := New(root, WithIndexValidator(tt.validator))
			if err := reg.Load(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			// Availability over strictness: the dataset stays ready.
			if !reg.Has("docs-a") {
				t.Error("expected dataset to remain ready despite validation failure")
			}
			if tt.validator.calls != 1 {
				t.Errorf("expected 1 validation call, got %d", tt.validator.calls)
			}
		})
	}
}

func TestReloadReplacesSnapshot(t *testing.T) {
	root := t.TempDir()
	writeDataset(t, root, "docs-a", "manifest.json", validManifest("docs-a"))

	reg := New(root)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reg.Has("docs-a") {
		t.Fatal("expected docs-a after first load")
	}

	if err := os.RemoveAll(filepath.Join(root, "docs-a")); err != nil {
		t.Fatalf("failed to remove dataset: %v", err)
	}
	writeDataset(t, root, "docs-b", "manifest.json", validManifest("docs-b"))

	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Has("docs-a") {
		t.Error("expected docs-a to be gone after reload")
	}
	if !reg.Has("docs-b") {
		t.Error("expected docs-b after reload")
	}
}
