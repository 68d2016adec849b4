// Package registry discovers and catalogs datasets on disk.
//
// A registry is rooted at a datasets directory. Each immediate
// subdirectory is one dataset candidate holding a manifest file; the
// scan never descends further, which bounds filesystem walks and keeps
// path traversal out of reach. One dataset's failure never prevents
// loading of any other dataset.
//
// Lifecycle: construct, Load once, then share read-only. Load is not
// safe to call concurrently with itself or with reads; callers
// serialize refreshes. The loaded snapshot is swapped in atomically on
// completion and entries never mutate in place, so reads after a
// completed Load need no locking.
//
// Information Hiding:
// - Directory traversal and manifest discovery hidden
// - Failure aggregation internalized
// - Index validation dispatch hidden

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/mnemosyne/bridge"
	"github.com/richinex/mnemosyne/manifest"
)

// Manifest file names probed in each dataset directory, in order.
var manifestNames = []string{"manifest.json", "manifest.yaml", "manifest.yml"}

// LoadFailure records one dataset that could not be registered.
type LoadFailure struct {
	Path      string
	Message   string
	Timestamp time.Time
}

// Stats summarizes a completed load pass.
type Stats struct {
	Total  int
	Ready  int
	Errors int
}

// IndexValidator checks a resolved index directory. Validation is
// advisory: a failure is logged and the dataset stays ready, deferring
// index-level corruption to query time.
type IndexValidator interface {
	ValidateIndex(ctx context.Context, indexPath string) (bridge.ValidateResult, error)
}

// Registry owns the catalog of ready datasets plus the ordered list of
// load failures.
type Registry struct {
	root      string
	loader    *manifest.Loader
	validator IndexValidator
	logger    *zap.Logger

	datasets map[string]manifest.Dataset
	failures []LoadFailure
}

// Option configures a Registry.
type Option func(*Registry)

// WithIndexValidator enables advisory index validation during Load.
func WithIndexValidator(v IndexValidator) Option {
	return func(r *Registry) { r.validator = v }
}

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New creates an empty registry rooted at the given datasets directory.
func New(root string, opts ...Option) *Registry {
	r := &Registry{
		root:     root,
		loader:   manifest.NewLoader(),
		logger:   zap.NewNop(),
		datasets: make(map[string]manifest.Dataset),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load scans the root directory and registers every dataset found
// directly beneath it. A missing root is not fatal: the registry
// simply stays empty. The new snapshot replaces the old one only
// after the whole pass completes.
func (r *Registry) Load(ctx context.Context) error {
	datasets := make(map[string]manifest.Dataset)
	var failures []LoadFailure

	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("datasets directory does not exist, registry is empty",
				zap.String("root", r.root))
			r.datasets = datasets
			r.failures = failures
			return nil
		}
		return fmt.Errorf("failed to scan datasets directory %q: %w", r.root, err)
	}

	// os.ReadDir returns entries sorted by name, which makes the
	// duplicate-id policy deterministic.
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(r.root, entry.Name())
		manifestPath, ok := findManifest(dir)
		if !ok {
			r.logger.Debug("no manifest in directory, skipping",
				zap.String("dir", dir))
			continue
		}

		dataset, err := r.loader.Load(manifestPath)
		if err != nil {
			r.logger.Warn("failed to load dataset",
				zap.String("manifest", manifestPath),
				zap.Error(err))
			failures = append(failures, LoadFailure{
				Path:      manifestPath,
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			continue
		}

		if existing, collision := datasets[dataset.ID]; collision {
			// First registration wins; the duplicate is recorded as a
			// load failure so it shows up in listErrors and stats.
			msg := fmt.Sprintf("duplicate dataset id %q (already registered from %s)",
				dataset.ID, existing.ManifestPath)
			r.logger.Warn("dataset id conflict",
				zap.String("manifest", manifestPath),
				zap.String("id", dataset.ID))
			failures = append(failures, LoadFailure{
				Path:      manifestPath,
				Message:   msg,
				Timestamp: time.Now(),
			})
			continue
		}

		r.validateIndex(ctx, dataset)

		datasets[dataset.ID] = dataset
		r.logger.Info("registered dataset",
			zap.String("id", dataset.ID),
			zap.String("name", dataset.Name),
			zap.Int("default_top_k", dataset.DefaultTopK))
	}

	r.datasets = datasets
	r.failures = failures

	r.logger.Info("dataset load complete",
		zap.Int("ready", len(datasets)),
		zap.Int("errors", len(failures)))
	return nil
}

// validateIndex runs the advisory index check when a validator is
// configured. Failures are warnings only; the dataset stays ready.
func (r *Registry) validateIndex(ctx context.Context, dataset manifest.Dataset) {
	if r.validator == nil {
		return
	}

	result, err := r.validator.ValidateIndex(ctx, dataset.IndexPath)
	switch {
	case err != nil:
		r.logger.Warn("index validation failed, registering dataset anyway",
			zap.String("id", dataset.ID),
			zap.Error(err))
	case !result.OK():
		r.logger.Warn("index reported invalid, registering dataset anyway",
			zap.String("id", dataset.ID),
			zap.String("detail", result.Error))
	case result.Warning != "":
		r.logger.Warn("index validation warning",
			zap.String("id", dataset.ID),
			zap.String("warning", result.Warning))
	default:
		fields := []zap.Field{zap.String("id", dataset.ID)}
		if result.Properties != nil {
			fields = append(fields,
				zap.Int64("vectors", result.Properties.Total),
				zap.Int("dimension", result.Properties.Dimension))
		}
		r.logger.Debug("index validated", fields...)
	}
}

// Get returns the ready dataset with the given id.
func (r *Registry) Get(id string) (manifest.Dataset, bool) {
	dataset, ok := r.datasets[id]
	return dataset, ok
}

// Has reports whether a ready dataset with the given id exists.
func (r *Registry) Has(id string) bool {
	_, ok := r.datasets[id]
	return ok
}

// List returns all ready datasets sorted by id.
func (r *Registry) List() []manifest.Dataset {
	datasets := make([]manifest.Dataset, 0, len(r.datasets))
	for _, dataset := range r.datasets {
		datasets = append(datasets, dataset)
	}
	sort.Slice(datasets, func(i, j int) bool {
		return datasets[i].ID < datasets[j].ID
	})
	return datasets
}

// IDs returns the ids of all ready datasets sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.datasets))
	for id := range r.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListErrors returns all load failures in scan order.
func (r *Registry) ListErrors() []LoadFailure {
	failures := make([]LoadFailure, len(r.failures))
	copy(failures, r.failures)
	return failures
}

// Stats returns aggregate counts for the last load pass.
// Total is always ready plus errors.
func (r *Registry) Stats() Stats {
	return Stats{
		Total:  len(r.datasets) + len(r.failures),
		Ready:  len(r.datasets),
		Errors: len(r.failures),
	}
}

// findManifest probes the known manifest file names in dir.
func findManifest(dir string) (string, bool) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}
