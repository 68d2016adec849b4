// Package store provides per-dataset search handles and their
// process-wide cache.
//
// A Store knows how to issue bridge calls for one dataset. The Cache
// guarantees at most one logical Store exists per dataset id for the
// lifetime of the process.
//
// Information Hiding:
// - Retry state machine hidden
// - TopK defaulting hidden
// - Result hygiene (citation paths) internalized

package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/mnemosyne/bridge"
	"github.com/richinex/mnemosyne/manifest"
)

// DefaultRetryDelay is the fixed pause between the two search
// attempts. Deliberately not exponential: exactly one retry after
// exactly this delay is the contract.
const DefaultRetryDelay = 1 * time.Second

// Store is the cached search handle for one dataset.
type Store struct {
	dataset    manifest.Dataset
	bridge     bridge.Bridge
	logger     *zap.Logger
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewStore creates a search handle for the given dataset snapshot.
// The snapshot is copied, never mutated.
func NewStore(dataset manifest.Dataset, b bridge.Bridge, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dataset:    dataset,
		bridge:     b,
		logger:     logger,
		retryDelay: DefaultRetryDelay,
		sleep:      sleepContext,
	}
}

// Dataset returns the dataset snapshot this store serves.
func (s *Store) Dataset() manifest.Dataset {
	return s.dataset
}

// Search runs a similarity query through the bridge.
//
// Two-attempt state machine: attempt once; on any bridge failure wait
// the fixed delay and attempt exactly once more; on the retry also
// failing, surface a single aggregated error naming the dataset.
// Assumes failures are transient (subprocess cold-start jitter).
// Partial or stale results are never returned.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]bridge.Result, error) {
	if topK <= 0 {
		topK = s.dataset.DefaultTopK
	}

	resp, err := s.attempt(ctx, query, topK)
	if err != nil {
		s.logger.Warn("search attempt failed, retrying once",
			zap.String("dataset", s.dataset.ID),
			zap.Error(err))

		if serr := s.sleep(ctx, s.retryDelay); serr != nil {
			return nil, serr
		}

		resp, err = s.attempt(ctx, query, topK)
		if err != nil {
			return nil, fmt.Errorf("search failed for dataset %q after retry: %w", s.dataset.ID, err)
		}
	}

	results := withCitations(resp.Results, s.dataset.ID, s.logger)

	s.logger.Info("search completed",
		zap.String("dataset", s.dataset.ID),
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.Int64("duration_ms", resp.DurationMs),
		zap.Int("dataset_size", resp.DatasetSize))

	return results, nil
}

// attempt issues one bridge search call.
func (s *Store) attempt(ctx context.Context, query string, topK int) (bridge.SearchResponse, error) {
	return s.bridge.Search(ctx, s.dataset.IndexPath, s.dataset.MetadataPath, query, topK)
}

// withCitations drops results lacking a path. Every surfaced result
// must carry a citation; the external process can emit an empty path
// when a document record has none.
func withCitations(results []bridge.Result, datasetID string, logger *zap.Logger) []bridge.Result {
	kept := make([]bridge.Result, 0, len(results))
	for _, result := range results {
		if result.Path == "" {
			logger.Warn("dropping result without citation path",
				zap.String("dataset", datasetID),
				zap.String("title", result.Title))
			continue
		}
		kept = append(kept, result)
	}
	return kept
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
