package services

import (
	"context"
	"fmt"
	"time"

	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
)

// EmbeddingStore maintains the recipe-key → embedding index document.
// The index is only ever merged into or key-deleted; a full overwrite
// from a stale snapshot would silently drop other writers' vectors, so
// every mutation goes through the same reload-merge-save loop as the
// catalog.
type EmbeddingStore struct {
	index      *store.VersionedStore[[]float64]
	maxRetries int

	sleep func(context.Context, time.Duration) error
}

// NewEmbeddingStore creates a store over the embedding index document.
func NewEmbeddingStore(index *store.VersionedStore[[]float64], maxRetries int) *EmbeddingStore {
	return &EmbeddingStore{
		index:      index,
		maxRetries: maxRetries,
		sleep:      store.Sleep,
	}
}

// Load returns the whole index for duplicate checks.
func (e *EmbeddingStore) Load(ctx context.Context) (map[string][]float64, error) {
	index, _, err := e.index.Load(ctx)
	return index, err
}

// AddEmbeddings merges vectors for newly committed recipes into the
// index. Keys in vectors win over existing entries; everything else in
// the reloaded index is preserved.
func (e *EmbeddingStore) AddEmbeddings(ctx context.Context, vectors map[string][]float64) error {
	if len(vectors) == 0 {
		return nil
	}

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		index, version, err := e.index.Load(ctx)
		if err != nil {
			return err
		}

		working := make(map[string][]float64, len(index)+len(vectors))
		for key, vector := range index {
			working[key] = vector
		}
		for key, vector := range vectors {
			working[key] = vector
		}

		saved, err := e.index.Save(ctx, working, version)
		if err != nil {
			return err
		}
		if saved {
			logger.Info("embeddings merged",
				"document", e.index.Key(),
				"added", len(vectors),
				"attempt", attempt+1)
			return nil
		}

		logger.Warn("embedding index write conflict, retrying",
			"document", e.index.Key(),
			"attempt", attempt+1,
			"max_retries", e.maxRetries)

		if attempt < e.maxRetries-1 {
			if err := e.sleep(ctx, store.Backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%w updating %s", ErrRetryBudgetExhausted, e.index.Key())
}

// Orphans returns index keys that no longer exist in the catalog.
func Orphans(index map[string][]float64, catalog map[string]models.Recipe) []string {
	var orphans []string
	for key := range index {
		if _, exists := catalog[key]; !exists {
			orphans = append(orphans, key)
		}
	}
	return orphans
}
