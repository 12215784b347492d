package services

import (
	"context"
	"fmt"
	"time"

	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/internal/telemetry"
	"recipe-vault-backend/models"
)

// AtomicDeleter removes one recipe key from both shared documents, the
// catalog and the embedding index. Each document is updated with its
// own conditional write; a conflict on either restarts the whole
// attempt with fresh loads. Deleting a key that is already gone from a
// document counts as that document being satisfied, which makes the
// operation idempotent.
//
// The two writes are not transactional. If the catalog write lands and
// the index write then fails permanently, the index keeps an orphan
// until the sweeper reconciles it.
type AtomicDeleter struct {
	catalog    *store.VersionedStore[models.Recipe]
	index      *store.VersionedStore[[]float64]
	maxRetries int
	metrics    *telemetry.Metrics

	sleep func(context.Context, time.Duration) error
}

// NewAtomicDeleter creates a deleter over the catalog and embedding
// index documents. metrics may be nil.
func NewAtomicDeleter(catalog *store.VersionedStore[models.Recipe], index *store.VersionedStore[[]float64], maxRetries int, metrics *telemetry.Metrics) *AtomicDeleter {
	return &AtomicDeleter{
		catalog:    catalog,
		index:      index,
		maxRetries: maxRetries,
		metrics:    metrics,
		sleep:      store.Sleep,
	}
}

// Delete removes key from the catalog and the embedding index. A nil
// return means both documents confirm removal or absence.
func (d *AtomicDeleter) Delete(ctx context.Context, key string) error {
	failing := ""

	for attempt := 0; attempt < d.maxRetries; attempt++ {
		catalog, catalogVersion, err := d.catalog.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading %s: %w", d.catalog.Key(), err)
		}
		index, indexVersion, err := d.index.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading %s: %w", d.index.Key(), err)
		}

		failing = ""

		if _, exists := catalog[key]; exists {
			working := make(map[string]models.Recipe, len(catalog))
			for k, v := range catalog {
				if k != key {
					working[k] = v
				}
			}
			saved, err := d.catalog.Save(ctx, working, catalogVersion)
			if err != nil {
				return fmt.Errorf("updating %s: %w", d.catalog.Key(), err)
			}
			if !saved {
				failing = d.catalog.Key()
			}
		}

		if failing == "" {
			if _, exists := index[key]; exists {
				working := make(map[string][]float64, len(index))
				for k, v := range index {
					if k != key {
						working[k] = v
					}
				}
				saved, err := d.index.Save(ctx, working, indexVersion)
				if err != nil {
					return fmt.Errorf("updating %s: %w", d.index.Key(), err)
				}
				if !saved {
					failing = d.index.Key()
				}
			}
		}

		if failing == "" {
			logger.Info("recipe deleted", "key", key, "attempt", attempt+1)
			return nil
		}

		if d.metrics != nil {
			d.metrics.RecordWriteConflict(failing)
		}
		logger.Warn("delete write conflict, retrying",
			"key", key,
			"document", failing,
			"attempt", attempt+1,
			"max_retries", d.maxRetries)

		if attempt < d.maxRetries-1 {
			if err := d.sleep(ctx, store.Backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("%w updating %s", ErrRetryBudgetExhausted, failing)
}
