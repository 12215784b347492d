package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/internal/telemetry"
	"recipe-vault-backend/models"
)

// ErrRetryBudgetExhausted means every attempt at a conditional write
// lost to a concurrent writer. Nothing was committed.
var ErrRetryBudgetExhausted = errors.New("max retries exceeded")

// CatalogWriter appends batches of recipes to the shared catalog
// document. There are no locks anywhere: each attempt reloads the
// document, redoes every decision against that snapshot, and writes
// back conditionally on the snapshot's version. Losing a race costs a
// jittered backoff and a fresh attempt, never corrupted state.
type CatalogWriter struct {
	catalog    *store.VersionedStore[models.Recipe]
	maxRetries int
	metrics    *telemetry.Metrics

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewCatalogWriter creates a writer for the catalog document. metrics
// may be nil.
func NewCatalogWriter(catalog *store.VersionedStore[models.Recipe], maxRetries int, metrics *telemetry.Metrics) *CatalogWriter {
	return &CatalogWriter{
		catalog:    catalog,
		maxRetries: maxRetries,
		metrics:    metrics,
		now:        time.Now,
		sleep:      store.Sleep,
	}
}

// BatchWrite commits accepted candidates as one atomic catalog
// mutation and reports per-candidate rejections alongside. Rejections
// are data, not failures: the batch still commits whatever survived.
// Only write conflicts consume retry attempts.
//
// The uploadedAt stamp is taken once, up front, so a retried attempt
// does not shift timestamps.
func (w *CatalogWriter) BatchWrite(ctx context.Context, candidates []models.Candidate) (*models.BatchResult, error) {
	uploadedAt := w.now().UTC().Format(time.RFC3339)

	for attempt := 0; attempt < w.maxRetries; attempt++ {
		catalog, version, err := w.catalog.Load(ctx)
		if err != nil {
			return nil, err
		}

		// All decisions below are valid only against this snapshot.
		next := nextKey(catalog)
		working := make(map[string]models.Recipe, len(catalog)+len(candidates))
		taken := make(map[string]struct{}, len(catalog))
		for key, recipe := range catalog {
			working[key] = recipe
			taken[models.NormalizeTitle(recipe.Title)] = struct{}{}
		}

		var (
			committed []string
			positions = make(map[int]string)
			itemErrs  []models.ItemError
		)

		for i, cand := range candidates {
			title := models.NormalizeTitle(cand.Recipe.Title)
			if _, exists := taken[title]; exists {
				itemErrs = append(itemErrs, models.ItemError{File: i, Reason: "Recipe title already exists"})
				continue
			}

			recipe := cand.Recipe
			recipe.Key = strconv.Itoa(next)
			recipe.UploadedAt = uploadedAt
			if len(cand.ImageRefs) > 0 {
				recipe.ImageSearchResults = cand.ImageRefs
			}

			working[recipe.Key] = recipe
			taken[title] = struct{}{}
			committed = append(committed, recipe.Key)
			positions[i] = recipe.Key
			next++
		}

		if len(committed) == 0 {
			// Nothing to write; hand back the catalog as loaded.
			return &models.BatchResult{
				Catalog:       catalog,
				CommittedKeys: []string{},
				PositionToKey: map[int]string{},
				Errors:        itemErrs,
			}, nil
		}

		saved, err := w.catalog.Save(ctx, working, version)
		if err != nil {
			return nil, err
		}
		if saved {
			if w.metrics != nil {
				w.metrics.RecordRecipesCommitted(int64(len(committed)))
			}
			logger.Info("catalog batch committed",
				"document", w.catalog.Key(),
				"committed", len(committed),
				"rejected", len(itemErrs),
				"attempt", attempt+1)
			return &models.BatchResult{
				Catalog:       working,
				CommittedKeys: committed,
				PositionToKey: positions,
				Errors:        itemErrs,
			}, nil
		}

		// Lost the race. Everything decided this attempt is stale.
		if w.metrics != nil {
			w.metrics.RecordWriteConflict(w.catalog.Key())
		}
		logger.Warn("catalog write conflict, retrying",
			"document", w.catalog.Key(),
			"attempt", attempt+1,
			"max_retries", w.maxRetries)

		if attempt < w.maxRetries-1 {
			if err := w.sleep(ctx, store.Backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w updating %s after %d attempts", ErrRetryBudgetExhausted, w.catalog.Key(), w.maxRetries)
}

// nextKey returns one past the highest numeric key so deleted keys are
// never reissued. Non-numeric keys are ignored.
func nextKey(catalog map[string]models.Recipe) int {
	max := 0
	for key := range catalog {
		if n, err := strconv.Atoi(key); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}
