package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
)

// Sweeper reconverges the documents the accepted consistency gaps can
// leave diverged: index entries whose recipe was deleted, and status
// documents nobody will poll again. Runs on a schedule in the worker
// and on demand through the admin API.
type Sweeper struct {
	catalog       *store.VersionedStore[models.Recipe]
	index         *store.VersionedStore[[]float64]
	status        *StatusService
	maxRetries    int
	retentionDays int

	scheduler *gocron.Scheduler
	sleep     func(context.Context, time.Duration) error
}

// NewSweeper creates a sweeper over the catalog and embedding index.
func NewSweeper(
	catalog *store.VersionedStore[models.Recipe],
	index *store.VersionedStore[[]float64],
	status *StatusService,
	maxRetries, retentionDays int,
) *Sweeper {
	return &Sweeper{
		catalog:       catalog,
		index:         index,
		status:        status,
		maxRetries:    maxRetries,
		retentionDays: retentionDays,
		sleep:         store.Sleep,
	}
}

// Start schedules recurring sweeps with the given cron expression.
func (s *Sweeper) Start(cronExpr string) error {
	s.scheduler = gocron.NewScheduler(time.UTC)
	s.scheduler.TagsUnique()

	if _, err := s.scheduler.Cron(cronExpr).Tag("index-sweep").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.Run(ctx); err != nil {
			logger.Error("scheduled sweep failed", "error", err.Error())
		}
	}); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	logger.Info("sweeper scheduled", "cron", cronExpr)
	return nil
}

// Stop halts the schedule. Safe to call without Start.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Run executes one full sweep: index reconciliation, then status
// pruning.
func (s *Sweeper) Run(ctx context.Context) error {
	removed, err := s.SweepIndex(ctx)
	if err != nil {
		return err
	}

	pruned, err := s.PruneStatuses(ctx)
	if err != nil {
		return err
	}

	logger.Info("sweep completed", "orphans_removed", removed, "statuses_pruned", pruned)
	return nil
}

// SweepIndex removes embedding index entries whose key no longer
// exists in the catalog, under the same bounded conditional-write loop
// as every other index mutation.
func (s *Sweeper) SweepIndex(ctx context.Context) (int, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		catalog, _, err := s.catalog.Load(ctx)
		if err != nil {
			return 0, err
		}
		index, version, err := s.index.Load(ctx)
		if err != nil {
			return 0, err
		}

		orphans := Orphans(index, catalog)
		if len(orphans) == 0 {
			return 0, nil
		}

		working := make(map[string][]float64, len(index))
		for key, vector := range index {
			working[key] = vector
		}
		for _, key := range orphans {
			delete(working, key)
		}

		saved, err := s.index.Save(ctx, working, version)
		if err != nil {
			return 0, err
		}
		if saved {
			logger.Info("index orphans removed", "count", len(orphans), "attempt", attempt+1)
			return len(orphans), nil
		}

		logger.Warn("index sweep write conflict, retrying", "attempt", attempt+1, "max_retries", s.maxRetries)
		if attempt < s.maxRetries-1 {
			if err := s.sleep(ctx, store.Backoff(attempt)); err != nil {
				return 0, err
			}
		}
	}

	return 0, fmt.Errorf("%w updating %s", ErrRetryBudgetExhausted, s.index.Key())
}

// PruneStatuses deletes upload status documents older than the
// retention window.
func (s *Sweeper) PruneStatuses(ctx context.Context) (int, error) {
	if s.status == nil || s.retentionDays <= 0 {
		return 0, nil
	}

	jobs, err := s.status.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	pruned := 0
	for _, job := range jobs {
		if job.CreatedAt.Before(cutoff) {
			if err := s.status.Delete(ctx, job.JobID); err != nil {
				logger.Warn("failed to prune status doc", "job_id", job.JobID, "error", err.Error())
				continue
			}
			pruned++
		}
	}
	return pruned, nil
}
