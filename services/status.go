package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
)

// StatusService persists per-job progress documents so clients can
// poll while the worker runs. Each job has exactly one writer, so
// these writes are unconditional.
type StatusService struct {
	store  store.ObjectStore
	prefix string
}

// NewStatusService creates a status writer under the given key prefix.
func NewStatusService(s store.ObjectStore, prefix string) *StatusService {
	return &StatusService{store: s, prefix: prefix}
}

func (s *StatusService) key(jobID string) string {
	return s.prefix + jobID + ".json"
}

// Create writes the initial pending document for a new job.
func (s *StatusService) Create(ctx context.Context, jobID string, totalFiles int) (*models.UploadJob, error) {
	now := time.Now().UTC()
	job := &models.UploadJob{
		JobID:      jobID,
		Status:     models.StatusPending,
		TotalFiles: totalFiles,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.put(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Update overwrites the job document with its current state.
func (s *StatusService) Update(ctx context.Context, job *models.UploadJob) error {
	job.UpdatedAt = time.Now().UTC()
	return s.put(ctx, job)
}

// Get fetches a job document. Missing jobs surface store.ErrNotFound.
func (s *StatusService) Get(ctx context.Context, jobID string) (*models.UploadJob, error) {
	body, _, err := s.store.Get(ctx, s.key(jobID))
	if err != nil {
		return nil, err
	}

	var job models.UploadJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// List returns the stored job IDs with their creation times, oldest
// data included, for retention pruning.
func (s *StatusService) List(ctx context.Context) ([]*models.UploadJob, error) {
	keys, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}

	jobs := make([]*models.UploadJob, 0, len(keys))
	for _, key := range keys {
		body, _, err := s.store.Get(ctx, key)
		if err != nil {
			continue // pruned or unreadable, skip
		}
		var job models.UploadJob
		if err := json.Unmarshal(body, &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Delete removes a job document.
func (s *StatusService) Delete(ctx context.Context, jobID string) error {
	return s.store.Delete(ctx, s.key(jobID))
}

func (s *StatusService) put(ctx context.Context, job *models.UploadJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.JobID, err)
	}
	_, err = s.store.Put(ctx, s.key(job.JobID), body, store.PutOptions{ContentType: "application/json"})
	return err
}
