package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskProcessUpload = "upload:process"

// StagedFile points at one raw uploaded file parked in the object store
// while the job waits in the queue. Task payloads stay small this way;
// the worker fetches the bytes when it picks the job up.
type StagedFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
}

// UploadProcessPayload is the body of an upload:process task.
type UploadProcessPayload struct {
	JobID string       `json:"job_id"`
	Files []StagedFile `json:"files"`
}

// NewUploadProcessTask creates the task that runs the extraction
// pipeline for one upload job. Retries are low: the pipeline already
// retries conditional writes internally, and re-running a whole job
// re-spends model calls.
func NewUploadProcessTask(jobID string, files []StagedFile) (*asynq.Task, error) {
	payload, err := json.Marshal(UploadProcessPayload{
		JobID: jobID,
		Files: files,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessUpload,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("default"),
	), nil
}
