package models

import "time"

// Upload job status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// UploadJob tracks one asynchronous upload through the pipeline. One
// JSON document per job under the status prefix, written only by the
// worker that owns the job.
type UploadJob struct {
	JobID          string      `json:"job_id"`
	Status         string      `json:"status"`
	TotalFiles     int         `json:"total_files"`
	ProcessedFiles int         `json:"processed_files"`
	RecipeKeys     []string    `json:"recipe_keys,omitempty"`
	Errors         []ItemError `json:"errors,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// UploadFile is one file in an upload request, base64-encoded.
type UploadFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// UploadRequest is the POST /upload body.
type UploadRequest struct {
	Files []UploadFile `json:"files"`
}

// UploadAccepted is the 202 response for an accepted upload job.
type UploadAccepted struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
	Message   string `json:"message"`
}
