package routes

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"recipe-vault-backend/internal/config"
	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/queue"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
	"recipe-vault-backend/services"
	"recipe-vault-backend/utils"
)

// HandleUpload accepts a batch of base64-encoded recipe photos/PDFs,
// stages the raw bytes in the object store, creates the job status
// document and enqueues processing. Returns 202 with a polling URL.
func HandleUpload(cfg *config.Config, objects store.ObjectStore, status *services.StatusService, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.UploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return
		}

		if len(req.Files) == 0 {
			utils.RespondWithBadRequest(c, "No files provided", nil)
			return
		}
		if len(req.Files) > cfg.MaxUploadFiles {
			utils.RespondWithBadRequest(c,
				fmt.Sprintf("Too many files: maximum is %d per upload", cfg.MaxUploadFiles), nil)
			return
		}

		jobID := uuid.NewString()
		ctx := c.Request.Context()

		staged := make([]queue.StagedFile, 0, len(req.Files))
		for i, f := range req.Files {
			data, err := base64.StdEncoding.DecodeString(f.Data)
			if err != nil {
				cleanupStagedFiles(c, objects, staged)
				utils.RespondWithBadRequest(c,
					fmt.Sprintf("File %d is not valid base64", i), nil)
				return
			}
			if len(data) == 0 {
				cleanupStagedFiles(c, objects, staged)
				utils.RespondWithBadRequest(c,
					fmt.Sprintf("File %d is empty", i), nil)
				return
			}
			if int64(len(data)) > cfg.MaxFileSize {
				cleanupStagedFiles(c, objects, staged)
				utils.RespondWithBadRequest(c,
					fmt.Sprintf("File %d exceeds maximum size of %d bytes", i, cfg.MaxFileSize), nil)
				return
			}

			key := fmt.Sprintf("uploads/%s/%d", jobID, i)
			if _, err := objects.Put(ctx, key, data, store.PutOptions{ContentType: f.ContentType}); err != nil {
				cleanupStagedFiles(c, objects, staged)
				utils.RespondWithInternalError(c, "Failed to stage uploaded file", nil)
				return
			}

			staged = append(staged, queue.StagedFile{
				Filename:    f.Filename,
				ContentType: f.ContentType,
				StorageKey:  key,
			})
		}

		if _, err := status.Create(ctx, jobID, len(staged)); err != nil {
			cleanupStagedFiles(c, objects, staged)
			utils.RespondWithInternalError(c, "Failed to create job record", nil)
			return
		}

		task, err := queue.NewUploadProcessTask(jobID, staged)
		if err != nil {
			cleanupStagedFiles(c, objects, staged)
			utils.RespondWithInternalError(c, "Failed to create processing task", nil)
			return
		}

		if _, err := queueClient.Enqueue(task); err != nil {
			cleanupStagedFiles(c, objects, staged)
			utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
			return
		}

		logger.Info("upload accepted", "job_id", jobID, "files", len(staged))
		c.JSON(http.StatusAccepted, models.UploadAccepted{
			JobID:     jobID,
			Status:    models.StatusPending,
			StatusURL: "/upload-status/" + jobID,
			Message:   fmt.Sprintf("Upload accepted: %d file(s) queued for processing", len(staged)),
		})
	}
}

// CheckUploadStatus returns the job status document for polling.
func CheckUploadStatus(status *services.StatusService) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("job_id")

		job, err := status.Get(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithNotFound(c, "Upload job not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to retrieve job status", nil)
			return
		}

		c.JSON(http.StatusOK, job)
	}
}

func cleanupStagedFiles(c *gin.Context, objects store.ObjectStore, staged []queue.StagedFile) {
	for _, f := range staged {
		if err := objects.Delete(c.Request.Context(), f.StorageKey); err != nil {
			logger.Warn("failed to clean up staged file", "key", f.StorageKey, "error", err.Error())
		}
	}
}
