package routes

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-vault-backend/internal/config"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
	"recipe-vault-backend/services"
)

func uploadTestConfig() *config.Config {
	return &config.Config{
		MaxUploadFiles: 2,
		MaxFileSize:    1024,
	}
}

// Validation failures never reach the queue, so a nil client is safe
// for these cases.
func newUploadRouter(objects store.ObjectStore, status *services.StatusService) *gin.Engine {
	router := gin.New()
	router.POST("/upload", HandleUpload(uploadTestConfig(), objects, status, nil))
	return router
}

func postUpload(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHandleUploadRejectsEmptyBatch(t *testing.T) {
	objects := store.NewMemoryStore()
	router := newUploadRouter(objects, services.NewStatusService(objects, "upload-status/"))

	w := postUpload(router, `{"files": []}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No files provided")
}

func TestHandleUploadRejectsTooManyFiles(t *testing.T) {
	objects := store.NewMemoryStore()
	router := newUploadRouter(objects, services.NewStatusService(objects, "upload-status/"))

	file := fmt.Sprintf(`{"filename": "a.jpg", "content_type": "image/jpeg", "data": %q}`,
		base64.StdEncoding.EncodeToString([]byte("x")))
	w := postUpload(router, fmt.Sprintf(`{"files": [%s, %s, %s]}`, file, file, file))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "maximum is 2")
}

func TestHandleUploadRejectsInvalidBase64(t *testing.T) {
	objects := store.NewMemoryStore()
	router := newUploadRouter(objects, services.NewStatusService(objects, "upload-status/"))

	w := postUpload(router, `{"files": [{"filename": "a.jpg", "content_type": "image/jpeg", "data": "!!not-base64!!"}]}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not valid base64")
}

func TestHandleUploadRejectsOversizedFile(t *testing.T) {
	objects := store.NewMemoryStore()
	router := newUploadRouter(objects, services.NewStatusService(objects, "upload-status/"))

	big := base64.StdEncoding.EncodeToString(make([]byte, 2048))
	w := postUpload(router, fmt.Sprintf(
		`{"files": [{"filename": "a.jpg", "content_type": "image/jpeg", "data": %q}]}`, big))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds maximum size")

	// Nothing left staged after the rejection.
	keys, err := objects.List(context.Background(), "uploads/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCheckUploadStatus(t *testing.T) {
	objects := store.NewMemoryStore()
	status := services.NewStatusService(objects, "upload-status/")

	job, err := status.Create(context.Background(), "job-1", 2)
	require.NoError(t, err)
	job.Status = models.StatusProcessing
	job.ProcessedFiles = 1
	require.NoError(t, status.Update(context.Background(), job))

	router := gin.New()
	router.GET("/upload-status/:job_id", CheckUploadStatus(status))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/upload-status/job-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got models.UploadJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Equal(t, 1, got.ProcessedFiles)
	assert.Equal(t, 2, got.TotalFiles)
}

func TestCheckUploadStatusUnknownJob(t *testing.T) {
	objects := store.NewMemoryStore()
	status := services.NewStatusService(objects, "upload-status/")

	router := gin.New()
	router.GET("/upload-status/:job_id", CheckUploadStatus(status))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/upload-status/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Upload job not found")
}
