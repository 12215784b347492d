package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-vault-backend/internal/queue"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
)

// fakeExtractor answers extraction calls from canned tables keyed by
// staged file bytes and recipe title.
type fakeExtractor struct {
	recipes map[string][]models.Recipe // staged body -> extracted recipes
	vectors map[string][]float64       // recipe title -> embedding
	fail    map[string]error           // staged body -> extraction error
}

func (f *fakeExtractor) ExtractRecipes(_ context.Context, imageData []byte, _ string) ([]models.Recipe, error) {
	if err := f.fail[string(imageData)]; err != nil {
		return nil, err
	}
	return f.recipes[string(imageData)], nil
}

func (f *fakeExtractor) ExtractRecipesFromText(_ context.Context, text string) ([]models.Recipe, error) {
	return f.recipes[text], nil
}

func (f *fakeExtractor) ExtractRecipesFromPDF(_ context.Context, pdfData []byte) ([]models.Recipe, error) {
	return f.recipes[string(pdfData)], nil
}

func (f *fakeExtractor) ConsolidateRecipes(_ context.Context, pages []models.Recipe) ([]models.Recipe, error) {
	return pages, nil
}

func (f *fakeExtractor) EmbedRecipe(_ context.Context, recipe models.Recipe) ([]float64, error) {
	vector, ok := f.vectors[recipe.Title]
	if !ok {
		return nil, errors.New("no embedding for title")
	}
	return vector, nil
}

type fakeImageFinder struct {
	results map[string][]string
}

func (f *fakeImageFinder) SearchImages(_ context.Context, title string, _ int, _ string) []string {
	return f.results[title]
}

type pipelineFixture struct {
	objects  *store.MemoryStore
	status   *StatusService
	catalog  *store.VersionedStore[models.Recipe]
	index    *store.VersionedStore[[]float64]
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, extractor Extractor, images ImageFinder) *pipelineFixture {
	t.Helper()

	objects := store.NewMemoryStore()
	status := NewStatusService(objects, "upload-status/")
	catalog := store.NewVersionedStore[models.Recipe](objects, testCatalogKey)
	index := store.NewVersionedStore[[]float64](objects, testIndexKey)

	writer := NewCatalogWriter(catalog, 3, nil)
	writer.sleep = func(context.Context, time.Duration) error { return nil }
	embeddings := NewEmbeddingStore(index, 3)
	embeddings.sleep = func(context.Context, time.Duration) error { return nil }
	detector := NewDuplicateDetector(0.85)

	return &pipelineFixture{
		objects: objects,
		status:  status,
		catalog: catalog,
		index:   index,
		pipeline: NewPipeline(
			objects, status, extractor, NewPDFService(30), images,
			writer, catalog, embeddings, detector, nil,
		),
	}
}

// stage parks file bytes in the object store and returns the payload
// entry, the way the upload handler does before enqueueing.
func (fx *pipelineFixture) stage(t *testing.T, jobID, filename, contentType string, body []byte, n int) queue.StagedFile {
	t.Helper()
	key := "uploads/" + jobID + "/" + string(rune('0'+n))
	_, err := fx.objects.Put(context.Background(), key, body, store.PutOptions{ContentType: contentType})
	require.NoError(t, err)
	return queue.StagedFile{Filename: filename, ContentType: contentType, StorageKey: key}
}

func uploadTask(t *testing.T, jobID string, files []queue.StagedFile) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.UploadProcessPayload{JobID: jobID, Files: files})
	require.NoError(t, err)
	return asynq.NewTask(queue.TaskProcessUpload, payload)
}

func TestProcessUploadCommitsExtractedRecipes(t *testing.T) {
	extractor := &fakeExtractor{
		recipes: map[string][]models.Recipe{
			"photo-a": {{Title: "Tomato Soup"}},
			"photo-b": {{Title: "Garlic Bread"}},
		},
		vectors: map[string][]float64{
			"Tomato Soup":  {1, 0, 0},
			"Garlic Bread": {0, 1, 0},
		},
	}
	images := &fakeImageFinder{results: map[string][]string{
		"Tomato Soup": {"https://img/soup.jpg"},
	}}
	fx := newPipelineFixture(t, extractor, images)

	files := []queue.StagedFile{
		fx.stage(t, "job-1", "a.jpg", "image/jpeg", []byte("photo-a"), 0),
		fx.stage(t, "job-1", "b.jpg", "image/jpeg", []byte("photo-b"), 1),
	}
	_, err := fx.status.Create(context.Background(), "job-1", len(files))
	require.NoError(t, err)

	require.NoError(t, fx.pipeline.ProcessUpload(context.Background(), uploadTask(t, "job-1", files)))

	job, err := fx.status.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, 2, job.ProcessedFiles)
	assert.Len(t, job.RecipeKeys, 2)
	assert.Empty(t, job.Errors)

	catalog, _, err := fx.catalog.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 2)

	titles := make(map[string][]string)
	for _, r := range catalog {
		titles[r.Title] = r.ImageSearchResults
	}
	assert.Equal(t, []string{"https://img/soup.jpg"}, titles["Tomato Soup"])
	assert.Empty(t, titles["Garlic Bread"])

	index, _, err := fx.index.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, index, 2, "embeddings merged for each committed recipe")

	// Staged bytes were cleaned up after commit.
	for _, f := range files {
		_, _, err := fx.objects.Get(context.Background(), f.StorageKey)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
}

func TestProcessUploadRejectsEmbeddingDuplicate(t *testing.T) {
	extractor := &fakeExtractor{
		recipes: map[string][]models.Recipe{
			"photo": {{Title: "Tomato Soup Again"}},
		},
		vectors: map[string][]float64{
			"Tomato Soup Again": {1, 0, 0},
		},
	}
	fx := newPipelineFixture(t, extractor, nil)

	// Existing catalog entry with a near-identical embedding.
	seedCatalog(t, fx.catalog, map[string]models.Recipe{
		"1": {Key: "1", Title: "Tomato Soup"},
	})
	saved, err := fx.index.Save(context.Background(), map[string][]float64{
		"1": {1, 0, 0},
	}, "")
	require.NoError(t, err)
	require.True(t, saved)

	files := []queue.StagedFile{fx.stage(t, "job-2", "a.jpg", "image/jpeg", []byte("photo"), 0)}
	_, err = fx.status.Create(context.Background(), "job-2", 1)
	require.NoError(t, err)

	require.NoError(t, fx.pipeline.ProcessUpload(context.Background(), uploadTask(t, "job-2", files)))

	job, err := fx.status.Get(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Empty(t, job.RecipeKeys)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, 0, job.Errors[0].File)
	assert.Contains(t, job.Errors[0].Reason, "Duplicate of Tomato Soup")
	assert.Contains(t, job.Errors[0].Reason, "1.00")

	catalog, _, err := fx.catalog.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, catalog, 1, "nothing new committed")
}

func TestProcessUploadFailedFileIsSoftError(t *testing.T) {
	extractor := &fakeExtractor{
		recipes: map[string][]models.Recipe{
			"good": {{Title: "Pancakes"}},
		},
		vectors: map[string][]float64{
			"Pancakes": {0, 0, 1},
		},
		fail: map[string]error{
			"bad": errors.New("model refused the image"),
		},
	}
	fx := newPipelineFixture(t, extractor, nil)

	files := []queue.StagedFile{
		fx.stage(t, "job-3", "bad.jpg", "image/jpeg", []byte("bad"), 0),
		fx.stage(t, "job-3", "good.jpg", "image/jpeg", []byte("good"), 1),
	}
	_, err := fx.status.Create(context.Background(), "job-3", len(files))
	require.NoError(t, err)

	require.NoError(t, fx.pipeline.ProcessUpload(context.Background(), uploadTask(t, "job-3", files)))

	job, err := fx.status.Get(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Len(t, job.RecipeKeys, 1)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, 0, job.Errors[0].File)
	assert.Contains(t, job.Errors[0].Reason, "model refused the image")
}

func TestProcessUploadMalformedPayloadSkipsRetry(t *testing.T) {
	fx := newPipelineFixture(t, &fakeExtractor{}, nil)

	task := asynq.NewTask(queue.TaskProcessUpload, []byte("{not json"))
	err := fx.pipeline.ProcessUpload(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessUploadMissingStatusDocIsRebuilt(t *testing.T) {
	extractor := &fakeExtractor{
		recipes: map[string][]models.Recipe{"photo": {{Title: "Stew"}}},
		vectors: map[string][]float64{"Stew": {0.5, 0.5}},
	}
	fx := newPipelineFixture(t, extractor, nil)

	// No Create call: the status document never made it to the store.
	files := []queue.StagedFile{fx.stage(t, "job-4", "a.jpg", "image/jpeg", []byte("photo"), 0)}

	require.NoError(t, fx.pipeline.ProcessUpload(context.Background(), uploadTask(t, "job-4", files)))

	job, err := fx.status.Get(context.Background(), "job-4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Len(t, job.RecipeKeys, 1)
}
