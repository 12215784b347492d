package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/internal/queue"
	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/internal/telemetry"
	"recipe-vault-backend/models"
)

// Extractor is the slice of the AI client the pipeline needs.
type Extractor interface {
	ExtractRecipes(ctx context.Context, imageData []byte, mimeType string) ([]models.Recipe, error)
	ExtractRecipesFromText(ctx context.Context, text string) ([]models.Recipe, error)
	ExtractRecipesFromPDF(ctx context.Context, pdfData []byte) ([]models.Recipe, error)
	ConsolidateRecipes(ctx context.Context, pages []models.Recipe) ([]models.Recipe, error)
	EmbedRecipe(ctx context.Context, recipe models.Recipe) ([]float64, error)
}

// ImageFinder searches candidate images for a recipe title. Nil is a
// valid finder: recipes then go in without image candidates.
type ImageFinder interface {
	SearchImages(ctx context.Context, title string, count int, recipeType string) []string
}

// Pipeline turns one staged upload job into committed catalog entries:
// extract per file, embed and dedupe, search images, batch-write, merge
// embeddings, finalize the status document. Per-file and per-recipe
// failures become job errors; only store faults fail the whole job.
type Pipeline struct {
	objects     store.ObjectStore
	status      *StatusService
	extractor   Extractor
	pdf         *PDFService
	images      ImageFinder
	writer      *CatalogWriter
	catalog     *store.VersionedStore[models.Recipe]
	embeddings  *EmbeddingStore
	detector    *DuplicateDetector
	metrics     *telemetry.Metrics
	concurrency int
}

// NewPipeline wires the upload pipeline. images and metrics may be nil.
func NewPipeline(
	objects store.ObjectStore,
	status *StatusService,
	extractor Extractor,
	pdf *PDFService,
	images ImageFinder,
	writer *CatalogWriter,
	catalog *store.VersionedStore[models.Recipe],
	embeddings *EmbeddingStore,
	detector *DuplicateDetector,
	metrics *telemetry.Metrics,
) *Pipeline {
	return &Pipeline{
		objects:     objects,
		status:      status,
		extractor:   extractor,
		pdf:         pdf,
		images:      images,
		writer:      writer,
		catalog:     catalog,
		embeddings:  embeddings,
		detector:    detector,
		metrics:     metrics,
		concurrency: 3,
	}
}

// ProcessUpload is the asynq handler for upload:process tasks.
func (p *Pipeline) ProcessUpload(ctx context.Context, t *asynq.Task) error {
	var payload queue.UploadProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal upload payload: %w", asynq.SkipRetry)
	}

	job, err := p.status.Get(ctx, payload.JobID)
	if err != nil {
		// Status doc missing or unreadable; rebuild from the payload so
		// the client still gets a terminal state.
		job = &models.UploadJob{
			JobID:      payload.JobID,
			TotalFiles: len(payload.Files),
			CreatedAt:  time.Now().UTC(),
		}
	}
	job.Status = models.StatusProcessing
	if err := p.status.Update(ctx, job); err != nil {
		return err
	}

	extracted, fileErrs := p.extractAll(ctx, job, payload.Files)
	job.Errors = append(job.Errors, fileErrs...)

	committed, itemErrs, err := p.commit(ctx, payload.Files, extracted)
	if err != nil {
		job.Status = models.StatusFailed
		job.Error = err.Error()
		if uerr := p.status.Update(ctx, job); uerr != nil {
			logger.Error("failed to finalize job status", "job_id", job.JobID, "error", uerr.Error())
		}
		return err
	}
	job.Errors = append(job.Errors, itemErrs...)
	job.RecipeKeys = committed

	p.cleanupStaged(ctx, payload.Files)

	job.Status = models.StatusCompleted
	if err := p.status.Update(ctx, job); err != nil {
		return err
	}

	logger.Info("upload job completed",
		"job_id", job.JobID,
		"files", len(payload.Files),
		"committed", len(committed),
		"errors", len(job.Errors))
	return nil
}

// fileRecipes holds the extraction output of one staged file, keyed by
// its position in the upload.
type fileRecipes struct {
	file    int
	recipes []models.Recipe
}

// extractAll runs extraction across the staged files with bounded
// parallelism. Failed files become job errors, never job failures.
func (p *Pipeline) extractAll(ctx context.Context, job *models.UploadJob, files []queue.StagedFile) ([]fileRecipes, []models.ItemError) {
	var (
		mu      sync.Mutex
		results = make([][]models.Recipe, len(files))
		errs    []models.ItemError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, f := range files {
		g.Go(func() error {
			start := time.Now()
			recipes, err := p.extractFile(gctx, f)

			mu.Lock()
			defer mu.Unlock()

			job.ProcessedFiles++
			if err != nil {
				errs = append(errs, models.ItemError{File: i, Reason: err.Error()})
				logger.Warn("file extraction failed", "job_id", job.JobID, "file", f.Filename, "error", err.Error())
			} else {
				results[i] = recipes
			}
			if p.metrics != nil {
				status := "success"
				if err != nil {
					status = "error"
				}
				p.metrics.RecordExtraction(time.Since(start).Seconds(), fileKind(f), status)
			}
			// Progress updates are best effort; the terminal update wins.
			if uerr := p.status.Update(gctx, job); uerr != nil {
				logger.Warn("progress update failed", "job_id", job.JobID, "error", uerr.Error())
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []fileRecipes
	for i, recipes := range results {
		if len(recipes) > 0 {
			out = append(out, fileRecipes{file: i, recipes: recipes})
		}
	}
	return out, errs
}

// extractFile turns one staged file into recipes. PDFs go text-first;
// a sparse or garbled text layer falls back to vision extraction with a
// consolidation pass over the fragments.
func (p *Pipeline) extractFile(ctx context.Context, f queue.StagedFile) ([]models.Recipe, error) {
	body, _, err := p.objects.Get(ctx, f.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("staged file unavailable: %w", err)
	}

	if !isPDF(f) {
		return p.extractor.ExtractRecipes(ctx, body, f.ContentType)
	}

	pages, err := p.pdf.ExtractPages(body)
	if err != nil {
		return nil, err
	}
	if UsableText(pages) {
		var text strings.Builder
		for _, page := range pages {
			text.WriteString(page.Text)
			text.WriteString("\n")
		}
		return p.extractor.ExtractRecipesFromText(ctx, text.String())
	}

	recipes, err := p.extractor.ExtractRecipesFromPDF(ctx, body)
	if err != nil {
		return nil, err
	}
	return p.extractor.ConsolidateRecipes(ctx, recipes)
}

// commit runs the dedup, image-search and batch-write stages, then
// merges embeddings for whatever landed. Returns the committed keys
// and the soft errors collected along the way.
func (p *Pipeline) commit(ctx context.Context, files []queue.StagedFile, extracted []fileRecipes) ([]string, []models.ItemError, error) {
	var itemErrs []models.ItemError

	catalog, _, err := p.catalog.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	index, err := p.embeddings.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	usedImages := ExtractUsedImageURLs(catalog)

	var (
		candidates []models.Candidate
		candFiles  []int       // candidate position -> file position
		candVecs   [][]float64 // candidate position -> embedding
	)

	for _, fr := range extracted {
		for _, recipe := range fr.recipes {
			vector, err := p.extractor.EmbedRecipe(ctx, recipe)
			if err != nil {
				itemErrs = append(itemErrs, models.ItemError{
					File:   fr.file,
					Reason: fmt.Sprintf("embedding failed for %q: %v", recipe.Title, err),
				})
				continue
			}

			dup, matchKey, score, err := p.detector.Check(vector, index)
			if err != nil {
				itemErrs = append(itemErrs, models.ItemError{
					File:   fr.file,
					Reason: fmt.Sprintf("duplicate check failed for %q: %v", recipe.Title, err),
				})
				continue
			}
			if dup {
				matchTitle := matchKey
				if match, ok := catalog[matchKey]; ok && match.Title != "" {
					matchTitle = match.Title
				}
				itemErrs = append(itemErrs, models.ItemError{
					File:   fr.file,
					Reason: fmt.Sprintf("Duplicate of %s (similarity %.2f)", matchTitle, score),
				})
				if p.metrics != nil {
					p.metrics.RecordDuplicateRejected("embedding")
				}
				continue
			}

			var refs []string
			if p.images != nil && recipe.ImageURL == "" {
				found := p.images.SearchImages(ctx, recipe.Title, 10, fieldString(recipe.Field("Type")))
				refs = rotateUniqueFirst(found, usedImages)
			}

			candidates = append(candidates, models.Candidate{Recipe: recipe, ImageRefs: refs})
			candFiles = append(candFiles, fr.file)
			candVecs = append(candVecs, vector)
		}
	}

	if len(candidates) == 0 {
		return nil, itemErrs, nil
	}

	result, err := p.writer.BatchWrite(ctx, candidates)
	if err != nil {
		return nil, nil, err
	}

	// Writer errors index into the candidate slice; clients want file
	// positions.
	for _, ie := range result.Errors {
		itemErrs = append(itemErrs, models.ItemError{File: candFiles[ie.File], Reason: ie.Reason})
	}

	vectors := make(map[string][]float64, len(result.PositionToKey))
	for pos, key := range result.PositionToKey {
		vectors[key] = candVecs[pos]
	}
	if err := p.embeddings.AddEmbeddings(ctx, vectors); err != nil {
		// The recipes are committed; a missing index entry only weakens
		// future duplicate detection. Accepted gap, not a job failure.
		logger.Error("embedding index merge failed", "error", err.Error(), "keys", len(vectors))
	}

	return result.CommittedKeys, itemErrs, nil
}

// cleanupStaged removes the raw upload bytes once the job is done with
// them. Best effort.
func (p *Pipeline) cleanupStaged(ctx context.Context, files []queue.StagedFile) {
	for _, f := range files {
		if err := p.objects.Delete(ctx, f.StorageKey); err != nil {
			logger.Warn("failed to delete staged file", "key", f.StorageKey, "error", err.Error())
		}
	}
}

// rotateUniqueFirst moves the first not-yet-used candidate URL to the
// front and marks it used, so picker defaults don't collide across
// recipes in the same batch or with the existing catalog.
func rotateUniqueFirst(results []string, used map[string]bool) []string {
	if len(results) == 0 {
		return results
	}

	pick := SelectUniqueImageURL(results, used)
	used[pick] = true
	if pick == results[0] {
		return results
	}

	out := make([]string, 0, len(results))
	out = append(out, pick)
	for _, r := range results {
		if r != pick {
			out = append(out, r)
		}
	}
	return out
}

func isPDF(f queue.StagedFile) bool {
	return strings.Contains(strings.ToLower(f.ContentType), "pdf") ||
		strings.HasSuffix(strings.ToLower(f.Filename), ".pdf")
}

func fileKind(f queue.StagedFile) string {
	if isPDF(f) {
		return "pdf"
	}
	return "image"
}
