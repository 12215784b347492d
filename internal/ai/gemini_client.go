package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"recipe-vault-backend/internal/config"
	"recipe-vault-backend/internal/telemetry"
	"recipe-vault-backend/models"
)

const extractionPrompt = `You are an OCR-like data extraction tool that extracts recipe data from images of recipes.

1. Extract the data from the provided image and output it as JSON. Keep all keys and values in the original language.

2. The JSON output for each recipe has five main parts: Title, Servings, Ingredients, Directions, and Description.

3. The Title is the name of the recipe.

4. Extract or infer the number of servings. If explicitly stated, use that number. If a yield is given ("24 cookies"), estimate servings from it. Default to 4 only when there is no context. Always return an integer in "Servings", never null.

5. Ingredients MUST be objects (key-value pairs mapping ingredient to amount), NOT arrays. Sectioned recipes may nest one level: {"Section Name": {"ingredient": "amount"}}.

6. Directions is an array of strings. The Description can include cooking tips or a general description, or be empty.

7. If the image contains multiple recipes, return {"recipes": [...]} with each recipe grouped separately. Otherwise return the single recipe object.

Return only JSON.`

const textExtractionPrompt = `You are a data extraction tool that turns raw recipe text into structured JSON. Keep all keys and values in the original language.

The JSON output for each recipe has five main parts: Title, Servings, Ingredients, Directions, and Description. Ingredients MUST be objects mapping ingredient to amount (one nested section level allowed), never arrays. Servings is always an integer, inferred when not explicit. If the text contains multiple recipes, return {"recipes": [...]}; otherwise return the single recipe object.

Return only JSON.`

const consolidationPrompt = `You are an expert data editor specializing in recipe data normalization. You receive a JSON array of page-level recipe extractions from one document.

1. Keep all keys and values in their original language; never translate.
2. Merge extractions that are pieces of the same recipe; keep distinct recipes as separate entries.
3. Preserve nested structures under Ingredients and Directions.
4. Fold tips or comments into the Description.
5. A recipe must have at least a Title plus Ingredients or Directions; discard entries that don't.
6. Return {"recipes": [...]} containing the consolidated recipes, and nothing else.`

// GeminiClient wraps the Gemini API with a circuit breaker, a
// client-side rate limiter and an optional shared daily quota, so a
// burst of uploads degrades gracefully instead of hammering the API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	embedModel  string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	quota       *QuotaGuard
	metrics     *telemetry.Metrics
}

// NewGeminiClient creates a client from config. quota and metrics may
// be nil.
func NewGeminiClient(ctx context.Context, cfg *config.Config, quota *QuotaGuard, metrics *telemetry.Metrics) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	gc := &GeminiClient{
		client:     client,
		model:      cfg.GeminiModel,
		embedModel: cfg.GeminiEmbedModel,
		quota:      quota,
		metrics:    metrics,
	}

	gc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	rpm := cfg.AIRequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	gc.rateLimiter = rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), burst)

	return gc, nil
}

// ExtractRecipes runs vision extraction on one image and returns the
// recipes it contains.
func (gc *GeminiClient) ExtractRecipes(ctx context.Context, imageData []byte, mimeType string) ([]models.Recipe, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.extract_recipes")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.model),
		attribute.Int("gemini.image_bytes", len(imageData)),
	)

	text, err := gc.generate(ctx, genai.Text(extractionPrompt), genai.Blob{MIMEType: mimeType, Data: imageData})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	recipes, err := parseRecipesJSON(text)
	if err != nil {
		return nil, fmt.Errorf("extraction returned unparseable JSON: %w", err)
	}
	span.SetAttributes(attribute.Int("gemini.recipes", len(recipes)))
	return recipes, nil
}

// ExtractRecipesFromText structures raw text (PDF extraction output)
// into recipes.
func (gc *GeminiClient) ExtractRecipesFromText(ctx context.Context, text string) ([]models.Recipe, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.extract_recipes_from_text")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.model),
		attribute.Int("gemini.text_chars", len(text)),
	)

	out, err := gc.generate(ctx, genai.Text(textExtractionPrompt), genai.Text(text))
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	recipes, err := parseRecipesJSON(out)
	if err != nil {
		return nil, fmt.Errorf("text extraction returned unparseable JSON: %w", err)
	}
	span.SetAttributes(attribute.Int("gemini.recipes", len(recipes)))
	return recipes, nil
}

// ExtractRecipesFromPDF extracts recipes from a scanned PDF by
// uploading it through the Files API and letting the vision model read
// the pages. Used when the PDF has no usable text layer.
func (gc *GeminiClient) ExtractRecipesFromPDF(ctx context.Context, pdfData []byte) ([]models.Recipe, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.extract_recipes_from_pdf")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.model),
		attribute.Int("gemini.pdf_bytes", len(pdfData)),
	)

	file, err := gc.client.UploadFile(ctx, "", bytes.NewReader(pdfData), &genai.UploadFileOptions{
		MIMEType: "application/pdf",
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, fmt.Errorf("failed to upload PDF: %w", err)
	}
	defer func() {
		if delErr := gc.client.DeleteFile(context.WithoutCancel(ctx), file.Name); delErr != nil {
			log.Printf("⚠️ Failed to delete uploaded file %s: %v", file.Name, delErr)
		}
	}()

	// The Files API processes uploads asynchronously; poll briefly
	// until the file is usable.
	for attempt := 0; file.State == genai.FileStateProcessing && attempt < 30; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
		file, err = gc.client.GetFile(ctx, file.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to check uploaded file state: %w", err)
		}
	}
	if file.State != genai.FileStateActive {
		return nil, fmt.Errorf("uploaded file never became active (state %v)", file.State)
	}

	text, err := gc.generate(ctx, genai.Text(extractionPrompt), genai.FileData{MIMEType: "application/pdf", URI: file.URI})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	recipes, err := parseRecipesJSON(text)
	if err != nil {
		return nil, fmt.Errorf("PDF extraction returned unparseable JSON: %w", err)
	}
	span.SetAttributes(attribute.Int("gemini.recipes", len(recipes)))
	return recipes, nil
}

// ConsolidateRecipes merges per-page extractions of one document into
// its final recipes.
func (gc *GeminiClient) ConsolidateRecipes(ctx context.Context, pages []models.Recipe) ([]models.Recipe, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	if len(pages) == 1 {
		return pages, nil
	}

	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.consolidate_recipes")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.model),
		attribute.Int("gemini.pages", len(pages)),
	)

	payload, err := json.Marshal(pages)
	if err != nil {
		return nil, err
	}

	out, err := gc.generate(ctx, genai.Text(consolidationPrompt), genai.Text(string(payload)))
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	recipes, err := parseRecipesJSON(out)
	if err != nil {
		return nil, fmt.Errorf("consolidation returned unparseable JSON: %w", err)
	}
	span.SetAttributes(attribute.Int("gemini.recipes", len(recipes)))
	return recipes, nil
}

// generate runs one model call through the quota, rate limiter and
// circuit breaker.
func (gc *GeminiClient) generate(ctx context.Context, parts ...genai.Part) (string, error) {
	if gc.quota != nil {
		if err := gc.quota.Reserve(ctx); err != nil {
			return "", err
		}
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(0)
		model.ResponseMIMEType = "application/json"

		resp, err := model.GenerateContent(ctx, parts...)
		if err != nil {
			return nil, err
		}

		if gc.metrics != nil {
			gc.metrics.RecordTokensUsed(extractTokenUsage(resp), gc.model)
		}

		return resp, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return "", fmt.Errorf("gemini temporarily unavailable: %w", err)
		}
		return "", err
	}

	return responseText(result.(*genai.GenerateContentResponse)), nil
}

// responseText concatenates the text parts of a response.
func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

// extractTokenUsage pulls actual usage from response metadata, with a
// rough 4-chars-per-token estimate as fallback.
func extractTokenUsage(resp *genai.GenerateContentResponse) int64 {
	if resp.UsageMetadata != nil {
		return int64(resp.UsageMetadata.TotalTokenCount)
	}

	estimated := int64(len(responseText(resp)) / 4)
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// parseRecipesJSON decodes model output into recipes. Accepts a bare
// recipe object, {"recipes": [...]}, or a raw array, with or without
// markdown fences. Entries without a Title plus Ingredients or
// Directions are discarded.
func parseRecipesJSON(text string) ([]models.Recipe, error) {
	cleaned := stripFences(text)
	if cleaned == "" {
		return nil, fmt.Errorf("empty model output")
	}

	var all []models.Recipe

	switch cleaned[0] {
	case '[':
		if err := json.Unmarshal([]byte(cleaned), &all); err != nil {
			return nil, err
		}
	default:
		var wrapper struct {
			Recipes []models.Recipe `json:"recipes"`
		}
		if err := json.Unmarshal([]byte(cleaned), &wrapper); err == nil && len(wrapper.Recipes) > 0 {
			all = wrapper.Recipes
			break
		}
		var single models.Recipe
		if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
			return nil, err
		}
		all = []models.Recipe{single}
	}

	var recipes []models.Recipe
	for _, r := range all {
		if models.NormalizeTitle(r.Title) == "" {
			continue
		}
		if r.Field("Ingredients") == nil && r.Field("Directions") == nil {
			continue
		}
		recipes = append(recipes, r)
	}

	return recipes, nil
}

// stripFences removes a markdown code fence if the model wrapped its
// JSON in one.
func stripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}

// Close releases the underlying API client.
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
