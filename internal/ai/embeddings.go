package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	genai "github.com/google/generative-ai-go/genai"

	"recipe-vault-backend/models"
)

// EmbedText returns an embedding vector for the given text.
func (gc *GeminiClient) EmbedText(ctx context.Context, text string) ([]float64, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_text")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.embedModel),
		attribute.Int("gemini.text_chars", len(text)),
	)

	if gc.quota != nil {
		if err := gc.quota.Reserve(ctx); err != nil {
			return nil, err
		}
	}
	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.EmbeddingModel(gc.embedModel)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, fmt.Errorf("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	values := result.([]float32)
	vector := make([]float64, len(values))
	for i, v := range values {
		vector[i] = float64(v)
	}

	span.SetAttributes(attribute.Int("gemini.dimensions", len(vector)))
	return vector, nil
}

// EmbedRecipe embeds a recipe's flattened text representation.
func (gc *GeminiClient) EmbedRecipe(ctx context.Context, recipe models.Recipe) ([]float64, error) {
	return gc.EmbedText(ctx, RecipeToText(recipe))
}

// RecipeToText flattens a recipe to the text that gets embedded: the
// title plus the ingredient amounts, one per line. Ingredients arrive
// in whatever shape the extraction model produced, so all of these
// decode: a bare string, an array, a flat object, or an object with
// nested sections. Object keys are walked in sorted order to keep the
// text stable between runs.
func RecipeToText(recipe models.Recipe) string {
	var ingredients string

	if raw := recipe.Field("Ingredients"); raw != nil {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			ingredients = strings.Join(flattenValues(decoded), "\n")
		}
	}

	return recipe.Title + "\n" + ingredients
}

// flattenValues collects the scalar values of an arbitrarily nested
// JSON structure.
func flattenValues(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, flattenValues(item)...)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var out []string
		for _, k := range keys {
			out = append(out, flattenValues(val[k])...)
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(val)}
	}
}
