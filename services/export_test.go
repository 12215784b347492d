package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
)

func newTestExportService(t *testing.T) *ExportService {
	t.Helper()

	objects := store.NewMemoryStore()
	catalog := store.NewVersionedStore[models.Recipe](objects, testCatalogKey)
	seedCatalog(t, catalog, map[string]models.Recipe{
		"1": {
			Key:        "1",
			Title:      "Tomato Soup",
			UploadedAt: "2026-01-02T03:04:05Z",
			ImageURL:   "https://img/soup.jpg",
			Extra: map[string]json.RawMessage{
				"Servings":    json.RawMessage(`4`),
				"Ingredients": json.RawMessage(`{"tomatoes": "1 kg", "salt": "to taste"}`),
				"Directions":  json.RawMessage(`["Chop tomatoes.", "Simmer."]`),
			},
		},
		"2": {Key: "2", Title: "Garlic Bread"},
	})
	return NewExportService(catalog)
}

func TestExportJSON(t *testing.T) {
	es := newTestExportService(t)

	result, err := es.Export(context.Background(), "json")
	require.NoError(t, err)

	assert.Equal(t, "application/json", result.ContentType)
	assert.Contains(t, result.Filename, ".json")
	assert.Equal(t, 2, result.RecordCount)

	var payload struct {
		ExportInfo struct {
			TotalRecords int    `json:"total_records"`
			Format       string `json:"format"`
		} `json:"export_info"`
		Recipes map[string]models.Recipe `json:"recipes"`
	}
	require.NoError(t, json.Unmarshal(result.Data, &payload))
	assert.Equal(t, 2, payload.ExportInfo.TotalRecords)
	assert.Equal(t, "json", payload.ExportInfo.Format)
	assert.Equal(t, "Tomato Soup", payload.Recipes["1"].Title)
}

func TestExportExcel(t *testing.T) {
	es := newTestExportService(t)

	result, err := es.Export(context.Background(), "excel")
	require.NoError(t, err)

	assert.Contains(t, result.Filename, ".xlsx")
	assert.Equal(t, 2, result.RecordCount)
	// XLSX files are ZIP containers.
	assert.True(t, bytes.HasPrefix(result.Data, []byte("PK")))
}

func TestExportBothIsZipWithEntries(t *testing.T) {
	es := newTestExportService(t)

	result, err := es.Export(context.Background(), "both")
	require.NoError(t, err)
	assert.Equal(t, "application/zip", result.ContentType)

	reader, err := zip.NewReader(bytes.NewReader(result.Data), int64(len(result.Data)))
	require.NoError(t, err)

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"recipes_export.json", "recipes_export.xlsx"}, names)
}

func TestExportUnsupportedFormat(t *testing.T) {
	es := newTestExportService(t)

	_, err := es.Export(context.Background(), "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestSortedRecipeKeys(t *testing.T) {
	catalog := map[string]models.Recipe{
		"10":     {},
		"2":      {},
		"1":      {},
		"legacy": {},
	}
	assert.Equal(t, []string{"1", "2", "10", "legacy"}, sortedRecipeKeys(catalog))
}

func TestFieldString(t *testing.T) {
	assert.Equal(t, "", fieldString(nil))
	assert.Equal(t, "hello", fieldString(json.RawMessage(`"hello"`)))
	assert.Equal(t, "4", fieldString(json.RawMessage(`4`)))
	assert.Equal(t, "4.5", fieldString(json.RawMessage(`4.5`)))
	assert.Equal(t, "", fieldString(json.RawMessage(`null`)))
}

func TestFlattenIngredients(t *testing.T) {
	t.Run("flat object", func(t *testing.T) {
		out := flattenIngredients(json.RawMessage(`{"salt": "to taste", "tomatoes": "1 kg"}`))
		assert.Equal(t, "salt: to taste\ntomatoes: 1 kg", out)
	})

	t.Run("sectioned object", func(t *testing.T) {
		out := flattenIngredients(json.RawMessage(`{"Sauce": {"basil": "a handful"}}`))
		assert.Equal(t, "Sauce - basil: a handful", out)
	})

	t.Run("legacy array", func(t *testing.T) {
		out := flattenIngredients(json.RawMessage(`["salt", "pepper"]`))
		assert.Equal(t, "salt\npepper", out)
	})

	t.Run("absent", func(t *testing.T) {
		assert.Equal(t, "", flattenIngredients(nil))
	})
}

func TestFlattenDirections(t *testing.T) {
	out := flattenDirections(json.RawMessage(`["Chop.", "Simmer."]`))
	assert.Equal(t, "1. Chop.\n2. Simmer.", out)

	assert.Equal(t, "Just mix.", flattenDirections(json.RawMessage(`"Just mix."`)))
	assert.Equal(t, "", flattenDirections(nil))
}
