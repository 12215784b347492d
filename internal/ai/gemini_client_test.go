package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-vault-backend/models"
)

func TestParseRecipesJSON(t *testing.T) {
	t.Run("single recipe object", func(t *testing.T) {
		recipes, err := parseRecipesJSON(`{"Title": "Pho", "Ingredients": {"broth": "2 l"}}`)
		require.NoError(t, err)
		require.Len(t, recipes, 1)
		assert.Equal(t, "Pho", recipes[0].Title)
	})

	t.Run("recipes wrapper", func(t *testing.T) {
		recipes, err := parseRecipesJSON(`{"recipes": [
			{"Title": "Pho", "Ingredients": {"broth": "2 l"}},
			{"Title": "Banh Mi", "Directions": ["Assemble."]}
		]}`)
		require.NoError(t, err)
		assert.Len(t, recipes, 2)
	})

	t.Run("raw array", func(t *testing.T) {
		recipes, err := parseRecipesJSON(`[{"Title": "Pho", "Directions": ["Simmer."]}]`)
		require.NoError(t, err)
		assert.Len(t, recipes, 1)
	})

	t.Run("markdown fenced output", func(t *testing.T) {
		recipes, err := parseRecipesJSON("```json\n{\"Title\": \"Pho\", \"Ingredients\": {\"broth\": \"2 l\"}}\n```")
		require.NoError(t, err)
		assert.Len(t, recipes, 1)
	})

	t.Run("entries without substance are discarded", func(t *testing.T) {
		recipes, err := parseRecipesJSON(`{"recipes": [
			{"Title": "Pho", "Ingredients": {"broth": "2 l"}},
			{"Title": "  "},
			{"Title": "Bare Title"}
		]}`)
		require.NoError(t, err)
		require.Len(t, recipes, 1)
		assert.Equal(t, "Pho", recipes[0].Title)
	})

	t.Run("empty output", func(t *testing.T) {
		_, err := parseRecipesJSON("")
		require.Error(t, err)
	})

	t.Run("garbage output", func(t *testing.T) {
		_, err := parseRecipesJSON("I could not find any recipes.")
		require.Error(t, err)
	})
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, stripFences("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripFences("```\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripFences(`{"a": 1}`))
	assert.Equal(t, "", stripFences("   "))
}

func TestRecipeToText(t *testing.T) {
	t.Run("flat ingredient object", func(t *testing.T) {
		var r models.Recipe
		require.NoError(t, r.UnmarshalJSON([]byte(
			`{"Title": "Pho", "Ingredients": {"broth": "2 l", "anise": "2 pods"}}`)))
		// Keys are walked sorted, so the text is stable between runs.
		assert.Equal(t, "Pho\n2 pods\n2 l", RecipeToText(r))
	})

	t.Run("sectioned ingredients", func(t *testing.T) {
		var r models.Recipe
		require.NoError(t, r.UnmarshalJSON([]byte(
			`{"Title": "Cake", "Ingredients": {"Batter": {"flour": "200 g"}, "Icing": {"sugar": "100 g"}}}`)))
		assert.Equal(t, "Cake\n200 g\n100 g", RecipeToText(r))
	})

	t.Run("no ingredients", func(t *testing.T) {
		assert.Equal(t, "Toast\n", RecipeToText(models.Recipe{Title: "Toast"}))
	})

	t.Run("legacy array", func(t *testing.T) {
		var r models.Recipe
		require.NoError(t, r.UnmarshalJSON([]byte(
			`{"Title": "Mix", "Ingredients": ["salt", "pepper"]}`)))
		assert.Equal(t, "Mix\nsalt\npepper", RecipeToText(r))
	})
}
