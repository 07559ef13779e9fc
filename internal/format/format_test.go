package format

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kitchen-mate/clipper/internal/model"
)

func sampleRecipe() *model.Recipe {
	return &model.Recipe{
		Title:       "Shakshuka",
		Description: "Eggs poached in spiced tomato sauce.",
		Ingredients: []model.Ingredient{
			{Name: "eggs", Amount: "4", DisplayText: "4 large eggs"},
			{Name: "crushed tomatoes"},
		},
		Instructions: []string{"Simmer the sauce.", "Crack in the eggs."},
		SourceURL:    "https://example.com/shakshuka",
		Metadata: &model.Metadata{
			Author:       "Sam Cook",
			Servings:     "2",
			PrepMinutes:  10,
			CookMinutes:  20,
			TotalMinutes: 30,
			Categories:   []string{"Breakfast", "Vegetarian"},
		},
	}
}

func TestText(t *testing.T) {
	out := Text(sampleRecipe())

	assert.Contains(t, out, "Shakshuka")
	assert.Contains(t, out, "METADATA")
	assert.Contains(t, out, "Author: Sam Cook")
	assert.Contains(t, out, "Prep Time: 10 minutes")
	assert.Contains(t, out, "Categories: Breakfast, Vegetarian")
	assert.Contains(t, out, "• 4 large eggs")
	assert.Contains(t, out, "• crushed tomatoes")
	assert.Contains(t, out, "1. Simmer the sauce.")
	assert.Contains(t, out, "2. Crack in the eggs.")
	assert.Contains(t, out, "Source: https://example.com/shakshuka")
}

func TestText_MinimalRecipe(t *testing.T) {
	out := Text(&model.Recipe{
		Title:        "Ice",
		Ingredients:  []model.Ingredient{{Name: "water"}},
		Instructions: []string{"Freeze."},
	})
	assert.NotContains(t, out, "METADATA")
	assert.NotContains(t, out, "Source:")
}

func TestMarkdown(t *testing.T) {
	out := Markdown(sampleRecipe())

	assert.Contains(t, out, "# Shakshuka")
	assert.Contains(t, out, "Eggs poached in spiced tomato sauce.")
	assert.Contains(t, out, "- **Author:** Sam Cook")
	assert.Contains(t, out, "## Ingredients")
	assert.Contains(t, out, "- 4 large eggs")
	assert.Contains(t, out, "1. Simmer the sauce.")
	assert.Contains(t, out, "[https://example.com/shakshuka](https://example.com/shakshuka)")
}

func TestRender_JSONAndYAMLRoundTrip(t *testing.T) {
	recipe := sampleRecipe()

	jsonOut, err := Render(recipe, FormatJSON)
	require.NoError(t, err)
	var fromJSON model.Recipe
	require.NoError(t, json.Unmarshal(jsonOut, &fromJSON))
	assert.Equal(t, recipe.Title, fromJSON.Title)

	yamlOut, err := Render(recipe, FormatYAML)
	require.NoError(t, err)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(yamlOut, &fromYAML))
	assert.NotEmpty(t, fromYAML)
}

func TestRender_UnsupportedFormat(t *testing.T) {
	_, err := Render(sampleRecipe(), Format("pdf"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Render(nil, FormatText)
	assert.Error(t, err)
}

func TestFormatMetadata(t *testing.T) {
	assert.Equal(t, "text/markdown", FormatMarkdown.ContentType())
	assert.Equal(t, "md", FormatMarkdown.Extension())
	assert.Equal(t, "application/yaml", FormatYAML.ContentType())
	assert.Equal(t, "txt", FormatText.Extension())
}
