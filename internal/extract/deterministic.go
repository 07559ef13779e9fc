package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kitchen-mate/clipper/internal/model"
)

// Deterministic extracts recipes from schema.org/Recipe JSON-LD markup.
// It is cheap and side-effect-free, so the pipeline always tries it first.
type Deterministic struct{}

func NewDeterministic() *Deterministic { return &Deterministic{} }

func (d *Deterministic) Name() string { return "jsonld" }

func (d *Deterministic) Method() model.Method { return model.MethodDeterministic }

// Supports reports whether the source is an HTML page. Uploads have no
// markup to read.
func (d *Deterministic) Supports(src Source) bool {
	return src.Kind == model.SourceKindURL
}

func (d *Deterministic) Extract(ctx context.Context, src Source) (*model.Recipe, error) {
	if !d.Supports(src) {
		return nil, eris.Wrapf(ErrUnsupportedSource, "backend %s: %s source", d.Name(), src.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src.Body))
	if err != nil {
		return nil, extractionError(d.Name(), eris.Wrap(err, "parse html"))
	}

	var node map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		node = findRecipeNode(s.Text())
		return node == nil
	})
	if node == nil {
		return nil, eris.Wrapf(ErrUnsupportedSource, "backend %s: no recipe markup in %s", d.Name(), src.URL)
	}

	recipe := recipeFromJSONLD(node, src.URL)
	if recipe.Title == "" || len(recipe.Ingredients) == 0 {
		return nil, extractionError(d.Name(), eris.Errorf("recipe markup in %s missing title or ingredients", src.URL))
	}

	zap.L().Debug("extract: deterministic hit",
		zap.String("url", src.URL),
		zap.String("title", recipe.Title),
	)
	return recipe, nil
}

// findRecipeNode unmarshals one JSON-LD script and searches it for a
// schema.org/Recipe node. Scripts that fail to parse are skipped; pages
// routinely carry malformed blocks next to valid ones.
func findRecipeNode(raw string) map[string]any {
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	return searchRecipe(data)
}

func searchRecipe(data any) map[string]any {
	switch v := data.(type) {
	case map[string]any:
		if isRecipeType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return searchRecipe(graph)
		}
	case []any:
		for _, item := range v {
			if node := searchRecipe(item); node != nil {
				return node
			}
		}
	}
	return nil
}

// isRecipeType matches @type values of "Recipe", which may be a single
// string or a list of types.
func isRecipeType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Recipe"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Recipe" {
				return true
			}
		}
	}
	return false
}

func recipeFromJSONLD(node map[string]any, sourceURL string) *model.Recipe {
	recipe := &model.Recipe{
		Title:        stringValue(node["name"]),
		Description:  stringValue(node["description"]),
		Instructions: instructionList(node["recipeInstructions"]),
		SourceURL:    sourceURL,
		ImageURL:     imageURL(node["image"]),
	}

	for _, line := range stringList(node["recipeIngredient"]) {
		recipe.Ingredients = append(recipe.Ingredients, model.Ingredient{
			Name:        line,
			DisplayText: line,
		})
	}

	md := model.Metadata{
		Author:       authorName(node["author"]),
		Servings:     yieldValue(node["recipeYield"]),
		PrepMinutes:  durationMinutes(stringValue(node["prepTime"])),
		CookMinutes:  durationMinutes(stringValue(node["cookTime"])),
		TotalMinutes: durationMinutes(stringValue(node["totalTime"])),
		Categories:   stringList(node["recipeCategory"]),
	}
	if md.Author != "" || md.Servings != "" || md.PrepMinutes != 0 || md.CookMinutes != 0 ||
		md.TotalMinutes != 0 || len(md.Categories) > 0 {
		recipe.Metadata = &md
	}
	return recipe
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range val {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// instructionList flattens recipeInstructions, which may be a plain string,
// a list of strings, a list of HowToStep objects, or HowToSections nesting
// steps under itemListElement.
func instructionList(v any) []string {
	switch val := v.(type) {
	case string:
		return splitInstructionText(val)
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, instructionsFromItem(item)...)
		}
		return out
	}
	return nil
}

func instructionsFromItem(item any) []string {
	switch v := item.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case map[string]any:
		if nested, ok := v["itemListElement"]; ok {
			return instructionList(nested)
		}
		if text := stringValue(v["text"]); text != "" {
			return []string{text}
		}
		if name := stringValue(v["name"]); name != "" {
			return []string{name}
		}
	}
	return nil
}

// splitInstructionText breaks a single instruction blob into steps on
// newlines. Single-line blobs stay one step.
func splitInstructionText(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func authorName(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		return stringValue(val["name"])
	case []any:
		for _, item := range val {
			if name := authorName(item); name != "" {
				return name
			}
		}
	}
	return ""
}

func yieldValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		// Schema allows ["8", "8 servings"]; the last entry is the wordier one.
		if len(val) > 0 {
			return yieldValue(val[len(val)-1])
		}
	}
	return ""
}

func imageURL(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		return stringValue(val["url"])
	case []any:
		if len(val) > 0 {
			return imageURL(val[0])
		}
	}
	return ""
}

var durationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// durationMinutes converts an ISO-8601 duration ("PT1H30M") to whole
// minutes. Unparseable values yield zero.
func durationMinutes(iso string) int {
	if iso == "" {
		return 0
	}
	m := durationRe.FindStringSubmatch(strings.TrimSpace(iso))
	if m == nil {
		return 0
	}
	days, _ := strconv.Atoi(zeroDefault(m[1]))
	hours, _ := strconv.Atoi(zeroDefault(m[2]))
	minutes, _ := strconv.Atoi(zeroDefault(m[3]))
	seconds, _ := strconv.ParseFloat(zeroDefault(m[4]), 64)
	return days*24*60 + hours*60 + minutes + int(seconds/60)
}

func zeroDefault(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
