// Package format renders recipe documents for export.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/kitchen-mate/clipper/internal/model"
)

// Format names a supported export format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// ErrUnsupportedFormat is returned for format names Render does not know.
var ErrUnsupportedFormat = eris.New("format: unsupported format")

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown"
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/plain"
	}
}

// Extension returns the file extension (without dot) for a format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "txt"
	}
}

// Render formats a recipe in the named format.
func Render(recipe *model.Recipe, f Format) ([]byte, error) {
	if recipe == nil {
		return nil, eris.New("format: nil recipe")
	}
	switch f {
	case FormatText:
		return []byte(Text(recipe)), nil
	case FormatMarkdown:
		return []byte(Markdown(recipe)), nil
	case FormatJSON:
		out, err := json.MarshalIndent(recipe, "", "  ")
		return out, eris.Wrap(err, "format: marshal json")
	case FormatYAML:
		out, err := yaml.Marshal(recipe)
		return out, eris.Wrap(err, "format: marshal yaml")
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "%q", f)
	}
}

// ingredientText prefers the original wording over the parsed name.
func ingredientText(ing model.Ingredient) string {
	if ing.DisplayText != "" {
		return ing.DisplayText
	}
	return ing.Name
}

func metadataLines(md *model.Metadata, markdown bool) []string {
	if md == nil {
		return nil
	}
	fields := []struct {
		key   string
		value string
	}{
		{"Author", md.Author},
		{"Servings", md.Servings},
		{"Prep Time", minutesValue(md.PrepMinutes)},
		{"Cook Time", minutesValue(md.CookMinutes)},
		{"Total Time", minutesValue(md.TotalMinutes)},
		{"Categories", strings.Join(md.Categories, ", ")},
	}
	var lines []string
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if markdown {
			lines = append(lines, fmt.Sprintf("- **%s:** %s", f.key, f.value))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", f.key, f.value))
		}
	}
	return lines
}

func minutesValue(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	return fmt.Sprintf("%d minutes", minutes)
}

const rule = 80

// Text renders a recipe as human-readable plain text.
func Text(recipe *model.Recipe) string {
	var b strings.Builder
	heavy := strings.Repeat("=", rule)
	light := strings.Repeat("-", rule)

	fmt.Fprintf(&b, "\n%s\n%s\n%s\n", heavy, centerTitle(recipe.Title), heavy)

	if lines := metadataLines(recipe.Metadata, false); len(lines) > 0 {
		fmt.Fprintf(&b, "\nMETADATA\n%s\n", light)
		for _, line := range lines {
			fmt.Fprintln(&b, line)
		}
	}

	fmt.Fprintf(&b, "\nINGREDIENTS\n%s\n", light)
	for _, ing := range recipe.Ingredients {
		fmt.Fprintf(&b, "  • %s\n", ingredientText(ing))
	}

	fmt.Fprintf(&b, "\nINSTRUCTIONS\n%s\n", light)
	for i, step := range recipe.Instructions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}

	if recipe.SourceURL != "" {
		fmt.Fprintf(&b, "\nSource: %s\n", recipe.SourceURL)
	}
	return b.String()
}

func centerTitle(title string) string {
	pad := (rule - len(title)) / 2
	if pad <= 0 {
		return title
	}
	return strings.Repeat(" ", pad) + title
}

// Markdown renders a recipe as a markdown document.
func Markdown(recipe *model.Recipe) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", recipe.Title)

	if recipe.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", recipe.Description)
	}

	if lines := metadataLines(recipe.Metadata, true); len(lines) > 0 {
		b.WriteString("## Metadata\n\n")
		for _, line := range lines {
			fmt.Fprintln(&b, line)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Ingredients\n\n")
	for _, ing := range recipe.Ingredients {
		fmt.Fprintf(&b, "- %s\n", ingredientText(ing))
	}
	b.WriteString("\n## Instructions\n\n")
	for i, step := range recipe.Instructions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}

	if recipe.SourceURL != "" {
		fmt.Fprintf(&b, "\n## Source\n\n[%s](%s)\n", recipe.SourceURL, recipe.SourceURL)
	}
	return b.String()
}
