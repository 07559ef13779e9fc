// Package model defines the domain types shared across the clipper core.
package model

// Ingredient is a single ingredient line of a recipe.
type Ingredient struct {
	Name        string `json:"name"`
	Amount      string `json:"amount,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Preparation string `json:"preparation,omitempty"`
	DisplayText string `json:"display_text,omitempty"`
}

// Metadata holds supplementary recipe information.
type Metadata struct {
	Author       string   `json:"author,omitempty"`
	Servings     string   `json:"servings,omitempty"`
	PrepMinutes  int      `json:"prep_minutes,omitempty"`
	CookMinutes  int      `json:"cook_minutes,omitempty"`
	TotalMinutes int      `json:"total_minutes,omitempty"`
	Categories   []string `json:"categories,omitempty"`
}

// Recipe is the extracted recipe document. It is the payload of both parse
// results and user forks, stored as a JSON blob.
type Recipe struct {
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	SourceURL    string       `json:"source_url,omitempty"`
	ImageURL     string       `json:"image_url,omitempty"`
	Metadata     *Metadata    `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the recipe. Forks start as a copy of the
// parse result payload and must never share slices with it.
func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	out := *r
	out.Ingredients = make([]Ingredient, len(r.Ingredients))
	copy(out.Ingredients, r.Ingredients)
	out.Instructions = make([]string, len(r.Instructions))
	copy(out.Instructions, r.Instructions)
	if r.Metadata != nil {
		md := *r.Metadata
		md.Categories = append([]string(nil), r.Metadata.Categories...)
		out.Metadata = &md
	}
	return &out
}
