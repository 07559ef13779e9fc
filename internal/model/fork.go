package model

import "time"

// UserRecipe is a user's private fork of a parse result. The payload starts
// as a deep copy of the parse result and diverges independently; the
// ParseResultID lineage pointer is set at creation and never changes.
type UserRecipe struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	SourceID      string    `json:"source_id"`
	ParseResultID string    `json:"parse_result_id"`
	Payload       *Recipe   `json:"payload"`
	IsModified    bool      `json:"is_modified"`
	Tags          []string  `json:"tags,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ForkPatch is a partial update to a fork. Nil fields are left untouched.
// A non-nil Payload marks the fork modified permanently.
type ForkPatch struct {
	Payload *Recipe   `json:"payload,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
	Notes   *string   `json:"notes,omitempty"`
}

// ForkSummary is the list-view projection of a fork.
type ForkSummary struct {
	ID         string    `json:"id"`
	SourceKey  string    `json:"source_key"`
	Title      string    `json:"title"`
	ImageURL   string    `json:"image_url,omitempty"`
	IsModified bool      `json:"is_modified"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ForkWithLineage pairs a fork with the parse result it was derived from.
type ForkWithLineage struct {
	Fork   UserRecipe   `json:"fork"`
	Parent ParseResult  `json:"parent"`
	Source SourceRecord `json:"source"`
}
