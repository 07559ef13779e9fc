// Package store persists the source registry, parse cache and fork store.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
)

// ErrNotFound is returned when a source, parse result or fork does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrNotOwner is returned when a fork exists but belongs to another user.
var ErrNotOwner = eris.New("store: not owner")

// ListOptions specifies filtering and pagination for listing forks. Tag and
// search filters are applied before pagination, so HasMore and the cursor
// reflect the filtered set.
type ListOptions struct {
	Cursor       string   `json:"cursor,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Search       string   `json:"search,omitempty"`
	ModifiedOnly bool     `json:"modified_only,omitempty"`
}

// ForkPage is one page of a fork listing.
type ForkPage struct {
	Items      []model.ForkSummary `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
	HasMore    bool                `json:"has_more"`
}

// Store defines the persistence interface for the clipper core.
//
// Sources and parse results are shared and system-owned: sources are
// insert-or-get by canonical key, parse results are append-only. Forks are
// owned by a single user and mutated only through owner-checked operations.
type Store interface {
	// Source registry
	UpsertSource(ctx context.Context, key ident.CanonicalKey, kind model.SourceKind) (*model.SourceRecord, error)
	GetSource(ctx context.Context, sourceID string) (*model.SourceRecord, error)

	// Parse cache
	RecordParse(ctx context.Context, attempt ParseAttempt) (*model.ParseResult, error)
	LatestParse(ctx context.Context, sourceID string, method model.Method) (*model.ParseResult, error)
	GetParse(ctx context.Context, parseID string) (*model.ParseResult, error)

	// Fork store
	SaveFork(ctx context.Context, ownerID string, parse *model.ParseResult, tags []string, notes string) (*model.UserRecipe, bool, error)
	GetFork(ctx context.Context, ownerID, forkID string) (*model.UserRecipe, error)
	GetForkWithLineage(ctx context.Context, ownerID, forkID string) (*model.ForkWithLineage, error)
	UpdateFork(ctx context.Context, ownerID, forkID string, patch model.ForkPatch) (*model.UserRecipe, error)
	DeleteFork(ctx context.Context, ownerID, forkID string) error

	// Query layer
	ListForks(ctx context.Context, ownerID string, opts ListOptions) (*ForkPage, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ParseAttempt is the input to RecordParse. Failed attempts are recorded
// too, so repeated identical requests leave a trace instead of silently
// retrying forever.
type ParseAttempt struct {
	SourceID    string
	Method      model.Method
	Payload     *model.Recipe // nil when Success is false
	InputHash   string
	Success     bool
	ErrorDetail string
}
