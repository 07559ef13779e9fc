// Package extract holds the extraction backends that turn a fetched source
// into a structured recipe. The deterministic backend reads schema.org
// JSON-LD markup; the AI backend asks Claude.
package extract

import (
	"context"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
)

// Source is the input handed to an extraction backend.
type Source struct {
	Key         ident.CanonicalKey
	Kind        model.SourceKind
	URL         string // url sources only
	Body        []byte // fetched HTML or upload bytes
	ContentType string
}

// Extractor is a single extraction backend.
type Extractor interface {
	Name() string
	Method() model.Method
	Supports(src Source) bool
	Extract(ctx context.Context, src Source) (*model.Recipe, error)
}
