package extract

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedSource means the backend has no handler for the source, for
// example the deterministic backend given a page without recipe markup, or a
// replay request for an upload-sourced fork.
var ErrUnsupportedSource = eris.New("extract: unsupported source")

// Error reports a backend that ran but could not produce a usable recipe.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract: backend %s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func extractionError(backend string, err error) *Error {
	return &Error{Backend: backend, Err: err}
}
