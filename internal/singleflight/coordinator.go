// Package singleflight deduplicates concurrent extractions per source.
package singleflight

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
)

// Coordinator guarantees at most one in-flight extraction per
// (canonical key, method). Concurrent callers for the same key join the
// running call and receive its result. Completed keys are released
// immediately: durability belongs to the parse cache, not here.
type Coordinator struct {
	group singleflight.Group
}

// New returns a process-local Coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Key builds the coordination key. Method is part of the key so that two
// different methods for the same source may run concurrently.
func Key(key ident.CanonicalKey, method model.Method) string {
	return string(key) + "|" + string(method)
}

// RunExclusive runs work under key, or joins an identical in-flight call.
// The work function receives a context detached from the caller's
// cancellation: a caller that disconnects must not fail the extraction for
// waiters already joined on the same key. Deadlines are not inherited either;
// the work sets its own timeouts at the backend boundary.
//
// shared is true when this caller received a result produced by another
// caller's invocation.
func (c *Coordinator) RunExclusive(ctx context.Context, key string, work func(ctx context.Context) (*model.ParseResult, error)) (result *model.ParseResult, shared bool, err error) {
	v, err, shared := c.group.Do(key, func() (any, error) {
		return work(context.WithoutCancel(ctx))
	})
	if shared {
		zap.L().Debug("singleflight: joined in-flight extraction", zap.String("key", key))
	}
	if err != nil {
		return nil, shared, err
	}
	return v.(*model.ParseResult), shared, nil
}
