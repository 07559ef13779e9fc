// Package pipeline orchestrates extraction: capability gating, cache
// read-through, fetching, single-flight coordination, and the
// deterministic-then-AI fallback chain.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kitchen-mate/clipper/internal/authz"
	"github.com/kitchen-mate/clipper/internal/extract"
	"github.com/kitchen-mate/clipper/internal/fetch"
	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
	"github.com/kitchen-mate/clipper/internal/singleflight"
	"github.com/kitchen-mate/clipper/internal/store"
	"github.com/kitchen-mate/clipper/internal/upload"
)

// Request describes one extraction.
type Request struct {
	OwnerID string

	// URL or Upload identifies the source; exactly one must be set.
	URL    string
	Upload *upload.File

	// Method forces a single extraction method. Empty selects the fallback
	// chain (deterministic first, AI when enabled and permitted).
	Method model.Method

	// ForceRefresh bypasses the cache read-through. The cached result is
	// still consulted for the content-changed comparison.
	ForceRefresh bool
}

// Config wires the pipeline's collaborators.
type Config struct {
	Store         store.Store
	Fetcher       fetch.Fetcher
	Deterministic extract.Extractor
	AI            extract.Extractor // nil disables the AI method entirely
	Capability    authz.Capability
	AIFallback    bool
}

// Pipeline coordinates extraction backends over the shared cache tiers.
type Pipeline struct {
	cfg   Config
	coord *singleflight.Coordinator
}

func New(cfg Config) *Pipeline {
	if cfg.Capability == nil {
		cfg.Capability = authz.NewStaticCapability(nil)
	}
	return &Pipeline{cfg: cfg, coord: singleflight.New()}
}

// Extract runs the pipeline to completion and returns the outcome.
func (p *Pipeline) Extract(ctx context.Context, req Request) (*model.ExtractOutcome, error) {
	return p.run(ctx, req, nil)
}

// ExtractStream runs the pipeline in the background and reports progress on
// the returned channel. The channel is closed after exactly one terminal
// event; intermediate events may be dropped for slow consumers.
func (p *Pipeline) ExtractStream(ctx context.Context, req Request) <-chan Event {
	em := newEmitter()
	go func() {
		outcome, err := p.run(ctx, req, em)
		em.finish(outcome, err)
	}()
	return em.ch
}

func (p *Pipeline) run(ctx context.Context, req Request, em *emitter) (*model.ExtractOutcome, error) {
	key, kind, err := p.identify(req)
	if err != nil {
		return nil, err
	}

	chain, err := p.methodChain(req, kind)
	if err != nil {
		return nil, err
	}

	src, err := p.cfg.Store.UpsertSource(ctx, key, kind)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(
		zap.String("source_id", src.ID),
		zap.String("key", string(key)),
	)

	// Cache read-through. Methods are consulted in chain order so a cached
	// deterministic result wins over a cached AI one, same as a fresh run.
	var cached *model.ParseResult
	for _, method := range chain {
		cached, err = p.cfg.Store.LatestParse(ctx, src.ID, method)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			break
		}
	}
	if cached != nil && !req.ForceRefresh {
		log.Debug("pipeline: cache hit", zap.String("method", string(cached.Method)))
		return &model.ExtractOutcome{Result: cached, Source: *src, FromCache: true}, nil
	}

	body, contentType, hash, err := p.acquireInput(ctx, req, chain[0], src, em)
	if err != nil {
		return nil, err
	}

	// Staleness check: on a forced refresh the cached row short-circuits
	// re-extraction when the source content has not changed.
	var contentChanged *bool
	if cached != nil {
		changed := cached.Stale(hash)
		contentChanged = &changed
		if !changed {
			log.Debug("pipeline: content unchanged, reusing cached result")
			return &model.ExtractOutcome{Result: cached, Source: *src, FromCache: true, ContentChanged: contentChanged}, nil
		}
	}

	source := extract.Source{
		Key:         key,
		Kind:        kind,
		URL:         req.URL,
		Body:        body,
		ContentType: contentType,
	}

	var lastErr error
	for i, method := range chain {
		extractor := p.extractorFor(method)
		if extractor == nil || !extractor.Supports(source) {
			lastErr = eris.Wrapf(extract.ErrUnsupportedSource, "method %s", method)
			continue
		}

		em.emit(stageForMethod(method), fmt.Sprintf("trying %s extraction (%s)", method, extractor.Name()))

		result, shared, runErr := p.coord.RunExclusive(ctx, singleflight.Key(key, method),
			func(workCtx context.Context) (*model.ParseResult, error) {
				return p.extractAndRecord(workCtx, extractor, source, src.ID, hash)
			})
		if runErr == nil {
			log.Info("pipeline: extraction succeeded",
				zap.String("method", string(method)),
				zap.Bool("shared", shared),
			)
			return &model.ExtractOutcome{Result: result, Source: *src, ContentChanged: contentChanged}, nil
		}

		lastErr = runErr
		if i < len(chain)-1 {
			log.Warn("pipeline: method failed, falling through",
				zap.String("method", string(method)),
				zap.Error(runErr),
			)
		}
	}
	return nil, lastErr
}

// extractAndRecord runs one backend and appends the attempt to the parse
// cache, failures included, so repeated requests leave a trace.
func (p *Pipeline) extractAndRecord(ctx context.Context, extractor extract.Extractor, source extract.Source, sourceID, hash string) (*model.ParseResult, error) {
	recipe, err := extractor.Extract(ctx, source)
	if err != nil {
		if _, recordErr := p.cfg.Store.RecordParse(ctx, store.ParseAttempt{
			SourceID:    sourceID,
			Method:      extractor.Method(),
			InputHash:   hash,
			Success:     false,
			ErrorDetail: err.Error(),
		}); recordErr != nil {
			zap.L().Error("pipeline: record failed attempt", zap.Error(recordErr))
		}
		return nil, err
	}

	return p.cfg.Store.RecordParse(ctx, store.ParseAttempt{
		SourceID:  sourceID,
		Method:    extractor.Method(),
		Payload:   recipe,
		InputHash: hash,
		Success:   true,
	})
}

func (p *Pipeline) identify(req Request) (ident.CanonicalKey, model.SourceKind, error) {
	if req.Upload != nil {
		return ident.FromBytes(req.Upload.Content), model.SourceKindUpload, nil
	}
	key, err := ident.FromURL(req.URL)
	if err != nil {
		return "", "", err
	}
	return key, model.SourceKindURL, nil
}

// methodChain selects and gates the methods to try, in order. The gate runs
// before any backend or storage work so a denied request costs nothing.
func (p *Pipeline) methodChain(req Request, kind model.SourceKind) ([]model.Method, error) {
	if kind == model.SourceKindUpload {
		if !authz.HasPermission(p.tierOf(req.OwnerID), authz.PermClipUpload) {
			return nil, eris.Wrap(authz.ErrCapabilityDenied, "upload sources")
		}
		// Uploads have no markup; only the AI backend applies.
		if req.Method == model.MethodDeterministic {
			return nil, eris.Wrapf(extract.ErrUnsupportedSource, "method %s for uploads", req.Method)
		}
		if !p.cfg.Capability.CanUseMethod(req.OwnerID, model.MethodAI) {
			return nil, eris.Wrap(authz.ErrCapabilityDenied, "method ai")
		}
		return []model.Method{model.MethodAI}, nil
	}

	if req.Method != "" {
		if !req.Method.Valid() {
			return nil, eris.Errorf("pipeline: invalid method %q", req.Method)
		}
		if !p.cfg.Capability.CanUseMethod(req.OwnerID, req.Method) {
			return nil, eris.Wrapf(authz.ErrCapabilityDenied, "method %s", req.Method)
		}
		return []model.Method{req.Method}, nil
	}

	if !p.cfg.Capability.CanUseMethod(req.OwnerID, model.MethodDeterministic) {
		return nil, eris.Wrap(authz.ErrCapabilityDenied, "method deterministic")
	}
	chain := []model.Method{model.MethodDeterministic}
	if p.cfg.AIFallback && p.cfg.AI != nil && p.cfg.Capability.CanUseMethod(req.OwnerID, model.MethodAI) {
		chain = append(chain, model.MethodAI)
	}
	return chain, nil
}

// tierOf resolves the owner's tier when the capability is the static
// implementation; other implementations gate uploads through CanUseMethod.
func (p *Pipeline) tierOf(ownerID string) authz.Tier {
	if sc, ok := p.cfg.Capability.(*authz.StaticCapability); ok {
		return sc.Resolve(ownerID)
	}
	return authz.TierPro
}

// acquireInput produces the raw bytes and content hash for the source.
// Fetch failures are recorded as failed parse attempts before propagating.
func (p *Pipeline) acquireInput(ctx context.Context, req Request, method model.Method, src *model.SourceRecord, em *emitter) ([]byte, string, string, error) {
	if req.Upload != nil {
		return req.Upload.Content, req.Upload.MimeType, ident.HashContent(req.Upload.Content), nil
	}

	em.emit(StageFetching, fmt.Sprintf("fetching %s", req.URL))
	page, err := p.cfg.Fetcher.Fetch(ctx, req.URL)
	if err != nil {
		if _, recordErr := p.cfg.Store.RecordParse(context.WithoutCancel(ctx), store.ParseAttempt{
			SourceID:    src.ID,
			Method:      method,
			Success:     false,
			ErrorDetail: err.Error(),
		}); recordErr != nil {
			zap.L().Error("pipeline: record fetch failure", zap.Error(recordErr))
		}
		return nil, "", "", err
	}
	return page.Body, page.ContentType, page.ContentHash, nil
}

func (p *Pipeline) extractorFor(method model.Method) extract.Extractor {
	if method == model.MethodAI {
		return p.cfg.AI
	}
	return p.cfg.Deterministic
}

func stageForMethod(method model.Method) Stage {
	if method == model.MethodAI {
		return StageAI
	}
	return StageDeterministic
}

// SaveFork copies a successful parse result into the owner's collection.
// Saving twice is idempotent; the existing fork comes back with isNew false.
func (p *Pipeline) SaveFork(ctx context.Context, ownerID string, result *model.ParseResult, tags []string, notes string) (*model.UserRecipe, bool, error) {
	return p.cfg.Store.SaveFork(ctx, ownerID, result, tags, notes)
}

// ReExtract replays extraction for the source behind an existing fork,
// forcing a refresh. The fork itself is untouched: its payload is the
// owner's working copy and its lineage pointer is immutable. Upload-backed
// forks cannot be replayed.
func (p *Pipeline) ReExtract(ctx context.Context, ownerID, forkID string) (*model.ExtractOutcome, error) {
	lineage, err := p.cfg.Store.GetForkWithLineage(ctx, ownerID, forkID)
	if err != nil {
		return nil, err
	}
	if !lineage.Source.Replayable() {
		return nil, eris.Wrapf(extract.ErrUnsupportedSource, "fork %s: %s source cannot be replayed", forkID, lineage.Source.Kind)
	}
	return p.run(ctx, Request{
		OwnerID:      ownerID,
		URL:          lineage.Source.CanonicalKey,
		Method:       lineage.Parent.Method,
		ForceRefresh: true,
	}, nil)
}
