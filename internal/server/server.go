// Package server exposes the clipper pipeline and fork store over HTTP.
//
// Callers are identified by the X-User-ID header and tiered by X-User-Tier.
// This is a stand-in for whatever auth proxy fronts the service; handlers
// never trust the tier for anything beyond capability gating.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kitchen-mate/clipper/internal/authz"
	"github.com/kitchen-mate/clipper/internal/extract"
	"github.com/kitchen-mate/clipper/internal/fetch"
	"github.com/kitchen-mate/clipper/internal/format"
	"github.com/kitchen-mate/clipper/internal/pipeline"
	"github.com/kitchen-mate/clipper/internal/store"
	"github.com/kitchen-mate/clipper/internal/upload"
)

// Config wires a Server. Pipeline and Store are required; zero Limits fall
// back to the defaults.
type Config struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
	Limits   upload.Limits
	Tiers    *TierRegistry
}

// Server is the HTTP API. Construct with New and serve via Handler.
type Server struct {
	pipe   *pipeline.Pipeline
	store  store.Store
	limits upload.Limits
	tiers  *TierRegistry
	router chi.Router
}

// TierRegistry remembers the tier each owner last presented. The pipeline's
// capability check resolves through it, so gating sees the same tier the
// request carried.
type TierRegistry struct {
	mu    sync.RWMutex
	tiers map[string]authz.Tier
}

// NewTierRegistry returns an empty registry. Unknown owners resolve to free.
func NewTierRegistry() *TierRegistry {
	return &TierRegistry{tiers: make(map[string]authz.Tier)}
}

// Resolve implements authz.TierResolver.
func (r *TierRegistry) Resolve(ownerID string) authz.Tier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tier, ok := r.tiers[ownerID]; ok {
		return tier
	}
	return authz.TierFree
}

func (r *TierRegistry) observe(ownerID string, tier authz.Tier) {
	r.mu.Lock()
	r.tiers[ownerID] = tier
	r.mu.Unlock()
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	if cfg.Limits == (upload.Limits{}) {
		cfg.Limits = upload.DefaultLimits()
	}
	if cfg.Tiers == nil {
		cfg.Tiers = NewTierRegistry()
	}
	s := &Server{
		pipe:   cfg.Pipeline,
		store:  cfg.Store,
		limits: cfg.Limits,
		tiers:  cfg.Tiers,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID", "X-User-Tier"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/convert", s.handleConvert)

	r.Group(func(r chi.Router) {
		r.Use(s.withOwner)

		r.Post("/clip", s.handleClip)
		r.Get("/clip/stream", s.handleClipStream)
		r.Post("/clip/upload", s.handleUpload)

		r.Route("/me/recipes", func(r chi.Router) {
			r.Get("/", s.handleListRecipes)
			r.Post("/", s.handleSaveRecipe)
			r.Get("/{recipeID}", s.handleGetRecipe)
			r.Patch("/{recipeID}", s.handleUpdateRecipe)
			r.Delete("/{recipeID}", s.handleDeleteRecipe)
			r.Get("/{recipeID}/export", s.handleExportRecipe)
			r.Post("/{recipeID}/re-extract", s.handleReExtract)
		})
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

type contextKey string

const ownerKey contextKey = "owner"

// withOwner requires the X-User-ID header and records the presented tier.
func (s *Server) withOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-User-ID")
		if owner == "" {
			respondError(w, http.StatusUnauthorized, "X-User-ID header is required")
			return
		}
		tier := authz.TierFree
		if r.Header.Get("X-User-Tier") == string(authz.TierPro) {
			tier = authz.TierPro
		}
		s.tiers.observe(owner, tier)

		ctx := contextWithOwner(r.Context(), owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConvert renders a recipe payload into the requested output format.
// It is unauthenticated: nothing is read from or written to the store.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Recipe == nil {
		respondError(w, http.StatusBadRequest, "recipe is required")
		return
	}
	f := format.Format(req.Format)
	if req.Format == "" {
		f = format.FormatText
	}
	out, err := format.Render(req.Recipe, f)
	if err != nil {
		if errors.Is(err, format.ErrUnsupportedFormat) {
			respondError(w, http.StatusBadRequest, "unsupported format "+req.Format)
			return
		}
		respondFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondFailure maps domain errors to status codes.
func respondFailure(w http.ResponseWriter, err error) {
	var fetchErr *fetch.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrNotOwner):
		respondError(w, http.StatusForbidden, "not the owner")
	case errors.Is(err, authz.ErrCapabilityDenied):
		respondError(w, http.StatusForbidden, "tier does not permit this operation")
	case errors.Is(err, extract.ErrUnsupportedSource):
		respondError(w, http.StatusUnprocessableEntity, "could not extract a recipe from this source")
	case errors.As(err, &fetchErr):
		if fetch.IsGone(err) {
			respondError(w, http.StatusUnprocessableEntity, "source page is gone")
			return
		}
		respondError(w, http.StatusBadGateway, "source page could not be fetched")
	default:
		zap.L().Error("server: request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
