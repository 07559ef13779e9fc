package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kitchen-mate/clipper/internal/format"
	"github.com/kitchen-mate/clipper/internal/model"
	"github.com/kitchen-mate/clipper/internal/store"
)

type saveRecipeRequest struct {
	ParseResultID string   `json:"parse_result_id"`
	Tags          []string `json:"tags,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Cursor:       q.Get("cursor"),
		Search:       q.Get("search"),
		ModifiedOnly: q.Get("modified_only") == "true",
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}
	if raw := q.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				opts.Tags = append(opts.Tags, tag)
			}
		}
	}

	page, err := s.store.ListForks(r.Context(), ownerFromContext(r.Context()), opts)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// handleSaveRecipe forks a parse result into the caller's collection. Saving
// the same source twice returns the existing fork with 200 instead of 201.
func (s *Server) handleSaveRecipe(w http.ResponseWriter, r *http.Request) {
	var req saveRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParseResultID == "" {
		respondError(w, http.StatusBadRequest, "parse_result_id is required")
		return
	}

	parse, err := s.store.GetParse(r.Context(), req.ParseResultID)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if !parse.Success || parse.Payload == nil {
		respondError(w, http.StatusUnprocessableEntity, "parse result has no recipe payload")
		return
	}

	fork, isNew, err := s.pipe.SaveFork(r.Context(), ownerFromContext(r.Context()), parse, req.Tags, req.Notes)
	if err != nil {
		respondFailure(w, err)
		return
	}
	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	respondJSON(w, status, fork)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	forkID := chi.URLParam(r, "recipeID")

	if r.URL.Query().Get("lineage") == "true" {
		lineage, err := s.store.GetForkWithLineage(r.Context(), owner, forkID)
		if err != nil {
			respondFailure(w, err)
			return
		}
		respondJSON(w, http.StatusOK, lineage)
		return
	}

	fork, err := s.store.GetFork(r.Context(), owner, forkID)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fork)
}

func (s *Server) handleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	var patch model.ForkPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Payload != nil && patch.Payload.Title == "" {
		respondError(w, http.StatusUnprocessableEntity, "payload must keep a title")
		return
	}

	fork, err := s.store.UpdateFork(r.Context(), ownerFromContext(r.Context()), chi.URLParam(r, "recipeID"), patch)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fork)
}

func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteFork(r.Context(), ownerFromContext(r.Context()), chi.URLParam(r, "recipeID"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportRecipe renders the fork's working payload in the requested
// format and offers it as a download.
func (s *Server) handleExportRecipe(w http.ResponseWriter, r *http.Request) {
	fork, err := s.store.GetFork(r.Context(), ownerFromContext(r.Context()), chi.URLParam(r, "recipeID"))
	if err != nil {
		respondFailure(w, err)
		return
	}

	f := format.Format(r.URL.Query().Get("format"))
	if f == "" {
		f = format.FormatMarkdown
	}
	out, err := format.Render(fork.Payload, f)
	if err != nil {
		if errors.Is(err, format.ErrUnsupportedFormat) {
			respondError(w, http.StatusBadRequest, "unsupported format")
			return
		}
		respondFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="recipe.`+f.Extension()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleReExtract(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.pipe.ReExtract(r.Context(), ownerFromContext(r.Context()), chi.URLParam(r, "recipeID"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}
