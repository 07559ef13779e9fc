package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kitchen-mate/clipper/internal/model"
	"github.com/kitchen-mate/clipper/internal/pipeline"
	"github.com/kitchen-mate/clipper/internal/upload"
)

type clipRequest struct {
	URL          string `json:"url"`
	Method       string `json:"method,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

type convertRequest struct {
	Recipe *model.Recipe `json:"recipe"`
	Format string        `json:"format,omitempty"`
}

func contextWithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	var req clipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	outcome, err := s.pipe.Extract(r.Context(), pipeline.Request{
		OwnerID:      ownerFromContext(r.Context()),
		URL:          req.URL,
		Method:       model.Method(req.Method),
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// handleClipStream runs an extraction and relays pipeline events as SSE.
// The event name is the pipeline stage; the terminal event carries either
// the outcome or the error detail.
func (s *Server) handleClipStream(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		respondError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events := s.pipe.ExtractStream(r.Context(), pipeline.Request{
		OwnerID:      ownerFromContext(r.Context()),
		URL:          rawURL,
		Method:       model.Method(r.URL.Query().Get("method")),
		ForceRefresh: r.URL.Query().Get("refresh") == "true",
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			zap.L().Error("server: marshal stream event", zap.Error(err))
			continue
		}
		if _, err := w.Write([]byte("event: " + string(ev.Stage) + "\ndata: ")); err != nil {
			return
		}
		if _, err := w.Write(append(data, '\n', '\n')); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleUpload accepts a multipart file, validates it against the size and
// type limits, and runs AI extraction on the content.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// One extra MiB over the document cap leaves room for multipart framing.
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxDocumentBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	validated, err := upload.Validate(content, header.Filename, s.limits)
	if err != nil {
		var verr *upload.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		respondFailure(w, err)
		return
	}

	outcome, err := s.pipe.Extract(r.Context(), pipeline.Request{
		OwnerID: ownerFromContext(r.Context()),
		Upload:  validated,
	})
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}
