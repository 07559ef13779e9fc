package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestFetch_ReturnsBodyAndHash(t *testing.T) {
	body := []byte(`<html><body>Pancakes</body></html>`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "clipper-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewHTTP(Options{UserAgent: "clipper-test/1.0", Retry: fastRetry()})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, body, page.Body)
	assert.Equal(t, "text/html; charset=utf-8", page.ContentType)
	assert.Equal(t, ident.HashContent(body), page.ContentHash)
	assert.False(t, page.FetchedAt.IsZero())
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTP(Options{Retry: fastRetry()})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), page.Body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_NotFoundFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTP(Options{Retry: fastRetry()})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsGone(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_BodySizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	f := NewHTTP(Options{MaxBodyBytes: 1024, Retry: fastRetry()})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestFetch_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := NewHTTP(Options{Retry: fastRetry()})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestIsGone(t *testing.T) {
	assert.True(t, IsGone(&Error{URL: "u", StatusCode: 404}))
	assert.True(t, IsGone(&Error{URL: "u", StatusCode: 410}))
	assert.False(t, IsGone(&Error{URL: "u", StatusCode: 500}))
	assert.False(t, IsGone(assert.AnError))
}
