package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	err error
}

func (f fakeStore) Ping(ctx context.Context) error { return f.err }

func TestRunAll_AllHealthy(t *testing.T) {
	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer embedSrv.Close()
	visionSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer visionSrv.Close()

	c := New(Config{EmbeddingEndpoint: embedSrv.URL, VisionEndpoint: visionSrv.URL})
	results := c.RunAll(t.Context(), fakeStore{})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, StatusOK, r.Status, r.Name)
	}
	assert.False(t, c.HasCriticalFailures(results))
}

func TestRunAll_NoVisionEndpointIsSkipped(t *testing.T) {
	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer embedSrv.Close()

	c := New(Config{EmbeddingEndpoint: embedSrv.URL})
	results := c.RunAll(t.Context(), fakeStore{})

	var vision CheckResult
	for _, r := range results {
		if r.Name == "vision endpoint" {
			vision = r
		}
	}
	assert.Equal(t, StatusSkipped, vision.Status)
	assert.False(t, c.HasCriticalFailures(results))
}

func TestRunAll_GraphStoreDownIsCritical(t *testing.T) {
	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer embedSrv.Close()

	c := New(Config{EmbeddingEndpoint: embedSrv.URL})
	results := c.RunAll(t.Context(), fakeStore{err: errors.New("connection refused")})

	assert.True(t, c.HasCriticalFailures(results))
}

func TestRunAll_EmbeddingEndpointUnreachableIsCritical(t *testing.T) {
	c := New(Config{EmbeddingEndpoint: "http://127.0.0.1:1"})
	results := c.RunAll(t.Context(), fakeStore{})

	assert.True(t, c.HasCriticalFailures(results))
}

func TestRunAll_VisionEndpointUnreachableIsWarningNotCritical(t *testing.T) {
	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer embedSrv.Close()

	c := New(Config{EmbeddingEndpoint: embedSrv.URL, VisionEndpoint: "http://127.0.0.1:1"})
	results := c.RunAll(t.Context(), fakeStore{})

	var vision CheckResult
	for _, r := range results {
		if r.Name == "vision endpoint" {
			vision = r
		}
	}
	assert.Equal(t, StatusWarning, vision.Status)
	assert.False(t, c.HasCriticalFailures(results))
}
