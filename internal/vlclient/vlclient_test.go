package vlclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
)

func TestDescribe_ReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "image_url", req.Messages[0].Content[1].Type)

		resp := chatResponse{Choices: []chatChoice{{}}}
		resp.Choices[0].Message.Content = "a red square"
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "vl-model"})
	out, err := c.Describe(t.Context(), "describe this image", "data:image/png;base64,abc")
	require.NoError(t, err)
	assert.Equal(t, "a red square", out)
}

func TestDescribe_NonOKStatusIncludesBodyInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "vl-model"})
	_, err := c.Describe(t.Context(), "describe this image", "data:image/png;base64,abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestDescribe_ErrorFieldInBodyIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{}
		resp.Error = &struct {
			Message string `json:"message"`
		}{Message: "model overloaded"}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "vl-model"})
	_, err := c.Describe(t.Context(), "prompt", "data:image/png;base64,abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestDescribe_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "vl-model"})

	// Five failing calls trip the breaker (default threshold).
	for i := 0; i < 5; i++ {
		_, err := c.Describe(t.Context(), "prompt", "data:image/png;base64,abc")
		require.Error(t, err)
	}
	require.Equal(t, 5, calls)

	// The sixth fails fast without reaching the backend.
	_, err := c.Describe(t.Context(), "prompt", "data:image/png;base64,abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, fsindexerrors.ErrCircuitOpen)
	assert.Equal(t, 5, calls)
}

func TestNew_DefaultsTimeoutWhenUnset(t *testing.T) {
	c := New(Config{Endpoint: "http://example.invalid", Model: "vl-model"})
	assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
}
