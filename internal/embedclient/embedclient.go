// Package embedclient implements the EmbeddingClient component: an HTTP
// client against a configurable embedding endpoint, supporting both plain
// text and image-data-URL inputs, with bounded exponential-backoff retry
// for transient failures.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
)

// Config configures the EmbeddingClient.
type Config struct {
	// Endpoint is the base URL of the embedding service, e.g.
	// "http://localhost:11434/api/embed".
	Endpoint string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Model is the embedding model name passed to the service.
	Model string
	// Dimensions is the expected embedding vector length, used by callers
	// to validate responses (see errors.ErrCodeDimensionMismatch).
	Dimensions int
	// MaxRetries is the number of retry attempts after the initial try.
	MaxRetries int
	// RequestTimeout bounds a single HTTP call.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default retry policy: 3 retries, 20s cap.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		RequestTimeout: 60 * time.Second,
	}
}

// Client is the EmbeddingClient.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *fsindexerrors.CircuitBreaker

	// backoffUnit scales retry delays; tests shrink it to keep retry
	// paths fast.
	backoffUnit time.Duration
}

// New creates a Client. A zero-valued MaxRetries/RequestTimeout falls back
// to DefaultConfig's values.
func New(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{},
		breaker:     fsindexerrors.NewCircuitBreaker("embedding"),
		backoffUnit: time.Second,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// imageInput is one element of the multimodal input array.
type imageInput struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL string `json:"url"`
}

// embedResponse accepts the two response shapes embedding services return:
// an OpenAI-style data array or a bare embedding field.
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func (r *embedResponse) vector() []float32 {
	if len(r.Data) > 0 {
		return r.Data[0].Embedding
	}
	return r.Embedding
}

// EmbedText returns the embedding vector for a plain text input.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text)
}

// EmbedImage returns the embedding vector for an image, submitted as a
// "data:<mime>;base64,<data>" URL (see internal/imageprep.Prepared.DataURL).
// Only meaningful against providers that advertise multimodal embeddings.
func (c *Client) EmbedImage(ctx context.Context, dataURL string) ([]float32, error) {
	return c.embed(ctx, []imageInput{{Type: "image_url", ImageURL: imageURL{URL: dataURL}}})
}

// embed runs the retried request through the circuit breaker, so a backend
// that keeps failing after full retry rounds trips the breaker and
// subsequent calls fail fast instead of hammering it.
func (c *Client) embed(ctx context.Context, input any) ([]float32, error) {
	result, err := fsindexerrors.CircuitExecuteWithResult(c.breaker,
		func() ([]float32, error) {
			return fsindexerrors.RetryWithResult(ctx, c.retryConfig(), func() ([]float32, error) {
				return c.doRequest(ctx, input)
			})
		},
		func() ([]float32, error) {
			return nil, fsindexerrors.New(fsindexerrors.ErrCodeNetworkUnavailable,
				"embedding backend circuit open", fsindexerrors.ErrCircuitOpen)
		})
	if err != nil {
		return nil, err
	}

	if c.cfg.Dimensions > 0 && len(result) != c.cfg.Dimensions {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(result), c.cfg.Dimensions), nil).
			WithDetail("got", fmt.Sprintf("%d", len(result))).
			WithDetail("want", fmt.Sprintf("%d", c.cfg.Dimensions))
	}

	return result, nil
}

// retryConfig builds the per-call retry policy: model-loading errors back
// off from a 3-unit base, other transient failures from 1 unit, capped at
// 20 units (units are seconds in production).
func (c *Client) retryConfig() fsindexerrors.RetryConfig {
	return fsindexerrors.RetryConfig{
		MaxRetries: c.cfg.MaxRetries,
		MaxDelay:   20 * c.backoffUnit,
		RetryIf:    fsindexerrors.IsRetryable,
		DelayFor: func(err error, attempt int) time.Duration {
			if fsindexerrors.GetCode(err) == fsindexerrors.ErrCodeModelLoading {
				return c.backoff(attempt, 3)
			}
			return c.backoff(attempt, 1)
		},
	}
}

// doRequest performs one HTTP call, classifying any failure into a tagged,
// possibly-retryable error.
func (c *Client) doRequest(ctx context.Context, input any) ([]float32, error) {
	reqBody, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: input})
	if err != nil {
		return nil, fsindexerrors.Wrap(fsindexerrors.ErrCodeEmbeddingFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fsindexerrors.Wrap(fsindexerrors.ErrCodeEmbeddingFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeNetworkUnavailable, fmt.Sprintf("embedding request failed: %v", err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusServiceUnavailable {
		// Model-loading 503s back off with a longer base delay than other
		// transient failures.
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeModelLoading, "embedding model is still loading", nil)
	}
	if resp.StatusCode >= 500 {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeNetworkTimeout, fmt.Sprintf("embedding service returned %d: %s", resp.StatusCode, string(body)), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeEmbeddingFailed, fmt.Sprintf("embedding service returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// A payload that fails to decode is usually truncated mid-transfer;
		// retry it like any other transient network failure.
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeNetworkTimeout, fmt.Sprintf("truncated embedding response: %v", err), err)
	}
	if parsed.Error != "" {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeEmbeddingFailed, parsed.Error, nil)
	}
	vec := parsed.vector()
	if len(vec) == 0 {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeEmbeddingFailed, "embedding response contained no vectors", nil)
	}

	return vec, nil
}

// backoff is base * 2^attempt capped at 20 units, where the unit is 1s in
// production.
func (c *Client) backoff(attempt, base int) time.Duration {
	d := time.Duration(base) * c.backoffUnit
	maxDelay := 20 * c.backoffUnit
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
