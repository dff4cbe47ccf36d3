// Package vlclient implements the VLClient component: a minimal
// OpenAI-compatible chat-completion client used to describe images for
// indexing.
package vlclient

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

// DefaultTimeout bounds a single describe-image call.
const DefaultTimeout = 2 * time.Minute

// Config configures the VLClient.
type Config struct {
	// Endpoint is the OpenAI-compatible chat completions URL.
	Endpoint string
	// Model is the vision-language model name.
	Model string
	// Timeout bounds a single request. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Client is the VLClient.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *fsindexerrors.CircuitBreaker
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		breaker:    fsindexerrors.NewCircuitBreaker("vision"),
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Describe asks the VL model to describe an image, given a prompt and the
// image as a "data:<mime>;base64,<data>" URL (see
// internal/imageprep.Prepared.DataURL). Calls run through a circuit
// breaker: a vision backend that keeps failing trips it, and subsequent
// calls fail fast instead of waiting out the full VL timeout each time.
func (c *Client) Describe(ctx context.Context, prompt, imageDataURL string) (string, error) {
	return c.breaker.ExecuteWithResult(
		func() (string, error) { return c.describe(ctx, prompt, imageDataURL) },
		func() (string, error) {
			return "", fsindexerrors.New(fsindexerrors.ErrCodeNetworkUnavailable,
				"vision backend circuit open", fsindexerrors.ErrCircuitOpen)
		})
}

func (c *Client) describe(ctx context.Context, prompt, imageDataURL string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL}},
				},
			},
		},
	})
	if err != nil {
		return "", fsindexerrors.Wrap(fsindexerrors.ErrCodeInternal, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fsindexerrors.Wrap(fsindexerrors.ErrCodeInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fsindexerrors.New(fsindexerrors.ErrCodeNetworkUnavailable, fmt.Sprintf("vision request failed: %v", err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fsindexerrors.New(fsindexerrors.ErrCodeEmbeddingFailed, fmt.Sprintf("vision service returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fsindexerrors.Wrap(fsindexerrors.ErrCodeInternal, fmt.Errorf("decode vision response: %w", err))
	}
	if parsed.Error != nil {
		return "", fsindexerrors.New(fsindexerrors.ErrCodeEmbeddingFailed, parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", fsindexerrors.New(fsindexerrors.ErrCodeEmbeddingFailed, "vision response contained no choices", nil)
	}

	return parsed.Choices[0].Message.Content, nil
}
