package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeHandler is a RequestHandler test double whose behavior each test
// configures directly.
type fakeHandler struct {
	mu sync.Mutex

	subscribeErr   error
	unsubscribeErr error
	searchResp     SearchResponse
	searchErr      error
	status         StatusResult
	progress       ProgressResult

	subscribed   []SubscribeParams
	unsubscribed []string
	searched     []SearchParams
}

func (h *fakeHandler) HandleSubscribe(ctx context.Context, params SubscribeParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribed = append(h.subscribed, params)
	return h.subscribeErr
}

func (h *fakeHandler) HandleUnsubscribe(ctx context.Context, params UnsubscribeParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribed = append(h.unsubscribed, params.ID)
	return h.unsubscribeErr
}

func (h *fakeHandler) HandleSearch(ctx context.Context, params SearchParams) (SearchResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.searched = append(h.searched, params)
	return h.searchResp, h.searchErr
}

func (h *fakeHandler) GetStatus() StatusResult {
	return h.status
}

func (h *fakeHandler) GetProgress() ProgressResult {
	return h.progress
}

var _ RequestHandler = (*fakeHandler)(nil)

func startTestServer(t *testing.T, handler RequestHandler) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")

	srv, err := NewServer(socketPath)
	require.NoError(t, err)
	srv.SetHandler(handler)

	ctx, cancel := context.WithCancel(context.Background())
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.ListenAndServe(ctx) }()

	// Wait for the socket to accept connections before returning.
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if client.IsRunning() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-serveErrCh
	})

	return srv, socketPath
}

func TestPingRoundTrip(t *testing.T) {
	_, socketPath := startTestServer(t, &fakeHandler{})
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	require.NoError(t, client.Ping(context.Background()))
}

func TestSubscribeRoundTrip(t *testing.T) {
	handler := &fakeHandler{}
	_, socketPath := startTestServer(t, handler)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	err := client.Subscribe(context.Background(), SubscribeParams{
		ID:   "sub-1",
		Path: "/tmp/project",
	})
	require.NoError(t, err)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.subscribed, 1)
	require.Equal(t, "sub-1", handler.subscribed[0].ID)
}

func TestSubscribeRejectsMissingPath(t *testing.T) {
	handler := &fakeHandler{}
	_, socketPath := startTestServer(t, handler)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	err := client.Subscribe(context.Background(), SubscribeParams{ID: "sub-1"})
	require.Error(t, err)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Empty(t, handler.subscribed, "invalid params must be rejected before reaching the handler")
}

func TestSubscribeSurfacesHandlerError(t *testing.T) {
	handler := &fakeHandler{subscribeErr: errors.New("root already watched")}
	_, socketPath := startTestServer(t, handler)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	err := client.Subscribe(context.Background(), SubscribeParams{ID: "sub-1", Path: "/tmp/project"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "root already watched")
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	handler := &fakeHandler{}
	_, socketPath := startTestServer(t, handler)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	require.NoError(t, client.Unsubscribe(context.Background(), "sub-1"))

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Equal(t, []string{"sub-1"}, handler.unsubscribed)
}

func TestSearchRoundTrip(t *testing.T) {
	handler := &fakeHandler{
		searchResp: SearchResponse{
			Status:       "success",
			Query:        "authentication",
			SearchMethod: "rrf_hybrid",
			Results: []SearchResult{
				{ID: "file-1", Type: "file", ContentPreview: "..."},
			},
			TotalCandidates: 3,
			Returned:        1,
		},
	}
	_, socketPath := startTestServer(t, handler)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	resp, err := client.Search(context.Background(), SearchParams{Query: "authentication", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, "rrf_hybrid", resp.SearchMethod)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "file-1", resp.Results[0].ID)
}

func TestSearchDefaultsLimit(t *testing.T) {
	handler := &fakeHandler{searchResp: SearchResponse{Status: "success"}}
	_, socketPath := startTestServer(t, handler)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	// Limit 0 must not reach the handler as 0; Validate (run by the client
	// and again by the server) defaults it to 20.
	resp, err := client.Search(context.Background(), SearchParams{Query: "x"})
	require.NoError(t, err)
	require.Equal(t, "success", resp.Status)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.searched, 1)
	require.Equal(t, 20, handler.searched[0].Limit)
}

func TestStatusRoundTrip(t *testing.T) {
	handler := &fakeHandler{
		status: StatusResult{
			Subscriptions: []SubscriptionStatus{
				{ID: "sub-1", Path: "/tmp/project", Status: "indexing", FilesIndexed: 4},
			},
		},
	}
	_, socketPath := startTestServer(t, handler)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	require.True(t, status.Running)
	require.Positive(t, status.PID)
	require.Len(t, status.Subscriptions, 1)
	require.Equal(t, "sub-1", status.Subscriptions[0].ID)
}

func TestProgressRoundTrip(t *testing.T) {
	handler := &fakeHandler{
		progress: ProgressResult{
			Subscriptions: []ProgressEntry{
				{Path: "/tmp/project", Status: "indexing", FilesTotal: 10, FilesIndexed: 4, FilesSkipped: 1},
			},
		},
	}
	_, socketPath := startTestServer(t, handler)
	client := NewClient(Config{SocketPath: socketPath, Timeout: time.Second})

	progress, err := client.Progress(context.Background())
	require.NoError(t, err)
	require.Len(t, progress.Subscriptions, 1)
	require.Equal(t, "indexing", progress.Subscriptions[0].Status)
	require.Equal(t, 4, progress.Subscriptions[0].FilesIndexed)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv, _ := startTestServer(t, &fakeHandler{})
	resp := srv.handleRequest(context.Background(), Request{JSONRPC: "2.0", Method: "bogus", ID: "1"})
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestIsRunningFalseWhenNoServer(t *testing.T) {
	client := NewClient(Config{SocketPath: filepath.Join(t.TempDir(), "nope.sock"), Timeout: 100 * time.Millisecond})
	require.False(t, client.IsRunning())
}
