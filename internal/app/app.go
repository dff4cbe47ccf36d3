// Package app wires the daemon's collaborators together: it builds a
// GraphStore, Embedder, VLClient, DocExtractor, ImagePreparer, FileIndexer,
// WatchManager, and HybridSearchService from a loaded config.Config, and
// adapts them to daemon.RequestHandler.
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fsgraph/indexer/internal/chunk"
	"github.com/fsgraph/indexer/internal/config"
	"github.com/fsgraph/indexer/internal/daemon"
	"github.com/fsgraph/indexer/internal/docextract"
	"github.com/fsgraph/indexer/internal/embedclient"
	"github.com/fsgraph/indexer/internal/fileindexer"
	"github.com/fsgraph/indexer/internal/graphstore"
	"github.com/fsgraph/indexer/internal/ids"
	"github.com/fsgraph/indexer/internal/imageprep"
	"github.com/fsgraph/indexer/internal/preflight"
	"github.com/fsgraph/indexer/internal/progressbus"
	"github.com/fsgraph/indexer/internal/search"
	"github.com/fsgraph/indexer/internal/vlclient"
	"github.com/fsgraph/indexer/internal/watch"
)

// App holds every live collaborator the daemon needs, built from a
// config.Config.
type App struct {
	Store     *graphstore.Store
	Watch     *watch.Manager
	Search    *search.Service
	Preflight *preflight.Checker
	Bus       *progressbus.Bus

	embeddingEndpoint string
	visionEndpoint    string
}

// New connects to the graph store and assembles every collaborator. The
// caller owns the returned App's lifetime and must call Close.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := graphstore.New(ctx, graphstore.Config{
		URI:      cfg.GraphStore.URI,
		Username: cfg.GraphStore.Username,
		Password: cfg.GraphStore.Password,
		Database: cfg.GraphStore.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect graph store: %w", err)
	}

	if err := store.Bootstrap(ctx, cfg.Embeddings.Dimensions); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("bootstrap graph schema: %w", err)
	}

	embedder := embedclient.New(embedclient.Config{
		Endpoint:       cfg.Embeddings.Endpoint,
		APIKey:         cfg.Embeddings.APIKey,
		Model:          cfg.Embeddings.Model,
		Dimensions:     cfg.Embeddings.Dimensions,
		MaxRetries:     cfg.Embeddings.MaxRetries,
		RequestTimeout: cfg.Embeddings.RequestTimeout,
	})
	var embedderClient fileindexer.Embedder = embedder
	if cfg.Embeddings.CacheSize > 0 {
		embedderClient = embedclient.NewCachedClient(embedder, cfg.Embeddings.CacheSize)
	}

	vision := vlclient.New(vlclient.Config{
		Endpoint: cfg.Vision.Endpoint,
		Model:    cfg.Vision.Model,
		Timeout:  cfg.Vision.Timeout,
	})

	docs := docextract.New()
	docs.DisablePDF = cfg.Indexing.DisablePDF
	images := imageprep.New(imageprep.Config{
		MaxPixels:         cfg.Images.MaxPixels,
		TargetLongestSide: cfg.Images.TargetLongestSide,
		JPEGQuality:       cfg.Images.JPEGQuality,
	})
	chunker := chunk.NewTextChunker(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap)

	indexer := fileindexer.New(
		cfg.IndexerConfig(),
		store,
		chunker,
		embedderClient,
		vision,
		docs,
		images,
		ids.SystemClock{},
		cfg.Embeddings.Model,
	)

	bus := progressbus.New()
	watchCfg := watch.Config{
		ScanConcurrency:            cfg.Indexing.ScanConcurrency,
		IndexConcurrency:           cfg.Indexing.IndexConcurrency,
		MaxConcurrentSubscriptions: cfg.Indexing.MaxConcurrentSubscriptions,
		InterCallDelay:             cfg.Indexing.InterCallDelay,
		SensitiveOverrides:         cfg.Indexing.SensitiveOverrides,
	}
	watchMgr := watch.New(watchCfg, store, indexer, bus)

	searchSvc := search.New(search.Config{
		MinSimilarity:     cfg.Search.MinSimilarity,
		RRFK:              cfg.Search.RRFK,
		RRFMinScore:       cfg.Search.RRFMinScore,
		EmbeddingsEnabled: cfg.Indexing.GenerateEmbeddings,
	}, store, embedderClient.(search.Embedder))

	checker := preflight.New(preflight.Config{
		EmbeddingEndpoint: cfg.Embeddings.Endpoint,
		VisionEndpoint:    cfg.Vision.Endpoint,
	})

	return &App{
		Store:             store,
		Watch:             watchMgr,
		Search:            searchSvc,
		Preflight:         checker,
		Bus:               bus,
		embeddingEndpoint: cfg.Embeddings.Endpoint,
		visionEndpoint:    cfg.Vision.Endpoint,
	}, nil
}

// RunPreflight runs the startup reachability checks and returns an error
// only if a critical check failed.
func (a *App) RunPreflight(ctx context.Context) ([]preflight.CheckResult, error) {
	results := a.Preflight.RunAll(ctx, a.Store)
	if a.Preflight.HasCriticalFailures(results) {
		return results, fmt.Errorf("preflight checks failed:\n%s", preflight.Summary(results))
	}
	return results, nil
}

// Close releases the graph store's connection pool. Callers that need
// graceful subscription teardown first should call Watch.Shutdown.
func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}

// Handler adapts an App to daemon.RequestHandler.
type Handler struct {
	app *App
}

// NewHandler builds a daemon.RequestHandler backed by app.
func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

var _ daemon.RequestHandler = (*Handler)(nil)

// HandleSubscribe starts a new watched subscription.
func (h *Handler) HandleSubscribe(ctx context.Context, params daemon.SubscribeParams) error {
	return h.app.Watch.Subscribe(ctx, watch.SubscribeRequest{
		ID:                 params.ID,
		Path:               params.Path,
		Recursive:          params.Recursive,
		IgnorePatterns:     params.IgnorePatterns,
		DebounceWindow:     time.Duration(params.DebounceMS) * time.Millisecond,
		GenerateEmbeddings: params.GenerateEmbeddings,
	})
}

// HandleUnsubscribe stops a subscription's watcher and removes its
// persisted record (watch.Manager.StopWatch only does the former).
func (h *Handler) HandleUnsubscribe(ctx context.Context, params daemon.UnsubscribeParams) error {
	subs := h.app.Watch.ListSubscriptions()
	var path string
	for _, s := range subs {
		if s.ID == params.ID {
			path = s.RootPath
			break
		}
	}
	if path == "" {
		return fmt.Errorf("no active subscription with id %s", params.ID)
	}

	if err := h.app.Watch.StopWatch(path); err != nil {
		return err
	}
	return h.app.Store.DeleteSubscription(ctx, params.ID)
}

// HandleSearch runs a hybrid search query and shapes the result into
// daemon.SearchResponse.
func (h *Handler) HandleSearch(ctx context.Context, params daemon.SearchParams) (daemon.SearchResponse, error) {
	query := search.Query{
		Text:     params.Query,
		Types:    params.Types,
		Limit:    params.Limit,
		BM25Only: false,
	}
	if params.MinSimilarity != nil {
		query.MinSimilarity = *params.MinSimilarity
	}
	if params.RRFK != nil {
		query.RRFK = *params.RRFK
	}
	if params.RRFMinScore != nil {
		query.RRFMinScore = *params.RRFMinScore
	}
	if params.RRFVectorWeight != nil {
		query.VectorWeight = *params.RRFVectorWeight
	}
	if params.RRFBm25Weight != nil {
		query.BM25Weight = *params.RRFBm25Weight
	}

	resp := h.app.Search.Search(ctx, query)
	return toWireResponse(resp), nil
}

// GetProgress reports every tracked subscription's point-in-time indexing
// progress counters.
func (h *Handler) GetProgress() daemon.ProgressResult {
	all := h.app.Watch.GetAllProgress()
	entries := make([]daemon.ProgressEntry, 0, len(all))
	for path, ev := range all {
		entries = append(entries, daemon.ProgressEntry{
			Path:         path,
			Status:       string(ev.Status),
			CurrentFile:  ev.CurrentFile,
			FilesTotal:   ev.FilesTotal,
			FilesIndexed: ev.FilesIndexed,
			FilesSkipped: ev.FilesSkipped,
			FilesErrored: ev.FilesErrored,
			Error:        ev.ErrorMessage,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return daemon.ProgressResult{Subscriptions: entries}
}

// GetStatus reports every tracked subscription's live progress.
func (h *Handler) GetStatus() daemon.StatusResult {
	subs := h.app.Watch.ListSubscriptions()
	statuses := make([]daemon.SubscriptionStatus, 0, len(subs))
	for _, s := range subs {
		ev, _ := h.app.Watch.GetProgress(s.RootPath)
		statuses = append(statuses, daemon.SubscriptionStatus{
			ID:           s.ID,
			Path:         s.RootPath,
			Status:       string(ev.Status),
			FilesIndexed: ev.FilesIndexed,
			Error:        ev.ErrorMessage,
		})
	}
	return daemon.StatusResult{Subscriptions: statuses}
}

func toWireResponse(resp search.Response) daemon.SearchResponse {
	results := make([]daemon.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		score := r.Score
		wr := daemon.SearchResult{
			ID:             r.ID,
			Type:           r.Type,
			Title:          r.Title,
			Description:    r.Description,
			ContentPreview: r.ContentPreview,
			ChunksMatched:  r.ChunksMatched,
			Path:           r.ParentFilePath,
			AbsolutePath:   r.AbsolutePath,
		}
		if r.Type == "file_chunk" {
			idx := r.ChunkIndex
			wr.ChunkIndex = &idx
			wr.ChunkText = r.ChunkText
			wr.ParentFile = &daemon.ParentFile{
				Path:         r.ParentFilePath,
				AbsolutePath: r.AbsolutePath,
				Name:         r.Title,
				Language:     r.Description,
			}
		}
		if resp.SearchMethod == search.MethodVectorOnly {
			wr.Similarity = &score
		} else {
			wr.Relevance = &score
		}
		results = append(results, wr)
	}

	return daemon.SearchResponse{
		Status:            resp.Status,
		Query:             resp.Query,
		Results:           results,
		TotalCandidates:   resp.TotalCandidates,
		Returned:          resp.Returned,
		SearchMethod:      string(resp.SearchMethod),
		FallbackTriggered: resp.FallbackTriggered,
		Message:           resp.Message,
	}
}
