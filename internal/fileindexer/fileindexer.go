// Package fileindexer implements the FileIndexer component: for one file
// path, decide its format, extract or read its content, classify binary vs
// textual, chunk, embed, and upsert the File and FileChunk records
// idempotently. Covers the full per-file decision tree: document
// extraction / image description / plain-text classification dispatch,
// fast-skip on unchanged mtimes, the three storage strategies, and the
// per-chunk and per-file failure semantics.
package fileindexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsgraph/indexer/internal/chunk"
	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
	"github.com/fsgraph/indexer/internal/graphstore"
	"github.com/fsgraph/indexer/internal/ids"
	"github.com/fsgraph/indexer/internal/imageprep"
	"github.com/fsgraph/indexer/internal/scanner"
	"github.com/fsgraph/indexer/internal/textclassify"
)

// imageExtensions lists the extensions routed through ImagePreparer+VLClient
// instead of plain-text reading.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true,
}

var docExtensions = map[string]bool{".pdf": true, ".docx": true}

// GraphStore is the subset of *graphstore.Store the FileIndexer writes
// through and reads fast-skip state from.
type GraphStore interface {
	UpsertFile(ctx context.Context, f *graphstore.File, subscriptionID string) error
	ReplaceChunks(ctx context.Context, fileID, parentPath string, chunks []*graphstore.FileChunk) error
	GetFileMTime(ctx context.Context, fileID string) (modTime string, exists bool, err error)
}

// Embedder is the subset of *embedclient.Client used to embed chunk/file
// text and, for multimodal providers, image data URLs.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (vec []float32, err error)
	EmbedImage(ctx context.Context, dataURL string) (vec []float32, err error)
}

// VisionDescriber is the subset of *vlclient.Client used to describe images
// when the embedding provider is not multimodal.
type VisionDescriber interface {
	Describe(ctx context.Context, prompt, imageDataURL string) (string, error)
}

// DocExtractor is the subset of *docextract.Extractor used for PDF/DOCX.
type DocExtractor interface {
	Extract(path, ext string) (string, error)
}

// ImagePreparer is the subset of *imageprep.Preparer used to downsample and
// encode images for a VLClient/multimodal-embedding call.
type ImagePreparer interface {
	Prepare(raw []byte, sourceMIME string) (*imageprep.Prepared, error)
}

// Config parameterizes an Indexer.
type Config struct {
	// ChunkThreshold is the text length (runes), above which a file's text
	// is chunked instead of stored whole with a single embedding. Defaults
	// to chunk.DefaultChunkSize.
	ChunkThreshold int
	// MultimodalEmbeddings indicates the configured Embedder can embed
	// images directly; when false, the VisionDescriber's description text
	// is embedded instead.
	MultimodalEmbeddings bool
	// PartialWriteRetries bounds retries of a file whose read/extract fails
	// with a retryable "partial write" error (default 3, 2s/4s/8s backoff).
	PartialWriteRetries int
	// PartialWriteDelays are the backoff delays between partial-write
	// retry attempts (2s, 4s, 8s).
	PartialWriteDelays []time.Duration
}

// DefaultConfig returns the standard indexing defaults.
func DefaultConfig() Config {
	return Config{
		ChunkThreshold:      chunk.DefaultChunkSize,
		PartialWriteRetries: 3,
		PartialWriteDelays:  []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}
}

// Indexer is the FileIndexer.
type Indexer struct {
	cfg        Config
	store      GraphStore
	chunker    chunk.Chunker
	embedder   Embedder
	vision     VisionDescriber
	docs       DocExtractor
	images     ImagePreparer
	clock      ids.Clock
	embedModel string
}

// New builds an Indexer. vision and images may be nil if the subscription
// never indexes image files.
func New(cfg Config, store GraphStore, chunker chunk.Chunker, embedder Embedder, vision VisionDescriber, docs DocExtractor, images ImagePreparer, clock ids.Clock, embedModel string) *Indexer {
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = chunk.DefaultChunkSize
	}
	if cfg.PartialWriteRetries <= 0 {
		cfg.PartialWriteRetries = 3
	}
	if len(cfg.PartialWriteDelays) == 0 {
		cfg.PartialWriteDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	}
	if clock == nil {
		clock = ids.SystemClock{}
	}
	return &Indexer{cfg: cfg, store: store, chunker: chunker, embedder: embedder, vision: vision, docs: docs, images: images, clock: clock, embedModel: embedModel}
}

// Outcome classifies how IndexFile disposed of a path, for the watch
// manager's progress counters.
type Outcome string

const (
	OutcomeIndexed Outcome = "indexed"
	OutcomeSkipped Outcome = "skipped" // fast-skip or unsupported/binary
	OutcomeErrored Outcome = "errored"
)

// Result is IndexFile's return value.
type Result struct {
	Outcome       Outcome
	FileID        string
	RelativePath  string
	SizeBytes     int64
	ChunksCreated int
	Reason        string // set when Outcome != OutcomeIndexed
}

// Request is one file to index.
type Request struct {
	AbsPath            string // absolute path on disk
	RelPath            string // path relative to the subscription root
	SubscriptionID     string
	SubscriptionRoot   string
	GenerateEmbeddings bool
}

// IndexFile indexes one file end-to-end, retrying the whole read/extract
// pipeline on a classified "partial write" error (the file may still be
// being written by the host) with 2s/4s/8s backoff, up to
// PartialWriteRetries retries after the first attempt.
func (idx *Indexer) IndexFile(ctx context.Context, req Request) (*Result, error) {
	retryCfg := fsindexerrors.RetryConfig{
		MaxRetries: idx.cfg.PartialWriteRetries,
		RetryIf:    isPartialWriteError,
		DelayFor: func(err error, attempt int) time.Duration {
			return idx.cfg.PartialWriteDelays[min(attempt, len(idx.cfg.PartialWriteDelays)-1)]
		},
	}

	res, err := fsindexerrors.RetryWithResult(ctx, retryCfg, func() (*Result, error) {
		return idx.indexOnce(ctx, req)
	})
	if err == nil {
		return res, nil
	}

	if isSkippable(err) {
		return &Result{Outcome: OutcomeSkipped, RelativePath: req.RelPath, Reason: err.Error()}, nil
	}
	return &Result{Outcome: OutcomeErrored, RelativePath: req.RelPath, Reason: err.Error()}, err
}

func (idx *Indexer) indexOnce(ctx context.Context, req Request) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(req.RelPath))
	fileID := ids.FileID(req.AbsPath)

	info, err := os.Lstat(req.AbsPath)
	if err != nil {
		return nil, fsindexerrors.Wrap(fsindexerrors.ErrCodeFileNotFound, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeUnsupportedType, "symlinks are not indexed", nil)
	}

	// Step 3: fast-skip against any existing chunk/file record, when this
	// subscription generates embeddings. WatchManager's own phase-1 scan
	// already applies this cheaply across the whole tree; FileIndexer
	// re-checks here so a direct IndexFile call (e.g. from an fs event) is
	// also idempotent against an unchanged file.
	if req.GenerateEmbeddings {
		storedMTime, exists, err := idx.store.GetFileMTime(ctx, fileID)
		if err != nil {
			return nil, err
		}
		if exists {
			stored, perr := time.Parse(graphstoreTimeLayout, storedMTime)
			// Stored mtimes carry millisecond precision; truncate the
			// filesystem mtime to match or an unchanged file would never
			// compare equal.
			if perr == nil && !info.ModTime().UTC().Truncate(time.Millisecond).After(stored) {
				return &Result{Outcome: OutcomeSkipped, FileID: fileID, RelativePath: req.RelPath, Reason: "fast-skip: unchanged since last index"}, nil
			}
		}
	}

	content, isImage, err := idx.readContent(req.AbsPath, ext)
	if err != nil {
		return nil, err
	}

	language := scanner.DetectLanguage(req.RelPath)
	preface := metadataPreface(language, filepath.Base(req.RelPath), req.RelPath)

	file := &graphstore.File{
		ID:          fileID,
		Path:        req.AbsPath,
		DisplayName: filepath.Base(req.RelPath),
		Extension:   ext,
		Language:    language,
		SizeBytes:   info.Size(),
		LineCount:   strings.Count(content, "\n") + 1,
		ModTime:     info.ModTime(),
		IndexedAt:   idx.clock.Now(),
	}

	if !req.GenerateEmbeddings {
		file.Content = content
		if err := idx.store.UpsertFile(ctx, file, req.SubscriptionID); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeIndexed, FileID: fileID, RelativePath: req.RelPath, SizeBytes: info.Size()}, nil
	}

	runes := []rune(content)
	if len(runes) <= idx.cfg.ChunkThreshold {
		file.Content = content
		vec, embedErr := idx.embedOne(ctx, preface+"\n\n"+content, isImage, req.AbsPath)
		if embedErr != nil {
			return nil, fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, fmt.Errorf("file has zero successful chunks: %w", embedErr))
		}
		file.Embedding = vec
		file.Dimensions = len(vec)
		file.Model = idx.embedModel
		if err := idx.store.UpsertFile(ctx, file, req.SubscriptionID); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeIndexed, FileID: fileID, RelativePath: req.RelPath, SizeBytes: info.Size()}, nil
	}

	file.HasChunks = true
	file.Content = ""
	if err := idx.store.UpsertFile(ctx, file, req.SubscriptionID); err != nil {
		return nil, err
	}

	rawChunks, err := idx.chunker.Chunk(ctx, &chunk.FileInput{Path: req.RelPath, Content: content})
	if err != nil {
		return nil, fsindexerrors.Wrap(fsindexerrors.ErrCodeChunkingFailed, err)
	}

	stored := make([]*graphstore.FileChunk, 0, len(rawChunks))
	for _, c := range rawChunks {
		text := c.Text
		if c.Index == 0 {
			text = preface + "\n\n" + text
		}
		vec, embedErr := idx.embedder.EmbedText(ctx, text)
		if embedErr != nil {
			// Per-chunk fatal: continue with the remaining chunks.
			// Callers log; fileindexer reports via Result.
			continue
		}
		stored = append(stored, &graphstore.FileChunk{
			ID:          ids.ChunkID(req.RelPath, c.Index, c.Text),
			ParentPath:  req.AbsPath,
			Index:       c.Index,
			Text:        c.Text,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Embedding:   vec,
			Dimensions:  len(vec),
			Model:       idx.embedModel,
		})
	}

	if len(stored) == 0 {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeIndexFailed, "file has zero successful chunks", nil)
	}

	total := len(stored)
	for i, c := range stored {
		c.TotalChunks = total
		c.HasPrev = i > 0
		c.HasNext = i < total-1
	}

	if err := idx.store.ReplaceChunks(ctx, fileID, req.AbsPath, stored); err != nil {
		return nil, err
	}

	return &Result{Outcome: OutcomeIndexed, FileID: fileID, RelativePath: req.RelPath, SizeBytes: info.Size(), ChunksCreated: len(stored)}, nil
}

// embedOne embeds either image data (multimodal) or text, used for the
// single-embedding (no-chunk) storage strategy.
func (idx *Indexer) embedOne(ctx context.Context, text string, isImage bool, absPath string) ([]float32, error) {
	if !isImage {
		return idx.embedder.EmbedText(ctx, text)
	}
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fsindexerrors.Wrap(fsindexerrors.ErrCodeFileNotFound, err)
	}
	prepared, err := idx.images.Prepare(raw, "")
	if err != nil {
		return nil, err
	}
	if idx.cfg.MultimodalEmbeddings {
		return idx.embedder.EmbedImage(ctx, prepared.DataURL)
	}
	description, err := idx.vision.Describe(ctx, "Describe this image in detail for semantic search indexing.", prepared.DataURL)
	if err != nil {
		return nil, err
	}
	return idx.embedder.EmbedText(ctx, text+"\n\n"+description)
}

// readContent produces the textual content to chunk/embed for path,
// dispatching on ext: document extraction for PDF/DOCX, image
// description for images, or a classified plain read otherwise. Returns
// isImage so callers route embedding correctly.
func (idx *Indexer) readContent(absPath, ext string) (content string, isImage bool, err error) {
	switch {
	case docExtensions[ext]:
		text, err := idx.docs.Extract(absPath, ext)
		if err != nil {
			return "", false, err
		}
		return text, false, nil

	case imageExtensions[ext]:
		if idx.images == nil {
			return "", false, fsindexerrors.New(fsindexerrors.ErrCodeUnsupportedType, "image indexing is disabled", nil)
		}
		raw, err := os.ReadFile(absPath)
		if err != nil {
			return "", false, fsindexerrors.Wrap(fsindexerrors.ErrCodeFileNotFound, err)
		}
		prepared, err := idx.images.Prepare(raw, "")
		if err != nil {
			return "", false, err
		}
		if idx.cfg.MultimodalEmbeddings {
			return "", true, nil
		}
		if idx.vision == nil {
			return "", false, fsindexerrors.New(fsindexerrors.ErrCodeUnsupportedType, "no VL client configured for non-multimodal image indexing", nil)
		}
		description, err := idx.vision.Describe(context.Background(), "Describe this image in detail for semantic search indexing.", prepared.DataURL)
		if err != nil {
			return "", false, err
		}
		return description, false, nil

	default:
		raw, err := os.ReadFile(absPath)
		if err != nil {
			return "", false, fsindexerrors.Wrap(fsindexerrors.ErrCodeFileNotFound, err)
		}
		if textclassify.Classify(raw) {
			return "", false, fsindexerrors.New(fsindexerrors.ErrCodeUnsupportedType, "binary file", nil)
		}
		return string(raw), false, nil
	}
}

// metadataPreface builds the natural-language identity preface prepended
// before embedding so the vector captures file identity alongside content.
func metadataPreface(language, name, relPath string) string {
	dir := filepath.Dir(relPath)
	if dir == "." {
		dir = "root"
	}
	lang := language
	if lang == "" {
		lang = "plain text"
	}
	return fmt.Sprintf("This is a %s file named %s located at %s in the %s directory.", lang, name, relPath, dir)
}

const graphstoreTimeLayout = "2006-01-02T15:04:05.000Z"

// isPartialWriteError classifies a "partial write" transient (empty
// content, truncated PDF structure, EBUSY/EAGAIN) that warrants
// retrying the whole file rather than failing it immediately, since the
// file may still be mid-write by its producing process.
func isPartialWriteError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	code := fsindexerrors.GetCode(err)
	if code != fsindexerrors.ErrCodeExtractFailed {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no extractable text") ||
		strings.Contains(msg, "contained no extractable text") ||
		strings.Contains(msg, "empty") ||
		strings.Contains(msg, "open pdf:")
}

// isSkippable classifies an error as skip-and-continue rather than
// per-file fatal: unsupported format or binary content.
func isSkippable(err error) bool {
	return fsindexerrors.GetCode(err) == fsindexerrors.ErrCodeUnsupportedType
}
