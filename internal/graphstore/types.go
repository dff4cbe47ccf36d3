// Package graphstore implements the GraphStore adapter component: a typed
// wrapper over a property-graph database exposing node/edge CRUD, vector
// KNN, full-text query, and transient-retry semantics over a single
// backing store.
package graphstore

import "time"

// NodeLabel identifies the kind of node stored in the graph.
type NodeLabel string

const (
	LabelSubscription NodeLabel = "Subscription"
	LabelFile         NodeLabel = "File"
	LabelFileChunk    NodeLabel = "FileChunk"
)

// SubscriptionStatus is a Subscription's lifecycle state.
type SubscriptionStatus string

const (
	SubscriptionQueued    SubscriptionStatus = "queued"
	SubscriptionIndexing  SubscriptionStatus = "indexing"
	SubscriptionCompleted SubscriptionStatus = "completed"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionError     SubscriptionStatus = "error"
)

// Subscription is a watched root directory.
type Subscription struct {
	ID                 string
	RootPath           string
	Recursive          bool
	IncludePatterns    []string
	ExcludePatterns    []string
	DebounceWindow     time.Duration
	GenerateEmbeddings bool
	Status             SubscriptionStatus
	FilesIndexed       int
	LastIndexedTime    time.Time
	ErrorMessage       string
}

// File is one tracked file under a subscription.
type File struct {
	ID          string // ids.FileID(path)
	Path        string // absolute path, also the key
	DisplayName string
	Extension   string
	Language    string
	SizeBytes   int64
	LineCount   int
	ModTime     time.Time
	IndexedAt   time.Time
	HasChunks   bool
	// Content holds the full text when HasChunks is false and either
	// embeddings are disabled or the text is short enough to skip chunking.
	Content string
	// Embedding is set when HasChunks is false and embeddings are enabled.
	Embedding  []float32
	Dimensions int
	Model      string
}

// FileChunk is one chunk of a chunked File.
type FileChunk struct {
	ID          string // ids.ChunkID(path, index, text)
	ParentPath  string
	Index       int
	Text        string
	StartOffset int
	EndOffset   int
	Embedding   []float32
	Dimensions  int
	Model       string
	TotalChunks int
	HasNext     bool
	HasPrev     bool
}

// VectorHit is one result of a KNN query.
type VectorHit struct {
	ID    string
	Label NodeLabel
	Score float32 // cosine similarity, higher is better
}

// FullTextHit is one result of a full-text query.
type FullTextHit struct {
	ID    string
	Label NodeLabel
	Score float32
}
