// Package config loads and validates the daemon's configuration: the graph
// store connection, the embedding/VL endpoints, and the scan/index/search
// tuning knobs. Layering: built-in defaults, then an optional YAML file,
// then FSGRAPH_*-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fsgraph/indexer/internal/chunk"
	"github.com/fsgraph/indexer/internal/fileindexer"
	"github.com/fsgraph/indexer/internal/imageprep"
	"github.com/fsgraph/indexer/internal/pathmatch"
	"github.com/fsgraph/indexer/internal/rrf"
)

// Config is the complete daemon configuration.
type Config struct {
	GraphStore GraphStoreConfig `yaml:"graph_store" json:"graph_store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Vision     VisionConfig     `yaml:"vision" json:"vision"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Images     ImagesConfig     `yaml:"images" json:"images"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// GraphStoreConfig configures the Neo4j connection the GraphStore adapter
// wraps.
type GraphStoreConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	// ClearAllToken is the safety token ClearAll compares against; it is
	// never read from the environment by graphstore.Store itself, only
	// supplied here for the operator to pass through explicitly.
	ClearAllToken string `yaml:"clear_all_token" json:"clear_all_token"`
}

// EmbeddingsConfig configures internal/embedclient.
type EmbeddingsConfig struct {
	Endpoint       string        `yaml:"endpoint" json:"endpoint"`
	APIKey         string        `yaml:"api_key" json:"api_key"`
	Model          string        `yaml:"model" json:"model"`
	Dimensions     int           `yaml:"dimensions" json:"dimensions"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// Multimodal indicates the configured model can embed image data URLs
	// directly; when false, images are routed through Vision first.
	Multimodal bool `yaml:"multimodal" json:"multimodal"`
	// CacheSize is the LRU entry count for the content-hash embedding
	// cache (internal/embedclient.CachedClient). 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// VisionConfig configures internal/vlclient. Endpoint empty disables image
// description (images are then skipped unless Embeddings.Multimodal).
type VisionConfig struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Model    string        `yaml:"model" json:"model"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// ChunkingConfig configures internal/chunk and FileIndexer's chunk
// threshold.
type ChunkingConfig struct {
	ChunkSize      int `yaml:"chunk_size" json:"chunk_size"`
	Overlap        int `yaml:"overlap" json:"overlap"`
	ChunkThreshold int `yaml:"chunk_threshold" json:"chunk_threshold"`
}

// ImagesConfig configures internal/imageprep.
type ImagesConfig struct {
	MaxPixels         int `yaml:"max_pixels" json:"max_pixels"`
	TargetLongestSide int `yaml:"target_longest_side" json:"target_longest_side"`
	JPEGQuality       int `yaml:"jpeg_quality" json:"jpeg_quality"`
}

// IndexingConfig configures WatchManager's concurrency and the document
// extractor's feature flags.
type IndexingConfig struct {
	ScanConcurrency            int           `yaml:"scan_concurrency" json:"scan_concurrency"`
	IndexConcurrency           int           `yaml:"index_concurrency" json:"index_concurrency"`
	MaxConcurrentSubscriptions int           `yaml:"max_concurrent_subscriptions" json:"max_concurrent_subscriptions"`
	InterCallDelay             time.Duration `yaml:"inter_call_delay" json:"inter_call_delay"`
	DebounceWindow             time.Duration `yaml:"debounce_window" json:"debounce_window"`
	PartialWriteRetries        int           `yaml:"partial_write_retries" json:"partial_write_retries"`
	DisablePDF                 bool          `yaml:"disable_pdf" json:"disable_pdf"`
	IgnoreFileName             string        `yaml:"ignore_file_name" json:"ignore_file_name"`
	GenerateEmbeddings         bool          `yaml:"generate_embeddings" json:"generate_embeddings"`
	// SensitiveOverrides re-admits files matched by the built-in
	// sensitive-filename patterns (e.g. ".env" for a project whose .env
	// holds nothing secret). Each entry becomes a negation pattern.
	SensitiveOverrides []string `yaml:"sensitive_overrides" json:"sensitive_overrides"`
}

// SearchConfig configures HybridSearchService's defaults.
type SearchConfig struct {
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`
	DefaultLimit  int     `yaml:"default_limit" json:"default_limit"`
	RRFK          int     `yaml:"rrf_k" json:"rrf_k"`
	RRFMinScore   float64 `yaml:"rrf_min_score" json:"rrf_min_score"`
}

// ServerConfig configures the daemon's own listener, if any.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration's built-in defaults: scan concurrency
// 50, index concurrency 3, max concurrent subscriptions 1, minSimilarity
// 0.75, RRF k 60/minScore 0.01.
func Default() *Config {
	return &Config{
		GraphStore: GraphStoreConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Embeddings: EmbeddingsConfig{
			Endpoint:       "http://localhost:11434/api/embed",
			Model:          "nomic-embed-text",
			Dimensions:     768,
			MaxRetries:     3,
			RequestTimeout: 60 * time.Second,
			CacheSize:      4096,
		},
		Vision: VisionConfig{
			Timeout: 2 * time.Minute,
		},
		Chunking: ChunkingConfig{
			ChunkSize:      chunk.DefaultChunkSize,
			Overlap:        chunk.DefaultOverlap,
			ChunkThreshold: chunk.DefaultChunkSize,
		},
		Images: func() ImagesConfig {
			d := imageprep.DefaultConfig()
			return ImagesConfig{MaxPixels: d.MaxPixels, TargetLongestSide: d.TargetLongestSide, JPEGQuality: d.JPEGQuality}
		}(),
		Indexing: IndexingConfig{
			ScanConcurrency:            50,
			IndexConcurrency:           3,
			MaxConcurrentSubscriptions: 1,
			DebounceWindow:             2 * time.Second,
			PartialWriteRetries:        3,
			IgnoreFileName:             pathmatch.DefaultIgnoreFileName,
			GenerateEmbeddings:         true,
		},
		Search: SearchConfig{
			MinSimilarity: 0.75,
			DefaultLimit:  20,
			RRFK:          rrf.DefaultK,
			RRFMinScore:   rrf.DefaultMinScore,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file at path (if
// non-empty and it exists), and FSGRAPH_*-prefixed environment overrides,
// in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeYAMLFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FSGRAPH_GRAPH_STORE_URI"); v != "" {
		c.GraphStore.URI = v
	}
	if v := os.Getenv("FSGRAPH_GRAPH_STORE_USERNAME"); v != "" {
		c.GraphStore.Username = v
	}
	if v := os.Getenv("FSGRAPH_GRAPH_STORE_PASSWORD"); v != "" {
		c.GraphStore.Password = v
	}
	if v := os.Getenv("FSGRAPH_GRAPH_STORE_DATABASE"); v != "" {
		c.GraphStore.Database = v
	}
	if v := os.Getenv("FSGRAPH_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("FSGRAPH_EMBEDDINGS_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("FSGRAPH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("FSGRAPH_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("FSGRAPH_EMBEDDINGS_MULTIMODAL"); v != "" {
		c.Embeddings.Multimodal = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("FSGRAPH_VISION_ENDPOINT"); v != "" {
		c.Vision.Endpoint = v
	}
	if v := os.Getenv("FSGRAPH_VISION_MODEL"); v != "" {
		c.Vision.Model = v
	}
	if v := os.Getenv("FSGRAPH_EMBEDDINGS_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.MaxRetries = n
		}
	}
	if v := os.Getenv("FSGRAPH_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.ChunkSize = n
		}
	}
	if v := os.Getenv("FSGRAPH_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chunking.Overlap = n
		}
	}
	if v := os.Getenv("FSGRAPH_SCAN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.ScanConcurrency = n
		}
	}
	if v := os.Getenv("FSGRAPH_INDEX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.IndexConcurrency = n
		}
	}
	if v := os.Getenv("FSGRAPH_MAX_CONCURRENT_SUBSCRIPTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Indexing.MaxConcurrentSubscriptions = n
		}
	}
	if v := os.Getenv("FSGRAPH_INTER_CALL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Indexing.InterCallDelay = d
		}
	}
	if v := os.Getenv("FSGRAPH_VISION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Vision.Timeout = d
		}
	}
	if v := os.Getenv("FSGRAPH_SENSITIVE_OVERRIDES"); v != "" {
		c.Indexing.SensitiveOverrides = splitCommaList(v)
	}
	if v := os.Getenv("FSGRAPH_DISABLE_PDF"); v != "" {
		c.Indexing.DisablePDF = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("FSGRAPH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations that would fail fast and confusingly
// later (e.g. a zero embedding dimension causing a GraphStore.Bootstrap
// schema mismatch).
func (c *Config) Validate() error {
	if c.GraphStore.URI == "" {
		return fmt.Errorf("config: graph_store.uri must not be empty")
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("config: embeddings.dimensions must be positive")
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("config: chunking.chunk_size must be positive")
	}
	if c.Indexing.ScanConcurrency <= 0 || c.Indexing.IndexConcurrency <= 0 {
		return fmt.Errorf("config: scan/index concurrency must be positive")
	}
	if c.Indexing.MaxConcurrentSubscriptions <= 0 {
		return fmt.Errorf("config: max_concurrent_subscriptions must be positive")
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("config: search.min_similarity must be within [0,1]")
	}
	return nil
}

// IndexerConfig projects the subset of Config that internal/fileindexer.New
// consumes.
func (c *Config) IndexerConfig() fileindexer.Config {
	return fileindexer.Config{
		ChunkThreshold:       c.Chunking.ChunkThreshold,
		MultimodalEmbeddings: c.Embeddings.Multimodal,
		PartialWriteRetries:  c.Indexing.PartialWriteRetries,
		PartialWriteDelays:   []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
	}
}
