package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
)

// Config configures a Store's connection to the backing graph database.
type Config struct {
	URI      string
	Username string
	Password string
	Database string

	// MaxRetries bounds the transient-retry wrapper's attempts after the
	// initial try.
	MaxRetries int
}

// DefaultConfig returns the transient-retry defaults: 3 retries.
func DefaultConfig() Config {
	return Config{MaxRetries: 3}
}

// Store is the GraphStore adapter.
type Store struct {
	driver neo4j.DriverWithContext
	cfg    Config
}

// New connects a Store to the configured graph database. The caller must
// call Close when done.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeGraphStoreDown, fmt.Sprintf("connect to graph store: %v", err), err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fsindexerrors.New(fsindexerrors.ErrCodeGraphStoreDown, fmt.Sprintf("graph store unreachable: %v", err), err)
	}
	return &Store{driver: driver, cfg: cfg}, nil
}

// Close releases the underlying driver's connection pool.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies the graph store connection is still reachable, for use by
// internal/preflight's startup checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Store) session(ctx context.Context, accessMode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.cfg.Database,
		AccessMode:   accessMode,
	})
}

// withRetry wraps a write operation with the transient-retry policy:
// exponential backoff with jitter, base 100ms * 2^attempt + 0-50ms, capped at
// 2s, up to cfg.MaxRetries retries. Non-retryable errors propagate
// immediately.
func (s *Store) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	cfg := fsindexerrors.RetryConfig{
		MaxRetries:   s.cfg.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       50 * time.Millisecond,
		RetryIf:      isTransient,
	}
	return fsindexerrors.Retry(ctx, cfg, func() error {
		return op(ctx)
	})
}

// isTransient reports whether err is a retryable graph-store error: Neo4j's
// own transient-classified errors, or deadlock/lock-timeout conditions.
func isTransient(err error) bool {
	if fsindexerrors.GetCode(err) == fsindexerrors.ErrCodeGraphStoreTransient {
		return true
	}
	var neo4jErr *neo4j.Neo4jError
	if asNeo4jError(err, &neo4jErr) {
		return neo4jErr.IsRetriable()
	}
	return false
}

func asNeo4jError(err error, target **neo4j.Neo4jError) bool {
	type neo4jErrorer interface {
		Unwrap() error
	}
	for err != nil {
		if ne, ok := err.(*neo4j.Neo4jError); ok {
			*target = ne
			return true
		}
		u, ok := err.(neo4jErrorer)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// WithTransaction runs fn inside a managed write transaction, retried per
// the transient-retry policy.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx neo4j.ManagedTransaction) error) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		session := s.session(ctx, neo4j.AccessModeWrite)
		defer func() { _ = session.Close(ctx) }()

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return nil, fn(ctx, tx)
		})
		return wrapNeo4jErr(err)
	})
}

func wrapNeo4jErr(err error) error {
	if err == nil {
		return nil
	}
	var neo4jErr *neo4j.Neo4jError
	if asNeo4jError(err, &neo4jErr) && neo4jErr.IsRetriable() {
		return fsindexerrors.New(fsindexerrors.ErrCodeGraphStoreTransient, neo4jErr.Error(), err)
	}
	return fsindexerrors.New(fsindexerrors.ErrCodeGraphStoreDown, err.Error(), err)
}
