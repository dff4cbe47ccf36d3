package graphstore

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
)

// ListSubscriptions returns every persisted Subscription node, for daemon
// startup reconciliation: a restart re-reads subscriptions from the graph
// and resumes their walkers.
func (s *Store) ListSubscriptions(ctx context.Context) ([]*Subscription, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (s:Subscription) RETURN s`, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		subs := make([]*Subscription, 0, len(records))
		for _, rec := range records {
			node, _ := rec.Get("s")
			n, ok := node.(neo4j.Node)
			if !ok {
				continue
			}
			subs = append(subs, nodeToSubscription(n))
		}
		return subs, nil
	})
	if err != nil {
		return nil, wrapNeo4jErr(err)
	}
	subs, _ := result.([]*Subscription)
	return subs, nil
}

func nodeToSubscription(n neo4j.Node) *Subscription {
	props := n.Props
	sub := &Subscription{}
	if v, ok := props["id"].(string); ok {
		sub.ID = v
	}
	if v, ok := props["rootPath"].(string); ok {
		sub.RootPath = v
	}
	if v, ok := props["recursive"].(bool); ok {
		sub.Recursive = v
	}
	if v, ok := props["includePatterns"].([]any); ok {
		sub.IncludePatterns = toStringSlice(v)
	}
	if v, ok := props["excludePatterns"].([]any); ok {
		sub.ExcludePatterns = toStringSlice(v)
	}
	if v, ok := props["debounceMs"].(int64); ok {
		sub.DebounceWindow = time.Duration(v) * time.Millisecond
	}
	if v, ok := props["generateEmbeddings"].(bool); ok {
		sub.GenerateEmbeddings = v
	}
	if v, ok := props["status"].(string); ok {
		sub.Status = SubscriptionStatus(v)
	}
	if v, ok := props["filesIndexed"].(int64); ok {
		sub.FilesIndexed = int(v)
	}
	if v, ok := props["lastIndexedTime"].(string); ok {
		if t, err := time.Parse(timeLayout, v); err == nil {
			sub.LastIndexedTime = t
		}
	}
	if v, ok := props["errorMessage"].(string); ok {
		sub.ErrorMessage = v
	}
	return sub
}

func toStringSlice(v []any) []string {
	out := make([]string, 0, len(v))
	for _, e := range v {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ListWatchedFiles returns the id and path of every File linked to a
// Subscription by a WATCHES edge, used to reconcile deletions that
// happened while the daemon was down.
func (s *Store) ListWatchedFiles(ctx context.Context, subscriptionID string) (map[string]string, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Subscription {id: $id})-[:WATCHES]->(f:File)
			RETURN f.id AS id, f.path AS path
		`, map[string]any{"id": subscriptionID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[string]string, len(records))
		for _, rec := range records {
			id, _ := rec.Get("id")
			path, _ := rec.Get("path")
			idStr, _ := id.(string)
			pathStr, _ := path.(string)
			if idStr != "" && pathStr != "" {
				out[idStr] = pathStr
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, wrapNeo4jErr(err)
	}
	files, _ := result.(map[string]string)
	return files, nil
}

// UpsertSubscription merges a Subscription node by id and sets its
// properties.
func (s *Store) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		params := map[string]any{
			"id":                 sub.ID,
			"rootPath":           sub.RootPath,
			"recursive":          sub.Recursive,
			"includePatterns":    sub.IncludePatterns,
			"excludePatterns":    sub.ExcludePatterns,
			"debounceMs":         sub.DebounceWindow.Milliseconds(),
			"generateEmbeddings": sub.GenerateEmbeddings,
			"status":             string(sub.Status),
			"filesIndexed":       sub.FilesIndexed,
			"lastIndexedTime":    sub.LastIndexedTime.UTC().Format(timeLayout),
			"errorMessage":       sub.ErrorMessage,
		}
		_, err := tx.Run(ctx, `
			MERGE (s:Subscription {id: $id})
			SET s.rootPath = $rootPath, s.recursive = $recursive,
			    s.includePatterns = $includePatterns, s.excludePatterns = $excludePatterns,
			    s.debounceMs = $debounceMs, s.generateEmbeddings = $generateEmbeddings,
			    s.status = $status, s.filesIndexed = $filesIndexed,
			    s.lastIndexedTime = $lastIndexedTime, s.errorMessage = $errorMessage
		`, params)
		if err != nil {
			return fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, err)
		}
		return nil
	})
}

// DeleteSubscription detach-deletes a Subscription node. Its Files are left
// in place; callers that want a full teardown delete Files separately.
func (s *Store) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, `MATCH (s:Subscription {id: $id}) DETACH DELETE s`, map[string]any{"id": subscriptionID})
		if err != nil {
			return fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, err)
		}
		return nil
	})
}

// UpdateSubscriptionCounters sets files_indexed and last_indexed_time on a
// Subscription after an indexing job completes.
func (s *Store) UpdateSubscriptionCounters(ctx context.Context, subscriptionID string, filesIndexed int) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) error {
		_, err := tx.Run(ctx, `
			MATCH (s:Subscription {id: $id})
			SET s.filesIndexed = $filesIndexed, s.lastIndexedTime = $now
		`, map[string]any{"id": subscriptionID, "filesIndexed": filesIndexed, "now": time.Now().UTC().Format(timeLayout)})
		if err != nil {
			return fsindexerrors.Wrap(fsindexerrors.ErrCodeIndexFailed, err)
		}
		return nil
	})
}
