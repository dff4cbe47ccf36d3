package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fsgraph/indexer/internal/pathmatch"
)

// FastSkipChecker decides, for one candidate file, whether it can be
// fast-skipped (an up-to-date File record already exists).
// Implementations typically call graphstore.Store.GetFileMTime.
type FastSkipChecker func(ctx context.Context, absPath, relPath string, modTime int64) (skip bool, err error)

// Outcome is Walk's result: the files that need Phase 2 indexing, plus a
// count of how many were fast-skipped.
type Outcome struct {
	ToIndex     []string // relative paths
	FastSkipped int
}

// DefaultScanConcurrency is the phase-1 scan concurrency default.
const DefaultScanConcurrency = 50

// Walk performs the fast scan: it discovers every file under root
// that matcher accepts, and for each one calls check to decide fast-skip.
// The directory walk itself is sequential (cheap, stat-only); check calls
// run with up to concurrency workers in flight, since each one typically
// makes a graph-store round trip.
func Walk(ctx context.Context, root string, matcher *pathmatch.PathMatcher, concurrency int, check FastSkipChecker) (*Outcome, error) {
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}

	type found struct {
		abs, rel string
		modTime  int64
	}
	var candidates []found

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if matcher.Match(rel, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		candidates = append(candidates, found{abs: path, rel: rel, modTime: info.ModTime().UnixNano()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			skip, err := check(gctx, c.abs, c.rel, c.modTime)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if skip {
				out.FastSkipped++
			} else {
				out.ToIndex = append(out.ToIndex, c.rel)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
