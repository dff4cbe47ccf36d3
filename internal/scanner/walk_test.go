package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fsgraph/indexer/internal/pathmatch"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalkRespectsMatcher(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.go"), "package main")
	writeFile(t, filepath.Join(root, "node_modules", "dep.js"), "ignored")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")

	matcher := pathmatch.New()

	out, err := Walk(context.Background(), root, matcher, 4, func(ctx context.Context, absPath, relPath string, modTime int64) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"keep.go"}, out.ToIndex)
	require.Equal(t, 0, out.FastSkipped)
}

func TestWalkFastSkipPerPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	matcher := pathmatch.New()

	out, err := Walk(context.Background(), root, matcher, 4, func(ctx context.Context, absPath, relPath string, modTime int64) (bool, error) {
		return relPath == "a.txt", nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b.txt"}, out.ToIndex)
	require.Equal(t, 1, out.FastSkipped)
}

func TestWalkSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	writeFile(t, target, "real")
	require.NoError(t, os.Symlink(target, filepath.Join(root, "link.txt")))

	matcher := pathmatch.New()
	out, err := Walk(context.Background(), root, matcher, 4, func(ctx context.Context, absPath, relPath string, modTime int64) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"real.txt"}, out.ToIndex)
}

func TestWalkPropagatesCheckError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	matcher := pathmatch.New()
	_, err := Walk(context.Background(), root, matcher, 4, func(ctx context.Context, absPath, relPath string, modTime int64) (bool, error) {
		return false, os.ErrClosed
	})
	require.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	require.Equal(t, "go", DetectLanguage("main.go"))
	require.Equal(t, "dockerfile", DetectLanguage("path/to/Dockerfile"))
	require.Equal(t, "", DetectLanguage("path/to/noext"))
}
