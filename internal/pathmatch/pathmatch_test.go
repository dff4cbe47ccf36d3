package pathmatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathMatcher_Match_SimplePatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "exact filename match", pattern: "foo.txt", path: "foo.txt", isDir: false, expected: true},
		{name: "exact filename no match", pattern: "foo.txt", path: "bar.txt", isDir: false, expected: false},
		{name: "filename in subdir", pattern: "foo.txt", path: "src/foo.txt", isDir: false, expected: true},
		{name: "filename deep nested", pattern: "foo.txt", path: "a/b/c/foo.txt", isDir: false, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEmpty()
			m.AddPattern(tt.pattern)
			assert.Equal(t, tt.expected, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestPathMatcher_Match_WildcardPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{name: "*.log matches .log", pattern: "*.log", path: "error.log", isDir: false, expected: true},
		{name: "*.log matches deep .log", pattern: "*.log", path: "logs/error.log", isDir: false, expected: true},
		{name: "*.log no match .txt", pattern: "*.log", path: "error.txt", isDir: false, expected: false},
		{name: "file?.txt matches file1.txt", pattern: "file?.txt", path: "file1.txt", isDir: false, expected: true},
		{name: "file?.txt no match file12.txt", pattern: "file?.txt", path: "file12.txt", isDir: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEmpty()
			m.AddPattern(tt.pattern)
			assert.Equal(t, tt.expected, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestPathMatcher_Match_DirectoryOnlyPatterns(t *testing.T) {
	m := NewEmpty()
	m.AddPattern("build/")

	assert.True(t, m.Match("build", true))
	assert.True(t, m.Match("build/output.o", false))
	assert.False(t, m.Match("build", false), "a file named build should not match a dir-only pattern")
}

func TestPathMatcher_Match_Negation(t *testing.T) {
	m := NewEmpty()
	m.AddPattern("*.log")
	m.AddPattern("!keep.log")

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("keep.log", false))
}

func TestPathMatcher_Match_Anchored(t *testing.T) {
	m := NewEmpty()
	m.AddPattern("/only-root.txt")

	assert.True(t, m.Match("only-root.txt", false))
	assert.False(t, m.Match("nested/only-root.txt", false))
}

func TestNew_SeedsDefaultPatterns(t *testing.T) {
	m := New()

	assert.True(t, m.Match(".git", true))
	assert.True(t, m.Match("node_modules", true))
	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("main.go", false))
}

func TestNew_SeedsSensitivePatterns(t *testing.T) {
	m := New()

	assert.True(t, m.Match(".env", false))
	assert.True(t, m.Match("server.pem", false))
	assert.True(t, m.Match("id_rsa", false))

	// An explicit negation re-admits a sensitive filename.
	m.AddPattern("!.env")
	assert.False(t, m.Match(".env", false))
}

func TestLoadIgnoreFile_ReadsPatterns(t *testing.T) {
	dir := t.TempDir()
	ignorePath := filepath.Join(dir, ".fsindexignore")
	require.NoError(t, os.WriteFile(ignorePath, []byte("secrets.env\n*.tmp\n"), 0o644))

	m := NewEmpty()
	require.NoError(t, m.LoadIgnoreFile(ignorePath, ""))

	assert.True(t, m.Match("secrets.env", false))
	assert.True(t, m.Match("cache.tmp", false))
	assert.False(t, m.Match("main.go", false))
}

func TestDiffPatterns_FindsAddedAndRemoved(t *testing.T) {
	added, removed := DiffPatterns("a.txt\nb.txt\n", "b.txt\nc.txt\n")

	assert.ElementsMatch(t, []string{"c.txt"}, added)
	assert.ElementsMatch(t, []string{"a.txt"}, removed)
}

func TestMatchesAnyPattern(t *testing.T) {
	assert.True(t, MatchesAnyPattern("x.log", []string{"*.log"}))
	assert.False(t, MatchesAnyPattern("x.go", []string{"*.log"}))
	assert.False(t, MatchesAnyPattern("x.go", nil))
}
