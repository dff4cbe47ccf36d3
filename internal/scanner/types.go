// Package scanner implements the phase-1 "fast scan" half of the
// two-phase indexing job: a bounded-concurrency directory walk over a
// subscription root that decides, per path, whether the file is unchanged
// since its last index (fast-skipped) or needs FileIndexer.
package scanner

// Language detection is used by FileIndexer for the metadata preface and by
// HybridSearchService's result shaping.

// languageMap maps file extensions and exact filenames to a language tag.
var languageMap = map[string]string{
	".go": "go",

	".js": "javascript", ".jsx": "javascript", ".mjs": "javascript",
	".ts": "typescript", ".tsx": "typescript",

	".py": "python", ".pyw": "python", ".pyi": "python",

	".html": "html", ".htm": "html",
	".css": "css", ".scss": "scss", ".sass": "sass", ".less": "less",

	".json": "json", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml",
	".xml": "xml", ".ini": "ini", ".conf": "config", ".properties": "properties",

	".md": "markdown", ".mdx": "markdown", ".markdown": "markdown", ".rst": "rst", ".txt": "text",

	".sh": "shell", ".bash": "shell", ".zsh": "shell", ".fish": "fish",

	".rb": "ruby", ".rake": "ruby", ".erb": "erb",

	".rs": "rust",

	".java": "java", ".kt": "kotlin", ".kts": "kotlin",

	".c": "c", ".h": "c", ".cpp": "cpp", ".hpp": "cpp", ".cc": "cpp", ".cxx": "cpp",

	".cs":    "csharp",
	".swift": "swift",
	".php":   "php",
	".scala": "scala",

	".ex": "elixir", ".exs": "elixir", ".erl": "erlang",
	".hs":  "haskell",
	".lua": "lua",
	".r":   "r", ".R": "r",
	".sql": "sql",

	"Dockerfile": "dockerfile",
	"Makefile":   "makefile", "makefile": "makefile", "GNUmakefile": "makefile",

	".vue": "vue", ".svelte": "svelte",
	".graphql": "graphql", ".gql": "graphql",
	".proto": "protobuf",

	".pdf": "pdf", ".docx": "docx",
	".png": "image", ".jpg": "image", ".jpeg": "image", ".gif": "image", ".webp": "image", ".bmp": "image",
}

// DetectLanguage detects the language tag for a path, checking exact
// filename matches (Dockerfile, Makefile) before falling back to extension.
func DetectLanguage(path string) string {
	if lang, ok := languageMap[baseName(path)]; ok {
		return lang
	}
	if lang, ok := languageMap[extension(path)]; ok {
		return lang
	}
	return ""
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
