package indexer

import (
	"path/filepath"
	"strings"
)

// SkipName reports whether a file or directory name should be excluded from
// indexing: hidden names, office lock files and transient download/temp
// artifacts. It is a pure predicate so traversal rules are testable without
// a filesystem.
func SkipName(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tmp", ".lock", ".part", ".crdownload":
		return true
	}
	return false
}

// Category derives the coarse filter facet from a path relative to the
// corpus root: the first path segment, or "General" for top-level files.
func Category(relPath string) string {
	relPath = filepath.ToSlash(relPath)
	if i := strings.Index(relPath, "/"); i > 0 {
		return relPath[:i]
	}
	return "General"
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return r
}

func baseName(p string) string { return filepath.Base(p) }
