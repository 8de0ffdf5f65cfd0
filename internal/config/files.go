package config

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/postpatch/internal/dialect"
)

// ResolveBases turns command-line arguments into generator base names. An
// argument may be a base name ("build/kernel"), one of its backend files
// ("build/kernel.cl"), or a glob over either ("build/*.cl", "out/**/*.nvvm").
// Results keep argument order and are deduplicated.
func ResolveBases(args []string) ([]string, error) {
	var bases []string
	seen := make(map[string]bool)
	add := func(path string) {
		base := BaseName(path)
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}

	for _, arg := range args {
		if !hasMeta(arg) {
			add(arg)
			continue
		}
		matches, err := expandGlob(arg)
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, ok := dialect.ByExt(filepath.Ext(m)); ok {
				add(m)
			}
		}
	}
	return bases, nil
}

// BaseName strips a known backend extension from path
func BaseName(path string) string {
	ext := filepath.Ext(path)
	if _, ok := dialect.ByExt(ext); ok {
		return strings.TrimSuffix(path, ext)
	}
	return path
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

// expandGlob expands a glob pattern, handling ** for recursive matching
func expandGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return expandDoubleStarGlob(pattern)
	}
	return filepath.Glob(pattern)
}

// expandDoubleStarGlob handles ** patterns by walking the directory tree
func expandDoubleStarGlob(pattern string) ([]string, error) {
	parts := strings.SplitN(pattern, "**", 2)
	baseDir := filepath.Clean(parts[0])
	if parts[0] == "" {
		baseDir = "."
	}
	suffix := strings.TrimPrefix(parts[1], string(filepath.Separator))

	var results []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return nil
		}
		if matchSuffix(rel, suffix) {
			results = append(results, path)
		}
		return nil
	})
	return results, err
}

// matchSuffix checks if a path matches the part of a pattern after **
func matchSuffix(path, pattern string) bool {
	if pattern == "" {
		return true
	}

	// "*.cl" matches the file name at any depth
	if !strings.Contains(pattern, string(filepath.Separator)) {
		matched, _ := filepath.Match(pattern, filepath.Base(path))
		return matched
	}

	// "gen/*.cl" matches the trailing path components
	want := strings.Count(pattern, string(filepath.Separator)) + 1
	parts := strings.Split(path, string(filepath.Separator))
	if len(parts) < want {
		return false
	}
	tail := filepath.Join(parts[len(parts)-want:]...)
	matched, _ := filepath.Match(pattern, tail)
	return matched
}
