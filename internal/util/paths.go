package util

import (
	"path/filepath"
	"strings"
)

// PosixRel normalizes a path to the single canonical form used for scope
// matching, stale-block lookup, and snapshot keys: POSIX separators,
// relative to workDir when the path points inside it, with any leading
// "./" stripped. Paths outside workDir keep their (slash-converted) form.
func PosixRel(path, workDir string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	if filepath.IsAbs(filepath.FromSlash(p)) && workDir != "" {
		if rel, err := filepath.Rel(workDir, filepath.FromSlash(p)); err == nil && !strings.HasPrefix(rel, "..") {
			p = filepath.ToSlash(rel)
		}
	}
	p = strings.TrimPrefix(p, "./")
	return filepath.ToSlash(filepath.Clean(p))
}

// AbsIn resolves a possibly-relative path against workDir.
func AbsIn(path, workDir string) string {
	p := filepath.FromSlash(strings.ReplaceAll(path, "\\", "/"))
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(workDir, p)
}
