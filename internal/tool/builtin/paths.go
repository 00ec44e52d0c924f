// Package builtin implements the governed tool handlers: file read/write,
// envelope-patch application, and shell execution. Mutating handlers
// revalidate the optimistic lock immediately before touching the
// filesystem; the surrounding policy checks happen in the gate before the
// handler is ever invoked.
package builtin

import (
	"fmt"
	"path/filepath"
	"strings"
)

// safeResolvePath resolves a possibly-relative path against the workspace
// and rejects anything that escapes it. All handler filesystem access goes
// through this single chokepoint.
func safeResolvePath(path, workspaceDir string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	p := filepath.FromSlash(path)
	if !filepath.IsAbs(p) {
		p = filepath.Join(workspaceDir, p)
	}
	p = filepath.Clean(p)

	root := filepath.Clean(workspaceDir)
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return p, nil
}
