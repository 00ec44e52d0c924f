// Package orch locates and manages the orchestration directory: the set of
// sidecar files that coordinate intents, audit records, and HITL decisions
// across every agent session working in the same workspace.
package orch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the orchestration directory name, relative to the workspace root.
const DirName = ".orchestration"

// Sidecar file names inside the orchestration directory.
const (
	IntentsFile       = "active_intents.yaml"
	IgnoreFile        = ".intentignore"
	TraceFile         = "agent_trace.jsonl"
	DecisionsFile     = "intent-decisions.jsonl"
	DiagnosticsFile   = "agent-diagnostics.jsonl"
	KnowledgeFile     = "AGENT.md"
	PolicyFileJSON    = "command-policy.json"
	PolicyFileYAML    = "command-policy.yaml"
)

// Dir is a resolved orchestration directory rooted in a workspace.
type Dir struct {
	Root string // absolute path of the orchestration directory
}

// Resolve derives the orchestration directory from a workspace directory.
// The directory is not created; call Ensure before the first write.
func Resolve(workspaceDir string) Dir {
	return Dir{Root: filepath.Join(workspaceDir, DirName)}
}

// Ensure creates the orchestration directory if it does not exist yet.
func (d Dir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return fmt.Errorf("orch: create %s: %w", d.Root, err)
	}
	return nil
}

func (d Dir) IntentsPath() string     { return filepath.Join(d.Root, IntentsFile) }
func (d Dir) IgnorePath() string      { return filepath.Join(d.Root, IgnoreFile) }
func (d Dir) TracePath() string       { return filepath.Join(d.Root, TraceFile) }
func (d Dir) DecisionsPath() string   { return filepath.Join(d.Root, DecisionsFile) }
func (d Dir) DiagnosticsPath() string { return filepath.Join(d.Root, DiagnosticsFile) }
func (d Dir) KnowledgePath() string   { return filepath.Join(d.Root, KnowledgeFile) }

// PolicyPaths returns the candidate command-policy files in probe order.
// JSON takes precedence over YAML when both exist.
func (d Dir) PolicyPaths() []string {
	return []string{
		filepath.Join(d.Root, PolicyFileJSON),
		filepath.Join(d.Root, PolicyFileYAML),
	}
}

// IgnoredIntents reads the ignore file and returns the set of intent ids
// exempt from gate checks. One id per line; lines starting with '#' and
// blank lines are skipped. A missing file yields an empty set.
func (d Dir) IgnoredIntents() (map[string]bool, error) {
	f, err := os.Open(d.IgnorePath())
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("orch: open %s: %w", d.IgnorePath(), err)
	}
	defer f.Close()

	ids := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Strip trailing comments: "INT-1  # migration freeze"
		if idx := strings.Index(line, "#"); idx > 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line != "" {
			ids[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("orch: read %s: %w", d.IgnorePath(), err)
	}
	return ids, nil
}
