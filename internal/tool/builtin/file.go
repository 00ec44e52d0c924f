package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/intentgate/intent-gate/internal/snapshot"
	"github.com/intentgate/intent-gate/internal/tool"
)

const (
	maxFileSize  = 1 << 20 // 1MB read limit
	maxWriteSize = 1 << 20 // reject oversized content before filesystem access
)

// ── read_file ──

// ReadFileTool returns the content of a workspace file.
type ReadFileTool struct {
	workspaceDir string
}

func NewReadFileTool(workspaceDir string) *ReadFileTool {
	return &ReadFileTool{workspaceDir: workspaceDir}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the content of a file in the workspace." }

func (t *ReadFileTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path, relative to the workspace", Required: true},
	)
}

func (t *ReadFileTool) Init(_ context.Context) error { return nil }
func (t *ReadFileTool) Close() error                 { return nil }

type filePathArgs struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Execute(_ context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a filePathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}

	path, err := safeResolvePath(a.Path, t.workspaceDir)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	// Open first, then stat: eliminates the race where the file is
	// replaced between a stat and the read.
	f, err := os.Open(path)
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("cannot open %s: %v", a.Path, err)}, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("cannot stat %s: %v", a.Path, err)}, nil
	}
	if info.IsDir() {
		return tool.ToolResult{Error: fmt.Sprintf("%s is a directory", a.Path)}, nil
	}
	if info.Size() > maxFileSize {
		return tool.ToolResult{Error: fmt.Sprintf("file too large (%d bytes, limit %d)", info.Size(), maxFileSize)}, nil
	}

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize))
	if err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("read failed: %v", err)}, nil
	}
	return tool.ToolResult{Output: string(data)}, nil
}

// ── write_file ──

// WriteFileTool creates or overwrites a workspace file. The final
// optimistic-lock check runs immediately before the write so a concurrent
// edit between snapshot and write surfaces as stale_file instead of being
// clobbered.
type WriteFileTool struct {
	workspaceDir string
}

func NewWriteFileTool(workspaceDir string) *WriteFileTool {
	return &WriteFileTool{workspaceDir: workspaceDir}
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace (create or overwrite)."
}

func (t *WriteFileTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path, relative to the workspace", Required: true},
		tool.SchemaParam{Name: "content", Type: "string", Description: "Full new file content", Required: true},
		tool.SchemaParam{Name: "intent_id", Type: "string", Description: "Intent the write belongs to (injected when omitted)"},
		tool.SchemaParam{Name: "mutation_class", Type: "string", Description: "Kind of change", Enum: []string{"AST_REFACTOR", "INTENT_EVOLUTION"}},
	)
}

func (t *WriteFileTool) Init(_ context.Context) error { return nil }
func (t *WriteFileTool) Close() error                 { return nil }

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a writeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if len(a.Content) > maxWriteSize {
		return tool.ToolResult{Error: fmt.Sprintf("content too large (%d bytes, limit %d)", len(a.Content), maxWriteSize)}, nil
	}

	path, err := safeResolvePath(a.Path, t.workspaceDir)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}

	// Final read-and-compare against the snapshot, as late as possible.
	if inv := tool.InvocationFrom(ctx); inv != nil {
		if veto := snapshot.CheckLock(inv.Session, inv.CallID, a.Path, t.Name(), t.workspaceDir); veto != nil {
			return tool.ToolResult{Error: veto.JSON()}, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("cannot create parent directory: %v", err)}, nil
	}
	if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("write failed: %v", err)}, nil
	}
	return tool.ToolResult{Output: fmt.Sprintf("wrote %d bytes to %s", len(a.Content), a.Path)}, nil
}
