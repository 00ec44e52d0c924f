package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/intentgate/intent-gate/internal/snapshot"
	"github.com/intentgate/intent-gate/internal/tool"
)

// Patch header markers of the envelope dialect.
const (
	hdrBegin  = "*** Begin Patch"
	hdrEnd    = "*** End Patch"
	hdrAdd    = "*** Add File:"
	hdrUpdate = "*** Update File:"
	hdrDelete = "*** Delete File:"
	hdrMove   = "*** Move to:"
)

// ApplyPatchTool applies an envelope-format patch: one or more file
// sections headed by Add/Update/Delete markers, with "+"/"-"/" " prefixed
// body lines and optional "@@" hunk separators.
type ApplyPatchTool struct {
	workspaceDir string
}

func NewApplyPatchTool(workspaceDir string) *ApplyPatchTool {
	return &ApplyPatchTool{workspaceDir: workspaceDir}
}

func (t *ApplyPatchTool) Name() string { return "apply_patch" }
func (t *ApplyPatchTool) Description() string {
	return "Apply a patch to workspace files. Sections start with '*** Add File:', '*** Update File:' or '*** Delete File:'; update sections may carry '*** Move to:'."
}

func (t *ApplyPatchTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "patch", Type: "string", Description: "Patch body in envelope format", Required: true},
		tool.SchemaParam{Name: "intent_id", Type: "string", Description: "Intent the patch belongs to (injected when omitted)"},
		tool.SchemaParam{Name: "mutation_class", Type: "string", Description: "Kind of change", Enum: []string{"AST_REFACTOR", "INTENT_EVOLUTION"}},
	)
}

func (t *ApplyPatchTool) Init(_ context.Context) error { return nil }
func (t *ApplyPatchTool) Close() error                 { return nil }

type patchArgs struct {
	Patch string `json:"patch"`
}

// fileOp is one parsed patch section.
type fileOp struct {
	kind   string // "add" | "update" | "delete"
	path   string
	moveTo string
	lines  []string // body lines including their +/-/space prefixes
}

func (t *ApplyPatchTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var a patchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	ops, err := parsePatch(a.Patch)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}
	if len(ops) == 0 {
		return tool.ToolResult{Error: "patch contains no file sections"}, nil
	}

	inv := tool.InvocationFrom(ctx)
	var applied []string
	for _, op := range ops {
		// Final lock check per file, immediately before touching it.
		if inv != nil {
			if veto := snapshot.CheckLock(inv.Session, inv.CallID, op.path, t.Name(), t.workspaceDir); veto != nil {
				return tool.ToolResult{Error: veto.JSON()}, nil
			}
		}
		summary, err := t.applyOp(op)
		if err != nil {
			return tool.ToolResult{Error: fmt.Sprintf("%s: %v", op.path, err)}, nil
		}
		applied = append(applied, summary)
	}
	return tool.ToolResult{Output: strings.Join(applied, "\n")}, nil
}

func (t *ApplyPatchTool) applyOp(op fileOp) (string, error) {
	path, err := safeResolvePath(op.path, t.workspaceDir)
	if err != nil {
		return "", err
	}

	switch op.kind {
	case "add":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		content := addedContent(op.lines)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
		return fmt.Sprintf("added %s", op.path), nil

	case "delete":
		if err := os.Remove(path); err != nil {
			return "", err
		}
		return fmt.Sprintf("deleted %s", op.path), nil

	case "update":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		updated, err := applyHunks(string(data), op.lines)
		if err != nil {
			return "", err
		}

		dest := path
		if op.moveTo != "" {
			dest, err = safeResolvePath(op.moveTo, t.workspaceDir)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return "", err
			}
		}
		if err := os.WriteFile(dest, []byte(updated), 0o644); err != nil {
			return "", err
		}
		if dest != path {
			if err := os.Remove(path); err != nil {
				return "", err
			}
			return fmt.Sprintf("updated %s (moved to %s)", op.path, op.moveTo), nil
		}
		return fmt.Sprintf("updated %s", op.path), nil

	default:
		return "", fmt.Errorf("unknown patch operation %q", op.kind)
	}
}

// parsePatch splits the body into per-file operations. The Begin/End
// envelope is optional.
func parsePatch(body string) ([]fileOp, error) {
	var ops []fileOp
	var current *fileOp

	flush := func() {
		if current != nil {
			ops = append(ops, *current)
			current = nil
		}
	}

	bodyLines := strings.Split(body, "\n")
	if n := len(bodyLines); n > 0 && bodyLines[n-1] == "" {
		bodyLines = bodyLines[:n-1] // split artifact of a trailing newline
	}
	for _, raw := range bodyLines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == hdrBegin || trimmed == hdrEnd || trimmed == "":
			// envelope framing and blank lines between sections
			if current != nil && trimmed == "" {
				current.lines = append(current.lines, line)
			}
		case strings.HasPrefix(trimmed, hdrAdd):
			flush()
			current = &fileOp{kind: "add", path: strings.TrimSpace(strings.TrimPrefix(trimmed, hdrAdd))}
		case strings.HasPrefix(trimmed, hdrUpdate):
			flush()
			current = &fileOp{kind: "update", path: strings.TrimSpace(strings.TrimPrefix(trimmed, hdrUpdate))}
		case strings.HasPrefix(trimmed, hdrDelete):
			flush()
			current = &fileOp{kind: "delete", path: strings.TrimSpace(strings.TrimPrefix(trimmed, hdrDelete))}
		case strings.HasPrefix(trimmed, hdrMove):
			if current == nil || current.kind != "update" {
				return nil, fmt.Errorf("'%s' outside an update section", hdrMove)
			}
			current.moveTo = strings.TrimSpace(strings.TrimPrefix(trimmed, hdrMove))
		default:
			if current == nil {
				return nil, fmt.Errorf("patch line outside a file section: %q", line)
			}
			current.lines = append(current.lines, line)
		}
	}
	flush()

	for _, op := range ops {
		if op.path == "" {
			return nil, fmt.Errorf("file section with an empty path")
		}
	}
	return ops, nil
}

// addedContent strips the "+" prefixes of an add section.
func addedContent(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(strings.TrimPrefix(line, "+"))
		b.WriteString("\n")
	}
	return b.String()
}

// applyHunks applies update-section hunks to content. Hunks are separated
// by "@@" lines; within a hunk, " "/"-" lines form the old block and
// " "/"+" lines the new block. Each old block must occur in the file.
func applyHunks(content string, lines []string) (string, error) {
	var hunks [][]string
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(line, "@@") {
			if len(current) > 0 {
				hunks = append(hunks, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		hunks = append(hunks, current)
	}

	for _, hunk := range hunks {
		var oldLines, newLines []string
		for _, line := range hunk {
			switch {
			case strings.HasPrefix(line, "-"):
				oldLines = append(oldLines, line[1:])
			case strings.HasPrefix(line, "+"):
				newLines = append(newLines, line[1:])
			case strings.HasPrefix(line, " "):
				oldLines = append(oldLines, line[1:])
				newLines = append(newLines, line[1:])
			case line == "":
				oldLines = append(oldLines, "")
				newLines = append(newLines, "")
			default:
				// Tolerate unprefixed context lines.
				oldLines = append(oldLines, line)
				newLines = append(newLines, line)
			}
		}
		if len(oldLines) == 0 {
			// Pure insertion with no anchor: append at the end.
			if !strings.HasSuffix(content, "\n") && content != "" {
				content += "\n"
			}
			content += strings.Join(newLines, "\n") + "\n"
			continue
		}

		oldBlock := strings.Join(oldLines, "\n")
		newBlock := strings.Join(newLines, "\n")
		idx := strings.Index(content, oldBlock)
		if idx < 0 {
			return "", fmt.Errorf("hunk context not found: %q", firstLine(oldBlock))
		}
		content = content[:idx] + newBlock + content[idx+len(oldBlock):]
	}
	return content, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
