package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/intentgate/intent-gate/internal/classify"
	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/ledger"
	"github.com/intentgate/intent-gate/internal/orch"
	"github.com/intentgate/intent-gate/internal/session"
	"github.com/intentgate/intent-gate/internal/util"
)

// paramAllowList are the call arguments copied into a trace entry verbatim.
var paramAllowList = []string{"path", "file_path", "intent_id", "mutation_class", "command", "prompt", "image"}

// paramRedactList are arguments recorded as present but with their bodies
// stripped: patch and edit payloads can be large and may embed secrets.
var paramRedactList = []string{"patch", "diff", "old_string", "new_string"}

const redactedPlaceholder = "[redacted]"

// Writer is the audit post-hook for every mutating tool. It consumes the
// snapshots captured before the handler ran, hashes the post-write state of
// each target file, and appends one entry to agent_trace.jsonl. Writer
// failures are reported but never fail the tool call.
type Writer struct {
	Tools       *classify.ToolSet
	Orch        orch.Dir
	WorkDir     string
	Contributor Contributor
	Diag        *ledger.Diagnostics
}

func (w *Writer) Name() string { return "trace_writer" }

// Match applies the writer to mutating tools only.
func (w *Writer) Match(tool string) bool { return w.Tools.IsMutating(tool) }

// After assembles and appends the trace entry.
func (w *Writer) After(_ context.Context, st *session.State, call *hook.ToolCall, outcome hook.ToolOutcome) hook.PostResult {
	// A failed handler mutated nothing; consume the snapshots and move on.
	if outcome.Error != "" {
		st.DropSnapshots(call.ID)
		return hook.PostResult{Success: true}
	}

	if err := w.Orch.Ensure(); err != nil {
		return hook.PostResult{Success: false, Error: err.Error()}
	}

	intentID := call.StringArg("intent_id")
	if intentID == "" {
		if active := st.ActiveIntent(); active != nil {
			intentID = active.ID
		}
	}
	var mutationClass *string
	if mc := call.StringArg("mutation_class"); ValidMutationClass(mc) {
		mutationClass = &mc
	}

	snapshots := st.Snapshots(call.ID)
	defer st.DropSnapshots(call.ID)

	entry := Entry{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		IntentID:      intentID,
		MutationClass: mutationClass,
		Tool:          call.Name,
		ToolUseID:     call.ID,
		Params:        sanitizeParams(call.Args),
		Contributor:   w.Contributor,
		VCS:           VCSInfo{RevisionID: resolveRevision(w.WorkDir)},
	}

	for _, target := range call.TargetPaths() {
		fe, ok := w.fileEntry(st, snapshots, target, intentID)
		if !ok {
			continue // deleted or unreadable: no post-image to attribute
		}
		entry.Files = append(entry.Files, fe)
		st.ClearStaleBlock(util.PosixRel(target, w.WorkDir))
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return hook.PostResult{Success: false, Error: fmt.Sprintf("trace: marshal entry: %v", err)}
	}
	if err := ledger.AppendLine(w.Orch.TracePath(), data); err != nil {
		return hook.PostResult{Success: false, Error: err.Error()}
	}

	w.Diag.Event("trace_writer", "entry_appended", map[string]any{
		"tool_use_id": call.ID,
		"intent_id":   intentID,
		"files":       len(entry.Files),
	})
	return hook.PostResult{Success: true, SideEffects: map[string]any{"trace_entry_id": entry.ID}}
}

func (w *Writer) fileEntry(st *session.State, snapshots map[string]session.Snapshot, target, intentID string) (FileEntry, bool) {
	abs := target
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(w.WorkDir, target)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return FileEntry{}, false
	}

	rel := util.PosixRel(target, w.WorkDir)
	conv := Conversation{
		Contributor: w.Contributor,
		Related:     []Related{{Type: "intent", Value: intentID}},
		Ranges:      []Range{},
	}

	if !util.IsBinary(data) {
		before := ""
		if snap, ok := lookupSnapshot(snapshots, rel, target); ok && snap.Before != nil {
			before = *snap.Before
		}
		conv.Ranges = AddedRanges(before, string(data))
	}

	return FileEntry{
		RelativePath:  rel,
		ContentHash:   util.SHA256Hex(data),
		Conversations: []Conversation{conv},
	}, true
}

// lookupSnapshot tolerates the path-form drift between snapshot keys and
// extracted targets: raw, leading "./", and backslash separators all
// resolve to the same record.
func lookupSnapshot(snapshots map[string]session.Snapshot, candidates ...string) (session.Snapshot, bool) {
	for _, c := range candidates {
		if snap, ok := snapshots[c]; ok {
			return snap, ok
		}
	}
	norm := map[string]session.Snapshot{}
	for k, v := range snapshots {
		norm[normalizeKey(k)] = v
	}
	for _, c := range candidates {
		if snap, ok := norm[normalizeKey(c)]; ok {
			return snap, ok
		}
	}
	return session.Snapshot{}, false
}

func normalizeKey(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "./")
}

// sanitizeParams copies the allow-listed arguments and replaces payload
// bodies with a placeholder.
func sanitizeParams(args map[string]any) map[string]any {
	out := make(map[string]any)
	for _, key := range paramAllowList {
		if v, ok := args[key]; ok {
			out[key] = v
		}
	}
	for _, key := range paramRedactList {
		if _, ok := args[key]; ok {
			out[key] = redactedPlaceholder
		}
	}
	return out
}

// resolveRevision reads the current VCS revision from .git without shelling
// out. Best-effort: an empty string means no repository or an unreadable
// one.
func resolveRevision(workDir string) string {
	head, err := os.ReadFile(filepath.Join(workDir, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	ref := strings.TrimSpace(string(head))
	if !strings.HasPrefix(ref, "ref:") {
		return ref // detached HEAD holds the hash directly
	}
	refName := strings.TrimSpace(strings.TrimPrefix(ref, "ref:"))
	if data, err := os.ReadFile(filepath.Join(workDir, ".git", filepath.FromSlash(refName))); err == nil {
		return strings.TrimSpace(string(data))
	}
	// Fall back to packed-refs.
	packed, err := os.ReadFile(filepath.Join(workDir, ".git", "packed-refs"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(packed), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == refName {
			return fields[0]
		}
	}
	return ""
}
