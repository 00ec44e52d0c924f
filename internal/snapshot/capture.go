// Package snapshot captures pre-mutation file state and enforces the
// optimistic lock: a mutation only lands if the file still matches what the
// session last saw.
package snapshot

import (
	"context"
	"os"

	"github.com/intentgate/intent-gate/internal/classify"
	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/session"
	"github.com/intentgate/intent-gate/internal/util"
)

// maxSnapshotBytes caps captured text content. Larger files still get an
// existence snapshot, but their content is treated as unavailable (nil
// Before): the lock check skips the content comparison for them, and the
// trace writer attributes the whole post-image as one added range.
const maxSnapshotBytes = 4 << 20 // 4MB

// CaptureHook records a snapshot for every target path of a mutating tool
// call, keyed by (tool_call_id, normalized path). It never vetoes.
type CaptureHook struct {
	Tools   *classify.ToolSet
	WorkDir string
}

func (h *CaptureHook) Name() string { return "snapshot_capture" }

func (h *CaptureHook) Match(tool string) bool { return h.Tools.IsMutating(tool) }

func (h *CaptureHook) Before(_ context.Context, st *session.State, call *hook.ToolCall) hook.PreResult {
	if call.Partial {
		return hook.Allow()
	}
	for _, target := range call.TargetPaths() {
		key := util.PosixRel(target, h.WorkDir)
		st.PutSnapshot(call.ID, key, Capture(util.AbsIn(target, h.WorkDir)))
	}
	return hook.Allow()
}

// Capture reads the file at abs and builds its snapshot record.
func Capture(abs string) session.Snapshot {
	data, err := os.ReadFile(abs)
	if err != nil {
		return session.Snapshot{Existed: false}
	}
	if util.IsBinary(data) {
		return session.Snapshot{Existed: true, Binary: true}
	}
	if len(data) > maxSnapshotBytes {
		return session.Snapshot{Existed: true}
	}
	text := string(data)
	return session.Snapshot{Before: &text, Existed: true}
}
