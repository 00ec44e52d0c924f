package snapshot

import (
	"fmt"
	"os"
	"time"

	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/session"
	"github.com/intentgate/intent-gate/internal/util"
)

// CheckLock revalidates the snapshot for (callID, path) against the
// filesystem. Handlers call it once per path, immediately before writing,
// to close the time-of-check/time-of-use window.
//
// Returns nil when the file still matches the snapshot. On a mismatch it
// records a VerificationFailure, marks the path stale-blocked, and returns
// the structured stale_file veto. A missing snapshot is treated as fresh:
// the capture hook may legitimately have skipped a path the handler
// resolved later.
func CheckLock(st *session.State, callID, path, tool, workDir string) *hook.Veto {
	key := util.PosixRel(path, workDir)
	snap, ok := lookup(st.Snapshots(callID), key, path)
	if !ok {
		return nil
	}

	abs := util.AbsIn(path, workDir)
	data, err := os.ReadFile(abs)
	exists := err == nil

	expectedHash := ""
	if snap.Before != nil {
		expectedHash = util.SHA256Hex([]byte(*snap.Before))
	}
	actualHash := ""
	if exists {
		actualHash = util.SHA256Hex(data)
	}

	stale := false
	switch {
	case exists != snap.Existed:
		stale = true
	case snap.Binary || snap.Before == nil:
		// Binary (or oversized) snapshots carry no comparable content.
		stale = false
	default:
		stale = expectedHash != actualHash
	}
	if !stale {
		return nil
	}

	intentID := ""
	if active := st.ActiveIntent(); active != nil {
		intentID = active.ID
	}
	st.SetVerificationFailure(&session.VerificationFailure{
		Tool:         tool,
		Path:         key,
		ExpectedHash: expectedHash,
		ActualHash:   actualHash,
		Timestamp:    time.Now(),
	})
	st.SetStaleBlock(key, tool)

	return &hook.Veto{
		ErrorType:    hook.ErrStaleFile,
		Code:         hook.CodeStaleLock,
		IntentID:     intentID,
		Tool:         tool,
		Path:         key,
		ExpectedHash: expectedHash,
		ActualHash:   actualHash,
		Message: fmt.Sprintf("%s changed on disk since it was last read; re-read the file before writing", key),
	}
}

// lookup tolerates leading "./", backslash separators, and other
// normalization drift between snapshot keys and handler paths.
func lookup(snapshots map[string]session.Snapshot, candidates ...string) (session.Snapshot, bool) {
	if snapshots == nil {
		return session.Snapshot{}, false
	}
	for _, c := range candidates {
		if snap, ok := snapshots[c]; ok {
			return snap, true
		}
	}
	for _, c := range candidates {
		n := util.PosixRel(c, "")
		for k, v := range snapshots {
			if util.PosixRel(k, "") == n {
				return v, true
			}
		}
	}
	return session.Snapshot{}, false
}
