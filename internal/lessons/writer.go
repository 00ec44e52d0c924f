// Package lessons appends verification-failure summaries to the shared
// knowledge file so that every session learns from stale-write incidents.
package lessons

import (
	"context"
	"fmt"

	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/ledger"
	"github.com/intentgate/intent-gate/internal/orch"
	"github.com/intentgate/intent-gate/internal/session"
)

const lessonText = "Lesson: re-read files immediately before writing; another agent or the user may have changed them since the last read."

// Writer is a post-hook with no tool filter. When the session carries a
// verification failure it appends a short Markdown block to AGENT.md and
// clears the failure. Idempotent when no failure is recorded.
type Writer struct {
	Orch orch.Dir
}

func (w *Writer) Name() string { return "lessons_learned" }

func (w *Writer) Match(string) bool { return true }

func (w *Writer) After(_ context.Context, st *session.State, _ *hook.ToolCall, _ hook.ToolOutcome) hook.PostResult {
	failure := st.TakeVerificationFailure()
	if failure == nil {
		return hook.PostResult{Success: true}
	}

	block := fmt.Sprintf(
		"\n## Verification failure — %s\n\n- tool: `%s`\n- path: `%s`\n- expected: `%s`\n- actual: `%s`\n\n%s\n",
		failure.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		failure.Tool,
		failure.Path,
		failure.ExpectedHash,
		failure.ActualHash,
		lessonText,
	)
	if err := ledger.AppendWithLock(w.Orch.KnowledgePath(), []byte(block)); err != nil {
		return hook.PostResult{Success: false, Error: err.Error()}
	}
	return hook.PostResult{Success: true, SideEffects: map[string]any{"lesson_path": failure.Path}}
}
