// Package driver runs the per-tool dispatch loop: pre-hooks, the handler,
// post-hooks, in that order, one call at a time per session.
package driver

import (
	"context"
	"fmt"
	"log"

	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/session"
	"github.com/intentgate/intent-gate/internal/tool"
	"github.com/intentgate/intent-gate/internal/util"
)

// Driver owns the pipeline wiring shared by every session.
type Driver struct {
	Engine   *hook.Engine
	Registry *tool.Registry
	Sessions *session.Store
}

// Dispatch executes one tool call for the given session. Pre-hook vetoes
// return the structured error without invoking the handler; handler errors
// still run post-hooks; post-hook failures never fail the call.
func (d *Driver) Dispatch(ctx context.Context, sessionID string, call *hook.ToolCall) tool.ToolResult {
	st := d.Sessions.GetOrCreate(sessionID)

	if !st.BeginCall() {
		return tool.ToolResult{Error: fmt.Sprintf("session %s already has a tool call in flight", sessionID)}
	}
	defer st.EndCall()

	pre := d.Engine.ExecutePre(ctx, st, call)
	if !pre.Proceed {
		log.Printf("[Driver] %s vetoed by %s: %s", call.Name, pre.VetoedBy, util.TruncateRunes(pre.Error, 200))
		return tool.ToolResult{Error: pre.Error}
	}
	if call.Partial {
		// Nothing to execute yet; the full call follows once streaming ends.
		return tool.ToolResult{}
	}

	handler, ok := d.Registry.Get(call.Name)
	if !ok {
		return tool.ToolResult{Error: fmt.Sprintf("tool %q not found", call.Name)}
	}

	execCtx := tool.WithInvocation(ctx, &tool.Invocation{Session: st, CallID: call.ID})
	result, err := handler.Execute(execCtx, call.ArgsJSON())
	if err != nil {
		// Handler infrastructure errors surface like tool errors; they must
		// still flow through the post-hooks.
		result = tool.ToolResult{Error: fmt.Sprintf("execution failed: %v", err)}
	}

	d.Engine.ExecutePost(ctx, st, call, hook.ToolOutcome{Output: result.Output, Error: result.Error})

	if pre.InjectedContext != "" {
		if result.Output != "" {
			result.Output += "\n"
		}
		result.Output += pre.InjectedContext
	}

	log.Printf("[Driver] %s: executed %s (%d bytes output, err=%v)",
		sessionID, call.Name, len(result.Output), result.Error != "")
	return result
}

// RecordUserMessage stores the newest user prompt on the session so the
// gate can classify user intent for the calls that follow.
func (d *Driver) RecordUserMessage(sessionID, message string) {
	d.Sessions.GetOrCreate(sessionID).SetLastUserMessage(message)
}

// EndSession drops the session's state (client disconnected or cleared).
func (d *Driver) EndSession(sessionID string) {
	d.Sessions.Delete(sessionID)
}
