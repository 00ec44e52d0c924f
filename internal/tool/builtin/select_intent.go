package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/intentgate/intent-gate/internal/tool"
)

// SelectIntentTool is the handler half of the selection handshake. The
// validation, context assembly, and session binding happen in the
// pre-hook; by the time this handler runs the intent is already active, so
// it only acknowledges.
type SelectIntentTool struct{}

func NewSelectIntentTool() *SelectIntentTool { return &SelectIntentTool{} }

func (t *SelectIntentTool) Name() string { return "select_active_intent" }
func (t *SelectIntentTool) Description() string {
	return "Bind a registered IN_PROGRESS intent to this session. Required before any mutating or shell tool call."
}

func (t *SelectIntentTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "intent_id", Type: "string", Description: "Id of the intent to select; may be omitted when exactly one intent is IN_PROGRESS"},
	)
}

func (t *SelectIntentTool) Init(_ context.Context) error { return nil }
func (t *SelectIntentTool) Close() error                 { return nil }

func (t *SelectIntentTool) Execute(ctx context.Context, _ json.RawMessage) (tool.ToolResult, error) {
	inv := tool.InvocationFrom(ctx)
	if inv == nil || inv.Session.ActiveIntent() == nil {
		return tool.ToolResult{Error: "no intent was bound to the session"}, nil
	}
	return tool.ToolResult{Output: fmt.Sprintf("intent %s is now active", inv.Session.ActiveIntent().ID)}, nil
}
