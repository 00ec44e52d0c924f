package tool

import (
	"context"
	"encoding/json"

	"github.com/intentgate/intent-gate/internal/session"
)

// Tool is the unified interface for all governed tool handlers exposed to
// the LLM layer.
type Tool interface {
	// Name returns the tool identifier (the LLM invokes the tool by name).
	Name() string

	// Description returns a natural-language description for the surface
	// the host publishes to the model.
	Description() string

	// InputSchema returns a standard JSON Schema defining the tool's
	// parameters.
	InputSchema() json.RawMessage

	// Execute runs the tool with JSON-encoded arguments. Governance
	// context (session, call id) travels via the context; see Invocation.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Init initializes tool resources. Most tools return nil.
	Init(ctx context.Context) error

	// Close releases tool resources.
	Close() error
}

// ToolResult encapsulates a tool execution result.
type ToolResult struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// SchemaParam describes a single parameter for the BuildSchema helper.
type SchemaParam struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "string", "integer", "boolean", "number"
	Description string   `json:"description"`
	Required    bool     `json:"-"`
	Enum        []string `json:"enum,omitempty"`
}

// BuildSchema generates a standard JSON Schema object from a list of
// SchemaParams so tools avoid hand-writing JSON strings.
func BuildSchema(params ...SchemaParam) json.RawMessage {
	properties := make(map[string]any)
	var required []string

	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	data, _ := json.Marshal(schema)
	return data
}

// Invocation carries the governance context a handler needs for its final
// optimistic-lock checks: the session owning the call and the call id the
// snapshots were recorded under.
type Invocation struct {
	Session *session.State
	CallID  string
}

type invocationKey struct{}

// WithInvocation attaches the invocation to the context for handlers.
func WithInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFrom retrieves the invocation, or nil when the handler runs
// outside the governed pipeline (direct tests, scripts).
func InvocationFrom(ctx context.Context) *Invocation {
	inv, _ := ctx.Value(invocationKey{}).(*Invocation)
	return inv
}
