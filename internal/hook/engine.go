package hook

import (
	"context"
	"fmt"
	"log"

	"github.com/intentgate/intent-gate/internal/session"
)

// PreResult is the outcome of one pre-hook.
type PreResult struct {
	Proceed         bool
	Error           string         // structured veto JSON or plain message
	InjectedContext string         // concatenated across hooks
	ModifiedParams  map[string]any // merged into the call args, later hooks win
}

// Allow is the neutral pre-hook result.
func Allow() PreResult { return PreResult{Proceed: true} }

// Block builds a vetoing pre-hook result from an envelope.
func Block(v *Veto) PreResult { return PreResult{Proceed: false, Error: v.JSON()} }

// PostResult is the outcome of one post-hook.
type PostResult struct {
	Success     bool
	Error       string
	SideEffects map[string]any
}

// PreHook runs before the tool handler and may veto, inject context, or
// rewrite parameters.
type PreHook interface {
	Name() string
	// Match reports whether the hook applies to the named tool.
	Match(tool string) bool
	Before(ctx context.Context, st *session.State, call *ToolCall) PreResult
}

// PostHook runs after the tool handler, unconditionally.
type PostHook interface {
	Name() string
	Match(tool string) bool
	After(ctx context.Context, st *session.State, call *ToolCall, result ToolOutcome) PostResult
}

// ToolOutcome is the handler result visible to post-hooks.
type ToolOutcome struct {
	Output string
	Error  string
}

// PreOutcome aggregates a full pre-hook pass.
type PreOutcome struct {
	Proceed         bool
	Error           string
	InjectedContext string
	VetoedBy        string // name of the hook that blocked, if any
}

// NamedPostResult pairs a post-hook with its result for reporting.
type NamedPostResult struct {
	Hook   string
	Result PostResult
}

// Engine is a stateless registry of ordered pre/post hooks. All mutable
// state lives on the session; the engine can be shared by every session in
// the process.
type Engine struct {
	pre  []PreHook
	post []PostHook
}

// NewEngine creates an empty hook engine.
func NewEngine() *Engine { return &Engine{} }

// RegisterPre appends a pre-hook; execution follows registration order.
func (e *Engine) RegisterPre(h PreHook) { e.pre = append(e.pre, h) }

// RegisterPost appends a post-hook; execution follows registration order.
func (e *Engine) RegisterPost(h PostHook) { e.post = append(e.post, h) }

// ExecutePre runs all matching pre-hooks in order. The first veto stops the
// pass and surfaces its error without invoking later hooks. Injected
// context strings concatenate; modified params are merged into the call
// args immediately so later hooks (and the handler) observe them, with
// later hooks overwriting earlier keys. A panicking hook counts as a veto
// with a synthesized message.
func (e *Engine) ExecutePre(ctx context.Context, st *session.State, call *ToolCall) PreOutcome {
	out := PreOutcome{Proceed: true}
	for _, h := range e.pre {
		if !h.Match(call.Name) {
			continue
		}
		res := e.runPre(ctx, h, st, call)
		if res.InjectedContext != "" {
			out.InjectedContext += res.InjectedContext
		}
		for k, v := range res.ModifiedParams {
			call.SetArg(k, v)
		}
		if !res.Proceed {
			out.Proceed = false
			out.Error = res.Error
			out.VetoedBy = h.Name()
			if out.Error == "" {
				out.Error = fmt.Sprintf("tool call blocked by hook %q", h.Name())
			}
			return out
		}
	}
	return out
}

func (e *Engine) runPre(ctx context.Context, h PreHook, st *session.State, call *ToolCall) (res PreResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[HookEngine] pre-hook %s panicked: %v", h.Name(), r)
			res = PreResult{Proceed: false, Error: fmt.Sprintf("hook %q failed: %v", h.Name(), r)}
		}
	}()
	return h.Before(ctx, st, call)
}

// ExecutePost runs all matching post-hooks unconditionally, collecting one
// result per hook. Failures are logged and reported but never roll back the
// tool call.
func (e *Engine) ExecutePost(ctx context.Context, st *session.State, call *ToolCall, outcome ToolOutcome) []NamedPostResult {
	var results []NamedPostResult
	for _, h := range e.post {
		if !h.Match(call.Name) {
			continue
		}
		res := e.runPost(ctx, h, st, call, outcome)
		if !res.Success {
			log.Printf("[HookEngine] post-hook %s failed: %s", h.Name(), res.Error)
		}
		results = append(results, NamedPostResult{Hook: h.Name(), Result: res})
	}
	return results
}

func (e *Engine) runPost(ctx context.Context, h PostHook, st *session.State, call *ToolCall, outcome ToolOutcome) (res PostResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[HookEngine] post-hook %s panicked: %v", h.Name(), r)
			res = PostResult{Success: false, Error: fmt.Sprintf("hook %q panicked: %v", h.Name(), r)}
		}
	}()
	return h.After(ctx, st, call, outcome)
}

// MatchAll is a helper for hooks with no tool filter.
type MatchAll struct{}

// Match always reports true.
func (MatchAll) Match(string) bool { return true }

// MatchTools filters a hook to an explicit tool set.
type MatchTools []string

// Match reports whether tool is in the set.
func (m MatchTools) Match(tool string) bool {
	for _, t := range m {
		if t == tool {
			return true
		}
	}
	return false
}
