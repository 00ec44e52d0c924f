// Package gate implements the scope-enforcement gate: the central policy
// pre-hook that every non-partial tool call passes through before its
// handler may run.
package gate

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/intentgate/intent-gate/internal/classify"
	"github.com/intentgate/intent-gate/internal/hitl"
	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/intent"
	"github.com/intentgate/intent-gate/internal/ledger"
	"github.com/intentgate/intent-gate/internal/orch"
	"github.com/intentgate/intent-gate/internal/session"
	"github.com/intentgate/intent-gate/internal/util"
)

// Gate wires the classifiers, the intent store, and the HITL prompter into
// the ordered policy checks. It is stateless; approvals and verdicts are
// cached on the session and in the decisions ledger.
type Gate struct {
	Orch       orch.Dir
	Intents    *intent.Store
	Tools      *classify.ToolSet
	Commands   *classify.CommandClassifier
	UserIntent *classify.UserIntentClassifier
	Prompter   hitl.Prompter
	WorkDir    string
	Diag       *ledger.Diagnostics
}

func (g *Gate) Name() string { return "scope_gate" }

// Match applies the gate to every tool; pass-through rules live in Before.
func (g *Gate) Match(string) bool { return true }

// Before runs the policy checks in their fixed order. Any veto is final for
// this tool call; the handler is never invoked.
func (g *Gate) Before(ctx context.Context, st *session.State, call *hook.ToolCall) hook.PreResult {
	// Partial calls and the selection handshake bypass the gate entirely.
	if call.Partial || call.Name == intent.SelectTool {
		return hook.Allow()
	}

	destructive := g.Tools.IsDestructive(call.Name)
	isCommand := call.Name == g.Tools.CommandTool()
	active := st.ActiveIntent()

	// Destructive work is only legal under a declared intent.
	if destructive && active == nil {
		return hook.Block(&hook.Veto{
			ErrorType: hook.ErrNoActiveIntent,
			Code:      hook.CodeUnknownTargets,
			Tool:      call.Name,
			Message:   fmt.Sprintf("select an intent with %s before calling %s", intent.SelectTool, call.Name),
		})
	}

	// Intents on the ignore list are exempt from all remaining checks.
	if active != nil {
		if ignored, err := g.Orch.IgnoredIntents(); err == nil && ignored[active.ID] {
			g.Diag.Event("scope_gate", "ignore_list_bypass", map[string]any{"intent_id": active.ID, "tool": call.Name})
			return hook.Allow()
		}
	}

	// Read-only tools still honor a destructive user request: the user may
	// be steering the model toward damage through innocuous-looking calls.
	if !destructive && !isCommand {
		return g.userIntentPreflight(ctx, st, call)
	}

	if isCommand {
		return g.commandCheck(ctx, st, call, active)
	}

	// Mutating tools from here on.
	targets := call.TargetPaths()

	if res := g.staleBlockCheck(ctx, st, call, active, targets); !res.Proceed {
		return res
	}

	modified, veto := g.injectMetadata(call, active)
	if veto != nil {
		return hook.Block(veto)
	}

	if res := g.destructivePreflight(ctx, st, call, active, targets); !res.Proceed {
		return res
	}

	if len(targets) == 0 {
		if !g.promptWithCache(ctx, st, "targets|"+call.Name+"|"+call.ID, hitl.Request{
			Kind:     hitl.KindUnknownTargets,
			IntentID: active.ID,
			Tool:     call.Name,
			Summary:  fmt.Sprintf("%s declares no target paths; its effects cannot be scope-checked", call.Name),
		}, ledger.Decision{IntentID: active.ID, Tool: call.Name, Reason: "unknown_targets"}) {
			return hook.Block(&hook.Veto{
				ErrorType: hook.ErrUnknownTargets,
				Code:      hook.CodeUnknownTargets,
				IntentID:  active.ID,
				Tool:      call.Name,
				Message:   "no target paths could be extracted from the call",
			})
		}
		return hook.PreResult{Proceed: true, ModifiedParams: modified}
	}

	if res := g.scopeCheck(ctx, st, call, active, targets); !res.Proceed {
		return res
	}

	return hook.PreResult{Proceed: true, ModifiedParams: modified}
}

// ── check 4: user-intent preflight for non-destructive tools ──

func (g *Gate) userIntentPreflight(ctx context.Context, st *session.State, call *hook.ToolCall) hook.PreResult {
	verdict := g.classifyUserMessage(ctx, st)
	if verdict.Verdict != classify.VerdictDestructive {
		return hook.Allow()
	}

	targets := call.TargetPaths()
	intentID := ""
	if active := st.ActiveIntent(); active != nil {
		intentID = active.ID
	}
	key := verdict.MessageHash + "|" + call.Name + ":" + strings.Join(targets, ",")
	approved := g.promptWithCache(ctx, st, key, hitl.Request{
		Kind:     hitl.KindDestructiveIntent,
		IntentID: intentID,
		Tool:     call.Name,
		Summary:  fmt.Sprintf("the user request reads as destructive (%s); allow %s?", verdict.Reason, call.Name),
		Targets:  targets,
	}, ledger.Decision{
		IntentID:             intentID,
		Tool:                 call.Name,
		Reason:               "destructive_intent",
		Targets:              targets,
		IntentClassification: verdict.Verdict,
	})
	if !approved {
		return hook.Block(&hook.Veto{
			ErrorType: hook.ErrDestructiveIntent,
			Code:      hook.CodeDestructiveIntent,
			IntentID:  intentID,
			Tool:      call.Name,
			Targets:   targets,
			Message:   "the user request was classified destructive and the action was not approved",
		})
	}
	return hook.Allow()
}

// ── check 5: command tool ──

func (g *Gate) commandCheck(ctx context.Context, st *session.State, call *hook.ToolCall, active *session.ActiveIntent) hook.PreResult {
	command := strings.TrimSpace(call.StringArg("command"))
	if command == "" {
		return hook.Allow()
	}

	inner := classify.UnwrapShell(command)
	verdict := g.Commands.Classify(inner, g.WorkDir)
	if verdict == classify.VerdictSafe {
		st.ApproveCommand(command)
		g.Diag.Event("scope_gate", "safe_command", map[string]any{"command": command, "intent_id": active.ID})
		return hook.Allow()
	}

	// Session-level reuse first, then approvals persisted by earlier
	// sessions for the same (intent, command).
	if st.CommandApproved(command) {
		return hook.Allow()
	}
	if ok, err := ledger.FindCommandApproval(g.Orch.DecisionsPath(), active.ID, command); err == nil && ok {
		st.ApproveCommand(command)
		g.Diag.Event("scope_gate", "command_approval_reused", map[string]any{"command": command, "intent_id": active.ID})
		return hook.Allow()
	}

	approved := g.promptWithCache(ctx, st, "cmd|"+active.ID+"|"+command, hitl.Request{
		Kind:     hitl.KindDestructiveCommand,
		IntentID: active.ID,
		Tool:     call.Name,
		Summary:  "the command is classified destructive",
		Command:  command,
	}, ledger.Decision{
		IntentID:              active.ID,
		Tool:                  call.Name,
		Reason:                "destructive_command",
		Command:               command,
		CommandClassification: verdict,
	})
	if !approved {
		return hook.Block(&hook.Veto{
			ErrorType: hook.ErrCommandNotAuthorized,
			Code:      hook.CodeCommandDenied,
			IntentID:  active.ID,
			Tool:      call.Name,
			Command:   command,
			Message:   fmt.Sprintf("command %q is destructive and was not authorized", command),
		})
	}
	st.ApproveCommand(command)
	return hook.Allow()
}

// ── check 6: stale blocks ──

func (g *Gate) staleBlockCheck(ctx context.Context, st *session.State, call *hook.ToolCall, active *session.ActiveIntent, targets []string) hook.PreResult {
	for _, target := range targets {
		key := util.PosixRel(target, g.WorkDir)
		block, blocked := st.StaleBlockFor(key)
		if !blocked {
			continue
		}
		approved := g.promptWithCache(ctx, st, "stale|"+key+"|"+call.ID, hitl.Request{
			Kind:     hitl.KindStaleOverride,
			IntentID: active.ID,
			Tool:     call.Name,
			Summary:  fmt.Sprintf("%s is stale-blocked since %s (%s); override?", key, block.Timestamp.Format("15:04:05"), block.Tool),
			Targets:  []string{key},
		}, ledger.Decision{IntentID: active.ID, Tool: call.Name, Reason: "stale_override", Targets: []string{key}})
		if !approved {
			return hook.Block(&hook.Veto{
				ErrorType: hook.ErrStaleLock,
				Code:      hook.CodeStaleLock,
				IntentID:  active.ID,
				Tool:      call.Name,
				Path:      key,
				Message:   fmt.Sprintf("%s is blocked after a failed verification; re-read it or approve an override", key),
			})
		}
		st.ClearStaleBlock(key)
	}
	return hook.Allow()
}

// ── check 7: metadata injection and validation ──

func (g *Gate) injectMetadata(call *hook.ToolCall, active *session.ActiveIntent) (map[string]any, *hook.Veto) {
	modified := map[string]any{}

	intentID := call.StringArg("intent_id")
	if intentID == "" {
		intentID = active.ID
		modified["intent_id"] = intentID
	}
	if intentID != active.ID {
		return nil, &hook.Veto{
			ErrorType:        hook.ErrIntentMismatch,
			Code:             hook.CodeIntentMismatch,
			IntentID:         active.ID,
			ProvidedIntentID: intentID,
			Tool:             call.Name,
			Message:          fmt.Sprintf("call declares intent %q but the session holds %q", intentID, active.ID),
		}
	}

	class := call.StringArg("mutation_class")
	if class == "" {
		class = "INTENT_EVOLUTION"
		modified["mutation_class"] = class
	}
	if class != "AST_REFACTOR" && class != "INTENT_EVOLUTION" {
		return nil, &hook.Veto{
			ErrorType:     hook.ErrInvalidMetadata,
			Code:          hook.CodeInvalidMetadata,
			IntentID:      active.ID,
			Tool:          call.Name,
			MutationClass: class,
			Message:       fmt.Sprintf("mutation_class %q is not one of AST_REFACTOR, INTENT_EVOLUTION", class),
		}
	}

	// Hooks merge these into the call args; handlers see the final values.
	for k, v := range modified {
		call.SetArg(k, v)
	}
	return modified, nil
}

// ── check 8: destructive-operation preflight ──

func (g *Gate) destructivePreflight(ctx context.Context, st *session.State, call *hook.ToolCall, active *session.ActiveIntent, targets []string) hook.PreResult {
	destructiveOp := call.HasDestructiveMarkers()
	if !destructiveOp {
		destructiveOp = g.classifyUserMessage(ctx, st).Verdict == classify.VerdictDestructive
	}
	if !destructiveOp {
		return hook.Allow()
	}

	key := "destructive|" + call.Name + "|" + strings.Join(targets, ",")
	if st.DestructiveApproved(key) {
		return hook.Allow()
	}
	approved := g.promptWithCache(ctx, st, key, hitl.Request{
		Kind:     hitl.KindDestructiveOperation,
		IntentID: active.ID,
		Tool:     call.Name,
		Summary:  fmt.Sprintf("%s deletes or moves files (%s)", call.Name, strings.Join(targets, ", ")),
		Targets:  targets,
	}, ledger.Decision{IntentID: active.ID, Tool: call.Name, Reason: "destructive_operation", Targets: targets})
	if !approved {
		return hook.Block(&hook.Veto{
			ErrorType: hook.ErrDestructiveOperation,
			Code:      hook.CodeDestructiveOperation,
			IntentID:  active.ID,
			Tool:      call.Name,
			Targets:   targets,
			Message:   "the operation deletes or moves files and was not approved",
		})
	}
	st.ApproveDestructive(key)
	return hook.Allow()
}

// ── check 10: scope ──

func (g *Gate) scopeCheck(ctx context.Context, st *session.State, call *hook.ToolCall, active *session.ActiveIntent, targets []string) hook.PreResult {
	record, err := g.Intents.Get(active.ID)
	if err != nil {
		return hook.Block(&hook.Veto{
			ErrorType: hook.ErrParse,
			Code:      hook.CodeScopeViolation,
			IntentID:  active.ID,
			Tool:      call.Name,
			Message:   fmt.Sprintf("owned scope of %s could not be loaded: %v", active.ID, err),
		})
	}

	for _, target := range targets {
		if InScope(target, record.OwnedScope, g.WorkDir) {
			continue
		}
		rel := util.PosixRel(target, g.WorkDir)
		approved := g.promptWithCache(ctx, st, "scope|"+call.Name+"|"+rel, hitl.Request{
			Kind:     hitl.KindScopeViolation,
			IntentID: active.ID,
			Tool:     call.Name,
			Summary:  fmt.Sprintf("%s is outside the owned scope of %s", rel, active.ID),
			Targets:  []string{rel},
		}, ledger.Decision{IntentID: active.ID, Tool: call.Name, Reason: "scope_violation", Targets: []string{rel}})
		if !approved {
			return hook.Block(&hook.Veto{
				ErrorType: hook.ErrScopeViolation,
				Code:      hook.CodeScopeViolation,
				IntentID:  active.ID,
				Tool:      call.Name,
				Filename:  rel,
				Message:   fmt.Sprintf("%s is not covered by the owned scope of intent %s", rel, active.ID),
			})
		}
	}
	return hook.Allow()
}

// ── shared helpers ──

// classifyUserMessage returns the (cached) verdict for the session's most
// recent user message.
func (g *Gate) classifyUserMessage(ctx context.Context, st *session.State) session.UserIntentClassification {
	msg := st.LastUserMessage()
	if msg == "" {
		return session.UserIntentClassification{Verdict: classify.VerdictUnknown, Source: classify.SourceNone}
	}
	hash := util.SHA256Hex([]byte(msg))
	if cached, ok := st.CachedUserIntent(hash); ok {
		return cached
	}
	verdict := g.UserIntent.Classify(ctx, msg)
	st.CacheUserIntent(verdict)
	return verdict
}

// promptWithCache asks the prompter once per key and session, records the
// outcome in the decisions ledger, and replays the cached answer on
// repeats. A prompter error counts as denial.
func (g *Gate) promptWithCache(ctx context.Context, st *session.State, key string, req hitl.Request, d ledger.Decision) bool {
	if approved, ok := st.CachedDecision(key); ok {
		return approved
	}

	approved, err := g.Prompter.Confirm(ctx, req)
	if err != nil {
		log.Printf("[Gate] prompt failed, treating as denial: %v", err)
		approved = false
	}

	if approved {
		d.Decision = ledger.DecisionApproved
	} else {
		d.Decision = ledger.DecisionRejected
	}
	if err := ledger.AppendDecision(g.Orch.DecisionsPath(), d); err != nil {
		log.Printf("[Gate] failed to persist decision: %v", err)
	}
	st.CacheDecision(key, approved)
	return approved
}
