package intent

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/ledger"
	"github.com/intentgate/intent-gate/internal/orch"
	"github.com/intentgate/intent-gate/internal/session"
	"github.com/intentgate/intent-gate/internal/trace"
)

// SelectTool is the tool name that triggers the selection handshake.
const SelectTool = "select_active_intent"

// Selector is the pre-hook implementing the intent-selection handshake. It
// validates the requested intent, assembles the context block, and binds
// the intent to the session.
type Selector struct {
	Store *Store
	Orch  orch.Dir
	Diag  *ledger.Diagnostics
}

func (s *Selector) Name() string { return "intent_selector" }

func (s *Selector) Match(tool string) bool { return tool == SelectTool }

// Before runs the handshake. The rendered context block travels back to the
// model as injected context.
func (s *Selector) Before(_ context.Context, st *session.State, call *hook.ToolCall) hook.PreResult {
	if call.Partial {
		return hook.Allow()
	}

	id := call.StringArg("intent_id")
	if id == "" {
		// Soft fallback: exactly one selectable intent means there is no
		// ambiguity to resolve.
		inProgress, err := s.Store.InProgress()
		if err != nil {
			return s.loadFailure(err)
		}
		if len(inProgress) == 1 {
			id = inProgress[0].ID
			log.Printf("[IntentSelector] auto-selected sole IN_PROGRESS intent %s", id)
		} else {
			return hook.Block(&hook.Veto{
				ErrorType: hook.ErrMissingIntent,
				Code:      hook.CodeMissingIntent,
				Tool:      call.Name,
				Message:   fmt.Sprintf("intent_id is required (%d intents are IN_PROGRESS)", len(inProgress)),
			})
		}
	}

	intents, err := s.Store.Load()
	if err != nil {
		return s.loadFailure(err)
	}
	var it Intent
	found := false
	for _, candidate := range intents {
		if candidate.ID == id {
			it = candidate
			found = true
			break
		}
	}
	if !found {
		return hook.Block(&hook.Veto{
			ErrorType:        hook.ErrMissingIntent,
			Code:             hook.CodeMissingIntent,
			Tool:             call.Name,
			ProvidedIntentID: id,
			Message:          fmt.Sprintf("no intent with id %q is registered", id),
		})
	}
	if it.Status != StatusInProgress {
		return hook.Block(&hook.Veto{
			ErrorType:        hook.ErrMissingIntent,
			Code:             hook.CodeMissingIntent,
			Tool:             call.Name,
			ProvidedIntentID: id,
			Message:          fmt.Sprintf("intent %s has status %s; only IN_PROGRESS intents can be selected", id, it.Status),
		})
	}

	history, err := trace.TailForIntent(s.Orch.TracePath(), id, historyEntries)
	if err != nil {
		// History is contextual, not authoritative; selection proceeds.
		log.Printf("[IntentSelector] trace history unavailable: %v", err)
	}
	knowledge := ""
	if data, err := os.ReadFile(s.Orch.KnowledgePath()); err == nil {
		knowledge = string(data)
	}

	block := RenderContext(it, history, knowledge)
	st.SetActiveIntent(&session.ActiveIntent{
		ID:           it.ID,
		SelectedAt:   time.Now(),
		ContextBlock: block,
	})

	s.Diag.Event("intent_selector", "intent_selected", map[string]any{
		"intent_id": it.ID,
		"session":   st.ID,
	})
	return hook.PreResult{Proceed: true, InjectedContext: block}
}

// loadFailure maps store read/parse errors to the structured envelope.
func (s *Selector) loadFailure(err error) hook.PreResult {
	return hook.Block(&hook.Veto{
		ErrorType: hook.ErrParse,
		Code:      hook.CodeMissingIntent,
		Tool:      SelectTool,
		Message:   fmt.Sprintf("intents file could not be loaded: %v", err),
	})
}
