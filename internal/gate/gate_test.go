package gate

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/intentgate/intent-gate/internal/classify"
	"github.com/intentgate/intent-gate/internal/hitl"
	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/intent"
	"github.com/intentgate/intent-gate/internal/ledger"
	"github.com/intentgate/intent-gate/internal/orch"
	"github.com/intentgate/intent-gate/internal/session"
)

// recordingPrompter counts prompts and answers with a fixed verdict.
type recordingPrompter struct {
	approve  bool
	requests []hitl.Request
}

func (p *recordingPrompter) Confirm(_ context.Context, req hitl.Request) (bool, error) {
	p.requests = append(p.requests, req)
	return p.approve, nil
}

type fixture struct {
	gate     *Gate
	st       *session.State
	prompter *recordingPrompter
	workDir  string
}

const gateIntents = `active_intents:
  - id: INT-1
    name: Core work
    status: IN_PROGRESS
    owned_scope:
      - src
      - docs/*.md
`

func newFixture(t *testing.T) *fixture {
	t.Helper()
	workDir := t.TempDir()
	d := orch.Resolve(workDir)
	if err := d.Ensure(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d.IntentsPath(), []byte(gateIntents), 0o644); err != nil {
		t.Fatal(err)
	}

	commands, err := classify.NewCommandClassifier(d.PolicyPaths(), nil)
	if err != nil {
		t.Fatal(err)
	}
	prompter := &recordingPrompter{}
	store := intent.NewStore(d.IntentsPath())
	t.Cleanup(store.Close)

	g := &Gate{
		Orch:       d,
		Intents:    store,
		Tools:      classify.NewToolSet("execute_command", "write_file", "apply_patch"),
		Commands:   commands,
		UserIntent: classify.NewUserIntentClassifier(nil),
		Prompter:   prompter,
		WorkDir:    workDir,
		Diag:       &ledger.Diagnostics{},
	}
	return &fixture{gate: g, st: session.NewState("s1", workDir), prompter: prompter, workDir: workDir}
}

func (f *fixture) activate(id string) {
	f.st.SetActiveIntent(&session.ActiveIntent{ID: id})
}

func (f *fixture) run(call *hook.ToolCall) hook.PreResult {
	return f.gate.Before(context.Background(), f.st, call)
}

func call(name string, args map[string]any) *hook.ToolCall {
	return &hook.ToolCall{ID: "call-1", Name: name, Args: args}
}

func decodeVeto(t *testing.T, res hook.PreResult) map[string]any {
	t.Helper()
	if res.Proceed {
		t.Fatal("expected a veto")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(res.Error), &m); err != nil {
		t.Fatalf("veto is not JSON: %q", res.Error)
	}
	return m
}

func TestGate_PartialBypasses(t *testing.T) {
	f := newFixture(t)
	c := call("write_file", map[string]any{"path": "anywhere/at/all.ts"})
	c.Partial = true
	if res := f.run(c); !res.Proceed {
		t.Errorf("partial calls bypass the gate: %s", res.Error)
	}
	if len(f.prompter.requests) != 0 {
		t.Error("partial calls never prompt")
	}
}

func TestGate_SelectionToolBypasses(t *testing.T) {
	f := newFixture(t)
	if res := f.run(call(intent.SelectTool, map[string]any{"intent_id": "INT-1"})); !res.Proceed {
		t.Errorf("the selection tool is not gated: %s", res.Error)
	}
}

func TestGate_NoActiveIntent(t *testing.T) {
	f := newFixture(t)
	res := f.run(call("write_file", map[string]any{"path": "src/a.ts"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "no_active_intent" {
		t.Errorf("error_type = %v", m["error_type"])
	}

	// The command tool needs an intent too.
	res = f.run(call("execute_command", map[string]any{"command": "git status"}))
	if res.Proceed {
		t.Error("command tool requires an active intent")
	}

	// Read-only tools do not.
	if res := f.run(call("read_file", map[string]any{"path": "src/a.ts"})); !res.Proceed {
		t.Errorf("read-only tools pass without an intent: %s", res.Error)
	}
}

func TestGate_IgnoreListBypass(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	if err := os.WriteFile(f.gate.Orch.IgnorePath(), []byte("# frozen\nINT-1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := f.run(call("write_file", map[string]any{"path": "way/out/of/scope.ts"}))
	if !res.Proceed {
		t.Errorf("ignored intents skip every check: %s", res.Error)
	}
	if len(f.prompter.requests) != 0 {
		t.Error("ignored intents never prompt")
	}
}

func TestGate_HappyWriteInjectsMetadata(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	c := call("write_file", map[string]any{"path": "src/a.ts", "content": "x"})
	res := f.run(c)
	if !res.Proceed {
		t.Fatalf("in-scope write should pass: %s", res.Error)
	}
	if res.ModifiedParams["intent_id"] != "INT-1" {
		t.Errorf("intent_id should be injected: %v", res.ModifiedParams)
	}
	if res.ModifiedParams["mutation_class"] != "INTENT_EVOLUTION" {
		t.Errorf("mutation_class should default: %v", res.ModifiedParams)
	}
	if c.Args["intent_id"] != "INT-1" {
		t.Error("injection must be visible on the call args")
	}
	if len(f.prompter.requests) != 0 {
		t.Error("the happy path never prompts")
	}
}

func TestGate_IntentMismatch(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	res := f.run(call("write_file", map[string]any{"path": "src/a.ts", "intent_id": "INT-9"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "intent_mismatch" || m["code"] != "REQ-004" {
		t.Errorf("envelope = %v", m)
	}
	if m["provided_intent_id"] != "INT-9" {
		t.Errorf("provided id should be reported: %v", m)
	}
}

func TestGate_InvalidMutationClass(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	res := f.run(call("write_file", map[string]any{"path": "src/a.ts", "mutation_class": "YOLO"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "invalid_metadata" || m["code"] != "REQ-005" {
		t.Errorf("envelope = %v", m)
	}
}

func TestGate_ScopeViolationDenied(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.prompter.approve = false
	res := f.run(call("write_file", map[string]any{"path": "other/a.ts"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "scope_violation" || m["code"] != "REQ-001" {
		t.Errorf("envelope = %v", m)
	}
	if m["filename"] != "other/a.ts" {
		t.Errorf("filename = %v", m["filename"])
	}
	if m["intent_id"] != "INT-1" {
		t.Errorf("intent_id = %v", m["intent_id"])
	}

	// The denial is persisted.
	decisions, _ := ledger.ReadDecisions(f.gate.Orch.DecisionsPath())
	if len(decisions) != 1 || decisions[0].Decision != ledger.DecisionRejected {
		t.Errorf("decisions = %+v", decisions)
	}
}

func TestGate_ScopeViolationApprovedOnce(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.prompter.approve = true

	if res := f.run(call("write_file", map[string]any{"path": "other/a.ts"})); !res.Proceed {
		t.Fatalf("approved violation should pass: %s", res.Error)
	}
	if len(f.prompter.requests) != 1 {
		t.Fatalf("one prompt expected, got %d", len(f.prompter.requests))
	}

	// Same call again: the cached decision answers without a prompt.
	if res := f.run(call("write_file", map[string]any{"path": "other/a.ts"})); !res.Proceed {
		t.Fatal("cached approval should pass")
	}
	if len(f.prompter.requests) != 1 {
		t.Errorf("no re-prompt for an identical decision, got %d prompts", len(f.prompter.requests))
	}
}

func TestGate_GlobScope(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	if res := f.run(call("write_file", map[string]any{"path": "docs/guide.md"})); !res.Proceed {
		t.Errorf("docs/*.md covers docs/guide.md: %s", res.Error)
	}
	f.prompter.approve = false
	if res := f.run(call("write_file", map[string]any{"path": "docs/sub/deep.md"})); res.Proceed {
		t.Error("docs/*.md does not cross directories")
	}
}

func TestGate_PrefixScopeBoundary(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.prompter.approve = false
	// "src" covers src/foo.ts but not srctool.ts.
	if res := f.run(call("write_file", map[string]any{"path": "src/foo.ts"})); !res.Proceed {
		t.Errorf("src prefix covers src/foo.ts: %s", res.Error)
	}
	if res := f.run(call("write_file", map[string]any{"path": "srctool.ts"})); res.Proceed {
		t.Error("src prefix must not cover srctool.ts")
	}
}

func TestGate_SafeCommandPassesWithoutPrompt(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	res := f.run(call("execute_command", map[string]any{"command": "git status"}))
	if !res.Proceed {
		t.Fatalf("safe command should pass: %s", res.Error)
	}
	if len(f.prompter.requests) != 0 {
		t.Error("safe commands never prompt")
	}
	if !f.st.CommandApproved("git status") {
		t.Error("safe commands are marked approved")
	}
}

func TestGate_WrappedCommandUnwrapped(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	res := f.run(call("execute_command", map[string]any{"command": `powershell -Command "git status"`}))
	if !res.Proceed {
		t.Errorf("the inner command is classified, not the wrapper: %s", res.Error)
	}
}

func TestGate_EmptyCommandSkipped(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	if res := f.run(call("execute_command", map[string]any{"command": "  "})); !res.Proceed {
		t.Error("empty commands skip classification")
	}
}

func TestGate_DestructiveCommandDenied(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.prompter.approve = false
	res := f.run(call("execute_command", map[string]any{"command": "rm tmp"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "command_not_authorized" || m["code"] != "CMD-001" {
		t.Errorf("envelope = %v", m)
	}
	if m["command"] != "rm tmp" {
		t.Errorf("command = %v", m["command"])
	}
}

func TestGate_DestructiveCommandApprovalPersistsAcrossSessions(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.prompter.approve = true
	if res := f.run(call("execute_command", map[string]any{"command": "rm tmp"})); !res.Proceed {
		t.Fatalf("approved command should run: %s", res.Error)
	}
	if len(f.prompter.requests) != 1 {
		t.Fatalf("prompts = %d", len(f.prompter.requests))
	}

	// A brand-new session reuses the persisted approval without prompting.
	f.st = session.NewState("s2", f.workDir)
	f.activate("INT-1")
	if res := f.run(call("execute_command", map[string]any{"command": "rm tmp"})); !res.Proceed {
		t.Fatal("persisted approval should be reused")
	}
	if len(f.prompter.requests) != 1 {
		t.Errorf("no second prompt expected, got %d", len(f.prompter.requests))
	}

	// A different command still prompts.
	f.run(call("execute_command", map[string]any{"command": "rm other"}))
	if len(f.prompter.requests) != 2 {
		t.Errorf("different command must prompt, got %d", len(f.prompter.requests))
	}
}

func TestGate_DeleteViaPatchPreflight(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.prompter.approve = false
	// The path is in scope, but the payload deletes a file: preflight runs
	// regardless of scope.
	res := f.run(call("apply_patch", map[string]any{"patch": "*** Delete File: src/x.ts\n"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "destructive_operation_denied" || m["code"] != "REQ-008" {
		t.Errorf("envelope = %v", m)
	}
	if len(f.prompter.requests) != 1 || f.prompter.requests[0].Kind != hitl.KindDestructiveOperation {
		t.Errorf("prompts = %+v", f.prompter.requests)
	}
}

func TestGate_DeleteViaPatchApprovedAndDeduplicated(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.prompter.approve = true
	c := map[string]any{"patch": "*** Delete File: src/x.ts\n"}
	if res := f.run(call("apply_patch", c)); !res.Proceed {
		t.Fatalf("approved delete should pass: %s", res.Error)
	}
	if res := f.run(call("apply_patch", c)); !res.Proceed {
		t.Fatal("second identical delete should reuse the approval")
	}
	if len(f.prompter.requests) != 1 {
		t.Errorf("destructive approval should deduplicate, got %d prompts", len(f.prompter.requests))
	}
}

func TestGate_StaleBlockDeniedAndCleared(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.st.SetStaleBlock("src/a.ts", "write_file")

	f.prompter.approve = false
	res := f.run(call("write_file", map[string]any{"path": "src/a.ts"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "stale_lock" || m["code"] != "REQ-007" {
		t.Errorf("envelope = %v", m)
	}
	if _, blocked := f.st.StaleBlockFor("src/a.ts"); !blocked {
		t.Error("denied override leaves the block in place")
	}

	// Approval clears the block; use a fresh call id so the denial cached
	// for call-1 does not answer for us.
	f.prompter.approve = true
	c := call("write_file", map[string]any{"path": "src/a.ts"})
	c.ID = "call-2"
	if res := f.run(c); !res.Proceed {
		t.Fatalf("approved override should pass: %s", res.Error)
	}
	if _, blocked := f.st.StaleBlockFor("src/a.ts"); blocked {
		t.Error("approved override clears the block")
	}
}

func TestGate_UnknownTargetsPrompt(t *testing.T) {
	f := newFixture(t)
	f.activate("INT-1")
	f.prompter.approve = false
	res := f.run(call("write_file", map[string]any{"content": "orphan"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "unknown_targets" || m["code"] != "REQ-002" {
		t.Errorf("envelope = %v", m)
	}
}

func TestGate_DestructiveUserIntentGatesReadOnlyTools(t *testing.T) {
	f := newFixture(t)
	f.st.SetLastUserMessage("wipe the old migrations directory")
	f.prompter.approve = false

	res := f.run(call("read_file", map[string]any{"path": "src/a.ts"}))
	m := decodeVeto(t, res)
	if m["error_type"] != "destructive_intent_denied" || m["code"] != "REQ-009" {
		t.Errorf("envelope = %v", m)
	}

	// Safe user messages leave read-only tools alone.
	f2 := newFixture(t)
	f2.st.SetLastUserMessage("please explain the session store")
	if res := f2.run(call("read_file", map[string]any{"path": "src/a.ts"})); !res.Proceed {
		t.Errorf("safe message, safe tool: %s", res.Error)
	}
	if len(f2.prompter.requests) != 0 {
		t.Error("no prompt for a safe message")
	}
}

func TestGate_UserIntentVerdictCachedPerMessage(t *testing.T) {
	f := newFixture(t)
	f.st.SetLastUserMessage("delete the scratch files")
	f.prompter.approve = true

	f.run(call("read_file", map[string]any{"path": "a.ts"}))
	f.run(call("read_file", map[string]any{"path": "a.ts"}))
	if len(f.prompter.requests) != 1 {
		t.Errorf("identical (message, tool, targets) prompts once, got %d", len(f.prompter.requests))
	}

	if _, ok := f.st.CachedUserIntent(f.prompter.requests[0].Kind); ok {
		t.Log("sanity: cache is keyed by message hash, not kind")
	}
}
