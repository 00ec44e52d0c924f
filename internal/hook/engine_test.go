package hook

import (
	"context"
	"strings"
	"testing"

	"github.com/intentgate/intent-gate/internal/session"
)

type fakePre struct {
	name   string
	tools  []string
	result PreResult
	panics bool
	calls  *[]string
}

func (f *fakePre) Name() string { return f.name }
func (f *fakePre) Match(tool string) bool {
	if len(f.tools) == 0 {
		return true
	}
	for _, t := range f.tools {
		if t == tool {
			return true
		}
	}
	return false
}
func (f *fakePre) Before(_ context.Context, _ *session.State, _ *ToolCall) PreResult {
	*f.calls = append(*f.calls, f.name)
	if f.panics {
		panic("boom")
	}
	return f.result
}

type fakePost struct {
	name   string
	result PostResult
	calls  *[]string
}

func (f *fakePost) Name() string      { return f.name }
func (f *fakePost) Match(string) bool { return true }
func (f *fakePost) After(_ context.Context, _ *session.State, _ *ToolCall, _ ToolOutcome) PostResult {
	*f.calls = append(*f.calls, f.name)
	return f.result
}

func newCall(name string, args map[string]any) *ToolCall {
	return &ToolCall{ID: "call-1", Name: name, Args: args}
}

func TestExecutePre_OrderAndShortCircuit(t *testing.T) {
	var calls []string
	e := NewEngine()
	e.RegisterPre(&fakePre{name: "first", result: Allow(), calls: &calls})
	e.RegisterPre(&fakePre{name: "vetoer", result: Block(&Veto{ErrorType: ErrScopeViolation, Code: CodeScopeViolation, Message: "out of scope"}), calls: &calls})
	e.RegisterPre(&fakePre{name: "never", result: Allow(), calls: &calls})

	out := e.ExecutePre(context.Background(), session.NewState("s", t.TempDir()), newCall("write_file", nil))
	if out.Proceed {
		t.Fatal("veto should stop the pass")
	}
	if out.VetoedBy != "vetoer" {
		t.Errorf("VetoedBy = %q", out.VetoedBy)
	}
	if !strings.Contains(out.Error, CodeScopeViolation) {
		t.Errorf("error should carry the envelope: %s", out.Error)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "vetoer" {
		t.Errorf("call order = %v, want [first vetoer]", calls)
	}
}

func TestExecutePre_ToolFilter(t *testing.T) {
	var calls []string
	e := NewEngine()
	e.RegisterPre(&fakePre{name: "shell-only", tools: []string{"execute_command"}, result: Allow(), calls: &calls})
	e.ExecutePre(context.Background(), session.NewState("s", t.TempDir()), newCall("write_file", nil))
	if len(calls) != 0 {
		t.Errorf("filtered hook should not run: %v", calls)
	}
	e.ExecutePre(context.Background(), session.NewState("s", t.TempDir()), newCall("execute_command", nil))
	if len(calls) != 1 {
		t.Errorf("hook should run for its tool: %v", calls)
	}
}

func TestExecutePre_AccumulatesContextAndParams(t *testing.T) {
	var calls []string
	e := NewEngine()
	e.RegisterPre(&fakePre{name: "a", result: PreResult{Proceed: true, InjectedContext: "<a/>", ModifiedParams: map[string]any{"intent_id": "INT-1", "x": 1}}, calls: &calls})
	e.RegisterPre(&fakePre{name: "b", result: PreResult{Proceed: true, InjectedContext: "<b/>", ModifiedParams: map[string]any{"x": 2}}, calls: &calls})

	call := newCall("write_file", map[string]any{"path": "src/a.ts"})
	out := e.ExecutePre(context.Background(), session.NewState("s", t.TempDir()), call)
	if !out.Proceed {
		t.Fatalf("unexpected veto: %s", out.Error)
	}
	if out.InjectedContext != "<a/><b/>" {
		t.Errorf("InjectedContext = %q", out.InjectedContext)
	}
	if call.Args["intent_id"] != "INT-1" {
		t.Errorf("params from hook a should be applied: %v", call.Args)
	}
	if call.Args["x"] != 2 {
		t.Errorf("later hook should overwrite earlier param: %v", call.Args["x"])
	}
}

func TestExecutePre_PanicIsVeto(t *testing.T) {
	var calls []string
	e := NewEngine()
	e.RegisterPre(&fakePre{name: "bad", panics: true, calls: &calls})
	e.RegisterPre(&fakePre{name: "after", result: Allow(), calls: &calls})

	out := e.ExecutePre(context.Background(), session.NewState("s", t.TempDir()), newCall("write_file", nil))
	if out.Proceed {
		t.Fatal("panic should veto")
	}
	if !strings.Contains(out.Error, "bad") {
		t.Errorf("synthesized error should name the hook: %s", out.Error)
	}
	if len(calls) != 1 {
		t.Errorf("later hooks must not run after a panic veto: %v", calls)
	}
}

func TestExecutePost_RunsAllAndCollects(t *testing.T) {
	var calls []string
	e := NewEngine()
	e.RegisterPost(&fakePost{name: "ok", result: PostResult{Success: true}, calls: &calls})
	e.RegisterPost(&fakePost{name: "fails", result: PostResult{Success: false, Error: "disk full"}, calls: &calls})
	e.RegisterPost(&fakePost{name: "still-runs", result: PostResult{Success: true}, calls: &calls})

	results := e.ExecutePost(context.Background(), session.NewState("s", t.TempDir()), newCall("write_file", nil), ToolOutcome{Output: "done"})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if len(calls) != 3 {
		t.Errorf("post-hooks run unconditionally: %v", calls)
	}
	if results[1].Result.Success || results[1].Result.Error != "disk full" {
		t.Errorf("failure should be reported, not swallowed: %+v", results[1])
	}
}

func TestTargetPaths(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"path key", map[string]any{"path": "src/a.ts"}, []string{"src/a.ts"}},
		{"file_path key", map[string]any{"file_path": "src/b.ts"}, []string{"src/b.ts"}},
		{"files list", map[string]any{"files": []any{"a.ts", "b.ts", ""}}, []string{"a.ts", "b.ts"}},
		{"dedupe", map[string]any{"path": "a.ts", "file_path": "a.ts"}, []string{"a.ts"}},
		{"patch markers", map[string]any{"patch": "*** Update File: src/x.ts\n+line\n*** Delete File: src/y.ts\n"}, []string{"src/x.ts", "src/y.ts"}},
		{"move marker", map[string]any{"diff": "*** Update File: a.ts\n*** Move to: b.ts\n"}, []string{"a.ts", "b.ts"}},
		{"none", map[string]any{"command": "ls"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := newCall("apply_patch", tt.args)
			got := call.TargetPaths()
			if len(got) != len(tt.want) {
				t.Fatalf("TargetPaths = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("TargetPaths[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHasDestructiveMarkers(t *testing.T) {
	call := newCall("apply_patch", map[string]any{"patch": "*** Update File: a.ts\n+x\n"})
	if call.HasDestructiveMarkers() {
		t.Error("update-only patch is not destructive")
	}
	call = newCall("apply_patch", map[string]any{"patch": "*** Delete File: a.ts\n"})
	if !call.HasDestructiveMarkers() {
		t.Error("delete marker is destructive")
	}
	call = newCall("apply_patch", map[string]any{"diff": "*** Update File: a.ts\n*** Move to: b.ts\n"})
	if !call.HasDestructiveMarkers() {
		t.Error("move marker is destructive")
	}
}
