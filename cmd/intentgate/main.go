package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/intentgate/intent-gate/internal/classify"
	"github.com/intentgate/intent-gate/internal/driver"
	"github.com/intentgate/intent-gate/internal/gate"
	"github.com/intentgate/intent-gate/internal/hitl"
	"github.com/intentgate/intent-gate/internal/hook"
	"github.com/intentgate/intent-gate/internal/intent"
	"github.com/intentgate/intent-gate/internal/ledger"
	"github.com/intentgate/intent-gate/internal/lessons"
	"github.com/intentgate/intent-gate/internal/mcpserver"
	"github.com/intentgate/intent-gate/internal/orch"
	"github.com/intentgate/intent-gate/internal/session"
	"github.com/intentgate/intent-gate/internal/snapshot"
	"github.com/intentgate/intent-gate/internal/tool"
	"github.com/intentgate/intent-gate/internal/tool/builtin"
	"github.com/intentgate/intent-gate/internal/trace"
	"github.com/intentgate/intent-gate/pkg/config"
)

const version = "0.3.0"

func main() {
	config.LoadEnv()

	workDir := os.Getenv("WORKSPACE_DIR")
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		log.Fatalf("WORKSPACE_DIR %q does not exist or is not a directory", workDir)
	}

	d := orch.Resolve(workDir)
	if err := d.Ensure(); err != nil {
		log.Fatalf("cannot prepare orchestration directory: %v", err)
	}
	log.Printf("[Main] intent-gate v%s, workspace %s", version, workDir)
	log.Printf("[Main] orchestration directory %s", d.Root)

	diag := &ledger.Diagnostics{Path: d.DiagnosticsPath()}

	intents := intent.NewStore(d.IntentsPath())
	if err := intents.Watch(); err != nil {
		log.Printf("[Main] intent watcher unavailable, falling back to mtime checks: %v", err)
	}
	defer intents.Close()

	tools := classify.NewToolSet("execute_command", "write_file", "apply_patch")
	tools.AddSafe("read_file")

	commands, err := classify.NewCommandClassifier(d.PolicyPaths(), diag)
	if err != nil {
		log.Fatalf("command policy: %v", err)
	}

	// The LLM-assisted classifier is optional; without credentials the
	// keyword heuristic carries the verdicts alone.
	var completer classify.ChatCompleter
	if os.Getenv("CLASSIFIER_LLM_ENABLED") != "false" {
		if client, err := classify.NewOpenAIClientFromEnv(); err == nil {
			completer = client
			log.Printf("[Main] LLM-assisted user-intent classification enabled (%s)", os.Getenv("LLM_MODEL"))
		} else {
			log.Printf("[Main] LLM classifier disabled: %v", err)
		}
	}

	prompter := buildPrompter()

	contributor := trace.Contributor{
		ModelIdentifier: envOr("MODEL_IDENTIFIER", "unknown-model"),
		TaskID:          envOr("TASK_ID", "adhoc"),
		InstanceID:      instanceID(),
	}

	engine := hook.NewEngine()
	engine.RegisterPre(&intent.Selector{Store: intents, Orch: d, Diag: diag})
	engine.RegisterPre(&gate.Gate{
		Orch:       d,
		Intents:    intents,
		Tools:      tools,
		Commands:   commands,
		UserIntent: classify.NewUserIntentClassifier(completer),
		Prompter:   prompter,
		WorkDir:    workDir,
		Diag:       diag,
	})
	engine.RegisterPre(&snapshot.CaptureHook{Tools: tools, WorkDir: workDir})
	engine.RegisterPost(&trace.Writer{
		Tools:       tools,
		Orch:        d,
		WorkDir:     workDir,
		Contributor: contributor,
		Diag:        diag,
	})
	engine.RegisterPost(&lessons.Writer{Orch: d})

	registry := tool.NewRegistry()
	registry.Register(builtin.NewSelectIntentTool())
	registry.Register(builtin.NewReadFileTool(workDir))
	registry.Register(builtin.NewWriteFileTool(workDir))
	registry.Register(builtin.NewApplyPatchTool(workDir))
	shellEnabled := os.Getenv("TOOL_SHELL_ENABLED") != "false"
	registry.Register(builtin.NewExecuteCommandTool(workDir, shellEnabled))

	sessions := session.NewStore(workDir, 30*time.Minute)
	defer sessions.Close()

	drv := &driver.Driver{Engine: engine, Registry: registry, Sessions: sessions}

	srv := mcpserver.New(drv, "intent-gate", version)
	if err := srv.ServeStdio(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// buildPrompter selects the HITL frontend. HITL_MODE: "console" prompts on
// the controlling terminal; "approve" answers yes to everything (unattended
// trusted runs); anything else denies, which is the safe default while
// stdin/stdout carry the MCP protocol.
func buildPrompter() hitl.Prompter {
	switch os.Getenv("HITL_MODE") {
	case "approve":
		log.Printf("[Main] HITL_MODE=approve: every prompt is auto-approved")
		return hitl.Auto{Approve: true}
	case "console":
		// Stdin/stdout belong to the MCP transport; talk to the terminal
		// directly.
		tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
		if err != nil {
			log.Printf("[Main] no controlling terminal (%v); prompts will deny", err)
			return hitl.Auto{Approve: false}
		}
		return &hitl.Console{In: tty, Out: tty}
	default:
		return hitl.Auto{Approve: false}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
