package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/intentgate/intent-gate/internal/tool"
)

const (
	shellTimeout   = 30 * time.Second
	maxOutputChars = 8000
)

// dangerousPatterns are command patterns blocked inside the handler as a
// last resort after the gate has already run. This is a best-effort
// blocklist against accidental damage, not a security boundary; the gate's
// classifier and HITL prompts are the real control.
var dangerousPatterns = []string{
	"rm -rf /",
	"rm -r -f /",
	"rm --recursive /",
	"rm -rf ~",
	"rm -rf $home",
	"rm -rf ${home}",
	"rm -rf -- /",
	"mkfs",
	"dd if=",
	"shutdown",
	"reboot",
	"halt",
	"init 0",
	"init 6",
	"systemctl poweroff",
	":(){:|:&};:",
	"format c:",
	"del /s /q c:\\",
	"rd /s /q c:\\",
}

// ExecuteCommandTool runs one shell command with a timeout and an output
// budget.
type ExecuteCommandTool struct {
	workspaceDir string
	enabled      bool
}

// NewExecuteCommandTool creates the shell tool. Set enabled=false to expose
// the tool but refuse execution.
func NewExecuteCommandTool(workspaceDir string, enabled bool) *ExecuteCommandTool {
	return &ExecuteCommandTool{workspaceDir: workspaceDir, enabled: enabled}
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }
func (t *ExecuteCommandTool) Description() string {
	return "Execute a shell command in the workspace and return its output."
}

func (t *ExecuteCommandTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "command", Type: "string", Description: "The command to execute", Required: true},
	)
}

func (t *ExecuteCommandTool) Init(_ context.Context) error { return nil }
func (t *ExecuteCommandTool) Close() error                 { return nil }

type shellArgs struct {
	Command string `json:"command"`
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	if !t.enabled {
		return tool.ToolResult{Error: "execute_command is disabled"}, nil
	}

	var a shellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.ToolResult{Error: fmt.Sprintf("invalid arguments: %v", err)}, nil
	}
	if strings.TrimSpace(a.Command) == "" {
		return tool.ToolResult{Error: "command must not be empty"}, nil
	}

	cmdLower := strings.ToLower(a.Command)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(cmdLower, pattern) {
			return tool.ToolResult{Error: fmt.Sprintf("refused: command contains dangerous pattern %q", pattern)}, nil
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(runCtx, "cmd", "/C", a.Command)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", a.Command)
	}
	cmd.Dir = t.workspaceDir
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	text := truncateOutput(string(output))

	if runCtx.Err() == context.DeadlineExceeded {
		return tool.ToolResult{Output: text, Error: fmt.Sprintf("command timed out after %s", shellTimeout)}, nil
	}
	if err != nil {
		return tool.ToolResult{Output: text, Error: fmt.Sprintf("command failed: %v", err)}, nil
	}
	return tool.ToolResult{Output: text}, nil
}

// truncateOutput caps output at maxOutputChars without splitting a UTF-8
// sequence.
func truncateOutput(s string) string {
	if len(s) <= maxOutputChars {
		return s
	}
	cut := maxOutputChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n... (output truncated at %d chars)", maxOutputChars)
}
