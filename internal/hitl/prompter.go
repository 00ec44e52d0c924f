// Package hitl abstracts the human-in-the-loop confirmation step. The gate
// only ever needs one asynchronous yes/no answer; any frontend (editor
// modal, CLI confirmation, test stub) can satisfy the interface.
package hitl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Request kinds, used by frontends to phrase the prompt.
const (
	KindScopeViolation       = "scope_violation"
	KindDestructiveCommand   = "destructive_command"
	KindDestructiveIntent    = "destructive_intent"
	KindDestructiveOperation = "destructive_operation"
	KindStaleOverride        = "stale_override"
	KindUnknownTargets       = "unknown_targets"
)

// Request describes one approval prompt.
type Request struct {
	Kind     string
	IntentID string
	Tool     string
	Summary  string   // one-line human-readable description
	Targets  []string // affected paths, when known
	Command  string   // shell command, for command prompts
}

// Prompter returns true when the user approves the request. An error is
// treated as a denial by callers; it must not be used to smuggle state.
type Prompter interface {
	Confirm(ctx context.Context, req Request) (bool, error)
}

// Auto is a policy-free prompter answering every request the same way.
// Useful for headless runs (deny-all) and tests (approve-all).
type Auto struct {
	Approve bool
}

func (a Auto) Confirm(context.Context, Request) (bool, error) { return a.Approve, nil }

// Console prompts on an io terminal pair, one request at a time.
type Console struct {
	mu  sync.Mutex
	In  io.Reader
	Out io.Writer
}

// Confirm writes the request summary and reads a y/N answer. Anything but
// "y"/"yes" denies.
func (c *Console) Confirm(_ context.Context, req Request) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.Out, "\n[%s] %s\n", req.Kind, req.Summary)
	if req.Command != "" {
		fmt.Fprintf(c.Out, "  command: %s\n", req.Command)
	}
	for _, t := range req.Targets {
		fmt.Fprintf(c.Out, "  target: %s\n", t)
	}
	fmt.Fprintf(c.Out, "Allow? [y/N] ")

	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
