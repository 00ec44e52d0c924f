package classify

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/intentgate/intent-gate/internal/ledger"
)

// builtinSafe matches read-only commands: listing, reading, VCS inspection,
// environment queries. Patterns are applied to the lowercased, trimmed
// command string.
var builtinSafe = compileAll(
	`^ls(\s|$)`,
	`^dir(\s|$)`,
	`^pwd$`,
	`^cat\s`,
	`^head(\s|$)`,
	`^tail(\s|$)`,
	`^wc(\s|$)`,
	`^file\s`,
	`^stat\s`,
	`^grep\s`,
	`^rg\s`,
	`^which\s`,
	`^whereis\s`,
	`^type\s`,
	`^echo(\s|$)`,
	`^printf\s`,
	`^env$`,
	`^printenv(\s|$)`,
	`^uname(\s|$)`,
	`^whoami$`,
	`^date(\s|$)`,
	`^du(\s|$)`,
	`^df(\s|$)`,
	`^git\s+status\b`,
	`^git\s+diff\b`,
	`^git\s+log\b`,
	`^git\s+show\b`,
	`^git\s+branch$`,
	`^git\s+branch\s+(-a|-r|--list)\b`,
	`^git\s+remote\s+-v$`,
	`^git\s+rev-parse\b`,
	`^git\s+blame\b`,
	`^go\s+version$`,
	`^go\s+env\b`,
	`^node\s+--version$`,
	`^npm\s+(ls|list|view|outdated)\b`,
	`^python3?\s+--version$`,
	`^pip3?\s+(list|show|freeze)\b`,
)

// builtinDestructive matches commands that change the workspace or the
// environment: removal, moves, copies, package mutations, builds,
// privileged VCS mutations, in-place editors.
var builtinDestructive = compileAll(
	`\brm(\s|$)`,
	`\brmdir\b`,
	`\bunlink\b`,
	`\bmv(\s|$)`,
	`\bcp(\s|$)`,
	`\bdd\b`,
	`\bmkfs\b`,
	`\btruncate\b`,
	`\bshred\b`,
	`\bchmod\b`,
	`\bchown\b`,
	`\bln\s`,
	`\btouch\s`,
	`\btee(\s|$)`,
	`\bnpm\s+(install|uninstall|update|publish|ci|prune)\b`,
	`\byarn\s+(add|remove|install|upgrade)\b`,
	`\bpnpm\s+(add|remove|install|update)\b`,
	`\bpip3?\s+(install|uninstall)\b`,
	`\bgo\s+(install|get|mod\s+tidy|clean)\b`,
	`\bcargo\s+(install|publish|clean)\b`,
	`\bapt(-get)?\s+(install|remove|purge|upgrade)\b`,
	`\bbrew\s+(install|uninstall|upgrade)\b`,
	`\bmake(\s|$)`,
	`\bgo\s+build\b`,
	`\bnpm\s+run\s+build\b`,
	`\bcargo\s+build\b`,
	`\bgit\s+(push|commit|reset|checkout|rebase|merge|clean|stash|rm|mv|cherry-pick|am|apply|revert)\b`,
	`\bsed\s+(.*\s)?-i\b`,
	`\bperl\s+(.*\s)?-i\b`,
	`\bsudo\b`,
	`\bkill(all)?\b`,
	`\bcurl\s+.*(-o|--output|-O)\b`,
	`\bwget\b`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Policy is the optional project-level command policy loaded from the
// orchestration directory. Project patterns take precedence over built-ins.
type Policy struct {
	Safe        []string `json:"safe" yaml:"safe"`
	Destructive []string `json:"destructive" yaml:"destructive"`
}

// CommandClassifier classifies shell command strings as safe or destructive.
type CommandClassifier struct {
	policySafe        []*regexp.Regexp
	policyDestructive []*regexp.Regexp
	diag              *ledger.Diagnostics
}

// NewCommandClassifier loads the first readable policy file among paths
// (JSON preferred, then YAML) and returns a classifier. Missing files are
// fine; a malformed policy file is an error so a typo cannot silently relax
// the policy. Pass a non-nil diag to enable the per-branch debug variant.
func NewCommandClassifier(policyPaths []string, diag *ledger.Diagnostics) (*CommandClassifier, error) {
	c := &CommandClassifier{diag: diag}
	for _, path := range policyPaths {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("classify: read policy %s: %w", path, err)
		}
		var p Policy
		if strings.HasSuffix(path, ".json") {
			err = json.Unmarshal(data, &p)
		} else {
			err = yaml.Unmarshal(data, &p)
		}
		if err != nil {
			return nil, fmt.Errorf("classify: parse policy %s: %w", path, err)
		}
		if err := c.applyPolicy(p); err != nil {
			return nil, fmt.Errorf("classify: policy %s: %w", path, err)
		}
		log.Printf("[CommandClassifier] Loaded policy from %s (%d safe, %d destructive)",
			path, len(p.Safe), len(p.Destructive))
		break
	}
	return c, nil
}

func (c *CommandClassifier) applyPolicy(p Policy) error {
	for _, pat := range p.Safe {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("safe pattern %q: %w", pat, err)
		}
		c.policySafe = append(c.policySafe, re)
	}
	for _, pat := range p.Destructive {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("destructive pattern %q: %w", pat, err)
		}
		c.policyDestructive = append(c.policyDestructive, re)
	}
	return nil
}

// Classify maps a command string to safe or destructive. Order:
// redirection check, project destructive patterns, project safe patterns,
// built-in safe, built-in destructive, destructive by default.
func (c *CommandClassifier) Classify(command, cwd string) string {
	verdict, branch, pattern := c.classify(command)
	c.debug(command, cwd, verdict, branch, pattern)
	return verdict
}

func (c *CommandClassifier) classify(command string) (verdict, branch, pattern string) {
	cmd := strings.ToLower(strings.TrimSpace(command))
	if cmd == "" {
		return VerdictSafe, "empty", ""
	}
	// Any redirection means an unknown write target.
	if strings.ContainsAny(cmd, "<>") {
		return VerdictDestructive, "redirection", ""
	}
	for _, re := range c.policyDestructive {
		if re.MatchString(cmd) {
			return VerdictDestructive, "policy_destructive", re.String()
		}
	}
	for _, re := range c.policySafe {
		if re.MatchString(cmd) {
			return VerdictSafe, "policy_safe", re.String()
		}
	}
	for _, re := range builtinSafe {
		if re.MatchString(cmd) {
			return VerdictSafe, "builtin_safe", re.String()
		}
	}
	for _, re := range builtinDestructive {
		if re.MatchString(cmd) {
			return VerdictDestructive, "builtin_destructive", re.String()
		}
	}
	return VerdictDestructive, "default", ""
}

func (c *CommandClassifier) debug(command, cwd, verdict, branch, pattern string) {
	if c.diag == nil {
		return
	}
	c.diag.Event("command_classifier", "verdict", map[string]any{
		"command": command,
		"cwd":     cwd,
		"verdict": verdict,
		"branch":  branch,
		"pattern": pattern,
	})
}

// UnwrapShell strips one level of shell-wrapper indirection so the inner
// command is classified instead of the interpreter invocation:
//
//	powershell -Command "git status"  →  git status
//	bash -c 'ls -la'                  →  ls -la
func UnwrapShell(command string) string {
	trimmed := strings.TrimSpace(command)
	lower := strings.ToLower(trimmed)

	wrappers := []struct{ prefix, flag string }{
		{"powershell", "-command"},
		{"pwsh", "-command"},
		{"powershell.exe", "-command"},
		{"pwsh.exe", "-command"},
		{"bash", "-c"},
		{"sh", "-c"},
		{"zsh", "-c"},
		{"cmd", "/c"},
		{"cmd.exe", "/c"},
	}
	for _, w := range wrappers {
		if !strings.HasPrefix(lower, w.prefix+" ") {
			continue
		}
		rest := trimmed[len(w.prefix):]
		idx := strings.Index(strings.ToLower(rest), w.flag)
		if idx < 0 {
			continue
		}
		inner := strings.TrimSpace(rest[idx+len(w.flag):])
		inner = strings.Trim(inner, `"'`)
		if inner != "" {
			return inner
		}
	}
	return trimmed
}
