package classify

import (
	"os"
	"path/filepath"
	"testing"
)

func newClassifier(t *testing.T) *CommandClassifier {
	t.Helper()
	c, err := NewCommandClassifier(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClassify_Builtins(t *testing.T) {
	c := newClassifier(t)
	tests := []struct {
		command string
		want    string
	}{
		{"ls -la", VerdictSafe},
		{"pwd", VerdictSafe},
		{"cat main.go", VerdictSafe},
		{"grep -r TODO .", VerdictSafe},
		{"git status", VerdictSafe},
		{"git diff --stat", VerdictSafe},
		{"git log --oneline", VerdictSafe},
		{"env", VerdictSafe},
		{"  GIT STATUS  ", VerdictSafe}, // trimmed and lowercased

		{"rm tmp", VerdictDestructive},
		{"rm -rf build", VerdictDestructive},
		{"mv a b", VerdictDestructive},
		{"cp -r src dst", VerdictDestructive},
		{"npm install left-pad", VerdictDestructive},
		{"pip install requests", VerdictDestructive},
		{"make all", VerdictDestructive},
		{"go build ./...", VerdictDestructive},
		{"git push origin main", VerdictDestructive},
		{"git reset --hard", VerdictDestructive},
		{"sed -i 's/a/b/' file.txt", VerdictDestructive},
		{"perl -i -pe 's/a/b/' file.txt", VerdictDestructive},
		{"sudo apt-get install jq", VerdictDestructive},

		// Unknown commands default to destructive.
		{"frobnicate --all", VerdictDestructive},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.command, "."); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.command, got, tt.want)
		}
	}
}

func TestClassify_RedirectionAlwaysDestructive(t *testing.T) {
	c := newClassifier(t)
	for _, cmd := range []string{
		"echo hi > out.txt",
		"cat a.txt > b.txt",
		"sort < input.txt",
		"git status > status.txt",
	} {
		if got := c.Classify(cmd, "."); got != VerdictDestructive {
			t.Errorf("Classify(%q) = %s, want destructive (redirection)", cmd, got)
		}
	}
}

func TestClassify_PolicyFileOverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "command-policy.json")
	policy := `{"safe":["^terraform plan\\b"],"destructive":["^git status\\b"]}`
	if err := os.WriteFile(policyPath, []byte(policy), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewCommandClassifier([]string{policyPath}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Project destructive beats the built-in safe verdict.
	if got := c.Classify("git status", "."); got != VerdictDestructive {
		t.Errorf("project destructive pattern should take precedence, got %s", got)
	}
	// Project safe rescues a command that would default to destructive.
	if got := c.Classify("terraform plan -out plan.tfplan", "."); got != VerdictSafe {
		t.Errorf("project safe pattern should apply, got %s", got)
	}
}

func TestClassify_PolicyYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "command-policy.json") // absent
	yamlPath := filepath.Join(dir, "command-policy.yaml")
	if err := os.WriteFile(yamlPath, []byte("safe:\n  - '^mytool status\\b'\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewCommandClassifier([]string{jsonPath, yamlPath}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Classify("mytool status", "."); got != VerdictSafe {
		t.Errorf("YAML policy should load when JSON is absent, got %s", got)
	}
}

func TestClassify_MalformedPolicyIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "command-policy.json")
	if err := os.WriteFile(path, []byte(`{"safe":["["]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCommandClassifier([]string{path}, nil); err == nil {
		t.Error("invalid regex in policy must not be silently ignored")
	}
}

func TestUnwrapShell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`powershell -Command "git status"`, "git status"},
		{`pwsh -Command "rm tmp"`, "rm tmp"},
		{`bash -c 'ls -la'`, "ls -la"},
		{`sh -c "rm -rf build"`, "rm -rf build"},
		{`cmd /C "del foo"`, "del foo"},
		{"git status", "git status"}, // no wrapper
		{"bash script.sh", "bash script.sh"},
	}
	for _, tt := range tests {
		if got := UnwrapShell(tt.in); got != tt.want {
			t.Errorf("UnwrapShell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToolSet(t *testing.T) {
	ts := NewToolSet("execute_command", "write_file", "apply_patch")

	if !ts.IsDestructive("execute_command") || !ts.IsDestructive("write_file") {
		t.Error("command and mutating tools are destructive")
	}
	if ts.IsMutating("execute_command") {
		t.Error("the command tool is destructive but not mutating")
	}
	if !ts.IsMutating("apply_patch") {
		t.Error("apply_patch is mutating")
	}
	if ts.Classify("write_file") != VerdictDestructive {
		t.Error("write_file classifies destructive")
	}
	if ts.Classify("mystery_tool") != VerdictUnknown {
		t.Error("unregistered tools classify unknown")
	}

	ts.AddSafe("read_file")
	if ts.Classify("read_file") != VerdictSafe {
		t.Error("read_file classifies safe after AddSafe")
	}

	ts.AddDestructive("new_writer")
	if !ts.IsMutating("new_writer") {
		t.Error("runtime-added tool should be mutating")
	}
	ts.Remove("new_writer")
	if ts.Classify("new_writer") != VerdictUnknown {
		t.Error("removed tool classifies unknown")
	}
}
