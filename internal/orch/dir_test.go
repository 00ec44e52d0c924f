package orch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAndEnsure(t *testing.T) {
	workspace := t.TempDir()
	d := Resolve(workspace)

	if d.Root != filepath.Join(workspace, DirName) {
		t.Errorf("Root = %q, want %q", d.Root, filepath.Join(workspace, DirName))
	}
	if err := d.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if info, err := os.Stat(d.Root); err != nil || !info.IsDir() {
		t.Fatalf("orchestration dir should exist after Ensure: %v", err)
	}
	// Idempotent.
	if err := d.Ensure(); err != nil {
		t.Errorf("second Ensure should succeed: %v", err)
	}
}

func TestIgnoredIntents_MissingFile(t *testing.T) {
	d := Resolve(t.TempDir())
	ids, err := d.IgnoredIntents()
	if err != nil {
		t.Fatalf("missing ignore file should not error: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected empty set, got %v", ids)
	}
}

func TestIgnoredIntents_ParsesLines(t *testing.T) {
	workspace := t.TempDir()
	d := Resolve(workspace)
	if err := d.Ensure(); err != nil {
		t.Fatal(err)
	}
	content := "# frozen intents\nINT-1\n\nINT-2  # migration freeze\n  INT-3\n"
	if err := os.WriteFile(d.IgnorePath(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := d.IgnoredIntents()
	if err != nil {
		t.Fatalf("IgnoredIntents: %v", err)
	}
	for _, want := range []string{"INT-1", "INT-2", "INT-3"} {
		if !ids[want] {
			t.Errorf("expected %s in ignore set, got %v", want, ids)
		}
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 ids, got %d", len(ids))
	}
}
