package gate

import "testing"

func TestMatchScope_LiteralPrefix(t *testing.T) {
	work := "/home/dev/proj"
	tests := []struct {
		scope  string
		target string
		want   bool
	}{
		{"src", "src/foo.ts", true},
		{"src", "src/sub/deep.ts", true},
		{"src", "src", true},
		{"src", "srctool.ts", false}, // separator boundary
		{"src", "other/src/foo.ts", false},
		{"src/api", "src/api/handler.go", true},
		{"src/api", "src/apiserver.go", false},
	}
	for _, tt := range tests {
		if got := matchScope(tt.scope, tt.target, work); got != tt.want {
			t.Errorf("matchScope(%q, %q) = %v, want %v", tt.scope, tt.target, got, tt.want)
		}
	}
}

func TestMatchScope_Glob(t *testing.T) {
	work := "/home/dev/proj"
	tests := []struct {
		scope  string
		target string
		want   bool
	}{
		{"docs/*.md", "docs/guide.md", true},
		{"docs/*.md", "docs/sub/deep.md", false}, // single star stays in one segment
		{"docs/**/*.md", "docs/sub/deep.md", true},
		{"docs/**", "docs/anything/at/all.txt", true},
		{"*.md", "README.md", true},
		{"*.md", "docs/inner.md", true}, // no-slash pattern matches any segment
		{"src/util?.go", "src/utila.go", true},
		{"src/util?.go", "src/utilab.go", false},
		{"src/[ab].go", "src/a.go", true},
		{"src/[ab].go", "src/c.go", false},
		{"src/*", "src/pkg/file.go", true}, // a matched directory covers its children
	}
	for _, tt := range tests {
		if got := matchScope(tt.scope, tt.target, work); got != tt.want {
			t.Errorf("matchScope(%q, %q) = %v, want %v", tt.scope, tt.target, got, tt.want)
		}
	}
}

func TestMatchScope_AbsoluteTarget(t *testing.T) {
	work := "/home/dev/proj"
	if !matchScope("src", "/home/dev/proj/src/a.ts", work) {
		t.Error("absolute targets inside the workspace match literal scopes")
	}
	if matchScope("src", "/etc/passwd", work) {
		t.Error("paths outside the workspace never match")
	}
}

func TestInScope(t *testing.T) {
	work := "/home/dev/proj"
	scopes := []string{"src", "docs/*.md"}
	if !InScope("src/a.ts", scopes, work) {
		t.Error("first scope entry should match")
	}
	if !InScope("docs/x.md", scopes, work) {
		t.Error("second scope entry should match")
	}
	if InScope("vendor/lib.go", scopes, work) {
		t.Error("no entry matches vendor")
	}
	if InScope("anything", nil, work) {
		t.Error("empty scope matches nothing")
	}
}
