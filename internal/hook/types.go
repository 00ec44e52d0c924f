// Package hook implements the pre/post hook engine around tool dispatch and
// the types shared by every hook: the tool call envelope and the structured
// veto error returned to the model.
package hook

import (
	"encoding/json"
	"strings"
)

// ToolCall is one parsed tool invocation flowing through the pipeline.
// Args stays a generic map because hooks inject and rewrite parameters
// generically; handlers decode into their own typed argument structs.
type ToolCall struct {
	ID      string         // stable call identifier from the LLM layer
	Name    string         // tool identifier
	Args    map[string]any // key-value arguments as decoded from the wire
	Partial bool           // true while the LLM is still streaming args
}

// StringArg returns the string value under key, or "" when absent or not a
// string.
func (c *ToolCall) StringArg(key string) string {
	if c.Args == nil {
		return ""
	}
	if v, ok := c.Args[key].(string); ok {
		return v
	}
	return ""
}

// SetArg sets an argument, allocating the map on first use.
func (c *ToolCall) SetArg(key string, value any) {
	if c.Args == nil {
		c.Args = make(map[string]any)
	}
	c.Args[key] = value
}

// ArgsJSON renders the argument map for handler execution.
func (c *ToolCall) ArgsJSON() json.RawMessage {
	data, err := json.Marshal(c.Args)
	if err != nil || c.Args == nil {
		return json.RawMessage("{}")
	}
	return data
}

// Patch header markers recognized in patch/diff payloads.
const (
	MarkerAddFile    = "*** Add File:"
	MarkerUpdateFile = "*** Update File:"
	MarkerDeleteFile = "*** Delete File:"
	MarkerMoveTo     = "*** Move to:"
)

// pathArgKeys are the argument keys scanned for target paths.
var pathArgKeys = []string{"path", "file_path", "files"}

// payloadArgKeys are the argument keys scanned for patch header markers.
var payloadArgKeys = []string{"patch", "diff"}

// TargetPaths extracts every target path referenced by the call: string
// values under the recognized path keys, string lists under "files", and
// file names following patch header markers in patch/diff payloads.
// Duplicates and empties are dropped; order of first appearance is kept.
func (c *ToolCall) TargetPaths() []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, key := range pathArgKeys {
		switch v := c.Args[key].(type) {
		case string:
			add(v)
		case []string:
			for _, p := range v {
				add(p)
			}
		case []any:
			for _, item := range v {
				if p, ok := item.(string); ok {
					add(p)
				}
			}
		}
	}

	for _, key := range payloadArgKeys {
		if body := c.StringArg(key); body != "" {
			for _, p := range PatchPaths(body) {
				add(p)
			}
		}
	}

	return out
}

// PatchPaths scans a patch body for header markers and returns the file
// names they reference, in order of appearance.
func PatchPaths(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range []string{MarkerAddFile, MarkerUpdateFile, MarkerDeleteFile, MarkerMoveTo} {
			if strings.HasPrefix(line, marker) {
				if p := strings.TrimSpace(strings.TrimPrefix(line, marker)); p != "" {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// HasDestructiveMarkers reports whether any patch/diff payload of the call
// deletes or moves a file.
func (c *ToolCall) HasDestructiveMarkers() bool {
	for _, key := range payloadArgKeys {
		body := c.StringArg(key)
		if body == "" {
			continue
		}
		if strings.Contains(body, MarkerDeleteFile) || strings.Contains(body, MarkerMoveTo) {
			return true
		}
	}
	return false
}
