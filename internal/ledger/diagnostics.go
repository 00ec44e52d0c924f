package ledger

import (
	"encoding/json"
	"log"
	"time"
)

// Diagnostics writes structured debug events to agent-diagnostics.jsonl.
// Events are best-effort: a failed append is logged and swallowed so that
// diagnostics can never fail a tool call.
type Diagnostics struct {
	Path string
}

type diagnosticEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Event appends one structured event. Safe to call with a zero Path
// (diagnostics disabled).
func (d *Diagnostics) Event(component, event string, fields map[string]any) {
	if d == nil || d.Path == "" {
		return
	}
	data, err := json.Marshal(diagnosticEvent{
		Timestamp: time.Now().UTC(),
		Component: component,
		Event:     event,
		Fields:    fields,
	})
	if err != nil {
		log.Printf("[Diagnostics] marshal event %s/%s: %v", component, event, err)
		return
	}
	if err := AppendLine(d.Path, data); err != nil {
		log.Printf("[Diagnostics] append event %s/%s: %v", component, event, err)
	}
}
