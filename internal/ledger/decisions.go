package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Decision outcomes.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Decision is one persisted HITL approve/reject outcome. Records are
// appended to intent-decisions.jsonl and reused to skip re-prompting for
// identical (intent, command) pairs; the tool is recorded but not matched.
type Decision struct {
	ID                    string    `json:"id"`
	IntentID              string    `json:"intent_id"`
	Tool                  string    `json:"tool"`
	Decision              string    `json:"decision"` // "approved" | "rejected"
	Reason                string    `json:"reason"`
	Targets               []string  `json:"targets,omitempty"`
	Command               string    `json:"command,omitempty"`
	CommandClassification string    `json:"command_classification,omitempty"`
	IntentClassification  string    `json:"intent_classification,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

// AppendDecision persists d to the decisions log at path. A zero ID and
// timestamp are filled in before writing.
func AppendDecision(path string, d Decision) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("ledger: marshal decision: %w", err)
	}
	return AppendLine(path, data)
}

// ReadDecisions loads all parseable decisions from path. Unparseable lines
// (partial writes from a crashed sibling) are skipped, not fatal. A missing
// file yields an empty slice.
func ReadDecisions(path string) ([]Decision, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	defer f.Close()

	var out []Decision
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var d Decision
		if err := json.Unmarshal(line, &d); err != nil {
			continue // tolerate partial lines
		}
		out = append(out, d)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("ledger: scan %s: %w", path, err)
	}
	return out, nil
}

// FindCommandApproval reports whether an approved decision exists for the
// given (intent, command) pair. The latest matching record wins, so a later
// rejection overrides an earlier approval.
func FindCommandApproval(path, intentID, command string) (bool, error) {
	decisions, err := ReadDecisions(path)
	if err != nil {
		return false, err
	}
	approved := false
	found := false
	for _, d := range decisions {
		if d.IntentID == intentID && d.Command == command {
			found = true
			approved = d.Decision == DecisionApproved
		}
	}
	return found && approved, nil
}
