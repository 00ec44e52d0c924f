package classify

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/intentgate/intent-gate/internal/session"
	"github.com/intentgate/intent-gate/internal/util"
)

// Classification sources.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
	SourceFallback  = "fallback"
	SourceNone      = "none"
)

const heuristicConfidence = 0.4

// safeKeywords signal routine development requests.
var safeKeywords = []string{
	"read", "list", "view", "show", "explain", "look", "inspect", "find",
	"search", "create", "add", "edit", "refactor", "implement", "fix",
	"update", "write", "document", "test",
}

// destructiveKeywords signal requests whose effects are hard to undo.
var destructiveKeywords = []string{
	"delete", "remove", "wipe", "drop", "erase", "overwrite", "rename",
	"move", "destroy", "purge", "uninstall", "clear out", "truncate",
	"revert", "rollback", "reset",
}

// ChatCompleter is the single LLM operation the classifier needs. The
// OpenAI-backed implementation lives in llm.go; tests supply stubs.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// UserIntentClassifier derives a safe/destructive verdict from the most
// recent user message: a keyword heuristic first, then an optional
// single-shot LLM classification with the heuristic as a safety net.
type UserIntentClassifier struct {
	llm ChatCompleter // nil → heuristic only
}

// NewUserIntentClassifier creates a classifier. Pass nil to disable the LLM
// step.
func NewUserIntentClassifier(llm ChatCompleter) *UserIntentClassifier {
	return &UserIntentClassifier{llm: llm}
}

const classifierSystemPrompt = `You classify a software developer's request as "safe" or "destructive".
A request is destructive when it asks to delete, remove, wipe, overwrite, rename or move files or data, or to undo committed work.
Routine reading, creating, editing, refactoring and testing is safe.
Respond with a single JSON object and nothing else:
{"verdict":"safe"|"destructive","reason":"<short reason>","confidence":<0..1>}`

type llmVerdict struct {
	Verdict    string  `json:"verdict"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Classify returns the classification for message. The result always
// carries the SHA-256 of the message so callers can cache per message.
func (c *UserIntentClassifier) Classify(ctx context.Context, message string) session.UserIntentClassification {
	hash := util.SHA256Hex([]byte(message))
	heuristic, keywordHit := c.heuristic(message)
	heuristic.MessageHash = hash

	if c.llm == nil {
		return heuristic
	}

	raw, err := c.llm.Complete(ctx, classifierSystemPrompt, message)
	if err != nil {
		log.Printf("[UserIntent] LLM classification failed, using heuristic: %v", err)
		heuristic.Source = SourceFallback
		return heuristic
	}

	var v llmVerdict
	if err := json.Unmarshal([]byte(extractJSON(raw)), &v); err != nil ||
		(v.Verdict != VerdictSafe && v.Verdict != VerdictDestructive) {
		log.Printf("[UserIntent] unparseable LLM verdict %q, using heuristic", util.TruncateRunes(raw, 120))
		heuristic.Source = SourceFallback
		return heuristic
	}

	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}

	// Safety override: a model that calls a routine edit destructive is
	// overruled when the heuristic saw no destructive keyword at all.
	if v.Verdict == VerdictDestructive && heuristic.Verdict == VerdictSafe && !keywordHit {
		return heuristic
	}

	return session.UserIntentClassification{
		Verdict:     v.Verdict,
		Reason:      v.Reason,
		Confidence:  v.Confidence,
		Source:      SourceLLM,
		MessageHash: hash,
	}
}

// heuristic runs the keyword pass. destructiveHit reports whether any
// destructive keyword occurred, independent of the final verdict.
func (c *UserIntentClassifier) heuristic(message string) (session.UserIntentClassification, bool) {
	lower := strings.ToLower(message)

	destructiveHit := false
	for _, kw := range destructiveKeywords {
		if strings.Contains(lower, kw) {
			destructiveHit = true
			break
		}
	}
	safeHit := false
	for _, kw := range safeKeywords {
		if strings.Contains(lower, kw) {
			safeHit = true
			break
		}
	}

	switch {
	case destructiveHit:
		return session.UserIntentClassification{
			Verdict:    VerdictDestructive,
			Reason:     "destructive keyword in user message",
			Confidence: heuristicConfidence,
			Source:     SourceHeuristic,
		}, true
	case safeHit:
		return session.UserIntentClassification{
			Verdict:    VerdictSafe,
			Reason:     "safe keyword in user message",
			Confidence: heuristicConfidence,
			Source:     SourceHeuristic,
		}, false
	default:
		return session.UserIntentClassification{
			Verdict: VerdictUnknown,
			Source:  SourceNone,
		}, false
	}
}

// extractJSON pulls the first {...} object out of an LLM response that may
// wrap the JSON in prose or a code fence.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
