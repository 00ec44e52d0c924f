package intent

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/intentgate/intent-gate/internal/trace"
	"github.com/intentgate/intent-gate/internal/util"
)

// historyEntries is the number of recent trace entries embedded in the
// context block.
const historyEntries = 5

// maxHistoryParam bounds the rendered file list of each history entry.
const maxHistoryParam = 120

// RenderContext assembles the context block bound to the session at
// selection time: the intent specification, a brief slice of recent trace
// history, and the shared knowledge file.
func RenderContext(it Intent, history []trace.Entry, sharedKnowledge string) string {
	var b strings.Builder
	b.WriteString("<intent_context>\n")

	b.WriteString("  <intent_specification>\n")
	fmt.Fprintf(&b, "    <id>%s</id>\n", esc(it.ID))
	fmt.Fprintf(&b, "    <name>%s</name>\n", esc(it.Name))
	fmt.Fprintf(&b, "    <status>%s</status>\n", esc(it.Status))
	b.WriteString("    <owned_scope>\n")
	for _, p := range it.OwnedScope {
		fmt.Fprintf(&b, "      <path>%s</path>\n", esc(p))
	}
	b.WriteString("    </owned_scope>\n")
	b.WriteString("    <constraints>\n")
	for _, c := range it.Constraints {
		fmt.Fprintf(&b, "      <constraint>%s</constraint>\n", esc(c))
	}
	b.WriteString("    </constraints>\n")
	b.WriteString("    <acceptance_criteria>\n")
	for _, c := range it.AcceptanceCriteria {
		fmt.Fprintf(&b, "      <criteria>%s</criteria>\n", esc(c))
	}
	b.WriteString("    </acceptance_criteria>\n")
	b.WriteString("  </intent_specification>\n")

	b.WriteString("  <brief_history>\n")
	for _, e := range history {
		fmt.Fprintf(&b, "    <trace_entry timestamp=%q tool=%q", e.Timestamp.Format("2006-01-02T15:04:05Z07:00"), esc(e.Tool))
		if files := historyFiles(e); files != "" {
			fmt.Fprintf(&b, " files=%q", files)
		}
		b.WriteString("/>\n")
	}
	b.WriteString("  </brief_history>\n")

	b.WriteString("  <shared_knowledge>\n")
	if sharedKnowledge != "" {
		b.WriteString(sharedKnowledge)
		if !strings.HasSuffix(sharedKnowledge, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("  </shared_knowledge>\n")

	b.WriteString("</intent_context>")
	return b.String()
}

func historyFiles(e trace.Entry) string {
	var names []string
	for _, f := range e.Files {
		names = append(names, f.RelativePath)
	}
	return util.TruncateRunes(esc(strings.Join(names, ",")), maxHistoryParam)
}

func esc(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
