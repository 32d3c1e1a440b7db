// Package grounding turns retrieval hits into the context and instructions
// sent to the generation service.
package grounding

import (
	"strings"

	"personarag/internal/domain"
)

// Assemble joins the text of each hit, in result order, with line breaks.
// Hits pointing outside the corpus are skipped.
func Assemble(corpus *domain.Corpus, result domain.RetrievalResult) string {
	if corpus == nil || len(result) == 0 {
		return ""
	}
	parts := make([]string, 0, len(result))
	for _, h := range result {
		if h.Index < 0 || h.Index >= len(corpus.Records) {
			continue
		}
		parts = append(parts, corpus.Records[h.Index].Text)
	}
	return strings.Join(parts, "\n")
}

// StyleRules keep replies conversational and in character.
const StyleRules = "Reply in a casual, spoken register that fits the persona. " +
	"Do not write bracketed or parenthetical stage directions such as \"(tilts head thinking)\"; this is a text chat. " +
	"Do not repeat the same catchphrase in every sentence."

// SystemPrompt builds the system-role instruction for one turn.
func SystemPrompt(p domain.Persona, context string) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(p.Name())
	b.WriteString(". Stay in character for the whole conversation.")
	if p.Description != "" {
		b.WriteString("\nAbout you: ")
		b.WriteString(p.Description)
	}
	b.WriteString("\nAnswer using the following facts about yourself:\n")
	if strings.TrimSpace(context) == "" {
		b.WriteString("(no matching facts)")
	} else {
		b.WriteString(context)
	}
	b.WriteString("\n")
	b.WriteString(StyleRules)
	return b.String()
}
