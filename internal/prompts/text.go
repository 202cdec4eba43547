package prompts

import (
	"fmt"
	"strings"

	"github.com/fleetchat/fleetd/internal/guidance"
)

// textTemplate is the system prompt for plain-text mode. Verbs: user
// query, tool context, session state, response rules.
const textTemplate = `You are a helpful contact lookup assistant. Your final output MUST be a text response.

Context:
- User query: %s
- Tool calls made: %s
- Session state: %s

Response Rules:
%s`

// TextPrompt returns the text-mode system prompt. The rules come from
// text-mode guidance documents.
func TextPrompt(query, toolResults, state string, docs []guidance.Doc) string {
	var rules []string
	for _, d := range guidance.Select(docs, guidance.ModeText) {
		rules = append(rules, d.Content)
	}
	if len(rules) == 0 {
		rules = append(rules, "- Answer clearly and concisely.")
	}
	return fmt.Sprintf(textTemplate, query, toolContext(toolResults), state, strings.Join(rules, "\n\n"))
}
