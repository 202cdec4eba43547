package prompts

import (
	"fmt"
	"strings"

	"github.com/fleetchat/fleetd/internal/a2ui"
	"github.com/fleetchat/fleetd/internal/guidance"
)

// uiTemplate is the system prompt for UI mode. The verbs are, in order:
// the delimiter (three times), user query, tool context, base URL,
// session state, component patterns, and the JSON schema.
const uiTemplate = `You are a helpful AI assistant that can generate rich, interactive user interfaces using the A2UI framework. Your final output MUST be in A2UI JSON format.

To generate the response, you MUST follow these rules:
1. Your response MUST be in two parts, separated by the delimiter: ` + "`%s`" + `.
2. The first part is your conversational text response explaining what you're providing.
3. The second part is a list of A2UI messages (valid JSON array).
4. Each A2UI message MUST validate against the A2UI JSON SCHEMA.
5. Do not wrap the JSON part in markdown fences and do not add text after it.
6. If no interface is needed, end your reply with %s followed by an empty array [].
7. Every surfaceUpdate and dataModelUpdate must name the same surfaceId as its beginRendering. Put beginRendering last.
8. Never write %s anywhere else in your reply.

Context:
- User query: %s
- Tool calls made: %s
- Base URL: %s
- Session state: %s

A2UI COMPONENT PATTERNS:
%s
RESPONSE GUIDELINES:
1. Choose the most appropriate pattern based on the user's query and context
2. For contact lookups: Use Card pattern for single contact, List pattern for multiple contacts
3. For forms/requests: Use Form pattern with appropriate input fields
4. For complex information: Use Tab pattern to organize content
5. For async operations: Start with Loading pattern, then update with actual content
6. Always include proper data bindings and make components interactive where appropriate
7. Use descriptive IDs and follow the adjacency list model (flat component list with ID references)

---BEGIN A2UI JSON SCHEMA---
%s
---END A2UI JSON SCHEMA---`

// UIContext carries the dynamic parts of the UI-mode prompt.
type UIContext struct {
	Query string
	// ToolResults is the JSON of the tool calls made this turn, or
	// empty when none ran.
	ToolResults string
	BaseURL     string
	State       string
	Guidance    []guidance.Doc
	// Schema defaults to the embedded A2UI schema.
	Schema string
}

// UIPrompt returns the fully interpolated UI-mode system prompt.
func UIPrompt(c UIContext) string {
	schema := c.Schema
	if schema == "" {
		schema = a2ui.SchemaJSON()
	}
	return fmt.Sprintf(uiTemplate,
		a2ui.Delimiter, a2ui.Delimiter, a2ui.Delimiter,
		c.Query,
		toolContext(c.ToolResults),
		c.BaseURL,
		c.State,
		patterns(guidance.Select(c.Guidance, guidance.ModeUI)),
		strings.TrimSpace(schema),
	)
}

// patterns numbers the guidance documents as prompt sections.
func patterns(docs []guidance.Doc) string {
	if len(docs) == 0 {
		return "(none)\n"
	}
	var sb strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&sb, "\n## %d. %s\n%s\n", i+1, d.Title, d.Content)
	}
	return sb.String()
}

func toolContext(results string) string {
	if results == "" {
		return "No tools used"
	}
	return "Tool results: " + results
}
