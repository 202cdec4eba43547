package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/fleetchat/fleetd/internal/a2ui"
	"github.com/fleetchat/fleetd/internal/guidance"
)

func TestUIPrompt(t *testing.T) {
	docs := []guidance.Doc{
		{Name: "a", Title: "Card Pattern", Modes: []string{guidance.ModeUI}, Content: "CARD BODY"},
		{Name: "b", Title: "Text Only", Modes: []string{guidance.ModeText}, Content: "TEXT BODY"},
		{Name: "c", Title: "House Style", Content: "SHORT TITLES"},
	}
	got := UIPrompt(UIContext{
		Query:       "who is alice?",
		ToolResults: `[{"tool_name":"get_contact_info"}]`,
		BaseURL:     "http://localhost:1420",
		State:       "ToolCalling",
		Guidance:    docs,
	})

	for _, want := range []string{
		"`" + a2ui.Delimiter + "`",
		"- User query: who is alice?",
		`- Tool calls made: Tool results: [{"tool_name":"get_contact_info"}]`,
		"- Base URL: http://localhost:1420",
		"- Session state: ToolCalling",
		"## 1. Card Pattern\nCARD BODY",
		"## 2. House Style\nSHORT TITLES",
		"---BEGIN A2UI JSON SCHEMA---",
		`"$schema"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("UI prompt missing %q", want)
		}
	}
	if strings.Contains(got, "TEXT BODY") {
		t.Error("text-only guidance leaked into the UI prompt")
	}
	if strings.Contains(got, "%!") {
		t.Error("prompt has a formatting error")
	}
}

func TestUIPrompt_NoTools(t *testing.T) {
	got := UIPrompt(UIContext{Query: "hi", Schema: "{}"})
	if !strings.Contains(got, "- Tool calls made: No tools used") {
		t.Error("want the no-tools marker")
	}
	if !strings.Contains(got, "---BEGIN A2UI JSON SCHEMA---\n{}\n") {
		t.Error("explicit schema not used")
	}
	if !strings.Contains(got, "(none)") {
		t.Error("empty pattern list should say so")
	}
}

func TestTextPrompt(t *testing.T) {
	docs, err := guidance.Load("")
	if err != nil {
		t.Fatal(err)
	}
	got := TextPrompt("find bob", "", "Initial", docs)
	for _, want := range []string{
		"Your final output MUST be a text response.",
		"- User query: find bob",
		"- Tool calls made: No tools used",
		"- Session state: Initial",
		"list names and titles",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("text prompt missing %q", want)
		}
	}
	if strings.Contains(got, "surfaceUpdate") {
		t.Error("UI patterns leaked into the text prompt")
	}

	bare := TextPrompt("q", "", "Initial", nil)
	if !strings.Contains(bare, "Answer clearly") {
		t.Error("want default rule without guidance")
	}
}

func TestRetryFeedback(t *testing.T) {
	got := RetryFeedback("show alice", errors.New("message 1 (surfaceUpdate): bad"))
	for _, want := range []string{
		"Your previous response was invalid: message 1 (surfaceUpdate): bad.",
		"'" + a2ui.Delimiter + "'",
		"retry the original request: 'show alice'",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("feedback missing %q:\n%s", want, got)
		}
	}
}

func TestFallbackText(t *testing.T) {
	got := FallbackText(errors.New("boom"))
	want := "I'm sorry, I'm having trouble generating the interface for that request right now. Please try again in a moment. Error: boom"
	if got != want {
		t.Errorf("FallbackText() = %q", got)
	}
}
