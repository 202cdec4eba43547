package a2ui

import (
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantFound bool
		method    string
		text      string
		json      string
	}{
		{
			name:      "delimiter with fence",
			in:        "Here are your contacts.\n---a2ui_JSON---\n```json\n[{\"deleteSurface\":{\"surfaceId\":\"s\"}}]\n```\n",
			wantFound: true,
			method:    MethodDelimiter,
			text:      "Here are your contacts.",
			json:      `[{"deleteSurface":{"surfaceId":"s"}}]`,
		},
		{
			name:      "delimiter trailing fence only",
			in:        "Hi ---a2ui_JSON--- []```json",
			wantFound: true,
			method:    MethodDelimiter,
			text:      "Hi",
			json:      "[]",
		},
		{
			name:      "delimiter empty payload",
			in:        "Just text.\n---a2ui_JSON---\n",
			wantFound: true,
			method:    MethodDelimiter,
			text:      "Just text.",
			json:      "",
		},
		{
			name:      "split on first delimiter only",
			in:        "a---a2ui_JSON---b---a2ui_JSON---c",
			wantFound: true,
			method:    MethodDelimiter,
			text:      "a",
			json:      "b---a2ui_JSON---c",
		},
		{
			name:      "marker with bracket in string",
			in:        "Sure!\nA2UI_MESSAGES: [{\"t\":\"a]b\"},[1]] and then some",
			wantFound: true,
			method:    MethodMarker,
			text:      "Sure!",
			json:      `[{"t":"a]b"},[1]]`,
		},
		{
			name:      "marker with escaped quote",
			in:        `A2UI_MESSAGES: [{"t":"say \"]\""}]`,
			wantFound: true,
			method:    MethodMarker,
			text:      "",
			json:      `[{"t":"say \"]\""}]`,
		},
		{
			name:      "plain text",
			in:        "  Alice is the Mad Hatter.  ",
			wantFound: false,
			text:      "Alice is the Mad Hatter.",
		},
		{
			name:      "non json fence ignored",
			in:        "Example:\n\n```go\nfunc main() {}\n```\n",
			wantFound: false,
			text:      "Example:\n\n```go\nfunc main() {}\n```",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.in)
			if got.Found != tt.wantFound {
				t.Fatalf("Found = %v, want %v", got.Found, tt.wantFound)
			}
			if got.Method != tt.method {
				t.Errorf("Method = %q, want %q", got.Method, tt.method)
			}
			if got.Text != tt.text {
				t.Errorf("Text = %q, want %q", got.Text, tt.text)
			}
			if got.JSON != tt.json {
				t.Errorf("JSON = %q, want %q", got.JSON, tt.json)
			}
		})
	}
}

func TestExtract_FencedFallback(t *testing.T) {
	in := "Here is the UI:\n\n```json\n{\"deleteSurface\":{\"surfaceId\":\"s\"}}\n```\n\nDone."
	got := Extract(in)
	if !got.Found || got.Method != MethodFence {
		t.Fatalf("Found = %v, Method = %q", got.Found, got.Method)
	}
	if got.JSON != `{"deleteSurface":{"surfaceId":"s"}}` {
		t.Errorf("JSON = %q", got.JSON)
	}
	if !strings.HasPrefix(got.Text, "Here is the UI:") || !strings.HasSuffix(got.Text, "Done.") {
		t.Errorf("Text = %q", got.Text)
	}
	if strings.Contains(got.Text, "```") || strings.Contains(got.Text, "deleteSurface") {
		t.Errorf("Text still contains the block: %q", got.Text)
	}
}

func TestExtract_MarkerUnclosedFallsThrough(t *testing.T) {
	got := Extract("A2UI_MESSAGES: [{\"a\":1}")
	if got.Found {
		t.Errorf("unclosed array should not be found, got %+v", got)
	}
}

func TestMatchBracket(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"[]", 2},
		{"[[1],[2]] tail", 9},
		{`["]"]`, 5},
		{"[", -1},
	}
	for _, tt := range tests {
		if got := matchBracket(tt.in); got != tt.want {
			t.Errorf("matchBracket(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
