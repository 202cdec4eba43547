package guidance

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/fleetchat/fleetd/internal/a2ui"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTitle string
		wantModes []string
		wantBody  string
	}{
		{
			name:      "no frontmatter",
			raw:       "# Hello\n\nSome content.",
			wantTitle: "doc",
			wantBody:  "# Hello\n\nSome content.",
		},
		{
			name:      "title and modes",
			raw:       "---\ntitle: Cards\nmodes: [ui]\n---\nUse cards.\n",
			wantTitle: "Cards",
			wantModes: []string{"ui"},
			wantBody:  "Use cards.",
		},
		{
			name:      "crlf line endings",
			raw:       "---\r\nmodes: [text, ui]\r\n---\r\nBody\r\n",
			wantTitle: "doc",
			wantModes: []string{"text", "ui"},
			wantBody:  "Body",
		},
		{
			name:      "unclosed frontmatter is body",
			raw:       "---\nmodes: [ui]\nno close",
			wantTitle: "doc",
			wantBody:  "---\nmodes: [ui]\nno close",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse("doc", []byte(tt.raw))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if d.Title != tt.wantTitle || d.Content != tt.wantBody || !reflect.DeepEqual(d.Modes, tt.wantModes) {
				t.Errorf("Parse() = %+v, want title %q modes %v body %q", d, tt.wantTitle, tt.wantModes, tt.wantBody)
			}
		})
	}
}

func TestParse_BadFrontmatter(t *testing.T) {
	if _, err := Parse("bad", []byte("---\nmodes: [ui\n---\nbody")); err == nil {
		t.Error("Parse() should reject malformed YAML frontmatter")
	}
}

func TestLoad_Builtins(t *testing.T) {
	docs, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ui := Select(docs, ModeUI)
	if len(ui) < 5 {
		t.Fatalf("got %d ui docs, want the five built-in patterns", len(ui))
	}
	if len(Select(docs, ModeText)) != 1 {
		t.Errorf("want exactly one built-in text doc")
	}
}

// Every built-in pattern is shown to models as an example, so each must
// be a valid batch.
func TestBuiltinPatternsValidate(t *testing.T) {
	docs, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range Select(docs, ModeUI) {
		t.Run(d.Name, func(t *testing.T) {
			ex := a2ui.Extract(d.Content)
			if !ex.Found {
				t.Fatalf("no JSON block in %s", d.Name)
			}
			res, err := a2ui.Parse(ex.JSON)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(res.Skipped) != 0 {
				t.Fatalf("skipped entries: %s", res.SkippedSummary())
			}
			if err := a2ui.Validate(res.Messages); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestLoad_DirOverrides(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("10-card.md", "---\nmodes: [ui]\n---\nCustom card.")
	write("60-house-style.md", "Prefer short titles.")
	write("notes.txt", "ignored")

	docs, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	byName := map[string]Doc{}
	for _, d := range docs {
		byName[d.Name] = d
	}
	if byName["10-card"].Content != "Custom card." {
		t.Errorf("override not applied: %q", byName["10-card"].Content)
	}
	hs, ok := byName["60-house-style"]
	if !ok || !hs.AppliesTo(ModeUI) || !hs.AppliesTo(ModeText) {
		t.Errorf("untagged doc should apply to every mode: %+v", hs)
	}
	if _, ok := byName["notes"]; ok {
		t.Error("non-markdown file loaded")
	}
	for i := 1; i < len(docs); i++ {
		if docs[i-1].Name > docs[i].Name {
			t.Fatalf("docs not sorted: %s before %s", docs[i-1].Name, docs[i].Name)
		}
	}
}

func TestLoad_MissingDir(t *testing.T) {
	docs, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(docs) == 0 {
		t.Errorf("Load(missing) = %d docs, %v; want built-ins", len(docs), err)
	}
}
