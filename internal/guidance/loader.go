// Package guidance loads the markdown documents appended to agent
// prompts. A built-in set of A2UI component patterns ships embedded;
// files in the configured guidance directory add to it, and a file
// with the same name as a built-in replaces it.
package guidance

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt modes a document can be restricted to.
const (
	ModeUI   = "ui"
	ModeText = "text"
)

// Doc is one parsed guidance file.
type Doc struct {
	Name    string   // file name without .md
	Title   string   // from frontmatter; defaults to Name
	Modes   []string // nil applies to every mode
	Content string   // markdown with frontmatter stripped
}

// AppliesTo reports whether d should be included in a prompt of the
// given mode.
func (d Doc) AppliesTo(mode string) bool {
	if len(d.Modes) == 0 {
		return true
	}
	for _, m := range d.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

type frontmatter struct {
	Title string   `yaml:"title"`
	Modes []string `yaml:"modes"`
}

// Load returns the built-in documents merged with the .md files in
// dir, sorted by name. An empty or missing dir yields the built-ins.
func Load(dir string) ([]Doc, error) {
	docs, err := readFS(builtin, "builtin")
	if err != nil {
		return nil, fmt.Errorf("read built-in guidance: %w", err)
	}
	if dir == "" {
		return docs, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return docs, nil
	}
	user, err := readFS(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("read guidance dir %s: %w", dir, err)
	}
	return merge(docs, user), nil
}

func readFS(fsys fs.FS, root string) ([]Doc, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	var docs []Doc
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		d, err := Parse(strings.TrimSuffix(e.Name(), ".md"), data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

func merge(base, overlay []Doc) []Doc {
	byName := make(map[string]Doc, len(base)+len(overlay))
	for _, d := range base {
		byName[d.Name] = d
	}
	for _, d := range overlay {
		byName[d.Name] = d
	}
	out := make([]Doc, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Parse splits optional YAML frontmatter delimited by "---" lines from
// the markdown body.
//
//	---
//	title: Basic Card
//	modes: [ui]
//	---
func Parse(name string, raw []byte) (Doc, error) {
	d := Doc{Name: name, Title: name}
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))

	body, meta, ok := splitFrontmatter(string(raw))
	if ok {
		var fm frontmatter
		if err := yaml.Unmarshal([]byte(meta), &fm); err != nil {
			return Doc{}, fmt.Errorf("frontmatter: %w", err)
		}
		if fm.Title != "" {
			d.Title = fm.Title
		}
		d.Modes = fm.Modes
	}
	d.Content = strings.TrimSpace(body)
	return d, nil
}

func splitFrontmatter(raw string) (body, meta string, ok bool) {
	if !strings.HasPrefix(raw, "---\n") {
		return raw, "", false
	}
	rest := raw[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return raw, "", false
	}
	meta = rest[:end]
	body = strings.TrimLeft(rest[end+len("\n---"):], "\n")
	return body, meta, true
}

// Select returns the documents that apply to mode, in order.
func Select(docs []Doc, mode string) []Doc {
	var out []Doc
	for _, d := range docs {
		if d.AppliesTo(mode) {
			out = append(out, d)
		}
	}
	return out
}
