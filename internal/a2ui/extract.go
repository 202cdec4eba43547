package a2ui

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markers a model uses to separate prose from the message batch.
const (
	Delimiter     = "---a2ui_JSON---"
	MessageMarker = "A2UI_MESSAGES:"
)

// Extraction methods.
const (
	MethodNone      = ""
	MethodDelimiter = "delimiter"
	MethodMarker    = "marker"
	MethodFence     = "fence"
)

// Extraction is the result of splitting model output into prose and a
// JSON payload.
type Extraction struct {
	// Text is the conversational part shown to the user.
	Text string
	// JSON is the raw payload. It may be empty even when Found is set:
	// a delimiter followed by nothing means "no UI this time".
	JSON   string
	Method string
	Found  bool
}

// Extract splits output using, in order: the delimiter line, the
// A2UI_MESSAGES: marker followed by a bracketed array, and finally the
// first fenced JSON block. When none match, the whole output is Text.
func Extract(output string) Extraction {
	if before, after, ok := strings.Cut(output, Delimiter); ok {
		return Extraction{
			Text:   strings.TrimSpace(before),
			JSON:   stripFences(after),
			Method: MethodDelimiter,
			Found:  true,
		}
	}

	if i := strings.Index(output, MessageMarker); i >= 0 {
		rest := output[i+len(MessageMarker):]
		if start := strings.IndexByte(rest, '['); start >= 0 {
			if end := matchBracket(rest[start:]); end > 0 {
				return Extraction{
					Text:   strings.TrimSpace(output[:i]),
					JSON:   rest[start : start+end],
					Method: MethodMarker,
					Found:  true,
				}
			}
		}
	}

	if prose, payload, ok := fencedJSON([]byte(output)); ok {
		return Extraction{
			Text:   strings.TrimSpace(prose),
			JSON:   payload,
			Method: MethodFence,
			Found:  true,
		}
	}

	return Extraction{Text: strings.TrimSpace(output)}
}

// stripFences trims whitespace and a wrapping ```json / ``` fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, f := range []string{"```json", "```JSON", "```"} {
		s = strings.TrimPrefix(s, f)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// matchBracket returns the length of the bracketed span starting at
// s[0] == '[', or -1 if it never closes. Brackets inside JSON strings
// do not count.
func matchBracket(s string) int {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

var markdown = goldmark.New()

// fencedJSON finds the first fenced code block tagged json (or
// untagged) whose body looks like JSON. It returns the surrounding
// prose with the block removed.
func fencedJSON(src []byte) (prose, payload string, ok bool) {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var block *ast.FencedCodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, isFence := n.(*ast.FencedCodeBlock)
		if !isFence {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(fcb.Language(src)))
		if lang != "" && lang != "json" && lang != "jsonc" {
			return ast.WalkSkipChildren, nil
		}
		body := blockBody(fcb, src)
		if strings.HasPrefix(body, "[") || strings.HasPrefix(body, "{") {
			block = fcb
			payload = body
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})
	if block == nil {
		return "", "", false
	}

	lines := block.Lines()
	start := lines.At(0).Start
	stop := lines.At(lines.Len() - 1).Stop

	// Widen to the fence lines themselves.
	if open := bytes.LastIndex(src[:start], []byte("```")); open >= 0 {
		start = open
	}
	if end := bytes.Index(src[stop:], []byte("```")); end >= 0 {
		stop += end + 3
	}
	return string(src[:start]) + string(src[stop:]), payload, true
}

func blockBody(fcb *ast.FencedCodeBlock, src []byte) string {
	var buf bytes.Buffer
	lines := fcb.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return strings.TrimSpace(buf.String())
}
