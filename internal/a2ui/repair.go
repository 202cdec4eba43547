package a2ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// ErrMalformedJSON is wrapped by Repair when the payload is still not
// JSON after every fix has been applied.
var ErrMalformedJSON = errors.New("a2ui: malformed JSON")

// Repair fixes the malformations models commonly produce: wrapping
// code fences, single-quoted strings, comments, and trailing commas.
func Repair(s string) (string, error) {
	s = stripFences(s)
	// The second pass catches a trailing comma that was followed by a
	// comment before the first pass blanked it.
	fixed := jsonc.ToJSON(jsonc.ToJSON([]byte(singleToDoubleQuotes(s))))
	if !json.Valid(fixed) {
		return "", fmt.Errorf("%w after repair: %s", ErrMalformedJSON, describeSyntaxError(fixed))
	}
	return strings.TrimSpace(string(fixed)), nil
}

// singleToDoubleQuotes rewrites 'strings' as "strings". Double-quoted
// strings and comments pass through untouched; a double quote inside
// a single-quoted string is escaped.
func singleToDoubleQuotes(s string) string {
	const (
		normal = iota
		inDouble
		inSingle
		inLineComment
		inBlockComment
	)
	var b strings.Builder
	b.Grow(len(s))
	state := normal
	for i := 0; i < len(s); i++ {
		c := s[i]
		next := byte(0)
		if i+1 < len(s) {
			next = s[i+1]
		}
		switch state {
		case normal:
			switch {
			case c == '"':
				state = inDouble
			case c == '\'':
				state = inSingle
				c = '"'
			case c == '/' && next == '/':
				state = inLineComment
			case c == '/' && next == '*':
				state = inBlockComment
			}
			b.WriteByte(c)
		case inDouble:
			b.WriteByte(c)
			if c == '\\' && next != 0 {
				b.WriteByte(next)
				i++
			} else if c == '"' {
				state = normal
			}
		case inSingle:
			switch {
			case c == '\\' && next == '\'':
				b.WriteByte('\'')
				i++
			case c == '\\' && next != 0:
				b.WriteByte(c)
				b.WriteByte(next)
				i++
			case c == '"':
				b.WriteString(`\"`)
			case c == '\'':
				b.WriteByte('"')
				state = normal
			default:
				b.WriteByte(c)
			}
		case inLineComment:
			b.WriteByte(c)
			if c == '\n' {
				state = normal
			}
		case inBlockComment:
			b.WriteByte(c)
			if c == '*' && next == '/' {
				b.WriteByte(next)
				i++
				state = normal
			}
		}
	}
	return b.String()
}

// describeSyntaxError reports where decoding fails.
func describeSyntaxError(data []byte) string {
	var v any
	err := json.Unmarshal(data, &v)
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return fmt.Sprintf("%v at offset %d", se, se.Offset)
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}
