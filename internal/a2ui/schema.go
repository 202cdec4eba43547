package a2ui

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://fleetchat.dev/schemas/a2ui.json"

// schemaLocation matches the instance location prefix of one line of a
// jsonschema error, e.g. "at '/surfaceUpdate/components/0': ...".
var schemaLocation = regexp.MustCompile(`^at '([^']*)': (.*)$`)

// SchemaJSON returns the message schema, for embedding in prompts.
func SchemaJSON() string { return string(schemaJSON) }

// ValidationError collects every problem found in a batch.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "a2ui validation failed: " + e.Problems[0]
	}
	return fmt.Sprintf("a2ui validation failed with %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validator checks message batches against the schema plus the rules
// the schema cannot express.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("decode a2ui schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add a2ui schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile a2ui schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

var defaultValidator = sync.OnceValues(NewValidator)

// Validate checks msgs with a shared Validator.
func Validate(msgs []Message) error {
	v, err := defaultValidator()
	if err != nil {
		return err
	}
	return v.Validate(msgs)
}

// Validate returns a *ValidationError listing every problem, or nil.
// Problems are numbered from 1. Each message is checked in its
// canonical encoding, which is what a renderer receives.
func (v *Validator) Validate(msgs []Message) error {
	var problems []string
	for i, m := range msgs {
		for _, p := range v.validateOne(m) {
			problems = append(problems, fmt.Sprintf("message %d (%s): %s", i+1, kindLabel(m), p))
		}
	}
	problems = append(problems, checkBatch(msgs)...)
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func kindLabel(m Message) string {
	if k := m.Kind(); k != "" {
		return string(k)
	}
	return "empty"
}

func (v *Validator) validateOne(m Message) []string {
	data, err := json.Marshal(m)
	if err != nil {
		return []string{fmt.Sprintf("encode: %v", err)}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []string{fmt.Sprintf("decode: %v", err)}
	}
	if err := v.schema.Validate(inst); err != nil {
		return flattenSchemaError(err)
	}
	return nil
}

// flattenSchemaError turns the library's indented error tree into one
// "<pointer>: <problem>" entry per line, dropping the leading summary
// line.
func flattenSchemaError(err error) []string {
	lines := strings.Split(err.Error(), "\n")
	var out []string
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if i == 0 && strings.HasPrefix(line, "jsonschema validation failed") {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		if m := schemaLocation.FindStringSubmatch(line); m != nil {
			ptr := m[1]
			if ptr == "" {
				ptr = "/"
			}
			line = ptr + ": " + m[2]
		}
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}

// checkBatch enforces the cross-message rules: component IDs are unique
// within a surfaceUpdate, and a beginRendering root must exist when the
// same batch defines that surface's components.
func checkBatch(msgs []Message) []string {
	var problems []string
	defined := make(map[string]map[string]bool)

	for i, m := range msgs {
		su := m.SurfaceUpdate
		if su == nil {
			continue
		}
		seen := make(map[string]bool, len(su.Components))
		for _, c := range su.Components {
			if c.ID == "" {
				continue
			}
			if seen[c.ID] {
				problems = append(problems, fmt.Sprintf("message %d (surfaceUpdate): duplicate component id %q", i+1, c.ID))
			}
			seen[c.ID] = true
		}
		ids := defined[su.SurfaceID]
		if ids == nil {
			ids = make(map[string]bool)
			defined[su.SurfaceID] = ids
		}
		for id := range seen {
			ids[id] = true
		}
	}

	for i, m := range msgs {
		br := m.BeginRendering
		if br == nil || br.Root == "" {
			continue
		}
		ids, ok := defined[br.SurfaceID]
		if ok && !ids[br.Root] {
			problems = append(problems, fmt.Sprintf("message %d (beginRendering): root %q is not among the components of surface %q", i+1, br.Root, br.SurfaceID))
		}
	}
	return problems
}
