package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fleetchat/fleetd/internal/contacts"
	"github.com/fleetchat/fleetd/internal/llm"
)

var (
	// ErrToolNotFound is returned when no tool has the requested name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidToolCall is returned when a call's parameters do not
	// satisfy the tool's declaration.
	ErrInvalidToolCall = errors.New("invalid tool call")
)

// ToolParameter declares one argument of a tool. Type is one of
// string, number, integer, boolean, array, or object.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// ToolHandler runs a tool with validated, defaulted parameters.
type ToolHandler func(ctx context.Context, params map[string]any) (any, error)

// ToolSpec describes a tool and how to run it.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolResult is what a tool returned.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// ToolCall is a tool invocation and, once run, its result.
type ToolCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Result     *ToolResult    `json:"result,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitzero"`
}

func (tc ToolCall) clone() ToolCall {
	if tc.Parameters != nil {
		tc.Parameters = cloneValue(tc.Parameters).(map[string]any)
	}
	if tc.Result != nil {
		r := *tc.Result
		r.Data = cloneValue(r.Data)
		tc.Result = &r
	}
	return tc
}

// cloneValue deep-copies JSON-shaped values. Other values (typed tool
// results such as []contacts.Contact) are copied through a JSON round
// trip, which leaves them in the same generic form the SQLite store
// returns.
func cloneValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64, int, int64, json.Number:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out
	case []string:
		return append([]string(nil), x...)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// ToolRegistry holds the tools the agent can run.
type ToolRegistry struct {
	mu    sync.RWMutex
	specs map[string]ToolSpec
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{specs: make(map[string]ToolSpec)}
}

// Register adds spec. Names must be unique.
func (r *ToolRegistry) Register(spec ToolSpec) error {
	if spec.Name == "" || spec.Handler == nil {
		return fmt.Errorf("register tool %q: name and handler are required", spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specs[spec.Name]; ok {
		return fmt.Errorf("register tool %q: already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// Get returns the named spec.
func (r *ToolRegistry) Get(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Specs returns every spec sorted by name.
func (r *ToolRegistry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ProviderTools converts every spec to a JSON Schema function tool.
func (r *ToolRegistry) ProviderTools() []llm.Tool {
	specs := r.Specs()
	tools := make([]llm.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, providerTool(s))
	}
	return tools
}

func providerTool(s ToolSpec) llm.Tool {
	props := make(map[string]any, len(s.Parameters))
	required := []string{}
	for _, p := range s.Parameters {
		props[p.Name] = paramSchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return llm.Tool{
		Name:        s.Name,
		Description: s.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

func paramSchema(p ToolParameter) map[string]any {
	schema := map[string]any{"description": p.Description}
	switch p.Type {
	case "string":
		schema["type"] = "string"
	case "number", "integer":
		schema["type"] = "number"
	case "boolean":
		schema["type"] = "boolean"
	case "array":
		schema["type"] = "array"
		schema["items"] = map[string]any{"type": "object"}
	case "object":
		schema["type"] = "object"
	default:
		schema["type"] = "string"
	}
	if p.Default != nil {
		schema["default"] = p.Default
	}
	return schema
}

// Execute validates call against its spec, fills defaults, and runs the
// handler. Handler failures come back as an unsuccessful ToolResult;
// only an unknown tool or bad parameters are errors.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall) (ToolResult, error) {
	spec, ok := r.Get(call.Name)
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	params := make(map[string]any, len(spec.Parameters))
	for k, v := range call.Parameters {
		params[k] = v
	}
	for _, p := range spec.Parameters {
		v, present := params[p.Name]
		if !present || v == nil {
			if p.Required {
				return ToolResult{}, fmt.Errorf("%w: %s: missing '%s' parameter", ErrInvalidToolCall, call.Name, p.Name)
			}
			if p.Default != nil {
				params[p.Name] = p.Default
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			return ToolResult{}, fmt.Errorf("%w: %s: parameter '%s' must be %s, got %T", ErrInvalidToolCall, call.Name, p.Name, p.Type, v)
		}
	}

	data, err := spec.Handler(ctx, params)
	if err != nil {
		if errors.Is(err, ErrInvalidToolCall) {
			return ToolResult{}, err
		}
		return ToolResult{Success: false, Error: err.Error()}, nil
	}
	return ToolResult{Success: true, Data: data}, nil
}

func typeMatches(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "number", "integer":
		switch v.(type) {
		case float64, float32, int, int64, int32, uint64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

// Built-in tool names.
const (
	ToolGetContactInfo       = "get_contact_info"
	ToolCreateContactList    = "create_contact_list"
	ToolDisplaySearchResults = "display_search_results"
	defaultContactListTitle  = "Contact List"
)

// BuiltinTools returns the contact lookup and display tools backed by
// dir.
func BuiltinTools(dir *contacts.Directory) []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolGetContactInfo,
			Description: "Find contact information by name and optional department",
			Parameters: []ToolParameter{
				{Name: "name", Type: "string", Description: "Person's name to search for", Required: true},
				{Name: "department", Type: "string", Description: "Optional department to filter by"},
			},
			Handler: func(_ context.Context, p map[string]any) (any, error) {
				name, _ := p["name"].(string)
				dept, _ := p["department"].(string)
				found := dir.Lookup(name, dept)
				if found == nil {
					found = []contacts.Contact{}
				}
				return found, nil
			},
		},
		{
			Name:        ToolCreateContactList,
			Description: "Create a contact list UI component",
			Parameters: []ToolParameter{
				{Name: "contacts", Type: "array", Description: "Array of contact objects to display", Required: true},
				{Name: "title", Type: "string", Description: "Title for the contact list", Default: defaultContactListTitle},
			},
			Handler: func(_ context.Context, p map[string]any) (any, error) {
				return map[string]any{"contacts": p["contacts"], "title": p["title"]}, nil
			},
		},
		{
			Name:        ToolDisplaySearchResults,
			Description: "Display search results in a formatted UI",
			Parameters: []ToolParameter{
				{Name: "results", Type: "array", Description: "Array of search results to display", Required: true},
				{Name: "search_query", Type: "string", Description: "The search query that generated these results", Required: true},
			},
			Handler: func(_ context.Context, p map[string]any) (any, error) {
				return map[string]any{"results": p["results"], "searchQuery": p["search_query"]}, nil
			},
		},
	}
}

var lookupVerbs = []string{"search for ", "find ", "search "}

var departmentKeywords = []struct{ keyword, department string }{
	{"engineering", "Engineering"},
	{"sales", "Sales"},
	{"marketing", "Marketing"},
	{"human resources", "HR"},
	{"hr", "HR"},
}

// DetectTools maps a free-form request onto tool calls. Only contact
// lookups are recognized: a query mentioning "who is", "find", or
// "search" becomes one get_contact_info call.
func DetectTools(query string) []ToolCall {
	lower := strings.ToLower(query)
	if !strings.Contains(lower, "who is") && !strings.Contains(lower, "find") && !strings.Contains(lower, "search") {
		return nil
	}

	name, dept := extractNameAndDepartment(query)
	params := map[string]any{"name": name}
	if dept != "" {
		params["department"] = dept
	}
	return []ToolCall{{Name: ToolGetContactInfo, Parameters: params}}
}

func extractNameAndDepartment(query string) (name, department string) {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	// Indexes found in lower are only valid in trimmed when lowering
	// kept the byte length.
	src := trimmed
	if len(lower) != len(trimmed) {
		src = lower
	}

	switch {
	case strings.Contains(lower, "who is "):
		rest := src[strings.Index(lower, "who is ")+len("who is "):]
		if end := strings.IndexAny(rest, "?."); end >= 0 {
			rest = rest[:end]
		}
		name = strings.TrimSpace(rest)
	default:
		name = src
		for _, verb := range lookupVerbs {
			if strings.HasPrefix(lower, verb) {
				name = strings.TrimSpace(src[len(verb):])
				break
			}
		}
		name = strings.TrimRight(name, "?.! ")
	}

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
	joined := " " + strings.Join(words, " ") + " "
	for _, k := range departmentKeywords {
		if strings.Contains(joined, " "+k.keyword+" ") {
			department = k.department
			break
		}
	}
	if department != "" {
		// "bob in engineering" names bob.
		ln := strings.ToLower(name)
		if i := strings.LastIndex(ln, " in "); i > 0 {
			name = strings.TrimSpace(name[:i])
		}
	}
	return name, department
}
