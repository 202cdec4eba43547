// Package llm talks to the model providers behind fleetd: OpenAI and
// the OpenAI-compatible DeepSeek and OpenRouter APIs, Anthropic,
// Gemini, and a local Ollama. Each provider is a Client; optional
// capabilities (embeddings, moderation, images, model listing, token
// counting) are separate interfaces that a Client may also satisfy.
// Gateway resolves a provider and model per request and exposes the
// provider-neutral operations the rest of fleetd uses.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one provider-neutral chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	// ImageURLs are attached to a user message for vision requests.
	ImageURLs []string `json:"image_urls,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool declares a function the model may call. Parameters is a JSON
// Schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is one chat completion request.
type Request struct {
	Model    string
	Messages []Message
	Tools    []Tool
	// Temperature is left to the provider default when nil.
	Temperature *float64
	// MaxTokens is left to the provider default when zero.
	MaxTokens int
}

// ChatResponse is the provider-neutral completion result.
type ChatResponse struct {
	Model        string
	CreatedAt    time.Time
	Message      Message
	FinishReason string

	InputTokens  int
	OutputTokens int

	// Duration is wall time for the whole request.
	Duration time.Duration
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

const (
	// KindToken is an incremental text token.
	KindToken StreamEventKind = iota
	// KindToolCall fires once per completed tool call.
	KindToolCall
	// KindDone carries the final response.
	KindDone
)

// StreamEvent is one streaming callback payload.
type StreamEvent struct {
	Kind     StreamEventKind
	Token    string
	ToolCall *ToolCall
	Response *ChatResponse
}

// StreamCallback receives streaming events. It may be nil.
type StreamCallback func(StreamEvent)

func emit(cb StreamCallback, ev StreamEvent) {
	if cb != nil {
		cb(ev)
	}
}

// Float returns a pointer to f, for Request.Temperature.
func Float(f float64) *float64 { return &f }
