// Package agent turns chat requests into A2UI responses. It keeps
// per-session conversation state, runs keyword-triggered tools, builds
// the UI or text prompt, and regenerates responses that fail to parse
// or validate, feeding the error back to the model.
package agent

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/fleetchat/fleetd/internal/a2ui"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// ConversationState tracks where a session is in the pipeline.
type ConversationState string

const (
	StateInitial            ConversationState = "Initial"
	StateToolCalling        ConversationState = "ToolCalling"
	StateResponseGeneration ConversationState = "ResponseGeneration"
	StateValidation         ConversationState = "Validation"
	StateComplete           ConversationState = "Complete"
)

// Message roles stored on a session.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Validation statuses recorded on assistant messages.
const (
	ValidationPending = "Pending"
	ValidationValid   = "Valid"
	ValidationInvalid = "Invalid"
)

// Session is one conversation with its context.
type Session struct {
	ID        string           `json:"id" cbor:"1,keyasint"`
	CreatedAt time.Time        `json:"created_at" cbor:"2,keyasint"`
	UpdatedAt time.Time        `json:"updated_at" cbor:"3,keyasint"`
	Messages  []SessionMessage `json:"messages" cbor:"4,keyasint"`
	Context   SessionContext   `json:"context" cbor:"5,keyasint"`
	ToolsUsed []string         `json:"tools_used" cbor:"6,keyasint"`
	BaseURL   string           `json:"base_url" cbor:"7,keyasint"`
}

// SessionContext is per-session state surfaced to prompts.
type SessionContext struct {
	UserID            string            `json:"user_id" cbor:"1,keyasint"`
	AppName           string            `json:"app_name" cbor:"2,keyasint"`
	SessionState      map[string]string `json:"session_state" cbor:"3,keyasint"`
	ConversationState ConversationState `json:"conversation_state" cbor:"4,keyasint"`
	LastToolCall      string            `json:"last_tool_call,omitempty" cbor:"5,keyasint,omitempty"`
}

// SessionMessage is one stored turn.
type SessionMessage struct {
	ID        string           `json:"id" cbor:"1,keyasint"`
	Role      string           `json:"role" cbor:"2,keyasint"`
	Content   string           `json:"content" cbor:"3,keyasint"`
	Timestamp time.Time        `json:"timestamp" cbor:"4,keyasint"`
	Metadata  *MessageMetadata `json:"metadata,omitempty" cbor:"5,keyasint,omitempty"`
	// A2UI holds the validated messages of an assistant turn, kept as
	// raw JSON so the wire form survives persistence unchanged.
	A2UI json.RawMessage `json:"a2ui,omitempty" cbor:"6,keyasint,omitempty"`
}

// MessageMetadata annotates assistant turns.
type MessageMetadata struct {
	ToolCalls        []ToolCall `json:"tool_calls,omitempty" cbor:"1,keyasint,omitempty"`
	UIComponents     []string   `json:"ui_components,omitempty" cbor:"2,keyasint,omitempty"`
	ValidationStatus string     `json:"validation_status,omitempty" cbor:"3,keyasint,omitempty"`
	ModelUsed        string     `json:"model_used,omitempty" cbor:"4,keyasint,omitempty"`
}

// A2UIMessages decodes the stored A2UI messages of m.
func (m SessionMessage) A2UIMessages() ([]a2ui.Message, error) {
	if len(m.A2UI) == 0 {
		return nil, nil
	}
	res, err := a2ui.Parse(string(m.A2UI))
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// clone deep-copies s so callers never share slices or maps with a
// store.
func (s *Session) clone() *Session {
	c := *s
	c.Messages = make([]SessionMessage, len(s.Messages))
	for i, m := range s.Messages {
		if m.Metadata != nil {
			md := *m.Metadata
			if m.Metadata.ToolCalls != nil {
				md.ToolCalls = make([]ToolCall, len(m.Metadata.ToolCalls))
				for j, tc := range m.Metadata.ToolCalls {
					md.ToolCalls[j] = tc.clone()
				}
			}
			md.UIComponents = append([]string(nil), m.Metadata.UIComponents...)
			m.Metadata = &md
		}
		m.A2UI = append([]byte(nil), m.A2UI...)
		c.Messages[i] = m
	}
	c.ToolsUsed = append([]string(nil), s.ToolsUsed...)
	if s.Context.SessionState != nil {
		c.Context.SessionState = make(map[string]string, len(s.Context.SessionState))
		for k, v := range s.Context.SessionState {
			c.Context.SessionState[k] = v
		}
	}
	return &c
}

// recent returns up to limit messages preceding the last one.
func (s *Session) recent(limit int) []SessionMessage {
	if len(s.Messages) <= 1 || limit <= 0 {
		return nil
	}
	prior := s.Messages[:len(s.Messages)-1]
	if len(prior) > limit {
		prior = prior[len(prior)-limit:]
	}
	return prior
}
