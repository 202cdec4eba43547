package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetchat/fleetd/internal/a2ui"
	"github.com/fleetchat/fleetd/internal/config"
	"github.com/fleetchat/fleetd/internal/events"
	"github.com/fleetchat/fleetd/internal/guidance"
	"github.com/fleetchat/fleetd/internal/llm"
	"github.com/fleetchat/fleetd/internal/prompts"
)

// maxToolRounds bounds how many times one attempt may hand native tool
// calls back to the model before its answer is taken as final.
const maxToolRounds = 3

// ErrEmptyMessage is returned for a request with no content.
var ErrEmptyMessage = errors.New("message content is empty")

// Config holds the agent's defaults.
type Config struct {
	MaxRetries   int
	UseUI        bool
	UserID       string
	AppName      string
	BaseURL      string
	HistoryLimit int
}

// ConfigFrom maps the agent section of the config file.
func ConfigFrom(c config.AgentConfig) Config {
	return Config{
		MaxRetries:   c.MaxRetries,
		UseUI:        c.UseUI,
		UserID:       c.UserID,
		AppName:      c.AppName,
		BaseURL:      c.BaseURL,
		HistoryLimit: c.HistoryLimit,
	}
}

// CreateSessionRequest opens a session.
type CreateSessionRequest struct {
	UserID         string            `json:"user_id"`
	AppName        string            `json:"app_name"`
	BaseURL        string            `json:"base_url,omitempty"`
	InitialContext map[string]string `json:"initial_context,omitempty"`
}

// SendRequest is one user turn.
type SendRequest struct {
	// SessionID names the session; an unknown or empty id creates one.
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	// UseUI overrides the configured mode when set.
	UseUI *bool `json:"use_ui,omitempty"`
	// ToolContext is merged into the session state shown to the model.
	ToolContext map[string]string `json:"tool_context,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	Model       string            `json:"model,omitempty"`
}

// Response is the outcome of SendMessage.
type Response struct {
	SessionID         string         `json:"session_id"`
	MessageID         string         `json:"message_id"`
	Content           string         `json:"content"`
	IsTaskComplete    bool           `json:"is_task_complete"`
	A2UIMessages      []a2ui.Message `json:"a2ui_messages"`
	ConversationState string         `json:"conversation_state"`
	Updates           string         `json:"updates,omitempty"`
	Attempts          int            `json:"attempts"`
	Model             string         `json:"model,omitempty"`
	Provider          string         `json:"provider,omitempty"`
}

// ToolCallRequest runs a tool directly on behalf of a session.
type ToolCallRequest struct {
	SessionID  string         `json:"session_id"`
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// Agent runs the A2UI response pipeline.
type Agent struct {
	store     Store
	gateway   *llm.Gateway
	tools     *ToolRegistry
	validator *a2ui.Validator
	guidance  []guidance.Doc
	surfaces  *a2ui.SurfaceStore
	bus       *events.Bus
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures New.
type Option func(*Agent)

// WithTools replaces the tool registry.
func WithTools(r *ToolRegistry) Option { return func(a *Agent) { a.tools = r } }

// WithGuidance sets the documents appended to prompts.
func WithGuidance(docs []guidance.Doc) Option { return func(a *Agent) { a.guidance = docs } }

// WithSurfaces applies every validated batch to s.
func WithSurfaces(s *a2ui.SurfaceStore) Option { return func(a *Agent) { a.surfaces = s } }

// WithEvents publishes pipeline progress on bus.
func WithEvents(bus *events.Bus) Option { return func(a *Agent) { a.bus = bus } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Agent) { a.logger = l } }

// New creates an agent. Without WithTools the registry is empty and no
// detected tool call can run.
func New(store Store, gw *llm.Gateway, cfg Config, opts ...Option) (*Agent, error) {
	v, err := a2ui.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compile A2UI schema: %w", err)
	}
	a := &Agent{
		store:     store,
		gateway:   gw,
		tools:     NewToolRegistry(),
		validator: v,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.cfg.MaxRetries < 0 {
		a.cfg.MaxRetries = 0
	}
	a.logger = a.logger.With("component", "agent")
	return a, nil
}

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *ToolRegistry { return a.tools }

// CreateSession opens a session with a fresh id.
func (a *Agent) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	return a.createSession(ctx, uuid.NewString(), req)
}

func (a *Agent) createSession(ctx context.Context, id string, req CreateSessionRequest) (*Session, error) {
	now := a.now().UTC()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []SessionMessage{},
		Context: SessionContext{
			UserID:            firstNonEmpty(req.UserID, a.cfg.UserID),
			AppName:           firstNonEmpty(req.AppName, a.cfg.AppName),
			SessionState:      map[string]string{},
			ConversationState: StateInitial,
		},
		ToolsUsed: []string{},
		BaseURL:   firstNonEmpty(req.BaseURL, a.cfg.BaseURL),
	}
	for k, v := range req.InitialContext {
		s.Context.SessionState[k] = v
	}
	if err := a.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.logger.Info("session created", "session", id, "user", s.Context.UserID)
	return s, nil
}

// GetSession returns a copy of the session.
func (a *Agent) GetSession(ctx context.Context, id string) (*Session, error) {
	return a.store.Get(ctx, id)
}

// DeleteSession removes the session.
func (a *Agent) DeleteSession(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}
	a.logger.Info("session deleted", "session", id)
	return nil
}

// ListSessions returns session ids, newest first, optionally for one
// user.
func (a *Agent) ListSessions(ctx context.Context, userID string) ([]string, error) {
	return a.store.List(ctx, userID)
}

// ExecuteTool runs a tool directly and records it on the session.
func (a *Agent) ExecuteTool(ctx context.Context, req ToolCallRequest) (*ToolResult, error) {
	if _, err := a.store.Get(ctx, req.SessionID); err != nil {
		return nil, err
	}
	call := ToolCall{Name: req.ToolName, Parameters: req.Parameters, Timestamp: a.now().UTC()}
	res, err := a.tools.Execute(ctx, call)
	a.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
		"session_id": req.SessionID, "tool": req.ToolName, "ok": err == nil && res.Success,
	})
	if err != nil {
		return nil, err
	}
	call.Result = &res

	body, _ := json.Marshal(res)
	_, err = a.store.Update(ctx, req.SessionID, func(s *Session) error {
		s.ToolsUsed = append(s.ToolsUsed, call.Name)
		s.Context.LastToolCall = call.Name
		s.Messages = append(s.Messages, SessionMessage{
			ID:        uuid.NewString(),
			Role:      RoleTool,
			Content:   string(body),
			Timestamp: call.Timestamp,
			Metadata:  &MessageMetadata{ToolCalls: []ToolCall{call}},
		})
		s.UpdatedAt = a.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SendMessage runs one user turn through the pipeline: tools, prompt,
// provider call, extraction, parsing, and validation, regenerating with
// feedback until a batch validates or attempts run out.
func (a *Agent) SendMessage(ctx context.Context, req SendRequest) (*Response, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyMessage
	}
	start := a.now()

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := a.store.Get(ctx, id); errors.Is(err, ErrSessionNotFound) {
		if _, err := a.createSession(ctx, id, CreateSessionRequest{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	ctx = llm.WithSessionID(ctx, id)

	useUI := a.cfg.UseUI
	if req.UseUI != nil {
		useUI = *req.UseUI
	}
	log := a.logger.With("session", id)
	log.Info("message received", "use_ui", useUI, "length", len(req.Content))
	a.bus.Emit(events.SourceAgent, events.KindRequestStart, map[string]any{
		"session_id": id, "message_len": len(req.Content), "use_ui": useUI,
	})

	if _, err := a.store.Update(ctx, id, func(s *Session) error {
		s.Messages = append(s.Messages, SessionMessage{
			ID:        uuid.NewString(),
			Role:      RoleUser,
			Content:   req.Content,
			Timestamp: a.now().UTC(),
		})
		if s.Context.SessionState == nil {
			s.Context.SessionState = map[string]string{}
		}
		for k, v := range req.ToolContext {
			s.Context.SessionState[k] = v
		}
		s.UpdatedAt = a.now().UTC()
		return nil
	}); err != nil {
		return nil, err
	}

	maxAttempts := a.cfg.MaxRetries + 1
	query := req.Content
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		a.bus.Emit(events.SourceAgent, events.KindAttempt, map[string]any{
			"session_id": id, "attempt": attempt, "max_attempts": maxAttempts,
		})

		calls, err := a.runDetectedTools(ctx, id, req.Content, attempt == 1)
		if err != nil {
			return nil, a.fail(id, err)
		}

		gen, err := a.generate(ctx, id, req, query, useUI, calls)
		if err != nil {
			log.Error("generation failed", "attempt", attempt, "error", err)
			return nil, a.fail(id, err)
		}

		if !useUI {
			return a.finish(ctx, id, start, attempt, gen, gen.content, nil, calls, "")
		}

		ex := a2ui.Extract(gen.content)
		if !ex.Found {
			log.Debug("no A2UI payload in response, replying with content only")
			return a.finish(ctx, id, start, attempt, gen, ex.Text, nil, calls, ValidationValid)
		}

		a.setState(ctx, id, StateValidation)
		msgs, err := a.parseAndValidate(ex.JSON)
		if err == nil {
			return a.finish(ctx, id, start, attempt, gen, ex.Text, msgs, calls, ValidationValid)
		}

		log.Warn("response failed validation", "attempt", attempt, "method", ex.Method, "error", err)
		a.bus.Emit(events.SourceAgent, events.KindValidationFailed, map[string]any{
			"session_id": id, "attempt": attempt, "error": err.Error(),
		})
		if attempt < maxAttempts {
			query = prompts.RetryFeedback(req.Content, err)
			continue
		}

		resp, ferr := a.finish(ctx, id, start, attempt, gen, prompts.FallbackText(err), nil, calls, ValidationInvalid)
		if resp != nil {
			resp.Updates = prompts.FallbackUpdate
		}
		return resp, ferr
	}
	// maxAttempts is at least one, so the loop always returns.
	return nil, errors.New("agent: no attempts made")
}

// generation is one provider answer after any native tool rounds.
type generation struct {
	content  string
	model    string
	provider llm.Provider
}

func (a *Agent) generate(ctx context.Context, id string, req SendRequest, query string, useUI bool, calls []ToolCall) (*generation, error) {
	sess, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	results := ""
	if len(calls) > 0 {
		b, err := json.Marshal(calls)
		if err != nil {
			return nil, fmt.Errorf("encode tool results: %w", err)
		}
		results = string(b)
	}
	state := formatState(sess.Context)

	var system string
	var tools []llm.Tool
	if useUI {
		system = prompts.UIPrompt(prompts.UIContext{
			Query:       query,
			ToolResults: results,
			BaseURL:     sess.BaseURL,
			State:       state,
			Guidance:    a.guidance,
			Schema:      a2ui.SchemaJSON(),
		})
		tools = a.tools.ProviderTools()
	} else {
		system = prompts.TextPrompt(query, results, state, a.guidance)
	}
	a.logger.Log(ctx, llm.LevelTrace, "prompt", "session", id, "system", system)

	msgs := historyMessages(sess.recent(a.cfg.HistoryLimit))
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: query})

	a.setState(ctx, id, StateResponseGeneration)
	opts := llm.Options{Provider: req.Provider, Model: req.Model, System: system}
	for round := 0; ; round++ {
		resp, p, err := a.gateway.Complete(ctx, llm.CompleteRequest{
			Messages:  msgs,
			Tools:     tools,
			Options:   opts,
			Operation: "agent",
		})
		if err != nil {
			return nil, err
		}
		a.logger.Log(ctx, llm.LevelTrace, "model output", "session", id, "content", resp.Message.Content)

		if len(resp.Message.ToolCalls) == 0 || round >= maxToolRounds {
			return &generation{content: resp.Message.Content, model: resp.Model, provider: p}, nil
		}

		// Native tool calls: run them, hand back the results, and ask
		// again.
		msgs = append(msgs, resp.Message)
		for _, tc := range resp.Message.ToolCalls {
			res, err := a.tools.Execute(ctx, ToolCall{Name: tc.Name, Parameters: tc.Arguments})
			if err != nil {
				res = ToolResult{Success: false, Error: err.Error()}
			}
			a.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
				"session_id": id, "tool": tc.Name, "ok": res.Success,
			})
			body, _ := json.Marshal(res)
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, Content: string(body), ToolCallID: tc.ID})
		}
	}
}

// runDetectedTools executes the tools implied by the user's request.
// Retries rerun them on the same request, so only the first attempt
// records them in ToolsUsed.
func (a *Agent) runDetectedTools(ctx context.Context, id, content string, record bool) ([]ToolCall, error) {
	detected := DetectTools(content)
	if len(detected) == 0 {
		return nil, nil
	}

	calls := make([]ToolCall, 0, len(detected))
	for _, call := range detected {
		call.Timestamp = a.now().UTC()
		res, err := a.tools.Execute(ctx, call)
		if err != nil {
			a.logger.Warn("tool call rejected", "session", id, "tool", call.Name, "error", err)
			res = ToolResult{Success: false, Error: err.Error()}
		}
		call.Result = &res
		calls = append(calls, call)
		a.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
			"session_id": id, "tool": call.Name, "ok": res.Success,
		})
	}

	_, err := a.store.Update(ctx, id, func(s *Session) error {
		for _, c := range calls {
			if record {
				s.ToolsUsed = append(s.ToolsUsed, c.Name)
			}
			s.Context.LastToolCall = c.Name
		}
		s.Context.ConversationState = StateToolCalling
		s.UpdatedAt = a.now().UTC()
		return nil
	})
	return calls, err
}

// parseAndValidate turns an extracted payload into a validated batch.
func (a *Agent) parseAndValidate(payload string) ([]a2ui.Message, error) {
	res, err := a2ui.Parse(payload)
	if err != nil {
		return nil, err
	}
	if len(res.Skipped) > 0 {
		a.logger.Debug("skipped malformed A2UI entries", "skipped", res.SkippedSummary())
	}
	a2ui.Normalize(res.Messages)
	if err := a.validator.Validate(res.Messages); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// finish records the assistant turn and builds the response.
func (a *Agent) finish(ctx context.Context, id string, start time.Time, attempts int, gen *generation, content string, msgs []a2ui.Message, calls []ToolCall, status string) (*Response, error) {
	if msgs == nil {
		msgs = []a2ui.Message{}
	}
	msgID := uuid.NewString()

	var raw json.RawMessage
	if len(msgs) > 0 {
		b, err := a2ui.MarshalMessages(msgs)
		if err != nil {
			return nil, fmt.Errorf("encode A2UI messages: %w", err)
		}
		raw = b
	}

	kinds := make([]string, 0, len(msgs))
	for _, m := range msgs {
		kinds = append(kinds, string(m.Kind()))
	}

	_, err := a.store.Update(ctx, id, func(s *Session) error {
		s.Messages = append(s.Messages, SessionMessage{
			ID:        msgID,
			Role:      RoleAssistant,
			Content:   content,
			Timestamp: a.now().UTC(),
			Metadata: &MessageMetadata{
				ToolCalls:        calls,
				UIComponents:     kinds,
				ValidationStatus: status,
				ModelUsed:        gen.model,
			},
			A2UI: raw,
		})
		s.Context.ConversationState = StateComplete
		s.UpdatedAt = a.now().UTC()
		return nil
	})
	if err != nil {
		return nil, a.fail(id, err)
	}

	if a.surfaces != nil && len(msgs) > 0 {
		if err := a.surfaces.ApplyAll(msgs); err != nil {
			a.logger.Warn("surface update failed", "session", id, "error", err)
		}
	}

	for i, m := range msgs {
		a.bus.Emit(events.SourceAgent, events.KindA2UIMessage, map[string]any{
			"session_id": id, "surface_id": m.SurfaceID(), "message_index": i, "message": m,
		})
		if m.Kind() == a2ui.KindDeleteSurface {
			a.bus.Emit(events.SourceSurface, events.KindSurfaceDeleted, map[string]any{"surface_id": m.SurfaceID()})
		}
	}
	if content != "" {
		a.bus.Emit(events.SourceAgent, events.KindContent, map[string]any{"session_id": id, "content": content})
	}
	elapsed := a.now().Sub(start)
	a.bus.Emit(events.SourceAgent, events.KindComplete, map[string]any{
		"session_id": id, "message_count": len(msgs), "attempts": attempts, "elapsed_ms": elapsed.Milliseconds(),
	})
	a.logger.Info("message complete",
		"session", id,
		"attempts", attempts,
		"a2ui_messages", len(msgs),
		"model", gen.model,
		"elapsed", elapsed.Round(time.Millisecond),
	)

	return &Response{
		SessionID:         id,
		MessageID:         msgID,
		Content:           content,
		IsTaskComplete:    true,
		A2UIMessages:      msgs,
		ConversationState: string(StateComplete),
		Attempts:          attempts,
		Model:             gen.model,
		Provider:          string(gen.provider),
	}, nil
}

func (a *Agent) setState(ctx context.Context, id string, st ConversationState) {
	if _, err := a.store.Update(ctx, id, func(s *Session) error {
		s.Context.ConversationState = st
		return nil
	}); err != nil {
		a.logger.Warn("state update failed", "session", id, "state", st, "error", err)
	}
}

func (a *Agent) fail(id string, err error) error {
	a.bus.Emit(events.SourceAgent, events.KindError, map[string]any{"session_id": id, "error": err.Error()})
	return err
}

// historyMessages converts stored turns to chat messages. Tool and
// system turns are not replayed; the tool context already carries
// this turn's results.
func historyMessages(turns []SessionMessage) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, m := range turns {
		switch m.Role {
		case RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case RoleAssistant:
			if m.Content != "" {
				out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
			}
		}
	}
	return out
}

// formatState renders the conversation state and any session state
// entries for prompts.
func formatState(c SessionContext) string {
	if len(c.SessionState) == 0 {
		return string(c.ConversationState)
	}
	b, _ := json.Marshal(c.SessionState)
	return fmt.Sprintf("%s %s", c.ConversationState, b)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
