package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/fleetchat/fleetd/internal/httpkit"
)

// OllamaClient is a client for a local Ollama server.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewOllamaClient creates a new Ollama client. An empty baseURL uses
// the default local address.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = OllamaBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Large local models with tools need time to load and answer.
		httpClient: httpkit.NewClient(
			httpkit.WithStreaming(),
			httpkit.WithTimeout(5*time.Minute),
		),
		logger: logger.With("provider", "ollama"),
		now:    time.Now,
	}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name string `json:"name"`
		// Ollama sends an object here, not a JSON string.
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Chat sends a non-streaming chat request.
func (c *OllamaClient) Chat(ctx context.Context, req *Request) (*ChatResponse, error) {
	return c.do(ctx, req, nil)
}

// ChatStream streams tokens to callback.
func (c *OllamaClient) ChatStream(ctx context.Context, req *Request, callback StreamCallback) (*ChatResponse, error) {
	if callback == nil {
		callback = func(StreamEvent) {}
	}
	return c.do(ctx, req, callback)
}

func (c *OllamaClient) do(ctx context.Context, req *Request, callback StreamCallback) (*ChatResponse, error) {
	start := c.now()
	stream := callback != nil

	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   stream,
		Tools:    toOllamaTools(req.Tools),
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		body.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var final ollamaChatResponse
	if !stream {
		if err := json.NewDecoder(resp.Body).Decode(&final); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	} else {
		// Newline-delimited JSON chunks; the last has done=true.
		var content strings.Builder
		var toolCalls []ollamaToolCall
		dec := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChatResponse
			if err := dec.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("decode stream chunk: %w", err)
			}
			if chunk.Message.Content != "" {
				content.WriteString(chunk.Message.Content)
				emit(callback, StreamEvent{Kind: KindToken, Token: chunk.Message.Content})
			}
			toolCalls = append(toolCalls, chunk.Message.ToolCalls...)
			if chunk.Done {
				final = chunk
				break
			}
		}
		final.Message.Content = content.String()
		final.Message.ToolCalls = toolCalls
	}

	result := &ChatResponse{
		Model:     final.Model,
		CreatedAt: start,
		Message: Message{
			Role:    RoleAssistant,
			Content: final.Message.Content,
		},
		FinishReason: finishReason(final.DoneReason),
		InputTokens:  final.PromptEvalCount,
		OutputTokens: final.EvalCount,
	}
	for _, tc := range final.Message.ToolCalls {
		result.Message.ToolCalls = append(result.Message.ToolCalls, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	// Smaller models often write tool calls into the content instead of
	// the native field.
	if len(result.Message.ToolCalls) == 0 && len(req.Tools) > 0 {
		if parsed := parseTextToolCalls(result.Message.Content, toolNames(req.Tools)); len(parsed) > 0 {
			c.logger.Debug("recovered text tool calls", "count", len(parsed))
			result.Message.ToolCalls = parsed
			result.Message.Content = ""
		}
	}
	if len(result.Message.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
	}
	if stream {
		for i := range result.Message.ToolCalls {
			emit(callback, StreamEvent{Kind: KindToolCall, ToolCall: &result.Message.ToolCalls[i]})
		}
	}

	result.Duration = c.now().Sub(start)
	if stream {
		emit(callback, StreamEvent{Kind: KindDone, Response: result})
	}
	return result, nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "path", path, "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if err := httpkit.CheckResponse("ollama", resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func toOllamaMessages(msgs []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(msgs))
	for _, m := range msgs {
		om := ollamaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			om.Role = RoleUser
		}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}
	return out
}

func toOllamaTools(tools []Tool) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ollamaTool, len(tools))
	for i, t := range tools {
		out[i].Type = "function"
		out[i].Function.Name = t.Name
		out[i].Function.Description = t.Description
		out[i].Function.Parameters = t.Parameters
	}
	return out
}

func toolNames(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

type textToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// parseTextToolCalls extracts tool calls a model wrote as text. It
// accepts a JSON object, an array of objects, concatenated objects,
// any of those wrapped in <tool_call> tags, and "tool_name {json}".
// Calls naming a tool outside validTools are dropped unless validTools
// is empty.
func parseTextToolCalls(content string, validTools []string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		inner := content[start+len("<tool_call>"):]
		if end := strings.Index(inner, "</tool_call>"); end != -1 {
			inner = inner[:end]
		}
		content = strings.TrimSpace(inner)
	}

	valid := func(name string) bool {
		return name != "" && (len(validTools) == 0 || slices.Contains(validTools, name))
	}
	var out []ToolCall
	add := func(tc textToolCall) {
		if valid(tc.Name) {
			if tc.Arguments == nil {
				tc.Arguments = map[string]any{}
			}
			out = append(out, ToolCall{Name: tc.Name, Arguments: tc.Arguments})
		}
	}

	switch content[0] {
	case '[':
		var calls []textToolCall
		if err := json.Unmarshal([]byte(content), &calls); err == nil {
			for _, c := range calls {
				add(c)
			}
		}
		return out

	case '{':
		// One or more objects back to back; trailing prose is ignored.
		dec := json.NewDecoder(strings.NewReader(content))
		for {
			var tc textToolCall
			if err := dec.Decode(&tc); err != nil {
				break
			}
			add(tc)
		}
		return out
	}

	// "tool_name {json}"
	name, rest, ok := strings.Cut(content, " ")
	rest = strings.TrimSpace(rest)
	if !ok || !strings.HasPrefix(rest, "{") || len(validTools) == 0 || !valid(name) {
		return nil
	}
	var args map[string]any
	if err := json.NewDecoder(strings.NewReader(rest)).Decode(&args); err != nil {
		return nil
	}
	add(textToolCall{Name: name, Arguments: args})
	return out
}

// Ping checks that Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := httpkit.CheckResponse("ollama", resp); err != nil {
		return err
	}
	httpkit.DrainAndClose(resp.Body, 64*1024)
	return nil
}

// ListModels returns the locally installed models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if err := httpkit.CheckResponse("ollama", resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name    string `json:"name"`
			Size    int64  `json:"size"`
			Details struct {
				Family        string `json:"family"`
				ParameterSize string `json:"parameter_size"`
			} `json:"details"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]ModelInfo, 0, len(result.Models))
	for _, m := range result.Models {
		desc := strings.TrimSpace(m.Details.Family + " " + m.Details.ParameterSize)
		out = append(out, ModelInfo{ID: m.Name, Provider: Ollama, Description: desc})
	}
	return out, nil
}

// Embed returns one vector per input using /api/embed.
func (c *OllamaClient) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model == "" {
		model = Ollama.DefaultEmbeddingModel()
	}
	resp, err := c.post(ctx, "/api/embed", map[string]any{"model": model, "input": texts})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}
