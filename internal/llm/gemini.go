package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/fleetchat/fleetd/internal/httpkit"
)

// maxImageBytes bounds images fetched for vision requests.
const maxImageBytes = 20 << 20

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	client     *genai.Client
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewGeminiClient creates a Gemini client. An empty baseURL uses the
// public API.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	hc := httpkit.NewClient(httpkit.WithStreaming())
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client:     client,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
		logger:     logger.With("provider", "gemini"),
		now:        time.Now,
	}, nil
}

func (c *GeminiClient) buildRequest(ctx context.Context, req *Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, system, err := c.toGeminiContents(ctx, req.Messages)
	if err != nil {
		return nil, nil, err
	}
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			var params any = t.Parameters
			if t.Parameters == nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: params,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, cfg, nil
}

// Chat sends a non-streaming request.
func (c *GeminiClient) Chat(ctx context.Context, req *Request) (*ChatResponse, error) {
	start := c.now()
	contents, cfg, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("preparing request", "model", req.Model, "contents", len(contents), "tools", len(req.Tools), "stream", false)

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	result := fromGeminiResponse(resp, req.Model)
	result.CreatedAt = start
	result.Duration = c.now().Sub(start)
	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	return result, nil
}

// ChatStream streams tokens to callback.
func (c *GeminiClient) ChatStream(ctx context.Context, req *Request, callback StreamCallback) (*ChatResponse, error) {
	start := c.now()
	contents, cfg, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &ChatResponse{
		Model:     req.Model,
		CreatedAt: start,
		Message:   Message{Role: RoleAssistant},
	}
	var content strings.Builder
	for chunk, err := range c.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
		if err != nil {
			return nil, fmt.Errorf("gemini stream failed: %w", err)
		}
		part := fromGeminiResponse(chunk, req.Model)
		if part.Message.Content != "" {
			content.WriteString(part.Message.Content)
			emit(callback, StreamEvent{Kind: KindToken, Token: part.Message.Content})
		}
		for i := range part.Message.ToolCalls {
			tc := part.Message.ToolCalls[i]
			result.Message.ToolCalls = append(result.Message.ToolCalls, tc)
			emit(callback, StreamEvent{Kind: KindToolCall, ToolCall: &tc})
		}
		if chunk.UsageMetadata != nil {
			result.InputTokens = part.InputTokens
			result.OutputTokens = part.OutputTokens
		}
		if chunk.ModelVersion != "" {
			result.Model = part.Model
		}
		if len(chunk.Candidates) > 0 && chunk.Candidates[0].FinishReason != "" {
			result.FinishReason = part.FinishReason
		}
	}
	result.Message.Content = content.String()
	if result.FinishReason == "" {
		result.FinishReason = "stop"
	}
	if len(result.Message.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
	}
	result.Duration = c.now().Sub(start)
	emit(callback, StreamEvent{Kind: KindDone, Response: result})
	return result, nil
}

// Ping lists one page of models to verify the key.
func (c *GeminiClient) Ping(ctx context.Context) error {
	for _, err := range c.client.Models.All(ctx) {
		if err != nil {
			return fmt.Errorf("gemini ping: %w", err)
		}
		break
	}
	return nil
}

// ListModels returns the models that support content generation.
func (c *GeminiClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var out []ModelInfo
	for m, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list gemini models: %w", err)
		}
		id := strings.TrimPrefix(m.Name, "models/")
		if !strings.HasPrefix(id, "gemini") {
			continue
		}
		desc := m.DisplayName
		if desc == "" {
			desc = m.Description
		}
		out = append(out, ModelInfo{ID: id, Provider: Gemini, Description: desc})
	}
	return out, nil
}

// Embed returns one vector per input.
func (c *GeminiClient) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model == "" {
		model = Gemini.DefaultEmbeddingModel()
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := c.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

// CountTokens uses Gemini's own tokenizer.
func (c *GeminiClient) CountTokens(ctx context.Context, model, text string) (int, error) {
	if model == "" {
		model = Gemini.DefaultModel()
	}
	resp, err := c.client.Models.CountTokens(ctx, model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return 0, fmt.Errorf("gemini count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

// toGeminiContents maps messages to genai contents. System messages are
// joined into the system instruction, assistant turns use the model
// role, and tool results become function responses named after the
// call they answer.
func (c *GeminiClient) toGeminiContents(ctx context.Context, msgs []Message) ([]*genai.Content, string, error) {
	var system []string
	var out []*genai.Content
	callNames := map[string]string{}

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)

		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				callNames[tc.ID] = tc.Name
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Arguments))
			}
			if len(parts) > 0 {
				out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
			}

		case RoleTool:
			name := callNames[m.ToolCallID]
			if name == "" {
				name = m.ToolCallID
			}
			response := map[string]any{}
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
				response = map[string]any{"result": m.Content}
			}
			out = append(out, genai.NewContentFromParts(
				[]*genai.Part{genai.NewPartFromFunctionResponse(name, response)}, genai.RoleUser))

		default:
			parts := []*genai.Part{genai.NewPartFromText(m.Content)}
			for _, u := range m.ImageURLs {
				data, mime, err := c.fetchImage(ctx, u)
				if err != nil {
					return nil, "", err
				}
				parts = append(parts, genai.NewPartFromBytes(data, mime))
			}
			out = append(out, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	return out, strings.Join(system, "\n\n"), nil
}

// fetchImage loads an image for inline upload. Gemini does not fetch
// arbitrary URLs itself; data: URLs are decoded in place.
func (c *GeminiClient) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("unsupported data URL")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decode data URL: %w", err)
		}
		return data, strings.TrimSuffix(meta, ";base64"), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

func fromGeminiResponse(resp *genai.GenerateContentResponse, model string) *ChatResponse {
	result := &ChatResponse{
		Model:        model,
		Message:      Message{Role: RoleAssistant},
		FinishReason: "stop",
	}
	if resp == nil {
		return result
	}
	if resp.ModelVersion != "" {
		result.Model = resp.ModelVersion
	}
	result.Message.Content = geminiText(resp)
	for _, fc := range resp.FunctionCalls() {
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}
		result.Message.ToolCalls = append(result.Message.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args})
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		result.FinishReason = finishReason(string(resp.Candidates[0].FinishReason))
	}
	if len(result.Message.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
	}
	if u := resp.UsageMetadata; u != nil {
		result.InputTokens = int(u.PromptTokenCount)
		result.OutputTokens = int(u.CandidatesTokenCount)
	}
	return result
}

// geminiText concatenates the text parts of the first candidate,
// skipping thought parts.
func geminiText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
