package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fleetchat/fleetd/internal/buildinfo"
	"github.com/fleetchat/fleetd/internal/httpkit"
)

// OpenAIClient serves OpenAI and the OpenAI-compatible DeepSeek and
// OpenRouter APIs through go-openai.
type OpenAIClient struct {
	provider Provider
	client   *openai.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewOpenAIClient creates a client for provider p, which must be OpenAI,
// DeepSeek, or OpenRouter. An empty baseURL uses the provider's public
// API.
func NewOpenAIClient(p Provider, apiKey, baseURL string, logger *slog.Logger) (*OpenAIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []httpkit.ClientOption{httpkit.WithStreaming()}

	switch p {
	case OpenAI:
	case DeepSeek:
		if baseURL == "" {
			baseURL = DeepSeekBaseURL
		}
	case OpenRouter:
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		// OpenRouter attributes traffic by these headers.
		opts = append(opts, httpkit.WithHeaders(map[string]string{
			"HTTP-Referer": "https://github.com/fleetchat/fleetd",
			"X-Title":      "fleetd " + buildinfo.Current().Version,
		}))
	default:
		return nil, fmt.Errorf("%w: %s is not OpenAI-compatible", ErrUnknownProvider, p)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = httpkit.NewClient(opts...)

	return &OpenAIClient{
		provider: p,
		client:   openai.NewClientWithConfig(cfg),
		logger:   logger.With("provider", string(p)),
		now:      time.Now,
	}, nil
}

// Provider reports which API the client talks to.
func (c *OpenAIClient) Provider() Provider { return c.provider }

func (c *OpenAIClient) buildRequest(req *Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: req.MaxTokens,
		Tools:     toOpenAITools(req.Tools),
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	return out
}

// Chat sends a non-streaming completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req *Request) (*ChatResponse, error) {
	start := c.now()
	body := c.buildRequest(req)
	c.logger.Debug("preparing request",
		"model", body.Model,
		"messages", len(body.Messages),
		"tools", len(body.Tools),
		"stream", false,
	)

	resp, err := c.client.CreateChatCompletion(ctx, body)
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.provider)
	}

	choice := resp.Choices[0]
	result := &ChatResponse{
		Model:        resp.Model,
		CreatedAt:    start,
		Message:      fromOpenAIMessage(choice.Message),
		FinishReason: finishReason(string(choice.FinishReason)),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     c.now().Sub(start),
	}
	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)
	return result, nil
}

// ChatStream streams tokens to callback. Tool call fragments are
// assembled by index and reported once the stream ends.
func (c *OpenAIClient) ChatStream(ctx context.Context, req *Request, callback StreamCallback) (*ChatResponse, error) {
	start := c.now()
	body := c.buildRequest(req)
	body.Stream = true
	body.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.client.CreateChatCompletionStream(ctx, body)
	if err != nil {
		return nil, c.wrapError(err)
	}
	defer stream.Close()

	var (
		content strings.Builder
		model   = req.Model
		finish  string
		usage   openai.Usage
		partial = map[int]*openai.ToolCall{}
	)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, c.wrapError(err)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				emit(callback, StreamEvent{Kind: KindToken, Token: choice.Delta.Content})
			}
			for i, tc := range choice.Delta.ToolCalls {
				idx := i
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := partial[idx]
				if !ok {
					acc = &openai.ToolCall{ID: tc.ID, Type: tc.Type}
					partial[idx] = acc
				}
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				acc.Function.Name += tc.Function.Name
				acc.Function.Arguments += tc.Function.Arguments
			}
			if choice.FinishReason != "" {
				finish = string(choice.FinishReason)
			}
		}
	}

	result := &ChatResponse{
		Model:     model,
		CreatedAt: start,
		Message: Message{
			Role:    RoleAssistant,
			Content: content.String(),
		},
		FinishReason: finishReason(finish),
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	}

	idxs := make([]int, 0, len(partial))
	for i := range partial {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	for _, i := range idxs {
		tc := fromOpenAIToolCall(*partial[i])
		result.Message.ToolCalls = append(result.Message.ToolCalls, tc)
		emit(callback, StreamEvent{Kind: KindToolCall, ToolCall: &tc})
	}

	result.Duration = c.now().Sub(start)
	c.logger.Debug("stream complete",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"content_len", len(result.Message.Content),
		"tool_calls", len(result.Message.ToolCalls),
	)
	emit(callback, StreamEvent{Kind: KindDone, Response: result})
	return result, nil
}

// Ping lists models, which every compatible API serves cheaply.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return c.wrapError(err)
	}
	return nil
}

// ListModels returns the provider's live model list. OpenAI's list is
// filtered to chat models.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, c.wrapError(err)
	}
	var out []ModelInfo
	for _, m := range list.Models {
		if c.provider == OpenAI && !isOpenAIChatModel(m.ID) {
			continue
		}
		info := ModelInfo{ID: m.ID, Provider: c.provider, OwnedBy: m.OwnedBy}
		if m.CreatedAt > 0 {
			info.Created = time.Unix(m.CreatedAt, 0).UTC()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Embed returns one vector per input.
func (c *OpenAIClient) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if c.provider != OpenAI {
		return nil, fmt.Errorf("embeddings on %s: %w", c.provider, ErrNotSupported)
	}
	if model == "" {
		model = OpenAI.DefaultEmbeddingModel()
	}
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, c.wrapError(err)
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// Moderate classifies content with OpenAI's moderation endpoint.
func (c *OpenAIClient) Moderate(ctx context.Context, content string) (*ModerationResult, error) {
	if c.provider != OpenAI {
		return nil, fmt.Errorf("moderation on %s: %w", c.provider, ErrNotSupported)
	}
	resp, err := c.client.Moderations(ctx, openai.ModerationRequest{Input: content})
	if err != nil {
		return nil, c.wrapError(err)
	}
	result := &ModerationResult{Categories: map[string]bool{}, CategoryScores: map[string]float64{}}
	if len(resp.Results) == 0 {
		return result, nil
	}
	r := resp.Results[0]
	result.Flagged = r.Flagged
	// The SDK exposes categories as structs; their JSON tags are the
	// category names.
	if data, err := json.Marshal(r.Categories); err == nil {
		_ = json.Unmarshal(data, &result.Categories)
	}
	if data, err := json.Marshal(r.CategoryScores); err == nil {
		_ = json.Unmarshal(data, &result.CategoryScores)
	}
	return result, nil
}

// GenerateImage creates images and returns their URLs.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) ([]string, error) {
	if c.provider != OpenAI {
		return nil, fmt.Errorf("image generation on %s: %w", c.provider, ErrNotSupported)
	}
	n := req.N
	if n <= 0 {
		n = 1
	}
	size := req.Size
	if size == "" {
		size = "1024x1024"
	}
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		N:              n,
		Size:           size,
		ResponseFormat: "url",
	})
	if err != nil {
		return nil, c.wrapError(err)
	}
	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		urls = append(urls, d.URL)
	}
	return urls, nil
}

// wrapError adds the provider name and HTTP status to SDK errors.
func (c *OpenAIClient) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("API error", "status", apiErr.HTTPStatusCode, "message", apiErr.Message)
		if apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%s API error %d: %s: %w", c.provider, apiErr.HTTPStatusCode, apiErr.Message, ErrAPIKeyNotFound)
		}
		return fmt.Errorf("%s API error %d: %w", c.provider, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s API error %d: %w", c.provider, reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%s request failed: %w", c.provider, err)
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{Role: m.Role, ToolCallID: m.ToolCallID}
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			om.Role = RoleUser
		}

		if len(m.ImageURLs) > 0 {
			om.MultiContent = append(om.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: m.Content,
			})
			for _, u := range m.ImageURLs {
				om.MultiContent = append(om.MultiContent, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: u, Detail: openai.ImageURLDetailAuto},
				})
			}
		} else {
			om.Content = m.Content
		}

		for i, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			if tc.Arguments == nil {
				args = []byte("{}")
			}
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%s_%d", tc.Name, i)
			}
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   id,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any = t.Parameters
		if t.Parameters == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	out := Message{Role: m.Role, Content: m.Content}
	if out.Role == "" {
		out.Role = RoleAssistant
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, fromOpenAIToolCall(tc))
	}
	return out
}

func fromOpenAIToolCall(tc openai.ToolCall) ToolCall {
	args := map[string]any{}
	if s := strings.TrimSpace(tc.Function.Arguments); s != "" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			args = map[string]any{"_raw": tc.Function.Arguments}
		}
	}
	return ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
}
