package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetchat/fleetd/internal/events"
	"github.com/fleetchat/fleetd/internal/httpkit"
)

// Options are the per-request knobs shared by the gateway operations.
// Empty fields take the gateway defaults.
type Options struct {
	Provider    string
	Model       string
	System      string
	Temperature *float64
	MaxTokens   int
}

// TokenUsage is the token accounting of one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider-neutral result of a gateway call.
type Completion struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	Provider     Provider   `json:"provider"`
	Usage        TokenUsage `json:"usage"`
	FinishReason string     `json:"finish_reason"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
}

// UsageEvent is reported to the UsageSink after every completion.
type UsageEvent struct {
	Provider     Provider
	Model        string
	InputTokens  int
	OutputTokens int
	SessionID    string
	Operation    string
	Timestamp    time.Time
}

// UsageSink receives token usage. Implementations must not block.
type UsageSink interface {
	RecordUsage(ctx context.Context, ev UsageEvent)
}

type sessionKey struct{}

// WithSessionID tags ctx so usage recorded under it names the session.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Defaults are request defaults applied when Options leave a field empty.
type Defaults struct {
	Temperature    *float64
	MaxTokens      int
	EmbeddingModel string
	ImageModel     string
	VisionModel    string
	// Models overrides the default model per provider.
	Models map[Provider]string
}

// Gateway resolves a provider and model for each request and runs it
// against the matching client.
type Gateway struct {
	router   *MultiClient
	provider Provider
	defaults Defaults
	bus      *events.Bus
	usage    UsageSink
	logger   *slog.Logger
	now      func() time.Time
}

// GatewayOption configures NewGateway.
type GatewayOption func(*Gateway)

// WithEvents publishes an llm_response event per completion.
func WithEvents(bus *events.Bus) GatewayOption { return func(g *Gateway) { g.bus = bus } }

// WithUsageSink reports token usage per completion.
func WithUsageSink(s UsageSink) GatewayOption { return func(g *Gateway) { g.usage = s } }

// WithDefaults sets request defaults.
func WithDefaults(d Defaults) GatewayOption { return func(g *Gateway) { g.defaults = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GatewayOption { return func(g *Gateway) { g.logger = l } }

// NewGateway creates a gateway whose instance provider is provider.
func NewGateway(router *MultiClient, provider Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		router:   router,
		provider: provider,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	g.logger = g.logger.With("component", "gateway")
	return g
}

// Provider returns the instance provider.
func (g *Gateway) Provider() Provider { return g.provider }

// Router exposes the underlying client router.
func (g *Gateway) Router() *MultiClient { return g.router }

// Resolve picks the provider and model for a request. An unknown
// provider name logs a warning and falls back to the instance provider.
func (g *Gateway) Resolve(providerOpt, modelOpt string) (Provider, string) {
	p := g.provider
	if providerOpt != "" {
		parsed, err := ParseProvider(providerOpt)
		if err != nil {
			g.logger.Warn("unknown provider, using instance provider", "requested", providerOpt, "provider", g.provider)
		} else {
			p = parsed
		}
	}
	model := modelOpt
	if model == "" {
		model = g.defaults.Models[p]
	}
	if model == "" {
		model = p.DefaultModel()
	}
	return p, model
}

func (g *Gateway) client(p Provider) (Client, error) {
	c, err := g.router.Client(p)
	if err == nil {
		return c, nil
	}
	if p.NeedsKey() {
		return nil, fmt.Errorf("%s: %w (set %s)", p, ErrAPIKeyNotFound, p.KeyEnv())
	}
	return nil, err
}

// CompleteRequest is a full chat turn, optionally with tools.
type CompleteRequest struct {
	Messages []Message
	Tools    []Tool
	Options  Options
	// OnEvent streams tokens when set; the request is then sent as a
	// streaming request.
	OnEvent StreamCallback
	// Operation labels the usage record; empty means "chat".
	Operation string
}

// Complete runs one chat turn and returns the raw response along with
// the provider that served it.
func (g *Gateway) Complete(ctx context.Context, cr CompleteRequest) (*ChatResponse, Provider, error) {
	p, model := g.Resolve(cr.Options.Provider, cr.Options.Model)
	c, err := g.client(p)
	if err != nil {
		return nil, p, err
	}

	msgs := cr.Messages
	if cr.Options.System != "" {
		msgs = append([]Message{{Role: RoleSystem, Content: cr.Options.System}}, msgs...)
	}
	req := &Request{
		Model:       model,
		Messages:    msgs,
		Tools:       cr.Tools,
		Temperature: cr.Options.Temperature,
		MaxTokens:   cr.Options.MaxTokens,
	}
	if req.Temperature == nil {
		req.Temperature = g.defaults.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.defaults.MaxTokens
	}

	start := g.now()
	var resp *ChatResponse
	if cr.OnEvent != nil {
		resp, err = c.ChatStream(ctx, req, cr.OnEvent)
	} else {
		resp, err = c.Chat(ctx, req)
	}
	if err != nil {
		g.logger.Warn("completion failed", "provider", p, "model", model, "status", httpkit.StatusCode(err), "error", err)
		return nil, p, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	op := cr.Operation
	if op == "" {
		op = "chat"
	}
	g.report(ctx, p, resp, op, g.now().Sub(start))
	return resp, p, nil
}

func (g *Gateway) report(ctx context.Context, p Provider, resp *ChatResponse, op string, elapsed time.Duration) {
	g.logger.Debug("completion",
		"provider", p,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	g.bus.Emit(events.SourceGateway, events.KindLLMResponse, map[string]any{
		"provider":   string(p),
		"model":      resp.Model,
		"tokens_in":  resp.InputTokens,
		"tokens_out": resp.OutputTokens,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	if g.usage != nil {
		g.usage.RecordUsage(ctx, UsageEvent{
			Provider:     p,
			Model:        resp.Model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			SessionID:    sessionID(ctx),
			Operation:    op,
			Timestamp:    g.now(),
		})
	}
}

func toCompletion(p Provider, resp *ChatResponse) *Completion {
	fr := resp.FinishReason
	if fr == "" {
		fr = "stop"
	}
	return &Completion{
		Content:  resp.Message.Content,
		Model:    resp.Model,
		Provider: p,
		Usage: TokenUsage{
			PromptTokens:     resp.InputTokens,
			CompletionTokens: resp.OutputTokens,
			TotalTokens:      resp.InputTokens + resp.OutputTokens,
		},
		FinishReason: fr,
		ToolCalls:    resp.Message.ToolCalls,
	}
}

// Generate completes a single prompt.
func (g *Gateway) Generate(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	return g.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, opts)
}

// Stream completes a single prompt, passing each token to onToken.
func (g *Gateway) Stream(ctx context.Context, prompt string, opts Options, onToken func(string)) (*Completion, error) {
	resp, p, err := g.Complete(ctx, CompleteRequest{
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
		Options:   opts,
		Operation: "stream",
		OnEvent: func(ev StreamEvent) {
			if ev.Kind == KindToken && onToken != nil {
				onToken(ev.Token)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return toCompletion(p, resp), nil
}

// Chat completes a conversation. System messages become the system
// prompt; roles other than system and assistant are sent as user.
func (g *Gateway) Chat(ctx context.Context, msgs []Message, opts Options) (*Completion, error) {
	normalized := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem, RoleAssistant, RoleUser:
		default:
			m.Role = RoleUser
		}
		normalized = append(normalized, m)
	}
	resp, p, err := g.Complete(ctx, CompleteRequest{Messages: normalized, Options: opts})
	if err != nil {
		return nil, err
	}
	return toCompletion(p, resp), nil
}

// Embed returns the embedding of text.
func (g *Gateway) Embed(ctx context.Context, text string, opts Options) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text}, opts)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("provider returned no embedding")
	}
	return vecs[0], nil
}

// EmbedBatch returns one embedding per text.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, opts Options) ([][]float32, error) {
	p, _ := g.Resolve(opts.Provider, "")
	if p.DefaultEmbeddingModel() == "" {
		return nil, fmt.Errorf("embeddings on %s: %w", p, ErrNotSupported)
	}
	c, err := g.client(p)
	if err != nil {
		return nil, err
	}
	emb, ok := c.(Embedder)
	if !ok {
		return nil, fmt.Errorf("embeddings on %s: %w", p, ErrNotSupported)
	}
	model := opts.Model
	if model == "" {
		model = g.defaults.EmbeddingModel
	}
	if model == "" {
		model = p.DefaultEmbeddingModel()
	}
	return emb.Embed(ctx, model, texts)
}

// Moderate classifies content. Providers without a moderation endpoint
// report the content as not flagged.
func (g *Gateway) Moderate(ctx context.Context, content string, opts Options) (*ModerationResult, error) {
	notFlagged := &ModerationResult{Categories: map[string]bool{}, CategoryScores: map[string]float64{}}
	p, _ := g.Resolve(opts.Provider, "")
	c, err := g.client(p)
	if err != nil {
		return nil, err
	}
	mod, ok := c.(Moderator)
	if !ok {
		return notFlagged, nil
	}
	res, err := mod.Moderate(ctx, content)
	if errors.Is(err, ErrNotSupported) {
		return notFlagged, nil
	}
	return res, err
}

// GenerateImage creates images with OpenAI and returns their URLs.
func (g *Gateway) GenerateImage(ctx context.Context, prompt, size string, n int, opts Options) ([]string, error) {
	p, _ := g.Resolve(opts.Provider, "")
	if p != OpenAI {
		return nil, fmt.Errorf("image generation on %s: %w", p, ErrNotSupported)
	}
	c, err := g.client(p)
	if err != nil {
		return nil, err
	}
	gen, ok := c.(ImageGenerator)
	if !ok {
		return nil, fmt.Errorf("image generation on %s: %w", p, ErrNotSupported)
	}
	model := opts.Model
	if model == "" {
		model = g.defaults.ImageModel
	}
	return gen.GenerateImage(ctx, ImageRequest{Prompt: prompt, Model: model, Size: size, N: n})
}

// AnalyzeImage asks a vision model about the image at imageURL.
func (g *Gateway) AnalyzeImage(ctx context.Context, imageURL, prompt string, opts Options) (*Completion, error) {
	p, _ := g.Resolve(opts.Provider, "")
	if p.DefaultVisionModel() == "" {
		return nil, fmt.Errorf("image analysis on %s: %w", p, ErrNotSupported)
	}
	if opts.Model == "" {
		opts.Model = g.defaults.VisionModel
	}
	if opts.Model == "" {
		opts.Model = p.DefaultVisionModel()
	}
	opts.Provider = string(p)
	resp, _, err := g.Complete(ctx, CompleteRequest{
		Messages:  []Message{{Role: RoleUser, Content: prompt, ImageURLs: []string{imageURL}}},
		Options:   opts,
		Operation: "vision",
	})
	if err != nil {
		return nil, err
	}
	return toCompletion(p, resp), nil
}

// CountTokens counts tokens with the provider's counter when it has
// one, otherwise with the cl100k encoding.
func (g *Gateway) CountTokens(ctx context.Context, text string, opts Options) int {
	p, model := g.Resolve(opts.Provider, opts.Model)
	if c, err := g.router.Client(p); err == nil {
		if tc, ok := c.(TokenCounter); ok {
			n, err := tc.CountTokens(ctx, model, text)
			if err == nil {
				return n
			}
			g.logger.Debug("provider token count failed, estimating", "provider", p, "error", err)
		}
	}
	return EstimateTokens(text)
}

// Ping checks every configured provider.
func (g *Gateway) Ping(ctx context.Context) error { return g.router.Ping(ctx) }
