package llm

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ModelInfo describes one model a provider serves.
type ModelInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	ContextLength int       `json:"context_length,omitempty"`
	Provider      Provider  `json:"provider"`
	OwnedBy       string    `json:"owned_by,omitempty"`
	Created       time.Time `json:"created,omitzero"`
}

var knownModels = map[Provider][]ModelInfo{
	OpenAI: {
		{ID: "gpt-4o", Name: "GPT-4 Omni", Description: "OpenAI's most advanced multimodal model", ContextLength: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4 Omni Mini", Description: "Faster, cheaper version of GPT-4o", ContextLength: 128000},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Description: "High-intelligence model with vision capabilities", ContextLength: 128000},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Description: "Fast, efficient model for most tasks", ContextLength: 16385},
	},
	Anthropic: {
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Description: "Most intelligent model for complex tasks", ContextLength: 200000},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", Description: "Fastest model for simple tasks", ContextLength: 200000},
		{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", Description: "Powerful model for nuanced tasks", ContextLength: 200000},
	},
	Gemini: {
		{ID: "gemini-2.0-flash-exp", Name: "Gemini 2.0 Flash", Description: "Google's latest experimental flash model", ContextLength: 1000000},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", Description: "Google's advanced model with long context", ContextLength: 2000000},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", Description: "Google's fast, efficient model", ContextLength: 1000000},
	},
	DeepSeek: {
		{ID: "deepseek-chat", Name: "DeepSeek Chat", Description: "DeepSeek's advanced chat model", ContextLength: 128000},
		{ID: "deepseek-coder", Name: "DeepSeek Coder", Description: "DeepSeek's code-specialized model", ContextLength: 128000},
	},
	OpenRouter: {
		{ID: "meta-llama/llama-3.3-70b-instruct", Name: "Llama 3.3 70B", Description: "Meta's large language model via OpenRouter", ContextLength: 128000},
		{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Description: "Anthropic's Claude via OpenRouter", ContextLength: 200000},
	},
	Ollama: {
		{ID: "llama3.2", Name: "Llama 3.2", Description: "Meta's open source model", ContextLength: 128000},
	},
}

// KnownModels returns the built-in model list for p.
func KnownModels(p Provider) []ModelInfo {
	src := knownModels[p]
	out := make([]ModelInfo, len(src))
	for i, m := range src {
		m.Provider = p
		out[i] = m
	}
	return out
}

type modelDesc struct {
	name, description string
	context           int
}

var openAIDescriptions = map[string]modelDesc{
	"gpt-4o":                 {"GPT-4 Omni", "OpenAI's most advanced multimodal model", 128000},
	"chatgpt-4o-latest":      {"GPT-4 Omni", "OpenAI's most advanced multimodal model", 128000},
	"gpt-4o-mini":            {"GPT-4 Omni Mini", "Faster, cheaper version of GPT-4o", 128000},
	"gpt-4-turbo":            {"GPT-4 Turbo", "High-intelligence model with vision capabilities", 128000},
	"gpt-4-turbo-2024-04-09": {"GPT-4 Turbo", "High-intelligence model with vision capabilities", 128000},
	"gpt-4":                  {"GPT-4", "OpenAI's previous flagship model", 8192},
	"gpt-3.5-turbo":          {"GPT-3.5 Turbo", "Fast, efficient model for most tasks", 16385},
	"o1-preview":             {"OpenAI o1 Preview", "OpenAI's reasoning model", 128000},
	"o1-mini":                {"OpenAI o1 Mini", "OpenAI's fast reasoning model", 128000},
}

var deepSeekDescriptions = map[string]modelDesc{
	"deepseek-chat":  {"DeepSeek Chat", "DeepSeek's advanced chat model", 128000},
	"deepseek-coder": {"DeepSeek Coder", "DeepSeek's code-specialized model", 128000},
}

// describe fills Name, Description and ContextLength for live models.
func describe(m ModelInfo) ModelInfo {
	var table map[string]modelDesc
	var label string
	switch m.Provider {
	case OpenAI:
		table, label = openAIDescriptions, "OpenAI"
	case DeepSeek:
		table, label = deepSeekDescriptions, "DeepSeek"
	}
	if d, ok := table[m.ID]; ok {
		m.Name, m.Description, m.ContextLength = d.name, d.description, d.context
		return m
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	if m.Description == "" && label != "" {
		m.Description = label + " model: " + m.ID
	}
	if m.ContextLength == 0 && label != "" {
		m.ContextLength = 128000
	}
	return m
}

func isOpenAIChatModel(id string) bool {
	return strings.HasPrefix(id, "gpt-") || strings.HasPrefix(id, "o1-") || id == "chatgpt-4o-latest"
}

// listModels lists p's models, live when the client can and live is
// set. Any live failure falls back to the known list.
func (g *Gateway) listModels(ctx context.Context, p Provider, live bool) []ModelInfo {
	if !live {
		return KnownModels(p)
	}
	c, err := g.router.Client(p)
	if err != nil {
		return KnownModels(p)
	}
	lister, ok := c.(ModelLister)
	if !ok {
		return KnownModels(p)
	}
	models, err := lister.ListModels(ctx)
	if err != nil || len(models) == 0 {
		g.logger.Warn("live model list failed, using known models", "provider", p, "error", err)
		return KnownModels(p)
	}
	for i := range models {
		models[i] = describe(models[i])
	}
	return models
}

// Models lists models for one provider, or for every configured
// provider in parallel when p is empty.
func (g *Gateway) Models(ctx context.Context, p Provider, live bool) ([]ModelInfo, error) {
	if p != "" {
		if _, ok := defaultModels[p]; !ok {
			return nil, ErrUnknownProvider
		}
		return g.listModels(ctx, p, live), nil
	}

	providers := g.router.Configured()
	results := make([][]ModelInfo, len(providers))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, prov := range providers {
		eg.Go(func() error {
			results[i] = g.listModels(egCtx, prov, live)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []ModelInfo
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
