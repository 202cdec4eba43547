package llm

import (
	"fmt"
	"strings"
)

// Provider identifies a model provider.
type Provider string

// Supported providers.
const (
	OpenAI     Provider = "openai"
	Anthropic  Provider = "anthropic"
	Gemini     Provider = "gemini"
	Ollama     Provider = "ollama"
	DeepSeek   Provider = "deepseek"
	OpenRouter Provider = "openrouter"
)

// Providers lists every provider in display order.
var Providers = []Provider{OpenAI, Anthropic, Gemini, Ollama, DeepSeek, OpenRouter}

// API bases for the OpenAI-compatible providers.
const (
	DeepSeekBaseURL   = "https://api.deepseek.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OllamaBaseURL     = "http://localhost:11434"
)

var defaultModels = map[Provider]string{
	OpenAI:     "gpt-4o-mini",
	Anthropic:  "claude-3-5-sonnet-20241022",
	Gemini:     "gemini-2.0-flash-exp",
	Ollama:     "llama3.2",
	DeepSeek:   "deepseek-chat",
	OpenRouter: "openrouter/auto",
}

var keyEnv = map[Provider]string{
	OpenAI:     "OPENAI_API_KEY",
	Anthropic:  "ANTHROPIC_API_KEY",
	Gemini:     "GEMINI_API_KEY",
	DeepSeek:   "DEEPSEEK_API_KEY",
	OpenRouter: "OPENROUTER_API_KEY",
}

// detectOrder is the order DetectProvider checks for keys.
var detectOrder = []Provider{OpenAI, Anthropic, Gemini, DeepSeek, OpenRouter}

// ParseProvider maps a case-insensitive name or alias to a Provider.
func ParseProvider(name string) (Provider, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "claude":
		return Anthropic, nil
	case "google":
		return Gemini, nil
	}
	p := Provider(n)
	if _, ok := defaultModels[p]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

// DetectProvider returns the first provider whose API key is set in the
// environment, or OpenAI when none is.
func DetectProvider(getenv func(string) string) Provider {
	for _, p := range detectOrder {
		if getenv(keyEnv[p]) != "" {
			return p
		}
	}
	return OpenAI
}

// DefaultModel returns the model used when a request names none.
func (p Provider) DefaultModel() string { return defaultModels[p] }

// KeyEnv returns the environment variable holding p's API key, or ""
// for providers that need none.
func (p Provider) KeyEnv() string { return keyEnv[p] }

// NeedsKey reports whether p refuses requests without an API key.
func (p Provider) NeedsKey() bool { return p != Ollama }

// DefaultEmbeddingModel returns p's embedding model, or "" when p has
// no embeddings endpoint fleetd uses.
func (p Provider) DefaultEmbeddingModel() string {
	switch p {
	case OpenAI:
		return "text-embedding-3-small"
	case Gemini:
		return "gemini-embedding-001"
	case Ollama:
		return "nomic-embed-text"
	}
	return ""
}

// DefaultVisionModel returns the model AnalyzeImage uses, or "" when p
// cannot analyze images.
func (p Provider) DefaultVisionModel() string {
	switch p {
	case OpenAI:
		return "gpt-4o"
	case Gemini:
		return "gemini-2.0-flash-exp"
	}
	return ""
}

func (p Provider) String() string { return string(p) }

// InferProvider guesses a provider from a model name. ok is false when
// the name carries no recognizable prefix.
func InferProvider(model string) (Provider, bool) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude-"):
		return Anthropic, true
	case strings.HasPrefix(m, "gemini-"):
		return Gemini, true
	case strings.HasPrefix(m, "deepseek-"):
		return DeepSeek, true
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1-"), strings.HasPrefix(m, "chatgpt-"),
		strings.HasPrefix(m, "dall-e"), strings.HasPrefix(m, "text-embedding-"):
		return OpenAI, true
	case strings.Contains(m, "/"):
		return OpenRouter, true
	}
	return "", false
}
