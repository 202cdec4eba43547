package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fleetchat/fleetd/internal/config"
)

// NewRouter builds a client for every provider that has an API key,
// plus Ollama, and picks the instance provider: providers.default when
// set, otherwise the first provider with a key in the environment.
func NewRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*MultiClient, Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	instance := DetectProvider(os.Getenv)
	if cfg.Providers.Default != "" {
		p, err := ParseProvider(cfg.Providers.Default)
		if err != nil {
			return nil, "", err
		}
		instance = p
	}

	router := NewMultiClient(instance)
	for _, p := range Providers {
		pc, _ := cfg.Providers.Get(string(p))
		if p.NeedsKey() && pc.APIKey == "" {
			continue
		}

		var (
			c   Client
			err error
		)
		switch p {
		case OpenAI, DeepSeek, OpenRouter:
			c, err = NewOpenAIClient(p, pc.APIKey, pc.BaseURL, logger)
		case Anthropic:
			c = NewAnthropicClient(pc.APIKey, pc.BaseURL, logger)
		case Gemini:
			c, err = NewGeminiClient(ctx, pc.APIKey, pc.BaseURL, logger)
		case Ollama:
			c = NewOllamaClient(pc.BaseURL, logger)
		}
		if err != nil {
			return nil, "", fmt.Errorf("configure %s: %w", p, err)
		}
		router.AddProvider(p, c)
		if pc.Model != "" {
			router.AddModel(pc.Model, p)
		}
		logger.Debug("provider configured", "provider", p, "base_url", pc.BaseURL)
	}
	return router, instance, nil
}

// DefaultsFromConfig maps the models section and per-provider model
// overrides onto gateway defaults.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	d := Defaults{
		MaxTokens:      cfg.Models.MaxTokens,
		EmbeddingModel: cfg.Models.EmbeddingModel,
		ImageModel:     cfg.Models.ImageModel,
		VisionModel:    cfg.Models.VisionModel,
		Models:         make(map[Provider]string),
	}
	t := cfg.Models.Temperature
	d.Temperature = &t
	for _, p := range Providers {
		if pc, ok := cfg.Providers.Get(string(p)); ok && pc.Model != "" {
			d.Models[p] = pc.Model
		}
	}
	return d
}
