package llm

import (
	"context"
	"errors"
)

// Client is implemented by every provider.
type Client interface {
	// Chat sends a completion request and waits for the full response.
	Chat(ctx context.Context, req *Request) (*ChatResponse, error)

	// ChatStream streams tokens to callback and returns the assembled
	// response.
	ChatStream(ctx context.Context, req *Request, callback StreamCallback) (*ChatResponse, error)

	// Ping checks that the provider is reachable and the key is accepted.
	Ping(ctx context.Context) error
}

// Embedder produces vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// ModerationResult is a provider-neutral moderation verdict.
type ModerationResult struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

// Moderator classifies content against a provider's usage policies.
type Moderator interface {
	Moderate(ctx context.Context, content string) (*ModerationResult, error)
}

// ImageRequest asks for generated images.
type ImageRequest struct {
	Prompt string
	Model  string
	Size   string
	N      int
}

// ImageGenerator creates images from a prompt and returns their URLs.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) ([]string, error)
}

// ModelLister lists the models a provider currently serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// TokenCounter counts tokens with the provider's own tokenizer.
type TokenCounter interface {
	CountTokens(ctx context.Context, model, text string) (int, error)
}

// Sentinel errors.
var (
	// ErrNotSupported is returned when a provider lacks a capability.
	ErrNotSupported = errors.New("not supported by provider")
	// ErrAPIKeyNotFound is returned when a provider needs a key that is
	// not configured.
	ErrAPIKeyNotFound = errors.New("API key not found")
	// ErrUnknownProvider is returned for provider names fleetd does not know.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrNoProvider is returned when no client is registered for a provider.
	ErrNoProvider = errors.New("provider not configured")
)
