package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// MultiClient routes requests to the provider that serves the model.
// Explicit model mappings win over name-prefix inference; anything
// else goes to the fallback provider.
type MultiClient struct {
	clients  map[Provider]Client
	models   map[string]Provider
	fallback Provider
}

// NewMultiClient creates a router whose unmatched models go to fallback.
func NewMultiClient(fallback Provider) *MultiClient {
	return &MultiClient{
		clients:  make(map[Provider]Client),
		models:   make(map[string]Provider),
		fallback: fallback,
	}
}

// AddProvider registers a client for a provider.
func (m *MultiClient) AddProvider(p Provider, client Client) {
	m.clients[p] = client
}

// AddModel pins a model name to a provider.
func (m *MultiClient) AddModel(model string, p Provider) {
	m.models[model] = p
}

// Client returns the registered client for p.
func (m *MultiClient) Client(p Provider) (Client, error) {
	c, ok := m.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, p)
	}
	return c, nil
}

// Configured returns the registered providers in display order.
func (m *MultiClient) Configured() []Provider {
	var out []Provider
	for _, p := range Providers {
		if _, ok := m.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ProviderFor returns the provider a model routes to.
func (m *MultiClient) ProviderFor(model string) Provider {
	if p, ok := m.models[model]; ok {
		return p
	}
	if p, ok := InferProvider(model); ok {
		if _, registered := m.clients[p]; registered {
			return p
		}
	}
	return m.fallback
}

func (m *MultiClient) clientFor(model string) (Client, error) {
	p := m.ProviderFor(model)
	c, ok := m.clients[p]
	if !ok {
		return nil, fmt.Errorf("no provider configured for model %q: %w", model, ErrNoProvider)
	}
	return c, nil
}

// Chat sends a request to the provider for req.Model.
func (m *MultiClient) Chat(ctx context.Context, req *Request) (*ChatResponse, error) {
	c, err := m.clientFor(req.Model)
	if err != nil {
		return nil, err
	}
	return c.Chat(ctx, req)
}

// ChatStream sends a streaming request to the provider for req.Model.
func (m *MultiClient) ChatStream(ctx context.Context, req *Request, callback StreamCallback) (*ChatResponse, error) {
	c, err := m.clientFor(req.Model)
	if err != nil {
		return nil, err
	}
	return c.ChatStream(ctx, req, callback)
}

// Ping checks every registered provider and joins the failures.
func (m *MultiClient) Ping(ctx context.Context) error {
	if len(m.clients) == 0 {
		return ErrNoProvider
	}
	names := make([]string, 0, len(m.clients))
	for p := range m.clients {
		names = append(names, string(p))
	}
	sort.Strings(names)

	var errs []error
	for _, n := range names {
		if err := m.clients[Provider(n)].Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}
