// Package config loads the fleetd YAML configuration.
//
// Values are environment-expanded before parsing, so secrets can be
// written as ${OPENAI_API_KEY}. Unset provider keys also fall back to
// the conventional <PROVIDER>_API_KEY variables. Every field has a
// working default; fleetd runs without a config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fleetchat/fleetd/internal/paths"
)

// Provider names accepted in providers.default and per-provider blocks.
var knownProviders = []string{"openai", "anthropic", "gemini", "deepseek", "openrouter", "ollama"}

// APIKeyEnv maps provider names to their API key environment variable.
var APIKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// DefaultSearchPaths returns the config search order used when no
// explicit path is given.
func DefaultSearchPaths() []string {
	p := []string{"config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		p = append(p, filepath.Join(home, ".config", "fleetd", "config.yaml"))
	}
	return append(p, "/usr/local/etc/fleetd/config.yaml", "/etc/fleetd/config.yaml")
}

// ErrNoConfig is returned by FindConfig when the search finds nothing.
var ErrNoConfig = errors.New("no config file found")

// FindConfig returns explicit if it exists, otherwise the first
// existing entry of DefaultSearchPaths.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, DefaultSearchPaths())
}

// Config is the root of config.yaml.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text or json
	DataDir   string `yaml:"data_dir"`

	Providers ProvidersConfig         `yaml:"providers"`
	Models    ModelsConfig            `yaml:"models"`
	Agent     AgentConfig             `yaml:"agent"`
	Sessions  SessionsConfig          `yaml:"sessions"`
	Usage     UsageConfig             `yaml:"usage"`
	Pricing   map[string]PricingEntry `yaml:"pricing"`
	Contacts  ContactsConfig          `yaml:"contacts"`
	Relay     RelayConfig             `yaml:"relay"`

	// path is where the config was loaded from; empty for Default().
	path string
}

// ProviderConfig holds connection settings for one provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// Model overrides the provider's default model.
	Model string `yaml:"model"`
}

// ProvidersConfig selects the instance provider and configures each.
type ProvidersConfig struct {
	// Default is the instance provider. Empty means detect from the
	// environment.
	Default    string         `yaml:"default"`
	OpenAI     ProviderConfig `yaml:"openai"`
	Anthropic  ProviderConfig `yaml:"anthropic"`
	Gemini     ProviderConfig `yaml:"gemini"`
	DeepSeek   ProviderConfig `yaml:"deepseek"`
	OpenRouter ProviderConfig `yaml:"openrouter"`
	Ollama     ProviderConfig `yaml:"ollama"`
}

// Get returns the block for a provider name.
func (p *ProvidersConfig) Get(name string) (ProviderConfig, bool) {
	if ptr := p.ptr(name); ptr != nil {
		return *ptr, true
	}
	return ProviderConfig{}, false
}

func (p *ProvidersConfig) ptr(name string) *ProviderConfig {
	switch name {
	case "openai":
		return &p.OpenAI
	case "anthropic":
		return &p.Anthropic
	case "gemini":
		return &p.Gemini
	case "deepseek":
		return &p.DeepSeek
	case "openrouter":
		return &p.OpenRouter
	case "ollama":
		return &p.Ollama
	}
	return nil
}

// ModelsConfig holds request defaults shared by every provider.
type ModelsConfig struct {
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	EmbeddingModel string  `yaml:"embedding_model"`
	ImageModel     string  `yaml:"image_model"`
	VisionModel    string  `yaml:"vision_model"`
}

// AgentConfig tunes the A2UI agent.
type AgentConfig struct {
	// MaxRetries is how many times a response that fails to parse or
	// validate is regenerated with feedback.
	MaxRetries   int    `yaml:"max_retries"`
	UseUI        bool   `yaml:"use_ui"`
	UserID       string `yaml:"user_id"`
	AppName      string `yaml:"app_name"`
	BaseURL      string `yaml:"base_url"`
	HistoryLimit int    `yaml:"history_limit"`
	// GuidanceDir holds extra markdown appended to the UI prompt.
	GuidanceDir string `yaml:"guidance_dir"`
}

// SessionsConfig selects the session store.
type SessionsConfig struct {
	Backend string `yaml:"backend"` // memory or sqlite
	Path    string `yaml:"path"`
}

// UsageConfig controls the token usage ledger.
type UsageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PricingEntry is a model's price in USD per million tokens.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// ContactsConfig points the contact directory at a vCard file. Empty
// uses the built-in sample directory.
type ContactsConfig struct {
	VCard string `yaml:"vcard"`
}

// RelayConfig configures the optional MQTT event relay.
type RelayConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	DeviceName  string `yaml:"device_name"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Enabled reports whether a broker is configured.
func (r RelayConfig) Enabled() bool { return r.Broker != "" }

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		DataDir:   "~/.local/share/fleetd",
		Models: ModelsConfig{
			Temperature:    0.7,
			MaxTokens:      4096,
			EmbeddingModel: "",
			ImageModel:     "dall-e-3",
		},
		Agent: AgentConfig{
			MaxRetries:   2,
			UseUI:        true,
			UserID:       "default-user",
			AppName:      "fleet-chat",
			BaseURL:      "http://localhost:1420",
			HistoryLimit: 10,
		},
		Sessions: SessionsConfig{Backend: "memory", Path: "data:sessions.db"},
		Usage:    UsageConfig{Enabled: true, Path: "data:usage.db"},
		Relay:    RelayConfig{TopicPrefix: "fleetd"},
	}
}

// Load reads path over Default(), so omitted fields keep their
// defaults, then resolves API keys from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes YAML bytes. getenv drives both ${VAR} expansion and
// the API key fallback; tests pass a map lookup.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	expanded := os.Expand(string(data), getenv)
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.ResolveAPIKeys(getenv)
	return cfg, nil
}

// ResolveAPIKeys fills empty provider keys from <PROVIDER>_API_KEY.
func (c *Config) ResolveAPIKeys(getenv func(string) string) {
	for name, env := range APIKeyEnv {
		p := c.Providers.ptr(name)
		if p.APIKey == "" {
			p.APIKey = strings.TrimSpace(getenv(env))
		}
	}
	if c.Providers.Ollama.BaseURL == "" {
		if host := getenv("OLLAMA_HOST"); host != "" {
			if !strings.Contains(host, "://") {
				host = "http://" + host
			}
			c.Providers.Ollama.BaseURL = host
		}
	}
}

// Path is the file the config was loaded from, if any.
func (c *Config) Path() string { return c.path }

// Resolver expands "data:" and "config:" prefixed paths.
func (c *Config) Resolver() *paths.Resolver {
	m := map[string]string{"data": c.DataDir}
	if c.path != "" {
		m["config"] = filepath.Dir(c.path)
	}
	return paths.New(m)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	if d := strings.ToLower(c.Providers.Default); d != "" && !isKnownProvider(d) {
		errs = append(errs, fmt.Errorf("providers.default %q is not one of %s", c.Providers.Default, strings.Join(knownProviders, ", ")))
	}
	switch c.Sessions.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("sessions.backend %q must be memory or sqlite", c.Sessions.Backend))
	}
	if c.Agent.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("agent.max_retries must not be negative (got %d)", c.Agent.MaxRetries))
	}
	if c.Models.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("models.max_tokens must not be negative (got %d)", c.Models.MaxTokens))
	}
	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		errs = append(errs, fmt.Errorf("models.temperature %.2f out of range [0, 2]", c.Models.Temperature))
	}

	r := c.Resolver()
	for _, f := range []struct{ key, path string }{
		{"sessions.path", c.Sessions.Path},
		{"usage.path", c.Usage.Path},
		{"contacts.vcard", c.Contacts.VCard},
		{"agent.guidance_dir", c.Agent.GuidanceDir},
	} {
		if name, bad := r.UnknownPrefix(f.path); bad {
			errs = append(errs, fmt.Errorf("%s %q: unknown prefix %q (known: %s)", f.key, f.path, name, strings.Join(r.Prefixes(), ", ")))
		}
	}
	return errors.Join(errs...)
}

func isKnownProvider(name string) bool {
	switch name {
	case "claude", "google":
		return true
	}
	for _, p := range knownProviders {
		if p == name {
			return true
		}
	}
	return false
}
