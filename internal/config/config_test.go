package config

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFindConfig_NoneFound(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	_, err := FindConfig("")
	if err != nil && !errors.Is(err, ErrNoConfig) {
		t.Fatalf("FindConfig error = %v, want ErrNoConfig", err)
	}
}

func TestFindConfig_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetd.yaml")
	os.WriteFile(path, []byte("log_level: debug\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q", path, got)
	}
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{}\n"), 0600)
	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig = %q, want config.yaml", got)
	}
}

func TestParse_KeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("agent:\n  use_ui: false\n"), envMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent.UseUI {
		t.Error("use_ui should be overridden to false")
	}
	if cfg.Agent.MaxRetries != 2 {
		t.Errorf("max_retries = %d, want default 2", cfg.Agent.MaxRetries)
	}
	if cfg.Agent.BaseURL != "http://localhost:1420" {
		t.Errorf("base_url = %q", cfg.Agent.BaseURL)
	}
	if cfg.Models.Temperature != 0.7 || cfg.Models.MaxTokens != 4096 {
		t.Errorf("models = %+v", cfg.Models)
	}
}

func TestParse_ZeroRetriesAllowed(t *testing.T) {
	cfg, err := Parse([]byte("agent:\n  max_retries: 0\n"), envMap(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent.MaxRetries != 0 {
		t.Errorf("max_retries = %d, want 0", cfg.Agent.MaxRetries)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	yaml := "providers:\n  anthropic:\n    api_key: ${MY_CLAUDE_KEY}\n"
	cfg, err := Parse([]byte(yaml), envMap(map[string]string{"MY_CLAUDE_KEY": "sk-ant-123"}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-ant-123" {
		t.Errorf("api_key = %q", cfg.Providers.Anthropic.APIKey)
	}
}

func TestResolveAPIKeys(t *testing.T) {
	yaml := "providers:\n  openai:\n    api_key: inline\n"
	env := envMap(map[string]string{
		"OPENAI_API_KEY":   "from-env",
		"DEEPSEEK_API_KEY": " ds-key \n",
		"OLLAMA_HOST":      "gpu-box:11434",
	})
	cfg, err := Parse([]byte(yaml), env)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Providers.OpenAI.APIKey != "inline" {
		t.Errorf("inline key overwritten: %q", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Providers.DeepSeek.APIKey != "ds-key" {
		t.Errorf("deepseek key = %q", cfg.Providers.DeepSeek.APIKey)
	}
	if cfg.Providers.Ollama.BaseURL != "http://gpu-box:11434" {
		t.Errorf("ollama base_url = %q", cfg.Providers.Ollama.BaseURL)
	}
	if p, ok := cfg.Providers.Get("deepseek"); !ok || p.APIKey != "ds-key" {
		t.Errorf("Get(deepseek) = %+v, %v", p, ok)
	}
	if _, ok := cfg.Providers.Get("mistral"); ok {
		t.Error("Get(mistral) should be false")
	}
}

func TestLoad_SetsPathAndResolver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("data_dir: /srv/fleetd\ncontacts:\n  vcard: config:people.vcf\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := cfg.Resolver()
	if got := r.Resolve(cfg.Sessions.Path); got != "/srv/fleetd/sessions.db" {
		t.Errorf("sessions path = %q", got)
	}
	if got := r.Resolve(cfg.Contacts.VCard); got != filepath.Join(dir, "people.vcf") {
		t.Errorf("vcard path = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"alias provider", func(c *Config) { c.Providers.Default = "Claude" }, ""},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad provider", func(c *Config) { c.Providers.Default = "mistral" }, "providers.default"},
		{"bad backend", func(c *Config) { c.Sessions.Backend = "redis" }, "sessions.backend"},
		{"negative retries", func(c *Config) { c.Agent.MaxRetries = -1 }, "max_retries"},
		{"hot temperature", func(c *Config) { c.Models.Temperature = 3 }, "temperature"},
		{"typo prefix", func(c *Config) { c.Sessions.Path = "dta:sessions.db" }, `unknown prefix "dta"`},
		{"config prefix without file", func(c *Config) { c.Agent.GuidanceDir = "config:guidance" }, "agent.guidance_dir"},
		{"absolute path", func(c *Config) { c.Usage.Path = "/var/lib/fleetd/usage.db" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{" TRACE ", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	a := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, LevelTrace))
	if a.Value.String() != "TRACE" {
		t.Errorf("trace rendered as %q", a.Value.String())
	}
	a = ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, slog.LevelInfo))
	if a.Value.String() != "INFO" {
		t.Errorf("info rendered as %q", a.Value.String())
	}
}

func TestConfigLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		minLevel slog.Level
		logAt    slog.Level
		want     string // empty means nothing is written
	}{
		{"trace text", "trace", "text", LevelTrace, LevelTrace, "level=TRACE"},
		{"json format", "info", "json", slog.LevelInfo, slog.LevelInfo, `"level":"INFO"`},
		{"floor raises level", "debug", "text", slog.LevelWarn, slog.LevelInfo, ""},
		{"config stricter than floor", "error", "text", slog.LevelWarn, slog.LevelWarn, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.LogLevel, cfg.LogFormat = tt.level, tt.format
			var buf bytes.Buffer
			logger, err := cfg.Logger(&buf, tt.minLevel)
			if err != nil {
				t.Fatalf("Logger: %v", err)
			}
			logger.Log(context.Background(), tt.logAt, "hello")
			if tt.want == "" {
				if buf.Len() != 0 {
					t.Errorf("wrote %q, want nothing", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}

	cfg := Default()
	cfg.LogLevel = "loud"
	if _, err := cfg.Logger(&bytes.Buffer{}, slog.LevelInfo); err == nil {
		t.Error("Logger accepted an unknown level")
	}
}
