package llm

import (
	"errors"
	"testing"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"openai", OpenAI, false},
		{"OpenAI", OpenAI, false},
		{" anthropic ", Anthropic, false},
		{"claude", Anthropic, false},
		{"Google", Gemini, false},
		{"gemini", Gemini, false},
		{"ollama", Ollama, false},
		{"deepseek", DeepSeek, false},
		{"openrouter", OpenRouter, false},
		{"mistral", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownProvider) {
				t.Errorf("ParseProvider(%q) err = %v, want ErrUnknownProvider", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseProvider(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Provider
	}{
		{"nothing set", nil, OpenAI},
		{"openai wins", map[string]string{"OPENAI_API_KEY": "a", "ANTHROPIC_API_KEY": "b"}, OpenAI},
		{"anthropic before gemini", map[string]string{"GEMINI_API_KEY": "g", "ANTHROPIC_API_KEY": "b"}, Anthropic},
		{"gemini", map[string]string{"GEMINI_API_KEY": "g"}, Gemini},
		{"deepseek before openrouter", map[string]string{"OPENROUTER_API_KEY": "o", "DEEPSEEK_API_KEY": "d"}, DeepSeek},
		{"openrouter", map[string]string{"OPENROUTER_API_KEY": "o"}, OpenRouter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectProvider(func(k string) string { return tt.env[k] })
			if got != tt.want {
				t.Errorf("DetectProvider = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProviderDefaults(t *testing.T) {
	tests := []struct {
		p                    Provider
		model, embed, vision string
	}{
		{OpenAI, "gpt-4o-mini", "text-embedding-3-small", "gpt-4o"},
		{Anthropic, "claude-3-5-sonnet-20241022", "", ""},
		{Gemini, "gemini-2.0-flash-exp", "gemini-embedding-001", "gemini-2.0-flash-exp"},
		{Ollama, "llama3.2", "nomic-embed-text", ""},
		{DeepSeek, "deepseek-chat", "", ""},
		{OpenRouter, "openrouter/auto", "", ""},
	}
	for _, tt := range tests {
		if got := tt.p.DefaultModel(); got != tt.model {
			t.Errorf("%s.DefaultModel() = %q, want %q", tt.p, got, tt.model)
		}
		if got := tt.p.DefaultEmbeddingModel(); got != tt.embed {
			t.Errorf("%s.DefaultEmbeddingModel() = %q, want %q", tt.p, got, tt.embed)
		}
		if got := tt.p.DefaultVisionModel(); got != tt.vision {
			t.Errorf("%s.DefaultVisionModel() = %q, want %q", tt.p, got, tt.vision)
		}
	}
	if Ollama.NeedsKey() || !OpenAI.NeedsKey() {
		t.Error("only ollama runs without a key")
	}
}

func TestInferProvider(t *testing.T) {
	tests := []struct {
		model string
		want  Provider
		ok    bool
	}{
		{"claude-3-5-haiku-20241022", Anthropic, true},
		{"gemini-1.5-pro", Gemini, true},
		{"gpt-4o", OpenAI, true},
		{"o1-mini", OpenAI, true},
		{"deepseek-coder", DeepSeek, true},
		{"meta-llama/llama-3.3-70b-instruct", OpenRouter, true},
		{"llama3.2", "", false},
	}
	for _, tt := range tests {
		got, ok := InferProvider(tt.model)
		if got != tt.want || ok != tt.ok {
			t.Errorf("InferProvider(%q) = %q, %v; want %q, %v", tt.model, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d", got)
	}
	if got := EstimateTokens("hello world"); got < 1 || got > 4 {
		t.Errorf("EstimateTokens(hello world) = %d, want a small count", got)
	}
	if got := approxTokens("abcde"); got != 2 {
		t.Errorf("approxTokens(5 bytes) = %d, want 2", got)
	}
}
