package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClientImplementsInterfaces(t *testing.T) {
	var _ Client = (*OpenAIClient)(nil)
	var _ Embedder = (*OpenAIClient)(nil)
	var _ Moderator = (*OpenAIClient)(nil)
	var _ ImageGenerator = (*OpenAIClient)(nil)
	var _ ModelLister = (*OpenAIClient)(nil)
}

func TestNewOpenAIClientRejectsOtherProviders(t *testing.T) {
	if _, err := NewOpenAIClient(Anthropic, "k", "", nil); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := toOpenAIMessages([]Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "look", ImageURLs: []string{"https://x/a.png"}},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "search_contacts", Arguments: map[string]any{"department": "Sales"}}}},
		{Role: RoleTool, Content: "[]", ToolCallID: "call_search_contacts_0"},
		{Role: "narrator", Content: "?"},
	})
	if len(msgs) != 5 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[1].Content != "" || len(msgs[1].MultiContent) != 2 {
		t.Errorf("image message should use multi-part content: %+v", msgs[1])
	}
	tc := msgs[2].ToolCalls
	if len(tc) != 1 || tc[0].ID != "call_search_contacts_0" || tc[0].Function.Arguments != `{"department":"Sales"}` {
		t.Errorf("tool calls = %+v", tc)
	}
	if msgs[4].Role != RoleUser {
		t.Errorf("unknown role = %q, want user", msgs[4].Role)
	}
}

func TestFromOpenAIToolCallBadArguments(t *testing.T) {
	msgs := toOpenAIMessages([]Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "x"}}}})
	if msgs[0].ToolCalls[0].Function.Arguments != "{}" {
		t.Errorf("nil arguments should encode as {}, got %q", msgs[0].ToolCalls[0].Function.Arguments)
	}
	back := fromOpenAIToolCall(msgs[0].ToolCalls[0])
	back.Arguments["k"] = 1 // must be writable
	msgs[0].ToolCalls[0].Function.Arguments = "{not json"
	if got := fromOpenAIToolCall(msgs[0].ToolCalls[0]); got.Arguments["_raw"] != "{not json" {
		t.Errorf("bad arguments = %+v", got.Arguments)
	}
}

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewOpenAIClient(OpenAI, "sk-test", srv.URL+"/v1", nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestOpenAIChat(t *testing.T) {
	var body map[string]any
	c := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4o-mini-2024-07-18",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_contact_info", "arguments": "{\"name\":\"Alice\"}"}}]
			}}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 8, "total_tokens": 38}
		}`)
	})

	resp, err := c.Chat(context.Background(), &Request{
		Model:       "gpt-4o-mini",
		Messages:    []Message{{Role: RoleUser, Content: "who is alice"}},
		Tools:       []Tool{{Name: "get_contact_info", Description: "look up"}},
		Temperature: Float(0.5),
		MaxTokens:   100,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if body["model"] != "gpt-4o-mini" || body["max_tokens"] != float64(100) {
		t.Errorf("request body = %v", body)
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("tools = %v", body["tools"])
	}
	if resp.Model != "gpt-4o-mini-2024-07-18" || resp.InputTokens != 30 || resp.OutputTokens != 8 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.FinishReason != "tool_calls" || len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Arguments["name"] != "Alice" {
		t.Errorf("tool calls = %+v", resp.Message.ToolCalls)
	}
}

func TestOpenAIChatStream(t *testing.T) {
	chunks := []string{
		`{"id":"c","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"c","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"c","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"search_contacts","arguments":"{\"depart"}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ment\":\"Sales\"}"}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"c","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":6,"total_tokens":18}}`,
	}
	var streamed bool
	c := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream        bool `json:"stream"`
			StreamOptions struct {
				IncludeUsage bool `json:"include_usage"`
			} `json:"stream_options"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		streamed = body.Stream && body.StreamOptions.IncludeUsage
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ch := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", ch)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	})

	var tokens []string
	var calls []*ToolCall
	resp, err := c.ChatStream(context.Background(), &Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "sales team"}},
	}, func(ev StreamEvent) {
		switch ev.Kind {
		case KindToken:
			tokens = append(tokens, ev.Token)
		case KindToolCall:
			calls = append(calls, ev.ToolCall)
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if !streamed {
		t.Error("request should ask for a stream with usage")
	}
	if strings.Join(tokens, "") != "Hello" || resp.Message.Content != "Hello" {
		t.Errorf("tokens %v content %q", tokens, resp.Message.Content)
	}
	if len(calls) != 1 || calls[0].ID != "call_9" || calls[0].Arguments["department"] != "Sales" {
		t.Errorf("tool calls = %+v", calls)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 6 || resp.FinishReason != "tool_calls" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestOpenAIListModelsFilters(t *testing.T) {
	c := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"object":"list","data":[
			{"id":"gpt-4o","object":"model","created":1715367049,"owned_by":"system"},
			{"id":"whisper-1","object":"model","created":1677532384,"owned_by":"openai-internal"},
			{"id":"chatgpt-4o-latest","object":"model","created":1723515131,"owned_by":"system"},
			{"id":"o1-mini","object":"model","created":1725649008,"owned_by":"system"},
			{"id":"text-embedding-3-small","object":"model","created":1705948997,"owned_by":"system"}
		]}`)
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	var ids []string
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	if strings.Join(ids, ",") != "chatgpt-4o-latest,gpt-4o,o1-mini" {
		t.Errorf("ids = %v", ids)
	}
	if models[1].Created.IsZero() || models[1].OwnedBy != "system" {
		t.Errorf("metadata = %+v", models[1])
	}
}

func TestOpenAIEmbedAndModerate(t *testing.T) {
	c := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/embeddings":
			io.WriteString(w, `{"object":"list","model":"text-embedding-3-small","data":[
				{"object":"embedding","index":1,"embedding":[0.5,0.6]},
				{"object":"embedding","index":0,"embedding":[0.1,0.2]}
			],"usage":{"prompt_tokens":2,"total_tokens":2}}`)
		case "/v1/moderations":
			io.WriteString(w, `{"id":"modr-1","model":"omni-moderation-latest","results":[{
				"flagged":true,
				"categories":{"hate":false,"violence":true},
				"category_scores":{"hate":0.01,"violence":0.93}
			}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	vecs, err := c.Embed(context.Background(), "", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != float32(0.1) || vecs[1][0] != float32(0.5) {
		t.Errorf("embeddings not ordered by index: %v", vecs)
	}

	mod, err := c.Moderate(context.Background(), "bad words")
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if !mod.Flagged || !mod.Categories["violence"] || mod.CategoryScores["violence"] < 0.9 {
		t.Errorf("moderation = %+v", mod)
	}
}

func TestOpenAIUnauthorized(t *testing.T) {
	c := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	})
	_, err := c.Chat(context.Background(), &Request{Model: "gpt-4o-mini"})
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("err = %v, want ErrAPIKeyNotFound", err)
	}
}

func TestDeepSeekCapabilities(t *testing.T) {
	c, err := NewOpenAIClient(DeepSeek, "k", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Embed(context.Background(), "", []string{"x"}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Embed err = %v", err)
	}
	if _, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("GenerateImage err = %v", err)
	}
}
