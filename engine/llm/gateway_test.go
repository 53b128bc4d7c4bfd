package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type mockCompleter struct {
	resp    openai.ChatCompletionResponse
	err     error
	lastReq openai.ChatCompletionRequest
	block   bool
}

func (m *mockCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	if m.block {
		<-ctx.Done()
		return openai.ChatCompletionResponse{}, ctx.Err()
	}
	return m.resp, m.err
}

func reply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}},
	}}
}

func TestChat_Success(t *testing.T) {
	m := &mockCompleter{resp: reply("  Visit Doi Suthep.\n")}
	g := NewWithClient(m, Options{}, nil)

	got := g.Chat(context.Background(), "What to see in Chiang Mai?")
	if got != "Visit Doi Suthep." {
		t.Errorf("got %q", got)
	}
	if len(m.lastReq.Messages) != 2 {
		t.Fatalf("messages = %d", len(m.lastReq.Messages))
	}
	if m.lastReq.Messages[0].Role != openai.ChatMessageRoleSystem || !strings.Contains(m.lastReq.Messages[0].Content, "travel assistant") {
		t.Errorf("system message = %+v", m.lastReq.Messages[0])
	}
	if m.lastReq.Messages[1].Content != "What to see in Chiang Mai?" {
		t.Errorf("user message = %+v", m.lastReq.Messages[1])
	}
	if m.lastReq.MaxTokens != 2048 || m.lastReq.Model != DefaultModel {
		t.Errorf("request = %+v", m.lastReq)
	}
}

func TestChat_ErrorInline(t *testing.T) {
	g := NewWithClient(&mockCompleter{err: errors.New("connection refused")}, Options{}, nil)
	got := g.Chat(context.Background(), "hi")
	if !strings.HasPrefix(got, "Error: Unable to get LLM response - ") || !strings.Contains(got, "connection refused") {
		t.Errorf("got %q", got)
	}
}

func TestGenerate(t *testing.T) {
	m := &mockCompleter{resp: reply(`{"tripOverview": "ok"}`)}
	g := NewWithClient(m, Options{GenerateMaxTokens: 9000}, nil)

	got, err := g.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"tripOverview": "ok"}` {
		t.Errorf("got %q", got)
	}
	if m.lastReq.MaxTokens != 9000 {
		t.Errorf("max tokens = %d", m.lastReq.MaxTokens)
	}
}

func TestGenerate_Errors(t *testing.T) {
	g := NewWithClient(&mockCompleter{err: errors.New("boom")}, Options{}, nil)
	if _, err := g.Generate(context.Background(), "p"); err == nil {
		t.Fatal("expected error")
	}

	g = NewWithClient(&mockCompleter{}, Options{}, nil)
	if _, err := g.Generate(context.Background(), "p"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	g := NewWithClient(&mockCompleter{block: true}, Options{Timeout: 20 * time.Millisecond}, nil)
	start := time.Now()
	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout not applied: %v", time.Since(start))
	}
}

func TestNew_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "x",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "สวัสดี"},
			}},
		})
	}))
	defer srv.Close()

	g := New(Options{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "test-model"}, nil)
	if g.Model() != "test-model" {
		t.Errorf("model = %q", g.Model())
	}
	if got := g.Chat(context.Background(), "hello"); got != "สวัสดี" {
		t.Errorf("got %q", got)
	}
}

func TestTemperature(t *testing.T) {
	zero, warm := float32(0), float32(0.3)
	tests := []struct {
		name string
		temp *float32
		want float32
	}{
		{"unset", nil, 0},
		{"explicit zero", &zero, math.SmallestNonzeroFloat32},
		{"configured", &warm, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockCompleter{resp: reply("ok")}
			g := NewWithClient(m, Options{Temperature: tt.temp}, nil)
			if _, err := g.Generate(context.Background(), "p"); err != nil {
				t.Fatal(err)
			}
			if m.lastReq.Temperature != tt.want {
				t.Errorf("temperature = %v, want %v", m.lastReq.Temperature, tt.want)
			}
		})
	}
}

func TestNew_OmitsTemperatureByDefault(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	g := New(Options{BaseURL: srv.URL + "/v1"}, nil)
	if _, err := g.Generate(context.Background(), "p"); err != nil {
		t.Fatal(err)
	}
	var sent map[string]any
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatal(err)
	}
	if _, ok := sent["temperature"]; ok {
		t.Errorf("temperature sent: %s", body)
	}
}
