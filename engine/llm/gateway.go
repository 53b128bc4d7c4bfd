// Package llm talks to an OpenAI-compatible chat-completions endpoint
// (SEA-LION by default) in two modes: a basic chat that never fails and a
// generation call used by the trip-plan pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.sea-lion.ai/v1"
	DefaultModel   = "aisingapore/Llama-SEA-LION-v3-70B-IT"
	DefaultTimeout = 120 * time.Second
)

const defaultSystemPrompt = `You are a helpful travel assistant. Use the provided context to answer the user's question about travel destinations and places.
If the context doesn't contain relevant information, say so politely and provide general advice if possible. You have to answer in language you are asked.`

// ErrEmptyCompletion is returned when the provider answers with no choices.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// ChatCompleter is the part of *openai.Client the gateway uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures the Gateway.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	// MaxTokens bounds basic chat answers, GenerateMaxTokens bounds plans.
	MaxTokens         int
	GenerateMaxTokens int
	// Temperature is left to the provider when nil.
	Temperature *float32
	// Timeout caps every call, whatever deadline the caller's context has.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL:           DefaultBaseURL,
		Model:             DefaultModel,
		SystemPrompt:      defaultSystemPrompt,
		MaxTokens:         2048,
		GenerateMaxTokens: 24048,
		Timeout:           DefaultTimeout,
	}
}

// Gateway wraps one chat-completions client.
type Gateway struct {
	api    ChatCompleter
	opts   Options
	logger *slog.Logger
}

// New builds a Gateway over go-openai. Zero option fields take defaults.
func New(opts Options, logger *slog.Logger) *Gateway {
	opts = withDefaults(opts)
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return NewWithClient(openai.NewClientWithConfig(cfg), opts, logger)
}

// NewWithClient builds a Gateway over an explicit client.
func NewWithClient(api ChatCompleter, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{api: api, opts: withDefaults(opts), logger: logger}
}

func withDefaults(o Options) Options {
	d := DefaultOptions()
	if o.BaseURL == "" {
		o.BaseURL = d.BaseURL
	}
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = d.SystemPrompt
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.GenerateMaxTokens <= 0 {
		o.GenerateMaxTokens = d.GenerateMaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	return o
}

// Model reports the configured model name.
func (g *Gateway) Model() string { return g.opts.Model }

// Chat answers a free-form message. Failures come back as the reply text
// so the caller always has something to show.
func (g *Gateway) Chat(ctx context.Context, message string) string {
	reply, err := g.complete(ctx, message, g.opts.MaxTokens)
	if err != nil {
		g.logger.Warn("llm: basic chat failed", "err", err)
		return "Error: Unable to get LLM response - " + err.Error()
	}
	return reply
}

// Generate sends a fully built prompt and returns the raw completion text.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	return g.complete(ctx, prompt, g.opts.GenerateMaxTokens)
}

func (g *Gateway) complete(ctx context.Context, user string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.opts.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: wireTemperature(g.opts.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	g.logger.Debug("llm: completion done",
		"model", g.opts.Model,
		"tokens", resp.Usage.TotalTokens,
		"duration", time.Since(start))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// wireTemperature maps an explicit zero to the smallest non-zero value, since
// go-openai omits a zero temperature from the request.
func wireTemperature(t *float32) float32 {
	switch {
	case t == nil:
		return 0
	case *t == 0:
		return math.SmallestNonzeroFloat32
	default:
		return *t
	}
}
