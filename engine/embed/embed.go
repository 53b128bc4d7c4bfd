// Package embed turns text into dense vectors for similarity search.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is the embedding model the trip collections were built with.
const DefaultModel = "BAAI/bge-m3"

// ErrEmptyEmbedding is returned when the provider answers without vectors.
var ErrEmptyEmbedding = errors.New("embed: empty embedding")

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// embeddingsAPI is the part of *openai.Client used here.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIOptions configures an OpenAI-compatible embeddings endpoint.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OpenAI calls any server speaking the OpenAI embeddings API.
type OpenAI struct {
	api   embeddingsAPI
	model string
}

// NewOpenAI builds an embedder over go-openai.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	return &OpenAI{api: openai.NewClientWithConfig(cfg), model: opts.Model}
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns vectors in input order regardless of the order the
// server lists them in.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := o.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts: %w", len(resp.Data), len(texts), ErrEmptyEmbedding)
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embed: vector %d: %w", i, ErrEmptyEmbedding)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// Normalize scales v to unit length in place and returns it. A zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) / n)
	}
	return v
}

// Normalized wraps e so every vector it returns has unit length.
func Normalized(e Embedder) Embedder { return normalized{e} }

type normalized struct{ next Embedder }

func (n normalized) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := n.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

func (n normalized) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vs, err := n.next.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		Normalize(v)
	}
	return vs, nil
}
