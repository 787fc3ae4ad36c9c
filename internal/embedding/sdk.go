package embedding

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
)

// SDK is an alternative OpenAI-backed Embedder that goes through
// github.com/sashabaranov/go-openai's client instead of OpenAI's hand-rolled
// HTTP request in openai.go — useful when a caller already configures that
// SDK for chat and wants embeddings through the same client/base-URL/retry
// settings rather than a second bespoke HTTP path.
type SDK struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
}

// NewSDK wires an SDK embedder against apiKey. baseURL overrides the
// default OpenAI endpoint when set (e.g. for an OpenAI-compatible gateway).
func NewSDK(apiKey, baseURL string, model openai.EmbeddingModel, dims int) *SDK {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &SDK{client: openai.NewClientWithConfig(cfg), model: model, dims: dims}
}

func (s *SDK) Dims() int    { return s.dims }
func (s *SDK) Name() string { return "sdk-" + string(s.model) }

func (s *SDK) Embed(texts []string) ([][]float32, error) {
	resp, err := s.client.CreateEmbeddings(context.Background(), openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      s.model,
		Dimensions: s.dims,
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// classifyOpenAIErr maps SDK errors onto spec.md §4.7's fatal-classification
// set (model-not-embedding, model-not-found) so EmbedClient's retry loop can
// short-circuit instead of burning attempts on an error that can't resolve
// itself.
func classifyOpenAIErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found"):
		return orbiterr.New(orbiterr.KindModelNotFound, "embedding.SDK.Embed", err)
	case strings.Contains(msg, "does not support") && strings.Contains(msg, "embed"):
		return orbiterr.New(orbiterr.KindInvalidEmbeddingModel, "embedding.SDK.Embed", err)
	default:
		return fmt.Errorf("embedding.SDK.Embed: %w", err)
	}
}
