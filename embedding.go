package coursequiz

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// EmbeddingProvider turns text into vectors. Implementations return a
// *ProviderError on failure or timeout.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder embeds text with the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	retry  RetryPolicy
	log    *Logger
}

// NewOpenAIEmbedder creates an embedder from the OpenAI settings of cfg.
func NewOpenAIEmbedder(cfg OpenAIConfig, retry RetryPolicy, log *Logger) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: newOpenAIClient(cfg),
		model:  openai.EmbeddingModel(cfg.EmbeddingModel),
		retry:  retry,
		log:    log.With("component", "OpenAIEmbedder"),
	}
}

func newOpenAIClient(cfg OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	// Per-attempt deadlines come from RetryPolicy via the request context.
	clientCfg.HTTPClient = &http.Client{}
	return openai.NewClientWithConfig(clientCfg)
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request; the result is index-aligned with texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var out [][]float32
	err := e.retry.Do(ctx, e.log, "embed", func(ctx context.Context) error {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: e.model,
		})
		if err != nil {
			return err
		}
		vecs := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(texts) {
				return fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vecs[d.Index] = d.Embedding
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return fmt.Errorf("missing embedding for input %d", i)
			}
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, &ProviderError{Provider: "openai", Op: "embed", Err: err}
	}

	e.log.Debug("Embedded batch", "inputs", len(texts), "model", string(e.model))
	return out, nil
}
