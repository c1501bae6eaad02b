package coursequiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OllamaEmbedder embeds text with a local Ollama server (POST /api/embed).
type OllamaEmbedder struct {
	client *resty.Client
	model  string
	retry  RetryPolicy
	log    *Logger
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an embedder for the server at baseURL.
func NewOllamaEmbedder(baseURL, model string, retry RetryPolicy, log *Logger) *OllamaEmbedder {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	return &OllamaEmbedder{
		client: client,
		model:  model,
		retry:  retry,
		log:    log.With("component", "OllamaEmbedder"),
	}
}

// Embed embeds a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var out [][]float32
	err := e.retry.Do(ctx, e.log, "embed", func(ctx context.Context) error {
		var body ollamaEmbedResponse
		resp, err := e.client.R().
			SetContext(ctx).
			SetBody(ollamaEmbedRequest{Model: e.model, Input: texts}).
			SetResult(&body).
			Post("/api/embed")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return &statusError{StatusCode: resp.StatusCode(), Body: resp.String()}
		}
		if len(body.Embeddings) != len(texts) {
			return fmt.Errorf("ollama returned %d embeddings for %d inputs", len(body.Embeddings), len(texts))
		}
		out = body.Embeddings
		return nil
	})
	if err != nil {
		return nil, &ProviderError{Provider: "ollama", Op: "embed", Err: err}
	}
	return out, nil
}
