package coursequiz

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// CompletionProvider sends a prompt to a language model and returns the raw
// text reply. Implementations return a *ProviderError on failure or timeout.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const quizSystemPrompt = "You are an expert educator who writes high-quality multiple choice quizzes. " +
	"You only use the course content you are given and you always answer with valid JSON."

// OpenAICompleter generates text with the OpenAI chat completions API.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
	retry       RetryPolicy
	log         *Logger
}

// NewOpenAICompleter creates a completer from the OpenAI settings of cfg.
func NewOpenAICompleter(cfg OpenAIConfig, retry RetryPolicy, log *Logger) *OpenAICompleter {
	return &OpenAICompleter{
		client:      newOpenAIClient(cfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		retry:       retry,
		log:         log.With("component", "OpenAICompleter"),
	}
}

// Complete returns the content of the first choice.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	var content string
	err := c.retry.Do(ctx, c.log, "complete", func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: quizSystemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from %s", c.model)
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", &ProviderError{Provider: "openai", Op: "complete", Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return "", &ProviderError{Provider: "openai", Op: "complete", Err: fmt.Errorf("empty response from %s", c.model)}
	}

	c.log.Debug("Received completion", "model", c.model, "chars", len(content))
	return content, nil
}
