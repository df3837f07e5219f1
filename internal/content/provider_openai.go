package content

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when the model responds with no choices.
var ErrEmptyCompletion = errors.New("empty completion from provider")

// OpenAIProvider is the OpenAI-backed Provider implementation.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for the given API key and model.
// Returns nil when no API key is configured, which the generator treats
// as template-only mode.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Complete submits the prompt as a single-turn chat completion and
// returns the raw response text.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}
