package summary

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aura-webinar/meeting-pipeline/pkg/retry"
)

// Completer runs one chat completion. jsonMode asks the model for a JSON object reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error)
}

// ErrEmptyCompletion is returned when the model replies with no choices or empty content.
var ErrEmptyCompletion = errors.New("empty completion")

// OpenAI completes with the chat completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	policy      retry.Policy
}

// NewOpenAI wraps an API client. model defaults to gpt-4o-mini.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: client, model: model, maxTokens: 2000, temperature: 0.3, policy: retry.Default}
}

func (o *OpenAI) Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	var resp openai.ChatCompletionResponse
	err := retry.Do(ctx, o.policy, func() error {
		var err error
		resp, err = o.client.CreateChatCompletion(ctx, req)
		return retry.Classify(err, statusOf(err))
	}, nil)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
