package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to OpenAI or Azure OpenAI through the chat completions
// API in JSON mode.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAIProvider(client *openai.Client, model string, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		client:      client,
		model:       model,
		temperature: temperature,
	}
}

// NewOpenAIClient returns an OpenAI client, or an Azure OpenAI client when
// azureEndpoint is set.
func NewOpenAIClient(apiKey, azureEndpoint string) *openai.Client {
	if azureEndpoint != "" {
		return openai.NewClientWithConfig(openai.DefaultAzureConfig(apiKey, azureEndpoint))
	}
	return openai.NewClient(apiKey)
}

func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (Completion, error) {
	resp, err := p.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: system,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: user,
				},
			},
			Temperature: p.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return Completion{}, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("no choices received from OpenAI API: %w", ErrEmptyResponse)
	}

	return Completion{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// classifyOpenAIError wraps HTTP 429 and rate_limit coded errors in
// *RateLimitError.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := strings.ToLower(fmt.Sprint(apiErr.Code))
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			strings.HasPrefix(code, "rate_limit") ||
			strings.HasPrefix(strings.ToLower(apiErr.Type), "rate_limit") {
			return &RateLimitError{Err: err}
		}
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Err: err}
	}
	return err
}
