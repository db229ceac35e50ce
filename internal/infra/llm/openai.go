package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"companionradar/internal/resilience/circuitbreaker"
	"companionradar/internal/resilience/retry"
)

// OpenAIProvider implements ChatProvider using OpenAI's chat completion API.
// Circuit breaker and retry logic mirror the teacher's summarizer adapters.
type OpenAIProvider struct {
	client         *openai.Client
	model          string
	timeout        time.Duration
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewOpenAIProvider builds an OpenAIProvider with the given API key and model.
func NewOpenAIProvider(apiKey, model string, timeout time.Duration) *OpenAIProvider {
	return newOpenAIProviderWithClient(openai.NewClient(apiKey), model, timeout)
}

// newOpenAIProviderWithClient lets tests inject a client pointed at a local
// httptest server instead of the real API.
func newOpenAIProviderWithClient(client *openai.Client, model string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		client:         client,
		model:          model,
		timeout:        timeout,
		circuitBreaker: circuitbreaker.New(circuitbreaker.OpenAIAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
	}
}

// Complete issues one chat completion request, protected by retry and
// circuit-breaker logic.
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var result string
	retryErr := retry.WithBackoff(ctx, p.retryConfig, func() error {
		cbResult, err := p.circuitBreaker.Execute(func() (interface{}, error) {
			return p.doComplete(ctx, systemPrompt, userPrompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("openai circuit breaker open, request rejected",
					slog.String("service", "openai-api"),
					slog.String("state", p.circuitBreaker.State().String()))
				return fmt.Errorf("openai unavailable: circuit breaker open")
			}
			return err
		}
		result = cbResult.(string)
		return nil
	})
	if retryErr != nil {
		return "", fmt.Errorf("openai complete failed after retries: %w", retryErr)
	}
	return result, nil
}

func (p *OpenAIProvider) doComplete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	duration := time.Since(start)
	if err != nil {
		slog.ErrorContext(ctx, "openai completion failed",
			slog.Duration("duration", duration), slog.String("error", err.Error()))
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api returned empty response")
	}
	slog.InfoContext(ctx, "openai completion succeeded",
		slog.Duration("duration", duration), slog.String("model", p.model))
	return resp.Choices[0].Message.Content, nil
}
