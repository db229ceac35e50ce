package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"companionradar/internal/resilience/circuitbreaker"
	"companionradar/internal/resilience/retry"
)

// ClaudeProvider implements ChatProvider using Anthropic's Messages API.
type ClaudeProvider struct {
	client         anthropic.Client
	model          string
	maxTokens      int
	timeout        time.Duration
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewClaudeProvider builds a ClaudeProvider with the given API key and model.
func NewClaudeProvider(apiKey, model string, maxTokens int, timeout time.Duration) *ClaudeProvider {
	return newClaudeProviderWithClient(anthropic.NewClient(option.WithAPIKey(apiKey)), model, maxTokens, timeout)
}

// newClaudeProviderWithClient lets tests inject a client pointed at a local
// httptest server instead of the real API.
func newClaudeProviderWithClient(client anthropic.Client, model string, maxTokens int, timeout time.Duration) *ClaudeProvider {
	return &ClaudeProvider{
		client:         client,
		model:          model,
		maxTokens:      maxTokens,
		timeout:        timeout,
		circuitBreaker: circuitbreaker.New(circuitbreaker.ClaudeAPIConfig()),
		retryConfig:    retry.AIAPIConfig(),
	}
}

// Complete issues one Messages.New request, protected by retry and
// circuit-breaker logic, combining system+user prompts the way the API
// expects (system goes in the request's System field).
func (p *ClaudeProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var result string
	retryErr := retry.WithBackoff(ctx, p.retryConfig, func() error {
		cbResult, err := p.circuitBreaker.Execute(func() (interface{}, error) {
			return p.doComplete(ctx, systemPrompt, userPrompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("claude circuit breaker open, request rejected",
					slog.String("service", "claude-api"),
					slog.String("state", p.circuitBreaker.State().String()))
				return fmt.Errorf("claude unavailable: circuit breaker open")
			}
			return err
		}
		result = cbResult.(string)
		return nil
	})
	if retryErr != nil {
		return "", fmt.Errorf("claude complete failed after retries: %w", retryErr)
	}
	return result, nil
}

func (p *ClaudeProvider) doComplete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	duration := time.Since(start)
	if err != nil {
		slog.ErrorContext(ctx, "claude completion failed",
			slog.Duration("duration", duration), slog.String("error", err.Error()))
		return "", fmt.Errorf("claude api error: %w", err)
	}
	if len(message.Content) == 0 {
		return "", fmt.Errorf("claude api returned empty response")
	}
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return "", fmt.Errorf("claude api returned unexpected response type")
	}
	slog.InfoContext(ctx, "claude completion succeeded",
		slog.Duration("duration", duration), slog.String("model", p.model))
	return textBlock.Text, nil
}
