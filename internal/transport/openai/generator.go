// Package openai implements the generation and embedding providers over an
// OpenAI-compatible API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
	"github.com/quarry-ai/quarry/internal/metrics"
	"github.com/quarry-ai/quarry/internal/retry"
)

// Generator is a generation provider using the OpenAI-compatible chat API.
type Generator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generation provider. The client
// is a stateless HTTP wrapper: construct once at startup, reuse for the
// process lifetime, no teardown required.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Complete implements domain.Generator for non-streaming internal reasoning.
func (g *Generator) Complete(
	ctx context.Context, systemPrompt string, messages []domain.Message, params domain.SamplingParams,
) (string, error) {
	req := g.buildRequest(systemPrompt, messages, params)

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationProviderError)
	}

	metrics.LLMRequestsTotal.WithLabelValues(g.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(g.model).Observe(duration.Seconds())

	return resp.Choices[0].Message.Content, nil
}

// Stream implements domain.Generator for user-facing answers. The returned
// channel is closed after a Done or Err event.
func (g *Generator) Stream(
	ctx context.Context, systemPrompt string, messages []domain.Message, params domain.SamplingParams,
) (<-chan domain.StreamEvent, error) {
	req := g.buildRequest(systemPrompt, messages, params)
	req.Stream = true

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return nil, classifyError(err)
	}

	events := make(chan domain.StreamEvent, 16)

	go func() {
		defer close(events)
		defer stream.Close()

		start := time.Now()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				metrics.LLMRequestsTotal.WithLabelValues(g.model, "success").Inc()
				metrics.LLMRequestDuration.WithLabelValues(g.model).Observe(time.Since(start).Seconds())
				events <- domain.StreamEvent{Done: true}
				return
			}
			if err != nil {
				metrics.LLMRequestsTotal.WithLabelValues(g.model, "error").Inc()
				events <- domain.StreamEvent{Err: classifyError(err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				events <- domain.StreamEvent{Token: delta}
			}
		}
	}()

	return events, nil
}

func (g *Generator) buildRequest(
	systemPrompt string, messages []domain.Message, params domain.SamplingParams,
) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: params.Temperature,
		MaxTokens:   maxTokens,
	}
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// classifyError maps API failures onto the retry taxonomy: rate limits, 5xx
// and connection errors are transient, everything else fails immediately.
func classifyError(err error) error {
	wrapped := fmt.Errorf("%w: %w", domain.ErrGenerationProviderError, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return retry.Transient(wrapped)
		}
		return wrapped
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500 {
			return retry.Transient(wrapped)
		}
		return wrapped
	}

	// No structured API error: connection reset, timeout, DNS.
	return retry.Transient(wrapped)
}
