package advisory

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

// AnthropicMessager is the slice of the Anthropic SDK the client depends on.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient asks a Claude model for the assessment.
type AnthropicClient struct {
	messages    AnthropicMessager
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	rateLimit   *rate.Limiter
}

// NewAnthropicClient builds a client backed by the SDK's Messages service.
func NewAnthropicClient(config ChatConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	c := anthropic.NewClient(opts...)
	return NewAnthropicClientWithMessager(&c.Messages, config)
}

// NewAnthropicClientWithMessager wires a custom messager, used by tests.
func NewAnthropicClientWithMessager(messages AnthropicMessager, config ChatConfig) *AnthropicClient {
	model := anthropic.Model(config.Model)
	if config.Model == "" || strings.HasPrefix(config.Model, "deepseek") {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	return &AnthropicClient{
		messages:    messages,
		model:       model,
		maxTokens:   int64(config.MaxTokens),
		temperature: config.Temperature,
		rateLimit:   rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Name identifies the provider in logs.
func (a *AnthropicClient) Name() string {
	return "anthropic:" + string(a.model)
}

// Complete sends the exchange and concatenates the text blocks of the reply.
func (a *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := a.rateLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(a.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}
