// Package openai adapts the OpenAI chat completions API to the orchestrator's
// ChatModel port.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/langflow/ai-teacher/internal/application/tools"
	"github.com/langflow/ai-teacher/internal/domain/conversation"
	"github.com/langflow/ai-teacher/pkg/logger"
	"github.com/langflow/ai-teacher/pkg/retry"
)

// ErrNoChoices is returned when the API answers without any choice.
var ErrNoChoices = errors.New("openai returned no choices")

// Config configures the chat model.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   "gpt-4o",
		Timeout: 90 * time.Second,
	}
}

// ChatModel implements orchestrator.ChatModel on top of go-openai.
type ChatModel struct {
	client  *goopenai.Client
	config  Config
	retrier *retry.Retrier
	log     *logger.Logger
}

// Option configures a ChatModel.
type Option func(*ChatModel)

// WithRetrier overrides the retry policy.
func WithRetrier(r *retry.Retrier) Option {
	return func(m *ChatModel) {
		if r != nil {
			m.retrier = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *ChatModel) {
		if l != nil {
			m.log = l
		}
	}
}

// NewChatModel creates a chat model client.
func NewChatModel(config Config, opts ...Option) *ChatModel {
	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Model == "" {
		config.Model = "gpt-4o"
	}

	m := &ChatModel{
		client:  goopenai.NewClientWithConfig(clientConfig),
		config:  config,
		retrier: retry.ModelRetrier(),
		log:     logger.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("chat_model"), logger.String("model", config.Model))
	m.retrier = m.retrier.With(retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		m.log.Warn("retrying chat completion",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}))
	return m
}

// Complete sends the conversation and tool definitions and returns the
// assistant message of the first choice.
func (m *ChatModel) Complete(ctx context.Context, messages []conversation.Message, defs []tools.Definition) (conversation.Message, error) {
	req := goopenai.ChatCompletionRequest{
		Model:    m.config.Model,
		Messages: toChatMessages(messages),
		Tools:    toTools(defs),
	}
	if m.config.Temperature > 0 {
		req.Temperature = m.config.Temperature
	}
	if m.config.MaxTokens > 0 {
		req.MaxCompletionTokens = m.config.MaxTokens
	}

	start := time.Now()
	resp, err := retry.DoWithData(ctx, m.retrier, func(ctx context.Context) (goopenai.ChatCompletionResponse, error) {
		resp, err := m.client.CreateChatCompletion(ctx, req)
		return resp, classify(ctx, err)
	})
	if err != nil {
		return conversation.Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return conversation.Message{}, ErrNoChoices
	}

	choice := resp.Choices[0]
	m.log.Debug("chat completion",
		logger.String("finish_reason", string(choice.FinishReason)),
		logger.Int("tool_calls", len(choice.Message.ToolCalls)),
		logger.Int("total_tokens", resp.Usage.TotalTokens),
		logger.Latency(time.Since(start)),
	)

	return fromChatMessage(choice.Message), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSION
// ══════════════════════════════════════════════════════════════════════════════

func toChatMessages(messages []conversation.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		cm := goopenai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Text(),
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == conversation.RoleTool {
			cm.Name = msg.ToolName
		}
		for _, tc := range msg.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func toTools(defs []tools.Definition) []goopenai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Schema(),
			},
		})
	}
	return out
}

func fromChatMessage(cm goopenai.ChatCompletionMessage) conversation.Message {
	var content *string
	if cm.Content != "" {
		c := cm.Content
		content = &c
	}

	if len(cm.ToolCalls) == 0 {
		return conversation.Message{Role: conversation.RoleAssistant, Content: content}
	}

	calls := make([]conversation.ToolCall, 0, len(cm.ToolCalls))
	for _, tc := range cm.ToolCalls {
		calls = append(calls, conversation.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return conversation.AssistantToolCalls(content, calls)
}

// classify marks transient API failures as retryable.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return retry.Permanent(err)
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if retryableStatus(apiErr.HTTPStatusCode) {
			return retry.Retryable(err)
		}
		return retry.Permanent(err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		if retryableStatus(reqErr.HTTPStatusCode) {
			return retry.Retryable(err)
		}
		return retry.Permanent(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retry.Retryable(err)
	}
	return retry.Permanent(err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
