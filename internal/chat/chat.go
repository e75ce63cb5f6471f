// Package chat relays a single user message to an OpenAI-compatible chat
// completion API under a fixed financial-assistant prompt.
package chat

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"findash/internal/finance"
	appLog "findash/internal/log"
)

// FallbackReply is returned when the model answers with no content.
const FallbackReply = "I apologize, but I couldn't generate a response. Please try again."

const basePrompt = "You are a helpful financial assistant. You help users understand their finances, " +
	"provide insights about their spending patterns, and offer advice on budgeting and saving. " +
	"Keep your responses concise, practical, and focused on actionable advice."

// ErrEmptyMessage rejects blank input before any upstream call.
var ErrEmptyMessage = errors.New("chat: empty message")

// Completer is the subset of *openai.Client the relay calls.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds the request parameters sent with every message.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// wireTemperature keeps an explicit zero on the wire. The request field is
// omitempty, so 0 would otherwise fall back to the API default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

// UpstreamError wraps a failed completion call.
type UpstreamError struct {
	Err       error
	Retryable bool
}

func (e *UpstreamError) Error() string { return "chat upstream: " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// UserMessage is the text shown in place of a reply.
func (e *UpstreamError) UserMessage() string {
	if e.Retryable {
		return "The assistant took too long to respond. Please try again."
	}
	return "Failed to process chat message"
}

// NewOpenAIClient builds a go-openai client. An empty baseURL keeps the
// library default.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// Relay is stateless: each Reply carries only the system prompt and the
// current message.
type Relay struct {
	client Completer
	cfg    Config
	prompt string
}

func NewRelay(client Completer, cfg Config) *Relay {
	return &Relay{client: client, cfg: cfg, prompt: SystemPrompt()}
}

// SystemPrompt is the fixed instruction sent before every message.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\nThe dashboard tracks these categories:")
	for _, c := range finance.Categories() {
		b.WriteString("\n- ")
		b.WriteString(c)
	}
	return b.String()
}

// Reply returns the assistant's answer to message.
func (r *Relay) Reply(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.prompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: wireTemperature(r.cfg.Temperature),
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		ue := &UpstreamError{Err: err, Retryable: isTimeout(err)}
		appLog.Error("chat completion failed", err, "model", r.cfg.Model, "retryable", ue.Retryable)
		return "", ue
	}

	appLog.Debug("chat completion done",
		"model", r.cfg.Model,
		"elapsed_ms", time.Since(started).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
	)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return FallbackReply, nil
	}
	return resp.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var apiErr *openai.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 504
}
