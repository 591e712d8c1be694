package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/bryanwahyu/scribe-notes/internal/domain/ai"
	"github.com/bryanwahyu/scribe-notes/internal/infra/ai/prompt"
)

const (
	defaultModel     = "gpt-3.5-turbo"
	defaultMaxTokens = 2048
)

// Options configures the chat completion client.
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	// RequestsPerSecond caps outgoing calls; zero means unlimited.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

type Client struct {
	*openai.Client
	Model     string
	maxTokens int
	limiter   *rate.Limiter
}

func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		Client:    openai.NewClientWithConfig(cfg),
		Model:     model,
		maxTokens: maxTokens,
		limiter:   limiter,
	}
}

// Restructure sends the recognized text with the fixed notes prompt and
// returns the formatted completion.
func (c *Client) Restructure(ctx context.Context, text string) (string, error) {
	req := c.newRequest([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt(text)},
	})
	content, err := c.complete(ctx, req)
	if err != nil {
		return "", err
	}
	notes := prompt.FormatNotes(content)
	if notes == "" {
		return "", ai.ErrEmptyCompletion
	}
	return notes, nil
}

func (c *Client) newRequest(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.Model,
		Messages: messages,
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(c.Model) {
		req.MaxCompletionTokens = c.maxTokens
	} else {
		req.MaxTokens = c.maxTokens
	}
	return req
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if isQuotaError(err) {
			return "", fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func isQuotaError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
