package nlp

import (
	"context"
	"errors"
	"time"

	"github.com/bdobrica/catalogchat/common/retry"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
)

// DefaultTimeout bounds one model call, retries included.
const DefaultTimeout = 8 * time.Second

// Client wraps a Provider with the per-conversation rate limit, the daily
// token budget, a bounded retry and a hard timeout.
type Client struct {
	provider  Provider
	limiter   *RateLimiter
	budget    *TokenBudget
	retry     retry.Config
	timeout   func(ctx context.Context) time.Duration
	model     func(ctx context.Context) string
	maxTokens int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimiter enables the per-conversation call limit.
func WithRateLimiter(l *RateLimiter) ClientOption { return func(c *Client) { c.limiter = l } }

// WithTokenBudget enables the per-conversation daily token budget.
func WithTokenBudget(b *TokenBudget) ClientOption { return func(c *Client) { c.budget = b } }

// WithRetry replaces retry.DefaultConfig.
func WithRetry(cfg retry.Config) ClientOption { return func(c *Client) { c.retry = cfg } }

// WithTimeout resolves the call timeout per request.
func WithTimeout(f func(ctx context.Context) time.Duration) ClientOption {
	return func(c *Client) { c.timeout = f }
}

// WithModel resolves the model name per request. An empty name lets the
// provider pick its default.
func WithModel(f func(ctx context.Context) string) ClientOption {
	return func(c *Client) { c.model = f }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) ClientOption { return func(c *Client) { c.maxTokens = n } }

// NewClient returns a Client over p. A nil p yields a client whose calls
// fail with ErrNotConfigured.
func NewClient(p Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:  p,
		retry:     retry.DefaultConfig,
		timeout:   func(context.Context) time.Duration { return DefaultTimeout },
		model:     func(context.Context) string { return "" },
		maxTokens: 512,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a provider is wired.
func (c *Client) Configured() bool {
	return c != nil && c.provider != nil
}

func (c *Client) complete(ctx context.Context, conversationID string, msgs []Message, jsonMode bool) (*CompletionResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if c.limiter != nil && !c.limiter.Allow(conversationID) {
		return nil, ErrThrottled
	}
	if c.budget != nil && !c.budget.Allow(conversationID) {
		return nil, ErrThrottled
	}

	timeout := c.timeout(ctx)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := c.model(ctx)
	ctx, span := observability.StartSpan(ctx, "nlp.complete", observability.AttrModel.String(model))
	defer span.End()

	req := CompletionRequest{Model: model, Messages: msgs, MaxTokens: c.maxTokens, JSONMode: jsonMode}
	var resp *CompletionResponse
	err := retry.Do(ctx, c.retry, func() error {
		r, err := c.provider.Complete(ctx, req)
		if err != nil {
			if errors.Is(err, ErrRateLimit) {
				return retry.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	})
	observability.SetSpanStatus(ctx, err)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrMalformedOutput
	}
	if c.budget != nil {
		c.budget.RecordUsage(conversationID, resp.Usage.TotalTokens)
	}
	return resp, nil
}
