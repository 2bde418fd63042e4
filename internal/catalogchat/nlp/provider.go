// Package nlp is the model-assisted part of routing.
//
// The model only proposes. Gate turns a completion into a catalog proposal
// after validating it against a closed JSON Schema, and that proposal can
// only ever reach awaiting_confirmation. Fallback produces a plain text
// reply and has no way to create a proposal at all.
//
// Both accept catalogctx.LiteContext and nothing richer: the model never
// sees catalog rows, secrets or the diagnostic context.
package nlp

import (
	"context"
	"errors"
)

var (
	// ErrRateLimit is returned when the upstream API reports HTTP 429.
	ErrRateLimit = errors.New("nlp: upstream rate limit exceeded")
	// ErrMalformedOutput is returned when the completion is not the JSON
	// object the prompt asked for.
	ErrMalformedOutput = errors.New("nlp: malformed model output")
	// ErrSchemaRejected is returned when the completion parses but falls
	// outside the allowlist schema. The result is discarded entirely.
	ErrSchemaRejected = errors.New("nlp: model output rejected by schema")
	// ErrNotConfigured is returned when no provider is wired.
	ErrNotConfigured = errors.New("nlp: model provider not configured")
	// ErrLowConfidence is returned for schema-valid results below
	// MinConfidence.
	ErrLowConfidence = errors.New("nlp: model confidence too low")
	// ErrNoIntent is returned when the model says the message is not a
	// catalog change.
	ErrNoIntent = errors.New("nlp: no actionable intent")
	// ErrThrottled is returned when the per-conversation rate limit or the
	// daily token budget is exhausted.
	ErrThrottled = errors.New("nlp: conversation throttled")
)

// Role is the role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a single model call.
type CompletionRequest struct {
	Model     string
	Messages  []Message
	MaxTokens int
	// JSONMode asks the provider for a JSON object response.
	JSONMode bool
}

// TokenUsage reports token consumption for budget tracking.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the model output.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Model        string
	Usage        TokenUsage
}

// Provider is a black-box text completion service. Implementations must be
// safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}
