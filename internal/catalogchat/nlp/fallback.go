package nlp

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bdobrica/catalogchat/common/redact"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
)

// maxReplyRunes caps a fallback reply.
const maxReplyRunes = 600

// Fallback produces a free-text reply. It returns a string only, so it
// cannot propose or execute anything.
type Fallback struct {
	client *Client
}

// NewFallback returns a Fallback over client.
func NewFallback(client *Client) *Fallback {
	return &Fallback{client: client}
}

// Reply asks the model for a short conversational answer.
func (f *Fallback) Reply(ctx context.Context, conversationID, message string, lite catalogctx.LiteContext) (string, error) {
	resp, err := f.client.complete(ctx, conversationID, FallbackMessages(message, lite), false)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(redact.Secrets(resp.Content))
	if text == "" {
		return "", ErrMalformedOutput
	}
	if utf8.RuneCountInString(text) > maxReplyRunes {
		text = string([]rune(text)[:maxReplyRunes]) + "…"
	}
	return text, nil
}
