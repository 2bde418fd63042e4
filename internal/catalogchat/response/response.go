// Package response defines the single envelope every route returns.
//
// Construction goes through Build (or the Consult, Clarify and Execute
// helpers) so that a response never pairs a read-only mode with actions.
package response

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
)

// ErrContractViolation marks a response that breaks the envelope rules.
var ErrContractViolation = errors.New("response: contract violation")

// Mode is the outcome class of a route.
type Mode string

const (
	ModeConsult Mode = "consult"
	ModeExecute Mode = "execute"
	ModeClarify Mode = "clarify"
)

// Meta keys set by the router and app.
const (
	MetaRoute          = "route"
	MetaTraceID        = "trace_id"
	MetaConversationID = "conversation_id"
	MetaPendingID      = "pending_id"
	MetaReason         = "reason"
)

// Confirmation is present only on execute responses.
type Confirmation struct {
	Required  bool   `json:"required"`
	PendingID string `json:"pending_id,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

// Clarification is present only on clarify responses.
type Clarification struct {
	Question     string   `json:"question"`
	NeededFields []string `json:"needed_fields"`
	Choices      []string `json:"choices,omitempty"`
}

// RouteResponse is the outbound envelope.
type RouteResponse struct {
	OK            bool              `json:"ok"`
	Mode          Mode              `json:"mode"`
	MessageToUser string            `json:"message_to_user"`
	Actions       []action.Proposal `json:"actions"`
	Confirmation  *Confirmation     `json:"confirmation,omitempty"`
	Clarification *Clarification    `json:"clarification,omitempty"`
	Meta          map[string]string `json:"meta"`
}

// Option customises Build.
type Option func(*RouteResponse)

// WithActions attaches proposals. Only valid for execute.
func WithActions(actions ...action.Proposal) Option {
	return func(r *RouteResponse) { r.Actions = append(r.Actions, actions...) }
}

// WithConfirmation attaches the confirmation block.
func WithConfirmation(c Confirmation) Option {
	return func(r *RouteResponse) { r.Confirmation = &c }
}

// WithClarification attaches the clarification block.
func WithClarification(c Clarification) Option {
	return func(r *RouteResponse) { r.Clarification = &c }
}

// WithMeta sets one meta label.
func WithMeta(key, value string) Option {
	return func(r *RouteResponse) { r.SetMeta(key, value) }
}

// WithFailure marks the response as not ok.
func WithFailure() Option {
	return func(r *RouteResponse) { r.OK = false }
}

// Build assembles and validates a response.
func Build(mode Mode, message string, opts ...Option) (*RouteResponse, error) {
	r := &RouteResponse{
		OK:            true,
		Mode:          mode,
		MessageToUser: message,
		Actions:       []action.Proposal{},
		Meta:          map[string]string{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Consult returns a read-only answer.
func Consult(message string, opts ...Option) (*RouteResponse, error) {
	return Build(ModeConsult, message, opts...)
}

// Clarify returns a question back to the user. needed lists the slots the
// answer should fill.
func Clarify(question string, needed []string, choices []string, opts ...Option) (*RouteResponse, error) {
	opts = append([]Option{WithClarification(Clarification{
		Question:     question,
		NeededFields: append([]string{}, needed...),
		Choices:      append([]string(nil), choices...),
	})}, opts...)
	return Build(ModeClarify, question, opts...)
}

// Execute returns a proposal that waits for confirmation under pendingID.
func Execute(message, pendingID, prompt string, p action.Proposal, opts ...Option) (*RouteResponse, error) {
	opts = append([]Option{
		WithActions(p),
		WithConfirmation(Confirmation{Required: true, PendingID: pendingID, Prompt: prompt}),
		WithMeta(MetaPendingID, pendingID),
	}, opts...)
	return Build(ModeExecute, message, opts...)
}

// Validate checks the envelope rules.
func Validate(r *RouteResponse) error {
	if r == nil {
		return fmt.Errorf("%w: nil response", ErrContractViolation)
	}
	if strings.TrimSpace(r.MessageToUser) == "" {
		return fmt.Errorf("%w: empty message_to_user", ErrContractViolation)
	}

	switch r.Mode {
	case ModeConsult, ModeClarify:
		if len(r.Actions) > 0 {
			return fmt.Errorf("%w: %s response carries %d actions", ErrContractViolation, r.Mode, len(r.Actions))
		}
		if r.Confirmation != nil {
			return fmt.Errorf("%w: %s response carries a confirmation block", ErrContractViolation, r.Mode)
		}
		if r.Mode == ModeConsult && r.Clarification != nil {
			return fmt.Errorf("%w: consult response carries a clarification block", ErrContractViolation)
		}
		if r.Mode == ModeClarify && (r.Clarification == nil || strings.TrimSpace(r.Clarification.Question) == "") {
			return fmt.Errorf("%w: clarify response without a question", ErrContractViolation)
		}
	case ModeExecute:
		if len(r.Actions) == 0 {
			return fmt.Errorf("%w: execute response without actions", ErrContractViolation)
		}
		if r.Confirmation == nil || !r.Confirmation.Required {
			return fmt.Errorf("%w: execute response without required confirmation", ErrContractViolation)
		}
		if r.Clarification != nil {
			return fmt.Errorf("%w: execute response carries a clarification block", ErrContractViolation)
		}
		for _, a := range r.Actions {
			if err := a.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrContractViolation, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrContractViolation, r.Mode)
	}
	return nil
}

// SetMeta sets a meta label, allocating the map when needed.
func (r *RouteResponse) SetMeta(key, value string) {
	if r.Meta == nil {
		r.Meta = map[string]string{}
	}
	r.Meta[key] = value
}

// Route returns the meta route label.
func (r *RouteResponse) Route() string {
	if r == nil || r.Meta == nil {
		return ""
	}
	return r.Meta[MetaRoute]
}

// AppendMessage adds a paragraph to message_to_user.
func (r *RouteResponse) AppendMessage(paragraph string) {
	if paragraph == "" {
		return
	}
	if r.MessageToUser == "" {
		r.MessageToUser = paragraph
		return
	}
	r.MessageToUser += "\n\n" + paragraph
}
