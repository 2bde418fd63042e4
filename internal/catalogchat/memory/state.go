// Package memory keeps the durable per-conversation state: the last product
// talked about, the single pending proposal, the last executed action and
// the transient hints left by the previous turn.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
)

// DefaultConversationID is used when a request does not name one.
const DefaultConversationID = "default"

// ErrPendingExists is returned by Write when the patch would replace an
// unresolved pending action with a different one.
var ErrPendingExists = errors.New("memory: a different pending action already exists")

// Slots a clarification can wait for.
const (
	SlotField  = "field"
	SlotTarget = "target"
	SlotValue  = "value"
	SlotName   = "name"
)

// Draft is a partially resolved proposal carried across one clarification.
type Draft struct {
	Kind        action.Kind   `json:"kind"`
	Target      action.Target `json:"target"`
	ProductName string        `json:"product_name,omitempty"`
	Field       string        `json:"field,omitempty"`
	Value       any           `json:"value,omitempty"`
}

// Hints are signals from the previous turn. They are reset after any turn
// that does not end in a clarification.
type Hints struct {
	NeedsClarification bool     `json:"needs_clarification,omitempty"`
	AwaitingSlot       string   `json:"awaiting_slot,omitempty"`
	Question           string   `json:"question,omitempty"`
	Choices            []string `json:"choices,omitempty"`
	Draft              *Draft   `json:"draft,omitempty"`
	LastRoute          string   `json:"last_route,omitempty"`
}

// Empty reports whether no clarification is open.
func (h Hints) Empty() bool {
	return !h.NeedsClarification && h.AwaitingSlot == "" && h.Draft == nil && len(h.Choices) == 0
}

// Labels returns the hint names that may be shown to the model.
func (h Hints) Labels() []string {
	var out []string
	if h.NeedsClarification {
		out = append(out, "needs_clarification")
	}
	if h.AwaitingSlot != "" {
		out = append(out, "awaiting_"+h.AwaitingSlot)
	}
	if h.LastRoute != "" {
		out = append(out, "last_route:"+h.LastRoute)
	}
	return out
}

// ConversationState is the durable state of one conversation.
type ConversationState struct {
	ConversationID string                 `json:"conversation_id"`
	LastProduct    *catalog.ProductRef    `json:"last_product,omitempty"`
	Pending        *action.Envelope       `json:"pending,omitempty"`
	LastExecuted   *action.ExecutedAction `json:"last_executed,omitempty"`
	Hints          Hints                  `json:"hints"`
	UpdatedAt      time.Time              `json:"updated_at,omitempty"`
}

// HasPending reports whether a proposal awaits confirmation.
func (s ConversationState) HasPending() bool {
	return s.Pending != nil
}

// Clone returns a deep copy so callers can never alias stored state.
func (s ConversationState) Clone() ConversationState {
	out := s
	if s.LastProduct != nil {
		ref := *s.LastProduct
		out.LastProduct = &ref
	}
	if s.Pending != nil {
		env := *s.Pending
		env.Action = cloneProposal(env.Action)
		out.Pending = &env
	}
	if s.LastExecuted != nil {
		ex := *s.LastExecuted
		out.LastExecuted = &ex
	}
	out.Hints = s.Hints.clone()
	return out
}

func (h Hints) clone() Hints {
	out := h
	out.Choices = append([]string(nil), h.Choices...)
	if h.Draft != nil {
		d := *h.Draft
		out.Draft = &d
	}
	return out
}

func cloneProposal(p action.Proposal) action.Proposal {
	if p.Changes != nil {
		changes := make(map[string]any, len(p.Changes))
		for k, v := range p.Changes {
			changes[k] = v
		}
		p.Changes = changes
	}
	if p.ProductData != nil {
		d := *p.ProductData
		p.ProductData = &d
	}
	return p
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	LastProduct  *catalog.ProductRef
	Pending      *action.Envelope
	LastExecuted *action.ExecutedAction
	// Hints replaces the hints wholesale; &Hints{} clears them.
	Hints *Hints
}

// Apply merges p into s. It refuses to replace one pending action with a
// different one.
func (p Patch) Apply(s *ConversationState) error {
	if p.Pending != nil && s.Pending != nil && s.Pending.ID != p.Pending.ID {
		return ErrPendingExists
	}
	if p.LastProduct != nil {
		ref := *p.LastProduct
		s.LastProduct = &ref
	}
	if p.Pending != nil {
		env := *p.Pending
		env.Action = cloneProposal(env.Action)
		s.Pending = &env
	}
	if p.LastExecuted != nil {
		ex := *p.LastExecuted
		s.LastExecuted = &ex
	}
	if p.Hints != nil {
		s.Hints = p.Hints.clone()
	}
	return nil
}

// Store is the conversation state contract.
type Store interface {
	// Read never fails; a missing or unreadable conversation yields an
	// empty state for id.
	Read(ctx context.Context, id string) ConversationState
	Write(ctx context.Context, id string, patch Patch) error
	ClearPending(ctx context.Context, id, reason string) error
}

func normalizeID(id string) string {
	if id == "" {
		return DefaultConversationID
	}
	return id
}
