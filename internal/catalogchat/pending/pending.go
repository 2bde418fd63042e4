// Package pending is the confirmation state machine for catalog mutations.
//
// A conversation moves from no pending action to awaiting_confirmation when
// a flow proposes a complete change. Only an explicit confirm signal that
// names the pending ID executes it; free text can cancel but never confirm.
// Expired proposals are dropped before routing.
package pending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
)

// DefaultTTL is how long a proposal waits for confirmation.
const DefaultTTL = 30 * time.Minute

var (
	// ErrAlreadyPending is returned by Propose while another proposal is
	// unresolved.
	ErrAlreadyPending = errors.New("pending: a proposal is already awaiting confirmation")
	// ErrNoPending is returned when a signal arrives with nothing pending.
	ErrNoPending = errors.New("pending: nothing awaiting confirmation")
	// ErrStalePending is returned when a signal names a different or
	// expired proposal.
	ErrStalePending = errors.New("pending: signal does not match the pending proposal")
	// ErrMissingID is returned by Confirm when the signal names no proposal.
	ErrMissingID = errors.New("pending: confirmation must name the pending proposal")
	// ErrExecute wraps executor failures. The proposal stays pending.
	ErrExecute = errors.New("pending: execute failed")
)

// Reasons passed to memory.Store.ClearPending.
const (
	ReasonConfirmed = "confirmed"
	ReasonCancelled = "cancelled"
	ReasonExpired   = "expired"
)

// SignalType names an out-of-band control event.
type SignalType string

const (
	SignalConfirm SignalType = "confirm"
	SignalCancel  SignalType = "cancel"
)

// Signal is a confirm or cancel control event reported by the UI.
type Signal struct {
	Type      SignalType `json:"type"`
	PendingID string     `json:"pending_id"`
}

// Valid reports whether s names a known signal type.
func (s Signal) Valid() bool {
	return s.Type == SignalConfirm || s.Type == SignalCancel
}

// Machine owns every transition of the pending action.
type Machine struct {
	mem   memory.Store
	exec  catalog.Executor
	sink  observability.Sink
	ttl   func(ctx context.Context) time.Duration
	now   func() time.Time
	newID func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithTTL sets a fixed time to live.
func WithTTL(ttl time.Duration) Option {
	return func(m *Machine) { m.ttl = func(context.Context) time.Duration { return ttl } }
}

// WithTTLFunc reads the time to live on every proposal, so runtime
// configuration changes apply without a restart.
func WithTTLFunc(f func(ctx context.Context) time.Duration) Option {
	return func(m *Machine) { m.ttl = f }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDs overrides the uuid generator.
func WithIDs(newID func() string) Option {
	return func(m *Machine) { m.newID = newID }
}

// WithSink sets the event sink. It is wrapped with observability.Safe.
func WithSink(s observability.Sink) Option {
	return func(m *Machine) { m.sink = s }
}

// New returns a Machine storing state in mem and applying confirmed
// proposals through exec.
func New(mem memory.Store, exec catalog.Executor, opts ...Option) *Machine {
	m := &Machine{
		mem:   mem,
		exec:  exec,
		sink:  observability.Nop,
		ttl:   func(context.Context) time.Duration { return DefaultTTL },
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sink = observability.Safe(m.sink)
	return m
}

// Propose stores p as the pending action of the conversation in state.
func (m *Machine) Propose(ctx context.Context, state memory.ConversationState, p action.Proposal) (action.Envelope, error) {
	if state.Pending != nil && !state.Pending.Expired(m.now()) {
		return action.Envelope{}, ErrAlreadyPending
	}
	if err := p.Validate(); err != nil {
		return action.Envelope{}, fmt.Errorf("pending: propose: %w", err)
	}
	if state.Pending != nil {
		if _, err := m.Expire(ctx, state); err != nil {
			return action.Envelope{}, err
		}
	}

	ttl := m.ttl(ctx)
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := m.now().UTC()
	env := action.Envelope{
		ID:        m.newID(),
		Kind:      action.EnvelopeKind,
		Action:    p,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.mem.Write(ctx, state.ConversationID, memory.Patch{Pending: &env}); err != nil {
		if errors.Is(err, memory.ErrPendingExists) {
			return action.Envelope{}, ErrAlreadyPending
		}
		return action.Envelope{}, fmt.Errorf("pending: propose: %w", err)
	}
	_ = m.sink.Emit(ctx, observability.EventPendingProposed, map[string]any{
		"pending_id": env.ID,
		"kind":       string(p.Kind),
		"target":     p.Target.String(),
		"summary":    p.HumanSummary,
	})
	return env, nil
}

// Expire clears the pending action of state when its deadline passed. It
// reports whether anything was cleared.
func (m *Machine) Expire(ctx context.Context, state memory.ConversationState) (bool, error) {
	if state.Pending == nil || !state.Pending.Expired(m.now()) {
		return false, nil
	}
	if err := m.mem.ClearPending(ctx, state.ConversationID, ReasonExpired); err != nil {
		return false, fmt.Errorf("pending: expire: %w", err)
	}
	_ = m.sink.Emit(ctx, observability.EventPendingExpired, map[string]any{
		"pending_id": state.Pending.ID,
		"kind":       string(state.Pending.Action.Kind),
	})
	return true, nil
}

// Confirm executes the pending proposal named by pendingID. On executor
// failure the proposal stays pending and the error wraps ErrExecute.
func (m *Machine) Confirm(ctx context.Context, state memory.ConversationState, pendingID string) (catalog.Result, action.Envelope, error) {
	env, err := m.current(state, pendingID)
	if err != nil {
		return catalog.Result{}, action.Envelope{}, err
	}
	if pendingID == "" {
		return catalog.Result{}, env, ErrMissingID
	}
	if env.Expired(m.now()) {
		if _, err := m.Expire(ctx, state); err != nil {
			return catalog.Result{}, env, err
		}
		return catalog.Result{}, env, ErrStalePending
	}

	res, err := m.exec.Apply(ctx, env.Action)
	if err != nil {
		_ = m.sink.Emit(ctx, observability.EventPendingFailed, map[string]any{
			"pending_id": env.ID,
			"kind":       string(env.Action.Kind),
			"target":     env.Action.Target.String(),
			"error":      err.Error(),
		})
		return catalog.Result{}, env, fmt.Errorf("%w: %w", ErrExecute, err)
	}

	if err := m.mem.ClearPending(ctx, state.ConversationID, ReasonConfirmed); err != nil {
		return res, env, fmt.Errorf("pending: confirm: %w", err)
	}
	summary := res.Summary
	if summary == "" {
		summary = env.Action.HumanSummary
	}
	patch := memory.Patch{LastExecuted: &action.ExecutedAction{
		Kind:      env.Action.Kind,
		Summary:   summary,
		ProductID: res.ProductID,
		At:        m.now().UTC(),
	}}
	if ref := executedRef(env.Action, res, state); ref != nil {
		patch.LastProduct = ref
	}
	if err := m.mem.Write(ctx, state.ConversationID, patch); err != nil {
		return res, env, fmt.Errorf("pending: confirm: %w", err)
	}
	_ = m.sink.Emit(ctx, observability.EventPendingConfirmed, map[string]any{
		"pending_id": env.ID,
		"kind":       string(env.Action.Kind),
		"target":     env.Action.Target.String(),
		"product_id": res.ProductID,
	})
	return res, env, nil
}

// executedRef is the product the conversation talks about after a
// mutation. Deleted products are forgotten.
func executedRef(p action.Proposal, res catalog.Result, state memory.ConversationState) *catalog.ProductRef {
	switch p.Kind {
	case action.KindDeleteProduct:
		return nil
	case action.KindCreateProduct, action.KindCreateVariable:
		if res.ProductID == 0 || p.ProductData == nil {
			return nil
		}
		return &catalog.ProductRef{ID: res.ProductID, Name: p.ProductData.Name, SKU: p.ProductData.SKU, Price: p.ProductData.Price}
	}
	if state.LastProduct != nil && state.LastProduct.ID == res.ProductID {
		ref := *state.LastProduct
		if name, ok := p.Changes[action.FieldName].(string); ok {
			ref.Name = name
		}
		if n, ok := action.Number(p.Changes[action.FieldPrice]); ok {
			ref.Price = &n
		}
		if n, ok := action.Number(p.Changes[action.FieldStockQuantity]); ok {
			q := int(n)
			ref.Stock = &q
		}
		return &ref
	}
	return nil
}

// Cancel drops the pending proposal. An empty pendingID cancels whatever is
// pending, which is what a free-text "cancelar" means.
func (m *Machine) Cancel(ctx context.Context, state memory.ConversationState, pendingID string) (action.Envelope, error) {
	env, err := m.current(state, pendingID)
	if err != nil {
		return action.Envelope{}, err
	}
	if err := m.mem.ClearPending(ctx, state.ConversationID, ReasonCancelled); err != nil {
		return env, fmt.Errorf("pending: cancel: %w", err)
	}
	_ = m.sink.Emit(ctx, observability.EventPendingCancelled, map[string]any{
		"pending_id": env.ID,
		"kind":       string(env.Action.Kind),
	})
	return env, nil
}

func (m *Machine) current(state memory.ConversationState, pendingID string) (action.Envelope, error) {
	if state.Pending == nil {
		return action.Envelope{}, ErrNoPending
	}
	if pendingID != "" && pendingID != state.Pending.ID {
		return *state.Pending, ErrStalePending
	}
	return *state.Pending, nil
}

var (
	confirmPhrases = []string{"si", "confirmo", "confirmar", "confirma", "dale", "ok", "okay", "de acuerdo", "adelante",
		"hazlo", "claro", "yes", "procede", "aplica", "aplicalo", "ejecuta", "ejecutalo", "perfecto"}
	cancelPhrases = []string{"no", "cancelar", "cancela", "cancelalo", "cancelo", "anula", "anular", "olvidalo", "olvida",
		"mejor no", "no gracias", "no lo hagas", "deten", "detente", "stop", "cancel"}
)

// shortReply bounds how long a yes/no reply may be.
const shortReply = 4

// IsTextConfirmation reports whether a short reply reads as "yes". It never
// confirms anything by itself.
func IsTextConfirmation(normalized string) bool {
	return len(textnorm.Tokens(normalized)) <= shortReply && textnorm.IsOneOf(normalized, confirmPhrases...)
}

// IsTextCancellation reports whether a short reply asks to cancel
// ("no", "cancela eso", "no, gracias"). Questions never cancel.
func IsTextCancellation(normalized string) bool {
	if strings.ContainsAny(normalized, "?¿") {
		return false
	}
	return len(textnorm.Tokens(normalized)) <= shortReply && textnorm.IsOneOf(normalized, cancelPhrases...)
}
