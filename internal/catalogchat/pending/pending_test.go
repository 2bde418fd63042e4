package pending_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog/catalogtest"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

type fixture struct {
	mem  *memory.MemStore
	cat  *catalogtest.Catalog
	rec  *observability.Recorder
	now  time.Time
	m    *pending.Machine
	conv string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	price := 19.9
	f := &fixture{
		mem:  memory.NewMemStore(),
		cat:  catalogtest.New(catalog.Product{ID: 12, Name: "Camiseta", SKU: "CAM-1", Price: &price}),
		rec:  &observability.Recorder{},
		now:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		conv: memory.DefaultConversationID,
	}
	ids := 0
	f.m = pending.New(f.mem, f.cat,
		pending.WithClock(func() time.Time { return f.now }),
		pending.WithTTL(10*time.Minute),
		pending.WithSink(f.rec),
		pending.WithIDs(func() string { ids++; return "p" + string(rune('0'+ids)) }),
	)
	return f
}

func (f *fixture) state() memory.ConversationState {
	return f.mem.Read(context.Background(), f.conv)
}

func priceChange(v float64) action.Proposal {
	return action.Proposal{
		Kind:         action.KindUpdateProduct,
		HumanSummary: "Cambiar precio de #12 Camiseta a 25",
		Target:       action.Target{ProductID: 12},
		Changes:      map[string]any{action.FieldPrice: v},
	}
}

func TestPropose_StoresSinglePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env, err := f.m.Propose(ctx, f.state(), priceChange(25))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if env.ID != "p1" || env.Kind != action.EnvelopeKind || !env.ExpiresAt.Equal(f.now.Add(10*time.Minute)) {
		t.Fatalf("envelope = %+v", env)
	}
	st := f.state()
	if st.Pending == nil || st.Pending.ID != "p1" {
		t.Fatalf("pending not stored: %+v", st.Pending)
	}

	if _, err := f.m.Propose(ctx, st, priceChange(30)); !errors.Is(err, pending.ErrAlreadyPending) {
		t.Fatalf("second Propose err = %v, want ErrAlreadyPending", err)
	}
	if got := f.state().Pending.Action.Changes[action.FieldPrice]; got != 25.0 {
		t.Fatalf("pending was overwritten: price = %v", got)
	}
}

func TestPropose_RejectsInvalidProposal(t *testing.T) {
	f := newFixture(t)
	p := priceChange(25)
	p.Target = action.Target{}
	if _, err := f.m.Propose(context.Background(), f.state(), p); !errors.Is(err, action.ErrInvalidProposal) {
		t.Fatalf("err = %v", err)
	}
	if f.state().HasPending() {
		t.Fatal("invalid proposal was stored")
	}
}

func TestConfirm_AppliesAndClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.m.Propose(ctx, f.state(), priceChange(25))

	res, _, err := f.m.Confirm(ctx, f.state(), env.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.ProductID != 12 {
		t.Errorf("result = %+v", res)
	}
	p, _ := f.cat.Product(12)
	if p.Price == nil || *p.Price != 25 {
		t.Fatalf("price not applied: %v", p.Price)
	}
	st := f.state()
	if st.HasPending() {
		t.Fatal("pending not cleared")
	}
	if st.LastExecuted == nil || st.LastExecuted.Kind != action.KindUpdateProduct || st.LastExecuted.ProductID != 12 {
		t.Fatalf("last executed = %+v", st.LastExecuted)
	}

	names := f.rec.Names()
	if len(names) != 2 || names[0] != observability.EventPendingProposed || names[1] != observability.EventPendingConfirmed {
		t.Fatalf("events = %v", names)
	}
}

func TestConfirm_WrongIDIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.m.Propose(ctx, f.state(), priceChange(25))

	if _, _, err := f.m.Confirm(ctx, f.state(), "other"); !errors.Is(err, pending.ErrStalePending) {
		t.Fatalf("err = %v", err)
	}
	if len(f.cat.Applied) != 0 {
		t.Fatal("stale signal executed a proposal")
	}
	if !f.state().HasPending() {
		t.Fatal("stale signal cleared the pending action")
	}
}

func TestConfirm_RequiresPendingID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.m.Propose(ctx, f.state(), priceChange(25)); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, _, err := f.m.Confirm(ctx, f.state(), ""); !errors.Is(err, pending.ErrMissingID) {
		t.Fatalf("err = %v, want ErrMissingID", err)
	}
	if !f.state().HasPending() {
		t.Fatal("pending cleared by a confirm without id")
	}
	if p, _ := f.cat.Get(ctx, 12); *p.Price != 19.9 {
		t.Fatalf("price changed to %v", *p.Price)
	}
}

func TestConfirm_NothingPending(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.m.Confirm(context.Background(), f.state(), "p1"); !errors.Is(err, pending.ErrNoPending) {
		t.Fatalf("err = %v", err)
	}
}

func TestConfirm_ExecutorFailureKeepsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.m.Propose(ctx, f.state(), priceChange(25))
	f.cat.ApplyErr = errors.New("db locked")

	_, _, err := f.m.Confirm(ctx, f.state(), env.ID)
	if !errors.Is(err, pending.ErrExecute) {
		t.Fatalf("err = %v, want ErrExecute", err)
	}
	if st := f.state(); st.Pending == nil || st.Pending.ID != env.ID {
		t.Fatal("failed execution dropped the pending action")
	}

	f.cat.ApplyErr = nil
	if _, _, err := f.m.Confirm(ctx, f.state(), env.ID); err != nil {
		t.Fatalf("retry Confirm: %v", err)
	}
}

func TestConfirm_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.m.Propose(ctx, f.state(), priceChange(25))
	f.now = f.now.Add(11 * time.Minute)

	if _, _, err := f.m.Confirm(ctx, f.state(), env.ID); !errors.Is(err, pending.ErrStalePending) {
		t.Fatalf("err = %v", err)
	}
	if f.state().HasPending() {
		t.Fatal("expired proposal kept")
	}
	if len(f.cat.Applied) != 0 {
		t.Fatal("expired proposal executed")
	}
}

func TestExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.m.Propose(ctx, f.state(), priceChange(25))

	if cleared, err := f.m.Expire(ctx, f.state()); err != nil || cleared {
		t.Fatalf("fresh proposal: cleared=%v err=%v", cleared, err)
	}
	f.now = f.now.Add(time.Hour)
	if cleared, err := f.m.Expire(ctx, f.state()); err != nil || !cleared {
		t.Fatalf("old proposal: cleared=%v err=%v", cleared, err)
	}
	// A new proposal may replace an expired one.
	if _, err := f.m.Propose(ctx, f.state(), priceChange(30)); err != nil {
		t.Fatalf("Propose after expiry: %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.m.Propose(ctx, f.state(), priceChange(25))

	if _, err := f.m.Cancel(ctx, f.state(), "nope"); !errors.Is(err, pending.ErrStalePending) {
		t.Fatalf("wrong id: err = %v", err)
	}
	got, err := f.m.Cancel(ctx, f.state(), "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.ID != env.ID || f.state().HasPending() {
		t.Fatalf("cancel did not clear: %+v", f.state().Pending)
	}
	if len(f.cat.Applied) != 0 {
		t.Fatal("cancel executed the proposal")
	}
	if _, err := f.m.Cancel(ctx, f.state(), ""); !errors.Is(err, pending.ErrNoPending) {
		t.Fatalf("second cancel: err = %v", err)
	}
}

func TestTextReplies(t *testing.T) {
	for _, msg := range []string{"sí", "Sí, confirmo", "confirmo", "ok", "dale!"} {
		if !pending.IsTextConfirmation(textnorm.Normalize(msg)) {
			t.Errorf("IsTextConfirmation(%q) = false", msg)
		}
	}
	for _, msg := range []string{"no", "cancelar", "Cancela eso", "no, gracias", "mejor no"} {
		if !pending.IsTextCancellation(textnorm.Normalize(msg)) {
			t.Errorf("IsTextCancellation(%q) = false", msg)
		}
	}
	for _, msg := range []string{"cuántos productos sin precio hay en total", "cambia el precio a 30", "nombre", "no tienen precio?", "¿no hay stock?"} {
		n := textnorm.Normalize(msg)
		if pending.IsTextCancellation(n) || pending.IsTextConfirmation(n) {
			t.Errorf("%q read as a yes/no reply", msg)
		}
	}
}

func TestProposalResponse(t *testing.T) {
	env := action.Envelope{ID: "p9", Kind: action.EnvelopeKind, Action: priceChange(25)}
	r, err := pending.ProposalResponse(env)
	if err != nil {
		t.Fatalf("ProposalResponse: %v", err)
	}
	if r.Mode != response.ModeExecute || r.Confirmation == nil || !r.Confirmation.Required || r.Confirmation.PendingID != "p9" {
		t.Fatalf("response = %+v", r)
	}
	if len(r.Actions) != 1 {
		t.Fatalf("actions = %d", len(r.Actions))
	}
}
