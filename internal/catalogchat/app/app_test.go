package app_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/app"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/nlp"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/queries"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

type fixture struct {
	app *app.App
	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T, provider nlp.Provider, products ...catalog.Product) *fixture {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "catalogchat.db")
	cfg.Chat.Strict = true
	cfg.Provider = provider

	f := &fixture{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	a, err := app.New(cfg, app.WithClock(f.clock))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	f.app = a

	if len(products) == 0 {
		products = []catalog.Product{
			{ID: 12, Name: "Camiseta Azul", SKU: "CAM-001", Price: fptr(19.9), ManageStock: true, StockQuantity: iptr(10)},
			{ID: 13, Name: "Camiseta Roja", SKU: "CAM-002"},
			{ID: 14, Name: "Gorra", SKU: "GOR-1", Price: fptr(12)},
		}
	}
	if _, err := a.Seed(context.Background(), products); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return f
}

func (f *fixture) say(t *testing.T, msg string) *response.RouteResponse {
	t.Helper()
	resp := f.app.Handle(context.Background(), app.Request{Message: msg})
	checkContract(t, resp)
	return resp
}

func (f *fixture) signal(t *testing.T, typ pending.SignalType, id string) *response.RouteResponse {
	t.Helper()
	resp := f.app.Handle(context.Background(), app.Request{Signal: &pending.Signal{Type: typ, PendingID: id}})
	checkContract(t, resp)
	return resp
}

func checkContract(t *testing.T, resp *response.RouteResponse) {
	t.Helper()
	if err := response.Validate(resp); err != nil {
		t.Fatalf("contract: %v (%+v)", err, resp)
	}
	if resp.Mode != response.ModeExecute && len(resp.Actions) != 0 {
		t.Fatalf("%s response carries actions", resp.Mode)
	}
	if resp.Mode == response.ModeExecute && (resp.Confirmation == nil || !resp.Confirmation.Required || len(resp.Actions) == 0) {
		t.Fatalf("execute response without confirmation: %+v", resp)
	}
}

func TestHandle_ConfirmOnlyBySignal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	resp := f.say(t, "cambia el precio del #12 a 25")
	if resp.Mode != response.ModeExecute {
		t.Fatalf("mode = %s (%q)", resp.Mode, resp.MessageToUser)
	}
	id := resp.Confirmation.PendingID

	resp = f.say(t, "sí")
	if resp.Mode == response.ModeExecute {
		t.Fatal("text reply produced an execute response")
	}
	if !f.app.HasPending(ctx, "") {
		t.Fatal("text reply resolved the proposal")
	}
	if p, _ := f.app.Catalog().Get(ctx, 12); *p.Price != 19.9 {
		t.Fatalf("price changed to %v before the signal", *p.Price)
	}

	resp = f.signal(t, pending.SignalConfirm, id)
	if resp.Route() != "pending.confirmed" {
		t.Fatalf("route = %q (%q)", resp.Route(), resp.MessageToUser)
	}
	p, err := f.app.Catalog().Get(ctx, 12)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *p.Price != 25 {
		t.Errorf("price = %v, want 25", *p.Price)
	}
	if f.app.HasPending(ctx, "") {
		t.Error("proposal still pending after confirmation")
	}
}

func TestHandle_CancelByText(t *testing.T) {
	f := newFixture(t, nil)
	f.say(t, "cambia el precio del #12 a 25")

	resp := f.say(t, "cancelar")
	if resp.Mode != response.ModeConsult {
		t.Fatalf("mode = %s", resp.Mode)
	}
	if f.app.HasPending(context.Background(), "") {
		t.Error("cancel did not clear the proposal")
	}
	if strings.Contains(resp.MessageToUser, "Sigue pendiente") {
		t.Error("reminder appended to the cancellation")
	}
}

func TestHandle_ReminderOnReadOnlyAnswers(t *testing.T) {
	f := newFixture(t, nil)
	f.say(t, "cambia el precio del #12 a 25")

	resp := f.say(t, "productos sin precio")
	if !strings.Contains(resp.MessageToUser, "Sigue pendiente") {
		t.Errorf("no reminder in %q", resp.MessageToUser)
	}

	resp = f.say(t, "cambia el stock del #13 a 5")
	if strings.Count(resp.MessageToUser, "Cambiar precio") != 1 {
		t.Errorf("pending summary repeated: %q", resp.MessageToUser)
	}
}

func TestHandle_ExpiredProposalIsDropped(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.say(t, "cambia el precio del #12 a 25")
	id := resp.Confirmation.PendingID

	f.advance(pending.DefaultTTL + time.Minute)
	resp = f.say(t, "productos sin precio")
	if !strings.Contains(resp.MessageToUser, pending.ExpiredMessage) {
		t.Errorf("no expiry notice in %q", resp.MessageToUser)
	}
	if f.app.HasPending(context.Background(), "") {
		t.Fatal("expired proposal kept")
	}

	resp = f.signal(t, pending.SignalConfirm, id)
	if resp.Route() != "pending.stale" {
		t.Errorf("route = %q", resp.Route())
	}
	if p, _ := f.app.Catalog().Get(context.Background(), 12); *p.Price != 19.9 {
		t.Error("expired proposal applied")
	}
}

func TestHandle_ClarificationSurvivesStorage(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.say(t, "cambia el precio del #12")
	if resp.Mode != response.ModeClarify {
		t.Fatalf("mode = %s", resp.Mode)
	}
	resp = f.say(t, "30")
	if resp.Mode != response.ModeExecute {
		t.Fatalf("mode = %s (%q)", resp.Mode, resp.MessageToUser)
	}
	a := resp.Actions[0]
	if a.Target.ProductID != 12 || a.Changes[action.FieldPrice] != 30.0 {
		t.Errorf("action = %+v", a)
	}
}

func TestHandle_ReadOnlyQueryIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	first := f.say(t, "productos sin precio lista")
	second := f.say(t, "productos sin precio lista")
	if first.MessageToUser != second.MessageToUser {
		t.Errorf("answers differ:\n%s\n%s", first.MessageToUser, second.MessageToUser)
	}
}

func TestHandle_Tiering(t *testing.T) {
	var products []catalog.Product
	for i := 1; i <= 12; i++ {
		products = append(products, catalog.Product{ID: int64(i), Name: fmt.Sprintf("Producto %d", i)})
	}
	products = append(products, catalog.Product{ID: 20, Name: "Con precio", Price: fptr(5)})
	f := newFixture(t, nil, products...)

	resp := f.say(t, "productos sin precio")
	if strings.Contains(resp.MessageToUser, "•") || !strings.HasPrefix(resp.MessageToUser, "Hay 12 productos sin precio.") {
		t.Errorf("count answer = %q", resp.MessageToUser)
	}

	resp = f.say(t, "productos sin precio full")
	if n := strings.Count(resp.MessageToUser, "•"); n != 12 {
		t.Errorf("full listing has %d items, want 12", n)
	}

	empty := newFixture(t, nil, catalog.Product{ID: 1, Name: "Con precio", Price: fptr(5)})
	resp = empty.say(t, "productos sin precio")
	if resp.MessageToUser != queries.EmptyMessage("sin precio") {
		t.Errorf("empty answer = %q", resp.MessageToUser)
	}
}

func TestHandle_TotalFailureNeverExecutes(t *testing.T) {
	down := nlp.ProviderFunc(func(context.Context, nlp.CompletionRequest) (*nlp.CompletionResponse, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	f := newFixture(t, down)
	for _, msg := range []string{"xyzzy plugh", "algo que nadie entiende", "¿?", ""} {
		resp := f.say(t, msg)
		if resp.Mode == response.ModeExecute {
			t.Errorf("%q: execute on total failure", msg)
		}
	}
	if f.app.HasPending(context.Background(), "") {
		t.Error("total failure left a pending proposal")
	}
}

func TestHandle_ModelSeesOnlyLiteContext(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	spy := nlp.ProviderFunc(func(_ context.Context, req nlp.CompletionRequest) (*nlp.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range req.Messages {
			seen = append(seen, m.Content)
		}
		if req.JSONMode {
			return &nlp.CompletionResponse{Content: `{"intent":"none","confidence":0.9}`}, nil
		}
		return &nlp.CompletionResponse{Content: "No estoy seguro, ¿puedes reformularlo?"}, nil
	})
	f := newFixture(t, spy)
	f.say(t, "precio del #12")
	f.say(t, "qué opinas del clima de hoy")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("model never called")
	}
	for _, content := range seen {
		for _, key := range []string{"product_categories", "\"categories\"", "\"health\"", "\"examples\"", "out_of_stock", "CAM-002"} {
			if strings.Contains(content, key) {
				t.Errorf("model payload contains %s:\n%s", key, content)
			}
		}
	}
}

func TestHandle_AllowlistRejectsUnknownKind(t *testing.T) {
	bad := nlp.ProviderFunc(func(_ context.Context, req nlp.CompletionRequest) (*nlp.CompletionResponse, error) {
		if req.JSONMode {
			return &nlp.CompletionResponse{Content: `{"intent":"action","kind":"drop_catalog","target":{"product_id":12},"summary":"x","confidence":0.99}`}, nil
		}
		return &nlp.CompletionResponse{Content: "Puedo ayudarte con consultas y cambios del catálogo."}, nil
	})
	f := newFixture(t, bad)

	resp := f.say(t, "haz lo que quieras con la tienda")
	if resp.Mode == response.ModeExecute || resp.Route() != "fallback.model" {
		t.Fatalf("got %s via %q", resp.Mode, resp.Route())
	}
	if f.app.HasPending(context.Background(), "") {
		t.Fatal("rejected intent created a pending proposal")
	}
}

func TestHandle_MetaLabels(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.app.Handle(context.Background(), app.Request{ConversationID: "tab-2", Message: "ayuda"})
	if resp.Meta[response.MetaConversationID] != "tab-2" {
		t.Errorf("conversation_id = %q", resp.Meta[response.MetaConversationID])
	}
	if resp.Meta[response.MetaTraceID] == "" {
		t.Error("trace_id missing")
	}
	if resp.Route() != "info.help" {
		t.Errorf("route = %q", resp.Route())
	}

	resp = f.say(t, "hola")
	if resp.Meta[response.MetaConversationID] != "default" {
		t.Errorf("default conversation_id = %q", resp.Meta[response.MetaConversationID])
	}
}

func TestHandle_ConversationsAreIndependent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.app.Handle(ctx, app.Request{ConversationID: "a", Message: "cambia el precio del #12 a 25"})

	if f.app.HasPending(ctx, "b") {
		t.Fatal("proposal leaked into another conversation")
	}
	resp := f.app.Handle(ctx, app.Request{ConversationID: "b", Message: "cambia el precio del #14 a 9"})
	if resp.Mode != response.ModeExecute {
		t.Fatalf("mode = %s (%q)", resp.Mode, resp.MessageToUser)
	}
}

func TestHandle_ConcurrentTurnsKeepOneProposal(t *testing.T) {
	f := newFixture(t, nil)
	var wg sync.WaitGroup
	results := make(chan *response.RouteResponse, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- f.app.Handle(context.Background(), app.Request{Message: fmt.Sprintf("cambia el stock del #12 a %d", i+1)})
		}(i)
	}
	wg.Wait()
	close(results)

	executes := 0
	for resp := range results {
		if resp.Mode == response.ModeExecute {
			executes++
		}
	}
	if executes != 1 {
		t.Errorf("%d turns proposed, want exactly 1", executes)
	}
}

func TestDiagnose(t *testing.T) {
	f := newFixture(t, nil)
	f.say(t, "precio del #14")

	full, err := f.app.Diagnose(context.Background(), "", 3)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if full.Stock.Active != 3 {
		t.Errorf("active = %d, want 3", full.Stock.Active)
	}
	if full.State.LastProduct == nil || full.State.LastProduct.ID != 14 {
		t.Errorf("last product = %+v", full.State.LastProduct)
	}
	if full.Categories[catalog.NoPrice].Count != 1 {
		t.Errorf("no_price = %d, want 1", full.Categories[catalog.NoPrice].Count)
	}
}
