package catalogctx_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog/catalogtest"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
)

func fptr(v float64) *float64 { return &v }

func state() memory.ConversationState {
	return memory.ConversationState{
		ConversationID: "default",
		LastProduct:    &catalog.ProductRef{ID: 12, Name: "Camiseta", SKU: "CAM-001", Price: fptr(19.9)},
		Pending: &action.Envelope{ID: "p1", Kind: action.EnvelopeKind, Action: action.Proposal{
			Kind: action.KindUpdateProduct, HumanSummary: "precio secreto", Target: action.Target{ProductID: 12},
			Changes: map[string]any{"price": 1.0}}},
		Hints: memory.Hints{NeedsClarification: true, Question: "¿precio o stock?",
			Draft: &memory.Draft{ProductName: "Camiseta interna"}},
	}
}

func TestBuildLite_OnlyWhitelistedFields(t *testing.T) {
	lc := catalogctx.BuildLite(context.Background(), state(), catalogctx.Stats{ActiveProducts: 40})

	b, err := json.Marshal(lc)
	if err != nil {
		t.Fatal(err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		t.Fatal(err)
	}
	keys := make([]string, 0, len(top))
	for k := range top {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"hints", "last_product", "stats"}
	if len(keys) != len(want) {
		t.Fatalf("lite keys: %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("lite keys: %v, want %v", keys, want)
		}
	}

	var last map[string]any
	if err := json.Unmarshal(top["last_product"], &last); err != nil {
		t.Fatal(err)
	}
	if _, ok := last["price"]; ok {
		t.Error("price must not reach the lite context")
	}
	for _, leak := range []string{"precio secreto", "Camiseta interna", "¿precio o stock?"} {
		if strings.Contains(string(b), leak) {
			t.Errorf("lite context leaks %q: %s", leak, b)
		}
	}
}

func TestBuildLite_EmptyState(t *testing.T) {
	lc := catalogctx.BuildLite(context.Background(), memory.ConversationState{}, catalogctx.Stats{})
	if lc.LastProduct != nil || len(lc.Hints) != 0 {
		t.Errorf("unexpected lite context: %+v", lc)
	}
}

func TestBuildFull(t *testing.T) {
	noPrice := catalog.Product{Name: "Taza", Category: "Hogar"}
	oos := catalog.Product{Name: "Gorra", Price: fptr(5), Category: "Accesorios", StockStatus: catalog.StockOutOfStock}
	repo := catalogtest.New(noPrice, oos)

	fc, err := catalogctx.BuildFull(context.Background(), state(), repo, catalogctx.Options{TopN: 1})
	if err != nil {
		t.Fatalf("BuildFull: %v", err)
	}
	if fc.Categories[catalog.NoPrice].Count != 1 || len(fc.Categories[catalog.NoPrice].Examples) != 1 {
		t.Errorf("no_price snapshot: %+v", fc.Categories[catalog.NoPrice])
	}
	if fc.Categories[catalog.Incomplete].Count != 2 || len(fc.Categories[catalog.Incomplete].Examples) != 1 {
		t.Errorf("TopN not applied: %+v", fc.Categories[catalog.Incomplete])
	}
	if fc.Stock.Active != 2 || fc.Stock.OutOfStock != 1 || fc.Stock.InStock != 1 {
		t.Errorf("stock: %+v", fc.Stock)
	}
	if fc.ProductCategories["Hogar"] != 1 {
		t.Errorf("product categories: %v", fc.ProductCategories)
	}
	if fc.State.Pending == nil || fc.Lite.Stats.ActiveProducts != 2 {
		t.Errorf("state snapshot: %+v", fc.State)
	}
}

func TestBuildFull_RepositoryError(t *testing.T) {
	repo := catalogtest.New()
	repo.Err = errors.New("offline")
	if _, err := catalogctx.BuildFull(context.Background(), state(), repo, catalogctx.Options{}); err == nil {
		t.Fatal("expected error")
	}
}
