// Package catalogctx builds the two context payloads of a turn.
//
// LiteContext is the only data the model path ever receives. FullContext is
// a diagnostic snapshot for operators (CLI diagnose, /debug/context) and
// has no route into the model packages: those accept LiteContext only.
package catalogctx

import (
	"context"
	"fmt"
	"time"

	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/queries"
)

// DefaultTopN is the number of examples per category in FullContext.
const DefaultTopN = 5

// Stats is the whitelisted aggregate block of LiteContext.
type Stats struct {
	ActiveProducts int `json:"active_products"`
}

// LiteProduct is the last product reference as shown to the model.
type LiteProduct struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	SKU  string `json:"sku,omitempty"`
}

// LiteContext is the model-facing context.
type LiteContext struct {
	LastProduct *LiteProduct `json:"last_product,omitempty"`
	Stats       Stats        `json:"stats"`
	Hints       []string     `json:"hints,omitempty"`
}

// LoadStats reads the whitelisted stats from repo.
func LoadStats(ctx context.Context, repo catalog.Repository) (Stats, error) {
	n, err := repo.ActiveCount(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("catalogctx: stats: %w", err)
	}
	return Stats{ActiveProducts: n}, nil
}

// BuildLite copies the whitelisted fields out of state.
func BuildLite(_ context.Context, state memory.ConversationState, stats Stats) LiteContext {
	lc := LiteContext{Stats: stats, Hints: state.Hints.Labels()}
	if ref := state.LastProduct; ref != nil {
		lc.LastProduct = &LiteProduct{ID: ref.ID, Name: ref.Name, SKU: ref.SKU}
	}
	return lc
}

// Options sizes FullContext.
type Options struct {
	TopN int
}

// CategorySnapshot is one health bucket in FullContext.
type CategorySnapshot struct {
	Count    int                      `json:"count"`
	Examples []catalog.ProductSummary `json:"examples"`
}

// StockBreakdown splits the active catalog by stock state.
type StockBreakdown struct {
	Active     int `json:"active"`
	OutOfStock int `json:"out_of_stock"`
	LowStock   int `json:"low_stock"`
	Backorder  int `json:"backorder"`
	InStock    int `json:"in_stock"`
}

// FullContext is the operator-facing diagnostic snapshot.
type FullContext struct {
	GeneratedAt       time.Time                             `json:"generated_at" yaml:"generated_at"`
	Health            queries.HealthReport                  `json:"health" yaml:"health"`
	Categories        map[catalog.Category]CategorySnapshot `json:"categories" yaml:"categories"`
	ProductCategories map[string]int                        `json:"product_categories" yaml:"product_categories"`
	Stock             StockBreakdown                        `json:"stock" yaml:"stock"`
	State             memory.ConversationState              `json:"state" yaml:"state"`
	Lite              LiteContext                           `json:"lite" yaml:"lite"`
}

// BuildFull assembles the diagnostic snapshot.
func BuildFull(ctx context.Context, state memory.ConversationState, repo catalog.Repository, opts Options) (FullContext, error) {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}

	health, err := queries.ComputeHealth(ctx, repo)
	if err != nil {
		return FullContext{}, fmt.Errorf("catalogctx: full: %w", err)
	}

	fc := FullContext{
		GeneratedAt: time.Now().UTC(),
		Health:      health,
		Categories:  make(map[catalog.Category]CategorySnapshot, len(catalog.Categories())),
		State:       state.Clone(),
		Lite:        BuildLite(ctx, state, Stats{ActiveProducts: health.Active}),
	}
	for _, c := range catalog.Categories() {
		res, err := repo.List(ctx, c, opts.TopN)
		if err != nil {
			return FullContext{}, fmt.Errorf("catalogctx: full: %s: %w", c, err)
		}
		fc.Categories[c] = CategorySnapshot{Count: res.Total, Examples: res.Items}
	}

	fc.ProductCategories, err = repo.CategoryCounts(ctx)
	if err != nil {
		return FullContext{}, fmt.Errorf("catalogctx: full: %w", err)
	}

	fc.Stock = StockBreakdown{
		Active:     health.Active,
		OutOfStock: fc.Categories[catalog.OutOfStock].Count,
		LowStock:   fc.Categories[catalog.LowStock].Count,
		Backorder:  fc.Categories[catalog.Backorder].Count,
	}
	fc.Stock.InStock = fc.Stock.Active - fc.Stock.OutOfStock - fc.Stock.Backorder
	return fc, nil
}
