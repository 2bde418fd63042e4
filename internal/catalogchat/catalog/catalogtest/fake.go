// Package catalogtest provides an in-memory catalog for tests.
package catalogtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
)

// Catalog implements catalog.Repository and catalog.Executor in memory.
//
// Err, when set, is returned by every read. ApplyErr is returned by Apply.
type Catalog struct {
	mu       sync.Mutex
	products map[int64]catalog.Product
	nextID   int64

	LowStockThreshold int
	Err               error
	ApplyErr          error
	Applied           []action.Proposal
	Reads             int
}

var (
	_ catalog.Repository = (*Catalog)(nil)
	_ catalog.Executor   = (*Catalog)(nil)
)

// New returns a Catalog holding products. Missing ids are assigned in order
// and empty statuses default to publish/instock.
func New(products ...catalog.Product) *Catalog {
	c := &Catalog{products: map[int64]catalog.Product{}, LowStockThreshold: catalog.DefaultLowStockThreshold}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

// Put inserts or replaces p and returns its id.
func (c *Catalog) Put(p catalog.Product) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ID == 0 {
		c.nextID++
		p.ID = c.nextID
	}
	if p.ID > c.nextID {
		c.nextID = p.ID
	}
	if p.Status == "" {
		p.Status = catalog.StatusPublish
	}
	if p.StockStatus == "" {
		p.StockStatus = catalog.StockInStock
	}
	if p.Type == "" {
		p.Type = catalog.TypeSimple
	}
	c.products[p.ID] = p
	return p.ID
}

// Product returns the stored product regardless of status.
func (c *Catalog) Product(id int64) (catalog.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	return p, ok
}

func (c *Catalog) read() error {
	c.Reads++
	return c.Err
}

func (c *Catalog) sorted() []catalog.Product {
	out := make([]catalog.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) matching(cat catalog.Category) []catalog.Product {
	var out []catalog.Product
	for _, p := range c.sorted() {
		if catalog.Matches(p, cat, c.LowStockThreshold) {
			out = append(out, p)
		}
	}
	return out
}

func (c *Catalog) Count(_ context.Context, cat catalog.Category) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(); err != nil {
		return 0, err
	}
	return len(c.matching(cat)), nil
}

func (c *Catalog) List(_ context.Context, cat catalog.Category, limit int) (catalog.QueryResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(); err != nil {
		return catalog.QueryResult{}, err
	}
	all := c.matching(cat)
	res := catalog.QueryResult{Total: len(all), Items: []catalog.ProductSummary{}}
	for i, p := range all {
		if i >= limit {
			break
		}
		res.Items = append(res.Items, p.Summary())
	}
	return res, nil
}

func (c *Catalog) Get(_ context.Context, id int64) (catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(); err != nil {
		return catalog.Product{}, err
	}
	p, ok := c.products[id]
	if !ok || p.Status == catalog.StatusTrash {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (c *Catalog) FindBySKU(_ context.Context, sku string) (catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(); err != nil {
		return catalog.Product{}, err
	}
	for _, p := range c.sorted() {
		if p.Status != catalog.StatusTrash && p.SKU != "" && strings.EqualFold(p.SKU, strings.TrimSpace(sku)) {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (c *Catalog) FindByName(_ context.Context, name string, limit int) ([]catalog.ProductSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	var out []catalog.ProductSummary
	for _, p := range c.sorted() {
		if p.Active() && strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p.Summary())
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (c *Catalog) edge(last bool) (catalog.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(); err != nil {
		return catalog.Product{}, err
	}
	var active []catalog.Product
	for _, p := range c.sorted() {
		if p.Active() {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if last {
		return active[len(active)-1], nil
	}
	return active[0], nil
}

func (c *Catalog) Latest(context.Context) (catalog.Product, error)   { return c.edge(true) }
func (c *Catalog) Earliest(context.Context) (catalog.Product, error) { return c.edge(false) }

func (c *Catalog) ActiveCount(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range c.products {
		if p.Active() {
			n++
		}
	}
	return n, nil
}

func (c *Catalog) CategoryCounts(context.Context) (map[string]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.read(); err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, p := range c.products {
		if p.Active() {
			out[strings.TrimSpace(p.Category)]++
		}
	}
	return out, nil
}

// Apply records the proposal and applies update and delete in memory.
// Creations are recorded and get a fresh id.
func (c *Catalog) Apply(_ context.Context, p action.Proposal) (catalog.Result, error) {
	if err := p.Validate(); err != nil {
		return catalog.Result{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ApplyErr != nil {
		return catalog.Result{}, c.ApplyErr
	}
	c.Applied = append(c.Applied, p)

	switch p.Kind {
	case action.KindCreateProduct, action.KindCreateVariable:
		c.nextID++
		c.products[c.nextID] = catalog.Product{ID: c.nextID, Name: p.ProductData.Name, SKU: p.ProductData.SKU,
			Price: p.ProductData.Price, Status: catalog.StatusPublish, StockStatus: catalog.StockInStock}
		return catalog.Result{ProductID: c.nextID, Summary: fmt.Sprintf("Producto #%d creado", c.nextID)}, nil
	}

	var target *catalog.Product
	for id, prod := range c.products {
		if prod.Status == catalog.StatusTrash {
			continue
		}
		if (p.Target.ProductID > 0 && id == p.Target.ProductID) ||
			(p.Target.ProductID == 0 && strings.EqualFold(prod.SKU, p.Target.SKU)) {
			pp := prod
			target = &pp
			break
		}
	}
	if target == nil {
		return catalog.Result{}, catalog.ErrNotFound
	}

	if p.Kind == action.KindDeleteProduct {
		target.Status = catalog.StatusTrash
	} else {
		for field, v := range p.Changes {
			switch field {
			case action.FieldPrice:
				n, _ := action.Number(v)
				target.Price = &n
			case action.FieldStockQuantity:
				n, _ := action.Number(v)
				q := int(n)
				target.StockQuantity = &q
				target.ManageStock = true
			case action.FieldName:
				target.Name, _ = v.(string)
			case action.FieldDescription:
				target.Description, _ = v.(string)
			case action.FieldSKU:
				target.SKU, _ = v.(string)
			case action.FieldCategory:
				target.Category, _ = v.(string)
			case action.FieldStockStatus:
				target.StockStatus, _ = v.(string)
			}
		}
	}
	c.products[target.ID] = *target
	return catalog.Result{ProductID: target.ID, Summary: fmt.Sprintf("Producto #%d actualizado", target.ID)}, nil
}
