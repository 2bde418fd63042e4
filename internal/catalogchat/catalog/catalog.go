// Package catalog is the product repository the assistant reads from and
// the executor that applies confirmed proposals.
//
// Health categories only ever look at active top-level products: status
// "publish" and no parent. Variations are counted through their parent.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
)

// ErrNotFound is returned when a product lookup matches nothing.
var ErrNotFound = errors.New("catalog: product not found")

// DefaultLowStockThreshold applies when no threshold is configured.
const DefaultLowStockThreshold = 5

// Product statuses and stock statuses as stored.
const (
	StatusPublish = "publish"
	StatusDraft   = "draft"
	StatusTrash   = "trash"

	StockInStock    = "instock"
	StockOutOfStock = "outofstock"
	StockBackorder  = "onbackorder"

	TypeSimple    = "simple"
	TypeVariable  = "variable"
	TypeVariation = "variation"
)

// Category is a catalog-health bucket.
type Category string

const (
	NoPrice       Category = "no_price"
	NoDescription Category = "no_description"
	NoSKU         Category = "no_sku"
	NoCategory    Category = "no_category"
	NoImage       Category = "no_image"
	Incomplete    Category = "incomplete"
	OutOfStock    Category = "out_of_stock"
	LowStock      Category = "low_stock"
	Backorder     Category = "backorder"
)

// Categories lists every health bucket in reporting order.
func Categories() []Category {
	return []Category{NoPrice, NoDescription, NoSKU, NoCategory, NoImage, Incomplete, OutOfStock, LowStock, Backorder}
}

// Product is a full catalog row.
type Product struct {
	ID            int64             `json:"id" yaml:"id,omitempty"`
	Name          string            `json:"name" yaml:"name"`
	SKU           string            `json:"sku" yaml:"sku,omitempty"`
	Price         *float64          `json:"price,omitempty" yaml:"price,omitempty"`
	SalePrice     *float64          `json:"sale_price,omitempty" yaml:"sale_price,omitempty"`
	Description   string            `json:"description" yaml:"description,omitempty"`
	Category      string            `json:"category" yaml:"category,omitempty"`
	ImageURL      string            `json:"image_url" yaml:"image_url,omitempty"`
	Status        string            `json:"status" yaml:"status,omitempty"`
	Type          string            `json:"type" yaml:"type,omitempty"`
	ParentID      int64             `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Pricing       *action.Pricing   `json:"pricing,omitempty" yaml:"-"`
	StockStatus   string            `json:"stock_status" yaml:"stock_status,omitempty"`
	ManageStock   bool              `json:"manage_stock" yaml:"manage_stock,omitempty"`
	StockQuantity *int              `json:"stock_quantity,omitempty" yaml:"stock_quantity,omitempty"`
	CreatedAt     time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time         `json:"updated_at" yaml:"-"`
}

// Active reports whether p is a published top-level product.
func (p Product) Active() bool {
	return p.Status == StatusPublish && p.ParentID == 0
}

// Ref returns the short reference kept in conversation memory.
func (p Product) Ref() ProductRef {
	return ProductRef{ID: p.ID, Name: p.Name, SKU: p.SKU, Price: p.Price, Stock: p.StockQuantity}
}

// Summary returns the listing shape of p.
func (p Product) Summary() ProductSummary {
	return ProductSummary{ID: p.ID, Name: p.Name, SKU: p.SKU, Price: p.Price,
		StockStatus: p.StockStatus, StockQuantity: p.StockQuantity}
}

// ProductRef identifies the last product a conversation talked about.
type ProductRef struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	SKU   string   `json:"sku,omitempty"`
	Price *float64 `json:"price,omitempty"`
	Stock *int     `json:"stock,omitempty"`
}

// ProductSummary is one line of a listing.
type ProductSummary struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	SKU           string   `json:"sku,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	StockStatus   string   `json:"stock_status,omitempty"`
	StockQuantity *int     `json:"stock_quantity,omitempty"`
}

// QueryResult is a bounded listing plus the unbounded total.
type QueryResult struct {
	Total int              `json:"total"`
	Items []ProductSummary `json:"items"`
}

// Repository is the read side of the catalog.
type Repository interface {
	// Count returns the number of active products in c.
	Count(ctx context.Context, c Category) (int, error)
	// List returns up to limit products of c ordered by id, plus the total.
	List(ctx context.Context, c Category, limit int) (QueryResult, error)
	Get(ctx context.Context, id int64) (Product, error)
	FindBySKU(ctx context.Context, sku string) (Product, error)
	// FindByName matches active products whose name contains name,
	// case-insensitively.
	FindByName(ctx context.Context, name string, limit int) ([]ProductSummary, error)
	// Latest and Earliest return the active products with the highest and
	// lowest id.
	Latest(ctx context.Context) (Product, error)
	Earliest(ctx context.Context) (Product, error)
	ActiveCount(ctx context.Context) (int, error)
	// CategoryCounts groups active products by their category column.
	CategoryCounts(ctx context.Context) (map[string]int, error)
}

// Result is what an executor reports after applying a proposal.
type Result struct {
	ProductID  int64   `json:"product_id"`
	Summary    string  `json:"summary"`
	Variations []int64 `json:"variations,omitempty"`
}

// Executor applies confirmed proposals. It is only ever called by the
// pending-action state machine after an explicit confirmation.
type Executor interface {
	Apply(ctx context.Context, p action.Proposal) (Result, error)
}

// Matches reports whether p belongs to c. It is the in-process mirror of
// the SQL predicates and is used by fakes and seed validation.
func Matches(p Product, c Category, lowStockThreshold int) bool {
	if !p.Active() {
		return false
	}
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }
	switch c {
	case NoPrice:
		return p.Price == nil
	case NoDescription:
		return blank(p.Description)
	case NoSKU:
		return blank(p.SKU)
	case NoCategory:
		return blank(p.Category)
	case NoImage:
		return blank(p.ImageURL)
	case Incomplete:
		return p.Price == nil || blank(p.Description) || blank(p.SKU) || blank(p.Category) || blank(p.ImageURL)
	case OutOfStock:
		return p.StockStatus == StockOutOfStock
	case Backorder:
		return p.StockStatus == StockBackorder
	case LowStock:
		return p.ManageStock && p.StockQuantity != nil && *p.StockQuantity > 0 && *p.StockQuantity <= lowStockThreshold
	}
	return false
}
