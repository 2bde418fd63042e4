package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
)

const activeClause = "status = 'publish' AND parent_id IS NULL"

const productColumns = `id, name, sku, price, sale_price, description, category, image_url,
	status, type, parent_id, attributes_json, pricing_json, stock_status, manage_stock,
	stock_quantity, created_at, updated_at`

// SQLRepository implements Repository and Executor over the products table.
type SQLRepository struct {
	db       *sql.DB
	lowStock func(context.Context) int
	now      func() time.Time
}

// SQLOption configures a SQLRepository.
type SQLOption func(*SQLRepository)

// WithLowStockThreshold sets the source of the low-stock threshold. It is
// read on every query so runtime config changes apply immediately.
func WithLowStockThreshold(fn func(context.Context) int) SQLOption {
	return func(r *SQLRepository) { r.lowStock = fn }
}

// WithClock overrides time.Now for created_at and updated_at.
func WithClock(now func() time.Time) SQLOption {
	return func(r *SQLRepository) { r.now = now }
}

// NewSQLRepository returns a repository over db, which must carry the
// products table.
func NewSQLRepository(db *sql.DB, opts ...SQLOption) *SQLRepository {
	r := &SQLRepository{
		db:       db,
		lowStock: func(context.Context) int { return DefaultLowStockThreshold },
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SQLRepository) predicate(ctx context.Context, c Category) (string, []any, error) {
	switch c {
	case NoPrice:
		return "price IS NULL", nil, nil
	case NoDescription:
		return "TRIM(description) = ''", nil, nil
	case NoSKU:
		return "TRIM(sku) = ''", nil, nil
	case NoCategory:
		return "TRIM(category) = ''", nil, nil
	case NoImage:
		return "TRIM(image_url) = ''", nil, nil
	case Incomplete:
		return "(price IS NULL OR TRIM(description) = '' OR TRIM(sku) = '' OR TRIM(category) = '' OR TRIM(image_url) = '')", nil, nil
	case OutOfStock:
		return "stock_status = 'outofstock'", nil, nil
	case Backorder:
		return "stock_status = 'onbackorder'", nil, nil
	case LowStock:
		return "manage_stock = 1 AND stock_quantity > 0 AND stock_quantity <= ?", []any{r.lowStock(ctx)}, nil
	}
	return "", nil, fmt.Errorf("catalog: unknown category %q", c)
}

// Count implements Repository.
func (r *SQLRepository) Count(ctx context.Context, c Category) (int, error) {
	pred, args, err := r.predicate(ctx, c)
	if err != nil {
		return 0, err
	}
	var n int
	q := "SELECT COUNT(*) FROM products WHERE " + activeClause + " AND " + pred
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count %s: %w", c, err)
	}
	return n, nil
}

// List implements Repository.
func (r *SQLRepository) List(ctx context.Context, c Category, limit int) (QueryResult, error) {
	total, err := r.Count(ctx, c)
	if err != nil {
		return QueryResult{}, err
	}
	res := QueryResult{Total: total, Items: []ProductSummary{}}
	if total == 0 || limit <= 0 {
		return res, nil
	}

	pred, args, err := r.predicate(ctx, c)
	if err != nil {
		return QueryResult{}, err
	}
	q := "SELECT id, name, sku, price, stock_status, stock_quantity FROM products WHERE " +
		activeClause + " AND " + pred + " ORDER BY id LIMIT ?"
	rows, err := r.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("catalog: list %s: %w", c, err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return QueryResult{}, fmt.Errorf("catalog: list %s: %w", c, err)
		}
		res.Items = append(res.Items, s)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("catalog: list %s: %w", c, err)
	}
	return res, nil
}

// Get implements Repository. Trashed products are not found.
func (r *SQLRepository) Get(ctx context.Context, id int64) (Product, error) {
	return r.one(ctx, "SELECT "+productColumns+" FROM products WHERE id = ? AND status != 'trash'", id)
}

// FindBySKU implements Repository. SKUs compare case-insensitively.
func (r *SQLRepository) FindBySKU(ctx context.Context, sku string) (Product, error) {
	return r.one(ctx, "SELECT "+productColumns+" FROM products WHERE UPPER(sku) = UPPER(?) AND status != 'trash' ORDER BY id LIMIT 1",
		strings.TrimSpace(sku))
}

// Latest implements Repository.
func (r *SQLRepository) Latest(ctx context.Context) (Product, error) {
	return r.one(ctx, "SELECT "+productColumns+" FROM products WHERE "+activeClause+" ORDER BY id DESC LIMIT 1")
}

// Earliest implements Repository.
func (r *SQLRepository) Earliest(ctx context.Context) (Product, error) {
	return r.one(ctx, "SELECT "+productColumns+" FROM products WHERE "+activeClause+" ORDER BY id ASC LIMIT 1")
}

// FindByName implements Repository.
func (r *SQLRepository) FindByName(ctx context.Context, name string, limit int) ([]ProductSummary, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, sku, price, stock_status, stock_quantity FROM products WHERE "+activeClause+
			" AND LOWER(name) LIKE '%' || LOWER(?) || '%' ORDER BY id LIMIT ?",
		strings.TrimSpace(name), limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: find by name: %w", err)
	}
	defer rows.Close()

	var out []ProductSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: find by name: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveCount implements Repository.
func (r *SQLRepository) ActiveCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products WHERE "+activeClause).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: active count: %w", err)
	}
	return n, nil
}

// CategoryCounts implements Repository. Uncategorised products are grouped
// under the empty string.
func (r *SQLRepository) CategoryCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT TRIM(category), COUNT(*) FROM products WHERE "+activeClause+" GROUP BY TRIM(category)")
	if err != nil {
		return nil, fmt.Errorf("catalog: category counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("catalog: category counts: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (ProductSummary, error) {
	var (
		s     ProductSummary
		price sql.NullFloat64
		qty   sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.SKU, &price, &s.StockStatus, &qty); err != nil {
		return ProductSummary{}, err
	}
	s.Price = floatPtr(price)
	s.StockQuantity = intPtr(qty)
	return s, nil
}

func (r *SQLRepository) one(ctx context.Context, query string, args ...any) (Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	return p, nil
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p                      Product
		price, sale            sql.NullFloat64
		parent, qty            sql.NullInt64
		attrsJSON, pricingJSON sql.NullString
		manage                 int
	)
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &price, &sale, &p.Description, &p.Category, &p.ImageURL,
		&p.Status, &p.Type, &parent, &attrsJSON, &pricingJSON, &p.StockStatus, &manage,
		&qty, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.Price = floatPtr(price)
	p.SalePrice = floatPtr(sale)
	p.ParentID = parent.Int64
	p.ManageStock = manage == 1
	p.StockQuantity = intPtr(qty)
	if attrsJSON.Valid && attrsJSON.String != "" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &p.Attributes); err != nil {
			return Product{}, fmt.Errorf("decode attributes of %d: %w", p.ID, err)
		}
	}
	if pricingJSON.Valid && pricingJSON.String != "" {
		p.Pricing = &action.Pricing{}
		if err := json.Unmarshal([]byte(pricingJSON.String), p.Pricing); err != nil {
			return Product{}, fmt.Errorf("decode pricing of %d: %w", p.ID, err)
		}
	}
	return p, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
