package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
)

var columnFor = map[string]string{
	action.FieldName:          "name",
	action.FieldPrice:         "price",
	action.FieldSalePrice:     "sale_price",
	action.FieldStockQuantity: "stock_quantity",
	action.FieldStockStatus:   "stock_status",
	action.FieldDescription:   "description",
	action.FieldSKU:           "sku",
	action.FieldCategory:      "category",
	action.FieldImageURL:      "image_url",
	action.FieldStatus:        "status",
}

// Apply implements Executor. Every proposal runs in one transaction.
func (r *SQLRepository) Apply(ctx context.Context, p action.Proposal) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("catalog: apply %s: %w", p.Kind, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var res Result
	switch p.Kind {
	case action.KindUpdateProduct:
		res, err = r.applyUpdate(ctx, tx, p)
	case action.KindDeleteProduct:
		res, err = r.applyDelete(ctx, tx, p)
	case action.KindCreateProduct:
		res, err = r.applyCreate(ctx, tx, p)
	case action.KindCreateVariable:
		res, err = r.applyCreateVariable(ctx, tx, p)
	}
	if err != nil {
		return Result{}, fmt.Errorf("catalog: apply %s: %w", p.Kind, err)
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("catalog: apply %s: commit: %w", p.Kind, err)
	}
	return res, nil
}

func resolveTarget(ctx context.Context, tx *sql.Tx, t action.Target) (int64, string, error) {
	var (
		id   int64
		name string
		err  error
	)
	if t.ProductID > 0 {
		err = tx.QueryRowContext(ctx, "SELECT id, name FROM products WHERE id = ? AND status != 'trash'", t.ProductID).Scan(&id, &name)
	} else {
		err = tx.QueryRowContext(ctx, "SELECT id, name FROM products WHERE UPPER(sku) = UPPER(?) AND status != 'trash' ORDER BY id LIMIT 1", t.SKU).Scan(&id, &name)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", err
	}
	return id, name, nil
}

func (r *SQLRepository) applyUpdate(ctx context.Context, tx *sql.Tx, p action.Proposal) (Result, error) {
	id, name, err := resolveTarget(ctx, tx, p.Target)
	if err != nil {
		return Result{}, err
	}

	var (
		sets []string
		args []any
	)
	for _, field := range p.SortedChangeKeys() {
		value := p.Changes[field]
		if n, ok := action.Number(value); ok && (field == action.FieldPrice || field == action.FieldSalePrice) {
			value = n
		}
		if field == action.FieldStockQuantity {
			n, _ := action.Number(value)
			value = int(n)
			sets = append(sets, "manage_stock = 1")
			if _, explicit := p.Changes[action.FieldStockStatus]; !explicit {
				status := StockInStock
				if int(n) == 0 {
					status = StockOutOfStock
				}
				sets = append(sets, "stock_status = ?")
				args = append(args, status)
			}
		}
		sets = append(sets, columnFor[field]+" = ?")
		args = append(args, value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), id)

	if _, err := tx.ExecContext(ctx, "UPDATE products SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return Result{}, err
	}
	return Result{ProductID: id, Summary: fmt.Sprintf("Producto #%d (%s) actualizado", id, name)}, nil
}

func (r *SQLRepository) applyDelete(ctx context.Context, tx *sql.Tx, p action.Proposal) (Result, error) {
	id, name, err := resolveTarget(ctx, tx, p.Target)
	if err != nil {
		return Result{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE products SET status = 'trash', updated_at = ? WHERE id = ? OR parent_id = ?",
		r.now(), id, id); err != nil {
		return Result{}, err
	}
	return Result{ProductID: id, Summary: fmt.Sprintf("Producto #%d (%s) enviado a la papelera", id, name)}, nil
}

func (r *SQLRepository) applyCreate(ctx context.Context, tx *sql.Tx, p action.Proposal) (Result, error) {
	d := p.ProductData
	prod := Product{
		Name:          strings.TrimSpace(d.Name),
		SKU:           d.SKU,
		Price:         d.Price,
		Description:   d.Description,
		Category:      d.Category,
		Status:        StatusPublish,
		Type:          TypeSimple,
		StockStatus:   StockInStock,
		StockQuantity: d.StockQuantity,
		ManageStock:   d.StockQuantity != nil,
	}
	if prod.StockQuantity != nil && *prod.StockQuantity == 0 {
		prod.StockStatus = StockOutOfStock
	}
	id, err := r.insert(ctx, tx, prod)
	if err != nil {
		return Result{}, err
	}
	return Result{ProductID: id, Summary: fmt.Sprintf("Producto #%d (%s) creado", id, prod.Name)}, nil
}

func (r *SQLRepository) applyCreateVariable(ctx context.Context, tx *sql.Tx, p action.Proposal) (Result, error) {
	d := p.ProductData
	parent := Product{
		Name:        strings.TrimSpace(d.Name),
		SKU:         d.SKU,
		Price:       d.Pricing.BasePrice,
		Description: d.Description,
		Category:    d.Category,
		Status:      StatusPublish,
		Type:        TypeVariable,
		StockStatus: StockInStock,
		Pricing:     d.Pricing,
	}
	if parent.Price == nil {
		parent.Price = d.Price
	}
	parentID, err := r.insert(ctx, tx, parent)
	if err != nil {
		return Result{}, err
	}

	res := Result{ProductID: parentID}
	for _, combo := range action.Combinations(d.Attributes) {
		v := Product{
			Name:        parent.Name + " - " + joinValues(combo),
			Status:      StatusPublish,
			Type:        TypeVariation,
			ParentID:    parentID,
			Attributes:  combo,
			StockStatus: StockInStock,
		}
		if parent.SKU != "" {
			v.SKU = parent.SKU + "-" + strings.ToUpper(strings.ReplaceAll(joinValues(combo), " ", ""))
		}
		if price, ok := d.Pricing.PriceFor(combo); ok {
			v.Price = &price
		}
		vid, err := r.insert(ctx, tx, v)
		if err != nil {
			return Result{}, err
		}
		res.Variations = append(res.Variations, vid)
	}
	res.Summary = fmt.Sprintf("Producto variable #%d (%s) creado con %d variaciones", parentID, parent.Name, len(res.Variations))
	return res, nil
}

func joinValues(combo map[string]string) string {
	key := action.VariationKey(combo)
	var values []string
	for _, pair := range strings.Split(key, "|") {
		if _, v, ok := strings.Cut(pair, "="); ok {
			values = append(values, v)
		}
	}
	return strings.Join(values, "/")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLRepository) insert(ctx context.Context, db execer, p Product) (int64, error) {
	var attrs, pricing sql.NullString
	if len(p.Attributes) > 0 {
		b, err := json.Marshal(p.Attributes)
		if err != nil {
			return 0, err
		}
		attrs = sql.NullString{String: string(b), Valid: true}
	}
	if p.Pricing != nil {
		b, err := json.Marshal(p.Pricing)
		if err != nil {
			return 0, err
		}
		pricing = sql.NullString{String: string(b), Valid: true}
	}
	var parent sql.NullInt64
	if p.ParentID > 0 {
		parent = sql.NullInt64{Int64: p.ParentID, Valid: true}
	}
	manage := 0
	if p.ManageStock {
		manage = 1
	}
	if p.Status == "" {
		p.Status = StatusPublish
	}
	if p.Type == "" {
		p.Type = TypeSimple
	}
	if p.StockStatus == "" {
		p.StockStatus = StockInStock
	}

	now := r.now()
	cols := "name, sku, price, sale_price, description, category, image_url, status, type, parent_id, " +
		"attributes_json, pricing_json, stock_status, manage_stock, stock_quantity, created_at, updated_at"
	args := []any{p.Name, p.SKU, p.Price, p.SalePrice, p.Description, p.Category, p.ImageURL, p.Status, p.Type, parent,
		attrs, pricing, p.StockStatus, manage, p.StockQuantity, now, now}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	if p.ID > 0 {
		cols = "id, " + cols
		args = append([]any{p.ID}, args...)
		placeholders = "?, " + placeholders
	}

	res, err := db.ExecContext(ctx, "INSERT INTO products ("+cols+") VALUES ("+placeholders+")", args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Seed inserts products as given. Existing ids are overwritten, which makes
// re-seeding a fixture file idempotent.
func (r *SQLRepository) Seed(ctx context.Context, products []Product) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i, p := range products {
		if strings.TrimSpace(p.Name) == "" {
			return 0, fmt.Errorf("catalog: seed: product %d has no name", i)
		}
		if p.ID > 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = ?", p.ID); err != nil {
				return 0, fmt.Errorf("catalog: seed: %w", err)
			}
		}
		if _, err := r.insert(ctx, tx, p); err != nil {
			return 0, fmt.Errorf("catalog: seed %q: %w", p.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: seed: commit: %w", err)
	}
	return len(products), nil
}
