// Package action defines catalog mutation proposals and the envelope that
// holds one while it waits for confirmation.
//
// A Proposal is data only. Nothing in this package touches the catalog.
package action

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidProposal is wrapped by Validate for every structural problem.
var ErrInvalidProposal = errors.New("action: invalid proposal")

// Kind is the closed set of mutations the assistant may propose.
type Kind string

const (
	KindUpdateProduct  Kind = "update_product"
	KindCreateProduct  Kind = "create_product"
	KindCreateVariable Kind = "create_product_variable"
	KindDeleteProduct  Kind = "delete_product"
)

// Kinds returns the allowlisted kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindUpdateProduct, KindCreateProduct, KindCreateVariable, KindDeleteProduct}
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindUpdateProduct, KindCreateProduct, KindCreateVariable, KindDeleteProduct:
		return true
	}
	return false
}

// Canonical change fields accepted by update_product.
const (
	FieldName          = "name"
	FieldPrice         = "price"
	FieldSalePrice     = "sale_price"
	FieldStockQuantity = "stock_quantity"
	FieldStockStatus   = "stock_status"
	FieldDescription   = "description"
	FieldSKU           = "sku"
	FieldCategory      = "category"
	FieldImageURL      = "image_url"
	FieldStatus        = "status"
)

// ChangeFields lists the update fields in a stable order.
func ChangeFields() []string {
	return []string{
		FieldName, FieldPrice, FieldSalePrice, FieldStockQuantity, FieldStockStatus,
		FieldDescription, FieldSKU, FieldCategory, FieldImageURL, FieldStatus,
	}
}

// StockStatuses are the accepted values of stock_status.
var StockStatuses = []string{"instock", "outofstock", "onbackorder"}

// ProductStatuses are the accepted values of status.
var ProductStatuses = []string{"publish", "draft", "private"}

// Target identifies the product a proposal applies to. LastReferenced marks
// a target taken from conversation memory rather than from the message; the
// ID is still filled in before the proposal is stored.
type Target struct {
	ProductID      int64  `json:"product_id,omitempty"`
	SKU            string `json:"sku,omitempty"`
	LastReferenced bool   `json:"last_referenced,omitempty"`
}

// Resolved reports whether the target names a concrete product.
func (t Target) Resolved() bool {
	return t.ProductID > 0 || t.SKU != ""
}

func (t Target) String() string {
	switch {
	case t.ProductID > 0:
		return "#" + strconv.FormatInt(t.ProductID, 10)
	case t.SKU != "":
		return "SKU " + t.SKU
	case t.LastReferenced:
		return "último producto"
	}
	return "sin destino"
}

// ProductData is the payload of create_product and create_product_variable.
type ProductData struct {
	Name          string              `json:"name"`
	SKU           string              `json:"sku,omitempty"`
	Price         *float64            `json:"price,omitempty"`
	Description   string              `json:"description,omitempty"`
	Category      string              `json:"category,omitempty"`
	StockQuantity *int                `json:"stock_quantity,omitempty"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
	Pricing       *Pricing            `json:"pricing,omitempty"`
}

// Proposal is one proposed catalog mutation.
type Proposal struct {
	Kind         Kind           `json:"kind"`
	HumanSummary string         `json:"human_summary"`
	Target       Target         `json:"target"`
	Changes      map[string]any `json:"changes,omitempty"`
	ProductData  *ProductData   `json:"product_data,omitempty"`
}

// Validate checks the per-kind required fields.
func (p Proposal) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidProposal, p.Kind)
	}
	if strings.TrimSpace(p.HumanSummary) == "" {
		return fmt.Errorf("%w: %s without human_summary", ErrInvalidProposal, p.Kind)
	}

	switch p.Kind {
	case KindUpdateProduct:
		if !p.Target.Resolved() {
			return fmt.Errorf("%w: update_product needs a product id or sku", ErrInvalidProposal)
		}
		if len(p.Changes) == 0 {
			return fmt.Errorf("%w: update_product without changes", ErrInvalidProposal)
		}
		for field, value := range p.Changes {
			if err := ValidateChange(field, value); err != nil {
				return err
			}
		}
	case KindDeleteProduct:
		if !p.Target.Resolved() {
			return fmt.Errorf("%w: delete_product needs a product id or sku", ErrInvalidProposal)
		}
	case KindCreateProduct, KindCreateVariable:
		d := p.ProductData
		if d == nil || strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("%w: %s needs product_data.name", ErrInvalidProposal, p.Kind)
		}
		if d.Price != nil && *d.Price < 0 {
			return fmt.Errorf("%w: negative price", ErrInvalidProposal)
		}
		if p.Kind == KindCreateVariable {
			if len(d.Attributes) == 0 {
				return fmt.Errorf("%w: create_product_variable needs attributes", ErrInvalidProposal)
			}
			if d.Pricing == nil || d.Pricing.Empty() {
				return fmt.Errorf("%w: create_product_variable needs pricing", ErrInvalidProposal)
			}
		}
	}
	return nil
}

// ValidateChange checks one update field and its value.
func ValidateChange(field string, value any) error {
	switch field {
	case FieldPrice, FieldSalePrice:
		n, ok := Number(value)
		if !ok || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number, got %v", ErrInvalidProposal, field, value)
		}
	case FieldStockQuantity:
		n, ok := Number(value)
		if !ok || n < 0 || n != math.Trunc(n) {
			return fmt.Errorf("%w: stock_quantity must be a non-negative integer, got %v", ErrInvalidProposal, value)
		}
	case FieldStockStatus:
		if !oneOf(value, StockStatuses) {
			return fmt.Errorf("%w: stock_status %v", ErrInvalidProposal, value)
		}
	case FieldStatus:
		if !oneOf(value, ProductStatuses) {
			return fmt.Errorf("%w: status %v", ErrInvalidProposal, value)
		}
	case FieldName, FieldDescription, FieldSKU, FieldCategory, FieldImageURL:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be text", ErrInvalidProposal, field)
		}
		if field != FieldDescription && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidProposal, field)
		}
	default:
		return fmt.Errorf("%w: field %q is not editable", ErrInvalidProposal, field)
	}
	return nil
}

// Number converts the numeric shapes a change value may take after a JSON
// round trip.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(n, ",", "."), 64)
		return f, err == nil
	}
	return 0, false
}

func oneOf(v any, allowed []string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// EnvelopeKind is the only envelope kind.
const EnvelopeKind = "awaiting_confirmation"

// Envelope wraps the single pending proposal of a conversation.
type Envelope struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Action    Proposal  `json:"action"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the envelope has a deadline that has passed.
func (e Envelope) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// ExecutedAction records the last mutation applied after confirmation.
type ExecutedAction struct {
	Kind      Kind      `json:"kind"`
	Summary   string    `json:"summary"`
	ProductID int64     `json:"product_id,omitempty"`
	At        time.Time `json:"at"`
}

// SortedChangeKeys returns the change fields of p in ChangeFields order.
func (p Proposal) SortedChangeKeys() []string {
	order := make(map[string]int)
	for i, f := range ChangeFields() {
		order[f] = i
	}
	keys := make([]string, 0, len(p.Changes))
	for k := range p.Changes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})
	return keys
}
