// Package queries answers catalog-health questions: which products lack a
// price, a description, an image, which are out of stock, and how healthy
// the catalog is overall.
//
// Every detector is read-only and always answers in consult mode.
package queries

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

// Detector is one health question family.
type Detector interface {
	Name() string
	Matches(normalized string) bool
	Handle(ctx context.Context, q Query) (*response.RouteResponse, error)
}

type categoryDetector struct {
	category catalog.Category
	label    string
	phrases  []string
	repo     catalog.Repository
	detail   func(catalog.ProductSummary) string
}

func (d *categoryDetector) Name() string { return string(d.category) }

func (d *categoryDetector) Matches(normalized string) bool {
	return textnorm.ContainsAny(normalized, d.phrases...)
}

// EmptyMessage is the fixed answer when a category has no products.
func EmptyMessage(label string) string {
	return "No encontré productos " + label + " ✅"
}

func (d *categoryDetector) Handle(ctx context.Context, q Query) (*response.RouteResponse, error) {
	route := response.WithMeta(response.MetaRoute, "queries."+d.Name())

	if q.WantsCount {
		n, err := d.repo.Count(ctx, d.category)
		if err != nil {
			return nil, fmt.Errorf("queries: %s: %w", d.category, err)
		}
		if n == 0 {
			return response.Consult(EmptyMessage(d.label), route)
		}
		return response.Consult(countSentence(n, d.label)+" Escribe «lista» para verlos o «full» para el detalle.", route)
	}

	res, err := d.repo.List(ctx, d.category, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("queries: %s: %w", d.category, err)
	}
	if res.Total == 0 {
		return response.Consult(EmptyMessage(d.label), route)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Productos %s (%d de %d):", d.label, len(res.Items), res.Total)
	for _, item := range res.Items {
		b.WriteString("\n• ")
		b.WriteString(d.line(item))
	}
	if rest := res.Total - len(res.Items); rest > 0 {
		fmt.Fprintf(&b, "\n… y %d más.", rest)
		if q.Limit < DetailLimit {
			b.WriteString(" Escribe «full» para ver hasta 50.")
		}
	}
	return response.Consult(b.String(), route)
}

func (d *categoryDetector) line(p catalog.ProductSummary) string {
	s := "#" + strconv.FormatInt(p.ID, 10) + " " + p.Name
	if p.SKU != "" {
		s += " (SKU " + p.SKU + ")"
	}
	if d.detail != nil {
		if extra := d.detail(p); extra != "" {
			s += " · " + extra
		}
	}
	return s
}

func countSentence(n int, label string) string {
	if n == 1 {
		return "Hay 1 producto " + singular(label) + "."
	}
	return fmt.Sprintf("Hay %d productos %s.", n, label)
}

// singular drops the plural ending of participle labels ("agotados").
func singular(label string) string {
	switch label {
	case "agotados":
		return "agotado"
	case "incompletos":
		return "incompleto"
	}
	return label
}

func stockDetail(p catalog.ProductSummary) string {
	if p.StockQuantity == nil {
		return ""
	}
	return "stock " + strconv.Itoa(*p.StockQuantity)
}

func priceDetail(p catalog.ProductSummary) string {
	if p.Price == nil {
		return "sin precio"
	}
	return "precio " + FormatPrice(*p.Price)
}

// FormatPrice renders a price without trailing zeros.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Classifier holds the detectors in match order. Order matters: the
// composite and stock-level phrases are tried before the broader ones.
type Classifier struct {
	detectors []Detector
}

// New returns the standard classifier over repo.
func New(repo catalog.Repository) *Classifier {
	cat := func(c catalog.Category, label string, detail func(catalog.ProductSummary) string, phrases ...string) Detector {
		return &categoryDetector{category: c, label: label, phrases: phrases, repo: repo, detail: detail}
	}
	return &Classifier{detectors: []Detector{
		&healthDetector{repo: repo},
		cat(catalog.Incomplete, "incompletos", nil,
			"incomplet", "datos faltantes", "les falta informacion", "informacion incompleta", "fichas incompletas"),
		cat(catalog.NoPrice, "sin precio", nil,
			"sin precio", "no tienen precio", "no tiene precio", "falta precio", "faltan precio", "without price", "no price"),
		cat(catalog.NoDescription, "sin descripción", priceDetail,
			"sin descripcion", "no tienen descripcion", "falta descripcion", "faltan descripcion", "no description"),
		cat(catalog.NoSKU, "sin SKU", priceDetail,
			"sin sku", "no tienen sku", "falta sku", "faltan sku", "sin codigo", "no sku"),
		cat(catalog.NoCategory, "sin categoría", priceDetail,
			"sin categoria", "no tienen categoria", "falta categoria", "faltan categoria", "no category", "uncategorized"),
		cat(catalog.NoImage, "sin imagen destacada", priceDetail,
			"sin imagen", "sin foto", "no tienen imagen", "falta imagen", "faltan imagen", "no image"),
		cat(catalog.LowStock, "con stock bajo", stockDetail,
			"bajo stock", "stock bajo", "poco stock", "low stock", "por agotarse", "quedan pocos", "pocas unidades"),
		cat(catalog.Backorder, "en backorder", stockDetail,
			"backorder", "back order", "bajo pedido", "en reserva", "pedido pendiente"),
		cat(catalog.OutOfStock, "agotados", nil,
			"sin stock", "agotado", "out of stock", "fuera de stock", "no hay stock", "sin existencias"),
	}}
}

// Detectors returns the detectors in match order.
func (c *Classifier) Detectors() []Detector {
	return append([]Detector(nil), c.detectors...)
}

// Match returns the first detector whose vocabulary appears in normalized.
func (c *Classifier) Match(normalized string) (Detector, bool) {
	for _, d := range c.detectors {
		if d.Matches(normalized) {
			return d, true
		}
	}
	return nil, false
}
