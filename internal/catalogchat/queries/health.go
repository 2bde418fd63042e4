package queries

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

// Completeness and stock weights of the health score. Each group sums to
// 100; the two groups are blended 70/30.
var (
	completenessWeights = []weight{
		{catalog.NoPrice, 30},
		{catalog.NoDescription, 25},
		{catalog.NoImage, 15},
		{catalog.NoCategory, 15},
		{catalog.NoSKU, 15},
	}
	stockWeights = []weight{
		{catalog.OutOfStock, 50},
		{catalog.LowStock, 30},
		{catalog.Backorder, 20},
	}
)

const (
	completenessShare = 0.7
	stockShare        = 0.3
)

type weight struct {
	category catalog.Category
	points   float64
}

// HealthReport is the aggregate health of the active catalog.
type HealthReport struct {
	Active       int                      `json:"active"`
	Counts       map[catalog.Category]int `json:"counts"`
	Completeness int                      `json:"completeness"`
	StockHealth  int                      `json:"stock_health"`
	Score        int                      `json:"score"`
}

// ComputeHealth counts every weighted category and derives the score. An
// empty catalog scores 0.
func ComputeHealth(ctx context.Context, repo catalog.Repository) (HealthReport, error) {
	active, err := repo.ActiveCount(ctx)
	if err != nil {
		return HealthReport{}, fmt.Errorf("queries: health: %w", err)
	}
	r := HealthReport{Active: active, Counts: map[catalog.Category]int{}}
	if active == 0 {
		return r, nil
	}

	sub := func(ws []weight) (float64, error) {
		score := 0.0
		for _, w := range ws {
			n, err := repo.Count(ctx, w.category)
			if err != nil {
				return 0, fmt.Errorf("queries: health: %s: %w", w.category, err)
			}
			r.Counts[w.category] = n
			score += w.points * (1 - float64(n)/float64(active))
		}
		return score, nil
	}

	completeness, err := sub(completenessWeights)
	if err != nil {
		return HealthReport{}, err
	}
	stock, err := sub(stockWeights)
	if err != nil {
		return HealthReport{}, err
	}

	r.Completeness = clampRound(completeness)
	r.StockHealth = clampRound(stock)
	r.Score = clampRound(completenessShare*completeness + stockShare*stock)
	return r, nil
}

func clampRound(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

var issueLabels = map[catalog.Category]string{
	catalog.NoPrice:       "sin precio",
	catalog.NoDescription: "sin descripción",
	catalog.NoImage:       "sin imagen",
	catalog.NoCategory:    "sin categoría",
	catalog.NoSKU:         "sin SKU",
	catalog.OutOfStock:    "agotados",
	catalog.LowStock:      "con stock bajo",
	catalog.Backorder:     "en backorder",
}

type healthDetector struct {
	repo catalog.Repository
}

func (d *healthDetector) Name() string { return "health_score" }

func (d *healthDetector) Matches(normalized string) bool {
	return textnorm.ContainsAny(normalized,
		"salud del catalogo", "salud de catalogo", "salud catalogo", "health score", "catalog health",
		"puntaje del catalogo", "puntuacion del catalogo", "score del catalogo", "estado del catalogo",
		"como esta el catalogo", "como esta mi catalogo", "salud de la tienda")
}

func (d *healthDetector) Handle(ctx context.Context, q Query) (*response.RouteResponse, error) {
	r, err := ComputeHealth(ctx, d.repo)
	if err != nil {
		return nil, err
	}
	route := response.WithMeta(response.MetaRoute, "queries.health_score")
	if r.Active == 0 {
		return response.Consult("Salud del catálogo: 0/100. No hay productos activos para evaluar.", route)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Salud del catálogo: %d/100 (%d productos activos)", r.Score, r.Active)
	fmt.Fprintf(&b, "\n• Completitud de datos: %d/100", r.Completeness)
	fmt.Fprintf(&b, "\n• Salud de stock: %d/100", r.StockHealth)

	var issues []string
	for _, ws := range [][]weight{completenessWeights, stockWeights} {
		for _, w := range ws {
			if n := r.Counts[w.category]; n > 0 {
				issues = append(issues, fmt.Sprintf("%d %s", n, issueLabels[w.category]))
			}
		}
	}
	if len(issues) == 0 {
		b.WriteString("\nTodo en orden ✅")
	} else {
		b.WriteString("\nPendientes: " + strings.Join(issues, ", ") + ".")
		if !q.WantsCount && q.Limit >= DetailLimit {
			b.WriteString("\nPregunta por cada grupo (por ejemplo «productos sin precio full») para ver el listado.")
		}
	}
	return response.Consult(b.String(), route)
}
