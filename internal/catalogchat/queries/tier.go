package queries

import "github.com/bdobrica/catalogchat/common/textnorm"

// Listing sizes.
const (
	ShortLimit  = 5
	DetailLimit = 50
)

var (
	expandWords = []string{"full", "top", "detalle", "detalles", "detallado", "detallada", "completo", "completa", "todos", "todas"}
	listWords   = []string{"lista", "listar", "listado", "muestra", "muestrame", "mostrar", "cuales", "ver", "dame", "ensena", "ensename"}
)

// Query is one health question after tiering.
type Query struct {
	Raw        string
	Normalized string
	// WantsCount asks for a one-line count instead of a listing.
	WantsCount bool
	Limit      int
}

// Tier decides the answer size for a normalized message. An expand signal
// wins over a list signal; neither means a bare count.
func Tier(normalized string) (limit int, wantsCount bool) {
	for _, w := range expandWords {
		if textnorm.HasWord(normalized, w) {
			return DetailLimit, false
		}
	}
	for _, w := range listWords {
		if textnorm.HasWord(normalized, w) {
			return ShortLimit, false
		}
	}
	return ShortLimit, true
}

// NewQuery tiers raw and normalized into a Query.
func NewQuery(raw, normalized string) Query {
	limit, count := Tier(normalized)
	return Query{Raw: raw, Normalized: normalized, WantsCount: count, Limit: limit}
}
