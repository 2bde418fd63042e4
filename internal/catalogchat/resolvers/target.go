// Package resolvers extracts targets, fields and values from a message and
// builds catalog proposals from them without asking the model.
package resolvers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bdobrica/catalogchat/common/textnorm"
)

// TargetRef is a product reference found in a message.
type TargetRef struct {
	ProductID int64
	SKU       string
	Name      string
	// Pronoun marks "este producto", "ese", "lo" and similar references to
	// the last product of the conversation.
	Pronoun bool
	// Latest and Earliest mark "el último producto" and "el primer
	// producto", resolved by catalog order.
	Latest   bool
	Earliest bool
}

// Explicit reports whether the message itself named the product.
func (t TargetRef) Explicit() bool {
	return t.ProductID > 0 || t.SKU != "" || t.Name != ""
}

// Empty reports whether no reference was found.
func (t TargetRef) Empty() bool {
	return !t.Explicit() && !t.Pronoun && !t.Latest && !t.Earliest
}

func (t TargetRef) String() string {
	switch {
	case t.ProductID > 0:
		return "#" + strconv.FormatInt(t.ProductID, 10)
	case t.SKU != "":
		return "SKU " + t.SKU
	case t.Name != "":
		return "«" + t.Name + "»"
	case t.Latest:
		return "el último producto"
	case t.Earliest:
		return "el primer producto"
	case t.Pronoun:
		return "el producto anterior"
	}
	return ""
}

var (
	idPattern     = regexp.MustCompile(`(?:#\s*|\b(?:producto|product|articulo|item|id)\s+(?:#\s*|n(?:o|ro|um)?\.?\s*)?)(\d{1,9})\b`)
	skuPattern    = regexp.MustCompile(`(?i)\bsku\s*[:=#]?\s*([A-Za-z0-9][A-Za-z0-9._\-]*\d[A-Za-z0-9._\-]*|[A-Za-z0-9]+-[A-Za-z0-9._\-]+)`)
	quotedPattern = regexp.MustCompile(`["“«']([^"”»']{2,80})["”»']`)

	latestPhrases   = []string{"ultimo producto", "producto mas reciente", "ultimo que cree", "ultimo creado", "ultimo agregado"}
	earliestPhrases = []string{"primer producto", "producto mas antiguo", "primero de la lista", "primer articulo"}
	pronounPhrases  = []string{"este producto", "ese producto", "el mismo producto", "mismo producto", "dicho producto",
		"ponle", "cambiale", "subele", "bajale", "actualizale", "su precio", "su stock", "su nombre", "su descripcion",
		"su categoria", "su sku", "eliminalo", "borralo", "quitalo", "el producto anterior"}
)

// ExtractTarget finds the product named in a message. Explicit references
// (id, SKU, quoted name) win over implicit ones.
func ExtractTarget(raw, normalized string) TargetRef {
	var t TargetRef
	if m := idPattern.FindStringSubmatch(normalized); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil && id > 0 {
			t.ProductID = id
			return t
		}
	}
	if m := skuPattern.FindStringSubmatch(textnorm.Fold(raw)); m != nil {
		t.SKU = strings.TrimRight(m[1], ".,;:")
		return t
	}
	if q := quoted(raw); len(q) > 0 {
		t.Name = q[0]
		return t
	}
	switch {
	case textnorm.ContainsAny(normalized, latestPhrases...):
		t.Latest = true
	case textnorm.ContainsAny(normalized, earliestPhrases...):
		t.Earliest = true
	case textnorm.ContainsAny(normalized, pronounPhrases...):
		t.Pronoun = true
	}
	return t
}

// ExtractExplicitTarget is ExtractTarget restricted to explicit references.
func ExtractExplicitTarget(raw, normalized string) (TargetRef, bool) {
	t := ExtractTarget(raw, normalized)
	return t, t.Explicit()
}

func quoted(raw string) []string {
	var out []string
	for _, m := range quotedPattern.FindAllStringSubmatch(raw, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// targetSpans returns the byte ranges of explicit references in normalized
// so value extraction can ignore the digits of an id or SKU.
func targetSpans(normalized string) [][]int {
	var spans [][]int
	spans = append(spans, idPattern.FindAllStringIndex(normalized, -1)...)
	spans = append(spans, skuPattern.FindAllStringIndex(normalized, -1)...)
	spans = append(spans, quotedPattern.FindAllStringIndex(normalized, -1)...)
	return spans
}

func blank(s string, spans [][]int) string {
	b := []byte(s)
	for _, sp := range spans {
		for i := sp[0]; i < sp[1] && i < len(b); i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

func equalFold(a, b string) bool {
	return textnorm.Normalize(a) == textnorm.Normalize(b)
}
