package resolvers

import (
	"regexp"
	"strings"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
)

var (
	updateVerbs = []string{"cambia", "cambiar", "cambiale", "actualiza", "actualizar", "actualizale", "pon", "poner", "ponle",
		"establece", "establecer", "ajusta", "ajustar", "modifica", "modificar", "sube", "subir", "subele", "baja", "bajar",
		"bajale", "deja", "dejar", "marca", "marcar", "fija", "fijar", "set", "update", "change", "edita", "editar", "corrige"}
	createVerbs = []string{"crea", "crear", "creame", "agrega", "agregar", "anade", "anadir", "nuevo producto",
		"registra", "registrar", "da de alta", "create", "add"}
	deleteVerbs = []string{"elimina", "eliminar", "eliminalo", "borra", "borrar", "borralo", "quita", "quitar",
		"quitalo", "suprime", "delete", "remove", "papelera"}
	variableMarkers = []string{"producto variable", "con variaciones", "con variantes", "variable"}

	createNameAfter = regexp.MustCompile(`(?i)\bproducto\s+(?:nuevo\s+)?(?:variable\s+)?(?:llamado\s+|que\s+se\s+llame\s+|con\s+nombre\s+)?([^,;]+?)(?:\s+(?:con|a|de|por|en)\s|\s*[,;]|\s*$)`)
	priceInCreate   = regexp.MustCompile(`(?:precio(?:\s+base)?|price|vale|cuesta)\s*(?:de|:|=|en|a)?\s*\$?\s*(\d+(?:[.,]\d+)?)`)
	stockInCreate   = regexp.MustCompile(`(?:stock|inventario|existencias)\s*(?:de|:|=|en|a)?\s*(\d+)|(\d+)\s+unidades`)
	categoryPattern = regexp.MustCompile(`(?i)categor[ií]a\s*[:=]?\s*(?:de\s+)?["“«]?([^,;"”»]+?)["”»]?(?:\s*[,;.]|\s+(?:con|y)\s|$)`)
	descPattern     = regexp.MustCompile(`(?i)descripci[oó]n\s*[:=]?\s*["“«]([^"”»]+)["”»]`)

	attributeKeyword = regexp.MustCompile(`\b(tallas?|colou?res?|colors?|sizes?|materiales?|material)\b\s*[:=]?`)
	valuePrice       = regexp.MustCompile(`\b([a-z0-9]+(?:\s*/\s*[a-z0-9]+)?)\s+(?:a|en|=|:)\s*\$?\s*(\d+(?:[.,]\d+)?)`)
	listSplit        = regexp.MustCompile(`\s*(?:,|/|\by\b)\s*`)

	// Words that end an attribute value list.
	listStop = map[string]bool{"precio": true, "price": true, "base": true, "stock": true, "con": true,
		"a": true, "de": true, "en": true, "categoria": true, "sku": true, "descripcion": true}
)

// HasUpdateVerb reports whether normalized asks to change something.
func HasUpdateVerb(normalized string) bool { return hasAnyWord(normalized, updateVerbs) }

// HasCreateVerb reports whether normalized asks to create a product.
func HasCreateVerb(normalized string) bool {
	return hasAnyWord(normalized, createVerbs) && textnorm.ContainsAny(normalized, "producto", "product", "articulo")
}

// HasDeleteVerb reports whether normalized asks to delete a product.
func HasDeleteVerb(normalized string) bool { return hasAnyWord(normalized, deleteVerbs) }

// IsVariableCreate reports whether a create request is for a variable
// product.
func IsVariableCreate(normalized string) bool {
	return textnorm.ContainsAny(normalized, variableMarkers...) || attributeKeyword.MatchString(normalized)
}

func hasAnyWord(normalized string, words []string) bool {
	for _, w := range words {
		if strings.Contains(w, " ") {
			if strings.Contains(normalized, w) {
				return true
			}
			continue
		}
		if textnorm.HasWord(normalized, w) {
			return true
		}
	}
	return false
}

// ParseCreate reads a simple product from a create request. ok is false
// when no name could be found.
func ParseCreate(raw, normalized string) (action.ProductData, bool) {
	var d action.ProductData
	if q := quoted(raw); len(q) > 0 {
		d.Name = q[0]
	} else if m := createNameAfter.FindStringSubmatch(raw); m != nil {
		name := strings.TrimSpace(m[1])
		lower := textnorm.Normalize(name)
		if lower != "" && !strings.HasPrefix(lower, "con ") && !strings.HasPrefix(lower, "variable") {
			d.Name = name
		}
	}

	if m := priceInCreate.FindStringSubmatch(normalized); m != nil {
		if n, ok := ParseNumber(m[1]); ok {
			d.Price = &n
		}
	}
	if m := stockInCreate.FindStringSubmatch(normalized); m != nil {
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		if n, ok := ParseNumber(digits); ok {
			q := int(n)
			d.StockQuantity = &q
		}
	}
	if m := skuPattern.FindStringSubmatch(textnorm.Fold(raw)); m != nil {
		d.SKU = strings.ToUpper(strings.TrimRight(m[1], ".,;:"))
	}
	if m := categoryPattern.FindStringSubmatch(raw); m != nil {
		d.Category = strings.TrimSpace(m[1])
	}
	if m := descPattern.FindStringSubmatch(raw); m != nil {
		d.Description = strings.TrimSpace(m[1])
	}
	return d, strings.TrimSpace(d.Name) != ""
}

// ParseCreateVariable reads a variable product: a simple create plus
// attribute lists and price rules. "tallas S, M, XL a 14 precio 10" yields
// base 10 and talla=xl at 14; "rojo/xl a 20" sets a variation price.
func ParseCreateVariable(raw, normalized string) (action.ProductData, bool) {
	d, ok := ParseCreate(raw, normalized)
	if d.Name != "" {
		if i := strings.Index(textnorm.Normalize(d.Name), " con "); i > 0 {
			d.Name = strings.TrimSpace(d.Name[:i])
		}
	}

	d.Attributes = map[string][]string{}
	valueOwner := map[string]string{}
	for _, m := range attributeValues(normalized) {
		attr := canonicalAttribute(m.keyword)
		for _, v := range m.values {
			if _, dup := valueOwner[v]; dup {
				continue
			}
			valueOwner[v] = attr
			d.Attributes[attr] = append(d.Attributes[attr], displayValue(v))
		}
	}

	pricing := &action.Pricing{BasePrice: d.Price}
	for _, m := range valuePrice.FindAllStringSubmatch(normalized, -1) {
		price, okNum := ParseNumber(m[2])
		if !okNum {
			continue
		}
		parts := listSplit.Split(m[1], -1)
		if len(parts) == 2 {
			combo := map[string]string{}
			for _, p := range parts {
				if attr, known := valueOwner[p]; known {
					combo[attr] = p
				}
			}
			if len(combo) == 2 {
				if pricing.ByVariation == nil {
					pricing.ByVariation = map[string]float64{}
				}
				pricing.ByVariation[action.VariationKey(combo)] = price
			}
			continue
		}
		attr, known := valueOwner[m[1]]
		if !known {
			continue
		}
		if pricing.ByAttribute == nil {
			pricing.ByAttribute = map[string]map[string]float64{}
		}
		if pricing.ByAttribute[attr] == nil {
			pricing.ByAttribute[attr] = map[string]float64{}
		}
		pricing.ByAttribute[attr][m[1]] = price
	}
	if !pricing.Empty() {
		d.Pricing = pricing
	}
	return d, ok && len(d.Attributes) > 0
}

type attributeMatch struct {
	keyword string
	values  []string
}

// attributeValues reads each attribute keyword and the list that follows
// it, up to the next keyword or the first stop word.
func attributeValues(normalized string) []attributeMatch {
	locs := attributeKeyword.FindAllStringSubmatchIndex(normalized, -1)
	out := make([]attributeMatch, 0, len(locs))
	for i, loc := range locs {
		end := len(normalized)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		m := attributeMatch{keyword: normalized[loc[2]:loc[3]]}
		for _, piece := range listSplit.Split(normalized[loc[1]:end], -1) {
			words := strings.Fields(piece)
			if len(words) == 0 {
				continue
			}
			if listStop[words[0]] {
				break
			}
			m.values = append(m.values, words[0])
			if len(words) > 1 {
				break
			}
		}
		if len(m.values) > 0 {
			out = append(out, m)
		}
	}
	return out
}

func canonicalAttribute(word string) string {
	switch {
	case strings.HasPrefix(word, "talla"), strings.HasPrefix(word, "size"):
		return "talla"
	case strings.HasPrefix(word, "color"), strings.HasPrefix(word, "colour"):
		return "color"
	case strings.HasPrefix(word, "material"):
		return "material"
	}
	return word
}

func displayValue(v string) string {
	if len(v) <= 3 {
		return strings.ToUpper(v)
	}
	return strings.ToUpper(v[:1]) + v[1:]
}
