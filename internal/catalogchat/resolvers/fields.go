package resolvers

import (
	"strings"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/queries"
)

type synonym struct {
	phrase string
	field  string
}

// Longer phrases first so "precio de oferta" is not read as "precio".
var fieldSynonyms = []synonym{
	{"precio de oferta", action.FieldSalePrice},
	{"precio rebajado", action.FieldSalePrice},
	{"precio oferta", action.FieldSalePrice},
	{"sale price", action.FieldSalePrice},
	{"oferta", action.FieldSalePrice},
	{"precio", action.FieldPrice},
	{"price", action.FieldPrice},
	{"valor", action.FieldPrice},
	{"costo", action.FieldPrice},
	{"cuesta", action.FieldPrice},
	{"estado de stock", action.FieldStockStatus},
	{"stock status", action.FieldStockStatus},
	{"stock", action.FieldStockQuantity},
	{"inventario", action.FieldStockQuantity},
	{"existencias", action.FieldStockQuantity},
	{"unidades", action.FieldStockQuantity},
	{"cantidad", action.FieldStockQuantity},
	{"descripcion", action.FieldDescription},
	{"description", action.FieldDescription},
	{"categoria", action.FieldCategory},
	{"category", action.FieldCategory},
	{"nombre", action.FieldName},
	{"titulo", action.FieldName},
	{"name", action.FieldName},
	{"imagen", action.FieldImageURL},
	{"foto", action.FieldImageURL},
	{"image", action.FieldImageURL},
	{"codigo", action.FieldSKU},
	{"sku", action.FieldSKU},
}

var stockStatusPhrases = []struct {
	phrase string
	value  string
}{
	{"como agotado", "outofstock"},
	{"como sin stock", "outofstock"},
	{"como disponible", "instock"},
	{"como en stock", "instock"},
	{"en backorder", "onbackorder"},
	{"como backorder", "onbackorder"},
	{"bajo pedido", "onbackorder"},
}

func stockStatusValue(normalized string) (string, bool) {
	for _, s := range stockStatusPhrases {
		if strings.Contains(normalized, s.phrase) {
			return s.value, true
		}
	}
	return "", false
}

// FieldChoices are offered when a message asks to change something without
// saying what.
var FieldChoices = []string{"precio", "stock", "nombre", "descripción", "categoría", "sku"}

// ExtractField maps the first field synonym in normalized to its canonical
// change field. Words inside the target reference ("del sku X", a quoted
// name) do not count.
func ExtractField(normalized string) (string, bool) {
	text := blank(normalized, targetSpans(normalized))
	if _, ok := stockStatusValue(text); ok {
		return action.FieldStockStatus, true
	}
	for _, s := range fieldSynonyms {
		if textnorm.HasWord(text, s.phrase) || (strings.Contains(s.phrase, " ") && strings.Contains(text, s.phrase)) {
			return s.field, true
		}
	}
	return "", false
}

// FieldFromReply resolves a short slot-filling reply ("stock", "el precio")
// to a field.
func FieldFromReply(normalized string) (string, bool) {
	msg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(normalized, "el "), "la "))
	if len(textnorm.Tokens(msg)) > 3 {
		return "", false
	}
	return ExtractField(msg)
}

// FieldLabel returns the Spanish name of a change field.
func FieldLabel(field string) string {
	switch field {
	case action.FieldPrice:
		return "precio"
	case action.FieldSalePrice:
		return "precio de oferta"
	case action.FieldStockQuantity:
		return "stock"
	case action.FieldStockStatus:
		return "estado de stock"
	case action.FieldDescription:
		return "descripción"
	case action.FieldCategory:
		return "categoría"
	case action.FieldName:
		return "nombre"
	case action.FieldImageURL:
		return "imagen"
	case action.FieldSKU:
		return "SKU"
	case action.FieldStatus:
		return "estado"
	}
	return field
}

// FormatValue renders a change value for summaries.
func FormatValue(field string, v any) string {
	switch field {
	case action.FieldPrice, action.FieldSalePrice:
		if n, ok := action.Number(v); ok {
			return queries.FormatPrice(n)
		}
	case action.FieldStockQuantity:
		if n, ok := action.Number(v); ok {
			return queries.FormatPrice(n) + " unidades"
		}
	case action.FieldStockStatus:
		switch v {
		case "outofstock":
			return "agotado"
		case "instock":
			return "disponible"
		case "onbackorder":
			return "bajo pedido"
		}
	}
	if s, ok := v.(string); ok {
		return "«" + s + "»"
	}
	return ""
}

// NumericField reports whether field takes a number.
func NumericField(field string) bool {
	return field == action.FieldPrice || field == action.FieldSalePrice || field == action.FieldStockQuantity
}
