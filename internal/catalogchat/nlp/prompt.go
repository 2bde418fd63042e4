package nlp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
)

const intentPromptTmpl = `Eres el intérprete de un asistente de catálogo de una tienda en línea.

Tu único trabajo es traducir el mensaje del usuario a un objeto JSON. Nunca
ejecutas cambios: solo los propones y el usuario los confirma con un botón.

Contexto permitido (no hay más datos):
%s

REGLAS (estrictas):
1. Responde SOLO con un objeto JSON válido, sin markdown ni texto fuera del JSON.
2. "intent" es "action" si el usuario pide cambiar, crear o eliminar un producto; si no, "none".
3. "kind" solo puede ser: update_product, create_product, create_product_variable, delete_product.
4. Para update_product y delete_product incluye "target" con "product_id", "sku" o "last_referenced": true
   (solo si hay last_product en el contexto).
5. Los campos de "changes" solo pueden ser: %s.
6. Nunca inventes ids, SKUs ni precios que el usuario no haya dicho.
7. "confidence" entre 0 y 1; si dudas, usa un valor bajo.
8. "summary" es una frase corta en español que describe el cambio.

Forma de la respuesta:
{
  "intent": "action" | "none",
  "kind": "<kind>",
  "target": {"product_id": 12} | {"sku": "ABC-1"} | {"last_referenced": true},
  "changes": {"price": 25},
  "product_data": {"name": "...", "price": 10, "attributes": {"talla": ["S","M"]},
                   "pricing": {"base_price": 10, "by_attribute": {"talla": {"M": 12}}, "by_variation": {"talla=m": 13}}},
  "summary": "...",
  "confidence": 0.0
}`

const fallbackPromptTmpl = `Eres el asistente de catálogo de una tienda en línea. Responde en español,
breve y amable (máximo tres frases).

Contexto permitido (no hay más datos):
%s

REGLAS:
1. No afirmes haber cambiado, creado ni eliminado nada: no puedes hacer cambios.
2. Si el usuario quiere un cambio, explícale cómo pedirlo, por ejemplo
   "cambia el precio del producto #12 a 25".
3. No inventes datos del catálogo que no estén en el contexto.
4. Si no entiendes el mensaje, haz una pregunta corta para aclararlo.`

// changeFields is the closed list shown to the model.
var changeFields = []string{"name", "price", "sale_price", "stock_quantity", "stock_status",
	"description", "sku", "category", "image_url", "status"}

// contextBlock renders lite as indented JSON. Only LiteContext fields can
// ever appear here.
func contextBlock(lite catalogctx.LiteContext) string {
	b, err := json.MarshalIndent(lite, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// IntentMessages builds the intent parse conversation.
func IntentMessages(message string, lite catalogctx.LiteContext) []Message {
	system := fmt.Sprintf(intentPromptTmpl, contextBlock(lite), strings.Join(changeFields, ", "))
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: message},
	}
}

// FallbackMessages builds the free-text fallback conversation.
func FallbackMessages(message string, lite catalogctx.LiteContext) []Message {
	return []Message{
		{Role: RoleSystem, Content: fmt.Sprintf(fallbackPromptTmpl, contextBlock(lite))},
		{Role: RoleUser, Content: message},
	}
}
