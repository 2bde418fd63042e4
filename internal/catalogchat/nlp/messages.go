package nlp

import "errors"

// User-facing replies for model failures.
const (
	ThrottledMessage   = "⏳ Estoy recibiendo demasiadas consultas en este momento. Intenta de nuevo en un minuto o usa una orden directa como «productos sin precio»."
	RateLimitMessage   = "⏳ El asistente está limitado temporalmente por el proveedor del modelo. Las consultas directas siguen funcionando, por ejemplo «salud del catálogo»."
	UnavailableMessage = "No pude interpretar ese mensaje. Prueba con algo como «cambia el precio del producto #12 a 25» o escribe «ayuda»."
)

// UserMessage maps a model error to a polite reply. ok is false for errors
// that should fall through silently to the next stage.
func UserMessage(err error) (msg string, ok bool) {
	switch {
	case errors.Is(err, ErrThrottled):
		return ThrottledMessage, true
	case errors.Is(err, ErrRateLimit):
		return RateLimitMessage, true
	}
	return "", false
}
