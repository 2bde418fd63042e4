package flows

import (
	"context"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

const maxChitChatTokens = 5

var (
	greetings = []string{"hola", "buenas", "buenos dias", "buenas tardes", "buenas noches", "hey", "hello", "hi", "que tal", "saludos"}
	thanks    = []string{"gracias", "muchas gracias", "mil gracias", "genial gracias", "perfecto gracias", "thanks", "thank you"}
	farewells = []string{"adios", "chao", "chau", "hasta luego", "hasta manana", "nos vemos", "bye"}
	howAreYou = []string{"como estas", "como vas", "como andas", "todo bien"}
)

const (
	greetingMessage = "¡Hola! Soy tu asistente de catálogo. Pregúntame, por ejemplo, «productos sin precio» o escribe «ayuda»."
	thanksMessage   = "¡De nada! Si necesitas algo más del catálogo, aquí estoy."
	farewellMessage = "¡Hasta luego! Tu catálogo queda como lo dejamos."
	howAreYouMsg    = "¡Todo bien por aquí, listo para ayudarte con el catálogo! ¿Qué necesitas?"
)

func isChitChat(normalized string) bool {
	_, ok := chitChatReply(normalized)
	return ok
}

func chitChatReply(normalized string) (string, bool) {
	if len(textnorm.Tokens(normalized)) > maxChitChatTokens {
		return "", false
	}
	switch {
	case textnorm.IsOneOf(normalized, thanks...):
		return thanksMessage, true
	case textnorm.IsOneOf(normalized, farewells...):
		return farewellMessage, true
	case textnorm.IsOneOf(normalized, howAreYou...):
		return howAreYouMsg, true
	case textnorm.IsOneOf(normalized, greetings...):
		return greetingMessage, true
	}
	return "", false
}

// ChitChat answers greetings, thanks and farewells.
func (f *Flows) ChitChat(_ context.Context, t *router.Turn) (*response.RouteResponse, error) {
	msg, ok := chitChatReply(t.Normalized)
	if !ok {
		return nil, nil
	}
	return response.Consult(msg, route("chitchat"))
}
