package pending

import (
	"fmt"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

// ProposalResponse is the execute response for a fresh proposal.
func ProposalResponse(env action.Envelope, opts ...response.Option) (*response.RouteResponse, error) {
	msg := fmt.Sprintf("Propuesta: %s.\nPulsa «Confirmar» para aplicarla o escribe «cancelar».", env.Action.HumanSummary)
	prompt := "¿Confirmas? " + env.Action.HumanSummary
	opts = append(opts, response.WithMeta(response.MetaPendingID, env.ID))
	return response.Execute(msg, env.ID, prompt, env.Action, opts...)
}

// Reminder is appended to read-only answers while a proposal waits.
func Reminder(env action.Envelope) string {
	return fmt.Sprintf("⏳ Sigue pendiente: %s. Confírmala con el botón o escribe «cancelar».", env.Action.HumanSummary)
}

// AlreadyPendingMessage answers a new mutation request while another one
// waits.
func AlreadyPendingMessage(env action.Envelope) string {
	return fmt.Sprintf("Ya hay una acción pendiente: %s. Confírmala o cancélala antes de pedir otro cambio.", env.Action.HumanSummary)
}

// UseButtonMessage answers a free-text "sí" while a proposal waits.
func UseButtonMessage(env action.Envelope) string {
	return fmt.Sprintf("Para aplicar «%s» pulsa el botón «Confirmar». Por seguridad no confirmo cambios por texto.", env.Action.HumanSummary)
}

// CancelledMessage confirms a cancellation.
func CancelledMessage(env action.Envelope) string {
	return fmt.Sprintf("Listo, cancelé: %s. No se hizo ningún cambio.", env.Action.HumanSummary)
}

// ConfirmedMessage reports an applied proposal.
func ConfirmedMessage(env action.Envelope, summary string) string {
	if summary == "" {
		summary = env.Action.HumanSummary
	}
	return fmt.Sprintf("✅ Hecho: %s.", summary)
}

// ExecuteFailedMessage reports an executor failure. The proposal stays
// pending so the user can retry.
func ExecuteFailedMessage(env action.Envelope) string {
	return fmt.Sprintf("No pude aplicar «%s» en este momento. La acción sigue pendiente: vuelve a pulsar «Confirmar» o escribe «cancelar».", env.Action.HumanSummary)
}

// StaleMessage answers a signal for a proposal that is no longer pending.
const StaleMessage = "Esa confirmación ya no es válida: la acción expiró o fue reemplazada. No se hizo ningún cambio."

// MissingIDMessage answers a confirm signal that names no proposal.
const MissingIDMessage = "Para confirmar necesito el identificador de la acción pendiente. Usa el botón «Confirmar» de la propuesta."

// NothingPendingMessage answers a signal with nothing pending.
const NothingPendingMessage = "No hay ninguna acción pendiente de confirmación."

// ExpiredMessage tells the user an old proposal was dropped.
const ExpiredMessage = "La acción pendiente expiró sin confirmarse y se descartó."
