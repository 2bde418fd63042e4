package flows

import (
	"context"
	"errors"

	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

const (
	unknownSignalMessage = "No reconozco esa acción. Usa «Confirmar» o «Cancelar»."
	signalFailedMessage  = "No pude procesar tu respuesta en este momento. La acción sigue pendiente; inténtalo de nuevo."
)

// Pending resolves control signals and answers free-text yes/no while a
// proposal waits. Any other message passes through so read-only questions
// still work.
func (f *Flows) Pending(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	if t.Signal != nil {
		return f.signal(ctx, t, *t.Signal)
	}
	if !t.State.HasPending() {
		return nil, nil
	}
	env := *t.State.Pending

	switch {
	case pending.IsTextConfirmation(t.Normalized):
		return response.Consult(pending.UseButtonMessage(env),
			route("pending.text_confirmation"), response.WithMeta(response.MetaPendingID, env.ID))
	case pending.IsTextCancellation(t.Normalized) && !f.asksCatalog(t.Normalized):
		if _, err := f.machine.Cancel(ctx, t.State, ""); err != nil {
			return nil, err
		}
		return response.Consult(pending.CancelledMessage(env), route("pending.cancelled"))
	}
	return nil, nil
}

// asksCatalog reports whether a short "no ..." message is a health question
// ("no tienen precio") rather than a refusal.
func (f *Flows) asksCatalog(normalized string) bool {
	_, ok := f.classifier.Match(normalized)
	return ok
}

func (f *Flows) signal(ctx context.Context, t *router.Turn, sig pending.Signal) (*response.RouteResponse, error) {
	log := observability.WithTrace(ctx)
	if !sig.Valid() {
		return response.Consult(unknownSignalMessage, route("pending.unknown_signal"))
	}

	if sig.Type == pending.SignalCancel {
		env, err := f.machine.Cancel(ctx, t.State, sig.PendingID)
		if err != nil {
			return f.signalError(ctx, sig, err)
		}
		return response.Consult(pending.CancelledMessage(env), route("pending.cancelled"))
	}

	res, env, err := f.machine.Confirm(ctx, t.State, sig.PendingID)
	switch {
	case errors.Is(err, pending.ErrExecute):
		log.Error("confirmed proposal failed", "pending_id", env.ID, "kind", env.Action.Kind, "err", err)
		return response.Consult(pending.ExecuteFailedMessage(env), route("pending.execute_failed"),
			response.WithMeta(response.MetaPendingID, env.ID), response.WithFailure())
	case err != nil:
		return f.signalError(ctx, sig, err)
	}
	return response.Consult(pending.ConfirmedMessage(env, res.Summary), route("pending.confirmed"))
}

// signalError answers every refused signal; a signal never falls through to
// the text stages.
func (f *Flows) signalError(ctx context.Context, sig pending.Signal, err error) (*response.RouteResponse, error) {
	switch {
	case errors.Is(err, pending.ErrMissingID):
		return response.Consult(pending.MissingIDMessage, route("pending.missing_id"))
	case errors.Is(err, pending.ErrStalePending):
		return response.Consult(pending.StaleMessage, route("pending.stale"))
	case errors.Is(err, pending.ErrNoPending) && sig.PendingID != "":
		return response.Consult(pending.StaleMessage, route("pending.stale"))
	case errors.Is(err, pending.ErrNoPending):
		return response.Consult(pending.NothingPendingMessage, route("pending.none"))
	}
	observability.WithTrace(ctx).Error("pending signal failed", "signal", sig.Type, "err", err)
	return response.Consult(signalFailedMessage, route("pending.error"), response.WithFailure())
}
