package flows

import (
	"context"
	"fmt"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/resolvers"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

var correctionPhrases = []string{"perdon", "quise decir", "queria decir", "me equivoque", "error, era", "no, era", "no era",
	"mejor el", "mejor al", "corrijo", "en realidad", "digo el", "sorry", "i meant"}

// Correction handles "perdón, quise decir #149". The new target replaces
// the one of an open clarification, or becomes the last referenced product.
// The stage never proposes: an apology that also carries the field and the
// value is a complete update and is left to the update stages. A waiting
// proposal is never retargeted; the user has to cancel it first.
func (f *Flows) Correction(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	if !textnorm.ContainsAny(t.Normalized, correctionPhrases...) {
		return nil, nil
	}
	ref, ok := resolvers.ExtractExplicitTarget(t.Raw, t.Normalized)
	if !ok {
		return nil, nil
	}

	if env := t.State.Pending; env != nil {
		msg := fmt.Sprintf("%s Si querías aplicarlo a %s, escribe «cancelar» y repite el pedido.",
			pending.AlreadyPendingMessage(*env), ref.String())
		return response.Consult(msg, route("correction.pending"),
			response.WithMeta(response.MetaReason, ReasonAlreadyPending))
	}
	if field, ok := resolvers.ExtractField(t.Normalized); ok {
		if _, ok := resolvers.ExtractValue(t.Raw, t.Normalized, field, ref); ok {
			return nil, nil
		}
	}

	d := memory.Draft{Kind: action.KindUpdateProduct}
	if t.State.Hints.Draft != nil {
		d = *t.State.Hints.Draft
	}
	res, resp, stop, err := f.resolveOrAsk(ctx, t, ref, false, d, "correction")
	if stop {
		return resp, err
	}
	p := res.Product
	f.remember(ctx, t, p.Ref())

	lead := fmt.Sprintf("Entendido, ahora hablamos de %s.", choiceLabel(p.ID, p.Name))
	if t.State.Hints.Draft == nil {
		return response.Consult(lead, route("correction"))
	}
	return retarget(t, p, d, lead)
}

// retarget moves an open draft to p and asks again for what the draft still
// needs. A draft that was already complete asks for the value once more, so
// the change is always restated against the new product.
func retarget(t *router.Turn, p catalog.Product, d memory.Draft, lead string) (*response.RouteResponse, error) {
	const label = "correction"
	name := choiceLabel(p.ID, p.Name)
	next := *draftFor(p, d.Kind)

	switch {
	case d.Kind == action.KindDeleteProduct:
		return response.Consult(lead+" Si quieres enviarlo a la papelera, escribe «elimínalo».", route(label))
	case d.Kind != action.KindUpdateProduct:
		return response.Consult(lead, route(label))
	case d.Field == "":
		next.Value = d.Value
		q := fmt.Sprintf("%s ¿Qué quieres cambiar de %s? Puedo cambiar %s.", lead, name, joinChoices(resolvers.FieldChoices))
		return clarify(t, q, memory.SlotField, resolvers.FieldChoices, &next, label)
	}
	next.Field = d.Field
	q := fmt.Sprintf("%s ¿Qué nuevo %s quieres para %s?", lead, resolvers.FieldLabel(d.Field), name)
	if d.Value != nil {
		q = fmt.Sprintf("%s ¿Confirmas el nuevo %s para %s? Escribe el valor (antes dijiste %v).",
			lead, resolvers.FieldLabel(d.Field), name, d.Value)
	}
	return clarify(t, q, memory.SlotValue, nil, &next, label)
}
