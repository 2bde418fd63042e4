package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/resolvers"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

const createNameQuestion = "¿Cómo se llama el producto nuevo? Puedes escribir, por ejemplo, «crea el producto \"Gorra azul\" con precio 15»."

// ExplicitUpdate handles a message that names the product, the field and
// the new value: "cambia el precio del #12 a 25".
func (f *Flows) ExplicitUpdate(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	n := t.Normalized
	if resolvers.HasCreateVerb(n) || resolvers.HasDeleteVerb(n) {
		return nil, nil
	}
	ref, ok := resolvers.ExtractExplicitTarget(t.Raw, n)
	if !ok {
		return nil, nil
	}
	field, ok := resolvers.ExtractField(n)
	if !ok {
		return nil, nil
	}
	value, ok := resolvers.ExtractValue(t.Raw, n, field, ref)
	if !ok {
		return nil, nil
	}

	const label = "update.explicit"
	if t.State.HasPending() {
		return alreadyPending(*t.State.Pending, label)
	}
	d := memory.Draft{Kind: action.KindUpdateProduct, Field: field, Value: value}
	res, resp, stop, err := f.resolveOrAsk(ctx, t, ref, false, d, label)
	if stop {
		return resp, err
	}
	d.Target = action.Target{ProductID: res.Product.ID, SKU: res.Product.SKU}
	return f.continueDraft(ctx, t, d, label)
}

// shortcutFields are the fields the last/first shortcuts read and write.
var shortcutFields = map[string]bool{
	action.FieldPrice:         true,
	action.FieldSalePrice:     true,
	action.FieldStockQuantity: true,
	action.FieldStockStatus:   true,
}

// Shortcuts handles price and stock for "el último producto", "el primer
// producto" and pronouns: "ponle precio 30", "¿cuánto stock tiene el
// último producto?".
func (f *Flows) Shortcuts(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	n := t.Normalized
	ref := resolvers.ExtractTarget(t.Raw, n)
	if ref.Explicit() || ref.Empty() || resolvers.HasCreateVerb(n) || resolvers.HasDeleteVerb(n) {
		return nil, nil
	}
	field, ok := resolvers.ExtractField(n)
	if !ok || !shortcutFields[field] {
		return nil, nil
	}
	value, hasValue := resolvers.ExtractValue(t.Raw, n, field, ref)
	if !hasValue && resolvers.HasUpdateVerb(n) {
		// Asking for the value is left to the pattern stage.
		return nil, nil
	}

	label := "shortcuts." + field
	if hasValue && t.State.HasPending() {
		return alreadyPending(*t.State.Pending, label)
	}
	d := memory.Draft{Kind: action.KindUpdateProduct, Field: field, Value: value}
	res, resp, stop, err := f.resolveOrAsk(ctx, t, ref, false, d, label)
	if stop {
		return resp, err
	}
	p := res.Product
	if !hasValue {
		f.remember(ctx, t, p.Ref())
		return response.Consult(fieldAnswer(p, field), route(label))
	}
	d.Target = action.Target{ProductID: p.ID, SKU: p.SKU, LastReferenced: res.LastReferenced}
	return f.continueDraft(ctx, t, d, label)
}

// Patterns handles the remaining mutation requests: creation, deletion and
// updates with a missing target, field or value, which end in a
// clarification carrying a draft.
func (f *Flows) Patterns(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	n := t.Normalized
	switch {
	case resolvers.HasCreateVerb(n):
		return f.create(ctx, t)
	case resolvers.HasDeleteVerb(n):
		if _, hasField := resolvers.ExtractField(n); !hasField {
			return f.remove(ctx, t)
		}
		return f.update(ctx, t)
	case resolvers.HasUpdateVerb(n):
		return f.update(ctx, t)
	}
	return nil, nil
}

func (f *Flows) create(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	const label = "patterns.create"
	if t.State.HasPending() {
		return alreadyPending(*t.State.Pending, label)
	}

	var (
		data action.ProductData
		ok   bool
		prop action.Proposal
		err  error
	)
	variable := resolvers.IsVariableCreate(t.Normalized)
	if variable {
		data, ok = resolvers.ParseCreateVariable(t.Raw, t.Normalized)
	} else {
		data, ok = resolvers.ParseCreate(t.Raw, t.Normalized)
	}
	if !ok {
		return clarify(t, createNameQuestion, memory.SlotName, nil, &memory.Draft{Kind: createKind(variable)}, label)
	}

	if variable {
		prop, err = resolvers.CreateVariableProposal(data)
	} else {
		prop, err = resolvers.CreateProposal(data)
	}
	if errors.Is(err, action.ErrInvalidProposal) {
		q := fmt.Sprintf("No pude armar el producto «%s» con esos datos. ¿Puedes repetir el pedido con un precio y stock válidos?", data.Name)
		return clarify(t, q, "", nil, nil, label)
	}
	if err != nil {
		return nil, err
	}
	return f.propose(ctx, t, prop, label, nil)
}

func createKind(variable bool) action.Kind {
	if variable {
		return action.KindCreateVariable
	}
	return action.KindCreateProduct
}

func (f *Flows) remove(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	const label = "patterns.delete"
	if t.State.HasPending() {
		return alreadyPending(*t.State.Pending, label)
	}
	ref := resolvers.ExtractTarget(t.Raw, t.Normalized)
	res, resp, stop, err := f.resolveOrAsk(ctx, t, ref, false, memory.Draft{Kind: action.KindDeleteProduct}, label)
	if stop {
		return resp, err
	}
	p := res.Product
	return f.propose(ctx, t, resolvers.DeleteProposal(p, res.LastReferenced), label, refOf(p))
}

func (f *Flows) update(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	const label = "patterns.update"
	if t.State.HasPending() {
		return alreadyPending(*t.State.Pending, label)
	}
	n := t.Normalized
	ref := resolvers.ExtractTarget(t.Raw, n)
	d := memory.Draft{Kind: action.KindUpdateProduct}
	if field, ok := resolvers.ExtractField(n); ok {
		d.Field = field
		if v, ok := resolvers.ExtractValue(t.Raw, n, field, ref); ok {
			d.Value = v
		}
	}

	// Without a reference in the message the last product is the target.
	res, resp, stop, err := f.resolveOrAsk(ctx, t, ref, true, d, label)
	if stop {
		return resp, err
	}
	p := res.Product
	d.Target = action.Target{ProductID: p.ID, SKU: p.SKU, LastReferenced: res.LastReferenced}
	return f.continueDraft(ctx, t, d, label)
}
