package flows

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/resolvers"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

var choicePattern = regexp.MustCompile(`^#(\d+)\s+(.+)$`)

// choiceLabel renders a product as a clarification choice.
func choiceLabel(id int64, name string) string {
	return fmt.Sprintf("#%d %s", id, name)
}

func choiceLabels(items []catalog.ProductSummary) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = choiceLabel(s.ID, s.Name)
	}
	return out
}

// parseChoice splits a label built by choiceLabel.
func parseChoice(label string) (int64, string, bool) {
	m := choicePattern.FindStringSubmatch(label)
	if m == nil {
		return 0, "", false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, m[2], true
}

func draftFor(p catalog.Product, kind action.Kind) *memory.Draft {
	return &memory.Draft{Kind: kind, Target: action.Target{ProductID: p.ID, SKU: p.SKU}, ProductName: p.Name}
}

// nextDraft keeps the kind and the memory origin of d for product p.
func nextDraft(p catalog.Product, d memory.Draft) memory.Draft {
	n := *draftFor(p, d.Kind)
	n.Target.LastReferenced = d.Target.LastReferenced
	return n
}

// continueDraft asks for the next missing slot of d or, when nothing is
// missing, proposes it.
func (f *Flows) continueDraft(ctx context.Context, t *router.Turn, d memory.Draft, label string) (*response.RouteResponse, error) {
	if t.State.HasPending() {
		return alreadyPending(*t.State.Pending, label)
	}
	if d.Kind == "" {
		d.Kind = action.KindUpdateProduct
	}
	if !d.Target.Resolved() {
		return clarify(t, targetQuestion(d.Kind), memory.SlotTarget, nil, &d, label)
	}

	p, err := f.lookup(ctx, d.Target)
	if errors.Is(err, catalog.ErrNotFound) {
		return notFound(d.Target.String(), label)
	}
	if err != nil {
		return nil, err
	}

	if d.Kind == action.KindDeleteProduct {
		return f.propose(ctx, t, resolvers.DeleteProposal(p, d.Target.LastReferenced), label, refOf(p))
	}

	if d.Field == "" {
		q := fmt.Sprintf("¿Qué quieres cambiar de %s? Puedo cambiar %s.", choiceLabel(p.ID, p.Name), joinChoices(resolvers.FieldChoices))
		dd := nextDraft(p, d)
		dd.Value = d.Value
		return clarify(t, q, memory.SlotField, resolvers.FieldChoices, &dd, label)
	}
	if d.Value == nil {
		q := fmt.Sprintf("¿Qué nuevo %s quieres para %s?", resolvers.FieldLabel(d.Field), choiceLabel(p.ID, p.Name))
		dd := nextDraft(p, d)
		dd.Field = d.Field
		return clarify(t, q, memory.SlotValue, nil, &dd, label)
	}

	prop, err := resolvers.UpdateProposal(p, d.Field, d.Value, d.Target.LastReferenced)
	if errors.Is(err, action.ErrInvalidProposal) {
		q := fmt.Sprintf("Ese valor no es válido para %s. ¿Qué %s quieres para %s?",
			resolvers.FieldLabel(d.Field), resolvers.FieldLabel(d.Field), choiceLabel(p.ID, p.Name))
		dd := nextDraft(p, d)
		dd.Field = d.Field
		return clarify(t, q, memory.SlotValue, nil, &dd, label)
	}
	if err != nil {
		return nil, err
	}
	return f.propose(ctx, t, prop, label, refOf(p))
}

func (f *Flows) lookup(ctx context.Context, target action.Target) (catalog.Product, error) {
	if target.ProductID > 0 {
		return f.repo.Get(ctx, target.ProductID)
	}
	return f.repo.FindBySKU(ctx, target.SKU)
}

// resolveOrAsk resolves ref. A missing, unknown or ambiguous target ends
// the turn with the returned response; stop is false only when res holds
// the product.
func (f *Flows) resolveOrAsk(ctx context.Context, t *router.Turn, ref resolvers.TargetRef, fallback bool, d memory.Draft, label string) (res resolvers.Resolution, resp *response.RouteResponse, stop bool, err error) {
	res, err = resolvers.Resolve(ctx, f.repo, ref, t.State, fallback)
	switch {
	case err == nil:
		return res, nil, false, nil
	case errors.Is(err, resolvers.ErrNoTarget):
		resp, err = clarify(t, targetQuestion(d.Kind), memory.SlotTarget, nil, &d, label)
		return res, resp, true, err
	case errors.Is(err, resolvers.ErrAmbiguous):
		choices := choiceLabels(res.Candidates)
		q := fmt.Sprintf("Encontré varios productos que coinciden con %s. ¿Cuál de ellos?", ref.String())
		resp, err = clarify(t, q, memory.SlotTarget, choices, &d, label)
		return res, resp, true, err
	case errors.Is(err, catalog.ErrNotFound):
		resp, err = notFound(ref.String(), label)
		return res, resp, true, err
	}
	return res, nil, true, err
}

func targetQuestion(kind action.Kind) string {
	verb := "cambiar"
	if kind == action.KindDeleteProduct {
		verb = "enviar a la papelera"
	}
	return fmt.Sprintf("¿Qué producto quieres %s? Indica el #id, el SKU o el nombre entre comillas.", verb)
}

func notFound(what, label string) (*response.RouteResponse, error) {
	return response.Consult(fmt.Sprintf("No encontré el producto %s. Revisa el #id o el SKU.", what),
		route(label), response.WithMeta(response.MetaReason, ReasonNotFound))
}

func refOf(p catalog.Product) *catalog.ProductRef {
	ref := p.Ref()
	return &ref
}

func joinChoices(choices []string) string {
	switch len(choices) {
	case 0:
		return ""
	case 1:
		return choices[0]
	}
	return strings.Join(choices[:len(choices)-1], ", ") + " o " + choices[len(choices)-1]
}
