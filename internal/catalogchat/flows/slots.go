package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/resolvers"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

// maxReplyTokens bounds what counts as a short answer to a clarification.
// Longer messages are new requests and go through the other stages.
const maxReplyTokens = 6

const createCancelledMessage = "De acuerdo, no creo ningún producto."

var statusReplies = []struct{ phrase, value string }{
	{"agotado", "outofstock"},
	{"sin stock", "outofstock"},
	{"disponible", "instock"},
	{"en stock", "instock"},
	{"backorder", "onbackorder"},
	{"bajo pedido", "onbackorder"},
}

var ordinals = map[string]int{
	"primero": 1, "primera": 1, "segundo": 2, "segunda": 2,
	"tercero": 3, "tercera": 3, "cuarto": 4, "cuarta": 4, "quinto": 5, "quinta": 5,
}

// Slots fills the slot an open clarification asked for.
func (f *Flows) Slots(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	h := t.State.Hints
	if !h.NeedsClarification || h.AwaitingSlot == "" || t.State.HasPending() {
		return nil, nil
	}
	if n := len(textnorm.Tokens(t.Normalized)); n == 0 || n > maxReplyTokens {
		return nil, nil
	}
	var d memory.Draft
	if h.Draft != nil {
		d = *h.Draft
	}

	switch h.AwaitingSlot {
	case memory.SlotName:
		return f.nameReply(ctx, t, d)
	case memory.SlotTarget:
		p, ok, err := f.targetFromReply(ctx, t, h.Choices)
		if err != nil || !ok {
			return nil, err
		}
		d.Target = action.Target{ProductID: p.ID, SKU: p.SKU}
		d.ProductName = p.Name
	case memory.SlotField:
		field, ok := resolvers.FieldFromReply(t.Normalized)
		if !ok {
			return nil, nil
		}
		d.Field = field
		if d.Value == nil {
			// "precio a 25" answers both slots.
			if v, ok := resolvers.ExtractValue(t.Raw, t.Normalized, field, resolvers.TargetRef{}); ok {
				d.Value = v
			}
		}
	case memory.SlotValue:
		// "mejor el #14" retargets the draft; the number is not the value.
		if d.Field == "" || textnorm.ContainsAny(t.Normalized, correctionPhrases...) {
			return nil, nil
		}
		v, ok := valueFromReply(t.Raw, t.Normalized, d.Field)
		if !ok {
			return nil, nil
		}
		d.Value = v
	default:
		return nil, nil
	}
	return f.continueDraft(ctx, t, d, "slots."+h.AwaitingSlot)
}

// nameReply completes a create request that came without a name. Variable
// products need their attributes too, so they are asked for again. Replies
// that read as a command or a question are never taken as a name; a cancel
// drops the draft.
func (f *Flows) nameReply(ctx context.Context, t *router.Turn, d memory.Draft) (*response.RouteResponse, error) {
	n := t.Normalized
	if d.Kind != action.KindCreateProduct {
		return nil, nil
	}
	if pending.IsTextCancellation(n) {
		return response.Consult(createCancelledMessage, route("slots.cancelled"))
	}
	if f.notAName(n) {
		return nil, nil
	}
	name := strings.Trim(strings.TrimSpace(t.Raw), " .!\"'«»“”")
	if name == "" {
		return nil, nil
	}
	prop, err := resolvers.CreateProposal(action.ProductData{Name: name})
	if err != nil {
		return nil, nil
	}
	return f.propose(ctx, t, prop, "slots.name", nil)
}

// notAName reports whether a reply to the name question is really another
// request for a later stage.
func (f *Flows) notAName(normalized string) bool {
	if strings.ContainsAny(normalized, "?¿") || mutation(normalized) ||
		pending.IsTextConfirmation(normalized) || isChitChat(normalized) || isHelp(normalized) ||
		textnorm.ContainsAny(normalized, countPhrases...) || textnorm.ContainsAny(normalized, pendingPhrases...) {
		return true
	}
	_, ok := f.classifier.Match(normalized)
	return ok
}

// targetFromReply reads a product out of a reply to "¿qué producto?". The
// reply may be an #id, a SKU, a quoted or bare name, or the position of one
// of the offered choices.
func (f *Flows) targetFromReply(ctx context.Context, t *router.Turn, choices []string) (catalog.Product, bool, error) {
	ref := resolvers.ExtractTarget(t.Raw, t.Normalized)
	msg := strings.Trim(t.Normalized, " .!?¿¡")

	if ref.ProductID == 0 && ref.SKU == "" && ref.Name == "" {
		if n, err := strconv.Atoi(msg); err == nil && n > 0 {
			if id, ok := choiceByID(choices, int64(n)); ok {
				ref.ProductID = id
			} else if n <= len(choices) {
				ref.ProductID, _, _ = parseChoice(choices[n-1])
			} else {
				ref.ProductID = int64(n)
			}
		} else if n, ok := ordinals[strings.TrimPrefix(strings.TrimPrefix(msg, "el "), "la ")]; ok && n <= len(choices) {
			ref.ProductID, _, _ = parseChoice(choices[n-1])
		} else if id, ok := choiceByName(choices, msg); ok {
			ref.ProductID = id
		} else if msg != "" && !ref.Latest && !ref.Earliest && !ref.Pronoun {
			ref.Name = strings.Trim(strings.TrimSpace(t.Raw), " .!?¿¡\"'«»")
		}
	}
	if ref.Empty() {
		return catalog.Product{}, false, nil
	}

	res, err := resolvers.Resolve(ctx, f.repo, ref, t.State, false)
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, resolvers.ErrAmbiguous), errors.Is(err, resolvers.ErrNoTarget):
		return catalog.Product{}, false, nil
	case err != nil:
		return catalog.Product{}, false, err
	}
	return res.Product, true, nil
}

func choiceByID(choices []string, id int64) (int64, bool) {
	for _, c := range choices {
		if cid, _, ok := parseChoice(c); ok && cid == id {
			return cid, true
		}
	}
	return 0, false
}

// choiceByName matches a reply against the names of the choices. Only a
// single match counts.
func choiceByName(choices []string, normalized string) (int64, bool) {
	var found int64
	n := 0
	for _, c := range choices {
		id, name, ok := parseChoice(c)
		if !ok {
			continue
		}
		nn := textnorm.Normalize(name)
		if nn == normalized {
			return id, true
		}
		if normalized != "" && strings.Contains(nn, normalized) {
			found = id
			n++
		}
	}
	return found, n == 1
}

// valueFromReply reads a bare value for field.
func valueFromReply(raw, normalized, field string) (any, bool) {
	switch {
	case field == action.FieldStockStatus:
		msg := strings.Trim(normalized, " .!")
		for _, r := range statusReplies {
			if strings.Contains(msg, r.phrase) {
				return r.value, true
			}
		}
		return nil, false
	case resolvers.NumericField(field):
		n, ok := resolvers.NumberFromReply(normalized)
		if !ok {
			return nil, false
		}
		if field == action.FieldStockQuantity {
			if n != float64(int64(n)) {
				return nil, false
			}
			return int(n), true
		}
		return n, true
	}

	v := strings.TrimSpace(raw)
	v = strings.TrimSpace(strings.TrimPrefix(v, "a "))
	v = strings.Trim(v, " \"'«»“”")
	if v == "" {
		return nil, false
	}
	if field == action.FieldSKU {
		v = strings.ToUpper(strings.Fields(v)[0])
	}
	return v, true
}
