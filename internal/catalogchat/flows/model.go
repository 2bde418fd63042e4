package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/nlp"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
	"github.com/bdobrica/catalogchat/internal/catalogchat/resolvers"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

// declined reports model errors that mean "no intent" rather than a fault.
func declined(err error) bool {
	return errors.Is(err, nlp.ErrNotConfigured) ||
		errors.Is(err, nlp.ErrSchemaRejected) ||
		errors.Is(err, nlp.ErrMalformedOutput) ||
		errors.Is(err, nlp.ErrLowConfidence) ||
		errors.Is(err, nlp.ErrNoIntent) ||
		errors.Is(err, nlp.ErrThrottled) ||
		errors.Is(err, nlp.ErrRateLimit)
}

// Model asks the intent gate what the user wants. Only a result that passed
// the allowlist schema is used, and it is rebuilt from the catalog: the
// model never decides the summary the user confirms.
func (f *Flows) Model(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	if f.gate == nil || strings.TrimSpace(t.Raw) == "" || isChitChat(t.Normalized) {
		return nil, nil
	}
	intent, err := f.gate.Parse(ctx, t.ConversationID, t.Raw, f.lite(ctx, t.State))
	if err != nil {
		if declined(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("flows: intent gate: %w", err)
	}

	const label = "nlp.intent"
	if t.State.HasPending() {
		return alreadyPending(*t.State.Pending, label)
	}

	p := intent.Proposal
	switch p.Kind {
	case action.KindCreateProduct, action.KindCreateVariable:
		if p.ProductData == nil {
			return nil, nil
		}
		var prop action.Proposal
		if p.Kind == action.KindCreateVariable {
			prop, err = resolvers.CreateVariableProposal(*p.ProductData)
		} else {
			prop, err = resolvers.CreateProposal(*p.ProductData)
		}
		if err != nil {
			return nil, nil
		}
		return f.propose(ctx, t, prop, label, nil)
	}

	prod, err := f.lookup(ctx, p.Target)
	if errors.Is(err, catalog.ErrNotFound) {
		return notFound(p.Target.String(), label)
	}
	if err != nil {
		return nil, err
	}

	var prop action.Proposal
	if p.Kind == action.KindDeleteProduct {
		prop = resolvers.DeleteProposal(prod, p.Target.LastReferenced)
	} else {
		prop, err = resolvers.ChangesProposal(prod, p.Changes, p.Target.LastReferenced)
		if err != nil {
			return nil, nil
		}
	}
	return f.propose(ctx, t, prop, label, refOf(prod))
}

// Fallback lets the model answer conversationally. The reply is text only;
// nothing is proposed and memory is not touched.
func (f *Flows) Fallback(ctx context.Context, t *router.Turn) (*response.RouteResponse, error) {
	if f.fallback == nil || strings.TrimSpace(t.Raw) == "" {
		return nil, nil
	}
	reply, err := f.fallback.Reply(ctx, t.ConversationID, t.Raw, f.lite(ctx, t.State))
	if err == nil {
		return response.Consult(reply, route("fallback.model"))
	}
	if msg, ok := nlp.UserMessage(err); ok {
		return response.Consult(msg, route("fallback.throttled"), response.WithMeta(response.MetaReason, ReasonThrottled))
	}
	if errors.Is(err, nlp.ErrNotConfigured) {
		return nil, nil
	}
	observability.WithTrace(ctx).Warn("fallback reply failed", "err", err)
	return response.Consult(nlp.UnavailableMessage, route("fallback.unavailable"))
}
