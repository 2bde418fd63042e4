// Package flows holds the stage handlers the router runs for every turn.
//
// Stages are registered in a fixed order: pending confirmation, slot
// filling, catalog-health queries, informational questions, target
// correction, explicit updates, last/first shortcuts, the remaining update
// patterns, the model intent gate, chit-chat and the generative fallback.
// Only the pending stage resolves a proposal; every mutation path ends in
// a proposal awaiting confirmation.
package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/nlp"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/queries"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
)

// Stage names, in router order.
const (
	StagePending    = "pending"
	StageSlots      = "slots"
	StageQueries    = "queries"
	StageInfo       = "info"
	StageCorrection = "correction"
	StageExplicit   = "update_explicit"
	StageShortcuts  = "shortcuts"
	StagePatterns   = "patterns"
	StageModel      = "nlp"
	StageChitChat   = "chitchat"
	StageFallback   = "fallback"
)

// Reason labels set in meta.reason.
const (
	ReasonAlreadyPending = "already_pending"
	ReasonNotFound       = "not_found"
	ReasonThrottled      = "throttled"
)

// Deps are the collaborators of the stages. Gate and Fallback are optional;
// without them the model stages never match.
type Deps struct {
	Repo       catalog.Repository
	Memory     memory.Store
	Pending    *pending.Machine
	Classifier *queries.Classifier
	Gate       *nlp.Gate
	Fallback   *nlp.Fallback
	Sink       observability.Sink
}

// Flows implements every stage over one set of Deps.
type Flows struct {
	repo       catalog.Repository
	mem        memory.Store
	machine    *pending.Machine
	classifier *queries.Classifier
	gate       *nlp.Gate
	fallback   *nlp.Fallback
	sink       observability.Sink
}

// New returns the stage handlers. Repo, Memory and Pending are required.
func New(d Deps) *Flows {
	f := &Flows{
		repo:       d.Repo,
		mem:        d.Memory,
		machine:    d.Pending,
		classifier: d.Classifier,
		gate:       d.Gate,
		fallback:   d.Fallback,
		sink:       observability.Safe(d.Sink),
	}
	if f.classifier == nil {
		f.classifier = queries.New(d.Repo)
	}
	return f
}

// Register adds the stages to r in order.
func (f *Flows) Register(r *router.Router) {
	r.Register(StagePending, f.Pending)
	r.Register(StageSlots, f.Slots)
	r.Register(StageQueries, f.Queries)
	r.Register(StageInfo, f.Info)
	r.Register(StageCorrection, f.Correction)
	r.Register(StageExplicit, f.ExplicitUpdate)
	r.Register(StageShortcuts, f.Shortcuts)
	r.Register(StagePatterns, f.Patterns)
	r.Register(StageModel, f.Model)
	r.Register(StageChitChat, f.ChitChat)
	r.Register(StageFallback, f.Fallback)
}

// NewRouter builds a router with every stage registered.
func NewRouter(d Deps, opts ...router.Option) *router.Router {
	r := router.New(opts...)
	New(d).Register(r)
	return r
}

func route(label string) response.Option {
	return response.WithMeta(response.MetaRoute, label)
}

// propose hands a complete proposal to the state machine and renders the
// result. A proposal refused because another one waits becomes a consult.
func (f *Flows) propose(ctx context.Context, t *router.Turn, p action.Proposal, label string, ref *catalog.ProductRef) (*response.RouteResponse, error) {
	if t.State.HasPending() {
		return alreadyPending(*t.State.Pending, label)
	}
	env, err := f.machine.Propose(ctx, t.State, p)
	if errors.Is(err, pending.ErrAlreadyPending) {
		// Another request won the race for the slot.
		fresh := f.mem.Read(ctx, t.ConversationID)
		if fresh.Pending != nil {
			return alreadyPending(*fresh.Pending, label)
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("flows: propose: %w", err)
	}
	if ref != nil {
		f.remember(ctx, t, *ref)
	}
	return pending.ProposalResponse(env, route(label))
}

func alreadyPending(env action.Envelope, label string) (*response.RouteResponse, error) {
	return response.Consult(pending.AlreadyPendingMessage(env),
		route(label), response.WithMeta(response.MetaReason, ReasonAlreadyPending))
}

// remember records ref as the last product of the conversation. Failures
// only cost the next turn its pronoun fallback.
func (f *Flows) remember(ctx context.Context, t *router.Turn, ref catalog.ProductRef) {
	if err := f.mem.Write(ctx, t.ConversationID, memory.Patch{LastProduct: &ref}); err != nil {
		observability.WithTrace(ctx).Warn("flows: remember last product", "product_id", ref.ID, "err", err)
	}
}

// clarify asks question and leaves hints for the slot-filling stage.
func clarify(t *router.Turn, question, slot string, choices []string, draft *memory.Draft, label string) (*response.RouteResponse, error) {
	t.NextHints = &memory.Hints{
		NeedsClarification: true,
		AwaitingSlot:       slot,
		Question:           question,
		Choices:            append([]string(nil), choices...),
		Draft:              draft,
	}
	var needed []string
	if slot != "" {
		needed = []string{slot}
	}
	return response.Clarify(question, needed, choices, route(label))
}

func (f *Flows) lite(ctx context.Context, state memory.ConversationState) catalogctx.LiteContext {
	stats, err := catalogctx.LoadStats(ctx, f.repo)
	if err != nil {
		observability.WithTrace(ctx).Warn("flows: lite context stats", "err", err)
	}
	return catalogctx.BuildLite(ctx, state, stats)
}
