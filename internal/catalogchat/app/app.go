// Package app wires the catalog chat assistant: storage, conversation
// memory, the pending-action machine, the model gate and the router.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/catalogchat/common/retry"
	"github.com/bdobrica/catalogchat/common/textnorm"
	"github.com/bdobrica/catalogchat/common/trace"
	"github.com/bdobrica/catalogchat/common/version"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
	"github.com/bdobrica/catalogchat/internal/catalogchat/config"
	"github.com/bdobrica/catalogchat/internal/catalogchat/flows"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/nlp"
	"github.com/bdobrica/catalogchat/internal/catalogchat/observability"
	"github.com/bdobrica/catalogchat/internal/catalogchat/pending"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
	"github.com/bdobrica/catalogchat/internal/catalogchat/router"
	"github.com/bdobrica/catalogchat/internal/catalogchat/store"
)

// Request is one inbound chat turn. Signal is set by the UI buttons; a
// confirmation is never inferred from Message.
type Request struct {
	ConversationID string          `json:"conversation_id,omitempty"`
	Message        string          `json:"message"`
	Signal         *pending.Signal `json:"signal,omitempty"`
}

// App is the assembled assistant.
type App struct {
	cfg         Config
	store       *store.Store
	repo        *catalog.SQLRepository
	mem         memory.Store
	configStore config.Store
	machine     *pending.Machine
	router      *router.Router
	sink        observability.Sink
	locks       *memory.KeyedMutex
	now         func() time.Time

	shutdownTracing func(context.Context) error
}

// Option customizes New.
type Option func(*App)

// WithClock replaces time.Now for the pending machine and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithSink adds a sink next to the log and audit sinks.
func WithSink(s observability.Sink) Option {
	return func(a *App) { a.sink = s }
}

// New opens the database and assembles the app.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.Version = version.Version
	shutdown, err := observability.SetupTracing(context.Background(), cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("app: tracing: %w", err)
	}
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	a := &App{cfg: cfg, store: st, now: time.Now, shutdownTracing: shutdown}
	for _, opt := range opts {
		opt(a)
	}

	sinks := observability.MultiSink{observability.LogSink{}, observability.NewAuditSink(st)}
	if a.sink != nil {
		sinks = append(sinks, a.sink)
	}
	a.sink = observability.Safe(sinks)

	a.configStore = config.New(st)
	a.repo = catalog.NewSQLRepository(st.DB(),
		catalog.WithClock(a.now),
		catalog.WithLowStockThreshold(func(ctx context.Context) int {
			return config.IntOr(ctx, a.configStore, config.KeyLowStockThreshold, cfg.Chat.LowStockThreshold)
		}),
	)
	a.mem = memory.NewSQLiteStore(st.DB())
	a.machine = pending.New(a.mem, a.repo,
		pending.WithClock(a.now),
		pending.WithSink(a.sink),
		pending.WithTTLFunc(func(ctx context.Context) time.Duration {
			return config.DurationOr(ctx, a.configStore, config.KeyPendingTTL, cfg.Chat.PendingTTL)
		}),
	)
	if cfg.SerializeTurns() {
		a.locks = memory.NewKeyedMutex()
	}

	deps := flows.Deps{Repo: a.repo, Memory: a.mem, Pending: a.machine, Sink: a.sink}
	if provider := a.provider(); provider != nil {
		client := a.modelClient(provider)
		deps.Gate = nlp.NewGate(client, nil, a.sink)
		deps.Fallback = nlp.NewFallback(client)
		slog.Info("model stages enabled", "model", a.modelName(context.Background()))
	} else {
		slog.Info("model stages disabled: no provider configured")
	}
	a.router = flows.NewRouter(deps, router.WithSink(a.sink), router.WithStrict(cfg.Chat.Strict))
	return a, nil
}

func (a *App) provider() nlp.Provider {
	if a.cfg.Provider != nil {
		return a.cfg.Provider
	}
	if a.cfg.NLP.APIKey == "" {
		return nil
	}
	ctx := context.Background()
	return nlp.NewOpenAI(nlp.OpenAIConfig{
		APIKey:  a.cfg.NLP.APIKey,
		BaseURL: config.StringOr(ctx, a.configStore, config.KeyNLPEndpoint, a.cfg.NLP.Endpoint),
		Model:   a.modelName(ctx),
	})
}

func (a *App) modelName(ctx context.Context) string {
	return config.StringOr(ctx, a.configStore, config.KeyNLPModel, a.cfg.NLP.Model)
}

func (a *App) modelClient(p nlp.Provider) *nlp.Client {
	timeout := a.cfg.NLP.Timeout
	return nlp.NewClient(p,
		nlp.WithRetry(retry.DefaultConfig),
		nlp.WithRateLimiter(nlp.NewRateLimiter(a.cfg.NLP.RateLimit, time.Minute)),
		nlp.WithTokenBudget(nlp.NewTokenBudget(a.cfg.NLP.TokenBudget)),
		nlp.WithTimeout(func(ctx context.Context) time.Duration {
			return config.DurationOr(ctx, a.configStore, config.KeyModelTimeout, timeout)
		}),
		nlp.WithModel(a.modelName),
	)
}

// Close releases the database.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(a.shutdownTracing(ctx), a.store.Close())
}

// Store returns the underlying database.
func (a *App) Store() *store.Store { return a.store }

// Catalog returns the catalog repository.
func (a *App) Catalog() *catalog.SQLRepository { return a.repo }

// ConfigStore returns the runtime configuration store.
func (a *App) ConfigStore() config.Store { return a.configStore }

// Memory returns the conversation store.
func (a *App) Memory() memory.Store { return a.mem }

// Handle runs one turn and always returns a valid response.
func (a *App) Handle(ctx context.Context, req Request) *response.RouteResponse {
	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" {
		convID = memory.DefaultConversationID
	}
	ctx, traceID := trace.Ensure(ctx)
	ctx = trace.WithConversation(ctx, convID)
	log := observability.WithTrace(ctx)

	if a.locks != nil {
		unlock := a.locks.Lock(convID)
		defer unlock()
	}

	state := a.mem.Read(ctx, convID)
	expired, err := a.machine.Expire(ctx, state)
	if err != nil {
		log.Warn("pending expiry check failed", "err", err)
	}
	if expired {
		state = a.mem.Read(ctx, convID)
	}

	t := &router.Turn{
		ConversationID: convID,
		Raw:            req.Message,
		Normalized:     textnorm.Normalize(req.Message),
		Signal:         req.Signal,
		State:          state,
	}
	resp := a.router.Route(ctx, t)

	a.saveHints(ctx, convID, t, resp)
	if expired && req.Signal == nil {
		resp.AppendMessage(pending.ExpiredMessage)
	}
	a.remind(ctx, convID, resp)

	resp.SetMeta(response.MetaConversationID, convID)
	if resp.Meta[response.MetaTraceID] == "" {
		resp.SetMeta(response.MetaTraceID, traceID)
	}
	return resp
}

// saveHints keeps the clarification a clarify response opened and clears
// every other transient hint.
func (a *App) saveHints(ctx context.Context, convID string, t *router.Turn, resp *response.RouteResponse) {
	hints := memory.Hints{}
	if resp.Mode == response.ModeClarify {
		if t.NextHints != nil {
			hints = *t.NextHints
		} else if resp.Clarification != nil {
			hints = memory.Hints{
				NeedsClarification: true,
				Question:           resp.Clarification.Question,
				Choices:            resp.Clarification.Choices,
			}
			if len(resp.Clarification.NeededFields) == 1 {
				hints.AwaitingSlot = resp.Clarification.NeededFields[0]
			}
		}
	}
	hints.LastRoute = resp.Route()
	if err := a.mem.Write(ctx, convID, memory.Patch{Hints: &hints}); err != nil {
		observability.WithTrace(ctx).Warn("save hints failed", "err", err)
	}
}

// remind appends the pending reminder to answers that did not come from the
// pending flow and are not already about the waiting proposal.
func (a *App) remind(ctx context.Context, convID string, resp *response.RouteResponse) {
	if resp.Mode == response.ModeExecute {
		return
	}
	if strings.HasPrefix(resp.Route(), flows.StagePending+".") || resp.Meta[response.MetaReason] == flows.ReasonAlreadyPending {
		return
	}
	state := a.mem.Read(ctx, convID)
	if state.Pending == nil {
		return
	}
	resp.AppendMessage(pending.Reminder(*state.Pending))
}

// Diagnose builds the full diagnostic context for a conversation.
func (a *App) Diagnose(ctx context.Context, conversationID string, topN int) (catalogctx.FullContext, error) {
	if conversationID == "" {
		conversationID = memory.DefaultConversationID
	}
	state := a.mem.Read(ctx, conversationID)
	return catalogctx.BuildFull(ctx, state, a.repo, catalogctx.Options{TopN: topN})
}

// Seed inserts products into the catalog.
func (a *App) Seed(ctx context.Context, products []catalog.Product) (int, error) {
	return a.repo.Seed(ctx, products)
}

// HasPending reports whether a conversation has a proposal waiting.
func (a *App) HasPending(ctx context.Context, conversationID string) bool {
	return a.mem.Read(ctx, conversationID).HasPending()
}

// ActiveCount implements the health server status provider.
func (a *App) ActiveCount(ctx context.Context) (int, error) {
	return a.repo.ActiveCount(ctx)
}

// Serve runs the health/debug server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.HTTPAddr == "" {
		return fmt.Errorf("%w: http_addr is required to serve", ErrInvalidConfig)
	}
	hs := NewHealthServer(a.cfg.HTTPAddr, a)
	if a.cfg.Debug.Context {
		hs.EnableDebug(a)
	}
	hs.EnableChat(a)
	if err := hs.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	hs.Stop()
	return nil
}
