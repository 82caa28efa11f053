// Package router selects which provider serves a request and drives
// the call-with-fallback loop across candidates under rate-limiter
// backpressure.
package router

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bcmmbaga/wealthfolio/internal/market"
	"github.com/bcmmbaga/wealthfolio/internal/market/ratelimit"
)

const defaultCallTimeout = 30 * time.Second

type entry struct {
	provider market.Provider
	caps     market.Capabilities
	limiter  *ratelimit.Limiter
	order    int // registration order, breaks priority ties
}

// Router owns the provider registry for the process lifetime. The
// registry is populated at startup; Register/Unregister are rare
// administrative operations, not part of the hot path.
type Router struct {
	log     *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	entries []entry
	nextOrd int
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout bounds each individual provider call.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Router) { r.log = log }
}

// New builds an empty router.
func New(opts ...Option) *Router {
	r := &Router{log: zap.NewNop(), timeout: defaultCallTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider. Its capabilities and rate-limit policy are
// captured once here and never re-read.
func (r *Router) Register(p market.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{
		provider: p,
		caps:     p.Capabilities(),
		limiter:  ratelimit.New(p.ID(), p.RateLimit()),
		order:    r.nextOrd,
	})
	r.nextOrd++
	r.log.Debug("provider registered", zap.String("provider", p.ID()), zap.Int("priority", p.Priority()))
}

// Unregister removes the provider with the given id, if registered.
func (r *Router) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.provider.ID() == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// GetLatestQuote returns the latest quote for instrument from the
// first capable provider that answers.
func (r *Router) GetLatestQuote(ctx context.Context, qctx market.QuoteContext, instrument market.Instrument) (market.Quote, error) {
	var out market.Quote
	err := r.resolve(ctx, market.OpLatest, &instrument, qctx, func(ctx context.Context, p market.Provider) error {
		q, err := p.LatestQuote(ctx, qctx, instrument)
		if err != nil {
			return err
		}
		out = q
		return nil
	})
	return out, err
}

// GetHistoricalQuotes returns daily bars for instrument between start
// and end, sorted ascending by timestamp.
func (r *Router) GetHistoricalQuotes(ctx context.Context, qctx market.QuoteContext, instrument market.Instrument, start, end time.Time) ([]market.Quote, error) {
	var out []market.Quote
	err := r.resolve(ctx, market.OpHistorical, &instrument, qctx, func(ctx context.Context, p market.Provider) error {
		qs, err := p.HistoricalQuotes(ctx, qctx, instrument, start, end)
		if err != nil {
			return err
		}
		out = qs
		return nil
	})
	return out, err
}

// Search queries providers that implement symbol search.
func (r *Router) Search(ctx context.Context, query string) ([]market.SearchResult, error) {
	var out []market.SearchResult
	err := r.resolve(ctx, market.OpSearch, nil, market.QuoteContext{}, func(ctx context.Context, p market.Provider) error {
		rs, err := p.Search(ctx, query)
		if err != nil {
			return err
		}
		out = rs
		return nil
	})
	return out, err
}

// GetProfile returns descriptive metadata for symbol.
func (r *Router) GetProfile(ctx context.Context, symbol string) (market.AssetProfile, error) {
	var out market.AssetProfile
	err := r.resolve(ctx, market.OpProfile, nil, market.QuoteContext{}, func(ctx context.Context, p market.Provider) error {
		ap, err := p.Profile(ctx, symbol)
		if err != nil {
			return err
		}
		out = ap
		return nil
	})
	return out, err
}

// candidates filters the registry by operation support and, when an
// instrument is present, by capability/coverage matching, then orders
// survivors by ascending priority with registration order breaking
// ties.
func (r *Router) candidates(op market.OperationKind, instrument *market.Instrument, qctx market.QuoteContext) []entry {
	r.mu.RLock()
	out := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.caps.SupportsOperation(op) {
			continue
		}
		if instrument != nil && !e.caps.Matches(*instrument, qctx) {
			continue
		}
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].provider.Priority() < out[j].provider.Priority()
	})
	return out
}

// resolve runs the sequential failover loop. Candidates are tried one
// at a time, never raced: querying a losing candidate burns that
// vendor's quota. A definitive "no data" answer is more informative
// than a transport failure from another vendor, so not-found outcomes
// win as the terminal error over hard ones.
func (r *Router) resolve(ctx context.Context, op market.OperationKind, instrument *market.Instrument, qctx market.QuoteContext, call func(context.Context, market.Provider) error) error {
	cands := r.candidates(op, instrument, qctx)
	if len(cands) == 0 {
		return market.ErrNoProviderAvailable
	}

	var notFound, hard, transient error
	for _, e := range cands {
		id := e.provider.ID()
		if err := e.limiter.TryAdmit(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Debug("provider admission denied", zap.String("provider", id), zap.String("op", string(op)))
			transient = err
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := call(callCtx, e.provider)
		cancel()
		// The slot is given back on every outcome, including timeout
		// and cancellation; an orphaned slot would starve the provider.
		e.limiter.Release()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &market.TimeoutError{Provider: id}
		}

		switch {
		case market.IsTransient(err):
			r.log.Debug("provider transient failure", zap.String("provider", id), zap.Error(err))
			transient = err
		case market.IsNotFound(err):
			r.log.Debug("provider has no data", zap.String("provider", id), zap.Error(err))
			notFound = err
		default:
			r.log.Warn("provider failed", zap.String("provider", id), zap.String("op", string(op)), zap.Error(err))
			hard = err
		}
	}

	switch {
	case notFound != nil:
		return notFound
	case hard != nil:
		return hard
	case transient != nil:
		return transient
	}
	return market.ErrNoProviderAvailable
}
