package market

import (
	"context"
	"time"
)

// Provider is the contract every vendor adapter implements. The router
// holds this interface, never a concrete vendor type, so adapters can
// be added without router changes.
type Provider interface {
	// ID is the stable provider identifier stamped on canonical records.
	ID() string
	// Priority orders candidates; lower values are tried first.
	Priority() int
	// Capabilities declares the instruments, coverage and operations
	// this provider serves. Static for the provider's lifetime.
	Capabilities() Capabilities
	// RateLimit declares the throughput policy the admission governor
	// enforces for this provider.
	RateLimit() RateLimit

	LatestQuote(ctx context.Context, qctx QuoteContext, instrument Instrument) (Quote, error)
	HistoricalQuotes(ctx context.Context, qctx QuoteContext, instrument Instrument, start, end time.Time) ([]Quote, error)
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Profile(ctx context.Context, symbol string) (AssetProfile, error)
}
