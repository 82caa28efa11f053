// Package metalprice adapts a metals/FX rate vendor that publishes one
// flat rate table per base currency. It serves latest quotes for
// precious metals and currency pairs, and answers symbol search from
// the same table; the vendor has no historical or profile endpoints.
package metalprice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bcmmbaga/wealthfolio/internal/market"
	"github.com/bcmmbaga/wealthfolio/internal/market/resolver"
)

const (
	// ProviderID stamps every canonical record this adapter emits.
	ProviderID = "METALPRICE"

	defaultBaseURL  = "https://api.metalprice.live"
	defaultCurrency = "USD"
	defaultRateTTL  = 60 * time.Second
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ratesResponse is the vendor's rate table: units of each code per one
// unit of the base currency.
type ratesResponse struct {
	Success   bool               `json:"success"`
	Base      string             `json:"base"`
	Timestamp int64              `json:"timestamp"`
	Rates     map[string]float64 `json:"rates"`
}

type rateTable struct {
	fetchedAt time.Time
	asOf      time.Time
	rates     map[string]float64
}

// Provider implements market.Provider over the rate-table vendor.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	chain      *resolver.Chain
	rateLimit  market.RateLimit
	ttl        time.Duration
	log        *zap.Logger

	// The full table for a base currency answers every code, so one
	// fetch is shared across concurrent requests and cached for ttl.
	sf     singleflight.Group
	mu     sync.RWMutex
	tables map[string]rateTable // keyed by base currency
}

// Option configures the adapter.
type Option func(*Provider)

// WithBaseURL points the adapter at a different endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(p *Provider) { p.httpClient = httpClient }
}

// WithResolverChain replaces the currency resolver chain.
func WithResolverChain(chain *resolver.Chain) Option {
	return func(p *Provider) { p.chain = chain }
}

// WithRateLimit overrides the default throughput policy.
func WithRateLimit(rl market.RateLimit) Option {
	return func(p *Provider) { p.rateLimit = rl }
}

// WithRateTTL sets how long a fetched rate table stays fresh.
func WithRateTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.ttl = ttl }
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// New builds a metalprice adapter authenticating with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		chain:      resolver.Default(),
		rateLimit: market.RateLimit{
			RequestsPerMinute: 60,
			MaxConcurrency:    2,
			MinDelay:          250 * time.Millisecond,
		},
		ttl:    defaultRateTTL,
		log:    zap.NewNop(),
		tables: make(map[string]rateTable),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) Priority() int { return 10 }

func (p *Provider) Capabilities() market.Capabilities {
	return market.Capabilities{
		InstrumentKinds: []market.InstrumentKind{market.KindMetal, market.KindFxPair},
		Coverage: market.Coverage{
			MetalQuoteCcyAllow: []string{"USD", "EUR"},
		},
		SupportsLatest: true,
		SupportsSearch: true,
	}
}

func (p *Provider) RateLimit() market.RateLimit { return p.rateLimit }

// currency resolves the quote currency for requests that do not carry
// one: resolver chain, then the context hint, then USD.
func (p *Provider) currency(qctx market.QuoteContext) string {
	if ccy, ok := p.chain.Currency(ProviderID, qctx); ok {
		return ccy
	}
	if qctx.CurrencyHint != "" {
		return qctx.CurrencyHint
	}
	return defaultCurrency
}

// LatestQuote prices one metal or FX pair off the vendor's rate table
// for the quote currency. The table maps code to units per one unit of
// base, so the price of the asset in base is the reciprocal.
func (p *Provider) LatestQuote(ctx context.Context, qctx market.QuoteContext, instrument market.Instrument) (market.Quote, error) {
	var code, quoteCcy string
	switch instrument.Kind() {
	case market.KindMetal:
		code = instrument.Symbol()
		quoteCcy = instrument.QuoteCurrency()
	case market.KindFxPair:
		code = instrument.From()
		quoteCcy = instrument.To()
	default:
		return market.Quote{}, &market.UnsupportedAssetTypeError{Message: "METALPRICE only supports metals and FX pairs"}
	}
	if quoteCcy == "" {
		quoteCcy = p.currency(qctx)
	}

	table, err := p.rates(ctx, quoteCcy)
	if err != nil {
		return market.Quote{}, err
	}

	rate, ok := table.rates[code]
	if !ok || rate == 0 {
		return market.Quote{}, &market.SymbolNotFoundError{Message: fmt.Sprintf("no rate for %s in %s", code, quoteCcy)}
	}
	rateDec, ok := market.DecimalFromFloat(rate)
	if !ok || rateDec.IsZero() {
		return market.Quote{}, &market.ValidationError{Message: fmt.Sprintf("invalid rate for %s: %v", code, rate)}
	}

	return market.Quote{
		Timestamp: table.asOf,
		Close:     decimal.NewFromInt(1).Div(rateDec),
		Currency:  quoteCcy,
		Source:    ProviderID,
	}, nil
}

// HistoricalQuotes is not offered by this vendor.
func (p *Provider) HistoricalQuotes(context.Context, market.QuoteContext, market.Instrument, time.Time, time.Time) ([]market.Quote, error) {
	return nil, &market.ProviderError{Provider: ProviderID, Message: "historical quotes not supported"}
}

// metalNames maps the vendor's precious-metal codes to display names.
// Every other code in the rate table is a currency.
var metalNames = map[string]string{
	"XAU": "Gold",
	"XAG": "Silver",
	"XPT": "Platinum",
	"XPD": "Palladium",
}

// Search lists codes from the USD rate table whose code or metal name
// contains the query, case-insensitively. Concurrent searches share
// the same cached table fetch as quote requests.
func (p *Provider) Search(ctx context.Context, query string) ([]market.SearchResult, error) {
	table, err := p.rates(ctx, defaultCurrency)
	if err != nil {
		return nil, err
	}

	q := strings.ToUpper(strings.TrimSpace(query))
	results := make([]market.SearchResult, 0, len(table.rates))
	for code, rate := range table.rates {
		if rate == 0 {
			continue
		}
		name, isMetal := metalNames[code]
		if !isMetal {
			name = code
		}
		if q != "" && !strings.Contains(code, q) && !strings.Contains(strings.ToUpper(name), q) {
			continue
		}
		assetType := string(market.KindFxPair)
		if isMetal {
			assetType = string(market.KindMetal)
		}
		results = append(results, market.NewSearchResult(code, name, "", assetType).
			WithCurrency(defaultCurrency).
			WithDataSource(ProviderID))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results, nil
}

// Profile is not offered by this vendor.
func (p *Provider) Profile(context.Context, string) (market.AssetProfile, error) {
	return market.AssetProfile{}, &market.ProviderError{Provider: ProviderID, Message: "asset profiles not supported"}
}

// rates returns the rate table for base, fetching it at most once per
// TTL; concurrent callers for the same base share one fetch.
func (p *Provider) rates(ctx context.Context, base string) (rateTable, error) {
	p.mu.RLock()
	table, ok := p.tables[base]
	p.mu.RUnlock()
	if ok && time.Since(table.fetchedAt) < p.ttl {
		return table, nil
	}

	v, err, _ := p.sf.Do(base, func() (any, error) {
		fresh, err := p.fetchRates(ctx, base)
		if err != nil {
			return rateTable{}, err
		}
		p.mu.Lock()
		p.tables[base] = fresh
		p.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return rateTable{}, err
	}
	return v.(rateTable), nil
}

func (p *Provider) fetchRates(ctx context.Context, base string) (rateTable, error) {
	p.log.Debug("fetching rate table", zap.String("provider", ProviderID), zap.String("base", base))

	endpoint := p.baseURL + "/v1/latest?base=" + url.QueryEscape(base)
	if p.apiKey != "" {
		endpoint += "&api_key=" + url.QueryEscape(p.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return rateTable{}, &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("building request: %v", err)}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return rateTable{}, &market.TimeoutError{Provider: ProviderID}
		}
		return rateTable{}, &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return rateTable{}, &market.RateLimitedError{Provider: ProviderID}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rateTable{}, &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var rr ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return rateTable{}, &market.ProviderError{Provider: ProviderID, Message: fmt.Sprintf("failed to parse rates response: %v", err)}
	}
	if !rr.Success {
		return rateTable{}, &market.ProviderError{Provider: ProviderID, Message: "vendor reported failure"}
	}

	asOf := time.Now().UTC()
	if rr.Timestamp > 0 {
		asOf = time.Unix(rr.Timestamp, 0).UTC()
	}
	return rateTable{fetchedAt: time.Now(), asOf: asOf, rates: rr.Rates}, nil
}
