// Package dse is the Dar es Salaam Stock Exchange market-data adapter.
// It fetches Tanzanian equity data from an external DSE API service
// and normalizes it into the canonical model.
package dse

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bcmmbaga/wealthfolio/internal/market"
	"github.com/bcmmbaga/wealthfolio/internal/market/resolver"
)

const (
	// ProviderID stamps every canonical record this adapter emits.
	ProviderID = "DSE"

	defaultBaseURL  = "http://localhost:9090"
	defaultCurrency = "TZS"

	// dailyBarHourUTC is the synthetic time-of-day for daily bars so
	// same-day bars from different vendors compare equal by date.
	dailyBarHourUTC = 14
)

// Provider implements market.Provider for the DSE API service.
type Provider struct {
	client     *Client
	clientOpts []ClientOption
	chain      *resolver.Chain
	rateLimit  market.RateLimit
	log        *zap.Logger
}

// Option configures the adapter.
type Option func(*Provider)

// WithClient replaces the API client entirely.
func WithClient(c *Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithClientOptions forwards options to the API client New builds,
// e.g. to point it at a different base URL or HTTP client.
func WithClientOptions(options ...ClientOption) Option {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, options...) }
}

// WithResolverChain replaces the currency resolver chain.
func WithResolverChain(chain *resolver.Chain) Option {
	return func(p *Provider) { p.chain = chain }
}

// WithRateLimit overrides the default throughput policy.
func WithRateLimit(rl market.RateLimit) Option {
	return func(p *Provider) { p.rateLimit = rl }
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// New builds a DSE adapter authenticating with apiKey. The API client
// is built once, after the options ran, unless WithClient supplied one.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		chain: resolver.Default(),
		rateLimit: market.RateLimit{
			RequestsPerMinute: 120,
			MaxConcurrency:    5,
			MinDelay:          100 * time.Millisecond,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient(apiKey, p.clientOpts...)
	}
	return p
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) Priority() int { return 5 }

func (p *Provider) Capabilities() market.Capabilities {
	return market.Capabilities{
		InstrumentKinds: []market.InstrumentKind{market.KindEquity},
		Coverage: market.Coverage{
			EquityMICAllow:  []string{"XDAR"},
			AllowUnknownMIC: true,
		},
		SupportsLatest:     true,
		SupportsHistorical: true,
		SupportsSearch:     true,
		SupportsProfile:    true,
	}
}

func (p *Provider) RateLimit() market.RateLimit { return p.rateLimit }

// extractSymbol pulls the equity ticker out of the instrument;
// anything but an equity is unsupported here.
func (p *Provider) extractSymbol(instrument market.Instrument) (string, error) {
	if instrument.Kind() != market.KindEquity {
		return "", &market.UnsupportedAssetTypeError{Message: "DSE only supports equities"}
	}
	return instrument.Symbol(), nil
}

// currency resolves the quote currency: resolver chain, then the
// context hint, then the TZS hard default, in that exact order.
func (p *Provider) currency(qctx market.QuoteContext) string {
	if ccy, ok := p.chain.Currency(ProviderID, qctx); ok {
		return ccy
	}
	if qctx.CurrencyHint != "" {
		return qctx.CurrencyHint
	}
	return defaultCurrency
}

// ── API response types ──────────────────────────────────────────────

type latestQuoteResponse struct {
	Symbol    string   `json:"symbol"`
	Close     float64  `json:"close"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Volume    *float64 `json:"volume"`
	Currency  string   `json:"currency"`
	Timestamp string   `json:"timestamp"`
}

type historicalResponse struct {
	Symbol   string          `json:"symbol"`
	Quotes   []historicalBar `json:"quotes"`
	Currency string          `json:"currency"`
}

type historicalBar struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume"`
}

type searchResponse struct {
	Results []searchItem `json:"results"`
}

type searchItem struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	AssetType string `json:"type"`
	Currency  string `json:"currency"`
}

type profileResponse struct {
	Name        *string  `json:"name"`
	Sector      string   `json:"sector"`
	Industry    string   `json:"industry"`
	Country     string   `json:"country"`
	Description string   `json:"description"`
	Website     string   `json:"website"`
	MarketCap   *float64 `json:"market_cap"`
	Employees   *uint64  `json:"employees"`
	LogoURL     string   `json:"logo_url"`
}

// ── Operations ──────────────────────────────────────────────────────

// LatestQuote fetches the most recent quote for an equity. A close of
// exactly zero means the vendor has no data, not a zero price.
func (p *Provider) LatestQuote(ctx context.Context, qctx market.QuoteContext, instrument market.Instrument) (market.Quote, error) {
	symbol, err := p.extractSymbol(instrument)
	if err != nil {
		return market.Quote{}, err
	}
	currency := p.currency(qctx)
	p.log.Debug("fetching latest quote", zap.String("provider", ProviderID), zap.String("symbol", symbol))

	body, err := p.client.get(ctx, "/api/v1/quotes/"+url.PathEscape(symbol)+"/latest")
	if err != nil {
		return market.Quote{}, err
	}

	var resp latestQuoteResponse
	if err := unmarshal(body, &resp, "quote"); err != nil {
		return market.Quote{}, err
	}

	if resp.Close == 0 {
		return market.Quote{}, &market.SymbolNotFoundError{Message: fmt.Sprintf("no quote data for symbol: %s", symbol)}
	}
	close, ok := market.DecimalFromFloat(resp.Close)
	if !ok {
		return market.Quote{}, &market.ValidationError{Message: fmt.Sprintf("invalid close price: %v", resp.Close)}
	}

	timestamp := time.Now().UTC()
	if resp.Timestamp != "" {
		if ts, perr := time.Parse(time.RFC3339, resp.Timestamp); perr == nil {
			timestamp = ts.UTC()
		}
	}
	if resp.Currency != "" {
		currency = resp.Currency
	}

	return market.Quote{
		Timestamp: timestamp,
		Open:      market.OptionalDecimal(resp.Open),
		High:      market.OptionalDecimal(resp.High),
		Low:       market.OptionalDecimal(resp.Low),
		Close:     close,
		Volume:    market.OptionalDecimal(resp.Volume),
		Currency:  currency,
		Source:    ProviderID,
	}, nil
}

// HistoricalQuotes fetches daily bars between start and end. A single
// malformed row is logged and skipped; only when every row fails does
// the whole operation report no data. Rows come back sorted ascending
// regardless of vendor order.
func (p *Provider) HistoricalQuotes(ctx context.Context, qctx market.QuoteContext, instrument market.Instrument, start, end time.Time) ([]market.Quote, error) {
	symbol, err := p.extractSymbol(instrument)
	if err != nil {
		return nil, err
	}
	currency := p.currency(qctx)
	p.log.Debug("fetching historical quotes",
		zap.String("provider", ProviderID),
		zap.String("symbol", symbol),
		zap.String("start", start.Format("2006-01-02")),
		zap.String("end", end.Format("2006-01-02")))

	path := fmt.Sprintf("/api/v1/quotes/%s/history?start=%s&end=%s",
		url.PathEscape(symbol), start.Format("2006-01-02"), end.Format("2006-01-02"))
	body, err := p.client.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp historicalResponse
	if err := unmarshal(body, &resp, "historical"); err != nil {
		return nil, err
	}
	if len(resp.Quotes) == 0 {
		return nil, market.ErrNoDataForRange
	}
	if resp.Currency != "" {
		currency = resp.Currency
	}

	quotes := make([]market.Quote, 0, len(resp.Quotes))
	for _, bar := range resp.Quotes {
		date, derr := time.Parse("2006-01-02", bar.Date)
		if derr != nil {
			p.log.Warn("skipping bar with invalid date", zap.String("provider", ProviderID), zap.String("date", bar.Date))
			continue
		}
		close, ok := market.DecimalFromFloat(bar.Close)
		if !ok {
			p.log.Warn("skipping bar with invalid close", zap.String("provider", ProviderID), zap.String("date", bar.Date), zap.Float64("close", bar.Close))
			continue
		}
		quotes = append(quotes, market.Quote{
			Timestamp: time.Date(date.Year(), date.Month(), date.Day(), dailyBarHourUTC, 0, 0, 0, time.UTC),
			Open:      market.OptionalDecimal(bar.Open),
			High:      market.OptionalDecimal(bar.High),
			Low:       market.OptionalDecimal(bar.Low),
			Close:     close,
			Volume:    market.OptionalDecimal(bar.Volume),
			Currency:  currency,
			Source:    ProviderID,
		})
	}
	if len(quotes) == 0 {
		return nil, market.ErrNoDataForRange
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Timestamp.Before(quotes[j].Timestamp) })
	return quotes, nil
}

// Search queries the symbol directory. Results missing an asset type
// default to EQUITY and are enriched with the exchange metadata this
// adapter serves: MIC XDAR, Dar es Salaam Stock Exchange, TZS.
func (p *Provider) Search(ctx context.Context, query string) ([]market.SearchResult, error) {
	p.log.Debug("searching symbols", zap.String("provider", ProviderID), zap.String("query", query))

	body, err := p.client.get(ctx, "/api/v1/symbols/search?query="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := unmarshal(body, &resp, "search"); err != nil {
		return nil, err
	}

	results := make([]market.SearchResult, 0, len(resp.Results))
	for _, item := range resp.Results {
		assetType := item.AssetType
		if assetType == "" {
			assetType = "EQUITY"
		}
		currency := item.Currency
		if currency == "" {
			currency = defaultCurrency
		}
		results = append(results, market.NewSearchResult(item.Symbol, item.Name, "DSE", assetType).
			WithExchangeMIC("XDAR").
			WithExchangeName("Dar es Salaam Stock Exchange").
			WithCurrency(currency).
			WithDataSource(ProviderID))
	}
	return results, nil
}

// Profile fetches descriptive metadata for symbol. The vendor returns
// an empty object rather than a 404 for unknown symbols, so a body
// with no resolvable name means the symbol was not found.
func (p *Provider) Profile(ctx context.Context, symbol string) (market.AssetProfile, error) {
	p.log.Debug("fetching profile", zap.String("provider", ProviderID), zap.String("symbol", symbol))

	body, err := p.client.get(ctx, "/api/v1/symbols/"+url.PathEscape(symbol)+"/profile")
	if err != nil {
		return market.AssetProfile{}, err
	}

	var resp profileResponse
	if err := unmarshal(body, &resp, "profile"); err != nil {
		return market.AssetProfile{}, err
	}
	if resp.Name == nil || *resp.Name == "" {
		return market.AssetProfile{}, &market.SymbolNotFoundError{Message: fmt.Sprintf("no profile data for symbol: %s", symbol)}
	}

	return market.AssetProfile{
		Source:      ProviderID,
		Name:        *resp.Name,
		QuoteType:   "EQUITY",
		Sector:      resp.Sector,
		Industry:    resp.Industry,
		Country:     resp.Country,
		Description: resp.Description,
		Website:     resp.Website,
		MarketCap:   market.OptionalDecimal(resp.MarketCap),
		Employees:   resp.Employees,
		LogoURL:     resp.LogoURL,
	}, nil
}
