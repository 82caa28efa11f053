package market

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentKind classifies what an Instrument identifies.
type InstrumentKind string

const (
	KindEquity InstrumentKind = "EQUITY"
	KindFxPair InstrumentKind = "FX_PAIR"
	KindMetal  InstrumentKind = "METAL"
	KindCrypto InstrumentKind = "CRYPTO"
)

// Instrument identifies what is being priced. It is a closed set of
// variants built through the constructors below; adapters that cannot
// handle a variant fail with UnsupportedAssetTypeError.
type Instrument struct {
	kind   InstrumentKind
	symbol string
	from   string
	to     string
}

// Equity identifies a listed equity by ticker symbol.
func Equity(symbol string) Instrument {
	return Instrument{kind: KindEquity, symbol: symbol}
}

// FxPair identifies a currency pair, priced as one unit of from in to.
func FxPair(from, to string) Instrument {
	return Instrument{kind: KindFxPair, from: from, to: to}
}

// Metal identifies a precious metal by ISO-style code (e.g. XAU) quoted
// in the given currency.
func Metal(code, quoteCurrency string) Instrument {
	return Instrument{kind: KindMetal, symbol: code, to: quoteCurrency}
}

// Crypto identifies a crypto asset by symbol.
func Crypto(symbol string) Instrument {
	return Instrument{kind: KindCrypto, symbol: symbol}
}

func (i Instrument) Kind() InstrumentKind { return i.kind }

// Symbol returns the ticker or asset code; empty for FX pairs.
func (i Instrument) Symbol() string { return i.symbol }

// From returns the base leg of an FX pair.
func (i Instrument) From() string { return i.from }

// To returns the quote leg of an FX pair.
func (i Instrument) To() string { return i.to }

// QuoteCurrency returns the currency the instrument is quoted in, when
// the variant carries one (FX pairs and metals). Empty otherwise.
func (i Instrument) QuoteCurrency() string { return i.to }

// QuoteContext carries ambient hints for a quote request. It is
// read-only to adapters.
type QuoteContext struct {
	// CurrencyHint is the caller's preferred quote currency; adapters
	// use it as the second tier of the currency fallback chain.
	CurrencyHint string
	// ExchangeMIC is the market identifier code the request targets,
	// when known. Coverage matching consults it for equities.
	ExchangeMIC string
	// Start and End bound the request window when the operation has one.
	Start time.Time
	End   time.Time
}

// Quote is the canonical OHLCV record all providers normalize into.
// Close is always present and holds a successfully parsed price; the
// remaining price fields are optional. Monetary fields are fixed-point
// decimals so downstream accounting never sees raw floats.
type Quote struct {
	Timestamp time.Time        `json:"timestamp"`
	Open      *decimal.Decimal `json:"open,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Low       *decimal.Decimal `json:"low,omitempty"`
	Close     decimal.Decimal  `json:"close"`
	Volume    *decimal.Decimal `json:"volume,omitempty"`
	Currency  string           `json:"currency"`
	Source    string           `json:"source"`
}

// AssetProfile is descriptive metadata for a security. Every field but
// Name is optional; an empty Name means "no profile data".
type AssetProfile struct {
	Source      string           `json:"source,omitempty"`
	Name        string           `json:"name"`
	QuoteType   string           `json:"quote_type,omitempty"`
	Sector      string           `json:"sector,omitempty"`
	Industry    string           `json:"industry,omitempty"`
	Country     string           `json:"country,omitempty"`
	Description string           `json:"description,omitempty"`
	Website     string           `json:"website,omitempty"`
	MarketCap   *decimal.Decimal `json:"market_cap,omitempty"`
	Employees   *uint64          `json:"employees,omitempty"`
	LogoURL     string           `json:"logo_url,omitempty"`
}

// SearchResult is one symbol search hit with its exchange metadata and
// the provider that produced it.
type SearchResult struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Exchange     string `json:"exchange"`
	AssetType    string `json:"asset_type"`
	ExchangeMIC  string `json:"exchange_mic,omitempty"`
	ExchangeName string `json:"exchange_name,omitempty"`
	Currency     string `json:"currency,omitempty"`
	DataSource   string `json:"data_source,omitempty"`
}

// NewSearchResult starts a search result; exchange metadata defaults
// are filled through the With* builder methods by each adapter.
func NewSearchResult(symbol, name, exchange, assetType string) SearchResult {
	return SearchResult{Symbol: symbol, Name: name, Exchange: exchange, AssetType: assetType}
}

func (r SearchResult) WithExchangeMIC(mic string) SearchResult {
	r.ExchangeMIC = mic
	return r
}

func (r SearchResult) WithExchangeName(name string) SearchResult {
	r.ExchangeName = name
	return r
}

func (r SearchResult) WithCurrency(currency string) SearchResult {
	r.Currency = currency
	return r
}

func (r SearchResult) WithDataSource(source string) SearchResult {
	r.DataSource = source
	return r
}

// DecimalFromFloat converts a vendor float into the canonical decimal
// representation. NaN and infinities are unrepresentable and report ok
// false; callers treat that as an absent optional field or a
// ValidationError on mandatory ones.
func DecimalFromFloat(v float64) (decimal.Decimal, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(v), true
}

// OptionalDecimal converts an optional vendor float, dropping values
// that cannot be represented.
func OptionalDecimal(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d, ok := DecimalFromFloat(*v)
	if !ok {
		return nil
	}
	return &d
}
