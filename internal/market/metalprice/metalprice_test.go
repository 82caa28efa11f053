package metalprice_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bcmmbaga/wealthfolio/internal/market"
	"github.com/bcmmbaga/wealthfolio/internal/market/metalprice"
)

const usdRates = `{
	"success": true,
	"base": "USD",
	"timestamp": 1748871000,
	"rates": {"XAU": 0.0005, "XAG": 0.04, "EUR": 0.92, "TZS": 2600.0}
}`

func newProvider(t *testing.T, handler http.HandlerFunc, opts ...metalprice.Option) *metalprice.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]metalprice.Option{
		metalprice.WithBaseURL(srv.URL),
		metalprice.WithHTTPClient(srv.Client()),
	}, opts...)
	return metalprice.New("test-key", opts...)
}

func TestLatestQuote_Metal(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/latest", r.URL.Path)
		require.Equal(t, "USD", r.URL.Query().Get("base"))
		require.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Write([]byte(usdRates))
	})

	q, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAU", "USD"))
	require.NoError(t, err)

	// 0.0005 XAU per USD means one ounce costs 1/0.0005 = 2000 USD.
	want := decimal.NewFromInt(1).Div(decimal.NewFromFloat(0.0005))
	require.True(t, q.Close.Equal(want))
	require.Equal(t, "USD", q.Currency)
	require.Equal(t, "METALPRICE", q.Source)
	require.Equal(t, time.Unix(1748871000, 0).UTC(), q.Timestamp)
}

func TestLatestQuote_FxPair(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "USD", r.URL.Query().Get("base"))
		w.Write([]byte(usdRates))
	})

	q, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.FxPair("EUR", "USD"))
	require.NoError(t, err)

	want := decimal.NewFromInt(1).Div(decimal.NewFromFloat(0.92))
	require.True(t, q.Close.Equal(want))
	require.Equal(t, "USD", q.Currency)
}

func TestLatestQuote_MissingRate(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(usdRates))
	})

	_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XPT", "USD"))
	var snf *market.SymbolNotFoundError
	require.ErrorAs(t, err, &snf)
	require.Contains(t, snf.Message, "XPT")
}

func TestLatestQuote_EquityUnsupported(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for an unsupported instrument")
	})

	_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Equity("TCC"))
	var uate *market.UnsupportedAssetTypeError
	require.ErrorAs(t, err, &uate)
}

func TestLatestQuote_CurrencyFallback(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "EUR", r.URL.Query().Get("base"))
		w.Write([]byte(`{"success": true, "base": "EUR", "rates": {"XAU": 0.00046}}`))
	})

	// Metal without a quote currency takes the context hint.
	q, err := p.LatestQuote(context.Background(), market.QuoteContext{CurrencyHint: "EUR"}, market.Metal("XAU", ""))
	require.NoError(t, err)
	require.Equal(t, "EUR", q.Currency)
}

func TestLatestQuote_RateTableCached(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(usdRates))
	})

	_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAU", "USD"))
	require.NoError(t, err)
	_, err = p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAG", "USD"))
	require.NoError(t, err)

	// Both quotes price off one cached table.
	require.Equal(t, int32(1), hits.Load())
}

func TestLatestQuote_ExpiredTableRefetched(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(usdRates))
	}, metalprice.WithRateTTL(time.Nanosecond))

	_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAU", "USD"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAU", "USD"))
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestLatestQuote_VendorErrors(t *testing.T) {
	t.Parallel()

	t.Run("429 rate limited", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAU", "USD"))
		var rle *market.RateLimitedError
		require.ErrorAs(t, err, &rle)
	})

	t.Run("http failure", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAU", "USD"))
		var pe *market.ProviderError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, "HTTP 502", pe.Message)
	})

	t.Run("success false", func(t *testing.T) {
		t.Parallel()

		p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": false}`))
		})

		_, err := p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAU", "USD"))
		var pe *market.ProviderError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, "vendor reported failure", pe.Message)
	})
}

func TestSearch(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "USD", r.URL.Query().Get("base"))
		w.Write([]byte(usdRates))
	})

	t.Run("by code", func(t *testing.T) {
		rs, err := p.Search(context.Background(), "xau")
		require.NoError(t, err)
		require.Len(t, rs, 1)
		require.Equal(t, "XAU", rs[0].Symbol)
		require.Equal(t, "Gold", rs[0].Name)
		require.Equal(t, string(market.KindMetal), rs[0].AssetType)
		require.Equal(t, "USD", rs[0].Currency)
		require.Equal(t, "METALPRICE", rs[0].DataSource)
	})

	t.Run("by metal name", func(t *testing.T) {
		rs, err := p.Search(context.Background(), "silver")
		require.NoError(t, err)
		require.Len(t, rs, 1)
		require.Equal(t, "XAG", rs[0].Symbol)
	})

	t.Run("currency code", func(t *testing.T) {
		rs, err := p.Search(context.Background(), "tzs")
		require.NoError(t, err)
		require.Len(t, rs, 1)
		require.Equal(t, "TZS", rs[0].Symbol)
		require.Equal(t, string(market.KindFxPair), rs[0].AssetType)
	})

	t.Run("empty query lists every code sorted", func(t *testing.T) {
		rs, err := p.Search(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, rs, 4)
		for i := 1; i < len(rs); i++ {
			require.Less(t, rs[i-1].Symbol, rs[i].Symbol)
		}
	})

	t.Run("no match", func(t *testing.T) {
		rs, err := p.Search(context.Background(), "doge")
		require.NoError(t, err)
		require.Empty(t, rs)
	})
}

func TestSearch_SharesCachedRateTable(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(usdRates))
	})

	_, err := p.Search(context.Background(), "gold")
	require.NoError(t, err)
	_, err = p.LatestQuote(context.Background(), market.QuoteContext{}, market.Metal("XAU", "USD"))
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())
}

func TestSearch_VendorFailure(t *testing.T) {
	t.Parallel()

	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Search(context.Background(), "gold")
	var pe *market.ProviderError
	require.ErrorAs(t, err, &pe)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	caps := metalprice.New("test-key").Capabilities()

	require.True(t, caps.SupportsOperation(market.OpLatest))
	require.True(t, caps.SupportsOperation(market.OpSearch))
	require.False(t, caps.SupportsOperation(market.OpHistorical))
	require.False(t, caps.SupportsOperation(market.OpProfile))

	require.True(t, caps.Matches(market.Metal("XAU", "USD"), market.QuoteContext{}))
	require.True(t, caps.Matches(market.FxPair("EUR", "USD"), market.QuoteContext{}))
	require.False(t, caps.Matches(market.Metal("XAU", "GBP"), market.QuoteContext{}))
	require.False(t, caps.Matches(market.Equity("TCC"), market.QuoteContext{}))
}
