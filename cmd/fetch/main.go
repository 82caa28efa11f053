// fetch is a one-shot CLI for poking the market-data router: resolve a
// quote, a history range, a search or a profile and print the result
// as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bcmmbaga/wealthfolio/internal/config"
	"github.com/bcmmbaga/wealthfolio/internal/httpx"
	"github.com/bcmmbaga/wealthfolio/internal/market"
	"github.com/bcmmbaga/wealthfolio/internal/market/dse"
	"github.com/bcmmbaga/wealthfolio/internal/market/metalprice"
	"github.com/bcmmbaga/wealthfolio/internal/market/router"
)

func main() {
	_ = godotenv.Load()

	var (
		op         string
		kind       string
		symbol     string
		from       string
		to         string
		mic        string
		currency   string
		query      string
		start      string
		end        string
		timeoutSec int
		configPath string
	)

	flag.StringVar(&op, "op", "latest", "operation: latest|history|search|profile")
	flag.StringVar(&kind, "kind", "equity", "instrument kind: equity|fx|metal|crypto")
	flag.StringVar(&symbol, "symbol", "", "equity/metal/crypto symbol")
	flag.StringVar(&from, "from", "", "fx base currency")
	flag.StringVar(&to, "to", "", "fx quote currency")
	flag.StringVar(&mic, "mic", "", "exchange MIC hint")
	flag.StringVar(&currency, "currency", "", "currency hint")
	flag.StringVar(&query, "query", "", "search query")
	flag.StringVar(&start, "start", "", "history start date (YYYY-MM-DD)")
	flag.StringVar(&end, "end", "", "history end date (YYYY-MM-DD)")
	flag.IntVar(&timeoutSec, "timeout", 30, "request timeout seconds")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.Parse()

	log := zap.NewNop()
	if os.Getenv("DEBUG") != "" {
		log, _ = zap.NewDevelopment()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("config: %v", err)
	}
	timeout := time.Duration(timeoutSec) * time.Second
	rt := buildRouter(cfg, log, timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var out any
	switch op {
	case "latest":
		instrument, qctx := instrumentFromFlags(kind, symbol, from, to, mic, currency)
		out, err = rt.GetLatestQuote(ctx, qctx, instrument)
	case "history":
		instrument, qctx := instrumentFromFlags(kind, symbol, from, to, mic, currency)
		var s, e time.Time
		if s, err = time.Parse("2006-01-02", start); err != nil {
			fatalf("invalid -start: %v", err)
		}
		if e, err = time.Parse("2006-01-02", end); err != nil {
			fatalf("invalid -end: %v", err)
		}
		qctx.Start, qctx.End = s, e
		out, err = rt.GetHistoricalQuotes(ctx, qctx, instrument, s, e)
	case "search":
		out, err = rt.Search(ctx, query)
	case "profile":
		out, err = rt.GetProfile(ctx, symbol)
	default:
		fatalf("unknown -op %q", op)
	}
	if err != nil {
		fatalf("%s: %v", op, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(out)
}

func instrumentFromFlags(kind, symbol, from, to, mic, currency string) (market.Instrument, market.QuoteContext) {
	qctx := market.QuoteContext{CurrencyHint: currency, ExchangeMIC: mic}
	switch kind {
	case "equity":
		return market.Equity(symbol), qctx
	case "fx":
		return market.FxPair(from, to), qctx
	case "metal":
		return market.Metal(symbol, currency), qctx
	case "crypto":
		return market.Crypto(symbol), qctx
	}
	fatalf("unknown -kind %q", kind)
	return market.Instrument{}, qctx
}

func buildRouter(cfg config.Config, log *zap.Logger, timeout time.Duration) *router.Router {
	rt := router.New(router.WithLogger(log), router.WithTimeout(timeout))
	httpClient := httpx.New(timeout)

	if cfg.DSE.Enabled {
		clientOpts := []dse.ClientOption{dse.WithHTTPClient(httpClient)}
		if cfg.DSE.BaseURL != "" {
			clientOpts = append(clientOpts, dse.WithBaseURL(cfg.DSE.BaseURL))
		}
		rt.Register(dse.New(cfg.DSE.APIKey,
			dse.WithClientOptions(clientOpts...),
			dse.WithLogger(log),
			dse.WithRateLimit(market.RateLimit{
				RequestsPerMinute: cfg.DSE.MaxRequestsPerMinute,
				MaxConcurrency:    cfg.DSE.MaxConcurrency,
				MinDelay:          time.Duration(cfg.DSE.MinDelayMs) * time.Millisecond,
			})))
	}
	if cfg.Metalprice.Enabled {
		opts := []metalprice.Option{
			metalprice.WithHTTPClient(httpClient),
			metalprice.WithLogger(log),
			metalprice.WithRateTTL(time.Duration(cfg.Metalprice.RateTTLSec) * time.Second),
			metalprice.WithRateLimit(market.RateLimit{
				RequestsPerMinute: cfg.Metalprice.MaxRequestsPerMinute,
				MaxConcurrency:    cfg.Metalprice.MaxConcurrency,
				MinDelay:          time.Duration(cfg.Metalprice.MinDelayMs) * time.Millisecond,
			}),
		}
		if cfg.Metalprice.BaseURL != "" {
			opts = append(opts, metalprice.WithBaseURL(cfg.Metalprice.BaseURL))
		}
		rt.Register(metalprice.New(cfg.Metalprice.APIKey, opts...))
	}
	return rt
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
