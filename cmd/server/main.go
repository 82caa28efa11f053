package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
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

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second

	rt := buildRouter(cfg, log, timeout)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/quotes/latest", func(w http.ResponseWriter, r *http.Request) {
		handleLatest(w, r, rt)
	})
	mux.HandleFunc("/api/quotes/history", func(w http.ResponseWriter, r *http.Request) {
		handleHistory(w, r, rt)
	})
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		handleSearch(w, r, rt)
	})
	mux.HandleFunc("/api/profile", func(w http.ResponseWriter, r *http.Request) {
		handleProfile(w, r, rt)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * timeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildRouter registers every enabled provider from config.
func buildRouter(cfg config.Config, log *zap.Logger, timeout time.Duration) *router.Router {
	rt := router.New(router.WithLogger(log), router.WithTimeout(timeout))
	httpClient := httpx.New(timeout)

	if cfg.DSE.Enabled {
		if cfg.DSE.APIKey == "" {
			log.Warn("dse.enabled=true but DSE_API_KEY not set")
		}
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

// parseInstrument builds the instrument and quote context from query
// parameters. kind defaults to equity.
func parseInstrument(r *http.Request) (market.Instrument, market.QuoteContext, string) {
	q := r.URL.Query()
	qctx := market.QuoteContext{
		CurrencyHint: q.Get("currency"),
		ExchangeMIC:  q.Get("mic"),
	}

	switch strings.ToLower(q.Get("kind")) {
	case "", "equity":
		symbol := q.Get("symbol")
		if symbol == "" {
			return market.Instrument{}, qctx, "missing symbol query param"
		}
		return market.Equity(symbol), qctx, ""
	case "fx":
		from, to := q.Get("from"), q.Get("to")
		if from == "" || to == "" {
			return market.Instrument{}, qctx, "fx requires from and to query params"
		}
		return market.FxPair(from, to), qctx, ""
	case "metal":
		symbol := q.Get("symbol")
		if symbol == "" {
			return market.Instrument{}, qctx, "missing symbol query param"
		}
		return market.Metal(symbol, q.Get("currency")), qctx, ""
	case "crypto":
		symbol := q.Get("symbol")
		if symbol == "" {
			return market.Instrument{}, qctx, "missing symbol query param"
		}
		return market.Crypto(symbol), qctx, ""
	}
	return market.Instrument{}, qctx, "unknown instrument kind"
}

func handleLatest(w http.ResponseWriter, r *http.Request, rt *router.Router) {
	instrument, qctx, msg := parseInstrument(r)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	quote, err := rt.GetLatestQuote(r.Context(), qctx, instrument)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"quote": quote})
}

func handleHistory(w http.ResponseWriter, r *http.Request, rt *router.Router) {
	instrument, qctx, msg := parseInstrument(r)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		http.Error(w, "invalid or missing start date (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	end, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, "invalid or missing end date (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	qctx.Start, qctx.End = start, end

	quotes, err := rt.GetHistoricalQuotes(r.Context(), qctx, instrument, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"quotes": quotes})
}

func handleSearch(w http.ResponseWriter, r *http.Request, rt *router.Router) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		http.Error(w, "missing query param", http.StatusBadRequest)
		return
	}
	results, err := rt.Search(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"results": results})
}

func handleProfile(w http.ResponseWriter, r *http.Request, rt *router.Router) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "missing symbol query param", http.StatusBadRequest)
		return
	}
	profile, err := rt.GetProfile(r.Context(), symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"profile": profile})
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		rateLimited *market.RateLimitedError
		timeout     *market.TimeoutError
		unsupported *market.UnsupportedAssetTypeError
	)
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, market.ErrNoProviderAvailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &unsupported):
		status = http.StatusBadRequest
	case market.IsNotFound(err):
		status = http.StatusNotFound
	case errors.As(err, &rateLimited):
		status = http.StatusTooManyRequests
	case errors.As(err, &timeout):
		status = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
