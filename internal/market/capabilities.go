package market

import (
	"slices"
	"time"
)

// OperationKind names one of the four provider operations the router
// can dispatch.
type OperationKind string

const (
	OpLatest     OperationKind = "latest"
	OpHistorical OperationKind = "historical"
	OpSearch     OperationKind = "search"
	OpProfile    OperationKind = "profile"
)

// Coverage limits which instruments a provider may serve. The deny
// list takes precedence over the allow list when both name a MIC.
type Coverage struct {
	// EquityMICAllow lists exchange MICs the provider covers.
	EquityMICAllow []string
	// EquityMICDeny lists exchange MICs the provider must never serve.
	EquityMICDeny []string
	// AllowUnknownMIC accepts equity requests carrying a MIC that
	// matches neither list. Requests without a MIC always pass.
	AllowUnknownMIC bool
	// MetalQuoteCcyAllow, when non-nil, restricts non-equity requests
	// to these quote currencies.
	MetalQuoteCcyAllow []string
}

// Capabilities is a provider's static declaration of what it serves.
// Constructed once at registration, never mutated.
type Capabilities struct {
	InstrumentKinds    []InstrumentKind
	Coverage           Coverage
	SupportsLatest     bool
	SupportsHistorical bool
	SupportsSearch     bool
	SupportsProfile    bool
}

// RateLimit is the per-provider throughput policy enforced by the
// admission governor, not self-reported by the adapter at call time.
type RateLimit struct {
	RequestsPerMinute int
	MaxConcurrency    int
	MinDelay          time.Duration
}

// SupportsOperation reports whether the provider declares op.
func (c Capabilities) SupportsOperation(op OperationKind) bool {
	switch op {
	case OpLatest:
		return c.SupportsLatest
	case OpHistorical:
		return c.SupportsHistorical
	case OpSearch:
		return c.SupportsSearch
	case OpProfile:
		return c.SupportsProfile
	}
	return false
}

// Matches reports whether the provider may serve instrument under ctx.
// The predicate is pure so the router can evaluate it against every
// registered provider cheaply per request.
func (c Capabilities) Matches(instrument Instrument, ctx QuoteContext) bool {
	if !slices.Contains(c.InstrumentKinds, instrument.Kind()) {
		return false
	}

	if instrument.Kind() == KindEquity {
		mic := ctx.ExchangeMIC
		if mic == "" {
			return true
		}
		if slices.Contains(c.Coverage.EquityMICDeny, mic) {
			return false
		}
		if slices.Contains(c.Coverage.EquityMICAllow, mic) {
			return true
		}
		return c.Coverage.AllowUnknownMIC
	}

	if ccy := instrument.QuoteCurrency(); ccy != "" && c.Coverage.MetalQuoteCcyAllow != nil {
		return slices.Contains(c.Coverage.MetalQuoteCcyAllow, ccy)
	}
	return true
}
