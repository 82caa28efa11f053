// Package resolver derives the settlement currency for a (provider,
// request-context) pair when the vendor response omits one. Adapters
// consult a Chain first, then the context's currency hint, then their
// own hard default, in that exact order.
package resolver

import (
	"github.com/bcmmbaga/wealthfolio/internal/market"
)

// Rule is one fallback rule; it yields a currency or reports no match.
type Rule interface {
	Currency(providerID string, ctx market.QuoteContext) (string, bool)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(providerID string, ctx market.QuoteContext) (string, bool)

func (f RuleFunc) Currency(providerID string, ctx market.QuoteContext) (string, bool) {
	return f(providerID, ctx)
}

// Chain evaluates rules in order; the first match wins.
type Chain struct {
	rules []Rule
}

// NewChain builds a chain from the given rules.
func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: rules}
}

// Default returns the chain adapters use when none is injected: the
// exchange-MIC settlement table.
func Default() *Chain {
	return NewChain(MICRule())
}

// Currency asks each rule in order for the currency to attribute to a
// response from providerID under ctx.
func (c *Chain) Currency(providerID string, ctx market.QuoteContext) (string, bool) {
	for _, r := range c.rules {
		if ccy, ok := r.Currency(providerID, ctx); ok {
			return ccy, true
		}
	}
	return "", false
}

// micCurrencies maps exchange MICs to the currency their listings
// settle in.
var micCurrencies = map[string]string{
	"XDAR": "TZS",
	"XNAI": "KES",
	"XJSE": "ZAR",
	"XLON": "GBP",
	"XNYS": "USD",
	"XNAS": "USD",
	"XTSE": "CAD",
	"XETR": "EUR",
	"XPAR": "EUR",
	"XSWX": "CHF",
	"XTKS": "JPY",
	"XASX": "AUD",
}

// MICRule resolves the currency from the request's exchange MIC.
func MICRule() Rule {
	return RuleFunc(func(_ string, ctx market.QuoteContext) (string, bool) {
		if ctx.ExchangeMIC == "" {
			return "", false
		}
		ccy, ok := micCurrencies[ctx.ExchangeMIC]
		return ccy, ok
	})
}
