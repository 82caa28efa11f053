package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches_InstrumentKind(t *testing.T) {
	t.Parallel()

	caps := Capabilities{InstrumentKinds: []InstrumentKind{KindEquity}}

	require.True(t, caps.Matches(Equity("TCC"), QuoteContext{}))
	require.False(t, caps.Matches(FxPair("USD", "TZS"), QuoteContext{}))
	require.False(t, caps.Matches(Metal("XAU", "USD"), QuoteContext{}))
}

func TestMatches_EquityMIC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		coverage Coverage
		mic      string
		want     bool
	}{
		{"no mic on request", Coverage{EquityMICAllow: []string{"XDAR"}}, "", true},
		{"mic in allow", Coverage{EquityMICAllow: []string{"XDAR"}}, "XDAR", true},
		{"mic in deny", Coverage{EquityMICDeny: []string{"XNYS"}}, "XNYS", false},
		{"deny wins over allow", Coverage{EquityMICAllow: []string{"XDAR"}, EquityMICDeny: []string{"XDAR"}}, "XDAR", false},
		{"unknown mic allowed", Coverage{EquityMICAllow: []string{"XDAR"}, AllowUnknownMIC: true}, "XLON", true},
		{"unknown mic rejected", Coverage{EquityMICAllow: []string{"XDAR"}}, "XLON", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			caps := Capabilities{InstrumentKinds: []InstrumentKind{KindEquity}, Coverage: tc.coverage}
			got := caps.Matches(Equity("TCC"), QuoteContext{ExchangeMIC: tc.mic})
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMatches_MetalQuoteCurrency(t *testing.T) {
	t.Parallel()

	caps := Capabilities{
		InstrumentKinds: []InstrumentKind{KindMetal, KindFxPair},
		Coverage:        Coverage{MetalQuoteCcyAllow: []string{"USD", "EUR"}},
	}

	require.True(t, caps.Matches(Metal("XAU", "USD"), QuoteContext{}))
	require.True(t, caps.Matches(FxPair("GBP", "EUR"), QuoteContext{}))
	require.False(t, caps.Matches(Metal("XAU", "GBP"), QuoteContext{}))

	// No currency constraint on the instrument passes through.
	require.True(t, caps.Matches(Metal("XAU", ""), QuoteContext{}))

	// Absent allow list accepts any quote currency.
	open := Capabilities{InstrumentKinds: []InstrumentKind{KindMetal}}
	require.True(t, open.Matches(Metal("XAU", "GBP"), QuoteContext{}))
}

func TestMatches_IsPure(t *testing.T) {
	t.Parallel()

	caps := Capabilities{
		InstrumentKinds: []InstrumentKind{KindEquity},
		Coverage:        Coverage{EquityMICAllow: []string{"XDAR"}, AllowUnknownMIC: true},
	}
	instrument := Equity("TCC")
	ctx := QuoteContext{ExchangeMIC: "XDAR"}

	first := caps.Matches(instrument, ctx)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, caps.Matches(instrument, ctx))
	}
}

func TestSupportsOperation(t *testing.T) {
	t.Parallel()

	caps := Capabilities{SupportsLatest: true, SupportsSearch: true}

	require.True(t, caps.SupportsOperation(OpLatest))
	require.True(t, caps.SupportsOperation(OpSearch))
	require.False(t, caps.SupportsOperation(OpHistorical))
	require.False(t, caps.SupportsOperation(OpProfile))
	require.False(t, caps.SupportsOperation(OperationKind("bogus")))
}
