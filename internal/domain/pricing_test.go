package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPricingParams() PricingParams {
	return PricingParams{
		CrossBuffer:  0.005,
		SlippagePct:  3.0,
		EntrySlipCap: 0.03,
		CashFraction: 0.10,
		CashMin:      1.0,
		CashMax:      10.0,
		MinCash:      1.0,
	}
}

func TestCrossingPrice(t *testing.T) {
	p := testPricingParams()
	q := Quote{Bid: 0.40, Ask: 0.42, Mid: 0.41, FetchedAt: time.Now()}

	assert.InDelta(t, 0.425, CrossingPrice(q, 0.41, SideLong, p), 1e-9, "long lifts the ask")
	assert.InDelta(t, 0.395, CrossingPrice(q, 0.41, SideShort, p), 1e-9, "short hits the bid")

	// No book: percentage slippage off the cached mid.
	empty := Quote{}
	assert.InDelta(t, 0.41*1.03, CrossingPrice(empty, 0.41, SideLong, p), 1e-9)
	assert.InDelta(t, 0.41*0.97, CrossingPrice(empty, 0.41, SideShort, p), 1e-9)
}

func TestCrossingPriceClampsToValidBand(t *testing.T) {
	p := testPricingParams()
	q := Quote{Bid: 0.005, Ask: 0.99, Mid: 0.50, FetchedAt: time.Now()}
	assert.Equal(t, 0.01, CrossingPrice(q, 0.5, SideShort, p))
	assert.Equal(t, 0.99, CrossingPrice(q, 0.5, SideLong, p))
}

func TestPerShareCost(t *testing.T) {
	assert.Equal(t, 0.30, PerShareCost(SideLong, 0.30))
	assert.InDelta(t, 0.70, PerShareCost(SideShort, 0.30), 1e-9)
}

func TestSizeCash(t *testing.T) {
	p := testPricingParams()

	tests := []struct {
		name string
		cash float64
		want float64
	}{
		{"fraction within clamps", 50, 5},
		{"fraction above the floor stays", 12, 1.2},
		{"small balance takes the floor", 5, 1},
		{"clamped down to maximum", 500, 10},
		{"below trading minimum sizes zero", 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SizeCash(tt.cash, p), 1e-9)
		})
	}
}

func TestPlanEntrySizesBySideCost(t *testing.T) {
	p := testPricingParams()
	q := Quote{Bid: 0.29, Ask: 0.30, Mid: 0.295, FetchedAt: time.Now()}

	long, reason := PlanEntry(q, 0.30, SideLong, 100, 0.10, p)
	require.Empty(t, reason)
	assert.InDelta(t, 0.305, long.Price, 1e-9)
	assert.InDelta(t, 10.0/0.305, long.Quantity, 1e-9)

	short, reason := PlanEntry(q, 0.30, SideShort, 100, 0.10, p)
	require.Empty(t, reason)
	assert.InDelta(t, 0.285, short.Price, 1e-9)
	// Shorting a 0.285 outcome costs the 0.715 complement per share.
	assert.InDelta(t, 10.0/0.715, short.Quantity, 1e-9)
}

func TestPlanEntrySlippageGuard(t *testing.T) {
	p := testPricingParams()

	// Gapped book: the crossing price sits far above the cached mid.
	q := Quote{Bid: 0.20, Ask: 0.38, Mid: 0.29, FetchedAt: time.Now()}
	_, reason := PlanEntry(q, 0.29, SideLong, 100, 0.10, p)
	assert.Equal(t, "slippage", reason)

	// The guard cap binds even for a generous take-profit target.
	_, reason = PlanEntry(q, 0.29, SideLong, 100, 0.80, p)
	assert.Equal(t, "slippage", reason)
}

func TestPlanEntryRejectsWithoutCash(t *testing.T) {
	p := testPricingParams()
	q := Quote{Bid: 0.29, Ask: 0.30, Mid: 0.295, FetchedAt: time.Now()}
	_, reason := PlanEntry(q, 0.295, SideLong, 0.2, 0.10, p)
	assert.Equal(t, "cash", reason)
}

func TestExitPrice(t *testing.T) {
	p := testPricingParams()
	q := Quote{Bid: 0.40, Ask: 0.42, Mid: 0.41, FetchedAt: time.Now()}

	assert.InDelta(t, 0.395, ExitPrice(q, 0.41, SideLong, p), 1e-9, "selling a long hits the bid")
	assert.InDelta(t, 0.425, ExitPrice(q, 0.41, SideShort, p), 1e-9, "covering a short lifts the ask")

	empty := Quote{}
	assert.InDelta(t, 0.41*0.97, ExitPrice(empty, 0.41, SideLong, p), 1e-9)
}
