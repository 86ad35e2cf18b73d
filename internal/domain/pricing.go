package domain

import "math"

// Side of the traded outcome. A long buys the stated outcome; a short
// buys its complement.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// PricingParams are the sizing and crossing knobs, injected from config.
type PricingParams struct {
	CrossBuffer  float64 // added beyond the best price to cross the book
	SlippagePct  float64 // fallback pricing when no book is available
	EntrySlipCap float64 // absolute ceiling on the cost-deviation guard
	CashFraction float64
	CashMin      float64
	CashMax      float64
	MinCash      float64
}

// OrderPlan is a fully priced and sized entry, ready for submission as
// an immediate-or-cancel order. This engine never rests liquidity.
type OrderPlan struct {
	Side     Side
	Price    float64 // stated-outcome price the order crosses at
	Quantity float64
	Cost     float64 // total cash committed
	PerShare float64 // true per-share cost for this side
}

// CrossingPrice computes the limit price that crosses the book for the
// given side: a long lifts the ask, a short hits the bid. Without a
// usable book it falls back to a percentage-slippage price off the
// cached mid. The result is clamped into the venue's valid band.
func CrossingPrice(q Quote, cachedMid float64, side Side, p PricingParams) float64 {
	var px float64
	switch {
	case q.Valid() && side == SideLong:
		px = q.Ask + p.CrossBuffer
	case q.Valid() && side == SideShort:
		px = q.Bid - p.CrossBuffer
	case side == SideLong:
		px = cachedMid * (1 + p.SlippagePct/100)
	default:
		px = cachedMid * (1 - p.SlippagePct/100)
	}
	return clampPrice(px)
}

// PerShareCost is the true cash cost of one share for the side: the
// price itself for a long, the complement for a short. Using the wrong
// basis materially distorts sizing and PnL at extreme prices.
func PerShareCost(side Side, price float64) float64 {
	if side == SideShort {
		return 1 - price
	}
	return price
}

// SizeCash allocates the per-entry budget: a fraction of free cash,
// clamped into [CashMin, CashMax]. Zero when free cash is below the
// trading minimum.
func SizeCash(freeCash float64, p PricingParams) float64 {
	if freeCash < p.MinCash {
		return 0
	}
	alloc := freeCash * p.CashFraction
	if alloc < p.CashMin {
		alloc = p.CashMin
	}
	if alloc > p.CashMax {
		alloc = p.CashMax
	}
	if alloc > freeCash {
		alloc = freeCash
	}
	return alloc
}

// PlanEntry prices and sizes an entry order. reason is empty on
// success; otherwise it names the guard that rejected the plan.
func PlanEntry(q Quote, cachedMid float64, side Side, freeCash, takeProfit float64, p PricingParams) (OrderPlan, string) {
	cash := SizeCash(freeCash, p)
	if cash <= 0 {
		return OrderPlan{}, "cash"
	}

	price := CrossingPrice(q, cachedMid, side, p)
	cost := PerShareCost(side, price)
	if cost <= 0 {
		return OrderPlan{}, "bounds"
	}

	// Projected cost must stay near the ideal mid-based cost. The
	// tolerance is half the take-profit target, never more than the
	// absolute cap: paying more than that in slippage eats the trade's
	// whole edge before it opens.
	ideal := PerShareCost(side, cachedMid)
	if ideal > 0 {
		deviation := math.Abs(cost-ideal) / ideal
		if deviation > math.Min(takeProfit/2, p.EntrySlipCap) {
			return OrderPlan{}, "slippage"
		}
	}

	return OrderPlan{
		Side:     side,
		Price:    price,
		Quantity: cash / cost,
		Cost:     cash,
		PerShare: cost,
	}, ""
}

// ExitPrice computes the crossing price that closes the position
// immediately: selling a long hits the bid, covering a short lifts the
// ask.
func ExitPrice(q Quote, cachedMid float64, side Side, p PricingParams) float64 {
	var px float64
	switch {
	case q.Valid() && side == SideLong:
		px = q.Bid - p.CrossBuffer
	case q.Valid() && side == SideShort:
		px = q.Ask + p.CrossBuffer
	case side == SideLong:
		px = cachedMid * (1 - p.SlippagePct/100)
	default:
		px = cachedMid * (1 + p.SlippagePct/100)
	}
	return clampPrice(px)
}

func clampPrice(px float64) float64 {
	if px < 0.01 {
		return 0.01
	}
	if px > 0.99 {
		return 0.99
	}
	return px
}
