package domain

import (
	"sync"
	"time"
)

// Regime labels how a market has historically resolved its spikes.
type Regime string

const (
	RegimeMeanRevert   Regime = "MEAN_REVERT"
	RegimeTrending     Regime = "TRENDING"
	RegimeInsufficient Regime = "INSUFFICIENT" // not enough resolved outcomes
)

// RegimeParams are the outcome-tracking thresholds, injected from config.
type RegimeParams struct {
	CheckDelay         time.Duration
	ReversionThreshold float64 // fraction of the move retraced to count as reverted
	Window             time.Duration
	MinSamples         int
	TrendingRatio      float64 // continuation rate at or above this labels TRENDING
}

// SpikeOutcome is one qualifying spike awaiting or holding its verdict.
type SpikeOutcome struct {
	MarketID   string
	Direction  Direction
	PreMean    float64 // mean mid before the spike
	SpikeMid   float64 // mid at detection
	DetectedAt time.Time
	Reverted   bool
	ResolvedAt time.Time
}

type resolvedOutcome struct {
	at       time.Time
	reverted bool
}

// RegimeTracker records qualifying spikes, resolves them after a fixed
// observation delay, and labels each market from its rolling window of
// resolved outcomes. The label is a soft weight for the gates, never a
// hard filter on its own.
type RegimeTracker struct {
	mu       sync.Mutex
	params   RegimeParams
	pending  []SpikeOutcome
	resolved map[string][]resolvedOutcome
}

func NewRegimeTracker(p RegimeParams) *RegimeTracker {
	return &RegimeTracker{
		params:   p,
		resolved: make(map[string][]resolvedOutcome),
	}
}

// Record registers a qualifying spike for later resolution. Spikes with
// no measurable deviation are dropped.
func (rt *RegimeTracker) Record(o SpikeOutcome) {
	if o.SpikeMid == o.PreMean {
		return
	}
	rt.mu.Lock()
	rt.pending = append(rt.pending, o)
	rt.mu.Unlock()
}

// Due pops every pending spike whose observation delay has elapsed.
// The caller resolves each with the market's current mid.
func (rt *RegimeTracker) Due(now time.Time) []SpikeOutcome {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var due []SpikeOutcome
	remaining := rt.pending[:0]
	for _, o := range rt.pending {
		if now.Sub(o.DetectedAt) >= rt.params.CheckDelay {
			due = append(due, o)
		} else {
			remaining = append(remaining, o)
		}
	}
	rt.pending = remaining
	return due
}

// Resolve decides reverted vs continued for one due spike given the
// market's current mid, and folds the verdict into the rolling window.
func (rt *RegimeTracker) Resolve(o SpikeOutcome, currentMid float64, now time.Time) SpikeOutcome {
	deviation := o.SpikeMid - o.PreMean
	retraced := 0.0
	if deviation != 0 {
		retraced = (o.SpikeMid - currentMid) / deviation
	}
	o.Reverted = retraced >= rt.params.ReversionThreshold
	o.ResolvedAt = now

	rt.mu.Lock()
	outs := append(rt.resolved[o.MarketID], resolvedOutcome{at: now, reverted: o.Reverted})
	rt.resolved[o.MarketID] = pruneOutcomes(outs, now.Add(-rt.params.Window))
	rt.mu.Unlock()
	return o
}

// Label returns the market's regime over the rolling window.
func (rt *RegimeTracker) Label(marketID string, now time.Time) Regime {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	outs := pruneOutcomes(rt.resolved[marketID], now.Add(-rt.params.Window))
	rt.resolved[marketID] = outs

	if len(outs) < rt.params.MinSamples {
		return RegimeInsufficient
	}
	continued := 0
	for _, o := range outs {
		if !o.reverted {
			continued++
		}
	}
	if float64(continued)/float64(len(outs)) >= rt.params.TrendingRatio {
		return RegimeTrending
	}
	return RegimeMeanRevert
}

// PendingCount returns the number of spikes awaiting resolution.
func (rt *RegimeTracker) PendingCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.pending)
}

func pruneOutcomes(outs []resolvedOutcome, cutoff time.Time) []resolvedOutcome {
	kept := outs[:0]
	for _, o := range outs {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	return kept
}
