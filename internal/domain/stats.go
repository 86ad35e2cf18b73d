package domain

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Direction of a detected anomaly relative to the previous mid.
type Direction string

const (
	DirectionSpike Direction = "SPIKE" // mid jumped up
	DirectionDip   Direction = "DIP"   // mid dropped
)

// Severity tiers by ascending z-score.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWatch Severity = "WATCH"
	SeverityAlert Severity = "ALERT"
)

// StatsParams are the detection thresholds, injected from config.
type StatsParams struct {
	HistoryLen      int
	MinHistory      int
	SpikeThreshold  float64
	ZScoreMin       float64
	WatchZ          float64
	AlertZ          float64
	GlobalDeltasLen int
	TopPercentile   float64
	WarmupGlobalMin int
	WarmupZExtra    float64
	TailMin         float64
	TailMax         float64
	LiquidityMin    float64
	MaxSpread       float64
	BurstWindow     time.Duration
	BurstZMin       float64
}

// Observation is the outcome of folding one tick into a market's
// statistics. Candidate is true only when every statistical gate passed;
// otherwise Suppressed names the first gate that failed.
type Observation struct {
	MarketID   string
	Mid        float64
	PrevMid    float64
	Delta      float64 // fractional tick-over-tick move
	ZScore     float64
	Severity   Severity
	Direction  Direction
	SpreadPct  float64
	Candidate  bool
	Suppressed string
	Burst      bool // opposite-direction follow-up spike inside the burst window
	ObservedAt time.Time
}

// marketStats is the per-market rolling state. Mids and deltas are
// bounded rings; oldest entries evict on overflow.
type marketStats struct {
	mids      []float64
	deltas    []float64
	lastZ     float64
	lastSev   Severity
	lastSpike time.Time
	lastDir   Direction
}

// StatsEngine maintains rolling per-market statistics and a global
// cross-market |delta| window for the adaptive floor and percentile
// gate. One goroutine owns Observe; Snapshot is safe from others.
type StatsEngine struct {
	mu      sync.Mutex
	params  StatsParams
	markets map[string]*marketStats
	global  []float64 // |delta| across all markets, bounded
}

func NewStatsEngine(p StatsParams) *StatsEngine {
	return &StatsEngine{
		params:  p,
		markets: make(map[string]*marketStats),
	}
}

// Observe folds one tick into the market's window and decides whether
// it is an anomaly candidate. Ticks failing the envelope (tails, spread,
// liquidity) still extend history so the statistics stay current, but
// never become candidates.
func (e *StatsEngine) Observe(t Tick, liquidityProxy float64) Observation {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.params
	obs := Observation{
		MarketID:   t.MarketID,
		Mid:        t.Mid,
		SpreadPct:  t.SpreadPct(),
		ObservedAt: t.ObservedAt,
	}

	ms, ok := e.markets[t.MarketID]
	if !ok {
		ms = &marketStats{
			mids:   make([]float64, 0, p.HistoryLen),
			deltas: make([]float64, 0, p.HistoryLen),
		}
		e.markets[t.MarketID] = ms
	}

	if len(ms.mids) > 0 {
		prev := ms.mids[len(ms.mids)-1]
		obs.PrevMid = prev
		if prev > 0 {
			obs.Delta = (t.Mid - prev) / prev
		}
	}

	pushBounded(&ms.mids, t.Mid, p.HistoryLen)
	if obs.PrevMid > 0 {
		pushBounded(&ms.deltas, obs.Delta, p.HistoryLen)
		pushBounded(&e.global, math.Abs(obs.Delta), p.GlobalDeltasLen)
	}

	if obs.Delta >= 0 {
		obs.Direction = DirectionSpike
	} else {
		obs.Direction = DirectionDip
	}

	switch {
	case obs.PrevMid == 0:
		obs.Suppressed = "first_tick"
		return obs
	case len(ms.deltas) < p.MinHistory:
		obs.Suppressed = "warming_up"
		return obs
	case math.Abs(obs.Delta) < p.SpikeThreshold:
		obs.Suppressed = "weak_signal"
		return obs
	}

	mean, std := meanStd(ms.deltas)
	if std == 0 {
		// Zero variance means no basis for anomaly, not an error.
		obs.Suppressed = "zero_variance"
		return obs
	}
	obs.ZScore = (obs.Delta - mean) / std
	ms.lastZ = obs.ZScore
	obs.Severity = e.severity(obs.ZScore)
	ms.lastSev = obs.Severity

	floor, forcePercentile := e.adaptiveFloor()
	absZ := math.Abs(obs.ZScore)
	switch {
	case absZ < floor:
		obs.Suppressed = "weak_signal"
		return obs
	case t.Mid < p.TailMin || t.Mid > p.TailMax:
		obs.Suppressed = "tails"
		return obs
	case obs.SpreadPct > p.MaxSpread:
		obs.Suppressed = "spread"
		return obs
	case liquidityProxy < p.LiquidityMin:
		obs.Suppressed = "volume"
		return obs
	}

	if forcePercentile || p.TopPercentile > 0 {
		if !e.inTopPercentile(math.Abs(obs.Delta)) {
			obs.Suppressed = "percentile"
			return obs
		}
	}

	// Opposite-direction spike shortly after the last one is a
	// mean-reversion burst; it stays a candidate but is flagged.
	if !ms.lastSpike.IsZero() &&
		t.ObservedAt.Sub(ms.lastSpike) <= p.BurstWindow &&
		ms.lastDir != obs.Direction &&
		absZ >= p.BurstZMin {
		obs.Burst = true
	}
	ms.lastSpike = t.ObservedAt
	ms.lastDir = obs.Direction

	obs.Candidate = true
	return obs
}

func (e *StatsEngine) severity(z float64) Severity {
	abs := math.Abs(z)
	switch {
	case abs >= e.params.AlertZ:
		return SeverityAlert
	case abs >= e.params.WatchZ:
		return SeverityWatch
	default:
		return SeverityInfo
	}
}

// adaptiveFloor returns the effective z minimum. During warmup (too few
// global samples) the floor rises and the percentile pass is forced so a
// thin early window cannot flood the gate.
func (e *StatsEngine) adaptiveFloor() (floor float64, forcePercentile bool) {
	p := e.params
	if len(e.global) < p.WarmupGlobalMin {
		return p.ZScoreMin + p.WarmupZExtra, true
	}
	return p.ZScoreMin, false
}

// inTopPercentile reports whether absDelta ranks at or above the
// configured percentile of the global |delta| window.
func (e *StatsEngine) inTopPercentile(absDelta float64) bool {
	if len(e.global) == 0 {
		return true
	}
	sorted := make([]float64, len(e.global))
	copy(sorted, e.global)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * e.params.TopPercentile / 100.0)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return absDelta >= sorted[idx]
}

// TrackedMarkets returns the number of markets with rolling state.
func (e *StatsEngine) TrackedMarkets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.markets)
}

// Forget drops the rolling state for markets not in keep. Used by the
// cleanup loop when discovery stops listing a market.
func (e *StatsEngine) Forget(keep map[string]bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	dropped := 0
	for id := range e.markets {
		if !keep[id] {
			delete(e.markets, id)
			dropped++
		}
	}
	return dropped
}

func pushBounded(buf *[]float64, v float64, capLen int) {
	*buf = append(*buf, v)
	if capLen > 0 && len(*buf) > capLen {
		*buf = (*buf)[1:]
	}
}

// meanStd computes the sample mean and standard deviation.
func meanStd(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	std = math.Sqrt(ss / (n - 1))
	return mean, std
}
