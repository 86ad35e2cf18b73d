package domain

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of a gate evaluation.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// Hint is the entry style a signal qualifies for.
type Hint string

const (
	HintFade  Hint = "FADE"  // enter against the move
	HintTrend Hint = "TREND" // enter with the move
	HintNone  Hint = ""
)

// Signal is the immutable record the detection side appends and the
// execution side tails. Both accepted and rejected evaluations are
// recorded; rejections carry the specific gate that failed.
type Signal struct {
	Offset         int64 // assigned by the store on append
	MarketID       string
	Direction      Direction
	Hint           Hint
	Severity       Severity
	ZScore         float64
	DeltaPct       float64
	SpreadPct      float64
	Mid            float64
	LiquidityProxy float64
	Phase          Phase
	Regime         Regime
	Burst          bool
	Decision       Decision
	Reason         string
	EmittedAt      time.Time
}

// GateParams are the first-stage signal thresholds, injected from config.
type GateParams struct {
	MidMin         float64
	MidMax         float64
	LiquidityMin   float64
	Cooldown       time.Duration
	FadeZMin       float64
	FadeZMax       float64
	TrendZMin      float64
	SpreadMaxFade  float64
	SpreadMaxTrend float64
}

// SignalGate is the first-stage filter: cheap, statistical, run at
// ingestion rate. Each evaluation is a pure function of the observation
// and the gate's cooldown state, so replaying the same inputs over the
// same starting state reproduces the same decisions.
type SignalGate struct {
	mu         sync.Mutex
	params     GateParams
	lastAccept map[string]time.Time
}

func NewSignalGate(p GateParams) *SignalGate {
	return &SignalGate{
		params:     p,
		lastAccept: make(map[string]time.Time),
	}
}

// Evaluate decides a candidate observation. The returned Signal always
// carries a decision and a reason.
func (g *SignalGate) Evaluate(obs Observation, proxy float64, phase PhaseRecord, regime Regime) Signal {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := g.params
	sig := Signal{
		MarketID:       obs.MarketID,
		Direction:      obs.Direction,
		Severity:       obs.Severity,
		ZScore:         obs.ZScore,
		DeltaPct:       obs.Delta,
		SpreadPct:      obs.SpreadPct,
		Mid:            obs.Mid,
		LiquidityProxy: proxy,
		Phase:          phase.Phase,
		Regime:         regime,
		Burst:          obs.Burst,
		Decision:       DecisionReject,
		EmittedAt:      obs.ObservedAt,
	}

	if !obs.Candidate {
		sig.Reason = obs.Suppressed
		return sig
	}
	if obs.Mid < p.MidMin || obs.Mid > p.MidMax {
		sig.Reason = "bounds"
		return sig
	}
	if proxy < p.LiquidityMin {
		sig.Reason = "volume"
		return sig
	}
	if last, ok := g.lastAccept[obs.MarketID]; ok && obs.ObservedAt.Sub(last) < p.Cooldown {
		sig.Reason = "cooldown"
		return sig
	}

	absZ := math.Abs(obs.ZScore)
	fadeOK := absZ >= p.FadeZMin && absZ <= p.FadeZMax && obs.SpreadPct <= p.SpreadMaxFade
	trendOK := absZ >= p.TrendZMin && obs.SpreadPct <= p.SpreadMaxTrend

	// The regime label is a soft weight: a trending market prefers the
	// trend entry when both qualify, otherwise whichever qualifies.
	switch {
	case trendOK && (regime == RegimeTrending || !fadeOK):
		sig.Hint = HintTrend
		sig.Reason = "accept_trend"
	case fadeOK:
		sig.Hint = HintFade
		sig.Reason = "accept_fade"
	default:
		sig.Reason = "weak_signal"
		return sig
	}

	sig.Decision = DecisionAccept
	g.lastAccept[obs.MarketID] = obs.ObservedAt
	return sig
}

// PruneCooldowns drops cooldown entries older than the cutoff. Run by
// the cleanup loop so dead markets do not pin memory.
func (g *SignalGate) PruneCooldowns(cutoff time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	dropped := 0
	for id, at := range g.lastAccept {
		if at.Before(cutoff) {
			delete(g.lastAccept, id)
			dropped++
		}
	}
	return dropped
}
