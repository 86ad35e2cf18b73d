package trader

import (
	"math"
	"time"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// GateParams are the stage-two thresholds applied at intent-to-act
// time, injected from config.
type GateParams struct {
	MaxSignalAge      time.Duration
	MinDeltaPct       float64
	MaxDeltaPct       float64
	MidMin            float64
	MidMax            float64
	SpreadMaxBase     float64
	SpreadMaxMid      float64 // |z| >= 4
	SpreadMaxHigh     float64 // |z| >= 5
	LiquidityMin      float64
	BlockPreGame      bool
	AllowUnknownPhase bool
	ConvergenceMidMin float64
	Blocklist         []string
}

// EntryIntent is a signal the gate cleared for execution: which
// strategy manages the position and which side to take.
type EntryIntent struct {
	Strategy domain.Strategy
	Side     domain.Side
}

// EntryGate is the second-stage filter: it re-checks a tailed signal
// against execution-side constraints the detection side cannot see.
// Stateless by design; spacing and capital checks live in RiskManager
// and the engine.
type EntryGate struct {
	params    GateParams
	blocklist map[string]bool
}

func NewEntryGate(p GateParams) *EntryGate {
	bl := make(map[string]bool, len(p.Blocklist))
	for _, id := range p.Blocklist {
		bl[id] = true
	}
	return &EntryGate{params: p, blocklist: bl}
}

// Evaluate applies the stage-two checks in order. The returned reason
// is empty when the signal clears; otherwise it names the first check
// that failed, matching the skip-counter keys.
//
// selected is the adaptive strategy for the market from the recent
// signal-direction window; the signal's hint constrains it.
func (g *EntryGate) Evaluate(sig domain.Signal, phase domain.PhaseRecord, selected domain.Strategy, now time.Time) (EntryIntent, string) {
	p := g.params

	if now.Sub(sig.EmittedAt) > p.MaxSignalAge {
		return EntryIntent{}, "signal_stale"
	}
	if g.blocklist[sig.MarketID] {
		return EntryIntent{}, "blocked_market"
	}

	switch phase.Phase {
	case domain.PhasePre:
		if p.BlockPreGame {
			return EntryIntent{}, "phase_blocked"
		}
	case domain.PhaseUnknown:
		if !p.AllowUnknownPhase {
			return EntryIntent{}, "phase_blocked"
		}
	case domain.PhasePost:
		return EntryIntent{}, "phase_blocked"
	}

	// A decided contest is closed to spike trading but open to a
	// settlement hold on the near-certain side.
	if phase.Phase == domain.PhaseLive && domain.Decided(phase.Sport, phase.Period, phase.ScoreDiff) {
		switch {
		case sig.Mid >= p.ConvergenceMidMin:
			return EntryIntent{Strategy: domain.StrategyConvergence, Side: domain.SideLong}, ""
		case sig.Mid <= 1-p.ConvergenceMidMin:
			return EntryIntent{Strategy: domain.StrategyConvergence, Side: domain.SideShort}, ""
		default:
			return EntryIntent{}, "late_contest"
		}
	}

	absDelta := math.Abs(sig.DeltaPct)
	if absDelta < p.MinDeltaPct || absDelta > p.MaxDeltaPct {
		return EntryIntent{}, "delta_band"
	}
	if sig.Mid < p.MidMin || sig.Mid > p.MidMax {
		return EntryIntent{}, "price_filter"
	}
	if sig.SpreadPct > g.spreadCeiling(sig.ZScore) {
		return EntryIntent{}, "spread_wide"
	}
	if sig.LiquidityProxy < p.LiquidityMin {
		return EntryIntent{}, "volume_low"
	}

	strategy, reason := resolveStrategy(sig.Hint, selected)
	if reason != "" {
		return EntryIntent{}, reason
	}
	return EntryIntent{Strategy: strategy, Side: entrySide(strategy, sig.Direction)}, ""
}

// spreadCeiling widens the tolerated spread with conviction: a harder
// move justifies paying a wider book.
func (g *EntryGate) spreadCeiling(z float64) float64 {
	switch absZ := math.Abs(z); {
	case absZ >= 5:
		return g.params.SpreadMaxHigh
	case absZ >= 4:
		return g.params.SpreadMaxMid
	default:
		return g.params.SpreadMaxBase
	}
}

// resolveStrategy reconciles the signal's entry hint with the adaptive
// per-market selection. A trend hint always runs as momentum. A fade
// hint in a market whose recent flow is dominantly one-way is skipped
// rather than flipped: fading a stampede is how contrarian books die.
func resolveStrategy(hint domain.Hint, selected domain.Strategy) (domain.Strategy, string) {
	switch hint {
	case domain.HintTrend:
		return domain.StrategyMomentum, ""
	case domain.HintFade:
		if selected == domain.StrategyMomentum {
			return "", "dominant_flow"
		}
		return domain.StrategyContrarian, ""
	}
	return "", "no_hint"
}

// entrySide maps a signal direction to the traded side: contrarian
// fades the move, momentum follows it.
func entrySide(strategy domain.Strategy, dir domain.Direction) domain.Side {
	follow := strategy == domain.StrategyMomentum
	if dir == domain.DirectionSpike {
		if follow {
			return domain.SideLong
		}
		return domain.SideShort
	}
	if follow {
		return domain.SideShort
	}
	return domain.SideLong
}
