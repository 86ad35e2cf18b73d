package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGateParams() GateParams {
	return GateParams{
		MidMin:         0.12,
		MidMax:         0.55,
		LiquidityMin:   10,
		Cooldown:       time.Minute,
		FadeZMin:       2.0,
		FadeZMax:       6.0,
		TrendZMin:      3.0,
		SpreadMaxFade:  0.20,
		SpreadMaxTrend: 0.25,
	}
}

func candidateObs(market string, z float64, at time.Time) Observation {
	return Observation{
		MarketID:   market,
		Mid:        0.40,
		Delta:      0.02,
		ZScore:     z,
		Severity:   SeverityWatch,
		Direction:  DirectionSpike,
		SpreadPct:  0.05,
		Candidate:  true,
		ObservedAt: at,
	}
}

func TestGateReasons(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	phase := PhaseRecord{Phase: PhaseLive}

	tests := []struct {
		name     string
		mutate   func(*Observation)
		proxy    float64
		decision Decision
		reason   string
		hint     Hint
	}{
		{
			name:     "fade zone accepts",
			mutate:   func(o *Observation) { o.ZScore = 2.5 },
			proxy:    100,
			decision: DecisionAccept,
			reason:   "accept_fade",
			hint:     HintFade,
		},
		{
			name:     "beyond fade ceiling only trend qualifies",
			mutate:   func(o *Observation) { o.ZScore = 7.0 },
			proxy:    100,
			decision: DecisionAccept,
			reason:   "accept_trend",
			hint:     HintTrend,
		},
		{
			name:     "below both zones rejects weak",
			mutate:   func(o *Observation) { o.ZScore = 1.2 },
			proxy:    100,
			decision: DecisionReject,
			reason:   "weak_signal",
		},
		{
			name:     "mid out of band",
			mutate:   func(o *Observation) { o.Mid = 0.70; o.ZScore = 2.5 },
			proxy:    100,
			decision: DecisionReject,
			reason:   "bounds",
		},
		{
			name:     "liquidity below floor",
			mutate:   func(o *Observation) { o.ZScore = 2.5 },
			proxy:    2,
			decision: DecisionReject,
			reason:   "volume",
		},
		{
			name:     "suppressed observation passes its reason through",
			mutate:   func(o *Observation) { o.Candidate = false; o.Suppressed = "zero_variance" },
			proxy:    100,
			decision: DecisionReject,
			reason:   "zero_variance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewSignalGate(testGateParams())
			obs := candidateObs("m1", 2.5, now)
			tt.mutate(&obs)

			sig := g.Evaluate(obs, tt.proxy, phase, RegimeInsufficient)
			assert.Equal(t, tt.decision, sig.Decision)
			assert.Equal(t, tt.reason, sig.Reason)
			assert.Equal(t, tt.hint, sig.Hint)
		})
	}
}

func TestGateCooldownBetweenAccepts(t *testing.T) {
	g := NewSignalGate(testGateParams())
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	phase := PhaseRecord{Phase: PhaseLive}

	first := g.Evaluate(candidateObs("m1", 2.5, now), 100, phase, RegimeInsufficient)
	require.Equal(t, DecisionAccept, first.Decision)

	second := g.Evaluate(candidateObs("m1", 2.5, now.Add(10*time.Second)), 100, phase, RegimeInsufficient)
	assert.Equal(t, DecisionReject, second.Decision)
	assert.Equal(t, "cooldown", second.Reason)

	// Another market is unaffected.
	other := g.Evaluate(candidateObs("m2", 2.5, now.Add(10*time.Second)), 100, phase, RegimeInsufficient)
	assert.Equal(t, DecisionAccept, other.Decision)

	// After the cooldown the market accepts again.
	third := g.Evaluate(candidateObs("m1", 2.5, now.Add(2*time.Minute)), 100, phase, RegimeInsufficient)
	assert.Equal(t, DecisionAccept, third.Decision)
}

func TestGateTrendingRegimePrefersTrend(t *testing.T) {
	g := NewSignalGate(testGateParams())
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	// z=4 qualifies for both fade and trend; the regime tips it.
	sig := g.Evaluate(candidateObs("m1", 4.0, now), 100, PhaseRecord{Phase: PhaseLive}, RegimeTrending)
	assert.Equal(t, HintTrend, sig.Hint)

	g2 := NewSignalGate(testGateParams())
	sig2 := g2.Evaluate(candidateObs("m1", 4.0, now), 100, PhaseRecord{Phase: PhaseLive}, RegimeMeanRevert)
	assert.Equal(t, HintFade, sig2.Hint)
}

func TestGateReplayDeterminism(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	phase := PhaseRecord{Phase: PhaseLive}

	inputs := []Observation{
		candidateObs("m1", 2.5, now),
		candidateObs("m1", 3.0, now.Add(5*time.Second)),
		candidateObs("m2", 4.0, now.Add(10*time.Second)),
		candidateObs("m1", 2.2, now.Add(2*time.Minute)),
	}

	run := func() []Signal {
		g := NewSignalGate(testGateParams())
		out := make([]Signal, 0, len(inputs))
		for _, obs := range inputs {
			out = append(out, g.Evaluate(obs, 100, phase, RegimeInsufficient))
		}
		return out
	}

	assert.Equal(t, run(), run())
}
