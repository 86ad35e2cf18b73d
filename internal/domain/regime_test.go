package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegimeParams() RegimeParams {
	return RegimeParams{
		CheckDelay:         3 * time.Minute,
		ReversionThreshold: 0.50,
		Window:             10 * time.Minute,
		MinSamples:         3,
		TrendingRatio:      0.65,
	}
}

func TestRegimeDueRespectsObservationDelay(t *testing.T) {
	rt := NewRegimeTracker(testRegimeParams())
	t0 := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	rt.Record(SpikeOutcome{MarketID: "m1", Direction: DirectionSpike, PreMean: 0.40, SpikeMid: 0.48, DetectedAt: t0})

	assert.Empty(t, rt.Due(t0.Add(time.Minute)))
	due := rt.Due(t0.Add(4 * time.Minute))
	require.Len(t, due, 1)
	assert.Equal(t, 0, rt.PendingCount())
}

func TestRegimeResolveRevertedVsContinued(t *testing.T) {
	tests := []struct {
		name       string
		preMean    float64
		spikeMid   float64
		currentMid float64
		reverted   bool
	}{
		{"up spike fully retraced", 0.40, 0.48, 0.40, true},
		{"up spike half retraced", 0.40, 0.48, 0.44, true},
		{"up spike held", 0.40, 0.48, 0.47, false},
		{"down spike retraced", 0.40, 0.32, 0.38, true},
		{"down spike continued", 0.40, 0.32, 0.30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := NewRegimeTracker(testRegimeParams())
			o := SpikeOutcome{MarketID: "m1", PreMean: tt.preMean, SpikeMid: tt.spikeMid}
			resolved := rt.Resolve(o, tt.currentMid, time.Now())
			assert.Equal(t, tt.reverted, resolved.Reverted)
		})
	}
}

func TestRegimeLabel(t *testing.T) {
	rt := NewRegimeTracker(testRegimeParams())
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	// Two resolved outcomes: below the sample minimum.
	rt.Resolve(SpikeOutcome{MarketID: "m1", PreMean: 0.40, SpikeMid: 0.48}, 0.40, now)
	rt.Resolve(SpikeOutcome{MarketID: "m1", PreMean: 0.40, SpikeMid: 0.48}, 0.40, now)
	assert.Equal(t, RegimeInsufficient, rt.Label("m1", now))

	// Third reverted outcome: mean-reverting market.
	rt.Resolve(SpikeOutcome{MarketID: "m1", PreMean: 0.40, SpikeMid: 0.48}, 0.40, now)
	assert.Equal(t, RegimeMeanRevert, rt.Label("m1", now))

	// A market whose spikes keep holding labels TRENDING.
	for i := 0; i < 3; i++ {
		rt.Resolve(SpikeOutcome{MarketID: "m2", PreMean: 0.40, SpikeMid: 0.48}, 0.48, now)
	}
	assert.Equal(t, RegimeTrending, rt.Label("m2", now))

	// Outcomes age out of the window.
	assert.Equal(t, RegimeInsufficient, rt.Label("m1", now.Add(time.Hour)))
}
