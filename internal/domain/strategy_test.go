package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testStrategyParams() StrategyParams {
	return StrategyParams{
		Window:         5 * time.Minute,
		MinSignals:     3,
		DominanceRatio: 0.75,
	}
}

func TestSelectDefaultsToContrarian(t *testing.T) {
	s := NewStrategySelector(testStrategyParams())
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, StrategyContrarian, s.Select("m1", now))

	s.Record("m1", DirectionSpike, now)
	s.Record("m1", DirectionSpike, now.Add(time.Second))
	assert.Equal(t, StrategyContrarian, s.Select("m1", now.Add(2*time.Second)),
		"below the signal minimum stays contrarian")
}

func TestSelectMomentumOnDominantDirection(t *testing.T) {
	s := NewStrategySelector(testStrategyParams())
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		s.Record("m1", DirectionSpike, now.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, StrategyMomentum, s.Select("m1", now.Add(5*time.Second)))

	// Mixed directions dilute dominance back below the ratio.
	s.Record("m1", DirectionDip, now.Add(6*time.Second))
	s.Record("m1", DirectionDip, now.Add(7*time.Second))
	assert.Equal(t, StrategyContrarian, s.Select("m1", now.Add(8*time.Second)))
}

func TestSelectWindowExpiry(t *testing.T) {
	s := NewStrategySelector(testStrategyParams())
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		s.Record("m1", DirectionDip, now.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, StrategyMomentum, s.Select("m1", now.Add(5*time.Second)))

	// The burst ages out of the window entirely.
	assert.Equal(t, StrategyContrarian, s.Select("m1", now.Add(10*time.Minute)))
}
