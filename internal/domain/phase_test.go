package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlug(t *testing.T) {
	tests := []struct {
		slug  string
		sport string
		date  string
		ok    bool
	}{
		{"aec-nba-lakers-celtics-2026-03-01", "nba", "2026-03-01", true},
		{"atc-nfl-chiefs-bills-2026-01-11-chiefs", "nfl", "2026-01-11", true},
		{"aec-cbb-duke-unc-2026-02-28", "cbb", "2026-02-28", true},
		{"will-btc-close-above-100k", "", "", false},
		{"aec-nba-lakers-celtics-2026-13-45", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			sport, date, ok := ParseSlug(tt.slug)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.sport, sport)
				assert.Equal(t, tt.date, date.Format("2006-01-02"))
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		raw   string
		sport string
		want  int
	}{
		{"2", "nba", 2},
		{"Q3", "nba", 3},
		{"H1", "cbb", 1},
		{"H2", "cbb", 2},
		{"OT", "nba", 5},
		{"OT", "cbb", 3},
		{"OT", "mls", 3},
		{"ot", "nfl", 5},
		{"", "nba", 0},
		{"halftime", "nba", 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw+"/"+tt.sport, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePeriod(tt.raw, tt.sport))
		})
	}
}

func TestParseScoreDiff(t *testing.T) {
	assert.Equal(t, 17.0, ParseScoreDiff("31-48"))
	assert.Equal(t, 17.0, ParseScoreDiff("48-31"))
	assert.Equal(t, 0.0, ParseScoreDiff("21-21"))
	assert.Equal(t, -1.0, ParseScoreDiff(""))
	assert.Equal(t, -1.0, ParseScoreDiff("tbd"))
}

func TestDecided(t *testing.T) {
	tests := []struct {
		name   string
		sport  string
		period int
		diff   float64
		want   bool
	}{
		{"nba blowout", "nba", 3, 18, true},
		{"nba close late game", "nba", 4, 6, false},
		{"nba early rout", "nba", 2, 25, false},
		{"mls two goal lead late", "mls", 2, 2, true},
		{"unknown margin never blocks", "nba", 4, -1, false},
		{"unlisted sport never blocks", "nhl", 3, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decided(tt.sport, tt.period, tt.diff))
		})
	}
}

func TestClassifyPhasePrecedence(t *testing.T) {
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	t.Run("tomorrow slug beats a live score source", func(t *testing.T) {
		score := ScoreInfo{Live: true, Period: 2, ScoreDiff: 5}
		rec := ClassifyPhase("aec-nba-lakers-celtics-2026-03-02", score, time.Time{}, time.Time{}, now)
		assert.Equal(t, PhasePre, rec.Phase)
		assert.Equal(t, "slug_date", rec.Source)
	})

	t.Run("yesterday slug is POST regardless", func(t *testing.T) {
		rec := ClassifyPhase("aec-nba-lakers-celtics-2026-02-28", ScoreInfo{Live: true}, time.Time{}, time.Time{}, now)
		assert.Equal(t, PhasePost, rec.Phase)
		assert.Equal(t, "slug_date", rec.Source)
	})

	t.Run("same-day contest defers to the score source", func(t *testing.T) {
		score := ScoreInfo{Live: true, Period: 3, ScoreDiff: 12}
		rec := ClassifyPhase("aec-nba-lakers-celtics-2026-03-01", score, time.Time{}, time.Time{}, now)
		assert.Equal(t, PhaseLive, rec.Phase)
		assert.Equal(t, "score", rec.Source)
		assert.Equal(t, 3, rec.Period)
	})

	t.Run("ended score source is POST", func(t *testing.T) {
		rec := ClassifyPhase("aec-nba-lakers-celtics-2026-03-01", ScoreInfo{Ended: true, ScoreDiff: 9}, time.Time{}, time.Time{}, now)
		assert.Equal(t, PhasePost, rec.Phase)
	})

	t.Run("future start is PRE", func(t *testing.T) {
		rec := ClassifyPhase("aec-nba-lakers-celtics-2026-03-01", ScoreInfo{ScoreDiff: -1}, now.Add(2*time.Hour), time.Time{}, now)
		assert.Equal(t, PhasePre, rec.Phase)
		assert.Equal(t, "start_time", rec.Source)
	})

	t.Run("past end is POST", func(t *testing.T) {
		rec := ClassifyPhase("not-a-contest-slug", ScoreInfo{ScoreDiff: -1}, time.Time{}, now.Add(-time.Hour), now)
		assert.Equal(t, PhasePost, rec.Phase)
		assert.Equal(t, "end_time", rec.Source)
	})

	t.Run("nothing decisive is UNKNOWN", func(t *testing.T) {
		rec := ClassifyPhase("not-a-contest-slug", ScoreInfo{ScoreDiff: -1}, time.Time{}, time.Time{}, now)
		assert.Equal(t, PhaseUnknown, rec.Phase)
		assert.Equal(t, "none", rec.Source)
	})
}

func TestScoreInfoKnown(t *testing.T) {
	require.False(t, ScoreInfo{ScoreDiff: -1}.Known())
	require.True(t, ScoreInfo{Live: true, ScoreDiff: -1}.Known())
	require.True(t, ScoreInfo{Period: 1, ScoreDiff: -1}.Known())
	require.True(t, ScoreInfo{ScoreDiff: 9}.Known())
	require.False(t, ScoreInfo{}.Known())
}
