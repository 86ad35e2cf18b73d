package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Phase is a market's contest lifecycle state.
type Phase string

const (
	PhasePre     Phase = "PRE"
	PhaseLive    Phase = "LIVE"
	PhasePost    Phase = "POST"
	PhaseUnknown Phase = "UNKNOWN" // neutral default, never a rejection by itself
)

// ScoreInfo is what the live-score source reports for a contest.
// A zero value means the source had nothing to say.
type ScoreInfo struct {
	Live      bool
	Ended     bool
	Period    int     // 0 = unknown
	ScoreDiff float64 // -1 = unknown
	FetchedAt time.Time
}

// Known reports whether the source provided any definitive state. A
// zero value (including the -1 unknown-score sentinel) says nothing.
func (s ScoreInfo) Known() bool {
	return s.Live || s.Ended || s.Period > 0 || s.ScoreDiff > 0
}

// PhaseRecord is the cached classification for one market.
type PhaseRecord struct {
	Phase       Phase
	Sport       string
	Period      int
	ScoreDiff   float64
	Source      string // slug_date | score | start_time | end_time | none
	RefreshedAt time.Time
}

// slugPattern matches contest slugs of the form
// (aec|atc)-<sport>-<team1>-<team2>-YYYY-MM-DD[-outcome].
var slugPattern = regexp.MustCompile(`^(?:aec|atc)-([a-z]+)-.*-(\d{4})-(\d{2})-(\d{2})(?:-[a-z0-9]+)?$`)

// ParseSlug extracts the sport and contest date from a market slug.
// ok is false when the slug does not follow the contest convention.
func ParseSlug(slug string) (sport string, date time.Time, ok bool) {
	m := slugPattern.FindStringSubmatch(strings.ToLower(slug))
	if m == nil {
		return "", time.Time{}, false
	}
	y, _ := strconv.Atoi(m[2])
	mo, _ := strconv.Atoi(m[3])
	d, _ := strconv.Atoi(m[4])
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return "", time.Time{}, false
	}
	return m[1], time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC), true
}

// regulationPeriods is how many periods each sport plays before
// overtime. Unlisted sports fall back to 4.
var regulationPeriods = map[string]int{
	"nba": 4,
	"nfl": 4,
	"cbb": 2,
	"cfb": 4,
	"nhl": 3,
	"mls": 2,
}

// ParsePeriod normalizes the period strings the score source emits:
// plain numbers, "Q1".."Q4", "H1"/"H2", and "OT" (sport-dependent
// value, one past regulation). Returns 0 when unparseable.
func ParsePeriod(raw, sport string) int {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	switch {
	case strings.HasPrefix(s, "Q") || strings.HasPrefix(s, "H"):
		if n, err := strconv.Atoi(s[1:]); err == nil && n > 0 {
			return n
		}
	case strings.HasPrefix(s, "OT"):
		reg := regulationPeriods[strings.ToLower(sport)]
		if reg == 0 {
			reg = 4
		}
		return reg + 1
	}
	return 0
}

// ParseScoreDiff parses "31-48" style score strings into the absolute
// margin. Returns -1 when the score is not parseable.
func ParseScoreDiff(raw string) float64 {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return -1
	}
	a, errA := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	b, errB := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errA != nil || errB != nil {
		return -1
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d
}

// blowoutThresholds are per-sport (min period, min margin) pairs: once
// a contest is at least that deep with at least that margin, it is
// treated as decided and entries are blocked.
var blowoutThresholds = map[string]struct {
	Period int
	Margin float64
}{
	"nba": {3, 15},
	"cbb": {2, 12},
	"nfl": {3, 14},
	"mls": {2, 2},
}

// Decided reports whether the contest is deep enough and lopsided
// enough to be considered settled for entry purposes. Unknown margin
// (-1) or an unlisted sport never blocks.
func Decided(sport string, period int, scoreDiff float64) bool {
	th, ok := blowoutThresholds[strings.ToLower(sport)]
	if !ok || scoreDiff < 0 {
		return false
	}
	return period >= th.Period && scoreDiff >= th.Margin
}

// ClassifyPhase resolves a market's phase by strict precedence. The
// first decisive source wins:
//
//  1. slug-embedded contest date vs today — cross-day is always
//     decisive and short-circuits everything, including a live-score
//     source that claims the contest is live
//  2. the live-score source, when it has definitive state
//  3. a scheduled start still in the future
//  4. a listed end already in the past
//
// Anything else is UNKNOWN, which is neutral and never blocks on its own.
func ClassifyPhase(slug string, score ScoreInfo, start, end time.Time, now time.Time) PhaseRecord {
	rec := PhaseRecord{Phase: PhaseUnknown, ScoreDiff: -1, Source: "none", RefreshedAt: now}

	sport, contestDate, hasDate := ParseSlug(slug)
	rec.Sport = sport
	if hasDate {
		today := now.UTC().Truncate(24 * time.Hour)
		switch {
		case contestDate.After(today):
			rec.Phase = PhasePre
			rec.Source = "slug_date"
			return rec
		case contestDate.Before(today):
			rec.Phase = PhasePost
			rec.Source = "slug_date"
			return rec
		}
	}

	if score.Known() {
		rec.Period = score.Period
		rec.ScoreDiff = score.ScoreDiff
		rec.Source = "score"
		if score.Ended {
			rec.Phase = PhasePost
		} else {
			rec.Phase = PhaseLive
		}
		return rec
	}

	if !start.IsZero() && start.After(now) {
		rec.Phase = PhasePre
		rec.Source = "start_time"
		return rec
	}
	if !end.IsZero() && end.Before(now) {
		rec.Phase = PhasePost
		rec.Source = "end_time"
		return rec
	}
	return rec
}
