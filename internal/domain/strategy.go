package domain

import (
	"sync"
	"time"
)

// Strategy is the entry mode a position is opened under.
type Strategy string

const (
	StrategyContrarian  Strategy = "contrarian"  // fade the move
	StrategyMomentum    Strategy = "momentum"    // follow the move
	StrategyConvergence Strategy = "convergence" // settlement hold near contest end
)

// StrategyParams control the adaptive contrarian/momentum selection.
type StrategyParams struct {
	Window         time.Duration
	MinSignals     int
	DominanceRatio float64
}

type directedSignal struct {
	at  time.Time
	dir Direction
}

// StrategySelector keeps a per-market sliding window of recent signal
// directions. A burst of same-direction signals switches the entry mode
// from contrarian to momentum; the selection itself is a pure function
// over the recorded window, with no look-ahead.
type StrategySelector struct {
	mu     sync.Mutex
	params StrategyParams
	recent map[string][]directedSignal
}

func NewStrategySelector(p StrategyParams) *StrategySelector {
	return &StrategySelector{
		params: p,
		recent: make(map[string][]directedSignal),
	}
}

// Record notes an accepted signal's direction for future selections.
func (s *StrategySelector) Record(marketID string, dir Direction, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent[marketID] = s.prune(append(s.recent[marketID], directedSignal{at: at, dir: dir}), at)
}

// Select picks the entry mode for the market at decision time.
func (s *StrategySelector) Select(marketID string, now time.Time) Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.prune(s.recent[marketID], now)
	s.recent[marketID] = window

	if len(window) < s.params.MinSignals {
		return StrategyContrarian
	}
	var up int
	for _, d := range window {
		if d.dir == DirectionSpike {
			up++
		}
	}
	dominant := up
	if down := len(window) - up; down > dominant {
		dominant = down
	}
	if float64(dominant)/float64(len(window)) >= s.params.DominanceRatio {
		return StrategyMomentum
	}
	return StrategyContrarian
}

// Prune drops window state for markets with no recent signals.
func (s *StrategySelector) Prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, window := range s.recent {
		if w := s.prune(window, now); len(w) == 0 {
			delete(s.recent, id)
		} else {
			s.recent[id] = w
		}
	}
}

func (s *StrategySelector) prune(window []directedSignal, now time.Time) []directedSignal {
	cutoff := now.Add(-s.params.Window)
	kept := window[:0]
	for _, d := range window {
		if d.at.After(cutoff) {
			kept = append(kept, d)
		}
	}
	return kept
}
