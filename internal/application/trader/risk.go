package trader

import (
	"sync"
	"time"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// RiskParams are the concurrency and loss controls, injected from config.
type RiskParams struct {
	MaxContrarian      int
	MaxMomentum        int
	MaxConvergence     int
	SharedMomentumPool bool // momentum and convergence draw from one combined pool
	DailyLossLimit     float64
	MaxLossesPerMarket int
	Rearm              time.Duration
	MinOpenInterval    time.Duration
}

// RiskManager enforces per-bucket concurrency ceilings, the daily
// realized-loss circuit breaker, per-market loss limits, and the
// rearm/open-interval spacing. Entries halt when a control trips;
// management of existing positions never does.
type RiskManager struct {
	params RiskParams

	mu         sync.Mutex
	open       map[domain.Strategy]int
	dailyPnL   float64
	dailyDate  string // UTC date the accumulator belongs to
	lossCounts map[string]int
	lastActed  map[string]time.Time
	lastOpen   time.Time
}

func NewRiskManager(p RiskParams) *RiskManager {
	return &RiskManager{
		params:     p,
		open:       make(map[domain.Strategy]int),
		lossCounts: make(map[string]int),
		lastActed:  make(map[string]time.Time),
	}
}

// CanOpen checks every entry-side control for a prospective position.
// The returned reason is empty when the entry may proceed.
func (r *RiskManager) CanOpen(marketID string, strategy domain.Strategy, now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rollDay(now)
	if r.dailyPnL <= -r.params.DailyLossLimit {
		return "daily_loss_limit"
	}
	if r.lossCounts[marketID] >= r.params.MaxLossesPerMarket {
		return "market_loss_limit"
	}
	if last, ok := r.lastActed[marketID]; ok && now.Sub(last) < r.params.Rearm {
		return "rearm"
	}
	if !r.lastOpen.IsZero() && now.Sub(r.lastOpen) < r.params.MinOpenInterval {
		return "open_interval"
	}
	if !r.bucketHasRoom(strategy) {
		return "bucket_full"
	}
	return ""
}

// bucketHasRoom checks the strategy's concurrency ceiling. Caller holds mu.
func (r *RiskManager) bucketHasRoom(strategy domain.Strategy) bool {
	if r.params.SharedMomentumPool &&
		(strategy == domain.StrategyMomentum || strategy == domain.StrategyConvergence) {
		pool := r.open[domain.StrategyMomentum] + r.open[domain.StrategyConvergence]
		return pool < r.params.MaxMomentum+r.params.MaxConvergence
	}

	switch strategy {
	case domain.StrategyContrarian:
		return r.open[strategy] < r.params.MaxContrarian
	case domain.StrategyMomentum:
		return r.open[strategy] < r.params.MaxMomentum
	case domain.StrategyConvergence:
		return r.open[strategy] < r.params.MaxConvergence
	}
	return false
}

// NoteOpen records a confirmed entry: bumps the bucket, arms the
// per-market rearm timer, and stamps the global open interval.
func (r *RiskManager) NoteOpen(marketID string, strategy domain.Strategy, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[strategy]++
	r.lastActed[marketID] = now
	r.lastOpen = now
}

// NoteAttempt arms the rearm timer and the global open interval
// without occupying a bucket slot. Used when an entry's fill is
// indeterminate: no position enters the book, so the slot must stay
// free for NoteClose-balanced accounting.
func (r *RiskManager) NoteAttempt(marketID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActed[marketID] = now
	r.lastOpen = now
}

// NoteClose records a confirmed close and folds the realized result
// into the daily accumulator and the per-market loss count.
func (r *RiskManager) NoteClose(marketID string, strategy domain.Strategy, pnl float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open[strategy] > 0 {
		r.open[strategy]--
	}
	r.rollDay(now)
	r.dailyPnL += pnl
	if pnl < 0 {
		r.lossCounts[marketID]++
	}
}

// DailyPnL returns the running realized result for the current UTC day.
func (r *RiskManager) DailyPnL(now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollDay(now)
	return r.dailyPnL
}

// OpenCount returns how many positions a bucket currently holds.
func (r *RiskManager) OpenCount(strategy domain.Strategy) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open[strategy]
}

// Prune drops rearm entries older than twice the rearm window.
func (r *RiskManager) Prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-2 * r.params.Rearm)
	for id, at := range r.lastActed {
		if at.Before(cutoff) {
			delete(r.lastActed, id)
		}
	}
}

// rollDay resets the daily accumulator when the UTC date changes.
// Caller holds mu.
func (r *RiskManager) rollDay(now time.Time) {
	date := now.UTC().Format("2006-01-02")
	if date != r.dailyDate {
		r.dailyDate = date
		r.dailyPnL = 0
	}
}
