// Package monitor is the detection half of the bot: it folds the live
// tick stream into rolling statistics, classifies market phases, tracks
// the reversion regime, and appends gate decisions to the signal log
// for the trader to tail.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/clobhunter/internal/domain"
	"github.com/alejandrodnm/clobhunter/internal/metrics"
	"github.com/alejandrodnm/clobhunter/internal/ports"
)

// Config holds the monitor loop cadences and the envelope values that
// live outside the domain parameter structs.
type Config struct {
	MarketRefresh   time.Duration
	VolumeRefresh   time.Duration
	ScoreRefresh    time.Duration
	Heartbeat       time.Duration
	Cleanup         time.Duration
	StaleFeed       time.Duration
	SharesActiveMin float64
	SignalRetention time.Duration // appended signals older than this are pruned
}

// marketState is everything the monitor tracks per market outside the
// statistics engine.
type marketState struct {
	market  domain.Market
	score   domain.ScoreInfo
	phase   domain.PhaseRecord
	lastMid float64
}

// Engine wires the detection pipeline together.
type Engine struct {
	cfg      Config
	stats    *domain.StatsEngine
	gate     *domain.SignalGate
	regime   *domain.RegimeTracker
	selector *domain.StrategySelector

	marketData ports.MarketDataProvider
	stream     ports.TickSource
	store      ports.SignalStore
	notifier   ports.Notifier

	mu       sync.Mutex
	markets  map[string]*marketState
	lastTick time.Time

	// heartbeat window counters
	accepted int
	rejected int
	reasons  map[string]int

	pruner interface {
		PruneSignals(context.Context, time.Time) (int64, error)
	}
}

func New(
	cfg Config,
	stats *domain.StatsEngine,
	gate *domain.SignalGate,
	regime *domain.RegimeTracker,
	selector *domain.StrategySelector,
	marketData ports.MarketDataProvider,
	stream ports.TickSource,
	store ports.SignalStore,
	notifier ports.Notifier,
) *Engine {
	e := &Engine{
		cfg:        cfg,
		stats:      stats,
		gate:       gate,
		regime:     regime,
		selector:   selector,
		marketData: marketData,
		stream:     stream,
		store:      store,
		notifier:   notifier,
		markets:    make(map[string]*marketState),
		reasons:    make(map[string]int),
	}
	if p, ok := store.(interface {
		PruneSignals(context.Context, time.Time) (int64, error)
	}); ok {
		e.pruner = p
	}
	return e
}

// Run executes the monitor until the context is canceled. The stream
// adapter owns reconnection; a closed tick channel means the stream
// gave up for good.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("monitor starting",
		"market_refresh", e.cfg.MarketRefresh,
		"score_refresh", e.cfg.ScoreRefresh,
		"heartbeat", e.cfg.Heartbeat,
	)

	if err := e.refreshMarkets(ctx); err != nil {
		slog.Error("initial market discovery failed", "err", err)
	}

	ticks := make(chan domain.Tick, 256)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- e.stream.Run(ctx, ticks)
	}()

	marketTicker := time.NewTicker(e.cfg.MarketRefresh)
	volumeTicker := time.NewTicker(e.cfg.VolumeRefresh)
	scoreTicker := time.NewTicker(e.cfg.ScoreRefresh)
	heartbeat := time.NewTicker(e.cfg.Heartbeat)
	cleanup := time.NewTicker(e.cfg.Cleanup)
	regimeTicker := time.NewTicker(5 * time.Second)
	defer marketTicker.Stop()
	defer volumeTicker.Stop()
	defer scoreTicker.Stop()
	defer heartbeat.Stop()
	defer cleanup.Stop()
	defer regimeTicker.Stop()

	e.mu.Lock()
	e.lastTick = time.Now()
	e.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped")
			return nil

		case err := <-streamDone:
			if ctx.Err() != nil {
				return nil
			}
			return err

		case t, ok := <-ticks:
			if !ok {
				// Channel closed by the stream on exit; stop
				// selecting on it and wait for streamDone.
				ticks = nil
				continue
			}
			e.handleTick(ctx, t)

		case <-regimeTicker.C:
			e.resolveDueOutcomes(time.Now())

		case <-marketTicker.C:
			if err := e.refreshMarkets(ctx); err != nil {
				slog.Warn("market discovery failed", "err", err)
			}

		case <-volumeTicker.C:
			if err := e.refreshLiquidity(ctx); err != nil {
				slog.Warn("liquidity refresh failed", "err", err)
			}

		case <-scoreTicker.C:
			e.refreshScores(ctx)

		case <-heartbeat.C:
			e.emitHeartbeat()

		case <-cleanup.C:
			e.runCleanup(ctx)
		}
	}
}

// handleTick folds one tick into the statistics, evaluates the gate
// for candidates, and appends the decision to the signal log.
func (e *Engine) handleTick(ctx context.Context, t domain.Tick) {
	metrics.TicksProcessed.Inc()
	now := t.ObservedAt

	e.mu.Lock()
	st, known := e.markets[t.MarketID]
	if !known {
		// Ticks can arrive for markets discovery has not seen yet.
		st = &marketState{market: domain.Market{ID: t.MarketID, SeenAt: now}}
		e.markets[t.MarketID] = st
	}
	st.market.Liquidity = st.market.Liquidity.Merge(t.Liquidity)
	st.lastMid = t.Mid
	e.lastTick = now
	phase := e.currentPhase(st, now)
	proxy := st.market.Liquidity.Proxy(e.cfg.SharesActiveMin)
	e.mu.Unlock()

	obs := e.stats.Observe(t, proxy)
	if !obs.Candidate {
		return
	}

	e.regime.Record(domain.SpikeOutcome{
		MarketID:   obs.MarketID,
		Direction:  obs.Direction,
		PreMean:    obs.PrevMid,
		SpikeMid:   obs.Mid,
		DetectedAt: obs.ObservedAt,
	})

	label := e.regime.Label(obs.MarketID, now)
	sig := e.gate.Evaluate(obs, proxy, phase, label)

	offset, err := e.store.Append(ctx, sig)
	if err != nil {
		slog.Error("signal append failed", "market", sig.MarketID, "err", err)
		return
	}
	sig.Offset = offset

	metrics.SignalsEmitted.WithLabelValues(string(sig.Decision), sig.Reason).Inc()

	e.mu.Lock()
	if sig.Decision == domain.DecisionAccept {
		e.accepted++
	} else {
		e.rejected++
		e.reasons[sig.Reason]++
	}
	e.mu.Unlock()

	if sig.Decision == domain.DecisionAccept {
		e.selector.Record(sig.MarketID, sig.Direction, now)
		slog.Info("signal accepted",
			"market", sig.MarketID,
			"direction", string(sig.Direction),
			"hint", string(sig.Hint),
			"z", sig.ZScore,
			"mid", sig.Mid,
			"phase", string(sig.Phase),
			"regime", string(sig.Regime),
			"offset", offset,
		)
	} else {
		slog.Debug("signal rejected",
			"market", sig.MarketID,
			"reason", sig.Reason,
			"z", sig.ZScore,
		)
	}
}

// resolveDueOutcomes settles spike outcomes whose observation delay has
// elapsed against the latest known mid.
func (e *Engine) resolveDueOutcomes(now time.Time) {
	for _, o := range e.regime.Due(now) {
		e.mu.Lock()
		st, ok := e.markets[o.MarketID]
		var mid float64
		if ok {
			mid = st.lastMid
		}
		e.mu.Unlock()
		if mid <= 0 {
			continue // no fresh mid, the outcome is unverifiable
		}

		resolved := e.regime.Resolve(o, mid, now)
		slog.Debug("spike outcome resolved",
			"market", resolved.MarketID,
			"reverted", resolved.Reverted,
			"spike_mid", resolved.SpikeMid,
			"current_mid", mid,
		)
	}
}

// emitHeartbeat reports the accept/reject window and checks feed
// freshness.
func (e *Engine) emitHeartbeat() {
	e.mu.Lock()
	accepted, rejected := e.accepted, e.rejected
	reasons := e.reasons
	sinceTick := time.Since(e.lastTick)
	tracked := len(e.markets)
	e.accepted, e.rejected = 0, 0
	e.reasons = make(map[string]int)
	e.mu.Unlock()

	e.notifier.SignalSummary(accepted, rejected, reasons)
	metrics.TrackedMarkets.Set(float64(e.stats.TrackedMarkets()))

	slog.Info("monitor heartbeat",
		"tracked", tracked,
		"accepted", accepted,
		"rejected", rejected,
		"pending_outcomes", e.regime.PendingCount(),
	)

	if sinceTick > e.cfg.StaleFeed {
		slog.Warn("stream feed stale", "since_last_tick", sinceTick.Round(time.Second))
	}
}

// runCleanup forgets dead markets and prunes the bounded state maps.
func (e *Engine) runCleanup(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	keep := make(map[string]bool, len(e.markets))
	for id := range e.markets {
		keep[id] = true
	}
	e.mu.Unlock()

	forgotten := e.stats.Forget(keep)
	cooldowns := e.gate.PruneCooldowns(now.Add(-1 * time.Hour))
	e.selector.Prune(now)

	var pruned int64
	if e.pruner != nil && e.cfg.SignalRetention > 0 {
		var err error
		pruned, err = e.pruner.PruneSignals(ctx, now.Add(-e.cfg.SignalRetention))
		if err != nil {
			slog.Warn("signal prune failed", "err", err)
		}
	}

	slog.Debug("cleanup pass",
		"forgotten_markets", forgotten,
		"pruned_cooldowns", cooldowns,
		"pruned_signals", pruned,
	)
}

// currentPhase returns the freshest phase classification for a market,
// recomputing from cached slug/score/schedule when the cached record
// has aged past the score refresh.
func (e *Engine) currentPhase(st *marketState, now time.Time) domain.PhaseRecord {
	if now.Sub(st.phase.RefreshedAt) < e.cfg.ScoreRefresh && !st.phase.RefreshedAt.IsZero() {
		return st.phase
	}
	st.phase = domain.ClassifyPhase(st.market.Slug, st.score, st.market.StartTime, st.market.EndTime, now)
	return st.phase
}
