package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/clobhunter/internal/domain"
	"github.com/alejandrodnm/clobhunter/internal/metrics"
	"github.com/alejandrodnm/clobhunter/internal/ports"
)

const consumerName = "trader"

// Config holds the execution engine's cadences and limits.
type Config struct {
	PollInterval    time.Duration // signal tail + position management
	MaxSignalAge    time.Duration
	SummaryInterval time.Duration
	CleanupInterval time.Duration
	BatchLimit      int

	GeneralRate  rate.Limit
	GeneralBurst int
	OrderRate    rate.Limit
	OrderBurst   int
}

// Engine is the execution half: it tails the signal log, gates each
// accepted signal a second time against fresh venue state, opens
// positions, and drives their lifecycle to a confirmed close. It holds
// no detection state; the log offset is its only coupling to the
// monitor, so either side can restart independently.
type Engine struct {
	cfg        Config
	store      ports.SignalStore
	exec       ports.OrderExecutor
	confirmer  *FillConfirmer
	prices     *PriceCache
	risk       *RiskManager
	selector   *domain.StrategySelector
	gate       *EntryGate
	book       *PositionBook
	marketData ports.MarketDataProvider
	pricing    domain.PricingParams
	exits      ExitRuleSet

	general *rate.Limiter
	orders  *rate.Limiter

	offset int64

	mu      sync.Mutex
	skips   map[string]int
	entries int
}

func New(
	cfg Config,
	store ports.SignalStore,
	exec ports.OrderExecutor,
	confirmer *FillConfirmer,
	prices *PriceCache,
	risk *RiskManager,
	selector *domain.StrategySelector,
	gate *EntryGate,
	book *PositionBook,
	marketData ports.MarketDataProvider,
	pricing domain.PricingParams,
	exits ExitRuleSet,
) *Engine {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	return &Engine{
		cfg:        cfg,
		store:      store,
		exec:       exec,
		confirmer:  confirmer,
		prices:     prices,
		risk:       risk,
		selector:   selector,
		gate:       gate,
		book:       book,
		marketData: marketData,
		pricing:    pricing,
		exits:      exits,
		general:    rate.NewLimiter(cfg.GeneralRate, cfg.GeneralBurst),
		orders:     rate.NewLimiter(cfg.OrderRate, cfg.OrderBurst),
		skips:      make(map[string]int),
	}
}

// Run consumes the signal log until ctx is canceled, then unwinds every
// open position before returning.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startup(ctx); err != nil {
		return fmt.Errorf("trader.Engine: startup: %w", err)
	}

	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()
	summary := time.NewTicker(e.cfg.SummaryInterval)
	defer summary.Stop()
	cleanup := time.NewTicker(e.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown gets its own deadline: the parent ctx is gone.
			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			e.book.CloseAll(closeCtx, time.Now())
			cancel()
			return nil
		case <-poll.C:
			now := time.Now()
			if err := e.consumeBatch(ctx, now); err != nil {
				slog.Error("signal consumption failed", "error", err)
			}
			e.book.ManageOnce(ctx, now)
		case <-summary.C:
			e.logSummary(time.Now())
		case <-cleanup.C:
			now := time.Now()
			e.prices.Prune()
			e.risk.Prune(now)
			e.selector.Prune(now)
		}
	}
}

// startup reconciles venue holdings into the book and loads the
// committed log offset. Replayed signals for adopted markets then hit
// the already-open check instead of double-entering.
func (e *Engine) startup(ctx context.Context) error {
	held, err := e.exec.Positions(ctx)
	if err != nil {
		return fmt.Errorf("portfolio: %w", err)
	}
	if n := e.book.Adopt(held, time.Now()); n > 0 {
		slog.Info("adopted existing positions", "count", n)
	}

	e.offset, err = e.store.LastOffset(ctx, consumerName)
	if err != nil {
		return fmt.Errorf("offset: %w", err)
	}
	slog.Info("trader started", "offset", e.offset, "positions", e.book.Count())
	return nil
}

// consumeBatch tails the log past the last committed offset, handles
// each signal, and commits once per batch. Delivery is at-least-once;
// every handler path is idempotent against replay.
func (e *Engine) consumeBatch(ctx context.Context, now time.Time) error {
	sigs, err := e.store.TailFrom(ctx, e.offset, e.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("tail: %w", err)
	}
	if len(sigs) == 0 {
		return nil
	}
	for _, sig := range sigs {
		e.handleSignal(ctx, sig, now)
		e.offset = sig.Offset
	}
	if err := e.store.CommitOffset(ctx, consumerName, e.offset); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (e *Engine) handleSignal(ctx context.Context, sig domain.Signal, now time.Time) {
	if sig.Decision != domain.DecisionAccept {
		return
	}
	if now.Sub(sig.EmittedAt) > e.cfg.MaxSignalAge {
		e.skip(sig, "signal_stale")
		return
	}
	if e.book.Has(sig.MarketID) {
		e.skip(sig, "already_open")
		return
	}

	e.selector.Record(sig.MarketID, sig.Direction, sig.EmittedAt)
	selected := e.selector.Select(sig.MarketID, now)

	phase := e.freshPhase(ctx, sig, now)
	intent, reason := e.gate.Evaluate(sig, phase, selected, now)
	if reason != "" {
		e.skip(sig, reason)
		return
	}
	if reason := e.risk.CanOpen(sig.MarketID, intent.Strategy, now); reason != "" {
		e.skip(sig, reason)
		return
	}

	if err := e.general.Wait(ctx); err != nil {
		return
	}
	freeCash, err := e.exec.Balance(ctx)
	if err != nil {
		slog.Error("balance fetch failed", "error", err)
		e.skip(sig, "balance_unavailable")
		return
	}
	quote, err := e.prices.Quote(ctx, sig.MarketID)
	if err != nil {
		slog.Warn("entry quote failed", "market", sig.MarketID, "error", err)
		quote = domain.Quote{}
	}

	plan, planReason := domain.PlanEntry(quote, sig.Mid, intent.Side, freeCash, e.takeProfitFor(intent.Strategy), e.pricing)
	if planReason != "" {
		e.skip(sig, planReason)
		return
	}

	e.openPosition(ctx, sig, intent, plan, now)
}

// freshPhase re-classifies the market at decision time. Detection-time
// phase can be minutes old by the time the signal is consumed; stale
// lookups fall back to it rather than blocking.
func (e *Engine) freshPhase(ctx context.Context, sig domain.Signal, now time.Time) domain.PhaseRecord {
	if err := e.general.Wait(ctx); err != nil {
		return domain.PhaseRecord{Phase: sig.Phase}
	}
	mkt, score, err := e.marketData.MarketDetails(ctx, sig.MarketID)
	if err != nil {
		slog.Warn("phase refresh failed", "market", sig.MarketID, "error", err)
		return domain.PhaseRecord{Phase: sig.Phase}
	}
	return domain.ClassifyPhase(mkt.Slug, score, mkt.StartTime, mkt.EndTime, now)
}

func (e *Engine) openPosition(ctx context.Context, sig domain.Signal, intent EntryIntent, plan domain.OrderPlan, now time.Time) {
	if err := e.orders.Wait(ctx); err != nil {
		return
	}
	req := domain.OrderRequest{
		MarketID: sig.MarketID,
		Side:     plan.Side,
		Price:    plan.Price,
		Quantity: plan.Quantity,
		ClientID: uuid.NewString(),
	}
	res, err := e.exec.SubmitOrder(ctx, req)
	if err != nil {
		slog.Warn("entry submit failed", "market", sig.MarketID, "error", err)
		res = domain.OrderResult{}
	}

	outcome := e.confirmer.Confirm(ctx, res, req)
	switch outcome.Verdict {
	case FillConfirmed:
		price := outcome.AvgPrice
		if price <= 0 {
			price = plan.Price
		}
		qty := outcome.Quantity
		if qty <= 0 {
			qty = plan.Quantity
		}
		e.book.Open(sig.MarketID, plan.Side, intent.Strategy, price, qty, now)
		e.risk.NoteOpen(sig.MarketID, intent.Strategy, now)
		metrics.OrdersPlaced.WithLabelValues(string(plan.Side), string(intent.Strategy)).Inc()
		e.mu.Lock()
		e.entries++
		e.mu.Unlock()
		slog.Info("position opened",
			"market", sig.MarketID,
			"side", plan.Side,
			"strategy", intent.Strategy,
			"price", price,
			"qty", fmt.Sprintf("%.2f", qty),
			"z", sig.ZScore,
			"layer", outcome.Layer)
	case FillIndeterminate:
		// Already flagged for reconciliation by the confirmer. The
		// rearm stamp stops an immediate retry on the same market;
		// the bucket stays free since nothing entered the book. If
		// the fill did land, the next startup adoption picks it up.
		e.risk.NoteAttempt(sig.MarketID, now)
		e.skip(sig, "fill_indeterminate")
	default:
		e.skip(sig, "unfilled")
	}
}

// takeProfitFor feeds the entry slippage guard. Settlement holds have
// no take-profit, so the guard runs at its absolute cap instead.
func (e *Engine) takeProfitFor(st domain.Strategy) float64 {
	tp := e.exits.Rules(st).TakeProfit
	if tp <= 0 {
		tp = 2 * e.pricing.EntrySlipCap
	}
	return tp
}

func (e *Engine) skip(sig domain.Signal, reason string) {
	e.mu.Lock()
	e.skips[reason]++
	e.mu.Unlock()
	slog.Debug("signal skipped", "market", sig.MarketID, "reason", reason, "offset", sig.Offset)
}

// SkipCounters returns a copy of the per-reason skip tallies.
func (e *Engine) SkipCounters() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.skips))
	for k, v := range e.skips {
		out[k] = v
	}
	return out
}

func (e *Engine) logSummary(now time.Time) {
	e.mu.Lock()
	entries := e.entries
	parts := make([]string, 0, len(e.skips))
	for reason, n := range e.skips {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, n))
	}
	e.mu.Unlock()
	sort.Strings(parts)

	slog.Info("trader summary",
		"entries", entries,
		"open", e.book.Count(),
		"daily_pnl", fmt.Sprintf("%.4f", e.risk.DailyPnL(now)),
		"skips", strings.Join(parts, " "))
	e.book.RenderTable()
}
