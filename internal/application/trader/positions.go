package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/clobhunter/internal/domain"
	"github.com/alejandrodnm/clobhunter/internal/metrics"
	"github.com/alejandrodnm/clobhunter/internal/ports"
)

// ExitRuleSet bundles the per-strategy exit ladders with the shared
// trailing-peak parameters.
type ExitRuleSet struct {
	Contrarian  domain.ExitRules
	Momentum    domain.ExitRules
	Convergence domain.ExitRules
	Trail       domain.TrailParams
}

// Rules returns the ladder for a strategy.
func (s ExitRuleSet) Rules(st domain.Strategy) domain.ExitRules {
	switch st {
	case domain.StrategyMomentum:
		return s.Momentum
	case domain.StrategyConvergence:
		return s.Convergence
	default:
		return s.Contrarian
	}
}

// PositionBook owns every open position from fill confirmation to close
// confirmation. Nothing else mutates a position.
type PositionBook struct {
	exec       ports.OrderExecutor
	confirmer  *FillConfirmer
	prices     *PriceCache
	marketData ports.MarketDataProvider
	trades     ports.TradeRecorder
	notifier   ports.Notifier
	risk       *RiskManager
	pricing    domain.PricingParams
	exits      ExitRuleSet

	closeRetries    int
	closeRetryDelay time.Duration

	mu             sync.Mutex
	positions      map[string]*domain.Position
	lastMids       map[string]float64
	closingReasons map[string]string
}

func NewPositionBook(
	exec ports.OrderExecutor,
	confirmer *FillConfirmer,
	prices *PriceCache,
	marketData ports.MarketDataProvider,
	trades ports.TradeRecorder,
	notifier ports.Notifier,
	risk *RiskManager,
	pricing domain.PricingParams,
	exits ExitRuleSet,
	closeRetries int,
	closeRetryDelay time.Duration,
) *PositionBook {
	return &PositionBook{
		exec:            exec,
		confirmer:       confirmer,
		prices:          prices,
		marketData:      marketData,
		trades:          trades,
		notifier:        notifier,
		risk:            risk,
		pricing:         pricing,
		exits:           exits,
		closeRetries:    closeRetries,
		closeRetryDelay: closeRetryDelay,
		positions:       make(map[string]*domain.Position),
		lastMids:        make(map[string]float64),
		closingReasons:  make(map[string]string),
	}
}

// Open records a confirmed entry. One position per market.
func (b *PositionBook) Open(marketID string, side domain.Side, strategy domain.Strategy, entryPrice, qty float64, now time.Time) *domain.Position {
	pos := &domain.Position{
		ID:         uuid.NewString(),
		MarketID:   marketID,
		Side:       side,
		Strategy:   strategy,
		EntryPrice: entryPrice,
		Quantity:   qty,
		OpenedAt:   now,
		State:      domain.PositionOpen,
	}
	b.mu.Lock()
	b.positions[marketID] = pos
	n := len(b.positions)
	b.mu.Unlock()

	metrics.OpenPositions.Set(float64(n))
	return pos
}

// Has reports whether a market already carries an open position.
func (b *PositionBook) Has(marketID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.positions[marketID]
	return ok
}

// Count returns the number of open positions.
func (b *PositionBook) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

// Adopt reconciles venue holdings present at startup into the book so
// replayed signals for those markets hit the already-open check instead
// of double-entering. Adopted positions run the conservative ladder.
func (b *PositionBook) Adopt(held []domain.PortfolioPosition, now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	adopted := 0
	for _, h := range held {
		if h.Quantity <= 0 {
			continue
		}
		if _, ok := b.positions[h.MarketID]; ok {
			continue
		}
		b.positions[h.MarketID] = &domain.Position{
			ID:         uuid.NewString(),
			MarketID:   h.MarketID,
			Side:       h.Side,
			Strategy:   domain.StrategyContrarian,
			EntryPrice: h.AvgPrice,
			Quantity:   h.Quantity,
			OpenedAt:   now,
			State:      domain.PositionOpen,
		}
		adopted++
	}
	metrics.OpenPositions.Set(float64(len(b.positions)))
	return adopted
}

// ManageOnce evaluates every open position's exit ladder against fresh
// prices and closes those that fire. Runs even while new entries are
// halted: risk breakers stop openings, never management.
func (b *PositionBook) ManageOnce(ctx context.Context, now time.Time) {
	b.mu.Lock()
	open := make([]*domain.Position, 0, len(b.positions))
	var closing []*domain.Position
	for _, p := range b.positions {
		switch p.State {
		case domain.PositionOpen:
			open = append(open, p)
		case domain.PositionClosing:
			closing = append(closing, p)
		}
	}
	b.mu.Unlock()

	for _, pos := range open {
		if err := b.manage(ctx, pos, now); err != nil {
			slog.Error("position management failed",
				"market", pos.MarketID, "error", err)
		}
	}
	if len(closing) > 0 {
		b.reconcileClosing(ctx, closing, now)
	}
}

// reconcileClosing resolves positions stranded in CLOSING by an
// indeterminate close: the venue's portfolio is the ground truth. Gone
// means the close filled; still held means it did not.
func (b *PositionBook) reconcileClosing(ctx context.Context, closing []*domain.Position, now time.Time) {
	held, err := b.exec.Positions(ctx)
	if err != nil {
		slog.Warn("closing reconciliation deferred", "error", err)
		return
	}
	byMarket := make(map[string]domain.PortfolioPosition, len(held))
	for _, h := range held {
		byMarket[h.MarketID] = h
	}
	for _, pos := range closing {
		b.mu.Lock()
		reason, ok := b.closingReasons[pos.MarketID]
		exitPrice := b.lastMids[pos.MarketID]
		b.mu.Unlock()
		if !ok {
			reason = domain.ExitStopLoss
		}
		if h, held := byMarket[pos.MarketID]; held && h.Quantity > 0 {
			slog.Info("close did not fill, resuming management", "market", pos.MarketID)
			pos.State = domain.PositionOpen
			continue
		}
		if exitPrice <= 0 {
			exitPrice = pos.EntryPrice
		}
		slog.Info("close confirmed via portfolio", "market", pos.MarketID)
		b.finalize(ctx, pos, exitPrice, reason, now)
	}
}

func (b *PositionBook) manage(ctx context.Context, pos *domain.Position, now time.Time) error {
	q, err := b.prices.Quote(ctx, pos.MarketID)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	mid := q.Mid
	if mid <= 0 {
		return nil
	}
	b.mu.Lock()
	b.lastMids[pos.MarketID] = mid
	b.mu.Unlock()

	var reason string
	var fire bool
	if pos.Strategy == domain.StrategyConvergence {
		phase, gameOver := b.contestState(ctx, pos.MarketID, now)
		reason, fire = pos.EvaluateConvergenceExit(mid, phase, gameOver, now, b.exits.Convergence)
	} else {
		execPrice := domain.ExitPrice(q, mid, pos.Side, b.pricing)
		reason, fire = pos.EvaluateExit(execPrice, mid, now, b.exits.Rules(pos.Strategy), b.exits.Trail)
	}
	if !fire {
		return nil
	}
	return b.closePosition(ctx, pos, reason, now)
}

// contestState classifies the market's phase for convergence exits. On
// lookup failure it reports UNKNOWN and not-over: the emergency stop
// and hold cap still protect the position.
func (b *PositionBook) contestState(ctx context.Context, marketID string, now time.Time) (domain.Phase, bool) {
	mkt, score, err := b.marketData.MarketDetails(ctx, marketID)
	if err != nil {
		slog.Warn("contest state lookup failed", "market", marketID, "error", err)
		return domain.PhaseUnknown, false
	}
	rec := domain.ClassifyPhase(mkt.Slug, score, mkt.StartTime, mkt.EndTime, now)
	return rec.Phase, score.Ended
}

// closePosition submits a crossing close and retries until the fill
// confirms. An indeterminate outcome leaves the position in CLOSING for
// the next cycle rather than guessing.
func (b *PositionBook) closePosition(ctx context.Context, pos *domain.Position, reason string, now time.Time) error {
	pos.State = domain.PositionClosing

	for attempt := 1; attempt <= b.closeRetries; attempt++ {
		if attempt > 1 {
			b.prices.Forget(pos.MarketID)
			if !sleepCtx(ctx, b.closeRetryDelay) {
				pos.State = domain.PositionOpen
				return ctx.Err()
			}
		}

		q, err := b.prices.Quote(ctx, pos.MarketID)
		if err != nil {
			slog.Warn("close quote failed", "market", pos.MarketID, "attempt", attempt, "error", err)
			continue
		}
		req := domain.OrderRequest{
			MarketID: pos.MarketID,
			Side:     pos.Side,
			Price:    domain.ExitPrice(q, q.Mid, pos.Side, b.pricing),
			Quantity: pos.Quantity,
			ClientID: uuid.NewString(),
			Close:    true,
		}
		res, err := b.exec.SubmitOrder(ctx, req)
		if err != nil {
			slog.Warn("close submit failed", "market", pos.MarketID, "attempt", attempt, "error", err)
			res = domain.OrderResult{}
		}

		outcome := b.confirmer.Confirm(ctx, res, req)
		switch outcome.Verdict {
		case FillConfirmed:
			exitPrice := outcome.AvgPrice
			if exitPrice <= 0 {
				exitPrice = req.Price
			}
			b.finalize(ctx, pos, exitPrice, reason, now)
			return nil
		case FillIndeterminate:
			b.mu.Lock()
			b.closingReasons[pos.MarketID] = reason
			b.mu.Unlock()
			return fmt.Errorf("trader.PositionBook: close of %s indeterminate, holding in CLOSING", pos.MarketID)
		}
		// Unfilled: go around with a fresh price.
	}

	pos.State = domain.PositionOpen
	return fmt.Errorf("trader.PositionBook: close of %s unfilled after %d attempts", pos.MarketID, b.closeRetries)
}

func (b *PositionBook) finalize(ctx context.Context, pos *domain.Position, exitPrice float64, reason string, now time.Time) {
	pos.State = domain.PositionClosed
	pnl := pos.RealizedPnL(exitPrice)

	b.mu.Lock()
	delete(b.positions, pos.MarketID)
	delete(b.closingReasons, pos.MarketID)
	n := len(b.positions)
	b.mu.Unlock()

	b.risk.NoteClose(pos.MarketID, pos.Strategy, pnl, now)

	tr := domain.Trade{
		PositionID:  pos.ID,
		MarketID:    pos.MarketID,
		Side:        pos.Side,
		Strategy:    pos.Strategy,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    pos.Quantity,
		RealizedPnL: pnl,
		ExitReason:  reason,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    now,
	}
	if err := b.trades.RecordTrade(ctx, tr); err != nil {
		slog.Error("trade record failed", "market", pos.MarketID, "error", err)
	}
	b.notifier.PrintTrade(tr)

	metrics.ExitReasons.WithLabelValues(reason, string(pos.Strategy)).Inc()
	metrics.OpenPositions.Set(float64(n))
	metrics.RealizedPnL.Set(b.risk.DailyPnL(now))

	slog.Info("position closed",
		"market", pos.MarketID,
		"side", pos.Side,
		"strategy", pos.Strategy,
		"reason", reason,
		"entry", pos.EntryPrice,
		"exit", exitPrice,
		"pnl", fmt.Sprintf("%.4f", pnl))
}

// CloseAll unwinds every open position, used on shutdown.
func (b *PositionBook) CloseAll(ctx context.Context, now time.Time) {
	b.mu.Lock()
	open := make([]*domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		open = append(open, p)
	}
	b.mu.Unlock()

	for _, pos := range open {
		if err := b.closePosition(ctx, pos, domain.ExitShutdown, now); err != nil {
			slog.Error("shutdown close failed", "market", pos.MarketID, "error", err)
		}
	}
}

// RenderTable writes the open-positions table through the notifier.
func (b *PositionBook) RenderTable() {
	b.mu.Lock()
	open := make([]*domain.Position, 0, len(b.positions))
	mids := make(map[string]float64, len(b.lastMids))
	for _, p := range b.positions {
		open = append(open, p)
	}
	for id, m := range b.lastMids {
		mids[id] = m
	}
	b.mu.Unlock()

	b.notifier.PositionsTable(open, mids)
}
