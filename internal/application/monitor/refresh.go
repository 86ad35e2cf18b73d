package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// refreshMarkets runs discovery: lists open markets, merges their
// liquidity into tracked state, subscribes new ones to the stream, and
// drops markets the venue no longer lists.
func (e *Engine) refreshMarkets(ctx context.Context) error {
	markets, err := e.marketData.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("monitor.refreshMarkets: %w", err)
	}

	now := time.Now()
	listed := make(map[string]bool, len(markets))
	var fresh []string

	e.mu.Lock()
	for _, m := range markets {
		listed[m.ID] = true
		st, known := e.markets[m.ID]
		if !known {
			m.SeenAt = now
			e.markets[m.ID] = &marketState{market: m}
			fresh = append(fresh, m.ID)
			continue
		}
		// Liquidity fields merge per-field: a refresh that omits a
		// field never wipes a previously known value.
		m.Liquidity = st.market.Liquidity.Merge(m.Liquidity)
		m.SeenAt = st.market.SeenAt
		st.market = m
	}

	var dropped int
	for id := range e.markets {
		if !listed[id] {
			delete(e.markets, id)
			dropped++
		}
	}
	total := len(e.markets)
	e.mu.Unlock()

	if len(fresh) > 0 {
		e.stream.Subscribe(fresh)
	}

	slog.Info("market discovery",
		"listed", len(markets),
		"new", len(fresh),
		"dropped", dropped,
		"tracked", total,
	)
	return nil
}

// refreshLiquidity re-lists markets and merges only the activity
// fields. Cheaper in intent than discovery: no subscription changes,
// no drops.
func (e *Engine) refreshLiquidity(ctx context.Context) error {
	markets, err := e.marketData.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("monitor.refreshLiquidity: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range markets {
		if st, ok := e.markets[m.ID]; ok {
			st.market.Liquidity = st.market.Liquidity.Merge(m.Liquidity)
		}
	}
	return nil
}

// refreshScores polls per-market detail for contests dated today and
// reclassifies their phase. Markets already past the end of play are
// skipped; their phase cannot move backwards.
func (e *Engine) refreshScores(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	var due []string
	for id, st := range e.markets {
		if st.phase.Phase == domain.PhasePost {
			continue
		}
		_, date, ok := domain.ParseSlug(st.market.Slug)
		if !ok {
			continue
		}
		y, m, d := now.UTC().Date()
		dy, dm, dd := date.Date()
		if y == dy && m == dm && d == dd {
			due = append(due, id)
		}
	}
	e.mu.Unlock()

	for _, id := range due {
		if ctx.Err() != nil {
			return
		}
		market, score, err := e.marketData.MarketDetails(ctx, id)
		if err != nil {
			slog.Warn("score refresh failed", "market", id, "err", err)
			continue
		}

		e.mu.Lock()
		if st, ok := e.markets[id]; ok {
			st.market.Liquidity = st.market.Liquidity.Merge(market.Liquidity)
			st.score = score
			st.phase = domain.ClassifyPhase(st.market.Slug, score, st.market.StartTime, st.market.EndTime, now)
		}
		e.mu.Unlock()
	}

	if len(due) > 0 {
		slog.Debug("score refresh pass", "markets", len(due))
	}
}
