package trader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// memSignalStore is an in-memory signal log with committed offsets.
type memSignalStore struct {
	mu      sync.Mutex
	signals []domain.Signal
	offsets map[string]int64
	commits int
}

func newMemSignalStore() *memSignalStore {
	return &memSignalStore{offsets: make(map[string]int64)}
}

func (m *memSignalStore) Append(_ context.Context, sig domain.Signal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig.Offset = int64(len(m.signals) + 1)
	m.signals = append(m.signals, sig)
	return sig.Offset, nil
}

func (m *memSignalStore) TailFrom(_ context.Context, after int64, limit int) ([]domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Signal
	for _, s := range m.signals {
		if s.Offset > after {
			out = append(out, s)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memSignalStore) CommitOffset(_ context.Context, consumer string, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets[consumer] = offset
	m.commits++
	return nil
}

func (m *memSignalStore) LastOffset(_ context.Context, consumer string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offsets[consumer], nil
}

func newTestTraderEngine(store *memSignalStore, exec *scriptedExecutor, md *stubMarketData) *Engine {
	risk := NewRiskManager(RiskParams{
		MaxContrarian: 2, MaxMomentum: 2, MaxConvergence: 1,
		DailyLossLimit: 5, MaxLossesPerMarket: 2,
		Rearm: 5 * time.Minute, MinOpenInterval: 30 * time.Second,
	})
	pricing := domain.PricingParams{
		CrossBuffer: 0.005, SlippagePct: 3, EntrySlipCap: 0.03,
		CashFraction: 0.10, CashMin: 1, CashMax: 10, MinCash: 1,
	}
	prices := NewPriceCache(md, 0)
	confirmer := NewFillConfirmer(exec, 2, time.Millisecond)
	not := &captureNotifier{}
	trades := &memTrades{}
	book := NewPositionBook(exec, confirmer, prices, md, trades, not, risk,
		pricing, testRules(), 2, time.Millisecond)
	selector := domain.NewStrategySelector(domain.StrategyParams{
		Window: 10 * time.Minute, MinSignals: 4, DominanceRatio: 0.75,
	})
	return New(Config{
		PollInterval:    50 * time.Millisecond,
		MaxSignalAge:    15 * time.Second,
		SummaryInterval: time.Minute,
		CleanupInterval: time.Minute,
		BatchLimit:      100,
		GeneralRate:     rate.Limit(1000),
		GeneralBurst:    1000,
		OrderRate:       rate.Limit(1000),
		OrderBurst:      1000,
	}, store, exec, confirmer, prices, risk, selector,
		NewEntryGate(testGateParams()), book, md, pricing, testRules())
}

func liveMarket(id string) (domain.Market, domain.ScoreInfo) {
	return domain.Market{ID: id, Slug: id},
		domain.ScoreInfo{Live: true, Period: 2, ScoreDiff: 5}
}

func TestConsumeBatchOpensContrarianShort(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	store := newMemSignalStore()
	exec := &scriptedExecutor{balance: 100}
	md := newStubMarketData()
	e := newTestTraderEngine(store, exec, md)

	sig := freshSignal(now)
	md.markets[sig.MarketID], md.scores[sig.MarketID] = liveMarket(sig.MarketID)
	md.setQuote(sig.MarketID, 0.41, 0.43)
	exec.submitRes = domain.OrderResult{
		OrderID: "ord-1", State: domain.OrderStateFilled, FilledQty: 17, AvgPrice: 0.405,
	}

	_, err := store.Append(ctx, sig)
	require.NoError(t, err)

	require.NoError(t, e.startup(ctx))
	require.NoError(t, e.consumeBatch(ctx, now))

	// A spike with a fade hint opens short against the move.
	require.Len(t, exec.submitted, 1)
	req := exec.submitted[0]
	assert.Equal(t, domain.SideShort, req.Side)
	assert.False(t, req.Close)
	assert.NotEmpty(t, req.ClientID)
	assert.True(t, e.book.Has(sig.MarketID))
	assert.Equal(t, 1, e.risk.OpenCount(domain.StrategyContrarian))
	assert.Equal(t, int64(1), store.offsets[consumerName])
}

func TestReplayedSignalDoesNotDoubleEnter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	store := newMemSignalStore()
	exec := &scriptedExecutor{balance: 100}
	md := newStubMarketData()
	e := newTestTraderEngine(store, exec, md)

	sig := freshSignal(now)
	md.markets[sig.MarketID], md.scores[sig.MarketID] = liveMarket(sig.MarketID)
	md.setQuote(sig.MarketID, 0.41, 0.43)
	exec.submitRes = domain.OrderResult{
		OrderID: "ord-1", State: domain.OrderStateFilled, FilledQty: 17, AvgPrice: 0.405,
	}

	_, err := store.Append(ctx, sig)
	require.NoError(t, err)

	require.NoError(t, e.startup(ctx))
	require.NoError(t, e.consumeBatch(ctx, now))
	require.Len(t, exec.submitted, 1)

	// A crashed consumer re-reads from its last durable commit; the
	// open position absorbs the duplicate.
	e.offset = 0
	require.NoError(t, e.consumeBatch(ctx, now))

	assert.Len(t, exec.submitted, 1)
	assert.Equal(t, 1, e.SkipCounters()["already_open"])
}

func TestStartupAdoptsVenueHoldings(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	store := newMemSignalStore()
	exec := &scriptedExecutor{balance: 100}
	md := newStubMarketData()
	e := newTestTraderEngine(store, exec, md)

	sig := freshSignal(now)
	md.markets[sig.MarketID], md.scores[sig.MarketID] = liveMarket(sig.MarketID)
	md.setQuote(sig.MarketID, 0.41, 0.43)

	// The venue remembers a position the restarted process does not.
	exec.positions = []domain.PortfolioPosition{
		{MarketID: sig.MarketID, Side: domain.SideShort, Quantity: 17, AvgPrice: 0.405},
	}
	_, err := store.Append(ctx, sig)
	require.NoError(t, err)

	require.NoError(t, e.startup(ctx))
	require.NoError(t, e.consumeBatch(ctx, now))

	assert.Empty(t, exec.submitted)
	assert.Equal(t, 1, e.SkipCounters()["already_open"])
}

func TestRejectedAndStaleSignalsAdvanceOffset(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	store := newMemSignalStore()
	exec := &scriptedExecutor{balance: 100}
	md := newStubMarketData()
	e := newTestTraderEngine(store, exec, md)

	rejected := freshSignal(now)
	rejected.Decision = domain.DecisionReject
	rejected.Reason = "volume_low"
	stale := freshSignal(now)
	stale.EmittedAt = now.Add(-time.Minute)

	for _, s := range []domain.Signal{rejected, stale} {
		_, err := store.Append(ctx, s)
		require.NoError(t, err)
	}

	require.NoError(t, e.startup(ctx))
	require.NoError(t, e.consumeBatch(ctx, now))

	assert.Empty(t, exec.submitted)
	assert.Equal(t, int64(2), store.offsets[consumerName])
	assert.Equal(t, 1, e.SkipCounters()["signal_stale"])
}

func TestIndeterminateEntryLeavesBucketFree(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	store := newMemSignalStore()
	// Order stuck working, cancel failing, nothing in the portfolio:
	// the venue is mid-outage and the outcome cannot be resolved.
	exec := &scriptedExecutor{
		balance:   100,
		cancelErr: errors.New("502"),
	}
	md := newStubMarketData()
	e := newTestTraderEngine(store, exec, md)

	sig := freshSignal(now)
	md.markets[sig.MarketID], md.scores[sig.MarketID] = liveMarket(sig.MarketID)
	md.setQuote(sig.MarketID, 0.41, 0.43)
	exec.submitRes = domain.OrderResult{OrderID: "ord-1", State: domain.OrderStateOpen}

	_, err := store.Append(ctx, sig)
	require.NoError(t, err)

	require.NoError(t, e.startup(ctx))
	require.NoError(t, e.consumeBatch(ctx, now))

	assert.Equal(t, 1, e.SkipCounters()["fill_indeterminate"])
	assert.False(t, e.book.Has(sig.MarketID))
	// The slot stays releasable: no position entered the book, so the
	// bucket must not be occupied, only the rearm timer armed.
	assert.Equal(t, 0, e.risk.OpenCount(domain.StrategyContrarian))
	e.book.ManageOnce(ctx, now.Add(time.Second))
	assert.Equal(t, 0, e.risk.OpenCount(domain.StrategyContrarian))

	// A prompt replay on the same market is held off by the rearm
	// stamp rather than re-submitted.
	replay := freshSignal(now)
	_, err = store.Append(ctx, replay)
	require.NoError(t, err)
	require.NoError(t, e.consumeBatch(ctx, now.Add(2*time.Second)))
	assert.Len(t, exec.submitted, 1)
	assert.Equal(t, 1, e.SkipCounters()["rearm"])
}

func TestUnfilledEntryLeavesNoPosition(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	store := newMemSignalStore()
	exec := &scriptedExecutor{balance: 100}
	md := newStubMarketData()
	e := newTestTraderEngine(store, exec, md)

	sig := freshSignal(now)
	md.markets[sig.MarketID], md.scores[sig.MarketID] = liveMarket(sig.MarketID)
	md.setQuote(sig.MarketID, 0.41, 0.43)
	// IOC came back canceled with nothing filled.
	exec.submitRes = domain.OrderResult{
		OrderID: "ord-1", State: domain.OrderStateCanceled, FilledQty: 0,
	}

	_, err := store.Append(ctx, sig)
	require.NoError(t, err)

	require.NoError(t, e.startup(ctx))
	require.NoError(t, e.consumeBatch(ctx, now))

	assert.False(t, e.book.Has(sig.MarketID))
	assert.Equal(t, 0, e.risk.OpenCount(domain.StrategyContrarian))
	assert.Equal(t, 1, e.SkipCounters()["unfilled"])
}
