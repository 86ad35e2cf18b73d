package trader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

func TestPaperBrokerEntryDebitsSideCorrectCost(t *testing.T) {
	ctx := context.Background()
	b := NewPaperBroker(10, 0.01)

	// A short at 0.40 costs 0.60 a share, not 0.40.
	res, err := b.SubmitOrder(ctx, domain.OrderRequest{
		MarketID: "mkt-1",
		Side:     domain.SideShort,
		Price:    0.40,
		Quantity: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateFilled, res.State)
	assert.Equal(t, 5.0, res.FilledQty)
	assert.NotEmpty(t, res.OrderID)

	cash, err := b.Balance(ctx)
	require.NoError(t, err)
	// 10 - 0.60*5 - fee(0.40*5*0.01)
	assert.InDelta(t, 10-3.0-0.02, cash, 1e-9)

	held, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, domain.SideShort, held[0].Side)
	assert.InDelta(t, 0.40, held[0].AvgPrice, 1e-9)
}

func TestPaperBrokerCloseRealizesShortPnL(t *testing.T) {
	ctx := context.Background()
	b := NewPaperBroker(10, 0)

	_, err := b.SubmitOrder(ctx, domain.OrderRequest{
		MarketID: "mkt-1", Side: domain.SideShort, Price: 0.40, Quantity: 5,
	})
	require.NoError(t, err)

	// Price fell to 0.30: the short gains 0.10 a share.
	_, err = b.SubmitOrder(ctx, domain.OrderRequest{
		MarketID: "mkt-1", Side: domain.SideShort, Price: 0.30, Quantity: 5, Close: true,
	})
	require.NoError(t, err)

	cash, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, cash, 1e-9)

	held, err := b.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestPaperBrokerRejectsOverspend(t *testing.T) {
	ctx := context.Background()
	b := NewPaperBroker(1, 0)

	_, err := b.SubmitOrder(ctx, domain.OrderRequest{
		MarketID: "mkt-1", Side: domain.SideLong, Price: 0.50, Quantity: 10,
	})
	assert.ErrorContains(t, err, "insufficient cash")

	cash, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cash)
}

func TestPaperBrokerCloseWithoutPositionFails(t *testing.T) {
	b := NewPaperBroker(10, 0)
	_, err := b.SubmitOrder(context.Background(), domain.OrderRequest{
		MarketID: "mkt-1", Side: domain.SideLong, Price: 0.50, Quantity: 1, Close: true,
	})
	assert.ErrorContains(t, err, "no position")
}

func TestPaperBrokerOrderStatusReplaysFill(t *testing.T) {
	ctx := context.Background()
	b := NewPaperBroker(10, 0)

	res, err := b.SubmitOrder(ctx, domain.OrderRequest{
		MarketID: "mkt-1", Side: domain.SideLong, Price: 0.45, Quantity: 2,
	})
	require.NoError(t, err)

	got, err := b.OrderStatus(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateFilled, got.State)
	assert.InDelta(t, 0.45, got.FilledAvgPrice(), 1e-9)

	_, err = b.OrderStatus(ctx, "missing")
	assert.Error(t, err)
}

func TestPaperBrokerAveragesRepeatedEntries(t *testing.T) {
	ctx := context.Background()
	b := NewPaperBroker(10, 0)

	_, err := b.SubmitOrder(ctx, domain.OrderRequest{
		MarketID: "mkt-1", Side: domain.SideLong, Price: 0.40, Quantity: 2,
	})
	require.NoError(t, err)
	_, err = b.SubmitOrder(ctx, domain.OrderRequest{
		MarketID: "mkt-1", Side: domain.SideLong, Price: 0.50, Quantity: 2,
	})
	require.NoError(t, err)

	held, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.InDelta(t, 0.45, held[0].AvgPrice, 1e-9)
	assert.Equal(t, 4.0, held[0].Quantity)
}
