package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// PaperBroker implements ports.OrderExecutor against simulated state:
// every immediate-or-cancel order fills whole at the requested price,
// less a fee. The trader runs the exact same code path against it.
type PaperBroker struct {
	feeRate float64

	mu        sync.Mutex
	cash      float64
	positions map[string]domain.PortfolioPosition
	orders    map[string]domain.OrderResult
}

func NewPaperBroker(startingCash, feeRate float64) *PaperBroker {
	return &PaperBroker{
		feeRate:   feeRate,
		cash:      startingCash,
		positions: make(map[string]domain.PortfolioPosition),
		orders:    make(map[string]domain.OrderResult),
	}
}

// SubmitOrder fills instantly at the requested price. Entries debit
// the side-correct per-share cost; closes credit the proceeds.
func (b *PaperBroker) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fee := req.Price * req.Quantity * b.feeRate

	if req.Close {
		held, ok := b.positions[req.MarketID]
		if !ok || held.Quantity <= 0 {
			return domain.OrderResult{}, fmt.Errorf("trader.PaperBroker: no position in %s to close", req.MarketID)
		}
		qty := req.Quantity
		if qty > held.Quantity {
			qty = held.Quantity
		}

		// Closing returns the entry cost plus the realized move.
		entryCost := domain.PerShareCost(held.Side, held.AvgPrice) * qty
		var pnl float64
		if held.Side == domain.SideShort {
			pnl = (held.AvgPrice - req.Price) * qty
		} else {
			pnl = (req.Price - held.AvgPrice) * qty
		}
		b.cash += entryCost + pnl - fee

		held.Quantity -= qty
		if held.Quantity <= 1e-9 {
			delete(b.positions, req.MarketID)
		} else {
			b.positions[req.MarketID] = held
		}
		return b.record(req, qty), nil
	}

	cost := domain.PerShareCost(req.Side, req.Price)*req.Quantity + fee
	if cost > b.cash {
		return domain.OrderResult{}, fmt.Errorf("trader.PaperBroker: insufficient cash %.4f for cost %.4f", b.cash, cost)
	}
	b.cash -= cost

	held := b.positions[req.MarketID]
	total := held.Quantity + req.Quantity
	if total > 0 {
		held.AvgPrice = (held.AvgPrice*held.Quantity + req.Price*req.Quantity) / total
	}
	held.MarketID = req.MarketID
	held.Side = req.Side
	held.Quantity = total
	b.positions[req.MarketID] = held

	return b.record(req, req.Quantity), nil
}

// record stores and returns the filled result. Caller holds mu.
func (b *PaperBroker) record(req domain.OrderRequest, qty float64) domain.OrderResult {
	res := domain.OrderResult{
		OrderID:   uuid.NewString(),
		State:     domain.OrderStateFilled,
		FilledQty: qty,
		AvgPrice:  req.Price,
		Executions: []domain.Execution{
			{Price: req.Price, Quantity: qty, At: time.Now()},
		},
	}
	b.orders[res.OrderID] = res
	return res
}

func (b *PaperBroker) OrderStatus(_ context.Context, orderID string) (domain.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, ok := b.orders[orderID]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("trader.PaperBroker: unknown order %s", orderID)
	}
	return res, nil
}

func (b *PaperBroker) CancelOrder(_ context.Context, orderID string) error {
	return fmt.Errorf("trader.PaperBroker: order %s is not open", orderID)
}

func (b *PaperBroker) Positions(context.Context) ([]domain.PortfolioPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.PortfolioPosition, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (b *PaperBroker) Balance(context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash, nil
}
