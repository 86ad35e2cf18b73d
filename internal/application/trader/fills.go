package trader

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/clobhunter/internal/domain"
	"github.com/alejandrodnm/clobhunter/internal/metrics"
	"github.com/alejandrodnm/clobhunter/internal/ports"
)

// FillVerdict is the confirmer's conclusion about one order.
type FillVerdict string

const (
	FillConfirmed     FillVerdict = "filled"
	FillNone          FillVerdict = "unfilled"
	FillIndeterminate FillVerdict = "indeterminate"
)

// FillOutcome carries the verdict plus the best available fill terms
// and which evidence layer produced them.
type FillOutcome struct {
	Verdict  FillVerdict
	AvgPrice float64
	Quantity float64
	Layer    string // response | status | portfolio
}

// portfolioCheckEvery is how often the status-poll loop interleaves a
// portfolio existence check.
const portfolioCheckEvery = 3

// FillConfirmer resolves whether an immediate-or-cancel order actually
// filled. Evidence is consulted in cost order: executions embedded in
// the submission response, then bounded status polling, then the
// portfolio itself. The portfolio is the final authority — an order is
// never canceled on poll timeout without consulting it first, because
// a lost response does not mean a lost fill.
type FillConfirmer struct {
	exec     ports.OrderExecutor
	attempts int
	delay    time.Duration
}

func NewFillConfirmer(exec ports.OrderExecutor, attempts int, delay time.Duration) *FillConfirmer {
	return &FillConfirmer{exec: exec, attempts: attempts, delay: delay}
}

// Confirm resolves the submission result for req. For entry orders a
// portfolio position in the market is evidence of a fill; for close
// orders the position's absence is.
func (f *FillConfirmer) Confirm(ctx context.Context, res domain.OrderResult, req domain.OrderRequest) FillOutcome {
	// Layer 1: the response itself.
	switch res.State {
	case domain.OrderStateFilled:
		metrics.FillOutcomes.WithLabelValues(string(FillConfirmed), "response").Inc()
		return FillOutcome{Verdict: FillConfirmed, AvgPrice: res.FilledAvgPrice(), Quantity: res.FilledQty, Layer: "response"}
	case domain.OrderStateCanceled, domain.OrderStateRejected:
		if res.FilledQty > 0 {
			// IOC partial: filled what it could, canceled the rest.
			metrics.FillOutcomes.WithLabelValues(string(FillConfirmed), "response").Inc()
			return FillOutcome{Verdict: FillConfirmed, AvgPrice: res.FilledAvgPrice(), Quantity: res.FilledQty, Layer: "response"}
		}
		metrics.FillOutcomes.WithLabelValues(string(FillNone), "response").Inc()
		return FillOutcome{Verdict: FillNone, Layer: "response"}
	}
	if len(res.Executions) > 0 && res.FilledQty > 0 {
		metrics.FillOutcomes.WithLabelValues(string(FillConfirmed), "response").Inc()
		return FillOutcome{Verdict: FillConfirmed, AvgPrice: res.FilledAvgPrice(), Quantity: res.FilledQty, Layer: "response"}
	}

	// Layer 2: status polling with interleaved portfolio checks.
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if !sleepCtx(ctx, f.delay) {
			break
		}

		status, err := f.exec.OrderStatus(ctx, res.OrderID)
		if err != nil {
			slog.Warn("order status poll failed", "order_id", res.OrderID, "attempt", attempt, "err", err)
		} else {
			switch status.State {
			case domain.OrderStateFilled:
				metrics.FillOutcomes.WithLabelValues(string(FillConfirmed), "status").Inc()
				return FillOutcome{Verdict: FillConfirmed, AvgPrice: status.FilledAvgPrice(), Quantity: status.FilledQty, Layer: "status"}
			case domain.OrderStateCanceled, domain.OrderStateRejected:
				if status.FilledQty > 0 {
					metrics.FillOutcomes.WithLabelValues(string(FillConfirmed), "status").Inc()
					return FillOutcome{Verdict: FillConfirmed, AvgPrice: status.FilledAvgPrice(), Quantity: status.FilledQty, Layer: "status"}
				}
				metrics.FillOutcomes.WithLabelValues(string(FillNone), "status").Inc()
				return FillOutcome{Verdict: FillNone, Layer: "status"}
			}
		}

		if attempt%portfolioCheckEvery == 0 {
			if out, decided := f.portfolioCheck(ctx, req); decided {
				return out
			}
		}
	}

	// Layer 3: final portfolio check, then cancel, then one last check.
	// The cancel can race a fill; its error is treated as evidence.
	if out, decided := f.portfolioCheck(ctx, req); decided {
		return out
	}

	if err := f.exec.CancelOrder(ctx, res.OrderID); err != nil {
		slog.Warn("cancel after poll timeout failed, rechecking portfolio",
			"order_id", res.OrderID, "err", err)
		if out, decided := f.portfolioCheck(ctx, req); decided {
			return out
		}
		metrics.FillOutcomes.WithLabelValues(string(FillIndeterminate), "portfolio").Inc()
		slog.Error("RECONCILE: order outcome indeterminate",
			"order_id", res.OrderID,
			"market", req.MarketID,
			"close", req.Close,
		)
		return FillOutcome{Verdict: FillIndeterminate, Layer: "portfolio"}
	}

	metrics.FillOutcomes.WithLabelValues(string(FillNone), "portfolio").Inc()
	return FillOutcome{Verdict: FillNone, Layer: "portfolio"}
}

// portfolioCheck inspects the venue's holdings. decided is false when
// the check itself failed or when the evidence does not settle the
// question for this order type.
func (f *FillConfirmer) portfolioCheck(ctx context.Context, req domain.OrderRequest) (FillOutcome, bool) {
	positions, err := f.exec.Positions(ctx)
	if err != nil {
		slog.Warn("portfolio check failed", "market", req.MarketID, "err", err)
		return FillOutcome{}, false
	}

	var held *domain.PortfolioPosition
	for i := range positions {
		if positions[i].MarketID == req.MarketID {
			held = &positions[i]
			break
		}
	}

	if req.Close {
		// For a close, the position being gone is the fill. A position
		// still present only means not-yet: the poll loop continues.
		if held == nil || held.Quantity <= 0 {
			metrics.FillOutcomes.WithLabelValues(string(FillConfirmed), "portfolio").Inc()
			return FillOutcome{Verdict: FillConfirmed, AvgPrice: req.Price, Quantity: req.Quantity, Layer: "portfolio"}, true
		}
		return FillOutcome{}, false
	}

	// For an entry, the position existing is the fill. Absence says
	// nothing definitive while the order may still be working.
	if held != nil && held.Quantity > 0 {
		avg := held.AvgPrice
		if avg <= 0 {
			avg = req.Price
		}
		metrics.FillOutcomes.WithLabelValues(string(FillConfirmed), "portfolio").Inc()
		return FillOutcome{Verdict: FillConfirmed, AvgPrice: avg, Quantity: held.Quantity, Layer: "portfolio"}, true
	}
	return FillOutcome{}, false
}

// sleepCtx waits d or until the context ends; false means canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
