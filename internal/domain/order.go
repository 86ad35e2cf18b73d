package domain

import "time"

// OrderState mirrors the venue's order state enumerants exactly. Fill
// confirmation matches these verbatim, never by substring.
type OrderState string

const (
	OrderStateOpen            OrderState = "ORDER_STATE_OPEN"
	OrderStatePartiallyFilled OrderState = "ORDER_STATE_PARTIALLY_FILLED"
	OrderStateFilled          OrderState = "ORDER_STATE_FILLED"
	OrderStateCanceled        OrderState = "ORDER_STATE_CANCELED"
	OrderStateRejected        OrderState = "ORDER_STATE_REJECTED"
)

// OrderRequest is an immediate-or-cancel order to submit. Close orders
// unwind an existing position instead of opening one; fill confirmation
// interprets portfolio evidence differently for the two.
type OrderRequest struct {
	MarketID string
	Side     Side
	Price    float64
	Quantity float64
	ClientID string
	Close    bool
}

// Execution is one fill reported by the venue.
type Execution struct {
	Price    float64
	Quantity float64
	At       time.Time
}

// OrderResult is the venue's answer to a submission or a status poll.
type OrderResult struct {
	OrderID    string
	State      OrderState
	FilledQty  float64
	AvgPrice   float64
	Executions []Execution
}

// FilledAvgPrice returns the quantity-weighted average over the
// embedded executions, falling back to the reported average.
func (r OrderResult) FilledAvgPrice() float64 {
	var qty, notional float64
	for _, ex := range r.Executions {
		qty += ex.Quantity
		notional += ex.Price * ex.Quantity
	}
	if qty > 0 {
		return notional / qty
	}
	return r.AvgPrice
}

// PortfolioPosition is a holding as the venue reports it.
type PortfolioPosition struct {
	MarketID string
	Side     Side
	Quantity float64
	AvgPrice float64
}

// Trade is one completed round trip, recorded append-only for external
// reporting.
type Trade struct {
	PositionID  string
	MarketID    string
	Side        Side
	Strategy    Strategy
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	RealizedPnL float64
	ExitReason  string
	OpenedAt    time.Time
	ClosedAt    time.Time
}
