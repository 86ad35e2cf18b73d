package venue

// orders.go — live order execution. Implements ports.OrderExecutor.
// All submissions are immediate-or-cancel; close orders are flagged
// reduce-only so a duplicate can never flip a position.

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// Trading is the authenticated execution adapter.
type Trading struct {
	signer *Signer
}

func NewTrading(s *Signer) *Trading {
	return &Trading{signer: s}
}

// SubmitOrder signs and posts one IOC order. Orders go through the
// tighter order limiter, never the general one.
func (t *Trading) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	body := orderRequest{
		ClientOrderID: req.ClientID,
		MarketID:      req.MarketID,
		Side:          string(req.Side),
		Type:          "IOC",
		Price:         req.Price,
		Quantity:      req.Quantity,
		ReduceOnly:    req.Close,
	}

	var env orderEnvelope
	if err := t.signer.doAuth(ctx, t.signer.orderLimiter, http.MethodPost, "/v1/orders", body, &env); err != nil {
		return domain.OrderResult{}, fmt.Errorf("venue.SubmitOrder %s: %w", req.MarketID, err)
	}
	return toOrderResult(env.unwrap()), nil
}

// OrderStatus polls one order by venue identifier.
func (t *Trading) OrderStatus(ctx context.Context, orderID string) (domain.OrderResult, error) {
	path := "/v1/orders/" + url.PathEscape(orderID)
	var env orderEnvelope
	if err := t.signer.doAuth(ctx, t.signer.limiter, http.MethodGet, path, nil, &env); err != nil {
		return domain.OrderResult{}, fmt.Errorf("venue.OrderStatus %s: %w", orderID, err)
	}
	return toOrderResult(env.unwrap()), nil
}

// CancelOrder cancels one order. A 4xx on an already-filled order
// surfaces as an error the confirmer treats as evidence.
func (t *Trading) CancelOrder(ctx context.Context, orderID string) error {
	path := "/v1/orders/" + url.PathEscape(orderID)
	if err := t.signer.doAuth(ctx, t.signer.orderLimiter, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("venue.CancelOrder %s: %w", orderID, err)
	}
	return nil
}

// Positions returns the venue's view of current holdings.
func (t *Trading) Positions(ctx context.Context) ([]domain.PortfolioPosition, error) {
	var pf wirePortfolio
	if err := t.signer.doAuth(ctx, t.signer.limiter, http.MethodGet, "/v1/portfolio/positions", nil, &pf); err != nil {
		return nil, fmt.Errorf("venue.Positions: %w", err)
	}

	out := make([]domain.PortfolioPosition, 0, len(pf.Positions))
	for _, wp := range pf.Positions {
		if wp.Quantity.Value <= 0 {
			continue
		}
		side := domain.SideLong
		if wp.Side == string(domain.SideShort) {
			side = domain.SideShort
		}
		out = append(out, domain.PortfolioPosition{
			MarketID: wp.MarketID,
			Side:     side,
			Quantity: wp.Quantity.Value,
			AvgPrice: wp.AveragePrice.Value,
		})
	}
	return out, nil
}

// Balance returns free cash.
func (t *Trading) Balance(ctx context.Context) (float64, error) {
	var b wireBalances
	if err := t.signer.doAuth(ctx, t.signer.limiter, http.MethodGet, "/v1/portfolio/balances", nil, &b); err != nil {
		return 0, fmt.Errorf("venue.Balance: %w", err)
	}
	return b.Cash.Value, nil
}

func toOrderResult(wo wireOrder) domain.OrderResult {
	res := domain.OrderResult{
		OrderID:   wo.ID,
		State:     domain.OrderState(wo.State),
		FilledQty: wo.FilledQuantity.Value,
		AvgPrice:  wo.AveragePrice.Value,
	}
	for _, ex := range wo.Executions {
		res.Executions = append(res.Executions, domain.Execution{
			Price:    ex.Price.Value,
			Quantity: ex.Quantity.Value,
			At:       parseWireTime(ex.Timestamp),
		})
	}
	return res
}
