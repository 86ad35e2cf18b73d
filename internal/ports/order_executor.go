package ports

import (
	"context"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// OrderExecutor is the venue's trading surface. Implemented by the
// live adapter and by the paper broker; the trader never knows which.
type OrderExecutor interface {
	// SubmitOrder places an immediate-or-cancel order. The result may
	// carry embedded executions; it may also arrive with an ambiguous
	// state that the fill confirmer resolves afterwards.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)

	// OrderStatus polls one order by venue identifier.
	OrderStatus(ctx context.Context, orderID string) (domain.OrderResult, error)

	// CancelOrder cancels one order. Canceling an already-filled order
	// returns an error the caller treats as evidence, not failure.
	CancelOrder(ctx context.Context, orderID string) error

	// Positions returns the venue's view of current holdings.
	Positions(ctx context.Context) ([]domain.PortfolioPosition, error)

	// Balance returns free cash available for new entries.
	Balance(ctx context.Context) (float64, error)
}
