package ports

import "github.com/alejandrodnm/clobhunter/internal/domain"

// Notifier renders operator-facing status output.
type Notifier interface {
	// PositionsTable renders the current open positions with their
	// unrealized gain against the latest known mid.
	PositionsTable(positions []*domain.Position, mids map[string]float64)

	// SignalSummary renders a periodic accept/reject digest.
	SignalSummary(accepted, rejected int, topReasons map[string]int)

	// PrintTrade renders one completed round trip.
	PrintTrade(tr domain.Trade)
}
