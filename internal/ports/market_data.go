package ports

import (
	"context"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// MarketDataProvider is the venue's read-only REST surface: discovery,
// per-market detail (the live-score source), and book snapshots.
type MarketDataProvider interface {
	// ListMarkets returns every currently listed open market, paging
	// internally as needed.
	ListMarkets(ctx context.Context) ([]domain.Market, error)

	// MarketDetails fetches one market's metadata and, for contest
	// markets, its live-score state.
	MarketDetails(ctx context.Context, marketID string) (domain.Market, domain.ScoreInfo, error)

	// BestQuote returns the current best bid/ask for a market.
	BestQuote(ctx context.Context, marketID string) (domain.Quote, error)
}
