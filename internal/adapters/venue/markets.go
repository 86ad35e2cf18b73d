package venue

// markets.go — discovery, market detail and quote lookups.
// Implements ports.MarketDataProvider over the base client.

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

const listPageSize = 100

// MarketData serves the read-only REST surface.
type MarketData struct {
	client     *Client
	maxMarkets int
}

func NewMarketData(c *Client, maxMarkets int) *MarketData {
	return &MarketData{client: c, maxMarkets: maxMarkets}
}

// ListMarkets pages through the listing endpoint and returns every open
// market, up to the configured cap.
func (m *MarketData) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	var out []domain.Market
	cursor := ""

	for {
		path := fmt.Sprintf("/v1/markets?state=open&limit=%d", listPageSize)
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}

		var page wireMarketList
		if err := m.client.get(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("venue.ListMarkets: %w", err)
		}

		for _, wm := range page.Markets {
			if !isOpen(wm.State) {
				continue
			}
			out = append(out, toDomainMarket(wm))
			if m.maxMarkets > 0 && len(out) >= m.maxMarkets {
				return out, nil
			}
		}

		if page.NextCursor == "" || len(page.Markets) == 0 {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// MarketDetails fetches one market with its live-score state.
func (m *MarketData) MarketDetails(ctx context.Context, marketID string) (domain.Market, domain.ScoreInfo, error) {
	var detail wireMarketDetail
	path := "/v1/markets/" + url.PathEscape(marketID)
	if err := m.client.get(ctx, path, &detail); err != nil {
		return domain.Market{}, domain.ScoreInfo{}, fmt.Errorf("venue.MarketDetails %s: %w", marketID, err)
	}

	wm := detail.Market
	if wm.ID == "" {
		wm.ID = marketID
	}
	return toDomainMarket(wm), toScoreInfo(wm), nil
}

// BestQuote returns the current best bid/ask snapshot.
func (m *MarketData) BestQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	var wq wireQuote
	path := "/v1/markets/" + url.PathEscape(marketID) + "/bbo"
	if err := m.client.get(ctx, path, &wq); err != nil {
		return domain.Quote{}, fmt.Errorf("venue.BestQuote %s: %w", marketID, err)
	}
	q := domain.Quote{Bid: wq.Bid.Value, Ask: wq.Ask.Value, FetchedAt: time.Now()}
	if q.Bid > 0 && q.Ask > 0 {
		q.Mid = (q.Bid + q.Ask) / 2
	}
	return q, nil
}

func isOpen(state string) bool {
	switch strings.ToLower(state) {
	case "", "open", "active", "trading":
		return true
	}
	return false
}
