package venue

// mapping.go — normalization of venue payloads into domain types.
//
// The stream mixes message generations: snake_case and camelCase keys,
// flat ticks, {data: ...} wrappers, batched {markets: [...]} frames,
// full bids/asks arrays, and degenerate frames carrying only a lone
// price. Everything is collapsed into canonical domain.Ticks here; the
// engines never see a raw field name.

import (
	"encoding/json"
	"time"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

func toDomainMarket(wm wireMarket) domain.Market {
	return domain.Market{
		ID:        wm.ID,
		Slug:      wm.Slug,
		Title:     wm.Title,
		StartTime: parseWireTime(wm.GameStartTime),
		EndTime:   parseWireTime(wm.EndDate),
		Open:      isOpen(wm.State),
		Liquidity: domain.Liquidity{
			Volume24h:    wm.Volume24h.Value,
			SharesTraded: wm.SharesTraded.Value,
			OpenInterest: wm.OpenInterest.Value,
		},
		SeenAt: time.Now(),
	}
}

func toScoreInfo(wm wireMarket) domain.ScoreInfo {
	info := domain.ScoreInfo{ScoreDiff: -1, FetchedAt: time.Now()}
	if wm.Live != nil {
		info.Live = *wm.Live
	}
	if wm.Ended != nil {
		info.Ended = *wm.Ended
	}
	sport, _, _ := domain.ParseSlug(wm.Slug)
	info.Period = domain.ParsePeriod(wm.Period, sport)
	if wm.Score != "" {
		info.ScoreDiff = domain.ParseScoreDiff(wm.Score)
	}
	return info
}

// NormalizeStreamMessage parses one raw stream frame into zero or more
// canonical ticks. Unrecognized frames (heartbeats, acks) return nil.
func NormalizeStreamMessage(raw []byte, at time.Time) []domain.Tick {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil
	}
	return normalizeNode(root, at)
}

func normalizeNode(node any, at time.Time) []domain.Tick {
	switch v := node.(type) {
	case []any:
		var out []domain.Tick
		for _, item := range v {
			out = append(out, normalizeNode(item, at)...)
		}
		return out
	case map[string]any:
		// Batched and wrapped frames recurse into their payload.
		for _, wrapper := range []string{"data", "markets", "updates"} {
			if inner, ok := v[wrapper]; ok {
				return normalizeNode(inner, at)
			}
		}
		if tick, ok := tickFromEntry(v, at); ok {
			return []domain.Tick{tick}
		}
	}
	return nil
}

// tickFromEntry extracts one tick from a single market entry.
func tickFromEntry(m map[string]any, at time.Time) (domain.Tick, bool) {
	id := strField(m, "market_id", "marketId", "id", "slug")
	if id == "" {
		return domain.Tick{}, false
	}

	bid, hasBid := numField(m, "best_bid", "bestBid", "bid")
	ask, hasAsk := numField(m, "best_ask", "bestAsk", "ask")
	if !hasBid {
		bid, hasBid = topOfBook(m, "bids", true)
	}
	if !hasAsk {
		ask, hasAsk = topOfBook(m, "asks", false)
	}

	// Degenerate frames carry a lone trade price; treat it as a
	// zero-spread book so the statistics stay fed.
	if !hasBid || !hasAsk {
		if px, ok := numField(m, "price", "last_price", "lastPrice"); ok && px > 0 {
			bid, ask = px, px
		} else {
			return domain.Tick{}, false
		}
	}
	if bid <= 0 || ask <= 0 || ask < bid {
		return domain.Tick{}, false
	}

	tick := domain.Tick{
		MarketID:   id,
		Bid:        bid,
		Ask:        ask,
		Mid:        (bid + ask) / 2,
		ObservedAt: at,
	}
	if v, ok := numField(m, "volume_24h", "volume24h", "volume"); ok {
		tick.Liquidity.Volume24h = v
	}
	if v, ok := numField(m, "shares_traded", "sharesTraded"); ok {
		tick.Liquidity.SharesTraded = v
	}
	if v, ok := numField(m, "open_interest", "openInterest"); ok {
		tick.Liquidity.OpenInterest = v
	}
	return tick, true
}

// topOfBook pulls the best level out of a bids/asks array. Levels may
// be [price, size] pairs or {price: ...} objects; bids take the
// maximum price, asks the minimum.
func topOfBook(m map[string]any, key string, wantMax bool) (float64, bool) {
	arr, ok := m[key].([]any)
	if !ok || len(arr) == 0 {
		return 0, false
	}
	best := 0.0
	found := false
	for _, level := range arr {
		var px float64
		var ok bool
		switch lv := level.(type) {
		case []any:
			if len(lv) > 0 {
				px, ok = anyToNum(lv[0])
			}
		case map[string]any:
			px, ok = numField(lv, "price", "px")
		}
		if !ok || px <= 0 {
			continue
		}
		if !found || (wantMax && px > best) || (!wantMax && px < best) {
			best = px
			found = true
		}
	}
	return best, found
}

func strField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func numField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := anyToNum(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func anyToNum(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := parseMoney(n)
		if err != nil {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
