package domain

import "time"

// Tick is one normalized market-data observation. The stream adapter
// collapses every upstream message variant into this shape before it
// reaches the engines; nothing downstream ever sees raw payload fields.
// Ticks are ephemeral: consumed immediately, never persisted.
type Tick struct {
	MarketID   string
	Bid        float64
	Ask        float64
	Mid        float64
	ObservedAt time.Time
	Liquidity  Liquidity
}

// SpreadPct returns (ask-bid)/mid, or 0 when the mid is unusable.
func (t Tick) SpreadPct() float64 {
	if t.Mid <= 0 || t.Ask < t.Bid {
		return 0
	}
	return (t.Ask - t.Bid) / t.Mid
}

// Quote is a point-in-time best bid/ask snapshot used by pricing and
// exit evaluation.
type Quote struct {
	Bid       float64
	Ask       float64
	Mid       float64
	FetchedAt time.Time
}

// Valid reports whether the quote carries a usable two-sided book.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask >= q.Bid
}

// Liquidity holds the activity metrics a market reports. Upstream
// refreshes are partial: a payload that carries volume may omit open
// interest that a previous payload carried. Fields are therefore merged
// per field, never replaced wholesale.
type Liquidity struct {
	Volume24h    float64
	SharesTraded float64
	OpenInterest float64
}

// Merge folds a fresh observation into the accumulated record. A field
// updates only when the incoming value is present (non-zero); absent
// fields keep the last observed value.
func (l Liquidity) Merge(in Liquidity) Liquidity {
	if in.Volume24h > 0 {
		l.Volume24h = in.Volume24h
	}
	if in.SharesTraded > 0 {
		l.SharesTraded = in.SharesTraded
	}
	if in.OpenInterest > 0 {
		l.OpenInterest = in.OpenInterest
	}
	return l
}

// Proxy returns the single activity number the gates compare against a
// floor. Precedence: 24h volume, then lifetime shares (only once enough
// have traded to mean anything), then open interest.
func (l Liquidity) Proxy(sharesActiveMin float64) float64 {
	if l.Volume24h > 0 {
		return l.Volume24h
	}
	if l.SharesTraded >= sharesActiveMin {
		return l.SharesTraded
	}
	return l.OpenInterest
}

// Market is the slow-moving metadata the refreshers maintain for each
// discovered market.
type Market struct {
	ID        string
	Slug      string
	Title     string
	StartTime time.Time
	EndTime   time.Time
	Liquidity Liquidity
	Open      bool
	SeenAt    time.Time
}
