package venue

// types.go — wire types for the venue REST API.
//
// The venue is loose about shapes: monetary fields arrive as bare
// numbers, formatted strings, or {value, currency} envelopes; order
// responses are sometimes wrapped in an {order: ...} envelope. All of
// that tolerance lives here and nowhere else.

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Amount decodes the venue's polymorphic monetary fields: 12.5,
// "12.50", "$1,234.56", {"value": "12.50", "currency": "USD"}, null.
type Amount struct {
	Value float64
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		a.Value = 0
		return nil
	}
	if strings.HasPrefix(s, "{") {
		var env struct {
			Value    json.RawMessage `json:"value"`
			Currency string          `json:"currency"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			return fmt.Errorf("amount envelope: %w", err)
		}
		if len(env.Value) == 0 {
			a.Value = 0
			return nil
		}
		return a.UnmarshalJSON(env.Value)
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return fmt.Errorf("amount string: %w", err)
		}
		v, err := parseMoney(str)
		if err != nil {
			return err
		}
		a.Value = v
		return nil
	}
	return json.Unmarshal(b, &a.Value)
}

// parseMoney strips currency symbols and thousands separators.
func parseMoney(s string) (float64, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if clean == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

// wireMarket is one market as the listing and detail endpoints return it.
type wireMarket struct {
	ID            string `json:"id"`
	Slug          string `json:"slug"`
	Title         string `json:"title"`
	State         string `json:"state"`
	GameStartTime string `json:"gameStartTime"`
	EndDate       string `json:"endDate"`
	Volume24h     Amount `json:"volume24h"`
	SharesTraded  Amount `json:"sharesTraded"`
	OpenInterest  Amount `json:"openInterest"`

	// Live-score fields, present on contest markets only.
	Live   *bool  `json:"live"`
	Ended  *bool  `json:"ended"`
	Period string `json:"period"`
	Score  string `json:"score"`
}

type wireMarketList struct {
	Markets    []wireMarket `json:"markets"`
	NextCursor string       `json:"nextCursor"`
}

type wireMarketDetail struct {
	Market wireMarket `json:"market"`
}

// wireQuote is the best bid/offer snapshot.
type wireQuote struct {
	MarketID string `json:"marketId"`
	Bid      Amount `json:"bestBid"`
	Ask      Amount `json:"bestAsk"`
}

// wireExecution is one fill inside an order response.
type wireExecution struct {
	Price     Amount `json:"price"`
	Quantity  Amount `json:"quantity"`
	Timestamp string `json:"timestamp"`
}

// wireOrder is the order record, sometimes delivered flat and
// sometimes inside an {order: ...} envelope.
type wireOrder struct {
	ID             string          `json:"id"`
	State          string          `json:"state"`
	FilledQuantity Amount          `json:"filledQuantity"`
	AveragePrice   Amount          `json:"averagePrice"`
	Executions     []wireExecution `json:"executions"`
}

// orderEnvelope unwraps both response shapes.
type orderEnvelope struct {
	Order *wireOrder `json:"order"`
	wireOrder
}

func (e orderEnvelope) unwrap() wireOrder {
	if e.Order != nil {
		return *e.Order
	}
	return e.wireOrder
}

// wirePosition is one holding from the portfolio endpoint.
type wirePosition struct {
	MarketID     string `json:"marketId"`
	Side         string `json:"side"`
	Quantity     Amount `json:"quantity"`
	AveragePrice Amount `json:"averagePrice"`
}

type wirePortfolio struct {
	Positions []wirePosition `json:"positions"`
}

type wireBalances struct {
	Cash Amount `json:"cash"`
}

// orderRequest is the body POSTed to the orders endpoint. The order
// type is always immediate-or-cancel; this engine never rests on the
// book.
type orderRequest struct {
	ClientOrderID string  `json:"clientOrderId"`
	MarketID      string  `json:"marketId"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	ReduceOnly    bool    `json:"reduceOnly"`
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
