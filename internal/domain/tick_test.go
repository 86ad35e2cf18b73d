package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiquidityMergeRetainsAbsentFields(t *testing.T) {
	acc := Liquidity{Volume24h: 1200, SharesTraded: 500, OpenInterest: 300}

	// A refresh that omits open interest must not zero it.
	merged := acc.Merge(Liquidity{Volume24h: 1500, SharesTraded: 520})
	assert.Equal(t, 1500.0, merged.Volume24h)
	assert.Equal(t, 520.0, merged.SharesTraded)
	assert.Equal(t, 300.0, merged.OpenInterest)

	// A fully empty refresh keeps everything.
	assert.Equal(t, merged, merged.Merge(Liquidity{}))
}

func TestLiquidityProxyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		l    Liquidity
		want float64
	}{
		{"volume wins", Liquidity{Volume24h: 100, SharesTraded: 900, OpenInterest: 50}, 100},
		{"shares when no volume and active", Liquidity{SharesTraded: 80, OpenInterest: 500}, 80},
		{"open interest when shares inactive", Liquidity{SharesTraded: 10, OpenInterest: 500}, 500},
		{"empty is zero", Liquidity{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.l.Proxy(50))
		})
	}
}

func TestTickSpreadPct(t *testing.T) {
	tick := Tick{Bid: 0.40, Ask: 0.44, Mid: 0.42}
	assert.InDelta(t, 0.0952, tick.SpreadPct(), 0.001)

	assert.Zero(t, Tick{Bid: 0.40, Ask: 0.44}.SpreadPct(), "no mid")
	assert.Zero(t, Tick{Bid: 0.50, Ask: 0.40, Mid: 0.45}.SpreadPct(), "crossed book")
}
