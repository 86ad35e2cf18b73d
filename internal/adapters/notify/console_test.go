package notify_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/clobhunter/internal/adapters/notify"
	"github.com/alejandrodnm/clobhunter/internal/domain"
)

func TestConsole_PositionsTable(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	positions := []*domain.Position{
		{
			ID: "pos-1", MarketID: "aec-nba-lal-bos-2026-02-14",
			Side: domain.SideShort, Strategy: domain.StrategyContrarian,
			EntryPrice: 0.42, Quantity: 10,
			OpenedAt: time.Now().Add(-5 * time.Minute),
			State:    domain.PositionOpen,
		},
		{
			ID: "pos-2", MarketID: "atc-nfl-kc-buf-2026-02-14",
			Side: domain.SideLong, Strategy: domain.StrategyMomentum,
			EntryPrice: 0.55, Quantity: 20,
			OpenedAt: time.Now().Add(-90 * time.Second),
			State:    domain.PositionOpen,
		},
	}
	mids := map[string]float64{
		"aec-nba-lal-bos-2026-02-14": 0.36,
		// second market has no fresh mid
	}

	n.PositionsTable(positions, mids)

	out := buf.String()
	assert.Contains(t, out, "2 open position(s)")
	assert.Contains(t, out, "SHORT")
	assert.Contains(t, out, "contrarian")
	assert.Contains(t, out, "0.360")
	// short 0.42 -> 0.36 is (0.42-0.36)/(1-0.42) = +10.34%
	assert.Contains(t, out, "+10.34%")
	// missing mid renders as a dash, not a bogus number
	assert.Contains(t, out, "-")
}

func TestConsole_PositionsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PositionsTable(nil, nil)
	assert.Contains(t, buf.String(), "no open positions")
}

func TestConsole_SignalSummary(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.SignalSummary(3, 17, map[string]int{
		"weak_signal": 9,
		"spread_wide": 5,
		"cooldown":    2,
		"volume_low":  1,
	})

	out := buf.String()
	assert.Contains(t, out, "3 accepted, 17 rejected")
	assert.Contains(t, out, "weak_signal:9")
	assert.Contains(t, out, "spread_wide:5")
	assert.Contains(t, out, "cooldown:2")
	// only the top three reasons make the line
	assert.NotContains(t, out, "volume_low")
}

func TestConsole_PrintTrade(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	opened := time.Now().Add(-8 * time.Minute)
	n.PrintTrade(domain.Trade{
		PositionID: "pos-1", MarketID: "aec-nba-lal-bos-2026-02-14",
		Side: domain.SideShort, Strategy: domain.StrategyContrarian,
		EntryPrice: 0.42, ExitPrice: 0.33, Quantity: 10,
		RealizedPnL: 0.90, ExitReason: domain.ExitTakeProfit,
		OpenedAt: opened, ClosedAt: opened.Add(8 * time.Minute),
	})

	out := buf.String()
	assert.Contains(t, out, "closed SHORT contrarian")
	assert.Contains(t, out, "0.420→0.330")
	assert.Contains(t, out, "+0.9000")
	assert.Contains(t, out, "take_profit")
}
