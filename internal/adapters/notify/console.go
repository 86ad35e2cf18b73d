package notify

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// Console implements ports.Notifier on a plain writer.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PositionsTable renders the open positions with unrealized P&L
// against the latest known mid.
func (c *Console) PositionsTable(positions []*domain.Position, mids map[string]float64) {
	now := time.Now().Format("15:04:05")
	if len(positions) == 0 {
		fmt.Fprintf(c.out, "[%s] no open positions\n", now)
		return
	}

	fmt.Fprintf(c.out, "\n[%s] %d open position(s)\n", now, len(positions))

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Side", "Strategy", "Entry", "Mid", "Unreal%", "Qty", "Age")

	for _, p := range positions {
		mid, ok := mids[p.MarketID]
		midLabel, unrealLabel := "-", "-"
		if ok && mid > 0 {
			midLabel = fmt.Sprintf("%.3f", mid)
			unrealLabel = fmt.Sprintf("%+.2f%%", p.UnrealizedPct(mid)*100)
		}

		table.Append(
			truncate(p.MarketID, 28),
			string(p.Side),
			string(p.Strategy),
			fmt.Sprintf("%.3f", p.EntryPrice),
			midLabel,
			unrealLabel,
			fmt.Sprintf("%.1f", p.Quantity),
			ageLabel(time.Since(p.OpenedAt)),
		)
	}

	table.Render()
}

// SignalSummary renders a one-line accept/reject digest with the most
// common rejection reasons.
func (c *Console) SignalSummary(accepted, rejected int, topReasons map[string]int) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] signals: %d accepted, %d rejected", now, accepted, rejected)

	for i, r := range sortedReasons(topReasons) {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, " | %s:%d", r.reason, r.count)
	}

	fmt.Fprintln(c.out, sb.String())
}

// PrintTrade prints one completed round trip.
func (c *Console) PrintTrade(tr domain.Trade) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] closed %s %s %s %.3f→%.3f qty %.1f pnl $%+.4f (%s, held %s)\n",
		now, string(tr.Side), string(tr.Strategy), truncate(tr.MarketID, 28),
		tr.EntryPrice, tr.ExitPrice, tr.Quantity, tr.RealizedPnL,
		tr.ExitReason, ageLabel(tr.ClosedAt.Sub(tr.OpenedAt)))
}

// --- helpers ---

type reasonCount struct {
	reason string
	count  int
}

func sortedReasons(m map[string]int) []reasonCount {
	out := make([]reasonCount, 0, len(m))
	for r, n := range m {
		out = append(out, reasonCount{r, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].reason < out[j].reason
	})
	return out
}

func ageLabel(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
