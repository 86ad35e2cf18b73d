package ports

import (
	"context"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// TradeRecorder persists completed round trips. Write-only from the
// engines; read by external reporting.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, tr domain.Trade) error
}
