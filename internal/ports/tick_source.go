package ports

import (
	"context"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// TickSource delivers the normalized market-data stream. The transport
// adapter owns connection and reconnection; the monitor only ever sees
// canonical ticks.
type TickSource interface {
	// Run connects and pushes ticks into out until ctx is canceled.
	// The channel is closed on return.
	Run(ctx context.Context, out chan<- domain.Tick) error

	// Subscribe adds markets to the stream subscription. Safe to call
	// while Run is active; survives reconnects.
	Subscribe(marketIDs []string)
}
