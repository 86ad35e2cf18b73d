package ports

import (
	"context"

	"github.com/alejandrodnm/clobhunter/internal/domain"
)

// SignalStore is the append-only, offset-addressable signal log: the
// sole coupling channel between the detection and execution halves.
// Offsets increase monotonically; consumption is at-least-once, so the
// consumer must be idempotent against replay.
type SignalStore interface {
	// Append durably writes one signal and returns its offset.
	Append(ctx context.Context, sig domain.Signal) (int64, error)

	// TailFrom reads up to limit signals with offsets strictly greater
	// than after, in offset order.
	TailFrom(ctx context.Context, after int64, limit int) ([]domain.Signal, error)

	// CommitOffset durably records the consumer's progress.
	CommitOffset(ctx context.Context, consumer string, offset int64) error

	// LastOffset returns the consumer's committed offset, 0 when the
	// consumer has never committed.
	LastOffset(ctx context.Context, consumer string) (int64, error)
}
