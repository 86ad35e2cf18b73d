package venue

// stream.go — websocket market-data source. Implements ports.TickSource.
//
// The adapter owns connection lifecycle entirely: dial, subscribe,
// ping, reconnect with exponential backoff. Consumers only ever see
// canonical ticks on the output channel.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/clobhunter/internal/domain"
	"github.com/alejandrodnm/clobhunter/internal/metrics"
)

const (
	streamPingInterval   = 20 * time.Second
	streamReadDeadline   = 60 * time.Second
	streamMaxBackoff     = 30 * time.Second
	streamSubscribeBatch = 200
)

type subscribeMsg struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets"`
}

// Stream is the websocket tick source.
type Stream struct {
	url    string
	logger *slog.Logger

	mu       sync.Mutex
	markets  map[string]bool
	conn     *websocket.Conn
	wildcard bool
}

// NewStream builds a tick source for the given websocket endpoint.
// With wildcard enabled it subscribes to the firehose and lets the
// monitor filter; otherwise it subscribes per market in batches.
func NewStream(url string, wildcard bool, logger *slog.Logger) *Stream {
	return &Stream{
		url:      url,
		logger:   logger,
		markets:  make(map[string]bool),
		wildcard: wildcard,
	}
}

// Subscribe adds markets to the subscription set. Applied immediately
// on a live connection and replayed after every reconnect.
func (s *Stream) Subscribe(marketIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, id := range marketIDs {
		if !s.markets[id] {
			s.markets[id] = true
			added = append(added, id)
		}
	}
	if s.wildcard || s.conn == nil || len(added) == 0 {
		return
	}
	if err := s.sendSubscribeLocked(added); err != nil {
		s.logger.Warn("stream subscribe failed, will retry on reconnect", "error", err)
	}
}

// Run connects and pumps ticks into out until ctx is canceled. Closes
// out on return. Reconnects forever with exponential backoff.
func (s *Stream) Run(ctx context.Context, out chan<- domain.Tick) error {
	defer close(out)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.runOnce(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.StreamReconnects.Inc()
		s.logger.Warn("stream disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > streamMaxBackoff {
			backoff = streamMaxBackoff
		}
	}
}

func (s *Stream) runOnce(ctx context.Context, out chan<- domain.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	err = s.resubscribeLocked()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Info("stream connected", "url", s.url)

	// Pinger and context watcher; closing the conn unblocks ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				s.mu.Lock()
				werr := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.mu.Unlock()
				if werr != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(streamReadDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			return fmt.Errorf("read: %w", err)
		}

		for _, tick := range NormalizeStreamMessage(raw, time.Now().UTC()) {
			select {
			case out <- tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// resubscribeLocked replays the full subscription set on a fresh
// connection. Wildcard first; per-market batches otherwise.
func (s *Stream) resubscribeLocked() error {
	if s.wildcard {
		return s.conn.WriteJSON(subscribeMsg{Action: "subscribe", Markets: []string{"*"}})
	}
	ids := make([]string, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	return s.sendSubscribeLocked(ids)
}

func (s *Stream) sendSubscribeLocked(ids []string) error {
	for start := 0; start < len(ids); start += streamSubscribeBatch {
		end := start + streamSubscribeBatch
		if end > len(ids) {
			end = len(ids)
		}
		msg, err := json.Marshal(subscribeMsg{Action: "subscribe", Markets: ids[start:end]})
		if err != nil {
			return err
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return err
		}
	}
	return nil
}
