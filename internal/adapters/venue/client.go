package venue

// client.go — base REST client for the venue API.
//
// All calls go through two token buckets: a general limiter sized
// against the venue's documented ceiling and a tighter one for order
// submission. Transient failures retry with exponential backoff and
// jitter; client errors never retry.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxRetries  = 3
	baseBackoff = 500 * time.Millisecond
	httpTimeout = 15 * time.Second
)

// ClientOpts size the rate limiters, injected from config.
type ClientOpts struct {
	BaseURL           string
	GeneralRatePerSec float64
	GeneralBurst      int
	OrderRatePerSec   float64
	OrderBurst        int
}

// Client is the unauthenticated REST layer. Authenticated calls are
// layered on top by Signer.
type Client struct {
	baseURL      string
	http         *http.Client
	limiter      *rate.Limiter
	orderLimiter *rate.Limiter
}

func NewClient(opts ClientOpts) *Client {
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		http:         &http.Client{Timeout: httpTimeout},
		limiter:      rate.NewLimiter(rate.Limit(opts.GeneralRatePerSec), opts.GeneralBurst),
		orderLimiter: rate.NewLimiter(rate.Limit(opts.OrderRatePerSec), opts.OrderBurst),
	}
}

// get performs a rate-limited GET with retries, decoding JSON into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, c.limiter, http.MethodGet, path, nil, nil, out)
}

// do executes one HTTP call with retry on 429/5xx/transport errors.
// headers are regenerated per attempt via the callback when non-nil so
// signed timestamps stay fresh.
func (c *Client) do(ctx context.Context, lim *rate.Limiter, method, path string, body []byte, headers func() (map[string]string, error), out any) error {
	fullURL := c.baseURL + path

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		var reader io.Reader
		if len(body) > 0 {
			reader = strings.NewReader(string(body))
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		if headers != nil {
			hs, err := headers()
			if err != nil {
				return err
			}
			for k, v := range hs {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			if attempt == maxRetries {
				return fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			return fmt.Errorf("client error %d: %s", resp.StatusCode, respBody)
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits out the backoff for the given attempt, with jitter, or
// returns early on context cancellation.
func (c *Client) sleep(ctx context.Context, attempt int) {
	backoff := baseBackoff * time.Duration(1<<attempt)
	backoff += time.Duration(rand.Int63n(int64(backoff) / 2))
	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
}
