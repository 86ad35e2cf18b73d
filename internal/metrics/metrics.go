// Package metrics exposes Prometheus instrumentation for the monitor
// and trader loops, served at /metrics when a listen address is set.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hunter_ticks_processed_total",
			Help: "Price ticks consumed from the stream",
		},
	)

	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hunter_stream_reconnects_total",
			Help: "Websocket reconnect attempts",
		},
	)

	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_signals_total",
			Help: "Signals appended to the log, by decision and reason",
		},
		[]string{"decision", "reason"},
	)

	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_orders_total",
			Help: "Orders submitted, by side and strategy",
		},
		[]string{"side", "strategy"},
	)

	FillOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_fill_outcomes_total",
			Help: "Fill confirmation outcomes (filled|unfilled|indeterminate), by layer",
		},
		[]string{"outcome", "layer"},
	)

	ExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_exit_reasons_total",
			Help: "Closed positions split by exit reason",
		},
		[]string{"reason", "strategy"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hunter_open_positions",
			Help: "Currently open positions",
		},
	)

	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hunter_realized_pnl_usd",
			Help: "Cumulative realized P&L for the current day",
		},
	)

	TrackedMarkets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hunter_tracked_markets",
			Help: "Markets with live tick history",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksProcessed, StreamReconnects, SignalsEmitted,
		OrdersPlaced, FillOutcomes, ExitReasons,
		OpenPositions, RealizedPnL, TrackedMarkets,
	)
}

// Serve exposes /metrics on addr until ctx is cancelled. A blank addr
// disables the listener.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
}
