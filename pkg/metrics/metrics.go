// Package metrics exposes the tap's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, pagination,
// retry, state, ratelimit) and registered via promauto.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Gatherer is the source exposed on /metrics. promauto registers every
// sherpa_* metric with the default registry, which is also the default
// gatherer.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// Handler returns a mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info().Msg("Metrics server stopped")
		return nil
	}
}

// Metrics Documentation
//
// Pagination Metrics (pkg/pagination):
//   - sherpa_pages_total{stream} (Counter): Pages fetched
//   - sherpa_items_total{stream} (Counter): Raw items received
//   - sherpa_records_emitted_total{stream} (Counter): Records written to the sink
//   - sherpa_stale_tokens_total{stream} (Counter): Items whose token did not exceed the request cursor
//   - sherpa_run_stops_total{stream, reason} (Counter): Runs ended by empty_page or no_progress
//   - sherpa_cursor{stream} (Gauge): Current in-run cursor
//   - sherpa_page_duration_seconds{stream} (Histogram): Time to map and emit a page
//
// State Metrics (pkg/state):
//   - sherpa_state_flushes_total{result} (Counter): Flushes by result (ok, error)
//   - sherpa_state_flush_duration_seconds (Histogram): Flush latency
//   - sherpa_state_persisted_cursor{stream} (Gauge): Last durable cursor
//
// Request Metrics (pkg/client):
//   - sherpa_requests_total{service, status} (Counter): Requests by service and HTTP status
//   - sherpa_request_duration_seconds{service} (Histogram): Request duration by service
//   - sherpa_errors_total{class} (Counter): Errors by class (client, rate_limit, server, fault, network, decode)
//
// Retry Metrics (pkg/retry):
//   - sherpa_retries_total{operation} (Counter): Retry attempts by stream
//   - sherpa_retry_backoff_seconds{operation} (Histogram): Backoff duration by stream
//   - sherpa_retry_exhausted_total{operation} (Counter): Pages that exhausted max attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - sherpa_rate_limit_throttles_total (Counter): Requests delayed by the limiter
//   - sherpa_rate_limit_wait_seconds (Histogram): Time spent waiting
//
// Example Prometheus Queries:
//
//   # Records per second by stream
//   sum by (stream) (rate(sherpa_records_emitted_total[5m]))
//
//   # Lag between in-run and persisted cursor
//   sherpa_cursor - sherpa_state_persisted_cursor
//
//   # Request Error Rate
//   rate(sherpa_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(sherpa_request_duration_seconds_bucket[5m]))
