// Package ratelimit throttles outgoing Sherpa requests to a fixed rate so a
// long backlog drain does not hammer the service.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request throttling.
var (
	throttledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sherpa_rate_limit_throttles_total",
		Help: "Total number of requests delayed by the rate limiter",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sherpa_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for the rate limiter",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

// Limiter gates requests at a steady rate with a burst of one.
// A nil *Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New creates a limiter allowing requestsPerSecond requests per second.
// Zero or negative rates disable throttling.
func New(requestsPerSecond float64, logger zerolog.Logger) *Limiter {
	if requestsPerSecond <= 0 {
		return &Limiter{logger: logger}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return ctx.Err()
	}

	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	waited := time.Since(start)
	if waited > time.Millisecond {
		throttledTotal.Inc()
		waitSeconds.Observe(waited.Seconds())
		l.logger.Debug().Dur("waited", waited).Msg("Request throttled")
	}
	return nil
}

// Limit returns the configured rate; zero means unlimited.
func (l *Limiter) Limit() float64 {
	if l == nil || l.limiter == nil {
		return 0
	}
	return float64(l.limiter.Limit())
}
