// Package retry wraps a single remote call with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_retries_total",
		Help: "Total number of retry attempts by operation",
	}, []string{"operation"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sherpa_retry_backoff_seconds",
		Help:    "Backoff duration for retries by operation",
		Buckets: []float64{0.5, 1, 2, 4, 8, 10, 30},
	}, []string{"operation"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by operation",
	}, []string{"operation"})
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the initial call).
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the wait after every failed attempt.
	BackoffMultiplier float64

	// Jitter randomizes each wait by ±20%, never exceeding MaxBackoff.
	Jitter bool
}

// DefaultConfig returns the default retry configuration:
// 3 attempts, 4s initial wait, 10s cap, doubling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    4 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Policy executes operations with exponential backoff.
type Policy struct {
	config Config
	logger zerolog.Logger
}

// New creates a retry policy. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}

	return &Policy{
		config: cfg,
		logger: log.With().Str("component", "retry").Logger(),
	}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.config
}

// Backoff returns the un-jittered wait after the given failed attempt (1-based).
func (p *Policy) Backoff(attempt int) time.Duration {
	backoff := float64(p.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.config.BackoffMultiplier
		if backoff >= float64(p.config.MaxBackoff) {
			return p.config.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

func (p *Policy) jitter(d time.Duration) time.Duration {
	if !p.config.Jitter {
		return d
	}
	j := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if j > p.config.MaxBackoff {
		return p.config.MaxBackoff
	}
	return j
}

// Execute runs fn until it succeeds, returns a permanent error, or the
// attempt budget is exhausted. The operation label is used for logs and metrics.
func (p *Policy) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				p.logger.Info().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("Call succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if IsPermanent(err) {
			p.logger.Debug().
				Err(err).
				Str("operation", operation).
				Msg("Permanent error, not retrying")
			return err
		}

		if attempt >= p.config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(operation).Inc()

		wait := p.jitter(p.Backoff(attempt))
		retryBackoffSeconds.WithLabelValues(operation).Observe(wait.Seconds())

		p.logger.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Call failed, retrying after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(operation).Inc()
	p.logger.Error().
		Err(lastErr).
		Str("operation", operation).
		Int("max_attempts", p.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return &ExhaustedError{Attempts: p.config.MaxAttempts, Err: lastErr}
}
