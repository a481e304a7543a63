package pagination

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/sherpa-tap/pkg/retry"
)

// Prometheus metrics for pagination runs.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_pages_total",
		Help: "Total change-feed pages fetched by stream",
	}, []string{"stream"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_items_total",
		Help: "Total raw items received by stream",
	}, []string{"stream"})

	recordsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_records_emitted_total",
		Help: "Total records emitted by stream",
	}, []string{"stream"})

	staleTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_stale_tokens_total",
		Help: "Items whose token did not exceed the requested cursor, by stream",
	}, []string{"stream"})

	stopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_run_stops_total",
		Help: "Completed runs by stream and stop reason",
	}, []string{"stream", "reason"})

	cursorGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sherpa_cursor",
		Help: "Current cursor by stream",
	}, []string{"stream"})

	pageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sherpa_page_duration_seconds",
		Help:    "Time to map and emit one page, by stream",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stream"})
)

// Job defaults.
const (
	DefaultCursorParam    = "token"
	DefaultTokenField     = "Token"
	DefaultReplicationKey = "token"
	ResponseTimeKey       = "response_time"
)

// ErrInvalidJob is returned when a Job lacks required fields.
var ErrInvalidJob = errors.New("invalid job")

// Job parameterizes one engine run for a stream. It is not mutated.
type Job struct {
	// Stream is the logical stream name; it keys the persisted state.
	Stream string

	// Service is the remote change-feed operation to call.
	Service string

	// CursorParam is the request parameter carrying the cursor (default "token").
	CursorParam string

	// ItemPath is the dot-separated path to the item list in the envelope.
	ItemPath string

	// TokenField is the item field holding its token (default "Token").
	TokenField string

	// ReplicationKey is the record field holding the token (default "token").
	ReplicationKey string

	// Params are static request parameters such as page-size hints.
	Params map[string]string

	// Mapper shapes raw items into records.
	Mapper RecordMapper
}

func (j Job) withDefaults() Job {
	if j.CursorParam == "" {
		j.CursorParam = DefaultCursorParam
	}
	if j.TokenField == "" {
		j.TokenField = DefaultTokenField
	}
	if j.ReplicationKey == "" {
		j.ReplicationKey = DefaultReplicationKey
	}
	return j
}

func (j Job) validate() error {
	switch {
	case j.Stream == "":
		return fmt.Errorf("%w: stream name is required", ErrInvalidJob)
	case j.Service == "":
		return fmt.Errorf("%w: service is required (stream %s)", ErrInvalidJob, j.Stream)
	case j.Mapper == nil:
		return fmt.Errorf("%w: mapper is required (stream %s)", ErrInvalidJob, j.Stream)
	}
	return nil
}

// Result summarizes one engine run.
type Result struct {
	Stream      string
	StartCursor uint64
	FinalCursor uint64
	Pages       int
	Items       int
	Emitted     int
	Dropped     int
	StaleTokens int
	Stop        StopReason
	Duration    time.Duration
}

// Config holds the engine's collaborators.
type Config struct {
	Fetcher Fetcher
	Retry   *retry.Policy
	Store   StateStore
	Sink    Sink

	// Logger defaults to the global logger with component "pagination".
	Logger *zerolog.Logger
}

// Engine runs the token pagination loop for one stream at a time.
type Engine struct {
	fetcher Fetcher
	retry   *retry.Policy
	store   StateStore
	sink    Sink
	logger  zerolog.Logger
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.New(retry.DefaultConfig())
	}

	logger := log.With().Str("component", "pagination").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "pagination").Logger()
	}

	return &Engine{
		fetcher: cfg.Fetcher,
		retry:   cfg.Retry,
		store:   cfg.Store,
		sink:    cfg.Sink,
		logger:  logger,
	}, nil
}

// run carries the mutable state of a single Run call.
type run struct {
	job     Job
	logger  zerolog.Logger
	phase   Phase
	cursor  uint64
	env     Envelope
	highest uint64
	items   int
	started time.Time
	result  Result
}

func (r *run) transition(next Phase) {
	if !CanTransition(r.phase, next) {
		// Programming error in the loop below; keep the run honest.
		panic(fmt.Sprintf("pagination: invalid transition %s -> %s", r.phase, next))
	}
	r.logger.Debug().
		Str("from", r.phase.String()).
		Str("to", next.String()).
		Uint64("cursor", r.cursor).
		Msg("Phase transition")
	r.phase = next
}

// Run drains the stream's backlog: it fetches pages starting at the
// persisted cursor until a page is empty or stops advancing the cursor.
// After each advancing page the new cursor is flushed before the next fetch.
func (e *Engine) Run(ctx context.Context, job Job) (Result, error) {
	job = job.withDefaults()
	if err := job.validate(); err != nil {
		return Result{Stream: job.Stream}, err
	}

	r := &run{
		job:     job,
		logger:  e.logger.With().Str("stream", job.Stream).Str("service", job.Service).Logger(),
		phase:   PhaseInit,
		started: time.Now(),
		result:  Result{Stream: job.Stream},
	}

	for {
		switch r.phase {
		case PhaseInit:
			r.cursor = e.store.Load(job.Stream)
			r.result.StartCursor = r.cursor
			r.result.FinalCursor = r.cursor
			cursorGauge.WithLabelValues(job.Stream).Set(float64(r.cursor))
			r.logger.Info().Uint64("cursor", r.cursor).Msg("Starting sync")
			r.transition(PhaseFetching)

		case PhaseFetching:
			if err := ctx.Err(); err != nil {
				return e.finish(r), fmt.Errorf("stream %s: %w", job.Stream, err)
			}
			env, err := e.fetch(ctx, r)
			if err != nil {
				return e.finish(r), fmt.Errorf("stream %s: fetch at cursor %d: %w", job.Stream, r.cursor, err)
			}
			r.env = env
			r.result.Pages++
			pagesTotal.WithLabelValues(job.Stream).Inc()
			r.transition(PhaseMapping)

		case PhaseMapping:
			items, responseTime := Extract(r.env, job.ItemPath)
			r.env = nil
			if len(items) == 0 {
				r.logger.Info().Uint64("cursor", r.cursor).Msg("Empty page, stopping pagination")
				r.result.Stop = StopEmptyPage
				r.transition(PhaseDone)
				continue
			}
			if err := e.mapPage(r, items, responseTime); err != nil {
				return e.finish(r), fmt.Errorf("stream %s: emit at cursor %d: %w", job.Stream, r.cursor, err)
			}
			r.transition(PhaseAdvancing)

		case PhaseAdvancing:
			if r.highest <= r.cursor {
				r.logger.Info().
					Uint64("cursor", r.cursor).
					Int("batch_size", r.items).
					Msg("No token progress, stopping pagination")
				r.result.Stop = StopNoProgress
				r.transition(PhaseDone)
				continue
			}
			if err := e.advance(ctx, r); err != nil {
				return e.finish(r), fmt.Errorf("stream %s: %w", job.Stream, err)
			}
			r.transition(PhaseFetching)

		case PhaseDone:
			stopsTotal.WithLabelValues(job.Stream, string(r.result.Stop)).Inc()
			res := e.finish(r)
			r.logger.Info().
				Uint64("start_cursor", res.StartCursor).
				Uint64("final_cursor", res.FinalCursor).
				Int("pages", res.Pages).
				Int("records", res.Emitted).
				Str("stop", string(res.Stop)).
				Dur("duration", res.Duration).
				Msg("Sync complete")
			return res, nil
		}
	}
}

func (e *Engine) finish(r *run) Result {
	r.result.Duration = time.Since(r.started)
	return r.result
}

// fetch requests the page for the current cursor through the retry policy.
func (e *Engine) fetch(ctx context.Context, r *run) (Envelope, error) {
	req := FetchRequest{
		Service:     r.job.Service,
		CursorParam: r.job.CursorParam,
		Cursor:      r.cursor,
		Params:      maps.Clone(r.job.Params),
	}

	var env Envelope
	err := e.retry.Execute(ctx, r.job.Stream, func(ctx context.Context) error {
		var ferr error
		env, ferr = e.fetcher.FetchPage(ctx, req)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// mapPage maps and emits every item in response order while tracking the
// highest token, seeded at the request cursor.
func (e *Engine) mapPage(r *run, items []RawItem, responseTime float64) error {
	start := time.Now()
	defer func() {
		pageDuration.WithLabelValues(r.job.Stream).Observe(time.Since(start).Seconds())
	}()

	r.highest = r.cursor
	r.items = len(items)
	r.result.Items += len(items)
	itemsTotal.WithLabelValues(r.job.Stream).Add(float64(len(items)))

	stale := 0
	for _, item := range items {
		token := ItemToken(item, r.job.TokenField)
		if token <= r.cursor {
			stale++
		}
		if token > r.highest {
			r.highest = token
		}

		rec, ok := r.job.Mapper.Map(item)
		if !ok || rec == nil {
			r.result.Dropped++
			continue
		}
		rec[ResponseTimeKey] = responseTime
		if v, ok := rec[r.job.ReplicationKey]; !ok || v == nil {
			rec[r.job.ReplicationKey] = token
		}

		if err := e.sink.WriteRecord(r.job.Stream, rec); err != nil {
			return err
		}
		r.result.Emitted++
		recordsEmittedTotal.WithLabelValues(r.job.Stream).Inc()
	}

	if stale > 0 {
		// The feed only returns tokens above the request cursor; anything
		// else is reported but never moves the cursor backwards.
		r.result.StaleTokens += stale
		staleTokensTotal.WithLabelValues(r.job.Stream).Add(float64(stale))
		r.logger.Warn().
			Uint64("cursor", r.cursor).
			Int("stale_items", stale).
			Int("batch_size", len(items)).
			Msg("Items with token not above requested cursor")
	}
	return nil
}

// advance persists forward progress and publishes state to the sink.
func (e *Engine) advance(ctx context.Context, r *run) error {
	if err := e.store.Advance(r.job.Stream, r.highest, r.items); err != nil {
		return fmt.Errorf("advance state: %w", err)
	}
	if err := e.store.Flush(ctx); err != nil {
		return fmt.Errorf("flush state: %w", err)
	}

	r.logger.Info().
		Uint64("cursor", r.cursor).
		Uint64("next_cursor", r.highest).
		Int("batch_size", r.items).
		Msg("Token progression")

	r.cursor = r.highest
	r.result.FinalCursor = r.cursor
	cursorGauge.WithLabelValues(r.job.Stream).Set(float64(r.cursor))

	if ss, ok := e.sink.(StateSink); ok {
		if snap, ok := e.store.(snapshotter); ok {
			if err := ss.WriteState(snap.Snapshot()); err != nil {
				return fmt.Errorf("write state message: %w", err)
			}
		}
	}
	return nil
}
