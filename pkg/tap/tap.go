// Package tap drains the selected Sherpa streams one after another and
// frames their records with Singer SCHEMA and STATE messages.
package tap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/sherpa-tap/pkg/pagination"
	"github.com/Sternrassler/sherpa-tap/pkg/state"
	"github.com/Sternrassler/sherpa-tap/pkg/stream"
)

// Runner runs one pagination job.
type Runner interface {
	Run(ctx context.Context, job pagination.Job) (pagination.Result, error)
}

// Sink receives schema and state messages.
type Sink interface {
	WriteSchema(stream string, schema map[string]any, keyProperties, bookmarkProperties []string) error
	WriteState(doc *state.Document) error
}

// Snapshotter exposes the current bookmark document.
type Snapshotter interface {
	Snapshot() *state.Document
}

// Tap orchestrates a sync run.
type Tap struct {
	Engine Runner
	Sink   Sink
	Store  Snapshotter

	// PageSize returns the page-size hint for a stream; nil or a
	// non-positive result uses stream.DefaultPageSize.
	PageSize func(stream string) int

	Logger *zerolog.Logger
}

// Summary reports the outcome of a run.
type Summary struct {
	Results  []pagination.Result
	Duration time.Duration
}

// Records returns the number of records emitted across all streams.
func (s Summary) Records() int {
	n := 0
	for _, r := range s.Results {
		n += r.Emitted
	}
	return n
}

// Run syncs the named streams in order; no names selects every stream.
// The first failing stream aborts the run. State flushed by streams that
// completed, and by the failing stream's finished pages, is kept.
func (t *Tap) Run(ctx context.Context, names []string) (Summary, error) {
	drivers, err := stream.Select(names)
	if err != nil {
		return Summary{}, err
	}
	return t.RunDrivers(ctx, drivers)
}

// RunDrivers syncs the given drivers in order.
func (t *Tap) RunDrivers(ctx context.Context, drivers []stream.Driver) (Summary, error) {
	if t.Engine == nil || t.Sink == nil {
		return Summary{}, fmt.Errorf("tap: engine and sink are required")
	}

	logger := log.With().Str("component", "tap").Logger()
	if t.Logger != nil {
		logger = t.Logger.With().Str("component", "tap").Logger()
	}

	start := time.Now()
	summary := Summary{}

	for _, d := range drivers {
		if err := t.Sink.WriteSchema(d.Name, d.Schema(), d.PrimaryKeys, d.BookmarkProperties()); err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("stream %s: write schema: %w", d.Name, err)
		}

		res, err := t.Engine.Run(ctx, d.Job(t.pageSize(d.Name)))
		summary.Results = append(summary.Results, res)
		if err != nil {
			summary.Duration = time.Since(start)
			logger.Error().Err(err).Str("stream", d.Name).Msg("Stream sync failed, aborting run")
			return summary, err
		}
	}

	if t.Store != nil {
		if err := t.Sink.WriteState(t.Store.Snapshot()); err != nil {
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("write final state: %w", err)
		}
	}

	summary.Duration = time.Since(start)
	logger.Info().
		Int("streams", len(summary.Results)).
		Int("records", summary.Records()).
		Dur("duration", summary.Duration).
		Msg("Run complete")
	return summary, nil
}

func (t *Tap) pageSize(name string) int {
	if t.PageSize == nil {
		return stream.DefaultPageSize
	}
	if n := t.PageSize(name); n > 0 {
		return n
	}
	return stream.DefaultPageSize
}
