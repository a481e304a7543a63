package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for state persistence.
var (
	flushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sherpa_state_flushes_total",
		Help: "Total state flushes by result",
	}, []string{"result"})

	flushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sherpa_state_flush_duration_seconds",
		Help:    "Duration of state flushes in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	persistedCursor = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sherpa_state_persisted_cursor",
		Help: "Last durably persisted cursor by stream",
	}, []string{"stream"})
)

// Backend reads and writes the full state document.
type Backend interface {
	// Read returns the persisted document, or an empty one if none exists.
	Read(ctx context.Context) (*Document, error)

	// Write replaces the persisted document.
	Write(ctx context.Context, doc *Document) error

	// Close releases resources held by the backend.
	Close() error
}

// Store owns the state of all streams. Mutations happen in memory through
// Advance and become durable on Flush.
type Store struct {
	mu      sync.Mutex
	flushMu sync.Mutex
	backend Backend
	streams map[string]*StreamState
	logger  zerolog.Logger
	now     func() time.Time
}

// Open loads the persisted document from backend and returns a Store.
func Open(ctx context.Context, backend Backend, logger zerolog.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("state backend is required")
	}

	doc, err := backend.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	s := &Store{
		backend: backend,
		streams: make(map[string]*StreamState, len(doc.Bookmarks)),
		logger:  logger.With().Str("component", "state-store").Logger(),
		now:     time.Now,
	}

	for stream, b := range doc.Bookmarks {
		st, err := b.toState(stream)
		if err != nil {
			return nil, err
		}
		s.streams[stream] = st
	}

	s.logger.Debug().Int("streams", len(s.streams)).Msg("State loaded")
	return s, nil
}

// Load returns the cursor for stream, or DefaultCursor if none is persisted.
func (s *Store) Load(stream string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.streams[stream]; ok {
		return st.Cursor
	}
	return DefaultCursor
}

// State returns a copy of the stream's state.
func (s *Store) State(stream string) (StreamState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[stream]
	if !ok {
		return StreamState{}, false
	}
	return *st, true
}

// Streams returns the names of all streams with state, sorted.
func (s *Store) Streams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Advance moves the stream's cursor forward, adds processed to its record
// counter and stamps the sync time. The change is not durable until Flush.
func (s *Store) Advance(stream string, cursor uint64, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[stream]
	if !ok {
		st = &StreamState{
			Stream:         stream,
			ReplicationKey: DefaultReplicationKey,
			Cursor:         DefaultCursor,
		}
		s.streams[stream] = st
	}

	if cursor < st.Cursor {
		return fmt.Errorf("%w: stream %s: %d -> %d", ErrCursorRegression, stream, st.Cursor, cursor)
	}

	st.Cursor = cursor
	st.TotalRecordsProcessed += int64(processed)
	st.LastSync = s.now().UTC()
	return nil
}

// Override sets the stream's cursor unconditionally. It is the only way
// a cursor may decrease and is meant for explicit operator action.
func (s *Store) Override(stream string, cursor uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[stream]
	if !ok {
		st = &StreamState{Stream: stream, ReplicationKey: DefaultReplicationKey}
		s.streams[stream] = st
	}

	s.logger.Warn().
		Str("stream", stream).
		Uint64("from", st.Cursor).
		Uint64("to", cursor).
		Msg("Cursor overridden")

	st.Cursor = cursor
	st.LastSync = s.now().UTC()
}

// Reset drops the stream's state so the next run starts from DefaultCursor.
func (s *Store) Reset(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.streams, stream)
	s.logger.Warn().Str("stream", stream).Msg("Stream state reset")
}

// Snapshot returns a deep copy of the current state as a Document.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := NewDocument()
	for name, st := range s.streams {
		doc.Bookmarks[name] = st.toBookmark()
	}
	return doc
}

// Flush durably writes the full state of all streams, replacing prior
// content. It blocks until the backend write completes.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	start := time.Now()
	doc := s.Snapshot()

	if err := s.backend.Write(ctx, doc); err != nil {
		flushesTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("State flush failed")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	flushesTotal.WithLabelValues("ok").Inc()
	flushDuration.Observe(time.Since(start).Seconds())

	for name, b := range doc.Bookmarks {
		if st, err := b.toState(name); err == nil {
			persistedCursor.WithLabelValues(name).Set(float64(st.Cursor))
		}
	}

	s.logger.Debug().
		Int("streams", len(doc.Bookmarks)).
		Dur("duration", time.Since(start)).
		Msg("State flushed")
	return nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
