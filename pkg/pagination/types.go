package pagination

import (
	"context"

	"github.com/Sternrassler/sherpa-tap/pkg/state"
)

// Envelope is the decoded response of one change-feed request.
type Envelope = map[string]any

// RawItem is one entity as returned by the remote system.
type RawItem = map[string]any

// Record is the canonical output shape of a stream.
type Record = map[string]any

// FetchRequest describes one page request. Cursor stays typed here;
// conversion to the wire format is the Fetcher's job.
type FetchRequest struct {
	Service     string
	CursorParam string
	Cursor      uint64
	Params      map[string]string
}

// Fetcher performs a single page request against the remote system.
type Fetcher interface {
	FetchPage(ctx context.Context, req FetchRequest) (Envelope, error)
}

// RecordMapper turns a raw item into an output record. Returning false
// drops the item; it still counts for cursor advancement.
type RecordMapper interface {
	Map(item RawItem) (Record, bool)
}

// MapperFunc adapts a function to RecordMapper.
type MapperFunc func(item RawItem) (Record, bool)

// Map implements RecordMapper.
func (f MapperFunc) Map(item RawItem) (Record, bool) {
	return f(item)
}

// Sink receives records as soon as they are mapped.
type Sink interface {
	WriteRecord(stream string, rec Record) error
}

// StateSink is implemented by sinks that also publish state after each
// successful flush.
type StateSink interface {
	WriteState(doc *state.Document) error
}

// StateStore is the part of state.Store the engine depends on.
type StateStore interface {
	Load(stream string) uint64
	Advance(stream string, cursor uint64, processed int) error
	Flush(ctx context.Context) error
}

// snapshotter is implemented by stores that can hand out their full state.
type snapshotter interface {
	Snapshot() *state.Document
}
