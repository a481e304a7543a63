// Package state persists the per-stream replication cursor between runs.
//
// A Store keeps the state of every stream in memory and rewrites the full
// document through a Backend on every Flush. The persisted format follows
// the Singer bookmark layout:
//
//	{"bookmarks": {"changed_items": {"replication_key": "token",
//	    "replication_key_value": "7", "last_sync": "2026-10-16T08:00:00Z",
//	    "total_records_processed": 3}}}
//
// Absence of the document, or of a stream's entry, is not an error: the
// stream starts from DefaultCursor.
package state

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"
)

// DefaultCursor is the cursor used for a stream without persisted state.
const DefaultCursor uint64 = 1

// DefaultReplicationKey is recorded for bookmarks that do not name one.
const DefaultReplicationKey = "token"

var (
	// ErrCursorRegression is returned when Advance would move a cursor backwards.
	ErrCursorRegression = errors.New("cursor regression")

	// ErrPersist wraps failures to durably write the state document.
	ErrPersist = errors.New("persist state")

	// ErrInvalidState indicates a persisted document that cannot be interpreted.
	ErrInvalidState = errors.New("invalid state document")
)

// StreamState is the in-memory state of one stream.
type StreamState struct {
	Stream                string
	ReplicationKey        string
	Cursor                uint64
	LastSync              time.Time
	TotalRecordsProcessed int64
}

// Bookmark is the persisted form of a StreamState.
type Bookmark struct {
	ReplicationKey        string    `json:"replication_key,omitempty"`
	ReplicationKeyValue   string    `json:"replication_key_value"`
	LastSync              time.Time `json:"last_sync"`
	TotalRecordsProcessed int64     `json:"total_records_processed"`
}

// Document is the full persisted state, keyed by stream name.
type Document struct {
	Bookmarks map[string]Bookmark `json:"bookmarks"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Bookmarks: make(map[string]Bookmark)}
}

// Encode serializes the document.
func Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		doc = NewDocument()
	}
	data, err := gojson.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

// Decode parses a serialized document. Empty input yields an empty document.
func Decode(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := gojson.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if doc.Bookmarks == nil {
		doc.Bookmarks = make(map[string]Bookmark)
	}
	return doc, nil
}

func (b Bookmark) toState(stream string) (*StreamState, error) {
	cursor := DefaultCursor
	if b.ReplicationKeyValue != "" {
		v, err := strconv.ParseUint(b.ReplicationKeyValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: stream %s: replication_key_value %q: %v",
				ErrInvalidState, stream, b.ReplicationKeyValue, err)
		}
		cursor = v
	}
	key := b.ReplicationKey
	if key == "" {
		key = DefaultReplicationKey
	}
	return &StreamState{
		Stream:                stream,
		ReplicationKey:        key,
		Cursor:                cursor,
		LastSync:              b.LastSync,
		TotalRecordsProcessed: b.TotalRecordsProcessed,
	}, nil
}

func (s *StreamState) toBookmark() Bookmark {
	return Bookmark{
		ReplicationKey:        s.ReplicationKey,
		ReplicationKeyValue:   strconv.FormatUint(s.Cursor, 10),
		LastSync:              s.LastSync,
		TotalRecordsProcessed: s.TotalRecordsProcessed,
	}
}
