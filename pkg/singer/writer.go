// Package singer writes Singer-protocol messages (SCHEMA, RECORD, STATE)
// as JSON lines.
package singer

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/Sternrassler/sherpa-tap/pkg/pagination"
	"github.com/Sternrassler/sherpa-tap/pkg/state"
)

// Message types.
const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

// SchemaMessage announces a stream's record schema.
type SchemaMessage struct {
	Type               string         `json:"type"`
	Stream             string         `json:"stream"`
	Schema             map[string]any `json:"schema"`
	KeyProperties      []string       `json:"key_properties"`
	BookmarkProperties []string       `json:"bookmark_properties,omitempty"`
}

// RecordMessage carries one record.
type RecordMessage struct {
	Type          string            `json:"type"`
	Stream        string            `json:"stream"`
	Record        pagination.Record `json:"record"`
	TimeExtracted string            `json:"time_extracted"`
}

// StateMessage carries the full bookmark document.
type StateMessage struct {
	Type  string          `json:"type"`
	Value *state.Document `json:"value"`
}

// Writer emits messages to an io.Writer. It is safe for concurrent use;
// each message is written and flushed as one line.
type Writer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	now func() time.Time
}

// NewWriter creates a writer on w (usually os.Stdout).
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), now: time.Now}
}

// WriteSchema emits a SCHEMA message.
func (w *Writer) WriteSchema(stream string, schema map[string]any, keyProperties, bookmarkProperties []string) error {
	if keyProperties == nil {
		keyProperties = []string{}
	}
	return w.write(SchemaMessage{
		Type:               TypeSchema,
		Stream:             stream,
		Schema:             schema,
		KeyProperties:      keyProperties,
		BookmarkProperties: bookmarkProperties,
	})
}

// WriteRecord implements pagination.Sink.
func (w *Writer) WriteRecord(stream string, rec pagination.Record) error {
	return w.write(RecordMessage{
		Type:          TypeRecord,
		Stream:        stream,
		Record:        rec,
		TimeExtracted: w.now().UTC().Format(time.RFC3339Nano),
	})
}

// WriteState implements pagination.StateSink.
func (w *Writer) WriteState(doc *state.Document) error {
	if doc == nil {
		doc = state.NewDocument()
	}
	return w.write(StateMessage{Type: TypeState, Value: doc})
}

func (w *Writer) write(msg any) error {
	data, err := gojson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush message: %w", err)
	}
	return nil
}
