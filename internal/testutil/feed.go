// Package testutil provides testing utilities for the Sherpa tap.
package testutil

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/Sternrassler/sherpa-tap/pkg/pagination"
	"github.com/Sternrassler/sherpa-tap/pkg/state"
)

// Feed is a deterministic in-memory change feed. It serves every item
// whose token exceeds the requested cursor, PageSize items at a time,
// shaped like a Sherpa response envelope.
type Feed struct {
	mu sync.Mutex

	// ItemKey is the list element name under ResponseValue (e.g. "ItemCodeToken").
	ItemKey string

	// PageSize limits items per page; 0 serves the whole backlog at once.
	PageSize int

	// ResponseTime is reported in every envelope.
	ResponseTime int

	items []map[string]any

	// Tracking
	Requests []pagination.FetchRequest
}

// NewFeed creates a feed of items with the given tokens. Each item gets an
// ItemCode derived from its token.
func NewFeed(itemKey string, pageSize int, tokens ...uint64) *Feed {
	f := &Feed{ItemKey: itemKey, PageSize: pageSize, ResponseTime: 12}
	for _, tok := range tokens {
		f.items = append(f.items, map[string]any{
			"ItemCode":   "ITEM-" + strconv.FormatUint(tok, 10),
			"Token":      strconv.FormatUint(tok, 10),
			"ItemStatus": "Active",
		})
	}
	sort.SliceStable(f.items, func(i, j int) bool {
		return tokenOf(f.items[i]) < tokenOf(f.items[j])
	})
	return f
}

// Sequential creates a feed with tokens 2..n+1.
func Sequential(itemKey string, pageSize, n int) *Feed {
	tokens := make([]uint64, n)
	for i := range tokens {
		tokens[i] = uint64(i + 2)
	}
	return NewFeed(itemKey, pageSize, tokens...)
}

// FetchPage implements pagination.Fetcher.
func (f *Feed) FetchPage(_ context.Context, req pagination.FetchRequest) (pagination.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)

	page := []any{}
	for _, item := range f.items {
		if tokenOf(item) <= req.Cursor {
			continue
		}
		page = append(page, item)
		if f.PageSize > 0 && len(page) == f.PageSize {
			break
		}
	}

	return Envelope(f.ResponseTime, f.ItemKey, page), nil
}

// Calls returns the number of FetchPage invocations.
func (f *Feed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

func tokenOf(item map[string]any) uint64 {
	return pagination.ItemToken(item, "Token")
}

// Envelope builds a Sherpa-shaped response envelope around items.
func Envelope(responseTime int, itemKey string, items []any) pagination.Envelope {
	if len(items) == 0 {
		return pagination.Envelope{
			"ResponseTime":  strconv.Itoa(responseTime),
			"ResponseValue": map[string]any{},
		}
	}
	return pagination.Envelope{
		"ResponseTime": strconv.Itoa(responseTime),
		"ResponseValue": map[string]any{
			itemKey: items,
		},
	}
}

// Items builds raw items with the given tokens.
func Items(tokens ...uint64) []any {
	out := make([]any, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, map[string]any{
			"ItemCode":   "ITEM-" + strconv.FormatUint(tok, 10),
			"Token":      strconv.FormatUint(tok, 10),
			"ItemStatus": "Active",
		})
	}
	return out
}

// ScriptedFetcher returns a fixed sequence of responses: call i returns
// Errors[i] when set, otherwise Pages[i]. Calls past the script return an
// empty envelope.
type ScriptedFetcher struct {
	mu       sync.Mutex
	Pages    []pagination.Envelope
	Errors   []error
	Requests []pagination.FetchRequest
}

// FetchPage implements pagination.Fetcher.
func (s *ScriptedFetcher) FetchPage(_ context.Context, req pagination.FetchRequest) (pagination.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.Requests)
	s.Requests = append(s.Requests, req)

	if i < len(s.Errors) && s.Errors[i] != nil {
		return nil, s.Errors[i]
	}
	if i < len(s.Pages) {
		return s.Pages[i], nil
	}
	return pagination.Envelope{}, nil
}

// Calls returns the number of FetchPage invocations.
func (s *ScriptedFetcher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// RecordSink collects emitted records and state messages.
type RecordSink struct {
	mu      sync.Mutex
	Records map[string][]pagination.Record
	States  []*state.Document
	Err     error
}

// NewRecordSink creates an empty sink.
func NewRecordSink() *RecordSink {
	return &RecordSink{Records: make(map[string][]pagination.Record)}
}

// WriteRecord implements pagination.Sink.
func (s *RecordSink) WriteRecord(stream string, rec pagination.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	s.Records[stream] = append(s.Records[stream], rec)
	return nil
}

// WriteState implements pagination.StateSink.
func (s *RecordSink) WriteState(doc *state.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.States = append(s.States, doc)
	return nil
}

// Count returns the number of records emitted for stream.
func (s *RecordSink) Count(stream string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Records[stream])
}
