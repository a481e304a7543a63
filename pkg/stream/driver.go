// Package stream describes the Sherpa change feeds: which service each
// stream calls, where its items live in the response, and how items are
// shaped into records.
package stream

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Sternrassler/sherpa-tap/pkg/pagination"
)

// DefaultPageSize is the page-size hint sent when none is configured.
const DefaultPageSize = 500

// ErrUnknownStream is returned when a stream name is not in the catalog.
var ErrUnknownStream = errors.New("unknown stream")

// Driver binds a stream name to its remote service and record shape.
type Driver struct {
	Name           string
	Service        string
	ItemPath       string
	PrimaryKeys    []string
	ReplicationKey string

	// PageSizeParam is the request parameter carrying the page-size hint.
	// Empty means the service takes none.
	PageSizeParam string

	Fields []Field
}

// Job builds the pagination job for one run of the stream. A pageSize of
// zero or less uses DefaultPageSize.
func (d Driver) Job(pageSize int) pagination.Job {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var params map[string]string
	if d.PageSizeParam != "" {
		params = map[string]string{d.PageSizeParam: strconv.Itoa(pageSize)}
	}

	return pagination.Job{
		Stream:         d.Name,
		Service:        d.Service,
		CursorParam:    pagination.DefaultCursorParam,
		ItemPath:       d.ItemPath,
		TokenField:     pagination.DefaultTokenField,
		ReplicationKey: d.replicationKey(),
		Params:         params,
		Mapper:         NewMapper(d.Fields, d.PrimaryKeys),
	}
}

func (d Driver) replicationKey() string {
	if d.ReplicationKey == "" {
		return pagination.DefaultReplicationKey
	}
	return d.ReplicationKey
}

// Schema returns the JSON schema of the stream's records, including the
// response_time property added by the engine.
func (d Driver) Schema() map[string]any {
	props := make(map[string]any, len(d.Fields)+1)
	for _, f := range d.Fields {
		props[f.Name] = propertySchema(f.Type)
	}
	props[pagination.ResponseTimeKey] = propertySchema(TypeNumber)

	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// BookmarkProperties returns the record properties that carry state.
func (d Driver) BookmarkProperties() []string {
	return []string{d.replicationKey()}
}

func propertySchema(t FieldType) map[string]any {
	if t == TypeDateTime {
		return map[string]any{
			"type":   []string{"string", "null"},
			"format": "date-time",
		}
	}
	if t == "" {
		t = TypeString
	}
	return map[string]any{"type": []string{string(t), "null"}}
}

// Lookup returns the catalog driver named name.
func Lookup(name string) (Driver, error) {
	for _, d := range Catalog() {
		if d.Name == name {
			return d, nil
		}
	}
	return Driver{}, fmt.Errorf("%w: %s", ErrUnknownStream, name)
}

// Select resolves stream names to drivers in the given order, ignoring
// duplicates. No names selects the whole catalog.
func Select(names []string) ([]Driver, error) {
	if len(names) == 0 {
		return Catalog(), nil
	}

	seen := make(map[string]bool, len(names))
	drivers := make([]Driver, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		d, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}

// Names returns the catalog's stream names.
func Names() []string {
	cat := Catalog()
	names := make([]string, len(cat))
	for i, d := range cat {
		names[i] = d.Name
	}
	return names
}
