package stream

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/Sternrassler/sherpa-tap/pkg/pagination"
)

// FieldType is the JSON-schema type of a record field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
	TypeDateTime FieldType = "date-time"
)

// Field maps one item element onto one record property.
type Field struct {
	// Name is the record property.
	Name string

	// Source is the element name in the raw item. Empty means the field
	// is not read from the item and always takes Default.
	Source string

	Type FieldType

	// Default is used when the source element is absent or empty.
	Default any
}

// coerce converts an XML text value to the field's type. Values that do
// not parse are kept as received for strings and dates and dropped to nil
// for numeric and boolean fields.
func (f Field) coerce(raw any) any {
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
		if raw == "" {
			return f.Default
		}
	}

	switch f.Type {
	case TypeInteger:
		return toInt(raw)
	case TypeNumber:
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil
		}
		return v
	case TypeBoolean:
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return nil
		}
		return v
	case TypeDateTime:
		return toDateTime(raw)
	default:
		v, err := cast.ToStringE(raw)
		if err != nil {
			return nil
		}
		return v
	}
}

func toInt(raw any) any {
	if s, ok := raw.(string); ok {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return nil
	}
	v, err := cast.ToInt64E(raw)
	if err != nil {
		return nil
	}
	return v
}

// Sherpa timestamps carry no zone and may have fractional seconds.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toDateTime(raw any) any {
	s, ok := raw.(string)
	if !ok {
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339Nano)
		}
	}
	return s
}

// Mapper shapes raw items into records according to a field table.
type Mapper struct {
	fields []Field
	keys   []string
}

// NewMapper creates a mapper. Items lacking every primary-key source
// element produce no record.
func NewMapper(fields []Field, primaryKeys []string) *Mapper {
	var keys []string
	for _, pk := range primaryKeys {
		for _, f := range fields {
			if f.Name == pk && f.Source != "" {
				keys = append(keys, f.Source)
			}
		}
	}
	return &Mapper{fields: fields, keys: keys}
}

// Map implements pagination.RecordMapper.
func (m *Mapper) Map(item pagination.RawItem) (pagination.Record, bool) {
	if len(m.keys) > 0 && !hasAny(item, m.keys) {
		return nil, false
	}

	rec := make(pagination.Record, len(m.fields))
	for _, f := range m.fields {
		if f.Source == "" {
			rec[f.Name] = f.Default
			continue
		}
		raw, ok := item[f.Source]
		if !ok || raw == nil {
			rec[f.Name] = f.Default
			continue
		}
		rec[f.Name] = f.coerce(raw)
	}
	return rec, true
}

func hasAny(item pagination.RawItem, sources []string) bool {
	for _, src := range sources {
		v, ok := item[src]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return true
	}
	return false
}
