package pagination

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ResponseTimeField is the envelope key carrying the server-side latency.
const ResponseTimeField = "ResponseTime"

// Extract descends into env along the dot-separated itemPath and returns
// the items found there together with the envelope's response time.
//
// Missing or mis-shaped intermediate keys yield no items. A single object
// at the end of the path is treated as a one-element list, and list
// elements that are not objects are skipped.
func Extract(env Envelope, itemPath string) ([]RawItem, float64) {
	responseTime := 0.0
	if env != nil {
		responseTime = toFloat(env[ResponseTimeField])
	}

	var node any = env
	if itemPath != "" {
		for _, part := range strings.Split(itemPath, ".") {
			m, ok := node.(map[string]any)
			if !ok {
				return nil, responseTime
			}
			node, ok = m[part]
			if !ok || node == nil {
				return nil, responseTime
			}
		}
	}

	switch v := node.(type) {
	case []any:
		items := make([]RawItem, 0, len(v))
		for _, el := range v {
			if m, ok := el.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items, responseTime
	case []map[string]any:
		items := make([]RawItem, 0, len(v))
		for _, m := range v {
			if m != nil {
				items = append(items, m)
			}
		}
		return items, responseTime
	case map[string]any:
		if len(v) == 0 {
			return nil, responseTime
		}
		return []RawItem{v}, responseTime
	default:
		return nil, responseTime
	}
}

// ItemToken reads the token of item from field. Absent or unparseable
// values read as 0.
func ItemToken(item RawItem, field string) uint64 {
	raw, ok := item[field]
	if !ok || raw == nil {
		return 0
	}
	if s, ok := raw.(string); ok {
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	v, err := cast.ToUint64E(raw)
	if err != nil {
		return 0
	}
	return v
}

func toFloat(v any) float64 {
	if v == nil {
		return 0
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		return f
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return f
}
