// Package query selects an index for a structured query, fetches the
// candidate events and applies the residual date, filter, sort and page steps.
package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	apperrors "github.com/arkilian/analytica/internal/errors"
	"github.com/arkilian/analytica/pkg/types"
)

// Path is a parsed dotted path such as "data.address". The first segment
// names an event field; later segments descend into nested maps and arrays.
type Path []string

// ParsePath splits s on dots. An empty path or an empty segment is a
// MALFORMED_QUERY error.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, apperrors.NewMalformedQuery("empty path")
	}
	segs := strings.Split(s, ".")
	for i, seg := range segs {
		if seg == "" {
			return nil, apperrors.NewMalformedQuery(fmt.Sprintf("path %q has an empty segment at position %d", s, i))
		}
	}
	return Path(segs), nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Resolve looks the path up on e. ok is false when any segment is missing.
func (p Path) Resolve(e types.Event) (v interface{}, ok bool) {
	if len(p) == 0 {
		return nil, false
	}

	var root interface{}
	switch p[0] {
	case "id":
		root = e.ID
	case "timestamp":
		root = e.Timestamp
	case "type":
		root = string(e.Type)
	case "category":
		root = string(e.Category)
	case "data":
		if e.Data == nil {
			return nil, false
		}
		root = e.Data
	case "metadata":
		if e.Metadata == nil {
			return nil, false
		}
		root = e.Metadata
	default:
		return nil, false
	}
	return descend(root, p[1:])
}

func descend(cur interface{}, segs []string) (interface{}, bool) {
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]interface{}:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []interface{}:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// normalize maps a value onto the shapes produced by encoding/json so that
// values decoded from storage compare equal to values built in Go: every
// number becomes float64 and typed maps/slices become their generic forms.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	}

	// Named types and typed collections go through a JSON round trip.
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return v
	}
	return generic
}

// equalValues compares two values after normalization.
func equalValues(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// asCollection reports whether v is a list, returning its elements.
func asCollection(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]interface{}); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// []byte is a scalar to encoding/json.
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
