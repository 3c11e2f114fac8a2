// Package extract locates fields inside upstream response bodies whose
// envelope and key casing are not stable.
package extract

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// maxExactID is the largest integer a float64 represents exactly.
const maxExactID = 1<<53 - 1

// Keys is a set of key names compared case-insensitively during deep search.
type Keys []string

// Match reports whether name equals one of the keys, ignoring case.
func (k Keys) Match(name string) bool {
	for _, key := range k {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}

// FindID searches tree depth-first for the first key matching keys whose
// value parses as a positive integer. Arrays are walked in order and objects
// in key declaration order (sorted order for plain maps).
func FindID(tree any, keys Keys) (int64, bool) {
	w := walker[int64]{keys: keys, parse: ParseID, seen: make(map[uintptr]struct{})}
	return w.walk(tree)
}

// FindAmount searches tree the same way as FindID for a non-negative
// currency amount.
func FindAmount(tree any, keys Keys) (float64, bool) {
	w := walker[float64]{keys: keys, parse: ParseAmount, seen: make(map[uintptr]struct{})}
	return w.walk(tree)
}

type walker[T any] struct {
	keys  Keys
	parse func(any) (T, bool)
	seen  map[uintptr]struct{}
}

func (w *walker[T]) walk(v any) (T, bool) {
	var zero T

	switch node := v.(type) {
	case *Object:
		if node == nil || !w.visit(node) {
			return zero, false
		}
		for _, k := range node.keys {
			if found, ok := w.entry(k, node.values[k]); ok {
				return found, true
			}
		}
	case map[string]any:
		if node == nil || !w.visit(node) {
			return zero, false
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found, ok := w.entry(k, node[k]); ok {
				return found, true
			}
		}
	case []any:
		if len(node) == 0 || !w.visit(node) {
			return zero, false
		}
		for _, item := range node {
			if found, ok := w.walk(item); ok {
				return found, true
			}
		}
	}
	return zero, false
}

func (w *walker[T]) entry(key string, val any) (T, bool) {
	if w.keys.Match(key) {
		if found, ok := w.parse(val); ok {
			return found, true
		}
	}
	return w.walk(val)
}

// visit records container identity and reports false when it was already seen.
func (w *walker[T]) visit(container any) bool {
	ptr := reflect.ValueOf(container).Pointer()
	if _, ok := w.seen[ptr]; ok {
		return false
	}
	w.seen[ptr] = struct{}{}
	return true
}

// ParseID converts a scalar to a positive integer identifier.
func ParseID(v any) (int64, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			if i <= 0 {
				return 0, false
			}
			return i, true
		}
	}

	f, ok := toFloat(v)
	if !ok || f <= 0 || f > maxExactID || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// ParseAmount converts a scalar to a non-negative amount. Strings may use a
// decimal comma and an "R$" prefix.
func ParseAmount(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
		v = s
	}

	f, ok := toFloat(v)
	if !ok || f < 0 {
		return 0, false
	}
	return f, true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
