package diff

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Identity decides whether a local and a remote list element represent the
// same entity. Implementations derive a comparable key; elements with equal
// keys match.
type Identity interface {
	// Key returns the element's identity key. ok is false when no key can
	// be derived, in which case the element never matches.
	Key(v any) (key string, ok bool)
}

// ValueIdentity matches elements that are deeply equal after
// normalization: map key order is ignored and numeric types are unified,
// so a YAML-authored 1 matches a JSON-decoded 1.0.
type ValueIdentity struct{}

// Key implements Identity.
func (ValueIdentity) Key(v any) (string, bool) {
	return Normalize(v), true
}

// KeyedIdentity matches elements by a caller-supplied key extraction, for
// example an element's declared external identifier.
type KeyedIdentity struct {
	// Extract derives the element's stable key. ok=false excludes the
	// element from matching.
	Extract func(v any) (string, bool)
}

// Key implements Identity.
func (k KeyedIdentity) Key(v any) (string, bool) {
	if k.Extract == nil {
		return "", false
	}
	return k.Extract(v)
}

// FieldKey returns a KeyedIdentity matching map elements by the string
// value of the named field.
func FieldKey(field string) KeyedIdentity {
	return KeyedIdentity{Extract: func(v any) (string, bool) {
		m, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		raw, ok := m[field]
		if !ok {
			return "", false
		}
		s, ok := raw.(string)
		if !ok || s == "" {
			return "", false
		}
		return s, true
	}}
}

// Normalize renders a JSON-like value into a canonical string: map keys
// are sorted and all numeric types collapse to one representation. Two
// values normalize equally iff they are deeply equal under the engine's
// equivalence.
func Normalize(v any) string {
	var sb strings.Builder
	writeNormalized(&sb, v)
	return sb.String()
}

// Equal reports deep equality under normalization.
func Equal(a, b any) bool {
	return Normalize(a) == Normalize(b)
}

func writeNormalized(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case string:
		sb.WriteString(strconv.Quote(val))
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			writeNormalized(sb, val[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeNormalized(sb, e)
		}
		sb.WriteByte(']')
	default:
		if f, ok := toFloat(v); ok {
			sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
			return
		}
		fmt.Fprintf(sb, "%v", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
