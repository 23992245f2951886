package canonical

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldMap maps canonical field names to a store's payload keys. A missing
// entry means the store does not carry that field at all.
type FieldMap map[string]string

// DefaultFieldMap is the identity mapping: payload keys already use the
// canonical names. Adapters for stores with divergent schemas override
// individual entries via configuration.
func DefaultFieldMap() FieldMap {
	fm := make(FieldMap, len(Fields))
	for _, f := range Fields {
		fm[f] = f
	}
	return fm
}

// Merge returns a copy of fm with the overrides applied. An override mapping
// a field to "" removes it (the store is declared not to carry the field).
func (fm FieldMap) Merge(overrides map[string]string) FieldMap {
	out := make(FieldMap, len(fm))
	for k, v := range fm {
		out[k] = v
	}
	for k, v := range overrides {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Normalize converts a raw store payload into a canonical Record using the
// given field mapping. It is pure: no I/O, deterministic for a fixed input.
// Values the mapping points at but that cannot be coerced are treated as
// absent; their canonical names are returned in malformed so the caller can
// log them.
func Normalize(fm FieldMap, raw map[string]any) (Record, []string) {
	var rec Record
	var malformed []string

	if raw == nil {
		return rec, nil
	}

	for _, field := range Fields {
		key, ok := fm[field]
		if !ok {
			continue
		}
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}

		if field == "updated_at" {
			t, err := coerceTime(v)
			if err != nil {
				malformed = append(malformed, field)
				continue
			}
			rec.UpdatedAt = &t
			continue
		}

		s, err := coerceString(v)
		if err != nil {
			malformed = append(malformed, field)
			continue
		}
		switch field {
		case "title":
			rec.Title = &s
		case "version":
			rec.Version = &s
		case "language":
			rec.Language = &s
		case "content":
			rec.Content = &s
		}
	}

	return rec, malformed
}

// coerceString renders scalar payload values canonically. Relational rows,
// JSON documents, and vector payloads disagree on numeric types for the same
// logical value (version=3 vs "3" vs 3.0), so numbers collapse to their
// shortest exact decimal form.
func coerceString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return trimFloat(float64(x)), nil
	case float64:
		return trimFloat(x), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// trimFloat renders whole-valued floats without a fraction so JSON-decoded
// 3.0 equals relational integer 3.
func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return strings.TrimSuffix(s, ".0")
}

func coerceTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", x)
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case float64:
		return time.Unix(int64(x), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", v)
	}
}
