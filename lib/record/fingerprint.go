package record

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Fingerprint is the content identity of a record: its fields serialized
// with sorted keys and canonical number formatting, so two records with the
// same content hash identically no matter what order the source emitted
// their fields in or how it spelled its numbers ("1.50" vs "1.5").
func (r *Record) Fingerprint() string {
	var buf bytes.Buffer
	writeCanonical(&buf, r.values)
	return buf.String()
}

// FingerprintValue canonicalizes an arbitrary decoded JSON value the same
// way Fingerprint does; used when page payloads carry plain maps.
func FingerprintValue(v any) string {
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	return buf.String()
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, _ := json.Marshal(t)
		buf.Write(b)
	case json.Number:
		buf.WriteString(canonicalNumber(t))
	case float64:
		buf.WriteString(formatFloat(t))
	case int:
		buf.WriteString(strconv.Itoa(t))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, _ := json.Marshal(k)
			buf.Write(name)
			buf.WriteByte(':')
			writeCanonical(buf, t[k])
		}
		buf.WriteByte('}')
	case *Record:
		writeCanonical(buf, t.values)
	default:
		// uncommon value types fall back to encoding/json
		b, err := json.Marshal(t)
		if err != nil {
			buf.WriteString("null")
			return
		}
		buf.Write(b)
	}
}

func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		return formatFloat(f)
	}
	return n.String()
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Set tracks fingerprints that have already been observed.
type Set map[string]struct{}

func NewSet(fingerprints ...string) Set {
	s := make(Set, len(fingerprints))
	for _, fp := range fingerprints {
		s.Add(fp)
	}
	return s
}

func (s Set) Add(fingerprint string) {
	s[fingerprint] = struct{}{}
}

func (s Set) Has(fingerprint string) bool {
	_, ok := s[fingerprint]
	return ok
}
