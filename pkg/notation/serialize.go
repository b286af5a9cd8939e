package notation

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Serialize renders obj as indented notation. Fields are emitted in sorted
// key order so output is deterministic.
func Serialize(obj *Object) string {
	var b strings.Builder
	writeObject(&b, obj, 0, true)
	return b.String()
}

// SerializeCompact renders obj on a single line.
func SerializeCompact(obj *Object) string {
	var b strings.Builder
	writeObject(&b, obj, 0, false)
	return b.String()
}

func writeObject(b *strings.Builder, obj *Object, depth int, pretty bool) {
	b.WriteByte('@')
	b.WriteString(obj.Type)
	b.WriteByte('{')
	keys := make([]string, 0, len(obj.Fields))
	for k := range obj.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if pretty {
			b.WriteByte('\n')
			b.WriteString(strings.Repeat("  ", depth+1))
		} else if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte(':')
		writeValue(b, obj.Fields[k], depth+1, pretty)
	}
	if pretty && len(keys) > 0 {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("  ", depth))
	}
	b.WriteByte('}')
}

func writeValue(b *strings.Builder, v any, depth int, pretty bool) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case int:
		b.WriteString(strconv.Itoa(val))
	case float64:
		b.WriteString(formatFloat(val))
	case string:
		b.WriteString(quote(val))
	case []any:
		b.WriteByte('[')
		for i, el := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, el, depth, pretty)
		}
		b.WriteByte(']')
	case *Object:
		writeObject(b, val, depth, pretty)
	default:
		b.WriteString(quote("?"))
	}
}

// formatFloat keeps a fractional marker on integral floats so the value
// round-trips as a float rather than an integer.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !math.IsInf(f, 0) && !math.IsNaN(f) {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
