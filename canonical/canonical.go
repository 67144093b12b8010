// Package canonical implements the deterministic JSON encoding used for
// asset identity.
//
// Marshal is the single canonicalization choke point: every asset_id is a
// hash over its output, so two nodes agree on an identity only if they agree
// on these bytes. The encoding matches the reference exchange clients:
//
//   - object keys sorted by code point at every nesting level
//   - separators "," and ":" with no insignificant whitespace
//   - strings ASCII-only, everything outside 0x20..0x7e escaped as \uXXXX
//   - floats in shortest round-trip form, always carrying a fraction or an
//     exponent (1.0, 0.85, 1e-05, 1e+16)
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrUnsupported reports a value that has no canonical form.
//
// Callers treat it as a programming error: asset content is assembled
// locally and must only contain JSON-representable values.
var ErrUnsupported = errors.New("canonical: unsupported value")

const maxDepth = 256

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustMarshal is like Marshal but panics on error.
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

func encode(buf *bytes.Buffer, v any, depth int) error {
	if depth > maxDepth {
		return unsupported("nesting deeper than %d", maxDepth)
	}
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		return writeString(buf, x)
	case json.Number:
		return writeNumber(buf, x)
	case float64:
		return writeFloat(buf, x)
	case float32:
		return writeFloat(buf, float64(x))
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
		return nil
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
		return nil
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
		return nil
	case map[string]any:
		return writeObject(buf, len(x), func(yield func(string, any) error) error {
			for _, k := range sortedKeys(x) {
				if err := yield(k, x[k]); err != nil {
					return err
				}
			}
			return nil
		}, depth)
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case []string:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}
	return encodeReflect(buf, reflect.ValueOf(v), depth)
}

func encodeReflect(buf *bytes.Buffer, rv reflect.Value, depth int) error {
	if _, ok := rv.Interface().(json.Marshaler); ok {
		return encodeViaJSON(buf, rv.Interface(), depth)
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return encode(buf, rv.Elem().Interface(), depth+1)
	case reflect.Bool:
		return encode(buf, rv.Bool(), depth)
	case reflect.String:
		return writeString(buf, rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return writeFloat(buf, rv.Float())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return unsupported("map key type %s", rv.Type().Key())
		}
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return writeObject(buf, len(keys), func(yield func(string, any) error) error {
			for _, k := range keys {
				kv := reflect.ValueOf(k).Convert(rv.Type().Key())
				if err := yield(k, rv.MapIndex(kv).Interface()); err != nil {
					return err
				}
			}
			return nil
		}, depth)
	case reflect.Slice:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return encodeViaJSON(buf, rv.Interface(), depth)
		}
		fallthrough
	case reflect.Array:
		buf.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, rv.Index(i).Interface(), depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case reflect.Struct:
		return encodeViaJSON(buf, rv.Interface(), depth)
	default:
		return unsupported("kind %s", rv.Kind())
	}
}

// encodeViaJSON normalizes values with custom JSON behaviour (structs, tags,
// Marshaler implementations) into the generic tree and encodes that.
func encodeViaJSON(buf *bytes.Buffer, v any, depth int) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return unsupported("%v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return unsupported("%v", err)
	}
	return encode(buf, tree, depth+1)
}

func writeObject(buf *bytes.Buffer, n int, each func(yield func(string, any) error) error, depth int) error {
	buf.WriteByte('{')
	i := 0
	err := each(func(k string, v any) error {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		return encode(buf, v, depth+1)
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return unsupported("invalid UTF-8 in string")
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if r >= 0x20 && r <= 0x7e {
				buf.WriteByte(byte(r))
				continue
			}
			if r > 0xffff {
				hi, lo := utf16.EncodeRune(r)
				writeEscape(buf, hi)
				writeEscape(buf, lo)
				continue
			}
			writeEscape(buf, r)
		}
	}
	buf.WriteByte('"')
	return nil
}

func writeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xf])
	buf.WriteByte(hexDigits[(r>>8)&0xf])
	buf.WriteByte(hexDigits[(r>>4)&0xf])
	buf.WriteByte(hexDigits[r&0xf])
}

func writeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		f, err := n.Float64()
		if err != nil {
			return unsupported("number %q", s)
		}
		return writeFloat(buf, f)
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(s, 10, 64)
		if uerr != nil {
			return unsupported("number %q", s)
		}
		buf.WriteString(strconv.FormatUint(u, 10))
		return nil
	}
	buf.WriteString(strconv.FormatInt(i, 10))
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	s, err := FormatFloat(f)
	if err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

// FormatFloat renders f the way the canonical encoding does.
func FormatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", unsupported("non-finite float %v", f)
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0", nil
		}
		return "0.0", nil
	}

	// Shortest round-trip digits, then laid out by decimal exponent.
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(sci, "e")
	exp, err := strconv.Atoi(expStr)
	if err != nil {
		return "", unsupported("float %v", f)
	}
	neg := strings.HasPrefix(mant, "-")
	mant = strings.TrimPrefix(mant, "-")
	digits := strings.Replace(mant, ".", "", 1)

	var out string
	switch {
	case exp >= 16 || exp < -4:
		m := digits[:1]
		if len(digits) > 1 {
			m += "." + digits[1:]
		}
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		out = fmt.Sprintf("%se%s%02d", m, sign, exp)
	case exp < 0:
		out = "0." + strings.Repeat("0", -exp-1) + digits
	case len(digits) <= exp+1:
		out = digits + strings.Repeat("0", exp+1-len(digits)) + ".0"
	default:
		out = digits[:exp+1] + "." + digits[exp+1:]
	}
	if neg {
		out = "-" + out
	}
	return out, nil
}
