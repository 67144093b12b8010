package gep

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// PayloadKey is the field some exchange versions nest response data under.
const PayloadKey = "payload"

// Response is a decoded exchange reply. Object replies populate Body; list
// replies (some fetch variants) populate Items.
type Response struct {
	Body  map[string]any
	Items []any
}

var ErrNotJSON = errors.New("gep: response is not a JSON object or array")

// DecodeResponse parses a reply body. Numbers are kept as json.Number.
func DecodeResponse(b []byte) (Response, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Response{Body: map[string]any{}}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Response{}, err
	}
	if dec.More() {
		return Response{}, ErrNotJSON
	}
	switch x := v.(type) {
	case map[string]any:
		return Response{Body: x}, nil
	case []any:
		return Response{Items: x}, nil
	default:
		return Response{}, ErrNotJSON
	}
}

// Nested returns the object under "payload", if any.
func (r Response) Nested() map[string]any {
	if r.Body == nil {
		return nil
	}
	m, _ := r.Body[PayloadKey].(map[string]any)
	return m
}

// Lookup returns the first present key, checking the top level before the
// nested payload for each key in turn.
func (r Response) Lookup(keys ...string) (any, bool) {
	nested := r.Nested()
	for _, k := range keys {
		if v, ok := r.Body[k]; ok && v != nil {
			return v, true
		}
		if v, ok := nested[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first non-empty string value among keys. Empty or
// non-string values are skipped in favour of later keys.
func (r Response) String(keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := r.Lookup(k)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// Int returns the first integral value among keys.
func (r Response) Int(keys ...string) (int64, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return 0, false
	}
	return AsInt(v)
}

// List returns the first array value among keys, or Items for list replies.
func (r Response) List(keys ...string) ([]any, bool) {
	if r.Items != nil {
		return r.Items, true
	}
	v, ok := r.Lookup(keys...)
	if !ok {
		return nil, false
	}
	l, ok := v.([]any)
	return l, ok
}

// AsInt converts decoded JSON numbers (and numeric strings) to int64.
func AsInt(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case string:
		if i, err := strconv.ParseInt(x, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
