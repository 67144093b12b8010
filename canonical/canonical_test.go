package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func TestMarshal_SortsKeysAtEveryDepth(t *testing.T) {
	v := map[string]any{
		"b": 1,
		"a": map[string]any{
			"d": []any{1, 2, map[string]any{"z": true, "y": nil}},
			"c": "x",
		},
	}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":{"c":"x","d":[1,2,{"y":null,"z":true}]},"b":1}`
	if string(got) != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}
}

func TestMarshal_InsertionOrderInvariant(t *testing.T) {
	docs := []string{
		`{"name":"g","content":{"genre":"x","elements":["a","b"],"meta":{"k":1,"j":2}},"confidence":0.5}`,
		`{"confidence":0.5,"content":{"meta":{"j":2,"k":1},"elements":["a","b"],"genre":"x"},"name":"g"}`,
		`{"content":{"elements":["a","b"],"meta":{"k":1,"j":2},"genre":"x"},"name":"g","confidence":0.5}`,
	}
	var first []byte
	for i, d := range docs {
		got, err := Marshal(decodeJSON(t, d))
		if err != nil {
			t.Fatalf("Marshal(%d): %v", i, err)
		}
		if i == 0 {
			first = got
			continue
		}
		if !bytes.Equal(first, got) {
			t.Fatalf("doc %d differs:\n%s\n%s", i, first, got)
		}
	}
}

func TestMarshal_StructMatchesMap(t *testing.T) {
	type content struct {
		Genre    string   `json:"genre"`
		Elements []string `json:"elements"`
	}
	a, err := Marshal(content{Genre: "都市", Elements: []string{"职场", "甜宠"}})
	if err != nil {
		t.Fatalf("Marshal struct: %v", err)
	}
	b, err := Marshal(map[string]any{"elements": []any{"职场", "甜宠"}, "genre": "都市"})
	if err != nil {
		t.Fatalf("Marshal map: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("struct and map encodings differ:\n%s\n%s", a, b)
	}
	want := `{"elements":["\u804c\u573a","\u751c\u5ba0"],"genre":"\u90fd\u5e02"}`
	if string(a) != want {
		t.Fatalf("got %s want %s", a, want)
	}
}

func TestMarshal_StringEscapes(t *testing.T) {
	got, err := Marshal("a\u007f\x01😀\"\\\n")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `"a\u007f\u0001\ud83d\ude00\"\\\n"`
	if string(got) != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestFormatFloat(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1.0, "1.0"},
		{0.85, "0.85"},
		{1e16, "1e+16"},
		{1e15, "1000000000000000.0"},
		{0.0001, "0.0001"},
		{0.00001, "1e-05"},
		{1.5e-7, "1.5e-07"},
		{-2.5, "-2.5"},
		{123456789.125, "123456789.125"},
		{1e22, "1e+22"},
		{math.Nextafter(0.3, 1), "0.30000000000000004"},
		{0, "0.0"},
	}
	for _, tc := range cases {
		got, err := FormatFloat(tc.in)
		if err != nil {
			t.Fatalf("FormatFloat(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("FormatFloat(%v) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestMarshal_NumbersKeepIntegerForm(t *testing.T) {
	got, err := Marshal(decodeJSON(t, `{"i":500,"f":0.9,"g":2.0}`))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"f":0.9,"g":2.0,"i":500}` {
		t.Fatalf("got %s", got)
	}
}

func TestMarshal_RejectsUnsupported(t *testing.T) {
	bad := []any{
		math.NaN(),
		math.Inf(1),
		map[int]string{1: "x"},
		make(chan int),
		string([]byte{0xff, 0xfe}),
	}
	for i, v := range bad {
		if _, err := Marshal(v); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("case %d: expected ErrUnsupported, got %v", i, err)
		}
	}
}

func TestMustMarshal_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustMarshal(math.NaN())
}
