package gep

import "testing"

func TestDecodeResponse_Shapes(t *testing.T) {
	r, err := DecodeResponse([]byte(`{"sender_id":"node_abc","payload":{"credit_balance":480}}`))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if id, ok := r.String("sender_id", "node_id"); !ok || id != "node_abc" {
		t.Fatalf("sender_id = %q %v", id, ok)
	}
	if c, ok := r.Int("credits", "credit_balance"); !ok || c != 480 {
		t.Fatalf("credits = %d %v", c, ok)
	}

	r, err = DecodeResponse([]byte(`[{"task_id":"t1"}]`))
	if err != nil {
		t.Fatalf("DecodeResponse list: %v", err)
	}
	items, ok := r.List("tasks")
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v", items)
	}

	r, err = DecodeResponse(nil)
	if err != nil || r.Body == nil {
		t.Fatalf("empty body should decode to empty object: %v", err)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	for _, in := range []string{`<html>`, `"text"`, `{"a":1} {"b":2}`, `{"a":`} {
		if _, err := DecodeResponse([]byte(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestLookup_PrefersTopLevel(t *testing.T) {
	r, _ := DecodeResponse([]byte(`{"credits":500,"payload":{"credits":480}}`))
	v, _ := r.Int("credits")
	if v != 500 {
		t.Fatalf("got %d", v)
	}
}

func TestString_SkipsEmptyValues(t *testing.T) {
	r, _ := DecodeResponse([]byte(`{"sender_id":"","node_id":"node_x"}`))
	if id, ok := r.String("sender_id", "node_id"); !ok || id != "node_x" {
		t.Fatalf("id = %q %v", id, ok)
	}

	r, _ = DecodeResponse([]byte(`{"sender_id":7,"payload":{"node_id":"node_y"}}`))
	if id, ok := r.String("sender_id", "node_id"); !ok || id != "node_y" {
		t.Fatalf("id = %q %v", id, ok)
	}

	r, _ = DecodeResponse([]byte(`{"sender_id":""}`))
	if id, ok := r.String("sender_id", "node_id"); ok {
		t.Fatalf("expected no id, got %q", id)
	}
}
