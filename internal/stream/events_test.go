package stream

import (
	"strings"
	"testing"
)

func TestEncode_WireShapes(t *testing.T) {
	cases := []struct {
		ev   Event
		want string
	}{
		{Progress{"Progress": "Generating response ..."}, `{"type":"progress","content":{"Progress":"Generating response ..."}}`},
		{Token("Hel"), `{"type":"token","content":"Hel"}`},
		{Message("full reply"), `{"type":"message","content":"full reply"}`},
		{Done{}, `{"type":"done"}`},
		{Error("boom"), `{"type":"error","content":"boom"}`},
	}
	for _, tc := range cases {
		b, err := Encode(tc.ev)
		if err != nil {
			t.Fatalf("encode %T: %v", tc.ev, err)
		}
		if string(b) != tc.want {
			t.Fatalf("encode %T: got %s, want %s", tc.ev, b, tc.want)
		}
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	events := []Event{
		Progress{"Progress": "Fetching images ..."},
		Token("a"),
		Message("b"),
		Done{},
		Error("c"),
	}
	for _, ev := range events {
		b, err := Encode(ev)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		back, err := Decode(b)
		if err != nil {
			t.Fatalf("decode %s: %v", b, err)
		}
		if back.Type() != ev.Type() {
			t.Fatalf("type mismatch: %s vs %s", back.Type(), ev.Type())
		}
	}
}

func TestDecode_UnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"mystery"}`)); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestTerminal(t *testing.T) {
	if Terminal(Token("x")) || Terminal(Progress{}) || Terminal(Message("m")) {
		t.Fatalf("non-terminal events reported terminal")
	}
	if !Terminal(Done{}) || !Terminal(Error("e")) {
		t.Fatalf("terminal events not reported terminal")
	}
}

type flushRecorder struct {
	strings.Builder
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestSSEWriter_Framing(t *testing.T) {
	var rec flushRecorder
	w := NewSSEWriter(&rec, &rec)

	if err := w.Write(Token("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	got := rec.String()
	if got != "data: {\"type\":\"token\",\"content\":\"hi\"}\n\n: ping\n\n" {
		t.Fatalf("unexpected framing: %q", got)
	}
	if rec.flushes != 2 {
		t.Fatalf("expected 2 flushes, got %d", rec.flushes)
	}
}
