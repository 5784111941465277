package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseHandler(t *testing.T, frames []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			f.Flush()
		}
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestSend_ParsesStream(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"type":"progress","content":{"Progress":"Approved query"}}`,
		`{"type":"token","content":"He"}`,
		`{"type":"token","content":"llo"}`,
		`{"type":"done"}`,
	}))
	defer srv.Close()

	c := New(srv.URL, "u1")
	events, err := c.Send(context.Background(), "t1", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	evs := collect(t, events)

	if len(evs) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(evs), evs)
	}
	if _, okk := evs[0].(Progress); !okk {
		t.Fatalf("expected progress first, got %T", evs[0])
	}
	var text string
	for _, ev := range evs {
		if tok, okk := ev.(Token); okk {
			text += string(tok)
		}
	}
	if text != "Hello" {
		t.Fatalf("tokens mangled: %q", text)
	}
	if _, okk := evs[len(evs)-1].(Done); !okk {
		t.Fatalf("expected done last, got %T", evs[len(evs)-1])
	}
}

func TestSend_HeartbeatsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message\",\"content\":\"hi\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"done\"}\n\n")
		f.Flush()
	}))
	defer srv.Close()

	c := New(srv.URL, "u1")
	events, err := c.Send(context.Background(), "t1", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	evs := collect(t, events)
	if len(evs) != 2 {
		t.Fatalf("heartbeat leaked into events: %+v", evs)
	}
}

func TestSend_TruncatedStreamReportsError(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"type":"token","content":"He"}`,
		// connection ends without done/error
	}))
	defer srv.Close()

	c := New(srv.URL, "u1")
	events, err := c.Send(context.Background(), "t1", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	evs := collect(t, events)
	if _, okk := evs[len(evs)-1].(StreamError); !okk {
		t.Fatalf("expected trailing StreamError, got %T", evs[len(evs)-1])
	}
}

func TestSend_NonStreamErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"code": 40404, "message": "checkpoint not found", "data": nil,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "u1")
	if _, err := c.Fork(context.Background(), "t1", "missing", "hi"); err == nil {
		t.Fatalf("expected error for non-stream response")
	}
}

func TestHistory_DecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/threads/t1/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0, "message": "ok",
			"data": map[string]any{
				"checkpoints": []map[string]any{{
					"checkpoint_id": "ck1",
					"step":          1,
					"message_count": 4,
					"messages": []map[string]string{
						{"role": "human", "content": "H1"},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "u1")
	cks, err := c.History(context.Background(), "t1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(cks) != 1 || cks[0].CheckpointID != "ck1" || cks[0].Step != 1 {
		t.Fatalf("unexpected checkpoints: %+v", cks)
	}
}
