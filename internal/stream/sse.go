package stream

import (
	"fmt"
	"io"
	"net/http"
)

// SSEWriter frames events as server-sent-events records: one "data:" line
// holding the JSON wire form, frames separated by a blank line.
type SSEWriter struct {
	w io.Writer
	f http.Flusher
}

func NewSSEWriter(w io.Writer, f http.Flusher) *SSEWriter {
	return &SSEWriter{w: w, f: f}
}

func (s *SSEWriter) Write(ev Event) error {
	b, err := Encode(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// Heartbeat writes an SSE comment line to keep idle connections open.
func (s *SSEWriter) Heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
