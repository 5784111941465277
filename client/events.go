package client

import (
	"encoding/json"
	"fmt"
)

// Event is one record off the chat stream.
type Event interface {
	Type() string
}

// Progress is a status update emitted between pipeline steps.
type Progress map[string]string

// Token is one incremental fragment of the in-flight reply.
type Token string

// FullMessage is a complete reply delivered in one piece.
type FullMessage string

// Done terminates a successful stream.
type Done struct{}

// StreamError terminates a failed stream.
type StreamError string

func (Progress) Type() string    { return "progress" }
func (Token) Type() string       { return "token" }
func (FullMessage) Type() string { return "message" }
func (Done) Type() string        { return "done" }
func (StreamError) Type() string { return "error" }

// Terminal reports whether the event closes the stream.
func Terminal(ev Event) bool {
	switch ev.(type) {
	case Done, StreamError:
		return true
	}
	return false
}

type wireEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

func decodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "progress":
		var m map[string]string
		if err := json.Unmarshal(w.Content, &m); err != nil {
			return nil, err
		}
		return Progress(m), nil
	case "token":
		var s string
		if err := json.Unmarshal(w.Content, &s); err != nil {
			return nil, err
		}
		return Token(s), nil
	case "message":
		var s string
		if err := json.Unmarshal(w.Content, &s); err != nil {
			return nil, err
		}
		return FullMessage(s), nil
	case "done":
		return Done{}, nil
	case "error":
		var s string
		if err := json.Unmarshal(w.Content, &s); err != nil {
			return nil, err
		}
		return StreamError(s), nil
	}
	return nil, fmt.Errorf("client: unknown event type %q", w.Type)
}
