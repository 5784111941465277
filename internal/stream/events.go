package stream

import (
	"encoding/json"
	"fmt"
)

// Event is one record on the chat stream. The concrete types below are the
// only implementations; each carries its own payload shape.
type Event interface {
	Type() string
}

// Progress carries a human-readable status map emitted between pipeline steps.
type Progress map[string]string

// Token is one incremental text fragment to append to the in-flight reply.
type Token string

// Message is a full, non-incremental reply payload. Used when the generation
// step cannot stream.
type Message string

// Done terminates a successful stream.
type Done struct{}

// Error terminates a failed stream. Mutually exclusive with Done.
type Error string

func (Progress) Type() string { return "progress" }
func (Token) Type() string    { return "token" }
func (Message) Type() string  { return "message" }
func (Done) Type() string     { return "done" }
func (Error) Type() string    { return "error" }

type wireEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Encode renders an event as its wire form {type, content}. Content is a
// string-keyed map for progress, plain text for token/message/error, and
// absent for done.
func Encode(ev Event) ([]byte, error) {
	w := wireEvent{Type: ev.Type()}
	switch v := ev.(type) {
	case Progress:
		b, err := json.Marshal(map[string]string(v))
		if err != nil {
			return nil, err
		}
		w.Content = b
	case Token:
		b, _ := json.Marshal(string(v))
		w.Content = b
	case Message:
		b, _ := json.Marshal(string(v))
		w.Content = b
	case Error:
		b, _ := json.Marshal(string(v))
		w.Content = b
	case Done:
	default:
		return nil, fmt.Errorf("stream: unknown event type %T", ev)
	}
	return json.Marshal(w)
}

// Decode parses a wire record back into its typed event.
func Decode(data []byte) (Event, error) {
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
		return Message(s), nil
	case "done":
		return Done{}, nil
	case "error":
		var s string
		if err := json.Unmarshal(w.Content, &s); err != nil {
			return nil, err
		}
		return Error(s), nil
	}
	return nil, fmt.Errorf("stream: unknown event type %q", w.Type)
}

// Terminal reports whether the event closes the stream.
func Terminal(ev Event) bool {
	switch ev.(type) {
	case Done, Error:
		return true
	}
	return false
}
