package ai

import "context"

// Message is one turn of provider-visible conversation context.
// Content may be multimodal; Images holds base64 data URLs appended to the
// turn when the provider supports vision input.
type Message struct {
	Role    string
	Content string
	Images  []string
}

// Provider generates one complete reply for the given context.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}
