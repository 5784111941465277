package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumosgraph/backend/internal/ai"
)

// GateResult is the outcome of the domain gate. A rejected query carries
// the canned reply that is streamed and recorded in place of a generated
// answer.
type GateResult struct {
	Approved  bool
	Rejection string
}

// Gate decides whether a query belongs to the assistant's domain before the
// expensive generation step runs.
type Gate interface {
	Classify(ctx context.Context, history []ai.Message, docSummary string) (GateResult, error)
}

const gateSystemPrompt = `You are a strict classifier. Decide whether the user's latest query is related to %s.
Consider the conversation so far. Answer with a single word: "yes" if the query is related to %s, "no" otherwise.`

const gateDocContextPrompt = `

The user has uploaded documents. If the query asks about their content and that content is related to %s, answer "yes".

DOCUMENT CONTEXT:
%s`

const rejectionTemplate = "I'm sorry, but I can only help with %s-related queries. Please ask me about %s!"

// providerGate runs the classification on the configured LLM provider.
type providerGate struct {
	provider ai.Provider
	domain   string
}

func NewGate(provider ai.Provider, domain string) Gate {
	if domain == "" {
		domain = "gaming"
	}
	return &providerGate{provider: provider, domain: domain}
}

func (g *providerGate) Classify(ctx context.Context, history []ai.Message, docSummary string) (GateResult, error) {
	system := fmt.Sprintf(gateSystemPrompt, g.domain, g.domain)
	if docSummary != "" {
		system += fmt.Sprintf(gateDocContextPrompt, g.domain, docSummary)
	}

	msgs := make([]ai.Message, 0, len(history)+1)
	msgs = append(msgs, ai.Message{Role: "system", Content: system})
	msgs = append(msgs, history...)

	reply, err := g.provider.Chat(ctx, msgs)
	if err != nil {
		return GateResult{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	approved := strings.Contains(strings.ToLower(reply), "yes")
	res := GateResult{Approved: approved}
	if !approved {
		res.Rejection = fmt.Sprintf(rejectionTemplate, g.domain, g.domain)
	}
	return res, nil
}

// AllowAllGate skips classification entirely.
type AllowAllGate struct{}

func (AllowAllGate) Classify(ctx context.Context, history []ai.Message, docSummary string) (GateResult, error) {
	return GateResult{Approved: true}, nil
}
