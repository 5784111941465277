package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/lumosgraph/backend/internal/ai"
)

type cannedProvider struct {
	reply string
	last  []ai.Message
}

func (p *cannedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	p.last = append([]ai.Message(nil), messages...)
	return p.reply, nil
}

func TestGate_ApprovesOnYes(t *testing.T) {
	prov := &cannedProvider{reply: "Yes."}
	g := NewGate(prov, "gaming")

	res, err := g.Classify(context.Background(),
		[]ai.Message{{Role: "user", Content: "best rpg this year?"}}, "")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !res.Approved {
		t.Fatalf("expected approval")
	}
	if res.Rejection != "" {
		t.Fatalf("approved result should carry no rejection text")
	}
	if prov.last[0].Role != "system" || !strings.Contains(prov.last[0].Content, "gaming") {
		t.Fatalf("system prompt missing domain: %+v", prov.last[0])
	}
}

func TestGate_RejectsOnNo(t *testing.T) {
	g := NewGate(&cannedProvider{reply: "no"}, "gaming")

	res, err := g.Classify(context.Background(),
		[]ai.Message{{Role: "user", Content: "tax advice please"}}, "")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Approved {
		t.Fatalf("expected rejection")
	}
	if !strings.Contains(res.Rejection, "gaming") {
		t.Fatalf("rejection should name the domain: %q", res.Rejection)
	}
}

func TestGate_DocSummaryReachesPrompt(t *testing.T) {
	prov := &cannedProvider{reply: "yes"}
	g := NewGate(prov, "gaming")

	if _, err := g.Classify(context.Background(),
		[]ai.Message{{Role: "user", Content: "summarize page 2"}},
		"[FILE: rules.pdf]\n[Page 1] setup instructions"); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.Contains(prov.last[0].Content, "rules.pdf") {
		t.Fatalf("document summary not in system prompt")
	}
}
