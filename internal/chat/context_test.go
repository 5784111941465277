package chat

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lumosgraph/backend/internal/checkpoint"
	"github.com/lumosgraph/backend/internal/docs"
	"github.com/lumosgraph/backend/internal/images"
	"github.com/lumosgraph/backend/internal/logger"
	"github.com/lumosgraph/backend/internal/stream"
)

func mustChunk(t *testing.T, filename string, page, idx int, content string, imgs []string) docs.Chunk {
	t.Helper()
	c, err := docs.NewChunk("t1", "u1", filename, page, idx, content, imgs)
	if err != nil {
		t.Fatalf("new chunk: %v", err)
	}
	return c
}

func TestBuildMessages_OrderAndRoles(t *testing.T) {
	comp := NewComposer(nil, images.NopCache{}, nil, logger.NewNop())

	base := []checkpoint.StateMessage{
		{Role: RoleHuman, Content: "H1"},
		{Role: RoleAI, Content: "A1"},
	}
	msgs, err := comp.BuildMessages(context.Background(), "t1", nil, base, "H2", func(stream.Progress) {})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected system + history + new message, got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Fatalf("first message must be system, got %q", msgs[0].Role)
	}
	if msgs[1].Role != "user" || msgs[2].Role != "assistant" {
		t.Fatalf("stored roles not mapped: %q %q", msgs[1].Role, msgs[2].Role)
	}
	if msgs[3].Role != "user" || msgs[3].Content != "H2" {
		t.Fatalf("new input must come last: %+v", msgs[3])
	}
}

func TestBuildMessages_DocumentContext(t *testing.T) {
	comp := NewComposer(nil, images.NopCache{}, nil, logger.NewNop())

	chunks := []docs.Chunk{
		mustChunk(t, "rules.txt", 0, 0, "setup instructions", nil),
		mustChunk(t, "rules.txt", 1, 0, "scoring table", nil),
	}
	var progressed bool
	msgs, err := comp.BuildMessages(context.Background(), "t1", chunks, nil, "how to score?",
		func(stream.Progress) { progressed = true })
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !progressed {
		t.Fatalf("document context should emit progress")
	}
	sys := msgs[0].Content
	if !strings.Contains(sys, "[FILE: rules.txt]") {
		t.Fatalf("file header missing:\n%s", sys)
	}
	if !strings.Contains(sys, "[Page 1]") || !strings.Contains(sys, "[Page 2]") {
		t.Fatalf("page headers missing (1-based):\n%s", sys)
	}
	if !strings.Contains(sys, "scoring table") {
		t.Fatalf("chunk content missing:\n%s", sys)
	}
}

func TestBuildGateSummary_FirstChunkPerPageClipped(t *testing.T) {
	long := strings.Repeat("x", 400)
	chunks := []docs.Chunk{
		mustChunk(t, "a.txt", 0, 0, long, nil),
		mustChunk(t, "a.txt", 0, 1, "second chunk same page", nil),
		mustChunk(t, "a.txt", 1, 0, "next page", nil),
	}

	sum := buildGateSummary(chunks)
	if strings.Contains(sum, "second chunk same page") {
		t.Fatalf("summary must keep only the first chunk per page:\n%s", sum)
	}
	if !strings.Contains(sum, "next page") {
		t.Fatalf("summary lost a page:\n%s", sum)
	}
	if !strings.Contains(sum, strings.Repeat("x", 300)+"...") {
		t.Fatalf("long content not clipped:\n%s", sum)
	}
	if strings.Contains(sum, strings.Repeat("x", 301)) {
		t.Fatalf("clip exceeded 300 chars:\n%s", sum)
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := deriveTitle("short"); got != "short" {
		t.Fatalf("short title mangled: %q", got)
	}
	long := strings.Repeat("a", 80)
	got := deriveTitle(long)
	if got != strings.Repeat("a", 50)+"..." {
		t.Fatalf("long title not truncated: %q", got)
	}
}

func TestClipRunes_MultiByteBoundary(t *testing.T) {
	long := strings.Repeat("ü", 80)
	got := clipRunes(long, 50)
	if !utf8.ValidString(got) {
		t.Fatalf("clip produced invalid UTF-8: %q", got)
	}
	if got != strings.Repeat("ü", 50)+"..." {
		t.Fatalf("clip cut mid-rune: %q", got)
	}
	if clipRunes("短い", 50) != "短い" {
		t.Fatalf("short input must pass through unchanged")
	}

	sum := buildGateSummary([]docs.Chunk{mustChunk(t, "a.txt", 0, 0, strings.Repeat("é", 400), nil)})
	if !utf8.ValidString(sum) {
		t.Fatalf("gate summary clipped to invalid UTF-8: %q", sum)
	}
}
