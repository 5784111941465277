package client

import (
	"reflect"
	"testing"
)

func seededController() *Controller {
	c := NewController()
	c.LoadMessages([]Message{
		{Seq: 0, Role: "human", Content: "H1"},
		{Seq: 1, Role: "ai", Content: "A1"},
		{Seq: 2, Role: "human", Content: "H2"},
		{Seq: 3, Role: "ai", Content: "A2"},
	})
	return c
}

func TestPreview_RoundTripRestoresLiveView(t *testing.T) {
	c := seededController()
	before := append([]DisplayMessage(nil), c.Messages...)

	ck := Checkpoint{
		CheckpointID: "ck1",
		Messages: []StateMessage{
			{Role: "human", Content: "H1"},
			{Role: "ai", Content: "A1"},
		},
	}
	c.Preview(ck)
	if len(c.Messages) != 2 {
		t.Fatalf("preview should show checkpoint state, got %d messages", len(c.Messages))
	}
	if !c.Previewing() || c.Selected() == nil || c.Selected().CheckpointID != "ck1" {
		t.Fatalf("selection not tracked")
	}

	c.ExitPreview()
	if c.Previewing() {
		t.Fatalf("still previewing after exit")
	}
	if !reflect.DeepEqual(c.Messages, before) {
		t.Fatalf("live view not restored exactly:\nbefore=%+v\nafter=%+v", before, c.Messages)
	}
}

func TestPreview_SwitchingCheckpointsKeepsSavedLiveView(t *testing.T) {
	c := seededController()
	before := append([]DisplayMessage(nil), c.Messages...)

	c.Preview(Checkpoint{CheckpointID: "ck1", Messages: []StateMessage{{Role: "human", Content: "H1"}}})
	c.Preview(Checkpoint{CheckpointID: "ck2", Messages: []StateMessage{{Role: "human", Content: "other"}}})

	if c.Selected().CheckpointID != "ck2" {
		t.Fatalf("selection not updated")
	}
	c.ExitPreview()
	if !reflect.DeepEqual(c.Messages, before) {
		t.Fatalf("live view lost across preview switch")
	}
}

func TestBeginTurn_PlainSend(t *testing.T) {
	c := seededController()

	ckID := c.BeginTurn("H3")
	if ckID != "" {
		t.Fatalf("plain send should not report a fork checkpoint, got %q", ckID)
	}
	n := len(c.Messages)
	if n != 6 {
		t.Fatalf("expected human+placeholder appended, got %d messages", n)
	}
	if c.Messages[n-2].Content != "H3" || !c.Messages[n-1].Streaming {
		t.Fatalf("staged turn malformed: %+v", c.Messages[n-2:])
	}
}

func TestBeginTurn_WhilePreviewingForks(t *testing.T) {
	c := seededController()
	c.Preview(Checkpoint{
		CheckpointID: "ck1",
		Messages: []StateMessage{
			{Role: "human", Content: "H1"},
			{Role: "ai", Content: "A1"},
		},
	})

	ckID := c.BeginTurn("H2b")
	if ckID != "ck1" {
		t.Fatalf("expected fork checkpoint id, got %q", ckID)
	}
	if c.Previewing() {
		t.Fatalf("turn should leave preview mode")
	}
	// preview became the live base: checkpoint state + new turn
	if len(c.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(c.Messages))
	}
	if c.Messages[2].Content != "H2b" {
		t.Fatalf("new input not staged after adopted preview: %+v", c.Messages)
	}
}

func TestBeginEdit_TruncatesDisplay(t *testing.T) {
	c := seededController()

	c.BeginEdit(2, "H2b")
	if len(c.Messages) != 4 {
		t.Fatalf("expected 4 messages after edit staging, got %d", len(c.Messages))
	}
	if c.Messages[0].Content != "H1" || c.Messages[1].Content != "A1" {
		t.Fatalf("prefix not kept: %+v", c.Messages[:2])
	}
	if c.Messages[2].Content != "H2b" || !c.Messages[3].Streaming {
		t.Fatalf("replacement turn not staged: %+v", c.Messages[2:])
	}
}

func TestApply_TokensThenDone(t *testing.T) {
	c := seededController()
	c.BeginTurn("H3")

	if c.Apply(Progress{"Progress": "Generating response ..."}) {
		t.Fatalf("progress must not terminate")
	}
	if c.Status == "" {
		t.Fatalf("progress not surfaced")
	}
	c.Apply(Token("He"))
	c.Apply(Token("llo"))
	if !c.Apply(Done{}) {
		t.Fatalf("done must terminate")
	}

	last := c.Messages[len(c.Messages)-1]
	if last.Content != "Hello" || last.Streaming {
		t.Fatalf("reply not finalized: %+v", last)
	}
	if c.Status != "" {
		t.Fatalf("status should clear on done")
	}
}

func TestApply_FullMessage(t *testing.T) {
	c := seededController()
	c.BeginTurn("H3")

	c.Apply(FullMessage("complete reply"))
	c.Apply(Done{})

	last := c.Messages[len(c.Messages)-1]
	if last.Content != "complete reply" {
		t.Fatalf("full message not applied: %+v", last)
	}
}

func TestApply_ErrorRendersInlineAndKeepsHumanMessage(t *testing.T) {
	c := seededController()
	c.BeginTurn("H3")

	if !c.Apply(StreamError("upstream down")) {
		t.Fatalf("error must terminate")
	}
	if c.Err != "upstream down" {
		t.Fatalf("error not surfaced: %q", c.Err)
	}
	last := c.Messages[len(c.Messages)-1]
	if last.Streaming {
		t.Fatalf("streaming flag should clear on error")
	}
	// the failed AI turn renders as an inline error, not a gap
	if last.Role != "ai" || last.Content != "Error: upstream down" {
		t.Fatalf("inline error not rendered: %+v", last)
	}
	human := c.Messages[len(c.Messages)-2]
	if human.Role != "human" || human.Content != "H3" {
		t.Fatalf("human message must survive the failure: %+v", human)
	}
}
