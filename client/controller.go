package client

// DisplayMessage is one entry of the rendered conversation. Streaming marks
// the in-flight assistant reply that tokens append to.
type DisplayMessage struct {
	Role      string
	Content   string
	Streaming bool
}

// Controller tracks what a chat UI should render: the message list, the
// in-flight reply, progress status, and checkpoint previews. Preview is a
// pure overlay: entering and leaving it restores the live view exactly, and
// preview content never leaks into the live list unless the user forks.
type Controller struct {
	Messages []DisplayMessage
	Status   string
	Err      string

	previewing bool
	live       []DisplayMessage
	selected   *Checkpoint
}

func NewController() *Controller {
	return &Controller{}
}

// LoadMessages seeds the live view from the server's message table.
func (c *Controller) LoadMessages(msgs []Message) {
	c.Messages = c.Messages[:0]
	for _, m := range msgs {
		c.Messages = append(c.Messages, DisplayMessage{Role: m.Role, Content: m.Content})
	}
	c.previewing = false
	c.selected = nil
	c.live = nil
}

// Preview swaps the display to a checkpoint's recorded state, saving the
// live view for restoration. Previewing another checkpoint replaces the
// overlay without touching the saved live view.
func (c *Controller) Preview(ck Checkpoint) {
	if !c.previewing {
		c.live = c.Messages
		c.previewing = true
	}
	view := make([]DisplayMessage, 0, len(ck.Messages))
	for _, m := range ck.Messages {
		view = append(view, DisplayMessage{Role: m.Role, Content: m.Content})
	}
	c.Messages = view
	c.selected = &ck
}

// ExitPreview restores the live view exactly as it was.
func (c *Controller) ExitPreview() {
	if !c.previewing {
		return
	}
	c.Messages = c.live
	c.live = nil
	c.previewing = false
	c.selected = nil
}

func (c *Controller) Previewing() bool { return c.previewing }

func (c *Controller) Selected() *Checkpoint { return c.selected }

// BeginTurn stages a new turn in the display: the user's message followed by
// the streaming placeholder. When a checkpoint is being previewed the
// preview becomes the new live base and the returned checkpoint id is
// non-empty; the caller should issue a Fork with it instead of a Send.
func (c *Controller) BeginTurn(message string) (checkpointID string) {
	if c.previewing {
		checkpointID = c.selected.CheckpointID
		// the previewed state is adopted as the new live view
		c.live = nil
		c.previewing = false
		c.selected = nil
	}
	c.Err = ""
	c.Status = ""
	c.Messages = append(c.Messages,
		DisplayMessage{Role: "human", Content: message},
		DisplayMessage{Role: "ai", Streaming: true},
	)
	return checkpointID
}

// BeginEdit truncates the display to positions [0, index) and stages the
// replacement turn. Mirrors the server-side truncation the edit endpoint
// performs.
func (c *Controller) BeginEdit(index int, message string) {
	if c.previewing {
		c.ExitPreview()
	}
	if index < 0 {
		index = 0
	}
	if index < len(c.Messages) {
		c.Messages = c.Messages[:index]
	}
	c.Err = ""
	c.Status = ""
	c.Messages = append(c.Messages,
		DisplayMessage{Role: "human", Content: message},
		DisplayMessage{Role: "ai", Streaming: true},
	)
}

// Apply folds one stream event into the display state and reports whether
// the turn is over.
func (c *Controller) Apply(ev Event) (terminal bool) {
	switch v := ev.(type) {
	case Progress:
		for _, text := range v {
			c.Status = text
		}
	case Token:
		if m := c.placeholder(); m != nil {
			m.Content += string(v)
		}
	case FullMessage:
		if m := c.placeholder(); m != nil {
			m.Content = string(v)
		}
	case Done:
		if m := c.placeholder(); m != nil {
			m.Streaming = false
		}
		c.Status = ""
		return true
	case StreamError:
		// The reply never arrived; an inline error takes its place and the
		// user's message stays so the turn can be retried or edited.
		if m := c.placeholder(); m != nil {
			m.Content = "Error: " + string(v)
			m.Streaming = false
		}
		c.Status = ""
		c.Err = string(v)
		return true
	}
	return false
}

func (c *Controller) placeholder() *DisplayMessage {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Streaming {
			return &c.Messages[i]
		}
	}
	return nil
}
