package checkpoint

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// StateMessage is one role/content pair of the history visible at a
// checkpoint. Checkpoints copy conversation content instead of referencing
// the mutable message table, so edits and truncation never rewrite history.
type StateMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Checkpoint is an immutable snapshot of agent-visible state at one step.
// Rows are append-only; forks create new descendants of existing rows.
type Checkpoint struct {
	CheckpointID       string         `gorm:"primaryKey;size:26" json:"checkpoint_id"`
	ThreadID           string         `gorm:"size:64;index;not null;index:uniq_ckpt_lineage,unique,priority:1" json:"thread_id"`
	Namespace          string         `gorm:"size:128;not null;default:'';index:uniq_ckpt_lineage,unique,priority:2" json:"checkpoint_ns"`
	ParentCheckpointID *string        `gorm:"size:26;index" json:"parent_checkpoint_id"`
	// ParentKey mirrors ParentCheckpointID with "" for roots. Unique indexes
	// treat NULLs as distinct, so the lineage key needs a non-null column or
	// the database would accept two conflicting roots at the same slot.
	ParentKey string         `gorm:"size:26;not null;default:'';index:uniq_ckpt_lineage,unique,priority:3" json:"-"`
	Step      int            `gorm:"not null;index:uniq_ckpt_lineage,unique,priority:4" json:"step"`
	Messages  datatypes.JSON `gorm:"not null" json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Checkpoint) TableName() string { return "checkpoints" }

// State decodes the snapshot's message history.
func (c *Checkpoint) State() ([]StateMessage, error) {
	if len(c.Messages) == 0 {
		return nil, nil
	}
	var msgs []StateMessage
	if err := json.Unmarshal(c.Messages, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func encodeState(msgs []StateMessage) (datatypes.JSON, error) {
	if msgs == nil {
		msgs = []StateMessage{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
