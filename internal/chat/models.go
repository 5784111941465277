package chat

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Thread is one conversation container. It owns messages and is the root
// for checkpoint lineages.
type Thread struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"size:64;index;not null" json:"user_id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Thread) TableName() string { return "threads" }

// Attachment is file metadata stored on the human message that carried it.
// Never mutated after the message is created.
type Attachment struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	S3Key       string `json:"s3_key,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// Message is one durable turn in the mutable display table. Seq is the
// stable position within the thread; truncation deletes from an index on.
type Message struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID    string         `gorm:"size:64;not null;index;index:uniq_msg_seq,unique,priority:1" json:"thread_id"`
	UserID      string         `gorm:"size:64" json:"user_id"`
	Seq         int            `gorm:"not null;index:uniq_msg_seq,unique,priority:2" json:"seq"`
	Role        string         `gorm:"size:16;not null" json:"role"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	Attachments datatypes.JSON `json:"attachments"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) AttachmentList() []Attachment {
	if len(m.Attachments) == 0 {
		return nil
	}
	var atts []Attachment
	if err := json.Unmarshal(m.Attachments, &atts); err != nil {
		return nil
	}
	return atts
}

func encodeAttachments(atts []Attachment) (datatypes.JSON, error) {
	if atts == nil {
		atts = []Attachment{}
	}
	b, err := json.Marshal(atts)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
