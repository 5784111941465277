package docs

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Chunk is one extracted slice of an uploaded document, keyed by
// thread+filename+page+index. The background worker writes these rows; the
// chat path only ever reads them.
type Chunk struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	ThreadID   string         `gorm:"size:64;not null;index;index:uniq_doc_chunk,unique,priority:1" json:"thread_id"`
	UserID     string         `gorm:"size:64;not null" json:"-"`
	Filename   string         `gorm:"size:255;not null;index:uniq_doc_chunk,unique,priority:2" json:"filename"`
	PageNum    int            `gorm:"not null;index:uniq_doc_chunk,unique,priority:3" json:"page_num"`
	ChunkIndex int            `gorm:"not null;index:uniq_doc_chunk,unique,priority:4" json:"chunk_index"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	ImageKeys  datatypes.JSON `json:"image_keys"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Chunk) TableName() string { return "document_chunks" }

func (c *Chunk) Images() []string {
	if len(c.ImageKeys) == 0 {
		return nil
	}
	var keys []string
	if err := json.Unmarshal(c.ImageKeys, &keys); err != nil {
		return nil
	}
	return keys
}

// Status reports whether a file's chunks have landed.
type Status struct {
	Processed  bool `json:"processed"`
	ChunkCount int  `json:"chunk_count"`
}
