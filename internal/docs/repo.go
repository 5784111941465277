package docs

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Provider is the narrow contract the orchestrator consumes: the document
// context for a thread, or nothing. Absence is a valid, common case.
type Provider interface {
	ChunksForThread(ctx context.Context, threadID string) ([]Chunk, error)
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// NewChunk builds an unsaved chunk row.
func NewChunk(threadID, userID, filename string, pageNum, chunkIndex int, content string, imageKeys []string) (Chunk, error) {
	if imageKeys == nil {
		imageKeys = []string{}
	}
	keys, err := json.Marshal(imageKeys)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{
		ThreadID:   threadID,
		UserID:     userID,
		Filename:   filename,
		PageNum:    pageNum,
		ChunkIndex: chunkIndex,
		Content:    content,
		ImageKeys:  datatypes.JSON(keys),
	}, nil
}

// SaveChunks upserts extraction output. Re-processing a file overwrites its
// chunks in place instead of duplicating them.
func (r *Repo) SaveChunks(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "thread_id"}, {Name: "filename"}, {Name: "page_num"}, {Name: "chunk_index"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"content", "image_keys", "created_at"}),
	}).Create(&chunks).Error
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (r *Repo) ChunksForThread(ctx context.Context, threadID string) ([]Chunk, error) {
	var out []Chunk
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("filename").
		Order("page_num").
		Order("chunk_index").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ChunksForFile(ctx context.Context, threadID, filename string) ([]Chunk, error) {
	var out []Chunk
	if err := r.db.WithContext(ctx).
		Where("thread_id = ? AND filename = ?", threadID, filename).
		Order("page_num").
		Order("chunk_index").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) DeleteFile(ctx context.Context, threadID, filename string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("thread_id = ? AND filename = ?", threadID, filename).
		Delete(&Chunk{})
	return res.RowsAffected, res.Error
}

func (r *Repo) DeleteThread(ctx context.Context, threadID string) error {
	return r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Delete(&Chunk{}).Error
}

// FileStatus is the poll target after an upload: processed flips true once
// the worker has written at least one chunk.
func (r *Repo) FileStatus(ctx context.Context, threadID, filename string) (Status, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&Chunk{}).
		Where("thread_id = ? AND filename = ?", threadID, filename).
		Count(&count).Error; err != nil {
		return Status{}, err
	}
	return Status{Processed: count > 0, ChunkCount: int(count)}, nil
}
