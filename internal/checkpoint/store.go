package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/lumosgraph/backend/internal/ids"
	"github.com/lumosgraph/backend/internal/logger"
)

// Record is the input to Append.
type Record struct {
	ThreadID           string
	Namespace          string
	ParentCheckpointID *string
	Step               int
	Messages           []StateMessage
}

// Store is the durable, branchable snapshot log. All rows are immutable
// after creation, so concurrent forks from one parent need no locking; the
// lineage key keeps same-namespace duplicates out.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log.With("store", "checkpoint")}
}

// parentKey collapses a nil parent to "" so the lineage key stays non-null
// and the unique index applies to roots too.
func parentKey(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func (s *Store) lineageQuery(ctx context.Context, rec Record) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("thread_id = ? AND namespace = ? AND parent_key = ? AND step = ?",
			rec.ThreadID, rec.Namespace, parentKey(rec.ParentCheckpointID), rec.Step)
}

// Append records a new checkpoint. A retry with an identical payload returns
// the already-stored checkpoint; a collision with different content fails
// with ErrConflict.
func (s *Store) Append(ctx context.Context, rec Record) (*Checkpoint, error) {
	payload, err := encodeState(rec.Messages)
	if err != nil {
		return nil, err
	}

	var existing Checkpoint
	err = s.lineageQuery(ctx, rec).First(&existing).Error
	if err == nil {
		if bytes.Equal(existing.Messages, payload) {
			return &existing, nil
		}
		return nil, ErrConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	row := &Checkpoint{
		CheckpointID:       ids.NewULID(),
		ThreadID:           rec.ThreadID,
		Namespace:          rec.Namespace,
		ParentCheckpointID: rec.ParentCheckpointID,
		ParentKey:          parentKey(rec.ParentCheckpointID),
		Step:               rec.Step,
		Messages:           payload,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		// Lost a race on the lineage key; re-read and decide as above.
		var after Checkpoint
		if getErr := s.lineageQuery(ctx, rec).First(&after).Error; getErr == nil {
			if bytes.Equal(after.Messages, payload) {
				return &after, nil
			}
			return nil, ErrConflict
		}
		return nil, err
	}
	s.log.Debug("checkpoint appended",
		"checkpoint_id", row.CheckpointID, "thread_id", row.ThreadID, "step", row.Step)
	return row, nil
}

// ListHistory returns every checkpoint of the thread, newest first: step
// descending, creation time descending as tie-break across branches.
func (s *Store) ListHistory(ctx context.Context, threadID string) ([]Checkpoint, error) {
	var rows []Checkpoint
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("step DESC").
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) Get(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	var row Checkpoint
	err := s.db.WithContext(ctx).
		Where("checkpoint_id = ?", checkpointID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ResumeFrom reconstructs the message history visible at a checkpoint. The
// returned slice is the starting state for a fork.
func (s *Store) ResumeFrom(ctx context.Context, checkpointID string) ([]StateMessage, error) {
	row, err := s.Get(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	return row.State()
}

// Latest returns the thread's newest checkpoint in a namespace, or nil when
// the thread has no checkpoints yet.
func (s *Store) Latest(ctx context.Context, threadID, namespace string) (*Checkpoint, error) {
	var row Checkpoint
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND namespace = ?", threadID, namespace).
		Order("step DESC").
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Head returns the thread's newest checkpoint across all namespaces, or nil
// when the thread has none. Plain sends resume from here, so a fork or edit
// that lands a newer checkpoint becomes the line the conversation continues
// on.
func (s *Store) Head(ctx context.Context, threadID string) (*Checkpoint, error) {
	var row Checkpoint
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("step DESC").
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindByMessageCount locates the newest checkpoint whose recorded history
// has exactly n messages. Message-count matching backs the edit operation;
// nil means no checkpoint sits at that boundary.
func (s *Store) FindByMessageCount(ctx context.Context, threadID string, n int) (*Checkpoint, error) {
	var rows []Checkpoint
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("step DESC").
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		msgs, err := rows[i].State()
		if err != nil {
			return nil, err
		}
		if len(msgs) == n {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// DeleteThread removes every checkpoint of a thread. Called from the thread
// delete cascade.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Delete(&Checkpoint{}).Error
}
