package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// EnsureThread creates the thread if it does not exist yet and bumps
// updated_at if it does. First contact with a thread id goes through here.
func (r *Repo) EnsureThread(ctx context.Context, threadID, userID string) (*Thread, error) {
	row := &Thread{ID: threadID, UserID: userID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": time.Now().UTC()}),
	}).Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.GetThread(ctx, threadID)
}

func (r *Repo) CreateThread(ctx context.Context, t *Thread) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repo) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	var t Thread
	err := r.db.WithContext(ctx).Where("id = ?", threadID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListThreads returns a user's threads, most recently active first.
func (r *Repo) ListThreads(ctx context.Context, userID string, limit int) ([]Thread, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []Thread
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateThreadTitle(ctx context.Context, threadID, title string) error {
	res := r.db.WithContext(ctx).Model(&Thread{}).
		Where("id = ?", threadID).
		Updates(map[string]interface{}{"title": title, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) TouchThread(ctx context.Context, threadID string) error {
	return r.db.WithContext(ctx).Model(&Thread{}).
		Where("id = ?", threadID).
		Update("updated_at", time.Now().UTC()).Error
}

// DeleteThread removes the thread and its messages. Checkpoints and document
// chunks cascade from the service layer.
func (r *Repo) DeleteThread(ctx context.Context, threadID string) error {
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Delete(&Message{}).Error; err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Where("id = ?", threadID).Delete(&Thread{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage assigns the next sequence position and inserts the row.
func (r *Repo) AppendMessage(ctx context.Context, threadID, userID, role, content string, atts []Attachment) (*Message, error) {
	payload, err := encodeAttachments(atts)
	if err != nil {
		return nil, err
	}
	var next int64
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("thread_id = ?", threadID).
		Select("COALESCE(MAX(seq) + 1, 0)").
		Scan(&next).Error; err != nil {
		return nil, err
	}
	m := &Message{
		ThreadID:    threadID,
		UserID:      userID,
		Seq:         int(next),
		Role:        role,
		Content:     content,
		Attachments: payload,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the thread's messages in display order.
func (r *Repo) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []Message
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) CountMessages(ctx context.Context, threadID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("thread_id = ?", threadID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// TruncateMessages keeps positions [0, keep) and deletes the rest,
// returning the number deleted.
func (r *Repo) TruncateMessages(ctx context.Context, threadID string, keep int) (int, error) {
	res := r.db.WithContext(ctx).
		Where("thread_id = ? AND seq >= ?", threadID, keep).
		Delete(&Message{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
