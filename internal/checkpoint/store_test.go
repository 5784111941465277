package checkpoint

import (
	"context"
	"errors"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lumosgraph/backend/internal/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Checkpoint{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(openTestDB(t), logger.NewNop())
}

func turn(prev []StateMessage, human, ai string) []StateMessage {
	out := append([]StateMessage(nil), prev...)
	return append(out,
		StateMessage{Role: "human", Content: human},
		StateMessage{Role: "ai", Content: ai},
	)
}

func TestAppend_StepsIncrementAlongLineage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root, err := s.Append(ctx, Record{
		ThreadID: "t1",
		Step:     0,
		Messages: turn(nil, "H1", "A1"),
	})
	if err != nil {
		t.Fatalf("append root: %v", err)
	}
	if root.Step != 0 || root.ParentCheckpointID != nil {
		t.Fatalf("unexpected root: step=%d parent=%v", root.Step, root.ParentCheckpointID)
	}

	child, err := s.Append(ctx, Record{
		ThreadID:           "t1",
		ParentCheckpointID: &root.CheckpointID,
		Step:               root.Step + 1,
		Messages:           turn(turn(nil, "H1", "A1"), "H2", "A2"),
	})
	if err != nil {
		t.Fatalf("append child: %v", err)
	}
	if child.Step != 1 {
		t.Fatalf("expected step 1, got %d", child.Step)
	}
	if child.ParentCheckpointID == nil || *child.ParentCheckpointID != root.CheckpointID {
		t.Fatalf("child not linked to root")
	}

	state, err := child.State()
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state) != 4 {
		t.Fatalf("expected 4 recorded messages, got %d", len(state))
	}
}

func TestAppend_IdenticalRetryIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := Record{ThreadID: "t1", Step: 0, Messages: turn(nil, "H1", "A1")}

	first, err := s.Append(ctx, rec)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	second, err := s.Append(ctx, rec)
	if err != nil {
		t.Fatalf("retry append: %v", err)
	}
	if second.CheckpointID != first.CheckpointID {
		t.Fatalf("retry created a new checkpoint: %s vs %s", second.CheckpointID, first.CheckpointID)
	}

	rows, err := s.ListHistory(ctx, "t1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(rows))
	}
}

func TestAppend_SameSlotDifferentPayloadConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, Record{ThreadID: "t1", Step: 0, Messages: turn(nil, "H1", "A1")}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	_, err := s.Append(ctx, Record{ThreadID: "t1", Step: 0, Messages: turn(nil, "H1", "different")})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

// Roots have a NULL parent id, which unique indexes treat as distinct; the
// index must still reject a second conflicting root at the same slot even
// when two writers race past Append's pre-read.
func TestAppend_DuplicateRootRejectedByIndex(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, logger.NewNop())
	ctx := context.Background()

	first, err := s.Append(ctx, Record{ThreadID: "t1", Step: 0, Messages: turn(nil, "H1", "A1")})
	if err != nil {
		t.Fatalf("append root: %v", err)
	}

	// second root written directly, as a racing request would after both
	// pre-reads found the slot empty
	payload, err := encodeState(turn(nil, "H1", "different"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dup := &Checkpoint{
		CheckpointID: "00000000000000000000000000",
		ThreadID:     "t1",
		ParentKey:    "",
		Step:         0,
		Messages:     payload,
	}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("index accepted a second root at the same slot")
	}

	var count int64
	if err := db.Model(&Checkpoint{}).
		Where("thread_id = ? AND namespace = ? AND parent_key = ? AND step = ?", "t1", "", "", 0).
		Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 root at the slot, got %d", count)
	}

	// the loser's Append resolves against the surviving row
	retry, err := s.Append(ctx, Record{ThreadID: "t1", Step: 0, Messages: turn(nil, "H1", "A1")})
	if err != nil {
		t.Fatalf("idempotent retry after race: %v", err)
	}
	if retry.CheckpointID != first.CheckpointID {
		t.Fatalf("retry resolved to %s, want %s", retry.CheckpointID, first.CheckpointID)
	}
	if _, err := s.Append(ctx, Record{ThreadID: "t1", Step: 0, Messages: turn(nil, "H1", "different")}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for differing root payload, got %v", err)
	}
}

func TestAppend_ForkIntoOtherNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := turn(nil, "H1", "A1")
	root, err := s.Append(ctx, Record{ThreadID: "t1", Step: 0, Messages: base})
	if err != nil {
		t.Fatalf("append root: %v", err)
	}
	if _, err := s.Append(ctx, Record{
		ThreadID:           "t1",
		ParentCheckpointID: &root.CheckpointID,
		Step:               1,
		Messages:           turn(base, "H2", "A2"),
	}); err != nil {
		t.Fatalf("append main branch: %v", err)
	}

	// same parent and step, different namespace: a legal fork
	fork, err := s.Append(ctx, Record{
		ThreadID:           "t1",
		Namespace:          "alt",
		ParentCheckpointID: &root.CheckpointID,
		Step:               1,
		Messages:           turn(base, "H2b", "A2b"),
	})
	if err != nil {
		t.Fatalf("append fork: %v", err)
	}

	state, err := fork.State()
	if err != nil {
		t.Fatalf("decode fork state: %v", err)
	}
	if state[2].Content != "H2b" {
		t.Fatalf("fork state does not diverge: %+v", state)
	}

	// same parent and step in the same namespace with different content: rejected
	_, err = s.Append(ctx, Record{
		ThreadID:           "t1",
		ParentCheckpointID: &root.CheckpointID,
		Step:               1,
		Messages:           turn(base, "H2c", "A2c"),
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on same-namespace fork, got %v", err)
	}

	rows, err := s.ListHistory(ctx, "t1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 checkpoints, got %d", len(rows))
	}
}

func TestListHistory_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := []StateMessage(nil)
	var parent *string
	for i := 0; i < 3; i++ {
		state = turn(state, "H", "A")
		ck, err := s.Append(ctx, Record{
			ThreadID:           "t1",
			ParentCheckpointID: parent,
			Step:               i,
			Messages:           state,
		})
		if err != nil {
			t.Fatalf("append step %d: %v", i, err)
		}
		parent = &ck.CheckpointID
	}

	rows, err := s.ListHistory(ctx, "t1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if want := 2 - i; row.Step != want {
			t.Fatalf("row %d: expected step %d, got %d", i, want, row.Step)
		}
	}
}

func TestHeadAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	head, err := s.Head(ctx, "t1")
	if err != nil {
		t.Fatalf("head of empty thread: %v", err)
	}
	if head != nil {
		t.Fatalf("expected nil head, got %+v", head)
	}

	base := turn(nil, "H1", "A1")
	root, err := s.Append(ctx, Record{ThreadID: "t1", Step: 0, Messages: base})
	if err != nil {
		t.Fatalf("append root: %v", err)
	}
	fork, err := s.Append(ctx, Record{
		ThreadID:           "t1",
		Namespace:          "alt",
		ParentCheckpointID: &root.CheckpointID,
		Step:               1,
		Messages:           turn(base, "H2", "A2"),
	})
	if err != nil {
		t.Fatalf("append fork: %v", err)
	}

	head, err = s.Head(ctx, "t1")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.CheckpointID != fork.CheckpointID {
		t.Fatalf("head should be the fork, got %s", head.CheckpointID)
	}

	latest, err := s.Latest(ctx, "t1", "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.CheckpointID != root.CheckpointID {
		t.Fatalf("default-namespace latest should be the root, got %s", latest.CheckpointID)
	}
}

func TestFindByMessageCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := []StateMessage(nil)
	var parent *string
	for i := 0; i < 2; i++ {
		state = turn(state, "H", "A")
		ck, err := s.Append(ctx, Record{
			ThreadID:           "t1",
			ParentCheckpointID: parent,
			Step:               i,
			Messages:           state,
		})
		if err != nil {
			t.Fatalf("append step %d: %v", i, err)
		}
		parent = &ck.CheckpointID
	}

	ck, err := s.FindByMessageCount(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ck == nil || ck.Step != 0 {
		t.Fatalf("expected the step-0 checkpoint, got %+v", ck)
	}

	ck, err = s.FindByMessageCount(ctx, "t1", 3)
	if err != nil {
		t.Fatalf("find odd count: %v", err)
	}
	if ck != nil {
		t.Fatalf("expected nil for unmatched count, got %+v", ck)
	}
}

func TestResumeFromAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := turn(nil, "H1", "A1")
	root, err := s.Append(ctx, Record{ThreadID: "t1", Step: 0, Messages: base})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	state, err := s.ResumeFrom(ctx, root.CheckpointID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(state) != 2 || state[0].Content != "H1" {
		t.Fatalf("unexpected resumed state: %+v", state)
	}

	if _, err := s.ResumeFrom(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteThread(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, err := s.ListHistory(ctx, "t1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty history, got %d rows", len(rows))
	}
}
