package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lumosgraph/backend/internal/ai"
	"github.com/lumosgraph/backend/internal/checkpoint"
	"github.com/lumosgraph/backend/internal/docs"
	"github.com/lumosgraph/backend/internal/ids"
	"github.com/lumosgraph/backend/internal/images"
	"github.com/lumosgraph/backend/internal/logger"
	"github.com/lumosgraph/backend/internal/stream"
)

// SendRequest is one chat turn: a new input for a thread, optionally pinned
// to a fork point. Fork is a plain send whose base state comes from the
// supplied checkpoint instead of the thread head.
type SendRequest struct {
	ThreadID    string
	UserID      string
	Message     string
	Attachments []Attachment
	// CheckpointID selects the fork point. Empty means continue from the
	// thread's latest checkpoint.
	CheckpointID string
	Namespace    string

	// edit fallback: context comes from the truncated message table, the
	// turn extends the current lineage instead of branching
	baseOverride []checkpoint.StateMessage
	overrideSet  bool
}

func (r SendRequest) validate() error {
	if strings.TrimSpace(r.ThreadID) == "" {
		return fmt.Errorf("%w: thread_id required", ErrValidation)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user_id required", ErrValidation)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}
	return nil
}

// EditRequest replaces the message at Index and regenerates from there.
type EditRequest struct {
	ThreadID    string
	UserID      string
	Index       int
	Message     string
	Attachments []Attachment
	Namespace   string
}

// ServiceConfig carries the orchestrator knobs.
type ServiceConfig struct {
	Provider string
	Model    string
	// ContextWindow bounds how many base-state messages the provider and the
	// gate see on one turn. Zero or negative means unbounded.
	ContextWindow   int
	GenerateTimeout time.Duration
}

// Service is the conversation orchestrator: it turns one user input plus
// thread context (or an explicit fork point) into a new checkpoint and a
// stream of output events.
type Service struct {
	repo     *Repo
	ckpts    *checkpoint.Store
	composer *Composer
	registry *ai.Registry
	gate     Gate
	images   images.Cache
	docsRepo *docs.Repo
	log      *logger.Logger
	cfg      ServiceConfig
}

func NewService(
	repo *Repo,
	ckpts *checkpoint.Store,
	composer *Composer,
	registry *ai.Registry,
	gate Gate,
	imageCache images.Cache,
	docsRepo *docs.Repo,
	log *logger.Logger,
	cfg ServiceConfig,
) *Service {
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 120 * time.Second
	}
	if gate == nil {
		gate = AllowAllGate{}
	}
	if imageCache == nil {
		imageCache = images.NopCache{}
	}
	return &Service{
		repo:     repo,
		ckpts:    ckpts,
		composer: composer,
		registry: registry,
		gate:     gate,
		images:   imageCache,
		docsRepo: docsRepo,
		log:      log.With("service", "chat"),
		cfg:      cfg,
	}
}

// Send starts one turn and returns its event stream. Validation and fork
// resolution fail synchronously, before any state mutation; everything after
// that is reported through the stream.
func (s *Service) Send(ctx context.Context, req SendRequest) (<-chan stream.Event, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var parent *checkpoint.Checkpoint
	if req.CheckpointID != "" {
		ck, err := s.ckpts.Get(ctx, req.CheckpointID)
		if err != nil {
			return nil, err
		}
		parent = ck
	}

	out := make(chan stream.Event, 16)
	go s.run(ctx, req, parent, out)
	return out, nil
}

// Edit truncates the thread to positions [0, index) and re-diverges from
// there: a fork when a checkpoint sits exactly at the truncation point, a
// plain linear turn over the truncated history otherwise. The caller cannot
// know in advance which path was taken; both produce the same stream shape.
func (s *Service) Edit(ctx context.Context, req EditRequest) (<-chan stream.Event, error) {
	if req.Index < 0 {
		return nil, fmt.Errorf("%w: index must be non-negative", ErrValidation)
	}

	send := SendRequest{
		ThreadID:    req.ThreadID,
		UserID:      req.UserID,
		Message:     req.Message,
		Attachments: req.Attachments,
		Namespace:   req.Namespace,
	}
	if err := send.validate(); err != nil {
		return nil, err
	}

	if _, err := s.repo.TruncateMessages(ctx, req.ThreadID, req.Index); err != nil {
		return nil, err
	}

	ck, err := s.ckpts.FindByMessageCount(ctx, req.ThreadID, req.Index)
	if err != nil {
		return nil, err
	}
	if ck != nil {
		send.CheckpointID = ck.CheckpointID
		if send.Namespace == "" {
			// The superseded turn usually occupies this parent/step slot in
			// the default namespace, so the regenerated branch gets its own.
			send.Namespace = "edit-" + ids.NewULID()
		}
		return s.Send(ctx, send)
	}

	// No checkpoint at that boundary (coarser checkpoint granularity).
	// Documented degradation: continue linearly with the truncated history
	// as context.
	s.log.Info("edit fallback without fork", "thread_id", req.ThreadID, "index", req.Index)
	msgs, err := s.repo.ListMessages(ctx, req.ThreadID, 500)
	if err != nil {
		return nil, err
	}
	send.baseOverride = messagesToState(msgs)
	send.overrideSet = true
	return s.Send(ctx, send)
}

func (s *Service) run(ctx context.Context, req SendRequest, parent *checkpoint.Checkpoint, out chan<- stream.Event) {
	defer close(out)

	emit := func(ev stream.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(stage string, err error) {
		s.log.Error("turn failed", "stage", stage, "thread_id", req.ThreadID, "err", err)
		emit(stream.Error(err.Error()))
	}

	thread, err := s.repo.EnsureThread(ctx, req.ThreadID, req.UserID)
	if err != nil {
		fail("thread", err)
		return
	}
	if thread.Title == nil || *thread.Title == "" {
		if err := s.repo.UpdateThreadTitle(ctx, req.ThreadID, deriveTitle(req.Message)); err != nil {
			s.log.Warn("title update failed", "thread_id", req.ThreadID, "err", err)
		}
	}

	base, err := s.resolveBase(ctx, req, &parent)
	if err != nil {
		fail("resolve", err)
		return
	}

	// The human message lands before generation; on failure it stays, with
	// edit/truncate as the recovery path.
	if _, err := s.repo.AppendMessage(ctx, req.ThreadID, req.UserID, RoleHuman, req.Message, req.Attachments); err != nil {
		fail("log message", err)
		return
	}

	chunks, err := s.composer.Chunks(ctx, req.ThreadID)
	if err != nil {
		fail("document context", err)
		return
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()

	// The checkpoint snapshot keeps the full state; only what the gate and
	// provider see is capped.
	window := contextWindow(base, s.cfg.ContextWindow)

	if !emit(stream.Progress{"Progress": "Domain check initiated ..."}) {
		return
	}
	gateHistory := stateToProvider(window)
	gateHistory = append(gateHistory, ai.Message{Role: "user", Content: req.Message})
	res, err := s.gate.Classify(gctx, gateHistory, buildGateSummary(chunks))
	if err != nil {
		fail("gate", err)
		return
	}
	if !res.Approved {
		// Rejection short-circuits generation but is still one recorded turn.
		if !emit(stream.Progress{"Progress": "Domain check completed ..."}) {
			return
		}
		if !emit(stream.Message(res.Rejection)) {
			return
		}
		if err := s.commitTurn(ctx, req, base, parent, res.Rejection); err != nil {
			fail("commit", err)
			return
		}
		emit(stream.Done{})
		return
	}
	if !emit(stream.Progress{"Progress": "Approved query"}) {
		return
	}

	msgs, err := s.composer.BuildMessages(ctx, req.ThreadID, chunks, window, req.Message, func(p stream.Progress) { emit(p) })
	if err != nil {
		fail("compose", err)
		return
	}

	provider, err := s.registry.Get(ctx, s.cfg.Provider, s.cfg.Model)
	if err != nil {
		fail("provider", err)
		return
	}

	if !emit(stream.Progress{"Progress": "Generating response ..."}) {
		return
	}

	reply, streamed, err := s.generate(gctx, provider, msgs, emit)
	if err != nil {
		fail("generate", fmt.Errorf("%w: %v", ErrGeneration, err))
		return
	}
	if ctx.Err() != nil {
		// Client went away mid-stream; abandon without committing.
		return
	}
	if !streamed {
		if !emit(stream.Message(reply)) {
			return
		}
	}

	if err := s.commitTurn(ctx, req, base, parent, reply); err != nil {
		fail("commit", err)
		return
	}
	if err := s.repo.TouchThread(ctx, req.ThreadID); err != nil {
		s.log.Warn("touch thread failed", "thread_id", req.ThreadID, "err", err)
	}
	emit(stream.Done{})
}

// resolveBase picks the state the turn starts from: an explicit fork point,
// the edit-fallback override, or the thread head (empty when the thread has
// no checkpoints). parent ends up as the new checkpoint's parent.
func (s *Service) resolveBase(ctx context.Context, req SendRequest, parent **checkpoint.Checkpoint) ([]checkpoint.StateMessage, error) {
	if *parent != nil {
		return (*parent).State()
	}
	head, err := s.ckpts.Head(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	*parent = head
	if req.overrideSet {
		return req.baseOverride, nil
	}
	if head == nil {
		return nil, nil
	}
	return head.State()
}

// generate runs the provider, streaming when it can. Returns the full reply
// and whether tokens were already emitted incrementally.
func (s *Service) generate(ctx context.Context, provider ai.Provider, msgs []ai.Message, emit func(stream.Event) bool) (string, bool, error) {
	sp, ok := provider.(ai.StreamProvider)
	if !ok {
		reply, err := provider.Chat(ctx, msgs)
		return reply, false, err
	}

	tokens, errs := sp.StreamChat(ctx, msgs)
	var b strings.Builder
	for tok := range tokens {
		b.WriteString(tok)
		if !emit(stream.Token(tok)) {
			return "", true, nil // canceled; caller checks ctx
		}
	}
	select {
	case err := <-errs:
		if err != nil {
			return "", true, err
		}
	default:
	}
	return b.String(), true, nil
}

// commitTurn appends exactly one checkpoint (parent = base checkpoint, step
// parent+1 or 0 for the root) and persists the AI reply to the message
// table. Nothing here runs when generation failed.
func (s *Service) commitTurn(ctx context.Context, req SendRequest, base []checkpoint.StateMessage, parent *checkpoint.Checkpoint, reply string) error {
	newState := make([]checkpoint.StateMessage, 0, len(base)+2)
	newState = append(newState, base...)
	newState = append(newState,
		checkpoint.StateMessage{Role: RoleHuman, Content: req.Message},
		checkpoint.StateMessage{Role: RoleAI, Content: reply},
	)

	step := 0
	var parentID *string
	if parent != nil {
		step = parent.Step + 1
		parentID = &parent.CheckpointID
	}

	if _, err := s.ckpts.Append(ctx, checkpoint.Record{
		ThreadID:           req.ThreadID,
		Namespace:          req.Namespace,
		ParentCheckpointID: parentID,
		Step:               step,
		Messages:           newState,
	}); err != nil {
		return err
	}

	_, err := s.repo.AppendMessage(ctx, req.ThreadID, req.UserID, RoleAI, reply, nil)
	return err
}

// History lists the thread's checkpoints newest-first.
func (s *Service) History(ctx context.Context, threadID string) ([]checkpoint.Checkpoint, error) {
	return s.ckpts.ListHistory(ctx, threadID)
}

// Truncate deletes messages at positions >= keep and reports how many went.
func (s *Service) Truncate(ctx context.Context, threadID string, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("%w: keep_count must be non-negative", ErrValidation)
	}
	return s.repo.TruncateMessages(ctx, threadID, keep)
}

// DeleteThread cascades: messages, checkpoints, document chunks, warm image
// cache.
func (s *Service) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.repo.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	if err := s.ckpts.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	if s.docsRepo != nil {
		if err := s.docsRepo.DeleteThread(ctx, threadID); err != nil {
			return err
		}
	}
	if err := s.images.Delete(ctx, threadID); err != nil {
		s.log.Warn("image cache delete failed", "thread_id", threadID, "err", err)
	}
	return nil
}

func deriveTitle(message string) string {
	return clipRunes(strings.TrimSpace(message), 50)
}

// clipRunes shortens s to at most n characters, cutting on a rune boundary
// so multi-byte input never truncates to invalid UTF-8.
func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// contextWindow keeps the newest n messages of the base state.
func contextWindow(state []checkpoint.StateMessage, n int) []checkpoint.StateMessage {
	if n <= 0 || len(state) <= n {
		return state
	}
	return state[len(state)-n:]
}

func stateToProvider(state []checkpoint.StateMessage) []ai.Message {
	out := make([]ai.Message, 0, len(state))
	for _, m := range state {
		out = append(out, ai.Message{Role: providerRole(m.Role), Content: m.Content})
	}
	return out
}

func messagesToState(msgs []Message) []checkpoint.StateMessage {
	out := make([]checkpoint.StateMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, checkpoint.StateMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
