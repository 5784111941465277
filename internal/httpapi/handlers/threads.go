package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lumosgraph/backend/internal/chat"
	"github.com/lumosgraph/backend/internal/ids"
)

type createThreadReq struct {
	UserID string `json:"user_id" binding:"required"`
	Title  string `json:"title"`
}

// CreateThread allocates a thread id up front. Threads also come into being
// implicitly on the first chat message; this exists for clients that want
// the id before sending anything.
func (h *Handler) CreateThread(c *gin.Context) {
	var req createThreadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	t := &chat.Thread{ID: ids.NewThreadID(), UserID: req.UserID}
	if req.Title != "" {
		t.Title = &req.Title
	}
	if err := h.Repo.CreateThread(c.Request.Context(), t); err != nil {
		h.Log.Error("create thread failed", "user_id", req.UserID, "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"thread": t})
}

type renameThreadReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) RenameThread(c *gin.Context) {
	threadID := c.Param("thread_id")
	var req renameThreadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if err := h.Repo.UpdateThreadTitle(c.Request.Context(), threadID, req.Title); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			fail(c, http.StatusNotFound, 40404, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"thread_id": threadID, "title": req.Title})
}

func (h *Handler) ListThreads(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		fail(c, http.StatusBadRequest, 10002, "user_id required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	threads, err := h.Repo.ListThreads(c.Request.Context(), userID, limit)
	if err != nil {
		h.Log.Error("list threads failed", "user_id", userID, "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"threads": threads})
}

func (h *Handler) GetThread(c *gin.Context) {
	threadID := c.Param("thread_id")
	t, err := h.Repo.GetThread(c.Request.Context(), threadID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			fail(c, http.StatusNotFound, 40404, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"thread": t})
}

func (h *Handler) DeleteThread(c *gin.Context) {
	threadID := c.Param("thread_id")
	if err := h.ChatSvc.DeleteThread(c.Request.Context(), threadID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			fail(c, http.StatusNotFound, 40404, "thread not found")
			return
		}
		h.Log.Error("delete thread failed", "thread_id", threadID, "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"thread_id": threadID})
}

func (h *Handler) ListMessages(c *gin.Context) {
	threadID := c.Param("thread_id")
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.Repo.ListMessages(c.Request.Context(), threadID, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		atts := m.AttachmentList()
		out = append(out, gin.H{
			"id":          m.ID,
			"seq":         m.Seq,
			"role":        m.Role,
			"content":     m.Content,
			"attachments": atts,
			"created_at":  m.CreatedAt,
		})
	}
	ok(c, gin.H{"messages": out})
}

// GetHistory lists the thread's checkpoints newest-first, each with its full
// recorded state so clients can preview before forking.
func (h *Handler) GetHistory(c *gin.Context) {
	threadID := c.Param("thread_id")

	cks, err := h.ChatSvc.History(c.Request.Context(), threadID)
	if err != nil {
		h.Log.Error("history failed", "thread_id", threadID, "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	out := make([]gin.H, 0, len(cks))
	for _, ck := range cks {
		state, err := ck.State()
		if err != nil {
			h.Log.Warn("checkpoint decode failed", "checkpoint_id", ck.CheckpointID, "err", err)
			continue
		}
		out = append(out, gin.H{
			"checkpoint_id":        ck.CheckpointID,
			"parent_checkpoint_id": ck.ParentCheckpointID,
			"namespace":            ck.Namespace,
			"step":                 ck.Step,
			"message_count":        len(state),
			"messages":             state,
			"created_at":           ck.CreatedAt,
		})
	}
	ok(c, gin.H{"checkpoints": out})
}

type truncateReq struct {
	KeepCount *int `json:"keep_count" binding:"required"`
}

func (h *Handler) TruncateThread(c *gin.Context) {
	threadID := c.Param("thread_id")
	var req truncateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	deleted, err := h.ChatSvc.Truncate(c.Request.Context(), threadID, *req.KeepCount)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"deleted_count": deleted})
}
