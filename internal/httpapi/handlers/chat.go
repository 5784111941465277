package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumosgraph/backend/internal/chat"
	"github.com/lumosgraph/backend/internal/checkpoint"
	"github.com/lumosgraph/backend/internal/stream"
)

type sendReq struct {
	ThreadID    string            `json:"thread_id" binding:"required"`
	UserID      string            `json:"user_id" binding:"required"`
	Message     string            `json:"message" binding:"required"`
	Attachments []chat.Attachment `json:"attachments"`
}

func (h *Handler) SendChat(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	events, err := h.ChatSvc.Send(c.Request.Context(), chat.SendRequest{
		ThreadID:    req.ThreadID,
		UserID:      req.UserID,
		Message:     req.Message,
		Attachments: req.Attachments,
	})
	if err != nil {
		h.failChat(c, err)
		return
	}
	h.streamEvents(c, events)
}

type forkReq struct {
	ThreadID     string            `json:"thread_id" binding:"required"`
	UserID       string            `json:"user_id" binding:"required"`
	Message      string            `json:"message" binding:"required"`
	CheckpointID string            `json:"checkpoint_id" binding:"required"`
	Namespace    string            `json:"namespace"`
	Attachments  []chat.Attachment `json:"attachments"`
}

// ForkChat is a send pinned to an earlier checkpoint: the new turn diverges
// from that state instead of the thread head.
func (h *Handler) ForkChat(c *gin.Context) {
	var req forkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	events, err := h.ChatSvc.Send(c.Request.Context(), chat.SendRequest{
		ThreadID:     req.ThreadID,
		UserID:       req.UserID,
		Message:      req.Message,
		Attachments:  req.Attachments,
		CheckpointID: req.CheckpointID,
		Namespace:    req.Namespace,
	})
	if err != nil {
		h.failChat(c, err)
		return
	}
	h.streamEvents(c, events)
}

type editReq struct {
	ThreadID string `json:"thread_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
	Index    *int   `json:"index" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

// EditChat truncates the thread at index and regenerates from there.
func (h *Handler) EditChat(c *gin.Context) {
	var req editReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	events, err := h.ChatSvc.Edit(c.Request.Context(), chat.EditRequest{
		ThreadID: req.ThreadID,
		UserID:   req.UserID,
		Index:    *req.Index,
		Message:  req.Message,
	})
	if err != nil {
		h.failChat(c, err)
		return
	}
	h.streamEvents(c, events)
}

func (h *Handler) failChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, checkpoint.ErrNotFound), errors.Is(err, chat.ErrNotFound):
		fail(c, http.StatusNotFound, 40404, err.Error())
	default:
		h.Log.Error("chat request failed", "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

// streamEvents drains the turn's event channel onto the response as SSE
// frames. A heartbeat comment goes out on idle so proxies keep the
// connection open.
func (h *Handler) streamEvents(c *gin.Context, events <-chan stream.Event) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, okk := c.Writer.(http.Flusher)
	if !okk {
		h.Log.Error("response writer does not support flushing")
		return
	}
	w := stream.NewSSEWriter(c.Writer, flusher)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev, okk := <-events:
			if !okk {
				return
			}
			if err := w.Write(ev); err != nil {
				h.Log.Warn("sse write failed", "err", err)
				return
			}
			if stream.Terminal(ev) {
				return
			}
		case <-ticker.C:
			if err := w.Heartbeat(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
