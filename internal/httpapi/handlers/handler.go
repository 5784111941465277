package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumosgraph/backend/internal/chat"
	"github.com/lumosgraph/backend/internal/config"
	"github.com/lumosgraph/backend/internal/docs"
	"github.com/lumosgraph/backend/internal/filestore"
	"github.com/lumosgraph/backend/internal/logger"
	"github.com/lumosgraph/backend/internal/store/rabbitmq"
)

// JobPublisher enqueues extraction work; *rabbitmq.Publisher satisfies it.
type JobPublisher interface {
	PublishDocumentJob(ctx context.Context, job rabbitmq.DocumentJob) error
}

type Handler struct {
	Cfg     config.Config
	ChatSvc *chat.Service
	Repo    *chat.Repo
	Docs    *docs.Repo
	Files   filestore.Store
	Jobs    JobPublisher
	Log     *logger.Logger
}

func NewHandler(
	cfg config.Config,
	chatSvc *chat.Service,
	repo *chat.Repo,
	docsRepo *docs.Repo,
	files filestore.Store,
	jobs JobPublisher,
	log *logger.Logger,
) *Handler {
	return &Handler{
		Cfg:     cfg,
		ChatSvc: chatSvc,
		Repo:    repo,
		Docs:    docsRepo,
		Files:   files,
		Jobs:    jobs,
		Log:     log.With("component", "http"),
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

func (h *Handler) Health(c *gin.Context) {
	ok(c, gin.H{"status": "healthy"})
}
