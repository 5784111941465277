package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lumosgraph/backend/internal/config"
	"github.com/lumosgraph/backend/internal/httpapi/handlers"
	"github.com/lumosgraph/backend/internal/ids"
)

// RequestID tags every request so log lines from one request correlate.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = ids.NewULID()
		}
		c.Set("request_id", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func NewRouter(cfg config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		AllowCredentials: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "route not found", "data": nil})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": 40500, "message": "method not allowed", "data": nil})
	})

	r.GET("/health", h.Health)

	api := r.Group("/api")

	// chat: all three produce the same SSE stream shape
	api.POST("/chat", h.SendChat)
	api.POST("/chat/fork", h.ForkChat)
	api.POST("/chat/edit", h.EditChat)

	// threads
	api.GET("/threads", h.ListThreads)
	api.POST("/threads", h.CreateThread)
	api.PATCH("/threads/:thread_id", h.RenameThread)
	api.GET("/threads/:thread_id", h.GetThread)
	api.DELETE("/threads/:thread_id", h.DeleteThread)
	api.GET("/threads/:thread_id/messages", h.ListMessages)
	api.GET("/threads/:thread_id/history", h.GetHistory)
	api.POST("/threads/:thread_id/truncate", h.TruncateThread)

	// files
	api.POST("/files/upload", h.UploadFile)
	api.GET("/files", h.ListFiles)
	api.GET("/files/status", h.FileStatus)
	api.DELETE("/files", h.DeleteFile)

	return r
}
