package handlers

import (
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/lumosgraph/backend/internal/filestore"
	"github.com/lumosgraph/backend/internal/ids"
	"github.com/lumosgraph/backend/internal/store/rabbitmq"
)

// UploadFile stores one or more documents and queues extraction per file.
// Uploads are accepted as soon as the objects land; chunking happens in the
// worker and is observable through the status endpoint.
func (h *Handler) UploadFile(c *gin.Context) {
	if h.Files == nil {
		fail(c, http.StatusServiceUnavailable, 50301, "file store not configured")
		return
	}
	threadID := c.PostForm("thread_id")
	userID := c.PostForm("user_id")
	if threadID == "" || userID == "" {
		fail(c, http.StatusBadRequest, 10002, "thread_id and user_id required")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, 10003, "at least one file required")
		return
	}
	fhs := form.File["files"]
	if len(fhs) == 0 {
		// single-field clients
		fhs = form.File["file"]
	}
	if len(fhs) == 0 {
		fail(c, http.StatusBadRequest, 10003, "at least one file required")
		return
	}
	for _, fh := range fhs {
		if !filestore.Allowed(filepath.Base(fh.Filename)) {
			fail(c, http.StatusBadRequest, 10004, "unsupported file type: "+filepath.Base(fh.Filename))
			return
		}
	}

	results := make([]gin.H, 0, len(fhs))
	for _, fh := range fhs {
		filename := filepath.Base(fh.Filename)
		key, err := h.uploadOne(c, userID, threadID, filename, fh)
		if err != nil {
			h.Log.Error("upload failed", "thread_id", threadID, "filename", filename, "err", err)
			fail(c, http.StatusInternalServerError, 50002, "upload failed: "+filename)
			return
		}

		job := rabbitmq.DocumentJob{
			JobID:       ids.NewULID(),
			ThreadID:    threadID,
			UserID:      userID,
			Filename:    filename,
			StorageKey:  key,
			ContentType: filestore.ContentType(filename),
		}
		if err := h.Jobs.PublishDocumentJob(c.Request.Context(), job); err != nil {
			h.Log.Error("enqueue failed", "job_id", job.JobID, "err", err)
			fail(c, http.StatusInternalServerError, 50003, "enqueue failed: "+filename)
			return
		}
		results = append(results, gin.H{
			"job_id":   job.JobID,
			"filename": filename,
			"s3_key":   key,
			"size":     fh.Size,
		})
	}

	ok(c, gin.H{"files": results})
}

func (h *Handler) uploadOne(c *gin.Context, userID, threadID, filename string, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.Files.Upload(c.Request.Context(), userID, threadID, filename, f)
}

func (h *Handler) ListFiles(c *gin.Context) {
	if h.Files == nil {
		fail(c, http.StatusServiceUnavailable, 50301, "file store not configured")
		return
	}
	threadID := c.Query("thread_id")
	userID := c.Query("user_id")
	if threadID == "" || userID == "" {
		fail(c, http.StatusBadRequest, 10002, "thread_id and user_id required")
		return
	}

	objs, err := h.Files.List(c.Request.Context(), userID, threadID)
	if err != nil {
		h.Log.Error("list files failed", "thread_id", threadID, "err", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"files": objs})
}

// FileStatus reports whether extraction finished for one uploaded document.
func (h *Handler) FileStatus(c *gin.Context) {
	threadID := c.Query("thread_id")
	filename := c.Query("filename")
	if threadID == "" || filename == "" {
		fail(c, http.StatusBadRequest, 10002, "thread_id and filename required")
		return
	}

	st, err := h.Docs.FileStatus(c.Request.Context(), threadID, filename)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{
		"filename":    filename,
		"processed":   st.Processed,
		"chunk_count": st.ChunkCount,
	})
}

// DeleteFile removes the stored object and its extracted chunks.
func (h *Handler) DeleteFile(c *gin.Context) {
	if h.Files == nil {
		fail(c, http.StatusServiceUnavailable, 50301, "file store not configured")
		return
	}
	threadID := c.Query("thread_id")
	userID := c.Query("user_id")
	filename := c.Query("filename")
	if threadID == "" || userID == "" || filename == "" {
		fail(c, http.StatusBadRequest, 10002, "thread_id, user_id and filename required")
		return
	}

	if err := h.Files.Delete(c.Request.Context(), userID, threadID, filename); err != nil {
		h.Log.Error("delete file failed", "thread_id", threadID, "filename", filename, "err", err)
		fail(c, http.StatusInternalServerError, 50002, "delete failed")
		return
	}
	deleted, err := h.Docs.DeleteFile(c.Request.Context(), threadID, filename)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	ok(c, gin.H{"filename": filename, "deleted_chunks": deleted})
}
