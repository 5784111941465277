package filestore

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// AllowedFileTypes maps accepted upload extensions to content types. Image
// entries cover extracted page images written back by the worker.
var AllowedFileTypes = map[string]string{
	".pdf":  "application/pdf",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Object describes one stored file.
type Object struct {
	Key          string    `json:"key"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the narrow file-store contract the core consumes: uploads keyed
// by (user, thread, filename) returning a storage locator, plus existence
// check, delete and listing.
type Store interface {
	Upload(ctx context.Context, userID, threadID, filename string, body io.Reader) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, userID, threadID, filename string) (bool, error)
	Delete(ctx context.Context, userID, threadID, filename string) error
	List(ctx context.Context, userID, threadID string) ([]Object, error)
}

// ContentType resolves the stored content type from the filename.
func ContentType(filename string) string {
	if ct, ok := AllowedFileTypes[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Allowed reports whether the extension may be uploaded.
func Allowed(filename string) bool {
	_, ok := AllowedFileTypes[strings.ToLower(path.Ext(filename))]
	return ok
}
