package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"gnest/internal/infra/gnest"
	"gnest/internal/interfaces/interceptors"
)

// ObjectStore is the subset of the minio client the files controller needs.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, objectName string) error
}

type UploadedObject struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

type FileController struct {
	store   ObjectStore
	maxSize int64
}

func NewFileController(store ObjectStore) *FileController {
	return &FileController{store: store, maxSize: 10 << 20}
}

func (h *FileController) Mount(r *gnest.RouterGroup) {
	r.POST("", h.Upload,
		interceptors.Audited("file.upload"),
		gnest.HttpCode(http.StatusCreated),
		gnest.UploadedFile(1, "file"),
	)
	r.GET("/:name", h.Download, gnest.Param(1, "name"))
	r.DELETE("/:name", h.Delete, interceptors.Audited("file.delete"), gnest.Param(1, "name"))
}

func (h *FileController) Upload(ctx context.Context, fh *multipart.FileHeader) (*UploadedObject, error) {
	if fh == nil {
		return nil, gnest.BadRequest("file is required")
	}
	if fh.Size > h.maxSize {
		return nil, gnest.NewHttpException(http.StatusRequestEntityTooLarge, "file exceeds 10MB")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := uuid.NewString() + strings.ToLower(path.Ext(fh.Filename))
	if err := h.store.Upload(ctx, name, f, fh.Size, contentType); err != nil {
		return nil, err
	}
	return &UploadedObject{Name: name, Size: fh.Size, ContentType: contentType}, nil
}

// Download redirects to a short-lived presigned URL.
func (h *FileController) Download(ctx context.Context, name string) (gnest.RedirectResult, error) {
	u, err := h.store.PresignedURL(ctx, name, 5*time.Minute)
	if err != nil {
		return gnest.RedirectResult{}, err
	}
	return gnest.RedirectResult{Code: http.StatusFound, Location: u}, nil
}

func (h *FileController) Delete(ctx context.Context, name string) error {
	return h.store.Delete(ctx, name)
}
