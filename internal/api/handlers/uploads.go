package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"storefront/internal/storage"
)

const maxMultipartMemory = 32 << 20

// ImageUploader is satisfied by *storage.Uploader.
type ImageUploader interface {
	Upload(ctx context.Context, bucket, fileName string, data []byte) (string, error)
	PublicURL(bucket, objectPath string) string
	Remove(ctx context.Context, bucket, objectPath string) error
}

// uploads are the objects one request stored. They are discarded when the
// request fails after uploading.
type uploads struct {
	up     ImageUploader
	bucket string
	paths  []string
}

func (u *uploads) discard(ctx context.Context) {
	if u == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, p := range u.paths {
		_ = u.up.Remove(ctx, u.bucket, p)
	}
	u.paths = nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// uploadFiles stores every file in bucket and returns their public URLs. A
// failure removes the files stored so far.
func uploadFiles(ctx context.Context, up ImageUploader, bucket string, files []*multipart.FileHeader) ([]string, *uploads, error) {
	if len(files) == 0 {
		return nil, nil, nil
	}
	if up == nil {
		return nil, nil, fmt.Errorf("%w: object storage is not configured", storage.ErrStorageConfigurationMissing)
	}

	done := &uploads{up: up, bucket: bucket}
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		path, err := uploadFile(ctx, up, bucket, fh)
		if err != nil {
			done.discard(ctx)
			return nil, nil, err
		}
		done.paths = append(done.paths, path)
		urls = append(urls, up.PublicURL(bucket, path))
	}
	return urls, done, nil
}

func uploadFile(ctx context.Context, up ImageUploader, bucket string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > storage.MaxImageSize {
		return "", fmt.Errorf("%w: %s", storage.ErrTooLarge, fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	data, err := io.ReadAll(io.LimitReader(f, storage.MaxImageSize+1))
	_ = f.Close()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return up.Upload(ctx, bucket, fh.Filename, data)
}

func writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrStorageConfigurationMissing):
		writeError(w, http.StatusInternalServerError, "storage_configuration_missing", err.Error(), nil)
	case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "upload_failed", "failed to upload image", nil)
	}
}
