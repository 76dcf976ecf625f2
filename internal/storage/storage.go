// Package storage uploads catalog images to an S3-compatible object store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"storefront/internal/database"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	BucketProductImages  = "product_images"
	BucketCategoryImages = "category_images"

	MaxImageSize = 5 << 20
)

var (
	ErrStorageConfigurationMissing = errors.New("storage configuration missing")
	ErrUnsupportedType             = errors.New("unsupported file type")
	ErrTooLarge                    = errors.New("file too large")
	ErrUnknownBucket               = errors.New("unknown bucket")
)

var Buckets = []string{BucketProductImages, BucketCategoryImages}

// objectClient is the part of *minio.Client the uploader uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type Uploader struct {
	client    objectClient
	publicURL string
	now       func() time.Time
}

func NewMinioClient(cfg *database.Config) (*minio.Client, error) {
	if cfg.StorageEndpoint == "" {
		return nil, fmt.Errorf("%w: STORAGE_ENDPOINT is not set", ErrStorageConfigurationMissing)
	}
	client, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, nil
}

// NewUploader builds public URLs from publicURL, or from the endpoint when it
// is empty.
func NewUploader(client objectClient, cfg *database.Config) *Uploader {
	base := cfg.StoragePublicURL
	if base == "" {
		scheme := "https"
		if !cfg.StorageUseSSL {
			scheme = "http"
		}
		base = scheme + "://" + cfg.StorageEndpoint
	}
	return &Uploader{client: client, publicURL: strings.TrimRight(base, "/"), now: time.Now}
}

// physical maps a bucket name to one S3 accepts.
func physical(bucket string) string {
	return strings.ReplaceAll(bucket, "_", "-")
}

func known(bucket string) bool {
	for _, b := range Buckets {
		if b == bucket {
			return true
		}
	}
	return false
}

// EnsureBuckets fails with ErrStorageConfigurationMissing naming the first
// bucket that does not exist.
func (u *Uploader) EnsureBuckets(ctx context.Context) error {
	for _, b := range Buckets {
		ok, err := u.client.BucketExists(ctx, physical(b))
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", b, err)
		}
		if !ok {
			return fmt.Errorf("%w: bucket %q does not exist", ErrStorageConfigurationMissing, b)
		}
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "image"
	}
	return name
}

// Upload stores an image and returns its object path. Only image content is
// accepted, whatever the file name says.
func (u *Uploader) Upload(ctx context.Context, bucket, fileName string, data []byte) (string, error) {
	if !known(bucket) {
		return "", fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrUnsupportedType)
	}
	if len(data) > MaxImageSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	object := fmt.Sprintf("%d-%s", u.now().UnixMilli(), sanitize(fileName))
	_, err := u.client.PutObject(ctx, physical(bucket), object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mt.String(),
	})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchBucket" {
			return "", fmt.Errorf("%w: bucket %q does not exist", ErrStorageConfigurationMissing, bucket)
		}
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	return object, nil
}

func (u *Uploader) PublicURL(bucket, objectPath string) string {
	return u.publicURL + "/" + physical(bucket) + "/" + url.PathEscape(objectPath)
}

func (u *Uploader) Remove(ctx context.Context, bucket, objectPath string) error {
	return u.client.RemoveObject(ctx, physical(bucket), objectPath, minio.RemoveObjectOptions{})
}
