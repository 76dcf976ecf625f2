package storage

import (
	"context"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"storefront/internal/database"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
var pngPixel, _ = base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

type fakeObjects struct {
	buckets map[string]bool
	puts    map[string]string
	putErr  error
}

func (f *fakeObjects) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return minio.UploadInfo{}, err
	}
	f.puts[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeObjects) RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error {
	delete(f.puts, bucket+"/"+object)
	return nil
}

func newTestUploader(f *fakeObjects) *Uploader {
	u := NewUploader(f, &database.Config{StorageEndpoint: "files.example.com", StorageUseSSL: true})
	u.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return u
}

func TestEnsureBucketsMissing(t *testing.T) {
	f := &fakeObjects{buckets: map[string]bool{"product-images": true}}
	err := newTestUploader(f).EnsureBuckets(context.Background())

	assert.ErrorIs(t, err, ErrStorageConfigurationMissing)
	assert.ErrorContains(t, err, "category_images")
}

func TestEnsureBucketsPresent(t *testing.T) {
	f := &fakeObjects{buckets: map[string]bool{"product-images": true, "category-images": true}}
	assert.NoError(t, newTestUploader(f).EnsureBuckets(context.Background()))
}

func TestUploadImage(t *testing.T) {
	f := &fakeObjects{puts: map[string]string{}}
	u := newTestUploader(f)

	object, err := u.Upload(context.Background(), BucketProductImages, "../my photo (1).png", pngPixel)
	require.NoError(t, err)

	assert.Equal(t, "1700000000000-my-photo-1-.png", object)
	assert.Equal(t, "image/png", f.puts["product-images/"+object])
	assert.Equal(t, "https://files.example.com/product-images/"+object, u.PublicURL(BucketProductImages, object))
}

func TestUploadRejectsNonImage(t *testing.T) {
	f := &fakeObjects{puts: map[string]string{}}
	_, err := newTestUploader(f).Upload(context.Background(), BucketProductImages, "evil.png", []byte("#!/bin/sh\necho hi\n"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Empty(t, f.puts)
}

func TestUploadUnknownBucket(t *testing.T) {
	f := &fakeObjects{puts: map[string]string{}}
	_, err := newTestUploader(f).Upload(context.Background(), "avatars", "a.png", pngPixel)
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestUploadMissingBucket(t *testing.T) {
	f := &fakeObjects{puts: map[string]string{}, putErr: minio.ErrorResponse{Code: "NoSuchBucket", Message: "The specified bucket does not exist"}}
	_, err := newTestUploader(f).Upload(context.Background(), BucketCategoryImages, "a.png", pngPixel)
	assert.ErrorIs(t, err, ErrStorageConfigurationMissing)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "image", sanitize("..."))
	assert.Equal(t, "a-b.jpg", sanitize(`C:\Users\x\a b.jpg`))
}
