package store

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio is a Store implementation backed by a single bucket on an
// S3-compatible server via the MinIO client.
type Minio struct {
	client *minio.Client
	bucket string
}

// MinioConfig holds the connection settings for a Minio store.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Secure          bool
}

// NewMinio connects to the configured endpoint and ensures the backing
// bucket exists, creating it if necessary.
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

// isNoSuchKey reports whether err is the backend's missing-object error.
func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" || resp.StatusCode == 404
}

func infoFromMinio(key string, mi minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         mi.Size,
		ETag:         strings.Trim(mi.ETag, `"`),
		ContentType:  mi.ContentType,
		LastModified: mi.LastModified.UTC(),
	}
}

func (s *Minio) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	mi, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}

	info := infoFromMinio(key, mi)
	return &info, nil
}

func (s *Minio) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}

	// GetObject is lazy; Stat forces the request and surfaces NoSuchKey.
	mi, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}

	return &Object{ObjectInfo: infoFromMinio(key, mi), Body: obj}, nil
}

func (s *Minio) GetRange(ctx context.Context, key string, start int64, end int64) (*Object, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, fmt.Errorf("set range [%d, %d]: %w", start, end, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("get object range %q: %w", key, err)
	}

	mi, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("get object range %q: %w", key, err)
	}

	info := infoFromMinio(key, mi)
	info.Size = end - start + 1

	return &Object{ObjectInfo: info, Body: obj}, nil
}

func (s *Minio) Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (*ObjectInfo, error) {
	uploaded, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("put object %q: %w", key, err)
	}

	modified := uploaded.LastModified.UTC()
	if uploaded.LastModified.IsZero() {
		modified = time.Now().UTC()
	}

	return &ObjectInfo{
		Key:          key,
		Size:         uploaded.Size,
		ETag:         strings.Trim(uploaded.ETag, `"`),
		ContentType:  opts.ContentType,
		LastModified: modified,
	}, nil
}

func (s *Minio) Delete(ctx context.Context, key string) error {
	if _, err := s.Stat(ctx, key); err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

func (s *Minio) List(ctx context.Context, prefix string, delimiter string) (*Listing, error) {
	listing := &Listing{}

	for entry := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: delimiter == "",
	}) {
		if entry.Err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix, entry.Err)
		}

		// In a delimited listing the backend reports one-level sub-prefixes
		// as zero-size entries whose key extends past the prefix and ends in
		// the separator.
		if delimiter != "" && entry.Key != prefix && strings.HasSuffix(entry.Key, delimiter) && entry.ETag == "" {
			listing.CommonPrefixes = append(listing.CommonPrefixes, entry.Key)
			continue
		}

		listing.Objects = append(listing.Objects, infoFromMinio(entry.Key, entry))
	}

	return listing, nil
}
