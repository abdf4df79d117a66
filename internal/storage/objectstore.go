package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mimic/internal/config"
	"mimic/internal/services"
)

// ObjectStore is the blob backend the upload transport writes through.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	PublicURL(bucket, key string) string
}

// MinioStore stores objects in a MinIO (or any S3-compatible) deployment.
type MinioStore struct {
	client    *minio.Client
	endpoint  string
	useSSL    bool
	baseURL   string
	mu        sync.Mutex
	ensured   map[string]struct{}
}

// NewMinioStore connects to the object store configured in cfg.
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	return &MinioStore{
		client:   client,
		endpoint: cfg.Storage.Endpoint,
		useSSL:   cfg.Storage.UseSSL,
		baseURL:  strings.TrimRight(cfg.Storage.PublicBaseURL, "/"),
		ensured:  make(map[string]struct{}),
	}, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	_, done := m.ensured[bucket]
	m.mu.Unlock()
	if done {
		return nil
	}

	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			// Another process may have raced us to creation.
			if exists, checkErr := m.client.BucketExists(ctx, bucket); checkErr != nil || !exists {
				return err
			}
		}
	}

	m.mu.Lock()
	m.ensured[bucket] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MinioStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if err := m.ensureBucket(ctx, bucket); err != nil {
		return classifyStoreError("ensure bucket", err)
	}
	_, err := m.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return classifyStoreError("put object", err)
	}
	return nil
}

func (m *MinioStore) Remove(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyStoreError("remove object", err)
	}
	return nil
}

func (m *MinioStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, classifyStoreError("stat object", err)
	}
	return true, nil
}

// PublicURL builds the externally reachable URL for a stored object. A
// configured public base takes precedence over direct endpoint access.
func (m *MinioStore) PublicURL(bucket, key string) string {
	if m.baseURL != "" {
		return m.baseURL + "/" + bucket + "/" + key
	}
	scheme := "http://"
	if m.useSSL {
		scheme = "https://"
	}
	return scheme + m.endpoint + "/" + bucket + "/" + key
}

// classifyStoreError maps backend failures onto the retry taxonomy. Client
// errors from the store will not succeed on retry; everything else, including
// transport failures with no HTTP response at all, is worth another attempt.
func classifyStoreError(operation string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != 408 && resp.StatusCode != 429:
		return services.Wrap(services.ErrPermanent, "storage", operation, resp.Code, err)
	default:
		return services.Wrap(services.ErrTransient, "storage", operation, "", err)
	}
}
