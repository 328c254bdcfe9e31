package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/CloudCabinet/Drive-Service/internal/configuration"
	"github.com/CloudCabinet/Drive-Service/internal/vfs"
)

// FolderContentType marks zero-byte folder placeholder objects.
const FolderContentType = "application/x-directory"

type MinioService struct {
	Client        *minio.Client
	Core          *minio.Core
	BucketName    string
	MaxBatch      int
	PresignExpiry time.Duration
}

var minioInstance *MinioService

// InitializeMinio connects once per process; the client is reused for the
// process lifetime.
func InitializeMinio(cfg configuration.MinIOConfig) error {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	}
	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %v", err)
	}
	core, err := minio.NewCore(cfg.Endpoint, opts)
	if err != nil {
		return fmt.Errorf("failed to create MinIO core client: %v", err)
	}

	// Create bucket if it doesn't exist
	exists, err := client.BucketExists(context.Background(), cfg.BucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}
	if !exists {
		if err := client.MakeBucket(context.Background(), cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
		log.Printf("[MinIO] Created bucket: %s", cfg.BucketName)
	}

	minioInstance = &MinioService{
		Client:        client,
		Core:          core,
		BucketName:    cfg.BucketName,
		MaxBatch:      cfg.MaxDeleteBatch,
		PresignExpiry: cfg.PresignExpiry,
	}

	log.Println("[MinIO] Connected successfully")
	return nil
}

func GetMinioService() *MinioService {
	return minioInstance
}

// CheckConnection is used by the health endpoint.
func (m *MinioService) CheckConnection() error {
	if m == nil || m.Client == nil {
		return fmt.Errorf("minio service not initialized")
	}
	_, err := m.Client.BucketExists(context.Background(), m.BucketName)
	return err
}

// classify maps a raw MinIO error onto the service's error kinds.
func (m *MinioService) classify(key string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return &vfs.NotFoundError{Key: key}
	}
	return &vfs.StoreUnavailableError{Err: err}
}

// Put writes an object, overwriting any existing object at that key.
func (m *MinioService) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := m.Client.PutObject(ctx, m.BucketName, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return m.classify(key, err)
}

// PutFolderMarker writes the zero-byte placeholder for a folder key.
// Re-creating an existing folder rewrites the same empty object, so the
// operation is idempotent.
func (m *MinioService) PutFolderMarker(ctx context.Context, key string) error {
	_, err := m.Client.PutObject(ctx, m.BucketName, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{
		ContentType: FolderContentType,
	})
	return m.classify(key, err)
}

// Stat checks object existence without fetching bytes.
func (m *MinioService) Stat(ctx context.Context, key string) (vfs.ObjectInfo, error) {
	info, err := m.Client.StatObject(ctx, m.BucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return vfs.ObjectInfo{}, m.classify(key, err)
	}
	return vfs.ObjectInfo{Key: info.Key, Size: info.Size, LastModified: info.LastModified}, nil
}

// PresignedGet returns a temporary signed download URL for key.
func (m *MinioService) PresignedGet(ctx context.Context, key string) (string, error) {
	u, err := m.Client.PresignedGetObject(ctx, m.BucketName, key, m.PresignExpiry, url.Values{})
	if err != nil {
		return "", m.classify(key, err)
	}
	return u.String(), nil
}

// GetObject streams object bytes; used by the virus scanner.
func (m *MinioService) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.Client.GetObject(ctx, m.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.classify(key, err)
	}
	return obj, nil
}

// Remove deletes a single key. Deleting an absent key succeeds silently,
// absence being the desired end state.
func (m *MinioService) Remove(ctx context.Context, key string) error {
	err := m.Client.RemoveObject(ctx, m.BucketName, key, minio.RemoveObjectOptions{})
	return m.classify(key, err)
}

// RemoveBatch issues one multi-key delete for keys and reports per-key
// failures. Callers keep batches within MaxBatch.
func (m *MinioService) RemoveBatch(ctx context.Context, keys []string) []vfs.KeyError {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objectsCh <- minio.ObjectInfo{Key: k}
	}
	close(objectsCh)

	var failed []vfs.KeyError
	for rErr := range m.Client.RemoveObjects(ctx, m.BucketName, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			log.Printf("[MinIO] Failed to delete object %s: %v", rErr.ObjectName, rErr.Err)
			failed = append(failed, vfs.KeyError{Key: rErr.ObjectName, Err: rErr.Err})
		}
	}
	return failed
}

// Copy performs a single server-side copy.
func (m *MinioService) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := m.Client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.BucketName, Object: dstKey},
		minio.CopySrcOptions{Bucket: m.BucketName, Object: srcKey},
	)
	return m.classify(srcKey, err)
}

// ListPage fetches one page of keys under prefix. An empty continuation
// token requests the first page; Truncated plus NextToken drive the walk.
func (m *MinioService) ListPage(ctx context.Context, prefix, continuationToken string) (vfs.Page, error) {
	result, err := m.Core.ListObjectsV2(m.BucketName, prefix, "", continuationToken, "", m.MaxBatch)
	if err != nil {
		return vfs.Page{}, m.classify(prefix, err)
	}

	page := vfs.Page{
		Truncated: result.IsTruncated,
		NextToken: result.NextContinuationToken,
	}
	for _, obj := range result.Contents {
		page.Objects = append(page.Objects, vfs.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return page, nil
}
