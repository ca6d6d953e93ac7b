// Package storage persists generated contract documents in S3-compatible
// object storage. When MinIO is not configured the workflow still records
// contract rows, just without an object key.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"adops_backend/platform/config"
	"adops_backend/platform/logger"
)

// PresignedURLTTL is how long generated download links stay valid.
const PresignedURLTTL = 15 * time.Minute

// ContractStorage stores rendered contract documents in a MinIO bucket,
// one object per campaign, keyed under the owning tenant.
type ContractStorage struct {
	client *minio.Client
	bucket string
	log    *logger.Logger
}

// NewContractStorage creates the MinIO-backed contract store. When MinIO is
// disabled in config it returns a storage that reports Enabled() == false
// and refuses writes.
func NewContractStorage(cfg config.StorageConfig, log *logger.Logger) (*ContractStorage, error) {
	if !cfg.IsMinIOEnabled() {
		return &ContractStorage{log: log}, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &ContractStorage{
		client: client,
		bucket: cfg.GetMinioBucketContracts(),
		log:    log,
	}, nil
}

// Enabled reports whether object storage is configured.
func (s *ContractStorage) Enabled() bool {
	return s.client != nil
}

// EnsureBucket creates the contracts bucket if it does not exist. Called
// once at startup.
func (s *ContractStorage) EnsureBucket(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// StoreContract writes the rendered contract and returns its object key.
// Re-running a campaign's terminal stage overwrites the same key, so object
// storage never accumulates duplicates.
func (s *ContractStorage) StoreContract(ctx context.Context, tenantID, campaignID uuid.UUID, content []byte) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("object storage is not configured")
	}

	key := contractKey(tenantID, campaignID)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("upload contract %s: %w", key, err)
	}

	s.log.Debug("contract stored", "bucket", s.bucket, "key", key)
	return key, nil
}

// DownloadURL creates a short-lived presigned link for a stored contract.
func (s *ContractStorage) DownloadURL(ctx context.Context, objectKey string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("object storage is not configured")
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, PresignedURLTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign contract %s: %w", objectKey, err)
	}
	return u.String(), nil
}

func contractKey(tenantID, campaignID uuid.UUID) string {
	return fmt.Sprintf("tenants/%s/contracts/%s.txt", tenantID, campaignID)
}
