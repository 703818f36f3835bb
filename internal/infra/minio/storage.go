package minio

import (
	"context"
	"fmt"
	"math"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
)

// Storage is the blob-storage gateway. Transient network errors are retried
// with capped exponential backoff inside the attempt before surfacing as a
// transient job failure.
type Storage struct {
	client    *miniogo.Client
	retries   int
	retryBase time.Duration
	logger    *zap.Logger
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Retries   int
	RetryBase time.Duration
}

func NewStorage(cfg StorageConfig, logger *zap.Logger) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &Storage{
		client:    client,
		retries:   cfg.Retries,
		retryBase: cfg.RetryBase,
		logger:    logger,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) Download(ctx context.Context, bucket, key, destPath string) error {
	err := s.withRetry(ctx, "download", func() error {
		return s.client.FGetObject(ctx, bucket, key, destPath, miniogo.GetObjectOptions{})
	})
	if err != nil {
		resp := miniogo.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return entity.PermanentWrap(err, fmt.Sprintf("source object %s/%s missing", bucket, key))
		}
		return entity.TransientWrap(err, "download object")
	}
	return nil
}

// Upload overwrites unconditionally: destination keys are deterministic
// upstream, so a redelivered job rewrites the same object.
func (s *Storage) Upload(ctx context.Context, bucket, key, srcPath, contentType string) error {
	err := s.withRetry(ctx, "upload", func() error {
		_, err := s.client.FPutObject(ctx, bucket, key, srcPath, miniogo.PutObjectOptions{
			ContentType: contentType,
		})
		return err
	})
	if err != nil {
		return entity.TransientWrap(err, "upload object")
	}
	return nil
}

func (s *Storage) Remove(ctx context.Context, bucket, key string) error {
	err := s.withRetry(ctx, "remove", func() error {
		return s.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{})
	})
	if err != nil {
		return entity.TransientWrap(err, "remove object")
	}
	return nil
}

func (s *Storage) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		// Missing objects are not transient; retrying cannot create them.
		if resp := miniogo.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return err
		}
		if attempt == s.retries {
			break
		}
		delay := time.Duration(math.Pow(2, float64(attempt-1))) * s.retryBase
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		s.logger.Warn("storage operation failed, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
