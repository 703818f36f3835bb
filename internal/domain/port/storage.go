package port

import "context"

type ObjectStorage interface {
	Download(ctx context.Context, bucket, key, destPath string) error
	Upload(ctx context.Context, bucket, key, srcPath, contentType string) error
	Remove(ctx context.Context, bucket, key string) error
}
