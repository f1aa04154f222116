package accountinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo/memory"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo/postgres"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo/redis"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo/sqlite"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
)

// Store persists B2 account authorization data and the bucket name to id
// mapping between operations, and possibly between processes. All
// implementations are safe for concurrent use.
type Store interface {
	Type() string
	// Get returns e.ErrMissingAccountData when nothing has been stored yet.
	Get(ctx context.Context) (s.AccountInfo, error)
	Set(ctx context.Context, info s.AccountInfo) error
	// Clear removes all account and bucket data.
	Clear(ctx context.Context) error
	// BucketID returns e.ErrNotFound for unknown buckets.
	BucketID(ctx context.Context, name string) (string, error)
	SaveBucket(ctx context.Context, bucket s.Bucket) error
	RemoveBucket(ctx context.Context, name string) error
	Close() error
}

// FileInfoCache is implemented by stores that can also hold short lived file metadata.
type FileInfoCache interface {
	// GetFileInfo returns e.ErrNotFound on a miss.
	GetFileInfo(ctx context.Context, key string) (s.FileInfo, error)
	SetFileInfo(ctx context.Context, key string, info s.FileInfo, ttl time.Duration) error
	DeleteFileInfo(ctx context.Context, key string) error
}

func GetStore(backend, connectionString string) (Store, error) {
	switch backend {
	case "", "memory":
		return memory.New()
	case "sqlite":
		return sqlite.NewSQLiteBackend(connectionString)
	case "postgres":
		return postgres.NewPostgresBackend(connectionString)
	case "redis":
		return redis.New(connectionString)
	default:
		return nil, fmt.Errorf("%w: invalid account info backend %q", e.ErrImproperlyConfigured, backend)
	}
}
