package redis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"golang.org/x/crypto/sha3"
)

const (
	prefix         = "b2:"
	accountInfoKey = prefix + "account_info"
	bucketPrefix   = prefix + "bucket:"
	filePrefix     = prefix + "file:"
)

// Backend keeps account info in redis so several processes can share one authorization.
type Backend struct {
	client redis.UniversalClient
}

// New connects using a redis:// or rediss:// URL.
func New(url string) (*Backend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err = client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Backend{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient) *Backend {
	return &Backend{client: client}
}

func (b *Backend) Type() string { return "redis" }

// Bucket names may contain anything, keys are hashed to keep them well formed.
func bucketKey(name string) string {
	sum := sha3.Sum224([]byte(name))
	return bucketPrefix + hex.EncodeToString(sum[:])
}

func (b *Backend) Get(ctx context.Context) (s.AccountInfo, error) {
	raw, err := b.client.Get(ctx, accountInfoKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.AccountInfo{}, e.ErrMissingAccountData
	} else if err != nil {
		return s.AccountInfo{}, err
	}

	info := s.AccountInfo{}
	if err = json.Unmarshal(raw, &info); err != nil {
		return s.AccountInfo{}, err
	}
	return info, nil
}

func (b *Backend) Set(ctx context.Context, info s.AccountInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, accountInfoKey, raw, 0).Err()
}

func (b *Backend) Clear(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	log.Debug().Int("keys", len(keys)).Msg("Clearing account info keys")
	return b.client.Del(ctx, keys...).Err()
}

func (b *Backend) BucketID(ctx context.Context, name string) (string, error) {
	id, err := b.client.Get(ctx, bucketKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", e.ErrNotFound
	}
	return id, err
}

func (b *Backend) SaveBucket(ctx context.Context, bucket s.Bucket) error {
	return b.client.Set(ctx, bucketKey(bucket.Name), bucket.ID, 0).Err()
}

func (b *Backend) RemoveBucket(ctx context.Context, name string) error {
	return b.client.Del(ctx, bucketKey(name)).Err()
}

func (b *Backend) GetFileInfo(ctx context.Context, key string) (s.FileInfo, error) {
	raw, err := b.client.Get(ctx, filePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.FileInfo{}, e.ErrNotFound
	} else if err != nil {
		return s.FileInfo{}, err
	}

	info := s.FileInfo{}
	err = json.Unmarshal(raw, &info)
	return info, err
}

func (b *Backend) SetFileInfo(ctx context.Context, key string, info s.FileInfo, ttl time.Duration) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, filePrefix+key, raw, ttl).Err()
}

func (b *Backend) DeleteFileInfo(ctx context.Context, key string) error {
	return b.client.Del(ctx, filePrefix+key).Err()
}

func (b *Backend) Close() error {
	return b.client.Close()
}
