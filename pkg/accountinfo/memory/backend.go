package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
)

// LifeWindow bounds how long any file info entry is kept.
const LifeWindow = 5 * time.Minute

type Backend struct {
	mu      sync.RWMutex
	info    *s.AccountInfo
	buckets map[string]string

	files *bigcache.BigCache
}

type fileEntry struct {
	Info    s.FileInfo `json:"info"`
	Expires time.Time  `json:"expires"`
}

func New() (*Backend, error) {
	config := bigcache.DefaultConfig(LifeWindow)
	config.Shards = 64
	config.MaxEntriesInWindow = 64 * 16
	config.CleanWindow = time.Minute
	config.Verbose = false

	files, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &Backend{buckets: make(map[string]string), files: files}, nil
}

func (b *Backend) Type() string { return "memory" }

func (b *Backend) Get(_ context.Context) (s.AccountInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.info == nil {
		return s.AccountInfo{}, e.ErrMissingAccountData
	}
	return *b.info, nil
}

func (b *Backend) Set(_ context.Context, info s.AccountInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.info = &info
	return nil
}

func (b *Backend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.info = nil
	b.buckets = make(map[string]string)
	return b.files.Reset()
}

func (b *Backend) BucketID(_ context.Context, name string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.buckets[name]
	if !ok {
		return "", e.ErrNotFound
	}
	return id, nil
}

func (b *Backend) SaveBucket(_ context.Context, bucket s.Bucket) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets[bucket.Name] = bucket.ID
	return nil
}

func (b *Backend) RemoveBucket(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buckets, name)
	return nil
}

func (b *Backend) GetFileInfo(_ context.Context, key string) (s.FileInfo, error) {
	raw, err := b.files.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return s.FileInfo{}, e.ErrNotFound
	} else if err != nil {
		return s.FileInfo{}, err
	}

	entry := fileEntry{}
	if err = json.Unmarshal(raw, &entry); err != nil {
		return s.FileInfo{}, err
	}
	if time.Now().After(entry.Expires) {
		_ = b.files.Delete(key)
		return s.FileInfo{}, e.ErrNotFound
	}
	return entry.Info, nil
}

// SetFileInfo stores info for ttl, capped at LifeWindow.
func (b *Backend) SetFileInfo(_ context.Context, key string, info s.FileInfo, ttl time.Duration) error {
	raw, err := json.Marshal(fileEntry{Info: info, Expires: time.Now().Add(ttl)})
	if err != nil {
		return err
	}
	return b.files.Set(key, raw)
}

func (b *Backend) DeleteFileInfo(_ context.Context, key string) error {
	if err := b.files.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (b *Backend) Close() error {
	return b.files.Close()
}
