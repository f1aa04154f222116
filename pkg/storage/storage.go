package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/metrics"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"github.com/terrycain/backblaze-b2-storage/pkg/session"
	awss3 "github.com/terrycain/backblaze-b2-storage/pkg/storage/aws-s3"
	"github.com/terrycain/backblaze-b2-storage/pkg/storage/disk"
	"github.com/terrycain/backblaze-b2-storage/pkg/storage/native"
	"github.com/terrycain/backblaze-b2-storage/pkg/utils"
	"golang.org/x/crypto/sha3"
)

const (
	FileInfoTTL = 60 * time.Second

	maxNameAttempts = 100
)

// Backend performs object operations for one account. Buckets are passed by
// name except for uploads, which need the resolved id.
type Backend interface {
	Type() string
	// Authorize makes sure account info is available, it is a no-op for backends without accounts.
	Authorize(ctx context.Context) error
	// Bucket returns e.ErrNonExistentBucket for unknown buckets. fresh skips any cached id.
	Bucket(ctx context.Context, name string, fresh bool) (s.Bucket, error)
	CreateBucket(ctx context.Context, name string, details s.BucketDetails) (s.Bucket, error)
	Upload(ctx context.Context, bucket s.Bucket, name string, content []byte, contentType string, info map[string]string) (s.FileInfo, error)
	Download(ctx context.Context, bucket, name, byteRange string) (*s.Download, error)
	// FileInfo returns an error wrapping e.ErrNotFound for missing files.
	FileInfo(ctx context.Context, bucket, name string) (s.FileInfo, error)
	Delete(ctx context.Context, bucket string, file s.FileInfo) error
	DownloadURL(ctx context.Context, bucket, name string) (string, error)
}

func GetStorageBackend(transport string, sess *session.Session, creds session.Credentials, diskPath string) (Backend, error) {
	switch transport {
	case "", "native":
		return native.New(sess), nil
	case "s3":
		return awss3.New(sess, creds.ApplicationKeyID, creds.ApplicationKey), nil
	case "disk":
		return disk.New(diskPath)
	default:
		return nil, fmt.Errorf("%w: invalid storage transport %q", e.ErrImproperlyConfigured, transport)
	}
}

// Storage maps file names onto one bucket. It is safe for concurrent use.
type Storage struct {
	opts    Options
	tier    Tier
	backend Backend
	cache   accountinfo.FileInfoCache

	mu       sync.Mutex
	bucket   *s.Bucket
	isPublic *bool
}

// New builds the storage for a tier. Unless authorization is lazy the account is
// authorized straight away, and with validation on the bucket is looked up (or
// created when NonExistentBucketDetails is set).
func New(ctx context.Context, opts Options, tier Tier, store accountinfo.Store, options ...Option) (*Storage, error) {
	st, err := applyOptions(opts, tier, options)
	if err != nil {
		return nil, err
	}
	opts = st.opts
	log.Debug().Str("tier", tier.String()).Interface("options", opts.Redacted()).Msg("Initialising storage")

	backend := st.backend
	if backend == nil {
		creds := session.Credentials{Realm: opts.Realm, ApplicationKeyID: opts.ApplicationKeyID, ApplicationKey: opts.ApplicationKey}
		sess := session.New(creds, store, opts.HTTPClient)
		if backend, err = GetStorageBackend(opts.Transport, sess, creds, opts.DiskPath); err != nil {
			return nil, err
		}
	}

	storage := &Storage{opts: opts, tier: tier, backend: backend}
	if cache, ok := store.(accountinfo.FileInfoCache); ok && !opts.ForbidFilePropertyCaching {
		storage.cache = cache
	}
	log.Info().Str("tier", tier.String()).Str("bucket", opts.Bucket).Str("transport", backend.Type()).Msg("Storage instantiated")

	if opts.AuthorizeOnInit {
		log.Debug().Str("tier", tier.String()).Msg("Authorizing")
		if err = backend.Authorize(ctx); err != nil {
			return nil, err
		}
		if opts.ValidateOnInit {
			if _, err = storage.getOrCreateBucket(ctx, opts.NonExistentBucketDetails); err != nil {
				return nil, err
			}
		}
	}

	return storage, nil
}

func (st *Storage) Tier() Tier         { return st.tier }
func (st *Storage) BucketName() string { return st.opts.Bucket }
func (st *Storage) Options() Options   { return st.opts }

// Path is the name itself, files are not on the local filesystem.
func (st *Storage) Path(name string) string { return name }

func (st *Storage) getOrCreateBucket(ctx context.Context, details *s.BucketDetails) (s.Bucket, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.bucket != nil {
		return *st.bucket, nil
	}

	bucket, err := st.backend.Bucket(ctx, st.opts.Bucket, false)
	if errors.Is(err, e.ErrNonExistentBucket) && details != nil {
		log.Debug().Str("bucket", st.opts.Bucket).Interface("details", details).Msg("Bucket not found, creating")
		bucket, err = st.backend.CreateBucket(ctx, st.opts.Bucket, *details)
	}
	if err != nil {
		return s.Bucket{}, err
	}

	log.Debug().Str("bucket", bucket.Name).Str("id", bucket.ID).Msg("Connected to bucket")
	st.bucket = &bucket
	return bucket, nil
}

func (st *Storage) getBucket(ctx context.Context) (s.Bucket, error) {
	return st.getOrCreateBucket(ctx, nil)
}

func (st *Storage) isPublicBucket(ctx context.Context) (bool, error) {
	bucket, err := st.getBucket(ctx)
	if err != nil {
		return false, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.isPublic != nil {
		return *st.isPublic, nil
	}
	if bucket.Type == "" {
		// Only the id was cached, get the full bucket
		if bucket, err = st.backend.Bucket(ctx, st.opts.Bucket, true); err != nil {
			return false, err
		}
		st.bucket = &bucket
	}
	public := bucket.Type == "allPublic"
	st.isPublic = &public
	return public, nil
}

func (st *Storage) fileCacheKey(name string) string {
	sum := sha3.Sum224([]byte(st.opts.Bucket + "__" + name))
	return hex.EncodeToString(sum[:])
}

// fileInfo returns false when the file does not exist, names that can never
// exist included.
func (st *Storage) fileInfo(ctx context.Context, name string) (s.FileInfo, bool, error) {
	name, err := utils.CleanFileName(name)
	if errors.Is(err, e.ErrNotFound) {
		return s.FileInfo{}, false, nil
	} else if err != nil {
		return s.FileInfo{}, false, err
	}

	var key string
	if st.cache != nil {
		key = st.fileCacheKey(name)
		if info, err := st.cache.GetFileInfo(ctx, key); err == nil {
			metrics.FileInfoLookups.WithLabelValues(metrics.Hit).Inc()
			return info, true, nil
		} else if !errors.Is(err, e.ErrNotFound) {
			log.Warn().Err(err).Str("name", name).Msg("Failed to read file info cache")
		}
		metrics.FileInfoLookups.WithLabelValues(metrics.Miss).Inc()
		log.Debug().Str("name", name).Msg("File info cache miss")
	}

	info, err := st.backend.FileInfo(ctx, st.opts.Bucket, name)
	if errors.Is(err, e.ErrNotFound) {
		return s.FileInfo{}, false, nil
	} else if err != nil {
		return s.FileInfo{}, false, err
	}

	if st.cache != nil {
		if err = st.cache.SetFileInfo(ctx, key, info, FileInfoTTL); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("Failed to cache file info")
		}
	}
	return info, true, nil
}

func (st *Storage) forget(ctx context.Context, name string) {
	if st.cache == nil {
		return
	}
	if err := st.cache.DeleteFileInfo(ctx, st.fileCacheKey(name)); err != nil {
		log.Warn().Err(err).Str("name", name).Msg("Failed to evict file info")
	}
}

func (st *Storage) upload(ctx context.Context, name string, content []byte) error {
	bucket, err := st.getBucket(ctx)
	if err != nil {
		return err
	}

	log.Debug().Str("name", name).Str("bucket", bucket.Name).Int("size", len(content)).Msg("Uploading file")
	if _, err = st.backend.Upload(ctx, bucket, name, content, "", st.opts.DefaultFileInfo); err != nil {
		return err
	}
	st.forget(ctx, name)
	return nil
}

// Save uploads r under an available name and returns that name.
func (st *Storage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	name, err := utils.CleanFileName(name)
	if err != nil {
		return "", err
	}
	if name, err = st.GetAvailableName(ctx, name); err != nil {
		return "", err
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if err = st.upload(ctx, name, content); err != nil {
		return "", err
	}
	return name, nil
}

// GetAvailableName returns name if it is free, or if overwrites are allowed.
// Otherwise a random suffix is added to the file name before its extension.
func (st *Storage) GetAvailableName(ctx context.Context, name string) (string, error) {
	name, err := utils.CleanFileName(name)
	if err != nil {
		return "", err
	}
	if st.opts.AllowFileOverwrites {
		return name, nil
	}

	dir, file := path.Split(name)
	root, ext := splitExt(file)
	candidate := name
	for i := 0; i < maxNameAttempts; i++ {
		exists, err := st.Exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = dir + root + "_" + randomSuffix() + ext
	}
	return "", fmt.Errorf("could not find an available name for %s", name)
}

// splitExt keeps every extension together, "archive.tar.gz" is ("archive", ".tar.gz").
func splitExt(file string) (string, string) {
	trimmed := strings.TrimLeft(file, ".")
	i := strings.Index(trimmed, ".")
	if i < 0 {
		return file, ""
	}
	i += len(file) - len(trimmed)
	return file[:i], file[i:]
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
}

func (st *Storage) Open(ctx context.Context, name, mode string) (*File, error) {
	name, err := utils.CleanFileName(name)
	if err != nil {
		return nil, err
	}
	return &File{Name: name, ctx: ctx, storage: st, mode: mode}, nil
}

// Download streams a file, byteRange is an optional Range header value.
// It is the caller's responsibility to close the body.
func (st *Storage) Download(ctx context.Context, name, byteRange string) (*s.Download, error) {
	name, err := utils.CleanFileName(name)
	if err != nil {
		return nil, err
	}
	return st.backend.Download(ctx, st.opts.Bucket, name, byteRange)
}

// FileInfo returns an error wrapping e.ErrNotFound when the file is missing.
func (st *Storage) FileInfo(ctx context.Context, name string) (s.FileInfo, error) {
	info, ok, err := st.fileInfo(ctx, name)
	if err != nil {
		return s.FileInfo{}, err
	}
	if !ok {
		return s.FileInfo{}, fmt.Errorf("%w: %s", e.ErrNotFound, name)
	}
	return info, nil
}

func (st *Storage) Exists(ctx context.Context, name string) (bool, error) {
	_, ok, err := st.fileInfo(ctx, name)
	return ok, err
}

// Size is 0 for missing files.
func (st *Storage) Size(ctx context.Context, name string) (int64, error) {
	info, _, err := st.fileInfo(ctx, name)
	return info.Size, err
}

// Delete removes the file, deleting a missing file is not an error.
func (st *Storage) Delete(ctx context.Context, name string) error {
	name, err := utils.CleanFileName(name)
	if errors.Is(err, e.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	info, ok, err := st.fileInfo(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("name", name).Msg("Not deleting, file not found")
		return nil
	}

	log.Debug().Str("name", name).Str("id", info.ID).Msg("Deleting file")
	if err = st.backend.Delete(ctx, st.opts.Bucket, info); err != nil {
		return err
	}
	st.forget(ctx, name)
	return nil
}

// URL is where clients should fetch the file from. Proxied tiers return a
// proxy route unless the public bucket can be read directly.
func (st *Storage) URL(ctx context.Context, name string) (string, error) {
	name, err := utils.CleanFileName(name)
	if err != nil {
		return "", err
	}

	switch st.tier {
	case TierNone:
		return st.directURL(ctx, name)
	case TierPublic:
		public, err := st.isPublicBucket(ctx)
		if err != nil {
			return "", err
		}
		if public {
			return st.directURL(ctx, name)
		}
	}
	return st.ProxyURL(name), nil
}

func (st *Storage) ProxyURL(name string) string {
	return strings.TrimSuffix(st.opts.ProxyBaseURL, "/") + "/" + st.tier.Prefix() + "/" + escapePath(name)
}

func (st *Storage) directURL(ctx context.Context, name string) (string, error) {
	if cdn := st.opts.CDNConfig; cdn != nil && cdn.BaseURL != "" {
		uri := strings.TrimSuffix(cdn.BaseURL, "/")
		if cdn.IncludeBucketURLSegments {
			uri += "/file/" + url.PathEscape(st.opts.Bucket)
		}
		return uri + "/" + escapePath(name), nil
	}
	return st.BackblazeURL(ctx, name)
}

// BackblazeURL is the unproxied B2 download URL, ignoring any CDN.
func (st *Storage) BackblazeURL(ctx context.Context, name string) (string, error) {
	name, err := utils.CleanFileName(name)
	if err != nil {
		return "", err
	}
	return st.backend.DownloadURL(ctx, st.opts.Bucket, name)
}

func (st *Storage) CreatedTime(ctx context.Context, name string) (time.Time, error) {
	info, ok, err := st.fileInfo(ctx, name)
	if err != nil {
		return time.Time{}, err
	}
	if !ok || info.Timestamp <= 0 {
		return time.Time{}, fmt.Errorf("%w: 'uploadTimestamp' not available for %s", e.ErrFileInfoUnavailable, name)
	}
	return info.Created(), nil
}

// ModifiedTime is the upload time, B2 files are never modified in place.
func (st *Storage) ModifiedTime(ctx context.Context, name string) (time.Time, error) {
	return st.CreatedTime(ctx, name)
}

func (st *Storage) AccessedTime(_ context.Context, _ string) (time.Time, error) {
	return time.Time{}, e.ErrNotImplemented
}

func (st *Storage) ListDir(_ context.Context, _ string) ([]string, []string, error) {
	return nil, nil, e.ErrNotImplemented
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

// read downloads the whole file.
func (st *Storage) read(ctx context.Context, name string) (*bytes.Reader, error) {
	download, err := st.Download(ctx, name, "")
	if err != nil {
		return nil, err
	}
	defer download.Body.Close()

	content, err := io.ReadAll(download.Body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(content), nil
}
