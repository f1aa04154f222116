// Package disk keeps buckets as directories under a base path. It needs no
// account and is meant for local development.
package disk

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	p "path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"github.com/terrycain/backblaze-b2-storage/pkg/utils"
)

const (
	metaDir        = ".b2meta"
	bucketTypeFile = ".bucket-type"
)

type Backend struct {
	BaseDir string
}

func New(baseDir string) (*Backend, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: path %s does not exist", e.ErrImproperlyConfigured, baseDir)
	}
	absolute, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}

	// Enable uuid rand pool for better performance
	uuid.EnableRandPool()

	return &Backend{BaseDir: absolute}, nil
}

func (b *Backend) Type() string {
	return "disk"
}

func (b *Backend) Authorize(_ context.Context) error {
	return nil
}

// GetFilePath maps a key onto the filesystem, refusing anything outside BaseDir.
func (b *Backend) GetFilePath(bucket, key string) (string, error) {
	filePath := filepath.Clean(filepath.Join(b.BaseDir, bucket, filepath.FromSlash(key)))
	if !strings.HasPrefix(filePath, filepath.Join(b.BaseDir, bucket)+string(filepath.Separator)) {
		return "", e.ErrNotFound
	}
	return filePath, nil
}

func (b *Backend) metaPath(bucket, key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(b.BaseDir, metaDir, bucket, hex.EncodeToString(sum[:])+".json")
}

func (b *Backend) Bucket(_ context.Context, name string, _ bool) (s.Bucket, error) {
	bucketDir := filepath.Join(b.BaseDir, name)
	if stat, err := os.Stat(bucketDir); err != nil || !stat.IsDir() || strings.ContainsAny(name, `/\`) {
		return s.Bucket{}, fmt.Errorf("%w: %s", e.ErrNonExistentBucket, name)
	}

	bucketType := "allPrivate"
	if raw, err := os.ReadFile(filepath.Join(b.BaseDir, metaDir, name, bucketTypeFile)); err == nil {
		bucketType = strings.TrimSpace(string(raw))
	}
	return s.Bucket{ID: name, Name: name, Type: bucketType}, nil
}

func (b *Backend) CreateBucket(ctx context.Context, name string, details s.BucketDetails) (s.Bucket, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == metaDir {
		return s.Bucket{}, fmt.Errorf("%w: invalid bucket name %q", e.ErrImproperlyConfigured, name)
	}
	if details.Type == "" {
		details.Type = "allPrivate"
	}

	if err := os.MkdirAll(filepath.Join(b.BaseDir, name), 0o755); err != nil {
		return s.Bucket{}, err
	}
	if err := os.MkdirAll(filepath.Join(b.BaseDir, metaDir, name), 0o755); err != nil {
		return s.Bucket{}, err
	}
	if err := os.WriteFile(filepath.Join(b.BaseDir, metaDir, name, bucketTypeFile), []byte(details.Type), 0o644); err != nil {
		return s.Bucket{}, err
	}
	return b.Bucket(ctx, name, true)
}

func (b *Backend) Upload(_ context.Context, bucket s.Bucket, name string, content []byte, contentType string, info map[string]string) (s.FileInfo, error) {
	filePath, err := b.GetFilePath(bucket.Name, name)
	if err != nil {
		return s.FileInfo{}, err
	}
	if err = os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return s.FileInfo{}, err
	}

	if contentType == "" {
		if contentType = mime.TypeByExtension(p.Ext(name)); contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	fi := s.FileInfo{
		ID:          uuid.New().String(),
		Name:        name,
		Bucket:      bucket.Name,
		Size:        int64(len(content)),
		ContentType: contentType,
		Extra:       info,
		Timestamp:   time.Now().UnixMilli(),
	}

	// Write to a temp file first so readers never see half a file
	tmpPath := filepath.Join(filepath.Dir(filePath), "."+fi.ID+".tmp")
	if err = os.WriteFile(tmpPath, content, 0o644); err != nil {
		return s.FileInfo{}, err
	}
	if err = os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return s.FileInfo{}, err
	}

	raw, err := json.Marshal(fi)
	if err != nil {
		return s.FileInfo{}, err
	}
	metaPath := b.metaPath(bucket.Name, name)
	if err = os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return s.FileInfo{}, err
	}
	if err = os.WriteFile(metaPath, raw, 0o644); err != nil {
		return s.FileInfo{}, err
	}

	log.Debug().Str("path", filePath).Msg("Wrote file")
	return fi, nil
}

func (b *Backend) FileInfo(_ context.Context, bucket, name string) (s.FileInfo, error) {
	filePath, err := b.GetFilePath(bucket, name)
	if err != nil {
		return s.FileInfo{}, err
	}
	stat, err := os.Stat(filePath)
	if os.IsNotExist(err) || (err == nil && stat.IsDir()) {
		return s.FileInfo{}, fmt.Errorf("%w: %s", e.ErrNotFound, name)
	} else if err != nil {
		return s.FileInfo{}, err
	}

	fi := s.FileInfo{}
	if raw, err2 := os.ReadFile(b.metaPath(bucket, name)); err2 == nil {
		_ = json.Unmarshal(raw, &fi)
	}
	// Files copied in by hand have no metadata
	fi.Name = name
	fi.Bucket = bucket
	fi.Size = stat.Size()
	if fi.ContentType == "" {
		if fi.ContentType = mime.TypeByExtension(p.Ext(name)); fi.ContentType == "" {
			fi.ContentType = "application/octet-stream"
		}
	}
	if fi.Timestamp == 0 {
		fi.Timestamp = stat.ModTime().UnixMilli()
	}
	return fi, nil
}

type sectionReadCloser struct {
	io.Reader
	io.Closer
}

func (b *Backend) Download(ctx context.Context, bucket, name, byteRange string) (*s.Download, error) {
	fi, err := b.FileInfo(ctx, bucket, name)
	if err != nil {
		return nil, err
	}
	filePath, _ := b.GetFilePath(bucket, name)

	fp, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	download := &s.Download{FileInfo: fi, Body: fp}
	if byteRange == "" {
		return download, nil
	}

	r, err := utils.ParseRange(byteRange)
	if err != nil {
		_ = fp.Close()
		return nil, err
	}
	start, end, err := r.Resolve(fi.Size)
	if err != nil {
		_ = fp.Close()
		return nil, err
	}
	download.ContentRange, _ = r.ContentRange(fi.Size)
	download.Partial = true
	download.Size = end - start + 1
	download.Body = sectionReadCloser{Reader: io.NewSectionReader(fp, start, end-start+1), Closer: fp}
	return download, nil
}

func (b *Backend) Delete(_ context.Context, bucket string, file s.FileInfo) error {
	filePath, err := b.GetFilePath(bucket, file.Name)
	if err != nil {
		return err
	}
	if err = os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err = os.Remove(b.metaPath(bucket, file.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *Backend) DownloadURL(_ context.Context, bucket, name string) (string, error) {
	filePath, err := b.GetFilePath(bucket, name)
	if err != nil {
		return "", err
	}
	fileURL := url.URL{Scheme: "file", Path: filepath.ToSlash(filePath)}
	return fileURL.String(), nil
}
