// Package native talks to B2 through its native API.
package native

import (
	"context"

	"github.com/terrycain/backblaze-b2-storage/pkg/b2"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"github.com/terrycain/backblaze-b2-storage/pkg/session"
)

type Backend struct {
	session *session.Session
}

func New(sess *session.Session) *Backend {
	return &Backend{session: sess}
}

func (b *Backend) Type() string {
	return "native"
}

func (b *Backend) Authorize(ctx context.Context) error {
	_, err := b.session.AccountInfo(ctx)
	return err
}

func (b *Backend) Bucket(ctx context.Context, name string, fresh bool) (s.Bucket, error) {
	if fresh {
		return b.session.FreshBucket(ctx, name)
	}
	return b.session.Bucket(ctx, name)
}

func (b *Backend) CreateBucket(ctx context.Context, name string, details s.BucketDetails) (s.Bucket, error) {
	return b.session.CreateBucket(ctx, name, details)
}

func (b *Backend) Upload(ctx context.Context, bucket s.Bucket, name string, content []byte, contentType string, info map[string]string) (s.FileInfo, error) {
	var result s.FileInfo
	err := b.session.Do(ctx, func(client *b2.Client) error {
		var err error
		result, err = client.Upload(ctx, bucket, name, content, contentType, info)
		return err
	})
	return result, err
}

func (b *Backend) Download(ctx context.Context, bucket, name, byteRange string) (*s.Download, error) {
	var result *s.Download
	err := b.session.Do(ctx, func(client *b2.Client) error {
		var err error
		result, err = client.Download(ctx, bucket, name, byteRange)
		return err
	})
	return result, err
}

func (b *Backend) FileInfo(ctx context.Context, bucket, name string) (s.FileInfo, error) {
	var result s.FileInfo
	err := b.session.Do(ctx, func(client *b2.Client) error {
		var err error
		result, err = client.FileInfo(ctx, bucket, name)
		return err
	})
	return result, err
}

func (b *Backend) Delete(ctx context.Context, _ string, file s.FileInfo) error {
	return b.session.Do(ctx, func(client *b2.Client) error {
		return client.DeleteFileVersion(ctx, file.Name, file.ID)
	})
}

func (b *Backend) DownloadURL(ctx context.Context, bucket, name string) (string, error) {
	client, err := b.session.Client(ctx)
	if err != nil {
		return "", err
	}
	return client.DownloadURL(bucket, name), nil
}
