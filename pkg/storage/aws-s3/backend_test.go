package awss3

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo/memory"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"github.com/terrycain/backblaze-b2-storage/pkg/session"
)

func TestRegionFromEndpoint(t *testing.T) {
	tables := []struct {
		endpoint string
		expected string
	}{
		{"https://s3.us-west-004.backblazeb2.com", "us-west-004"},
		{"https://s3.eu-central-003.backblazeb2.com/", "eu-central-003"},
		{"http://localhost:4566", defaultRegion},
		{"::", defaultRegion},
	}
	for _, table := range tables {
		if diff := cmp.Diff(table.expected, RegionFromEndpoint(table.endpoint)); diff != "" {
			t.Errorf("RegionFromEndpoint(%q) mismatch (-want +got):\n%s", table.endpoint, diff)
		}
	}
}

// Runs against localstack or any other S3 compatible endpoint given in STORAGE_S3
func TestS3Backend(t *testing.T) {
	endpoint := os.Getenv("STORAGE_S3")
	if endpoint == "" {
		t.Skip("Skipped S3 as no env var")
	}
	ctx := context.Background()

	store, err := memory.New()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	creds := session.Credentials{Realm: "production", ApplicationKeyID: "test", ApplicationKey: "test"}
	err = store.Set(ctx, s.AccountInfo{
		AuthToken:        "unused",
		APIURL:           endpoint,
		DownloadURL:      endpoint,
		S3APIURL:         endpoint,
		ApplicationKeyID: creds.ApplicationKeyID,
		Realm:            creds.Realm,
	})
	if err != nil {
		t.Fatal(err)
	}
	backend := New(session.New(creds, store, nil), creds.ApplicationKeyID, creds.ApplicationKey)

	name := uuid.NewString()
	if _, err = backend.Bucket(ctx, name, false); !errors.Is(err, e.ErrNonExistentBucket) {
		t.Fatalf("expected ErrNonExistentBucket, got %#v", err)
	}
	bucket, err := backend.CreateBucket(ctx, name, s.BucketDetails{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err = backend.Upload(ctx, bucket, "dir/file.txt", []byte("hello there"), "", map[string]string{"owner": "me"}); err != nil {
		t.Fatal(err)
	}
	info, err := backend.FileInfo(ctx, name, "dir/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(int64(11), info.Size); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(map[string]string{"owner": "me"}, info.Extra); diff != "" {
		t.Fatal(diff)
	}

	download, err := backend.Download(ctx, name, "dir/file.txt", "bytes=0-4")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(download.Body)
	_ = download.Body.Close()
	if diff := cmp.Diff("hello", string(body)); diff != "" {
		t.Fatal(diff)
	}

	if _, err = backend.DownloadURL(ctx, name, "dir/file.txt"); err != nil {
		t.Fatal(err)
	}
	if err = backend.Delete(ctx, name, info); err != nil {
		t.Fatal(err)
	}
	if _, err = backend.FileInfo(ctx, name, "dir/file.txt"); !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %#v", err)
	}
}
