package accountinfo_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo/memory"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	if _, exists := os.LookupEnv("DEBUG"); exists {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	os.Exit(m.Run())
}

func testInfo() s.AccountInfo {
	return s.AccountInfo{
		AccountID:               "account",
		AuthToken:               "token",
		APIURL:                  "https://api001.backblazeb2.com",
		DownloadURL:             "https://f001.backblazeb2.com",
		S3APIURL:                "https://s3.us-west-001.backblazeb2.com",
		RecommendedPartSize:     100000000,
		AbsoluteMinimumPartSize: 5000000,
		Allowed:                 s.Allowed{BucketName: "some-bucket", Capabilities: []string{"readFiles", "writeFiles"}},
		ApplicationKeyID:        "key-id",
		Realm:                   "production",
	}
}

func getStore(t *testing.T, backend, conn string) accountinfo.Store {
	t.Helper()
	store, err := accountinfo.GetStore(backend, conn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStores(t *testing.T) {
	runTests := func(store accountinfo.Store, t *testing.T) {
		t.Run("missing-account-data", testMissingAccountData(store))
		t.Run("set-get", testSetGet(store))
		t.Run("overwrite", testOverwrite(store))
		t.Run("buckets", testBuckets(store))
		t.Run("clear", testClear(store))
		if cache, ok := store.(accountinfo.FileInfoCache); ok {
			t.Run("file-info", testFileInfo(cache))
		}
	}

	t.Run("memory", func(t *testing.T) {
		runTests(getStore(t, "memory", ""), t)
	})

	t.Run("sqlite", func(t *testing.T) {
		runTests(getStore(t, "sqlite", "file::memory:"), t)
	})

	t.Run("redis", func(t *testing.T) {
		mini := miniredis.RunT(t)
		runTests(getStore(t, "redis", "redis://"+mini.Addr()), t)
	})

	t.Run("postgres", func(t *testing.T) {
		pgURL := os.Getenv("DB_POSTGRES")
		if pgURL == "" {
			t.Skip("Skipped postgres as no env var")
		}
		runTests(getStore(t, "postgres", pgURL), t)
	})
}

func testMissingAccountData(store accountinfo.Store) func(t *testing.T) {
	return func(t *testing.T) {
		if err := store.Clear(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Get(context.Background()); !errors.Is(err, e.ErrMissingAccountData) {
			t.Fatalf("expected ErrMissingAccountData, got %#v", err)
		}
	}
}

func testSetGet(store accountinfo.Store) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		expected := testInfo()
		if err := store.Set(ctx, expected); err != nil {
			t.Fatal(err)
		}

		info, err := store.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(expected, info); diff != "" {
			t.Fatalf("Get() mismatch (-want +got):\n%s", diff)
		}
	}
}

func testOverwrite(store accountinfo.Store) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		expected := testInfo()
		expected.AuthToken = "another-token"
		if err := store.Set(ctx, testInfo()); err != nil {
			t.Fatal(err)
		}
		if err := store.Set(ctx, expected); err != nil {
			t.Fatal(err)
		}

		info, err := store.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff("another-token", info.AuthToken); diff != "" {
			t.Fatal(diff)
		}
	}
}

func testBuckets(store accountinfo.Store) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		if _, err := store.BucketID(ctx, "unknown"); !errors.Is(err, e.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %#v", err)
		}

		if err := store.SaveBucket(ctx, s.Bucket{Name: "a bucket", ID: "id-1"}); err != nil {
			t.Fatal(err)
		}
		if err := store.SaveBucket(ctx, s.Bucket{Name: "a bucket", ID: "id-2"}); err != nil {
			t.Fatal(err)
		}
		id, err := store.BucketID(ctx, "a bucket")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff("id-2", id); diff != "" {
			t.Fatal(diff)
		}

		if err = store.RemoveBucket(ctx, "a bucket"); err != nil {
			t.Fatal(err)
		}
		if _, err = store.BucketID(ctx, "a bucket"); !errors.Is(err, e.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after removal, got %#v", err)
		}
		// Removing twice is not an error
		if err = store.RemoveBucket(ctx, "a bucket"); err != nil {
			t.Fatal(err)
		}
	}
}

func testClear(store accountinfo.Store) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		if err := store.Set(ctx, testInfo()); err != nil {
			t.Fatal(err)
		}
		if err := store.SaveBucket(ctx, s.Bucket{Name: "bucket", ID: "id"}); err != nil {
			t.Fatal(err)
		}

		if err := store.Clear(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Get(ctx); !errors.Is(err, e.ErrMissingAccountData) {
			t.Fatalf("expected ErrMissingAccountData, got %#v", err)
		}
		if _, err := store.BucketID(ctx, "bucket"); !errors.Is(err, e.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %#v", err)
		}
	}
}

func testFileInfo(cache accountinfo.FileInfoCache) func(t *testing.T) {
	return func(t *testing.T) {
		ctx := context.Background()
		expected := s.FileInfo{ID: "file-id", Name: "dir/file.txt", Bucket: "bucket", Size: 11, ContentType: "text/plain", Timestamp: 1600000000000}

		if _, err := cache.GetFileInfo(ctx, "key"); !errors.Is(err, e.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %#v", err)
		}
		if err := cache.SetFileInfo(ctx, "key", expected, time.Minute); err != nil {
			t.Fatal(err)
		}
		info, err := cache.GetFileInfo(ctx, "key")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(expected, info); diff != "" {
			t.Fatal(diff)
		}

		if err = cache.DeleteFileInfo(ctx, "key"); err != nil {
			t.Fatal(err)
		}
		if _, err = cache.GetFileInfo(ctx, "key"); !errors.Is(err, e.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %#v", err)
		}
	}
}

func TestMemoryFileInfoExpiry(t *testing.T) {
	store, err := memory.New()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	if err = store.SetFileInfo(ctx, "key", s.FileInfo{Name: "file"}, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err = store.GetFileInfo(ctx, "key"); !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("expected expired entry, got %#v", err)
	}
}

func TestRedisFileInfoExpiry(t *testing.T) {
	mini := miniredis.RunT(t)
	store, ok := getStore(t, "redis", "redis://"+mini.Addr()).(accountinfo.FileInfoCache)
	if !ok {
		t.Fatal("redis store should cache file info")
	}

	ctx := context.Background()
	if err := store.SetFileInfo(ctx, "key", s.FileInfo{Name: "file"}, time.Minute); err != nil {
		t.Fatal(err)
	}
	mini.FastForward(2 * time.Minute)
	if _, err := store.GetFileInfo(ctx, "key"); !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("expected expired entry, got %#v", err)
	}
}

func TestInvalidStore(t *testing.T) {
	if _, err := accountinfo.GetStore("dynamodb", ""); !errors.Is(err, e.ErrImproperlyConfigured) {
		t.Fatalf("expected ErrImproperlyConfigured, got %#v", err)
	}
}
