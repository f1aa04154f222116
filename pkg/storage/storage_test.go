package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo/memory"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo/sqlite"
	"github.com/terrycain/backblaze-b2-storage/pkg/b2/b2test"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"github.com/terrycain/backblaze-b2-storage/pkg/storage"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	if _, exists := os.LookupEnv("DEBUG"); exists {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	os.Exit(m.Run())
}

func testOptions(srv *b2test.Server) storage.Options {
	opts := storage.DefaultOptions()
	opts.Realm = srv.URL
	opts.ApplicationKeyID = b2test.KeyID
	opts.ApplicationKey = b2test.Key
	opts.Bucket = "files"
	opts.ProxyBaseURL = "https://example.com"
	opts.HTTPClient = srv.Client()
	return opts
}

func memoryStore(t *testing.T) accountinfo.Store {
	t.Helper()
	store, err := memory.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newStorage(t *testing.T, srv *b2test.Server, tier storage.Tier, store accountinfo.Store, options ...storage.Option) *storage.Storage {
	t.Helper()
	st, err := storage.New(context.Background(), testOptions(srv), tier, store, options...)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestLazyAuthorization(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	st := newStorage(t, srv, storage.TierNone, memoryStore(t), storage.WithLazyAuthorization())

	if diff := cmp.Diff(0, srv.AuthorizeCalls()); diff != "" {
		t.Fatalf("authorized before the first operation: %s", diff)
	}

	if _, err := st.Exists(context.Background(), "anything.txt"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(1, srv.AuthorizeCalls()); diff != "" {
		t.Fatal(diff)
	}
}

func TestAuthorizeOnInit(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	newStorage(t, srv, storage.TierNone, memoryStore(t))

	if diff := cmp.Diff(1, srv.AuthorizeCalls()); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(1, srv.ListBucketCalls()); diff != "" {
		t.Fatal(diff)
	}
}

func TestCachedAccountInfoSkipsAuthorize(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	store, err := sqlite.NewSQLiteBackend("file:" + t.TempDir() + "/accountinfo.sqlite")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	first := newStorage(t, srv, storage.TierNone, store)
	if _, err = first.Save(ctx, "one.txt", strings.NewReader("one")); err != nil {
		t.Fatal(err)
	}

	second := newStorage(t, srv, storage.TierNone, store)
	if _, err = second.Save(ctx, "two.txt", strings.NewReader("two")); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(1, srv.AuthorizeCalls()); diff != "" {
		t.Fatalf("second storage should reuse the cached authorization: %s", diff)
	}
	if diff := cmp.Diff(1, srv.ListBucketCalls()); diff != "" {
		t.Fatalf("second storage should reuse the cached bucket id: %s", diff)
	}
}

func TestNonExistentBucket(t *testing.T) {
	srv := b2test.New(t)
	ctx := context.Background()

	if _, err := storage.New(ctx, testOptions(srv), storage.TierNone, memoryStore(t)); !errors.Is(err, e.ErrNonExistentBucket) {
		t.Fatalf("expected ErrNonExistentBucket, got %#v", err)
	}

	st := newStorage(t, srv, storage.TierNone, memoryStore(t), storage.WithNonExistentBucketDetails(s.BucketDetails{}))
	if diff := cmp.Diff("files", st.BucketName()); diff != "" {
		t.Fatal(diff)
	}
	if _, ok := srv.File("files", "nothing"); ok {
		t.Fatal("new bucket should be empty")
	}
}

func TestTierOverrides(t *testing.T) {
	srv := b2test.New(t)
	ctx := context.Background()
	opts := testOptions(srv)

	tables := []struct {
		name    string
		option  storage.Option
		message string
	}{
		{"bucket", storage.WithBucket("other"), "May not specify 'bucket' in proxied storage class"},
		{"credentials", storage.WithCredentials("a", "b"), "May not specify auth credentials in proxied storage class"},
		{"realm", storage.WithRealm("staging"), "May not specify auth credentials in proxied storage class"},
	}

	for _, tier := range storage.Tiers {
		for _, table := range tables {
			t.Run(tier.String()+"-"+table.name, func(t *testing.T) {
				_, err := storage.New(ctx, opts, tier, memoryStore(t), table.option, storage.WithLazyAuthorization())
				if !errors.Is(err, e.ErrImproperlyConfigured) {
					t.Fatalf("expected ErrImproperlyConfigured, got %#v", err)
				}
				if !strings.Contains(err.Error(), table.message) {
					t.Errorf("unexpected message %q", err.Error())
				}
			})
		}
	}

	// Plain storage can be pointed anywhere
	if _, err := storage.New(ctx, opts, storage.TierNone, memoryStore(t), storage.WithBucket("other"), storage.WithLazyAuthorization()); err != nil {
		t.Fatal(err)
	}
}

func TestSpecificBucketNames(t *testing.T) {
	srv := b2test.New(t)
	opts := testOptions(srv)
	opts.SpecificBucketNames = storage.SpecificBucketNames{Public: "public-files", Staff: "staff-files"}

	tables := []struct {
		tier     storage.Tier
		expected string
	}{
		{storage.TierNone, "files"},
		{storage.TierPublic, "public-files"},
		{storage.TierLoggedIn, "files"},
		{storage.TierStaff, "staff-files"},
	}
	for _, table := range tables {
		st, err := storage.New(context.Background(), opts, table.tier, memoryStore(t), storage.WithLazyAuthorization())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(table.expected, st.BucketName()); diff != "" {
			t.Errorf("tier %s: %s", table.tier, diff)
		}
	}
}

func TestSaveOpenDelete(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	st := newStorage(t, srv, storage.TierNone, memoryStore(t), storage.WithDefaultFileInfo(map[string]string{"owner": "tests"}))
	ctx := context.Background()
	content := []byte("some file content")

	name, err := st.Save(ctx, "/docs/report.txt", bytes.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("docs/report.txt", name); diff != "" {
		t.Fatal(diff)
	}

	exists, err := st.Exists(ctx, name)
	if err != nil || !exists {
		t.Fatalf("expected file to exist, err %v", err)
	}
	size, err := st.Size(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(int64(len(content)), size); diff != "" {
		t.Fatal(diff)
	}
	info, err := st.FileInfo(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"owner": "tests"}, info.Extra); diff != "" {
		t.Fatal(diff)
	}

	f, err := st.Open(ctx, name, "rb")
	if err != nil {
		t.Fatal(err)
	}
	read, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if diff := cmp.Diff(content, read); diff != "" {
		t.Fatal(diff)
	}

	if err = st.Delete(ctx, name); err != nil {
		t.Fatal(err)
	}
	if exists, _ = st.Exists(ctx, name); exists {
		t.Fatal("file should be gone after delete")
	}
	// Deleting a missing file is fine
	if err = st.Delete(ctx, name); err != nil {
		t.Fatal(err)
	}
	if size, _ = st.Size(ctx, name); size != 0 {
		t.Fatalf("missing file should have size 0, got %d", size)
	}
}

func TestNamesNormalised(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	st := newStorage(t, srv, storage.TierNone, memoryStore(t))
	ctx := context.Background()

	if _, err := st.Save(ctx, "/lead/slash.txt", strings.NewReader("hello")); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"/lead/slash.txt", "lead//slash.txt", "./lead/slash.txt"} {
		exists, err := st.Exists(ctx, name)
		if err != nil || !exists {
			t.Errorf("Exists(%q) = %v, %v", name, exists, err)
		}
		size, err := st.Size(ctx, name)
		if err != nil || size != 5 {
			t.Errorf("Size(%q) = %d, %v", name, size, err)
		}
		uri, err := st.URL(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(srv.URL+"/file/files/lead/slash.txt", uri); diff != "" {
			t.Error(diff)
		}
	}

	download, err := st.Download(ctx, "/lead/slash.txt", "")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(download.Body)
	download.Body.Close()
	if diff := cmp.Diff("hello", string(body)); diff != "" {
		t.Fatal(diff)
	}

	if exists, err := st.Exists(ctx, "../escape.txt"); err != nil || exists {
		t.Fatalf("Exists(../escape.txt) = %v, %v", exists, err)
	}

	if err = st.Delete(ctx, "/lead/slash.txt"); err != nil {
		t.Fatal(err)
	}
	if _, ok := srv.File("files", "lead/slash.txt"); ok {
		t.Fatal("file should be gone after delete")
	}
}

func TestGetAvailableName(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	srv.PutFile("files", "dir/archive.tar.gz", "", []byte("old"))
	ctx := context.Background()

	st := newStorage(t, srv, storage.TierNone, memoryStore(t))
	name, err := st.GetAvailableName(ctx, "dir/archive.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(name, "dir/archive_") || !strings.HasSuffix(name, ".tar.gz") || len(name) != len("dir/archive_.tar.gz")+7 {
		t.Fatalf("unexpected available name %q", name)
	}
	if name, _ = st.GetAvailableName(ctx, "dir/free.txt"); name != "dir/free.txt" {
		t.Fatalf("free name should be kept, got %q", name)
	}

	overwriting := newStorage(t, srv, storage.TierNone, memoryStore(t), storage.WithAllowFileOverwrites(true))
	saved, err := overwriting.Save(ctx, "dir/archive.tar.gz", strings.NewReader("new"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("dir/archive.tar.gz", saved); diff != "" {
		t.Fatal(diff)
	}
	if stored, _ := srv.File("files", saved); string(stored) != "new" {
		t.Fatalf("file was not overwritten: %q", stored)
	}
}

func TestFileWrite(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	st := newStorage(t, srv, storage.TierNone, memoryStore(t))
	ctx := context.Background()

	readOnly, _ := st.Open(ctx, "notes.txt", "r")
	if _, err := readOnly.Write([]byte("nope")); !errors.Is(err, e.ErrNotWritable) {
		t.Fatalf("expected ErrNotWritable, got %#v", err)
	}

	f, _ := st.Open(ctx, "notes.txt", "w")
	if _, err := f.Write([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("world")); err != nil {
		t.Fatal(err)
	}
	if _, ok := srv.File("files", "notes.txt"); ok {
		t.Fatal("nothing should be uploaded before Close")
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if stored, _ := srv.File("files", "notes.txt"); string(stored) != "hello world" {
		t.Fatalf("unexpected content %q", stored)
	}
	if size, _ := f.Size(); size != 11 {
		t.Fatalf("unexpected size %d", size)
	}
}

func TestURLs(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	srv.AddBucket("public-files", "allPublic")
	ctx := context.Background()
	name := "some dir/a file.txt"

	tables := []struct {
		name     string
		tier     storage.Tier
		options  []storage.Option
		expected string
	}{
		{"plain", storage.TierNone, nil, srv.URL + "/file/files/some%20dir/a%20file.txt"},
		{"plain-cdn", storage.TierNone, []storage.Option{storage.WithCDN(storage.CDNConfig{BaseURL: "https://cdn.example.com/"})}, "https://cdn.example.com/some%20dir/a%20file.txt"},
		{"plain-cdn-bucket-segments", storage.TierNone, []storage.Option{storage.WithCDN(storage.CDNConfig{BaseURL: "https://cdn.example.com", IncludeBucketURLSegments: true})}, "https://cdn.example.com/file/files/some%20dir/a%20file.txt"},
		{"public-private-bucket", storage.TierPublic, nil, "https://example.com/b2/some%20dir/a%20file.txt"},
		{"logged-in", storage.TierLoggedIn, nil, "https://example.com/b2l/some%20dir/a%20file.txt"},
		{"staff", storage.TierStaff, nil, "https://example.com/b2s/some%20dir/a%20file.txt"},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			st := newStorage(t, srv, table.tier, memoryStore(t), table.options...)
			uri, err := st.URL(ctx, name)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(table.expected, uri); diff != "" {
				t.Errorf("URL() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("public-public-bucket", func(t *testing.T) {
		opts := testOptions(srv)
		opts.SpecificBucketNames.Public = "public-files"
		st, err := storage.New(ctx, opts, storage.TierPublic, memoryStore(t))
		if err != nil {
			t.Fatal(err)
		}
		uri, err := st.URL(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(srv.URL+"/file/public-files/some%20dir/a%20file.txt", uri); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("public-bucket-type-from-cached-id", func(t *testing.T) {
		opts := testOptions(srv)
		opts.SpecificBucketNames.Public = "public-files"
		store := memoryStore(t)
		// Warm the store so the bucket comes back from the cache without a type
		if _, err := storage.New(ctx, opts, storage.TierPublic, store); err != nil {
			t.Fatal(err)
		}
		st, err := storage.New(ctx, opts, storage.TierPublic, store)
		if err != nil {
			t.Fatal(err)
		}
		uri, err := st.URL(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(uri, srv.URL) {
			t.Errorf("expected a direct url, got %q", uri)
		}
	})

	t.Run("empty-name", func(t *testing.T) {
		st := newStorage(t, srv, storage.TierNone, memoryStore(t))
		if _, err := st.URL(ctx, ""); !errors.Is(err, e.ErrNameRequired) {
			t.Fatalf("expected ErrNameRequired, got %#v", err)
		}
	})
}

func TestFileInfoCaching(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	srv.PutFile("files", "cached.txt", "text/plain", []byte("data"))
	ctx := context.Background()

	cached := newStorage(t, srv, storage.TierNone, memoryStore(t))
	uncached := newStorage(t, srv, storage.TierNone, memoryStore(t), storage.WithForbidFilePropertyCaching(true))
	for _, st := range []*storage.Storage{cached, uncached} {
		if exists, err := st.Exists(ctx, "cached.txt"); err != nil || !exists {
			t.Fatalf("expected file to exist, err %v", err)
		}
	}

	srv.DeleteFile("files", "cached.txt")

	if exists, _ := cached.Exists(ctx, "cached.txt"); !exists {
		t.Error("file info should have come from the cache")
	}
	if exists, _ := uncached.Exists(ctx, "cached.txt"); exists {
		t.Error("file info should not be cached when forbidden")
	}
}

func TestTimes(t *testing.T) {
	srv := b2test.New(t)
	srv.AddBucket("files", "")
	uploaded := srv.PutFile("files", "timed.txt", "", []byte("data"))
	st := newStorage(t, srv, storage.TierNone, memoryStore(t))
	ctx := context.Background()

	created, err := st.CreatedTime(ctx, "timed.txt")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(uploaded.Created(), created); diff != "" {
		t.Fatal(diff)
	}
	modified, _ := st.ModifiedTime(ctx, "timed.txt")
	if !modified.Equal(created) {
		t.Fatalf("modified %s != created %s", modified, created)
	}

	if _, err = st.CreatedTime(ctx, "missing.txt"); !errors.Is(err, e.ErrFileInfoUnavailable) {
		t.Fatalf("expected ErrFileInfoUnavailable, got %#v", err)
	}
	if _, err = st.AccessedTime(ctx, "timed.txt"); !errors.Is(err, e.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %#v", err)
	}
	if _, _, err = st.ListDir(ctx, ""); !errors.Is(err, e.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %#v", err)
	}
}
