package storage

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/terrycain/backblaze-b2-storage/pkg/e"
)

// File is read and written as lazily as possible. The content is downloaded on
// the first Read, writes are buffered and uploaded on Close. The context given
// to Open is used for both.
type File struct {
	Name string

	ctx     context.Context
	storage *Storage
	mode    string

	mu        sync.Mutex
	contents  *bytes.Reader
	written   *bytes.Buffer
	unwritten bool
	size      *int64
}

func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.contents == nil {
		contents, err := f.storage.read(f.ctx, f.Name)
		if err != nil {
			return 0, err
		}
		f.contents = contents
	}
	return f.contents.Read(p)
}

// Write needs the file to have been opened with "w" in its mode.
func (f *File) Write(p []byte) (int, error) {
	if !strings.Contains(f.mode, "w") {
		return 0, e.ErrNotWritable
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.written == nil {
		f.written = &bytes.Buffer{}
	}
	n, _ := f.written.Write(p)
	f.contents = bytes.NewReader(f.written.Bytes())
	f.unwritten = true
	return n, nil
}

// Size is looked up once, a missing file has size 0.
func (f *File) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.size == nil {
		size, err := f.storage.Size(f.ctx, f.Name)
		if err != nil {
			return 0, err
		}
		f.size = &size
	}
	return *f.size, nil
}

// Close uploads any unwritten data under the file's own name.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unwritten {
		if err := f.storage.upload(f.ctx, f.Name, f.written.Bytes()); err != nil {
			return err
		}
		f.unwritten = false
		f.size = nil
	}
	f.contents = nil
	return nil
}
