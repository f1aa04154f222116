package utils

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseContentRange(t *testing.T) {
	tables := []struct {
		name           string
		headerValue    string
		expectedResult ContentRange
		expectErr      bool
	}{
		{"handles satisfiable range", "bytes 0-20/30", ContentRange{"bytes", 0, 20, 30}, false},
		{"handles range without size", "bytes 10-20/*", ContentRange{"bytes", 10, 20, -1}, false},
		{"handles unsatisfiable range", "bytes */30", ContentRange{"bytes", -1, -1, 30}, false},
		{"rejects end past size", "bytes 0-30/30", ContentRange{}, true},
		{"rejects start after end", "bytes 10-5/30", ContentRange{}, true},
		{"returns null for invalid cases 1", "invalid", ContentRange{}, true},
		{"returns null for invalid cases 2", "bytes */*", ContentRange{}, true},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			result, err := ParseContentRange(table.headerValue)
			if table.expectErr && err == nil {
				t.Errorf("Expected error, got nil")
			} else if !table.expectErr && err != nil {
				t.Errorf("Expected no error, got %#v", err)
			}

			if table.expectErr {
				return
			}

			if diff := cmp.Diff(table.expectedResult, result); diff != "" {
				t.Errorf("ParseContentRange() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRange(t *testing.T) {
	tables := []struct {
		name          string
		headerValue   string
		size          int64
		expectedRange string
		expectErr     bool
	}{
		{"closed range", "bytes=0-4", 11, "bytes 0-4/11", false},
		{"open range", "bytes=5-", 11, "bytes 5-10/11", false},
		{"suffix range", "bytes=-3", 11, "bytes 8-10/11", false},
		{"end past size is clamped", "bytes=2-100", 11, "bytes 2-10/11", false},
		{"start past size", "bytes=20-", 11, "", true},
		{"multipart", "bytes=0-1,4-5", 11, "", true},
		{"other unit", "items=0-1", 11, "", true},
		{"empty", "bytes=-", 11, "", true},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			r, err := ParseRange(table.headerValue)
			var contentRange string
			if err == nil {
				contentRange, err = r.ContentRange(table.size)
			}
			if table.expectErr {
				if err == nil {
					t.Errorf("Expected error, got %q", contentRange)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %#v", err)
			}
			if diff := cmp.Diff(table.expectedRange, contentRange); diff != "" {
				t.Errorf("ContentRange() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
