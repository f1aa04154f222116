package utils

import (
	"strings"

	"github.com/terrycain/backblaze-b2-storage/pkg/e"
)

// CleanFileName normalises a file key taken from a URL or a caller. Empty and
// "." segments are dropped, ".." is rejected so a key can never escape its bucket.
func CleanFileName(name string) (string, error) {
	result := make([]string, 0)
	for _, item := range strings.Split(name, "/") {
		switch cleaned := strings.Trim(item, " "); cleaned {
		case "", ".":
			continue
		case "..":
			return "", e.ErrNotFound
		default:
			// Spaces are valid in B2 file names, the segment is kept as is
			result = append(result, item)
		}
	}
	if len(result) == 0 {
		return "", e.ErrNameRequired
	}
	return strings.Join(result, "/"), nil
}
