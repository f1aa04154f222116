package utils

// ParseContentRange is based on https://github.com/gregberge/content-range, all credit for the tests goes to @gregberge

import (
	"errors"
	"regexp"
	"strconv"
)

type ContentRange struct {
	Unit  string
	Start int64
	End   int64
	Size  int64
}

var (
	contentRangeRegex = regexp.MustCompile(`^(\w+) ((\d+)-(\d+)|\*)/(\d+|\*)$`)
	rangeRegex        = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

	ErrContentRange = errors.New("invalid content-range header")
	ErrRange        = errors.New("invalid or unsupported range header")
)

func atoi(value string) int64 {
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return -1
	}
	return i
}

// ParseContentRange parses a Content-Range response header. Unknown parts are -1.
func ParseContentRange(value string) (ContentRange, error) {
	parts := contentRangeRegex.FindStringSubmatch(value)
	if parts == nil {
		return ContentRange{}, ErrContentRange
	}

	result := ContentRange{
		Unit:  parts[1],
		Start: atoi(parts[3]),
		End:   atoi(parts[4]),
		Size:  atoi(parts[5]),
	}
	if result.Size == -1 && result.Start == -1 && result.End == -1 {
		return ContentRange{}, ErrContentRange
	}
	if result.Start > result.End || (result.Size != -1 && result.End >= result.Size) {
		return ContentRange{}, ErrContentRange
	}

	return result, nil
}

// Range is a single byte range from a Range request header. End is inclusive,
// -1 means until the end of the file. A suffix range ("bytes=-500") has Start -1.
type Range struct {
	Start int64
	End   int64
}

// ParseRange only accepts a single byte range, multipart ranges are rejected.
func ParseRange(value string) (Range, error) {
	parts := rangeRegex.FindStringSubmatch(value)
	if parts == nil || (parts[1] == "" && parts[2] == "") {
		return Range{}, ErrRange
	}

	r := Range{Start: atoi(parts[1]), End: atoi(parts[2])}
	if r.Start != -1 && r.End != -1 && r.Start > r.End {
		return Range{}, ErrRange
	}
	return r, nil
}

// Resolve turns the range into an absolute [start, end] for a file of size bytes.
func (r Range) Resolve(size int64) (int64, int64, error) {
	start, end := r.Start, r.End
	switch {
	case start == -1:
		// Suffix range, the last End bytes
		if end == 0 {
			return 0, 0, ErrRange
		}
		start = size - end
		if start < 0 {
			start = 0
		}
		end = size - 1
	case end == -1 || end >= size:
		end = size - 1
	}
	if start >= size {
		return 0, 0, ErrRange
	}
	return start, end, nil
}

func (r Range) ContentRange(size int64) (string, error) {
	start, end, err := r.Resolve(size)
	if err != nil {
		return "", err
	}
	return "bytes " + strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(end, 10) + "/" + strconv.FormatInt(size, 10), nil
}
