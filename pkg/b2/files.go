package b2

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"github.com/terrycain/backblaze-b2-storage/pkg/utils"
)

const infoHeaderPrefix = "X-Bz-Info-"

// DownloadURL is the direct (unproxied) URL of a file.
func (c *Client) DownloadURL(bucket, name string) string {
	return c.info.DownloadURL + "/file/" + bucket + "/" + escapeName(name)
}

// Upload stores content under name. An empty contentType lets B2 pick one from the name.
func (c *Client) Upload(ctx context.Context, bucket s.Bucket, name string, content []byte, contentType string, info map[string]string) (s.FileInfo, error) {
	up := struct {
		UploadURL string `json:"uploadUrl"`
		AuthToken string `json:"authorizationToken"`
	}{}
	req := struct {
		BucketID string `json:"bucketId"`
	}{bucket.ID}
	if err := c.api(ctx, "b2_get_upload_url", &req, &up); err != nil {
		return s.FileInfo{}, err
	}

	if contentType == "" {
		contentType = "b2/x-auto"
	}
	sum := sha1.Sum(content)

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, up.UploadURL, bytes.NewReader(content))
	if err != nil {
		return s.FileInfo{}, err
	}
	hreq.ContentLength = int64(len(content))
	hreq.Header.Set("Authorization", up.AuthToken)
	hreq.Header.Set("X-Bz-File-Name", escapeName(name))
	hreq.Header.Set("Content-Type", contentType)
	hreq.Header.Set("X-Bz-Content-Sha1", hex.EncodeToString(sum[:]))
	for k, v := range info {
		hreq.Header.Set(infoHeaderPrefix+k, escapeName(v))
	}

	res, err := c.http.Do(hreq)
	if err != nil {
		return s.FileInfo{}, err
	}
	if res.StatusCode != http.StatusOK {
		return s.FileInfo{}, decodeError("b2_upload_file", res)
	}
	defer res.Body.Close()

	fi := s.FileInfo{}
	if err = json.NewDecoder(res.Body).Decode(&fi); err != nil {
		return s.FileInfo{}, err
	}
	fi.Bucket = bucket.Name
	return fi, nil
}

// Download gets a file by (bucket, name). byteRange is forwarded as a Range
// header when set. It is the caller's responsibility to close Body.
func (c *Client) Download(ctx context.Context, bucket, name, byteRange string) (*s.Download, error) {
	res, err := c.fetch(ctx, http.MethodGet, bucket, name, byteRange)
	if err != nil {
		return nil, err
	}
	fi, err := parseFileHeaders(res.Header, res.ContentLength)
	if err != nil {
		res.Body.Close()
		return nil, err
	}
	fi.Bucket = bucket

	return &s.Download{
		FileInfo:     fi,
		Body:         res.Body,
		ContentRange: res.Header.Get("Content-Range"),
		Partial:      res.StatusCode == http.StatusPartialContent,
	}, nil
}

// FileInfo fetches file metadata with a HEAD request. A missing file unwraps to e.ErrNotFound.
// A 401 to a HEAD has no error code, so it is asked again as a one byte GET
// whose body says whether the token expired or the key may not read the file.
func (c *Client) FileInfo(ctx context.Context, bucket, name string) (s.FileInfo, error) {
	res, err := c.fetch(ctx, http.MethodHead, bucket, name, "")
	var b2err *Error
	if errors.As(err, &b2err) && b2err.Code == headUnauthorized {
		return c.rangedFileInfo(ctx, bucket, name)
	} else if err != nil {
		return s.FileInfo{}, err
	}
	res.Body.Close()

	fi, err := parseFileHeaders(res.Header, res.ContentLength)
	if err != nil {
		return s.FileInfo{}, err
	}
	fi.Bucket = bucket
	return fi, nil
}

func (c *Client) rangedFileInfo(ctx context.Context, bucket, name string) (s.FileInfo, error) {
	res, err := c.fetch(ctx, http.MethodGet, bucket, name, "bytes=0-0")
	if err != nil {
		return s.FileInfo{}, err
	}
	res.Body.Close()

	size := res.ContentLength
	if cr, err2 := utils.ParseContentRange(res.Header.Get("Content-Range")); err2 == nil && cr.Size >= 0 {
		size = cr.Size
	}
	fi, err := parseFileHeaders(res.Header, size)
	if err != nil {
		return s.FileInfo{}, err
	}
	fi.Bucket = bucket
	return fi, nil
}

func (c *Client) DeleteFileVersion(ctx context.Context, name, id string) error {
	req := struct {
		Name string `json:"fileName"`
		ID   string `json:"fileId"`
	}{name, id}
	return c.api(ctx, "b2_delete_file_version", &req, nil)
}

func (c *Client) fetch(ctx context.Context, method, bucket, name, byteRange string) (*http.Response, error) {
	uri := c.DownloadURL(bucket, name)
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.info.AuthToken)
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return nil, decodeError(method+" "+bucket+"/"+name, res)
	}
	return res, nil
}

func parseFileHeaders(h http.Header, contentLength int64) (s.FileInfo, error) {
	name, err := url.PathUnescape(h.Get("X-Bz-File-Name"))
	if err != nil {
		return s.FileInfo{}, err
	}

	var info map[string]string
	for k, vals := range h {
		if !strings.HasPrefix(k, infoHeaderPrefix) {
			continue
		}
		if info == nil {
			info = make(map[string]string)
		}
		value := strings.Join(vals, ", ")
		if unescaped, err2 := url.PathUnescape(value); err2 == nil {
			value = unescaped
		}
		info[strings.ToLower(strings.TrimPrefix(k, infoHeaderPrefix))] = value
	}

	var created int64
	if i, err2 := strconv.ParseInt(h.Get("X-Bz-Upload-Timestamp"), 10, 64); err2 == nil {
		created = i
	}

	return s.FileInfo{
		ID:          h.Get("X-Bz-File-Id"),
		Name:        name,
		Size:        contentLength,
		ContentType: h.Get("Content-Type"),
		Extra:       info,
		Timestamp:   created,
	}, nil
}
