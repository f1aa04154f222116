package web

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/metrics"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"github.com/terrycain/backblaze-b2-storage/pkg/storage"
	"github.com/terrycain/backblaze-b2-storage/pkg/utils"
)

//go:generate mockgen -destination=mocks/file_storage.go -package=mocks github.com/terrycain/backblaze-b2-storage/pkg/web FileStorage

// FileStorage is the part of *storage.Storage the proxy views need.
type FileStorage interface {
	Tier() storage.Tier
	FileInfo(ctx context.Context, name string) (s.FileInfo, error)
	Download(ctx context.Context, name, byteRange string) (*s.Download, error)
	BackblazeURL(ctx context.Context, name string) (string, error)
}

type Handlers struct {
	Storages map[storage.Tier]FileStorage
	Auth     *SessionAuth
	LoginURL string
}

func notFound(c *gin.Context, name string) {
	c.Data(http.StatusNotFound, "text/plain; charset=utf-8", []byte("Could not find file: "+name))
}

func contentType(name string, info s.FileInfo) string {
	if guessed := mime.TypeByExtension(path.Ext(name)); guessed != "" {
		return guessed
	}
	if info.ContentType != "" {
		return info.ContentType
	}
	return "application/octet-stream"
}

// etagMatches compares an If-None-Match list weakly, as RFC 7232 asks for GET and HEAD.
func etagMatches(header, etag string) bool {
	etag = strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// notModified handles If-None-Match and If-Modified-Since.
func notModified(c *gin.Context, etag string, info s.FileInfo) bool {
	if match := c.GetHeader("If-None-Match"); match != "" {
		return etagMatches(match, etag)
	}
	if since := c.GetHeader("If-Modified-Since"); since != "" && info.Timestamp > 0 {
		after, err := http.ParseTime(since)
		return err == nil && !info.Created().Truncate(time.Second).After(after)
	}
	return false
}

// Download serves a file from the tier's storage. Access checks happen in
// middleware before this runs.
func (h *Handlers) Download(tier storage.Tier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "SAMEORIGIN")
		code := h.download(c, tier)
		metrics.Downloads.WithLabelValues(tier.String(), strconv.Itoa(code)).Inc()
	}
}

func (h *Handlers) download(c *gin.Context, tier storage.Tier) int {
	raw := c.Param("filename")
	st, ok := h.Storages[tier]
	if !ok {
		log.Error().Str("tier", tier.String()).Msg("No storage configured for tier")
		notFound(c, raw)
		return http.StatusNotFound
	}
	name, err := utils.CleanFileName(raw)
	if err != nil {
		notFound(c, raw)
		return http.StatusNotFound
	}
	ctx := c.Request.Context()

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		if uri, err2 := st.BackblazeURL(ctx, name); err2 == nil {
			log.Debug().Str("url", uri).Msg("Downloading file")
		} else {
			log.Debug().Err(err2).Str("name", name).Msg("Could not get b2 file url")
		}
	}

	info, err := st.FileInfo(ctx, name)
	if errors.Is(err, e.ErrNotFound) {
		notFound(c, name)
		return http.StatusNotFound
	} else if err != nil {
		return ErrConv(c, err)
	}

	etag := ETag(info.ID)
	header := c.Writer.Header()
	header.Set("ETag", etag)
	header.Set("Accept-Ranges", "bytes")
	if info.Timestamp > 0 {
		header.Set("Last-Modified", info.Created().Format(http.TimeFormat))
	}
	if notModified(c, etag, info) {
		c.Status(http.StatusNotModified)
		return http.StatusNotModified
	}

	if c.Request.Method == http.MethodHead {
		header.Set("Content-Type", contentType(name, info))
		header.Set("Content-Length", strconv.FormatInt(info.Size, 10))
		c.Status(http.StatusOK)
		return http.StatusOK
	}

	// Unsupported ranges are ignored and the whole file is served
	byteRange := c.GetHeader("Range")
	if byteRange != "" {
		if _, err = utils.ParseRange(byteRange); err != nil {
			log.Debug().Str("range", byteRange).Msg("Ignoring range header")
			byteRange = ""
		}
	}

	download, err := st.Download(ctx, name, byteRange)
	if errors.Is(err, e.ErrNotFound) {
		notFound(c, name)
		return http.StatusNotFound
	} else if err != nil {
		return ErrConv(c, err)
	}
	defer download.Body.Close()

	status := http.StatusOK
	if download.Partial {
		if _, err = utils.ParseContentRange(download.ContentRange); err != nil {
			log.Error().Str("content_range", download.ContentRange).Msg("Upstream returned an invalid Content-Range")
			c.Data(http.StatusBadGateway, "text/plain; charset=utf-8", []byte("bad gateway"))
			return http.StatusBadGateway
		}
		header.Set("Content-Range", download.ContentRange)
		status = http.StatusPartialContent
	}

	c.DataFromReader(status, download.Size, contentType(name, download.FileInfo), download.Body, nil)
	return status
}
