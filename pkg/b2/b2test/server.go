// Package b2test runs an in-process fake of the parts of the B2 native API
// used by this module. It keeps everything in memory and records how often
// accounts are authorized and buckets are listed.
package b2test

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
)

const (
	KeyID     = "test-key-id"
	Key       = "test-key"
	AccountID = "test-account"
)

type file struct {
	info s.FileInfo
	data []byte
}

type bucket struct {
	s.Bucket
	files map[string]*file
}

type Server struct {
	*httptest.Server

	mu              sync.Mutex
	authorizeCalls  int
	listBucketCalls int
	tokens          map[string]bool // token -> still valid
	buckets         map[string]*bucket
	authorizeDelay  time.Duration
	namePrefix      string
}

// New starts a fake B2 server that is closed when the test finishes.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := &Server{
		tokens:  make(map[string]bool),
		buckets: make(map[string]*bucket),
	}

	router := gin.New()
	router.GET("/b2api/v2/b2_authorize_account", srv.authorize)
	router.POST("/b2api/v2/:op", srv.api)
	router.POST("/upload/:bucketid", srv.upload)
	router.GET("/file/:bucket/*name", srv.download)
	router.HEAD("/file/:bucket/*name", srv.download)

	srv.Server = httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// AddBucket creates a bucket, bucketType defaults to allPrivate.
func (srv *Server) AddBucket(name, bucketType string) s.Bucket {
	if bucketType == "" {
		bucketType = "allPrivate"
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.addBucket(name, bucketType)
}

func (srv *Server) addBucket(name, bucketType string) s.Bucket {
	b := &bucket{
		Bucket: s.Bucket{ID: "bucket-" + uuid.NewString(), Name: name, Type: bucketType},
		files:  make(map[string]*file),
	}
	srv.buckets[name] = b
	return b.Bucket
}

// PutFile stores a file directly, bypassing the upload API.
func (srv *Server) PutFile(bucketName, name, contentType string, data []byte) s.FileInfo {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	b, ok := srv.buckets[bucketName]
	if !ok {
		srv.addBucket(bucketName, "")
		b = srv.buckets[bucketName]
	}
	return srv.put(b, name, contentType, data, nil)
}

func (srv *Server) put(b *bucket, name, contentType string, data []byte, info map[string]string) s.FileInfo {
	if contentType == "" || contentType == "b2/x-auto" {
		contentType = mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	f := &file{
		info: s.FileInfo{
			ID:          "file-" + uuid.NewString(),
			Name:        name,
			Size:        int64(len(data)),
			ContentType: contentType,
			Extra:       info,
			Timestamp:   time.Now().UnixMilli(),
		},
		data: data,
	}
	b.files[name] = f
	return f.info
}

// File returns the stored contents of a file.
func (srv *Server) File(bucketName, name string) ([]byte, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if b, ok := srv.buckets[bucketName]; ok {
		if f, ok := b.files[name]; ok {
			return f.data, true
		}
	}
	return nil, false
}

// DeleteFile removes a file without going through the API.
func (srv *Server) DeleteFile(bucketName, name string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if b, ok := srv.buckets[bucketName]; ok {
		delete(b.files, name)
	}
}

func (srv *Server) AuthorizeCalls() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.authorizeCalls
}

func (srv *Server) ListBucketCalls() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.listBucketCalls
}

// SetAuthorizeDelay makes every authorize call take at least d.
func (srv *Server) SetAuthorizeDelay(d time.Duration) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.authorizeDelay = d
}

// RestrictNamePrefix behaves like a key limited to a name prefix: downloads of
// other files are refused with 401 "unauthorized".
func (srv *Server) RestrictNamePrefix(prefix string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.namePrefix = prefix
}

// ExpireTokens invalidates every token handed out so far.
func (srv *Server) ExpireTokens() {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for token := range srv.tokens {
		srv.tokens[token] = false
	}
}

func b2Error(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"status": status, "code": code, "message": message})
}

// checkToken must be called with srv.mu held.
func (srv *Server) checkToken(c *gin.Context) bool {
	valid, known := srv.tokens[c.GetHeader("Authorization")]
	switch {
	case !known:
		b2Error(c, http.StatusUnauthorized, "bad_auth_token", "Invalid authorization token")
		return false
	case !valid:
		b2Error(c, http.StatusUnauthorized, "expired_auth_token", "Authorization token has expired")
		return false
	}
	return true
}

func (srv *Server) authorize(c *gin.Context) {
	srv.mu.Lock()
	srv.authorizeCalls++
	delay := srv.authorizeDelay
	srv.mu.Unlock()

	// Sleep without the lock so concurrent callers can be observed
	time.Sleep(delay)

	srv.mu.Lock()
	defer srv.mu.Unlock()

	user, pass, ok := c.Request.BasicAuth()
	if !ok || user != KeyID || pass != Key {
		b2Error(c, http.StatusUnauthorized, "unauthorized", "Invalid application key")
		return
	}

	token := "token-" + uuid.NewString()
	srv.tokens[token] = true
	c.JSON(http.StatusOK, s.AccountInfo{
		AccountID:               AccountID,
		AuthToken:               token,
		APIURL:                  srv.URL,
		DownloadURL:             srv.URL,
		S3APIURL:                srv.URL,
		RecommendedPartSize:     100000000,
		AbsoluteMinimumPartSize: 5000000,
		Allowed:                 s.Allowed{Capabilities: []string{"listBuckets", "writeBuckets", "listFiles", "readFiles", "writeFiles", "deleteFiles"}},
	})
}

func (srv *Server) api(c *gin.Context) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.checkToken(c) {
		return
	}

	var req struct {
		BucketName string            `json:"bucketName"`
		BucketType string            `json:"bucketType"`
		BucketID   string            `json:"bucketId"`
		FileName   string            `json:"fileName"`
		FileID     string            `json:"fileId"`
		BucketInfo map[string]string `json:"bucketInfo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		b2Error(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	switch c.Param("op") {
	case "b2_list_buckets":
		srv.listBucketCalls++
		buckets := make([]s.Bucket, 0)
		for name, b := range srv.buckets {
			if req.BucketName == "" || req.BucketName == name {
				buckets = append(buckets, b.Bucket)
			}
		}
		c.JSON(http.StatusOK, gin.H{"buckets": buckets})
	case "b2_create_bucket":
		if _, exists := srv.buckets[req.BucketName]; exists {
			b2Error(c, http.StatusBadRequest, "duplicate_bucket_name", "Bucket name is already in use")
			return
		}
		c.JSON(http.StatusOK, srv.addBucket(req.BucketName, req.BucketType))
	case "b2_get_upload_url":
		c.JSON(http.StatusOK, gin.H{
			"bucketId":           req.BucketID,
			"uploadUrl":          srv.URL + "/upload/" + req.BucketID,
			"authorizationToken": c.GetHeader("Authorization"),
		})
	case "b2_delete_file_version":
		for _, b := range srv.buckets {
			if f, ok := b.files[req.FileName]; ok && f.info.ID == req.FileID {
				delete(b.files, req.FileName)
				c.JSON(http.StatusOK, gin.H{"fileId": req.FileID, "fileName": req.FileName})
				return
			}
		}
		b2Error(c, http.StatusBadRequest, "file_not_present", "File not present: "+req.FileName)
	default:
		b2Error(c, http.StatusBadRequest, "bad_request", "unsupported operation "+c.Param("op"))
	}
}

func (srv *Server) upload(c *gin.Context) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.checkToken(c) {
		return
	}

	var b *bucket
	for _, candidate := range srv.buckets {
		if candidate.ID == c.Param("bucketid") {
			b = candidate
		}
	}
	if b == nil {
		b2Error(c, http.StatusBadRequest, "bad_bucket_id", "Invalid bucketId")
		return
	}

	name, err := url.PathUnescape(c.GetHeader("X-Bz-File-Name"))
	if err != nil {
		b2Error(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		b2Error(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sum := sha1.Sum(data)
	if c.GetHeader("X-Bz-Content-Sha1") != hex.EncodeToString(sum[:]) {
		b2Error(c, http.StatusBadRequest, "bad_request", "Checksum did not match data received")
		return
	}

	var info map[string]string
	for k, vals := range c.Request.Header {
		if strings.HasPrefix(k, "X-Bz-Info-") {
			if info == nil {
				info = make(map[string]string)
			}
			value, _ := url.PathUnescape(strings.Join(vals, ", "))
			info[strings.ToLower(strings.TrimPrefix(k, "X-Bz-Info-"))] = value
		}
	}

	fi := srv.put(b, name, c.GetHeader("Content-Type"), data, info)
	fi.Bucket = ""
	c.JSON(http.StatusOK, fi)
}

func (srv *Server) download(c *gin.Context) {
	srv.mu.Lock()
	b, ok := srv.buckets[c.Param("bucket")]
	if !ok {
		srv.mu.Unlock()
		b2Error(c, http.StatusNotFound, "not_found", "Bucket does not exist")
		return
	}
	if b.Type != "allPublic" && !srv.checkToken(c) {
		srv.mu.Unlock()
		return
	}
	name := strings.TrimPrefix(c.Param("name"), "/")
	if srv.namePrefix != "" && !strings.HasPrefix(name, srv.namePrefix) {
		srv.mu.Unlock()
		b2Error(c, http.StatusUnauthorized, "unauthorized", "Key is restricted to "+srv.namePrefix)
		return
	}
	f, ok := b.files[name]
	srv.mu.Unlock()
	if !ok {
		b2Error(c, http.StatusNotFound, "not_found", "File with such name does not exist.")
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", f.info.ContentType)
	h.Set("X-Bz-File-Id", f.info.ID)
	h.Set("X-Bz-File-Name", escape(f.info.Name))
	h.Set("X-Bz-Upload-Timestamp", strconv.FormatInt(f.info.Timestamp, 10))
	for k, v := range f.info.Extra {
		h.Set("X-Bz-Info-"+k, escape(v))
	}
	http.ServeContent(c.Writer, c.Request, f.info.Name, time.Time{}, bytes.NewReader(f.data))
}

func escape(name string) string {
	parts := strings.Split(name, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}
