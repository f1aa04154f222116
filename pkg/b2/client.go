package b2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
)

const (
	ProductionRealm = "https://api.backblazeb2.com"
	StagingRealm    = "https://api.backblaze.net"

	apiPrefix = "/b2api/v2/"

	headUnauthorized = "head_unauthorized"
)

// RealmURL maps a realm name to its API host. Anything that is not a known
// realm name is treated as a literal URL.
func RealmURL(realm string) string {
	switch realm {
	case "", "production":
		return ProductionRealm
	case "staging":
		return StagingRealm
	}
	return strings.TrimSuffix(realm, "/")
}

// Error represents an error returned from the B2 API
type Error struct {
	Op      string `json:"-"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (b2err *Error) Error() string {
	return fmt.Sprintf("b2 %s: %s (code %d, %q)", b2err.Op, b2err.Message, b2err.Status, b2err.Code)
}

// Unwrap lets callers match missing files and buckets with errors.Is(err, e.ErrNotFound).
func (b2err *Error) Unwrap() error {
	if b2err.Status == http.StatusNotFound || b2err.Code == "not_found" || b2err.Code == "file_not_present" {
		return e.ErrNotFound
	}
	return nil
}

// IsExpiredAuth reports whether err means the account authorization token needs refreshing.
func IsExpiredAuth(err error) bool {
	var b2err *Error
	if !errors.As(err, &b2err) {
		return false
	}
	return b2err.Status == http.StatusUnauthorized && (b2err.Code == "expired_auth_token" || b2err.Code == "bad_auth_token")
}

func decodeError(op string, res *http.Response) error {
	defer res.Body.Close()
	b2err := &Error{Op: op}
	if res.Request == nil || res.Request.Method != http.MethodHead {
		_ = json.NewDecoder(res.Body).Decode(b2err)
	} else if res.StatusCode == http.StatusUnauthorized {
		// No body, so an expired token and a restricted key look the same
		b2err.Code = headUnauthorized
	}
	if b2err.Status == 0 {
		b2err.Status = res.StatusCode
	}
	if b2err.Message == "" {
		b2err.Message = http.StatusText(res.StatusCode)
	}
	return b2err
}

func httpClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}

// Authorize exchanges an application key for account info (auth token and API URLs).
func Authorize(ctx context.Context, client *http.Client, realm, keyID, key string) (s.AccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, RealmURL(realm)+apiPrefix+"b2_authorize_account", nil)
	if err != nil {
		return s.AccountInfo{}, err
	}
	req.SetBasicAuth(keyID, key)

	res, err := httpClient(client).Do(req)
	if err != nil {
		return s.AccountInfo{}, err
	}
	if res.StatusCode != http.StatusOK {
		return s.AccountInfo{}, decodeError("b2_authorize_account", res)
	}
	defer res.Body.Close()

	info := s.AccountInfo{}
	if err = json.NewDecoder(res.Body).Decode(&info); err != nil {
		return s.AccountInfo{}, err
	}
	info.ApplicationKeyID = keyID
	info.Realm = realm
	return info, nil
}

// Client makes calls on behalf of an authorized account. It holds no mutable
// state so a new one can be made for every operation.
type Client struct {
	info s.AccountInfo
	http *http.Client
}

func NewClient(info s.AccountInfo, client *http.Client) *Client {
	return &Client{info: info, http: httpClient(client)}
}

func (c *Client) AccountInfo() s.AccountInfo {
	return c.info
}

func (c *Client) api(ctx context.Context, op string, body, result interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.info.APIURL+apiPrefix+op, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.info.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return decodeError(op, res)
	}
	defer res.Body.Close()
	if result == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(result)
}

// escapeName percent-encodes every path segment of a file name, keeping the slashes.
func escapeName(name string) string {
	parts := strings.Split(name, "/")
	for i := range parts {
		parts[i] = strings.ReplaceAll(url.PathEscape(parts[i]), "+", "%2B")
	}
	return strings.Join(parts, "/")
}
