package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

type SpecificBucketNames struct {
	Public   string `yaml:"public"`
	LoggedIn string `yaml:"loggedIn"`
	Staff    string `yaml:"staff"`
}

func (n SpecificBucketNames) For(tier Tier) string {
	switch tier {
	case TierPublic:
		return n.Public
	case TierLoggedIn:
		return n.LoggedIn
	case TierStaff:
		return n.Staff
	}
	return ""
}

// AccountInfoOptions selects where authorization data is kept between operations.
type AccountInfoOptions struct {
	Type         string `yaml:"type"` // memory, sqlite, postgres or redis
	DatabasePath string `yaml:"databasePath"`
	DSN          string `yaml:"dsn"`
	URL          string `yaml:"url"`
}

// Connection is the connection string for the configured store type.
func (a AccountInfoOptions) Connection() string {
	switch a.Type {
	case "sqlite":
		return a.DatabasePath
	case "postgres":
		return a.DSN
	case "redis":
		return a.URL
	}
	return ""
}

type CDNConfig struct {
	BaseURL                  string `yaml:"baseUrl"`
	IncludeBucketURLSegments bool   `yaml:"includeBucketUrlSegments"`
}

type Options struct {
	Realm            string `yaml:"realm"`
	ApplicationKeyID string `yaml:"applicationKeyId"`
	ApplicationKey   string `yaml:"applicationKey"`
	Bucket           string `yaml:"bucket"`

	AuthorizeOnInit     bool `yaml:"authorizeOnInit"`
	ValidateOnInit      bool `yaml:"validateOnInit"`
	AllowFileOverwrites bool `yaml:"allowFileOverwrites"`

	// Bucket is created with these details when missing, nil means fail instead
	NonExistentBucketDetails *s.BucketDetails   `yaml:"nonExistentBucketDetails"`
	DefaultFileInfo          map[string]string   `yaml:"defaultFileInfo"`
	SpecificBucketNames      SpecificBucketNames `yaml:"specificBucketNames"`

	ForbidFilePropertyCaching bool               `yaml:"forbidFilePropertyCaching"`
	AccountInfo               AccountInfoOptions `yaml:"accountInfo"`
	CDNConfig                 *CDNConfig         `yaml:"cdnConfig"`

	// Prepended to /b2/..., /b2l/... and /b2s/... when building proxy URLs
	ProxyBaseURL string `yaml:"proxyBaseUrl"`
	Transport    string `yaml:"transport"` // native, s3 or disk
	DiskPath     string `yaml:"diskPath"`

	HTTPClient *http.Client `yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		Realm:           "production",
		Bucket:          "files",
		AuthorizeOnInit: true,
		ValidateOnInit:  true,
		DefaultFileInfo: map[string]string{},
		AccountInfo:     AccountInfoOptions{Type: "memory"},
		Transport:       "native",
	}
}

// ParseOptions decodes YAML over the defaults. Unknown keys are an error.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "not found in type") {
			return Options{}, fmt.Errorf("%w: Unrecognized options: %s", e.ErrImproperlyConfigured, err)
		}
		return Options{}, fmt.Errorf("%w: %s", e.ErrImproperlyConfigured, err)
	}
	return opts, nil
}

func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	return ParseOptions(data)
}

func (o Options) Validate() error {
	if o.ApplicationKeyID == "" || o.ApplicationKey == "" {
		return fmt.Errorf("%w: At minimum the options must contain auth 'applicationKey' and 'applicationKeyId'", e.ErrImproperlyConfigured)
	}
	if o.Bucket == "" {
		return fmt.Errorf("%w: bucket must be set", e.ErrImproperlyConfigured)
	}
	switch o.AccountInfo.Type {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("%w: accountInfo type must be one of memory, sqlite, postgres or redis, was %q", e.ErrImproperlyConfigured, o.AccountInfo.Type)
	}
	if o.AccountInfo.Type != "memory" && o.AccountInfo.Connection() == "" {
		return fmt.Errorf("%w: accountInfo of type %s needs a connection setting", e.ErrImproperlyConfigured, o.AccountInfo.Type)
	}
	return nil
}

// Redacted is a copy safe to log.
func (o Options) Redacted() Options {
	o.ApplicationKeyID = redacted
	o.ApplicationKey = redacted
	if o.AccountInfo.DSN != "" {
		o.AccountInfo.DSN = redacted
	}
	if o.AccountInfo.URL != "" {
		o.AccountInfo.URL = redacted
	}
	return o
}

// Option overrides settings for a single storage instance.
type Option func(*settings)

type settings struct {
	opts    Options
	touched map[string]bool
	backend Backend
}

func (st *settings) set(key string) {
	st.touched[key] = true
}

func WithBucket(name string) Option {
	return func(st *settings) {
		st.set("bucket")
		st.opts.Bucket = name
	}
}

func WithCredentials(applicationKeyID, applicationKey string) Option {
	return func(st *settings) {
		st.set("credentials")
		st.opts.ApplicationKeyID = applicationKeyID
		st.opts.ApplicationKey = applicationKey
	}
}

func WithRealm(realm string) Option {
	return func(st *settings) {
		st.set("credentials")
		st.opts.Realm = realm
	}
}

// WithLazyAuthorization defers authorization to the first operation.
func WithLazyAuthorization() Option {
	return func(st *settings) {
		st.opts.AuthorizeOnInit = false
	}
}

func WithValidateOnInit(validate bool) Option {
	return func(st *settings) {
		st.opts.ValidateOnInit = validate
	}
}

func WithAllowFileOverwrites(allow bool) Option {
	return func(st *settings) {
		st.opts.AllowFileOverwrites = allow
	}
}

func WithNonExistentBucketDetails(details s.BucketDetails) Option {
	return func(st *settings) {
		st.opts.NonExistentBucketDetails = &details
	}
}

// WithDefaultFileInfo merges info into the file info sent with every upload.
func WithDefaultFileInfo(info map[string]string) Option {
	return func(st *settings) {
		merged := make(map[string]string, len(st.opts.DefaultFileInfo)+len(info))
		for k, v := range st.opts.DefaultFileInfo {
			merged[k] = v
		}
		for k, v := range info {
			merged[k] = v
		}
		st.opts.DefaultFileInfo = merged
	}
}

func WithForbidFilePropertyCaching(forbid bool) Option {
	return func(st *settings) {
		st.opts.ForbidFilePropertyCaching = forbid
	}
}

func WithCDN(config CDNConfig) Option {
	return func(st *settings) {
		st.opts.CDNConfig = &config
	}
}

func WithProxyBaseURL(base string) Option {
	return func(st *settings) {
		st.opts.ProxyBaseURL = base
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(st *settings) {
		st.opts.HTTPClient = client
	}
}

// WithBackend replaces the transport picked by the options.
func WithBackend(backend Backend) Option {
	return func(st *settings) {
		st.backend = backend
	}
}

func applyOptions(opts Options, tier Tier, options []Option) (settings, error) {
	st := settings{opts: opts, touched: make(map[string]bool)}
	for _, option := range options {
		option(&st)
	}

	if tier.Proxied() {
		if st.touched["bucket"] {
			return settings{}, fmt.Errorf("%w: May not specify 'bucket' in proxied storage class", e.ErrImproperlyConfigured)
		}
		if st.touched["credentials"] {
			return settings{}, fmt.Errorf("%w: May not specify auth credentials in proxied storage class", e.ErrImproperlyConfigured)
		}
		if name := st.opts.SpecificBucketNames.For(tier); name != "" {
			st.opts.Bucket = name
		}
	}

	return st, st.opts.Validate()
}
