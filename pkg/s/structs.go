package s

import (
	"io"
	"time"
)

type AccountInfo struct {
	AccountID               string  `json:"accountId"`
	AuthToken               string  `json:"authorizationToken"`
	APIURL                  string  `json:"apiUrl"`
	DownloadURL             string  `json:"downloadUrl"`
	S3APIURL                string  `json:"s3ApiUrl"`
	RecommendedPartSize     int64   `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64   `json:"absoluteMinimumPartSize"`
	Allowed                 Allowed `json:"allowed"`

	// Filled in locally, not part of the authorize response
	ApplicationKeyID string `json:"applicationKeyId"`
	Realm            string `json:"realm"`
}

// Valid reports whether the info is complete and was obtained with the given credentials.
func (a AccountInfo) Valid(realm, applicationKeyID string) bool {
	if a.AuthToken == "" || a.APIURL == "" || a.DownloadURL == "" {
		return false
	}
	return a.Realm == realm && a.ApplicationKeyID == applicationKeyID
}

type Allowed struct {
	BucketID     string   `json:"bucketId,omitempty"`
	BucketName   string   `json:"bucketName,omitempty"`
	Capabilities []string `json:"capabilities"`
	NamePrefix   string   `json:"namePrefix,omitempty"`
}

type Bucket struct {
	ID   string `json:"bucketId"`
	Name string `json:"bucketName"`
	Type string `json:"bucketType"` // "allPrivate" "allPublic" "snapshot", empty when only the id is cached
}

// BucketDetails describes how to create a bucket that does not exist yet.
type BucketDetails struct {
	Type           string                   `yaml:"bucketType" json:"bucketType"`
	Info           map[string]string        `yaml:"bucketInfo" json:"bucketInfo,omitempty"`
	LifecycleRules []map[string]interface{} `yaml:"lifecycleRules" json:"lifecycleRules,omitempty"`
}

type FileInfo struct {
	ID          string            `json:"fileId"`
	Name        string            `json:"fileName"`
	Bucket      string            `json:"bucketName,omitempty"`
	Size        int64             `json:"contentLength"`
	ContentType string            `json:"contentType"`
	Extra       map[string]string `json:"fileInfo,omitempty"`
	Timestamp   int64             `json:"uploadTimestamp"` // unix milliseconds
}

func (f *FileInfo) Created() time.Time {
	return time.Unix(f.Timestamp/1000, (f.Timestamp%1000)*int64(time.Millisecond)).UTC()
}

// Download is an open file body. It is the caller's responsibility to close Body.
type Download struct {
	FileInfo

	Body         io.ReadCloser
	ContentRange string
	Partial      bool
}
