package awss3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	p "path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"github.com/terrycain/backblaze-b2-storage/pkg/session"
)

const (
	defaultRegion = "us-east-1"
	presignExpiry = 5 * time.Minute
	allUsersGroup = "http://acs.amazonaws.com/groups/global/AllUsers"
)

// Backend uses the B2 S3 compatible API. The endpoint comes from the account's
// s3ApiUrl, application keys double as S3 access keys.
type Backend struct {
	session *session.Session
	keyID   string
	key     string

	mu       sync.Mutex
	endpoint string
	client   *s3.S3
}

func New(sess *session.Session, applicationKeyID, applicationKey string) *Backend {
	return &Backend{session: sess, keyID: applicationKeyID, key: applicationKey}
}

func (b *Backend) Type() string {
	return "s3"
}

func (b *Backend) Authorize(ctx context.Context) error {
	_, err := b.s3Client(ctx)
	return err
}

// RegionFromEndpoint picks the region out of hosts like s3.us-west-004.backblazeb2.com.
func RegionFromEndpoint(endpoint string) string {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return defaultRegion
	}
	parts := strings.Split(parsedURL.Hostname(), ".")
	if len(parts) < 3 || parts[0] != "s3" {
		return defaultRegion
	}
	return parts[1]
}

func (b *Backend) s3Client(ctx context.Context) (*s3.S3, error) {
	info, err := b.session.AccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	if info.S3APIURL == "" {
		return nil, fmt.Errorf("%w: account info has no s3ApiUrl", e.ErrImproperlyConfigured)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil && b.endpoint == info.S3APIURL {
		return b.client, nil
	}

	sess, err := awssession.NewSession(&aws.Config{
		Region:           aws.String(RegionFromEndpoint(info.S3APIURL)),
		Endpoint:         aws.String(info.S3APIURL),
		DisableSSL:       aws.Bool(strings.HasPrefix(info.S3APIURL, "http://")),
		Credentials:      credentials.NewStaticCredentials(b.keyID, b.key, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("endpoint", info.S3APIURL).Msg("Created S3 client")
	b.endpoint = info.S3APIURL
	b.client = s3.New(sess)
	return b.client, nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case "NotFound", s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
		return true
	}
	return false
}

func (b *Backend) Bucket(ctx context.Context, name string, _ bool) (s.Bucket, error) {
	client, err := b.s3Client(ctx)
	if err != nil {
		return s.Bucket{}, err
	}

	if _, err = client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}); err != nil {
		if isNotFound(err) {
			return s.Bucket{}, fmt.Errorf("%w: %s", e.ErrNonExistentBucket, name)
		}
		return s.Bucket{}, err
	}

	bucketType := "allPrivate"
	acl, err := client.GetBucketAclWithContext(ctx, &s3.GetBucketAclInput{Bucket: aws.String(name)})
	if err != nil {
		return s.Bucket{}, err
	}
	for _, grant := range acl.Grants {
		if grant.Grantee != nil && aws.StringValue(grant.Grantee.URI) == allUsersGroup {
			bucketType = "allPublic"
		}
	}

	// The S3 API has no bucket ids, the name is used in its place
	return s.Bucket{ID: name, Name: name, Type: bucketType}, nil
}

func (b *Backend) CreateBucket(ctx context.Context, name string, details s.BucketDetails) (s.Bucket, error) {
	client, err := b.s3Client(ctx)
	if err != nil {
		return s.Bucket{}, err
	}

	acl := s3.BucketCannedACLPrivate
	if details.Type == "allPublic" {
		acl = s3.BucketCannedACLPublicRead
	} else {
		details.Type = "allPrivate"
	}
	if _, err = client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(name), ACL: aws.String(acl)}); err != nil {
		return s.Bucket{}, err
	}
	return s.Bucket{ID: name, Name: name, Type: details.Type}, nil
}

func (b *Backend) Upload(ctx context.Context, bucket s.Bucket, name string, content []byte, contentType string, info map[string]string) (s.FileInfo, error) {
	client, err := b.s3Client(ctx)
	if err != nil {
		return s.FileInfo{}, err
	}

	if contentType == "" {
		if contentType = mime.TypeByExtension(p.Ext(name)); contentType == "" {
			contentType = "application/octet-stream"
		}
	}

	resp, err := client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket.Name),
		Key:         aws.String(name),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
		Metadata:    aws.StringMap(info),
	})
	if err != nil {
		return s.FileInfo{}, err
	}

	return s.FileInfo{
		ID:          aws.StringValue(resp.VersionId),
		Name:        name,
		Bucket:      bucket.Name,
		Size:        int64(len(content)),
		ContentType: contentType,
		Extra:       info,
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}

func metadata(m map[string]*string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[strings.ToLower(k)] = aws.StringValue(v)
	}
	return result
}

func (b *Backend) Download(ctx context.Context, bucket, name, byteRange string) (*s.Download, error) {
	client, err := b.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(name)}
	if byteRange != "" {
		input.Range = aws.String(byteRange)
	}
	resp, err := client.GetObjectWithContext(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", e.ErrNotFound, name)
		}
		return nil, err
	}

	return &s.Download{
		FileInfo: s.FileInfo{
			ID:          aws.StringValue(resp.VersionId),
			Name:        name,
			Bucket:      bucket,
			Size:        aws.Int64Value(resp.ContentLength),
			ContentType: aws.StringValue(resp.ContentType),
			Extra:       metadata(resp.Metadata),
			Timestamp:   aws.TimeValue(resp.LastModified).UnixMilli(),
		},
		Body:         resp.Body,
		ContentRange: aws.StringValue(resp.ContentRange),
		Partial:      resp.ContentRange != nil,
	}, nil
}

func (b *Backend) FileInfo(ctx context.Context, bucket, name string) (s.FileInfo, error) {
	client, err := b.s3Client(ctx)
	if err != nil {
		return s.FileInfo{}, err
	}

	resp, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(name)})
	if err != nil {
		if isNotFound(err) {
			return s.FileInfo{}, fmt.Errorf("%w: %s", e.ErrNotFound, name)
		}
		return s.FileInfo{}, err
	}

	return s.FileInfo{
		ID:          aws.StringValue(resp.VersionId),
		Name:        name,
		Bucket:      bucket,
		Size:        aws.Int64Value(resp.ContentLength),
		ContentType: aws.StringValue(resp.ContentType),
		Extra:       metadata(resp.Metadata),
		Timestamp:   aws.TimeValue(resp.LastModified).UnixMilli(),
	}, nil
}

func (b *Backend) Delete(ctx context.Context, bucket string, file s.FileInfo) error {
	client, err := b.s3Client(ctx)
	if err != nil {
		return err
	}

	input := &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(file.Name)}
	if file.ID != "" {
		input.VersionId = aws.String(file.ID)
	}
	_, err = client.DeleteObjectWithContext(ctx, input)
	return err
}

// DownloadURL is presigned, private buckets can't be read from bare S3 URLs.
func (b *Backend) DownloadURL(ctx context.Context, bucket, name string) (string, error) {
	client, err := b.s3Client(ctx)
	if err != nil {
		return "", err
	}

	req, _ := client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	return req.Presign(presignExpiry)
}
