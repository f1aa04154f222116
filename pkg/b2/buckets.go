package b2

import (
	"context"
	"fmt"

	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
)

const DefaultBucketType = "allPrivate"

// Bucket looks up a single bucket by name.
func (c *Client) Bucket(ctx context.Context, name string) (s.Bucket, error) {
	req := struct {
		AccountID string `json:"accountId"`
		Name      string `json:"bucketName"`
	}{c.info.AccountID, name}
	res := struct {
		Buckets []s.Bucket `json:"buckets"`
	}{}
	if err := c.api(ctx, "b2_list_buckets", &req, &res); err != nil {
		return s.Bucket{}, err
	}

	for i := range res.Buckets {
		if res.Buckets[i].Name == name {
			return res.Buckets[i], nil
		}
	}
	return s.Bucket{}, fmt.Errorf("%w: %s", e.ErrNonExistentBucket, name)
}

func (c *Client) CreateBucket(ctx context.Context, name string, details s.BucketDetails) (s.Bucket, error) {
	if details.Type == "" {
		details.Type = DefaultBucketType
	}
	req := struct {
		AccountID      string                   `json:"accountId"`
		Name           string                   `json:"bucketName"`
		Type           string                   `json:"bucketType"`
		Info           map[string]string        `json:"bucketInfo,omitempty"`
		LifecycleRules []map[string]interface{} `json:"lifecycleRules,omitempty"`
	}{c.info.AccountID, name, details.Type, details.Info, details.LifecycleRules}

	bucket := s.Bucket{}
	if err := c.api(ctx, "b2_create_bucket", &req, &bucket); err != nil {
		return s.Bucket{}, err
	}
	return bucket, nil
}
