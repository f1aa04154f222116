// Package session hands out authorized B2 clients. Authorization is lazy: nothing
// talks to B2 until the first operation needs account info, and info found in the
// store is reused for as long as it matches the configured credentials.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/accountinfo"
	"github.com/terrycain/backblaze-b2-storage/pkg/b2"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/metrics"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
	"golang.org/x/sync/singleflight"
)

type Credentials struct {
	Realm            string
	ApplicationKeyID string
	ApplicationKey   string
}

type Session struct {
	creds Credentials
	store accountinfo.Store
	http  *http.Client

	group singleflight.Group
}

func New(creds Credentials, store accountinfo.Store, httpClient *http.Client) *Session {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Session{creds: creds, store: store, http: httpClient}
}

func (sess *Session) Store() accountinfo.Store {
	return sess.store
}

// AccountInfo returns stored account info, authorizing first when there is none
// or it was obtained with other credentials.
func (sess *Session) AccountInfo(ctx context.Context) (s.AccountInfo, error) {
	info, err := sess.store.Get(ctx)
	switch {
	case err == nil && info.Valid(sess.creds.Realm, sess.creds.ApplicationKeyID):
		metrics.AccountInfoLookups.WithLabelValues(sess.store.Type(), metrics.Hit).Inc()
		return info, nil
	case err != nil && !errors.Is(err, e.ErrMissingAccountData):
		log.Warn().Err(err).Str("store", sess.store.Type()).Msg("Failed to read account info, re-authorizing")
	}
	metrics.AccountInfoLookups.WithLabelValues(sess.store.Type(), metrics.Miss).Inc()
	return sess.authorize(ctx)
}

// AuthorizeTimeout bounds the shared authorize call, which outlives the
// context of whichever caller started it.
const AuthorizeTimeout = 30 * time.Second

func (sess *Session) authorize(ctx context.Context) (s.AccountInfo, error) {
	ch := sess.group.DoChan("authorize", func() (interface{}, error) {
		authCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), AuthorizeTimeout)
		defer cancel()

		log.Debug().Str("realm", sess.creds.Realm).Str("key_id", sess.creds.ApplicationKeyID).Msg("Authorizing account")
		info, err := b2.Authorize(authCtx, sess.http, sess.creds.Realm, sess.creds.ApplicationKeyID, sess.creds.ApplicationKey)
		if err != nil {
			metrics.Authorizations.WithLabelValues("error").Inc()
			return s.AccountInfo{}, err
		}
		metrics.Authorizations.WithLabelValues("ok").Inc()

		if err = sess.store.Set(authCtx, info); err != nil {
			log.Error().Err(err).Str("store", sess.store.Type()).Msg("Failed to save account info")
		}
		return info, nil
	})

	select {
	case <-ctx.Done():
		return s.AccountInfo{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.Debug().Msg("Shared authorize call")
		}
		if res.Err != nil {
			return s.AccountInfo{}, res.Err
		}
		return res.Val.(s.AccountInfo), nil
	}
}

// Client returns a client for the current authorization.
func (sess *Session) Client(ctx context.Context) (*b2.Client, error) {
	info, err := sess.AccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	return b2.NewClient(info, sess.http), nil
}

// Do runs fn with an authorized client. If B2 reports the token as expired the
// store is cleared and fn is retried once with a fresh authorization.
func (sess *Session) Do(ctx context.Context, fn func(*b2.Client) error) error {
	client, err := sess.Client(ctx)
	if err != nil {
		return err
	}

	err = fn(client)
	if !b2.IsExpiredAuth(err) {
		return err
	}

	log.Info().Msg("Authorization token expired, re-authorizing")
	if err = sess.store.Clear(ctx); err != nil {
		return err
	}
	if client, err = sess.Client(ctx); err != nil {
		return err
	}
	return fn(client)
}

// Bucket resolves a bucket by name. A cached id is used as is, so the returned
// bucket has no Type in that case.
func (sess *Session) Bucket(ctx context.Context, name string) (s.Bucket, error) {
	// Make sure the cached bucket belongs to the current authorization
	if _, err := sess.AccountInfo(ctx); err != nil {
		return s.Bucket{}, err
	}

	id, err := sess.store.BucketID(ctx, name)
	if err == nil {
		return s.Bucket{ID: id, Name: name}, nil
	} else if !errors.Is(err, e.ErrNotFound) {
		log.Warn().Err(err).Str("bucket", name).Msg("Failed to read cached bucket id")
	}
	return sess.FreshBucket(ctx, name)
}

// FreshBucket always lists the bucket, refreshing the cached id.
func (sess *Session) FreshBucket(ctx context.Context, name string) (s.Bucket, error) {
	var bucket s.Bucket
	err := sess.Do(ctx, func(client *b2.Client) error {
		var err error
		bucket, err = client.Bucket(ctx, name)
		return err
	})
	if errors.Is(err, e.ErrNonExistentBucket) {
		_ = sess.store.RemoveBucket(ctx, name)
		return s.Bucket{}, err
	} else if err != nil {
		return s.Bucket{}, err
	}

	if err = sess.store.SaveBucket(ctx, bucket); err != nil {
		log.Error().Err(err).Str("bucket", name).Msg("Failed to cache bucket id")
	}
	return bucket, nil
}

func (sess *Session) CreateBucket(ctx context.Context, name string, details s.BucketDetails) (s.Bucket, error) {
	var bucket s.Bucket
	err := sess.Do(ctx, func(client *b2.Client) error {
		var err error
		bucket, err = client.CreateBucket(ctx, name, details)
		return err
	})
	if err != nil {
		return s.Bucket{}, err
	}

	log.Info().Str("bucket", name).Str("type", bucket.Type).Msg("Created bucket")
	if err = sess.store.SaveBucket(ctx, bucket); err != nil {
		log.Error().Err(err).Str("bucket", name).Msg("Failed to cache bucket id")
	}
	return bucket, nil
}
