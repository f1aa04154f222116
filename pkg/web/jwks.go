package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/jwk"
)

// JWKS looks up session token signing keys published by an identity provider.
// The key set is fetched on first use and refreshed in the background.
type JWKS struct {
	url         string
	autoRefresh *jwk.AutoRefresh
}

func NewJWKS(ctx context.Context, url string) *JWKS {
	autoRefresh := jwk.NewAutoRefresh(ctx)
	autoRefresh.Configure(url)
	return &JWKS{url: url, autoRefresh: autoRefresh}
}

func (k *JWKS) LookupKey(ctx context.Context, keyID string) (interface{}, error) {
	set, err := k.autoRefresh.Fetch(ctx, k.url)
	if err != nil {
		return nil, err
	}

	if keyID == "" {
		// Providers with a single key don't always bother with kid
		if set.Len() != 1 {
			return nil, errors.New("token has no kid and the key set has more than one key")
		}
		currentKey, _ := set.Get(0)
		var keyData interface{}
		err = currentKey.Raw(&keyData)
		return keyData, err
	}

	currentKey, ok := set.LookupKeyID(keyID)
	if !ok {
		return nil, fmt.Errorf("signing key %s not found", keyID)
	}
	var keyData interface{}
	err = currentKey.Raw(&keyData)
	return keyData, err
}
