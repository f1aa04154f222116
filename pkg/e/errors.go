package e

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrNotImplemented       = errors.New("not implemented")
	ErrMissingAccountData   = errors.New("missing account data")
	ErrNonExistentBucket    = errors.New("bucket does not exist")
	ErrImproperlyConfigured = errors.New("improperly configured")
	ErrNotWritable          = errors.New("file was not opened for write access")
	ErrNameRequired         = errors.New("name must be defined")
	ErrFileInfoUnavailable  = errors.New("file information not available")
)
