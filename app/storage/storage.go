// Package storage uploads finished artifacts to remote storage.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors for upload failures; test with errors.Is.
var (
	// ErrAuthExpired means the session token was rejected even after a
	// re-login. Retryable.
	ErrAuthExpired = errors.New("storage authentication expired")
	// ErrQuotaExceeded means the remote side refuses more data. Retryable,
	// on the assumption that space gets freed.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Uploader pushes a local file to remotePath on the storage backend.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string) error
}
