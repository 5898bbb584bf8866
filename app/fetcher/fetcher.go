// Package fetcher downloads artifacts to local disk. Implementations map
// collaborator failures onto a small set of sentinel errors so the pipeline
// can decide between retrying and giving up without knowing the transport.
package fetcher

import (
	"context"
	"errors"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ...) and test with
// errors.Is.
var (
	// ErrNotFound means the remote artifact does not exist. Permanent.
	ErrNotFound = errors.New("artifact not found")
	// ErrForbidden means access to the artifact is denied. Permanent.
	ErrForbidden = errors.New("artifact access forbidden")
	// ErrRateLimited means the remote side is throttling. Retryable.
	ErrRateLimited = errors.New("rate limited")
	// ErrSizeExceeded means the artifact is larger than the configured cap.
	// Permanent.
	ErrSizeExceeded = errors.New("artifact size exceeds limit")
)

// Result describes a completed download.
type Result struct {
	LocalPath string
	SizeBytes int64
}

// ArtifactFetcher downloads one artifact into destDir and returns where it
// landed. id names the artifact and locator says where it lives; fetchers
// that derive the location from the id alone may ignore locator, and the
// rest must tolerate an empty locator by falling back to the id.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, id string, locator string, destDir string) (*Result, error)
}
