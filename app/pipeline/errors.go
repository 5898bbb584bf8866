package pipeline

import (
	"errors"

	"github.com/SuperrNaruto/you2down/app/fetcher"
)

// ErrInvalidStrategy marks an item that cannot be processed because its
// source strategy is unrecognized. Permanent.
var ErrInvalidStrategy = errors.New("unrecognized strategy")

// permanent reports whether err can never succeed on retry. Anything not
// recognized as permanent is treated as transient and retried on the
// backoff schedule, including rate limits and storage quota pressure.
func permanent(err error) bool {
	return errors.Is(err, fetcher.ErrNotFound) ||
		errors.Is(err, fetcher.ErrForbidden) ||
		errors.Is(err, fetcher.ErrSizeExceeded) ||
		errors.Is(err, ErrInvalidStrategy)
}
