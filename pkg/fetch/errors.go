package fetch

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure of a fetch operation wraps exactly one of
// these, so callers can classify with errors.Is while still seeing the
// full context in the message. No kind is retried internally.
var (
	ErrInvalidRequest    = errors.New("invalid fetch request")
	ErrDirectoryCreation = errors.New("directory creation failed")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	ErrPublishFailed     = errors.New("publish failed")
)

// IntegrityError reports a digest mismatch for a fetched entry. The corrupt
// entry is purged before the error surfaces; if that purge itself failed,
// CleanupErr carries the secondary failure without masking the mismatch.
type IntegrityError struct {
	URL        string
	Expected   string
	Actual     string
	CleanupErr error
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("integrity mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
	if e.CleanupErr != nil {
		msg += fmt.Sprintf(" (cache entry could not be removed: %v)", e.CleanupErr)
	}
	return msg
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityMismatch }

// Kind names the error kind of err for reporting, or "ok" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrDirectoryCreation):
		return "directory_creation_failed"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrIntegrityMismatch):
		return "integrity_mismatch"
	case errors.Is(err, ErrPublishFailed):
		return "publish_failed"
	default:
		return "error"
	}
}
