package core

import (
	"errors"
	"fmt"
)

// ErrInsufficientContext marks a file that produced no chunks. The job queue
// treats it as fatal per file: the job fails without retrying.
var ErrInsufficientContext = errors.New("no searchable content extracted from file")

// MediaTypeError is returned for media types no extraction strategy covers.
// Fatal per file, never retried.
type MediaTypeError struct {
	MediaType string
}

func (e *MediaTypeError) Error() string {
	return fmt.Sprintf("unsupported media type: %s", e.MediaType)
}

// StorageWriteError wraps a failed chunk write. Treated as transient; the
// whole job retries.
type StorageWriteError struct {
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("chunk storage write failed: %v", e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }

// ProviderErrorCode is the machine-readable class of an AI provider failure.
type ProviderErrorCode string

const (
	ProviderAuthFailed    ProviderErrorCode = "auth_failed"
	ProviderQuotaExceeded ProviderErrorCode = "quota_exceeded"
	ProviderRateLimited   ProviderErrorCode = "rate_limited"
	ProviderUnknown       ProviderErrorCode = "unknown"
)

// ProviderError carries the classified failure of an embedding or completion
// call. The clients never retry or reinterpret; callers branch on Code.
type ProviderError struct {
	Code ProviderErrorCode
	Op   string // "embed" or "generate"
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed (%s): %v", e.Op, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsFatalJobError reports whether a processing failure should skip the retry
// cycle and fail the job immediately.
func IsFatalJobError(err error) bool {
	var mte *MediaTypeError
	if errors.As(err, &mte) {
		return true
	}
	return errors.Is(err, ErrInsufficientContext)
}
