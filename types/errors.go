package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider and sync failures. Kinds are string-based
// for debuggability and natural JSON serialization.
type ErrorKind string

const (
	// KindAuthExpired means the access token was rejected; recoverable by a
	// credential refresh followed by a retry of the failed step.
	KindAuthExpired ErrorKind = "AUTH_EXPIRED"

	// KindRateLimited means the provider throttled us; the connection is
	// surfaced as errored with a retry-later message, never silently eaten.
	KindRateLimited ErrorKind = "RATE_LIMITED"

	// KindNotFound means the folder or file does not exist remotely.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindTransientNetwork covers timeouts and connection resets.
	KindTransientNetwork ErrorKind = "TRANSIENT_NETWORK"

	// KindQuotaExceeded covers download-quota and large-file confirmation
	// failures.
	KindQuotaExceeded ErrorKind = "QUOTA_EXCEEDED"

	// KindAccessDenied means the remote folder is private or the share was
	// revoked.
	KindAccessDenied ErrorKind = "ACCESS_DENIED"

	// KindListingFailed means every listing strategy was exhausted. It is
	// never interpreted as "folder has zero files".
	KindListingFailed ErrorKind = "LISTING_FAILED"

	KindUnknown ErrorKind = "UNKNOWN"
)

// SyncError carries a kind, the operation that failed and an optional cause.
type SyncError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError builds a SyncError without a cause.
func NewSyncError(kind ErrorKind, op, format string, args ...interface{}) *SyncError {
	return &SyncError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WrapSyncError attaches a kind and operation to an underlying error.
func WrapSyncError(kind ErrorKind, op string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err, or KindUnknown for plain errors.
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsConnectionFatal reports whether err should halt the whole sync and mark
// the connection errored, as opposed to per-file failures that are recorded
// and skipped over. A single missing or restricted file stays a per-file
// error; dead credentials or throttling affect every remaining file.
func IsConnectionFatal(err error) bool {
	switch KindOf(err) {
	case KindAuthExpired, KindListingFailed, KindRateLimited:
		return true
	}
	return false
}
