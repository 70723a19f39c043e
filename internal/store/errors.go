package store

import "errors"

var (
	// ErrSaveFailed marks a durable write that did not complete; the
	// document stays dirty and will be retried by the next flush.
	ErrSaveFailed = errors.New("durable write failed")

	// ErrBadState marks an operation invalid for the workspace's current
	// state, e.g. continuing when no integration is paused.
	ErrBadState = errors.New("workspace state inconsistent")

	// ErrNothingToCommit is returned when a snapshot would be empty.
	ErrNothingToCommit = errors.New("nothing to commit")

	ErrNetwork      = errors.New("remote unreachable")
	ErrAuthFailed   = errors.New("authentication failed")
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrConflict means the integration paused on conflicts and needs
	// decisions before it can continue.
	ErrConflict = errors.New("integration requires conflict decisions")

	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNoCredential   = errors.New("no credential configured")
	ErrNoRepository   = errors.New("not a workspace repository")
	ErrNoRemote       = errors.New("remote not configured")
)

// IsRetryable reports whether the failure may clear on its own, making the
// operation worth re-running unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrSaveFailed)
}

// NeedsUserAction reports whether retrying is pointless until the user
// decides something.
func NeedsUserAction(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrNoCredential)
}
