package calls

import "errors"

var (
	// ErrNotFound means no call matched the lookup key.
	// Webhook callers acknowledge and drop; there is no speculative creation.
	ErrNotFound = errors.New("call not found")

	// ErrStaleEvent marks a lifecycle event superseded by one already applied,
	// either by timestamp or by the call having reached a terminal status.
	// Informational to the sender, but always observable to callers.
	ErrStaleEvent = errors.New("stale event")

	// ErrDuplicateRecording marks a recording event for a call whose recording
	// is already finalized. Idempotent no-op.
	ErrDuplicateRecording = errors.New("duplicate recording")

	// ErrForbidden means the requester is neither the call owner nor an admin.
	ErrForbidden = errors.New("forbidden")

	// ErrVersionConflict is returned by Store.Save when the persisted version
	// no longer matches the one the caller read.
	ErrVersionConflict = errors.New("version conflict")

	ErrInvalidArgument = errors.New("invalid argument")
)
