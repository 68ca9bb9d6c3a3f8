package shm

import internalshm "github.com/srediag/shm-bbuf/internal/shm"

// Failure taxonomy shared by every Namespace. Returned errors wrap one of
// these together with the platform cause; match them with errors.Is.
var (
	// ErrNotFound means the named object does not exist (attach before create,
	// or access after removal).
	ErrNotFound = internalshm.ErrNotFound
	// ErrAlreadyExists means the name is taken, usually by a stale object from
	// an unclean run.
	ErrAlreadyExists = internalshm.ErrAlreadyExists
	// ErrAllocationFailed means the host ran out of shared memory or descriptors.
	ErrAllocationFailed = internalshm.ErrAllocationFailed
	// ErrPermissionDenied means the object exists but may not be accessed.
	ErrPermissionDenied = internalshm.ErrPermissionDenied
	// ErrInvalid means a bad name or size, or an object that is not ours.
	ErrInvalid = internalshm.ErrInvalid
	// ErrClosed means the local handle was already closed.
	ErrClosed = internalshm.ErrClosed
	// ErrOverflow means a semaphore reached its maximum value.
	ErrOverflow = internalshm.ErrOverflow
	// ErrUnsupported means the host namespace is unavailable on this platform.
	ErrUnsupported = internalshm.ErrUnsupported
)
