// Package shm contains platform-specific helpers for the shared memory namespace:
// mapping named regions, futex wait/wake and the semaphore word layout.
package shm

import "errors"

// Region represents a memory-mapped shared object.
type Region struct {
	Name string
	Path string
	Data []byte
}

// MapOptions defines options for mapping a shared object.
type MapOptions struct {
	Name string
	// Path is the host path backing Name. Empty means the segment path for Name.
	Path   string
	Size   int
	Create bool
	// Init runs on a new region before it becomes visible under its name.
	Init func(data []byte) error
}

// Taxonomy of namespace failures. Platform errors are wrapped together with
// one of these so callers can match with errors.Is.
var (
	ErrNotFound         = errors.New("shm: not found")
	ErrAlreadyExists    = errors.New("shm: already exists")
	ErrAllocationFailed = errors.New("shm: allocation failed")
	ErrPermissionDenied = errors.New("shm: permission denied")
	ErrInvalid          = errors.New("shm: invalid object")
	ErrClosed           = errors.New("shm: use of closed handle")
	ErrOverflow         = errors.New("shm: semaphore value overflow")
	ErrUnsupported      = errors.New("shm: not supported on this platform")
)

// ErrFutexTimeout is returned by FutexWait when the wait times out.
var ErrFutexTimeout = errors.New("futex timeout")
