package shm

import (
	"context"
	"fmt"
	"strings"
)

// Segment is a local mapping of a named shared memory region.
type Segment interface {
	// Name returns the namespace name the segment was created or attached under.
	Name() string
	// Bytes returns the mapped memory. It is nil after Detach.
	Bytes() []byte
	// Detach releases the local mapping. It is idempotent and never fails.
	Detach()
}

// Semaphore is a local handle to a named counting semaphore.
type Semaphore interface {
	Name() string
	// Wait blocks until the count is positive, then decrements it. Waiter wake
	// order is unspecified.
	Wait(ctx context.Context) error
	// TryWait decrements the count if it is positive and reports whether it did.
	TryWait() (bool, error)
	// Signal increments the count and unblocks at most one waiter.
	Signal() error
	// Value returns the current count, for diagnostics only.
	Value() (int, error)
	// Close releases the local handle. It does not remove the semaphore.
	Close() error
}

// Namespace creates, opens, and removes named segments and semaphores.
type Namespace interface {
	// CreateSegment allocates a new zero-filled region. It fails with
	// ErrAlreadyExists if the name is in use.
	CreateSegment(ctx context.Context, name string, size int) (Segment, error)
	// AttachSegment maps an existing region. It fails with ErrNotFound if absent.
	AttachSegment(ctx context.Context, name string) (Segment, error)
	// DestroySegment removes a region from the namespace. Existing mappings stay
	// valid. It fails with ErrNotFound if already removed.
	DestroySegment(name string) error

	// CreateSemaphore fails with ErrAlreadyExists if the name is in use.
	CreateSemaphore(ctx context.Context, name string, initial uint32) (Semaphore, error)
	// OpenSemaphore fails with ErrNotFound if absent.
	OpenSemaphore(ctx context.Context, name string) (Semaphore, error)
	// UnlinkSemaphore removes a semaphore from the namespace. Open handles keep
	// working. It fails with ErrNotFound if already removed.
	UnlinkSemaphore(name string) error
}

// validateName applies shm_open naming rules: an optional leading slash and
// no other slashes.
func validateName(name string) error {
	bare := strings.TrimPrefix(name, "/")
	if bare == "" || strings.Contains(bare, "/") || bare == "." || bare == ".." {
		return fmt.Errorf("%w: name %q", ErrInvalid, name)
	}
	return nil
}
