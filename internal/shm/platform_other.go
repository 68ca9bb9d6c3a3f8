//go:build !linux

package shm

import (
	"context"
	"strings"
)

// PathFor returns the name unchanged; there is no host namespace on this platform.
func PathFor(name string) string { return strings.TrimPrefix(name, "/") }

// SemaphorePath returns the semaphore name unchanged.
func SemaphorePath(name string) string { return "sem." + strings.TrimPrefix(name, "/") }

// Available is always false off Linux.
func Available() bool { return false }

// CanCreate is always true off Linux.
func CanCreate(size uint64) bool { return true }

// MapRegion is not supported on this platform.
func MapRegion(ctx context.Context, opts MapOptions) (*Region, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is a no-op on this platform.
func UnmapRegion(ctx context.Context, region *Region) error {
	return nil
}

// RemovePath is not supported on this platform.
func RemovePath(path string) error {
	return ErrUnsupported
}
