//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

const devShm = "/dev/shm"

var tmpSeq atomic.Uint64

// PathFor returns the host path of a POSIX shared memory name, resolved the way
// shm_open does.
func PathFor(name string) string {
	return filepath.Join(devShm, strings.TrimPrefix(name, "/"))
}

// SemaphorePath returns the host path of a named semaphore.
func SemaphorePath(name string) string {
	return filepath.Join(devShm, "sem."+strings.TrimPrefix(name, "/"))
}

// Available reports whether the host provides the /dev/shm namespace.
func Available() bool {
	info, err := os.Stat(devShm)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// CanCreate reports whether /dev/shm has room for size more bytes.
func CanCreate(size uint64) bool {
	stat, err := disk.Usage(devShm)
	if err != nil {
		return true
	}
	return stat.Free >= size
}

// MapRegion maps or creates a shared memory region (Linux implementation).
// Create is exclusive: an existing object under the same name is an error.
func MapRegion(ctx context.Context, opts MapOptions) (*Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := opts.Path
	if path == "" {
		path = PathFor(opts.Name)
	}
	if opts.Create {
		return createRegion(opts.Name, path, opts.Size, opts.Init)
	}
	return attachRegion(opts.Name, path, opts.Size)
}

// createRegion builds the object under a private temporary name and links it
// into place once sized and initialized, so no peer can open a half-built
// object. link fails with EEXIST when the name is taken.
func createRegion(name, path string, size int, init func([]byte) error) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("create %s: %w: size %d", path, ErrInvalid, size)
	}
	if !CanCreate(uint64(size)) {
		return nil, fmt.Errorf("create %s: %w: no space left on %s for %d bytes", path, ErrAllocationFailed, devShm, size)
	}
	dir, base := filepath.Split(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.%d.tmp", base, os.Getpid(), tmpSeq.Add(1)))
	fd, err := unix.Open(tmp, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, classify("create", path, err)
	}
	defer func() {
		_ = unix.Close(fd)
		_ = unix.Unlink(tmp)
	}()

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, classify("ftruncate", path, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, classify("mmap", path, err)
	}
	if init != nil {
		if err := init(data); err != nil {
			_ = unix.Munmap(data)
			return nil, fmt.Errorf("init %s: %w", path, err)
		}
	}
	if err := unix.Link(tmp, path); err != nil {
		_ = unix.Munmap(data)
		return nil, classify("create", path, err)
	}
	return &Region{Name: name, Path: path, Data: data}, nil
}

func attachRegion(name, path string, want int) (*Region, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classify("open", path, err)
	}
	// the mapping outlives the descriptor
	defer func() { _ = unix.Close(fd) }()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, classify("fstat", path, err)
	}
	size := int(st.Size)
	if size == 0 || (want > 0 && size < want) {
		return nil, fmt.Errorf("open %s: %w: size %d", path, ErrInvalid, size)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, classify("mmap", path, err)
	}
	return &Region{Name: name, Path: path, Data: data}, nil
}

// UnmapRegion unmaps the shared memory region. It is idempotent.
func UnmapRegion(ctx context.Context, region *Region) error {
	if region == nil || region.Data == nil {
		return nil
	}
	if err := unix.Munmap(region.Data); err != nil {
		return fmt.Errorf("munmap %s: %w", region.Path, err)
	}
	region.Data = nil
	return nil
}

// RemovePath removes a shared object from the namespace. Mappings that are
// still held stay valid until they are unmapped.
func RemovePath(path string) error {
	if err := unix.Unlink(path); err != nil {
		return classify("unlink", path, err)
	}
	return nil
}

func classify(op, path string, err error) error {
	var kind error
	switch {
	case errors.Is(err, unix.ENOENT):
		kind = ErrNotFound
	case errors.Is(err, unix.EEXIST):
		kind = ErrAlreadyExists
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		kind = ErrPermissionDenied
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.ENOMEM),
		errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE), errors.Is(err, unix.EFBIG):
		kind = ErrAllocationFailed
	default:
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, path, kind, err)
}
