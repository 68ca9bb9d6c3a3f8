package shm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srediag/shm-bbuf/internal/logger"
	internalshm "github.com/srediag/shm-bbuf/internal/shm"
)

var hostLogger = logger.New("shm", nil)

// Host is the process-shared namespace. Segments live at /dev/shm/<name> and
// semaphores at /dev/shm/sem.<name>, as with shm_open and sem_open.
type Host struct{}

// NewHost returns the host namespace, or ErrUnsupported when the platform has
// no /dev/shm.
func NewHost() (*Host, error) {
	if !internalshm.Available() {
		return nil, ErrUnsupported
	}
	return &Host{}, nil
}

func (h *Host) CreateSegment(ctx context.Context, name string, size int) (Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{Name: name, Size: size, Create: true})
	if err != nil {
		return nil, fmt.Errorf("create segment %q: %w", name, err)
	}
	hostLogger.Debugf("created segment %s (%d bytes)", region.Path, size)
	return &hostSegment{region: region}, nil
}

func (h *Host) AttachSegment(ctx context.Context, name string) (Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{Name: name})
	if err != nil {
		return nil, fmt.Errorf("attach segment %q: %w", name, err)
	}
	hostLogger.Debugf("attached segment %s (%d bytes)", region.Path, len(region.Data))
	return &hostSegment{region: region}, nil
}

func (h *Host) DestroySegment(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := internalshm.RemovePath(internalshm.PathFor(name)); err != nil {
		return fmt.Errorf("destroy segment %q: %w", name, err)
	}
	return nil
}

func (h *Host) CreateSemaphore(ctx context.Context, name string, initial uint32) (Semaphore, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if initial > internalshm.SemValueMax {
		return nil, fmt.Errorf("create semaphore %q: %w", name, ErrOverflow)
	}
	path := internalshm.SemaphorePath(name)
	var sem *internalshm.Sem
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Name:   name,
		Path:   path,
		Size:   internalshm.SemSize,
		Create: true,
		Init: func(data []byte) (err error) {
			sem, err = internalshm.InitSem(data, initial)
			return err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create semaphore %q: %w", name, err)
	}
	hostLogger.Debugf("created semaphore %s = %d", path, initial)
	return &hostSemaphore{name: name, region: region, sem: sem}, nil
}

func (h *Host) OpenSemaphore(ctx context.Context, name string) (Semaphore, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Name: name,
		Path: internalshm.SemaphorePath(name),
		Size: internalshm.SemSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open semaphore %q: %w", name, err)
	}
	sem, err := internalshm.BindSem(region.Data)
	if err != nil {
		_ = internalshm.UnmapRegion(ctx, region)
		return nil, fmt.Errorf("open semaphore %q: %w", name, err)
	}
	return &hostSemaphore{name: name, region: region, sem: sem}, nil
}

func (h *Host) UnlinkSemaphore(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := internalshm.RemovePath(internalshm.SemaphorePath(name)); err != nil {
		return fmt.Errorf("unlink semaphore %q: %w", name, err)
	}
	return nil
}

type hostSegment struct {
	region *internalshm.Region
	once   sync.Once
}

func (s *hostSegment) Name() string { return s.region.Name }

func (s *hostSegment) Bytes() []byte { return s.region.Data }

func (s *hostSegment) Detach() {
	s.once.Do(func() {
		if err := internalshm.UnmapRegion(context.Background(), s.region); err != nil {
			hostLogger.Warnf("detach segment %s: %v", s.region.Path, err)
		}
	})
}

type hostSemaphore struct {
	name   string
	region *internalshm.Region
	sem    *internalshm.Sem
	closed atomic.Bool
}

func (s *hostSemaphore) Name() string { return s.name }

func (s *hostSemaphore) Wait(ctx context.Context) error {
	if s.closed.Load() {
		return fmt.Errorf("wait %q: %w", s.name, ErrClosed)
	}
	if err := s.sem.Wait(ctx); err != nil {
		return fmt.Errorf("wait %q: %w", s.name, err)
	}
	return nil
}

func (s *hostSemaphore) TryWait() (bool, error) {
	if s.closed.Load() {
		return false, fmt.Errorf("trywait %q: %w", s.name, ErrClosed)
	}
	return s.sem.TryWait(), nil
}

func (s *hostSemaphore) Signal() error {
	if s.closed.Load() {
		return fmt.Errorf("signal %q: %w", s.name, ErrClosed)
	}
	if err := s.sem.Post(); err != nil {
		return fmt.Errorf("signal %q: %w", s.name, err)
	}
	return nil
}

func (s *hostSemaphore) Value() (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("value %q: %w", s.name, ErrClosed)
	}
	return int(s.sem.Value()), nil
}

func (s *hostSemaphore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return internalshm.UnmapRegion(context.Background(), s.region)
}
