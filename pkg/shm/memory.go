package shm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// MemorySemValueMax is the largest count a Memory semaphore can hold
// (_POSIX_SEM_VALUE_MAX).
const MemorySemValueMax = 32767

// Memory is an in-process namespace with the same contract as Host. Handles
// obtained from it by different goroutines share state exactly like mappings
// held by different processes.
type Memory struct {
	segments   cmap.ConcurrentMap[string, []byte]
	semaphores cmap.ConcurrentMap[string, chan struct{}]
}

// NewMemory returns an empty in-process namespace.
func NewMemory() *Memory {
	return &Memory{
		segments:   cmap.New[[]byte](),
		semaphores: cmap.New[chan struct{}](),
	}
}

func (m *Memory) CreateSegment(ctx context.Context, name string, size int) (Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("create segment %q: %w: size %d", name, ErrInvalid, size)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if !m.segments.SetIfAbsent(name, data) {
		return nil, fmt.Errorf("create segment %q: %w", name, ErrAlreadyExists)
	}
	return &memSegment{name: name, data: data}, nil
}

func (m *Memory) AttachSegment(ctx context.Context, name string) (Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := m.segments.Get(name)
	if !ok {
		return nil, fmt.Errorf("attach segment %q: %w", name, ErrNotFound)
	}
	return &memSegment{name: name, data: data}, nil
}

func (m *Memory) DestroySegment(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, ok := m.segments.Pop(name); !ok {
		return fmt.Errorf("destroy segment %q: %w", name, ErrNotFound)
	}
	return nil
}

func (m *Memory) CreateSemaphore(ctx context.Context, name string, initial uint32) (Semaphore, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if initial > MemorySemValueMax {
		return nil, fmt.Errorf("create semaphore %q: %w", name, ErrOverflow)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := make(chan struct{}, MemorySemValueMax)
	for i := uint32(0); i < initial; i++ {
		tokens <- struct{}{}
	}
	if !m.semaphores.SetIfAbsent(name, tokens) {
		return nil, fmt.Errorf("create semaphore %q: %w", name, ErrAlreadyExists)
	}
	return &memSemaphore{name: name, tokens: tokens}, nil
}

func (m *Memory) OpenSemaphore(ctx context.Context, name string) (Semaphore, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens, ok := m.semaphores.Get(name)
	if !ok {
		return nil, fmt.Errorf("open semaphore %q: %w", name, ErrNotFound)
	}
	return &memSemaphore{name: name, tokens: tokens}, nil
}

func (m *Memory) UnlinkSemaphore(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, ok := m.semaphores.Pop(name); !ok {
		return fmt.Errorf("unlink semaphore %q: %w", name, ErrNotFound)
	}
	return nil
}

// Names lists every segment and semaphore currently in the namespace.
func (m *Memory) Names() (segments, semaphores []string) {
	return m.segments.Keys(), m.semaphores.Keys()
}

type memSegment struct {
	name string
	mu   sync.RWMutex
	data []byte
}

func (s *memSegment) Name() string { return s.name }

func (s *memSegment) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

func (s *memSegment) Detach() {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
}

// memSemaphore holds the count as buffered tokens: Wait receives one, Signal
// sends one.
type memSemaphore struct {
	name   string
	tokens chan struct{}
	closed atomic.Bool
}

func (s *memSemaphore) Name() string { return s.name }

func (s *memSemaphore) Wait(ctx context.Context) error {
	if s.closed.Load() {
		return fmt.Errorf("wait %q: %w", s.name, ErrClosed)
	}
	select {
	case <-s.tokens:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait %q: %w", s.name, ctx.Err())
	}
}

func (s *memSemaphore) TryWait() (bool, error) {
	if s.closed.Load() {
		return false, fmt.Errorf("trywait %q: %w", s.name, ErrClosed)
	}
	select {
	case <-s.tokens:
		return true, nil
	default:
		return false, nil
	}
}

func (s *memSemaphore) Signal() error {
	if s.closed.Load() {
		return fmt.Errorf("signal %q: %w", s.name, ErrClosed)
	}
	select {
	case s.tokens <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("signal %q: %w", s.name, ErrOverflow)
	}
}

func (s *memSemaphore) Value() (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("value %q: %w", s.name, ErrClosed)
	}
	return len(s.tokens), nil
}

func (s *memSemaphore) Close() error {
	s.closed.Store(true)
	return nil
}
