package shm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Semaphore object layout, SemSize bytes:
//
//	0x00 value   uint32  current count
//	0x04 waiters uint32  processes sleeping in Wait
//	0x08 magic   uint32  written last by InitSem
//	0x0C reserved
const (
	SemSize = 16

	semValueOff   = 0
	semWaitersOff = 4
	semMagicOff   = 8
	semMagic      = 0x4d455342

	// SemValueMax mirrors SEM_VALUE_MAX on Linux.
	SemValueMax = math.MaxInt32

	// waitSlice bounds a single futex sleep when the caller can be cancelled.
	waitSlice = 100 * time.Millisecond
)

// Sem is a counting semaphore living in shared memory. All operations are
// safe across processes mapping the same object.
type Sem struct {
	value   *uint32
	waiters *uint32
}

// InitSem writes a fresh semaphore with the given initial value into mem.
func InitSem(mem []byte, initial uint32) (*Sem, error) {
	if len(mem) < SemSize {
		return nil, fmt.Errorf("%w: semaphore needs %d bytes, got %d", ErrInvalid, SemSize, len(mem))
	}
	if initial > SemValueMax {
		return nil, ErrOverflow
	}
	s := bindSem(mem)
	atomic.StoreUint32(s.value, initial)
	atomic.StoreUint32(s.waiters, 0)
	atomic.StoreUint32(Uint32At(mem, semMagicOff), semMagic)
	return s, nil
}

// BindSem binds to a semaphore previously written by InitSem.
func BindSem(mem []byte) (*Sem, error) {
	if len(mem) < SemSize {
		return nil, fmt.Errorf("%w: semaphore needs %d bytes, got %d", ErrInvalid, SemSize, len(mem))
	}
	if magic := atomic.LoadUint32(Uint32At(mem, semMagicOff)); magic != semMagic {
		return nil, fmt.Errorf("%w: bad semaphore magic %#x", ErrInvalid, magic)
	}
	return bindSem(mem), nil
}

func bindSem(mem []byte) *Sem {
	return &Sem{
		value:   Uint32At(mem, semValueOff),
		waiters: Uint32At(mem, semWaitersOff),
	}
}

// TryWait decrements the count if it is positive and reports whether it did.
func (s *Sem) TryWait() bool {
	for {
		v := atomic.LoadUint32(s.value)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.value, v, v-1) {
			return true
		}
	}
}

// Wait blocks until the count is positive, then decrements it. A context that
// can be cancelled makes the futex sleep in bounded slices so cancellation is
// observed; context.Background() sleeps until woken.
func (s *Sem) Wait(ctx context.Context) error {
	var timeout time.Duration
	if ctx.Done() != nil {
		timeout = waitSlice
	}
	for {
		if s.TryWait() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		atomic.AddUint32(s.waiters, 1)
		err := FutexWait(s.value, 0, timeout)
		atomic.AddUint32(s.waiters, ^uint32(0))
		if err != nil && !errors.Is(err, ErrFutexTimeout) {
			return err
		}
	}
}

// Post increments the count and wakes at most one sleeping waiter.
func (s *Sem) Post() error {
	for {
		v := atomic.LoadUint32(s.value)
		if v >= SemValueMax {
			return ErrOverflow
		}
		if atomic.CompareAndSwapUint32(s.value, v, v+1) {
			break
		}
	}
	// waiters is raised before the futex re-checks value, so a waiter that
	// missed this increment is either counted here or will see value > 0.
	if atomic.LoadUint32(s.waiters) > 0 {
		if _, err := FutexWake(s.value, 1); err != nil {
			return err
		}
	}
	return nil
}

// Value returns the current count.
func (s *Sem) Value() uint32 {
	return atomic.LoadUint32(s.value)
}
