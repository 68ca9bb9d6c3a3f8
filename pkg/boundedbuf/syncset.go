package boundedbuf

import (
	"context"
	"errors"
	"fmt"

	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Names are the namespace names shared by producer and consumer.
type Names struct {
	Segment     string
	Mutex       string
	EmptySlots  string
	FilledSlots string
	// Done is only used when the completion barrier is enabled.
	Done string
}

// DefaultNames returns the names both executables agree on out of the box.
func DefaultNames() Names {
	return Names{
		Segment:     "/producer_consumer_shm",
		Mutex:       "/mutex_semaphore",
		EmptySlots:  "/empty_semaphore",
		FilledSlots: "/full_semaphore",
		Done:        "/done_semaphore",
	}
}

// Validate checks that all names are set and the semaphore names are distinct.
func (n Names) Validate() error {
	seen := make(map[string]string, 4)
	for _, kv := range [][2]string{
		{"mutex", n.Mutex},
		{"empty", n.EmptySlots},
		{"full", n.FilledSlots},
		{"done", n.Done},
	} {
		if kv[1] == "" {
			return fmt.Errorf("boundedbuf: %s semaphore name is empty", kv[0])
		}
		if other, ok := seen[kv[1]]; ok {
			return fmt.Errorf("boundedbuf: %s and %s semaphores share name %q", other, kv[0], kv[1])
		}
		seen[kv[1]] = kv[0]
	}
	if n.Segment == "" {
		return errors.New("boundedbuf: segment name is empty")
	}
	return nil
}

// SyncSet holds the local handles of the semaphores guarding one buffer.
type SyncSet struct {
	Mutex       shm.Semaphore
	EmptySlots  shm.Semaphore
	FilledSlots shm.Semaphore
	// Done is nil unless the completion barrier is enabled.
	Done shm.Semaphore
}

type semSpec struct {
	dst     *shm.Semaphore
	name    string
	initial uint32
}

func (s *SyncSet) specs(names Names, capacity int, barrier bool) []semSpec {
	specs := []semSpec{
		{&s.Mutex, names.Mutex, 1},
		{&s.EmptySlots, names.EmptySlots, uint32(capacity)},
		{&s.FilledSlots, names.FilledSlots, 0},
	}
	if barrier {
		specs = append(specs, semSpec{&s.Done, names.Done, 0})
	}
	return specs
}

// CreateSyncSet creates mutex (1), emptySlots (capacity), filledSlots (0),
// and with barrier set also done (0). Semaphores created before a failure are
// closed and unlinked again.
func CreateSyncSet(ctx context.Context, ns shm.Namespace, names Names, capacity int, barrier bool) (*SyncSet, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("boundedbuf: capacity %d: %w", capacity, shm.ErrInvalid)
	}
	set := &SyncSet{}
	var created []string
	for _, sp := range set.specs(names, capacity, barrier) {
		sem, err := ns.CreateSemaphore(ctx, sp.name, sp.initial)
		if err != nil {
			_ = set.Close()
			for _, name := range created {
				_ = ns.UnlinkSemaphore(name)
			}
			return nil, err
		}
		*sp.dst = sem
		created = append(created, sp.name)
	}
	return set, nil
}

// OpenSyncSet opens the semaphores created by CreateSyncSet.
func OpenSyncSet(ctx context.Context, ns shm.Namespace, names Names, barrier bool) (*SyncSet, error) {
	set := &SyncSet{}
	for _, sp := range set.specs(names, 0, barrier) {
		sem, err := ns.OpenSemaphore(ctx, sp.name)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		*sp.dst = sem
	}
	return set, nil
}

// Close releases every local handle in the set.
func (s *SyncSet) Close() error {
	var errs []error
	for _, sem := range []shm.Semaphore{s.Mutex, s.EmptySlots, s.FilledSlots, s.Done} {
		if sem == nil {
			continue
		}
		if err := sem.Close(); err != nil && !errors.Is(err, shm.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnlinkSyncSet removes all four semaphore names from ns. Names that are
// already gone are skipped.
func UnlinkSyncSet(ns shm.Namespace, names Names) error {
	var errs []error
	for _, name := range []string{names.Mutex, names.EmptySlots, names.FilledSlots, names.Done} {
		if err := ns.UnlinkSemaphore(name); err != nil && !errors.Is(err, shm.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
