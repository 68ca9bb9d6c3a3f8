package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Inspect prints the buffer state and semaphore counts found under names.
// Missing objects are reported, not treated as errors. The state is read
// while holding the mutex when it is free; otherwise the line is marked
// unlocked and may be torn.
func Inspect(ctx context.Context, ns shm.Namespace, names boundedbuf.Names, out io.Writer) error {
	seg, err := ns.AttachSegment(ctx, names.Segment)
	switch {
	case errors.Is(err, shm.ErrNotFound):
		fmt.Fprintf(out, "segment %s: not found\n", names.Segment)
	case err != nil:
		return err
	default:
		state, err := boundedbuf.NewState(seg.Bytes())
		if err != nil {
			seg.Detach()
			return fmt.Errorf("segment %s: %w", names.Segment, err)
		}
		snap, locked, err := lockedSnapshot(ctx, ns, names.Mutex, state)
		seg.Detach()
		if err != nil {
			return err
		}
		check := "ok"
		if err := snap.Check(); err != nil {
			check = err.Error()
		}
		mark := ""
		if !locked {
			mark = " (unlocked, may be torn)"
		}
		fmt.Fprintf(out, "segment %s: %s check:%s%s\n", names.Segment, snap, check, mark)
	}

	for _, sem := range []struct{ role, name string }{
		{"mutex", names.Mutex},
		{"empty", names.EmptySlots},
		{"full", names.FilledSlots},
		{"done", names.Done},
	} {
		h, err := ns.OpenSemaphore(ctx, sem.name)
		if errors.Is(err, shm.ErrNotFound) {
			fmt.Fprintf(out, "semaphore %s %s: not found\n", sem.role, sem.name)
			continue
		}
		if err != nil {
			return err
		}
		v, err := h.Value()
		_ = h.Close()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "semaphore %s %s: value:%d\n", sem.role, sem.name, v)
	}
	return nil
}

// lockedSnapshot copies state under the mutex named name. It never blocks: a
// missing or busy mutex yields an unlocked copy.
func lockedSnapshot(ctx context.Context, ns shm.Namespace, name string, state *boundedbuf.State) (boundedbuf.Snapshot, bool, error) {
	mutex, err := ns.OpenSemaphore(ctx, name)
	if errors.Is(err, shm.ErrNotFound) {
		return state.Snapshot(), false, nil
	}
	if err != nil {
		return boundedbuf.Snapshot{}, false, err
	}
	defer func() { _ = mutex.Close() }()

	ok, err := mutex.TryWait()
	if err != nil {
		return boundedbuf.Snapshot{}, false, err
	}
	if !ok {
		return state.Snapshot(), false, nil
	}
	snap := state.Snapshot()
	if err := mutex.Signal(); err != nil {
		return snap, true, fmt.Errorf("release mutex: %w", err)
	}
	return snap, true, nil
}
