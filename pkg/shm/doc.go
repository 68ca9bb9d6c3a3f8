// Package shm provides named shared memory segments and named counting
// semaphores that two independent processes can create, attach, and remove
// by name.
//
// Two namespaces implement the same contract: Host, backed by /dev/shm and
// the Linux futex so that it works across processes, and Memory, an
// in-process registry used by tests and by single-process runs.
//
// Example usage:
//
//	ns, err := shm.NewHost()
//	// ...
//	seg, err := ns.CreateSegment(ctx, "/producer_consumer_shm", 20)
//	sem, err := ns.CreateSemaphore(ctx, "/mutex_semaphore", 1)
//	// ...
//	_ = sem.Wait(ctx)
//	_ = sem.Signal()
//
// Platform-specific helpers are in internal/shm.
package shm
