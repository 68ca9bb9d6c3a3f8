// Package boundedbuf implements the bounded-buffer protocol between one
// producer and one consumer that share a memory segment and three named
// counting semaphores:
//
//	mutex        initial 1         guards every access to the buffer state
//	emptySlots   initial capacity  writable slots, taken by the producer
//	filledSlots  initial 0         readable items, taken by the consumer
//
// The producer and consumer usually live in different processes; each one
// builds a State over its own mapping of the segment and a SyncSet over its
// own semaphore handles. Flow control comes only from the semaphores. The
// count field in State is kept for diagnostics.
//
// The loops are instrumented with OpenTelemetry (noop unless a Tracer and
// Meter are supplied) and report progress to Observers.
package boundedbuf
