package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Uint32At returns a pointer to the 4-byte word at off in mem. The word must be
// in bounds and 4-byte aligned so it can be used with sync/atomic and futex.
func Uint32At(mem []byte, off int) *uint32 {
	if off < 0 || off+4 > len(mem) {
		panic(fmt.Errorf("shm: word offset %d out of range [0,%d)", off, len(mem)))
	}
	p := unsafe.Pointer(&mem[off])
	if uintptr(p)%4 != 0 {
		panic(fmt.Errorf("shm: word offset %d is not 4-byte aligned", off))
	}
	return (*uint32)(p)
}

// Int32At is Uint32At for signed words.
func Int32At(mem []byte, off int) *int32 {
	return (*int32)(unsafe.Pointer(Uint32At(mem, off)))
}

// LoadInt32 loads the signed word at off.
func LoadInt32(mem []byte, off int) int32 {
	return atomic.LoadInt32(Int32At(mem, off))
}

// StoreInt32 stores v into the signed word at off.
func StoreInt32(mem []byte, off int, v int32) {
	atomic.StoreInt32(Int32At(mem, off), v)
}
