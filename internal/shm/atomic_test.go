package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt32Words(t *testing.T) {
	mem := make([]byte, 16)
	StoreInt32(mem, 4, -7)
	StoreInt32(mem, 12, 42)
	assert.Equal(t, int32(-7), LoadInt32(mem, 4))
	assert.Equal(t, int32(42), LoadInt32(mem, 12))
	assert.Equal(t, int32(0), LoadInt32(mem, 0))
}

func TestUint32AtBounds(t *testing.T) {
	mem := make([]byte, 8)
	assert.Panics(t, func() { Uint32At(mem, 6) })
	assert.Panics(t, func() { Uint32At(mem, -1) })
	assert.Panics(t, func() { Uint32At(mem, 2) }, "misaligned word")
	assert.NotPanics(t, func() { Uint32At(mem, 4) })
}
