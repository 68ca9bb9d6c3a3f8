package boundedbuf

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Generator supplies the values the producer writes. It is only called from
// the producer goroutine.
type Generator interface {
	Next() int32
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func() int32

func (f GeneratorFunc) Next() int32 { return f() }

// RandomGenerator returns values in [0,100), seeded from the clock.
func RandomGenerator() Generator {
	seed := uint64(time.Now().UnixNano())
	return SeededRandomGenerator(seed)
}

// SeededRandomGenerator returns a reproducible stream of values in [0,100).
func SeededRandomGenerator(seed uint64) Generator {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return GeneratorFunc(func() int32 { return int32(r.IntN(100)) })
}

// SequenceGenerator returns start, start+1, start+2, ...
func SequenceGenerator(start int32) Generator {
	next := start
	return GeneratorFunc(func() int32 {
		v := next
		next++
		return v
	})
}

// NewGenerator returns the generator registered under kind: "random" or
// "sequence".
func NewGenerator(kind string) (Generator, error) {
	switch kind {
	case "", "random":
		return RandomGenerator(), nil
	case "sequence":
		return SequenceGenerator(0), nil
	default:
		return nil, fmt.Errorf("boundedbuf: unknown generator %q", kind)
	}
}
