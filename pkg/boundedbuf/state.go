package boundedbuf

import (
	"fmt"

	internalshm "github.com/srediag/shm-bbuf/internal/shm"
)

// Segment layout, host byte order, 4-byte words:
//
//	items[capacity] int32
//	head            int32  next write position
//	tail            int32  next read position
//	count           int32  items held, diagnostic only
const (
	wordSize    = 4
	headerWords = 3
)

// StateSize returns the segment size needed for a buffer of capacity items.
func StateSize(capacity int) int {
	return wordSize * (capacity + headerWords)
}

// CapacityFor returns the capacity of a buffer laid out in size bytes.
func CapacityFor(size int) (int, error) {
	if size%wordSize != 0 || size/wordSize <= headerWords {
		return 0, fmt.Errorf("boundedbuf: segment of %d bytes does not hold a buffer", size)
	}
	return size/wordSize - headerWords, nil
}

// State is a view of the buffer state inside a mapped segment. Every method
// must be called with the mutex semaphore held; State itself does no locking.
type State struct {
	mem      []byte
	capacity int
}

// NewState binds a State to mem, deriving the capacity from its length.
func NewState(mem []byte) (*State, error) {
	capacity, err := CapacityFor(len(mem))
	if err != nil {
		return nil, err
	}
	return &State{mem: mem, capacity: capacity}, nil
}

// Capacity returns the number of item slots.
func (s *State) Capacity() int { return s.capacity }

func (s *State) headOff() int  { return wordSize * s.capacity }
func (s *State) tailOff() int  { return s.headOff() + wordSize }
func (s *State) countOff() int { return s.headOff() + 2*wordSize }

// Reset zeroes items, head, tail, and count.
func (s *State) Reset() {
	for off := 0; off < StateSize(s.capacity); off += wordSize {
		internalshm.StoreInt32(s.mem, off, 0)
	}
}

// Item returns the value stored in slot i.
func (s *State) Item(i int) int32 { return internalshm.LoadInt32(s.mem, wordSize*i) }

func (s *State) Head() int  { return int(internalshm.LoadInt32(s.mem, s.headOff())) }
func (s *State) Tail() int  { return int(internalshm.LoadInt32(s.mem, s.tailOff())) }
func (s *State) Count() int { return int(internalshm.LoadInt32(s.mem, s.countOff())) }

// Put stores v at head, advances head, increments count, and returns the
// slot written.
func (s *State) Put(v int32) int {
	pos := s.Head()
	internalshm.StoreInt32(s.mem, wordSize*pos, v)
	internalshm.StoreInt32(s.mem, s.headOff(), int32((pos+1)%s.capacity))
	internalshm.StoreInt32(s.mem, s.countOff(), int32(s.Count()+1))
	return pos
}

// Take reads the value at tail, advances tail, decrements count, and returns
// the value and the slot read.
func (s *State) Take() (int32, int) {
	pos := s.Tail()
	v := s.Item(pos)
	internalshm.StoreInt32(s.mem, s.tailOff(), int32((pos+1)%s.capacity))
	internalshm.StoreInt32(s.mem, s.countOff(), int32(s.Count()-1))
	return v, pos
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	items := make([]int32, s.capacity)
	for i := range items {
		items[i] = s.Item(i)
	}
	return Snapshot{
		Items:    items,
		Head:     s.Head(),
		Tail:     s.Tail(),
		Count:    s.Count(),
		Capacity: s.capacity,
	}
}

// Snapshot is a copy of the buffer state.
type Snapshot struct {
	Items    []int32
	Head     int
	Tail     int
	Count    int
	Capacity int
}

// Check verifies 0 <= count <= capacity and head == (tail+count) mod capacity.
func (s Snapshot) Check() error {
	switch {
	case s.Capacity <= 0:
		return fmt.Errorf("capacity %d", s.Capacity)
	case s.Count < 0 || s.Count > s.Capacity:
		return fmt.Errorf("count %d outside [0,%d]", s.Count, s.Capacity)
	case s.Head < 0 || s.Head >= s.Capacity || s.Tail < 0 || s.Tail >= s.Capacity:
		return fmt.Errorf("head %d or tail %d outside [0,%d)", s.Head, s.Tail, s.Capacity)
	case s.Head != (s.Tail+s.Count)%s.Capacity:
		return fmt.Errorf("head %d != (tail %d + count %d) mod %d", s.Head, s.Tail, s.Count, s.Capacity)
	}
	return nil
}

func (s Snapshot) String() string {
	return fmt.Sprintf("items:%v head:%d tail:%d count:%d cap:%d", s.Items, s.Head, s.Tail, s.Count, s.Capacity)
}
