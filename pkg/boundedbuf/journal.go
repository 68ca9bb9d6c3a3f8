package boundedbuf

import (
	"fmt"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// RecordKind is the type of a journal record.
type RecordKind int

const (
	RecordEnter RecordKind = iota
	RecordExit
	RecordItem
)

func (k RecordKind) String() string {
	switch k {
	case RecordEnter:
		return "enter"
	case RecordExit:
		return "exit"
	case RecordItem:
		return "item"
	}
	return fmt.Sprintf("RecordKind(%d)", int(k))
}

// Record is one journal entry.
type Record struct {
	Kind  RecordKind
	Role  Role
	Event Event
	At    time.Time
}

// Journal is an Observer that appends critical-section boundaries and items
// to an unbounded queue. Enter and exit records are appended with the mutex
// held, so their relative order is the order the sections actually ran in.
type Journal struct {
	NopObserver

	mu sync.Mutex
	q  *queue.Queue
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{q: queue.New(64)}
}

func (j *Journal) put(r Record) {
	_ = j.q.Put(r)
}

func (j *Journal) EnterSection(role Role) {
	j.put(Record{Kind: RecordEnter, Role: role, At: time.Now()})
}

func (j *Journal) ExitSection(role Role) {
	j.put(Record{Kind: RecordExit, Role: role, At: time.Now()})
}

func (j *Journal) Item(ev Event) {
	j.put(Record{Kind: RecordItem, Role: ev.Role, Event: ev, At: ev.At})
}

// Drain removes and returns everything recorded so far.
func (j *Journal) Drain() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := j.q.Len()
	if n == 0 {
		return nil
	}
	items, err := j.q.Get(n)
	if err != nil {
		return nil
	}
	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, it.(Record))
	}
	return out
}

// Close disposes the underlying queue. Later records are dropped.
func (j *Journal) Close() {
	j.q.Dispose()
}

// VerifyExclusive checks that enter and exit records strictly alternate,
// each exit matching the role of the preceding enter.
func VerifyExclusive(records []Record) error {
	var inside *Record
	for i := range records {
		r := &records[i]
		switch r.Kind {
		case RecordEnter:
			if inside != nil {
				return fmt.Errorf("record %d: %s entered while %s inside", i, r.Role, inside.Role)
			}
			inside = r
		case RecordExit:
			if inside == nil {
				return fmt.Errorf("record %d: %s exited without entering", i, r.Role)
			}
			if inside.Role != r.Role {
				return fmt.Errorf("record %d: %s exited a section held by %s", i, r.Role, inside.Role)
			}
			inside = nil
		}
	}
	if inside != nil {
		return fmt.Errorf("%s never exited", inside.Role)
	}
	return nil
}

// Values returns the item values recorded for role, in order.
func Values(records []Record, role Role) []int32 {
	var out []int32
	for _, r := range records {
		if r.Kind == RecordItem && r.Role == role {
			out = append(out, r.Event.Value)
		}
	}
	return out
}
