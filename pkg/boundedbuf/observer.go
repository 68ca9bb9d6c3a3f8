package boundedbuf

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Role identifies which side of the buffer an event came from.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// Event describes one item moved through the buffer.
type Event struct {
	Role Role
	// Seq is the zero-based iteration number within the loop.
	Seq      int
	Value    int32
	Position int
	At       time.Time
}

// Observer receives progress from the loops. Started, Item and Finished are
// called outside the critical section. EnterSection and ExitSection are called
// with the mutex held and must not block.
type Observer interface {
	Started(role Role, items int)
	EnterSection(role Role)
	ExitSection(role Role)
	Item(ev Event)
	Finished(role Role, items int)
}

// NopObserver ignores everything. Embed it to implement a subset of Observer.
type NopObserver struct{}

func (NopObserver) Started(Role, int)  {}
func (NopObserver) EnterSection(Role)  {}
func (NopObserver) ExitSection(Role)   {}
func (NopObserver) Item(Event)         {}
func (NopObserver) Finished(Role, int) {}

// Observers fans every call out to each element in order.
type Observers []Observer

func (o Observers) Started(role Role, items int) {
	for _, ob := range o {
		ob.Started(role, items)
	}
}

func (o Observers) EnterSection(role Role) {
	for _, ob := range o {
		ob.EnterSection(role)
	}
}

func (o Observers) ExitSection(role Role) {
	for _, ob := range o {
		ob.ExitSection(role)
	}
}

func (o Observers) Item(ev Event) {
	for _, ob := range o {
		ob.Item(ev)
	}
}

func (o Observers) Finished(role Role, items int) {
	for _, ob := range o {
		ob.Finished(role, items)
	}
}

// ConsoleObserver prints the human-readable progress lines of both
// executables.
type ConsoleObserver struct {
	NopObserver

	mu  sync.Mutex
	out io.Writer
}

// NewConsoleObserver writes to out, or stdout when out is nil.
func NewConsoleObserver(out io.Writer) *ConsoleObserver {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleObserver{out: out}
}

func (c *ConsoleObserver) printf(format string, a ...interface{}) {
	c.mu.Lock()
	fmt.Fprintf(c.out, format+"\n", a...)
	c.mu.Unlock()
}

func (c *ConsoleObserver) Started(role Role, items int) {
	switch role {
	case RoleProducer:
		c.printf("PRODUCER: Starting production of %d items", items)
	case RoleConsumer:
		c.printf("CONSUMER: Starting consumption of %d items", items)
	}
}

func (c *ConsoleObserver) Item(ev Event) {
	switch ev.Role {
	case RoleProducer:
		c.printf("Producer: Produced item %d at position %d", ev.Value, ev.Position)
	case RoleConsumer:
		c.printf("Consumer: Consumed item %d from position %d", ev.Value, ev.Position)
	}
}

func (c *ConsoleObserver) Finished(role Role, items int) {
	switch role {
	case RoleProducer:
		c.printf("PRODUCER: Finished producing %d items", items)
	case RoleConsumer:
		c.printf("CONSUMER: Finished consuming %d items", items)
	}
}
