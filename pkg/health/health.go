// Package health turns bounded-buffer loop progress into liveness and
// readiness checks for a heptiolabs/healthcheck handler.
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
)

// DefaultStallTimeout is how long a running loop may go without progress
// before it is reported dead.
const DefaultStallTimeout = time.Minute

type progress struct {
	started  bool
	finished bool
	last     time.Time
	items    int
	quota    int
	failure  error
}

// Monitor is a boundedbuf.Observer that tracks the progress of each role.
type Monitor struct {
	boundedbuf.NopObserver

	mu    sync.Mutex
	stall time.Duration
	now   func() time.Time
	roles map[boundedbuf.Role]*progress
}

// NewMonitor returns a monitor that reports a loop dead after stall without
// progress. A non-positive stall uses DefaultStallTimeout.
func NewMonitor(stall time.Duration) *Monitor {
	if stall <= 0 {
		stall = DefaultStallTimeout
	}
	return &Monitor{
		stall: stall,
		now:   time.Now,
		roles: make(map[boundedbuf.Role]*progress),
	}
}

func (m *Monitor) get(role boundedbuf.Role) *progress {
	p, ok := m.roles[role]
	if !ok {
		p = &progress{}
		m.roles[role] = p
	}
	return p
}

// Heartbeat records progress for role.
func (m *Monitor) Heartbeat(role boundedbuf.Role) {
	m.mu.Lock()
	m.get(role).last = m.now()
	m.mu.Unlock()
}

// ReportFailure marks role as failed. Its liveness check fails from then on.
func (m *Monitor) ReportFailure(role boundedbuf.Role, err error) {
	m.mu.Lock()
	m.get(role).failure = err
	m.mu.Unlock()
}

func (m *Monitor) Started(role boundedbuf.Role, items int) {
	m.mu.Lock()
	p := m.get(role)
	p.started = true
	p.quota = items
	p.last = m.now()
	m.mu.Unlock()
}

func (m *Monitor) Item(ev boundedbuf.Event) {
	m.mu.Lock()
	p := m.get(ev.Role)
	p.items++
	p.last = m.now()
	m.mu.Unlock()
}

func (m *Monitor) Finished(role boundedbuf.Role, _ int) {
	m.mu.Lock()
	p := m.get(role)
	p.finished = true
	p.last = m.now()
	m.mu.Unlock()
}

// Progress returns the items moved and the quota for role.
func (m *Monitor) Progress(role boundedbuf.Role) (items, quota int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.get(role)
	return p.items, p.quota
}

// LivenessCheck fails once role reported a failure or stopped making
// progress while running.
func (m *Monitor) LivenessCheck(role boundedbuf.Role) healthcheck.Check {
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		p := m.get(role)
		if p.failure != nil {
			return fmt.Errorf("%s failed: %w", role, p.failure)
		}
		if p.started && !p.finished {
			if idle := m.now().Sub(p.last); idle > m.stall {
				return fmt.Errorf("%s made no progress for %s (%d/%d items)", role, idle.Truncate(time.Second), p.items, p.quota)
			}
		}
		return nil
	}
}

// ReadinessCheck fails until the loop for role has started.
func (m *Monitor) ReadinessCheck(role boundedbuf.Role) healthcheck.Check {
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.get(role).started {
			return fmt.Errorf("%s not started", role)
		}
		return nil
	}
}

// Register adds liveness and readiness checks for each role to h.
func (m *Monitor) Register(h healthcheck.Handler, roles ...boundedbuf.Role) {
	for _, role := range roles {
		h.AddLivenessCheck(string(role)+"-progress", m.LivenessCheck(role))
		h.AddReadinessCheck(string(role)+"-started", m.ReadinessCheck(role))
	}
}
