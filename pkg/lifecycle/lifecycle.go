// Package lifecycle owns the shared resources of a bounded buffer: the
// producer side creates and finally removes them, the consumer side attaches
// to them and only releases its local handles.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shm-bbuf/internal/logger"
	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Config describes one producer/consumer pair. Both sides must use the same
// Names and Barrier setting.
type Config struct {
	Names         boundedbuf.Names
	Capacity      int
	Items         int
	ProducerDelay time.Duration
	ConsumerDelay time.Duration
	// Generator defaults to boundedbuf.RandomGenerator.
	Generator boundedbuf.Generator
	// Barrier makes the producer wait for the consumer to finish before it
	// removes the shared objects.
	Barrier bool
}

// DefaultConfig reproduces the classic two-slot, ten-item demo.
func DefaultConfig() Config {
	return Config{
		Names:         boundedbuf.DefaultNames(),
		Capacity:      2,
		Items:         10,
		ProducerDelay: time.Second,
		ConsumerDelay: 2 * time.Second,
	}
}

func (c Config) validate() error {
	if err := c.Names.Validate(); err != nil {
		return err
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("lifecycle: capacity must be positive, got %d", c.Capacity)
	}
	if c.Items < 0 {
		return fmt.Errorf("lifecycle: item quota must not be negative, got %d", c.Items)
	}
	return nil
}

// Option customizes a Manager.
type Option func(*Manager)

// WithObserver reports loop progress to obs.
func WithObserver(obs boundedbuf.Observer) Option {
	return func(m *Manager) { m.observer = obs }
}

// WithTracer traces every loop iteration.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithMeter records loop metrics.
func WithMeter(mt metric.Meter) Option {
	return func(m *Manager) { m.meter = mt }
}

// WithLogger replaces the default diagnostic logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithReadyHook is called once the producer has created every shared object
// and is about to start its loop.
func WithReadyHook(fn func()) Option {
	return func(m *Manager) { m.onReady = fn }
}

// Manager runs the producer and consumer paths over a namespace.
type Manager struct {
	ns       shm.Namespace
	cfg      Config
	observer boundedbuf.Observer
	tracer   trace.Tracer
	meter    metric.Meter
	log      *logger.Logger
	onReady  func()
}

// NewManager validates cfg and returns a Manager bound to ns.
func NewManager(ns shm.Namespace, cfg Config, opts ...Option) (*Manager, error) {
	if ns == nil {
		return nil, errors.New("lifecycle: namespace is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &Manager{ns: ns, cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.New("lifecycle", nil)
	}
	return m, nil
}

// Config returns the configuration the manager runs with.
func (m *Manager) Config() Config { return m.cfg }

// Cleanup removes the segment and every semaphore name left behind by an
// earlier run. Names that do not exist are skipped.
func (m *Manager) Cleanup() error {
	var errs []error
	if err := m.ns.DestroySegment(m.cfg.Names.Segment); err != nil && !errors.Is(err, shm.ErrNotFound) {
		errs = append(errs, err)
	}
	if err := boundedbuf.UnlinkSyncSet(m.ns, m.cfg.Names); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Manager) loopConfig(delay time.Duration) boundedbuf.LoopConfig {
	return boundedbuf.LoopConfig{
		Items:     m.cfg.Items,
		Delay:     delay,
		Generator: m.cfg.Generator,
		Observer:  m.observer,
		Tracer:    m.tracer,
		Meter:     m.meter,
	}
}

// RunProducer creates the segment and semaphores, produces the configured
// quota, and removes everything it created. Teardown also runs when the loop
// fails or ctx is cancelled.
func (m *Manager) RunProducer(ctx context.Context) error {
	return m.runProducer(ctx, nil)
}

func (m *Manager) runProducer(ctx context.Context, gate <-chan struct{}) (err error) {
	if cerr := m.Cleanup(); cerr != nil {
		m.log.Warnf("stale cleanup: %v", cerr)
	}

	names := m.cfg.Names
	seg, err := m.ns.CreateSegment(ctx, names.Segment, boundedbuf.StateSize(m.cfg.Capacity))
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	state, err := boundedbuf.NewState(seg.Bytes())
	if err != nil {
		seg.Detach()
		_ = m.ns.DestroySegment(names.Segment)
		return err
	}
	state.Reset()

	sems, err := boundedbuf.CreateSyncSet(ctx, m.ns, names, m.cfg.Capacity, m.cfg.Barrier)
	if err != nil {
		seg.Detach()
		_ = m.ns.DestroySegment(names.Segment)
		return fmt.Errorf("create semaphores: %w", err)
	}
	defer func() {
		err = errors.Join(err, m.teardown(seg, sems))
	}()
	m.log.Infof("producer ready: segment %s capacity %d", names.Segment, m.cfg.Capacity)

	producer, err := boundedbuf.NewProducer(state, sems, m.loopConfig(m.cfg.ProducerDelay))
	if err != nil {
		return err
	}
	if m.onReady != nil {
		m.onReady()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := producer.Run(ctx); err != nil {
		return err
	}
	if sems.Done != nil {
		m.log.Debugf("waiting for consumer to finish")
		if err := sems.Done.Wait(ctx); err != nil {
			return fmt.Errorf("wait for consumer: %w", err)
		}
	}
	return nil
}

// teardown detaches and destroys the segment, then closes and unlinks the
// semaphores. Objects already removed are not an error.
func (m *Manager) teardown(seg shm.Segment, sems *boundedbuf.SyncSet) error {
	var errs []error
	seg.Detach()
	if err := m.ns.DestroySegment(m.cfg.Names.Segment); err != nil && !errors.Is(err, shm.ErrNotFound) {
		errs = append(errs, fmt.Errorf("destroy segment: %w", err))
	}
	if err := sems.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close semaphores: %w", err))
	}
	if err := boundedbuf.UnlinkSyncSet(m.ns, m.cfg.Names); err != nil {
		errs = append(errs, fmt.Errorf("unlink semaphores: %w", err))
	}
	if len(errs) == 0 {
		m.log.Debugf("shared objects removed")
	}
	return errors.Join(errs...)
}

// RunConsumer attaches to the objects created by the producer and consumes
// the configured quota. It fails with shm.ErrNotFound when the producer has
// not created them yet. It never removes shared objects.
func (m *Manager) RunConsumer(ctx context.Context) error {
	return m.runConsumer(ctx, nil)
}

func (m *Manager) runConsumer(ctx context.Context, attached func()) error {
	names := m.cfg.Names
	seg, err := m.ns.AttachSegment(ctx, names.Segment)
	if err != nil {
		return fmt.Errorf("attach segment: %w", err)
	}
	defer seg.Detach()
	state, err := boundedbuf.NewState(seg.Bytes())
	if err != nil {
		return err
	}

	sems, err := boundedbuf.OpenSyncSet(ctx, m.ns, names, m.cfg.Barrier)
	if err != nil {
		return fmt.Errorf("open semaphores: %w", err)
	}
	defer func() {
		if err := sems.Close(); err != nil {
			m.log.Warnf("close semaphores: %v", err)
		}
	}()
	m.log.Infof("consumer attached: segment %s capacity %d", names.Segment, state.Capacity())

	consumer, err := boundedbuf.NewConsumer(state, sems, m.loopConfig(m.cfg.ConsumerDelay))
	if err != nil {
		return err
	}
	if attached != nil {
		attached()
	}
	if err := consumer.Run(ctx); err != nil {
		return err
	}
	if sems.Done != nil {
		if err := sems.Done.Signal(); err != nil {
			return fmt.Errorf("signal producer: %w", err)
		}
	}
	return nil
}

// RunPair runs both sides in this process on a pool of two workers. The
// consumer is started once the producer is ready, and the producer loop only
// starts after the consumer has attached.
func (m *Manager) RunPair(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	pool, err := ants.NewPool(2, ants.WithDisablePurge(true), ants.WithPanicHandler(func(p interface{}) {
		m.log.Errorf("worker panic: %v", p)
		errc <- fmt.Errorf("lifecycle: worker panic: %v", p)
		cancel()
	}))
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.ReleaseTimeout(5 * time.Second); err != nil {
			m.log.Warnf("release pool: %v", err)
		}
	}()

	ready := make(chan struct{})
	gate := make(chan struct{})
	var readyOnce, gateOnce sync.Once
	userReady := m.onReady
	pm := *m
	pm.onReady = func() {
		if userReady != nil {
			userReady()
		}
		readyOnce.Do(func() { close(ready) })
	}

	if err := pool.Submit(func() {
		err := pm.runProducer(ctx, gate)
		if err != nil {
			cancel()
		}
		errc <- err
	}); err != nil {
		return err
	}

	select {
	case <-ready:
	case err := <-errc:
		return err
	}

	if err := pool.Submit(func() {
		err := m.runConsumer(ctx, func() { gateOnce.Do(func() { close(gate) }) })
		if err != nil {
			cancel()
		}
		errc <- err
	}); err != nil {
		cancel()
		<-errc
		return err
	}

	// a failure on one side cancels the other, so report the cause rather
	// than the resulting cancellation
	var first error
	for i := 0; i < 2; i++ {
		err := <-errc
		if err == nil {
			continue
		}
		if first == nil || (errors.Is(first, context.Canceled) && !errors.Is(err, context.Canceled)) {
			first = err
		}
	}
	return first
}
