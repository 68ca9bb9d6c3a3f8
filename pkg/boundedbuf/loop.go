package boundedbuf

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/shm-bbuf/pkg/boundedbuf"

// LoopConfig configures a Producer or Consumer.
type LoopConfig struct {
	// Items is the number of iterations to run.
	Items int
	// Delay is slept after each iteration, the last one included.
	Delay time.Duration
	// Generator supplies produced values. Producer only, defaults to
	// RandomGenerator.
	Generator Generator
	Observer  Observer
	Tracer    trace.Tracer
	Meter     metric.Meter
}

func (c *LoopConfig) validate() error {
	if c.Items < 0 {
		return errors.New("boundedbuf: negative item quota")
	}
	if c.Delay < 0 {
		return errors.New("boundedbuf: negative delay")
	}
	return nil
}

type loop struct {
	role   Role
	state  *State
	sems   *SyncSet
	cfg    LoopConfig
	obs    Observer
	tracer trace.Tracer
	items  metric.Int64Counter
	wait   metric.Float64Histogram
	attrs  attribute.Set
	done   atomic.Int64
}

func newLoop(role Role, state *State, sems *SyncSet, cfg LoopConfig) (*loop, error) {
	if state == nil || sems == nil || sems.Mutex == nil || sems.EmptySlots == nil || sems.FilledSlots == nil {
		return nil, errors.New("boundedbuf: state and semaphores are required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &loop{
		role:   role,
		state:  state,
		sems:   sems,
		cfg:    cfg,
		obs:    cfg.Observer,
		tracer: cfg.Tracer,
		attrs:  attribute.NewSet(attribute.String("role", string(role))),
	}
	if l.obs == nil {
		l.obs = NopObserver{}
	}
	if l.tracer == nil {
		l.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	meter := cfg.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	var err error
	l.items, err = meter.Int64Counter("bbuf.items",
		metric.WithDescription("Items moved through the bounded buffer."),
		metric.WithUnit("{item}"))
	if err != nil {
		return nil, err
	}
	l.wait, err = meter.Float64Histogram("bbuf.wait.duration",
		metric.WithDescription("Time spent blocked on a semaphore."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return l, nil
}

// acquire waits on sem and records how long it took.
func (l *loop) acquire(ctx context.Context, sem string, wait func(context.Context) error) error {
	start := time.Now()
	err := wait(ctx)
	l.wait.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("role", string(l.role)),
		attribute.String("semaphore", sem)))
	return err
}

// run drives step until the quota is met.
func (l *loop) run(ctx context.Context, step func(context.Context) (Event, error)) error {
	l.obs.Started(l.role, l.cfg.Items)
	for l.completed() < l.cfg.Items {
		if _, err := step(ctx); err != nil {
			return err
		}
		if err := sleep(ctx, l.cfg.Delay); err != nil {
			return err
		}
	}
	l.obs.Finished(l.role, l.cfg.Items)
	return nil
}

func (l *loop) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("role", string(l.role)),
		attribute.Int("seq", l.completed())))
}

// finish reports a completed iteration. Callers invoke it before signalling
// the peer so an item is reported before the other side can observe it.
func (l *loop) finish(ctx context.Context, span trace.Span, v int32, pos int) Event {
	ev := Event{Role: l.role, Seq: l.completed(), Value: v, Position: pos, At: time.Now()}
	l.done.Add(1)
	l.items.Add(ctx, 1, metric.WithAttributeSet(l.attrs))
	span.SetAttributes(attribute.Int("value", int(v)), attribute.Int("position", pos))
	l.obs.Item(ev)
	return ev
}

func (l *loop) completed() int { return int(l.done.Load()) }

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
