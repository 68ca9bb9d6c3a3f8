package boundedbuf

import (
	"context"
	"fmt"
)

// Producer writes values into the buffer.
type Producer struct {
	*loop
	gen Generator
}

// NewProducer binds a producer to state and sems.
func NewProducer(state *State, sems *SyncSet, cfg LoopConfig) (*Producer, error) {
	l, err := newLoop(RoleProducer, state, sems, cfg)
	if err != nil {
		return nil, err
	}
	gen := cfg.Generator
	if gen == nil {
		gen = RandomGenerator()
	}
	return &Producer{loop: l, gen: gen}, nil
}

// Run produces cfg.Items values and returns. Cancelling ctx aborts a blocked
// wait or delay.
func (p *Producer) Run(ctx context.Context) error {
	return p.run(ctx, p.Step)
}

// Step produces one value: wait emptySlots, wait mutex, write at head,
// signal mutex, report, signal filledSlots.
func (p *Producer) Step(ctx context.Context) (Event, error) {
	ctx, span := p.startSpan(ctx, "bbuf.produce")
	defer span.End()

	if err := p.acquire(ctx, "empty", p.sems.EmptySlots.Wait); err != nil {
		return Event{}, fail(span, fmt.Errorf("producer: wait empty slot: %w", err))
	}
	if err := p.acquire(ctx, "mutex", p.sems.Mutex.Wait); err != nil {
		// the slot was never used
		_ = p.sems.EmptySlots.Signal()
		return Event{}, fail(span, fmt.Errorf("producer: wait mutex: %w", err))
	}
	p.obs.EnterSection(RoleProducer)
	v := p.gen.Next()
	pos := p.state.Put(v)
	p.obs.ExitSection(RoleProducer)
	if err := p.sems.Mutex.Signal(); err != nil {
		return Event{}, fail(span, fmt.Errorf("producer: release mutex: %w", err))
	}
	ev := p.finish(ctx, span, v, pos)
	if err := p.sems.FilledSlots.Signal(); err != nil {
		return Event{}, fail(span, fmt.Errorf("producer: signal filled slot: %w", err))
	}
	return ev, nil
}

// Produced returns how many values have been written.
func (p *Producer) Produced() int { return p.completed() }
