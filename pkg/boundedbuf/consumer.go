package boundedbuf

import (
	"context"
	"fmt"
)

// Consumer reads values from the buffer.
type Consumer struct {
	*loop
}

// NewConsumer binds a consumer to state and sems. cfg.Generator is ignored.
func NewConsumer(state *State, sems *SyncSet, cfg LoopConfig) (*Consumer, error) {
	l, err := newLoop(RoleConsumer, state, sems, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{loop: l}, nil
}

// Run consumes cfg.Items values and returns. It never removes shared
// resources.
func (c *Consumer) Run(ctx context.Context) error {
	return c.run(ctx, c.Step)
}

// Step consumes one value: wait filledSlots, wait mutex, read at tail,
// signal mutex, report, signal emptySlots.
func (c *Consumer) Step(ctx context.Context) (Event, error) {
	ctx, span := c.startSpan(ctx, "bbuf.consume")
	defer span.End()

	if err := c.acquire(ctx, "full", c.sems.FilledSlots.Wait); err != nil {
		return Event{}, fail(span, fmt.Errorf("consumer: wait filled slot: %w", err))
	}
	if err := c.acquire(ctx, "mutex", c.sems.Mutex.Wait); err != nil {
		_ = c.sems.FilledSlots.Signal()
		return Event{}, fail(span, fmt.Errorf("consumer: wait mutex: %w", err))
	}
	c.obs.EnterSection(RoleConsumer)
	v, pos := c.state.Take()
	c.obs.ExitSection(RoleConsumer)
	if err := c.sems.Mutex.Signal(); err != nil {
		return Event{}, fail(span, fmt.Errorf("consumer: release mutex: %w", err))
	}
	ev := c.finish(ctx, span, v, pos)
	if err := c.sems.EmptySlots.Signal(); err != nil {
		return Event{}, fail(span, fmt.Errorf("consumer: signal empty slot: %w", err))
	}
	return ev, nil
}

// Consumed returns how many values have been read.
func (c *Consumer) Consumed() int { return c.completed() }
