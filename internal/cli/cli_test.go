package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-bbuf/internal/config"
	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

func fastConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ProducerDelay = 0
	cfg.ConsumerDelay = 0
	cfg.Generator = "sequence"
	return cfg
}

func TestRunPair(t *testing.T) {
	cfg := fastConfig()
	cfg.AdminAddr = "127.0.0.1:0"
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := Run(ctx, ModePair, cfg, shm.NewMemory(), &out)
	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))

	text := out.String()
	assert.Contains(t, text, "PRODUCER: Starting production of 10 items")
	assert.Contains(t, text, "CONSUMER: Finished consuming 10 items")
	assert.Contains(t, text, "Producer: Produced item 9 at position 1")
	assert.Contains(t, text, "Consumer: Consumed item 0 from position 0")
	assert.Equal(t, 10, strings.Count(text, "Consumer: Consumed item"))
}

func TestRunProducerAndConsumer(t *testing.T) {
	cfg := fastConfig()
	ns := shm.NewMemory()
	ready := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var pout, cout bytes.Buffer
	perr := make(chan error, 1)
	go func() {
		perr <- Run(ctx, ModeProducer, cfg, ns, &pout)
	}()
	go func() {
		// the producer blocks once both slots are full, so the objects exist
		// until the consumer drains them
		for {
			if _, err := ns.AttachSegment(ctx, cfg.Segment); err == nil {
				if _, err := ns.OpenSemaphore(ctx, cfg.FullSem); err == nil {
					close(ready)
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()
	select {
	case <-ready:
	case <-ctx.Done():
		t.Fatal("producer never created the shared objects")
	}
	require.NoError(t, Run(ctx, ModeConsumer, cfg, ns, &cout))
	require.NoError(t, <-perr)
	assert.Equal(t, 10, strings.Count(pout.String(), "Producer: Produced item"))
	assert.Equal(t, 10, strings.Count(cout.String(), "Consumer: Consumed item"))
}

func TestRunConsumerWithoutProducer(t *testing.T) {
	err := Run(context.Background(), ModeConsumer, fastConfig(), shm.NewMemory(), &bytes.Buffer{})
	require.ErrorIs(t, err, shm.ErrNotFound)
	assert.Equal(t, 1, ExitCode(err))
}

func TestRunInterrupted(t *testing.T) {
	cfg := fastConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := Run(ctx, ModeProducer, cfg, shm.NewMemory(), &bytes.Buffer{})
	require.True(t, errors.Is(err, context.DeadlineExceeded), "%v", err)
	assert.Equal(t, 1, ExitCode(err))
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	ns := shm.NewMemory()
	names := boundedbuf.DefaultNames()

	var out bytes.Buffer
	require.NoError(t, Inspect(ctx, ns, names, &out))
	assert.Contains(t, out.String(), "segment /producer_consumer_shm: not found")
	assert.Contains(t, out.String(), "semaphore mutex /mutex_semaphore: not found")

	seg, err := ns.CreateSegment(ctx, names.Segment, boundedbuf.StateSize(2))
	require.NoError(t, err)
	defer seg.Detach()
	state, err := boundedbuf.NewState(seg.Bytes())
	require.NoError(t, err)
	state.Put(42)
	sems, err := boundedbuf.CreateSyncSet(ctx, ns, names, 2, false)
	require.NoError(t, err)
	defer sems.Close()

	out.Reset()
	require.NoError(t, Inspect(ctx, ns, names, &out))
	text := out.String()
	assert.Contains(t, text, "items:[42 0] head:1 tail:0 count:1 cap:2 check:ok")
	assert.Contains(t, text, "semaphore empty /empty_semaphore: value:2")
	assert.Contains(t, text, "semaphore done /done_semaphore: not found")
	assert.NotContains(t, text, "unlocked")
	v, err := sems.Mutex.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v, "mutex is released after the read")

	// a busy mutex is not waited for
	require.NoError(t, sems.Mutex.Wait(ctx))
	out.Reset()
	require.NoError(t, Inspect(ctx, ns, names, &out))
	assert.Contains(t, out.String(), "check:ok (unlocked, may be torn)")
	assert.Contains(t, out.String(), "semaphore mutex /mutex_semaphore: value:0")
	require.NoError(t, sems.Mutex.Signal())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "producer", ModeProducer.String())
	assert.Equal(t, "pair", ModePair.String())
	assert.Len(t, ModePair.roles(), 2)
}
