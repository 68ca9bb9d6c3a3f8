package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

var nameSeq atomic.Int64

func testConfig(names boundedbuf.Names, items int) Config {
	return Config{
		Names:     names,
		Capacity:  2,
		Items:     items,
		Generator: boundedbuf.SequenceGenerator(0),
	}
}

func hostNamespace(t *testing.T) (*shm.Host, boundedbuf.Names) {
	t.Helper()
	host, err := shm.NewHost()
	if errors.Is(err, shm.ErrUnsupported) {
		t.Skip("no host shared memory namespace")
	}
	require.NoError(t, err)
	names := prefixedNames(fmt.Sprintf("/bbuf-lc-%d-%d", os.Getpid(), nameSeq.Add(1)))
	t.Cleanup(func() {
		m, err := NewManager(host, testConfig(names, 0))
		if err == nil {
			_ = m.Cleanup()
		}
	})
	return host, names
}

func sequence(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

// startConsumer retries RunConsumer until the producer has created the
// shared objects.
func startConsumer(ctx context.Context, m *Manager) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- backoff.Retry(func() error {
			err := m.RunConsumer(ctx)
			if err != nil && !errors.Is(err, shm.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}, backoff.WithContext(backoff.NewConstantBackOff(5*time.Millisecond), ctx))
	}()
	return done
}

func assertRemoved(t *testing.T, ns shm.Namespace, names boundedbuf.Names) {
	t.Helper()
	ctx := context.Background()
	_, err := ns.AttachSegment(ctx, names.Segment)
	assert.ErrorIs(t, err, shm.ErrNotFound)
	for _, name := range []string{names.Mutex, names.EmptySlots, names.FilledSlots, names.Done} {
		_, err := ns.OpenSemaphore(ctx, name)
		assert.ErrorIs(t, err, shm.ErrNotFound, name)
	}
}

func TestRunPairMemory(t *testing.T) {
	ns := shm.NewMemory()
	journal := boundedbuf.NewJournal()
	defer journal.Close()
	var readyCalls atomic.Int32

	m, err := NewManager(ns, testConfig(boundedbuf.DefaultNames(), 10),
		WithObserver(journal), WithReadyHook(func() { readyCalls.Add(1) }))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.RunPair(ctx))

	records := journal.Drain()
	require.NoError(t, boundedbuf.VerifyExclusive(records))
	assert.Equal(t, sequence(10), boundedbuf.Values(records, boundedbuf.RoleProducer))
	assert.Equal(t, sequence(10), boundedbuf.Values(records, boundedbuf.RoleConsumer))
	assert.Equal(t, int32(1), readyCalls.Load())
	assertRemoved(t, ns, boundedbuf.DefaultNames())
}

func TestRunPairShortQuota(t *testing.T) {
	// fewer items than slots: the producer would finish before the consumer
	// attaches if the pair runner did not gate it
	ns := shm.NewMemory()
	m, err := NewManager(ns, testConfig(boundedbuf.DefaultNames(), 1))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.RunPair(ctx))
	assertRemoved(t, ns, boundedbuf.DefaultNames())
}

func TestRunPairWithBarrier(t *testing.T) {
	ns := shm.NewMemory()
	cfg := testConfig(boundedbuf.DefaultNames(), 6)
	cfg.Barrier = true
	cfg.ConsumerDelay = time.Millisecond
	m, err := NewManager(ns, cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.RunPair(ctx))
	assertRemoved(t, ns, cfg.Names)
}

func TestRunPairHost(t *testing.T) {
	host, names := hostNamespace(t)
	journal := boundedbuf.NewJournal()
	defer journal.Close()
	m, err := NewManager(host, testConfig(names, 10), WithObserver(journal))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.RunPair(ctx))

	records := journal.Drain()
	require.NoError(t, boundedbuf.VerifyExclusive(records))
	assert.Equal(t, sequence(10), boundedbuf.Values(records, boundedbuf.RoleConsumer))
	assertRemoved(t, host, names)
}

func TestSeparateProducerAndConsumer(t *testing.T) {
	for _, barrier := range []bool{false, true} {
		ns := shm.NewMemory()
		cfg := testConfig(boundedbuf.DefaultNames(), 10)
		cfg.Barrier = barrier

		pm, err := NewManager(ns, cfg)
		require.NoError(t, err)
		cfg.Generator = nil
		cm, err := NewManager(ns, cfg)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		consumerDone := startConsumer(ctx, cm)
		require.NoError(t, pm.RunProducer(ctx), "barrier=%v", barrier)
		require.NoError(t, <-consumerDone, "barrier=%v", barrier)
		cancel()
		assertRemoved(t, ns, cfg.Names)
	}
}

func TestSeparateHostValues(t *testing.T) {
	host, names := hostNamespace(t)
	cfg := testConfig(names, 10)
	cfg.Barrier = true
	pm, err := NewManager(host, cfg)
	require.NoError(t, err)

	// a second Host value stands in for the consumer process
	peer, err := shm.NewHost()
	require.NoError(t, err)
	cm, err := NewManager(peer, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	consumerDone := startConsumer(ctx, cm)
	require.NoError(t, pm.RunProducer(ctx))
	require.NoError(t, <-consumerDone)
	assertRemoved(t, host, names)
}

const childPrefixEnv = "BBUF_TEST_CONSUMER_PREFIX"

func prefixedNames(prefix string) boundedbuf.Names {
	return boundedbuf.Names{
		Segment:     prefix + "-shm",
		Mutex:       prefix + "-mutex",
		EmptySlots:  prefix + "-empty",
		FilledSlots: prefix + "-full",
		Done:        prefix + "-done",
	}
}

// TestConsumerProcess is the consumer side of TestSeparateProcesses. It only
// runs when re-executed by that test.
func TestConsumerProcess(t *testing.T) {
	prefix := os.Getenv(childPrefixEnv)
	if prefix == "" {
		t.Skip("runs as a child of TestSeparateProcesses")
	}
	host, err := shm.NewHost()
	require.NoError(t, err)
	cfg := testConfig(prefixedNames(prefix), 10)
	cfg.Barrier = true
	cm, err := NewManager(host, cfg, WithObserver(boundedbuf.NewConsoleObserver(os.Stdout)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, <-startConsumer(ctx, cm))
}

func TestSeparateProcesses(t *testing.T) {
	host, names := hostNamespace(t)
	cfg := testConfig(names, 10)
	cfg.Barrier = true
	pm, err := NewManager(host, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestConsumerProcess$", "-test.count=1")
	cmd.Env = append(os.Environ(), childPrefixEnv+"="+strings.TrimSuffix(names.Segment, "-shm"))
	cmd.Stdout = &out
	cmd.Stderr = &out
	require.NoError(t, cmd.Start())

	perr := pm.RunProducer(ctx)
	werr := cmd.Wait()
	require.NoError(t, perr, out.String())
	require.NoError(t, werr, out.String())
	for i := 0; i < 10; i++ {
		assert.Contains(t, out.String(), fmt.Sprintf("Consumer: Consumed item %d from position %d\n", i, i%2))
	}
	assertRemoved(t, host, names)
}

func TestConsumerBeforeProducer(t *testing.T) {
	m, err := NewManager(shm.NewMemory(), testConfig(boundedbuf.DefaultNames(), 10))
	require.NoError(t, err)
	err = m.RunConsumer(context.Background())
	require.ErrorIs(t, err, shm.ErrNotFound)
}

func TestConsumerMissingSemaphores(t *testing.T) {
	ns := shm.NewMemory()
	names := boundedbuf.DefaultNames()
	seg, err := ns.CreateSegment(context.Background(), names.Segment, boundedbuf.StateSize(2))
	require.NoError(t, err)
	defer seg.Detach()

	m, err := NewManager(ns, testConfig(names, 10))
	require.NoError(t, err)
	require.ErrorIs(t, m.RunConsumer(context.Background()), shm.ErrNotFound)
}

func TestProducerRemovesStaleObjects(t *testing.T) {
	ctx := context.Background()
	ns := shm.NewMemory()
	names := boundedbuf.DefaultNames()
	_, err := ns.CreateSegment(ctx, names.Segment, 4)
	require.NoError(t, err)
	_, err = ns.CreateSemaphore(ctx, names.FilledSlots, 7)
	require.NoError(t, err)

	m, err := NewManager(ns, testConfig(names, 1))
	require.NoError(t, err)

	// one item fits without a consumer
	require.NoError(t, m.RunProducer(ctx))
	assertRemoved(t, ns, names)
}

func TestCleanupIdempotent(t *testing.T) {
	ns := shm.NewMemory()
	m, err := NewManager(ns, testConfig(boundedbuf.DefaultNames(), 1))
	require.NoError(t, err)
	require.NoError(t, m.Cleanup())
	require.NoError(t, m.Cleanup())
}

func TestProducerCancelledTearsDown(t *testing.T) {
	ns := shm.NewMemory()
	m, err := NewManager(ns, testConfig(boundedbuf.DefaultNames(), 10))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// no consumer: the third write blocks until the deadline
	err = m.RunProducer(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assertRemoved(t, ns, boundedbuf.DefaultNames())
}

func TestRunPairReportsConsumerFailure(t *testing.T) {
	ns := shm.NewMemory()
	cfg := testConfig(boundedbuf.DefaultNames(), 10)
	m, err := NewManager(ns, cfg, WithReadyHook(func() {
		// steal the segment name so the consumer cannot attach
		_ = ns.DestroySegment(cfg.Names.Segment)
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = m.RunPair(ctx)
	require.ErrorIs(t, err, shm.ErrNotFound)
	assertRemoved(t, ns, cfg.Names)
}

func TestNewManagerValidates(t *testing.T) {
	ns := shm.NewMemory()
	_, err := NewManager(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Capacity = 0
	_, err = NewManager(ns, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Items = -1
	_, err = NewManager(ns, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Names.Done = cfg.Names.Mutex
	_, err = NewManager(ns, cfg)
	assert.Error(t, err)

	m, err := NewManager(ns, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), m.Config())
}
