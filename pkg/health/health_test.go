package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
)

func status(h http.Handler, path string) int {
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, path, nil))
	return rw.Code
}

func TestMonitorReadiness(t *testing.T) {
	m := NewMonitor(0)
	h := healthcheck.NewHandler()
	m.Register(h, boundedbuf.RoleProducer)

	assert.Equal(t, http.StatusServiceUnavailable, status(h, "/ready"))
	assert.Equal(t, http.StatusOK, status(h, "/live"))

	m.Started(boundedbuf.RoleProducer, 10)
	assert.Equal(t, http.StatusOK, status(h, "/ready"))
}

func TestMonitorStall(t *testing.T) {
	clock := time.Unix(1000, 0)
	m := NewMonitor(time.Second)
	m.now = func() time.Time { return clock }
	live := m.LivenessCheck(boundedbuf.RoleConsumer)

	m.Started(boundedbuf.RoleConsumer, 2)
	require.NoError(t, live())

	clock = clock.Add(2 * time.Second)
	assert.Error(t, live())

	m.Item(boundedbuf.Event{Role: boundedbuf.RoleConsumer})
	require.NoError(t, live())
	items, quota := m.Progress(boundedbuf.RoleConsumer)
	assert.Equal(t, 1, items)
	assert.Equal(t, 2, quota)

	m.Finished(boundedbuf.RoleConsumer, 2)
	clock = clock.Add(time.Hour)
	assert.NoError(t, live())
}

func TestMonitorFailure(t *testing.T) {
	m := NewMonitor(time.Minute)
	h := healthcheck.NewHandler()
	m.Register(h, boundedbuf.RoleProducer, boundedbuf.RoleConsumer)
	m.Started(boundedbuf.RoleProducer, 1)
	m.Started(boundedbuf.RoleConsumer, 1)
	assert.Equal(t, http.StatusOK, status(h, "/live"))

	boom := errors.New("attach failed")
	m.ReportFailure(boundedbuf.RoleConsumer, boom)
	assert.Equal(t, http.StatusServiceUnavailable, status(h, "/live"))
	assert.ErrorIs(t, m.LivenessCheck(boundedbuf.RoleConsumer)(), boom)
	assert.NoError(t, m.LivenessCheck(boundedbuf.RoleProducer)())
}

func TestMonitorHeartbeat(t *testing.T) {
	clock := time.Unix(0, 0)
	m := NewMonitor(time.Second)
	m.now = func() time.Time { return clock }
	m.Started(boundedbuf.RoleProducer, 5)
	clock = clock.Add(900 * time.Millisecond)
	m.Heartbeat(boundedbuf.RoleProducer)
	clock = clock.Add(900 * time.Millisecond)
	assert.NoError(t, m.LivenessCheck(boundedbuf.RoleProducer)())
}
