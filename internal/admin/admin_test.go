package admin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-bbuf/internal/metrics"
	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
	"github.com/srediag/shm-bbuf/pkg/health"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rw.Body)
	require.NoError(t, err)
	return rw.Code, string(body)
}

func TestServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := metrics.NewObserver(reg)
	require.NoError(t, err)
	monitor := health.NewMonitor(time.Minute)

	srv, err := NewServer("127.0.0.1:0", reg, monitor, boundedbuf.RoleProducer)
	require.NoError(t, err)
	h := srv.Handler()

	code, _ := get(t, h, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	all := boundedbuf.Observers{obs, monitor}
	all.Started(boundedbuf.RoleProducer, 10)
	all.Item(boundedbuf.Event{Role: boundedbuf.RoleProducer, Value: 3})

	code, _ = get(t, h, "/ready")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, h, "/live")
	assert.Equal(t, http.StatusOK, code)

	code, body := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `bbuf_items_total{role="producer"} 1`)
	assert.Contains(t, body, "go_goroutines")

	code, _ = get(t, h, "/debug/pprof/")
	assert.Equal(t, http.StatusOK, code)
}

func TestServerStartShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, err := NewServer("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/live")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestNewServerSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewServer(":0", reg, nil)
	require.NoError(t, err)
	_, err = NewServer(":0", reg, nil)
	require.NoError(t, err)
}
