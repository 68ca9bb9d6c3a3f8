// Package admin serves Prometheus metrics, health checks, and pprof for a
// running producer or consumer.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/shm-bbuf/internal/logger"
	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
	"github.com/srediag/shm-bbuf/pkg/health"
)

var log = logger.New("admin", nil)

// Server is the admin HTTP endpoint.
type Server struct {
	addr    string
	handler http.Handler
	srv     *http.Server
	ln      net.Listener
	done    chan struct{}
}

// NewServer builds the admin mux. reg receives the process and Go runtime
// collectors as well as the health check gauges; monitor checks are
// registered for each role.
func NewServer(addr string, reg *prometheus.Registry, monitor *health.Monitor, roles ...boundedbuf.Role) (*Server, error) {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}

	checks := healthcheck.NewMetricsHandler(reg, "bbuf")
	if monitor != nil {
		monitor.Register(checks, roles...)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/live", checks)
	mux.Handle("/ready", checks)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Server{addr: addr, handler: mux}, nil
}

// Handler returns the admin mux.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("admin server: %v", err)
		}
	}()
	log.Infof("admin listening on %s", ln.Addr())
	return nil
}

// Addr returns the listening address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server and waits for the serve goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
