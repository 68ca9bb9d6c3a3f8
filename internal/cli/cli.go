// Package cli holds the main routines of the bbuf executables.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/srediag/shm-bbuf/internal/admin"
	"github.com/srediag/shm-bbuf/internal/config"
	"github.com/srediag/shm-bbuf/internal/logger"
	"github.com/srediag/shm-bbuf/internal/metrics"
	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
	"github.com/srediag/shm-bbuf/pkg/health"
	"github.com/srediag/shm-bbuf/pkg/lifecycle"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

const instrumentationName = "github.com/srediag/shm-bbuf"

var log = logger.New("bbuf", nil)

// Mode selects which side(s) of the buffer a process runs.
type Mode int

const (
	ModeProducer Mode = iota
	ModeConsumer
	ModePair
)

func (m Mode) String() string {
	switch m {
	case ModeProducer:
		return "producer"
	case ModeConsumer:
		return "consumer"
	case ModePair:
		return "pair"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) roles() []boundedbuf.Role {
	switch m {
	case ModeProducer:
		return []boundedbuf.Role{boundedbuf.RoleProducer}
	case ModeConsumer:
		return []boundedbuf.Role{boundedbuf.RoleConsumer}
	}
	return []boundedbuf.Role{boundedbuf.RoleProducer, boundedbuf.RoleConsumer}
}

// ExitCode maps a run result to the process exit status: 0 when the quota
// was met, 1 otherwise.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

// Main loads the environment configuration, runs mode until done or
// interrupted, and returns the exit status.
func Main(mode Mode) int {
	cfg, err := config.Load()
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ns shm.Namespace
	if mode == ModePair {
		ns = shm.NewMemory()
	} else {
		host, err := shm.NewHost()
		if err != nil {
			log.Errorf("%v", err)
			return 1
		}
		ns = host
	}

	err = Run(ctx, mode, cfg, ns, os.Stdout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("%s interrupted: %v", mode, err)
		} else {
			log.Errorf("%s: %v", mode, err)
		}
	}
	return ExitCode(err)
}

// Run executes mode over ns, printing progress lines to out. The admin
// server runs for the duration of the call when cfg.AdminAddr is set.
func Run(ctx context.Context, mode Mode, cfg *config.Config, ns shm.Namespace, out io.Writer) error {
	lc, err := cfg.Lifecycle()
	if err != nil {
		return err
	}

	monitor := health.NewMonitor(health.DefaultStallTimeout + cfg.ProducerDelay + cfg.ConsumerDelay)
	observers := boundedbuf.Observers{boundedbuf.NewConsoleObserver(out), monitor}

	if cfg.AdminAddr != "" {
		reg := prometheus.NewRegistry()
		obs, err := metrics.NewObserver(reg)
		if err != nil {
			return err
		}
		observers = append(observers, obs)
		srv, err := admin.NewServer(cfg.AdminAddr, reg, monitor, mode.roles()...)
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warnf("admin shutdown: %v", err)
			}
		}()
	}

	m, err := lifecycle.NewManager(ns, lc,
		lifecycle.WithObserver(observers),
		lifecycle.WithTracer(otel.GetTracerProvider().Tracer(instrumentationName)),
		lifecycle.WithMeter(otel.GetMeterProvider().Meter(instrumentationName)),
		lifecycle.WithLogger(log),
		lifecycle.WithReadyHook(func() { log.Infof("shared objects ready") }),
	)
	if err != nil {
		return err
	}

	switch mode {
	case ModeProducer:
		err = m.RunProducer(ctx)
	case ModeConsumer:
		err = m.RunConsumer(ctx)
	case ModePair:
		err = m.RunPair(ctx)
	default:
		err = fmt.Errorf("unknown mode %v", mode)
	}
	if err != nil {
		for _, role := range mode.roles() {
			monitor.ReportFailure(role, err)
		}
	}
	return err
}
