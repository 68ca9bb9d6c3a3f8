// Package config loads the executables' settings from BBUF_* environment
// variables. Every default matches the classic two-slot, ten-item demo, so
// running with an empty environment behaves exactly like it.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/srediag/shm-bbuf/internal/logger"
	"github.com/srediag/shm-bbuf/pkg/boundedbuf"
	"github.com/srediag/shm-bbuf/pkg/lifecycle"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

// Prefix is prepended to every variable name, e.g. BBUF_CAPACITY.
const Prefix = "BBUF"

// Config holds the settings shared by producer, consumer, and the helper
// executables. Producer and consumer must run with the same names, capacity,
// and barrier setting.
type Config struct {
	Segment  string `envconfig:"SEGMENT" default:"/producer_consumer_shm"`
	MutexSem string `envconfig:"MUTEX_SEM" default:"/mutex_semaphore"`
	EmptySem string `envconfig:"EMPTY_SEM" default:"/empty_semaphore"`
	FullSem  string `envconfig:"FULL_SEM" default:"/full_semaphore"`
	DoneSem  string `envconfig:"DONE_SEM" default:"/done_semaphore"`

	Capacity      int           `envconfig:"CAPACITY" default:"2"`
	Items         int           `envconfig:"ITEMS" default:"10"`
	ProducerDelay time.Duration `envconfig:"PRODUCER_DELAY" default:"1s"`
	ConsumerDelay time.Duration `envconfig:"CONSUMER_DELAY" default:"2s"`
	Generator     string        `envconfig:"GENERATOR" default:"random"`
	Barrier       bool          `envconfig:"BARRIER" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
	AdminAddr string `envconfig:"ADMIN_ADDR"`
}

// Load reads the environment and verifies the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := VerifyConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no variable is set.
func DefaultConfig() *Config {
	names := boundedbuf.DefaultNames()
	return &Config{
		Segment:       names.Segment,
		MutexSem:      names.Mutex,
		EmptySem:      names.EmptySlots,
		FullSem:       names.FilledSlots,
		DoneSem:       names.Done,
		Capacity:      2,
		Items:         10,
		ProducerDelay: time.Second,
		ConsumerDelay: 2 * time.Second,
		Generator:     "random",
		LogLevel:      "warn",
	}
}

// VerifyConfig rejects settings the protocol cannot run with.
func VerifyConfig(cfg *Config) error {
	if err := cfg.Names().Validate(); err != nil {
		return err
	}
	if cfg.Capacity <= 0 || cfg.Capacity > shm.MemorySemValueMax {
		return fmt.Errorf("capacity must be in [1,%d], got %d", shm.MemorySemValueMax, cfg.Capacity)
	}
	if cfg.Items < 0 {
		return fmt.Errorf("items must not be negative, got %d", cfg.Items)
	}
	if cfg.ProducerDelay < 0 || cfg.ConsumerDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if _, err := boundedbuf.NewGenerator(cfg.Generator); err != nil {
		return err
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// Names returns the namespace names.
func (c *Config) Names() boundedbuf.Names {
	return boundedbuf.Names{
		Segment:     c.Segment,
		Mutex:       c.MutexSem,
		EmptySlots:  c.EmptySem,
		FilledSlots: c.FullSem,
		Done:        c.DoneSem,
	}
}

// Level returns the configured log level, Warn if it does not parse.
func (c *Config) Level() logger.Level {
	l, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.LevelWarn
	}
	return l
}

// Lifecycle converts the configuration for lifecycle.NewManager.
func (c *Config) Lifecycle() (lifecycle.Config, error) {
	gen, err := boundedbuf.NewGenerator(c.Generator)
	if err != nil {
		return lifecycle.Config{}, err
	}
	return lifecycle.Config{
		Names:         c.Names(),
		Capacity:      c.Capacity,
		Items:         c.Items,
		ProducerDelay: c.ProducerDelay,
		ConsumerDelay: c.ConsumerDelay,
		Generator:     gen,
		Barrier:       c.Barrier,
	}, nil
}
