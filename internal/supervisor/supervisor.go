// Package supervisor runs the long-lived parts of the process (workers, scheduler, HTTP server)
// under a suture tree that restarts them when they fail.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Config tunes restart behaviour. Zero values take the defaults below.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// Service adapts a blocking run function to [suture.Service].
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

func (s Service) Serve(ctx context.Context) error { return s.Run(ctx) }

func (s Service) String() string { return s.Name }

// Tree is the process supervisor.
type Tree struct {
	root *suture.Supervisor
}

// New creates a [Tree] whose events are logged through logger.
func New(name string, logger *log.Logger, cfg Config) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 20 * time.Second
	}

	hook := (&sutureslog.Handler{Logger: slog.New(logger)}).MustHook()
	return &Tree{root: suture.New(name, suture.Spec{
		EventHook:        hook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})}
}

// Add supervises run under name.
func (t *Tree) Add(name string, run func(ctx context.Context) error) suture.ServiceToken {
	return t.root.Add(Service{Name: name, Run: run})
}

// Serve blocks until ctx is done, restarting services that return or panic.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
