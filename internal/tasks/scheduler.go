package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// Requester admits sync requests. *Dispatcher satisfies it.
type Requester interface {
	RequestSync(ctx context.Context, userID string, platforms []models.Platform) ([]PlatformResult, error)
}

// ScheduleReport summarizes one scheduler round.
type ScheduleReport struct {
	Users     int
	Requested int // tasks created or already in flight
	Skipped   int // users or platforms without a usable credential
	Errors    []UserError
	StartedAt time.Time
	Duration  time.Duration
}

// UserError is a request the scheduler could not make.
type UserError struct {
	UserID   string
	Platform models.Platform // empty when the whole user failed
	Err      error
}

// ScheduleObserver is told the outcome of each round.
type ScheduleObserver interface {
	ObserveSchedule(requested, skipped, failed int)
}

// Scheduler periodically requests a sync of every linked platform for every active user.
type Scheduler struct {
	users       UserStore
	requester   Requester
	interval    time.Duration
	concurrency int
	clock       shared.Clock
	logger      *log.Logger
	observer    ScheduleObserver
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithScheduleObserver records round outcomes to o.
func WithScheduleObserver(o ScheduleObserver) SchedulerOption {
	return func(s *Scheduler) { s.observer = o }
}

// WithSchedulerClock replaces the wall clock.
func WithSchedulerClock(c shared.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// NewScheduler creates a [Scheduler] from cfg.
func NewScheduler(users UserStore, requester Requester, cfg shared.SchedulerConfig, logger *log.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		users:       users,
		requester:   requester,
		interval:    cfg.Interval,
		concurrency: cfg.Concurrency,
		clock:       shared.SystemClock{},
		logger:      logger,
	}
	if s.interval <= 0 {
		s.interval = 6 * time.Hour
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs a round immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report, err := s.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled round failed", "error", err)
		} else if err == nil {
			s.logger.Info("scheduled round complete",
				"users", report.Users, "requested", report.Requested,
				"skipped", report.Skipped, "errors", len(report.Errors), "duration", report.Duration)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce requests a sync for every active user, at most concurrency users at a time.
//
// A failure for one user never stops the round; it is reported in [ScheduleReport.Errors].
func (s *Scheduler) RunOnce(ctx context.Context) (*ScheduleReport, error) {
	start := s.clock.Now()
	users, err := s.users.List(ctx, true)
	if err != nil {
		return nil, err
	}

	report := &ScheduleReport{Users: len(users), StartedAt: start}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, u := range users {
		g.Go(func() error {
			results, err := s.requester.RequestSync(gctx, u.ID, nil)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, shared.ErrNoCredentials):
				report.Skipped++
			case err != nil:
				report.Errors = append(report.Errors, UserError{UserID: u.ID, Err: err})
			}
			for _, r := range results {
				switch {
				case r.Err == nil:
					report.Requested++
				case errors.Is(r.Err, shared.ErrNoCredentials):
					report.Skipped++
				default:
					report.Errors = append(report.Errors, UserError{UserID: u.ID, Platform: r.Platform, Err: r.Err})
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = s.clock.Now().Sub(start)
	if s.observer != nil {
		s.observer.ObserveSchedule(report.Requested, report.Skipped, len(report.Errors))
	}
	return report, ctx.Err()
}
