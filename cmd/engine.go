package main

import (
	"context"
	"net/http"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/metrics"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/notify"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/ratelimit"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/server"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/services"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/transform"
)

// engine is the fully wired sync pipeline: limiter, provider, executor and dispatcher.
type engine struct {
	executor   *tasks.Executor
	dispatcher *tasks.Dispatcher
	metrics    *metrics.Metrics
	health     *server.HealthHandler
	release    func()
}

// engineOpts customises [Runner.engine].
type engineOpts struct {
	events chan<- tasks.Event
}

// engine wires every component the executor needs from the loaded configuration.
func (r *Runner) engine(o engineOpts) (*engine, error) {
	s, err := r.stores()
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	limiter, release, err := ratelimit.New(r.config.RateLimit, ratelimit.WithObserver(m.ObserveWait))
	if err != nil {
		return nil, err
	}

	var breaker func() string
	fetcher := r.fetcher
	if fetcher == nil {
		client := services.NewApifyClient(r.config.Provider, r.logger.With("component", "provider"), nil)
		provider := services.NewApifyProvider(client, r.config.Provider)
		fetcher = services.NewFetcher(provider, limiter,
			services.WithCallTimeout(r.config.Executor.CallTimeout),
			services.WithCallObserver(m.ObserveCall),
			services.WithFetcherClock(r.clock))
		breaker = client.BreakerState
	}

	execOpts := []tasks.ExecutorOption{tasks.WithObserver(m), tasks.WithClock(r.clock)}
	if o.events != nil {
		execOpts = append(execOpts, tasks.WithEvents(o.events))
	}
	executor := tasks.NewExecutor(tasks.ExecutorDeps{
		Tasks:       s.tasks,
		Pages:       s.pages,
		Credentials: s.creds,
		Fetcher:     fetcher,
		Notifier:    notify.New(r.config.Notify, r.logger.With("component", "notify")),
	}, r.config.Executor, transform.ParamsFromConfig(r.config.Metrics), r.logger, execOpts...)

	dispOpts := []tasks.DispatcherOption{tasks.WithWaker(executor)}
	if o.events != nil {
		dispOpts = append(dispOpts, tasks.WithDispatcherEvents(o.events))
	}
	dispatcher, err := r.dispatcher(dispOpts...)
	if err != nil {
		release()
		return nil, err
	}

	db, err := r.database()
	if err != nil {
		release()
		return nil, err
	}
	checks := []server.Check{{Name: "database", Probe: db.PingContext}}
	if p, ok := limiter.(ratelimit.Pinger); ok {
		checks = append(checks, server.Check{Name: "rate_limiter", Probe: p.Ping})
	}

	return &engine{
		executor:   executor,
		dispatcher: dispatcher,
		metrics:    m,
		health:     server.NewHealthHandler(breaker, checks...),
		release:    release,
	}, nil
}

// handler is the HTTP API backed by this engine. POST /sync runs one scheduler round.
func (e *engine) handler(r *Runner) http.Handler {
	return server.NewHandler(e.dispatcher, e.health, e.metrics.Handler(), r.logger.With("component", "http"),
		server.WithSweeper(e.scheduler(r)))
}

// scheduler builds the periodic all-users sync.
func (e *engine) scheduler(r *Runner) *tasks.Scheduler {
	return tasks.NewScheduler(r.repos.users, e.dispatcher, r.config.Scheduler, r.logger.With("component", "scheduler"),
		tasks.WithScheduleObserver(e.metrics), tasks.WithSchedulerClock(r.clock))
}

// logEvents writes lifecycle events to the log until ctx is done.
func (r *Runner) logEvents(ctx context.Context, events <-chan tasks.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-events:
			r.logger.Debug("task event", "phase", e.Phase, "task_id", e.TaskID, "platform", e.Platform,
				"attempt", e.Attempt, "kind", e.Kind, "message", e.Message)
		}
	}
}
