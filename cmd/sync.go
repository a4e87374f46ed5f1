package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/formatter"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
)

// SyncRequest queues one task per requested platform.
//
// Platforms with a task already in flight report the existing task.
func (r *Runner) SyncRequest(ctx context.Context, cmd *cli.Command) error {
	platforms, err := models.ParsePlatforms(cmd.StringSlice("platform"))
	if err != nil {
		return err
	}

	d, err := r.dispatcher()
	if err != nil {
		return err
	}

	userID := cmd.String("user")
	results, err := d.RequestSync(ctx, userID, platforms)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		type row struct {
			Platform models.Platform `json:"platform"`
			TaskID   string          `json:"task_id,omitempty"`
			Created  bool            `json:"created"`
			Error    string          `json:"error,omitempty"`
		}
		rows := make([]row, len(results))
		for i, res := range results {
			rows[i] = row{Platform: res.Platform, TaskID: res.TaskID, Created: res.Created}
			if res.Err != nil {
				rows[i].Error = shared.MessageOf(res.Err)
			}
		}
		return r.writeJSON(rows, true)
	}

	var failed int
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
			r.writePlain("✗ %-10s %s\n", res.Platform, shared.MessageOf(res.Err))
		case res.Created:
			r.writePlain("✓ %-10s queued %s\n", res.Platform, res.TaskID)
		default:
			r.writePlain("• %-10s already in flight %s\n", res.Platform, res.TaskID)
		}
	}

	r.logger.Info("sync requested", "user_id", userID, "platforms", len(results), "failed", failed)
	if failed == len(results) {
		return fmt.Errorf("%w: no task queued for user %s", shared.ErrNoCredentials, userID)
	}
	return nil
}

// SyncStatus prints one task.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("task")
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	d, err := r.dispatcher()
	if err != nil {
		return err
	}

	status, err := d.GetStatus(ctx, taskID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}
	return r.writeStatus(status)
}

func (r *Runner) writeStatus(s *tasks.Status) error {
	r.writePlainHeader(fmt.Sprintf("%s sync %s", s.Platform, s.TaskID))
	r.writePlain("User:      %s\n", s.UserID)
	r.writePlain("State:     %s\n", s.State)
	r.writePlain("Attempts:  %d\n", s.Attempts)
	r.writePlain("Created:   %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if s.State == models.StatePending {
		r.writePlain("Eligible:  %s\n", s.EligibleAt.Local().Format("2006-01-02 15:04:05"))
	}
	if s.FinishedAt != nil {
		r.writePlain("Finished:  %s\n", s.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if s.LastError != nil {
		r.writePlain("Error:     %s: %s\n", s.LastError.Kind, s.LastError.Message)
	}
	if s.ResultRef != "" {
		r.writePlain("Snapshot:  %s\n", s.ResultRef)
	}
	if s.RevokeRequested && !s.State.Terminal() {
		r.writePlain("Revoke requested\n")
	}
	return nil
}

// SyncList prints a user's tasks, newest first, in the requested format.
func (r *Runner) SyncList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	d, err := r.dispatcher()
	if err != nil {
		return err
	}

	userID := cmd.String("user")
	statuses, err := d.ListTasks(ctx, userID, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	out, err := formatter.Tasks(format, userID, statuses)
	if err != nil {
		return err
	}
	_, err = r.output.Write(out)
	return err
}

// SyncRevoke flags a task for cancellation.
func (r *Runner) SyncRevoke(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("task")
	if taskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	d, err := r.dispatcher()
	if err != nil {
		return err
	}

	status, err := d.Revoke(ctx, taskID)
	if err != nil {
		return err
	}

	if status.State.Terminal() {
		return r.writePlain("Task %s already finished as %s\n", taskID, status.State)
	}
	return r.writePlain("✓ Revoke requested for %s (%s)\n", taskID, status.State)
}

// SyncAll runs one scheduler round over every active user.
func (r *Runner) SyncAll(ctx context.Context, cmd *cli.Command) error {
	d, err := r.dispatcher()
	if err != nil {
		return err
	}

	sched := tasks.NewScheduler(r.repos.users, d, r.config.Scheduler, r.logger, tasks.WithSchedulerClock(r.clock))
	report, err := sched.RunOnce(ctx)
	if err != nil {
		return err
	}

	r.writePlain("Users: %d  Requested: %d  Skipped: %d  Errors: %d\n",
		report.Users, report.Requested, report.Skipped, len(report.Errors))
	for _, ue := range report.Errors {
		r.writePlain("  ✗ %s %s: %s\n", ue.UserID, ue.Platform, shared.MessageOf(ue.Err))
	}
	return nil
}

// SyncRun executes queued tasks in this process.
//
// With --once it drains every eligible task and exits; otherwise it runs the worker pool until interrupted.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	e, err := r.engine(engineOpts{})
	if err != nil {
		return err
	}
	defer e.release()

	if cmd.Bool("once") {
		n, err := e.executor.Drain(ctx)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Processed %d task(s)\n", n)
	}

	r.logger.Info("executor started", "workers", r.config.Executor.Workers)
	if err := e.executor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
