package tasks

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

type roundRecorder struct {
	requested, skipped, failed int
}

func (r *roundRecorder) ObserveSchedule(requested, skipped, failed int) {
	r.requested, r.skipped, r.failed = requested, skipped, failed
}

func TestScheduler(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.user(t, "both@example.com", models.Instagram, models.TikTok)
	h.user(t, "none@example.com")
	off := h.user(t, "off@example.com", models.Facebook)
	if err := h.users.SetActive(ctx, off.ID, false, t0); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	rec := &roundRecorder{}
	s := NewScheduler(h.users, h.disp, shared.SchedulerConfig{Concurrency: 2}, log.New(io.Discard), WithScheduleObserver(rec))

	report, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if report.Users != 2 || report.Requested != 2 || report.Skipped != 1 || len(report.Errors) != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if rec.requested != 2 || rec.skipped != 1 {
		t.Errorf("observer not updated: %+v", rec)
	}

	again, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if again.Requested != 2 {
		t.Errorf("expected in-flight tasks to be reported again, got %+v", again)
	}
	if counts, _ := h.tasks.CountByState(ctx); counts[models.StatePending] != 2 {
		t.Errorf("expected two pending tasks after two rounds, got %v", counts)
	}
}
