package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
)

type fakeSource struct {
	statuses []tasks.Status
	revoked  []string
	syncErr  error
}

func (f *fakeSource) ListTasks(context.Context, string, int) ([]tasks.Status, error) {
	return f.statuses, nil
}

func (f *fakeSource) RequestSync(context.Context, string, []models.Platform) ([]tasks.PlatformResult, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return []tasks.PlatformResult{
		{Platform: models.Instagram, TaskID: "t3", Created: true},
		{Platform: models.TikTok, TaskID: "t1"},
	}, nil
}

func (f *fakeSource) Revoke(_ context.Context, id string) (*tasks.Status, error) {
	f.revoked = append(f.revoked, id)
	return &tasks.Status{TaskID: id}, nil
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(src *fakeSource) *Model {
	m := NewModel(context.Background(), src, "u1", nil, time.Second)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(tasksLoadedMsg{tasks: src.statuses})
	return m
}

func sampleSource() *fakeSource {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return &fakeSource{statuses: []tasks.Status{
		{TaskID: "t1", Platform: models.TikTok, State: models.StatePending, Attempts: 1, CreatedAt: now, UpdatedAt: now,
			EligibleAt: now.Add(time.Minute), LastError: &tasks.StatusError{Kind: shared.KindQuotaExceeded, Message: "provider quota exceeded"}},
		{TaskID: "t2", Platform: models.Instagram, State: models.StateSuccess, Attempts: 1, CreatedAt: now, UpdatedAt: now, ResultRef: "snap-9"},
	}}
}

func TestModel(t *testing.T) {
	t.Run("lists tasks", func(t *testing.T) {
		m := newTestModel(sampleSource())
		view := m.View()
		if !strings.Contains(view, "Sync tasks") || !strings.Contains(view, "tiktok") {
			t.Errorf("unexpected list view:\n%s", view)
		}
	})

	t.Run("detail view", func(t *testing.T) {
		m := newTestModel(sampleSource())
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if m.view != TaskDetailView {
			t.Fatalf("expected detail view, got %v", m.view)
		}
		view := m.View()
		for _, want := range []string{"t1", "quota_exceeded", "Next try"} {
			if !strings.Contains(view, want) {
				t.Errorf("missing %q in detail view:\n%s", want, view)
			}
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.view != TaskListView {
			t.Errorf("expected esc to return to the list")
		}
	})

	t.Run("revoke asks for confirmation", func(t *testing.T) {
		src := sampleSource()
		m := newTestModel(src)

		m.Update(runes("x"))
		if m.view != ConfirmRevokeView {
			t.Fatalf("expected confirm view, got %v", m.view)
		}
		_, cmd := m.Update(runes("y"))
		if cmd == nil {
			t.Fatal("expected a revoke command")
		}
		msg := cmd().(actionDoneMsg)
		if msg.err != nil || len(src.revoked) != 1 || src.revoked[0] != "t1" {
			t.Errorf("expected t1 revoked, got %+v %v", msg, src.revoked)
		}
	})

	t.Run("terminal tasks cannot be revoked", func(t *testing.T) {
		m := newTestModel(sampleSource())
		m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m.Update(runes("x"))
		if m.view != TaskListView {
			t.Errorf("expected to stay on the list for a finished task")
		}
	})

	t.Run("sync now", func(t *testing.T) {
		m := newTestModel(sampleSource())
		_, cmd := m.Update(runes("s"))
		msg := cmd().(actionDoneMsg)
		if msg.note != "instagram queued • tiktok already running" {
			t.Errorf("unexpected note %q", msg.note)
		}

		m.Update(msg)
		if !strings.Contains(m.View(), "instagram queued") {
			t.Errorf("expected note in view")
		}
	})

	t.Run("sync error is shown", func(t *testing.T) {
		src := sampleSource()
		src.syncErr = errors.New("user is inactive")
		m := newTestModel(src)
		_, cmd := m.Update(runes("s"))
		m.Update(cmd())
		if !strings.Contains(m.View(), "user is inactive") {
			t.Errorf("expected error in view:\n%s", m.View())
		}
	})

	t.Run("events are kept per task", func(t *testing.T) {
		m := newTestModel(sampleSource())
		for i := range maxEvents + 5 {
			m.Update(eventMsg(tasks.Event{Phase: tasks.FetchingPosts, TaskID: "t1", Message: "step", At: time.Unix(int64(i), 0)}))
		}
		if got := len(m.log["t1"]); got != maxEvents {
			t.Errorf("expected %d retained events, got %d", maxEvents, got)
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if !strings.Contains(m.View(), "Events") {
			t.Errorf("expected events section in detail view")
		}
	})
}
