package ui

import (
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
)

// tasksLoadedMsg carries a refreshed task list.
type tasksLoadedMsg struct {
	tasks []tasks.Status
	err   error
}

// tickMsg triggers a periodic refresh.
type tickMsg time.Time

// eventMsg is one lifecycle event from an in-process executor.
type eventMsg tasks.Event

// actionDoneMsg reports the outcome of a sync request or revoke.
type actionDoneMsg struct {
	note string
	err  error
}
