package tasks

import (
	"fmt"
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// Event reports a step in a task's life.
//
// Events are delivered best-effort to CLI, UI and log consumers and are never required for correctness.
type Event struct {
	Phase    Phase
	TaskID   string
	UserID   string
	Platform models.Platform
	Attempt  int
	Kind     shared.ErrorKind // set on retry, failure and revocation
	Message  string
	At       time.Time
}

// Phase enumerates task lifecycle steps.
type Phase int

const (
	Queued Phase = iota
	Claimed
	FetchingProfile
	FetchingPosts
	Transforming
	Persisting
	Succeeded
	RetryScheduled
	Failed
	Revoked
)

func (p Phase) String() string {
	switch p {
	case Queued:
		return "queued"
	case Claimed:
		return "claimed"
	case FetchingProfile:
		return "fetching_profile"
	case FetchingPosts:
		return "fetching_posts"
	case Transforming:
		return "transforming"
	case Persisting:
		return "persisting"
	case Succeeded:
		return "succeeded"
	case RetryScheduled:
		return "retry_scheduled"
	case Failed:
		return "failed"
	case Revoked:
		return "revoked"
	default:
		return ""
	}
}

// Terminal reports whether no further events follow for the attempt.
func (p Phase) Terminal() bool {
	return p >= Succeeded
}

// sendEvent delivers e without blocking; a full or nil channel drops it.
func sendEvent(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- e:
	default:
	}
}

func taskEvent(phase Phase, t *models.SyncTask, at time.Time, message string) Event {
	return Event{
		Phase:    phase,
		TaskID:   t.ID,
		UserID:   t.UserID,
		Platform: t.Platform,
		Attempt:  t.Attempts,
		Message:  message,
		At:       at,
	}
}

func queuedEvent(t *models.SyncTask, at time.Time) Event {
	return taskEvent(Queued, t, at, fmt.Sprintf("Queued %s sync", t.Platform))
}

func claimedEvent(t *models.SyncTask, at time.Time, worker string) Event {
	return taskEvent(Claimed, t, at, fmt.Sprintf("Attempt %d claimed by %s", t.Attempts, worker))
}

func fetchingProfileEvent(t *models.SyncTask, at time.Time, handle string) Event {
	return taskEvent(FetchingProfile, t, at, fmt.Sprintf("Fetching %s profile @%s...", t.Platform, handle))
}

func fetchingPostsEvent(t *models.SyncTask, at time.Time, since time.Time) Event {
	return taskEvent(FetchingPosts, t, at, fmt.Sprintf("Fetching posts since %s...", since.Format(time.DateOnly)))
}

func transformingEvent(t *models.SyncTask, at time.Time, posts int) Event {
	return taskEvent(Transforming, t, at, fmt.Sprintf("Computing metrics over %d posts...", posts))
}

func persistingEvent(t *models.SyncTask, at time.Time) Event {
	return taskEvent(Persisting, t, at, "Saving page, snapshot and posts...")
}

func succeededEvent(t *models.SyncTask, at time.Time, snapshotID string) Event {
	return taskEvent(Succeeded, t, at, fmt.Sprintf("✓ Snapshot %s saved", snapshotID))
}

func retryEvent(t *models.SyncTask, at time.Time, kind shared.ErrorKind, delay time.Duration) Event {
	e := taskEvent(RetryScheduled, t, at, fmt.Sprintf("Attempt %d failed (%s), retrying in %s", t.Attempts, kind, delay))
	e.Kind = kind
	return e
}

func failedEvent(t *models.SyncTask, at time.Time, kind shared.ErrorKind, message string) Event {
	e := taskEvent(Failed, t, at, fmt.Sprintf("✗ %s: %s", kind, message))
	e.Kind = kind
	return e
}

func revokedEvent(t *models.SyncTask, at time.Time) Event {
	e := taskEvent(Revoked, t, at, "Revoked")
	e.Kind = shared.KindRevoked
	return e
}
