// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/notify"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// NewTestDB opens an in-memory SQLite database with migrations applied.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:", time.Second)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t.UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// FakeFetcher serves canned provider payloads.
//
// Each FetchProfile call consumes the next entry of ProfileErrs; a nil entry, or an exhausted
// queue, succeeds. With Block set, FetchProfile waits for its context and returns the cause.
type FakeFetcher struct {
	Profile     json.RawMessage
	Posts       []json.RawMessage
	ProfileErrs []error
	PostsErr    error
	Block       bool

	mu           sync.Mutex
	profileCalls atomic.Int32
	started      chan struct{}
}

// ProfileCalls reports how many times FetchProfile ran.
func (f *FakeFetcher) ProfileCalls() int { return int(f.profileCalls.Load()) }

// Started is closed the first time a blocking FetchProfile begins waiting.
func (f *FakeFetcher) Started() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started == nil {
		f.started = make(chan struct{})
	}
	return f.started
}

func (f *FakeFetcher) FetchProfile(ctx context.Context, platform models.Platform, accountRef string) (*models.ProviderProfile, error) {
	n := int(f.profileCalls.Add(1))

	if f.Block {
		f.mu.Lock()
		if f.started == nil {
			f.started = make(chan struct{})
		}
		select {
		case <-f.started:
		default:
			close(f.started)
		}
		f.mu.Unlock()

		<-ctx.Done()
		return nil, fmt.Errorf("profile fetch interrupted: %w", context.Cause(ctx))
	}

	if n <= len(f.ProfileErrs) && f.ProfileErrs[n-1] != nil {
		return nil, f.ProfileErrs[n-1]
	}
	return &models.ProviderProfile{Platform: platform, AccountRef: accountRef, Raw: f.Profile, FetchedAt: time.Now().UTC()}, nil
}

func (f *FakeFetcher) FetchPosts(ctx context.Context, platform models.Platform, _ string, _ *time.Time) iter.Seq2[models.ProviderPost, error] {
	return func(yield func(models.ProviderPost, error) bool) {
		for _, raw := range f.Posts {
			if err := ctx.Err(); err != nil {
				yield(models.ProviderPost{}, context.Cause(ctx))
				return
			}
			if !yield(models.ProviderPost{Platform: platform, Raw: raw}, nil) {
				return
			}
		}
		if f.PostsErr != nil {
			yield(models.ProviderPost{}, f.PostsErr)
		}
	}
}

// RecordingNotifier keeps every alert it receives.
type RecordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *RecordingNotifier) NotifyAdmin(_ context.Context, a notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *RecordingNotifier) Alerts() []notify.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Alert(nil), n.alerts...)
}

// InstagramProfile is a provider profile payload.
func InstagramProfile(id, username string, followers int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"username":%q,"fullName":"Test Account","followersCount":%d,"followsCount":10,"postsCount":100}`,
		id, username, followers))
}

// InstagramPost is a provider post payload published at.
func InstagramPost(id string, likes, comments int64, at time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"caption":"post %s","url":"https://www.instagram.com/p/%s/","timestamp":%q,"likesCount":%d,"commentsCount":%d}`,
		id, id, id, at.UTC().Format(time.RFC3339), likes, comments))
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
