package supervisor

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestTree(t *testing.T) {
	t.Run("restarts a failing service", func(t *testing.T) {
		var starts atomic.Int32
		tree := New("test", log.New(io.Discard), Config{
			FailureThreshold: 10,
			FailureBackoff:   10 * time.Millisecond,
			ShutdownTimeout:  100 * time.Millisecond,
		})
		tree.Add("flaky", func(ctx context.Context) error {
			if starts.Add(1) < 3 {
				return errors.New("boom")
			}
			<-ctx.Done()
			return ctx.Err()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		_ = tree.Serve(ctx)

		if got := starts.Load(); got < 3 {
			t.Errorf("expected at least 3 starts, got %d", got)
		}
	})

	t.Run("stops with its context", func(t *testing.T) {
		tree := New("test", log.New(io.Discard), Config{ShutdownTimeout: 100 * time.Millisecond})
		stopped := make(chan struct{})
		tree.Add("worker", func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- tree.Serve(ctx) }()
		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("service did not stop")
		}
		<-done
	})

	t.Run("service name", func(t *testing.T) {
		if s := (Service{Name: "executor"}); s.String() != "executor" {
			t.Errorf("unexpected name %q", s.String())
		}
	})
}
