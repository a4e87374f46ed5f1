package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	tu "github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/testing"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type cliHarness struct {
	runner *Runner
	out    *bytes.Buffer
	clock  *tu.ManualClock
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "socialsync.db")

	h := &cliHarness{out: &bytes.Buffer{}, clock: tu.NewManualClock(t0)}
	h.runner = NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(io.Discard),
		Output: h.out,
		Clock:  h.clock,
		Fetcher: &tu.FakeFetcher{
			Profile: tu.InstagramProfile("1001", "acme", 1000),
			Posts: []json.RawMessage{
				tu.InstagramPost("p1", 10, 2, t0.Add(-24*time.Hour)),
				tu.InstagramPost("p2", 10, 2, t0.Add(-48*time.Hour)),
			},
		},
	})
	t.Cleanup(func() { h.runner.Close() })
	return h
}

// run executes one command line and returns what it printed.
func (h *cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	h.out.Reset()
	err := h.runner.App().Run(context.Background(), append([]string{"socialsync"}, args...))
	return h.out.String(), err
}

func (h *cliHarness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	if err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
	return out
}

// linkedUser creates a user with an instagram account and returns its id.
func (h *cliHarness) linkedUser(t *testing.T, email string) string {
	t.Helper()
	h.mustRun(t, "users", "create", "--email", email, "--name", "Acme")

	user, err := h.runner.repos.users.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	h.mustRun(t, "accounts", "link", "-u", user.ID, "-p", "instagram", "--handle", "acme", "--token", "tok")
	return user.ID
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			clock := tu.NewManualClock(t0)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				Clock:      clock,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.clock != clock {
				t.Error("expected clock to be set")
			}
		})

		t.Run("with nil config defers loading", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config != nil {
				t.Error("expected config to be loaded by the command, not the constructor")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil clock uses system clock", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if _, ok := runner.clock.(shared.SystemClock); !ok {
				t.Errorf("expected SystemClock, got %T", runner.clock)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			expected := `{"key":"value"}` + "\n"
			if result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			// channels cannot be marshaled to JSON
			data := make(chan int)
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			data := map[string]string{"key": "value"}
			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			data := map[string]string{"key": "value"}
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(data, false)

			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writePlain("hello %s", "world")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("writes plain text without formatting", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writePlain("simple text")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if result != "simple text" {
				t.Errorf("expected 'simple text', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			failing := &tu.FWriter{}
			runner := NewRunner(RunnerOpts{Output: failing})

			err := runner.writePlain("test")

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := make(map[string]bool)
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}

		for _, want := range []string{"setup", "migrate", "users", "accounts", "sync", "snapshots", "serve", "watch"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})
}

func TestConfigure(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		out := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: out})
		t.Cleanup(func() { runner.Close() })
		path := filepath.Join(dir, "absent.toml")

		err := runner.App().Run(context.Background(), []string{"socialsync", "--config", path, "users", "list"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if runner.config == nil || runner.config.RateLimit.Rate != shared.DefaultConfig().RateLimit.Rate {
			t.Error("expected default config")
		}
		if runner.configPath != path {
			t.Errorf("expected configPath %s, got %s", path, runner.configPath)
		}
		if !strings.Contains(out.String(), "No users") {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("invalid file is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[rate_limit]\nrate = 0\n"), 0644); err != nil {
			t.Fatal(err)
		}

		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})
		err := runner.App().Run(context.Background(), []string{"socialsync", "-c", path, "users", "list"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: out})
	t.Cleanup(func() { runner.Close() })

	if err := runner.App().Run(context.Background(), []string{"socialsync", "setup"}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	tu.AssertFileExists(t, filepath.Join(dir, "config.toml"))
	tu.AssertFileExists(t, filepath.Join(dir, "socialsync.db"))
	if !strings.Contains(out.String(), "Config written") || !strings.Contains(out.String(), "Database ready") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	if err := runner.App().Run(context.Background(), []string{"socialsync", "setup", "--config-only"}); err != nil {
		t.Fatalf("second setup failed: %v", err)
	}
	if !strings.Contains(out.String(), "already present") {
		t.Errorf("expected existing config to be kept:\n%s", out.String())
	}
}

func TestCommands(t *testing.T) {
	t.Run("users and accounts", func(t *testing.T) {
		h := newCLIHarness(t)
		userID := h.linkedUser(t, "owner@example.com")

		out := h.mustRun(t, "users", "list")
		if !strings.Contains(out, "owner@example.com") || !strings.Contains(out, userID) {
			t.Errorf("unexpected users list:\n%s", out)
		}

		out = h.mustRun(t, "accounts", "list", "-u", userID)
		if !strings.Contains(out, "instagram") || !strings.Contains(out, "true") {
			t.Errorf("expected a usable instagram account:\n%s", out)
		}

		h.mustRun(t, "users", "deactivate", "-u", userID)
		out = h.mustRun(t, "users", "list", "--active")
		if strings.Contains(out, userID) {
			t.Errorf("expected deactivated user to be hidden:\n%s", out)
		}
	})

	t.Run("link rejects unknown platforms", func(t *testing.T) {
		h := newCLIHarness(t)
		h.mustRun(t, "users", "create", "--email", "a@example.com")
		user, _ := h.runner.repos.users.GetByEmail(context.Background(), "a@example.com")

		_, err := h.run(t, "accounts", "link", "-u", user.ID, "-p", "myspace", "--handle", "x", "--token", "t")
		if !errors.Is(err, shared.ErrUnknownPlatform) {
			t.Errorf("expected ErrUnknownPlatform, got %v", err)
		}
	})

	t.Run("request, list and revoke", func(t *testing.T) {
		h := newCLIHarness(t)
		userID := h.linkedUser(t, "owner@example.com")

		out := h.mustRun(t, "sync", "request", "-u", userID)
		if !strings.Contains(out, "queued") {
			t.Errorf("expected a queued task:\n%s", out)
		}

		out = h.mustRun(t, "sync", "request", "-u", userID)
		if !strings.Contains(out, "already in flight") {
			t.Errorf("expected the in-flight task to be reused:\n%s", out)
		}

		list, err := h.runner.repos.tasks.ListByUser(context.Background(), userID, 10)
		if err != nil || len(list) != 1 {
			t.Fatalf("expected one task, got %d (%v)", len(list), err)
		}
		taskID := list[0].ID

		out = h.mustRun(t, "sync", "list", "-u", userID, "--format", "csv")
		if !strings.Contains(out, taskID) || !strings.Contains(out, "PENDING") {
			t.Errorf("unexpected csv listing:\n%s", out)
		}

		out = h.mustRun(t, "sync", "revoke", taskID)
		if !strings.Contains(out, "Revoke requested") {
			t.Errorf("unexpected revoke output:\n%s", out)
		}

		out = h.mustRun(t, "sync", "status", taskID)
		if !strings.Contains(out, "Revoke requested") {
			t.Errorf("expected pending revoke in status:\n%s", out)
		}
	})

	t.Run("request without linked accounts", func(t *testing.T) {
		h := newCLIHarness(t)
		h.mustRun(t, "users", "create", "--email", "lonely@example.com")
		user, _ := h.runner.repos.users.GetByEmail(context.Background(), "lonely@example.com")

		_, err := h.run(t, "sync", "request", "-u", user.ID)
		if shared.KindOf(err) != shared.KindNoCredentials {
			t.Errorf("expected no_credentials, got %v", err)
		}
	})

	t.Run("status of unknown task", func(t *testing.T) {
		h := newCLIHarness(t)
		_, err := h.run(t, "sync", "status", "nope")
		if !errors.Is(err, shared.ErrTaskNotFound) && !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("run once then read snapshots", func(t *testing.T) {
		h := newCLIHarness(t)
		userID := h.linkedUser(t, "owner@example.com")
		h.mustRun(t, "sync", "request", "-u", userID, "-p", "instagram")

		out := h.mustRun(t, "sync", "run", "--once")
		if !strings.Contains(out, "Processed 1 task(s)") {
			t.Errorf("unexpected run output:\n%s", out)
		}

		list, _ := h.runner.repos.tasks.ListByUser(context.Background(), userID, 10)
		if len(list) != 1 || list[0].State != models.StateSuccess {
			t.Fatalf("expected the task to succeed, got %+v", list)
		}

		out = h.mustRun(t, "snapshots", "list", "-u", userID, "--format", "csv")
		if !strings.Contains(out, "1000") {
			t.Errorf("expected followers in snapshot csv:\n%s", out)
		}

		path := filepath.Join(t.TempDir(), "acme.md")
		out = h.mustRun(t, "snapshots", "export", "-u", userID, "-p", "instagram", "-f", "markdown", "-o", path)
		if !strings.Contains(out, "Exported 1 snapshot(s)") {
			t.Errorf("unexpected export output:\n%s", out)
		}
		if content := tu.MustReadFile(t, path); !strings.Contains(content, "acme") {
			t.Errorf("expected page handle in export:\n%s", content)
		}
	})

	t.Run("sync all", func(t *testing.T) {
		h := newCLIHarness(t)
		h.linkedUser(t, "one@example.com")
		h.mustRun(t, "users", "create", "--email", "two@example.com")

		out := h.mustRun(t, "sync", "all")
		if !strings.Contains(out, "Users: 2  Requested: 1  Skipped: 1") {
			t.Errorf("unexpected report:\n%s", out)
		}
	})

	t.Run("sync all over http", func(t *testing.T) {
		h := newCLIHarness(t)
		h.linkedUser(t, "one@example.com")
		h.mustRun(t, "users", "create", "--email", "two@example.com")

		e, err := h.runner.engine(engineOpts{})
		if err != nil {
			t.Fatalf("engine: %v", err)
		}
		defer e.release()

		rec := httptest.NewRecorder()
		e.handler(h.runner).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}

		var report struct {
			Users     int `json:"users"`
			Requested int `json:"requested"`
			Skipped   int `json:"skipped"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if report.Users != 2 || report.Requested != 1 || report.Skipped != 1 {
			t.Errorf("unexpected report %+v", report)
		}
	})

	t.Run("migrate status", func(t *testing.T) {
		h := newCLIHarness(t)
		h.mustRun(t, "users", "list")

		out := h.mustRun(t, "migrate", "status")
		if !strings.Contains(out, "Applied migrations") || !strings.Contains(out, "0000") {
			t.Errorf("unexpected migration status:\n%s", out)
		}
	})
}
