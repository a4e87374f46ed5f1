package formatter

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
	th "github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/testing"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func sampleTasks() []tasks.Status {
	finished := t0.Add(time.Minute)
	return []tasks.Status{
		{TaskID: "t2", UserID: "u1", Platform: models.TikTok, State: models.StateFailure, Attempts: 3,
			LastError: &tasks.StatusError{Kind: shared.KindTransient, Message: "provider unavailable | retry later"},
			CreatedAt: t0, FinishedAt: &finished},
		{TaskID: "t1", UserID: "u1", Platform: models.Instagram, State: models.StateSuccess, Attempts: 1,
			ResultRef: "snap-1", CreatedAt: t0, FinishedAt: &finished},
	}
}

func samplePage() (*models.SocialPage, []*models.MetricSnapshot) {
	page := &models.SocialPage{
		Platform: models.Instagram, Username: "acme", DisplayName: "Acme Co",
		ProfileURL: "https://www.instagram.com/acme/", FollowersCount: 1100, EngagementRate: 0.012, SocialScore: 0.3,
	}
	snaps := []*models.MetricSnapshot{
		{TakenAt: t0, Followers: 1000, EngagementRate: 0.012, SocialScore: 0.048},
		{TakenAt: t0.Add(24 * time.Hour), Followers: 1100, GrowthRate: 0.1, ProjectedFollowers: 19191.3, EngagementRate: 0.012, SocialScore: 0.3},
	}
	return page, snaps
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatText}, {"TXT", FormatText}, {"text", FormatText},
		{"csv", FormatCSV}, {"md", FormatMarkdown}, {"markdown", FormatMarkdown}, {"json", FormatJSON},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTaskFormatters(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		data, err := TasksToCSV(sampleTasks())
		if err != nil {
			t.Fatalf("TasksToCSV failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
		}
		if !strings.HasPrefix(lines[0], "ID,Platform,State,Attempts") {
			t.Errorf("unexpected header %q", lines[0])
		}
		if !strings.Contains(lines[1], "t2,tiktok,FAILURE,3,transient") {
			t.Errorf("unexpected row %q", lines[1])
		}
		if !strings.Contains(lines[2], "snap-1") {
			t.Errorf("expected result ref in %q", lines[2])
		}
	})

	t.Run("markdown escapes pipes", func(t *testing.T) {
		data, err := TasksToMarkdown("u1", sampleTasks())
		if err != nil {
			t.Fatalf("TasksToMarkdown failed: %v", err)
		}
		out := string(data)
		if !strings.Contains(out, "# Sync tasks for u1") || !strings.Contains(out, "**Tasks**: 2") {
			t.Errorf("missing header, got:\n%s", out)
		}
		if !strings.Contains(out, `unavailable \| retry`) {
			t.Errorf("expected escaped pipe, got:\n%s", out)
		}
	})

	t.Run("markdown empty", func(t *testing.T) {
		data, _ := TasksToMarkdown("u1", nil)
		if strings.Contains(string(data), "| ID") {
			t.Errorf("expected no table for an empty list")
		}
	})

	t.Run("text", func(t *testing.T) {
		data, _ := TasksToText(sampleTasks())
		out := string(data)
		if !strings.Contains(out, "1. t2 [tiktok] FAILURE attempts=3 error=transient") {
			t.Errorf("unexpected text:\n%s", out)
		}
		if !strings.Contains(out, "snapshot=snap-1") {
			t.Errorf("expected snapshot ref:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		data, err := Tasks(FormatJSON, "u1", sampleTasks())
		if err != nil {
			t.Fatalf("Tasks failed: %v", err)
		}
		var decoded []tasks.Status
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[0].TaskID != "t2" {
			t.Errorf("unexpected decoded tasks %+v", decoded)
		}
	})
}

func TestSnapshotFormatters(t *testing.T) {
	page, snaps := samplePage()

	t.Run("csv", func(t *testing.T) {
		data, err := SnapshotsToCSV(snaps)
		if err != nil {
			t.Fatalf("SnapshotsToCSV failed: %v", err)
		}
		out := string(data)
		if !strings.Contains(out, "Taken At,Followers") {
			t.Errorf("missing headers:\n%s", out)
		}
		if !strings.Contains(out, "1100,0,0,0,0,0,0,0,0.012000,0.100000,19191,0,0.300000") {
			t.Errorf("unexpected row:\n%s", out)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		data, _ := SnapshotsToMarkdown(page, snaps)
		out := string(data)
		for _, want := range []string{"# Acme Co (instagram)", "**Followers**: 1100", "## Snapshots", "| Taken At |"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q in:\n%s", want, out)
			}
		}
	})

	t.Run("markdown without snapshots", func(t *testing.T) {
		data, _ := SnapshotsToMarkdown(page, nil)
		if !strings.Contains(string(data), "No snapshots yet.") {
			t.Errorf("expected empty notice")
		}
	})

	t.Run("text", func(t *testing.T) {
		data, _ := SnapshotsToText(page, snaps)
		if !strings.Contains(string(data), "2. 2025-03-11T09:00:00Z followers=1100 engagement=0.012000 growth=0.100000 score=0.300000") {
			t.Errorf("unexpected text:\n%s", data)
		}
	})
}

func TestWriteSnapshotExport(t *testing.T) {
	page, snaps := samplePage()
	dir := t.TempDir()

	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(dir, "history.csv")
		got, err := WriteSnapshotExport(FormatCSV, page, snaps, path)
		if err != nil {
			t.Fatalf("WriteSnapshotExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.Contains(content, "Followers") {
			t.Errorf("unexpected content:\n%s", content)
		}
	})

	t.Run("default name", func(t *testing.T) {
		t.Chdir(dir)
		got, err := WriteSnapshotExport(FormatMarkdown, page, snaps, "")
		if err != nil {
			t.Fatalf("WriteSnapshotExport failed: %v", err)
		}
		if got != "instagram_acme.md" {
			t.Errorf("unexpected default path %s", got)
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		if _, err := WriteSnapshotExport(FormatText, page, snaps, filepath.Join(dir, "missing", "x.txt")); err == nil {
			t.Error("expected write error")
		}
	})
}
