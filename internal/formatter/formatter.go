// package formatter renders tasks and metric snapshots as CSV, Markdown, JSON or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
)

// Format names an output encoding.
type Format string

const (
	FormatText     Format = "txt"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts txt, text, csv, md, markdown and json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func errorText(s tasks.Status) (kind, message string) {
	if s.LastError == nil {
		return "", ""
	}
	return string(s.LastError.Kind), s.LastError.Message
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, record := range rows {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

var taskHeaders = []string{"ID", "Platform", "State", "Attempts", "Error Kind", "Error", "Result", "Created", "Finished"}

func taskRow(s tasks.Status) []string {
	kind, message := errorText(s)
	return []string{
		s.TaskID,
		s.Platform.String(),
		s.State.String(),
		strconv.Itoa(s.Attempts),
		kind,
		message,
		s.ResultRef,
		stamp(&s.CreatedAt),
		stamp(s.FinishedAt),
	}
}

// TasksToCSV renders task statuses with one row per task.
func TasksToCSV(list []tasks.Status) ([]byte, error) {
	rows := make([][]string, len(list))
	for i, s := range list {
		rows[i] = taskRow(s)
	}
	return writeCSV(taskHeaders, rows)
}

// TasksToMarkdown renders task statuses as a Markdown table.
func TasksToMarkdown(userID string, list []tasks.Status) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Sync tasks for %s\n\n", userID)
	fmt.Fprintf(&buf, "**Tasks**: %d\n\n", len(list))
	if len(list) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| " + strings.Join(taskHeaders, " | ") + " |\n")
	buf.WriteString(strings.Repeat("| --- ", len(taskHeaders)) + "|\n")
	for _, s := range list {
		row := taskRow(s)
		for i := range row {
			row[i] = strings.ReplaceAll(row[i], "|", `\|`)
		}
		buf.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return buf.Bytes(), nil
}

// TasksToText renders task statuses one per line.
func TasksToText(list []tasks.Status) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Tasks: %d\n\n", len(list))

	for i, s := range list {
		fmt.Fprintf(&buf, "%d. %s [%s] %s attempts=%d", i+1, s.TaskID, s.Platform, s.State, s.Attempts)
		if kind, message := errorText(s); kind != "" {
			fmt.Fprintf(&buf, " error=%s (%s)", kind, message)
		}
		if s.ResultRef != "" {
			fmt.Fprintf(&buf, " snapshot=%s", s.ResultRef)
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// Tasks renders list in format.
func Tasks(format Format, userID string, list []tasks.Status) ([]byte, error) {
	switch format {
	case FormatCSV:
		return TasksToCSV(list)
	case FormatMarkdown:
		return TasksToMarkdown(userID, list)
	case FormatJSON:
		return json.MarshalIndent(list, "", "  ")
	default:
		return TasksToText(list)
	}
}

var snapshotHeaders = []string{
	"Taken At", "Followers", "Following", "Posts", "Window Posts", "Likes", "Comments", "Shares", "Views",
	"Engagement Rate", "Growth Rate", "Projected Followers", "Reach", "Social Score",
}

func ratio(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

func snapshotRow(s *models.MetricSnapshot) []string {
	return []string{
		stamp(&s.TakenAt),
		strconv.FormatInt(s.Followers, 10),
		strconv.FormatInt(s.Following, 10),
		strconv.FormatInt(s.Posts, 10),
		strconv.FormatInt(s.WindowPosts, 10),
		strconv.FormatInt(s.TotalLikes, 10),
		strconv.FormatInt(s.TotalComments, 10),
		strconv.FormatInt(s.TotalShares, 10),
		strconv.FormatInt(s.TotalViews, 10),
		ratio(s.EngagementRate),
		ratio(s.GrowthRate),
		strconv.FormatFloat(s.ProjectedFollowers, 'f', 0, 64),
		strconv.FormatInt(s.Reach, 10),
		ratio(s.SocialScore),
	}
}

// SnapshotsToCSV renders a page's snapshot history.
func SnapshotsToCSV(snaps []*models.MetricSnapshot) ([]byte, error) {
	rows := make([][]string, len(snaps))
	for i, s := range snaps {
		rows[i] = snapshotRow(s)
	}
	return writeCSV(snapshotHeaders, rows)
}

// SnapshotsToMarkdown renders a page header followed by a snapshot table.
func SnapshotsToMarkdown(page *models.SocialPage, snaps []*models.MetricSnapshot) ([]byte, error) {
	var buf bytes.Buffer

	title := page.DisplayName
	if title == "" {
		title = page.Username
	}
	fmt.Fprintf(&buf, "# %s (%s)\n\n", title, page.Platform)
	if page.AvatarURL != "" {
		fmt.Fprintf(&buf, "![Avatar](%s)\n\n", page.AvatarURL)
	}
	if page.Bio != "" {
		fmt.Fprintf(&buf, "**Bio**: %s\n\n", page.Bio)
	}
	fmt.Fprintf(&buf, "**Profile**: %s\n", page.ProfileURL)
	fmt.Fprintf(&buf, "**Followers**: %d\n", page.FollowersCount)
	fmt.Fprintf(&buf, "**Engagement Rate**: %s\n", ratio(page.EngagementRate))
	fmt.Fprintf(&buf, "**Social Score**: %s\n\n", ratio(page.SocialScore))

	buf.WriteString("## Snapshots\n\n")
	if len(snaps) == 0 {
		buf.WriteString("No snapshots yet.\n")
		return buf.Bytes(), nil
	}
	buf.WriteString("| " + strings.Join(snapshotHeaders, " | ") + " |\n")
	buf.WriteString(strings.Repeat("| --- ", len(snapshotHeaders)) + "|\n")
	for _, s := range snaps {
		buf.WriteString("| " + strings.Join(snapshotRow(s), " | ") + " |\n")
	}
	return buf.Bytes(), nil
}

// SnapshotsToText renders one line per snapshot.
func SnapshotsToText(page *models.SocialPage, snaps []*models.MetricSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Page: %s (%s)\n", page.Username, page.Platform)
	fmt.Fprintf(&buf, "Snapshots: %d\n\n", len(snaps))

	for i, s := range snaps {
		fmt.Fprintf(&buf, "%d. %s followers=%d engagement=%s growth=%s score=%s\n",
			i+1, stamp(&s.TakenAt), s.Followers, ratio(s.EngagementRate), ratio(s.GrowthRate), ratio(s.SocialScore))
	}
	return buf.Bytes(), nil
}

// Snapshots renders a page's history in format.
func Snapshots(format Format, page *models.SocialPage, snaps []*models.MetricSnapshot) ([]byte, error) {
	switch format {
	case FormatCSV:
		return SnapshotsToCSV(snaps)
	case FormatMarkdown:
		return SnapshotsToMarkdown(page, snaps)
	case FormatJSON:
		return json.MarshalIndent(struct {
			Page      *models.SocialPage       `json:"page"`
			Snapshots []*models.MetricSnapshot `json:"snapshots"`
		}{page, snaps}, "", "  ")
	default:
		return SnapshotsToText(page, snaps)
	}
}

// Extension returns the file suffix for format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case "":
		return ".txt"
	}
	return "." + string(f)
}

// WriteSnapshotExport writes a page's history to path, defaulting to {platform}_{username}{ext}.
func WriteSnapshotExport(format Format, page *models.SocialPage, snaps []*models.MetricSnapshot, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_%s%s", page.Platform, page.Username, format.Extension())
	}

	data, err := Snapshots(format, page, snaps)
	if err != nil {
		return "", fmt.Errorf("failed to render snapshots: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
