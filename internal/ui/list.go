package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
)

var _ list.Item = taskItem{}

// taskItem wraps [tasks.Status] to implement [list.Item].
type taskItem struct {
	status tasks.Status
}

func (i taskItem) FilterValue() string { return string(i.status.Platform) }
func (i taskItem) Title() string {
	return fmt.Sprintf("%s  %s", i.status.Platform, styles.State(i.status.State).Render(i.status.State.String()))
}
func (i taskItem) Description() string {
	desc := fmt.Sprintf("%s • attempt %d • %s", i.status.TaskID, i.status.Attempts, i.status.UpdatedAt.Local().Format("Jan 2 15:04:05"))
	if i.status.LastError != nil {
		desc = fmt.Sprintf("%s • %s", desc, i.status.LastError.Kind)
	}
	return desc
}
