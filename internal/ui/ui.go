package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
)

const maxEvents = 20

// ViewState represents the current view in the TUI.
type ViewState int

const (
	TaskListView ViewState = iota
	TaskDetailView
	ConfirmRevokeView
)

// Source is what the dashboard reads and drives. *tasks.Dispatcher satisfies it.
type Source interface {
	ListTasks(ctx context.Context, userID string, limit int) ([]tasks.Status, error)
	RequestSync(ctx context.Context, userID string, platforms []models.Platform) ([]tasks.PlatformResult, error)
	Revoke(ctx context.Context, taskID string) (*tasks.Status, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	source   Source
	userID   string
	events   <-chan tasks.Event
	interval time.Duration

	view     ViewState
	width    int
	height   int
	taskList list.Model
	tasks    []tasks.Status
	selected *tasks.Status
	log      map[string][]tasks.Event
	note     string
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a dashboard for userID. events may be nil.
func NewModel(ctx context.Context, source Source, userID string, events <-chan tasks.Event, refresh time.Duration) *Model {
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("Sync tasks • %s", userID)
	l.SetShowHelp(false)

	return &Model{
		ctx:      ctx,
		source:   source,
		userID:   userID,
		events:   events,
		interval: refresh,
		view:     TaskListView,
		taskList: l,
		log:      make(map[string][]tasks.Event),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init loads the task list and starts the refresh loop.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadTasks(), m.tick(), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.taskList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case TaskListView:
			return m.handleListKeys(msg)
		case TaskDetailView:
			return m.handleDetailKeys(msg)
		case ConfirmRevokeView:
			return m.handleConfirmKeys(msg)
		}

	case tasksLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.setTasks(msg.tasks)
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.loadTasks(), m.tick())

	case eventMsg:
		e := tasks.Event(msg)
		events := append(m.log[e.TaskID], e)
		if len(events) > maxEvents {
			events = events[len(events)-maxEvents:]
		}
		m.log[e.TaskID] = events
		cmds := []tea.Cmd{m.waitForEvent()}
		if e.Phase == tasks.Queued || e.Phase.Terminal() {
			cmds = append(cmds, m.loadTasks())
		}
		return m, tea.Batch(cmds...)

	case actionDoneMsg:
		m.note, m.err = msg.note, msg.err
		return m, m.loadTasks()
	}

	var cmd tea.Cmd
	if m.view == TaskListView {
		m.taskList, cmd = m.taskList.Update(msg)
	}
	return m, cmd
}

func (m *Model) setTasks(statuses []tasks.Status) {
	m.tasks = statuses
	items := make([]list.Item, len(statuses))
	for i, s := range statuses {
		items[i] = taskItem{status: s}
		if m.selected != nil && m.selected.TaskID == s.TaskID {
			m.selected = &statuses[i]
		}
	}
	m.taskList.SetItems(items)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case TaskDetailView:
		body = m.renderDetail()
	case ConfirmRevokeView:
		body = m.renderConfirm()
	default:
		body = m.renderList()
	}

	var footer string
	if m.err != nil {
		footer = "\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	} else if m.note != "" {
		footer = "\n" + styles.ok.Render(m.note)
	}
	return body + footer
}

func (m *Model) selectedItem() *tasks.Status {
	if item, ok := m.taskList.SelectedItem().(taskItem); ok {
		s := item.status
		return &s
	}
	return nil
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if s := m.selectedItem(); s != nil {
			m.selected = s
			m.view = TaskDetailView
		}
		return m, nil
	case key.Matches(msg, m.keys.sync):
		return m, m.requestSync()
	case key.Matches(msg, m.keys.revoke):
		if s := m.selectedItem(); s != nil && !s.State.Terminal() {
			m.selected = s
			m.view = ConfirmRevokeView
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.loadTasks()
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = TaskListView
	case key.Matches(msg, m.keys.revoke):
		if m.selected != nil && !m.selected.State.Terminal() {
			m.view = ConfirmRevokeView
		}
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = TaskListView
		return m, m.revoke(m.selected.TaskID)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = TaskListView
	}
	return m, nil
}

func (m *Model) loadTasks() tea.Cmd {
	return func() tea.Msg {
		statuses, err := m.source.ListTasks(m.ctx, m.userID, 50)
		return tasksLoadedMsg{tasks: statuses, err: err}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case e, ok := <-m.events:
			if !ok {
				return nil
			}
			return eventMsg(e)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) requestSync() tea.Cmd {
	return func() tea.Msg {
		results, err := m.source.RequestSync(m.ctx, m.userID, nil)
		if err != nil {
			return actionDoneMsg{err: err}
		}

		var parts []string
		for _, r := range results {
			switch {
			case r.Err != nil:
				parts = append(parts, fmt.Sprintf("%s: %v", r.Platform, r.Err))
			case r.Created:
				parts = append(parts, fmt.Sprintf("%s queued", r.Platform))
			default:
				parts = append(parts, fmt.Sprintf("%s already running", r.Platform))
			}
		}
		return actionDoneMsg{note: strings.Join(parts, " • ")}
	}
}

func (m *Model) revoke(taskID string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.source.Revoke(m.ctx, taskID); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{note: fmt.Sprintf("Revoke requested for %s", taskID)}
	}
}

func (m *Model) renderList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.sync, m.keys.revoke, m.keys.refresh, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.taskList.View(), helpView)
}

func (m *Model) renderDetail() string {
	s := m.selected
	if s == nil {
		return styles.err.Render("No task selected")
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("%s sync %s", s.Platform, s.TaskID)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "State:    %s\n", styles.State(s.State).Render(s.State.String()))
	fmt.Fprintf(&b, "Attempts: %d\n", s.Attempts)
	fmt.Fprintf(&b, "Created:  %s\n", s.CreatedAt.Local().Format(time.DateTime))
	if s.State == models.StatePending && s.EligibleAt.After(s.CreatedAt) {
		fmt.Fprintf(&b, "Next try: %s\n", s.EligibleAt.Local().Format(time.DateTime))
	}
	if s.LastError != nil {
		fmt.Fprintf(&b, "Error:    %s\n", styles.warn.Render(fmt.Sprintf("%s: %s", s.LastError.Kind, s.LastError.Message)))
	}
	if s.ResultRef != "" {
		fmt.Fprintf(&b, "Snapshot: %s\n", s.ResultRef)
	}
	if s.RevokeRequested && !s.State.Terminal() {
		b.WriteString(styles.warn.Render("Revoke pending") + "\n")
	}

	if events := m.log[s.TaskID]; len(events) > 0 {
		b.WriteString("\n" + styles.help.Render("Events") + "\n")
		for _, e := range events {
			fmt.Fprintf(&b, "  %s  %s\n", e.At.Local().Format(time.TimeOnly), e.Message)
		}
	}

	b.WriteString("\n" + m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.revoke, m.keys.quit}))
	return b.String()
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Revoke %s sync %s?", m.selected.Platform, m.selected.TaskID))
	info := "\nA running attempt is cancelled and its results are discarded.\n"
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

// Run starts the dashboard in the alternate screen and blocks until the user quits.
func Run(ctx context.Context, source Source, userID string, events <-chan tasks.Event, refresh time.Duration) error {
	p := tea.NewProgram(NewModel(ctx, source, userID, events, refresh), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
