// Package tui is the interactive terminal front end for the task store.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"prism-todo/domain"
	"prism-todo/store"
)

// Store is the part of *store.Store the TUI drives.
type Store interface {
	Create(ctx context.Context, title string, priority domain.Priority) (domain.Task, error)
	Update(ctx context.Context, id, title string, priority domain.Priority) error
	ToggleDone(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, confirm store.Confirmer) (bool, error)
	Get(id string) (domain.Task, bool)
	View(filter domain.Filter, searchTerm string) domain.View
}

var _ Store = (*store.Store)(nil)

type mode int

const (
	modeList mode = iota
	modeForm
	modeConfirm
	modeSearch
)

// Model is the bubbletea model for the task list.
type Model struct {
	ctx    context.Context
	store  Store
	keys   keyMap
	help   help.Model
	styles styles

	mode   mode
	view   domain.View
	filter domain.Filter
	cursor int
	search textinput.Model

	// form state; editingID is empty while creating
	title     textinput.Model
	priority  domain.Priority
	editingID string
	formErr   string

	pendingDelete domain.Task
	status        string
	width         int
}

// New builds a model showing the current contents of s.
func New(ctx context.Context, s Store) Model {
	search := textinput.New()
	search.Placeholder = "search titles..."
	search.Prompt = "/ "
	search.CharLimit = 100

	title := textinput.New()
	title.Placeholder = "What needs doing?"
	title.Prompt = "Title: "
	title.CharLimit = 200

	m := Model{
		ctx:    ctx,
		store:  s,
		keys:   defaultKeyMap(),
		help:   help.New(),
		styles: defaultStyles(),
		filter: domain.FilterAll,
		search: search,
		title:  title,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch m.mode {
		case modeForm:
			return m.updateForm(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		case modeSearch:
			return m.updateSearch(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.view.Tasks)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Toggle):
		if t, ok := m.selected(); ok {
			m.report(m.store.ToggleDone(m.ctx, t.ID))
			m.refresh()
		}
	case key.Matches(msg, m.keys.Add):
		return m.openForm(domain.Task{Priority: domain.DefaultPriority})
	case key.Matches(msg, m.keys.Edit):
		if t, ok := m.selected(); ok {
			if current, ok := m.store.Get(t.ID); ok {
				return m.openForm(current)
			}
		}
	case key.Matches(msg, m.keys.Delete):
		if t, ok := m.selected(); ok {
			m.pendingDelete = t
			m.mode = modeConfirm
		}
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		cmd := m.search.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Filter):
		m.filter = nextFilter(m.filter)
		m.refresh()
	}
	return m, nil
}

func (m Model) openForm(t domain.Task) (tea.Model, tea.Cmd) {
	m.mode = modeForm
	m.editingID = t.ID
	m.priority = t.Priority
	if !m.priority.Valid() {
		m.priority = domain.DefaultPriority
	}
	m.formErr = ""
	m.title.SetValue(t.Title)
	m.title.CursorEnd()
	cmd := m.title.Focus()
	return m, cmd
}

func (m *Model) closeForm() {
	m.mode = modeList
	m.editingID = ""
	m.formErr = ""
	m.title.Reset()
	m.title.Blur()
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.closeForm()
		return m, nil
	case tea.KeyTab:
		m.priority = nextPriority(m.priority)
		return m, nil
	case tea.KeyShiftTab:
		m.priority = prevPriority(m.priority)
		return m, nil
	case tea.KeyEnter:
		var err error
		if m.editingID == "" {
			_, err = m.store.Create(m.ctx, m.title.Value(), m.priority)
		} else {
			err = m.store.Update(m.ctx, m.editingID, m.title.Value(), m.priority)
		}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			m.formErr = verr.Error()
			return m, nil
		}
		editing := m.editingID != ""
		m.closeForm()
		m.report(err)
		m.refresh()
		if err == nil && !editing {
			m.cursor = 0
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.title, cmd = m.title.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	answer := false
	switch msg.String() {
	case "y", "Y":
		answer = true
	case "ctrl+c":
		return m, tea.Quit
	}
	id := m.pendingDelete.ID
	m.pendingDelete = domain.Task{}
	m.mode = modeList
	confirm := store.ConfirmFunc(func(context.Context, string) bool { return answer })
	removed, err := m.store.Remove(m.ctx, id, confirm)
	m.report(err)
	if err == nil && removed {
		m.status = "Task deleted."
	}
	m.refresh()
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.search.Reset()
		fallthrough
	case tea.KeyEnter:
		m.search.Blur()
		m.mode = modeList
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.refresh()
	return m, cmd
}

func (m *Model) refresh() {
	m.view = m.store.View(m.filter, m.search.Value())
	if m.cursor >= len(m.view.Tasks) {
		m.cursor = len(m.view.Tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) report(err error) {
	if err != nil {
		m.status = "Error: " + err.Error()
	}
}

func (m Model) selected() (domain.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.view.Tasks) {
		return domain.Task{}, false
	}
	return m.view.Tasks[m.cursor], true
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Tasks"))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	if m.mode == modeSearch || m.search.Value() != "" {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch m.mode {
	case modeForm:
		b.WriteString(m.renderForm())
	default:
		b.WriteString(m.renderList())
		if m.mode == modeConfirm {
			b.WriteString("\n")
			b.WriteString(m.styles.Prompt.Render(fmt.Sprintf("Delete task %q? (y/N)", m.pendingDelete.Title)))
		}
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.status))
	}
	st := m.view.Stats
	b.WriteString(m.styles.Footer.Render(fmt.Sprintf("%d total · %d pending · %d done", st.Total, st.Pending, st.Done)))
	b.WriteString("\n")
	if m.mode == modeList {
		b.WriteString(m.help.View(m.keys))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, len(domain.Filters))
	for _, f := range domain.Filters {
		label := strings.ToUpper(string(f[:1])) + string(f[1:])
		if f == m.filter {
			tabs = append(tabs, m.styles.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, m.styles.Tab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderList() string {
	if m.view.Empty {
		if m.view.Stats.Total == 0 {
			return m.styles.Muted.Render("No tasks yet. Press a to add one.") + "\n"
		}
		return m.styles.Muted.Render("No tasks match the current filter.") + "\n"
	}
	var b strings.Builder
	for i, t := range m.view.Tasks {
		cursor := "  "
		if i == m.cursor {
			cursor = m.styles.Cursor.Render("> ")
		}
		check := "[ ]"
		title := t.Title
		if t.Done {
			check = "[x]"
			title = m.styles.Done.Render(title)
		}
		prio := PriorityStyle(t.Priority).Render(fmt.Sprintf("%-6s", t.Priority.Label()))
		created := m.styles.Muted.Render(time.UnixMilli(t.CreatedAt).Format("2006-01-02 15:04"))
		fmt.Fprintf(&b, "%s%s %s  %s  %s\n", cursor, check, prio, title, created)
	}
	return b.String()
}

func (m Model) renderForm() string {
	var b strings.Builder
	heading := "New task"
	if m.editingID != "" {
		heading = "Edit task"
	}
	b.WriteString(m.styles.Title.Render(heading))
	b.WriteString("\n")
	b.WriteString(m.title.View())
	b.WriteString("\n")

	opts := make([]string, 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		if p == m.priority {
			opts = append(opts, PriorityStyle(p).Bold(true).Render("["+p.Label()+"]"))
		} else {
			opts = append(opts, m.styles.Muted.Render(" "+p.Label()+" "))
		}
	}
	b.WriteString("Priority: " + strings.Join(opts, " "))
	b.WriteString("\n")
	if m.formErr != "" {
		b.WriteString(m.styles.Error.Render(m.formErr))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Muted.Render("enter save · tab priority · esc cancel"))
	b.WriteString("\n")
	return b.String()
}

func nextFilter(f domain.Filter) domain.Filter {
	for i, candidate := range domain.Filters {
		if candidate == f {
			return domain.Filters[(i+1)%len(domain.Filters)]
		}
	}
	return domain.FilterAll
}

func nextPriority(p domain.Priority) domain.Priority {
	for i, candidate := range domain.Priorities {
		if candidate == p {
			return domain.Priorities[(i+1)%len(domain.Priorities)]
		}
	}
	return domain.DefaultPriority
}

func prevPriority(p domain.Priority) domain.Priority {
	n := len(domain.Priorities)
	for i, candidate := range domain.Priorities {
		if candidate == p {
			return domain.Priorities[(i+n-1)%n]
		}
	}
	return domain.DefaultPriority
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, s Store) error {
	p := tea.NewProgram(New(ctx, s), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
