// ABOUTME: Interactive terminal console for reviewing the communication queue
// ABOUTME: List and detail views; approve and deny go through the shared resolver

package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jnun/contactcmd/internal/store"
)

// Resolver decides queue entries. Both console and HTTP surface share one
// implementation so claims stay atomic across surfaces.
type Resolver interface {
	Approve(ctx context.Context, id string) (*store.QueueEntry, error)
	Deny(ctx context.Context, id string) (*store.QueueEntry, error)
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	flaggedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
)

type view int

const (
	viewList view = iota
	viewDetail
)

type entriesMsg struct {
	entries []*store.QueueEntry
	err     error
}

type resolvedMsg struct {
	id     string
	action string
	entry  *store.QueueEntry
	err    error
}

// Model is the console's bubbletea model.
type Model struct {
	queue    store.QueueStore
	resolver Resolver

	entries []*store.QueueEntry
	cursor  int
	view    view
	status  string
	err     error
	loading bool
}

// NewModel creates the console model.
func NewModel(qs store.QueueStore, r Resolver) Model {
	return Model{queue: qs, resolver: r, loading: true}
}

// Run starts the console and blocks until the user quits.
func Run(qs store.QueueStore, r Resolver) error {
	p := tea.NewProgram(NewModel(qs, r), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.loadEntries()
}

func (m Model) loadEntries() tea.Cmd {
	return func() tea.Msg {
		entries, err := m.queue.ListPending(context.Background())
		return entriesMsg{entries: entries, err: err}
	}
}

func (m Model) resolve(id, action string) tea.Cmd {
	return func() tea.Msg {
		var entry *store.QueueEntry
		var err error
		if action == "approve" {
			entry, err = m.resolver.Approve(context.Background(), id)
		} else {
			entry, err = m.resolver.Deny(context.Background(), id)
		}
		return resolvedMsg{id: id, action: action, entry: entry, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case entriesMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.entries = msg.entries
		if m.cursor >= len(m.entries) {
			m.cursor = len(m.entries) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case resolvedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, store.ErrAlreadyResolved) {
				m.status = fmt.Sprintf("%s already resolved elsewhere", shortID(msg.id))
			} else {
				m.err = msg.err
			}
			return m, m.loadEntries()
		}
		m.status = fmt.Sprintf("%s %s", shortID(msg.id), msg.entry.Status)
		m.view = viewList
		return m, m.loadEntries()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.view == viewDetail {
			m.view = viewList
			return m, nil
		}
		return m, tea.Quit

	case "esc":
		m.view = viewList
		return m, nil

	case "up", "k":
		if m.view == viewList && m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.view == viewList && m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		if m.view == viewList && len(m.entries) > 0 {
			m.view = viewDetail
		}
		return m, nil

	case "r":
		m.status = ""
		return m, m.loadEntries()

	case "a":
		if entry := m.selected(); entry != nil {
			return m, m.resolve(entry.ID, "approve")
		}
		return m, nil

	case "d":
		if entry := m.selected(); entry != nil {
			return m, m.resolve(entry.ID, "deny")
		}
		return m, nil
	}
	return m, nil
}

func (m Model) selected() *store.QueueEntry {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return nil
	}
	return m.entries[m.cursor]
}

func (m Model) View() string {
	if m.view == viewDetail {
		return m.detailView()
	}
	return m.listView()
}

func (m Model) listView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Communication Queue"))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(dimStyle.Render("loading..."))
	case len(m.entries) == 0:
		b.WriteString(dimStyle.Render("nothing awaiting review"))
	default:
		for i, e := range m.entries {
			line := fmt.Sprintf("%-8s %-8s %-10s %-28s %s",
				renderStatus(e.Status), e.Priority, e.Channel,
				truncate(e.RecipientAddress, 28), truncate(preview(e), 40))
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(dimStyle.Render("enter view · a approve · d deny · r refresh · q quit"))
	return b.String()
}

func (m Model) detailView() string {
	entry := m.selected()
	if entry == nil {
		return m.listView()
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s  %s\n\n", renderStatus(entry.Status), shortID(entry.ID)))
	b.WriteString(fmt.Sprintf("Channel:   %s\n", entry.Channel))
	b.WriteString(fmt.Sprintf("To:        %s", entry.RecipientAddress))
	if entry.RecipientName != "" {
		b.WriteString(fmt.Sprintf(" (%s)", entry.RecipientName))
	}
	b.WriteString("\n")
	if entry.Subject != "" {
		b.WriteString(fmt.Sprintf("Subject:   %s\n", entry.Subject))
	}
	b.WriteString(fmt.Sprintf("Priority:  %s\n", entry.Priority))
	b.WriteString(fmt.Sprintf("Queued:    %s\n", entry.CreatedAt.Local().Format("2006-01-02 15:04:05")))
	if entry.AgentContext != "" {
		b.WriteString(fmt.Sprintf("Context:   %s\n", truncate(entry.AgentContext, 60)))
	}
	b.WriteString("\n" + entry.Body + "\n")

	out := detailStyle.Render(b.String())
	return out + "\n" + dimStyle.Render("a approve · d deny · esc back")
}

func renderStatus(status string) string {
	if status == store.StatusFlagged {
		return flaggedStyle.Render("FLAGGED")
	}
	return pendingStyle.Render("pending")
}

func preview(e *store.QueueEntry) string {
	if e.Subject != "" {
		return e.Subject
	}
	return e.Body
}

// truncate cuts on rune boundaries so multi-byte characters never render
// as invalid UTF-8.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
