package inbox

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobwatch/internal/model"
)

// Lines per item in the list view (title + subtitle + blank separator).
const itemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("39"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	newBadgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	failedBadgeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

// liveEventMsg carries an item that arrived while the inbox was open.
type liveEventMsg struct {
	item Item
}

// liveClosedMsg is sent once the live event channel is closed.
type liveClosedMsg struct{}

type inboxModel struct {
	email  string
	items  []Item
	fresh  map[string]bool // record ids received live
	cursor int
	width  int
	height int
	ready  bool
	list   viewport.Model

	view            viewState
	detail          viewport.Model
	showDescription bool

	live     <-chan model.InAppEvent
	liveOn   bool
	wantQuit bool
}

func newInboxModel(email string, items []Item, live <-chan model.InAppEvent) inboxModel {
	return inboxModel{
		email:  email,
		items:  items,
		fresh:  make(map[string]bool),
		live:   live,
		liveOn: live != nil,
	}
}

func (m inboxModel) Init() tea.Cmd {
	return waitForEvent(m.live)
}

// waitForEvent blocks on the live channel for one event. A nil channel
// yields no command.
func waitForEvent(ch <-chan model.InAppEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return liveClosedMsg{}
		}
		return liveEventMsg{item: FromEvent(ev)}
	}
}

func (m inboxModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detail.Width = m.width - 4
			m.detail.Height = m.height - 4
			m.detail.SetContent(m.renderDetail())
		}
		return m, nil

	case liveEventMsg:
		m.addLive(msg.item)
		return m, waitForEvent(m.live)

	case liveClosedMsg:
		m.liveOn = false
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}
	return m, nil
}

// addLive prepends an item unless its record is already listed. The cursor
// keeps pointing at the same item.
func (m *inboxModel) addLive(item Item) {
	for _, it := range m.items {
		if it.RecordID == item.RecordID {
			return
		}
	}
	m.items = append([]Item{item}, m.items...)
	m.fresh[item.RecordID] = true
	if len(m.items) > 1 {
		m.cursor++
	}
	if m.ready {
		m.recalcContent()
	}
}

func (m inboxModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		return m, nil
	case "g", "home":
		m.moveCursor(-len(m.items))
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m inboxModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if it, ok := m.selected(); ok && it.URL != "" {
			openURL(it.URL)
		}
		return m, nil
	case "r":
		if it, ok := m.selected(); ok && it.Posting != nil && it.Posting.Description != nil {
			m.showDescription = !m.showDescription
			m.detail.SetContent(m.renderDetail())
			m.detail.SetYOffset(0)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *inboxModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(len(m.items)-1, 0))
	if it, ok := m.selected(); ok {
		delete(m.fresh, it.RecordID)
	}
	if m.ready {
		m.recalcContent()
		m.ensureCursorVisible()
	}
}

func (m inboxModel) selected() (Item, bool) {
	if len(m.items) == 0 {
		return Item{}, false
	}
	return m.items[m.cursor], true
}

func (m *inboxModel) ensureCursorVisible() {
	top := m.cursor * itemHeight
	bottom := top + itemHeight - 1
	if top < m.list.YOffset {
		m.list.SetYOffset(top)
	} else if bottom >= m.list.YOffset+m.list.Height {
		m.list.SetYOffset(bottom - m.list.Height + 1)
	}
}

func (m inboxModel) openDetailView() (tea.Model, tea.Cmd) {
	if _, ok := m.selected(); !ok {
		return m, nil
	}
	m.view = viewDetail
	m.showDescription = false
	m.detail = viewport.New(m.width-4, m.height-4)
	m.detail.SetContent(m.renderDetail())
	return m, nil
}

func (m *inboxModel) recalcLayout() {
	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	w := max(m.width-2, 20)
	h := max(m.height-4, 5)
	if !m.ready {
		m.list = viewport.New(w, h)
		m.ready = true
	} else {
		m.list.Width = w
		m.list.Height = h
	}
	m.recalcContent()
}

func (m *inboxModel) recalcContent() {
	m.list.SetContent(renderItems(m.items, m.cursor, m.fresh))
}

func (m inboxModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m inboxModel) viewList() string {
	header := headerStyle.Render(fmt.Sprintf("Inbox for %s (%d)", m.email, len(m.items)))
	pane := borderStyle.Width(m.list.Width).Render(m.list.View())

	live := "live off"
	if m.liveOn {
		live = "live"
	}
	status := fmt.Sprintf(" %d notifications | %d new | %s    ↑/↓ cursor  Enter detail  Esc back  q quit",
		len(m.items), len(m.fresh), live)
	return header + "\n" + pane + "\n" + statusBarStyle.Width(m.width).Render(status)
}

func (m inboxModel) viewDetail() string {
	title := detailTitleStyle.Render("Notification")
	content := borderStyle.Width(m.width - 2).Render(m.detail.View())

	status := " o open URL  esc/backspace back  ↑/↓ scroll  q quit"
	if it, ok := m.selected(); ok && it.Posting != nil && it.Posting.Description != nil {
		status = " o open URL  r desc  esc/backspace back  ↑/↓ scroll  q quit"
	}
	return title + "\n" + content + "\n" + statusBarStyle.Width(m.width).Render(status)
}

func (m inboxModel) renderDetail() string {
	it, ok := m.selected()
	if !ok {
		return ""
	}
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Title", it.Title)
	addField("Company", it.Company)
	addField("Location", it.Location)
	addField("Status", string(it.Status))
	addField("Received", it.CreatedAt.Local().Format("2006-01-02 15:04 MST"))

	p := it.Posting
	if p != nil {
		addField("Job Type", deref(p.JobType))
		addField("Experience", deref(p.ExperienceLevel))
		addField("First Seen", p.FirstSeenAt.Local().Format("2006-01-02 15:04 MST"))
	}

	b.WriteByte('\n')
	addField("Job URL", it.URL)

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return dividerStyle.Render(label + fill)
	}

	if p == nil {
		b.WriteByte('\n')
		b.WriteString(hintStyle.Render("  posting details are not loaded for live notifications") + "\n")
		return b.String()
	}

	if p.Requirements != nil && *p.Requirements != "" {
		b.WriteByte('\n')
		b.WriteString(divider("── Requirements ") + "\n\n")
		b.WriteString(wordWrap(*p.Requirements, wrapWidth) + "\n")
	}

	if p.Description != nil && *p.Description != "" {
		b.WriteByte('\n')
		if m.showDescription {
			b.WriteString(divider("── Description ") + "\n\n")
			b.WriteString(wordWrap(*p.Description, wrapWidth) + "\n")
		} else {
			b.WriteString(hintStyle.Render("  press r to read the description") + "\n")
		}
	}
	return b.String()
}

func renderItems(items []Item, cursor int, fresh map[string]bool) string {
	if len(items) == 0 {
		return "  (no notifications)"
	}

	var b strings.Builder
	for i, it := range items {
		titleSt, subtitleSt, prefix := itemTitleStyle, itemSubtitleStyle, "  "
		if i == cursor {
			titleSt, subtitleSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(it.Title))
		if fresh[it.RecordID] {
			b.WriteString(" " + newBadgeStyle.Render("new"))
		}
		if it.Status == model.StatusFailed {
			b.WriteString(" " + failedBadgeStyle.Render("failed"))
		}
		b.WriteByte('\n')

		sub := it.Company
		if it.Location != "" {
			sub += " · " + it.Location
		}
		sub += " · " + it.CreatedAt.Local().Format("2006-01-02 15:04")
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(sub))
		b.WriteByte('\n')

		if i < len(items)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunInboxTUI shows items for email. live may be nil; when set, events
// received on it are prepended as they arrive. Returns wantQuit=true if the
// user pressed q/ctrl+c, false if they pressed esc to return to the picker.
func RunInboxTUI(email string, items []Item, live <-chan model.InAppEvent) (bool, error) {
	p := tea.NewProgram(newInboxModel(email, items, live), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	return result.(inboxModel).wantQuit, nil
}
