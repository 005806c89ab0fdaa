package replay

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

// Pager is an interactive terminal pager for rendered traces.
type Pager struct {
	title string
}

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	pagerHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// NewPager creates a pager with the given title.
func NewPager(title string) *Pager {
	return &Pager{title: title}
}

// Run shows content until the user quits.
func (p *Pager) Run(content string) error {
	prog := tea.NewProgram(
		newPagerModel(p.title, content),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := prog.Run()
	return err
}

// RunLive shows render's output and refreshes it when the file at path is
// written. The directory is watched so files replaced by rename still count.
func (p *Pager) RunLive(path string, render func() (string, error)) error {
	content, err := render()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch file: %w", err)
	}

	m := newPagerModel(p.title, content)
	m.live = true
	m.render = render
	m.watcher = watcher
	m.path = filepath.Clean(path)

	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = prog.Run()
	return err
}

// fileChangedMsg is sent when the watched file changes.
type fileChangedMsg struct{}

// search holds the pager's find state. Matches are wrapped line numbers.
type search struct {
	input   textinput.Model
	editing bool
	query   string
	matches []int
	current int
	missed  bool
}

func (s *search) begin() tea.Cmd {
	s.editing = true
	s.input = textinput.New()
	s.input.Placeholder = "Search..."
	s.input.CharLimit = 100
	s.input.Width = 40
	s.input.SetValue(s.query)
	s.input.Focus()
	return textinput.Blink
}

func (s *search) reset() {
	s.query = ""
	s.matches = nil
	s.missed = false
}

// find records the lines of text containing the query, ignoring case.
func (s *search) find(text string) {
	s.matches = nil
	s.current = 0
	s.missed = false
	if s.query == "" {
		return
	}
	q := strings.ToLower(s.query)
	for i, line := range strings.Split(text, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			s.matches = append(s.matches, i)
		}
	}
	s.missed = len(s.matches) == 0
}

// step moves the current match by delta, wrapping around.
func (s *search) step(delta int) bool {
	n := len(s.matches)
	if n == 0 {
		return false
	}
	s.current = ((s.current+delta)%n + n) % n
	return true
}

type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	wrapped  string
	ready    bool
	search   search

	live      bool
	render    func() (string, error)
	watcher   *fsnotify.Watcher
	path      string
	renderErr error
}

func newPagerModel(title, content string) *pagerModel {
	return &pagerModel{title: title, content: content}
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live && m.watcher != nil {
		return m.awaitChange()
	}
	return nil
}

// awaitChange blocks until the watched file is written or recreated.
func (m *pagerModel) awaitChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) == m.path && ev.Has(fsnotify.Write|fsnotify.Create) {
					// writers append line by line; give the batch a moment
					time.Sleep(100 * time.Millisecond)
					return fileChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.search.editing {
		return m.updateSearch(msg)
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case fileChangedMsg:
		m.reload()
		cmds = append(cmds, m.awaitChange())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.search.query == "" {
				return m, tea.Quit
			}
			m.search.reset()
		case "/":
			return m, m.search.begin()
		case "n":
			if m.search.step(1) {
				m.showMatch()
			}
		case "N":
			if m.search.step(-1) {
				m.showMatch()
			}
		case "g":
			m.viewport.GotoTop()
		case "G", "f":
			m.viewport.GotoBottom()
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // title and status lines
		if m.ready {
			m.viewport.Width, m.viewport.Height = msg.Width, height
		} else {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = 1
			m.ready = true
		}
		m.setContent()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, tea.Batch(append(cmds, cmd)...)
}

func (m *pagerModel) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.search.editing = false
			m.search.query = m.search.input.Value()
			m.search.find(m.wrapped)
			if len(m.search.matches) > 0 {
				m.showMatch()
			}
			return m, nil
		case "esc", "ctrl+c":
			m.search.editing = false
			m.search.reset()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.search.input, cmd = m.search.input.Update(msg)
	return m, cmd
}

// reload re-renders after a file change, keeping the scroll position.
func (m *pagerModel) reload() {
	if m.render == nil {
		return
	}
	content, err := m.render()
	if m.renderErr = err; err != nil {
		return
	}
	offset := m.viewport.YOffset
	m.content = content
	m.setContent()
	if offset <= m.viewport.TotalLineCount()-m.viewport.Height {
		m.viewport.SetYOffset(offset)
	}
}

func (m *pagerModel) setContent() {
	m.wrapped = wrapContent(m.content, m.viewport.Width)
	m.viewport.SetContent(m.wrapped)
	if m.search.query != "" {
		m.search.find(m.wrapped)
	}
}

// showMatch centers the current match on screen where possible.
func (m *pagerModel) showMatch() {
	line := m.search.matches[m.search.current]
	offset := min(line-m.viewport.Height/2, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(max(offset, 0))
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}
	width := m.viewport.Width

	title := pagerTitleStyle.Render(m.title)
	header := title + pagerInfoStyle.Render(strings.Repeat("─", max(0, width-lipgloss.Width(title))))

	if m.search.editing {
		return header + "\n" + m.viewport.View() + "\n" + warnStyle.Render("/") + m.search.input.View()
	}

	var status string
	switch s := m.search; {
	case s.missed:
		status = fmt.Sprintf(" %s │ /: search ", errorStyle.Render("Pattern not found"))
	case len(s.matches) > 0:
		pos := warnStyle.Render(fmt.Sprintf("[%d/%d]", s.current+1, len(s.matches)))
		status = fmt.Sprintf(" %s │ n/N: next/prev │ esc: clear ", pos)
	case m.live && m.renderErr != nil:
		status = fmt.Sprintf(" %s │ q: quit ", errorStyle.Render(truncateContent(m.renderErr.Error(), 60)))
	case m.live:
		status = fmt.Sprintf(" %s │ f: follow │ /: search │ q: quit ", successStyle.Bold(true).Render("● LIVE"))
	default:
		status = " /: search │ g/G: top/bottom │ q: quit "
	}
	pct := fmt.Sprintf(" %3.f%% ", m.viewport.ScrollPercent()*100)
	fill := strings.Repeat("─", max(0, width-lipgloss.Width(status)-lipgloss.Width(pct)))
	footer := pagerHelpStyle.Render(status) + pagerInfoStyle.Render(fill+pct)

	return header + "\n" + m.viewport.View() + "\n" + footer
}

// treeGlyphs are the characters that make up a tree line's prefix.
const treeGlyphs = " │├└─"

// wrapContent wraps each line to width. Continuation lines of a tree row are
// indented to the row's content column so the tree stays readable.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}
	var result []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			result = append(result, line)
			continue
		}

		prefix := treePrefix(line)
		indent := lipgloss.Width(prefix)
		avail := width - indent
		if indent == 0 || avail < 20 {
			result = append(result, strings.Split(wordwrap.String(line, width), "\n")...)
			continue
		}

		wrapped := strings.Split(wordwrap.String(line[len(prefix):], avail), "\n")
		result = append(result, prefix+wrapped[0])
		cont := strings.Repeat(" ", indent)
		for _, w := range wrapped[1:] {
			result = append(result, cont+w)
		}
	}
	return strings.Join(result, "\n")
}

func treePrefix(line string) string {
	end := 0
	for i, r := range line {
		if !strings.ContainsRune(treeGlyphs, r) {
			return line[:i]
		}
		end = i + len(string(r))
	}
	return line[:end]
}
