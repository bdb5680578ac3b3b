package tui

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"termsearch/internal/domain"
)

// contextBytes is how much surrounding source text is shown on each side of a hit.
const contextBytes = 240

// EnginePort is the TUI-facing subset of the search engine.
type EnginePort interface {
	BuildFromFile(ctx context.Context, pattern string) error
	ProcessText(ctx context.Context, text string) error
	Search(ctx context.Context, query string, k int) ([]domain.Hit, error)
	Overview(maxSections int) string
	OriginalText() string
	Ready() bool
}

// Options tunes the model.
type Options struct {
	TopK        int
	MaxOverview int
}

type buildDoneMsg struct {
	label string
	err   error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	engine   EnginePort
	opts     Options
	input    textinput.Model
	viewport viewport.Model
	results  []domain.Hit
	source   string // text the current results point into
	summary  string
	status   string
	cursor   int
	ready    bool
	busy     bool
}

// New creates a new TUI model instance.
func New(engine EnginePort, opts Options) Model {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a query, /open <path> or /text <text>"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	status := "Type to search."
	if !engine.Ready() {
		status = "No index. Use /open <path> or /text <text>."
	}
	return Model{
		engine:   engine,
		opts:     opts,
		input:    ti,
		viewport: vp,
		summary:  engine.Overview(opts.MaxOverview),
		status:   status,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case buildDoneMsg:
		m.busy = false
		m.results = nil
		m.cursor = 0
		if msg.err != nil {
			m.status = "Build failed: " + msg.err.Error()
		} else {
			m.status = "Indexed " + msg.label + ". Type to search."
		}
		m.summary = m.engine.Overview(m.opts.MaxOverview)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.SetValue("")
			return m.submit(line)
		case "down":
			if m.busy {
				return m, nil
			}
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if m.busy {
				return m, nil
			}
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/open":
		if arg == "" {
			m.status = "Usage: /open <path or glob>"
			return m, nil
		}
		m.busy = true
		m.status = "Indexing " + arg + "..."
		engine := m.engine
		return m, func() tea.Msg {
			return buildDoneMsg{label: arg, err: engine.BuildFromFile(context.Background(), arg)}
		}
	case "/text":
		if arg == "" {
			m.status = "Usage: /text <text>"
			return m, nil
		}
		m.busy = true
		m.status = "Indexing text..."
		engine := m.engine
		// the input is single-line; a literal \n starts a new line
		text := strings.ReplaceAll(arg, `\n`, "\n")
		return m, func() tea.Msg {
			return buildDoneMsg{label: "text", err: engine.ProcessText(context.Background(), text)}
		}
	}

	res, err := m.engine.Search(context.Background(), line, m.opts.TopK)
	if err != nil {
		m.status = "Error: " + err.Error()
		m.results = nil
	} else {
		m.status = fmt.Sprintf("%d result(s) for %q", len(res), line)
		m.results = res
		m.source = m.engine.OriginalText()
	}
	m.cursor = 0
	m.viewport.SetContent(m.renderCurrentResult())
	return m, nil
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Terms Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	h := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s  score=%.3f  [%d:%d]",
		m.cursor+1, len(m.results), titleStyle.Render(h.Section.Title), h.Score, h.Section.StartIdx, h.Section.EndIdx)
	return title + "\n\n" + highlightSpan(m.source, h.Section)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

// highlightSpan shows the section's span inside its surrounding source text.
// It falls back to the section content when the span does not fit the text.
func highlightSpan(text string, sec domain.Section) string {
	start, end := sec.StartIdx, sec.EndIdx
	if start < 0 || end > len(text) || start >= end {
		return highlightStyle.Render(sec.Content)
	}
	from := start - contextBytes
	if from < 0 {
		from = 0
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := end + contextBytes
	if to > len(text) {
		to = len(text)
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	var b strings.Builder
	if from > 0 {
		b.WriteString("...")
	}
	b.WriteString(text[from:start])
	b.WriteString(highlightStyle.Render(text[start:end]))
	b.WriteString(text[end:to])
	if to < len(text) {
		b.WriteString("...")
	}
	return b.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
