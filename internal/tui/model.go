package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

// Session is the TUI-facing subset of the question-answering service.
type Session interface {
	Ask(ctx context.Context, query string) (*service.Answer, error)
	Ingest(ctx context.Context, folder string) (*service.IngestReport, error)
	Clear(ctx context.Context) error
	Folder() string
}

type turn struct {
	question string
	answer   string
	failed   bool
}

type answerMsg struct {
	question string
	answer   *service.Answer
	err      error
}

type ingestMsg struct {
	report *service.IngestReport
	err    error
}

type clearMsg struct{ err error }

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	ctx      context.Context
	session  Session
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	sources  []domain.SearchResult
	cursor   int
	summary  string
	status   string
	busy     bool
	ready    bool
	lastQ    string
}

// New creates the chat model. summary is shown under the header.
func New(ctx context.Context, session Session, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, /ingest <folder>, /clear or /quit"
	ti.Focus()
	ti.CharLimit = 0
	status := "Type /ingest <folder> to load documents."
	if session.Folder() != "" {
		status = "Ready: " + session.Folder()
	}
	return Model{
		ctx:      ctx,
		session:  session,
		input:    ti,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   status,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		_, sh := sourceBoxStyle.GetFrameSize()
		reserved := 3 + qh + sh + sourceLines + 1 // header, summary, status
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.turns = append(m.turns, turn{question: msg.question, answer: msg.err.Error(), failed: true})
			m.status = "Error: " + string(domain.KindOf(msg.err))
		} else {
			m.turns = append(m.turns, turn{question: msg.question, answer: msg.answer.Text})
			m.sources = msg.answer.Sources
			m.cursor = 0
			m.lastQ = msg.question
			m.status = fmt.Sprintf("%d source(s)", len(m.sources))
			if msg.answer.Cached {
				m.status += ", cached"
			}
		}
		m.refresh()
		return m, nil

	case ingestMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Ingest failed: " + msg.err.Error()
			return m, nil
		}
		m.summary = msg.report.Summary
		m.sources = nil
		m.status = fmt.Sprintf("Ingested %s: %d documents, %d chunks, %d skipped",
			msg.report.Folder, msg.report.Documents, msg.report.Chunks, len(msg.report.Skipped))
		m.refresh()
		return m, nil

	case clearMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Clear failed: " + msg.err.Error()
			return m, nil
		}
		m.summary = ""
		m.sources = nil
		m.status = "Cleared. Type /ingest <folder> to load documents."
		m.refresh()
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
			m.input.SetValue("")
			return m.submit(line)
		case "tab":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				return m, nil
			}
		case "shift+tab":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				return m, nil
			}
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/ingest":
		folder := strings.TrimSpace(arg)
		if folder == "" {
			m.status = "Usage: /ingest <folder>"
			return m, nil
		}
		m.busy = true
		m.status = "Ingesting " + folder + "..."
		return m, func() tea.Msg {
			report, err := m.session.Ingest(m.ctx, folder)
			return ingestMsg{report: report, err: err}
		}
	case "/clear":
		m.busy = true
		return m, func() tea.Msg { return clearMsg{err: m.session.Clear(m.ctx)} }
	}
	// blank lines still go through Ask, which answers with the usual hint
	m.busy = true
	m.status = "Thinking..."
	return m, func() tea.Msg {
		ans, err := m.session.Ask(m.ctx, line)
		return answerMsg{question: line, answer: ans, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ragchat")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	transcript := transcriptStyle.Render(m.viewport.View())
	source := sourceBoxStyle.Width(max(20, m.viewport.Width-2)).Render(m.renderSource())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + source + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + t.question))
		b.WriteString("\n")
		if t.failed {
			b.WriteString(errorStyle.Render(t.answer))
		} else {
			b.WriteString(t.answer)
		}
	}
	return b.String()
}

func (m Model) renderSource() string {
	if len(m.sources) == 0 {
		return "No sources."
	}
	r := m.sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d  %s  score=%.3f  (tab to cycle)", m.cursor+1, len(m.sources), r.Chunk.Source, r.Score)
	body := highlightBestSentence(r.Chunk.Text, m.lastQ)
	lines := strings.Split(body, "\n")
	if len(lines) > sourceLines-1 {
		lines = append(lines[:sourceLines-2], "...")
	}
	return title + "\n" + strings.Join(lines, "\n")
}

const sourceLines = 6

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sourceBoxStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe   = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe      = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasizes the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlap(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range toTokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
