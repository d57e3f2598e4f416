package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"certrag/internal/domain"
)

// RetrievalPort is the TUI-facing subset of the RAG service.
type RetrievalPort interface {
	GetContextForQuery(ctx context.Context, query, certificationCode string) domain.RetrievalResult
}

const queryTimeout = 30 * time.Second

type resultMsg struct {
	query  string
	result domain.RetrievalResult
}

// Model is the Bubble Tea model of the retrieval console.
type Model struct {
	service   RetrievalPort
	input     textinput.Model
	viewport  viewport.Model
	result    domain.RetrievalResult
	cert      string
	status    string
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a console scoped to certificationCode ("" searches everything).
func New(service RetrievalPort, certificationCode string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, /cert CODE to scope, /quit to leave"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		input:    ti,
		viewport: vp,
		cert:     certificationCode,
		status:   "Ready. Type a question.",
		result:   domain.EmptyResult(),
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 3 + qh + 1 // header, scope, status + spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderResult())
		return m, nil

	case resultMsg:
		m.busy = false
		m.result = msg.result
		m.lastQuery = msg.query
		if msg.result.RetrievalSuccessful {
			m.status = fmt.Sprintf("%d source(s) for %q", len(msg.result.Sources), msg.query)
		} else {
			m.status = fmt.Sprintf("No relevant context for %q", msg.query)
		}
		m.viewport.SetContent(m.renderResult())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			return m.handleLine(line)
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleLine(line string) (tea.Model, tea.Cmd) {
	if strings.HasPrefix(line, "/") {
		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit", "/exit":
			return m, tea.Quit
		case "/cert":
			if len(fields) > 1 {
				m.cert = fields[1]
				m.status = "Scoped to " + m.cert
			} else {
				m.cert = ""
				m.status = "Searching all certifications"
			}
		default:
			m.status = "Unknown command " + fields[0]
		}
		return m, nil
	}

	m.busy = true
	m.status = "Searching..."
	svc, cert := m.service, m.cert
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		return resultMsg{query: line, result: svc.GetContextForQuery(ctx, line, cert)}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Certification Syllabus Search")
	scope := "all certifications"
	if m.cert != "" {
		scope = m.cert
	}
	scopeLine := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("scope: " + scope)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + scopeLine + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderResult() string {
	if !m.result.RetrievalSuccessful {
		return "No results yet."
	}
	var b strings.Builder
	b.WriteString("Sources:\n")
	for i, s := range m.result.Sources {
		fmt.Fprintf(&b, "  [%d] %s (%s, %s)\n", i+1, s.Title, s.CertificationCode, s.DocumentType)
	}
	b.WriteString("\n")
	b.WriteString(highlightBestSentence(m.result.Context, m.lastQuery))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx, bestScore := 0, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestScore == 0 {
		return text
	}
	best := strings.TrimSpace(sentences[bestIdx])
	return strings.Replace(text, best, highlightStyle.Render(best), 1)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
