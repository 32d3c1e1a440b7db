package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"personarag/internal/domain"
	"personarag/internal/service"
)

// ChatPort is the TUI-facing subset of the orchestrator.
type ChatPort interface {
	NewSession(personaID string) (*service.SessionContext, error)
	HandleTurn(ctx context.Context, sess *service.SessionContext, utterance string) (domain.Turn, error)
	Describe(ctx context.Context, personaID string) (string, error)
	Warm(ctx context.Context, personaID string) error
}

const (
	defaultUserAvatar = "🧑"
	defaultBotAvatar  = "🤖"
)

type screen int

const (
	screenPicker screen = iota
	screenChat
)

type entryKind int

const (
	entryUser entryKind = iota
	entryBot
	entryError
)

type entry struct {
	kind entryKind
	text string
}

type replyMsg struct{ turn domain.Turn }

type turnErrMsg struct{ err error }

type warmMsg struct {
	personaID string
	err       error
}

type describeMsg struct {
	personaID string
	summary   string
}

// Model is the Bubble Tea model for the persona chat.
type Model struct {
	ctx      context.Context
	chat     ChatPort
	personas []domain.Persona

	screen  screen
	cursor  int
	persona domain.Persona
	session *service.SessionContext
	summary string

	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	transcript []entry
	busy       bool
	warming    bool
	status     string
	width      int
	ready      bool
}

// New creates the TUI model. With a single persona the picker is skipped.
func New(ctx context.Context, chat ChatPort, personas []domain.Persona) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Say something and press Enter"
	ti.CharLimit = 0
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	m := Model{
		ctx:      ctx,
		chat:     chat,
		personas: personas,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Pick a persona with ↑/↓ and Enter.",
	}
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and turn events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = max(20, msg.Width)
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header + summary, status, spacer
		m.viewport.Width = m.width
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.input.Width = max(10, m.width-6)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case describeMsg:
		if msg.personaID == m.persona.ID {
			m.summary = msg.summary
		}
		return m, nil

	case warmMsg:
		if msg.personaID != m.persona.ID || m.screen != screenChat || !m.warming {
			return m, nil
		}
		m.warming = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Could not prepare %s: %v", m.persona.Name(), msg.err)
		} else if !m.busy {
			m.status = fmt.Sprintf("Chatting with %s. Esc to switch persona.", m.persona.Name())
		}
		return m, nil

	case replyMsg:
		m.busy = false
		m.transcript = append(m.transcript, entry{kind: entryBot, text: msg.turn.Content})
		m.status = ""
		m.input.Focus()
		m.refresh()
		return m, nil

	case turnErrMsg:
		m.busy = false
		m.transcript = append(m.transcript, entry{kind: entryError, text: msg.err.Error()})
		m.status = "Turn failed. Try again."
		m.input.Focus()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.screen == screenPicker {
			return m.updatePicker(msg)
		}
		return m.updateChat(msg)
	}

	if m.screen == screenChat && !m.busy {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.personas) == 0 {
		return m, nil
	}
	switch msg.String() {
	case "down", "j":
		m.cursor = (m.cursor + 1) % len(m.personas)
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(m.personas)) % len(m.personas)
	case "enter":
		return m.selectPersona(m.personas[m.cursor])
	}
	return m, nil
}

// SelectPersona opens a chat with p directly, skipping the picker.
func (m Model) SelectPersona(p domain.Persona) (Model, tea.Cmd) {
	next, cmd := m.selectPersona(p)
	return next.(Model), cmd
}

func (m Model) selectPersona(p domain.Persona) (tea.Model, tea.Cmd) {
	sess, err := m.chat.NewSession(p.ID)
	if err != nil {
		m.status = "Error: " + err.Error()
		return m, nil
	}
	m.screen = screenChat
	m.persona = p
	m.session = sess
	m.summary = p.Description
	m.transcript = nil
	m.warming = true
	m.status = fmt.Sprintf("Loading %s...", p.Name())
	m.input.Reset()
	m.input.Focus()
	m.refresh()
	return m, tea.Batch(textinput.Blink, m.warm(p.ID), m.describe(p.ID))
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.busy {
			return m, nil
		}
		m.screen = screenPicker
		m.session = nil
		m.warming = false
		m.summary = ""
		m.status = "Pick a persona with ↑/↓ and Enter."
		return m, nil
	case tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.transcript = append(m.transcript, entry{kind: entryUser, text: text})
		m.input.Reset()
		m.input.Blur()
		m.busy = true
		m.warming = false
		m.status = ""
		m.refresh()
		return m, tea.Batch(m.spinner.Tick, m.turn(m.session, text))
	case tea.KeyUp, tea.KeyPgUp, tea.KeyDown, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) turn(sess *service.SessionContext, text string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		reply, err := chat.HandleTurn(ctx, sess, text)
		if err != nil {
			return turnErrMsg{err: err}
		}
		return replyMsg{turn: reply}
	}
}

// warm loads the persona's corpus and index before the first turn.
func (m Model) warm(personaID string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		return warmMsg{personaID: personaID, err: chat.Warm(ctx, personaID)}
	}
}

func (m Model) describe(personaID string) tea.Cmd {
	ctx, chat := m.ctx, m.chat
	return func() tea.Msg {
		summary, err := chat.Describe(ctx, personaID)
		if err != nil || strings.TrimSpace(summary) == "" {
			return nil
		}
		return describeMsg{personaID: personaID, summary: summary}
	}
}

// Busy reports whether a turn is in flight.
func (m Model) Busy() bool { return m.busy }

// View renders the picker or the chat transcript.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.screen == screenPicker {
		return m.viewPicker()
	}
	header := headerStyle.Render(m.persona.Name())
	summary := summaryStyle.Render(m.summary)
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + m.persona.Name() + " is typing..."
	}
	return header + "\n" + summary + "\n" + transcriptBoxStyle.Render(m.viewport.View()) + "\n" + input + "\n" + status
}

func (m Model) viewPicker() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Choose a persona"))
	b.WriteString("\n\n")
	if len(m.personas) == 0 {
		b.WriteString("No personas configured.\n")
	}
	for i, p := range m.personas {
		line := fmt.Sprintf("%s %s", avatar(p.BotAvatar, defaultBotAvatar), p.Name())
		if p.Description != "" {
			line += summaryStyle.Render("  " + p.Description)
		}
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> ") + line)
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + statusStyle.Render(m.status))
	return b.String()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return summaryStyle.Render("Say hello to " + m.persona.Name() + ".")
	}
	wrap := lipgloss.NewStyle()
	if m.width > 8 {
		wrap = wrap.Width(m.width - 8)
	}
	lines := make([]string, 0, len(m.transcript))
	for _, e := range m.transcript {
		switch e.kind {
		case entryUser:
			lines = append(lines, wrap.Render(avatar(m.persona.UserAvatar, defaultUserAvatar)+" "+e.text))
		case entryBot:
			lines = append(lines, botStyle.Inherit(wrap).Render(avatar(m.persona.BotAvatar, defaultBotAvatar)+" "+e.text))
		case entryError:
			lines = append(lines, errorStyle.Inherit(wrap).Render("! "+e.text))
		}
	}
	return strings.Join(lines, "\n\n")
}

func avatar(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	summaryStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cursorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
