// Package ui is the terminal front-end. It consumes the coordinator's
// message channel and never reaches into the core packages beyond
// that boundary.
package ui

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/popup-gpt/popup-gpt/pkg/logger"
	"github.com/popup-gpt/popup-gpt/pkg/stream"
)

const framesPerSecond = 30

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1)
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	responseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("60"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// coordinatorMsg wraps a coordinator message for the update loop.
type coordinatorMsg stream.UIMsg

// frameTickMsg drives the character reveal ramp.
type frameTickMsg time.Time

// Model is the bubbletea model for the prompt/response view.
type Model struct {
	coord *stream.Coordinator
	log   logger.Logger

	input   textinput.Model
	spinner spinner.Model

	response  string
	renderLen int // bytes of response currently revealed
	loading   bool
	lastErr   error

	width  int
	height int
}

// New builds the UI around a coordinator.
func New(coord *stream.Coordinator, log logger.Logger) Model {
	if log == nil {
		log = logger.Nop()
	}

	input := textinput.New()
	input.Placeholder = "Ask anything"
	input.Prompt = "> "
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	return Model{
		coord:   coord,
		log:     log,
		input:   input,
		spinner: spin,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		waitForCoordinator(m.coord.Messages()),
		frameTick(),
	)
}

// waitForCoordinator blocks on the coordinator channel off the UI
// loop and resurfaces each message as a tea.Msg.
func waitForCoordinator(ch <-chan stream.UIMsg) tea.Cmd {
	return func() tea.Msg {
		return coordinatorMsg(<-ch)
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(time.Second/framesPerSecond, func(t time.Time) tea.Msg {
		return frameTickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case coordinatorMsg:
		return m.applyCoordinatorMsg(stream.UIMsg(msg)), waitForCoordinator(m.coord.Messages())

	case frameTickMsg:
		if m.renderLen < len(m.response) {
			m.renderLen = advanceRune(m.response, m.renderLen)
		}
		return m, frameTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEnter:
			return m.submit()

		case tea.KeyEsc:
			// Start a new conversation. While a call is in
			// flight the worker holds the client, so the
			// reset waits for the flush instead of blocking
			// the UI loop on the lock.
			if !m.loading {
				m.coord.ClearConversation()
				m.input.SetValue("")
				m.response = ""
				m.renderLen = 0
				m.lastErr = nil
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyCoordinatorMsg applies at most this one message. Partials only
// count while a call is in flight locally; anything arriving after a
// reset is dropped here.
func (m Model) applyCoordinatorMsg(msg stream.UIMsg) Model {
	switch msg.Kind {
	case stream.MsgPartial:
		if !m.loading {
			return m
		}
		if delta, ok := msg.Response.PrimaryDelta(); ok {
			m.response += delta
		}

	case stream.MsgFinal:
		if !m.loading {
			return m
		}
		if content, ok := msg.Response.PrimaryResponse(); ok {
			m.response = content
		}

	case stream.MsgFlush:
		m.loading = false
		m.lastErr = msg.Err
	}
	return m
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if m.loading || question == "" {
		return m, nil
	}

	if err := m.coord.AskStream(context.Background(), question); err != nil {
		if !errors.Is(err, stream.ErrCallInFlight) {
			m.log.Error("failed to start streaming call", "error", err.Error())
			m.lastErr = err
		}
		return m, nil
	}

	m.loading = true
	m.response = ""
	m.renderLen = 0
	m.lastErr = nil

	return m, m.spinner.Tick
}

func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}
	inner := width - 4 // border and padding

	var b strings.Builder
	b.WriteString(promptStyle.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", max(inner, 1))))
	b.WriteString("\n")

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("error: " + m.lastErr.Error()))
	} else {
		shown := m.response[:m.renderLen]
		if m.loading && shown == "" {
			b.WriteString(responseStyle.Render(m.spinner.View()))
		} else {
			b.WriteString(responseStyle.Width(max(inner, 1)).Render(shown))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter send · esc new conversation · ctrl+c quit"))

	return frameStyle.Width(max(inner, 1)).Render(b.String())
}

// advanceRune moves n forward by one rune, never landing inside a
// multi-byte sequence.
func advanceRune(s string, n int) int {
	if n >= len(s) {
		return n
	}
	_, size := utf8.DecodeRuneInString(s[n:])
	return n + size
}
