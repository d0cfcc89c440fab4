package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	session "github.com/parley-voice/parley-core/core"
	"github.com/parley-voice/parley-core/core/guardrails"
	"github.com/parley-voice/parley-core/core/transcript"
)

type sessionUpdatedMsg struct{}

type sessionErrMsg struct{ err error }

type theme struct {
	header     lipgloss.Style
	statusUp   lipgloss.Style
	statusMid  lipgloss.Style
	statusDown lipgloss.Style
	user       lipgloss.Style
	agent      lipgloss.Style
	breadcrumb lipgloss.Style
	tripped    lipgloss.Style
	eventIn    lipgloss.Style
	eventOut   lipgloss.Style
	help       lipgloss.Style
	errLine    lipgloss.Style
	inputPanel lipgloss.Style
}

func newTheme() theme {
	mint := lipgloss.Color("#05ffa1")
	blue := lipgloss.Color("#01cdfe")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#6f6f8f")

	return theme{
		header:     lipgloss.NewStyle().Bold(true),
		statusUp:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		statusMid:  lipgloss.NewStyle().Foreground(blue).Bold(true),
		statusDown: lipgloss.NewStyle().Foreground(muted).Bold(true),
		user:       lipgloss.NewStyle().Foreground(mint).Bold(true),
		agent:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		breadcrumb: lipgloss.NewStyle().Foreground(muted),
		tripped:    lipgloss.NewStyle().Foreground(pink).Bold(true),
		eventIn:    lipgloss.NewStyle().Foreground(blue),
		eventOut:   lipgloss.NewStyle().Foreground(mint),
		help:       lipgloss.NewStyle().Foreground(muted),
		errLine:    lipgloss.NewStyle().Foreground(pink),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
	}
}

type model struct {
	sess *session.Session
	cfg  appConfig

	selectedSet   string
	selectedAgent string

	input      textinput.Model
	transcript viewport.Model
	events     viewport.Model
	spinner    spinner.Model

	width  int
	height int

	showEvents bool
	lastErr    string

	theme theme
}

func newModel(sess *session.Session, cfg appConfig) model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Type a message, ctrl+t to connect"
	input.CharLimit = 2000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points

	return model{
		sess:          sess,
		cfg:           cfg,
		selectedSet:   cfg.setKey,
		selectedAgent: cfg.agentName,
		input:         input,
		transcript:    viewport.New(0, 0),
		events:        viewport.New(0, 0),
		spinner:       sp,
		theme:         newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case sessionUpdatedMsg:
		m.selectedAgent = m.sess.ActiveAgentName()
		if key := m.sess.ActiveSet().Key; key != "" {
			m.selectedSet = key
		}
		m.renderPanes()

	case sessionErrMsg:
		m.lastErr = msg.err.Error()
		m.renderPanes()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.sess.SendUserText(text)
				m.input.SetValue("")
			}
			return m, nil

		case "ctrl+t":
			m.lastErr = ""
			m.sess.ToggleConnection()
			return m, nil

		case "ctrl+v":
			m.sess.SetPushToTalk(!m.sess.PushToTalk())
			return m, nil

		case "tab":
			if !m.sess.PushToTalk() {
				return m, nil
			}
			if m.sess.IsTalking() {
				m.sess.ReleaseTalk()
			} else {
				m.sess.PressTalk()
			}
			return m, nil

		case "ctrl+p":
			m.sess.SetPlaybackEnabled(!m.sess.PlaybackEnabled())
			return m, nil

		case "ctrl+e":
			m.showEvents = !m.showEvents
			m.resize()
			m.renderPanes()
			return m, nil

		case "ctrl+n":
			m.cycleAgent()
			return m, nil

		case "ctrl+s":
			m.cycleSet()
			return m, nil

		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			cmds = append(cmds, cmd)
			return m, tea.Batch(cmds...)
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) cycleAgent() {
	set, err := m.sess.Registry().Set(m.selectedSet)
	if err != nil || len(set.Agents) == 0 {
		return
	}

	next := set.Agents[0].Name
	for i, agent := range set.Agents {
		if agent.Name == m.selectedAgent {
			next = set.Agents[(i+1)%len(set.Agents)].Name
			break
		}
	}

	wasActive := m.sess.Status().IsActive()
	m.selectedAgent = next
	m.sess.SelectAgent(next)
	if wasActive {
		m.sess.ToggleConnection()
	}
}

func (m *model) cycleSet() {
	keys := m.sess.Registry().Keys()
	if len(keys) == 0 {
		return
	}

	next := keys[0]
	for i, key := range keys {
		if key == m.selectedSet {
			next = keys[(i+1)%len(keys)]
			break
		}
	}

	wasActive := m.sess.Status().IsActive()
	m.selectedSet = next
	m.selectedAgent = ""
	m.sess.SelectSet(next)
	if wasActive {
		m.sess.ToggleConnection()
	}
	m.renderPanes()
}

func (m *model) resize() {
	inputHeight := 3
	chromeHeight := 2 + inputHeight + 1
	paneHeight := max(m.height-chromeHeight, 3)

	if m.showEvents {
		transcriptWidth := m.width * 2 / 3
		m.transcript.Width = transcriptWidth
		m.events.Width = max(m.width-transcriptWidth-1, 10)
	} else {
		m.transcript.Width = m.width
		m.events.Width = 0
	}
	m.transcript.Height = paneHeight
	m.events.Height = paneHeight
	m.input.Width = max(m.width-6, 10)
}

func (m *model) renderPanes() {
	m.transcript.SetContent(m.renderTranscript())
	m.transcript.GotoBottom()
	if m.showEvents {
		m.events.SetContent(m.renderEvents())
		m.events.GotoBottom()
	}
}

func (m *model) renderTranscript() string {
	width := max(m.transcript.Width-2, 20)
	lines := []string{}

	for _, item := range m.sess.Recorder().Items() {
		if item.Hidden {
			continue
		}

		switch item.Kind {
		case transcript.KindMessage:
			label := m.theme.user.Render("you")
			if item.Role == transcript.RoleAgent {
				label = m.theme.agent.Render("agent")
			}

			text := item.Title
			if item.Status == transcript.StatusInProgress {
				text += "…"
			}
			line := label + " " + text
			if item.Guardrail != nil && item.Guardrail.Status == guardrails.StatusFail {
				line += " " + m.theme.tripped.Render("[moderated: "+string(item.Guardrail.Category)+"]")
			}
			lines = append(lines, wordwrap.String(line, width))

		case transcript.KindBreadcrumb:
			lines = append(lines, m.theme.breadcrumb.Render("· "+item.Title))
			if item.Expanded && item.Data != nil {
				if payload, err := json.MarshalIndent(item.Data, "  ", "  "); err == nil {
					lines = append(lines, m.theme.breadcrumb.Render("  "+string(payload)))
				}
			}
		}
	}

	if len(lines) == 0 {
		return m.theme.help.Render("No conversation yet.")
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderEvents() string {
	lines := []string{}
	for _, event := range m.sess.Recorder().Events() {
		prefix := m.theme.eventIn.Render("<-")
		if event.Direction == transcript.DirectionClient {
			prefix = m.theme.eventOut.Render("->")
		}
		lines = append(lines, fmt.Sprintf("%s %s", prefix, event.EventName))
	}

	if len(lines) == 0 {
		return m.theme.help.Render("No events yet.")
	}
	return strings.Join(lines, "\n")
}

func (m model) View() string {
	if m.width == 0 {
		return "starting..."
	}

	status := m.sess.Status()
	var statusText string
	switch status {
	case session.StatusConnected:
		statusText = m.theme.statusUp.Render("CONNECTED")
	case session.StatusConnecting:
		statusText = m.theme.statusMid.Render(m.spinner.View() + " CONNECTING")
	default:
		statusText = m.theme.statusDown.Render("DISCONNECTED")
	}

	mode := "vad"
	if m.sess.PushToTalk() {
		mode = "push-to-talk"
		if m.sess.IsTalking() {
			mode = "push-to-talk (talking)"
		}
	}
	audio := "on"
	if !m.sess.PlaybackEnabled() {
		audio = "off"
	}

	agent := m.selectedAgent
	if agent == "" {
		agent = "(default)"
	}
	header := m.theme.header.Render("parley") + "  " + statusText +
		m.theme.help.Render(fmt.Sprintf("  set=%s agent=%s mode=%s audio=%s", m.selectedSet, agent, mode, audio))

	panes := m.transcript.View()
	if m.showEvents {
		panes = lipgloss.JoinHorizontal(lipgloss.Top, m.transcript.View(), " ", m.events.View())
	}

	statusLine := ""
	if m.lastErr != "" {
		statusLine = m.theme.errLine.Render("error: " + m.lastErr)
	}

	help := m.theme.help.Render(
		"ctrl+t connect · ctrl+v talk mode · tab talk · ctrl+p audio · ctrl+n agent · ctrl+s set · ctrl+e events · ctrl+c quit",
	)

	return strings.Join([]string{
		header,
		statusLine,
		panes,
		m.theme.inputPanel.Render(m.input.View()),
		help,
	}, "\n")
}
