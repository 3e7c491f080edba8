package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/w84death/agentic-chat/client"
	"github.com/w84death/agentic-chat/config"
	"github.com/w84death/agentic-chat/console"
	"github.com/w84death/agentic-chat/orchestrator"
	"github.com/w84death/agentic-chat/session"
	"github.com/w84death/agentic-chat/transcript"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	topicStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06B6D4")).
			Bold(true)

	faintStyle = lipgloss.NewStyle().Faint(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	skipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24"))

	statusErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)
)

type phase int

const (
	phaseTopic phase = iota
	phaseChat
	phaseDone
)

// model is the bubbletea state for the interactive front end.
type model struct {
	cfg    *config.Config
	cl     client.Client
	logger *log.Logger
	logDir string

	phase      phase
	input      textinput.Model
	spin       spinner.Model
	viewport   viewport.Model
	ready      bool
	width      int
	renderer   *glamour.TermRenderer
	autoScroll bool

	orch   *orchestrator.Orchestrator
	events <-chan orchestrator.Event

	blocks   []string
	thinking string
	paused   bool
	quitting bool
	status   string
	err      error

	initialTopic string
}

type orchEventMsg struct {
	ev orchestrator.Event
}

type eventsClosedMsg struct{}

type startTopicMsg string

func newModel(cfg *config.Config, cl client.Client, logger *log.Logger, logDir, topic string) model {
	in := textinput.New()
	in.Placeholder = "Enter discussion topic and press Enter..."
	in.CharLimit = 512
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED"))

	return model{
		cfg:          cfg,
		cl:           cl,
		logger:       logger,
		logDir:       logDir,
		phase:        phaseTopic,
		input:        in,
		spin:         sp,
		autoScroll:   true,
		status:       "Ready",
		initialTopic: strings.TrimSpace(topic),
	}
}

func (m model) Init() tea.Cmd {
	if m.initialTopic != "" {
		topic := m.initialTopic
		return func() tea.Msg { return startTopicMsg(topic) }
	}
	return textinput.Blink
}

// waitEvent hands the next orchestrator event to Update, re-armed after
// every message.
func waitEvent(ch <-chan orchestrator.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return orchEventMsg{ev: ev}
	}
}

func (m model) startDiscussion(topic string) (model, tea.Cmd) {
	sess, err := session.New(m.logDir, topic)
	if err != nil {
		m.err = err
		m.phase = phaseDone
		return m, tea.Quit
	}
	store := transcript.NewStore(sess)
	m.orch = orchestrator.New(m.cfg, m.cl, store, sess, m.logger)
	m.events = m.orch.Events()
	go m.orch.Run(context.Background())

	m.phase = phaseChat
	m.input.Blur()
	m.input.Reset()
	m.status = "Discussion in progress"
	m.appendBlock(topicStyle.Render("🎯 Discussion Topic: " + topic))
	m.appendBlock(m.participantsBlock())
	m.refreshViewport()
	return m, tea.Batch(m.spin.Tick, waitEvent(m.events))
}

func (m model) participantsBlock() string {
	var b strings.Builder
	b.WriteString("Participants:\n")
	for _, bot := range m.cfg.Bots {
		persona := bot.Personality
		if len(persona) > 50 {
			persona = persona[:50] + "..."
		}
		fmt.Fprintf(&b, "  🤖 %s (%s) - %s\n", console.BotStyle(bot.Name).Render(bot.Name), bot.Model, persona)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) appendBlock(block string) {
	m.blocks = append(m.blocks, block+"\n")
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.blocks, "\n"))
	if m.autoScroll {
		m.viewport.GotoBottom()
	}
}

// renderMarkdown runs a bot reply through glamour, falling back to the
// raw text when rendering fails.
func (m *model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	rendered, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(rendered, "\n")
}

func (m *model) handleEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventStateChanged:
		m.paused = ev.State == orchestrator.Paused
		switch ev.State {
		case orchestrator.Paused:
			m.status = "Paused. Press 'p' to resume, 'u' to steer the topic"
			m.appendBlock(pausedStyle.Render("⏸  Discussion paused"))
		case orchestrator.Running:
			m.status = "Discussion in progress"
		case orchestrator.Stopping:
			m.status = "Stopping..."
		}

	case orchestrator.EventTurnStarted:
		m.thinking = ev.Bot

	case orchestrator.EventTurnCompleted:
		m.thinking = ""
		header := fmt.Sprintf("%s %s",
			faintStyle.Render(ev.Turn.Timestamp.Format("15:04:05")),
			console.BotStyle(ev.Turn.Speaker).Render(ev.Turn.Speaker+":"))
		body := m.renderMarkdown(ev.Turn.Text)
		latency := faintStyle.Render(fmt.Sprintf("   (response time: %.1fs)", ev.Turn.Elapsed.Seconds()))
		m.appendBlock(header + "\n" + body + "\n" + latency)

	case orchestrator.EventTurnSkipped:
		m.thinking = ""
		m.appendBlock(skipStyle.Render(fmt.Sprintf("⏭  %s %s", ev.Bot, ev.Turn.Text)))

	case orchestrator.EventTopicUpdated:
		m.appendBlock(topicStyle.Render("📝 Topic update: " + ev.Message))

	case orchestrator.EventLogError:
		m.status = fmt.Sprintf("Log write failed: %v (continuing in memory)", ev.Err)

	case orchestrator.EventSessionEnded:
		m.phase = phaseDone
		m.thinking = ""
		if ev.Err != nil {
			m.err = ev.Err
			m.appendBlock(statusErrStyle.Render(fmt.Sprintf("⏹  Discussion ended with error: %v", ev.Err)))
		} else {
			m.appendBlock("⏹  Discussion ended")
		}
		m.appendBlock(faintStyle.Render("💾 Chat log saved to: " + m.orch.Session().Path()))
		m.status = "Session ended. Press 'q' to quit"
	}
	m.refreshViewport()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		headerHeight := 2
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-4),
		); err == nil {
			m.renderer = r
		}
		m.refreshViewport()

	case startTopicMsg:
		return m.startDiscussion(string(msg))

	case tea.KeyMsg:
		switch m.phase {
		case phaseTopic:
			switch msg.String() {
			case "ctrl+c", "esc":
				return m, tea.Quit
			case "enter":
				topic := strings.TrimSpace(m.input.Value())
				if topic == "" {
					m.status = "Please enter a topic first"
					return m, nil
				}
				return m.startDiscussion(topic)
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				return m, cmd
			}

		case phaseChat:
			if m.input.Focused() {
				switch msg.String() {
				case "enter":
					update := strings.TrimSpace(m.input.Value())
					if update != "" {
						m.orch.UpdateTopic(update)
					}
					m.input.Blur()
					m.input.Reset()
					return m, nil
				case "esc":
					m.input.Blur()
					m.input.Reset()
					return m, nil
				default:
					var cmd tea.Cmd
					m.input, cmd = m.input.Update(msg)
					return m, cmd
				}
			}
			switch msg.String() {
			case "q", "ctrl+c":
				m.quitting = true
				m.status = "Stopping after the current turn..."
				m.orch.Stop()
			case "p":
				if m.paused {
					m.orch.Resume()
				} else {
					m.orch.Pause()
				}
			case "u":
				if m.paused {
					m.input.Placeholder = "Add a topic direction and press Enter..."
					cmds = append(cmds, m.input.Focus())
				}
			case "s":
				m.autoScroll = !m.autoScroll
				if m.autoScroll {
					m.status = "Auto-scroll: on"
					m.viewport.GotoBottom()
				} else {
					m.status = "Auto-scroll: off"
				}
			default:
				var cmd tea.Cmd
				m.viewport, cmd = m.viewport.Update(msg)
				cmds = append(cmds, cmd)
			}

		case phaseDone:
			switch msg.String() {
			case "q", "ctrl+c", "enter", "esc":
				return m, tea.Quit
			default:
				var cmd tea.Cmd
				m.viewport, cmd = m.viewport.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case spinner.TickMsg:
		if m.thinking != "" {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}

	case orchEventMsg:
		m.handleEvent(msg.ev)
		cmds = append(cmds, waitEvent(m.events))
		if m.thinking != "" {
			cmds = append(cmds, m.spin.Tick)
		}

	case eventsClosedMsg:
		// A natural session end keeps the transcript on screen; only a
		// user-requested stop quits once the stream drains.
		if m.quitting {
			return m, tea.Quit
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	// A failed session setup never reaches the discussion view.
	if m.orch == nil && m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	switch m.phase {
	case phaseTopic:
		var b strings.Builder
		b.WriteString("\n" + titleStyle.Render("🎪 AI Round-Table Discussion") + "\n\n")
		b.WriteString("Enter a topic for the participants to discuss:\n\n")
		b.WriteString(inputStyle.Render(m.input.View()) + "\n\n")
		if m.status != "Ready" {
			b.WriteString(m.status + "\n\n")
		}
		b.WriteString(faintStyle.Render("enter: start • esc: quit") + "\n")
		return b.String()

	default:
		if !m.ready {
			return "\nInitializing...\n"
		}
		header := titleStyle.Render("🎪 AI Round-Table") + " " +
			topicStyle.Render(m.orch.Session().Topic)

		var status string
		if m.thinking != "" {
			status = fmt.Sprintf("%s %s is thinking...", m.spin.View(), m.thinking)
		} else {
			status = m.status
		}
		statusLine := faintStyle.Render(fmt.Sprintf("Session %s • %s", m.orch.Session().ID, status))

		footer := faintStyle.Render("q: quit • p: pause/resume • u: topic update • s: auto-scroll • ↑/↓: scroll")
		if m.input.Focused() {
			footer = inputStyle.Render(m.input.View())
		}

		return header + "\n" + m.viewport.View() + "\n" + statusLine + "\n" + footer
	}
}
