// Package console is the sequential front end: it prints each turn as it
// is appended and turns the first interrupt signal into a graceful stop
// at the next turn boundary.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/taigrr/colorhash"

	"github.com/w84death/agentic-chat/config"
	"github.com/w84death/agentic-chat/orchestrator"
)

var (
	dimStyle  = lipgloss.NewStyle().Faint(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// Console renders one discussion to out. It never mutates the
// transcript; it only observes events and forwards the interrupt signal.
type Console struct {
	orch   *orchestrator.Orchestrator
	cfg    *config.Config
	out    io.Writer
	styled bool

	botStyles map[string]lipgloss.Style
	lastRound int
}

func New(cfg *config.Config, out io.Writer, styled bool) *Console {
	styles := make(map[string]lipgloss.Style, len(cfg.Bots))
	for _, bot := range cfg.Bots {
		styles[bot.Name] = BotStyle(bot.Name)
	}
	return &Console{cfg: cfg, out: out, styled: styled, botStyles: styles}
}

// BotStyle derives a stable per-name color so each participant keeps the
// same color across sessions.
func BotStyle(name string) lipgloss.Style {
	hash := colorhash.HashString(name)
	c := colorhash.CreateColor(hash)
	hex := fmt.Sprintf("#%02X%02X%02X", c.GetRed(), c.GetGreen(), c.GetBlue())
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(hex))
}

func (c *Console) name(s string) string {
	if style, ok := c.botStyles[s]; ok && c.styled {
		return style.Render(s)
	}
	return s
}

func (c *Console) faint(s string) string {
	if c.styled {
		return dimStyle.Render(s)
	}
	return s
}

// Banner prints the session header and participant list.
func (c *Console) Banner() {
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out, "🎪 AI Round-Table Discussion")
	fmt.Fprintln(c.out, rule)
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Participants:")
	for _, bot := range c.cfg.Bots {
		persona := bot.Personality
		if len(persona) > 50 {
			persona = persona[:50] + "..."
		}
		fmt.Fprintf(c.out, "  🤖 %s (%s) - %s\n", c.name(bot.Name), bot.Model, persona)
	}
	fmt.Fprintln(c.out)
}

// PromptTopic asks the user for the initial discussion topic.
func PromptTopic(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter the discussion topic: ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no topic provided")
	}
	topic := strings.TrimSpace(scanner.Text())
	if topic == "" {
		return "", fmt.Errorf("no topic provided")
	}
	return topic, nil
}

// Run starts the orchestrator and renders its events until the session
// ends. The first interrupt requests a stop at the next turn boundary; a
// second one cancels outright.
func (c *Console) Run(ctx context.Context, orch *orchestrator.Orchestrator) error {
	c.orch = orch

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(c.out, "\nStopping after the current turn... (interrupt again to abort)")
			c.orch.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(c.out, "🎯 Discussion Topic: %s\n", c.orch.Session().Topic)
	fmt.Fprintln(c.out, strings.Repeat("-", 80))
	fmt.Fprintln(c.out)

	errCh := make(chan error, 1)
	go func() { errCh <- c.orch.Run(ctx) }()

	for ev := range c.orch.Events() {
		c.render(ev)
	}
	return <-errCh
}

func (c *Console) render(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventTurnStarted:
		if ev.Round != c.lastRound {
			c.lastRound = ev.Round
			fmt.Fprintf(c.out, "--- Round %d ---\n\n", ev.Round)
		}
		fmt.Fprintf(c.out, "%s\n", c.faint(fmt.Sprintf("🤖 %s is thinking...", ev.Bot)))

	case orchestrator.EventTurnCompleted:
		fmt.Fprintf(c.out, "💬 %s: %s\n", c.name(ev.Turn.Speaker), ev.Turn.Text)
		fmt.Fprintf(c.out, "%s\n\n", c.faint(fmt.Sprintf("   (response time: %.1fs)", ev.Turn.Elapsed.Seconds())))

	case orchestrator.EventTurnSkipped:
		line := fmt.Sprintf("⏭️  %s %s", ev.Bot, ev.Turn.Text)
		if c.styled {
			line = warnStyle.Render(line)
		}
		fmt.Fprintf(c.out, "%s\n\n", line)

	case orchestrator.EventTopicUpdated:
		fmt.Fprintf(c.out, "📝 Topic update: %s\n\n", ev.Message)

	case orchestrator.EventLogError:
		line := fmt.Sprintf("⚠️  session log write failed: %v (discussion continues in memory)", ev.Err)
		if c.styled {
			line = errStyle.Render(line)
		}
		fmt.Fprintf(c.out, "%s\n", line)

	case orchestrator.EventSessionEnded:
		fmt.Fprintln(c.out, strings.Repeat("-", 80))
		if ev.Err != nil {
			fmt.Fprintf(c.out, "🏁 Discussion ended with error: %v\n", ev.Err)
		} else {
			fmt.Fprintln(c.out, "🏁 Discussion completed!")
		}
		fmt.Fprintf(c.out, "💾 Chat log saved to: %s\n", c.orch.Session().Path())
	}
}
