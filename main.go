package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/w84death/agentic-chat/client"
	"github.com/w84death/agentic-chat/config"
	"github.com/w84death/agentic-chat/console"
	"github.com/w84death/agentic-chat/orchestrator"
	"github.com/w84death/agentic-chat/session"
	"github.com/w84death/agentic-chat/transcript"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the bot configuration file")
	useTUI := flag.Bool("tui", false, "run the interactive terminal UI")
	topic := flag.String("topic", "", "discussion topic (skips the interactive prompt)")
	logDir := flag.String("logs", "", "directory for session logs (overrides config)")
	replayPath := flag.String("replay", "", "print a saved session log and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Optional; local inference servers rarely need credentials.
	_ = godotenv.Load()

	if *replayPath != "" {
		if err := replaySession(*replayPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *logDir != "" {
		cfg.LogDir = *logDir
	}

	logger := newLogger(*useTUI, *debug, cfg.LogDir)
	cl := client.New(logger)

	if *useTUI {
		p := tea.NewProgram(
			newModel(cfg, cl, logger, cfg.LogDir, *topic),
			tea.WithAltScreen(),
		)
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runConsole(cfg, cl, logger, *topic); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("AGENTIC_CHAT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// newLogger sends key-value logs to stderr for the console front end. The
// TUI owns the terminal, so its logs go to a file instead.
func newLogger(tui, debug bool, logDir string) *log.Logger {
	var out io.Writer = os.Stderr
	if tui {
		out = io.Discard
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			if f, err := os.OpenFile(filepath.Join(logDir, "agentic-chat.log"),
				os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				out = f
			}
		}
	}
	logger := log.NewWithOptions(out, log.Options{ReportTimestamp: true})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func runConsole(cfg *config.Config, cl client.Client, logger *log.Logger, topic string) error {
	styled := os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	c := console.New(cfg, os.Stdout, styled)
	c.Banner()

	if topic == "" {
		var err error
		topic, err = console.PromptTopic(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
	}

	sess, err := session.New(cfg.LogDir, topic)
	if err != nil {
		return err
	}
	store := transcript.NewStore(sess)
	orch := orchestrator.New(cfg, cl, store, sess, logger)

	return c.Run(context.Background(), orch)
}

func replaySession(path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	turns, err := transcript.Replay(f)
	if err != nil {
		return fmt.Errorf("replay session log: %w", err)
	}
	for _, t := range turns {
		fmt.Fprint(out, transcript.FormatBlock(t))
	}
	fmt.Fprintf(out, "%d turns replayed from %s\n", len(turns), path)
	return nil
}
