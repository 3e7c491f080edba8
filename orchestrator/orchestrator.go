// Package orchestrator drives the round-table loop: fixed round-robin
// turn order, one inference call in flight at a time, pause/resume and
// topic injection at turn boundaries, and stop conditions (round limit,
// user stop, unrecoverable log failure).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/w84death/agentic-chat/client"
	"github.com/w84death/agentic-chat/config"
	"github.com/w84death/agentic-chat/session"
	"github.com/w84death/agentic-chat/transcript"
)

// State is the orchestrator lifecycle. Idle → Running ⇄ Paused;
// Running → Stopping → Stopped.
type State int32

const (
	Idle State = iota
	Running
	Paused
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type EventType int

const (
	EventStateChanged EventType = iota
	EventTurnStarted
	EventTurnCompleted
	EventTurnSkipped
	EventTopicUpdated
	EventLogError
	EventSessionEnded
)

// Event is what the presentation layer observes. Turn is set for
// completed and skipped turns, Err for failures, Message for topic
// updates.
type Event struct {
	Type    EventType
	State   State
	Round   int
	Bot     string
	Turn    *transcript.Turn
	Message string
	Err     error
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdStop
	cmdTopic
)

type command struct {
	kind commandKind
	text string
}

// After this many consecutive log-write failures the session stops
// rather than silently losing data.
const maxLogFailures = 3

const defaultRetryBackoff = 2 * time.Second

// Orchestrator owns the transcript store and session for one discussion.
// Run drives the loop; Pause, Resume, Stop and UpdateTopic enqueue
// commands that take effect at the next turn boundary; an in-flight
// call always finishes and is appended first.
type Orchestrator struct {
	cfg    *config.Config
	client client.Client
	store  *transcript.Store
	sess   *session.Session
	logger *log.Logger

	commands chan command
	events   chan Event
	state    atomic.Int32

	turnDelay    time.Duration
	retryBackoff time.Duration
}

func New(cfg *config.Config, cl client.Client, store *transcript.Store, sess *session.Session, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	o := &Orchestrator{
		cfg:          cfg,
		client:       cl,
		store:        store,
		sess:         sess,
		logger:       logger,
		commands:     make(chan command, 16),
		events:       make(chan Event, 128),
		turnDelay:    cfg.TurnDelay(),
		retryBackoff: defaultRetryBackoff,
	}
	o.state.Store(int32(Idle))
	return o
}

// Events is the stream the presentation layer consumes. It is closed
// when the session ends; consumers must drain it until then.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// State reports the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Store exposes the transcript for read-only observers.
func (o *Orchestrator) Store() *transcript.Store { return o.store }

// Session exposes the session identity for observers.
func (o *Orchestrator) Session() *session.Session { return o.sess }

func (o *Orchestrator) Pause()  { o.send(command{kind: cmdPause}) }
func (o *Orchestrator) Resume() { o.send(command{kind: cmdResume}) }
func (o *Orchestrator) Stop()   { o.send(command{kind: cmdStop}) }

// UpdateTopic injects an additional topic direction. It becomes part of
// the context of every subsequent inference call; past turns are never
// altered.
func (o *Orchestrator) UpdateTopic(text string) { o.send(command{kind: cmdTopic, text: text}) }

func (o *Orchestrator) send(cmd command) {
	select {
	case o.commands <- cmd:
	default:
		o.logger.Warn("command queue full, dropping command")
	}
}

// Run executes the discussion loop until a stop condition and closes the
// session log on every exit path. It blocks; run it in its own goroutine
// when a front end needs to stay responsive.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.events)

	o.setState(Running)
	o.logger.Info("discussion started",
		"session", o.sess.ID,
		"topic", o.sess.Topic,
		"bots", len(o.cfg.Bots),
		"max_rounds", o.cfg.MaxRounds,
	)

	var fatal error
	logFailures := 0

loop:
	for round := 1; ; round++ {
		for _, bot := range o.cfg.Bots {
			if !o.checkpoint(ctx) {
				break loop
			}

			o.emit(Event{Type: EventTurnStarted, Bot: bot.Name, Round: round})
			turn := o.takeTurn(ctx, bot)

			if err := o.store.Append(turn); err != nil {
				logFailures++
				o.logger.Error("session log write failed", "err", err, "consecutive", logFailures)
				o.emit(Event{Type: EventLogError, Err: err})
				if logFailures >= maxLogFailures {
					fatal = fmt.Errorf("%d consecutive log write failures, stopping: %w", logFailures, err)
					break loop
				}
			} else {
				logFailures = 0
			}

			ev := Event{Type: EventTurnCompleted, Bot: bot.Name, Round: round, Turn: &turn}
			if turn.Skipped {
				ev.Type = EventTurnSkipped
			}
			o.emit(ev)

			if !o.sleep(ctx, o.turnDelay) {
				break loop
			}
		}
		if o.cfg.MaxRounds > 0 && round >= o.cfg.MaxRounds {
			o.logger.Info("round limit reached", "rounds", round)
			break
		}
	}

	o.setState(Stopping)
	closeErr := o.sess.Close()
	if closeErr != nil {
		o.logger.Error("session log close failed", "err", closeErr)
	}
	o.setState(Stopped)

	err := fatal
	if err == nil {
		err = closeErr
	}
	o.emit(Event{Type: EventSessionEnded, Err: err})
	o.logger.Info("discussion ended", "session", o.sess.ID, "turns", o.store.Len())
	return err
}

// checkpoint drains pending commands and, while paused, blocks until a
// resume or stop arrives. Returns false when the loop should stop.
func (o *Orchestrator) checkpoint(ctx context.Context) bool {
	for {
		if o.State() == Paused {
			select {
			case <-ctx.Done():
				return false
			case cmd := <-o.commands:
				if !o.apply(cmd) {
					return false
				}
			}
			continue
		}
		select {
		case <-ctx.Done():
			return false
		case cmd := <-o.commands:
			if !o.apply(cmd) {
				return false
			}
		default:
			return true
		}
	}
}

func (o *Orchestrator) apply(cmd command) bool {
	switch cmd.kind {
	case cmdStop:
		o.logger.Info("stop requested")
		return false
	case cmdPause:
		if o.State() == Running {
			o.setState(Paused)
		}
	case cmdResume:
		if o.State() == Paused {
			o.setState(Running)
		}
	case cmdTopic:
		if err := o.sess.AddTopicUpdate(cmd.text); err != nil {
			o.logger.Error("topic update not logged", "err", err)
			o.emit(Event{Type: EventLogError, Err: err})
		}
		o.emit(Event{Type: EventTopicUpdated, Message: cmd.text})
	}
	return true
}

// takeTurn asks one bot for its contribution. A timeout skips the turn
// immediately; an endpoint failure gets one retry after a short backoff.
// A skipped turn is still appended so the log records it.
func (o *Orchestrator) takeTurn(ctx context.Context, bot config.Bot) transcript.Turn {
	prompt := client.BuildPrompt(
		o.cfg.SystemPrompt,
		bot,
		o.sess.Topic,
		o.sess.TopicUpdates(),
		o.store.Context(o.cfg.ContextTurns),
	)

	start := time.Now()
	reply, err := o.client.Ask(ctx, bot, prompt)
	if err != nil {
		var epErr *client.EndpointError
		if errors.As(err, &epErr) && o.sleep(ctx, o.retryBackoff) {
			o.logger.Warn("endpoint failed, retrying once", "bot", bot.Name, "err", err)
			reply, err = o.client.Ask(ctx, bot, prompt)
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		o.logger.Warn("turn skipped", "bot", bot.Name, "err", err)
		return transcript.Turn{
			Speaker:   bot.Name,
			Text:      skipText(err),
			Timestamp: time.Now(),
			Elapsed:   elapsed,
			Skipped:   true,
		}
	}
	return transcript.Turn{
		Speaker:   bot.Name,
		Text:      reply,
		Timestamp: time.Now(),
		Elapsed:   elapsed,
	}
}

func skipText(err error) string {
	if errors.Is(err, client.ErrTimeout) {
		return "[skipped: response timeout]"
	}
	reason := strings.Join(strings.Fields(err.Error()), " ")
	return fmt.Sprintf("[skipped: %s]", reason)
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.emit(Event{Type: EventStateChanged, State: s})
}

func (o *Orchestrator) emit(ev Event) {
	ev.State = o.State()
	o.events <- ev
}

// sleep waits for d unless the context ends first.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
