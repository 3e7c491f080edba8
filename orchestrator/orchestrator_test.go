package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w84death/agentic-chat/client"
	"github.com/w84death/agentic-chat/config"
	"github.com/w84death/agentic-chat/session"
	"github.com/w84death/agentic-chat/transcript"
)

// fakeClient scripts per-call replies and errors and records every
// prompt it was asked.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	prompts []client.Prompt
	speak   func(call int, bot config.Bot, p client.Prompt) (string, error)
}

func (f *fakeClient) Ask(_ context.Context, bot config.Bot, p client.Prompt) (string, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()

	if f.speak != nil {
		return f.speak(call, bot, p)
	}
	return fmt.Sprintf("reply %d from %s", call, bot.Name), nil
}

func (f *fakeClient) promptAt(i int) client.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i]
}

func testConfig(bots ...string) *config.Config {
	cfg := &config.Config{
		SystemPrompt: "You are in a discussion.",
		MaxRounds:    2,
		ContextTurns: 10,
	}
	for _, name := range bots {
		cfg.Bots = append(cfg.Bots, config.Bot{
			Name:           name,
			Personality:    name + " personality",
			Endpoint:       "http://localhost:11434",
			API:            config.APIOllama,
			Model:          "llama3",
			TimeoutSeconds: 5,
		})
	}
	return cfg
}

func testLogger() *log.Logger {
	l := log.New(io.Discard)
	l.SetLevel(log.FatalLevel)
	return l
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, cl client.Client) *Orchestrator {
	t.Helper()
	sess, err := session.New(t.TempDir(), "test topic")
	require.NoError(t, err)
	store := transcript.NewStore(sess)
	o := New(cfg, cl, store, sess, testLogger())
	o.retryBackoff = time.Millisecond
	return o
}

// drain collects every event until the orchestrator closes the stream.
func drain(t *testing.T, o *Orchestrator, runErr chan<- error) <-chan []Event {
	t.Helper()
	out := make(chan []Event, 1)
	go func() { runErr <- o.Run(context.Background()) }()
	go func() {
		var events []Event
		for ev := range o.Events() {
			events = append(events, ev)
		}
		out <- events
	}()
	return out
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunRoundRobinOrder(t *testing.T) {
	cfg := testConfig("Ada", "Grace", "Alan")
	fc := &fakeClient{}
	o := newTestOrchestrator(t, cfg, fc)

	runErr := make(chan error, 1)
	events := <-drain(t, o, runErr)
	require.NoError(t, <-runErr)

	completed := eventsOfType(events, EventTurnCompleted)
	require.Len(t, completed, 6)
	order := []string{"Ada", "Grace", "Alan", "Ada", "Grace", "Alan"}
	for i, ev := range completed {
		assert.Equal(t, order[i], ev.Turn.Speaker)
	}

	// Two rounds of three bots, then a clean stop.
	assert.Equal(t, 6, o.Store().Len())
	assert.Equal(t, Stopped, o.State())

	ended := eventsOfType(events, EventSessionEnded)
	require.Len(t, ended, 1)
	assert.NoError(t, ended[0].Err)
}

func TestRunRoundNumbersInEvents(t *testing.T) {
	cfg := testConfig("Ada", "Grace")
	fc := &fakeClient{}
	o := newTestOrchestrator(t, cfg, fc)

	runErr := make(chan error, 1)
	events := <-drain(t, o, runErr)
	require.NoError(t, <-runErr)

	started := eventsOfType(events, EventTurnStarted)
	require.Len(t, started, 4)
	assert.Equal(t, []int{1, 1, 2, 2}, []int{started[0].Round, started[1].Round, started[2].Round, started[3].Round})
}

func TestTimeoutSkipsTurnAndContinues(t *testing.T) {
	cfg := testConfig("Ada", "Grace")
	cfg.MaxRounds = 1
	fc := &fakeClient{
		speak: func(call int, bot config.Bot, _ client.Prompt) (string, error) {
			if bot.Name == "Ada" {
				return "", fmt.Errorf("%s: %w", bot.Name, client.ErrTimeout)
			}
			return "Grace speaks", nil
		},
	}
	o := newTestOrchestrator(t, cfg, fc)

	runErr := make(chan error, 1)
	events := <-drain(t, o, runErr)
	require.NoError(t, <-runErr)

	skipped := eventsOfType(events, EventTurnSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "Ada", skipped[0].Turn.Speaker)
	assert.Equal(t, "[skipped: response timeout]", skipped[0].Turn.Text)
	assert.True(t, skipped[0].Turn.Skipped)

	// No retry on timeout: one call per bot.
	assert.Equal(t, 2, fc.calls)

	// The skip is on record but out of the next prompt's context.
	assert.Equal(t, 2, o.Store().Len())
	assert.NotContains(t, fc.promptAt(1).User, "[skipped:")
}

func TestEndpointErrorRetriedOnce(t *testing.T) {
	cfg := testConfig("Ada")
	cfg.MaxRounds = 1
	fc := &fakeClient{
		speak: func(call int, bot config.Bot, _ client.Prompt) (string, error) {
			if call == 0 {
				return "", &client.EndpointError{Endpoint: bot.Endpoint, Status: 500}
			}
			return "recovered", nil
		},
	}
	o := newTestOrchestrator(t, cfg, fc)

	runErr := make(chan error, 1)
	events := <-drain(t, o, runErr)
	require.NoError(t, <-runErr)

	assert.Equal(t, 2, fc.calls)
	completed := eventsOfType(events, EventTurnCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "recovered", completed[0].Turn.Text)
	assert.Empty(t, eventsOfType(events, EventTurnSkipped))
}

func TestEndpointErrorSkippedAfterFailedRetry(t *testing.T) {
	cfg := testConfig("Ada")
	cfg.MaxRounds = 1
	fc := &fakeClient{
		speak: func(int, config.Bot, client.Prompt) (string, error) {
			return "", &client.EndpointError{Endpoint: "http://localhost:11434", Status: 500}
		},
	}
	o := newTestOrchestrator(t, cfg, fc)

	runErr := make(chan error, 1)
	events := <-drain(t, o, runErr)
	require.NoError(t, <-runErr)

	assert.Equal(t, 2, fc.calls)
	skipped := eventsOfType(events, EventTurnSkipped)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Turn.Text, "[skipped: endpoint")
}

func TestPauseBlocksBetweenTurns(t *testing.T) {
	cfg := testConfig("Ada", "Grace")
	cfg.MaxRounds = 1

	inFirstCall := make(chan struct{})
	fc := &fakeClient{
		speak: func(call int, bot config.Bot, _ client.Prompt) (string, error) {
			if call == 0 {
				close(inFirstCall)
			}
			return bot.Name + " speaks", nil
		},
	}
	o := newTestOrchestrator(t, cfg, fc)

	runErr := make(chan error, 1)
	go func() { runErr <- o.Run(context.Background()) }()

	// Pause while the first call is in flight: the call still finishes
	// and its turn is appended before the pause takes effect.
	<-inFirstCall
	o.Pause()

	var events []Event
	for ev := range o.Events() {
		events = append(events, ev)
		if ev.Type == EventStateChanged && ev.State == Paused {
			assert.Equal(t, 1, o.Store().Len())
			assert.Equal(t, 1, fc.calls)
			o.Resume()
		}
	}
	require.NoError(t, <-runErr)

	completed := eventsOfType(events, EventTurnCompleted)
	require.Len(t, completed, 2)
	assert.Equal(t, Stopped, o.State())
}

func TestStopEndsAtTurnBoundary(t *testing.T) {
	cfg := testConfig("Ada", "Grace", "Alan")
	cfg.MaxRounds = 0 // unlimited

	o := newTestOrchestrator(t, cfg, nil)
	fc := &fakeClient{
		speak: func(call int, bot config.Bot, _ client.Prompt) (string, error) {
			if call == 1 {
				o.Stop()
			}
			return bot.Name + " speaks", nil
		},
	}
	o.client = fc

	runErr := make(chan error, 1)
	events := <-drain(t, o, runErr)
	require.NoError(t, <-runErr)

	// The stop lands after the second turn completes, before the third
	// bot speaks.
	assert.Equal(t, 2, fc.calls)
	assert.Len(t, eventsOfType(events, EventTurnCompleted), 2)
	assert.Equal(t, Stopped, o.State())
}

func TestTopicUpdateReachesLaterPrompts(t *testing.T) {
	cfg := testConfig("Ada", "Grace")
	cfg.MaxRounds = 1

	o := newTestOrchestrator(t, cfg, nil)
	fc := &fakeClient{
		speak: func(call int, bot config.Bot, _ client.Prompt) (string, error) {
			if call == 0 {
				o.UpdateTopic("consider the hardware angle")
			}
			return bot.Name + " speaks", nil
		},
	}
	o.client = fc

	runErr := make(chan error, 1)
	events := <-drain(t, o, runErr)
	require.NoError(t, <-runErr)

	assert.NotContains(t, fc.promptAt(0).System, "hardware angle")
	assert.Contains(t, fc.promptAt(1).System, "consider the hardware angle")

	updated := eventsOfType(events, EventTopicUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, "consider the hardware angle", updated[0].Message)
	assert.Equal(t, []string{"consider the hardware angle"}, o.Session().TopicUpdates())
}

type failingWriter struct{}

func (failingWriter) WriteTurn(transcript.Turn) error { return errors.New("disk full") }

func TestConsecutiveLogFailuresStopSession(t *testing.T) {
	cfg := testConfig("Ada")
	cfg.MaxRounds = 0

	sess, err := session.New(t.TempDir(), "test topic")
	require.NoError(t, err)
	store := transcript.NewStore(failingWriter{})
	o := New(cfg, &fakeClient{}, store, sess, testLogger())
	o.retryBackoff = time.Millisecond

	runErr := make(chan error, 1)
	events := <-drain(t, o, runErr)
	err = <-runErr
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consecutive log write failures")

	assert.Len(t, eventsOfType(events, EventLogError), maxLogFailures)
	ended := eventsOfType(events, EventSessionEnded)
	require.Len(t, ended, 1)
	assert.Error(t, ended[0].Err)
	assert.Equal(t, Stopped, o.State())

	// The turns themselves survive in memory.
	assert.Equal(t, maxLogFailures, o.Store().Len())
}

func TestContextCancellationStopsRun(t *testing.T) {
	cfg := testConfig("Ada", "Grace")
	cfg.MaxRounds = 0

	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeClient{
		speak: func(call int, bot config.Bot, _ client.Prompt) (string, error) {
			if call == 2 {
				cancel()
			}
			return bot.Name + " speaks", nil
		},
	}
	o := newTestOrchestrator(t, cfg, fc)

	runErr := make(chan error, 1)
	go func() { runErr <- o.Run(ctx) }()
	for range o.Events() {
	}
	require.NoError(t, <-runErr)
	assert.Equal(t, Stopped, o.State())
	assert.LessOrEqual(t, fc.calls, 4)
}

func TestContextWindowLimitsPrompt(t *testing.T) {
	cfg := testConfig("Ada")
	cfg.MaxRounds = 5
	cfg.ContextTurns = 2

	fc := &fakeClient{}
	o := newTestOrchestrator(t, cfg, fc)

	runErr := make(chan error, 1)
	<-drain(t, o, runErr)
	require.NoError(t, <-runErr)

	require.Equal(t, 5, fc.calls)
	last := fc.promptAt(4)
	assert.NotContains(t, last.User, "reply 1 from Ada")
	assert.Contains(t, last.User, "reply 2 from Ada")
	assert.Contains(t, last.User, "reply 3 from Ada")
}
