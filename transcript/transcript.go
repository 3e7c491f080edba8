// Package transcript holds the ordered, append-only history of a
// discussion. The store keeps turns in memory and mirrors every append to
// a TurnWriter before returning, so durable storage is always a prefix of
// the in-memory state.
package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TimeLayout is the wall-clock format used in session logs.
const TimeLayout = "2006-01-02 15:04:05"

// Turn is a single contribution to the discussion. Immutable once created.
type Turn struct {
	Speaker   string
	Text      string
	Timestamp time.Time
	Elapsed   time.Duration
	Skipped   bool
}

// FormatBlock renders a turn as its session-log block. Replay understands
// the same shape.
func FormatBlock(t Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%.1fs):\n", t.Timestamp.Format(TimeLayout), t.Speaker, t.Elapsed.Seconds())
	b.WriteString(t.Text)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", 40))
	b.WriteString("\n\n")
	return b.String()
}

// TurnWriter mirrors appended turns to durable storage.
type TurnWriter interface {
	WriteTurn(Turn) error
}

// Store is the shared transcript. The orchestrator is the only writer;
// front ends read concurrently through All.
type Store struct {
	mu     sync.RWMutex
	turns  []Turn
	writer TurnWriter
}

// NewStore creates a store mirroring appends to w. A nil w keeps the
// transcript in memory only.
func NewStore(w TurnWriter) *Store {
	return &Store{writer: w}
}

// Append adds a turn and mirrors it to the log. The in-memory append
// always happens; a non-nil error means only the mirror failed.
func (s *Store) Append(t Turn) error {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()

	if s.writer == nil {
		return nil
	}
	if err := s.writer.WriteTurn(t); err != nil {
		return fmt.Errorf("mirror turn to log: %w", err)
	}
	return nil
}

// Context returns up to n of the most recent spoken turns, oldest first,
// for use as prompt context. Skip markers are excluded: a bot that said
// nothing adds nothing to the conversation.
func (s *Store) Context(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spoken := make([]Turn, 0, len(s.turns))
	for _, t := range s.turns {
		if !t.Skipped {
			spoken = append(spoken, t)
		}
	}
	if n > 0 && len(spoken) > n {
		spoken = spoken[len(spoken)-n:]
	}
	return spoken
}

// All returns a defensive copy of every turn in append order.
func (s *Store) All() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len reports the number of appended turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}
