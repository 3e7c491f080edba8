// Package session ties one run of the discussion loop to its identity and
// its on-disk log. A session owns the log file handle for its whole
// lifetime and guarantees close on every exit path.
package session

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/w84death/agentic-chat/transcript"
)

// IDLayout derives the session identifier from the start time.
const IDLayout = "20060102_150405"

const headerRule = "================================================================================"

// Session is one discussion run: identifier, topic, topic updates issued
// while paused, and the open log file.
type Session struct {
	ID        string
	Topic     string
	StartedAt time.Time

	mu      sync.Mutex
	updates []string
	path    string
	file    *os.File
	w       *bufio.Writer
	closed  bool
}

// New creates the log directory if needed, opens the session log and
// writes its header block.
func New(dir, topic string) (*Session, error) {
	now := time.Now()
	id := now.Format(IDLayout)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "session_"+id+".txt")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log %s: %w", path, err)
	}

	s := &Session{
		ID:        id,
		Topic:     topic,
		StartedAt: now,
		path:      path,
		file:      file,
		w:         bufio.NewWriter(file),
	}
	if err := s.writeHeader(); err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) writeHeader() error {
	var b strings.Builder
	b.WriteString(headerRule + "\n")
	fmt.Fprintf(&b, "Session Started: %s\n", s.StartedAt.Format(transcript.TimeLayout))
	fmt.Fprintf(&b, "Topic: %s\n", s.Topic)
	b.WriteString(headerRule + "\n\n")
	return s.write(b.String())
}

// Path reports the session log location.
func (s *Session) Path() string { return s.path }

// WriteTurn appends one turn block and flushes, satisfying
// transcript.TurnWriter. The log stays a prefix-consistent view of the
// transcript: a turn is on disk before the next one begins.
func (s *Session) WriteTurn(t transcript.Turn) error {
	return s.write(transcript.FormatBlock(t))
}

// AddTopicUpdate records a mid-session topic direction. The update is
// visible to every subsequent inference call and logged; past turns are
// untouched.
func (s *Session) AddTopicUpdate(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty topic update")
	}

	s.mu.Lock()
	s.updates = append(s.updates, text)
	s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] TOPIC UPDATE:\n", time.Now().Format(transcript.TimeLayout))
	b.WriteString(text + "\n")
	b.WriteString(strings.Repeat("-", 40) + "\n\n")
	return s.write(b.String())
}

// TopicUpdates returns a copy of all updates issued so far, oldest first.
func (s *Session) TopicUpdates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.updates))
	copy(out, s.updates)
	return out
}

func (s *Session) write(block string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session %s: log already closed", s.ID)
	}
	if _, err := s.w.WriteString(block); err != nil {
		return fmt.Errorf("write session log: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush session log: %w", err)
	}
	return nil
}

// Close flushes and closes the log. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush session log: %w", flushErr)
	}
	return closeErr
}
