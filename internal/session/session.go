package session

import (
	"sync"
	"time"

	"github.com/fastgate/fastgate/internal/schema"
)

// Session holds one conversation's ordered message history and metadata.
// The history is owned exclusively by this session; messages are immutable
// once appended.
type Session struct {
	ID        string
	Messages  schema.Messages
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any

	mu     sync.Mutex // guards Messages/UpdatedAt
	turnMu sync.Mutex // serializes whole turns, held across suspension points
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		Messages:  schema.NewMessages(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Metadata:  map[string]any{},
	}
}

// BeginTurn acquires the session's turn lock. Two concurrent ProcessMessage
// calls on the same session never interleave their appends: the second blocks
// here until the first turn has fully completed.
func (s *Session) BeginTurn() { s.turnMu.Lock() }

// EndTurn releases the turn lock.
func (s *Session) EndTurn() { s.turnMu.Unlock() }

// Append adds a message to the history.
func (s *Session) Append(msg schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages.Add(msg)
	s.UpdatedAt = time.Now()
}

// History returns the last maxMessages messages (0 = all) as an independent
// snapshot for the oracle.
func (s *Session) History(maxMessages int) schema.Messages {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.Messages.Messages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	out := schema.NewMessages()
	out.Messages = append(out.Messages, msgs...)
	return out
}

// Snapshot returns a deep copy of the full history.
func (s *Session) Snapshot() schema.Messages {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Messages.Clone()
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages.Messages)
}

// Clear resets the history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = schema.NewMessages()
	s.UpdatedAt = time.Now()
}
