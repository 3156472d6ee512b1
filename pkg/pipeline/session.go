package pipeline

import (
	"sync"

	"github.com/xhad/lucy/internal/models"
)

// Session is the append-only transcript of one conversation.
type Session struct {
	mu    sync.Mutex
	turns []models.Turn
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Append(turns ...models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}

// Turns returns a copy of the transcript, oldest first.
func (s *Session) Turns() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Reset clears the transcript.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
