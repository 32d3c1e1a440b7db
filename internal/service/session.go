package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"personarag/internal/domain"
)

// SessionContext is the caller-owned state of one conversation. The
// orchestrator only appends completed turns to it.
type SessionContext struct {
	ID        uuid.UUID
	PersonaID string
	CreatedAt time.Time

	mu      sync.Mutex
	history []domain.Turn
}

// NewSessionContext starts an empty conversation with a persona.
func NewSessionContext(personaID string) *SessionContext {
	return &SessionContext{ID: uuid.New(), PersonaID: personaID, CreatedAt: time.Now()}
}

// History returns a copy of the turns so far.
func (s *SessionContext) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of turns.
func (s *SessionContext) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *SessionContext) append(turns ...domain.Turn) {
	s.mu.Lock()
	s.history = append(s.history, turns...)
	s.mu.Unlock()
}
