package memory

import (
	"context"
	"sync"

	"proctor-quiz-service/internal/domain"
)

// SessionSource holds scheduled sessions in memory. It doubles as the
// SessionWriter for the admin reset affordance.
type SessionSource struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionSource(sessions ...domain.Session) *SessionSource {
	s := &SessionSource{sessions: make(map[string]domain.Session, len(sessions))}
	for _, session := range sessions {
		s.sessions[session.ID] = session
	}
	return s
}

func (s *SessionSource) Sessions(_ context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out, nil
}

func (s *SessionSource) PutSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}
