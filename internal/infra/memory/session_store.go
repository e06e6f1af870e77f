package memory

import (
	"sync"

	"quiz-runner/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Runner
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Runner),
	}
}

func (s *SessionStore) Save(runner *app.Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[runner.ID()] = runner
}

func (s *SessionStore) Get(sessionID string) (*app.Runner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runner, ok := s.sessions[sessionID]
	return runner, ok
}

// List returns a snapshot of the live runners.
func (s *SessionStore) List() []*app.Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runners := make([]*app.Runner, 0, len(s.sessions))
	for _, runner := range s.sessions {
		runners = append(runners, runner)
	}
	return runners
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
