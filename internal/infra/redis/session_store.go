package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-runner/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Runners (and their timers) live in process; Redis holds a liveness marker
// per session mapping the session id to its quiz id, so operators can see
// which sessions are running.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Runner
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Runner),
	}
}

func (s *SessionStore) Save(runner *app.Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[runner.ID()] = runner
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(runner.ID()), runner.QuizID(), s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*app.Runner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runner, ok := s.sessions[sessionID]
	if ok && s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(sessionID), s.ttl).Err()
	}
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
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
