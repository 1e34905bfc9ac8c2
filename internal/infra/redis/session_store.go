package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions hold timers and a live connection, so they stay in process;
// Redis carries a liveness key per participant so other instances and
// operators can see who is playing:
//
//	SET quiz:session:{quizID}:{studentID} 1 EX ttl
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

var _ app.SessionRepository = (*SessionStore)(nil)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(quizID, studentID string, create func() *app.Session) (*app.Session, bool) {
	key := sessionKey(quizID, studentID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, false
	}
	session := create()
	s.sessions[key] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), key, "1", s.ttl).Err()
	return session, true
}

func (s *SessionStore) Get(quizID, studentID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionKey(quizID, studentID)]
	return session, ok
}

func (s *SessionStore) Delete(quizID, studentID string, session *app.Session) {
	key := sessionKey(quizID, studentID)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[key]
	if !ok || current != session {
		return
	}
	delete(s.sessions, key)
	_ = s.client.Del(context.Background(), key).Err()
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// Touch extends the liveness keys of every local session.
func (s *SessionStore) Touch(ctx context.Context) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.sessions))
	for key := range s.sessions {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	if len(keys) == 0 || s.ttl <= 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, key := range keys {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func sessionKey(quizID, studentID string) string {
	return "quiz:session:" + quizID + ":" + studentID
}
