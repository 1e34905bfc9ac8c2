package memory

import (
	"sync"

	"live-quiz-service/internal/app"
)

type sessionKey struct {
	quizID    string
	studentID string
}

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*app.Session
}

var _ app.SessionRepository = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[sessionKey]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(quizID, studentID string, create func() *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey{quizID, studentID}
	if session, ok := s.sessions[key]; ok {
		return session, false
	}
	session := create()
	s.sessions[key] = session
	return session, true
}

func (s *SessionStore) Get(quizID, studentID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionKey{quizID, studentID}]
	return session, ok
}

func (s *SessionStore) Delete(quizID, studentID string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey{quizID, studentID}
	if current, ok := s.sessions[key]; ok && current == session {
		delete(s.sessions, key)
	}
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
