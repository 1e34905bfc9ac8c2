package app

import (
	"context"
	"errors"
	"log"
	"time"

	"live-quiz-service/internal/domain"
)

// SessionRepository keeps live sessions addressable by (quiz, student).
type SessionRepository interface {
	// GetOrCreate returns the live session of the pair, creating it with create
	// when absent. The boolean reports whether a new session was stored.
	GetOrCreate(quizID, studentID string, create func() *Session) (*Session, bool)
	Get(quizID, studentID string) (*Session, bool)
	// Delete removes the pair only while it still maps to session.
	Delete(quizID, studentID string, session *Session)
	List() []*Session
}

// QuizService runs the live side of a quiz: joining, driving sessions from
// quiz state changes and sweeping sessions nobody is attached to.
type QuizService struct {
	lifecycle       *Lifecycle
	quizzes         QuizStore
	sessions        SessionRepository
	notifier        Notifier
	deps            SessionDeps
	refreshInterval time.Duration
	idleTimeout     time.Duration
}

func NewQuizService(lifecycle *Lifecycle, quizzes QuizStore, sessions SessionRepository, notifier Notifier, deps SessionDeps, opts Options) *QuizService {
	opts = opts.withDefaults()
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.SubmitTimeout <= 0 {
		deps.SubmitTimeout = opts.SubmitTimeout
	}
	return &QuizService{
		lifecycle:       lifecycle,
		quizzes:         quizzes,
		sessions:        sessions,
		notifier:        notifier,
		deps:            deps,
		refreshInterval: opts.RefreshInterval,
		idleTimeout:     opts.IdleTimeout,
	}
}

// Join resolves a join code and returns the caller's session for that quiz.
// A live session is reused so a reconnecting student resumes where they were.
func (s *QuizService) Join(ctx context.Context, code string, student domain.Principal) (*Session, error) {
	if student.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	quiz, err := s.lifecycle.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	session, created := s.sessions.GetOrCreate(quiz.ID, student.UserID, func() *Session {
		return NewSession(quiz.ID, student.UserID, s.deps)
	})
	if !created && session.State().Terminal() {
		s.sessions.Delete(quiz.ID, student.UserID, session)
		session, created = s.sessions.GetOrCreate(quiz.ID, student.UserID, func() *Session {
			return NewSession(quiz.ID, student.UserID, s.deps)
		})
	}
	if !created {
		return session, nil
	}

	log.Printf("quiz %s: student %s joined (%s)", quiz.ID, student.UserID, quiz.State)
	watchCtx, cancel := context.WithCancel(context.Background())
	session.OnRelease(func() {
		cancel()
		s.sessions.Delete(quiz.ID, student.UserID, session)
	})
	s.apply(ctx, session, quiz)
	go s.watch(watchCtx, session)
	return session, nil
}

// Session returns the live session of a pair.
func (s *QuizService) Session(quizID, studentID string) (*Session, error) {
	session, ok := s.sessions.Get(quizID, studentID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Refresh pulls the quiz state and activates or closes the session accordingly.
func (s *QuizService) Refresh(ctx context.Context, session *Session) error {
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID())
	if errors.Is(err, domain.ErrQuizNotFound) {
		session.Fail(err)
		return err
	}
	if err != nil {
		return err
	}
	s.apply(ctx, session, quiz)
	return nil
}

// Leave abandons the caller's session without flushing its total.
func (s *QuizService) Leave(quizID, studentID string) {
	if session, ok := s.sessions.Get(quizID, studentID); ok {
		session.Abandon()
	}
}

// SweepIdle abandons sessions detached for longer than the idle timeout and
// returns how many were released.
func (s *QuizService) SweepIdle(now time.Time) int {
	swept := 0
	for _, session := range s.sessions.List() {
		since, detached := session.DetachedSince()
		if !detached || now.Sub(since) < s.idleTimeout {
			continue
		}
		if session.State().Terminal() {
			s.sessions.Delete(session.QuizID(), session.StudentID(), session)
			continue
		}
		log.Printf("quiz %s: abandoning idle session of student %s", session.QuizID(), session.StudentID())
		session.Abandon()
		swept++
	}
	return swept
}

func (s *QuizService) apply(ctx context.Context, session *Session, quiz domain.Quiz) {
	var err error
	switch quiz.State {
	case domain.QuizActive:
		err = session.Activate(ctx)
	case domain.QuizFinished:
		err = session.Close(ctx)
	}
	if err != nil {
		log.Printf("quiz %s student %s: apply %s: %v", quiz.ID, session.StudentID(), quiz.State, err)
	}
}

// watch keeps a session in step with its quiz. Pushed events are hints to
// re-read the quiz; the periodic pull covers missed or dropped notifications.
func (s *QuizService) watch(ctx context.Context, session *Session) {
	topic := domain.QuizTopic(session.QuizID())
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		var events <-chan domain.Event
		unsubscribe := func() {}
		if s.notifier != nil {
			ch, cancel, err := s.notifier.Subscribe(ctx, topic)
			if err != nil {
				log.Printf("quiz %s: %v: %v, polling", session.QuizID(), domain.ErrNotificationDelivery, err)
			} else {
				events, unsubscribe = ch, cancel
			}
		}
		// State may have changed before the subscription was in place.
		s.refresh(ctx, session)
		s.consume(ctx, session, events, ticker.C)
		unsubscribe()
	}
}

// consume refreshes on every event and tick until ctx ends. Without a live
// subscription it returns after one tick so watch can subscribe again.
func (s *QuizService) consume(ctx context.Context, session *Session, events <-chan domain.Event, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			s.refresh(ctx, session)
			if events == nil {
				return
			}
		case _, ok := <-events:
			if !ok {
				// Resubscribe after the next tick.
				events = nil
				continue
			}
			s.refresh(ctx, session)
		}
	}
}

func (s *QuizService) refresh(ctx context.Context, session *Session) {
	if ctx.Err() != nil {
		return
	}
	if err := s.Refresh(ctx, session); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("quiz %s student %s: refresh: %v", session.QuizID(), session.StudentID(), err)
	}
}
