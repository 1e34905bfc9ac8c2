package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// SessionState is the progression of one participant through a quiz.
type SessionState string

const (
	SessionWaiting    SessionState = "waiting"
	SessionInProgress SessionState = "in_progress"
	SessionFinished   SessionState = "finished"
	// SessionBlocked is terminal: the quiz had no questions or disappeared.
	SessionBlocked SessionState = "blocked"
	// SessionAbandoned is terminal: the participant went away and the session was swept.
	SessionAbandoned SessionState = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == SessionFinished || s == SessionBlocked || s == SessionAbandoned
}

// Session event types delivered to the attached listener.
const (
	SessionEventWaiting  = "waiting"
	SessionEventQuestion = "question"
	SessionEventRecorded = "answer_recorded"
	SessionEventFinished = "finished"
	SessionEventBlocked  = "blocked"
	SessionEventError    = "error"
)

// SessionEvent is what a participant's client sees of its session.
type SessionEvent struct {
	Type     string           `json:"type"`
	QuizID   string           `json:"quizId"`
	State    SessionState     `json:"state"`
	Index    int              `json:"index"`
	Total    int              `json:"total"`
	Question *domain.Question `json:"question,omitempty"`
	Answer   *domain.Answer   `json:"answer,omitempty"`
	Score    int              `json:"score"`
	Error    string           `json:"error,omitempty"`
}

// SessionDeps are the collaborators a session drives.
type SessionDeps struct {
	Questions     QuestionSource
	Answers       AnswerStore
	Leaderboard   *Leaderboard
	Clock         Clock
	SubmitTimeout time.Duration
}

// Session is one student's live traversal of a quiz. All transitions happen
// under the session mutex, so selection, submission, timer expiry and
// activation never interleave. The listener is invoked with the mutex held
// and must not call back into the session.
type Session struct {
	quizID    string
	studentID string
	deps      SessionDeps
	timer     *QuestionTimer

	mu         sync.Mutex
	state      SessionState
	questions  []domain.Question
	cursor     int
	score      int
	staged     domain.Submission
	listener   func(SessionEvent)
	attachGen  uint64
	detachedAt time.Time
	closers    []func()
}

// NewSession creates a session in the waiting state.
func NewSession(quizID, studentID string, deps SessionDeps) *Session {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.SubmitTimeout <= 0 {
		deps.SubmitTimeout = 10 * time.Second
	}
	return &Session{
		quizID:     quizID,
		studentID:  studentID,
		deps:       deps,
		timer:      NewQuestionTimer(deps.Clock),
		state:      SessionWaiting,
		detachedAt: deps.Clock.Now(),
	}
}

func (s *Session) QuizID() string    { return s.quizID }
func (s *Session) StudentID() string { return s.studentID }

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Score returns the running score accumulated by this session.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Current returns the cursor and the presented question while in progress.
func (s *Session) Current() (int, domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionInProgress {
		return s.cursor, domain.Question{}, false
	}
	return s.cursor, s.questions[s.cursor], true
}

// TimerActive reports whether a question countdown is armed.
func (s *Session) TimerActive() bool {
	return s.timer.Active()
}

// Attach routes session events to listener and replays the current view,
// so a reconnecting client resumes where it left off. A later Attach
// replaces the listener. The returned function detaches only this listener.
func (s *Session) Attach(listener func(SessionEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
	s.attachGen++
	s.detachedAt = time.Time{}
	gen := s.attachGen
	detach := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.attachGen == gen && s.listener != nil {
			s.detachLocked()
		}
	}

	switch s.state {
	case SessionWaiting:
		s.emitLocked(SessionEvent{Type: SessionEventWaiting})
	case SessionInProgress:
		s.emitLocked(s.questionEventLocked())
	case SessionFinished:
		s.emitLocked(SessionEvent{Type: SessionEventFinished, Index: len(s.questions), Total: len(s.questions), Score: s.score})
	case SessionBlocked:
		s.emitLocked(SessionEvent{Type: SessionEventBlocked})
	}
	return detach
}

// Detach stops event delivery; the session keeps running until swept.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
}

func (s *Session) detachLocked() {
	s.listener = nil
	s.detachedAt = s.deps.Clock.Now()
}

// DetachedSince reports when the last listener went away.
func (s *Session) DetachedSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detachedAt, s.listener == nil && !s.detachedAt.IsZero()
}

// OnRelease registers f to run once the session reaches a terminal state.
func (s *Session) OnRelease(f func()) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		f()
		return
	}
	s.closers = append(s.closers, f)
	s.mu.Unlock()
}

// Activate moves a waiting session into progress. Repeated triggers are no-ops.
func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionWaiting {
		return nil
	}

	questions, err := s.deps.Questions.ListQuestions(ctx, s.quizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			s.failLocked(err)
		}
		return fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		s.failLocked(domain.ErrQuizEmpty)
		return domain.ErrQuizEmpty
	}

	ordered := append([]domain.Question(nil), questions...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })
	s.questions = ordered
	s.cursor = 0
	s.state = SessionInProgress
	s.presentLocked()
	return nil
}

// Select stages an answer for the current question. Only the last staged
// value before submission or timeout counts.
func (s *Session) Select(questionID, content, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.currentLocked(questionID); err != nil {
		return err
	}
	question := s.questions[s.cursor]
	if question.Type == domain.MultipleChoice && content != "" && !validOptionKey(content) {
		return domain.Invalid("content", "choice must be one of A, B, C, D")
	}
	s.staged.Content = content
	s.staged.ImageURL = imageURL
	return nil
}

// Submit hands in the staged answer for questionID. Submitting a question
// that is no longer current fails with domain.ErrAlreadySubmitted.
func (s *Session) Submit(ctx context.Context, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.currentLocked(questionID); err != nil {
		return err
	}
	return s.submitLocked(ctx)
}

// Close ends the session because the quiz finished. Questions not yet
// answered are skipped; an in-progress session still flushes its total.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionWaiting:
		s.state = SessionFinished
		s.emitLocked(SessionEvent{Type: SessionEventFinished})
		s.releaseLocked()
	case SessionInProgress:
		return s.finishLocked(ctx)
	}
	return nil
}

// Fail ends the session with a terminal error such as a vanished quiz.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.failLocked(err)
}

// Abandon releases the timer and subscriptions without flushing.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.timer.Stop()
	s.state = SessionAbandoned
	s.listener = nil
	s.releaseLocked()
}

func (s *Session) expire(questionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.SubmitTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionInProgress || s.questions[s.cursor].ID != questionID {
		return
	}
	if err := s.submitLocked(ctx); err != nil {
		log.Printf("quiz %s student %s: submit on timeout failed: %v", s.quizID, s.studentID, err)
	}
}

func (s *Session) currentLocked(questionID string) error {
	switch s.state {
	case SessionInProgress:
	case SessionWaiting:
		return domain.ErrSessionWaiting
	default:
		return domain.ErrSessionClosed
	}
	if s.questions[s.cursor].ID == questionID {
		return nil
	}
	for i := 0; i < s.cursor; i++ {
		if s.questions[i].ID == questionID {
			return domain.ErrAlreadySubmitted
		}
	}
	return domain.ErrQuestionNotFound
}

func (s *Session) presentLocked() {
	question := s.questions[s.cursor]
	s.staged = domain.Submission{QuestionID: question.ID}
	s.emitLocked(s.questionEventLocked())
	s.armLocked(question)
}

func (s *Session) armLocked(question domain.Question) {
	questionID := question.ID
	s.timer.Start(question.TimeLimit(), func() { s.expire(questionID) })
}

func (s *Session) submitLocked(ctx context.Context) error {
	question := s.questions[s.cursor]
	s.timer.Stop()

	points, graded := Score(question, s.staged.Content)
	answer, err := s.deps.Answers.UpsertAnswer(ctx, domain.Answer{
		ID:          uuid.NewString(),
		QuizID:      s.quizID,
		StudentID:   s.studentID,
		QuestionID:  question.ID,
		Content:     s.staged.Content,
		ImageURL:    s.staged.ImageURL,
		Score:       points,
		Graded:      graded,
		SubmittedAt: s.deps.Clock.Now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) || errors.Is(err, domain.ErrQuestionNotFound) {
			s.failLocked(err)
			return err
		}
		// The question stays open; re-arming lets the timeout path retry.
		s.armLocked(question)
		s.emitLocked(SessionEvent{Type: SessionEventError, Index: s.cursor, Total: len(s.questions), Score: s.score, Error: err.Error()})
		return fmt.Errorf("record answer: %w", err)
	}

	s.score += answer.Score
	s.emitLocked(SessionEvent{Type: SessionEventRecorded, Index: s.cursor, Total: len(s.questions), Answer: &answer, Score: s.score})

	s.cursor++
	if s.cursor >= len(s.questions) {
		return s.finishLocked(ctx)
	}
	s.presentLocked()
	return nil
}

func (s *Session) finishLocked(ctx context.Context) error {
	s.timer.Stop()
	s.state = SessionFinished

	var err error
	if s.deps.Leaderboard != nil {
		entry, rerr := s.deps.Leaderboard.RecomputeTotal(ctx, s.quizID, s.studentID)
		if rerr != nil {
			err = fmt.Errorf("flush total: %w", rerr)
		} else {
			s.score = entry.TotalScore
		}
	}
	s.emitLocked(SessionEvent{Type: SessionEventFinished, Index: s.cursor, Total: len(s.questions), Score: s.score})
	s.releaseLocked()
	return err
}

func (s *Session) failLocked(err error) {
	s.timer.Stop()
	s.state = SessionBlocked
	s.emitLocked(SessionEvent{Type: SessionEventBlocked, Error: err.Error()})
	s.releaseLocked()
}

func (s *Session) releaseLocked() {
	closers := s.closers
	s.closers = nil
	for _, c := range closers {
		c()
	}
}

func (s *Session) questionEventLocked() SessionEvent {
	question := s.questions[s.cursor].Public()
	return SessionEvent{
		Type:     SessionEventQuestion,
		Index:    s.cursor,
		Total:    len(s.questions),
		Question: &question,
		Score:    s.score,
	}
}

func (s *Session) emitLocked(ev SessionEvent) {
	if s.listener == nil {
		return
	}
	ev.QuizID = s.quizID
	ev.State = s.state
	s.listener(ev)
}

func validOptionKey(key string) bool {
	for _, k := range domain.OptionKeys {
		if k == key {
			return true
		}
	}
	return false
}
