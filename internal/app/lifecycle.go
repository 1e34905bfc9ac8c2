package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// NewQuiz is the instructor input for creating a quiz.
type NewQuiz struct {
	Title string `json:"title" validate:"required,max=200"`
	Type  string `json:"type" validate:"max=64"`
}

// Lifecycle governs quiz creation and the pending -> active -> finished progression.
type Lifecycle struct {
	quizzes      QuizStore
	notifier     Notifier
	clock        Clock
	codeAttempts int
	codes        func() string
}

func NewLifecycle(quizzes QuizStore, notifier Notifier, clock Clock, opts Options) *Lifecycle {
	opts = opts.withDefaults()
	return &Lifecycle{
		quizzes:      quizzes,
		notifier:     notifier,
		clock:        clock,
		codeAttempts: opts.CodeAttempts,
		codes:        newCodeGenerator().next,
	}
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to domain.QuizState) bool {
	return (from == domain.QuizPending && to == domain.QuizActive) ||
		(from == domain.QuizActive && to == domain.QuizFinished)
}

// CreateQuiz creates a pending quiz with a fresh join code.
func (l *Lifecycle) CreateQuiz(ctx context.Context, owner domain.Principal, in NewQuiz) (domain.Quiz, error) {
	if owner.Role != domain.RoleTeacher {
		return domain.Quiz{}, domain.ErrForbidden
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := validateStruct(in); err != nil {
		return domain.Quiz{}, err
	}

	for attempt := 1; ; attempt++ {
		quiz := domain.Quiz{
			ID:        uuid.NewString(),
			Title:     in.Title,
			Type:      in.Type,
			Code:      l.codes(),
			OwnerID:   owner.UserID,
			State:     domain.QuizPending,
			CreatedAt: l.clock.Now(),
		}
		err := l.quizzes.CreateQuiz(ctx, quiz)
		if err == nil {
			log.Printf("quiz %s created by %s with code %s", quiz.ID, owner.UserID, quiz.Code)
			return quiz, nil
		}
		if !errors.Is(err, domain.ErrCodeTaken) || attempt >= l.codeAttempts {
			return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
		}
	}
}

// ListQuizzes returns the quizzes owned by the caller, newest first.
func (l *Lifecycle) ListQuizzes(ctx context.Context, owner domain.Principal) ([]domain.Quiz, error) {
	return l.quizzes.ListQuizzesByOwner(ctx, owner.UserID)
}

// OwnedQuiz loads a quiz and checks the caller owns it.
func (l *Lifecycle) OwnedQuiz(ctx context.Context, actor domain.Principal, quizID string) (domain.Quiz, error) {
	quiz, err := l.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.OwnerID != actor.UserID {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}

// Lookup resolves a join code. Finished quizzes are closed to joiners.
func (l *Lifecycle) Lookup(ctx context.Context, code string) (domain.Quiz, error) {
	quiz, err := l.quizzes.GetQuizByCode(ctx, NormalizeCode(code))
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.State == domain.QuizFinished {
		return quiz, domain.ErrQuizClosed
	}
	return quiz, nil
}

// Transition moves a quiz forward and notifies every waiting session.
func (l *Lifecycle) Transition(ctx context.Context, actor domain.Principal, quizID string, target domain.QuizState) (domain.Quiz, error) {
	quiz, err := l.OwnedQuiz(ctx, actor, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !CanTransition(quiz.State, target) {
		return domain.Quiz{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, quiz.State, target)
	}

	updated, err := l.quizzes.UpdateQuizState(ctx, quizID, quiz.State, target)
	if errors.Is(err, domain.ErrConflict) {
		return domain.Quiz{}, fmt.Errorf("%w: quiz %s changed concurrently", domain.ErrInvalidTransition, quizID)
	}
	if err != nil {
		return domain.Quiz{}, err
	}

	log.Printf("quiz %s: %s -> %s", quizID, quiz.State, target)
	if l.notifier != nil {
		err := l.notifier.Publish(ctx, domain.Event{
			Topic:  domain.QuizTopic(quizID),
			Kind:   domain.EventUpdate,
			QuizID: quizID,
			State:  updated.State,
			At:     l.clock.Now(),
		})
		if err != nil {
			// Sessions still observe the change through their refresh path.
			log.Printf("quiz %s: publish state change: %v", quizID, err)
		}
	}
	return updated, nil
}
