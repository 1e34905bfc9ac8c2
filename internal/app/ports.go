package app

import (
	"context"
	"io"
	"time"

	"live-quiz-service/internal/domain"
)

// QuizStore persists quizzes. UpdateQuizState is compare-and-set on the current state.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// GetQuizByCode prefers the quiz that is not finished when a code was reused.
	GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error)
	ListQuizzesByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error)
	ListQuizzesByState(ctx context.Context, state domain.QuizState) ([]domain.Quiz, error)
	UpdateQuizState(ctx context.Context, quizID string, from, to domain.QuizState) (domain.Quiz, error)
}

// QuestionStore persists the question bank. AddQuestion assigns the ordinal.
type QuestionStore interface {
	AddQuestion(ctx context.Context, question domain.Question) (domain.Question, error)
	DeleteQuestion(ctx context.Context, quizID, questionID string) error
	QuestionSource
}

// QuestionSource lists the questions of a quiz ordered by ordinal.
type QuestionSource interface {
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// AnswerSnapshot is a consistent read of one participant's answers.
// Revision increases with every answer write of the pair.
type AnswerSnapshot struct {
	Answers  []domain.Answer
	Revision int64
}

// AnswerStore persists answers, unique per (quiz, student, question).
type AnswerStore interface {
	// UpsertAnswer overwrites an earlier answer for the same question and keeps its id.
	UpsertAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error)
	GetAnswer(ctx context.Context, answerID string) (domain.Answer, error)
	// GradeAnswer sets the score and marks the answer graded.
	GradeAnswer(ctx context.Context, answerID string, score int) (domain.Answer, error)
	ListAnswersByQuiz(ctx context.Context, quizID string) ([]domain.Answer, error)
	SnapshotAnswers(ctx context.Context, quizID, studentID string) (AnswerSnapshot, error)
}

// LeaderboardStore persists materialized totals.
type LeaderboardStore interface {
	// UpsertEntry replaces the total for the pair only if revision is still the
	// pair's current answer revision; otherwise it returns domain.ErrConflict.
	UpsertEntry(ctx context.Context, entry domain.LeaderboardEntry, revision int64) (domain.LeaderboardEntry, error)
	// ListEntries returns a quiz's entries in arrival order.
	ListEntries(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
}

// ProfileStore persists participant profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	UpsertProfile(ctx context.Context, profile domain.Profile) error
}

// Store bundles every persistence port.
type Store interface {
	QuizStore
	QuestionStore
	AnswerStore
	LeaderboardStore
	ProfileStore
}

// Notifier publishes and delivers change events. Delivery is at-least-once;
// the returned cancel function must be called to release the subscription.
type Notifier interface {
	Publish(ctx context.Context, event domain.Event) error
	Subscribe(ctx context.Context, topic string) (<-chan domain.Event, func(), error)
}

// BlobStore keeps uploaded files and returns a stable URL for them.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Authenticator resolves a bearer token to the calling participant.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// Clock abstracts time so timers can be driven in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper cancels a pending timer callback.
type Stopper interface {
	Stop() bool
}

type systemClock struct{}

// SystemClock is the wall clock backed by time.AfterFunc.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }
