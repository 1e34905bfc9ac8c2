package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

var (
	teacher = domain.Principal{UserID: "teacher-1", Role: domain.RoleTeacher, Name: "Ms Frizzle"}
	alice   = domain.Principal{UserID: "student-a", Role: domain.RoleStudent, Name: "Alice"}
	bob     = domain.Principal{UserID: "student-b", Role: domain.RoleStudent, Name: "Bob"}
)

type testEnv struct {
	store    *memory.Store
	notifier *memory.Notifier
	sessions *memory.SessionStore
	blobs    *memory.BlobStore
	clock    *app.FakeClock
	services *app.Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    memory.NewStore(),
		notifier: memory.NewNotifier(),
		sessions: memory.NewSessionStore(),
		blobs:    memory.NewBlobStore("https://blobs.test"),
		clock:    app.NewFakeClock(time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)),
	}
	env.services = app.NewServices(app.Deps{
		Store:    env.store,
		Sessions: env.sessions,
		Notifier: env.notifier,
		Blobs:    env.blobs,
		Clock:    env.clock,
		Options: app.Options{
			RetryBackoff:    time.Millisecond,
			RefreshInterval: 20 * time.Millisecond,
			IdleTimeout:     time.Minute,
		},
	})
	t.Cleanup(func() {
		for _, s := range env.sessions.List() {
			s.Abandon()
		}
	})
	return env
}

func multipleChoice(text, key string, limitSeconds int) app.NewQuestion {
	return app.NewQuestion{
		Text:             text,
		Type:             domain.MultipleChoice,
		TimeLimitSeconds: limitSeconds,
		Options: []app.OptionInput{
			{Key: "A", Text: "one"},
			{Key: "B", Text: "two"},
			{Key: "C", Text: "three"},
			{Key: "D", Text: "four"},
		},
		AnswerKey: key,
	}
}

func essay(text string, limitSeconds int) app.NewQuestion {
	return app.NewQuestion{Text: text, Type: domain.Essay, TimeLimitSeconds: limitSeconds}
}

// createQuiz makes a pending quiz owned by teacher with the given questions.
func (e *testEnv) createQuiz(t *testing.T, questions ...app.NewQuestion) (domain.Quiz, []domain.Question) {
	t.Helper()
	ctx := context.Background()
	quiz, err := e.services.Lifecycle.CreateQuiz(ctx, teacher, app.NewQuiz{Title: "Weekly check"})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	var added []domain.Question
	for _, in := range questions {
		q, err := e.services.Questions.AddQuestion(ctx, teacher, quiz.ID, in)
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
		added = append(added, q)
	}
	return quiz, added
}

func (e *testEnv) transition(t *testing.T, quizID string, target domain.QuizState) {
	t.Helper()
	if _, err := e.services.Lifecycle.Transition(context.Background(), teacher, quizID, target); err != nil {
		t.Fatalf("transition to %s: %v", target, err)
	}
}

func (e *testEnv) join(t *testing.T, quiz domain.Quiz, student domain.Principal) (*app.Session, *recorder) {
	t.Helper()
	session, err := e.services.Quizzes.Join(context.Background(), quiz.Code, student)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	rec := &recorder{}
	session.Attach(rec.record)
	return session, rec
}

func (e *testEnv) total(t *testing.T, quizID, studentID string) int {
	t.Helper()
	entries, err := e.store.ListEntries(context.Background(), quizID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	for _, entry := range entries {
		if entry.StudentID == studentID {
			return entry.TotalScore
		}
	}
	t.Fatalf("no leaderboard entry for %s", studentID)
	return 0
}

type recorder struct {
	mu     sync.Mutex
	events []app.SessionEvent
}

func (r *recorder) record(ev app.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) last() app.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return app.SessionEvent{}
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, typ := range r.types() {
		if typ == eventType {
			n++
		}
	}
	return n
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
