package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestSessionAnswersEveryQuestionAndFlushesTotal(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t,
		multipleChoice("1 + 1?", "B", 30),
		multipleChoice("2 + 2?", "D", 30),
	)
	env.transition(t, quiz.ID, domain.QuizActive)
	ctx := context.Background()

	session, rec := env.join(t, quiz, alice)
	if session.State() != app.SessionInProgress {
		t.Fatalf("expected in progress, got %s", session.State())
	}
	first := rec.last()
	if first.Type != app.SessionEventQuestion || first.Question.ID != questions[0].ID || first.Question.AnswerKey != "" {
		t.Fatalf("expected first question without key, got %+v", first)
	}

	// only the last staged choice counts
	if err := session.Select(questions[0].ID, "A", ""); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := session.Select(questions[0].ID, "B", ""); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := session.Submit(ctx, questions[0].ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if session.Score() != 100 {
		t.Fatalf("expected running score 100, got %d", session.Score())
	}

	if err := session.Select(questions[1].ID, "C", ""); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := session.Submit(ctx, questions[1].ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if session.State() != app.SessionFinished {
		t.Fatalf("expected finished, got %s", session.State())
	}
	if session.TimerActive() {
		t.Fatalf("timer must be stopped after finishing")
	}
	if got := env.total(t, quiz.ID, alice.UserID); got != 100 {
		t.Fatalf("expected flushed total 100, got %d", got)
	}
	if ev := rec.last(); ev.Type != app.SessionEventFinished || ev.Score != 100 {
		t.Fatalf("expected finished event with score, got %+v", ev)
	}
	if _, ok := env.sessions.Get(quiz.ID, alice.UserID); ok {
		t.Fatalf("finished session should leave the registry")
	}
	if err := session.Submit(ctx, questions[1].ID); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
}

func TestSessionDoubleSubmitIsRejected(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t,
		multipleChoice("first", "A", 30),
		multipleChoice("second", "A", 30),
	)
	env.transition(t, quiz.ID, domain.QuizActive)
	ctx := context.Background()
	session, rec := env.join(t, quiz, alice)

	_ = session.Select(questions[0].ID, "A", "")
	if err := session.Submit(ctx, questions[0].ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := session.Submit(ctx, questions[0].ID); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	if err := session.Select(questions[0].ID, "B", ""); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted on select, got %v", err)
	}
	if n := rec.count(app.SessionEventRecorded); n != 1 {
		t.Fatalf("expected one recorded answer, got %d", n)
	}
	if idx, q, ok := session.Current(); !ok || idx != 1 || q.ID != questions[1].ID {
		t.Fatalf("expected cursor on second question, got %d %s", idx, q.ID)
	}
}

func TestSessionTimerSubmitsStagedAnswer(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t,
		multipleChoice("timed", "B", 10),
		multipleChoice("untouched", "A", 5),
	)
	env.transition(t, quiz.ID, domain.QuizActive)
	session, rec := env.join(t, quiz, alice)

	_ = session.Select(questions[0].ID, "B", "")
	env.clock.Advance(9 * time.Second)
	if rec.count(app.SessionEventRecorded) != 0 {
		t.Fatalf("timer fired early")
	}
	env.clock.Advance(time.Second)
	if rec.count(app.SessionEventRecorded) != 1 || session.Score() != 100 {
		t.Fatalf("expected staged answer submitted on expiry, events %v", rec.types())
	}
	if err := session.Submit(context.Background(), questions[0].ID); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("late manual submit should be rejected, got %v", err)
	}

	// nothing staged: an empty answer is recorded and scores zero
	env.clock.Advance(5 * time.Second)
	if session.State() != app.SessionFinished {
		t.Fatalf("expected finished after second expiry, got %s", session.State())
	}
	snapshot, _ := env.store.SnapshotAnswers(context.Background(), quiz.ID, alice.UserID)
	if len(snapshot.Answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(snapshot.Answers))
	}
	for _, a := range snapshot.Answers {
		if a.QuestionID == questions[1].ID && (a.Content != "" || a.Score != 0) {
			t.Fatalf("timeout answer should be empty, got %+v", a)
		}
	}
	if got := env.total(t, quiz.ID, alice.UserID); got != 100 {
		t.Fatalf("expected total 100, got %d", got)
	}
}

func TestSessionManualSubmitDisarmsTimer(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t,
		multipleChoice("quick", "C", 10),
		multipleChoice("slow", "C", 60),
	)
	env.transition(t, quiz.ID, domain.QuizActive)
	session, rec := env.join(t, quiz, alice)

	_ = session.Select(questions[0].ID, "C", "")
	if err := session.Submit(context.Background(), questions[0].ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.clock.Advance(30 * time.Second)

	if n := rec.count(app.SessionEventRecorded); n != 1 {
		t.Fatalf("stale timer must not submit again, got %d recordings", n)
	}
	if _, q, ok := session.Current(); !ok || q.ID != questions[1].ID {
		t.Fatalf("expected second question still open")
	}
}

func TestSessionUnlimitedQuestionHasNoTimer(t *testing.T) {
	env := newTestEnv(t)
	quiz, _ := env.createQuiz(t, essay("Describe photosynthesis", 0))
	env.transition(t, quiz.ID, domain.QuizActive)
	session, _ := env.join(t, quiz, alice)

	if session.TimerActive() {
		t.Fatalf("zero time limit must not arm a timer")
	}
	env.clock.Advance(24 * time.Hour)
	if session.State() != app.SessionInProgress {
		t.Fatalf("expected question still open, got %s", session.State())
	}
}

func TestSessionEssayAnswerAwaitsGrading(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t, essay("Explain gravity", 120))
	env.transition(t, quiz.ID, domain.QuizActive)
	session, rec := env.join(t, quiz, alice)

	if err := session.Select(questions[0].ID, "Things fall down", "https://blobs.test/answers/x.png"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := session.Submit(context.Background(), questions[0].ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var recorded *domain.Answer
	rec.mu.Lock()
	for _, ev := range rec.events {
		if ev.Type == app.SessionEventRecorded {
			recorded = ev.Answer
		}
	}
	rec.mu.Unlock()
	if recorded == nil || recorded.Graded || recorded.Score != 0 || recorded.ImageURL == "" {
		t.Fatalf("expected ungraded essay with image, got %+v", recorded)
	}
	if got := env.total(t, quiz.ID, alice.UserID); got != 0 {
		t.Fatalf("expected total 0 before grading, got %d", got)
	}
}

func TestSessionRejectsUnknownChoice(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t, multipleChoice("pick", "A", 30))
	env.transition(t, quiz.ID, domain.QuizActive)
	session, _ := env.join(t, quiz, alice)

	if err := session.Select(questions[0].ID, "E", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := session.Select("other-question", "A", ""); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestSessionWaitsForActivation(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t, multipleChoice("soon", "A", 30))
	session, rec := env.join(t, quiz, alice)

	if session.State() != app.SessionWaiting || rec.last().Type != app.SessionEventWaiting {
		t.Fatalf("expected waiting session, got %s %v", session.State(), rec.types())
	}
	if err := session.Select(questions[0].ID, "A", ""); !errors.Is(err, domain.ErrSessionWaiting) {
		t.Fatalf("expected waiting error, got %v", err)
	}

	env.transition(t, quiz.ID, domain.QuizActive)
	eventually(t, "activation", func() bool { return session.State() == app.SessionInProgress })

	// duplicated notifications and pulls do not present the question again
	_ = env.notifier.Publish(context.Background(), domain.Event{Topic: domain.QuizTopic(quiz.ID), QuizID: quiz.ID, State: domain.QuizActive})
	if err := env.services.Quizzes.Refresh(context.Background(), session); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := session.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := rec.count(app.SessionEventQuestion); n != 1 {
		t.Fatalf("expected question presented once, got %d", n)
	}
}

func TestSessionEmptyQuizIsBlocked(t *testing.T) {
	env := newTestEnv(t)
	quiz, _ := env.createQuiz(t)
	env.transition(t, quiz.ID, domain.QuizActive)

	session, rec := env.join(t, quiz, alice)
	if session.State() != app.SessionBlocked {
		t.Fatalf("expected blocked, got %s", session.State())
	}
	if rec.last().Type != app.SessionEventBlocked {
		t.Fatalf("expected blocked event, got %v", rec.types())
	}
	if _, ok := env.sessions.Get(quiz.ID, alice.UserID); ok {
		t.Fatalf("blocked session should leave the registry")
	}
}

func TestSessionStaleDetachKeepsNewerListener(t *testing.T) {
	env := newTestEnv(t)
	quiz, _ := env.createQuiz(t, multipleChoice("q", "A", 30))
	session, _ := env.join(t, quiz, alice)

	first := &recorder{}
	detachFirst := session.Attach(first.record)
	second := &recorder{}
	session.Attach(second.record)

	// the first connection closing late must not silence the second
	detachFirst()
	if _, detached := session.DetachedSince(); detached {
		t.Fatalf("stale detach removed the current listener")
	}
	env.transition(t, quiz.ID, domain.QuizActive)
	eventually(t, "question on the newer listener", func() bool { return second.count(app.SessionEventQuestion) == 1 })
	if first.count(app.SessionEventQuestion) != 0 {
		t.Fatalf("replaced listener still receives events")
	}
}
