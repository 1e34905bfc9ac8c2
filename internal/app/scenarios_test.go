package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestAnswerThenTimeoutScoresFirstQuestionOnly(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t,
		multipleChoice("first", "B", 20),
		multipleChoice("second", "A", 20),
	)
	env.transition(t, quiz.ID, domain.QuizActive)
	session, rec := env.join(t, quiz, alice)

	_ = session.Select(questions[0].ID, "B", "")
	if err := session.Submit(context.Background(), questions[0].ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	env.clock.Advance(20 * time.Second)

	if session.State() != app.SessionFinished {
		t.Fatalf("expected finished, got %s", session.State())
	}
	if n := rec.count(app.SessionEventQuestion); n != 2 {
		t.Fatalf("expected each question presented once, got %d", n)
	}
	if got := env.total(t, quiz.ID, alice.UserID); got != 100 {
		t.Fatalf("expected total 100, got %d", got)
	}
	if env.clock.Pending() != 0 {
		t.Fatalf("expected no armed timers, got %d", env.clock.Pending())
	}
}

func TestGradingSameEssayTwiceDoesNotDouble(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t, essay("Explain tides", 0))
	env.transition(t, quiz.ID, domain.QuizActive)
	ctx := context.Background()
	session, _ := env.join(t, quiz, alice)

	_ = session.Select(questions[0].ID, "The moon pulls the water", "")
	if err := session.Submit(ctx, questions[0].ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	gradeable, err := env.services.Grading.ListGradeableAnswers(ctx, teacher, quiz.ID)
	if err != nil || len(gradeable) != 1 {
		t.Fatalf("list gradeable: %v %d", err, len(gradeable))
	}

	in := app.ScoreInput{QuizID: quiz.ID, StudentID: alice.UserID, Score: 85}
	for i := 0; i < 2; i++ {
		if _, err := env.services.Grading.SetScore(ctx, teacher, gradeable[0].Answer.ID, in); err != nil {
			t.Fatalf("set score: %v", err)
		}
	}
	if got := env.total(t, quiz.ID, alice.UserID); got != 85 {
		t.Fatalf("expected 85, got %d", got)
	}
}

func TestStudentsFinishingTogetherAreRanked(t *testing.T) {
	env := newTestEnv(t)
	quiz, questions := env.createQuiz(t, multipleChoice("only", "C", 30))
	env.transition(t, quiz.ID, domain.QuizActive)
	ctx := context.Background()

	aliceSession, _ := env.join(t, quiz, alice)
	bobSession, _ := env.join(t, quiz, bob)

	var wg sync.WaitGroup
	for _, tc := range []struct {
		session *app.Session
		choice  string
	}{{aliceSession, "A"}, {bobSession, "C"}} {
		wg.Add(1)
		go func(s *app.Session, choice string) {
			defer wg.Done()
			if err := s.Select(questions[0].ID, choice, ""); err != nil {
				t.Errorf("select: %v", err)
				return
			}
			if err := s.Submit(ctx, questions[0].ID); err != nil {
				t.Errorf("submit: %v", err)
			}
		}(tc.session, tc.choice)
	}
	wg.Wait()

	board, err := env.services.Leaderboard.Rank(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(board.Entries) != 2 {
		t.Fatalf("expected two entries, got %+v", board.Entries)
	}
	if board.Entries[0].StudentID != bob.UserID || board.Entries[0].TotalScore != 100 {
		t.Fatalf("expected bob first with 100, got %+v", board.Entries[0])
	}
	if board.Entries[1].StudentID != alice.UserID || board.Entries[1].TotalScore != 0 || board.Entries[1].Rank != 2 {
		t.Fatalf("expected alice second with 0, got %+v", board.Entries[1])
	}
}
