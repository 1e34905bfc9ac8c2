package app

import (
	"context"
	"log"
	"sort"

	"live-quiz-service/internal/domain"
)

// ScoreInput is the instructor's manual grade for an essay answer.
type ScoreInput struct {
	QuizID    string `json:"quizId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
	Score     int    `json:"score" validate:"gte=0"`
}

// Grading lets instructors score essay answers by hand.
type Grading struct {
	lifecycle   *Lifecycle
	questions   QuestionSource
	answers     AnswerStore
	profiles    ProfileStore
	leaderboard *Leaderboard
}

func NewGrading(lifecycle *Lifecycle, questions QuestionSource, answers AnswerStore, profiles ProfileStore, leaderboard *Leaderboard) *Grading {
	return &Grading{
		lifecycle:   lifecycle,
		questions:   questions,
		answers:     answers,
		profiles:    profiles,
		leaderboard: leaderboard,
	}
}

// ListGradeableAnswers returns the essay answers of a quiz ordered by
// question ordinal, then submission time, then id.
func (g *Grading) ListGradeableAnswers(ctx context.Context, actor domain.Principal, quizID string) ([]domain.GradeableAnswer, error) {
	if _, err := g.lifecycle.OwnedQuiz(ctx, actor, quizID); err != nil {
		return nil, err
	}
	questions, err := g.questions.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	essays := make(map[string]domain.Question)
	for _, q := range questions {
		if q.Type == domain.Essay {
			essays[q.ID] = q
		}
	}
	answers, err := g.answers.ListAnswersByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	out := make([]domain.GradeableAnswer, 0)
	for _, answer := range answers {
		question, ok := essays[answer.QuestionID]
		if !ok {
			continue
		}
		name, seen := names[answer.StudentID]
		if !seen {
			name = answer.StudentID
			if profile, err := g.profiles.GetProfile(ctx, answer.StudentID); err == nil && profile.FullName != "" {
				name = profile.FullName
			}
			names[answer.StudentID] = name
		}
		out = append(out, domain.GradeableAnswer{
			Answer:       answer,
			StudentName:  name,
			QuestionText: question.Text,
			Ordinal:      question.Ordinal,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		if !a.Answer.SubmittedAt.Equal(b.Answer.SubmittedAt) {
			return a.Answer.SubmittedAt.Before(b.Answer.SubmittedAt)
		}
		return a.Answer.ID < b.Answer.ID
	})
	return out, nil
}

// SetScore grades one essay answer and refreshes the student's total.
// Grading the same answer twice with the same score changes nothing.
func (g *Grading) SetScore(ctx context.Context, actor domain.Principal, answerID string, in ScoreInput) (domain.Answer, error) {
	if err := validateStruct(in); err != nil {
		return domain.Answer{}, err
	}
	if _, err := g.lifecycle.OwnedQuiz(ctx, actor, in.QuizID); err != nil {
		return domain.Answer{}, err
	}

	answer, err := g.answers.GetAnswer(ctx, answerID)
	if err != nil {
		return domain.Answer{}, err
	}
	if answer.QuizID != in.QuizID || answer.StudentID != in.StudentID {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	question, err := g.findQuestion(ctx, in.QuizID, answer.QuestionID)
	if err != nil {
		return domain.Answer{}, err
	}
	if question.Type != domain.Essay {
		return domain.Answer{}, domain.Invalid("answerId", "only essay answers are graded manually")
	}

	graded, err := g.answers.GradeAnswer(ctx, answerID, in.Score)
	if err != nil {
		return domain.Answer{}, err
	}
	log.Printf("quiz %s: answer %s of student %s graded %d", in.QuizID, answerID, in.StudentID, in.Score)

	if _, err := g.leaderboard.RecomputeTotal(ctx, in.QuizID, in.StudentID); err != nil {
		return graded, err
	}
	return graded, nil
}

func (g *Grading) findQuestion(ctx context.Context, quizID, questionID string) (domain.Question, error) {
	questions, err := g.questions.ListQuestions(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}
