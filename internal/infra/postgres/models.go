package postgres

import (
	"time"

	"github.com/uptrace/bun"
	"live-quiz-service/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID        string    `bun:"id,pk"`
	Title     string    `bun:"title,notnull"`
	Type      string    `bun:"type,notnull"`
	Code      string    `bun:"code,notnull"`
	OwnerID   string    `bun:"owner_id,notnull"`
	State     string    `bun:"state,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (r quizRow) toDomain() domain.Quiz {
	return domain.Quiz{
		ID:        r.ID,
		Title:     r.Title,
		Type:      r.Type,
		Code:      r.Code,
		OwnerID:   r.OwnerID,
		State:     domain.QuizState(r.State),
		CreatedAt: r.CreatedAt,
	}
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID               string          `bun:"id,pk"`
	QuizID           string          `bun:"quiz_id,notnull"`
	Ordinal          int             `bun:"ordinal,notnull"`
	Text             string          `bun:"text,notnull"`
	Type             string          `bun:"type,notnull"`
	TimeLimitSeconds int             `bun:"time_limit_seconds,notnull"`
	Options          []domain.Option `bun:"options,type:jsonb"`
	AnswerKey        string          `bun:"answer_key,notnull"`
	CreatedAt        time.Time       `bun:"created_at,notnull"`
}

func (r questionRow) toDomain() domain.Question {
	return domain.Question{
		ID:               r.ID,
		QuizID:           r.QuizID,
		Ordinal:          r.Ordinal,
		Text:             r.Text,
		Type:             domain.QuestionType(r.Type),
		TimeLimitSeconds: r.TimeLimitSeconds,
		Options:          r.Options,
		AnswerKey:        r.AnswerKey,
		CreatedAt:        r.CreatedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID          string    `bun:"id,pk"`
	QuizID      string    `bun:"quiz_id,notnull"`
	StudentID   string    `bun:"student_id,notnull"`
	QuestionID  string    `bun:"question_id,notnull"`
	Content     string    `bun:"content,notnull"`
	ImageURL    string    `bun:"image_url,notnull"`
	Score       int       `bun:"score,notnull"`
	Graded      bool      `bun:"graded,notnull"`
	SubmittedAt time.Time `bun:"submitted_at,notnull"`
}

func newAnswerRow(a domain.Answer) *answerRow {
	return &answerRow{
		ID:          a.ID,
		QuizID:      a.QuizID,
		StudentID:   a.StudentID,
		QuestionID:  a.QuestionID,
		Content:     a.Content,
		ImageURL:    a.ImageURL,
		Score:       a.Score,
		Graded:      a.Graded,
		SubmittedAt: a.SubmittedAt,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:          r.ID,
		QuizID:      r.QuizID,
		StudentID:   r.StudentID,
		QuestionID:  r.QuestionID,
		Content:     r.Content,
		ImageURL:    r.ImageURL,
		Score:       r.Score,
		Graded:      r.Graded,
		SubmittedAt: r.SubmittedAt,
	}
}

type entryRow struct {
	bun.BaseModel `bun:"table:leaderboard_entries,alias:le"`

	QuizID     string    `bun:"quiz_id,pk"`
	StudentID  string    `bun:"student_id,pk"`
	TotalScore int       `bun:"total_score,notnull"`
	Revision   int64     `bun:"revision,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (r entryRow) toDomain() domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		QuizID:     r.QuizID,
		StudentID:  r.StudentID,
		TotalScore: r.TotalScore,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type profileRow struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	UserID    string `bun:"user_id,pk"`
	FullName  string `bun:"full_name,notnull"`
	Role      string `bun:"role,notnull"`
	AvatarURL string `bun:"avatar_url,notnull"`
}

func answersToDomain(rows []answerRow) []domain.Answer {
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
