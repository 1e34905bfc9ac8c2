package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Store implements app.Store on Postgres through bun.
type Store struct {
	db *bun.DB
}

var _ app.Store = (*Store)(nil)

// Open connects bun to the database at dsn.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	row := &quizRow{
		ID:        quiz.ID,
		Title:     quiz.Title,
		Type:      quiz.Type,
		Code:      quiz.Code,
		OwnerID:   quiz.OwnerID,
		State:     string(quiz.State),
		CreatedAt: quiz.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return translate(err, domain.ErrCodeTaken)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var row quizRow
	err := s.db.NewSelect().Model(&row).Where("q.id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("get quiz: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	var row quizRow
	err := s.db.NewSelect().Model(&row).
		Where("upper(q.code) = upper(?)", code).
		OrderExpr("q.state = ? ASC", string(domain.QuizFinished)).
		OrderExpr("q.created_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("get quiz by code: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListQuizzesByOwner(ctx context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.listQuizzes(ctx, "q.owner_id = ?", ownerID)
}

func (s *Store) ListQuizzesByState(ctx context.Context, state domain.QuizState) ([]domain.Quiz, error) {
	return s.listQuizzes(ctx, "q.state = ?", string(state))
}

func (s *Store) listQuizzes(ctx context.Context, where string, arg interface{}) ([]domain.Quiz, error) {
	var rows []quizRow
	err := s.db.NewSelect().Model(&rows).
		Where(where, arg).
		OrderExpr("q.created_at DESC, q.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]domain.Quiz, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateQuizState(ctx context.Context, quizID string, from, to domain.QuizState) (domain.Quiz, error) {
	var row quizRow
	err := s.db.NewUpdate().Model(&row).
		Set("state = ?", string(to)).
		Where("q.id = ? AND q.state = ?", quizID, string(from)).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetQuiz(ctx, quizID); getErr != nil {
			return domain.Quiz{}, getErr
		}
		return domain.Quiz{}, domain.ErrConflict
	}
	if err != nil {
		return domain.Quiz{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

// AddQuestion appends under a lock on the quiz row so concurrent adds get
// distinct ordinals.
func (s *Store) AddQuestion(ctx context.Context, question domain.Question) (domain.Question, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var quizID string
		err := tx.NewSelect().Table("quizzes").Column("id").
			Where("id = ?", question.QuizID).For("UPDATE").
			Scan(ctx, &quizID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrQuizNotFound
		}
		if err != nil {
			return err
		}

		var last int
		err = tx.NewSelect().Table("questions").ColumnExpr("coalesce(max(ordinal), 0)").
			Where("quiz_id = ?", question.QuizID).
			Scan(ctx, &last)
		if err != nil {
			return err
		}
		question.Ordinal = last + 1

		_, err = tx.NewInsert().Model(&questionRow{
			ID:               question.ID,
			QuizID:           question.QuizID,
			Ordinal:          question.Ordinal,
			Text:             question.Text,
			Type:             string(question.Type),
			TimeLimitSeconds: question.TimeLimitSeconds,
			Options:          question.Options,
			AnswerKey:        question.AnswerKey,
			CreatedAt:        question.CreatedAt,
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Question{}, translate(err, nil)
	}
	return question, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, quizID, questionID string) error {
	res, err := s.db.NewDelete().Model((*questionRow)(nil)).
		Where("id = ? AND quiz_id = ?", questionID, quizID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).
		Where("qn.quiz_id = ?", quizID).
		OrderExpr("qn.ordinal ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]domain.Question, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// UpsertAnswer writes the answer and bumps the participant revision in one
// transaction. A resubmission overwrites the row and keeps its id.
func (s *Store) UpsertAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error) {
	row := newAnswerRow(answer)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*quizRow)(nil)).Where("q.id = ?", answer.QuizID).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrQuizNotFound
		}
		exists, err = tx.NewSelect().Model((*questionRow)(nil)).
			Where("qn.id = ? AND qn.quiz_id = ?", answer.QuestionID, answer.QuizID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrQuestionNotFound
		}

		_, err = tx.NewInsert().Model(row).
			On("CONFLICT (quiz_id, student_id, question_id) DO UPDATE").
			Set("content = EXCLUDED.content").
			Set("image_url = EXCLUDED.image_url").
			Set("score = EXCLUDED.score").
			Set("graded = EXCLUDED.graded").
			Set("submitted_at = EXCLUDED.submitted_at").
			Returning("*").
			Exec(ctx)
		if err != nil {
			return err
		}
		return bumpRevision(ctx, tx, answer.QuizID, answer.StudentID)
	})
	if err != nil {
		return domain.Answer{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) GetAnswer(ctx context.Context, answerID string) (domain.Answer, error) {
	var row answerRow
	err := s.db.NewSelect().Model(&row).Where("a.id = ?", answerID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("get answer: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GradeAnswer(ctx context.Context, answerID string, score int) (domain.Answer, error) {
	var row answerRow
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewUpdate().Model(&row).
			Set("score = ?", score).
			Set("graded = TRUE").
			Where("a.id = ?", answerID).
			Returning("*").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAnswerNotFound
		}
		if err != nil {
			return err
		}
		return bumpRevision(ctx, tx, row.QuizID, row.StudentID)
	})
	if err != nil {
		return domain.Answer{}, translate(err, nil)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAnswersByQuiz(ctx context.Context, quizID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("a.quiz_id = ?", quizID).
		OrderExpr("a.submitted_at ASC, a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answersToDomain(rows), nil
}

// SnapshotAnswers reads the revision and the answers under one
// repeatable-read snapshot so the sum always matches the revision.
func (s *Store) SnapshotAnswers(ctx context.Context, quizID, studentID string) (app.AnswerSnapshot, error) {
	var snapshot app.AnswerSnapshot
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := s.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		revision, err := currentRevision(ctx, tx, quizID, studentID, false)
		if err != nil {
			return err
		}
		var rows []answerRow
		err = tx.NewSelect().Model(&rows).
			Where("a.quiz_id = ? AND a.student_id = ?", quizID, studentID).
			OrderExpr("a.submitted_at ASC, a.id ASC").
			Scan(ctx)
		if err != nil {
			return err
		}
		snapshot = app.AnswerSnapshot{Answers: answersToDomain(rows), Revision: revision}
		return nil
	})
	if err != nil {
		return app.AnswerSnapshot{}, translate(err, nil)
	}
	return snapshot, nil
}

// UpsertEntry locks the participant revision row and writes the entry only
// while revision is still current. The WHERE on the conflict update keeps a
// stored entry from ever moving back to an older revision.
func (s *Store) UpsertEntry(ctx context.Context, entry domain.LeaderboardEntry, revision int64) (domain.LeaderboardEntry, error) {
	var saved entryRow
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := currentRevision(ctx, tx, entry.QuizID, entry.StudentID, true)
		if err != nil {
			return err
		}
		if current != revision {
			return domain.ErrConflict
		}

		res, err := tx.NewInsert().Model(&entryRow{
			QuizID:     entry.QuizID,
			StudentID:  entry.StudentID,
			TotalScore: entry.TotalScore,
			Revision:   revision,
			CreatedAt:  entry.CreatedAt,
			UpdatedAt:  entry.UpdatedAt,
		}).
			On("CONFLICT (quiz_id, student_id) DO UPDATE").
			Set("total_score = EXCLUDED.total_score").
			Set("revision = EXCLUDED.revision").
			Set("updated_at = EXCLUDED.updated_at").
			Where("le.revision <= EXCLUDED.revision").
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConflict
		}
		return tx.NewSelect().Model(&saved).
			Where("le.quiz_id = ? AND le.student_id = ?", entry.QuizID, entry.StudentID).
			Scan(ctx)
	})
	if err != nil {
		return domain.LeaderboardEntry{}, translate(err, nil)
	}
	return saved.toDomain(), nil
}

func (s *Store) ListEntries(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	var rows []entryRow
	err := s.db.NewSelect().Model(&rows).
		Where("le.quiz_id = ?", quizID).
		OrderExpr("le.created_at ASC, le.student_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard entries: %w", err)
	}
	out := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	var row profileRow
	err := s.db.NewSelect().Model(&row).Where("p.user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return domain.Profile{
		UserID:    row.UserID,
		FullName:  row.FullName,
		Role:      domain.Role(row.Role),
		AvatarURL: row.AvatarURL,
	}, nil
}

func (s *Store) UpsertProfile(ctx context.Context, profile domain.Profile) error {
	if profile.UserID == "" {
		return domain.Invalid("userId", "required")
	}
	_, err := s.db.NewInsert().Model(&profileRow{
		UserID:    profile.UserID,
		FullName:  profile.FullName,
		Role:      string(profile.Role),
		AvatarURL: profile.AvatarURL,
	}).
		On("CONFLICT (user_id) DO UPDATE").
		Set("full_name = EXCLUDED.full_name").
		Set("role = EXCLUDED.role").
		Set("avatar_url = EXCLUDED.avatar_url").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func bumpRevision(ctx context.Context, tx bun.Tx, quizID, studentID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO participant_revisions (quiz_id, student_id, revision)
		VALUES (?, ?, 1)
		ON CONFLICT (quiz_id, student_id)
		DO UPDATE SET revision = participant_revisions.revision + 1`,
		quizID, studentID)
	return err
}

func currentRevision(ctx context.Context, tx bun.Tx, quizID, studentID string, lock bool) (int64, error) {
	q := tx.NewSelect().Table("participant_revisions").Column("revision").
		Where("quiz_id = ? AND student_id = ?", quizID, studentID)
	if lock {
		q = q.For("UPDATE")
	}
	var revision int64
	err := q.Scan(ctx, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return revision, err
}
