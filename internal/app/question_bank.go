package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// OptionInput is one labeled choice in a NewQuestion.
type OptionInput struct {
	Key  string `json:"key" validate:"required,oneof=A B C D"`
	Text string `json:"text" validate:"required,max=500"`
}

// NewQuestion is the instructor input for adding a question.
type NewQuestion struct {
	Text             string              `json:"text" validate:"required,max=2000"`
	Type             domain.QuestionType `json:"type" validate:"required,oneof=multiple_choice essay"`
	TimeLimitSeconds int                 `json:"timeLimitSeconds" validate:"gte=0,lte=3600"`
	Options          []OptionInput       `json:"options" validate:"omitempty,dive"`
	AnswerKey        string              `json:"answerKey"`
}

// QuestionBank edits the ordered questions of a quiz. Questions can only
// change while the quiz is pending.
type QuestionBank struct {
	lifecycle *Lifecycle
	questions QuestionStore
	clock     Clock
}

func NewQuestionBank(lifecycle *Lifecycle, questions QuestionStore, clock Clock) *QuestionBank {
	return &QuestionBank{lifecycle: lifecycle, questions: questions, clock: clock}
}

// AddQuestion appends a question to the end of the bank.
func (b *QuestionBank) AddQuestion(ctx context.Context, actor domain.Principal, quizID string, in NewQuestion) (domain.Question, error) {
	question, err := buildQuestion(in)
	if err != nil {
		return domain.Question{}, err
	}
	quiz, err := b.lifecycle.OwnedQuiz(ctx, actor, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	if quiz.State != domain.QuizPending {
		return domain.Question{}, domain.ErrQuizLocked
	}

	question.ID = uuid.NewString()
	question.QuizID = quizID
	question.CreatedAt = b.clock.Now()
	return b.questions.AddQuestion(ctx, question)
}

// DeleteQuestion removes a question from a pending quiz.
func (b *QuestionBank) DeleteQuestion(ctx context.Context, actor domain.Principal, quizID, questionID string) error {
	quiz, err := b.lifecycle.OwnedQuiz(ctx, actor, quizID)
	if err != nil {
		return err
	}
	if quiz.State != domain.QuizPending {
		return domain.ErrQuizLocked
	}
	return b.questions.DeleteQuestion(ctx, quizID, questionID)
}

// ListQuestions returns the full bank, answer keys included, to the owner.
func (b *QuestionBank) ListQuestions(ctx context.Context, actor domain.Principal, quizID string) ([]domain.Question, error) {
	if _, err := b.lifecycle.OwnedQuiz(ctx, actor, quizID); err != nil {
		return nil, err
	}
	return b.questions.ListQuestions(ctx, quizID)
}

func buildQuestion(in NewQuestion) (domain.Question, error) {
	in.Text = strings.TrimSpace(in.Text)
	in.AnswerKey = strings.TrimSpace(in.AnswerKey)
	if err := validateStruct(in); err != nil {
		return domain.Question{}, err
	}

	question := domain.Question{
		Text:             in.Text,
		Type:             in.Type,
		TimeLimitSeconds: in.TimeLimitSeconds,
	}
	if in.Type == domain.Essay {
		if len(in.Options) > 0 {
			return domain.Question{}, domain.Invalid("options", "essay questions have no options")
		}
		if in.AnswerKey != "" {
			return domain.Question{}, domain.Invalid("answerKey", "essay questions are graded manually")
		}
		return question, nil
	}

	if len(in.Options) != len(domain.OptionKeys) {
		return domain.Question{}, domain.Invalid("options", "multiple choice needs exactly 4 options")
	}
	byKey := make(map[string]string, len(in.Options))
	for _, opt := range in.Options {
		if _, dup := byKey[opt.Key]; dup {
			return domain.Question{}, domain.Invalid("options", "duplicate option "+opt.Key)
		}
		byKey[opt.Key] = strings.TrimSpace(opt.Text)
	}
	for _, key := range domain.OptionKeys {
		question.Options = append(question.Options, domain.Option{Key: key, Text: byKey[key]})
	}
	if _, ok := byKey[in.AnswerKey]; !ok {
		return domain.Question{}, domain.Invalid("answerKey", "must be one of A, B, C, D")
	}
	question.AnswerKey = in.AnswerKey
	return question, nil
}
