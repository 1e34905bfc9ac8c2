package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type pairKey struct {
	quizID    string
	studentID string
}

type answerKey struct {
	quizID     string
	studentID  string
	questionID string
}

type entryRecord struct {
	entry    domain.LeaderboardEntry
	revision int64
}

// Store is an in-memory implementation of app.Store. One mutex serializes
// every write, which makes the revision check of UpsertEntry atomic.
type Store struct {
	mu         sync.RWMutex
	quizzes    map[string]domain.Quiz
	questions  map[string][]domain.Question
	ordinals   map[string]int
	answers    map[string]domain.Answer
	answerIDs  map[answerKey]string
	revisions  map[pairKey]int64
	entries    map[pairKey]entryRecord
	entryOrder map[string][]string
	profiles   map[string]domain.Profile
}

var _ app.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		quizzes:    make(map[string]domain.Quiz),
		questions:  make(map[string][]domain.Question),
		ordinals:   make(map[string]int),
		answers:    make(map[string]domain.Answer),
		answerIDs:  make(map[answerKey]string),
		revisions:  make(map[pairKey]int64),
		entries:    make(map[pairKey]entryRecord),
		entryOrder: make(map[string][]string),
		profiles:   make(map[string]domain.Profile),
	}
}

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.quizzes {
		if existing.State != domain.QuizFinished && existing.Code == quiz.Code {
			return domain.ErrCodeTaken
		}
	}
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *Store) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) GetQuizByCode(_ context.Context, code string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found domain.Quiz
	ok := false
	for _, quiz := range s.quizzes {
		if quiz.Code != code {
			continue
		}
		if quiz.State != domain.QuizFinished {
			return quiz, nil
		}
		if !ok || quiz.CreatedAt.After(found.CreatedAt) {
			found, ok = quiz, true
		}
	}
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return found, nil
}

func (s *Store) ListQuizzesByOwner(_ context.Context, ownerID string) ([]domain.Quiz, error) {
	return s.listQuizzes(func(q domain.Quiz) bool { return q.OwnerID == ownerID }), nil
}

func (s *Store) ListQuizzesByState(_ context.Context, state domain.QuizState) ([]domain.Quiz, error) {
	return s.listQuizzes(func(q domain.Quiz) bool { return q.State == state }), nil
}

func (s *Store) listQuizzes(match func(domain.Quiz) bool) []domain.Quiz {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0)
	for _, quiz := range s.quizzes {
		if match(quiz) {
			out = append(out, quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) UpdateQuizState(_ context.Context, quizID string, from, to domain.QuizState) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if quiz.State != from {
		return domain.Quiz{}, domain.ErrConflict
	}
	quiz.State = to
	s.quizzes[quizID] = quiz
	return quiz, nil
}

func (s *Store) AddQuestion(_ context.Context, question domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[question.QuizID]; !ok {
		return domain.Question{}, domain.ErrQuizNotFound
	}
	s.ordinals[question.QuizID]++
	question.Ordinal = s.ordinals[question.QuizID]
	question.Options = append([]domain.Option(nil), question.Options...)
	s.questions[question.QuizID] = append(s.questions[question.QuizID], question)
	return question, nil
}

func (s *Store) DeleteQuestion(_ context.Context, quizID, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	questions := s.questions[quizID]
	for i, q := range questions {
		if q.ID == questionID {
			s.questions[quizID] = append(questions[:i:i], questions[i+1:]...)
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (s *Store) ListQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	out := make([]domain.Question, 0, len(s.questions[quizID]))
	for _, q := range s.questions[quizID] {
		q.Options = append([]domain.Option(nil), q.Options...)
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (s *Store) UpsertAnswer(_ context.Context, answer domain.Answer) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[answer.QuizID]; !ok {
		return domain.Answer{}, domain.ErrQuizNotFound
	}
	if !s.hasQuestionLocked(answer.QuizID, answer.QuestionID) {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}

	key := answerKey{answer.QuizID, answer.StudentID, answer.QuestionID}
	if id, ok := s.answerIDs[key]; ok {
		answer.ID = id
	} else {
		s.answerIDs[key] = answer.ID
	}
	s.answers[answer.ID] = answer
	s.revisions[pairKey{answer.QuizID, answer.StudentID}]++
	return answer, nil
}

func (s *Store) GetAnswer(_ context.Context, answerID string) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[answerID]
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	return answer, nil
}

func (s *Store) GradeAnswer(_ context.Context, answerID string, score int) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	answer, ok := s.answers[answerID]
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	answer.Score = score
	answer.Graded = true
	s.answers[answerID] = answer
	s.revisions[pairKey{answer.QuizID, answer.StudentID}]++
	return answer, nil
}

func (s *Store) ListAnswersByQuiz(_ context.Context, quizID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0)
	for _, answer := range s.answers {
		if answer.QuizID == quizID {
			out = append(out, answer)
		}
	}
	sortAnswers(out)
	return out, nil
}

func (s *Store) SnapshotAnswers(_ context.Context, quizID, studentID string) (app.AnswerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := app.AnswerSnapshot{Revision: s.revisions[pairKey{quizID, studentID}]}
	for _, answer := range s.answers {
		if answer.QuizID == quizID && answer.StudentID == studentID {
			snapshot.Answers = append(snapshot.Answers, answer)
		}
	}
	sortAnswers(snapshot.Answers)
	return snapshot, nil
}

func (s *Store) UpsertEntry(_ context.Context, entry domain.LeaderboardEntry, revision int64) (domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{entry.QuizID, entry.StudentID}
	if s.revisions[key] != revision {
		return domain.LeaderboardEntry{}, domain.ErrConflict
	}
	existing, ok := s.entries[key]
	if ok {
		if existing.revision > revision {
			return domain.LeaderboardEntry{}, domain.ErrConflict
		}
		entry.CreatedAt = existing.entry.CreatedAt
	} else {
		s.entryOrder[entry.QuizID] = append(s.entryOrder[entry.QuizID], entry.StudentID)
	}
	s.entries[key] = entryRecord{entry: entry, revision: revision}
	return entry, nil
}

func (s *Store) ListEntries(_ context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LeaderboardEntry, 0, len(s.entryOrder[quizID]))
	for _, studentID := range s.entryOrder[quizID] {
		out = append(out, s.entries[pairKey{quizID, studentID}].entry)
	}
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Store) UpsertProfile(_ context.Context, profile domain.Profile) error {
	if profile.UserID == "" {
		return domain.Invalid("userId", "required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *Store) hasQuestionLocked(quizID, questionID string) bool {
	for _, q := range s.questions[quizID] {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

func sortAnswers(answers []domain.Answer) {
	sort.Slice(answers, func(i, j int) bool {
		if !answers[i].SubmittedAt.Equal(answers[j].SubmittedAt) {
			return answers[i].SubmittedAt.Before(answers[j].SubmittedAt)
		}
		return answers[i].ID < answers[j].ID
	})
}
