package domain

import "time"

// QuizState is the lifecycle state of a quiz.
type QuizState string

const (
	QuizPending  QuizState = "pending"
	QuizActive   QuizState = "active"
	QuizFinished QuizState = "finished"
)

// QuestionType decides how an answer is graded.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	Essay          QuestionType = "essay"
)

// Role is the participant role reported by the identity provider.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// OptionKeys are the labels of a multiple choice question, in display order.
var OptionKeys = []string{"A", "B", "C", "D"}

// Quiz is the instructor-owned container of questions.
type Quiz struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Code      string    `json:"code"`
	OwnerID   string    `json:"ownerId"`
	State     QuizState `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// Option is one labeled choice of a multiple choice question.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question belongs to exactly one quiz. Ordinal follows creation order.
type Question struct {
	ID               string       `json:"id"`
	QuizID           string       `json:"quizId"`
	Ordinal          int          `json:"ordinal"`
	Text             string       `json:"text"`
	Type             QuestionType `json:"type"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"` // 0 means unlimited
	Options          []Option     `json:"options,omitempty"`
	AnswerKey        string       `json:"answerKey,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// TimeLimit returns the question budget as a duration.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Public strips the answer key so the question can be shown to students.
func (q Question) Public() Question {
	q.AnswerKey = ""
	return q
}

// Answer is a student's recorded response to one question.
type Answer struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quizId"`
	StudentID   string    `json:"studentId"`
	QuestionID  string    `json:"questionId"`
	Content     string    `json:"content"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Score       int       `json:"score"`
	Graded      bool      `json:"graded"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Submission is what a participant hands in for a question. Empty content
// means nothing was staged before the timer ran out.
type Submission struct {
	QuestionID string
	Content    string
	ImageURL   string
}

// LeaderboardEntry is the materialized total for a (quiz, student) pair.
type LeaderboardEntry struct {
	QuizID     string    `json:"quizId"`
	StudentID  string    `json:"studentId"`
	TotalScore int       `json:"totalScore"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RankedEntry is a leaderboard row enriched for display.
type RankedEntry struct {
	Rank        int    `json:"rank"`
	StudentID   string `json:"studentId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	TotalScore  int    `json:"totalScore"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	QuizID    string        `json:"quizId"`
	Entries   []RankedEntry `json:"entries"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// GradeableAnswer is an essay answer joined with what the grader needs to see.
type GradeableAnswer struct {
	Answer       Answer `json:"answer"`
	StudentName  string `json:"studentName"`
	QuestionText string `json:"questionText"`
	Ordinal      int    `json:"ordinal"`
}

// Profile is the participant identity used for display.
type Profile struct {
	UserID    string `json:"userId"`
	FullName  string `json:"fullName"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   Role
	Name   string
}
