package domain

import "time"

// EventKind mirrors row-change notifications of the backing store.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Event is a change notification. Delivery is at-least-once and unordered
// across topics, so consumers must treat it as a hint to re-read state.
type Event struct {
	Topic     string    `json:"topic"`
	Kind      EventKind `json:"kind"`
	QuizID    string    `json:"quizId"`
	StudentID string    `json:"studentId,omitempty"`
	State     QuizState `json:"state,omitempty"`
	At        time.Time `json:"at"`
}

// QuizTopic carries lifecycle changes of one quiz.
func QuizTopic(quizID string) string { return "quiz:" + quizID }

// LeaderboardTopic carries leaderboard changes of one quiz.
func LeaderboardTopic(quizID string) string { return "leaderboard:" + quizID }
