package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// Leaderboard materializes per-participant totals by re-summing answers.
// It never adds increments, so replayed or reordered triggers cannot drift.
type Leaderboard struct {
	answers    AnswerStore
	entries    LeaderboardStore
	profiles   ProfileStore
	notifier   Notifier
	clock      Clock
	maxRetries int
	backoff    time.Duration
}

func NewLeaderboard(answers AnswerStore, entries LeaderboardStore, profiles ProfileStore, notifier Notifier, clock Clock, opts Options) *Leaderboard {
	opts = opts.withDefaults()
	return &Leaderboard{
		answers:    answers,
		entries:    entries,
		profiles:   profiles,
		notifier:   notifier,
		clock:      clock,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
	}
}

// RecomputeTotal sums every answer of the pair and replaces its entry.
// A conflicting concurrent write makes it re-read and re-sum.
func (l *Leaderboard) RecomputeTotal(ctx context.Context, quizID, studentID string) (domain.LeaderboardEntry, error) {
	for attempt := 1; ; attempt++ {
		snapshot, err := l.answers.SnapshotAnswers(ctx, quizID, studentID)
		if err != nil {
			return domain.LeaderboardEntry{}, fmt.Errorf("snapshot answers: %w", err)
		}
		total := 0
		for _, answer := range snapshot.Answers {
			total += answer.Score
		}

		now := l.clock.Now()
		entry, err := l.entries.UpsertEntry(ctx, domain.LeaderboardEntry{
			QuizID:     quizID,
			StudentID:  studentID,
			TotalScore: total,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, snapshot.Revision)
		if err == nil {
			l.publish(ctx, quizID, studentID)
			return entry, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.LeaderboardEntry{}, fmt.Errorf("upsert leaderboard entry: %w", err)
		}
		if attempt >= l.maxRetries {
			return domain.LeaderboardEntry{}, fmt.Errorf("recompute %s/%s after %d attempts: %w", quizID, studentID, attempt, err)
		}

		select {
		case <-ctx.Done():
			return domain.LeaderboardEntry{}, ctx.Err()
		case <-time.After(l.backoff * time.Duration(attempt)):
		}
	}
}

// Rank orders a quiz's entries by total, highest first. Ties keep arrival
// order and share a rank.
func (l *Leaderboard) Rank(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	entries, err := l.entries.ListEntries(ctx, quizID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalScore > entries[j].TotalScore
	})

	ranked := make([]domain.RankedEntry, 0, len(entries))
	for i, entry := range entries {
		rank := i + 1
		if i > 0 && entry.TotalScore == entries[i-1].TotalScore {
			rank = ranked[i-1].Rank
		}
		row := domain.RankedEntry{
			Rank:        rank,
			StudentID:   entry.StudentID,
			DisplayName: entry.StudentID,
			TotalScore:  entry.TotalScore,
		}
		if l.profiles != nil {
			if profile, err := l.profiles.GetProfile(ctx, entry.StudentID); err == nil {
				if profile.FullName != "" {
					row.DisplayName = profile.FullName
				}
				row.AvatarURL = profile.AvatarURL
			}
		}
		ranked = append(ranked, row)
	}

	return domain.Leaderboard{
		QuizID:    quizID,
		Entries:   ranked,
		UpdatedAt: l.clock.Now(),
	}, nil
}

// Watch streams a fresh ranking on subscribe and after every change
// notification. Slow consumers only ever see the newest snapshot.
// The caller must invoke the returned cancel function to avoid leaks.
func (l *Leaderboard) Watch(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	events, unsubscribe, err := l.notifier.Subscribe(ctx, domain.LeaderboardTopic(quizID))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrNotificationDelivery, err)
	}
	initial, err := l.Rank(ctx, quizID)
	if err != nil {
		unsubscribe()
		return nil, nil, err
	}

	out := make(chan domain.Leaderboard, 1)
	out <- initial
	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				board, err := l.Rank(watchCtx, quizID)
				if err != nil {
					log.Printf("quiz %s: rank leaderboard: %v", quizID, err)
					continue
				}
				select {
				case out <- board:
				default:
					select {
					case <-out:
					default:
					}
					out <- board
				}
			}
		}
	}()
	return out, cancel, nil
}

// ReconcileQuiz recomputes every participant total of a quiz.
func (l *Leaderboard) ReconcileQuiz(ctx context.Context, quizID string) (int, error) {
	answers, err := l.answers.ListAnswersByQuiz(ctx, quizID)
	if err != nil {
		return 0, err
	}
	entries, err := l.entries.ListEntries(ctx, quizID)
	if err != nil {
		return 0, err
	}

	students := make(map[string]struct{})
	var order []string
	add := func(id string) {
		if _, ok := students[id]; !ok {
			students[id] = struct{}{}
			order = append(order, id)
		}
	}
	for _, entry := range entries {
		add(entry.StudentID)
	}
	for _, answer := range answers {
		add(answer.StudentID)
	}

	for _, studentID := range order {
		if _, err := l.RecomputeTotal(ctx, quizID, studentID); err != nil {
			return 0, err
		}
	}
	return len(order), nil
}

func (l *Leaderboard) publish(ctx context.Context, quizID, studentID string) {
	if l.notifier == nil {
		return
	}
	err := l.notifier.Publish(ctx, domain.Event{
		Topic:     domain.LeaderboardTopic(quizID),
		Kind:      domain.EventUpdate,
		QuizID:    quizID,
		StudentID: studentID,
		At:        l.clock.Now(),
	})
	if err != nil {
		log.Printf("quiz %s: publish leaderboard change: %v", quizID, err)
	}
}
