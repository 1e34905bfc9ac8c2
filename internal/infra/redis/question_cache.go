package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// QuestionCache caches question banks in Redis as JSON and falls back to the
// source on a miss. Banks are stored as: SET quiz:{quizID}:questions <json>
// A Redis outage degrades to reading the source directly.
type QuestionCache struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	if questions, ok := c.lookup(ctx, quizID); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := c.lookup(ctx, quizID); ok {
			return questions, nil
		}
		questions, err := c.source.ListQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if len(questions) > 0 {
			c.store(ctx, quizID, questions)
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached bank of a quiz.
func (c *QuestionCache) Invalidate(ctx context.Context, quizID string) error {
	return c.client.Del(ctx, questionsKey(quizID)).Err()
}

func (c *QuestionCache) lookup(ctx context.Context, quizID string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, questionsKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("quiz %s: question cache read: %v", quizID, err)
		}
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil || len(questions) == 0 {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) store(ctx context.Context, quizID string, questions []domain.Question) {
	raw, err := json.Marshal(questions)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, questionsKey(quizID), raw, c.ttlWithJitter()).Err(); err != nil {
		log.Printf("quiz %s: question cache write: %v", quizID, err)
	}
}

func questionsKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
