package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func TestForwarderMirrorsEventsAndDelivers(t *testing.T) {
	local := memory.NewNotifier()
	ch := &fakeChannel{}
	f := newForwarder(local, ch, "quiz.events")
	ctx := context.Background()

	topic := domain.LeaderboardTopic("quiz-1")
	events, cancel, err := f.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	ev := domain.Event{Topic: topic, Kind: domain.EventUpdate, QuizID: "quiz-1", StudentID: "s1", At: time.Now()}
	if err := f.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-events:
		if got.StudentID != "s1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("local subscriber not notified")
	}

	if len(ch.keys) != 1 || ch.keys[0] != "leaderboard.update" {
		t.Fatalf("unexpected routing keys %v", ch.keys)
	}
	var decoded domain.Event
	if err := json.Unmarshal(ch.published[0].Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.QuizID != "quiz-1" || ch.published[0].ContentType != "application/json" {
		t.Fatalf("unexpected message %+v", ch.published[0])
	}
}

func TestForwarderToleratesBrokerFailure(t *testing.T) {
	f := newForwarder(memory.NewNotifier(), &fakeChannel{err: errors.New("channel closed")}, "quiz.events")
	ev := domain.Event{Topic: domain.QuizTopic("q"), Kind: domain.EventUpdate, QuizID: "q"}
	if err := f.Publish(context.Background(), ev); err != nil {
		t.Fatalf("broker failure must not fail publish, got %v", err)
	}
}

func TestRoutingKey(t *testing.T) {
	cases := []struct {
		event domain.Event
		want  string
	}{
		{domain.Event{Topic: domain.QuizTopic("a"), Kind: domain.EventUpdate}, "quiz.update"},
		{domain.Event{Topic: domain.LeaderboardTopic("a"), Kind: domain.EventInsert}, "leaderboard.insert"},
		{domain.Event{Topic: domain.QuizTopic("a")}, "quiz.update"},
	}
	for _, tc := range cases {
		if got := RoutingKey(tc.event); got != tc.want {
			t.Fatalf("routing key for %+v: expected %s, got %s", tc.event, tc.want, got)
		}
	}
}
