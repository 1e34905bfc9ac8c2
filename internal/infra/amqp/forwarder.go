package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/streadway/amqp"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// publisher is the slice of *amqp.Channel the forwarder needs.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Forwarder mirrors every published event to a topic exchange so services
// outside the process can follow quiz and leaderboard changes. Subscriptions
// are served by the wrapped notifier.
type Forwarder struct {
	next     app.Notifier
	channel  publisher
	exchange string
	closers  []func() error
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string, next app.Notifier) (*Forwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	f := newForwarder(next, ch, exchange)
	f.closers = []func() error{ch.Close, conn.Close}
	return f, nil
}

func newForwarder(next app.Notifier, ch publisher, exchange string) *Forwarder {
	return &Forwarder{next: next, channel: ch, exchange: exchange}
}

// Publish hands the event to the wrapped notifier first. A broker failure is
// logged and does not fail the publish, the in-process fan-out is what
// sessions depend on.
func (f *Forwarder) Publish(ctx context.Context, event domain.Event) error {
	if err := f.next.Publish(ctx, event); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	key := RoutingKey(event)
	err = f.channel.Publish(f.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        string(event.Kind),
		Timestamp:   event.At,
		Body:        body,
	})
	if err != nil {
		log.Printf("amqp publish %s for quiz %s failed: %v", key, event.QuizID, err)
	}
	return nil
}

func (f *Forwarder) Subscribe(ctx context.Context, topic string) (<-chan domain.Event, func(), error) {
	return f.next.Subscribe(ctx, topic)
}

// Close releases the broker channel and connection.
func (f *Forwarder) Close() {
	for _, c := range f.closers {
		_ = c()
	}
}

// RoutingKey derives "<topic kind>.<change kind>", e.g. "quiz.update" or
// "leaderboard.insert", so consumers can bind with wildcards.
func RoutingKey(event domain.Event) string {
	prefix := event.Topic
	if i := strings.IndexByte(prefix, ':'); i >= 0 {
		prefix = prefix[:i]
	}
	kind := string(event.Kind)
	if kind == "" {
		kind = string(domain.EventUpdate)
	}
	return prefix + "." + kind
}
