package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const subscriberBuffer = 16

// Notifier carries change events over Redis pub/sub so every instance of
// the service sees quiz and leaderboard changes. Channels are Prefix+topic.
type Notifier struct {
	client *redis.Client
	prefix string
}

var _ app.Notifier = (*Notifier)(nil)

func NewNotifier(client *redis.Client, prefix string) *Notifier {
	return &Notifier{client: client, prefix: prefix}
}

func (n *Notifier) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.client.Publish(ctx, n.prefix+event.Topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", domain.ErrNotificationDelivery, event.Topic, err)
	}
	return nil
}

// Subscribe waits until Redis confirms the subscription, so no event
// published after it returns can be missed. The channel closes when the
// subscription ends for any reason.
func (n *Notifier) Subscribe(ctx context.Context, topic string) (<-chan domain.Event, func(), error) {
	ps := n.client.Subscribe(ctx, n.prefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrNotificationDelivery, topic, err)
	}

	out := make(chan domain.Event, subscriberBuffer)
	subCtx, cancel := context.WithCancel(ctx)
	messages := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("redis notifier: drop malformed event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- event:
				default:
					// slow consumer; keep the newest hint
					select {
					case <-out:
					default:
					}
					out <- event
				}
			}
		}
	}()
	return out, cancel, nil
}
