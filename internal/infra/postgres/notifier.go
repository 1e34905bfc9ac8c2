package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const subscriberBuffer = 16

// Notifier carries change events over LISTEN/NOTIFY. Publishing borrows a
// pooled connection; every subscription holds its own connection for as
// long as it listens, so it fits deployments without Redis and with
// modest numbers of concurrent players.
type Notifier struct {
	pool   *pgxpool.Pool
	prefix string
}

var _ app.Notifier = (*Notifier)(nil)

func NewNotifier(pool *pgxpool.Pool, prefix string) *Notifier {
	return &Notifier{pool: pool, prefix: prefix}
}

func (n *Notifier) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := n.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, n.prefix+event.Topic, string(payload)); err != nil {
		return fmt.Errorf("%w: notify %s: %v", domain.ErrNotificationDelivery, event.Topic, err)
	}
	return nil
}

func (n *Notifier) Subscribe(ctx context.Context, topic string) (<-chan domain.Event, func(), error) {
	conn, err := pgx.ConnectConfig(ctx, n.pool.Config().ConnConfig.Copy())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: connect listener: %v", domain.ErrNotificationDelivery, err)
	}
	channel := n.prefix + topic
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, nil, fmt.Errorf("%w: listen %s: %v", domain.ErrNotificationDelivery, topic, err)
	}

	out := make(chan domain.Event, subscriberBuffer)
	listenCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer conn.Close(context.Background())
		for {
			notification, err := conn.WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					log.Printf("postgres notifier: listen %s: %v", channel, err)
				}
				return
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
				log.Printf("postgres notifier: drop malformed event on %s: %v", channel, err)
				continue
			}
			select {
			case out <- event:
			default:
				select {
				case <-out:
				default:
				}
				out <- event
			}
		}
	}()
	return out, cancel, nil
}
