package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const subscriberBuffer = 16

// Notifier fans events out to in-process subscribers. A slow subscriber
// loses its oldest pending events instead of blocking publishers.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	ch   chan domain.Event
	once sync.Once
}

var _ app.Notifier = (*Notifier)(nil)

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[*subscription]struct{})}
}

func (n *Notifier) Publish(_ context.Context, event domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs[event.Topic] {
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- event
		}
	}
	return nil
}

// Subscribe registers for topic until cancel is called or ctx ends.
func (n *Notifier) Subscribe(ctx context.Context, topic string) (<-chan domain.Event, func(), error) {
	sub := &subscription{ch: make(chan domain.Event, subscriberBuffer)}

	n.mu.Lock()
	if n.subs[topic] == nil {
		n.subs[topic] = make(map[*subscription]struct{})
	}
	n.subs[topic][sub] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.removeLocked(topic, sub)
	}
	stop := context.AfterFunc(ctx, cancel)
	return sub.ch, func() {
		stop()
		cancel()
	}, nil
}

// Disconnect closes every subscription of topic, the way a dropped broker
// connection would.
func (n *Notifier) Disconnect(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs[topic] {
		n.removeLocked(topic, sub)
	}
}

// Subscribers reports how many subscriptions topic has.
func (n *Notifier) Subscribers(topic string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[topic])
}

func (n *Notifier) removeLocked(topic string, sub *subscription) {
	if _, ok := n.subs[topic][sub]; !ok {
		return
	}
	delete(n.subs[topic], sub)
	if len(n.subs[topic]) == 0 {
		delete(n.subs, topic)
	}
	sub.once.Do(func() { close(sub.ch) })
}
