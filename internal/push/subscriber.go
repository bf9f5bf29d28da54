// Package push carries server-pushed board events over redis pub/sub.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// EventFailedOrderUpdate is the only event type the reconciler consumes.
const EventFailedOrderUpdate = "FAILED_ORDER_UPDATE"

// Payload is the partial update attached to a failed-order event.
type Payload struct {
	FailureID string `json:"failureId"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
}

// Event is the wire shape published on a board scope channel.
type Event struct {
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Subscriber manages scoped pub/sub subscriptions on a shared redis client.
type Subscriber struct {
	client        *redis.Client
	channelPrefix string
}

// NewSubscriber wraps a redis client for board event delivery.
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client, channelPrefix: "board:events:"}
}

func (s *Subscriber) channel(scope string) string {
	return s.channelPrefix + scope
}

// Subscribe delivers events for scope to handler until the returned
// unsubscribe func is called. Unsubscribe tears the listener down fully and
// waits for the reader goroutine to exit, so rapid resubscription cannot
// leak listeners. Handler runs on the reader goroutine; events arrive in
// receipt order.
func (s *Subscriber) Subscribe(ctx context.Context, scope string, handler func(Event)) (func(), error) {
	ps := s.client.Subscribe(ctx, s.channel(scope))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", scope, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("push: drop undecodable event on %s: %v", msg.Channel, err)
				continue
			}
			handler(ev)
		}
	}()

	unsubscribe := func() {
		_ = ps.Close()
		<-done
	}
	return unsubscribe, nil
}

// Publish emits an event on a scope channel. The board service itself only
// consumes; this is used by tests and local tooling.
func (s *Subscriber) Publish(ctx context.Context, scope string, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.client.Publish(ctx, s.channel(scope), raw).Err()
}
