// ABOUTME: In-memory fan-out of engine change notifications to UI subscribers
// ABOUTME: Subscribers pick a topic; slow subscribers lose notifications instead of stalling the engine

package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Broadcaster provides in-memory pub/sub for Notifications. The engine
// publishes from its loop goroutine; Publish never blocks it.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Notification // topic -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Notification),
		logger:      logger.With("component", "notify"),
	}
}

// Subscribe registers a subscriber for a topic: TopicAll, TopicSession or
// ConversationTopic(id). The subscription is removed and its channel closed
// when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, topic string) (<-chan Notification, string) {
	subID := uuid.NewString()
	ch := make(chan Notification, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[string]chan Notification)
	}
	b.subscribers[topic][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(topic, subID)
	}()

	return ch, subID
}

// Publish delivers n to the subscribers of its topic and to TopicAll.
// Notifications are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(n Notification) {
	topic := n.Topic()

	b.mu.RLock()
	var targets []chan Notification
	for _, key := range []string{topic, TopicAll} {
		for _, ch := range b.subscribers[key] {
			targets = append(targets, ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- n:
		default:
			b.logger.Debug("dropped notification for slow subscriber",
				"topic", topic,
				"kind", n.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}

	b.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Close closes all subscriber channels. Later subscriptions get a closed
// channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, topic)
	}
	b.closed = true
}
