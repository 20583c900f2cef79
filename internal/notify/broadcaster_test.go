// ABOUTME: Tests for the notification Broadcaster
// ABOUTME: Covers topic routing, the wildcard topic, context cleanup and slow subscribers

package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed")
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func assertEmpty(t *testing.T, ch <-chan Notification) {
	t.Helper()
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_RoutesByConversation(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	one, _ := b.Subscribe(t.Context(), ConversationTopic(1))
	two, _ := b.Subscribe(t.Context(), ConversationTopic(2))

	b.Publish(Notification{Kind: TimelineChanged, ConversationID: 1, Inserted: 3})

	got := receive(t, one)
	assert.Equal(t, TimelineChanged, got.Kind)
	assert.Equal(t, 3, got.Inserted)
	assertEmpty(t, two)
}

func TestBroadcaster_SessionAndWildcard(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	session, _ := b.Subscribe(t.Context(), TopicSession)
	all, _ := b.Subscribe(t.Context(), TopicAll)

	b.Publish(Notification{Kind: ConversationsChanged})
	b.Publish(Notification{Kind: TypingChanged, ConversationID: 9})

	assert.Equal(t, ConversationsChanged, receive(t, session).Kind)
	assertEmpty(t, session)

	assert.Equal(t, ConversationsChanged, receive(t, all).Kind)
	assert.Equal(t, TypingChanged, receive(t, all).Kind)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, TopicAll)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), TopicAll)

	done := make(chan struct{})
	go func() {
		for range subscriberBufferSize * 3 {
			b.Publish(Notification{Kind: PresenceChanged, UserID: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_CloseClosesChannels(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, _ := b.Subscribe(t.Context(), TopicSession)
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(t.Context(), TopicSession)
	_, ok = <-late
	assert.False(t, ok, "subscribe after close should return a closed channel")
}

func TestBroadcaster_ConcurrentPublish(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), ConversationTopic(5))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 8 {
				b.Publish(Notification{Kind: TimelineChanged, ConversationID: 5})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 32)
}

func TestNotification_Topic(t *testing.T) {
	assert.Equal(t, "conversation:42", Notification{ConversationID: 42}.Topic())
	assert.Equal(t, TopicSession, Notification{Kind: SessionEnded}.Topic())
}
