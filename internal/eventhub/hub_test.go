package eventhub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsToAllSubscribers(t *testing.T) {
	h := New(4)
	sub1 := h.Subscribe()
	sub2 := h.Subscribe()

	h.Publish(Event{Kind: KindStateChanged, State: "Playing"})

	select {
	case ev := <-sub1:
		require.Equal(t, KindStateChanged, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("sub1 did not receive event")
	}

	select {
	case ev := <-sub2:
		require.Equal(t, "Playing", ev.State)
	case <-time.After(time.Second):
		t.Fatal("sub2 did not receive event")
	}
}

func TestHubDropsForSlowConsumerInsteadOfBlocking(t *testing.T) {
	h := New(1)
	sub := h.Subscribe()

	done := make(chan struct{})
	go func() {
		h.Publish(Event{Kind: KindPosition, PositionMS: 1})
		h.Publish(Event{Kind: KindPosition, PositionMS: 2})
		h.Publish(Event{Kind: KindPosition, PositionMS: 3})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber queue")
	}

	// Exactly one event (whichever filled the buffer first) is observable; the rest
	// were dropped for this slow consumer.
	select {
	case ev := <-sub:
		require.Equal(t, KindPosition, ev.Kind)
	default:
		t.Fatal("expected at least one buffered event")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := New(2)
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	_, ok := <-sub
	require.False(t, ok, "channel should be closed after Unsubscribe")
}
