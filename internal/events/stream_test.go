package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	broker := NewStreamBroker(time.Minute)
	defer broker.Close()

	userID := uuid.New()
	ch, cancel := broker.Subscribe(userID)
	defer cancel()

	broker.Publish(OwnershipEvent{UserID: userID, Title: "Ownership transferred", TxHash: "abc123"})

	select {
	case event := <-ch:
		assert.Equal(t, "Ownership transferred", event.Title)
		assert.Equal(t, "abc123", event.TxHash)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishScopedToUser(t *testing.T) {
	broker := NewStreamBroker(time.Minute)
	defer broker.Close()

	ch, cancel := broker.Subscribe(uuid.New())
	defer cancel()

	broker.Publish(OwnershipEvent{UserID: uuid.New(), Title: "Someone else's event"})

	select {
	case event := <-ch:
		t.Fatalf("unexpected event: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	broker := NewStreamBroker(time.Minute)
	defer broker.Close()

	userID := uuid.New()
	ch, cancel := broker.Subscribe(userID)
	require.Equal(t, 1, broker.SubscriberCount(userID))

	cancel()
	assert.Equal(t, 0, broker.SubscriberCount(userID))

	_, open := <-ch
	assert.False(t, open)
}

func TestCancelIsIdempotent(t *testing.T) {
	broker := NewStreamBroker(time.Minute)
	defer broker.Close()

	userID := uuid.New()
	_, cancel := broker.Subscribe(userID)
	cancel()
	cancel()
	assert.Equal(t, 0, broker.SubscriberCount(userID))
}

func TestSlowSubscriberDropped(t *testing.T) {
	broker := NewStreamBroker(time.Minute)
	defer broker.Close()

	userID := uuid.New()
	_, cancel := broker.Subscribe(userID)
	defer cancel()

	// Fill the buffer without draining; the next publish evicts.
	for i := 0; i < 17; i++ {
		broker.Publish(OwnershipEvent{UserID: userID, Title: "flood"})
	}
	assert.Equal(t, 0, broker.SubscriberCount(userID))
}
