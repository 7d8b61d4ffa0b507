package sse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesOnlyRecipient(t *testing.T) {
	hub := NewHub(4)
	alice, cleanupAlice := hub.Subscribe("alice")
	defer cleanupAlice()
	bob, cleanupBob := hub.Subscribe("bob")
	defer cleanupBob()

	hub.Publish("alice", Event{UserID: "alice", Event: "notification", Data: "hello"})

	select {
	case ev := <-alice:
		assert.Equal(t, "hello", ev.Data)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the event")
	}
	select {
	case ev := <-bob:
		t.Fatalf("bob received an event meant for alice: %+v", ev)
	default:
	}
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(1)
	_, cleanup := hub.Subscribe("alice")
	defer cleanup()

	hub.Publish("alice", Event{Event: "first"})
	hub.Publish("alice", Event{Event: "second"})

	assert.Equal(t, int64(1), hub.Dropped())
}

func TestHub_CleanupIsIdempotent(t *testing.T) {
	hub := NewHub(0)
	ch, cleanup := hub.Subscribe("alice")
	require.Equal(t, 1, hub.SubscriberCount("alice"))

	cleanup()
	cleanup()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount("alice"))
}

func TestHub_MultipleStreamsPerUser(t *testing.T) {
	hub := NewHub(2)
	first, closeFirst := hub.Subscribe("alice")
	second, closeSecond := hub.Subscribe("alice")
	defer closeSecond()
	require.Equal(t, 2, hub.SubscriberCount("alice"))

	hub.Publish("alice", Event{Event: "absence_to_review"})
	assert.Equal(t, "alice", (<-first).UserID, "publish stamps the recipient")
	assert.Equal(t, "alice", (<-second).UserID)

	closeFirst()
	assert.Equal(t, 1, hub.SubscriberCount("alice"))

	hub.Publish("alice", Event{Event: "absence_approved"})
	assert.Equal(t, "absence_approved", (<-second).Event)
}
