package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleSubscriber is registered without a writer, so its queue only fills.
func idleSubscriber(n *EventNotifier) *subscriber {
	sub := newSubscriber(nil)
	n.mu.Lock()
	n.subscribers[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

func TestBroadcastDropsLaggingSubscriber(t *testing.T) {
	notifier := NewEventNotifier()
	lagging := idleSubscriber(notifier)
	require.Equal(t, 1, notifier.Clients())

	done := make(chan struct{})
	go func() {
		for i := 0; i <= subscriberQueueSize; i++ {
			notifier.Broadcast(Event{Type: EventGeneration, RequestID: "req"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a subscriber that never drains")
	}

	assert.Equal(t, 0, notifier.Clients())
	select {
	case <-lagging.done:
	default:
		t.Fatal("lagging subscriber should be closed")
	}
	require.NotNil(t, notifier.Last())
	assert.Equal(t, "req", notifier.Last().RequestID)
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	notifier := NewEventNotifier()
	notifier.Broadcast(Event{Type: EventRecognition, Images: 2})
	last := notifier.Last()
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Images)
	assert.False(t, last.Timestamp.IsZero())

	var nilNotifier *EventNotifier
	assert.NotPanics(t, func() { nilNotifier.Broadcast(Event{}) })
}

func TestRegisterReplaysLastEvent(t *testing.T) {
	notifier := NewEventNotifier()
	notifier.Broadcast(Event{Type: EventGeneration, Archetype: "switch"})

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sub := notifier.Register(conn)
		defer notifier.Unregister(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var replayed Event
	require.NoError(t, conn.ReadJSON(&replayed))
	assert.Equal(t, "switch", replayed.Archetype)

	notifier.Broadcast(Event{Type: EventRecognition, Detected: 2})
	var next Event
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, EventRecognition, next.Type)
	assert.Equal(t, 2, next.Detected)
}
