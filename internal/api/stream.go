package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	subscriberQueueSize = 16
	eventWriteTimeout   = 10 * time.Second
)

// subscriber owns one websocket. Only its writer goroutine touches the connection for writes.
type subscriber struct {
	conn   *websocket.Conn
	queue  chan Event
	done   chan struct{}
	closer sync.Once
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn:  conn,
		queue: make(chan Event, subscriberQueueSize),
		done:  make(chan struct{}),
	}
}

// offer queues the event without blocking; false means the subscriber is lagging.
func (s *subscriber) offer(event Event) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *subscriber) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := s.conn.WriteJSON(event); err != nil {
				logrus.WithError(err).WithField("remote", s.conn.RemoteAddr().String()).Debug("event write failed")
				s.close()
				return
			}
		}
	}
}

func (s *subscriber) close() {
	s.closer.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// EventNotifier fans generation and recognition events out to websocket subscribers.
// Broadcast never waits on a socket: events are queued per subscriber and a subscriber
// whose queue is full is disconnected.
type EventNotifier struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	last        *Event
}

// NewEventNotifier constructs a notifier instance.
func NewEventNotifier() *EventNotifier {
	return &EventNotifier{subscribers: make(map[*subscriber]struct{})}
}

// Register starts delivering events to conn, beginning with the most recent one.
func (n *EventNotifier) Register(conn *websocket.Conn) *subscriber {
	sub := newSubscriber(conn)
	n.mu.Lock()
	n.subscribers[sub] = struct{}{}
	if n.last != nil {
		sub.offer(*n.last)
	}
	n.mu.Unlock()

	go sub.writeLoop()
	return sub
}

// Unregister detaches the subscriber and closes its socket.
func (n *EventNotifier) Unregister(sub *subscriber) {
	if sub == nil {
		return
	}
	n.mu.Lock()
	delete(n.subscribers, sub)
	n.mu.Unlock()
	sub.close()
}

// Broadcast stamps the event and queues it for every subscriber.
func (n *EventNotifier) Broadcast(event Event) {
	if n == nil {
		return
	}
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	last := event
	n.last = &last
	subs := make([]*subscriber, 0, len(n.subscribers))
	for sub := range n.subscribers {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		if !sub.offer(event) {
			logrus.WithFields(logrus.Fields{
				"type":       event.Type,
				"request_id": event.RequestID,
			}).Warn("event subscriber lagging, disconnecting")
			n.Unregister(sub)
		}
	}
}

// Clients reports the number of connected subscribers.
func (n *EventNotifier) Clients() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}

// Last returns a copy of the most recent event, if any.
func (n *EventNotifier) Last() *Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return nil
	}
	event := *n.last
	return &event
}
