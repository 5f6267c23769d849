// Package feed maintains the set of live WebSocket subscribers and
// broadcasts JSON-encoded events to them, grounded on the orchestrator's
// ws/feed endpoint but adapted to gorilla/websocket's per-connection
// read/write pump idiom.
package feed

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event is the envelope every broadcast and every init snapshot is wrapped
// in before serialization.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

const heartbeatIdle = 30 * time.Second
const subscriberBufferSize = 64

// Snapshotter supplies the data an init event carries for a newly
// subscribed client.
type Snapshotter interface {
	Snapshot() (agents any, tasks any)
}

// subscriber is one connected client's outbound buffer. Sends never block
// the broadcaster: a full buffer means the subscriber is dropped.
type subscriber struct {
	id   uint64
	out  chan []byte
	done chan struct{}
}

// Feed owns the subscriber set and serializes broadcasts.
type Feed struct {
	mu       sync.Mutex
	subs     map[uint64]*subscriber
	nextID   uint64
	snapshot Snapshotter
	log      *slog.Logger
}

// New builds an empty Feed. snapshot may be nil; Subscribe then sends an
// init event with nil agents/tasks.
func New(snapshot Snapshotter) *Feed {
	return &Feed{
		subs:     make(map[uint64]*subscriber),
		snapshot: snapshot,
		log:      slog.Default().With("component", "feed"),
	}
}

// Broadcast constructs one event, serializes it once, and fans it out to
// every subscriber's buffer. A subscriber whose buffer is full is dropped
// rather than allowed to stall the broadcaster.
func (f *Feed) Broadcast(eventType string, data any) {
	body, err := json.Marshal(Event{Type: eventType, Timestamp: time.Now(), Data: data})
	if err != nil {
		f.log.Error("failed to marshal broadcast event", "type", eventType, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.subs {
		select {
		case s.out <- body:
		default:
			f.log.Warn("subscriber buffer full, dropping", "subscriber", id)
			delete(f.subs, id)
			close(s.done)
		}
	}
}

// Subscribe enrolls a new subscriber and returns its outbound channel plus
// an unsubscribe func the caller must invoke when the connection closes. An
// init event carrying the current snapshot is queued immediately.
func (f *Feed) Subscribe() (out <-chan []byte, unsubscribe func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	s := &subscriber{id: id, out: make(chan []byte, subscriberBufferSize), done: make(chan struct{})}
	f.subs[id] = s
	f.mu.Unlock()

	var agents, tasks any
	if f.snapshot != nil {
		agents, tasks = f.snapshot.Snapshot()
	}
	init := Event{Type: "init", Timestamp: time.Now(), Data: map[string]any{"agents": agents, "tasks": tasks}}
	if body, err := json.Marshal(init); err == nil {
		select {
		case s.out <- body:
		default:
		}
	}

	return s.out, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if existing, ok := f.subs[id]; ok && existing == s {
			delete(f.subs, id)
			select {
			case <-s.done:
			default:
				close(s.done)
			}
		}
	}
}

// HandleControlMessage implements loop()'s incoming-message half: "ping"
// gets "pong" written back via send; anything else is ignored. The
// WebSocket transport layer (server/) is responsible for invoking this per
// received text frame and for driving the 30s idle heartbeat timer against
// heartbeatIdle using HeartbeatIdle().
func HandleControlMessage(msg string, send func([]byte)) {
	if msg == "ping" {
		body, _ := json.Marshal(Event{Type: "pong", Timestamp: time.Now()})
		send(body)
	}
}

// HeartbeatIdle returns the idle duration after which a heartbeat event
// should be sent to a subscriber that has received no control message.
func HeartbeatIdle() time.Duration {
	return heartbeatIdle
}

// Count reports the current subscriber count, used by /status.
func (f *Feed) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
