// Package sse fans per-user events out to open event streams.
package sse

import (
	"sync"
	"sync/atomic"
)

// Event is one message for a user's open streams. Data is JSON encoded by
// the writer.
type Event struct {
	UserID string
	Event  string
	Data   interface{}
}

const defaultBufferSize = 10

type subscriber struct {
	ch   chan Event
	once sync.Once
}

// Hub keeps the open streams of every connected user. Publishing never
// blocks: a stream whose buffer is full misses the event.
type Hub struct {
	mu         sync.RWMutex
	streams    map[string][]*subscriber
	bufferSize int
	dropped    atomic.Int64
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		streams:    make(map[string][]*subscriber),
		bufferSize: bufferSize,
	}
}

// Subscribe opens a stream for userID. The returned func closes it and may
// be called more than once.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.bufferSize)}

	h.mu.Lock()
	h.streams[userID] = append(h.streams[userID], sub)
	h.mu.Unlock()

	return sub.ch, func() { h.remove(userID, sub) }
}

func (h *Hub) remove(userID string, sub *subscriber) {
	sub.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		subs := h.streams[userID]
		for i, s := range subs {
			if s == sub {
				subs = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(h.streams, userID)
		} else {
			h.streams[userID] = subs
		}
		close(sub.ch)
	})
}

// Publish delivers event to every open stream of userID.
func (h *Hub) Publish(userID string, event Event) {
	event.UserID = userID

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.streams[userID] {
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// SubscriberCount returns how many streams userID has open.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[userID])
}

// Dropped returns how many events were skipped because a stream's buffer
// was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
