package comms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

func newID() string { return uuid.NewString() }

// InMemoryBus is a thread-safe in-process message bus.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry // topic -> handlers
	history  []*Message
	maxHist  int
	nextID   int
}

type handlerEntry struct {
	id      int
	handler Handler
}

// NewInMemoryBus creates an InMemoryBus with a 1000-message history cap.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]handlerEntry),
		maxHist:  1000,
	}
}

// Publish sends a message to subscribers of its topic and to AllTopics
// subscribers. Handlers run synchronously, outside the lock.
func (b *InMemoryBus) Publish(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}

	var targets []Handler
	for _, e := range b.handlers[msg.Topic] {
		targets = append(targets, e.handler)
	}
	if msg.Topic != AllTopics {
		for _, e := range b.handlers[AllTopics] {
			targets = append(targets, e.handler)
		}
	}
	b.mu.Unlock()

	var errs []error
	for _, h := range targets {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish: %d handler error(s): %v", len(errs), errs[0])
	}
	return nil
}

// Subscribe registers a handler for topic. The returned function
// unsubscribes the handler.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[topic]
		filtered := entries[:0]
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(b.handlers, topic)
		} else {
			b.handlers[topic] = filtered
		}
	}
}

// History returns the most recent limit messages on topic in chronological
// order. AllTopics matches every message.
func (b *InMemoryBus) History(topic string, limit int) ([]*Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*Message
	for i := len(b.history) - 1; i >= 0; i-- {
		m := b.history[i]
		if topic == AllTopics || m.Topic == topic {
			result = append(result, m)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	// Reverse to chronological order
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result, nil
}
