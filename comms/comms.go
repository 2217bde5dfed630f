// Package comms provides the in-process change-event bus.
package comms

import (
	"context"
	"encoding/json"
	"time"
)

// MessageType identifies the kind of change event.
type MessageType string

const (
	TypeTaskUpdate    MessageType = "task_update"    // task created, edited, or removed
	TypeStatusChanged MessageType = "status_changed" // one status move
	TypeAgentAssigned MessageType = "agent_assigned" // agent placed on a task
	TypeSprintUpdated MessageType = "sprint_updated"
	TypeStoreChanged  MessageType = "store_changed" // data files changed on disk
)

// AllTopics subscribes to every topic.
const AllTopics = "*"

// Message is one published event.
type Message struct {
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	Topic     string            `json:"topic"`
	Subject   string            `json:"subject"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Handler processes a published message.
type Handler func(ctx context.Context, msg *Message) error

// Bus fans change events out to subscribers.
type Bus interface {
	// Publish delivers msg to subscribers of msg.Topic and of AllTopics.
	Publish(ctx context.Context, msg *Message) error

	// Subscribe registers a handler for a topic. Returns an unsubscribe function.
	Subscribe(topic string, handler Handler) (unsubscribe func())

	// History returns recent messages on topic, oldest first.
	History(topic string, limit int) ([]*Message, error)
}

// NewMessage builds a message with a fresh id and payload encoded as JSON.
func NewMessage(typ MessageType, topic, subject string, payload any) (*Message, error) {
	m := &Message{ID: newID(), Type: typ, Topic: topic, Subject: subject, Timestamp: time.Now().UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		m.Payload = b
	}
	return m, nil
}
