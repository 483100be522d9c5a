// Package memory records published run events in memory.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one recorded publish. Data holds the JSON a broker would see.
type Message struct {
	Topic   string
	Payload any
	Data    []byte
}

// Publisher records payloads instead of sending them.
type Publisher struct {
	defaultTopic string

	mu       sync.RWMutex
	messages []Message
}

// New returns a Publisher. defaultTopic is used when Publish gets an empty topic.
func New(defaultTopic string) *Publisher {
	return &Publisher{defaultTopic: defaultTopic}
}

// Publish encodes payload like the Pub/Sub publisher does and records it.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if topic == "" {
		topic = p.defaultTopic
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Payload: payload, Data: data})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of what was published.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
