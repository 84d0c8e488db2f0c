// Package memory keeps shard notifications in process, encoded exactly as the
// Pub/Sub publisher would send them.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"
)

// Message is one notification as it would appear on the wire.
type Message struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Publisher records notifications per topic.
type Publisher struct {
	attributes map[string]string

	mu       sync.RWMutex
	messages []Message
}

// New returns a Publisher that stamps attributes on every message.
func New(attributes map[string]string) *Publisher {
	return &Publisher{attributes: attributes}
}

// Publish encodes payload as JSON and records it under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := topic + "-" + strconv.Itoa(len(p.messages)+1)
	p.messages = append(p.messages, Message{
		ID:         id,
		Topic:      topic,
		Data:       data,
		Attributes: maps.Clone(p.attributes),
	})
	return id, nil
}

// Messages returns what was published to topic, oldest first. An empty topic
// returns everything.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Message
	for _, m := range p.messages {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
