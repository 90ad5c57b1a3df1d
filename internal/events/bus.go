package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a recorded domain event keyed by the product it concerns.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Topic      string          `json:"topic"`
	ProductID  string          `json:"productId"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Journal persists emitted events.
type Journal interface {
	Append(ctx context.Context, event Event) error
}

// Notifier reacts to emitted events (e.g. email delivery, task queues).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus journals domain events and fans them out to downstream handlers.
// Handler failures are reported but never undo the state change that produced
// the event; allocation outcomes are already durable by the time Emit runs.
type Bus struct {
	Journal   Journal
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit records the event and dispatches it to all configured handlers.
func (b *Bus) Emit(ctx context.Context, topic, productID string, payload any) (Event, error) {
	if b == nil || b.Journal == nil {
		return Event{}, errors.New("events: journal not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(productID) == "" {
		return Event{}, errors.New("events: product id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev := Event{
		ID:         uuid.New(),
		Topic:      topic,
		ProductID:  productID,
		Payload:    encoded,
		OccurredAt: b.now(),
	}
	if err := b.Journal.Append(ctx, ev); err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func (b *Bus) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		return encodePayload([]byte(v))
	default:
		return json.Marshal(v)
	}
}

// MemoryJournal keeps events in memory for tests and the memory backend.
type MemoryJournal struct {
	mu     sync.Mutex
	events []Event
}

// Append implements Journal.
func (j *MemoryJournal) Append(_ context.Context, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
	return nil
}

// Events returns a copy of everything appended so far.
func (j *MemoryJournal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Event(nil), j.events...)
}
