// Package events is the fire-and-forget event sink of the ordering core.
//
// Delivery is at-most-once and best-effort: a Bus hands each event to its
// observers and broker sinks once, logs every failure and never reports it to
// the publisher.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	OrderCreated       = "order.created"
	OrderStatusUpdated = "order.status_updated"
	OrderCancelled     = "order.cancelled"
	InventoryLowStock  = "inventory.low-stock"
	SettlementPending  = "settlement.pending"
)

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, name, key string, payload any)
}

// Event is the envelope delivered to observers and sinks.
type Event struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// Observer receives events in-process.
type Observer func(ctx context.Context, evt Event)

// Broker is a message transport such as an AMQP channel or a Kafka writer.
type Broker interface {
	Publish(ctx context.Context, name, key string, body []byte) error
}

// Bus fans events out to observers and brokers.
type Bus struct {
	log       *zap.Logger
	mu        sync.RWMutex
	observers map[string][]Observer
	brokers   []Broker
}

// NewBus creates a Bus that forwards to the given brokers.
func NewBus(log *zap.Logger, brokers ...Broker) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:       log,
		observers: make(map[string][]Observer),
		brokers:   brokers,
	}
}

// Subscribe registers an observer for name; "*" receives every event.
func (b *Bus) Subscribe(name string, obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers[name] = append(b.observers[name], obs)
}

// Publish delivers the event synchronously. It never fails.
func (b *Bus) Publish(ctx context.Context, name, key string, payload any) {
	evt := Event{
		ID:         uuid.New().String(),
		Name:       name,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	log := b.log.With(zap.String("event", name), zap.String("event_id", evt.ID), zap.String("key", key))

	b.mu.RLock()
	observers := append(append([]Observer(nil), b.observers[name]...), b.observers["*"]...)
	b.mu.RUnlock()

	for _, obs := range observers {
		b.notify(ctx, log, obs, evt)
	}

	if len(b.brokers) == 0 {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Error("failed to marshal event", zap.Error(err))
		return
	}
	for _, br := range b.brokers {
		if err := br.Publish(ctx, name, key, body); err != nil {
			log.Warn("failed to publish event", zap.Error(err))
		}
	}
}

func (b *Bus) notify(ctx context.Context, log *zap.Logger, obs Observer, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event observer panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	obs(ctx, evt)
}

// Recorder is an Observer that keeps every event, for tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(_ context.Context, evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
