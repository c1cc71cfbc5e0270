package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer writes domain events to one topic, keyed so that every event of an
// aggregate lands on the same partition.
type Producer struct {
	w   *kafka.Writer
	log *zap.Logger
}

func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Producer{log: log}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		// Async writes never block the caller; failures surface in Completion.
		Async:      true,
		Completion: p.completion,
	}
	return p
}

func (p *Producer) completion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		p.log.Warn("failed to deliver kafka message",
			zap.String("key", string(m.Key)),
			zap.Error(err))
	}
}

// Publish enqueues the event. The event name travels as a header.
func (p *Producer) Publish(ctx context.Context, name, key string, body []byte) error {
	err := p.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "event", Value: []byte(name)}},
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *Producer) Close() error {
	return p.w.Close()
}
