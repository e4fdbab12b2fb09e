// Package events publishes order lifecycle events to Kafka. Publishing is
// best-effort: callers log failures and keep going.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	OrderCreated   = "order.created"
	PaymentPending = "payment.pending"
	OrderPaid      = "order.paid"
	OrderCompleted = "order.completed"
	OrderCancelled = "order.cancelled"
	OrderRefunded  = "order.refunded"
	OrderExpired   = "order.expired"
)

type Event struct {
	Type    string            `json:"type"`
	OrderID string            `json:"order_id"`
	At      time.Time         `json:"at"`
	Payload map[string]string `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop is used when no brokers are configured, and in tests.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

type Kafka struct{ w *kafka.Writer }

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{Key: []byte(e.OrderID), Value: b})
}

func (k *Kafka) Close() error { return k.w.Close() }
