package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/iliyamo/venue-booking/internal/model"
	q "github.com/iliyamo/venue-booking/internal/queue"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier mirrors booking events onto a Kafka topic.  Messages are
// keyed by order id (or the first seat id) so events for one order stay on
// one partition.  The payloads are the same JSON documents sent to
// RabbitMQ; the "type" header carries the event type.
type KafkaNotifier struct {
	w       messageWriter
	timeout time.Duration
	now     func() time.Time
}

// NewKafkaNotifier returns a notifier writing to topic on brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaNotifier(w)
}

func newKafkaNotifier(w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{w: w, timeout: 5 * time.Second, now: func() time.Time { return time.Now().UTC() }}
}

// NotifyOrderCreated implements Notifier.
func (n *KafkaNotifier) NotifyOrderCreated(ctx context.Context, orderID, userID uint64, seatIDs []uint64, showDate string) error {
	return n.send(ctx, q.TypeOrderCreated, orderID, q.OrderCreatedEvent{
		OrderID:   orderID,
		UserID:    userID,
		SeatIDs:   seatIDs,
		ShowDate:  showDate,
		CreatedAt: n.now().Format(time.RFC3339),
	})
}

// NotifySeatAvailabilityChanged implements Notifier.
func (n *KafkaNotifier) NotifySeatAvailabilityChanged(ctx context.Context, seatIDs []uint64, showDate string, status model.SeatStatus) error {
	var key uint64
	if len(seatIDs) > 0 {
		key = seatIDs[0]
	}
	return n.send(ctx, q.TypeSeatAvailability, key, q.SeatAvailabilityChangedEvent{
		SeatIDs:   seatIDs,
		ShowDate:  showDate,
		Status:    string(status),
		ChangedAt: n.now().Format(time.RFC3339),
	})
}

// Close flushes pending writes.
func (n *KafkaNotifier) Close() error { return n.w.Close() }

func (n *KafkaNotifier) send(ctx context.Context, typ string, key uint64, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:     []byte(strconv.FormatUint(key, 10)),
		Value:   body,
		Time:    n.now(),
		Headers: []kafka.Header{{Key: "type", Value: []byte(typ)}},
	}
	if err := n.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", typ, err)
	}
	return nil
}
