package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/model"
	q "github.com/iliyamo/venue-booking/internal/queue"
)

// AMQPNotifier publishes booking events to RabbitMQ.  Each publish dials
// its own connection, so a broker outage costs one failed dial per event
// and never leaves a broken connection behind.
type AMQPNotifier struct {
	URL   string
	Queue string
	now   func() time.Time
}

// NewAMQPNotifier returns a notifier publishing to the booking events
// queue at url.
func NewAMQPNotifier(url string) *AMQPNotifier {
	return &AMQPNotifier{URL: url, Queue: q.QueueName, now: func() time.Time { return time.Now().UTC() }}
}

// NotifyOrderCreated implements Notifier.
func (n *AMQPNotifier) NotifyOrderCreated(ctx context.Context, orderID, userID uint64, seatIDs []uint64, showDate string) error {
	return n.publish(ctx, q.TypeOrderCreated, q.OrderCreatedEvent{
		OrderID:   orderID,
		UserID:    userID,
		SeatIDs:   seatIDs,
		ShowDate:  showDate,
		CreatedAt: n.now().Format(time.RFC3339),
	})
}

// NotifySeatAvailabilityChanged implements Notifier.
func (n *AMQPNotifier) NotifySeatAvailabilityChanged(ctx context.Context, seatIDs []uint64, showDate string, status model.SeatStatus) error {
	return n.publish(ctx, q.TypeSeatAvailability, q.SeatAvailabilityChangedEvent{
		SeatIDs:   seatIDs,
		ShowDate:  showDate,
		Status:    string(status),
		ChangedAt: n.now().Format(time.RFC3339),
	})
}

func (n *AMQPNotifier) publish(ctx context.Context, typ string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	conn, err := amqp.Dial(n.URL)
	if err != nil {
		logrus.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(n.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		Type:         typ,
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now(),
		Body:         body,
	}
	// default exchange, routing key = queue name
	if err := ch.PublishWithContext(ctx, "", n.Queue, false, false, pub); err != nil {
		return fmt.Errorf("publish %s: %w", typ, err)
	}
	return nil
}
