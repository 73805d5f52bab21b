package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// DefaultLogPath is where the consumer appends one line per event.
var DefaultLogPath = filepath.Join("logs", "booking.log")

// StartBookingConsumer connects to RabbitMQ, declares the booking events
// queue (durable) and appends every message to logPath in a single line,
// human friendly format.  It reconnects with backoff until ctx is
// cancelled, then returns ctx.Err().  Messages that cannot be handled are
// rejected without requeue so one bad payload cannot stall the queue.
func StartBookingConsumer(ctx context.Context, url, logPath string) error {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	log := logrus.WithField("component", "booking-consumer")
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, logPath)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logPath string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logrus.WithError(err).Warn("booking-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(logPath, d.Type, d.Body); err != nil {
				logrus.WithError(err).WithField("type", d.Type).Error("booking-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(logPath, typ string, body []byte) error {
	line, err := FormatEvent(typ, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatEvent renders one event as a log line.  Unknown message types are
// an error.
func FormatEvent(typ string, body []byte) (string, error) {
	switch typ {
	case TypeOrderCreated:
		var ev OrderCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", typ, err)
		}
		return fmt.Sprintf("[%s] Order created | order_id=%d | user_id=%d | show_date=%s | seats=%s",
			ev.CreatedAt, ev.OrderID, ev.UserID, ev.ShowDate, joinIDs(ev.SeatIDs)), nil
	case TypeSeatAvailability:
		var ev SeatAvailabilityChangedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", typ, err)
		}
		showDate := ev.ShowDate
		if showDate == "" {
			showDate = "-"
		}
		return fmt.Sprintf("[%s] Seats %s | show_date=%s | seats=%s",
			ev.ChangedAt, ev.Status, showDate, joinIDs(ev.SeatIDs)), nil
	default:
		return "", fmt.Errorf("unknown message type %q", typ)
	}
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
