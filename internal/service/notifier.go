package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/model"
)

// Notifier is told about committed booking changes.  Calls are best
// effort: an error is logged by the caller and never undoes the change.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, orderID, userID uint64, seatIDs []uint64, showDate string) error
	NotifySeatAvailabilityChanged(ctx context.Context, seatIDs []uint64, showDate string, status model.SeatStatus) error
}

// LogNotifier writes notifications to the application log.  It is used
// when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyOrderCreated(_ context.Context, orderID, userID uint64, seatIDs []uint64, showDate string) error {
	logrus.WithFields(logrus.Fields{
		"order_id":  orderID,
		"user_id":   userID,
		"seat_ids":  seatIDs,
		"show_date": showDate,
	}).Info("order created")
	return nil
}

func (LogNotifier) NotifySeatAvailabilityChanged(_ context.Context, seatIDs []uint64, showDate string, status model.SeatStatus) error {
	logrus.WithFields(logrus.Fields{
		"seat_ids":  seatIDs,
		"show_date": showDate,
		"status":    status,
	}).Info("seat availability changed")
	return nil
}

// MultiNotifier forwards every notification to each of its notifiers and
// joins their errors.  One failing broker does not stop the others.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyOrderCreated(ctx context.Context, orderID, userID uint64, seatIDs []uint64, showDate string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifyOrderCreated(ctx, orderID, userID, seatIDs, showDate))
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) NotifySeatAvailabilityChanged(ctx context.Context, seatIDs []uint64, showDate string, status model.SeatStatus) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifySeatAvailabilityChanged(ctx, seatIDs, showDate, status))
	}
	return errors.Join(errs...)
}
