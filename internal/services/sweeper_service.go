package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/rideshare/seat-booking-backend/pkg/events"
	"github.com/sirupsen/logrus"
)

// SweeperService abandons pending bookings whose payment window closed and
// returns their seats
type SweeperService struct {
	schedules ScheduleStore
	bookings  BookingStore
	audits    AuditLogger
	publisher events.Publisher
	logger    *logrus.Logger
	batchSize int
	now       func() time.Time
}

// NewSweeperService creates a new abandonment sweeper
func NewSweeperService(
	schedules ScheduleStore,
	bookings BookingStore,
	audits AuditLogger,
	publisher events.Publisher,
	batchSize int,
	logger *logrus.Logger,
) *SweeperService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SweeperService{
		schedules: schedules,
		bookings:  bookings,
		audits:    audits,
		publisher: publisher,
		logger:    logger,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// SweepBooking abandons one booking if it is still pending past its timeout.
// It reports whether seats were released; anything else is a no-op.
func (s *SweeperService) SweepBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil || booking.Status != models.BookingStatusPending {
		return false, nil
	}

	now := s.now()
	if !booking.IsPaymentExpired(now) {
		return false, nil
	}

	// Same conditional release as cancellation; a confirmation that won the
	// race leaves the booking out of pending and this becomes a no-op.
	released, err := s.schedules.ReleaseBookingSeats(ctx, bookingID, models.BookingTransition{
		From:          []models.BookingStatus{models.BookingStatusPending},
		To:            models.BookingStatusAbandoned,
		PaymentStatus: models.PaymentStatusFailed,
		Now:           now,
		RequireExpiry: true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to release booking %s: %w", bookingID, err)
	}
	if !released {
		return false, nil
	}

	booking.Status = models.BookingStatusAbandoned
	booking.PaymentStatus = models.PaymentStatusFailed
	_ = s.audits.Log(ctx, models.NewPaymentAudit(&bookingID, models.PaymentEventBookingAbandoned, models.PaymentSourceSystem).
		WithStatus(string(models.BookingStatusAbandoned), nil))
	publish(ctx, s.publisher, s.logger, events.TypeBookingAbandoned, booking)

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"seats":      booking.SelectedSeats,
	}).Info("Booking abandoned and seats released")

	return true, nil
}

// SweepAbandoned sweeps every timed out pending booking in batches and
// returns how many were abandoned
func (s *SweeperService) SweepAbandoned(ctx context.Context) (int, error) {
	total := 0
	for {
		ids, err := s.bookings.ListTimedOutPending(ctx, s.now(), s.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list timed out bookings: %w", err)
		}
		if len(ids) == 0 {
			return total, nil
		}

		released := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			ok, err := s.SweepBooking(ctx, id)
			if err != nil {
				s.logger.WithError(err).WithField("booking_id", id).Error("Failed to sweep booking")
				continue
			}
			if ok {
				released++
			}
		}
		total += released

		// A short batch is the last one. A batch that released nothing would
		// be listed again, so stop and leave it for the next run.
		if len(ids) < s.batchSize || released == 0 {
			return total, nil
		}
	}
}

// RunOnce runs a single sweep and logs the outcome
func (s *SweeperService) RunOnce(ctx context.Context) {
	count, err := s.SweepAbandoned(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Abandonment sweep failed")
		return
	}
	if count > 0 {
		s.logger.WithField("count", count).Info("Abandonment sweep released bookings")
	}
}
