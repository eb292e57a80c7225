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

// ReconciliationService turns verified gateway payments into confirmed bookings
type ReconciliationService struct {
	schedules ScheduleStore
	bookings  BookingStore
	gateway   PaymentGateway
	audits    AuditLogger
	notifier  Notifier
	publisher events.Publisher
	logger    *logrus.Logger
	now       func() time.Time
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	schedules ScheduleStore,
	bookings BookingStore,
	gateway PaymentGateway,
	audits AuditLogger,
	notifier Notifier,
	publisher events.Publisher,
	logger *logrus.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		schedules: schedules,
		bookings:  bookings,
		gateway:   gateway,
		audits:    audits,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Confirm verifies a checkout result and confirms the booking it pays for.
// Confirming twice with the same payment returns the confirmed booking.
func (s *ReconciliationService) Confirm(ctx context.Context, req *models.ConfirmPaymentRequest) (*models.Booking, error) {
	log := s.logger.WithFields(logrus.Fields{
		"order_id":   req.OrderID,
		"payment_id": req.PaymentID,
	})
	s.audit(ctx, models.NewPaymentAudit(req.BookingID, models.PaymentEventConfirmAttempt, models.PaymentSourceUser).
		WithOrder(req.OrderID, req.PaymentID))

	// 1. Authenticity
	if !s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		err := &models.AuthenticityError{}
		s.audit(ctx, models.NewPaymentAudit(req.BookingID, models.PaymentEventSignatureMismatch, models.PaymentSourceUser).
			WithOrder(req.OrderID, req.PaymentID).WithError(err))
		log.Warn("Payment signature mismatch")
		return nil, err
	}

	// 2. Resolve the booking
	booking, err := s.resolveBooking(ctx, req.BookingID, req.OrderID)
	if err != nil {
		return nil, err
	}
	log = log.WithField("booking_id", booking.ID)

	// 3-4. State and payment window
	done, err := s.checkConfirmable(ctx, booking, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if done {
		return booking, nil
	}

	// 5. Ask the gateway what actually happened
	payment, err := s.gateway.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		if !models.IsGatewayError(err) {
			err = &models.GatewayError{Err: err}
		}
		return nil, err
	}
	paid := fromMinorUnits(payment.Amount)
	s.audit(ctx, models.NewPaymentAudit(&booking.ID, models.PaymentEventStatusCheck, models.PaymentSourceGateway).
		WithOrder(req.OrderID, req.PaymentID).WithStatus(payment.Status, &paid))

	if payment.OrderID != "" && payment.OrderID != req.OrderID {
		return nil, &models.AuthenticityError{Message: "payment does not belong to this order"}
	}
	if !payment.IsSuccessful() {
		err := &models.PaymentNotSuccessfulError{Status: payment.Status}
		s.audit(ctx, models.NewPaymentAudit(&booking.ID, models.PaymentEventNotSuccessful, models.PaymentSourceGateway).
			WithOrder(req.OrderID, req.PaymentID).WithStatus(payment.Status, &paid))
		log.WithField("status", payment.Status).Warn("Payment not successful")
		return nil, err
	}

	// 6. Conditional transition
	conf := models.PaymentConfirmation{
		OrderID:    req.OrderID,
		PaymentID:  req.PaymentID,
		Signature:  req.Signature,
		PaidAmount: paid,
		PaidAt:     s.now(),
	}
	return s.applyConfirmation(ctx, booking.ID, conf, models.PaymentSourceUser)
}

// HandleWebhook applies a signed gateway notification. Events about unknown
// bookings are acknowledged and ignored.
func (s *ReconciliationService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(body, signature)
	if err != nil {
		return err
	}

	payment := event.Payload.Payment.Entity
	log := s.logger.WithFields(logrus.Fields{
		"event":      event.Event,
		"order_id":   payment.OrderID,
		"payment_id": payment.ID,
	})

	var bookingID *uuid.UUID
	if id, err := uuid.Parse(payment.Notes["booking_id"]); err == nil {
		bookingID = &id
	}
	booking, err := s.resolveBooking(ctx, bookingID, payment.OrderID)
	if err != nil {
		if models.IsNotFoundError(err) {
			log.Warn("Webhook for unknown booking ignored")
			return nil
		}
		return err
	}

	paid := fromMinorUnits(payment.Amount)
	s.audit(ctx, models.NewPaymentAudit(&booking.ID, models.PaymentEventWebhookReceived, models.PaymentSourceWebhook).
		WithOrder(payment.OrderID, payment.ID).WithStatus(payment.Status, &paid))

	switch event.Event {
	case WebhookPaymentCaptured:
		if done, err := s.checkConfirmable(ctx, booking, payment.ID); done || err != nil {
			if err != nil {
				log.WithError(err).Warn("Captured payment for a booking that cannot be confirmed")
			}
			return nil
		}
		_, err := s.applyConfirmation(ctx, booking.ID, models.PaymentConfirmation{
			OrderID:    payment.OrderID,
			PaymentID:  payment.ID,
			PaidAmount: paid,
			PaidAt:     s.now(),
		}, models.PaymentSourceWebhook)
		if err != nil && !isStateError(err) {
			return err
		}
		return nil

	case WebhookPaymentFailed:
		released, err := s.schedules.ReleaseBookingSeats(ctx, booking.ID, models.BookingTransition{
			From:          []models.BookingStatus{models.BookingStatusPending},
			To:            models.BookingStatusAbandoned,
			PaymentStatus: models.PaymentStatusFailed,
			Now:           s.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to release seats after failed payment: %w", err)
		}
		if released {
			booking.Status = models.BookingStatusAbandoned
			s.audit(ctx, models.NewPaymentAudit(&booking.ID, models.PaymentEventBookingAbandoned, models.PaymentSourceWebhook).
				WithOrder(payment.OrderID, payment.ID).WithStatus(payment.Status, nil))
			publish(ctx, s.publisher, s.logger, events.TypeBookingAbandoned, booking)
			log.Info("Booking abandoned after failed payment")
		}
		return nil
	}

	log.Debug("Webhook event ignored")
	return nil
}

// resolveBooking finds the booking a payment belongs to: the explicit id,
// else the booking id in the order notes, else the stored order id
func (s *ReconciliationService) resolveBooking(ctx context.Context, bookingID *uuid.UUID, orderID string) (*models.Booking, error) {
	if bookingID != nil {
		booking, err := s.bookings.GetBookingByID(ctx, *bookingID)
		if err != nil {
			return nil, fmt.Errorf("failed to load booking: %w", err)
		}
		if booking == nil {
			return nil, models.NewNotFoundError("booking", bookingID.String())
		}
		if booking.GatewayOrderID != nil && *booking.GatewayOrderID != orderID {
			return nil, &models.AuthenticityError{Message: "order does not belong to this booking"}
		}
		return booking, nil
	}

	if order, err := s.gateway.FetchOrder(ctx, orderID); err == nil {
		if id, err := uuid.Parse(order.Notes["booking_id"]); err == nil {
			booking, err := s.bookings.GetBookingByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to load booking: %w", err)
			}
			if booking != nil {
				return booking, nil
			}
		}
	} else {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("Could not fetch order, falling back to stored order id")
	}

	booking, err := s.bookings.GetBookingByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, models.NewNotFoundError("booking for order", orderID)
	}
	return booking, nil
}

// checkConfirmable reports done=true when the booking is already confirmed
// with paymentID, and an error when it cannot be confirmed at all
func (s *ReconciliationService) checkConfirmable(ctx context.Context, booking *models.Booking, paymentID string) (bool, error) {
	switch booking.Status {
	case models.BookingStatusConfirmed:
		if booking.GatewayPaymentID != nil && *booking.GatewayPaymentID == paymentID {
			s.audit(ctx, models.NewPaymentAudit(&booking.ID, models.PaymentEventDuplicateConfirm, models.PaymentSourceBackend).
				WithOrder("", paymentID))
			return true, nil
		}
		return false, &models.InvalidStateError{Status: booking.Status, Action: "confirm"}
	case models.BookingStatusAbandoned, models.BookingStatusExpired:
		return false, &models.ExpiredError{BookingID: booking.ID.String()}
	case models.BookingStatusPending:
		if booking.IsPaymentExpired(s.now()) {
			s.expire(ctx, booking)
			return false, &models.ExpiredError{BookingID: booking.ID.String()}
		}
		return false, nil
	default:
		return false, &models.InvalidStateError{Status: booking.Status, Action: "confirm"}
	}
}

// expire releases a pending booking whose window closed before the sweep got to it
func (s *ReconciliationService) expire(ctx context.Context, booking *models.Booking) {
	released, err := s.schedules.ReleaseBookingSeats(ctx, booking.ID, models.BookingTransition{
		From:          []models.BookingStatus{models.BookingStatusPending},
		To:            models.BookingStatusExpired,
		PaymentStatus: models.PaymentStatusFailed,
		Now:           s.now(),
		RequireExpiry: true,
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to release expired booking")
		return
	}
	if released {
		booking.Status = models.BookingStatusExpired
		publish(ctx, s.publisher, s.logger, events.TypeBookingAbandoned, booking)
	}
}

// applyConfirmation runs the conditional transition and classifies a miss
func (s *ReconciliationService) applyConfirmation(ctx context.Context, bookingID uuid.UUID, conf models.PaymentConfirmation, source models.PaymentEventSource) (*models.Booking, error) {
	ok, err := s.bookings.ConfirmPayment(ctx, bookingID, conf)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload booking: %w", err)
	}
	if booking == nil {
		return nil, models.NewNotFoundError("booking", bookingID.String())
	}

	if !ok {
		done, err := s.checkConfirmable(ctx, booking, conf.PaymentID)
		if err != nil {
			return nil, err
		}
		if done {
			return booking, nil
		}
		// Still pending and inside the window: the update lost a race with
		// a transition that was rolled back. Report the current state.
		return nil, &models.InvalidStateError{Status: booking.Status, Action: "confirm"}
	}

	s.audit(ctx, models.NewPaymentAudit(&booking.ID, models.PaymentEventBookingConfirmed, source).
		WithOrder(conf.OrderID, conf.PaymentID).WithStatus(string(booking.PaymentStatus), &conf.PaidAmount))
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"paid":       conf.PaidAmount,
		"source":     source,
	}).Info("Booking confirmed")

	s.notifier.BookingConfirmed(ctx, booking)
	publish(ctx, s.publisher, s.logger, events.TypeBookingConfirmed, booking)
	return booking, nil
}

func (s *ReconciliationService) audit(ctx context.Context, audit *models.PaymentAudit) {
	_ = s.audits.Log(ctx, audit)
}

// isStateError reports errors that describe the booking rather than a failure
func isStateError(err error) bool {
	switch err.(type) {
	case *models.InvalidStateError, *models.ExpiredError:
		return true
	}
	return false
}
