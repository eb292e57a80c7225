package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/rideshare/seat-booking-backend/pkg/events"
	"github.com/sirupsen/logrus"
)

// BookingLister lists bookings for travelers and route admins
type BookingLister interface {
	ListBookingsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error)
	ListBookingsByAdmin(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]models.Booking, error)
}

// BookingService handles booking queries and admin cancellation
type BookingService struct {
	schedules ScheduleStore
	bookings  BookingStore
	lister    BookingLister
	routes    RouteStore
	audits    AuditLogger
	notifier  Notifier
	publisher events.Publisher
	logger    *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(
	schedules ScheduleStore,
	bookings BookingStore,
	lister BookingLister,
	routes RouteStore,
	audits AuditLogger,
	notifier Notifier,
	publisher events.Publisher,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		schedules: schedules,
		bookings:  bookings,
		lister:    lister,
		routes:    routes,
		audits:    audits,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
}

// Cancel cancels a pending or confirmed booking on one of the admin's routes
// and returns its seats. No refund is issued.
func (s *BookingService) Cancel(ctx context.Context, bookingID, adminID uuid.UUID) (*models.Booking, error) {
	booking, err := s.ownedByAdmin(ctx, bookingID, adminID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusConfirmed {
		return nil, &models.InvalidStateError{Status: booking.Status, Action: "cancel"}
	}

	released, err := s.schedules.ReleaseBookingSeats(ctx, bookingID, models.BookingTransition{
		From:        []models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed},
		To:          models.BookingStatusCancelled,
		CancelledBy: &adminID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	current, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload booking: %w", err)
	}
	if current == nil {
		return nil, models.NewNotFoundError("booking", bookingID.String())
	}
	if !released {
		// Moved out of pending/confirmed between the read and the update
		return nil, &models.InvalidStateError{Status: current.Status, Action: "cancel"}
	}

	_ = s.audits.Log(ctx, models.NewPaymentAudit(&bookingID, models.PaymentEventBookingCancelled, models.PaymentSourceBackend).
		WithStatus(string(booking.Status), &current.PaidAmount))
	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"admin_id":   adminID,
		"previous":   booking.Status,
	}).Info("Booking cancelled")

	s.notifier.BookingCancelled(ctx, current)
	publish(ctx, s.publisher, s.logger, events.TypeBookingCancelled, current)
	return current, nil
}

// GetMyBookings returns the caller's bookings, newest first
func (s *BookingService) GetMyBookings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	limit, offset = normalizePage(limit, offset)
	return s.lister.ListBookingsByUser(ctx, userID, limit, offset)
}

// GetAdminBookings returns bookings on the admin's routes, newest first
func (s *BookingService) GetAdminBookings(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	limit, offset = normalizePage(limit, offset)
	return s.lister.ListBookingsByAdmin(ctx, adminID, limit, offset)
}

// GetBookingDetail returns a booking to its traveler or to the admin of its route
func (s *BookingService) GetBookingDetail(ctx context.Context, bookingID, callerID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, models.NewNotFoundError("booking", bookingID.String())
	}
	if booking.UserID == callerID {
		return booking, nil
	}
	return s.ownedByAdmin(ctx, bookingID, callerID)
}

// GetAvailableSeats returns the seat layout of a schedule
func (s *BookingService) GetAvailableSeats(ctx context.Context, scheduleID uuid.UUID) (*models.AvailableSeatsResponse, error) {
	schedule, err := s.schedules.GetScheduleWithSeats(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if schedule == nil {
		return nil, models.NewNotFoundError("schedule", scheduleID.String())
	}
	return &models.AvailableSeatsResponse{
		ScheduleID:     schedule.ID,
		TotalSeats:     schedule.TotalSeats,
		AvailableSeats: schedule.AvailableSeats,
		SeatLayout:     schedule.SeatLayout,
		PricePerSeat:   schedule.PricePerSeat,
	}, nil
}

// ownedByAdmin loads a booking whose route is administered by adminID.
// Bookings on other admins' routes are reported as not found.
func (s *BookingService) ownedByAdmin(ctx context.Context, bookingID, adminID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, models.NewNotFoundError("booking", bookingID.String())
	}
	route, err := s.routes.GetRouteByID(ctx, booking.RouteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load route: %w", err)
	}
	if route == nil || route.AdminID != adminID {
		return nil, models.NewNotFoundError("booking", bookingID.String())
	}
	return booking, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
