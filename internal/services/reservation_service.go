package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/config"
	"github.com/rideshare/seat-booking-backend/internal/database"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/rideshare/seat-booking-backend/pkg/events"
	"github.com/rideshare/seat-booking-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

// ReservationService reserves seats and opens the payment order for them
type ReservationService struct {
	schedules ScheduleStore
	bookings  BookingStore
	routes    RouteStore
	gateway   PaymentGateway
	audits    AuditLogger
	notifier  Notifier
	publisher events.Publisher
	abandoner AbandonmentScheduler
	phones    *validator.PhoneValidator
	cfg       config.BookingConfig
	logger    *logrus.Logger
	now       func() time.Time
}

// NewReservationService creates a new ReservationService
func NewReservationService(
	schedules ScheduleStore,
	bookings BookingStore,
	routes RouteStore,
	gateway PaymentGateway,
	audits AuditLogger,
	notifier Notifier,
	publisher events.Publisher,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *ReservationService {
	return &ReservationService{
		schedules: schedules,
		bookings:  bookings,
		routes:    routes,
		gateway:   gateway,
		audits:    audits,
		notifier:  notifier,
		publisher: publisher,
		phones:    validator.NewPhoneValidator(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetAbandonmentScheduler arms a delayed sweep for every new reservation.
// Without one the periodic sweep alone reclaims timed out bookings.
func (s *ReservationService) SetAbandonmentScheduler(abandoner AbandonmentScheduler) {
	s.abandoner = abandoner
}

// Reserve validates the request, takes the seats and creates the gateway order
// for the advance payment. If the order cannot be created the reservation is
// undone before returning.
func (s *ReservationService) Reserve(ctx context.Context, userID uuid.UUID, req *models.ReserveRequest) (*models.ReserveResponse, error) {
	passengers, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	schedule, err := s.schedules.GetScheduleWithSeats(ctx, req.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if schedule == nil {
		return nil, models.NewNotFoundError("schedule", req.ScheduleID.String())
	}
	if schedule.Status != models.ScheduleStatusActive {
		return nil, &models.InactiveScheduleError{ScheduleID: schedule.ID.String()}
	}
	if schedule.RouteID != req.RouteID {
		return nil, models.NewValidationError("route_id", "does not match the schedule's route")
	}

	route, err := s.routes.GetRouteByID(ctx, schedule.RouteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load route: %w", err)
	}
	if route == nil {
		return nil, models.NewNotFoundError("route", schedule.RouteID.String())
	}
	if route.CarID != req.CarID {
		return nil, models.NewValidationError("car_id", "does not match the route's car")
	}

	if schedule.AvailableSeats < len(passengers) {
		return nil, &models.CapacityError{Requested: len(passengers), Available: schedule.AvailableSeats}
	}
	if err := checkSeats(schedule, req.SelectedSeats); err != nil {
		return nil, err
	}

	now := s.now()
	total := float64(len(passengers)) * schedule.PricePerSeat
	advance, remaining := models.SplitPayment(total, s.cfg.AdvancePercent)
	scheduleID := schedule.ID

	booking := &models.Booking{
		ID:              uuid.New(),
		UserID:          userID,
		RouteID:         schedule.RouteID,
		ScheduleID:      &scheduleID,
		CarID:           route.CarID,
		Passengers:      passengers,
		SelectedSeats:   models.SeatNumbers(req.SelectedSeats),
		TotalAmount:     math.Round(total),
		Status:          models.BookingStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		AdvanceAmount:   advance,
		RemainingAmount: remaining,
		PaymentTimeout:  now.Add(s.cfg.PaymentTimeout),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.schedules.ReserveSeats(ctx, booking); err != nil {
		if errors.Is(err, database.ErrSeatsUnavailable) {
			return nil, s.classifyConflict(ctx, schedule.ID, req.SelectedSeats)
		}
		return nil, fmt.Errorf("failed to reserve seats: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"schedule_id": schedule.ID,
		"seats":       req.SelectedSeats,
	})
	log.Info("Seats reserved")

	order, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:  toMinorUnits(advance),
		Receipt: booking.ID.String(),
		Notes:   map[string]string{"booking_id": booking.ID.String()},
	})
	if err == nil {
		booking.GatewayOrderID = &order.ID
		err = s.bookings.SetGatewayOrder(ctx, booking.ID, order.ID)
	}
	if err != nil {
		s.audit(ctx, models.NewPaymentAudit(&booking.ID, models.PaymentEventOrderFailed, models.PaymentSourceBackend).
			WithStatus("", &advance).WithError(err))
		s.compensate(ctx, booking.ID, log)
		if !models.IsGatewayError(err) {
			err = &models.GatewayError{Err: err}
		}
		return nil, err
	}

	s.audit(ctx, models.NewPaymentAudit(&booking.ID, models.PaymentEventOrderCreated, models.PaymentSourceBackend).
		WithOrder(order.ID, "").WithStatus(order.Status, &advance))

	if s.abandoner != nil {
		if err := s.abandoner.ScheduleAbandon(ctx, booking.ID, booking.PaymentTimeout); err != nil {
			log.WithError(err).Warn("Failed to schedule abandonment task, periodic sweep will reclaim")
		}
	}

	s.notifier.BookingReserved(ctx, booking)
	publish(ctx, s.publisher, s.logger, events.TypeBookingReserved, booking)

	return &models.ReserveResponse{
		Booking:        booking,
		PaymentDetails: booking.PaymentDetails(),
		OrderID:        order.ID,
		KeyID:          s.gateway.KeyID(),
		Amount:         order.Amount,
		Currency:       order.Currency,
	}, nil
}

// validateRequest checks counts, seat uniqueness and passenger details and
// returns the passengers with normalized phone numbers
func (s *ReservationService) validateRequest(req *models.ReserveRequest) (models.Passengers, error) {
	if len(req.Passengers) == 0 {
		return nil, models.NewValidationError("passengers", "at least one passenger is required")
	}
	if len(req.Passengers) != len(req.SelectedSeats) {
		return nil, models.NewValidationError("selected_seats",
			fmt.Sprintf("%d seats selected for %d passengers", len(req.SelectedSeats), len(req.Passengers)))
	}

	seen := make(map[string]bool, len(req.SelectedSeats))
	for _, seat := range req.SelectedSeats {
		if seat == "" {
			return nil, models.NewValidationError("selected_seats", "seat number cannot be empty")
		}
		if seen[seat] {
			return nil, models.NewValidationError("selected_seats", fmt.Sprintf("seat %s selected twice", seat))
		}
		seen[seat] = true
	}

	passengers := make(models.Passengers, len(req.Passengers))
	for i, p := range req.Passengers {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		phone, err := s.phones.Validate(p.Phone)
		if err != nil {
			return nil, models.NewValidationError("passengers.phone", err.Error())
		}
		p.Phone = phone
		passengers[i] = p
	}
	return passengers, nil
}

// checkSeats rejects unknown seat numbers and reports already booked ones
func checkSeats(schedule *models.Schedule, selected []string) error {
	layout := make(map[string]models.Seat, len(schedule.SeatLayout))
	for _, seat := range schedule.SeatLayout {
		layout[seat.SeatNumber] = seat
	}

	var taken []string
	for _, number := range selected {
		seat, ok := layout[number]
		if !ok {
			return models.NewValidationError("selected_seats", fmt.Sprintf("seat %s does not exist", number))
		}
		if seat.IsBooked {
			taken = append(taken, number)
		}
	}
	if len(taken) > 0 {
		return &models.SeatConflictError{Seats: taken}
	}
	return nil
}

// classifyConflict explains why the atomic reservation did not apply. A
// commit-time miss is always a seat conflict, naming the selected seats the
// re-read shows as taken, or the whole selection when none can be singled out.
func (s *ReservationService) classifyConflict(ctx context.Context, scheduleID uuid.UUID, selected []string) error {
	schedule, err := s.schedules.GetScheduleWithSeats(ctx, scheduleID)
	if err != nil || schedule == nil {
		return &models.SeatConflictError{Seats: selected}
	}
	if schedule.Status != models.ScheduleStatusActive {
		return &models.InactiveScheduleError{ScheduleID: scheduleID.String()}
	}
	if taken := takenSeats(schedule, selected); len(taken) > 0 {
		return &models.SeatConflictError{Seats: taken}
	}
	return &models.SeatConflictError{Seats: selected}
}

func takenSeats(schedule *models.Schedule, selected []string) []string {
	booked := make(map[string]bool, len(schedule.SeatLayout))
	for _, seat := range schedule.SeatLayout {
		booked[seat.SeatNumber] = seat.IsBooked
	}
	var taken []string
	for _, number := range selected {
		if booked[number] {
			taken = append(taken, number)
		}
	}
	return taken
}

// compensate removes a reservation whose payment order could not be opened
func (s *ReservationService) compensate(ctx context.Context, bookingID uuid.UUID, log *logrus.Entry) {
	if err := s.schedules.DeleteReservation(context.WithoutCancel(ctx), bookingID); err != nil {
		log.WithError(err).Error("Failed to roll back reservation, sweep will release it")
		return
	}
	s.audit(ctx, models.NewPaymentAudit(&bookingID, models.PaymentEventReservationRevoked, models.PaymentSourceSystem))
	log.Warn("Reservation rolled back after payment order failure")
}

func (s *ReservationService) audit(ctx context.Context, audit *models.PaymentAudit) {
	_ = s.audits.Log(ctx, audit)
}

// toMinorUnits converts a currency amount to paise
func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// fromMinorUnits converts paise to a currency amount
func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}

// publish emits a booking event, logging failures
func publish(ctx context.Context, publisher events.Publisher, logger *logrus.Logger, eventType string, booking *models.Booking) {
	if publisher == nil {
		return
	}
	event := events.BookingEvent{
		Type:       eventType,
		BookingID:  booking.ID,
		ScheduleID: booking.ScheduleID,
		UserID:     booking.UserID,
		Seats:      []string(booking.SelectedSeats),
		Status:     string(booking.Status),
		Amount:     booking.TotalAmount,
		OccurredAt: time.Now(),
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"event":      eventType,
			"booking_id": booking.ID,
		}).Warn("Failed to publish booking event")
	}
}
